// Package tickmath implements the bit-exact conversions between a tick
// index and a Q64.96 square-root price, reproducing the reference
// Uniswap V3 TickMath library (including its bit-50 quirk) so tick
// assignments match the reference implementation at the finest
// precision.
package tickmath

import (
	"errors"
	"math/big"

	"github.com/holiman/uint256"
)

// ErrTickOutOfRange is returned when |tick| > MaxTick.
var ErrTickOutOfRange = errors.New("T")

// ErrSqrtRatioOutOfRange is returned when sqrtPriceX96 is outside
// [MinSqrtRatio, MaxSqrtRatio).
var ErrSqrtRatioOutOfRange = errors.New("R")

const (
	// MinTick is the smallest tick value accepted by GetSqrtRatioAtTick.
	MinTick int32 = -887272
	// MaxTick is the largest tick value accepted by GetSqrtRatioAtTick.
	MaxTick int32 = 887272
)

// MinSqrtRatio is getSqrtRatioAtTick(MinTick).
var MinSqrtRatio = uint256.NewInt(4295128739)

// MaxSqrtRatio is getSqrtRatioAtTick(MaxTick).
var MaxSqrtRatio = mustUint256FromDecimal("1461446703485210103287273052203988822378723970342")

func mustUint256FromDecimal(s string) *uint256.Int {
	z, err := uint256.FromDecimal(s)
	if err != nil {
		panic(err)
	}
	return z
}

func mustUint256FromHex(s string) *uint256.Int {
	z, err := uint256.FromHex("0x" + s)
	if err != nil {
		panic(err)
	}
	return z
}

// bitMagic pairs a bit of |tick| with the Q128.128 ratio multiplier
// applied when that bit is set. These are the reference TickMath
// constants, unchanged from the Solidity/Python originals.
var bitMagic = []struct {
	bit uint32
	hex string
}{
	{0x2, "FFF97272373D413259A46990580E213A"},
	{0x4, "FFF2E50F5F656932EF12357CF3C7FDCC"},
	{0x8, "FFE5CACA7E10E4E61C3624EAA0941CD0"},
	{0x10, "FFCB9843D60F6159C9DB58835C926644"},
	{0x20, "FF973B41FA98C081472E6896DFB254C0"},
	{0x40, "FF2EA16466C96A3843EC78B326B52861"},
	{0x80, "FE5DEE046A99A2A811C461F1969C3053"},
	{0x100, "FCBE86C7900A88AEDCFFC83B479AA3A4"},
	{0x200, "F987A7253AC413176F2B074CF7815E54"},
	{0x400, "F3392B0822B70005940C7A398E4B70F3"},
	{0x800, "E7159475A2C29B7443B29C7FA6E889D9"},
	{0x1000, "D097F3BDFD2022B8845AD8F792AA5825"},
	{0x2000, "A9F746462D870FDF8A65DC1F90E061E5"},
	{0x4000, "70D869A156D2A1B890BB3DF62BAF32F7"},
	{0x8000, "31BE135F97D08FD981231505542FCFA6"},
	{0x10000, "9AA508B5B7A84E1C677DE54F3E99BC9"},
	{0x20000, "5D6AF8DEDB81196699C329225EE604"},
	{0x40000, "2216E584F5FA1EA926041BEDFE98"},
	{0x80000, "48A170391F7DC42444E8FA2"},
}

var bitMagicRatios = func() []*uint256.Int {
	out := make([]*uint256.Int, len(bitMagic))
	for i, m := range bitMagic {
		out[i] = mustUint256FromHex(m.hex)
	}
	return out
}()

var (
	ratioBit0     = mustUint256FromHex("FFFCB933BD6FAD37AA2D162D1A594001")
	ratioBaseline = mustUint256FromHex("100000000000000000000000000000000")
	maxUint256    = new(uint256.Int).Not(new(uint256.Int)) // all bits set
)

// GetSqrtRatioAtTick computes sqrt(1.0001^tick) * 2^96 as a Q64.96
// value, bit-exact with the reference implementation.
func GetSqrtRatioAtTick(tick int32) (*uint256.Int, error) {
	absTick := tick
	if absTick < 0 {
		absTick = -absTick
	}
	if absTick > MaxTick {
		return nil, ErrTickOutOfRange
	}
	uAbsTick := uint32(absTick)

	var ratio *uint256.Int
	if uAbsTick&0x1 != 0 {
		ratio = new(uint256.Int).Set(ratioBit0)
	} else {
		ratio = new(uint256.Int).Set(ratioBaseline)
	}

	for i, m := range bitMagic {
		if uAbsTick&m.bit != 0 {
			ratio.Mul(ratio, bitMagicRatios[i])
			ratio.Rsh(ratio, 128)
		}
	}

	if tick > 0 {
		ratio = new(uint256.Int).Div(maxUint256, ratio)
	}

	// Downcast from Q128.128 to Q128.96, rounding up on truncation.
	result := new(uint256.Int).Rsh(ratio, 32)
	remainder := new(uint256.Int).And(ratio, uint256.NewInt((1<<32)-1))
	if !remainder.IsZero() {
		result.AddUint64(result, 1)
	}
	if err := checkUint160(result); err != nil {
		return nil, err
	}
	return result, nil
}

func checkUint160(x *uint256.Int) error {
	if x.BitLen() > 160 {
		return errors.New("OF or UF of UINT160")
	}
	return nil
}

var (
	bigOne        = big.NewInt(1)
	logMultiplier = big.NewInt(255738958999603826347141)
	tickLowOffset = mustBigFromDecimal("3402992956809132418596140100660247210")
	tickHiOffset  = mustBigFromDecimal("291339464771989622907027621153398088495")
)

func mustBigFromDecimal(s string) *big.Int {
	z, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad decimal literal: " + s)
	}
	return z
}

// GetTickAtSqrtRatio computes the greatest tick such that
// getSqrtRatioAtTick(tick) <= sqrtPriceX96.
func GetTickAtSqrtRatio(sqrtPriceX96 *uint256.Int) (int32, error) {
	if sqrtPriceX96.Lt(MinSqrtRatio) || sqrtPriceX96.Cmp(MaxSqrtRatio) >= 0 {
		return 0, ErrSqrtRatioOutOfRange
	}

	ratio := new(uint256.Int).Lsh(sqrtPriceX96, 32)

	r := new(uint256.Int).Set(ratio)
	var msb uint

	msbMasks := []struct {
		maskHex string
		bit     uint
	}{
		{"FFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFF", 7},
		{"FFFFFFFFFFFFFFFF", 6},
		{"FFFFFFFF", 5},
		{"FFFF", 4},
		{"FF", 3},
		{"F", 2},
		{"3", 1},
		{"1", 0},
	}
	for _, mm := range msbMasks {
		mask := mustUint256FromHex(mm.maskHex)
		var gt uint
		if r.Gt(mask) {
			gt = 1
		}
		f := gt << mm.bit
		msb |= f
		r = new(uint256.Int).Rsh(r, f)
	}

	if msb >= 128 {
		r = new(uint256.Int).Rsh(ratio, msb-127)
	} else {
		r = new(uint256.Int).Lsh(ratio, 127-msb)
	}

	// log_2 is a signed Q64.64 number (can be negative), so the rest of
	// the computation moves into math/big.
	log2 := new(big.Int).Lsh(big.NewInt(int64(msb)-128), 64)

	for _, bit := range []uint{63, 62, 61, 60, 59, 58, 57, 56, 55, 54, 53, 52, 51, 50} {
		r = new(uint256.Int).Mul(r, r)
		r.Rsh(r, 127)
		f := new(uint256.Int).Rsh(r, 128)
		var fv int64
		if !f.IsZero() {
			fv = 1
		}
		log2.Or(log2, new(big.Int).Lsh(big.NewInt(fv), bit))
		// Reference quirk: the final shift is skipped when bit == 50.
		if bit != 50 {
			r = new(uint256.Int).Rsh(r, uint(fv))
		}
	}

	logSqrt10001 := new(big.Int).Mul(log2, logMultiplier)

	tickLow := new(big.Int).Rsh(new(big.Int).Sub(logSqrt10001, tickLowOffset), 128)
	tickHi := new(big.Int).Rsh(new(big.Int).Add(logSqrt10001, tickHiOffset), 128)

	tickLow32 := int32(tickLow.Int64())
	tickHi32 := int32(tickHi.Int64())

	if tickLow32 == tickHi32 {
		return tickLow32, nil
	}
	hiRatio, err := GetSqrtRatioAtTick(tickHi32)
	if err != nil {
		return 0, err
	}
	if hiRatio.Cmp(sqrtPriceX96) <= 0 {
		return tickHi32, nil
	}
	return tickLow32, nil
}
