// Package fixedmath implements the full-precision 256-bit arithmetic
// primitives the rest of the engine builds on: mulDiv with overflow
// rejection, rounding-up division, and the bounded-width range checks
// that stand in for Solidity's uintN/intN casts.
package fixedmath

import (
	"errors"
	"math/big"

	"github.com/holiman/uint256"
	"lukechampine.com/uint128"
)

var (
	// ErrDivByZero mirrors a Solidity revert on division by zero.
	ErrDivByZero = errors.New("fixedmath: division by zero")
	// ErrOverflowUint256 is returned when a mulDiv result cannot fit in 256 bits.
	ErrOverflowUint256 = errors.New("OF or UF of UINT256")
	// ErrOverflowUint160 is returned when a value exceeds the 160-bit range.
	ErrOverflowUint160 = errors.New("OF or UF of UINT160")
	// ErrOverflowUint128 is returned when a value exceeds the 128-bit range.
	ErrOverflowUint128 = errors.New("OF or UF of UINT128")
	// ErrOverflowInt128 is returned when a signed value falls outside int128.
	ErrOverflowInt128 = errors.New("OF or UF of INT128")
	// ErrOverflowInt256 is returned when a signed value falls outside int256.
	ErrOverflowInt256 = errors.New("OF or UF of INT256")
	// ErrOverflowInt24 is returned when a tick falls outside int24.
	ErrOverflowInt24 = errors.New("OF or UF of INT24")
)

// maxUint160 is 2^160 - 1, used to range-check sqrtPriceX96 values that
// are logically uint160 but carried in a *uint256.Int.
var maxUint160 = func() *uint256.Int {
	one := uint256.NewInt(1)
	shifted := new(uint256.Int).Lsh(one, 160)
	return new(uint256.Int).Sub(shifted, one)
}()

var (
	maxInt128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1))
	minInt128 = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 127))
	maxInt256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 255), big.NewInt(1))
	minInt256 = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 255))
	maxInt24  = big.NewInt(1<<23 - 1)
	minInt24  = big.NewInt(-(1 << 23))
)

// MulDiv computes floor(a*b/c) with full 512-bit intermediate precision,
// failing if c == 0 or the result overflows uint256.
func MulDiv(a, b, c *uint256.Int) (*uint256.Int, error) {
	if c.IsZero() {
		return nil, ErrDivByZero
	}
	result, overflow := new(uint256.Int).MulDivOverflow(a, b, c)
	if overflow {
		return nil, ErrOverflowUint256
	}
	return result, nil
}

// MulDivRoundingUp computes ceil(a*b/c) with full precision.
func MulDivRoundingUp(a, b, c *uint256.Int) (*uint256.Int, error) {
	result, err := MulDiv(a, b, c)
	if err != nil {
		return nil, err
	}
	// a*b mod c != 0 => round up. Recompute the remainder directly since
	// MulDiv already asserted against overflow.
	product := new(big.Int).Mul(a.ToBig(), b.ToBig())
	_, rem := new(big.Int).DivMod(product, c.ToBig(), new(big.Int))
	if rem.Sign() != 0 {
		one := uint256.NewInt(1)
		sum, overflow := new(uint256.Int).AddOverflow(result, one)
		if overflow {
			return nil, ErrOverflowUint256
		}
		return sum, nil
	}
	return result, nil
}

// DivRoundingUp computes ceil(a/b) = a/b + (1 if a%b>0 else 0).
func DivRoundingUp(a, b *uint256.Int) (*uint256.Int, error) {
	if b.IsZero() {
		return nil, ErrDivByZero
	}
	quot, rem := new(uint256.Int), new(uint256.Int)
	quot.DivMod(a, b, rem)
	if !rem.IsZero() {
		one := uint256.NewInt(1)
		sum, overflow := new(uint256.Int).AddOverflow(quot, one)
		if overflow {
			return nil, ErrOverflowUint256
		}
		return sum, nil
	}
	return quot, nil
}

// CheckUint160 asserts x fits in 160 bits.
func CheckUint160(x *uint256.Int) error {
	if x.Gt(maxUint160) {
		return ErrOverflowUint160
	}
	return nil
}

// CheckUint128 asserts x fits in 128 bits; a uint128.Uint128 is a plain
// struct and can never itself overflow, so this only exists to check
// values still carried in a *uint256.Int (e.g. intermediate mulDiv
// results before they are folded into a Position's tokensOwed).
func CheckUint128(x *uint256.Int) error {
	if x.BitLen() > 128 {
		return ErrOverflowUint128
	}
	return nil
}

// CheckInt128 asserts x fits in a signed 128-bit range.
func CheckInt128(x *big.Int) error {
	if x.Cmp(minInt128) < 0 || x.Cmp(maxInt128) > 0 {
		return ErrOverflowInt128
	}
	return nil
}

// CheckInt256 asserts x fits in a signed 256-bit range.
func CheckInt256(x *big.Int) error {
	if x.Cmp(minInt256) < 0 || x.Cmp(maxInt256) > 0 {
		return ErrOverflowInt256
	}
	return nil
}

// CheckInt24 asserts x fits in a signed 24-bit range (the tick domain).
func CheckInt24(x int32) error {
	bx := big.NewInt(int64(x))
	if bx.Cmp(minInt24) < 0 || bx.Cmp(maxInt24) > 0 {
		return ErrOverflowInt24
	}
	return nil
}

// AddSigned adds two signed big.Int deltas and checks the result fits
// int256, mirroring Solidity's checked signed addition.
func AddSigned(a, b *big.Int) (*big.Int, error) {
	sum := new(big.Int).Add(a, b)
	if err := CheckInt256(sum); err != nil {
		return nil, err
	}
	return sum, nil
}

// SubSigned subtracts two signed big.Int deltas and checks the result
// fits int256.
func SubSigned(a, b *big.Int) (*big.Int, error) {
	diff := new(big.Int).Sub(a, b)
	if err := CheckInt256(diff); err != nil {
		return nil, err
	}
	return diff, nil
}

// ToUint256Mod folds x into [0, 2^256) by modular wraparound, the
// deliberate behavior spec'd for fee-growth accumulators.
func ToUint256Mod(x *big.Int) *uint256.Int {
	m := new(big.Int).Mod(x, new(big.Int).Lsh(big.NewInt(1), 256))
	z, _ := uint256.FromBig(m)
	return z
}

// Uint128FromUint256 downcasts a *uint256.Int known to fit in 128 bits
// into a uint128.Uint128, returning an error otherwise.
func Uint128FromUint256(x *uint256.Int) (uint128.Uint128, error) {
	if err := CheckUint128(x); err != nil {
		return uint128.Zero, err
	}
	return uint128.FromBig(x.ToBig()), nil
}

// Uint256FromUint128 widens a uint128.Uint128 into a *uint256.Int.
func Uint256FromUint128(x uint128.Uint128) *uint256.Int {
	z, _ := uint256.FromBig(x.Big())
	return z
}
