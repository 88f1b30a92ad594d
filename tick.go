package clmmengine

import (
	"math/big"
	"sort"

	"github.com/holiman/uint256"
	"lukechampine.com/uint128"

	"github.com/riverrun-labs/clmm-engine/internal/fixedmath"
	"github.com/riverrun-labs/clmm-engine/internal/tickmath"
)

// Tick holds the per-tick accounting needed to cross a liquidity
// boundary: how much gross/net liquidity flips there, and the fee
// growth that accrued on the far side of it.
type Tick struct {
	LiquidityGross       uint128.Uint128
	LiquidityNet         *big.Int
	FeeGrowthOutside0X128 *uint256.Int
	FeeGrowthOutside1X128 *uint256.Int
}

func newTick() *Tick {
	return &Tick{
		LiquidityGross:        uint128.Zero,
		LiquidityNet:          big.NewInt(0),
		FeeGrowthOutside0X128: new(uint256.Int),
		FeeGrowthOutside1X128: new(uint256.Int),
	}
}

// TickManager owns every tick record for a pool, initialized lazily as
// positions touch them.
type TickManager struct {
	ticks map[int32]*Tick
}

// NewTickManager returns an empty tick manager.
func NewTickManager() *TickManager {
	return &TickManager{ticks: make(map[int32]*Tick)}
}

// Clone deep-copies every tick record.
func (tm *TickManager) Clone() *TickManager {
	out := NewTickManager()
	for k, v := range tm.ticks {
		cp := *v
		cp.LiquidityNet = new(big.Int).Set(v.LiquidityNet)
		cp.FeeGrowthOutside0X128 = new(uint256.Int).Set(v.FeeGrowthOutside0X128)
		cp.FeeGrowthOutside1X128 = new(uint256.Int).Set(v.FeeGrowthOutside1X128)
		out.ticks[k] = &cp
	}
	return out
}

// TickSpacingToMaxLiquidityPerTick derives the maximum liquidity that
// may be deposited on a single tick, given a pool's tick spacing.
func TickSpacingToMaxLiquidityPerTick(tickSpacing int32) uint128.Uint128 {
	minTick := ceilDiv(int64(tickmath.MinTick), int64(tickSpacing)) * int64(tickSpacing)
	maxTick := floorDiv(int64(tickmath.MaxTick), int64(tickSpacing)) * int64(tickSpacing)
	numTicks := (maxTick-minTick)/int64(tickSpacing) + 1

	maxUint128 := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))
	result := new(big.Int).Div(maxUint128, big.NewInt(numTicks))
	return uint128.FromBig(result)
}

func ceilDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) == (b < 0)) {
		q++
	}
	return q
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// AddDelta adds a signed liquidity delta to x, matching the reference
// implementation's checked overflow ("LA") and underflow ("LS")
// semantics.
func AddDelta(x uint128.Uint128, y *big.Int) (uint128.Uint128, error) {
	if y.Sign() < 0 {
		abs := new(big.Int).Neg(y)
		absU128 := uint128.FromBig(abs)
		if x.Cmp(absU128) < 0 {
			return uint128.Zero, ErrLiquidityUnderflow
		}
		return x.SubWrap(absU128), nil
	}
	absU128 := uint128.FromBig(y)
	z := x.AddWrap(absU128)
	if z.Cmp(x) < 0 {
		// Wrapped past 2^128: this is the overflow the reference "LA" guards against.
		return uint128.Zero, ErrLiquidityAddDelta
	}
	return z, nil
}

func (tm *TickManager) sortedKeys() []int32 {
	keys := make([]int32, 0, len(tm.ticks))
	for k := range tm.ticks {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// GetTickAndInitIfAbsent returns the tick record at the given index,
// lazily creating an uninitialized one if absent.
func (tm *TickManager) GetTickAndInitIfAbsent(tick int32) *Tick {
	t, ok := tm.ticks[tick]
	if !ok {
		t = newTick()
		tm.ticks[tick] = t
	}
	return t
}

// GetTick returns the tick record at the given index and whether it
// exists.
func (tm *TickManager) GetTick(tick int32) (*Tick, bool) {
	t, ok := tm.ticks[tick]
	return t, ok
}

// Update applies a liquidity delta to the tick at `tick`, lazily
// creating it (only ever on a positive delta), and reports whether the
// tick flipped between uninitialized and initialized.
func (tm *TickManager) Update(tick, tickCurrent int32, liquidityDelta *big.Int, feeGrowthGlobal0X128, feeGrowthGlobal1X128 *uint256.Int, upper bool, maxLiquidity uint128.Uint128) (bool, error) {
	info, ok := tm.ticks[tick]
	if !ok {
		if liquidityDelta.Sign() <= 0 {
			// Never create a tick on a non-positive delta: there is
			// nothing to flip.
			return false, nil
		}
		info = newTick()
		tm.ticks[tick] = info
	}

	liquidityGrossBefore := info.LiquidityGross
	liquidityGrossAfter, err := AddDelta(liquidityGrossBefore, liquidityDelta)
	if err != nil {
		return false, err
	}
	if liquidityGrossAfter.Cmp(maxLiquidity) > 0 {
		return false, ErrLiquidityOverflow
	}

	flipped := liquidityGrossAfter.IsZero() != liquidityGrossBefore.IsZero()

	if liquidityGrossBefore.IsZero() {
		// By convention, all growth before a tick was initialized is
		// assumed to have happened below the tick.
		if tick <= tickCurrent {
			info.FeeGrowthOutside0X128 = new(uint256.Int).Set(feeGrowthGlobal0X128)
			info.FeeGrowthOutside1X128 = new(uint256.Int).Set(feeGrowthGlobal1X128)
		}
	}

	info.LiquidityGross = liquidityGrossAfter

	if upper {
		next := new(big.Int).Sub(info.LiquidityNet, liquidityDelta)
		if err := fixedmath.CheckInt128(next); err != nil {
			return false, err
		}
		info.LiquidityNet = next
	} else {
		next := new(big.Int).Add(info.LiquidityNet, liquidityDelta)
		if err := fixedmath.CheckInt128(next); err != nil {
			return false, err
		}
		info.LiquidityNet = next
	}

	return flipped, nil
}

// Clear removes all data for a tick, releasing storage once it is no
// longer referenced by any position.
func (tm *TickManager) Clear(tick int32) {
	delete(tm.ticks, tick)
}

// Cross flips the outside fee growth accumulators for a tick as price
// crosses it, returning the net liquidity to apply. Cross is its own
// inverse: crossing a tick twice restores its prior state.
func (tm *TickManager) Cross(tick int32, feeGrowthGlobal0X128, feeGrowthGlobal1X128 *uint256.Int) (*big.Int, error) {
	info, ok := tm.ticks[tick]
	if !ok {
		return nil, ErrPositionNotFound
	}
	info.FeeGrowthOutside0X128 = new(uint256.Int).Sub(feeGrowthGlobal0X128, info.FeeGrowthOutside0X128)
	info.FeeGrowthOutside1X128 = new(uint256.Int).Sub(feeGrowthGlobal1X128, info.FeeGrowthOutside1X128)
	return new(big.Int).Set(info.LiquidityNet), nil
}

// GetFeeGrowthInside computes the fee growth accrued strictly between
// tickLower and tickUpper, as of the current tick.
func (tm *TickManager) GetFeeGrowthInside(tickLower, tickUpper, tickCurrent int32, feeGrowthGlobal0X128, feeGrowthGlobal1X128 *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	lower, ok := tm.ticks[tickLower]
	if !ok {
		lower = newTick()
	}
	upper, ok := tm.ticks[tickUpper]
	if !ok {
		upper = newTick()
	}

	var feeGrowthBelow0, feeGrowthBelow1 *uint256.Int
	if tickCurrent >= tickLower {
		feeGrowthBelow0 = lower.FeeGrowthOutside0X128
		feeGrowthBelow1 = lower.FeeGrowthOutside1X128
	} else {
		feeGrowthBelow0 = new(uint256.Int).Sub(feeGrowthGlobal0X128, lower.FeeGrowthOutside0X128)
		feeGrowthBelow1 = new(uint256.Int).Sub(feeGrowthGlobal1X128, lower.FeeGrowthOutside1X128)
	}

	var feeGrowthAbove0, feeGrowthAbove1 *uint256.Int
	if tickCurrent < tickUpper {
		feeGrowthAbove0 = upper.FeeGrowthOutside0X128
		feeGrowthAbove1 = upper.FeeGrowthOutside1X128
	} else {
		feeGrowthAbove0 = new(uint256.Int).Sub(feeGrowthGlobal0X128, upper.FeeGrowthOutside0X128)
		feeGrowthAbove1 = new(uint256.Int).Sub(feeGrowthGlobal1X128, upper.FeeGrowthOutside1X128)
	}

	inside0 := new(uint256.Int).Sub(feeGrowthGlobal0X128, feeGrowthBelow0)
	inside0.Sub(inside0, feeGrowthAbove0)
	inside1 := new(uint256.Int).Sub(feeGrowthGlobal1X128, feeGrowthBelow1)
	inside1.Sub(inside1, feeGrowthAbove1)

	return inside0, inside1, nil
}

// GetNextInitializedTick scans the sorted set of initialized ticks for
// the next one reachable from `tick`: when lte, the tick itself (if
// initialized) or the nearest initialized tick to its left; otherwise
// the nearest initialized tick strictly to its right. It returns the
// domain boundary (MinTick/MaxTick) when no further initialized tick
// exists in that direction.
func (tm *TickManager) GetNextInitializedTick(tick int32, lte bool) (int32, bool) {
	keys := tm.sortedKeys()

	if lte {
		if _, ok := tm.ticks[tick]; ok {
			return tick, true
		}
		for i := len(keys) - 1; i >= 0; i-- {
			if keys[i] < tick {
				return keys[i], true
			}
		}
		return tickmath.MinTick, false
	}

	for _, k := range keys {
		if k > tick {
			return k, true
		}
	}
	return tickmath.MaxTick, false
}
