package clmmengine

import (
	"math/big"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"lukechampine.com/uint128"
)

func TestTickSpacingToMaxLiquidityPerTick(t *testing.T) {
	cases := []struct {
		spacing int32
		want    string
	}{
		{10, "1917569901783203986719870431555990"},
		{60, "11505743598341114571880798222544994"},
		{200, "38350317471085141830651933667504588"},
	}
	for _, c := range cases {
		got := TickSpacingToMaxLiquidityPerTick(c.spacing)
		assert.Equal(t, c.want, got.String(), "spacing=%d", c.spacing)
	}

	// (2^128-1)/3 at the full tick range's own spacing.
	maxUint128 := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))
	want := new(big.Int).Div(maxUint128, big.NewInt(3))
	got := TickSpacingToMaxLiquidityPerTick(887272)
	assert.Equal(t, want.String(), got.String())
}

func TestTickUpdateFlipsOnFirstAndLastLiquidity(t *testing.T) {
	tm := NewTickManager()
	maxLiquidity := TickSpacingToMaxLiquidityPerTick(60)

	flipped, err := tm.Update(120, 0, big.NewInt(1000), new(uint256.Int), new(uint256.Int), false, maxLiquidity)
	require.NoError(t, err)
	assert.True(t, flipped, "first touch of a tick always flips it initialized")

	flipped, err = tm.Update(120, 0, big.NewInt(500), new(uint256.Int), new(uint256.Int), false, maxLiquidity)
	require.NoError(t, err)
	assert.False(t, flipped, "adding more liquidity to an already-initialized tick does not flip it")

	flipped, err = tm.Update(120, 0, big.NewInt(-1500), new(uint256.Int), new(uint256.Int), false, maxLiquidity)
	require.NoError(t, err)
	assert.True(t, flipped, "draining a tick back to zero gross liquidity flips it uninitialized")
}

func TestTickUpdateRejectsOverMaxLiquidity(t *testing.T) {
	tm := NewTickManager()
	maxLiquidity := uint128.From64(1000)

	_, err := tm.Update(0, 0, big.NewInt(1001), new(uint256.Int), new(uint256.Int), false, maxLiquidity)
	assert.ErrorIs(t, err, ErrLiquidityOverflow)
}

func TestCrossIsItsOwnInverse(t *testing.T) {
	tm := NewTickManager()
	maxLiquidity := TickSpacingToMaxLiquidityPerTick(60)
	_, err := tm.Update(120, 0, big.NewInt(1000), new(uint256.Int), new(uint256.Int), false, maxLiquidity)
	require.NoError(t, err)

	tickInfo, ok := tm.GetTick(120)
	require.True(t, ok)
	before0 := new(uint256.Int).Set(tickInfo.FeeGrowthOutside0X128)
	before1 := new(uint256.Int).Set(tickInfo.FeeGrowthOutside1X128)

	global0 := uint256.NewInt(500)
	global1 := uint256.NewInt(700)

	_, err = tm.Cross(120, global0, global1)
	require.NoError(t, err)
	_, err = tm.Cross(120, global0, global1)
	require.NoError(t, err)

	assert.True(t, tickInfo.FeeGrowthOutside0X128.Eq(before0))
	assert.True(t, tickInfo.FeeGrowthOutside1X128.Eq(before1))
}

func TestGetNextInitializedTick(t *testing.T) {
	tm := NewTickManager()
	maxLiquidity := TickSpacingToMaxLiquidityPerTick(60)
	for _, tick := range []int32{-120, 0, 60, 180} {
		_, err := tm.Update(tick, 0, big.NewInt(1), new(uint256.Int), new(uint256.Int), false, maxLiquidity)
		require.NoError(t, err)
	}

	next, initialized := tm.GetNextInitializedTick(0, true)
	assert.Equal(t, int32(0), next)
	assert.True(t, initialized)

	next, initialized = tm.GetNextInitializedTick(1, true)
	assert.Equal(t, int32(0), next)
	assert.True(t, initialized)

	next, initialized = tm.GetNextInitializedTick(60, false)
	assert.Equal(t, int32(180), next)
	assert.True(t, initialized)

	next, initialized = tm.GetNextInitializedTick(180, false)
	assert.False(t, initialized)
}
