package clmmengine

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"lukechampine.com/uint128"

	"github.com/riverrun-labs/clmm-engine/internal/tickmath"
)

// encodeSqrtPriceX96 mirrors the reference fixtures' encodePriceSqrt
// helper: floor(sqrt(num/den) * 2^96).
func encodeSqrtPriceX96(num, den int64) decimal.Decimal {
	n := new(big.Int).Mul(big.NewInt(num), new(big.Int).Lsh(big.NewInt(1), 192))
	n.Div(n, big.NewInt(den))
	n.Sqrt(n)
	return decimal.NewFromBigInt(n, 0)
}

const minUsableTick60 = -887220
const maxUsableTick60 = 887220

func newTestPool(t *testing.T, fee uint32) (*CorePool, *InMemoryLedger, common.Address, common.Address) {
	t.Helper()
	ledger := NewInMemoryLedger()
	token0 := common.HexToAddress("0x1000000000000000000000000000000000000000")
	token1 := common.HexToAddress("0x2000000000000000000000000000000000000000")
	f := NewFactory()
	pool, err := f.CreatePool(token0, token1, fee, ledger)
	require.NoError(t, err)
	return pool, ledger, token0, token1
}

func fundOwner(ledger *InMemoryLedger, owner, token0, token1 common.Address) {
	huge := decimal.NewFromBigInt(new(big.Int).Lsh(big.NewInt(1), 100), 0)
	ledger.SetBalance(owner, token0, huge)
	ledger.SetBalance(owner, token1, huge)
}

func TestPoolMintAboveCurrentTick(t *testing.T) {
	pool, ledger, token0, _ := newTestPool(t, 3000)
	owner := common.HexToAddress("0x01")
	fundOwner(ledger, owner, token0, pool.Token1)

	require.NoError(t, pool.Initialize(encodeSqrtPriceX96(1, 10)))

	amount0First, _, err := pool.Mint(owner, minUsableTick60, maxUsableTick60, uint128.From64(3161))
	require.NoError(t, err)
	assert.Equal(t, "9996", amount0First.String())

	amount0Second, amount1Second, err := pool.Mint(owner, -22980, 0, uint128.From64(10000))
	require.NoError(t, err)
	assert.Equal(t, "21549", amount0Second.String())
	assert.True(t, amount1Second.IsZero())

	poolBalance0, err := ledger.BalanceOf(pool.selfAddress(), token0)
	require.NoError(t, err)
	assert.True(t, poolBalance0.Equal(decimal.NewFromInt(9996+21549)))
}

func TestPoolLimitOrderBehavior(t *testing.T) {
	pool, ledger, token0, token1 := newTestPool(t, 3000)
	owner := common.HexToAddress("0x01")
	fundOwner(ledger, owner, token0, token1)

	require.NoError(t, pool.Initialize(encodeSqrtPriceX96(1, 1)))

	_, _, err := pool.Mint(owner, minUsableTick60, maxUsableTick60, uint128.From64(2_000_000_000_000_000_000))
	require.NoError(t, err)

	amount0, amount1, err := pool.Mint(owner, 0, 120, uint128.From64(1_000_000_000_000_000_000))
	require.NoError(t, err)
	assert.Equal(t, "5981737760509663", amount0.String())
	assert.True(t, amount1.IsZero())

	sqrtPriceLimit := new(uint256.Int).Sub(tickmath.MaxSqrtRatio, uint256.NewInt(1))
	_, _, err = pool.Swap(owner, false, big.NewInt(2_000_000_000_000_000_000), sqrtPriceLimit)
	require.NoError(t, err)

	burnAmount0, burnAmount1, err := pool.Burn(owner, 0, 120, uint128.From64(1_000_000_000_000_000_000))
	require.NoError(t, err)
	assert.True(t, burnAmount0.IsZero())
	assert.Equal(t, "6017734268818165", burnAmount1.String())

	collected0, collected1, err := pool.Collect(owner, 0, 120, uint128.Max, uint128.Max)
	require.NoError(t, err)
	assert.True(t, collected0.IsZero())
	assert.True(t, collected1.Equal(decimal.NewFromInt(6017734268818165+18107525382602)))

	assert.GreaterOrEqual(t, pool.Slot0.Tick, int32(120))
}

func TestPoolProtocolFeeSplit(t *testing.T) {
	pool, ledger, token0, token1 := newTestPool(t, 3000)
	owner := common.HexToAddress("0x01")
	fundOwner(ledger, owner, token0, token1)

	require.NoError(t, pool.Initialize(encodeSqrtPriceX96(1, 1)))
	_, _, err := pool.Mint(owner, minUsableTick60, maxUsableTick60, uint128.From64(1_000_000_000_000_000_000))
	require.NoError(t, err)

	old0, old1, err := pool.SetFeeProtocol(6, 6)
	require.NoError(t, err)
	assert.Equal(t, uint8(0), old0)
	assert.Equal(t, uint8(0), old1)

	zeroForOneLimit := new(uint256.Int).Add(tickmath.MinSqrtRatio, uint256.NewInt(1))
	_, _, err = pool.Swap(owner, true, big.NewInt(100_000_000_000_000_000), zeroForOneLimit)
	require.NoError(t, err)

	oneForZeroLimit := new(uint256.Int).Sub(tickmath.MaxSqrtRatio, uint256.NewInt(1))
	_, _, err = pool.Swap(owner, false, big.NewInt(10_000_000_000_000_000), oneForZeroLimit)
	require.NoError(t, err)

	assert.Equal(t, "50000000000000", pool.ProtocolFees.Token0.String())
	assert.Equal(t, "5000000000000", pool.ProtocolFees.Token1.String())
}

func TestPoolInitializeBoundaries(t *testing.T) {
	pool, _, _, _ := newTestPool(t, 3000)
	err := pool.Initialize(decimal.NewFromBigInt(tickmath.MinSqrtRatio.ToBig(), 0))
	require.NoError(t, err)
	assert.Equal(t, tickmath.MinTick, pool.Slot0.Tick)
}

func TestPoolInitializeRejectsOutOfRangePrice(t *testing.T) {
	pool, _, _, _ := newTestPool(t, 3000)
	belowMin := new(uint256.Int).Sub(tickmath.MinSqrtRatio, uint256.NewInt(1))
	err := pool.Initialize(decimal.NewFromBigInt(belowMin.ToBig(), 0))
	assert.ErrorIs(t, err, tickmath.ErrSqrtRatioOutOfRange)
}

func TestPoolInitializeRejectsDoubleInit(t *testing.T) {
	pool, _, _, _ := newTestPool(t, 3000)
	require.NoError(t, pool.Initialize(encodeSqrtPriceX96(1, 1)))
	err := pool.Initialize(encodeSqrtPriceX96(1, 1))
	assert.ErrorIs(t, err, ErrAlreadyInitialized)
}

func TestPoolMintRejectsBadTicks(t *testing.T) {
	pool, ledger, token0, token1 := newTestPool(t, 3000)
	owner := common.HexToAddress("0x01")
	fundOwner(ledger, owner, token0, token1)
	require.NoError(t, pool.Initialize(encodeSqrtPriceX96(1, 1)))

	_, _, err := pool.Mint(owner, 60, -60, uint128.From64(1))
	assert.ErrorIs(t, err, ErrTickLowerUnset)

	_, _, err = pool.Mint(owner, tickmath.MinTick-1, 60, uint128.From64(1))
	assert.ErrorIs(t, err, ErrTickLowerTooLow)

	_, _, err = pool.Mint(owner, -60, tickmath.MaxTick+1, uint128.From64(1))
	assert.ErrorIs(t, err, ErrTickUpperTooHigh)
}

func TestPoolMintRejectsZeroAmount(t *testing.T) {
	pool, _, _, _ := newTestPool(t, 3000)
	require.NoError(t, pool.Initialize(encodeSqrtPriceX96(1, 1)))
	_, _, err := pool.Mint(common.HexToAddress("0x01"), -60, 60, uint128.Zero)
	assert.ErrorIs(t, err, ErrAmountSpecifiedZero)
}

func TestPoolMintAndBurnRoundTripLeavesPoolWhole(t *testing.T) {
	pool, ledger, token0, token1 := newTestPool(t, 3000)
	owner := common.HexToAddress("0x01")
	fundOwner(ledger, owner, token0, token1)
	require.NoError(t, pool.Initialize(encodeSqrtPriceX96(1, 1)))

	before0, _ := ledger.BalanceOf(owner, token0)
	before1, _ := ledger.BalanceOf(owner, token1)

	amount := uint128.From64(1_000_000_000_000)
	_, _, err := pool.Mint(owner, -600, 600, amount)
	require.NoError(t, err)

	_, _, err = pool.Burn(owner, -600, 600, amount)
	require.NoError(t, err)

	collected0, collected1, err := pool.Collect(owner, -600, 600, uint128.Max, uint128.Max)
	require.NoError(t, err)

	after0, _ := ledger.BalanceOf(owner, token0)
	after1, _ := ledger.BalanceOf(owner, token1)

	// Minted and then fully burned/collected without any swap in
	// between: the owner's balance returns to within a few wei of its
	// starting point, short on the owner's side by at most the rounding
	// the reference always resolves in the pool's favor.
	epsilon := decimal.NewFromInt(5)
	assert.True(t, before0.Sub(after0).Abs().LessThanOrEqual(epsilon), "token0 should round-trip within rounding")
	assert.True(t, before1.Sub(after1).Abs().LessThanOrEqual(epsilon), "token1 should round-trip within rounding")
	assert.False(t, collected0.IsZero())
	assert.False(t, collected1.IsZero())
}
