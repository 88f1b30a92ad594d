package clmmengine

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"lukechampine.com/uint128"
)

func newTestTokenPositionManager(t *testing.T) (*TokenPositionManager, *CorePool, *InMemoryLedger, common.Address, common.Address) {
	t.Helper()
	pool, ledger, token0, token1 := newTestPool(t, 3000)
	require.NoError(t, pool.Initialize(encodeSqrtPriceX96(1, 1)))
	return NewTokenPositionManager(pool), pool, ledger, token0, token1
}

func TestTokenPositionManagerMintAssignsTokenID(t *testing.T) {
	tpm, _, ledger, token0, token1 := newTestTokenPositionManager(t)
	alice := common.HexToAddress("0xa1")
	fundOwner(ledger, alice, token0, token1)

	tokenID, amount0, amount1, err := tpm.Mint(alice, -600, 600, uint128.From64(1_000_000))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), tokenID)
	assert.False(t, amount0.IsZero())
	assert.False(t, amount1.IsZero())

	position, ok := tpm.GetPosition(tokenID)
	require.True(t, ok)
	assert.Equal(t, alice, position.Owner)
	assert.Equal(t, int32(-600), position.TickLower)
	assert.Equal(t, int32(600), position.TickUpper)

	secondID, _, _, err := tpm.Mint(alice, -60, 60, uint128.From64(500))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), secondID)

	owned := tpm.GetPositionsByOwner(alice)
	assert.Len(t, owned, 2)
}

func TestTokenPositionManagerIncreaseDecreaseAndCollect(t *testing.T) {
	tpm, _, ledger, token0, token1 := newTestTokenPositionManager(t)
	alice := common.HexToAddress("0xa1")
	fundOwner(ledger, alice, token0, token1)

	tokenID, _, _, err := tpm.Mint(alice, -600, 600, uint128.From64(1_000_000))
	require.NoError(t, err)

	_, _, err = tpm.IncreaseLiquidity(tokenID, uint128.From64(500_000))
	require.NoError(t, err)

	decreased0, decreased1, err := tpm.DecreaseLiquidity(tokenID, uint128.From64(500_000))
	require.NoError(t, err)
	assert.False(t, decreased0.IsZero())
	assert.False(t, decreased1.IsZero())

	collected0, collected1, err := tpm.Collect(tokenID, alice, uint128.Max, uint128.Max)
	require.NoError(t, err)
	assert.True(t, collected0.Equal(decreased0))
	assert.True(t, collected1.Equal(decreased1))
}

func TestTokenPositionManagerCollectCreditsRecipient(t *testing.T) {
	tpm, _, ledger, token0, token1 := newTestTokenPositionManager(t)
	alice := common.HexToAddress("0xa1")
	carol := common.HexToAddress("0xc3")
	fundOwner(ledger, alice, token0, token1)

	tokenID, _, _, err := tpm.Mint(alice, -600, 600, uint128.From64(1_000_000))
	require.NoError(t, err)

	decreased0, decreased1, err := tpm.DecreaseLiquidity(tokenID, uint128.From64(1_000_000))
	require.NoError(t, err)

	before0, err := ledger.BalanceOf(carol, token0)
	require.NoError(t, err)
	before1, err := ledger.BalanceOf(carol, token1)
	require.NoError(t, err)

	collected0, collected1, err := tpm.Collect(tokenID, carol, uint128.Max, uint128.Max)
	require.NoError(t, err)

	after0, err := ledger.BalanceOf(carol, token0)
	require.NoError(t, err)
	after1, err := ledger.BalanceOf(carol, token1)
	require.NoError(t, err)

	// The recipient is a third party, distinct from both the owner and
	// the pool's internal operator address: collected tokens must land
	// in its own balance, not just be reported in the return values.
	assert.True(t, after0.Sub(before0).Equal(collected0))
	assert.True(t, after1.Sub(before1).Equal(collected1))
	assert.True(t, collected0.Equal(decreased0))
	assert.True(t, collected1.Equal(decreased1))
}

func TestTokenPositionManagerTransfer(t *testing.T) {
	tpm, _, ledger, token0, token1 := newTestTokenPositionManager(t)
	alice := common.HexToAddress("0xa1")
	bob := common.HexToAddress("0xb2")
	fundOwner(ledger, alice, token0, token1)

	tokenID, _, _, err := tpm.Mint(alice, -600, 600, uint128.From64(1_000_000))
	require.NoError(t, err)

	err = tpm.Transfer(tokenID, bob, alice)
	assert.Error(t, err, "transfer from the wrong owner is rejected")

	require.NoError(t, tpm.Transfer(tokenID, alice, bob))

	position, ok := tpm.GetPosition(tokenID)
	require.True(t, ok)
	assert.Equal(t, bob, position.Owner)
	assert.Empty(t, tpm.GetPositionsByOwner(alice))
	assert.Len(t, tpm.GetPositionsByOwner(bob), 1)

	// The underlying pool position is unaffected: bob can collect the
	// fees/withdrawals the transferred tokenID represents without ever
	// having minted anything himself.
	_, _, err = tpm.Collect(tokenID, bob, uint128.Max, uint128.Max)
	require.NoError(t, err)
}

func TestTokenPositionManagerUnknownTokenID(t *testing.T) {
	tpm, _, _, _, _ := newTestTokenPositionManager(t)
	_, _, err := tpm.IncreaseLiquidity(999, uint128.From64(1))
	assert.Error(t, err)
}
