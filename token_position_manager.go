package clmmengine

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"lukechampine.com/uint128"
)

// TokenPosition is an ERC-721-style wrapper around a pool position: a
// tokenID owned by an address, standing in for a (tickLower, tickUpper)
// range the underlying pool actually accounts for.
type TokenPosition struct {
	TokenID   uint64
	Owner     common.Address
	TickLower int32
	TickUpper int32
}

func (tp *TokenPosition) clone() *TokenPosition {
	cp := *tp
	return &cp
}

// TokenPositionManager indexes pool positions by a synthetic tokenID,
// the way the protocol's NonfungiblePositionManager contract lets a
// single NFT represent a liquidity range. It holds every wrapped
// position under its own address in the pool and keeps the tokenID
// mapping on the side, so Transfer only ever has to move bookkeeping,
// never touch the underlying pool balances.
type TokenPositionManager struct {
	pool *CorePool

	nextTokenID uint64
	positions   map[uint64]*TokenPosition
	ownerTokens map[common.Address][]uint64
}

// NewTokenPositionManager returns an empty wrapper over pool.
func NewTokenPositionManager(pool *CorePool) *TokenPositionManager {
	return &TokenPositionManager{
		pool:        pool,
		nextTokenID: 1,
		positions:   make(map[uint64]*TokenPosition),
		ownerTokens: make(map[common.Address][]uint64),
	}
}

// Clone deep-copies the tokenID index, re-pointed at a cloned pool so
// the wrapper and its pool travel together as one snapshot.
func (tpm *TokenPositionManager) Clone(pool *CorePool) *TokenPositionManager {
	out := NewTokenPositionManager(pool)
	out.nextTokenID = tpm.nextTokenID
	for id, p := range tpm.positions {
		out.positions[id] = p.clone()
	}
	for owner, ids := range tpm.ownerTokens {
		cp := make([]uint64, len(ids))
		copy(cp, ids)
		out.ownerTokens[owner] = cp
	}
	return out
}

// operator is the address every wrapped position is held under inside
// the pool, regardless of which external address owns the NFT.
func (tpm *TokenPositionManager) operator() common.Address {
	return tpm.pool.selfAddress()
}

// Mint wraps a new pool position in a freshly minted tokenID, owned by
// owner.
func (tpm *TokenPositionManager) Mint(owner common.Address, tickLower, tickUpper int32, amount uint128.Uint128) (uint64, decimal.Decimal, decimal.Decimal, error) {
	amount0, amount1, err := tpm.pool.Mint(tpm.operator(), tickLower, tickUpper, amount)
	if err != nil {
		return 0, decimal.Zero, decimal.Zero, fmt.Errorf("tokenPositionManager mint: %w", err)
	}

	tokenID := tpm.nextTokenID
	tpm.nextTokenID++
	tpm.positions[tokenID] = &TokenPosition{
		TokenID:   tokenID,
		Owner:     owner,
		TickLower: tickLower,
		TickUpper: tickUpper,
	}
	tpm.ownerTokens[owner] = append(tpm.ownerTokens[owner], tokenID)

	return tokenID, amount0, amount1, nil
}

// IncreaseLiquidity adds liquidity to an existing tokenID's range.
func (tpm *TokenPositionManager) IncreaseLiquidity(tokenID uint64, amount uint128.Uint128) (decimal.Decimal, decimal.Decimal, error) {
	tp, ok := tpm.positions[tokenID]
	if !ok {
		return decimal.Zero, decimal.Zero, fmt.Errorf("tokenPositionManager: tokenID %d does not exist", tokenID)
	}
	amount0, amount1, err := tpm.pool.Mint(tpm.operator(), tp.TickLower, tp.TickUpper, amount)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("tokenPositionManager increaseLiquidity: %w", err)
	}
	return amount0, amount1, nil
}

// DecreaseLiquidity removes liquidity from tokenID's range, crediting
// the withdrawn tokens to the position's owed balance (withdrawable
// via Collect).
func (tpm *TokenPositionManager) DecreaseLiquidity(tokenID uint64, amount uint128.Uint128) (decimal.Decimal, decimal.Decimal, error) {
	tp, ok := tpm.positions[tokenID]
	if !ok {
		return decimal.Zero, decimal.Zero, fmt.Errorf("tokenPositionManager: tokenID %d does not exist", tokenID)
	}
	amount0, amount1, err := tpm.pool.Burn(tpm.operator(), tp.TickLower, tp.TickUpper, amount)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("tokenPositionManager decreaseLiquidity: %w", err)
	}
	return amount0, amount1, nil
}

// Collect withdraws up to amount0Req/amount1Req of tokenID's owed
// tokens to recipient.
func (tpm *TokenPositionManager) Collect(tokenID uint64, recipient common.Address, amount0Req, amount1Req uint128.Uint128) (decimal.Decimal, decimal.Decimal, error) {
	tp, ok := tpm.positions[tokenID]
	if !ok {
		return decimal.Zero, decimal.Zero, fmt.Errorf("tokenPositionManager: tokenID %d does not exist", tokenID)
	}
	amount0, amount1, err := tpm.pool.Collect(tpm.operator(), tp.TickLower, tp.TickUpper, amount0Req, amount1Req)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("tokenPositionManager collect: %w", err)
	}

	if recipient != tpm.operator() {
		if !amount0.IsZero() {
			if err := tpm.pool.Ledger.TransferToken(tpm.operator(), recipient, tpm.pool.Token0, amount0); err != nil {
				return decimal.Zero, decimal.Zero, fmt.Errorf("tokenPositionManager collect: %w", err)
			}
		}
		if !amount1.IsZero() {
			if err := tpm.pool.Ledger.TransferToken(tpm.operator(), recipient, tpm.pool.Token1, amount1); err != nil {
				return decimal.Zero, decimal.Zero, fmt.Errorf("tokenPositionManager collect: %w", err)
			}
		}
	}

	return amount0, amount1, nil
}

// Transfer changes a tokenID's owner, the way an ERC-721 transfer
// does. The underlying pool position stays under the operator address
// throughout, so no pool state moves.
func (tpm *TokenPositionManager) Transfer(tokenID uint64, from, to common.Address) error {
	tp, ok := tpm.positions[tokenID]
	if !ok {
		return fmt.Errorf("tokenPositionManager: tokenID %d does not exist", tokenID)
	}
	if tp.Owner != from {
		return fmt.Errorf("tokenPositionManager: token owner mismatch: expected %s, got %s", tp.Owner.Hex(), from.Hex())
	}

	fromTokens := tpm.ownerTokens[from]
	for i, id := range fromTokens {
		if id == tokenID {
			fromTokens[i] = fromTokens[len(fromTokens)-1]
			tpm.ownerTokens[from] = fromTokens[:len(fromTokens)-1]
			break
		}
	}
	tp.Owner = to
	tpm.ownerTokens[to] = append(tpm.ownerTokens[to], tokenID)
	return nil
}

// GetPosition returns the wrapper record for tokenID.
func (tpm *TokenPositionManager) GetPosition(tokenID uint64) (*TokenPosition, bool) {
	tp, ok := tpm.positions[tokenID]
	return tp, ok
}

// GetPositionsByOwner returns every tokenID owned by owner.
func (tpm *TokenPositionManager) GetPositionsByOwner(owner common.Address) []*TokenPosition {
	ids := tpm.ownerTokens[owner]
	out := make([]*TokenPosition, 0, len(ids))
	for _, id := range ids {
		if tp, ok := tpm.positions[id]; ok {
			out = append(out, tp)
		}
	}
	return out
}
