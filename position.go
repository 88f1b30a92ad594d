package clmmengine

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"lukechampine.com/uint128"

	"github.com/riverrun-labs/clmm-engine/internal/fixedmath"
)

// PositionKey is a stable hash of (owner, tickLower, tickUpper) used
// to key a position independent of the order positions were created.
type PositionKey common.Hash

// GetPositionKey hashes the owner address and tick bounds the same
// way the rest of the stack derives storage-slot keys.
func GetPositionKey(owner common.Address, tickLower, tickUpper int32) PositionKey {
	buf := make([]byte, 0, common.AddressLength+8)
	buf = append(buf, owner.Bytes()...)
	buf = appendInt24(buf, tickLower)
	buf = appendInt24(buf, tickUpper)
	return PositionKey(crypto.Keccak256Hash(buf))
}

func appendInt24(buf []byte, v int32) []byte {
	u := uint32(v) & 0xFFFFFF
	return append(buf, byte(u>>16), byte(u>>8), byte(u))
}

// Position tracks one owner's liquidity between a tick range and the
// fees that have accrued to it since the last touch.
type Position struct {
	Liquidity                uint128.Uint128
	FeeGrowthInside0LastX128 *uint256.Int
	FeeGrowthInside1LastX128 *uint256.Int
	TokensOwed0              uint128.Uint128
	TokensOwed1              uint128.Uint128
}

func newPosition() *Position {
	return &Position{
		Liquidity:                uint128.Zero,
		FeeGrowthInside0LastX128: new(uint256.Int),
		FeeGrowthInside1LastX128: new(uint256.Int),
		TokensOwed0:              uint128.Zero,
		TokensOwed1:              uint128.Zero,
	}
}

// isEmpty reports whether every field of a position is zero, the
// reference "doesn't exist" sentinel.
func (p *Position) isEmpty() bool {
	return p.Liquidity.IsZero() &&
		p.FeeGrowthInside0LastX128.IsZero() &&
		p.FeeGrowthInside1LastX128.IsZero() &&
		p.TokensOwed0.IsZero() &&
		p.TokensOwed1.IsZero()
}

// PositionManager owns every position record for a pool, keyed by the
// hash of its owner and tick bounds.
type PositionManager struct {
	positions map[PositionKey]*Position
}

// NewPositionManager returns an empty position manager.
func NewPositionManager() *PositionManager {
	return &PositionManager{positions: make(map[PositionKey]*Position)}
}

// Clone deep-copies every position record.
func (pm *PositionManager) Clone() *PositionManager {
	out := NewPositionManager()
	for k, v := range pm.positions {
		cp := *v
		cp.FeeGrowthInside0LastX128 = new(uint256.Int).Set(v.FeeGrowthInside0LastX128)
		cp.FeeGrowthInside1LastX128 = new(uint256.Int).Set(v.FeeGrowthInside1LastX128)
		out.positions[k] = &cp
	}
	return out
}

// GetOrCreate returns the position at key, lazily creating an empty
// one if absent.
func (pm *PositionManager) GetOrCreate(key PositionKey) *Position {
	p, ok := pm.positions[key]
	if !ok {
		p = newPosition()
		pm.positions[key] = p
	}
	return p
}

// Get returns the position at key without creating it, along with
// whether a record is stored at key (an all-zero record still counts;
// AssertExists is the check that treats it as absent).
func (pm *PositionManager) Get(key PositionKey) (*Position, bool) {
	p, ok := pm.positions[key]
	if !ok {
		return newPosition(), false
	}
	return p, true
}

// AssertExists returns the position at key, or ErrPositionNotFound if
// it is absent or all of its fields are zero.
func (pm *PositionManager) AssertExists(key PositionKey) (*Position, error) {
	p, ok := pm.Get(key)
	if !ok || p.isEmpty() {
		return nil, ErrPositionNotFound
	}
	return p, nil
}

// Move relocates a position record to a new key, failing if the old
// key is absent or the new key is already taken. TokenPositionManager's
// Transfer does not call it: wrapped positions stay under one key.
func (pm *PositionManager) Move(oldKey, newKey PositionKey) error {
	p, ok := pm.positions[oldKey]
	if !ok {
		return ErrPositionNotFound
	}
	if _, exists := pm.positions[newKey]; exists {
		return ErrPositionAlreadyExists
	}
	delete(pm.positions, oldKey)
	pm.positions[newKey] = p
	return nil
}

// Update credits accrued fees to the position and folds the new
// liquidity in, matching the reference's deliberate 128-bit wraparound
// of tokensOwed.
func (p *Position) Update(liquidityDelta *big.Int, feeGrowthInside0X128, feeGrowthInside1X128 *uint256.Int) error {
	var liquidityNext uint128.Uint128
	if liquidityDelta.Sign() == 0 {
		liquidityNext = p.Liquidity
	} else {
		next, err := AddDelta(p.Liquidity, liquidityDelta)
		if err != nil {
			return err
		}
		liquidityNext = next
	}

	tokensOwed0, err := feesAccrued(feeGrowthInside0X128, p.FeeGrowthInside0LastX128, p.Liquidity)
	if err != nil {
		return err
	}
	tokensOwed1, err := feesAccrued(feeGrowthInside1X128, p.FeeGrowthInside1LastX128, p.Liquidity)
	if err != nil {
		return err
	}

	if liquidityDelta.Sign() != 0 {
		p.Liquidity = liquidityNext
	}
	p.FeeGrowthInside0LastX128 = new(uint256.Int).Set(feeGrowthInside0X128)
	p.FeeGrowthInside1LastX128 = new(uint256.Int).Set(feeGrowthInside1X128)

	if !tokensOwed0.IsZero() || !tokensOwed1.IsZero() {
		// Deliberate 128-bit wraparound fold on accumulation, matching
		// the reference's acceptance of overflow here to save gas.
		p.TokensOwed0 = p.TokensOwed0.AddWrap(tokensOwed0)
		p.TokensOwed1 = p.TokensOwed1.AddWrap(tokensOwed1)
	}
	return nil
}

// feesAccrued computes mulDiv(feeGrowthInside - feeGrowthInsideLast (mod 2^256), liquidity, Q128)
// and folds the result into 128 bits, exactly as tokensOwed folding does
// in the reference implementation.
func feesAccrued(feeGrowthInsideX128, feeGrowthInsideLastX128 *uint256.Int, liquidity uint128.Uint128) (uint128.Uint128, error) {
	delta := new(uint256.Int).Sub(feeGrowthInsideX128, feeGrowthInsideLastX128)
	liquidityU256 := fixedmath.Uint256FromUint128(liquidity)
	q128 := new(uint256.Int).Lsh(uint256.NewInt(1), 128)
	tokensOwed, err := fixedmath.MulDiv(delta, liquidityU256, q128)
	if err != nil {
		return uint128.Zero, err
	}
	// Mimic uint128(tokensOwed) in Solidity: fold to the low 128 bits.
	mask := new(uint256.Int).Sub(q128, uint256.NewInt(1))
	folded := new(uint256.Int).And(tokensOwed, mask)
	return fixedmath.Uint128FromUint256(folded)
}
