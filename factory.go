package clmmengine

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

// Factory deploys pools and administers which fee tiers are available,
// the way the protocol's singleton factory contract does.
type Factory struct {
	feeAmountTickSpacing map[uint32]int32
	pools                map[poolKey]*CorePool
}

type poolKey struct {
	token0, token1 common.Address
	fee            uint32
}

// NewFactory returns a Factory seeded with the protocol's default fee
// tiers: 0.05%, 0.3%, and 1%.
func NewFactory() *Factory {
	return &Factory{
		feeAmountTickSpacing: map[uint32]int32{
			500:   10,
			3000:  60,
			10000: 200,
		},
		pools: make(map[poolKey]*CorePool),
	}
}

// CreatePool deploys a pool for the given token pair and fee, sorting
// tokenA/tokenB into canonical token0/token1 order. Fails if the fee
// tier is not enabled or the pool already exists.
func (f *Factory) CreatePool(tokenA, tokenB common.Address, fee uint32, ledger Ledger) (*CorePool, error) {
	if tokenA == tokenB {
		return nil, fmt.Errorf("clmmengine: tokenA and tokenB must differ")
	}

	token0, token1 := tokenA, tokenB
	if bytes.Compare(tokenA.Bytes(), tokenB.Bytes()) > 0 {
		token0, token1 = tokenB, tokenA
	}

	tickSpacing, ok := f.feeAmountTickSpacing[fee]
	if !ok || tickSpacing == 0 {
		return nil, ErrFeeAmountNotSupported
	}

	key := poolKey{token0: token0, token1: token1, fee: fee}
	if _, exists := f.pools[key]; exists {
		return nil, ErrPoolAlreadyExists
	}

	config := PoolConfig{
		Token0:      token0,
		Token1:      token1,
		Fee:         fee,
		TickSpacing: tickSpacing,
		Ledger:      ledger,
	}
	pool := NewCorePoolFromConfig(config)
	f.pools[key] = pool

	logrus.WithFields(logrus.Fields{
		"token0": token0.Hex(),
		"token1": token1.Hex(),
		"fee":    fee,
	}).Debug("pool created")

	return pool, nil
}

// GetPool returns a previously created pool, if any.
func (f *Factory) GetPool(tokenA, tokenB common.Address, fee uint32) (*CorePool, bool) {
	token0, token1 := tokenA, tokenB
	if bytes.Compare(tokenA.Bytes(), tokenB.Bytes()) > 0 {
		token0, token1 = tokenB, tokenA
	}
	pool, ok := f.pools[poolKey{token0: token0, token1: token1, fee: fee}]
	return pool, ok
}

// EnableFeeAmount registers a new fee tier with its tick spacing. Fee
// tiers may never be removed once enabled.
func (f *Factory) EnableFeeAmount(fee uint32, tickSpacing int32) error {
	if fee >= 1_000_000 {
		return fmt.Errorf("clmmengine: fee must be below 1,000,000")
	}
	if tickSpacing <= 0 || tickSpacing >= 16384 {
		return fmt.Errorf("clmmengine: tickSpacing must be in (0, 16384)")
	}
	if existing, ok := f.feeAmountTickSpacing[fee]; ok && existing != 0 {
		return fmt.Errorf("clmmengine: fee amount already enabled")
	}
	f.feeAmountTickSpacing[fee] = tickSpacing
	return nil
}
