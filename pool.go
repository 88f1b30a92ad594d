package clmmengine

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"lukechampine.com/uint128"

	"github.com/riverrun-labs/clmm-engine/internal/fixedmath"
	"github.com/riverrun-labs/clmm-engine/internal/sqrtpricemath"
	"github.com/riverrun-labs/clmm-engine/internal/swapmath"
	"github.com/riverrun-labs/clmm-engine/internal/tickmath"
)

var q128 = new(uint256.Int).Lsh(uint256.NewInt(1), 128)

// PoolConfig describes the immutable parameters a pool is created
// with.
type PoolConfig struct {
	Token0      common.Address
	Token1      common.Address
	Fee         uint32
	TickSpacing int32
	Ledger      Ledger
}

// Slot0 packs the pieces of pool state read on every operation.
type Slot0 struct {
	SqrtPriceX96 *uint256.Int
	Tick         int32
	// FeeProtocol nibble-packs the token0 (low nibble) and token1 (high
	// nibble) protocol fee denominators.
	FeeProtocol uint8
}

// ProtocolFees accumulates the pool's share of swap fees, withdrawable
// via CollectProtocol.
type ProtocolFees struct {
	Token0 uint128.Uint128
	Token1 uint128.Uint128
}

// CorePool is a single concentrated-liquidity pool for a token pair
// and fee tier.
type CorePool struct {
	Token0              common.Address
	Token1              common.Address
	Fee                 uint32
	TickSpacing         int32
	MaxLiquidityPerTick uint128.Uint128

	Slot0                Slot0
	Liquidity            uint128.Uint128
	FeeGrowthGlobal0X128 *uint256.Int
	FeeGrowthGlobal1X128 *uint256.Int
	ProtocolFees         ProtocolFees

	TickManager     *TickManager
	PositionManager *PositionManager

	Ledger Ledger
}

// NewCorePoolFromConfig constructs an uninitialized pool ready for
// Initialize.
func NewCorePoolFromConfig(config PoolConfig) *CorePool {
	return &CorePool{
		Token0:              config.Token0,
		Token1:              config.Token1,
		Fee:                 config.Fee,
		TickSpacing:         config.TickSpacing,
		MaxLiquidityPerTick: TickSpacingToMaxLiquidityPerTick(config.TickSpacing),
		Slot0: Slot0{
			SqrtPriceX96: new(uint256.Int),
			Tick:         0,
			FeeProtocol:  0,
		},
		Liquidity:            uint128.Zero,
		FeeGrowthGlobal0X128: new(uint256.Int),
		FeeGrowthGlobal1X128: new(uint256.Int),
		ProtocolFees:         ProtocolFees{Token0: uint128.Zero, Token1: uint128.Zero},
		TickManager:          NewTickManager(),
		PositionManager:      NewPositionManager(),
		Ledger:               config.Ledger,
	}
}

// Clone deep-copies a pool's full state.
func (p *CorePool) Clone() *CorePool {
	return &CorePool{
		Token0:              p.Token0,
		Token1:              p.Token1,
		Fee:                 p.Fee,
		TickSpacing:         p.TickSpacing,
		MaxLiquidityPerTick: p.MaxLiquidityPerTick,
		Slot0: Slot0{
			SqrtPriceX96: new(uint256.Int).Set(p.Slot0.SqrtPriceX96),
			Tick:         p.Slot0.Tick,
			FeeProtocol:  p.Slot0.FeeProtocol,
		},
		Liquidity:            p.Liquidity,
		FeeGrowthGlobal0X128: new(uint256.Int).Set(p.FeeGrowthGlobal0X128),
		FeeGrowthGlobal1X128: new(uint256.Int).Set(p.FeeGrowthGlobal1X128),
		ProtocolFees:         p.ProtocolFees,
		TickManager:          p.TickManager.Clone(),
		PositionManager:      p.PositionManager.Clone(),
		Ledger:               p.Ledger,
	}
}

// Initialize sets the pool's starting price. May only be called once.
func (p *CorePool) Initialize(sqrtPriceX96 decimal.Decimal) error {
	if !p.Slot0.SqrtPriceX96.IsZero() {
		return ErrAlreadyInitialized
	}
	priceU256, overflow := uint256.FromBig(sqrtPriceX96.BigInt())
	if overflow {
		return ErrSqrtRatioOutOfRange
	}
	tick, err := tickmath.GetTickAtSqrtRatio(priceU256)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	p.Slot0 = Slot0{SqrtPriceX96: priceU256, Tick: tick, FeeProtocol: 0}
	return nil
}

func (p *CorePool) checkTicks(tickLower, tickUpper int32) error {
	if !(tickLower < tickUpper) {
		return ErrTickLowerUnset
	}
	if !(tickLower >= tickmath.MinTick) {
		return ErrTickLowerTooLow
	}
	if !(tickUpper <= tickmath.MaxTick) {
		return ErrTickUpperTooHigh
	}
	return nil
}

// Mint adds liquidity for recipient's position in [tickLower,
// tickUpper), transferring the token0/token1 cost in from recipient.
func (p *CorePool) Mint(recipient common.Address, tickLower, tickUpper int32, amount uint128.Uint128) (decimal.Decimal, decimal.Decimal, error) {
	if amount.IsZero() {
		return decimal.Zero, decimal.Zero, ErrAmountSpecifiedZero
	}

	_, amount0, amount1, err := p.modifyPosition(recipient, tickLower, tickUpper, new(big.Int).Set(amount.Big()))
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("mint: %w", err)
	}

	amount0Abs := decimal.NewFromBigInt(new(big.Int).Abs(amount0), 0)
	amount1Abs := decimal.NewFromBigInt(new(big.Int).Abs(amount1), 0)

	if p.Ledger != nil {
		if amount0Abs.IsPositive() {
			if err := p.Ledger.TransferToken(recipient, p.selfAddress(), p.Token0, amount0Abs); err != nil {
				return decimal.Zero, decimal.Zero, fmt.Errorf("mint: %w", err)
			}
		}
		if amount1Abs.IsPositive() {
			if err := p.Ledger.TransferToken(recipient, p.selfAddress(), p.Token1, amount1Abs); err != nil {
				return decimal.Zero, decimal.Zero, fmt.Errorf("mint: %w", err)
			}
		}
	}

	if logrus.GetLevel() >= logrus.DebugLevel {
		logrus.WithFields(logrus.Fields{
			"recipient": recipient.Hex(),
			"tickLower": tickLower,
			"tickUpper": tickUpper,
			"amount0":   amount0Abs,
			"amount1":   amount1Abs,
		}).Debug("mint")
	}

	return amount0Abs, amount1Abs, nil
}

// selfAddress identifies the pool itself as a ledger account: pools
// hold the tokens backing in-range liquidity the same way the
// contract holds its own balance. It is derived deterministically from
// the pool's identity so distinct pools never collide with each other
// or with a token's own address.
func (p *CorePool) selfAddress() common.Address {
	buf := make([]byte, 0, 2*common.AddressLength+4)
	buf = append(buf, p.Token0.Bytes()...)
	buf = append(buf, p.Token1.Bytes()...)
	buf = append(buf, byte(p.Fee>>24), byte(p.Fee>>16), byte(p.Fee>>8), byte(p.Fee))
	return common.BytesToAddress(crypto.Keccak256(buf))
}

// Burn removes liquidity from owner's position, crediting the
// underlying tokens to tokensOwed (withdrawable via Collect).
func (p *CorePool) Burn(owner common.Address, tickLower, tickUpper int32, amount uint128.Uint128) (decimal.Decimal, decimal.Decimal, error) {
	key := GetPositionKey(owner, tickLower, tickUpper)
	if _, err := p.PositionManager.AssertExists(key); err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("burn: %w", err)
	}

	negated := new(big.Int).Neg(amount.Big())
	position, amount0, amount1, err := p.modifyPosition(owner, tickLower, tickUpper, negated)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("burn: %w", err)
	}
	amount0 = new(big.Int).Neg(amount0)
	amount1 = new(big.Int).Neg(amount1)

	if amount0.Sign() > 0 || amount1.Sign() > 0 {
		owed0, err := fixedmath.Uint128FromUint256(fixedmath.ToUint256Mod(amount0))
		if err != nil {
			return decimal.Zero, decimal.Zero, fmt.Errorf("burn: %w", err)
		}
		owed1, err := fixedmath.Uint128FromUint256(fixedmath.ToUint256Mod(amount1))
		if err != nil {
			return decimal.Zero, decimal.Zero, fmt.Errorf("burn: %w", err)
		}
		position.TokensOwed0 = position.TokensOwed0.AddWrap(owed0)
		position.TokensOwed1 = position.TokensOwed1.AddWrap(owed1)
	}

	return decimal.NewFromBigInt(amount0, 0), decimal.NewFromBigInt(amount1, 0), nil
}

// Collect withdraws up to amount0Req/amount1Req of the tokens owed to
// a position (from burns or accrued fees), capped at what is owed.
func (p *CorePool) Collect(recipient common.Address, tickLower, tickUpper int32, amount0Req, amount1Req uint128.Uint128) (decimal.Decimal, decimal.Decimal, error) {
	if err := p.checkTicks(tickLower, tickUpper); err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("collect: %w", err)
	}
	key := GetPositionKey(recipient, tickLower, tickUpper)
	position, err := p.PositionManager.AssertExists(key)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("collect: %w", err)
	}

	amount0 := amount0Req
	if amount0Req.Cmp(position.TokensOwed0) > 0 {
		amount0 = position.TokensOwed0
	}
	amount1 := amount1Req
	if amount1Req.Cmp(position.TokensOwed1) > 0 {
		amount1 = position.TokensOwed1
	}

	if !amount0.IsZero() {
		position.TokensOwed0 = position.TokensOwed0.Sub(amount0)
		if p.Ledger != nil {
			if err := p.Ledger.TransferToken(p.selfAddress(), recipient, p.Token0, decimal.NewFromBigInt(amount0.Big(), 0)); err != nil {
				return decimal.Zero, decimal.Zero, fmt.Errorf("collect: %w", err)
			}
		}
	}
	if !amount1.IsZero() {
		position.TokensOwed1 = position.TokensOwed1.Sub(amount1)
		if p.Ledger != nil {
			if err := p.Ledger.TransferToken(p.selfAddress(), recipient, p.Token1, decimal.NewFromBigInt(amount1.Big(), 0)); err != nil {
				return decimal.Zero, decimal.Zero, fmt.Errorf("collect: %w", err)
			}
		}
	}

	return decimal.NewFromBigInt(amount0.Big(), 0), decimal.NewFromBigInt(amount1.Big(), 0), nil
}

// SetFeeProtocol updates the protocol's share of swap fees for each
// token, expressed as 1/N denominators (0 disables the split; valid N
// is otherwise in [4, 10]).
func (p *CorePool) SetFeeProtocol(feeProtocol0, feeProtocol1 uint8) (old0, old1 uint8, err error) {
	validDenominator := func(n uint8) bool { return n == 0 || (n >= 4 && n <= 10) }
	if !validDenominator(feeProtocol0) || !validDenominator(feeProtocol1) {
		return 0, 0, ErrInvalidInputAmount
	}
	old := p.Slot0.FeeProtocol
	p.Slot0.FeeProtocol = feeProtocol0 + (feeProtocol1 << 4)
	return old % 16, old >> 4, nil
}

// CollectProtocol withdraws accrued protocol fees, leaving one wei
// behind when fully draining a token's slot (a gas-savings habit
// carried over unmodified from the reference contract).
func (p *CorePool) CollectProtocol(recipient common.Address, amount0Req, amount1Req uint128.Uint128) (decimal.Decimal, decimal.Decimal, error) {
	amount0 := amount0Req
	if amount0Req.Cmp(p.ProtocolFees.Token0) > 0 {
		amount0 = p.ProtocolFees.Token0
	}
	amount1 := amount1Req
	if amount1Req.Cmp(p.ProtocolFees.Token1) > 0 {
		amount1 = p.ProtocolFees.Token1
	}

	if !amount0.IsZero() {
		if amount0.Cmp(p.ProtocolFees.Token0) == 0 {
			amount0 = amount0.Sub(uint128.From64(1))
		}
		p.ProtocolFees.Token0 = p.ProtocolFees.Token0.Sub(amount0)
		if p.Ledger != nil {
			if err := p.Ledger.TransferToken(p.selfAddress(), recipient, p.Token0, decimal.NewFromBigInt(amount0.Big(), 0)); err != nil {
				return decimal.Zero, decimal.Zero, fmt.Errorf("collectProtocol: %w", err)
			}
		}
	}
	if !amount1.IsZero() {
		if amount1.Cmp(p.ProtocolFees.Token1) == 0 {
			amount1 = amount1.Sub(uint128.From64(1))
		}
		p.ProtocolFees.Token1 = p.ProtocolFees.Token1.Sub(amount1)
		if p.Ledger != nil {
			if err := p.Ledger.TransferToken(p.selfAddress(), recipient, p.Token1, decimal.NewFromBigInt(amount1.Big(), 0)); err != nil {
				return decimal.Zero, decimal.Zero, fmt.Errorf("collectProtocol: %w", err)
			}
		}
	}

	return decimal.NewFromBigInt(amount0.Big(), 0), decimal.NewFromBigInt(amount1.Big(), 0), nil
}

func (p *CorePool) modifyPosition(owner common.Address, tickLower, tickUpper int32, liquidityDelta *big.Int) (*Position, *big.Int, *big.Int, error) {
	if err := p.checkTicks(tickLower, tickUpper); err != nil {
		return nil, nil, nil, err
	}

	amount0 := big.NewInt(0)
	amount1 := big.NewInt(0)

	position, err := p.updatePosition(owner, tickLower, tickUpper, liquidityDelta)
	if err != nil {
		return nil, nil, nil, err
	}

	if liquidityDelta.Sign() != 0 {
		sqrtLower, err := tickmath.GetSqrtRatioAtTick(tickLower)
		if err != nil {
			return nil, nil, nil, err
		}
		sqrtUpper, err := tickmath.GetSqrtRatioAtTick(tickUpper)
		if err != nil {
			return nil, nil, nil, err
		}

		switch {
		case p.Slot0.Tick < tickLower:
			amount0, err = sqrtpricemath.GetAmount0DeltaHelper(sqrtLower, sqrtUpper, liquidityDelta)
			if err != nil {
				return nil, nil, nil, err
			}
		case p.Slot0.Tick < tickUpper:
			amount0, err = sqrtpricemath.GetAmount0DeltaHelper(p.Slot0.SqrtPriceX96, sqrtUpper, liquidityDelta)
			if err != nil {
				return nil, nil, nil, err
			}
			amount1, err = sqrtpricemath.GetAmount1DeltaHelper(sqrtLower, p.Slot0.SqrtPriceX96, liquidityDelta)
			if err != nil {
				return nil, nil, nil, err
			}
			p.Liquidity, err = AddDelta(p.Liquidity, liquidityDelta)
			if err != nil {
				return nil, nil, nil, err
			}
		default:
			amount1, err = sqrtpricemath.GetAmount1DeltaHelper(sqrtLower, sqrtUpper, liquidityDelta)
			if err != nil {
				return nil, nil, nil, err
			}
		}
	}

	return position, amount0, amount1, nil
}

func (p *CorePool) updatePosition(owner common.Address, tickLower, tickUpper int32, delta *big.Int) (*Position, error) {
	key := GetPositionKey(owner, tickLower, tickUpper)
	position := p.PositionManager.GetOrCreate(key)

	var flippedLower, flippedUpper bool
	var err error
	if delta.Sign() != 0 {
		flippedLower, err = p.TickManager.Update(tickLower, p.Slot0.Tick, delta, p.FeeGrowthGlobal0X128, p.FeeGrowthGlobal1X128, false, p.MaxLiquidityPerTick)
		if err != nil {
			return nil, err
		}
		flippedUpper, err = p.TickManager.Update(tickUpper, p.Slot0.Tick, delta, p.FeeGrowthGlobal0X128, p.FeeGrowthGlobal1X128, true, p.MaxLiquidityPerTick)
		if err != nil {
			return nil, err
		}
	}

	feeInside0, feeInside1, err := p.TickManager.GetFeeGrowthInside(tickLower, tickUpper, p.Slot0.Tick, p.FeeGrowthGlobal0X128, p.FeeGrowthGlobal1X128)
	if err != nil {
		return nil, err
	}
	if err := position.Update(delta, feeInside0, feeInside1); err != nil {
		return nil, err
	}

	if delta.Sign() < 0 {
		if flippedLower {
			p.TickManager.Clear(tickLower)
		}
		if flippedUpper {
			p.TickManager.Clear(tickUpper)
		}
	}
	return position, nil
}

// swapState is the mutable working state threaded through the main
// swap loop.
type swapState struct {
	amountSpecifiedRemaining *big.Int
	amountCalculated         *big.Int
	sqrtPriceX96             *uint256.Int
	tick                     int32
	feeGrowthGlobalX128      *uint256.Int
	protocolFee              uint128.Uint128
	liquidity                uint128.Uint128
}

type stepComputations struct {
	sqrtPriceStartX96 *uint256.Int
	tickNext          int32
	initialized       bool
	sqrtPriceNextX96  *uint256.Int
	amountIn          *uint256.Int
	amountOut         *uint256.Int
	feeAmount         *uint256.Int
}

// Swap executes a trade against the pool, moving price at most to
// sqrtPriceLimitX96, and returns the net token0/token1 deltas (pool's
// perspective: positive means the pool received that token).
func (p *CorePool) Swap(recipient common.Address, zeroForOne bool, amountSpecified *big.Int, sqrtPriceLimitX96 *uint256.Int) (decimal.Decimal, decimal.Decimal, error) {
	if amountSpecified.Sign() == 0 {
		return decimal.Zero, decimal.Zero, ErrAmountSpecifiedZero
	}

	slot0Start := p.Slot0

	if zeroForOne {
		if !(sqrtPriceLimitX96.Cmp(slot0Start.SqrtPriceX96) < 0 && sqrtPriceLimitX96.Cmp(tickmath.MinSqrtRatio) > 0) {
			return decimal.Zero, decimal.Zero, ErrSqrtPriceLimit
		}
	} else {
		if !(sqrtPriceLimitX96.Cmp(slot0Start.SqrtPriceX96) > 0 && sqrtPriceLimitX96.Cmp(tickmath.MaxSqrtRatio) < 0) {
			return decimal.Zero, decimal.Zero, ErrSqrtPriceLimit
		}
	}

	var feeProtocol uint128.Uint128
	if zeroForOne {
		feeProtocol = uint128.From64(uint64(slot0Start.FeeProtocol % 16))
	} else {
		feeProtocol = uint128.From64(uint64(slot0Start.FeeProtocol >> 4))
	}

	exactInput := amountSpecified.Sign() > 0

	state := swapState{
		amountSpecifiedRemaining: new(big.Int).Set(amountSpecified),
		amountCalculated:         big.NewInt(0),
		sqrtPriceX96:             slot0Start.SqrtPriceX96,
		tick:                     slot0Start.Tick,
		liquidity:                p.Liquidity,
		protocolFee:              uint128.Zero,
	}
	if zeroForOne {
		state.feeGrowthGlobalX128 = new(uint256.Int).Set(p.FeeGrowthGlobal0X128)
	} else {
		state.feeGrowthGlobalX128 = new(uint256.Int).Set(p.FeeGrowthGlobal1X128)
	}

	if logrus.GetLevel() >= logrus.DebugLevel {
		logrus.Debugf("swap start: zeroForOne=%t exactInput=%t amountSpecified=%s tick=%d", zeroForOne, exactInput, amountSpecified, state.tick)
	}

	for state.amountSpecifiedRemaining.Sign() != 0 && !state.sqrtPriceX96.Eq(sqrtPriceLimitX96) {
		var step stepComputations
		step.sqrtPriceStartX96 = state.sqrtPriceX96

		step.tickNext, step.initialized = p.TickManager.GetNextInitializedTick(state.tick, zeroForOne)
		if step.tickNext < tickmath.MinTick {
			step.tickNext = tickmath.MinTick
		} else if step.tickNext > tickmath.MaxTick {
			step.tickNext = tickmath.MaxTick
		}

		sqrtPriceNext, err := tickmath.GetSqrtRatioAtTick(step.tickNext)
		if err != nil {
			return decimal.Zero, decimal.Zero, fmt.Errorf("swap: %w", err)
		}
		step.sqrtPriceNextX96 = sqrtPriceNext

		var sqrtRatioTargetX96 *uint256.Int
		if zeroForOne {
			if step.sqrtPriceNextX96.Cmp(sqrtPriceLimitX96) < 0 {
				sqrtRatioTargetX96 = sqrtPriceLimitX96
			} else {
				sqrtRatioTargetX96 = step.sqrtPriceNextX96
			}
		} else {
			if step.sqrtPriceNextX96.Cmp(sqrtPriceLimitX96) > 0 {
				sqrtRatioTargetX96 = sqrtPriceLimitX96
			} else {
				sqrtRatioTargetX96 = step.sqrtPriceNextX96
			}
		}

		liquidityU256 := fixedmath.Uint256FromUint128(state.liquidity)
		result, err := swapmath.ComputeSwapStep(state.sqrtPriceX96, sqrtRatioTargetX96, liquidityU256, state.amountSpecifiedRemaining, p.Fee)
		if err != nil {
			return decimal.Zero, decimal.Zero, fmt.Errorf("swap: %w", err)
		}
		state.sqrtPriceX96 = result.SqrtRatioNextX96
		step.amountIn = result.AmountIn
		step.amountOut = result.AmountOut
		step.feeAmount = result.FeeAmount

		if exactInput {
			spent, err := fixedmath.AddSigned(step.amountIn.ToBig(), step.feeAmount.ToBig())
			if err != nil {
				return decimal.Zero, decimal.Zero, fmt.Errorf("swap: %w", err)
			}
			state.amountSpecifiedRemaining, err = fixedmath.SubSigned(state.amountSpecifiedRemaining, spent)
			if err != nil {
				return decimal.Zero, decimal.Zero, fmt.Errorf("swap: %w", err)
			}
			state.amountCalculated, err = fixedmath.SubSigned(state.amountCalculated, step.amountOut.ToBig())
			if err != nil {
				return decimal.Zero, decimal.Zero, fmt.Errorf("swap: %w", err)
			}
		} else {
			var err error
			state.amountSpecifiedRemaining, err = fixedmath.AddSigned(state.amountSpecifiedRemaining, step.amountOut.ToBig())
			if err != nil {
				return decimal.Zero, decimal.Zero, fmt.Errorf("swap: %w", err)
			}
			gained, err := fixedmath.AddSigned(step.amountIn.ToBig(), step.feeAmount.ToBig())
			if err != nil {
				return decimal.Zero, decimal.Zero, fmt.Errorf("swap: %w", err)
			}
			state.amountCalculated, err = fixedmath.AddSigned(state.amountCalculated, gained)
			if err != nil {
				return decimal.Zero, decimal.Zero, fmt.Errorf("swap: %w", err)
			}
		}

		if !feeProtocol.IsZero() {
			delta := new(uint256.Int).Div(step.feeAmount, fixedmath.Uint256FromUint128(feeProtocol))
			step.feeAmount = new(uint256.Int).Sub(step.feeAmount, delta)
			deltaU128, err := fixedmath.Uint128FromUint256(delta)
			if err != nil {
				return decimal.Zero, decimal.Zero, fmt.Errorf("swap: %w", err)
			}
			state.protocolFee = state.protocolFee.AddWrap(deltaU128)
		}

		if !state.liquidity.IsZero() {
			feeGrowthDelta, err := fixedmath.MulDiv(step.feeAmount, q128, fixedmath.Uint256FromUint128(state.liquidity))
			if err != nil {
				return decimal.Zero, decimal.Zero, fmt.Errorf("swap: %w", err)
			}
			state.feeGrowthGlobalX128 = new(uint256.Int).Add(state.feeGrowthGlobalX128, feeGrowthDelta)
		}

		if state.sqrtPriceX96.Eq(step.sqrtPriceNextX96) {
			if step.initialized {
				var liquidityNet *big.Int
				if zeroForOne {
					liquidityNet, err = p.TickManager.Cross(step.tickNext, state.feeGrowthGlobalX128, p.FeeGrowthGlobal1X128)
				} else {
					liquidityNet, err = p.TickManager.Cross(step.tickNext, p.FeeGrowthGlobal0X128, state.feeGrowthGlobalX128)
				}
				if err != nil {
					return decimal.Zero, decimal.Zero, fmt.Errorf("swap: %w", err)
				}
				if zeroForOne {
					liquidityNet = new(big.Int).Neg(liquidityNet)
				}
				state.liquidity, err = AddDelta(state.liquidity, liquidityNet)
				if err != nil {
					return decimal.Zero, decimal.Zero, fmt.Errorf("swap: %w", err)
				}
			}
			if zeroForOne {
				state.tick = step.tickNext - 1
			} else {
				state.tick = step.tickNext
			}
		} else if !state.sqrtPriceX96.Eq(step.sqrtPriceStartX96) {
			state.tick, err = tickmath.GetTickAtSqrtRatio(state.sqrtPriceX96)
			if err != nil {
				return decimal.Zero, decimal.Zero, fmt.Errorf("swap: %w", err)
			}
		}

		if logrus.GetLevel() >= logrus.TraceLevel {
			logrus.Tracef("swap step: tick=%d price=%s amountIn=%s amountOut=%s fee=%s", state.tick, state.sqrtPriceX96, step.amountIn, step.amountOut, step.feeAmount)
		}
	}

	p.Slot0.SqrtPriceX96 = state.sqrtPriceX96
	p.Slot0.Tick = state.tick
	p.Liquidity = state.liquidity

	if zeroForOne {
		p.FeeGrowthGlobal0X128 = state.feeGrowthGlobalX128
		if !state.protocolFee.IsZero() {
			p.ProtocolFees.Token0 = p.ProtocolFees.Token0.AddWrap(state.protocolFee)
		}
	} else {
		p.FeeGrowthGlobal1X128 = state.feeGrowthGlobalX128
		if !state.protocolFee.IsZero() {
			p.ProtocolFees.Token1 = p.ProtocolFees.Token1.AddWrap(state.protocolFee)
		}
	}

	var amount0, amount1 *big.Int
	spent := new(big.Int).Sub(amountSpecified, state.amountSpecifiedRemaining)
	if zeroForOne == exactInput {
		amount0, amount1 = spent, state.amountCalculated
	} else {
		amount0, amount1 = state.amountCalculated, spent
	}

	if p.Ledger != nil {
		if err := p.settleSwap(recipient, zeroForOne, amount0, amount1); err != nil {
			return decimal.Zero, decimal.Zero, fmt.Errorf("swap: %w", err)
		}
	}

	if logrus.GetLevel() >= logrus.DebugLevel {
		logrus.Debugf("swap complete: amount0=%s amount1=%s newTick=%d", amount0, amount1, state.tick)
	}

	return decimal.NewFromBigInt(amount0, 0), decimal.NewFromBigInt(amount1, 0), nil
}

// settleSwap performs the token transfers implied by a completed swap:
// a negative delta is paid out of the pool, a positive delta is
// collected from the recipient, and the collected amount is checked
// against the pool's own balance change.
func (p *CorePool) settleSwap(recipient common.Address, zeroForOne bool, amount0, amount1 *big.Int) error {
	self := p.selfAddress()
	if zeroForOne {
		if amount1.Sign() < 0 {
			if err := p.Ledger.TransferToken(self, recipient, p.Token1, decimal.NewFromBigInt(new(big.Int).Abs(amount1), 0)); err != nil {
				return err
			}
		}
		balanceBefore, err := p.Ledger.BalanceOf(self, p.Token0)
		if err != nil {
			return err
		}
		if err := p.Ledger.TransferToken(recipient, self, p.Token0, decimal.NewFromBigInt(new(big.Int).Abs(amount0), 0)); err != nil {
			return err
		}
		balanceAfter, err := p.Ledger.BalanceOf(self, p.Token0)
		if err != nil {
			return err
		}
		if !balanceAfter.Equal(balanceBefore.Add(decimal.NewFromBigInt(new(big.Int).Abs(amount0), 0))) {
			return ErrInvalidInputAmount
		}
	} else {
		if amount0.Sign() < 0 {
			if err := p.Ledger.TransferToken(self, recipient, p.Token0, decimal.NewFromBigInt(new(big.Int).Abs(amount0), 0)); err != nil {
				return err
			}
		}
		balanceBefore, err := p.Ledger.BalanceOf(self, p.Token1)
		if err != nil {
			return err
		}
		if err := p.Ledger.TransferToken(recipient, self, p.Token1, decimal.NewFromBigInt(new(big.Int).Abs(amount1), 0)); err != nil {
			return err
		}
		balanceAfter, err := p.Ledger.BalanceOf(self, p.Token1)
		if err != nil {
			return err
		}
		if !balanceAfter.Equal(balanceBefore.Add(decimal.NewFromBigInt(new(big.Int).Abs(amount1), 0))) {
			return ErrInvalidInputAmount
		}
	}
	return nil
}
