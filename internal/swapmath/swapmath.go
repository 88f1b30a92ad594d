// Package swapmath computes the result of advancing a swap through a
// single tick-bounded liquidity range: how much is swapped in/out, the
// price reached, and the fee taken.
package swapmath

import (
	"math/big"

	"github.com/holiman/uint256"

	"github.com/riverrun-labs/clmm-engine/internal/fixedmath"
	"github.com/riverrun-labs/clmm-engine/internal/sqrtpricemath"
)

// OneInPips is the fee denominator: fees are expressed in hundredths
// of a basis point.
const OneInPips = 1_000_000

// StepResult carries the four outputs of a single swap step.
type StepResult struct {
	SqrtRatioNextX96 *uint256.Int
	AmountIn         *uint256.Int
	AmountOut        *uint256.Int
	FeeAmount        *uint256.Int
}

// ComputeSwapStep advances a swap across a single step bounded by
// sqrtRatioTargetX96, consuming at most amountRemaining of input (when
// positive, "exact in") or producing at most amountRemaining of output
// (when negative, "exact out"), after deducting the feePips fee.
func ComputeSwapStep(sqrtRatioCurrentX96, sqrtRatioTargetX96 *uint256.Int, liquidity *uint256.Int, amountRemaining *big.Int, feePips uint32) (*StepResult, error) {
	zeroForOne := sqrtRatioCurrentX96.Cmp(sqrtRatioTargetX96) >= 0
	exactIn := amountRemaining.Sign() >= 0

	feePipsU256 := uint256.NewInt(uint64(feePips))
	oneInPips := uint256.NewInt(OneInPips)

	var amountIn, amountOut *uint256.Int
	var sqrtRatioNextX96 *uint256.Int
	var err error

	if exactIn {
		absRemaining, overflow := uint256.FromBig(amountRemaining)
		if overflow {
			return nil, fixedmath.ErrOverflowUint256
		}
		feeFactor := new(uint256.Int).Sub(oneInPips, feePipsU256)
		amountRemainingLessFee, err := fixedmath.MulDiv(absRemaining, feeFactor, oneInPips)
		if err != nil {
			return nil, err
		}

		if zeroForOne {
			amountIn, err = sqrtpricemath.GetAmount0Delta(sqrtRatioTargetX96, sqrtRatioCurrentX96, liquidity, true)
		} else {
			amountIn, err = sqrtpricemath.GetAmount1Delta(sqrtRatioCurrentX96, sqrtRatioTargetX96, liquidity, true)
		}
		if err != nil {
			return nil, err
		}

		if amountRemainingLessFee.Cmp(amountIn) >= 0 {
			sqrtRatioNextX96 = sqrtRatioTargetX96
		} else {
			sqrtRatioNextX96, err = sqrtpricemath.GetNextSqrtPriceFromInput(sqrtRatioCurrentX96, liquidity, amountRemainingLessFee, zeroForOne)
			if err != nil {
				return nil, err
			}
		}
	} else {
		absRemaining, overflow := uint256.FromBig(new(big.Int).Abs(amountRemaining))
		if overflow {
			return nil, fixedmath.ErrOverflowUint256
		}

		if zeroForOne {
			amountOut, err = sqrtpricemath.GetAmount1Delta(sqrtRatioTargetX96, sqrtRatioCurrentX96, liquidity, false)
		} else {
			amountOut, err = sqrtpricemath.GetAmount0Delta(sqrtRatioCurrentX96, sqrtRatioTargetX96, liquidity, false)
		}
		if err != nil {
			return nil, err
		}

		if absRemaining.Cmp(amountOut) >= 0 {
			sqrtRatioNextX96 = sqrtRatioTargetX96
		} else {
			sqrtRatioNextX96, err = sqrtpricemath.GetNextSqrtPriceFromOutput(sqrtRatioCurrentX96, liquidity, absRemaining, zeroForOne)
			if err != nil {
				return nil, err
			}
		}
	}

	max := sqrtRatioTargetX96.Eq(sqrtRatioNextX96)

	if zeroForOne {
		if max && exactIn {
			// amountIn already computed above.
		} else {
			amountIn, err = sqrtpricemath.GetAmount0Delta(sqrtRatioNextX96, sqrtRatioCurrentX96, liquidity, true)
			if err != nil {
				return nil, err
			}
		}
		if max && !exactIn {
			// amountOut already computed above.
		} else {
			amountOut, err = sqrtpricemath.GetAmount1Delta(sqrtRatioNextX96, sqrtRatioCurrentX96, liquidity, false)
			if err != nil {
				return nil, err
			}
		}
	} else {
		if max && exactIn {
			// amountIn already computed above.
		} else {
			amountIn, err = sqrtpricemath.GetAmount1Delta(sqrtRatioCurrentX96, sqrtRatioNextX96, liquidity, true)
			if err != nil {
				return nil, err
			}
		}
		if max && !exactIn {
			// amountOut already computed above.
		} else {
			amountOut, err = sqrtpricemath.GetAmount0Delta(sqrtRatioCurrentX96, sqrtRatioNextX96, liquidity, false)
			if err != nil {
				return nil, err
			}
		}
	}

	// Cap the output amount to not exceed the remaining output amount.
	if !exactIn {
		absRemaining := new(big.Int).Abs(amountRemaining)
		if amountOut.ToBig().Cmp(absRemaining) > 0 {
			capped, overflow := uint256.FromBig(absRemaining)
			if overflow {
				return nil, fixedmath.ErrOverflowUint256
			}
			amountOut = capped
		}
	}

	var feeAmount *uint256.Int
	if exactIn && !sqrtRatioNextX96.Eq(sqrtRatioTargetX96) {
		// Target not reached: the whole remainder of the input is taken as fee.
		remaining, overflow := uint256.FromBig(amountRemaining)
		if overflow {
			return nil, fixedmath.ErrOverflowUint256
		}
		feeAmount = new(uint256.Int).Sub(remaining, amountIn)
	} else {
		feeFactor := new(uint256.Int).Sub(oneInPips, feePipsU256)
		feeAmount, err = fixedmath.MulDivRoundingUp(amountIn, feePipsU256, feeFactor)
		if err != nil {
			return nil, err
		}
	}

	return &StepResult{
		SqrtRatioNextX96: sqrtRatioNextX96,
		AmountIn:         amountIn,
		AmountOut:        amountOut,
		FeeAmount:        feeAmount,
	}, nil
}
