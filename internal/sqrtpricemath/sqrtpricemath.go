// Package sqrtpricemath computes the next Q64.96 sqrt price reached by
// adding or removing a delta of token0/token1 to a pool's virtual
// reserves, and the token deltas covered by a liquidity position
// between two sqrt prices.
package sqrtpricemath

import (
	"errors"
	"math/big"

	"github.com/holiman/uint256"

	"github.com/riverrun-labs/clmm-engine/internal/fixedmath"
)

// ErrPriceOverflow is returned when a next-price computation would not
// fit in 160 bits.
var ErrPriceOverflow = errors.New("OF or UF of UINT160")

// ErrInvalidPriceOrLiquidity is returned when sqrtPX96 or liquidity is
// zero at entry points that require both to be positive.
var ErrInvalidPriceOrLiquidity = errors.New("sqrtpricemath: price and liquidity must be positive")

const resolution96 = 96

var q96 = new(uint256.Int).Lsh(uint256.NewInt(1), resolution96)

func checkUint160(x *uint256.Int) error {
	if err := fixedmath.CheckUint160(x); err != nil {
		return ErrPriceOverflow
	}
	return nil
}

// GetNextSqrtPriceFromAmount0RoundingUp returns the sqrt price after
// adding (or removing) amount of token0 to the virtual reserves,
// always rounding up.
func GetNextSqrtPriceFromAmount0RoundingUp(sqrtPX96 *uint256.Int, liquidity *uint256.Int, amount *uint256.Int, add bool) (*uint256.Int, error) {
	if amount.IsZero() {
		return sqrtPX96, nil
	}
	numerator1 := new(uint256.Int).Lsh(liquidity, resolution96)

	if add {
		product, overflow := new(uint256.Int).MulOverflow(amount, sqrtPX96)
		if !overflow {
			denominator, ovf := new(uint256.Int).AddOverflow(numerator1, product)
			if !ovf && denominator.Cmp(numerator1) >= 0 {
				result, err := fixedmath.MulDivRoundingUp(numerator1, sqrtPX96, denominator)
				if err != nil {
					return nil, err
				}
				if err := checkUint160(result); err != nil {
					return nil, err
				}
				return result, nil
			}
		}
		quot := new(uint256.Int).Div(numerator1, sqrtPX96)
		denom, overflow := new(uint256.Int).AddOverflow(quot, amount)
		if overflow {
			return nil, ErrPriceOverflow
		}
		result, err := fixedmath.DivRoundingUp(numerator1, denom)
		if err != nil {
			return nil, err
		}
		if err := checkUint160(result); err != nil {
			return nil, err
		}
		return result, nil
	}

	product, overflow := new(uint256.Int).MulOverflow(amount, sqrtPX96)
	if overflow || numerator1.Cmp(product) <= 0 {
		return nil, ErrPriceOverflow
	}
	denominator := new(uint256.Int).Sub(numerator1, product)
	result, err := fixedmath.MulDivRoundingUp(numerator1, sqrtPX96, denominator)
	if err != nil {
		return nil, err
	}
	if err := checkUint160(result); err != nil {
		return nil, err
	}
	return result, nil
}

// GetNextSqrtPriceFromAmount1RoundingDown returns the sqrt price after
// adding (or removing) amount of token1 to the virtual reserves,
// always rounding down.
func GetNextSqrtPriceFromAmount1RoundingDown(sqrtPX96 *uint256.Int, liquidity *uint256.Int, amount *uint256.Int, add bool) (*uint256.Int, error) {
	maxUint160 := new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 160), uint256.NewInt(1))

	if add {
		var quotient *uint256.Int
		if amount.Cmp(maxUint160) <= 0 {
			quotient = new(uint256.Int).Div(new(uint256.Int).Lsh(amount, resolution96), liquidity)
		} else {
			q, err := fixedmath.MulDiv(amount, q96, liquidity)
			if err != nil {
				return nil, err
			}
			quotient = q
		}
		result, overflow := new(uint256.Int).AddOverflow(sqrtPX96, quotient)
		if overflow {
			return nil, ErrPriceOverflow
		}
		if err := checkUint160(result); err != nil {
			return nil, err
		}
		return result, nil
	}

	var quotient *uint256.Int
	if amount.Cmp(maxUint160) <= 0 {
		q, err := fixedmath.DivRoundingUp(new(uint256.Int).Lsh(amount, resolution96), liquidity)
		if err != nil {
			return nil, err
		}
		quotient = q
	} else {
		q, err := fixedmath.MulDivRoundingUp(amount, q96, liquidity)
		if err != nil {
			return nil, err
		}
		quotient = q
	}
	if sqrtPX96.Cmp(quotient) <= 0 {
		return nil, ErrPriceOverflow
	}
	result := new(uint256.Int).Sub(sqrtPX96, quotient)
	if err := checkUint160(result); err != nil {
		return nil, err
	}
	return result, nil
}

// GetNextSqrtPriceFromInput computes the sqrt price reached after
// swapping amountIn of token0 (zeroForOne) or token1 into the pool.
func GetNextSqrtPriceFromInput(sqrtPX96, liquidity, amountIn *uint256.Int, zeroForOne bool) (*uint256.Int, error) {
	if sqrtPX96.IsZero() || liquidity.IsZero() {
		return nil, ErrInvalidPriceOrLiquidity
	}
	if zeroForOne {
		return GetNextSqrtPriceFromAmount0RoundingUp(sqrtPX96, liquidity, amountIn, true)
	}
	return GetNextSqrtPriceFromAmount1RoundingDown(sqrtPX96, liquidity, amountIn, true)
}

// GetNextSqrtPriceFromOutput computes the sqrt price reached after
// swapping amountOut of token0 (zeroForOne) or token1 out of the pool.
func GetNextSqrtPriceFromOutput(sqrtPX96, liquidity, amountOut *uint256.Int, zeroForOne bool) (*uint256.Int, error) {
	if sqrtPX96.IsZero() || liquidity.IsZero() {
		return nil, ErrInvalidPriceOrLiquidity
	}
	if zeroForOne {
		return GetNextSqrtPriceFromAmount1RoundingDown(sqrtPX96, liquidity, amountOut, false)
	}
	return GetNextSqrtPriceFromAmount0RoundingUp(sqrtPX96, liquidity, amountOut, false)
}

func sortPrices(a, b *uint256.Int) (*uint256.Int, *uint256.Int) {
	if a.Cmp(b) > 0 {
		return b, a
	}
	return a, b
}

// GetAmount0Delta computes the token0 required to cover a position of
// size liquidity between two sqrt prices.
func GetAmount0Delta(sqrtRatioAX96, sqrtRatioBX96, liquidity *uint256.Int, roundUp bool) (*uint256.Int, error) {
	lo, hi := sortPrices(sqrtRatioAX96, sqrtRatioBX96)
	numerator1 := new(uint256.Int).Lsh(liquidity, resolution96)
	numerator2 := new(uint256.Int).Sub(hi, lo)

	if roundUp {
		inner, err := fixedmath.MulDivRoundingUp(numerator1, numerator2, hi)
		if err != nil {
			return nil, err
		}
		return fixedmath.DivRoundingUp(inner, lo)
	}
	inner, err := fixedmath.MulDiv(numerator1, numerator2, hi)
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).Div(inner, lo), nil
}

// GetAmount1Delta computes the token1 required to cover a position of
// size liquidity between two sqrt prices.
func GetAmount1Delta(sqrtRatioAX96, sqrtRatioBX96, liquidity *uint256.Int, roundUp bool) (*uint256.Int, error) {
	lo, hi := sortPrices(sqrtRatioAX96, sqrtRatioBX96)
	diff := new(uint256.Int).Sub(hi, lo)
	if roundUp {
		return fixedmath.MulDivRoundingUp(liquidity, diff, q96)
	}
	return fixedmath.MulDiv(liquidity, diff, q96)
}

// GetAmount0DeltaHelper returns the signed token0 delta corresponding
// to a signed liquidity change between two sqrt prices: negative when
// liquidity is being removed, matching the reference signed wrapper.
func GetAmount0DeltaHelper(sqrtRatioAX96, sqrtRatioBX96 *uint256.Int, liquidity *big.Int) (*big.Int, error) {
	abs := new(big.Int).Abs(liquidity)
	absU256, overflow := uint256.FromBig(abs)
	if overflow {
		return nil, fixedmath.ErrOverflowUint256
	}
	if liquidity.Sign() < 0 {
		delta, err := GetAmount0Delta(sqrtRatioAX96, sqrtRatioBX96, absU256, false)
		if err != nil {
			return nil, err
		}
		return new(big.Int).Neg(delta.ToBig()), nil
	}
	delta, err := GetAmount0Delta(sqrtRatioAX96, sqrtRatioBX96, absU256, true)
	if err != nil {
		return nil, err
	}
	return delta.ToBig(), nil
}

// GetAmount1DeltaHelper returns the signed token1 delta corresponding
// to a signed liquidity change between two sqrt prices.
func GetAmount1DeltaHelper(sqrtRatioAX96, sqrtRatioBX96 *uint256.Int, liquidity *big.Int) (*big.Int, error) {
	abs := new(big.Int).Abs(liquidity)
	absU256, overflow := uint256.FromBig(abs)
	if overflow {
		return nil, fixedmath.ErrOverflowUint256
	}
	if liquidity.Sign() < 0 {
		delta, err := GetAmount1Delta(sqrtRatioAX96, sqrtRatioBX96, absU256, false)
		if err != nil {
			return nil, err
		}
		return new(big.Int).Neg(delta.ToBig()), nil
	}
	delta, err := GetAmount1Delta(sqrtRatioAX96, sqrtRatioBX96, absU256, true)
	if err != nil {
		return nil, err
	}
	return delta.ToBig(), nil
}
