package clmmengine

import "errors"

// Sentinel errors returned by pool and position operations. Short
// codes match the reference implementation's revert strings so callers
// that branch on error text keep working across ports.
var (
	ErrAlreadyInitialized  = errors.New("AI")
	ErrTickLowerUnset      = errors.New("TLU")
	ErrTickLowerTooLow     = errors.New("TLM")
	ErrTickUpperTooHigh    = errors.New("TUM")
	ErrLiquidityOverflow   = errors.New("LO")
	ErrLiquidityUnderflow  = errors.New("LS")
	ErrLiquidityAddDelta   = errors.New("LA")
	ErrAmountSpecifiedZero = errors.New("AS")
	ErrSqrtPriceLimit      = errors.New("SPL")
	ErrInvalidInputAmount  = errors.New("IIA")
	ErrSqrtRatioOutOfRange = errors.New("R")
	ErrTickOutOfRange      = errors.New("T")

	ErrPositionNotFound      = errors.New("Position doesn't exist")
	ErrPositionAlreadyExists = errors.New("Position already exists")
	ErrPoolAlreadyExists     = errors.New("Pool already exists")
	ErrFeeAmountNotSupported = errors.New("Fee amount not supported")
	ErrInsufficientBalance   = errors.New("Insufficient balance")
)
