package fixedmath

import (
	"math/big"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMulDiv(t *testing.T) {
	a := uint256.NewInt(1_000_000)
	b := uint256.NewInt(3)
	c := uint256.NewInt(7)
	result, err := MulDiv(a, b, c)
	require.NoError(t, err)
	assert.Equal(t, "428571", result.Dec())
}

func TestMulDivByZero(t *testing.T) {
	_, err := MulDiv(uint256.NewInt(1), uint256.NewInt(1), uint256.NewInt(0))
	assert.ErrorIs(t, err, ErrDivByZero)
}

func TestMulDivOverflow(t *testing.T) {
	maxU256 := new(uint256.Int).Not(new(uint256.Int))
	_, err := MulDiv(maxU256, maxU256, uint256.NewInt(1))
	assert.ErrorIs(t, err, ErrOverflowUint256)
}

func TestMulDivRoundingUp(t *testing.T) {
	result, err := MulDivRoundingUp(uint256.NewInt(10), uint256.NewInt(3), uint256.NewInt(7))
	require.NoError(t, err)
	// 30/7 = 4.28..., rounds up to 5.
	assert.Equal(t, "5", result.Dec())

	exact, err := MulDivRoundingUp(uint256.NewInt(21), uint256.NewInt(1), uint256.NewInt(7))
	require.NoError(t, err)
	assert.Equal(t, "3", exact.Dec())
}

func TestDivRoundingUp(t *testing.T) {
	result, err := DivRoundingUp(uint256.NewInt(10), uint256.NewInt(3))
	require.NoError(t, err)
	assert.Equal(t, "4", result.Dec())

	result, err = DivRoundingUp(uint256.NewInt(9), uint256.NewInt(3))
	require.NoError(t, err)
	assert.Equal(t, "3", result.Dec())

	_, err = DivRoundingUp(uint256.NewInt(1), uint256.NewInt(0))
	assert.ErrorIs(t, err, ErrDivByZero)
}

func TestCheckUint160(t *testing.T) {
	fits := new(uint256.Int).Lsh(uint256.NewInt(1), 159)
	assert.NoError(t, CheckUint160(fits))

	tooBig := new(uint256.Int).Lsh(uint256.NewInt(1), 160)
	assert.ErrorIs(t, CheckUint160(tooBig), ErrOverflowUint160)
}

func TestCheckUint128(t *testing.T) {
	fits := new(uint256.Int).Lsh(uint256.NewInt(1), 127)
	assert.NoError(t, CheckUint128(fits))

	tooBig := new(uint256.Int).Lsh(uint256.NewInt(1), 128)
	assert.ErrorIs(t, CheckUint128(tooBig), ErrOverflowUint128)
}

func TestCheckInt128(t *testing.T) {
	assert.NoError(t, CheckInt128(maxInt128))
	assert.NoError(t, CheckInt128(minInt128))
	assert.ErrorIs(t, CheckInt128(new(big.Int).Add(maxInt128, big.NewInt(1))), ErrOverflowInt128)
	assert.ErrorIs(t, CheckInt128(new(big.Int).Sub(minInt128, big.NewInt(1))), ErrOverflowInt128)
}

func TestCheckInt24(t *testing.T) {
	assert.NoError(t, CheckInt24(887272))
	assert.NoError(t, CheckInt24(-887272))
	assert.ErrorIs(t, CheckInt24(1<<23), ErrOverflowInt24)
}

func TestAddSubSigned(t *testing.T) {
	sum, err := AddSigned(big.NewInt(5), big.NewInt(-3))
	require.NoError(t, err)
	assert.Equal(t, int64(2), sum.Int64())

	diff, err := SubSigned(big.NewInt(5), big.NewInt(-3))
	require.NoError(t, err)
	assert.Equal(t, int64(8), diff.Int64())
}

func TestUint128RoundTrip(t *testing.T) {
	original := uint256.NewInt(12345)
	widened, err := Uint128FromUint256(original)
	require.NoError(t, err)
	narrowed := Uint256FromUint128(widened)
	assert.True(t, original.Eq(narrowed))
}

func TestUint128FromUint256Overflow(t *testing.T) {
	tooBig := new(uint256.Int).Lsh(uint256.NewInt(1), 128)
	_, err := Uint128FromUint256(tooBig)
	assert.ErrorIs(t, err, ErrOverflowUint128)
}

func TestToUint256Mod(t *testing.T) {
	negative := big.NewInt(-1)
	folded := ToUint256Mod(negative)
	maxU256 := new(uint256.Int).Not(new(uint256.Int))
	assert.True(t, folded.Eq(maxU256))
}
