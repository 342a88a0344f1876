package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMoney(t *testing.T) {
	m, err := NewMoney(decimal.NewFromInt(100), "USD")
	require.NoError(t, err)
	assert.Equal(t, "100 USD", m.String())

	_, err = NewMoney(decimal.NewFromInt(100), "DOLLARS")
	assert.Equal(t, CodeCurrencyMismatch, CodeOf(err))
}

func TestMoneyAddSub(t *testing.T) {
	x := MustMoney("10.25", "USD")
	y := MustMoney("4.75", "USD")

	sum, err := x.Add(y)
	require.NoError(t, err)
	assert.True(t, sum.Equal(MustMoney("15.00", "USD")))

	// (x+y)-y == x
	back, err := sum.Sub(y)
	require.NoError(t, err)
	assert.True(t, back.Equal(x))
}

func TestMoneyCurrencyMismatch(t *testing.T) {
	usd := MustMoney("1", "USD")
	eur := MustMoney("1", "EUR")

	_, err := usd.Add(eur)
	assert.Equal(t, CodeCurrencyMismatch, CodeOf(err))

	_, err = usd.Sub(eur)
	assert.Equal(t, CodeCurrencyMismatch, CodeOf(err))

	_, err = usd.Cmp(eur)
	assert.Equal(t, CodeCurrencyMismatch, CodeOf(err))
}

func TestMoneyNegAbs(t *testing.T) {
	x := MustMoney("-42.50", "USD")

	assert.True(t, x.Neg().Neg().Equal(x))
	assert.False(t, x.Abs().IsNegative())
	assert.True(t, x.IsNegative())
	assert.True(t, x.Abs().Equal(MustMoney("42.50", "USD")))
}

func TestMoneyCmp(t *testing.T) {
	small := MustMoney("1", "USD")
	big := MustMoney("2", "USD")

	c, err := small.Cmp(big)
	require.NoError(t, err)
	assert.Equal(t, -1, c)

	c, err = big.Cmp(small)
	require.NoError(t, err)
	assert.Equal(t, 1, c)

	c, err = small.Cmp(small)
	require.NoError(t, err)
	assert.Equal(t, 0, c)
}

func TestMoneyMulScalar(t *testing.T) {
	x := MustMoney("10", "USD")
	scaled := x.MulScalar(decimal.NewFromFloat(2.5))
	assert.True(t, scaled.Equal(MustMoney("25", "USD")))
}

func TestZeroMoney(t *testing.T) {
	z := ZeroMoney("EUR")
	assert.True(t, z.IsZero())
	assert.Equal(t, "EUR", z.Currency)
}
