package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestQuoteBaseRate(t *testing.T) {
	charge, err := Quote(dec("1.00"), nil, dec("10"), 500)
	require.NoError(t, err)
	// effective rate 0.9 per 1000, 500 units -> 0.45
	assert.True(t, charge.Equal(dec("0.45")), "got %s", charge)
}

func TestQuoteCustomRateOverridesBase(t *testing.T) {
	custom := dec("2.50")
	charge, err := Quote(dec("1.00"), &custom, dec("0"), 1000)
	require.NoError(t, err)
	assert.True(t, charge.Equal(dec("2.50")), "got %s", charge)
}

func TestQuoteKeepsSmallOrderPrecision(t *testing.T) {
	charge, err := Quote(dec("0.013"), nil, dec("0"), 17)
	require.NoError(t, err)
	// 0.013 * 17 / 1000 = 0.000221
	assert.True(t, charge.Equal(dec("0.000221")), "got %s", charge)
}

func TestQuoteRejectsBadInputs(t *testing.T) {
	_, err := Quote(dec("1"), nil, dec("0"), 0)
	assert.Error(t, err)

	_, err = Quote(dec("1"), nil, dec("101"), 10)
	assert.Error(t, err)

	_, err = Quote(dec("-1"), nil, dec("0"), 10)
	assert.Error(t, err)
}

func TestEffectiveRate(t *testing.T) {
	custom := dec("4.00")
	rate := EffectiveRate(dec("5.00"), &custom, dec("25"))
	assert.True(t, rate.Equal(dec("3.00")), "got %s", rate)
}
