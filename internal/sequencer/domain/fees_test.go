package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestNotionalFee(t *testing.T) {
	cases := []struct {
		notional string
		rate     int64
		expected string
	}{
		{"1000000", 10_000, "10000"}, // 1%
		{"1000000", 1_000, "1000"},   // 0.1%
		{"7", 1, "0"},                // 向零截断
		{"999999", 1, "0"},
		{"1000000", 1, "1"},
		{"1500000", 1, "1"},
		{"1000000", 1_000_000, "1000000"}, // 100%
		{"0", 10_000, "0"},
	}
	for _, tc := range cases {
		fee := NotionalFee(decimal.RequireFromString(tc.notional), tc.rate)
		assert.True(t, decimal.RequireFromString(tc.expected).Equal(fee),
			"notional %s rate %d: got %s", tc.notional, tc.rate, fee)
	}
}

func TestFeeRatesValid(t *testing.T) {
	assert.True(t, FeeRates{Taker: 1, Maker: 1}.Valid())
	assert.True(t, FeeRates{Taker: 1_000_000, Maker: 500}.Valid())
	assert.True(t, DefaultFeeRates().Valid())

	assert.False(t, FeeRates{Taker: 0, Maker: 1}.Valid())
	assert.False(t, FeeRates{Taker: 1, Maker: 0}.Valid())
	assert.False(t, FeeRates{Taker: 1_000_001, Maker: 1}.Valid())
	assert.False(t, FeeRates{Taker: -1, Maker: 1}.Valid())
}
