package pricing

import (
	"errors"
	"testing"

	"druktour/internal/config"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCalculator(t *testing.T) *Calculator {
	t.Helper()
	c, err := NewCalculator(config.PricingConfig{
		Currency: "USD",
		MethodFees: map[string]float64{
			"card":          3.5,
			"bank_transfer": 1,
			"wallet":        2.5,
			"cash":          0,
		},
		MinimumFees: map[string]float64{"bank_transfer": 15},
	})
	require.NoError(t, err)
	return c
}

func TestQuote(t *testing.T) {
	c := newCalculator(t)

	tests := []struct {
		method string
		amount string
		fee    string
		total  string
	}{
		{"card", "1250.00", "43.75", "1293.75"},
		{"CARD ", "99.99", "3.5", "103.49"},
		{"wallet", "10", "0.25", "10.25"},
		{"cash", "480", "0", "480"},
		{"bank_transfer", "100", "15", "115"},
		{"bank_transfer", "4000", "40", "4040"},
	}
	for _, tt := range tests {
		t.Run(tt.method+"_"+tt.amount, func(t *testing.T) {
			q, err := c.Quote(decimal.RequireFromString(tt.amount), tt.method)
			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString(tt.fee).Equal(q.Fee), "fee %s", q.Fee)
			assert.True(t, decimal.RequireFromString(tt.total).Equal(q.Total), "total %s", q.Total)
			assert.Equal(t, "USD", q.Currency)
		})
	}
}

func TestQuote_Rejects(t *testing.T) {
	c := newCalculator(t)

	_, err := c.Quote(decimal.NewFromInt(100), "crypto")
	assert.True(t, errors.Is(err, ErrUnknownMethod))

	_, err = c.Quote(decimal.Zero, "card")
	assert.True(t, errors.Is(err, ErrInvalidAmount))

	_, err = c.Quote(decimal.NewFromInt(-5), "card")
	assert.True(t, errors.Is(err, ErrInvalidAmount))
}

func TestMethods(t *testing.T) {
	assert.Equal(t, []string{"bank_transfer", "card", "cash", "wallet"}, newCalculator(t).Methods())
}

func TestNewCalculator_InvalidConfig(t *testing.T) {
	_, err := NewCalculator(config.PricingConfig{MethodFees: map[string]float64{"card": 150}})
	assert.Error(t, err)
}

func TestParseAmount(t *testing.T) {
	d, err := ParseAmount(" 12.50 ")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("12.5").Equal(d))

	_, err = ParseAmount("twelve")
	assert.True(t, errors.Is(err, ErrInvalidAmount))
}
