package pricing

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"druktour/internal/config"

	"github.com/shopspring/decimal"
)

var (
	ErrUnknownMethod = errors.New("unknown payment method")
	ErrInvalidAmount = errors.New("amount must be positive")
)

// Quote is the fee breakdown for paying an amount with one method.
type Quote struct {
	Method     string          `json:"method"`
	Currency   string          `json:"currency"`
	Amount     decimal.Decimal `json:"amount"`
	FeePercent decimal.Decimal `json:"fee_percent"`
	Fee        decimal.Decimal `json:"fee"`
	Total      decimal.Decimal `json:"total"`
}

type method struct {
	percent decimal.Decimal
	minimum decimal.Decimal
}

// Calculator quotes surcharges from the configured fee table.
type Calculator struct {
	currency string
	methods  map[string]method
}

func NewCalculator(cfg config.PricingConfig) (*Calculator, error) {
	if err := config.ValidatePricing(cfg); err != nil {
		return nil, err
	}
	c := &Calculator{
		currency: cfg.Currency,
		methods:  make(map[string]method, len(cfg.MethodFees)),
	}
	for name, pct := range cfg.MethodFees {
		c.methods[normalize(name)] = method{
			percent: decimal.NewFromFloat(pct),
			minimum: decimal.NewFromFloat(cfg.MinimumFees[name]),
		}
	}
	return c, nil
}

// Methods lists the accepted payment methods, sorted.
func (c *Calculator) Methods() []string {
	out := make([]string, 0, len(c.methods))
	for name := range c.methods {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Quote computes fee and total for amount. The fee is never below the
// method's minimum and both values are rounded to cents.
func (c *Calculator) Quote(amount decimal.Decimal, methodName string) (*Quote, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	name := normalize(methodName)
	m, ok := c.methods[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, methodName)
	}

	amount = amount.Round(2)
	fee := amount.Mul(m.percent).Div(decimal.NewFromInt(100)).Round(2)
	if fee.LessThan(m.minimum) {
		fee = m.minimum.Round(2)
	}

	return &Quote{
		Method:     name,
		Currency:   c.currency,
		Amount:     amount,
		FeePercent: m.percent,
		Fee:        fee,
		Total:      amount.Add(fee),
	}, nil
}

// ParseAmount reads a decimal amount from a query string value.
func ParseAmount(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	return d, nil
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
