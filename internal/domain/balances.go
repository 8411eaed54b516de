package domain

import "github.com/shopspring/decimal"

// Balances is a point-in-time snapshot of free account balances for a pair.
type Balances struct {
	// Base free amount of the base token (e.g. BTC).
	Base decimal.Decimal
	// Quote free amount of the quote currency (e.g. USDT).
	Quote decimal.Decimal
}

// TotalQuote returns the portfolio value expressed in quote currency at the
// given price.
func (b Balances) TotalQuote(price decimal.Decimal) decimal.Decimal {
	return b.Quote.Add(b.Base.Mul(price))
}

// ExchangeLimits carries exchange-published order constraints for a pair.
// A zero value on any field means the exchange publishes no such limit.
type ExchangeLimits struct {
	// MinAmount minimal tradable amount in base currency.
	MinAmount decimal.Decimal
	// MinNotional minimal order value in quote currency.
	MinNotional decimal.Decimal
}
