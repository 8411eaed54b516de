package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Side represents the direction of an order.
type Side int

const (
	SideBuy Side = iota
	SideSell
)

// String returns the string representation of the side.
func (s Side) String() string {
	switch s {
	case SideBuy:
		return "buy"
	case SideSell:
		return "sell"
	default:
		return "unknown"
	}
}

// OrderType represents the execution type of an order.
type OrderType int

const (
	// OrderTypeLimit is a resting limit order.
	OrderTypeLimit OrderType = iota
	// OrderTypeMarket crosses the spread immediately.
	OrderTypeMarket
)

// String returns the string representation of the order type.
func (t OrderType) String() string {
	switch t {
	case OrderTypeLimit:
		return "limit"
	case OrderTypeMarket:
		return "market"
	default:
		return "unknown"
	}
}

// OrderProposal is an unsubmitted, fully specified candidate order produced by
// the decision logic. It lives within a single tick.
type OrderProposal struct {
	Pair    Pair
	Side    Side
	Type    OrderType
	Amount  decimal.Decimal
	Price   decimal.Decimal
	IsMaker bool
}

// Notional returns the quote-currency value of the proposal.
func (p *OrderProposal) Notional() decimal.Decimal {
	return p.Amount.Mul(p.Price)
}

// String returns a human-readable representation for logs.
func (p *OrderProposal) String() string {
	return fmt.Sprintf("%s %s %s %s @ %s", p.Side, p.Type, p.Amount.String(), p.Pair.String(), p.Price.String())
}

// FillEvent reports an executed order. It arrives asynchronously from the
// market gateway after a submitted order executes.
type FillEvent struct {
	// ClientOrderID identifies the originating order; used as the
	// idempotency guard key by the reconciler.
	ClientOrderID string
	Pair          Pair
	Side          Side
	Amount        decimal.Decimal
	Price         decimal.Decimal
}

// String returns a human-readable fill notification.
func (f *FillEvent) String() string {
	return fmt.Sprintf("%s %s %s at %s", f.Side, f.Amount.Round(2).String(), f.Pair.String(), f.Price.Round(2).String())
}
