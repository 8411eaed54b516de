// Package gateway abstracts market connectivity: price quotes, balances,
// order submission and execution status.
package gateway

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/avgdown/dcabot/internal/domain"
)

// Gateway is the narrow market-connectivity surface the decision core calls.
type Gateway interface {
	// GetBalance returns the free balance of a currency.
	GetBalance(ctx context.Context, currency string) (decimal.Decimal, error)
	// GetPrice returns the current price for the pair.
	GetPrice(ctx context.Context, pair domain.Pair) (decimal.Decimal, error)
	// Limits returns exchange-published order constraints for the pair.
	Limits(ctx context.Context, pair domain.Pair) (domain.ExchangeLimits, error)
	// SubmitOrder places the order under the given client order ID.
	SubmitOrder(ctx context.Context, order domain.OrderProposal, clientOrderID string) error
	// OrderExecuted reports whether the order identified by clientOrderID
	// is fully executed, with the filled base amount and average fill
	// price. A zero price means the exchange did not report one.
	OrderExecuted(ctx context.Context, pair domain.Pair, clientOrderID string) (bool, decimal.Decimal, decimal.Decimal, error)
}
