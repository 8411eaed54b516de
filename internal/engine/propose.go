// Package engine contains the DCA decision core: proposal computation, budget
// adjustment, order dispatch and fill reconciliation.
package engine

import (
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/avgdown/dcabot/internal/domain"
)

// Decision no-op reasons. Every reason is logged with the computed amounts so
// each tick is auditable.
const (
	ReasonUnitBelowExchangeMin = "unit_size_below_exchange_min"
	ReasonNoReferencePrice     = "no_reference_price"
	ReasonNoPositionToReduce   = "no_position_to_reduce"
	ReasonNoTrigger            = "no_trigger"
	ReasonDropBelowReference   = "price_dropped_below_reference"
	ReasonProfitAboveEntry     = "profit_above_entry"
	ReasonInvalidPrice         = "invalid_price"
)

// Settings are the immutable per-run parameters of the proposal engine.
type Settings struct {
	Pair domain.Pair
	// Shares integer divisor applied to total portfolio value to size one
	// order.
	Shares int64
	// MinSize and MaxSize clamp the unit order size. A zero or negative
	// bound means no limit on that side.
	MinSize decimal.Decimal
	MaxSize decimal.Decimal
	// StepRatio fractional price move that must be exceeded before a new
	// order is warranted.
	StepRatio decimal.Decimal
	// MinProfitRatio minimal fractional profit over the entry price
	// required to reduce the position.
	MinProfitRatio decimal.Decimal
}

// Decision is the outcome of one proposal evaluation. Proposal is nil on a
// no-op tick, in which case Reason explains why.
type Decision struct {
	Proposal *domain.OrderProposal
	Reason   string
}

// ProposalEngine decides whether the standing position should be enlarged or
// reduced this tick. It is a pure function of its inputs; all side effects
// live in the dispatcher and reconciler.
type ProposalEngine struct {
	settings Settings
	l        *zap.Logger
}

// NewProposalEngine validates settings and returns a configured engine.
func NewProposalEngine(l *zap.Logger, settings Settings) (*ProposalEngine, error) {
	if settings.Shares < 1 {
		return nil, fmt.Errorf("shares must be >= 1, got %d", settings.Shares)
	}
	if settings.StepRatio.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("step ratio must be positive, got %s", settings.StepRatio.String())
	}
	if settings.MinProfitRatio.IsNegative() {
		return nil, fmt.Errorf("min profit ratio must not be negative, got %s", settings.MinProfitRatio.String())
	}
	if l == nil {
		l = zap.NewNop()
	}

	return &ProposalEngine{settings: settings, l: l}, nil
}

// UnitSize computes the nominal order size for the given portfolio snapshot:
// total value divided into shares, clamped into the configured bounds.
func (e *ProposalEngine) UnitSize(balances domain.Balances, price decimal.Decimal) decimal.Decimal {
	total := balances.TotalQuote(price)
	unit := total.Div(decimal.NewFromInt(e.settings.Shares))

	if e.settings.MinSize.GreaterThan(decimal.Zero) && unit.LessThan(e.settings.MinSize) {
		unit = e.settings.MinSize
	}
	if e.settings.MaxSize.GreaterThan(decimal.Zero) && unit.GreaterThan(e.settings.MaxSize) {
		unit = e.settings.MaxSize
	}

	return unit
}

// Propose evaluates the accumulation and reduction triggers against the given
// snapshot and produces at most one maker limit order proposal.
//
// Accumulation is evaluated against the last reference price snapshot
// (averaging down on a dip), reduction against the weighted-average entry
// price (taking profit). Accumulation takes precedence within one tick.
func (e *ProposalEngine) Propose(balances domain.Balances, price decimal.Decimal, state *domain.PositionState, limits domain.ExchangeLimits) Decision {
	if price.LessThanOrEqual(decimal.Zero) {
		return Decision{Reason: ReasonInvalidPrice}
	}
	if state == nil {
		state = domain.NewPositionState()
	}

	unit := e.UnitSize(balances, price)

	if limits.MinAmount.GreaterThan(decimal.Zero) && unit.LessThan(limits.MinAmount) {
		e.l.Info("unit size below exchange minimum, skipping tick",
			zap.String("unit_size", unit.String()),
			zap.String("exchange_min", limits.MinAmount.String()))
		return Decision{Reason: ReasonUnitBelowExchangeMin}
	}

	if !state.HasReferencePrice() {
		e.l.Info("no reference price yet, cannot evaluate price move",
			zap.String("pair", e.settings.Pair.String()))
		return Decision{Reason: ReasonNoReferencePrice}
	}

	// accumulation: price fell below the last reference snapshot by more
	// than the step ratio
	dropRatio := state.LastReferencePrice.Sub(price).Div(state.LastReferencePrice)
	if dropRatio.GreaterThan(e.settings.StepRatio) {
		e.l.Info("accumulation trigger fired",
			zap.String("reference_price", state.LastReferencePrice.String()),
			zap.String("price", price.String()),
			zap.String("drop_ratio", dropRatio.String()),
			zap.String("amount", unit.String()))
		return Decision{
			Proposal: &domain.OrderProposal{
				Pair:    e.settings.Pair,
				Side:    domain.SideBuy,
				Type:    domain.OrderTypeLimit,
				Amount:  unit,
				Price:   price,
				IsMaker: true,
			},
			Reason: ReasonDropBelowReference,
		}
	}

	// reduction: price rose above the cost basis. Undefined without a
	// position, the entry price carries no meaning at zero accumulation.
	if !state.HasPosition() || state.EntryPrice.LessThanOrEqual(decimal.Zero) {
		return Decision{Reason: ReasonNoPositionToReduce}
	}

	profitRatio := price.Sub(state.EntryPrice).Div(state.EntryPrice)
	if profitRatio.GreaterThan(e.settings.StepRatio) && profitRatio.GreaterThanOrEqual(e.settings.MinProfitRatio) {
		e.l.Info("reduction trigger fired",
			zap.String("entry_price", state.EntryPrice.String()),
			zap.String("price", price.String()),
			zap.String("profit_ratio", profitRatio.String()),
			zap.String("amount", unit.String()))
		return Decision{
			Proposal: &domain.OrderProposal{
				Pair:    e.settings.Pair,
				Side:    domain.SideSell,
				Type:    domain.OrderTypeLimit,
				Amount:  unit,
				Price:   price,
				IsMaker: true,
			},
			Reason: ReasonProfitAboveEntry,
		}
	}

	return Decision{Reason: ReasonNoTrigger}
}
