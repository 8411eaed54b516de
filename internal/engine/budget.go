package engine

import (
	"go.uber.org/zap"

	"github.com/shopspring/decimal"

	"github.com/avgdown/dcabot/internal/domain"
)

// Budget no-op reasons.
const (
	ReasonInsufficientBalance = "insufficient_balance"
	ReasonBelowMinNotional    = "below_min_notional"
	ReasonBelowMinAmount      = "below_min_amount"
)

// BudgetAdjuster validates a proposal against currently available free
// balances and exchange minimums. Under all-or-none the full proposal is
// either approved unchanged or rejected, so the sizing decision of the
// proposal engine stays authoritative. It is a pure function of its inputs:
// repeated calls with identical inputs yield identical decisions.
type BudgetAdjuster struct {
	allOrNone bool
	l         *zap.Logger
}

// NewBudgetAdjuster returns an adjuster. With allOrNone disabled an
// unaffordable proposal is shrunk to the available balance instead of being
// rejected outright.
func NewBudgetAdjuster(l *zap.Logger, allOrNone bool) *BudgetAdjuster {
	if l == nil {
		l = zap.NewNop()
	}
	return &BudgetAdjuster{allOrNone: allOrNone, l: l}
}

// Adjust checks the proposal against balances and limits. The returned
// decision carries either an approved proposal or a rejection reason.
func (a *BudgetAdjuster) Adjust(proposal *domain.OrderProposal, balances domain.Balances, limits domain.ExchangeLimits) Decision {
	if proposal == nil {
		return Decision{Reason: ReasonNoTrigger}
	}

	adjusted := *proposal

	available := balances.Base
	required := adjusted.Amount
	if adjusted.Side == domain.SideBuy {
		available = balances.Quote
		required = adjusted.Notional()
	}

	if available.LessThan(required) {
		if a.allOrNone {
			a.l.Info("insufficient balance for proposal, rejecting",
				zap.String("proposal", adjusted.String()),
				zap.String("available", available.String()),
				zap.String("required", required.String()))
			return Decision{Reason: ReasonInsufficientBalance}
		}

		if adjusted.Side == domain.SideBuy {
			adjusted.Amount = available.Div(adjusted.Price)
		} else {
			adjusted.Amount = available
		}
		a.l.Info("proposal shrunk to available balance",
			zap.String("original_amount", proposal.Amount.String()),
			zap.String("adjusted_amount", adjusted.Amount.String()))
	}

	if adjusted.Amount.LessThanOrEqual(decimal.Zero) {
		return Decision{Reason: ReasonInsufficientBalance}
	}
	if limits.MinAmount.GreaterThan(decimal.Zero) && adjusted.Amount.LessThan(limits.MinAmount) {
		a.l.Info("proposal below exchange minimum amount, rejecting",
			zap.String("amount", adjusted.Amount.String()),
			zap.String("min_amount", limits.MinAmount.String()))
		return Decision{Reason: ReasonBelowMinAmount}
	}
	if limits.MinNotional.GreaterThan(decimal.Zero) && adjusted.Notional().LessThan(limits.MinNotional) {
		a.l.Info("proposal below exchange minimum notional, rejecting",
			zap.String("notional", adjusted.Notional().String()),
			zap.String("min_notional", limits.MinNotional.String()))
		return Decision{Reason: ReasonBelowMinNotional}
	}

	return Decision{Proposal: &adjusted}
}
