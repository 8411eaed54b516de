package engine

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/avgdown/dcabot/internal/domain"
)

func buyProposal(amount, price int64) *domain.OrderProposal {
	return &domain.OrderProposal{
		Pair:    domain.Pair{From: "BTC", To: "USDT"},
		Side:    domain.SideBuy,
		Type:    domain.OrderTypeLimit,
		Amount:  decimal.NewFromInt(amount),
		Price:   decimal.NewFromInt(price),
		IsMaker: true,
	}
}

func sellProposal(amount, price int64) *domain.OrderProposal {
	p := buyProposal(amount, price)
	p.Side = domain.SideSell
	return p
}

func TestAdjust_ApprovesAffordableBuy(t *testing.T) {
	a := NewBudgetAdjuster(zap.NewNop(), true)

	balances := domain.Balances{Quote: decimal.NewFromInt(1000)}
	decision := a.Adjust(buyProposal(2, 100), balances, domain.ExchangeLimits{})

	require.NotNil(t, decision.Proposal)
	require.True(t, decimal.NewFromInt(2).Equal(decision.Proposal.Amount), "approved proposal is unchanged")
}

func TestAdjust_RejectsUnaffordableBuyAllOrNone(t *testing.T) {
	a := NewBudgetAdjuster(zap.NewNop(), true)

	// 2 * 100 = 200 > 150 available
	balances := domain.Balances{Quote: decimal.NewFromInt(150)}
	decision := a.Adjust(buyProposal(2, 100), balances, domain.ExchangeLimits{})

	require.Nil(t, decision.Proposal)
	require.Equal(t, ReasonInsufficientBalance, decision.Reason)
}

func TestAdjust_RejectsUnaffordableSellAllOrNone(t *testing.T) {
	a := NewBudgetAdjuster(zap.NewNop(), true)

	balances := domain.Balances{Base: decimal.NewFromInt(1)}
	decision := a.Adjust(sellProposal(2, 100), balances, domain.ExchangeLimits{})

	require.Nil(t, decision.Proposal)
	require.Equal(t, ReasonInsufficientBalance, decision.Reason)
}

func TestAdjust_ShrinksWhenPartialAllowed(t *testing.T) {
	a := NewBudgetAdjuster(zap.NewNop(), false)

	balances := domain.Balances{Quote: decimal.NewFromInt(150)}
	decision := a.Adjust(buyProposal(2, 100), balances, domain.ExchangeLimits{})

	require.NotNil(t, decision.Proposal)
	require.True(t, decimal.NewFromFloat(1.5).Equal(decision.Proposal.Amount))
}

func TestAdjust_RejectsBelowMinNotional(t *testing.T) {
	a := NewBudgetAdjuster(zap.NewNop(), true)

	balances := domain.Balances{Quote: decimal.NewFromInt(1000)}
	limits := domain.ExchangeLimits{MinNotional: decimal.NewFromInt(500)}

	decision := a.Adjust(buyProposal(2, 100), balances, limits)

	require.Nil(t, decision.Proposal)
	require.Equal(t, ReasonBelowMinNotional, decision.Reason)
}

func TestAdjust_RejectsBelowMinAmount(t *testing.T) {
	a := NewBudgetAdjuster(zap.NewNop(), true)

	balances := domain.Balances{Quote: decimal.NewFromInt(1000)}
	limits := domain.ExchangeLimits{MinAmount: decimal.NewFromInt(5)}

	decision := a.Adjust(buyProposal(2, 100), balances, limits)

	require.Nil(t, decision.Proposal)
	require.Equal(t, ReasonBelowMinAmount, decision.Reason)
}

func TestAdjust_Idempotent(t *testing.T) {
	a := NewBudgetAdjuster(zap.NewNop(), true)

	balances := domain.Balances{Quote: decimal.NewFromInt(1000)}
	proposal := buyProposal(2, 100)

	first := a.Adjust(proposal, balances, domain.ExchangeLimits{})
	second := a.Adjust(first.Proposal, balances, domain.ExchangeLimits{})

	require.NotNil(t, second.Proposal)
	require.Equal(t, *first.Proposal, *second.Proposal)
}

func TestAdjust_NilProposal(t *testing.T) {
	a := NewBudgetAdjuster(zap.NewNop(), true)

	decision := a.Adjust(nil, domain.Balances{}, domain.ExchangeLimits{})
	require.Nil(t, decision.Proposal)
}

func TestAdjust_DoesNotMutateInput(t *testing.T) {
	a := NewBudgetAdjuster(zap.NewNop(), false)

	proposal := buyProposal(2, 100)
	balances := domain.Balances{Quote: decimal.NewFromInt(150)}

	_ = a.Adjust(proposal, balances, domain.ExchangeLimits{})

	require.True(t, decimal.NewFromInt(2).Equal(proposal.Amount), "caller's proposal must stay intact")
}
