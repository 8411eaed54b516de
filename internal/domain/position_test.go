package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestPositionKey_String(t *testing.T) {
	key := PositionKey{User: "alice", Exchange: "binance", Token: "BTC"}
	require.Equal(t, "dca:alice:binance:BTC:long", key.String())
}

func TestPositionState_ApplyBuyFill_Bootstrap(t *testing.T) {
	state := NewPositionState()

	err := state.ApplyBuyFill("order-1", decimal.NewFromInt(2), decimal.NewFromInt(50000))
	require.NoError(t, err)

	require.True(t, decimal.NewFromInt(50000).Equal(state.EntryPrice), "first fill bootstraps entry price to the fill price")
	require.True(t, decimal.NewFromInt(2).Equal(state.AccumulatedAmount))
	require.True(t, decimal.NewFromInt(50000).Equal(state.LastReferencePrice))
	require.True(t, state.IsFillProcessed("order-1"))
}

func TestPositionState_ApplyBuyFill_WeightedAverage(t *testing.T) {
	state := NewPositionState()

	// entry price must equal sum(ai*pi)/sum(ai) after each fill
	fills := []struct {
		amount int64
		price  int64
	}{
		{1, 100},
		{2, 70},
		{3, 40},
		{4, 110},
	}

	totalAmount := decimal.Zero
	totalCost := decimal.Zero

	for i, fill := range fills {
		amount := decimal.NewFromInt(fill.amount)
		price := decimal.NewFromInt(fill.price)

		err := state.ApplyBuyFill("", amount, price)
		require.NoError(t, err)

		totalAmount = totalAmount.Add(amount)
		totalCost = totalCost.Add(amount.Mul(price))
		expected := totalCost.Div(totalAmount)

		require.True(t, expected.Equal(state.EntryPrice),
			"after fill %d expected entry %s, got %s", i+1, expected.String(), state.EntryPrice.String())
		require.True(t, totalAmount.Equal(state.AccumulatedAmount))
	}
}

func TestPositionState_ApplyBuyFill_RejectsNonPositive(t *testing.T) {
	state := NewPositionState()

	require.Error(t, state.ApplyBuyFill("", decimal.Zero, decimal.NewFromInt(100)))
	require.Error(t, state.ApplyBuyFill("", decimal.NewFromInt(1), decimal.Zero))
	require.False(t, state.HasPosition())
}

func TestPositionState_ApplySellFill(t *testing.T) {
	state := NewPositionState()
	require.NoError(t, state.ApplyBuyFill("", decimal.NewFromInt(5), decimal.NewFromInt(100)))

	entryBefore := state.EntryPrice

	require.NoError(t, state.ApplySellFill("", decimal.NewFromInt(2)))
	require.True(t, decimal.NewFromInt(3).Equal(state.AccumulatedAmount))
	require.True(t, entryBefore.Equal(state.EntryPrice), "sell must not change the entry price")
}

func TestPositionState_ApplySellFill_OversizedClampsToZero(t *testing.T) {
	state := NewPositionState()
	require.NoError(t, state.ApplyBuyFill("", decimal.NewFromInt(3), decimal.NewFromInt(100)))

	require.NoError(t, state.ApplySellFill("", decimal.NewFromInt(10)))

	require.True(t, state.AccumulatedAmount.IsZero(), "accumulated amount never goes below zero")
	require.True(t, state.EntryPrice.IsZero(), "entry price is undefined once the position is closed")
	require.False(t, state.HasPosition())
}

func TestPositionState_FullCycleRebootstrap(t *testing.T) {
	state := NewPositionState()

	require.NoError(t, state.ApplyBuyFill("a", decimal.NewFromInt(1), decimal.NewFromInt(100)))
	require.NoError(t, state.ApplySellFill("b", decimal.NewFromInt(1)))
	require.False(t, state.HasPosition())

	// next buy bootstraps again, the old average is gone
	require.NoError(t, state.ApplyBuyFill("c", decimal.NewFromInt(1), decimal.NewFromInt(42)))
	require.True(t, decimal.NewFromInt(42).Equal(state.EntryPrice))
}

func TestPositionState_FillIdempotencyMarks(t *testing.T) {
	state := NewPositionState()

	require.False(t, state.IsFillProcessed(""))
	require.False(t, state.IsFillProcessed("order-1"))

	require.NoError(t, state.ApplyBuyFill("order-1", decimal.NewFromInt(1), decimal.NewFromInt(100)))
	require.True(t, state.IsFillProcessed("order-1"))
	require.False(t, state.IsFillProcessed("order-2"))
}
