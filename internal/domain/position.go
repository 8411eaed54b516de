package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// PositionKey identifies a persisted long position.
type PositionKey struct {
	User     string
	Exchange string
	Token    string
}

// String returns the deterministic storage key for the position.
func (k PositionKey) String() string {
	return fmt.Sprintf("dca:%s:%s:%s:long", k.User, k.Exchange, k.Token)
}

// PositionState is the persisted state of a DCA long position.
//
// Invariant: AccumulatedAmount >= 0; EntryPrice is meaningful only while
// AccumulatedAmount > 0.
type PositionState struct {
	// EntryPrice weighted-average price at which the currently held amount
	// was acquired. Zero until the first fill.
	EntryPrice decimal.Decimal `json:"entry_price"`
	// AccumulatedAmount total base amount currently held via this
	// strategy's orders.
	AccumulatedAmount decimal.Decimal `json:"accumulated_amount"`
	// LastReferencePrice most recent price snapshot used to detect the
	// downward move that triggers accumulation.
	LastReferencePrice decimal.Decimal `json:"last_reference_price"`
	// ProcessedFillIDs guards the reconciler against duplicate fill
	// notifications for the same client order.
	ProcessedFillIDs map[string]bool `json:"processed_fill_ids"`
}

// NewPositionState creates an empty position state with initialized collections.
func NewPositionState() *PositionState {
	return &PositionState{
		EntryPrice:         decimal.Zero,
		AccumulatedAmount:  decimal.Zero,
		LastReferencePrice: decimal.Zero,
		ProcessedFillIDs:   make(map[string]bool),
	}
}

// HasPosition reports whether any amount is currently held.
func (s *PositionState) HasPosition() bool {
	return s.AccumulatedAmount.GreaterThan(decimal.Zero)
}

// HasReferencePrice reports whether a baseline price snapshot exists.
func (s *PositionState) HasReferencePrice() bool {
	return s.LastReferencePrice.GreaterThan(decimal.Zero)
}

// IsFillProcessed reports whether a fill with the given client order ID was
// already applied.
func (s *PositionState) IsFillProcessed(id string) bool {
	if id == "" {
		return false
	}
	return s.ProcessedFillIDs[id]
}

func (s *PositionState) markFillProcessed(id string) {
	if id == "" {
		return
	}
	if s.ProcessedFillIDs == nil {
		s.ProcessedFillIDs = make(map[string]bool)
	}
	s.ProcessedFillIDs[id] = true
}

// ApplyBuyFill folds a buy fill into the weighted-average entry price and
// accumulated amount. The first fill of a series bootstraps the entry price to
// the fill price, since the weighted-average formula is undefined at zero
// prior amount.
func (s *PositionState) ApplyBuyFill(id string, amount, price decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("fill amount must be positive, got %s", amount.String())
	}
	if price.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("fill price must be positive, got %s", price.String())
	}

	if s.HasPosition() {
		newAccumulated := s.AccumulatedAmount.Add(amount)
		weighted := s.EntryPrice.Mul(s.AccumulatedAmount).Add(price.Mul(amount))
		s.EntryPrice = weighted.Div(newAccumulated)
		s.AccumulatedAmount = newAccumulated
	} else {
		s.EntryPrice = price
		s.AccumulatedAmount = amount
	}

	// next accumulation requires a further drop from this fill
	s.LastReferencePrice = price
	s.markFillProcessed(id)

	return nil
}

// ApplySellFill reduces the accumulated amount, floored at zero. The entry
// price of the remaining amount is unaffected by a partial sale; it becomes
// undefined again when the position is fully closed. The gateway is the source
// of truth for what actually filled, so an oversized fill is clamped rather
// than rejected.
func (s *PositionState) ApplySellFill(id string, amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("fill amount must be positive, got %s", amount.String())
	}

	s.AccumulatedAmount = s.AccumulatedAmount.Sub(amount)
	if s.AccumulatedAmount.LessThanOrEqual(decimal.Zero) {
		s.AccumulatedAmount = decimal.Zero
		s.EntryPrice = decimal.Zero
	}

	s.markFillProcessed(id)

	return nil
}
