package engine

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/avgdown/dcabot/internal/domain"
)

// PositionRepository is the persistence surface for position state. Update
// must apply the mutation atomically per key so that overlapping fills cannot
// lose writes.
type PositionRepository interface {
	Load(key domain.PositionKey) (*domain.PositionState, error)
	Save(key domain.PositionKey, state *domain.PositionState) error
	Update(key domain.PositionKey, fn func(state *domain.PositionState) error) error
}

// FillReconciler folds asynchronous fill events into the persisted position
// state: buys move the weighted-average entry price, sells reduce the
// accumulated amount. It is the only writer of position state.
type FillReconciler struct {
	repo PositionRepository
	key  domain.PositionKey
	l    *zap.Logger
}

// NewFillReconciler returns a reconciler bound to one position key.
func NewFillReconciler(l *zap.Logger, repo PositionRepository, key domain.PositionKey) *FillReconciler {
	if l == nil {
		l = zap.NewNop()
	}
	return &FillReconciler{repo: repo, key: key, l: l}
}

// OnFill applies a fill event through the repository's atomic update
// primitive. Duplicate notifications for an already processed client order ID
// are ignored.
func (r *FillReconciler) OnFill(ctx context.Context, fill domain.FillEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var duplicate bool

	err := r.repo.Update(r.key, func(state *domain.PositionState) error {
		if state.IsFillProcessed(fill.ClientOrderID) {
			duplicate = true
			return nil
		}

		switch fill.Side {
		case domain.SideBuy:
			return state.ApplyBuyFill(fill.ClientOrderID, fill.Amount, fill.Price)
		case domain.SideSell:
			return state.ApplySellFill(fill.ClientOrderID, fill.Amount)
		default:
			return errors.Errorf("unknown fill side %d", fill.Side)
		}
	})
	if err != nil {
		return errors.Wrapf(err, "failed to reconcile fill %s", fill.ClientOrderID)
	}

	if duplicate {
		r.l.Warn("duplicate fill notification ignored",
			zap.String("client_order_id", fill.ClientOrderID))
		return nil
	}

	state, err := r.repo.Load(r.key)
	if err != nil {
		return errors.Wrap(err, "failed to load position state after fill")
	}

	// human-readable fill notification, required observable side effect
	r.l.Info(fill.String(),
		zap.String("key", r.key.String()),
		zap.String("entry_price", state.EntryPrice.String()),
		zap.String("accumulated_amount", state.AccumulatedAmount.String()))

	return nil
}
