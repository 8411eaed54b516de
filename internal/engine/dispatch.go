package engine

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/avgdown/dcabot/internal/domain"
)

// OrderSubmitter is the slice of the market gateway the dispatcher needs.
type OrderSubmitter interface {
	SubmitOrder(ctx context.Context, order domain.OrderProposal, clientOrderID string) error
}

// Dispatcher turns an approved proposal into a single outbound order
// submission. It mutates no local state and performs no retries; gateway
// failures are surfaced to the caller, which treats them as fatal for the
// tick.
type Dispatcher struct {
	submitter OrderSubmitter
	l         *zap.Logger
}

// NewDispatcher returns a dispatcher bound to the given gateway.
func NewDispatcher(l *zap.Logger, submitter OrderSubmitter) *Dispatcher {
	if l == nil {
		l = zap.NewNop()
	}
	return &Dispatcher{submitter: submitter, l: l}
}

// Dispatch submits the proposal and returns the client order ID assigned to
// it, used later to poll execution status.
func (d *Dispatcher) Dispatch(ctx context.Context, proposal *domain.OrderProposal) (string, error) {
	if proposal == nil {
		return "", errors.New("nil proposal")
	}

	clientOrderID := uuid.New().String()

	if err := d.submitter.SubmitOrder(ctx, *proposal, clientOrderID); err != nil {
		return "", errors.Wrapf(err, "order submission failed for %s", proposal.String())
	}

	d.l.Info("order submitted",
		zap.String("client_order_id", clientOrderID),
		zap.String("order", proposal.String()))

	return clientOrderID, nil
}
