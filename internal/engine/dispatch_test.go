package engine

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/avgdown/dcabot/internal/domain"
)

type recordingSubmitter struct {
	orders   []domain.OrderProposal
	orderIDs []string
	err      error
}

func (s *recordingSubmitter) SubmitOrder(_ context.Context, order domain.OrderProposal, clientOrderID string) error {
	if s.err != nil {
		return s.err
	}
	s.orders = append(s.orders, order)
	s.orderIDs = append(s.orderIDs, clientOrderID)
	return nil
}

func TestDispatch_AssignsUniqueClientOrderIDs(t *testing.T) {
	submitter := &recordingSubmitter{}
	d := NewDispatcher(zap.NewNop(), submitter)

	proposal := buyProposal(1, 100)

	first, err := d.Dispatch(context.Background(), proposal)
	require.NoError(t, err)
	second, err := d.Dispatch(context.Background(), proposal)
	require.NoError(t, err)

	require.NotEmpty(t, first)
	require.NotEqual(t, first, second)
	require.Equal(t, []string{first, second}, submitter.orderIDs)
	require.True(t, decimal.NewFromInt(1).Equal(submitter.orders[0].Amount))
}

func TestDispatch_NilProposal(t *testing.T) {
	d := NewDispatcher(zap.NewNop(), &recordingSubmitter{})

	_, err := d.Dispatch(context.Background(), nil)
	require.Error(t, err)
}

func TestDispatch_SubmitError(t *testing.T) {
	submitter := &recordingSubmitter{err: errors.New("exchange down")}
	d := NewDispatcher(zap.NewNop(), submitter)

	_, err := d.Dispatch(context.Background(), buyProposal(1, 100))
	require.Error(t, err)
	require.Empty(t, submitter.orderIDs)
}
