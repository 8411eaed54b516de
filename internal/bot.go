// Package internal wires the decision core to a market gateway and position
// store and drives it with a periodic tick.
package internal

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/avgdown/dcabot/config"
	"github.com/avgdown/dcabot/internal/domain"
	"github.com/avgdown/dcabot/internal/engine"
	"github.com/avgdown/dcabot/internal/gateway"
)

const (
	defaultOrderCheckInterval  = 5 * time.Second
	defaultPendingOrderTimeout = 10 * time.Minute
	fillQueueSize              = 16
)

// TradingBot runs the decide, size, dispatch pipeline on a fixed cadence and
// reconciles fills as they are detected. Ticks never overlap: while a
// dispatched order is pending confirmation, new decisions are skipped.
type TradingBot struct {
	conf       config.Config
	gw         gateway.Gateway
	repo       engine.PositionRepository
	proposer   *engine.ProposalEngine
	adjuster   *engine.BudgetAdjuster
	dispatcher *engine.Dispatcher
	reconciler *engine.FillReconciler
	key        domain.PositionKey
	l          *zap.Logger

	fills        chan domain.FillEvent
	orderPending atomic.Bool
	watchers     sync.WaitGroup

	// overridable for testing
	orderCheckInterval  time.Duration
	pendingOrderTimeout time.Duration
}

// NewTradingBot assembles the pipeline for one configured pair.
func NewTradingBot(conf config.Config, gw gateway.Gateway, repo engine.PositionRepository, logger *zap.Logger) (*TradingBot, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("pair", conf.Pair.String()))

	proposer, err := engine.NewProposalEngine(logger, engine.Settings{
		Pair:           conf.Pair,
		Shares:         conf.Shares,
		MinSize:        conf.MinSize,
		MaxSize:        conf.MaxSize,
		StepRatio:      conf.AddPositionStepRatio,
		MinProfitRatio: conf.MinProfitPercent,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create proposal engine")
	}

	key := domain.PositionKey{User: conf.User, Exchange: conf.Platform, Token: conf.Pair.From}

	return &TradingBot{
		conf:                conf,
		gw:                  gw,
		repo:                repo,
		proposer:            proposer,
		adjuster:            engine.NewBudgetAdjuster(logger, true),
		dispatcher:          engine.NewDispatcher(logger, gw),
		reconciler:          engine.NewFillReconciler(logger, repo, key),
		key:                 key,
		l:                   logger,
		fills:               make(chan domain.FillEvent, fillQueueSize),
		orderCheckInterval:  defaultOrderCheckInterval,
		pendingOrderTimeout: defaultPendingOrderTimeout,
	}, nil
}

// Initialize seeds the reference price baseline when none is persisted yet, so
// the proposal engine can evaluate price moves from the first tick.
func (b *TradingBot) Initialize(ctx context.Context) error {
	state, err := b.repo.Load(b.key)
	if err != nil {
		return errors.Wrap(err, "failed to load position state")
	}

	b.logBalances(ctx, "starting bot",
		zap.String("entry_price", state.EntryPrice.String()),
		zap.String("accumulated_amount", state.AccumulatedAmount.String()))

	if state.HasReferencePrice() {
		return nil
	}

	price, err := b.gw.GetPrice(ctx, b.conf.Pair)
	if err != nil {
		return errors.Wrapf(err, "failed to get current price for %s", b.conf.Pair.String())
	}

	err = b.repo.Update(b.key, func(state *domain.PositionState) error {
		if !state.HasReferencePrice() {
			state.LastReferencePrice = price
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "failed to seed reference price")
	}

	b.l.Info("seeded reference price", zap.String("price", price.String()))
	return nil
}

// Run drives the tick loop until the context is cancelled. Fill events are
// reconciled on a separate goroutine, independently of the tick cadence.
func (b *TradingBot) Run(ctx context.Context) error {
	if err := b.Initialize(ctx); err != nil {
		return errors.Wrap(err, "failed to initialize trading bot")
	}

	go b.consumeFills(ctx)

	ticker := time.NewTicker(b.conf.OrderDelayTime)
	defer ticker.Stop()

	b.l.Info("starting trading loop", zap.Duration("order_delay_time", b.conf.OrderDelayTime))

	for {
		select {
		case <-ctx.Done():
			b.l.Info("context done, stopping trading loop")
			b.watchers.Wait()
			return ctx.Err()
		case <-ticker.C:
			if err := b.tick(ctx); err != nil {
				b.l.Error("tick failed", zap.Error(err))
			}
		}
	}
}

// tick runs one decide, size, dispatch pass over a point-in-time snapshot of
// balances, price and position state. Collaborator failure aborts the whole
// tick: no order is submitted and no state changes.
func (b *TradingBot) tick(ctx context.Context) error {
	if b.orderPending.Load() {
		b.l.Info("previous order still pending, skipping tick")
		return nil
	}

	price, err := b.gw.GetPrice(ctx, b.conf.Pair)
	if err != nil {
		return errors.Wrap(err, "failed to get price")
	}

	balances, err := b.getBalances(ctx)
	if err != nil {
		return err
	}

	limits, err := b.gw.Limits(ctx, b.conf.Pair)
	if err != nil {
		return errors.Wrap(err, "failed to get exchange limits")
	}

	state, err := b.repo.Load(b.key)
	if err != nil {
		return errors.Wrap(err, "failed to load position state")
	}

	decision := b.proposer.Propose(balances, price, state, limits)
	if decision.Proposal == nil {
		b.l.Debug("no proposal this tick", zap.String("reason", decision.Reason))
		return nil
	}

	adjusted := b.adjuster.Adjust(decision.Proposal, balances, limits)
	if adjusted.Proposal == nil {
		b.l.Info("proposal rejected by budget adjuster", zap.String("reason", adjusted.Reason))
		return nil
	}

	clientOrderID, err := b.dispatcher.Dispatch(ctx, adjusted.Proposal)
	if err != nil {
		return errors.Wrap(err, "dispatch failed")
	}

	b.orderPending.Store(true)
	b.watchers.Add(1)
	go b.watchOrder(ctx, *adjusted.Proposal, clientOrderID)

	return nil
}

// watchOrder polls the gateway until the dispatched order executes, then
// emits a fill event for the reconciler. The pending flag gates the tick loop
// meanwhile.
func (b *TradingBot) watchOrder(ctx context.Context, proposal domain.OrderProposal, clientOrderID string) {
	defer b.watchers.Done()
	defer b.orderPending.Store(false)

	deadline := time.NewTimer(b.pendingOrderTimeout)
	defer deadline.Stop()
	poll := time.NewTicker(b.orderCheckInterval)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			b.l.Warn("order not executed before timeout, giving up watching",
				zap.String("client_order_id", clientOrderID))
			return
		case <-poll.C:
			executed, filledAmount, avgPrice, err := b.gw.OrderExecuted(ctx, proposal.Pair, clientOrderID)
			if err != nil {
				b.l.Error("failed to check order status",
					zap.String("client_order_id", clientOrderID), zap.Error(err))
				continue
			}
			if !executed {
				continue
			}

			if filledAmount.LessThanOrEqual(decimal.Zero) {
				filledAmount = proposal.Amount
			}
			if avgPrice.LessThanOrEqual(decimal.Zero) {
				avgPrice = proposal.Price
			}

			select {
			case b.fills <- domain.FillEvent{
				ClientOrderID: clientOrderID,
				Pair:          proposal.Pair,
				Side:          proposal.Side,
				Amount:        filledAmount,
				Price:         avgPrice,
			}:
			case <-ctx.Done():
			}
			return
		}
	}
}

func (b *TradingBot) consumeFills(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case fill := <-b.fills:
			if err := b.reconciler.OnFill(ctx, fill); err != nil {
				b.l.Error("fill reconciliation failed",
					zap.String("client_order_id", fill.ClientOrderID), zap.Error(err))
			}
		}
	}
}

func (b *TradingBot) getBalances(ctx context.Context) (domain.Balances, error) {
	base, err := b.gw.GetBalance(ctx, b.conf.Pair.From)
	if err != nil {
		return domain.Balances{}, errors.Wrapf(err, "failed to get %s balance", b.conf.Pair.From)
	}
	quote, err := b.gw.GetBalance(ctx, b.conf.Pair.To)
	if err != nil {
		return domain.Balances{}, errors.Wrapf(err, "failed to get %s balance", b.conf.Pair.To)
	}
	return domain.Balances{Base: base, Quote: quote}, nil
}

func (b *TradingBot) logBalances(ctx context.Context, msg string, extraFields ...zap.Field) {
	balances, err := b.getBalances(ctx)
	if err != nil {
		b.l.Warn("failed to get balances", zap.Error(err))
		return
	}

	fields := append(extraFields,
		zap.String(b.conf.Pair.From+"_balance", balances.Base.String()),
		zap.String(b.conf.Pair.To+"_balance", balances.Quote.String()))

	b.l.Info(msg, fields...)
}
