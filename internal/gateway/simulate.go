package gateway

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/avgdown/dcabot/internal/domain"
)

// PriceSource supplies market prices for the simulator.
type PriceSource interface {
	GetPrice(ctx context.Context, pair domain.Pair) (decimal.Decimal, error)
}

// SimulateGateway is a paper-trading gateway: real market prices, in-memory
// wallet, orders fill instantly at the submitted price.
type SimulateGateway struct {
	mu     sync.RWMutex
	pair   domain.Pair
	prices PriceSource
	wallet map[string]decimal.Decimal
	orders map[string]simOrder
	logger *zap.Logger
}

type simOrder struct {
	side   domain.Side
	amount decimal.Decimal
	price  decimal.Decimal
}

// NewSimulateGateway creates a simulator seeded with quote currency only.
// Prices are fetched from the given source, typically a public binance
// gateway without credentials.
func NewSimulateGateway(pair domain.Pair, prices PriceSource, startQuote decimal.Decimal, logger *zap.Logger) (*SimulateGateway, error) {
	if prices == nil {
		return nil, errors.New("price source is required for SimulateGateway")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	wallet := map[string]decimal.Decimal{
		pair.From: decimal.Zero,
		pair.To:   startQuote,
	}

	logger.Info("simulate init",
		zap.String("pair", pair.String()),
		zap.String("base", wallet[pair.From].String()),
		zap.String("quote", wallet[pair.To].String()))

	return &SimulateGateway{
		pair:   pair,
		prices: prices,
		wallet: wallet,
		orders: make(map[string]simOrder),
		logger: logger,
	}, nil
}

func (g *SimulateGateway) GetPrice(ctx context.Context, pair domain.Pair) (decimal.Decimal, error) {
	return g.prices.GetPrice(ctx, pair)
}

func (g *SimulateGateway) GetBalance(ctx context.Context, currency string) (decimal.Decimal, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.wallet[currency], nil
}

func (g *SimulateGateway) Limits(ctx context.Context, pair domain.Pair) (domain.ExchangeLimits, error) {
	return domain.ExchangeLimits{}, nil
}

func (g *SimulateGateway) SubmitOrder(ctx context.Context, order domain.OrderProposal, clientOrderID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	notional := order.Notional()

	switch order.Side {
	case domain.SideBuy:
		if g.wallet[order.Pair.To].LessThan(notional) {
			return errors.Errorf("insufficient %s balance: have %s, need %s",
				order.Pair.To, g.wallet[order.Pair.To].String(), notional.String())
		}
		g.wallet[order.Pair.To] = g.wallet[order.Pair.To].Sub(notional)
		g.wallet[order.Pair.From] = g.wallet[order.Pair.From].Add(order.Amount)
	case domain.SideSell:
		if g.wallet[order.Pair.From].LessThan(order.Amount) {
			return errors.Errorf("insufficient %s balance: have %s, need %s",
				order.Pair.From, g.wallet[order.Pair.From].String(), order.Amount.String())
		}
		g.wallet[order.Pair.From] = g.wallet[order.Pair.From].Sub(order.Amount)
		g.wallet[order.Pair.To] = g.wallet[order.Pair.To].Add(notional)
	default:
		return errors.Errorf("unknown side %d", order.Side)
	}

	g.orders[clientOrderID] = simOrder{side: order.Side, amount: order.Amount, price: order.Price}

	g.logger.Info("simulated fill",
		zap.String("order", order.String()),
		zap.String(order.Pair.From+"_balance", g.wallet[order.Pair.From].String()),
		zap.String(order.Pair.To+"_balance", g.wallet[order.Pair.To].String()))

	return nil
}

func (g *SimulateGateway) OrderExecuted(ctx context.Context, pair domain.Pair, clientOrderID string) (bool, decimal.Decimal, decimal.Decimal, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	order, ok := g.orders[clientOrderID]
	if !ok {
		return false, decimal.Zero, decimal.Zero, nil
	}
	return true, order.amount, order.price, nil
}
