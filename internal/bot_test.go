package internal

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/avgdown/dcabot/config"
	"github.com/avgdown/dcabot/internal/domain"
)

type stubGateway struct {
	mu       sync.Mutex
	price    decimal.Decimal
	balances map[string]decimal.Decimal
	limits   domain.ExchangeLimits

	submitted []domain.OrderProposal
	orderIDs  []string
	fillOrder bool // report submitted orders as executed
}

func newStubGateway(price int64, base, quote int64) *stubGateway {
	return &stubGateway{
		price: decimal.NewFromInt(price),
		balances: map[string]decimal.Decimal{
			"BTC":  decimal.NewFromInt(base),
			"USDT": decimal.NewFromInt(quote),
		},
	}
}

func (g *stubGateway) GetBalance(_ context.Context, currency string) (decimal.Decimal, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.balances[currency], nil
}

func (g *stubGateway) GetPrice(_ context.Context, _ domain.Pair) (decimal.Decimal, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.price, nil
}

func (g *stubGateway) Limits(_ context.Context, _ domain.Pair) (domain.ExchangeLimits, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.limits, nil
}

func (g *stubGateway) SubmitOrder(_ context.Context, order domain.OrderProposal, clientOrderID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.submitted = append(g.submitted, order)
	g.orderIDs = append(g.orderIDs, clientOrderID)
	return nil
}

func (g *stubGateway) OrderExecuted(_ context.Context, _ domain.Pair, clientOrderID string) (bool, decimal.Decimal, decimal.Decimal, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.fillOrder {
		return false, decimal.Zero, decimal.Zero, nil
	}
	for i, id := range g.orderIDs {
		if id == clientOrderID {
			return true, g.submitted[i].Amount, g.submitted[i].Price, nil
		}
	}
	return false, decimal.Zero, decimal.Zero, nil
}

func (g *stubGateway) submittedOrders() []domain.OrderProposal {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]domain.OrderProposal, len(g.submitted))
	copy(out, g.submitted)
	return out
}

type memoryRepo struct {
	mu     sync.Mutex
	states map[string]*domain.PositionState
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{states: make(map[string]*domain.PositionState)}
}

func (m *memoryRepo) Load(key domain.PositionKey) (*domain.PositionState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if state, ok := m.states[key.String()]; ok {
		clone := *state
		return &clone, nil
	}
	return domain.NewPositionState(), nil
}

func (m *memoryRepo) Save(key domain.PositionKey, state *domain.PositionState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[key.String()] = state
	return nil
}

func (m *memoryRepo) Update(key domain.PositionKey, fn func(state *domain.PositionState) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.states[key.String()]
	if !ok {
		state = domain.NewPositionState()
	}
	if err := fn(state); err != nil {
		return err
	}
	m.states[key.String()] = state
	return nil
}

func testConf() config.Config {
	return config.Config{
		Platform:             "simulate",
		User:                 "tester",
		Pair:                 domain.Pair{From: "BTC", To: "USDT"},
		Shares:               10,
		MaxSize:              decimal.NewFromInt(1),
		MinProfitPercent:     decimal.NewFromFloat(0.001),
		AddPositionStepRatio: decimal.NewFromFloat(0.02),
		OrderDelayTime:       10 * time.Millisecond,
	}
}

func newTestBot(t *testing.T, gw *stubGateway, repo *memoryRepo) *TradingBot {
	t.Helper()
	bot, err := NewTradingBot(testConf(), gw, repo, zap.NewNop())
	require.NoError(t, err)
	bot.orderCheckInterval = time.Millisecond
	bot.pendingOrderTimeout = time.Second
	return bot
}

func seedState(t *testing.T, repo *memoryRepo, entry, accumulated, reference int64) {
	t.Helper()
	key := domain.PositionKey{User: "tester", Exchange: "simulate", Token: "BTC"}
	state := domain.NewPositionState()
	state.EntryPrice = decimal.NewFromInt(entry)
	state.AccumulatedAmount = decimal.NewFromInt(accumulated)
	state.LastReferencePrice = decimal.NewFromInt(reference)
	require.NoError(t, repo.Save(key, state))
}

func TestInitialize_SeedsReferencePrice(t *testing.T) {
	gw := newStubGateway(100, 0, 1000)
	repo := newMemoryRepo()
	bot := newTestBot(t, gw, repo)

	require.NoError(t, bot.Initialize(context.Background()))

	state, err := repo.Load(bot.key)
	require.NoError(t, err)
	require.True(t, decimal.NewFromInt(100).Equal(state.LastReferencePrice))
}

func TestInitialize_KeepsPersistedReference(t *testing.T) {
	gw := newStubGateway(100, 0, 1000)
	repo := newMemoryRepo()
	bot := newTestBot(t, gw, repo)
	seedState(t, repo, 0, 0, 50)

	require.NoError(t, bot.Initialize(context.Background()))

	state, err := repo.Load(bot.key)
	require.NoError(t, err)
	require.True(t, decimal.NewFromInt(50).Equal(state.LastReferencePrice), "persisted reference price survives restarts")
}

func TestTick_DispatchesBuyOnDrop(t *testing.T) {
	gw := newStubGateway(90, 0, 1000)
	repo := newMemoryRepo()
	bot := newTestBot(t, gw, repo)
	seedState(t, repo, 0, 0, 100)

	require.NoError(t, bot.tick(context.Background()))

	orders := gw.submittedOrders()
	require.Len(t, orders, 1)
	require.Equal(t, domain.SideBuy, orders[0].Side)
	require.True(t, decimal.NewFromInt(90).Equal(orders[0].Price))
	require.True(t, decimal.NewFromInt(1).Equal(orders[0].Amount), "unit size clamped to max_size")
	require.True(t, bot.orderPending.Load(), "dispatched order gates the next tick")

	bot.watchers.Wait()
}

func TestTick_NoTriggerNoOrder(t *testing.T) {
	gw := newStubGateway(100, 0, 1000)
	repo := newMemoryRepo()
	bot := newTestBot(t, gw, repo)
	seedState(t, repo, 0, 0, 100)

	require.NoError(t, bot.tick(context.Background()))
	require.Empty(t, gw.submittedOrders())
}

func TestTick_SkipsWhilePending(t *testing.T) {
	gw := newStubGateway(90, 0, 1000)
	repo := newMemoryRepo()
	bot := newTestBot(t, gw, repo)
	seedState(t, repo, 0, 0, 100)

	bot.orderPending.Store(true)

	require.NoError(t, bot.tick(context.Background()))
	require.Empty(t, gw.submittedOrders(), "no new order while one is pending")
}

func TestTick_InsufficientBalanceNoOrder(t *testing.T) {
	// price dropped, but the quote balance cannot afford the unit size
	gw := newStubGateway(90, 0, 10)
	repo := newMemoryRepo()
	bot := newTestBot(t, gw, repo)
	seedState(t, repo, 0, 0, 100)

	require.NoError(t, bot.tick(context.Background()))
	require.Empty(t, gw.submittedOrders())
}

func TestFillFlow_BuyUpdatesPositionState(t *testing.T) {
	gw := newStubGateway(90, 0, 1000)
	gw.fillOrder = true
	repo := newMemoryRepo()
	bot := newTestBot(t, gw, repo)
	seedState(t, repo, 0, 0, 100)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go bot.consumeFills(ctx)

	require.NoError(t, bot.tick(ctx))

	require.Eventually(t, func() bool {
		state, err := repo.Load(bot.key)
		if err != nil {
			return false
		}
		return state.HasPosition()
	}, time.Second, time.Millisecond, "buy fill must reach the position state")

	state, err := repo.Load(bot.key)
	require.NoError(t, err)
	require.True(t, decimal.NewFromInt(90).Equal(state.EntryPrice))
	require.True(t, decimal.NewFromInt(90).Equal(state.LastReferencePrice), "buy fill moves the reference price")

	require.Eventually(t, func() bool {
		return !bot.orderPending.Load()
	}, time.Second, time.Millisecond, "pending flag clears after the fill")
}

func TestFillFlow_SellReducesPosition(t *testing.T) {
	// entry 100, price 103, held 5: profit trigger fires
	gw := newStubGateway(103, 5, 1000)
	gw.fillOrder = true
	repo := newMemoryRepo()
	bot := newTestBot(t, gw, repo)
	seedState(t, repo, 100, 5, 103)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go bot.consumeFills(ctx)

	require.NoError(t, bot.tick(ctx))

	orders := gw.submittedOrders()
	require.Len(t, orders, 1)
	require.Equal(t, domain.SideSell, orders[0].Side)

	require.Eventually(t, func() bool {
		state, err := repo.Load(bot.key)
		if err != nil {
			return false
		}
		return state.AccumulatedAmount.LessThan(decimal.NewFromInt(5))
	}, time.Second, time.Millisecond, "sell fill must reduce the accumulated amount")

	state, err := repo.Load(bot.key)
	require.NoError(t, err)
	require.True(t, decimal.NewFromInt(100).Equal(state.EntryPrice), "sell keeps the entry price")
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	gw := newStubGateway(100, 0, 1000)
	repo := newMemoryRepo()
	bot := newTestBot(t, gw, repo)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- bot.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("bot did not stop after context cancellation")
	}
}
