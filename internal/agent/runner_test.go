package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voidlabs/voidbot/internal/domain"
	"github.com/voidlabs/voidbot/internal/strategy"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func testParams() domain.StrategyParams {
	return domain.StrategyParams{
		MinProfitMargin:           0.03,
		MinDiscount:               0.01,
		MaxPriceThreshold:         0.97,
		MinHoursSinceEnd:          1,
		MaxHoursSinceEnd:          72,
		MinLiquidityUSD:           1000,
		MinVolume24hUSD:           5000,
		AIConfidenceThreshold:     0.7,
		MaxPositionSizeUSD:        100,
		MaxPositions:              10,
		MaxSlippage:               0.02,
		SignalExpirySeconds:       300,
		CooldownAfterTradeSeconds: 60,
		ScanIntervalSeconds:       3600,
		MarketBatchSize:           100,
	}
}

func testAgent() *domain.Agent {
	return &domain.Agent{
		ID:           "agent-1",
		AccountID:    "acct-1",
		Name:         "test",
		Status:       domain.AgentIdle,
		StrategyName: "oracle_latency",
		Config:       testParams(),
	}
}

func snapshot(id string, yes float64, endedAgo time.Duration) domain.MarketSnapshot {
	end := testNow.Add(-endedAgo)
	return domain.MarketSnapshot{
		ID:           id,
		Question:     "Did it happen?",
		YesTokenID:   id + "-yes",
		NoTokenID:    id + "-no",
		YesPrice:     yes,
		NoPrice:      1 - yes,
		LiquidityUSD: 50000,
		Volume24hUSD: 25000,
		EndTime:      &end,
		Status:       domain.MarketStatusActive,
		FetchedAt:    testNow,
	}
}

type fakeSource struct {
	markets []domain.MarketSnapshot
	listErr error
}

func (s *fakeSource) ListMarkets(context.Context, domain.MarketFilter) ([]domain.MarketSnapshot, error) {
	return s.markets, s.listErr
}

func (s *fakeSource) GetMarket(_ context.Context, id string) (domain.MarketSnapshot, error) {
	for _, m := range s.markets {
		if m.ID == id {
			return m, nil
		}
	}
	return domain.MarketSnapshot{}, domain.ErrNotFound
}

type memSignalStore struct {
	domain.SignalStore
	mu      sync.Mutex
	signals map[string]*domain.Signal
}

func newMemSignalStore() *memSignalStore {
	return &memSignalStore{signals: make(map[string]*domain.Signal)}
}

func (s *memSignalStore) Create(_ context.Context, sig *domain.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sig
	s.signals[sig.ID] = &cp
	return nil
}

func (s *memSignalStore) Update(_ context.Context, sig *domain.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.signals[sig.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *sig
	s.signals[sig.ID] = &cp
	return nil
}

func (s *memSignalStore) get(id string) *domain.Signal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.signals[id]
}

type memAgentStore struct {
	domain.AgentStore
	mu     sync.Mutex
	agents map[string]*domain.Agent
}

func newMemAgentStore(agents ...*domain.Agent) *memAgentStore {
	s := &memAgentStore{agents: make(map[string]*domain.Agent)}
	for _, a := range agents {
		cp := *a
		s.agents[a.ID] = &cp
	}
	return s
}

func (s *memAgentStore) Get(_ context.Context, id string) (*domain.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *memAgentStore) Update(_ context.Context, a *domain.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.agents[a.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *a
	s.agents[a.ID] = &cp
	return nil
}

func (s *memAgentStore) ListByStatus(_ context.Context, status domain.AgentStatus) ([]*domain.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Agent
	for _, a := range s.agents {
		if a.Status == status {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

type fakeProcessed struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newFakeProcessed() *fakeProcessed {
	return &fakeProcessed{seen: make(map[string]bool)}
}

func (p *fakeProcessed) Mark(_ context.Context, agentID, marketID string, _ time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seen[agentID+"/"+marketID] = true
	return nil
}

func (p *fakeProcessed) IsProcessed(_ context.Context, agentID, marketID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.seen[agentID+"/"+marketID], nil
}

func (p *fakeProcessed) CountByAgent(_ context.Context, agentID string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for k := range p.seen {
		if len(k) > len(agentID) && k[:len(agentID)] == agentID {
			n++
		}
	}
	return n, nil
}

type memBus struct {
	mu     sync.Mutex
	events []domain.Event
}

func (b *memBus) Publish(_ context.Context, e domain.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
	return nil
}

func (b *memBus) Subscribe(context.Context, ...domain.EventType) (<-chan domain.Event, error) {
	return nil, nil
}

func (b *memBus) Close() error { return nil }

func (b *memBus) types() []domain.EventType {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []domain.EventType
	for _, e := range b.events {
		out = append(out, e.Type)
	}
	return out
}

type fakeExecutor struct {
	mu       sync.Mutex
	requests []domain.OrderRequest
	result   domain.OrderResult
	err      error
}

func (e *fakeExecutor) ExecuteOrder(_ context.Context, _ string, req domain.OrderRequest) (domain.OrderResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.requests = append(e.requests, req)
	return e.result, e.err
}

type fakePositionStore struct {
	domain.PositionStore
	open []*domain.Position
}

func (s *fakePositionStore) ListOpenByAccount(context.Context, string) ([]*domain.Position, error) {
	return s.open, nil
}

type passTx struct{}

func (passTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type stubOracle struct {
	verdict strategy.Verdict
	err     error
}

func (o *stubOracle) Assess(context.Context, domain.MarketSnapshot, *domain.Signal) (strategy.Verdict, error) {
	return o.verdict, o.err
}

type runnerFixture struct {
	runner   *Runner
	agents   *memAgentStore
	signals  *memSignalStore
	bus      *memBus
	exec     *fakeExecutor
	source   *fakeSource
	procseen *fakeProcessed
}

func newRunnerFixture(t *testing.T, markets []domain.MarketSnapshot, verdict strategy.Verdict) *runnerFixture {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	a := testAgent()

	source := &fakeSource{markets: markets}
	signals := newMemSignalStore()
	agents := newMemAgentStore(a)
	procseen := newFakeProcessed()
	bus := &memBus{}
	exec := &fakeExecutor{result: domain.OrderResult{Success: true, OrderID: "ord-1", Status: domain.OrderSubmitted}}

	strat := strategy.NewOracleLatency(a.Config, &stubOracle{verdict: verdict}, logger).
		WithNow(func() time.Time { return testNow })
	risk := strategy.NewRiskManager(a.Config, &fakePositionStore{}, logger).
		WithNow(func() time.Time { return testNow })

	r := NewRunner(a, RunnerDeps{
		Strategy:  strat,
		Risk:      risk,
		Engine:    exec,
		Source:    source,
		Agents:    agents,
		Signals:   signals,
		Processed: procseen,
		Tx:        passTx{},
		Bus:       bus,
	}, logger).WithNow(func() time.Time { return testNow })

	return &runnerFixture{
		runner: r, agents: agents, signals: signals,
		bus: bus, exec: exec, source: source, procseen: procseen,
	}
}

func TestCycleExecutesVerifiedSignal(t *testing.T) {
	markets := []domain.MarketSnapshot{
		snapshot("mkt-1", 0.90, 12*time.Hour), // qualifies
		snapshot("mkt-2", 0.50, 12*time.Hour), // even odds, no favorite
	}
	f := newRunnerFixture(t, markets, strategy.Verdict{Confidence: 0.9, Reasoning: "ok", Source: "model"})

	require.NoError(t, f.runner.Cycle(context.Background()))

	// One signal detected, verified and executed.
	require.Len(t, f.exec.requests, 1)
	req := f.exec.requests[0]
	assert.Equal(t, "mkt-1", req.MarketID)
	assert.Equal(t, domain.OrderSideBuy, req.Side)
	assert.Equal(t, domain.OrderTypeFAK, req.OrderType)

	sig := f.signals.get(req.SignalID)
	require.NotNil(t, sig)
	assert.Equal(t, domain.SignalExecuted, sig.Status)
	require.NotNil(t, sig.ExecutedAt)

	assert.Equal(t, []domain.EventType{
		domain.EventSignalDetected,
		domain.EventSignalVerified,
	}, f.bus.types())

	// Both markets marked processed regardless of signal.
	seen, err := f.procseen.IsProcessed(context.Background(), "agent-1", "mkt-2")
	require.NoError(t, err)
	assert.True(t, seen)

	// Heartbeat stamped.
	a, err := f.agents.Get(context.Background(), "agent-1")
	require.NoError(t, err)
	require.NotNil(t, a.LastCycleAt)
	assert.Equal(t, testNow, *a.LastCycleAt)
}

func TestCycleRejectsLowConfidence(t *testing.T) {
	markets := []domain.MarketSnapshot{snapshot("mkt-1", 0.90, 12*time.Hour)}
	f := newRunnerFixture(t, markets, strategy.Verdict{Confidence: 0.4, Reasoning: "doubtful", Source: "model"})

	require.NoError(t, f.runner.Cycle(context.Background()))

	assert.Empty(t, f.exec.requests)
	assert.Contains(t, f.bus.types(), domain.EventSignalRejected)
}

func TestCycleSkipsProcessedMarkets(t *testing.T) {
	markets := []domain.MarketSnapshot{snapshot("mkt-1", 0.90, 12*time.Hour)}
	f := newRunnerFixture(t, markets, strategy.Verdict{Confidence: 0.9, Source: "model"})

	require.NoError(t, f.runner.Cycle(context.Background()))
	require.Len(t, f.exec.requests, 1)

	// Second cycle sees the same market and does nothing.
	require.NoError(t, f.runner.Cycle(context.Background()))
	assert.Len(t, f.exec.requests, 1)
}

func TestCycleRiskBlockedLeavesSignalVerified(t *testing.T) {
	markets := []domain.MarketSnapshot{snapshot("mkt-1", 0.90, 12*time.Hour)}
	f := newRunnerFixture(t, markets, strategy.Verdict{Confidence: 0.9, Source: "model"})

	// Fill the position limit.
	open := make([]*domain.Position, testParams().MaxPositions)
	for i := range open {
		open[i] = &domain.Position{ID: fmt.Sprintf("pos-%d", i), Size: 10, CurrentPrice: 0.5}
	}
	f.runner.risk = strategy.NewRiskManager(testParams(), &fakePositionStore{open: open}, slog.New(slog.DiscardHandler)).
		WithNow(func() time.Time { return testNow })

	require.NoError(t, f.runner.Cycle(context.Background()))

	assert.Empty(t, f.exec.requests)
	var sig *domain.Signal
	for _, s := range f.signals.signals {
		sig = s
	}
	require.NotNil(t, sig)
	assert.Equal(t, domain.SignalVerified, sig.Status)
}

func TestCycleListFailurePropagates(t *testing.T) {
	f := newRunnerFixture(t, nil, strategy.Verdict{})
	f.source.listErr = domain.ErrSourceTripped

	err := f.runner.Cycle(context.Background())
	require.ErrorIs(t, err, domain.ErrSourceTripped)
}
