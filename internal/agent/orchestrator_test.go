package agent

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voidlabs/voidbot/internal/domain"
	"github.com/voidlabs/voidbot/internal/strategy"
)

type fakeLease struct {
	mu       sync.Mutex
	unlocked bool
}

func (l *fakeLease) Unlock(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.unlocked = true
	return nil
}

func (l *fakeLease) Refresh(context.Context, time.Duration) error { return nil }

type fakeLockManager struct {
	mu    sync.Mutex
	held  map[string]bool
	lease *fakeLease
}

func newFakeLockManager() *fakeLockManager {
	return &fakeLockManager{held: make(map[string]bool)}
}

func (lm *fakeLockManager) Acquire(_ context.Context, key string, _ time.Duration) (domain.Unlocker, error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	if lm.held[key] {
		return nil, domain.ErrLockHeld
	}
	lm.lease = &fakeLease{}
	return lm.lease, nil
}

type fakeCanceller struct {
	mu       sync.Mutex
	accounts []string
}

func (c *fakeCanceller) CancelAllOrders(_ context.Context, accountID string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accounts = append(c.accounts, accountID)
	return 0, nil
}

type orchFixture struct {
	orch      *Orchestrator
	agents    *memAgentStore
	locks     *fakeLockManager
	bus       *memBus
	canceller *fakeCanceller
}

func newOrchFixture(t *testing.T, agents ...*domain.Agent) *orchFixture {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	store := newMemAgentStore(agents...)
	locks := newFakeLockManager()
	bus := &memBus{}
	canceller := &fakeCanceller{}

	factory := func(a *domain.Agent) *Runner {
		strat := strategy.NewOracleLatency(a.Config, &stubOracle{}, logger)
		risk := strategy.NewRiskManager(a.Config, &fakePositionStore{}, logger)
		return NewRunner(a, RunnerDeps{
			Strategy:  strat,
			Risk:      risk,
			Engine:    &fakeExecutor{},
			Source:    &fakeSource{},
			Agents:    store,
			Signals:   newMemSignalStore(),
			Processed: newFakeProcessed(),
			Tx:        passTx{},
			Bus:       bus,
		}, logger)
	}

	orch := NewOrchestrator(store, locks, bus, canceller, factory, logger).
		WithNow(func() time.Time { return testNow })
	return &orchFixture{orch: orch, agents: store, locks: locks, bus: bus, canceller: canceller}
}

func (f *orchFixture) status(t *testing.T, id string) domain.AgentStatus {
	t.Helper()
	a, err := f.agents.Get(context.Background(), id)
	require.NoError(t, err)
	return a.Status
}

func TestStartAndStop(t *testing.T) {
	f := newOrchFixture(t, testAgent())
	ctx := context.Background()

	require.NoError(t, f.orch.Start(ctx, "agent-1"))
	assert.Equal(t, domain.AgentRunning, f.status(t, "agent-1"))
	assert.Contains(t, f.bus.types(), domain.EventAgentStarted)

	// A second start is rejected while the runner is live.
	assert.ErrorIs(t, f.orch.Start(ctx, "agent-1"), domain.ErrAgentRunning)

	require.NoError(t, f.orch.Stop(ctx, "agent-1"))
	assert.Equal(t, domain.AgentStopped, f.status(t, "agent-1"))
	assert.Equal(t, []string{"acct-1"}, f.canceller.accounts)
	assert.Contains(t, f.bus.types(), domain.EventAgentStopped)
	assert.True(t, f.locks.lease.unlocked)

	// Stopping again is a no-op, starting again is refused.
	require.NoError(t, f.orch.Stop(ctx, "agent-1"))
	assert.ErrorIs(t, f.orch.Start(ctx, "agent-1"), domain.ErrAgentStopped)
}

func TestPauseAndResume(t *testing.T) {
	f := newOrchFixture(t, testAgent())
	ctx := context.Background()

	require.NoError(t, f.orch.Start(ctx, "agent-1"))
	require.NoError(t, f.orch.Pause(ctx, "agent-1"))
	assert.Equal(t, domain.AgentPaused, f.status(t, "agent-1"))
	assert.Contains(t, f.bus.types(), domain.EventAgentPaused)

	require.NoError(t, f.orch.Resume(ctx, "agent-1"))
	assert.Equal(t, domain.AgentRunning, f.status(t, "agent-1"))
	assert.Contains(t, f.bus.types(), domain.EventAgentResumed)

	require.NoError(t, f.orch.Stop(ctx, "agent-1"))
}

func TestStartLockHeld(t *testing.T) {
	f := newOrchFixture(t, testAgent())
	f.locks.held[agentLockKey("agent-1")] = true

	err := f.orch.Start(context.Background(), "agent-1")
	assert.ErrorIs(t, err, domain.ErrLockHeld)
	assert.Equal(t, domain.AgentIdle, f.status(t, "agent-1"))
}

func TestResumeRunning(t *testing.T) {
	running := testAgent()
	running.Status = domain.AgentRunning
	idle := testAgent()
	idle.ID = "agent-2"

	f := newOrchFixture(t, running, idle)

	n, err := f.orch.ResumeRunning(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.ElementsMatch(t, []string{"agent-1"}, f.orch.Running())

	f.orch.Shutdown(context.Background())
	assert.Empty(t, f.orch.Running())
	// Status stays RUNNING so the next boot resumes it.
	assert.Equal(t, domain.AgentRunning, f.status(t, "agent-1"))
}
