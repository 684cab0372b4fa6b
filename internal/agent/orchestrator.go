package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/voidlabs/voidbot/internal/domain"
	"github.com/voidlabs/voidbot/internal/strategy"
)

// OrderCanceller is the slice of the execution engine the orchestrator needs
// when stopping an agent.
type OrderCanceller interface {
	CancelAllOrders(ctx context.Context, accountID string) (int, error)
}

// initialLockTTL covers the runner's first cycle; the runner refreshes the
// lease on every cycle after that.
const initialLockTTL = 2 * time.Minute

// RunnerFactory builds a Runner for one agent.
type RunnerFactory func(a *domain.Agent) *Runner

// Orchestrator owns the lifecycle of every agent in this process. Each
// started agent holds a distributed lock so two processes never run the
// same agent concurrently.
type Orchestrator struct {
	agents  domain.AgentStore
	locks   domain.LockManager
	bus     domain.EventBus
	engine  OrderCanceller
	factory RunnerFactory
	now     strategy.NowFunc
	logger  *slog.Logger

	mu      sync.Mutex
	running map[string]*session
}

// session is one in-process runner.
type session struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(agents domain.AgentStore, locks domain.LockManager, bus domain.EventBus, engine OrderCanceller, factory RunnerFactory, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		agents:  agents,
		locks:   locks,
		bus:     bus,
		engine:  engine,
		factory: factory,
		now:     time.Now,
		logger:  logger.With(slog.String("component", "orchestrator")),
		running: make(map[string]*session),
	}
}

// WithNow overrides the clock for tests.
func (o *Orchestrator) WithNow(now strategy.NowFunc) *Orchestrator {
	o.now = now
	return o
}

func agentLockKey(id string) string { return "agent:" + id }

// Start launches the agent's runner. It returns ErrAgentRunning when the
// agent is already running in this process, ErrLockHeld when another
// process owns it, and ErrAgentStopped when the agent was stopped for good.
func (o *Orchestrator) Start(ctx context.Context, agentID string) error {
	o.mu.Lock()
	if _, ok := o.running[agentID]; ok {
		o.mu.Unlock()
		return domain.ErrAgentRunning
	}
	o.mu.Unlock()

	a, err := o.agents.Get(ctx, agentID)
	if err != nil {
		return err
	}
	if a.Status == domain.AgentStopped {
		return domain.ErrAgentStopped
	}

	lease, err := o.locks.Acquire(ctx, agentLockKey(agentID), initialLockTTL)
	if err != nil {
		return err
	}

	resumed := a.Status == domain.AgentPaused || a.Status == domain.AgentError
	if a.Status != domain.AgentRunning {
		if err := a.Transition(domain.AgentRunning, o.now()); err != nil {
			_ = lease.Unlock(ctx)
			return err
		}
	}
	if err := o.agents.Update(ctx, a); err != nil {
		_ = lease.Unlock(ctx)
		return fmt.Errorf("agent: update on start: %w", err)
	}

	eventType := domain.EventAgentStarted
	if resumed {
		eventType = domain.EventAgentResumed
	}
	o.publish(ctx, eventType, a.ID, nil)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sess := &session{cancel: cancel, done: make(chan struct{})}

	o.mu.Lock()
	o.running[agentID] = sess
	o.mu.Unlock()

	o.logger.InfoContext(ctx, "agent started",
		slog.String("agent_id", a.ID),
		slog.String("strategy", a.StrategyName),
		slog.Bool("resumed", resumed),
	)

	go o.supervise(runCtx, a, lease, sess)
	return nil
}

// supervise runs the runner to completion, releases the lock and records
// runner failures on the agent.
func (o *Orchestrator) supervise(ctx context.Context, a *domain.Agent, lease domain.Unlocker, sess *session) {
	defer close(sess.done)

	err := o.factory(a).Run(ctx, lease)

	unlockCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	if uerr := lease.Unlock(unlockCtx); uerr != nil {
		o.logger.Warn("lock release failed",
			slog.String("agent_id", a.ID),
			slog.String("error", uerr.Error()),
		)
	}
	cancel()

	o.mu.Lock()
	delete(o.running, a.ID)
	o.mu.Unlock()

	if err == nil {
		return
	}

	o.logger.Error("agent runner failed",
		slog.String("agent_id", a.ID),
		slog.String("error", err.Error()),
	)

	bg := context.WithoutCancel(ctx)
	fresh, gerr := o.agents.Get(bg, a.ID)
	if gerr != nil {
		return
	}
	fresh.ErrorMessage = err.Error()
	if fresh.Status != domain.AgentError {
		if terr := fresh.Transition(domain.AgentError, o.now()); terr != nil {
			o.publish(bg, domain.EventAgentError, a.ID, map[string]string{"error": err.Error()})
			return
		}
	}
	_ = o.agents.Update(bg, fresh)
	o.publish(bg, domain.EventAgentError, a.ID, map[string]string{"error": err.Error()})
}

// Stop cancels the agent's runner, cancels its open orders and marks it
// stopped. Stopping an already stopped agent is a no-op.
func (o *Orchestrator) Stop(ctx context.Context, agentID string) error {
	o.halt(ctx, agentID)

	a, err := o.agents.Get(ctx, agentID)
	if err != nil {
		return err
	}
	if a.Status == domain.AgentStopped {
		return nil
	}

	if n, cerr := o.engine.CancelAllOrders(ctx, a.AccountID); cerr != nil {
		o.logger.WarnContext(ctx, "cancel open orders on stop failed",
			slog.String("agent_id", agentID),
			slog.Int("cancelled", n),
			slog.String("error", cerr.Error()),
		)
	}

	if err := a.Transition(domain.AgentStopped, o.now()); err != nil {
		return err
	}
	if err := o.agents.Update(ctx, a); err != nil {
		return fmt.Errorf("agent: update on stop: %w", err)
	}
	o.publish(ctx, domain.EventAgentStopped, a.ID, nil)
	o.logger.InfoContext(ctx, "agent stopped", slog.String("agent_id", agentID))
	return nil
}

// Pause cancels the agent's runner but keeps it resumable.
func (o *Orchestrator) Pause(ctx context.Context, agentID string) error {
	o.halt(ctx, agentID)

	a, err := o.agents.Get(ctx, agentID)
	if err != nil {
		return err
	}
	if err := a.Transition(domain.AgentPaused, o.now()); err != nil {
		return err
	}
	if err := o.agents.Update(ctx, a); err != nil {
		return fmt.Errorf("agent: update on pause: %w", err)
	}
	o.publish(ctx, domain.EventAgentPaused, a.ID, nil)
	o.logger.InfoContext(ctx, "agent paused", slog.String("agent_id", agentID))
	return nil
}

// Resume restarts a paused or errored agent.
func (o *Orchestrator) Resume(ctx context.Context, agentID string) error {
	return o.Start(ctx, agentID)
}

// ResumeRunning restarts every agent the database says was running, typically
// at process boot after a crash or deploy. Agents locked by another process
// are skipped.
func (o *Orchestrator) ResumeRunning(ctx context.Context) (int, error) {
	agents, err := o.agents.ListByStatus(ctx, domain.AgentRunning)
	if err != nil {
		return 0, fmt.Errorf("agent: list running: %w", err)
	}

	resumed := 0
	for _, a := range agents {
		err := o.Start(ctx, a.ID)
		switch {
		case err == nil:
			resumed++
		case errors.Is(err, domain.ErrLockHeld):
			o.logger.InfoContext(ctx, "agent held by another process",
				slog.String("agent_id", a.ID),
			)
		default:
			o.logger.ErrorContext(ctx, "agent resume failed",
				slog.String("agent_id", a.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return resumed, nil
}

// Shutdown cancels every in-process runner without transitioning agent
// status, so ResumeRunning picks them up on the next boot.
func (o *Orchestrator) Shutdown(ctx context.Context) {
	o.mu.Lock()
	sessions := make(map[string]*session, len(o.running))
	for id, s := range o.running {
		sessions[id] = s
	}
	o.mu.Unlock()

	for id, s := range sessions {
		s.cancel()
		select {
		case <-s.done:
		case <-ctx.Done():
			o.logger.Warn("shutdown timed out waiting for runner",
				slog.String("agent_id", id),
			)
		}
	}
}

// Running lists the agent IDs with an in-process runner.
func (o *Orchestrator) Running() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	ids := make([]string, 0, len(o.running))
	for id := range o.running {
		ids = append(ids, id)
	}
	return ids
}

// halt cancels the agent's in-process runner and waits for it to exit.
func (o *Orchestrator) halt(ctx context.Context, agentID string) {
	o.mu.Lock()
	sess, ok := o.running[agentID]
	o.mu.Unlock()
	if !ok {
		return
	}
	sess.cancel()
	select {
	case <-sess.done:
	case <-ctx.Done():
	}
}

func (o *Orchestrator) publish(ctx context.Context, t domain.EventType, agentID string, payload map[string]string) {
	if o.bus == nil {
		return
	}
	if err := o.bus.Publish(ctx, domain.NewEvent(t, agentID, payload)); err != nil {
		o.logger.WarnContext(ctx, "event publish failed",
			slog.String("event", string(t)),
			slog.String("error", err.Error()),
		)
	}
}
