package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/voidlabs/voidbot/internal/agent"
	"github.com/voidlabs/voidbot/internal/domain"
)

// AgentMode runs the full trading loop: recovers in-flight orders, starts
// every non-stopped agent under the orchestrator, opens a fill stream per
// trading account and runs the event relay and archiver until the context is
// cancelled.
func (a *App) AgentMode(ctx context.Context, deps *Dependencies) error {
	recovered, err := deps.Engine.RecoverPending(ctx)
	if err != nil {
		return fmt.Errorf("app: recover pending orders: %w", err)
	}
	if recovered > 0 {
		a.logger.InfoContext(ctx, "recovered in-flight orders", slog.Int("count", recovered))
	}

	orch := agent.NewOrchestrator(
		deps.Agents, deps.Locks, deps.Bus, deps.Engine,
		runnerFactory(a.cfg, deps, a.logger, false), a.logger,
	)
	started, err := a.startAgents(ctx, orch, deps)
	if err != nil {
		return err
	}
	if started == 0 {
		a.logger.WarnContext(ctx, "no agents started, waiting for shutdown")
	}

	g, gctx := errgroup.WithContext(ctx)

	if deps.Relay != nil {
		g.Go(func() error { return deps.Relay.Run(gctx) })
	}
	if deps.Archiver != nil {
		g.Go(func() error { return deps.Archiver.Run(gctx) })
	}
	if err := a.openFillStreams(gctx, deps); err != nil {
		a.logger.WarnContext(ctx, "fill streams degraded", slog.String("error", err.Error()))
	}

	g.Go(func() error {
		<-gctx.Done()
		return gctx.Err()
	})

	err = g.Wait()
	orch.Shutdown(context.WithoutCancel(ctx))
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// MonitorMode detects and verifies signals without placing orders. No fill
// streams or order recovery: nothing trades.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	orch := agent.NewOrchestrator(
		deps.Agents, deps.Locks, deps.Bus, deps.Engine,
		runnerFactory(a.cfg, deps, a.logger, true), a.logger,
	)
	started, err := a.startAgents(ctx, orch, deps)
	if err != nil {
		return err
	}
	a.logger.InfoContext(ctx, "monitoring", slog.Int("agents", started))

	g, gctx := errgroup.WithContext(ctx)
	if deps.Relay != nil {
		g.Go(func() error { return deps.Relay.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		return gctx.Err()
	})

	err = g.Wait()
	orch.Shutdown(context.WithoutCancel(ctx))
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// startAgents brings every non-stopped agent online: agents left in running
// state by a previous process resume first, then idle, paused and errored
// ones start fresh. Agents locked by another instance are skipped.
func (a *App) startAgents(ctx context.Context, orch *agent.Orchestrator, deps *Dependencies) (int, error) {
	started, err := orch.ResumeRunning(ctx)
	if err != nil {
		return 0, fmt.Errorf("app: resume running agents: %w", err)
	}

	for _, status := range []domain.AgentStatus{domain.AgentIdle, domain.AgentPaused, domain.AgentError} {
		list, err := deps.Agents.ListByStatus(ctx, status)
		if err != nil {
			return started, fmt.Errorf("app: list %s agents: %w", status, err)
		}
		for _, ag := range list {
			switch err := orch.Start(ctx, ag.ID); {
			case err == nil:
				started++
			case errors.Is(err, domain.ErrLockHeld):
				a.logger.InfoContext(ctx, "agent held elsewhere, skipping",
					slog.String("agent_id", ag.ID))
			default:
				a.logger.ErrorContext(ctx, "start agent",
					slog.String("agent_id", ag.ID),
					slog.String("error", err.Error()))
			}
		}
	}
	return started, nil
}

// openFillStreams opens one CLOB user-channel stream per distinct trading
// account across the active agents. Stream close is tied to ctx.
func (a *App) openFillStreams(ctx context.Context, deps *Dependencies) error {
	agents, err := deps.Agents.List(ctx, domain.ListOpts{Limit: 500})
	if err != nil {
		return fmt.Errorf("list agents: %w", err)
	}

	accounts := make(map[string]struct{})
	for _, ag := range agents {
		if ag.Status == domain.AgentStopped {
			continue
		}
		accounts[ag.AccountID] = struct{}{}
	}

	var failed []string
	for accountID := range accounts {
		handler := func(fill domain.Fill) {
			if err := deps.Fills.HandleFill(ctx, fill); err != nil {
				a.logger.ErrorContext(ctx, "handle fill",
					slog.String("external_order_id", fill.ExternalOrderID),
					slog.String("error", err.Error()))
			}
		}
		stream, err := deps.Transports.Stream(ctx, accountID, handler)
		if err != nil {
			a.logger.ErrorContext(ctx, "open fill stream",
				slog.String("account_id", accountID),
				slog.String("error", err.Error()))
			failed = append(failed, accountID)
			continue
		}
		a.logger.InfoContext(ctx, "fill stream open", slog.String("account_id", accountID))
		go func() {
			<-ctx.Done()
			stream.Close()
		}()
	}
	if len(failed) > 0 {
		return fmt.Errorf("%d of %d fill streams failed", len(failed), len(accounts))
	}
	return nil
}
