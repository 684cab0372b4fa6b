// Package executor submits orders to the exchange with bounded retries and
// keeps the persisted order lifecycle in sync with what the exchange accepted.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/voidlabs/voidbot/internal/domain"
)

// Engine turns order requests into exchange submissions. One engine serves
// all accounts; transports are resolved per account through the factory.
type Engine struct {
	orders     domain.OrderStore
	transports domain.TransportFactory
	bus        domain.EventBus
	policy     Policy
	now        func() time.Time
	logger     *slog.Logger
}

// NewEngine creates an execution engine.
func NewEngine(orders domain.OrderStore, transports domain.TransportFactory, bus domain.EventBus, policy Policy, logger *slog.Logger) *Engine {
	return &Engine{
		orders:     orders,
		transports: transports,
		bus:        bus,
		policy:     policy,
		now:        func() time.Time { return time.Now().UTC() },
		logger:     logger.With(slog.String("component", "executor")),
	}
}

// WithNow overrides the clock. Test hook.
func (e *Engine) WithNow(now func() time.Time) *Engine {
	e.now = now
	return e
}

// ExecuteOrder persists the request, submits it with retries, and returns the
// outcome. At most one non-terminal order may exist per (account, signal);
// a duplicate request returns ErrDuplicateOrder without touching the exchange.
func (e *Engine) ExecuteOrder(ctx context.Context, accountID string, req domain.OrderRequest) (domain.OrderResult, error) {
	log := e.logger.With(
		slog.String("account_id", accountID),
		slog.String("market_id", req.MarketID),
		slog.String("signal_id", req.SignalID))

	if req.SignalID != "" {
		existing, err := e.orders.GetActiveBySignal(ctx, accountID, req.SignalID)
		switch {
		case err == nil:
			log.Warn("duplicate execution suppressed", slog.String("order_id", existing.ID))
			return domain.OrderResult{OrderID: existing.ID, Status: existing.Status},
				fmt.Errorf("signal %s: %w", req.SignalID, domain.ErrDuplicateOrder)
		case !errors.Is(err, domain.ErrNotFound):
			return domain.OrderResult{}, fmt.Errorf("check active order: %w", err)
		}
	}

	order := &domain.Order{
		ID:        uuid.NewString(),
		AccountID: accountID,
		MarketID:  req.MarketID,
		SignalID:  req.SignalID,
		TokenID:   req.TokenID,
		Outcome:   req.Outcome,
		Side:      req.Side,
		OrderType: req.OrderType,
		Price:     req.Price,
		Size:      req.Size,
		Status:    domain.OrderPending,
		CreatedAt: e.now(),
	}
	if err := e.orders.Create(ctx, order); err != nil {
		return domain.OrderResult{}, fmt.Errorf("persist pending order: %w", err)
	}

	transport, err := e.transports.ForAccount(ctx, accountID)
	if err != nil {
		e.reject(ctx, order, 0, err)
		return e.result(order, false), fmt.Errorf("resolve transport: %w", err)
	}

	start := e.now()
	sub, attempts, err := e.submitWithRetry(ctx, log, transport, domain.OrderSpec{
		TokenID:   req.TokenID,
		Side:      req.Side,
		OrderType: req.OrderType,
		Price:     req.Price,
		Size:      req.Size,
	})
	order.Attempts = attempts
	order.LatencyMs = e.now().Sub(start).Milliseconds()

	if err != nil {
		e.reject(ctx, order, attempts, err)
		e.publish(ctx, domain.EventOrderFailed, order, err.Error())
		return e.result(order, false), err
	}

	now := e.now()
	order.ExternalOrderID = sub.ExternalOrderID
	if sub.AcceptedPrice > 0 {
		order.Price = sub.AcceptedPrice
	}
	order.SubmittedAt = &now
	order.Status = domain.OrderSubmitted
	if err := e.orders.Update(ctx, order); err != nil {
		return e.result(order, false), fmt.Errorf("persist submitted order: %w", err)
	}

	log.Info("order submitted",
		slog.String("order_id", order.ID),
		slog.String("external_order_id", order.ExternalOrderID),
		slog.Int("attempts", attempts),
		slog.Int64("latency_ms", order.LatencyMs))
	e.publish(ctx, domain.EventOrderSubmitted, order, "")
	return e.result(order, true), nil
}

// submitWithRetry runs the bounded retry loop. It returns the accepted
// submission and the number of attempts actually made.
func (e *Engine) submitWithRetry(ctx context.Context, log *slog.Logger, transport domain.OrderTransport, spec domain.OrderSpec) (domain.Submission, int, error) {
	var lastErr error
	for attempt := 1; attempt <= e.policy.MaxAttempts; attempt++ {
		sub, err := transport.Submit(ctx, spec)
		if err == nil {
			return sub, attempt, nil
		}
		lastErr = err

		class := classify(err)
		if class == classFatal {
			log.Warn("order submission failed fatally",
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()))
			return domain.Submission{}, attempt, err
		}
		log.Warn("order submission failed, retrying",
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()))
		if attempt == e.policy.MaxAttempts {
			break
		}
		if err := sleep(ctx, e.policy.delay(class, attempt)); err != nil {
			return domain.Submission{}, attempt, err
		}
	}
	return domain.Submission{}, e.policy.MaxAttempts, fmt.Errorf("retries exhausted: %w", lastErr)
}

// CancelOrder cancels one open order on the exchange and records the result.
func (e *Engine) CancelOrder(ctx context.Context, orderID string) error {
	order, err := e.orders.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Status.Terminal() {
		return nil
	}
	if order.ExternalOrderID != "" {
		transport, err := e.transports.ForAccount(ctx, order.AccountID)
		if err != nil {
			return fmt.Errorf("resolve transport: %w", err)
		}
		if err := transport.Cancel(ctx, order.ExternalOrderID); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("cancel %s: %w", order.ExternalOrderID, err)
		}
	}
	now := e.now()
	order.Status = domain.OrderCancelled
	order.CancelledAt = &now
	if err := e.orders.Update(ctx, order); err != nil {
		return fmt.Errorf("persist cancelled order: %w", err)
	}
	e.publish(ctx, domain.EventOrderCancelled, order, "")
	return nil
}

// CancelAllOrders cancels every open order of the account. It keeps going on
// per-order failures and returns the number actually cancelled.
func (e *Engine) CancelAllOrders(ctx context.Context, accountID string) (int, error) {
	open, err := e.orders.ListOpenByAccount(ctx, accountID)
	if err != nil {
		return 0, fmt.Errorf("list open orders: %w", err)
	}
	var cancelled int
	var lastErr error
	for _, o := range open {
		if err := e.CancelOrder(ctx, o.ID); err != nil {
			e.logger.Error("cancel failed",
				slog.String("order_id", o.ID),
				slog.String("error", err.Error()))
			lastErr = err
			continue
		}
		cancelled++
	}
	return cancelled, lastErr
}

// RecoverPending marks orders stuck in PENDING from a previous run as
// rejected. They were never confirmed on the exchange; resubmission is the
// runner's decision, not the recovery path's.
func (e *Engine) RecoverPending(ctx context.Context) (int, error) {
	pending, err := e.orders.ListByStatus(ctx, domain.OrderPending, domain.ListOpts{Limit: 500})
	if err != nil {
		return 0, fmt.Errorf("list pending orders: %w", err)
	}
	for _, o := range pending {
		o.Status = domain.OrderRejected
		o.ErrorMessage = "orphaned pending order recovered at startup"
		if err := e.orders.Update(ctx, o); err != nil {
			return 0, fmt.Errorf("recover order %s: %w", o.ID, err)
		}
		e.logger.Warn("recovered orphaned order", slog.String("order_id", o.ID))
	}
	return len(pending), nil
}

func (e *Engine) reject(ctx context.Context, order *domain.Order, attempts int, cause error) {
	order.Status = domain.OrderRejected
	order.ErrorMessage = cause.Error()
	order.Attempts = attempts
	if err := e.orders.Update(ctx, order); err != nil {
		e.logger.Error("persist rejected order failed",
			slog.String("order_id", order.ID),
			slog.String("error", err.Error()))
	}
}

func (e *Engine) result(order *domain.Order, ok bool) domain.OrderResult {
	return domain.OrderResult{
		Success:         ok,
		OrderID:         order.ID,
		ExternalOrderID: order.ExternalOrderID,
		Status:          order.Status,
		Error:           order.ErrorMessage,
		Attempts:        order.Attempts,
		LatencyMs:       order.LatencyMs,
	}
}

func (e *Engine) publish(ctx context.Context, t domain.EventType, order *domain.Order, errMsg string) {
	if e.bus == nil {
		return
	}
	payload := map[string]string{
		"order_id":  order.ID,
		"market_id": order.MarketID,
		"status":    string(order.Status),
		"attempts":  strconv.Itoa(order.Attempts),
	}
	if errMsg != "" {
		payload["error"] = errMsg
	}
	if err := e.bus.Publish(ctx, domain.NewEvent(t, "", payload)); err != nil {
		e.logger.Warn("event publish failed", slog.String("type", string(t)), slog.String("error", err.Error()))
	}
}
