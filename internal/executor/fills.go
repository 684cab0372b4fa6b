package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/voidlabs/voidbot/internal/domain"
)

// FillHandler applies exchange fill reports to orders and positions. The
// order update and the position update happen in one transaction so a crash
// cannot leave a filled order without its exposure.
type FillHandler struct {
	orders    domain.OrderStore
	positions domain.PositionStore
	tx        domain.Transactor
	bus       domain.EventBus
	now       func() time.Time
	logger    *slog.Logger
}

// NewFillHandler creates a FillHandler.
func NewFillHandler(orders domain.OrderStore, positions domain.PositionStore, tx domain.Transactor, bus domain.EventBus, logger *slog.Logger) *FillHandler {
	return &FillHandler{
		orders:    orders,
		positions: positions,
		tx:        tx,
		bus:       bus,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger.With(slog.String("component", "fills")),
	}
}

// WithNow overrides the clock. Test hook.
func (h *FillHandler) WithNow(now func() time.Time) *FillHandler {
	h.now = now
	return h
}

// HandleFill folds one fill report into the matching order and its position.
// Fills for unknown orders are logged and dropped; they belong to another
// process trading the same account.
func (h *FillHandler) HandleFill(ctx context.Context, fill domain.Fill) error {
	order, err := h.orders.GetByExternalID(ctx, fill.ExternalOrderID)
	if errors.Is(err, domain.ErrNotFound) {
		h.logger.Debug("fill for unknown order ignored",
			slog.String("external_order_id", fill.ExternalOrderID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup order for fill: %w", err)
	}
	if order.Status.Terminal() {
		h.logger.Warn("fill for terminal order ignored",
			slog.String("order_id", order.ID),
			slog.String("status", string(order.Status)))
		return nil
	}

	now := h.now()
	err = h.tx.WithinTx(ctx, func(ctx context.Context) error {
		prevFilled := order.FilledSize
		order.FilledSize += fill.Size
		if order.FilledSize > 0 {
			order.AvgFillPrice = (order.AvgFillPrice*prevFilled + fill.Price*fill.Size) / order.FilledSize
		}

		next := domain.OrderPartial
		if order.FilledSize >= order.Size {
			next = domain.OrderFilled
			t := now
			order.FilledAt = &t
		}
		if order.Status != next {
			if !order.Status.CanTransitionTo(next) {
				return fmt.Errorf("order %s %s -> %s: %w", order.ID, order.Status, next, domain.ErrInvalidTransition)
			}
			order.Status = next
		}
		if err := h.orders.Update(ctx, order); err != nil {
			return fmt.Errorf("persist filled order: %w", err)
		}
		return h.applyToPosition(ctx, order, fill, now)
	})
	if err != nil {
		return err
	}

	h.logger.Info("fill applied",
		slog.String("order_id", order.ID),
		slog.Float64("fill_size", fill.Size),
		slog.Float64("fill_price", fill.Price),
		slog.String("status", string(order.Status)))
	if order.Status == domain.OrderFilled && h.bus != nil {
		ev := domain.NewEvent(domain.EventOrderFilled, "", map[string]string{
			"order_id":  order.ID,
			"market_id": order.MarketID,
		})
		if err := h.bus.Publish(ctx, ev); err != nil {
			h.logger.Warn("event publish failed", slog.String("error", err.Error()))
		}
	}
	return nil
}

// applyToPosition updates or opens the position matching the fill.
func (h *FillHandler) applyToPosition(ctx context.Context, order *domain.Order, fill domain.Fill, now time.Time) error {
	side := order.Outcome
	if side == "" {
		side = domain.OutcomeYes
	}
	pos, err := h.positions.GetOpen(ctx, order.AccountID, order.MarketID, side)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		if order.Side == domain.OrderSideSell {
			return fmt.Errorf("sell fill without open position on market %s", order.MarketID)
		}
		pos = &domain.Position{
			ID:            uuid.NewString(),
			AccountID:     order.AccountID,
			MarketID:      order.MarketID,
			TokenID:       fill.TokenID,
			Side:          side,
			AvgEntryPrice: fill.Price,
			CurrentPrice:  fill.Price,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		pos.ApplyFill(order.Side, fill.Price, fill.Size, now)
		return h.positions.Create(ctx, pos)
	case err != nil:
		return fmt.Errorf("lookup position: %w", err)
	}
	pos.ApplyFill(order.Side, fill.Price, fill.Size, now)
	return h.positions.Update(ctx, pos)
}
