package executor

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voidlabs/voidbot/internal/domain"
)

type memPositionStore struct {
	positions map[string]*domain.Position
}

func newMemPositionStore() *memPositionStore {
	return &memPositionStore{positions: map[string]*domain.Position{}}
}

func (m *memPositionStore) Create(_ context.Context, p *domain.Position) error {
	cp := *p
	m.positions[p.ID] = &cp
	return nil
}

func (m *memPositionStore) Get(_ context.Context, id string) (*domain.Position, error) {
	p, ok := m.positions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memPositionStore) GetOpen(_ context.Context, accountID, marketID string, side domain.Outcome) (*domain.Position, error) {
	for _, p := range m.positions {
		if p.AccountID == accountID && p.MarketID == marketID && p.Side == side && !p.IsClosed() {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memPositionStore) Update(_ context.Context, p *domain.Position) error {
	if _, ok := m.positions[p.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *p
	m.positions[p.ID] = &cp
	return nil
}

func (m *memPositionStore) ListOpenByAccount(_ context.Context, accountID string) ([]*domain.Position, error) {
	var out []*domain.Position
	for _, p := range m.positions {
		if p.AccountID == accountID && !p.IsClosed() {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

// passThroughTx runs fn directly; enough for in-memory stores.
type passThroughTx struct{}

func (passThroughTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func submittedOrder(store *memOrderStore) *domain.Order {
	o := &domain.Order{
		ID:              "ord-1",
		AccountID:       "acct-1",
		MarketID:        "mkt-1",
		ExternalOrderID: "ext-1",
		TokenID:         "tok-yes",
		Outcome:         domain.OutcomeYes,
		Side:            domain.OrderSideBuy,
		Price:           0.93,
		Size:            100,
		Status:          domain.OrderSubmitted,
	}
	_ = store.Create(context.Background(), o)
	return o
}

func newTestFillHandler(orders *memOrderStore, positions *memPositionStore) *FillHandler {
	return NewFillHandler(orders, positions, passThroughTx{}, nil, slog.New(slog.DiscardHandler)).
		WithNow(func() time.Time { return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC) })
}

func fill(size, price float64) domain.Fill {
	return domain.Fill{
		ExternalOrderID: "ext-1",
		TokenID:         "tok-yes",
		Side:            domain.OrderSideBuy,
		Price:           price,
		Size:            size,
	}
}

func TestHandleFill(t *testing.T) {
	ctx := context.Background()

	t.Run("partial then full fill", func(t *testing.T) {
		orders := newMemOrderStore()
		positions := newMemPositionStore()
		submittedOrder(orders)
		h := newTestFillHandler(orders, positions)

		require.NoError(t, h.HandleFill(ctx, fill(40, 0.92)))
		o, err := orders.Get(ctx, "ord-1")
		require.NoError(t, err)
		assert.Equal(t, domain.OrderPartial, o.Status)
		assert.Equal(t, 40.0, o.FilledSize)

		require.NoError(t, h.HandleFill(ctx, fill(60, 0.94)))
		o, err = orders.Get(ctx, "ord-1")
		require.NoError(t, err)
		assert.Equal(t, domain.OrderFilled, o.Status)
		assert.Equal(t, 100.0, o.FilledSize)
		assert.InDelta(t, (40*0.92+60*0.94)/100, o.AvgFillPrice, 1e-9)
		assert.NotNil(t, o.FilledAt)

		pos, err := positions.GetOpen(ctx, "acct-1", "mkt-1", domain.OutcomeYes)
		require.NoError(t, err)
		assert.Equal(t, 100.0, pos.Size)
		assert.InDelta(t, (40*0.92+60*0.94)/100, pos.AvgEntryPrice, 1e-9)
	})

	t.Run("unknown order ignored", func(t *testing.T) {
		h := newTestFillHandler(newMemOrderStore(), newMemPositionStore())
		require.NoError(t, h.HandleFill(ctx, fill(40, 0.92)))
	})

	t.Run("fill on terminal order ignored", func(t *testing.T) {
		orders := newMemOrderStore()
		positions := newMemPositionStore()
		o := submittedOrder(orders)
		o.Status = domain.OrderCancelled
		require.NoError(t, orders.Update(ctx, o))

		h := newTestFillHandler(orders, positions)
		require.NoError(t, h.HandleFill(ctx, fill(40, 0.92)))
		assert.Empty(t, positions.positions)
	})

	t.Run("sell fill realises pnl", func(t *testing.T) {
		orders := newMemOrderStore()
		positions := newMemPositionStore()
		o := submittedOrder(orders)
		o.Side = domain.OrderSideSell
		o.Size = 50
		require.NoError(t, orders.Update(ctx, o))

		existing := &domain.Position{
			ID:            "pos-1",
			AccountID:     "acct-1",
			MarketID:      "mkt-1",
			TokenID:       "tok-yes",
			Side:          domain.OutcomeYes,
			Size:          50,
			AvgEntryPrice: 0.90,
			CurrentPrice:  0.90,
		}
		require.NoError(t, positions.Create(ctx, existing))

		h := newTestFillHandler(orders, positions)
		require.NoError(t, h.HandleFill(ctx, func() domain.Fill {
			f := fill(50, 0.96)
			f.Side = domain.OrderSideSell
			return f
		}()))

		saved, err := positions.Get(ctx, "pos-1")
		require.NoError(t, err)
		assert.True(t, saved.IsClosed())
		assert.InDelta(t, 50*(0.96-0.90), saved.RealizedPnl, 1e-9)
	})
}
