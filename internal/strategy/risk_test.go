package strategy

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voidlabs/voidbot/internal/domain"
)

type fakePositionStore struct {
	open []*domain.Position
}

func (f *fakePositionStore) Create(context.Context, *domain.Position) error { return nil }
func (f *fakePositionStore) Get(context.Context, string) (*domain.Position, error) {
	return nil, domain.ErrNotFound
}
func (f *fakePositionStore) GetOpen(context.Context, string, string, domain.Outcome) (*domain.Position, error) {
	return nil, domain.ErrNotFound
}
func (f *fakePositionStore) Update(context.Context, *domain.Position) error { return nil }
func (f *fakePositionStore) ListOpenByAccount(context.Context, string) ([]*domain.Position, error) {
	return f.open, nil
}

func openPosition(size, price float64) *domain.Position {
	return &domain.Position{Size: size, CurrentPrice: price}
}

func newTestRisk(store domain.PositionStore) *RiskManager {
	params := testParams()
	params.CooldownAfterTradeSeconds = 60
	return NewRiskManager(params, store, slog.New(slog.DiscardHandler)).
		WithNow(func() time.Time { return testNow })
}

func TestWithinLimits(t *testing.T) {
	t.Run("allows when under limits", func(t *testing.T) {
		r := newTestRisk(&fakePositionStore{})
		ok, reason, err := r.WithinLimits(context.Background(), "acct-1")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Empty(t, reason)
	})

	t.Run("blocks at max positions", func(t *testing.T) {
		store := &fakePositionStore{}
		for i := 0; i < 10; i++ {
			store.open = append(store.open, openPosition(10, 0.9))
		}
		r := newTestRisk(store)
		ok, reason, err := r.WithinLimits(context.Background(), "acct-1")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Contains(t, reason, "max positions")
	})

	t.Run("blocks during cooldown", func(t *testing.T) {
		r := newTestRisk(&fakePositionStore{})
		now := testNow
		r.WithNow(func() time.Time { return now })
		r.RecordTrade()

		now = testNow.Add(30 * time.Second)
		ok, reason, err := r.WithinLimits(context.Background(), "acct-1")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Contains(t, reason, "cooldown")

		now = testNow.Add(61 * time.Second)
		ok, _, err = r.WithinLimits(context.Background(), "acct-1")
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestPositionSize(t *testing.T) {
	tests := []struct {
		name       string
		open       []*domain.Position
		confidence float64
		want       float64
	}{
		{
			name:       "scales with confidence",
			confidence: 0.85,
			want:       85,
		},
		{
			name:       "confidence clamped at one",
			confidence: 1.4,
			want:       100,
		},
		{
			name: "capped by remaining capacity",
			// 950 USD already deployed against a 1000 USD cap.
			open:       []*domain.Position{openPosition(1000, 0.95)},
			confidence: 0.9,
			want:       50,
		},
		{
			name:       "floored at zero when over-deployed",
			open:       []*domain.Position{openPosition(1200, 0.9)},
			confidence: 0.9,
			want:       0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRisk(&fakePositionStore{open: tt.open})
			got, err := r.PositionSize(context.Background(), "acct-1", tt.confidence)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}
