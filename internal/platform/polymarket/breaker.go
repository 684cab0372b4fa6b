package polymarket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/voidlabs/voidbot/internal/domain"
)

// BreakerSource wraps a MarketSource with a circuit breaker so a flapping
// upstream API degrades to fast failures instead of stalling scan cycles.
type BreakerSource struct {
	inner   domain.MarketSource
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerSource wraps src. The breaker opens after five consecutive
// failures and probes again after 30 seconds.
func NewBreakerSource(src domain.MarketSource, logger *slog.Logger) *BreakerSource {
	log := logger.With(slog.String("component", "polymarket.breaker"))
	settings := gobreaker.Settings{
		Name:    "gamma",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("market source breaker state change",
				slog.String("name", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	}
	return &BreakerSource{inner: src, breaker: gobreaker.NewCircuitBreaker(settings)}
}

func (b *BreakerSource) ListMarkets(ctx context.Context, filter domain.MarketFilter) ([]domain.MarketSnapshot, error) {
	out, err := b.breaker.Execute(func() (any, error) {
		return b.inner.ListMarkets(ctx, filter)
	})
	if err != nil {
		return nil, b.mapErr(err)
	}
	return out.([]domain.MarketSnapshot), nil
}

func (b *BreakerSource) GetMarket(ctx context.Context, id string) (domain.MarketSnapshot, error) {
	out, err := b.breaker.Execute(func() (any, error) {
		return b.inner.GetMarket(ctx, id)
	})
	if err != nil {
		return domain.MarketSnapshot{}, b.mapErr(err)
	}
	return out.(domain.MarketSnapshot), nil
}

func (b *BreakerSource) mapErr(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %s", domain.ErrSourceTripped, err)
	}
	return err
}
