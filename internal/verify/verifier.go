// Package verify implements AI-backed outcome verification for detected
// signals using an OpenAI-compatible chat completions API.
package verify

import (
	"context"

	"github.com/voidlabs/voidbot/internal/domain"
	"github.com/voidlabs/voidbot/internal/strategy"
)

// Limiter throttles outgoing oracle calls. Implemented by the Redis rate
// limiter in production; a nil limiter means no throttling.
type Limiter interface {
	Wait(ctx context.Context, key string) error
}

// rateLimitKey groups all verification calls under one throttle bucket.
const rateLimitKey = "verify:oracle"

// Limited wraps an oracle with a call-rate throttle.
type Limited struct {
	inner   strategy.VerificationOracle
	limiter Limiter
}

// NewLimited wraps oracle so every assessment first waits on the limiter.
func NewLimited(oracle strategy.VerificationOracle, limiter Limiter) *Limited {
	return &Limited{inner: oracle, limiter: limiter}
}

func (l *Limited) Assess(ctx context.Context, m domain.MarketSnapshot, s *domain.Signal) (strategy.Verdict, error) {
	if l.limiter != nil {
		if err := l.limiter.Wait(ctx, rateLimitKey); err != nil {
			return strategy.Verdict{}, err
		}
	}
	return l.inner.Assess(ctx, m, s)
}
