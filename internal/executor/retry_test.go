package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/voidlabs/voidbot/internal/domain"
)

func TestClassify(t *testing.T) {
	assert.Equal(t, classFatal, classify(domain.ErrInsufficientFunds))
	assert.Equal(t, classFatal, classify(domain.ErrInvalidOrder))
	assert.Equal(t, classFatal, classify(context.Canceled))
	assert.Equal(t, classRateLimited, classify(domain.ErrRateLimited))
	assert.Equal(t, classTransient, classify(errors.New("connection reset")))
}

func TestRateLimitBackoffSchedule(t *testing.T) {
	p := Policy{MaxAttempts: 4, BaseBackoff: time.Second, TransientDelay: 500 * time.Millisecond}

	// Rate-limit waits grow as 2^attempt seconds.
	assert.Equal(t, 2*time.Second, p.delay(classRateLimited, 1))
	assert.Equal(t, 4*time.Second, p.delay(classRateLimited, 2))
	assert.Equal(t, 8*time.Second, p.delay(classRateLimited, 3))

	assert.Equal(t, 500*time.Millisecond, p.delay(classTransient, 1))
	assert.Equal(t, 500*time.Millisecond, p.delay(classTransient, 3))
	assert.Equal(t, time.Duration(0), p.delay(classFatal, 1))
}
