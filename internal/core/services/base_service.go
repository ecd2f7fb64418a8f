// Package services implements the core facades over the repository ports.
package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/crestfx/fincore/internal/apperrors"
	portsrepo "github.com/crestfx/fincore/internal/core/ports/repositories"
)

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

// NewClock returns the wall clock used outside tests. It reads UTC, which is
// also the business-hours convention the audit off-hours modifier keys off.
func NewClock() portsrepo.Clock { return realClock{} }

// RetryPolicy governs how version-conflict losers retry their unit of work.
type RetryPolicy struct {
	MaxAttempts int
	BackoffBase time.Duration
	Jitter      float64 // fraction of the delay randomized in both directions
}

// backoff returns the exponential delay for the given 1-based attempt, with
// jitter applied so concurrent losers do not retry in lockstep.
func (p RetryPolicy) backoff(attempt int) time.Duration {
	d := p.BackoffBase << (attempt - 1)
	if p.Jitter > 0 {
		factor := 1 + p.Jitter*(2*rand.Float64()-1)
		d = time.Duration(float64(d) * factor)
	}
	if d < 0 {
		d = p.BackoffBase
	}
	return d
}

// Run executes fn, retrying while it fails with a version conflict. Each
// attempt runs fresh: fn must re-read whatever state it guards on. Exhaustion
// wraps the last conflict in ErrRetryExhausted.
func (p RetryPolicy) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(ctx)
		if err == nil || !errors.Is(err, apperrors.ErrVersionConflict) {
			return err
		}
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.backoff(attempt)):
		}
	}
	return fmt.Errorf("%w: gave up after %d attempts: %v", apperrors.ErrRetryExhausted, attempts, err)
}
