package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/crestfx/fincore/internal/apperrors"
	portsrepo "github.com/crestfx/fincore/internal/core/ports/repositories"
	"github.com/shopspring/decimal"
)

type memExchangeRateRepository struct {
	store *Store
}

var _ portsrepo.ExchangeRateRepository = (*memExchangeRateRepository)(nil)

func (r *memExchangeRateRepository) SaveRate(ctx context.Context, base, quote string, rate decimal.Decimal, effectiveAt time.Time, createdBy string) error {
	defer r.store.lock(ctx)()

	for _, f := range r.store.rates {
		if f.base == base && f.quote == quote && f.effectiveAt.Equal(effectiveAt) {
			return fmt.Errorf("%w: rate %s/%s at %s", apperrors.ErrDuplicate, base, quote, effectiveAt.Format(time.RFC3339))
		}
	}
	r.store.rates = append(r.store.rates, rateFixing{
		base:        base,
		quote:       quote,
		rate:        rate,
		effectiveAt: effectiveAt,
		createdBy:   createdBy,
	})
	return nil
}

func (r *memExchangeRateRepository) FindRate(ctx context.Context, base, quote string, asOf time.Time) (decimal.Decimal, error) {
	defer r.store.lock(ctx)()

	if base == quote {
		return decimal.NewFromInt(1), nil
	}

	if rate, ok := r.findDirectLocked(base, quote, asOf); ok {
		return rate, nil
	}
	if inverse, ok := r.findDirectLocked(quote, base, asOf); ok {
		if inverse.IsZero() {
			return decimal.Zero, fmt.Errorf("%w: zero inverse rate for %s/%s", apperrors.ErrInvariantViolation, quote, base)
		}
		return decimal.NewFromInt(1).DivRound(inverse, 12), nil
	}
	return decimal.Zero, fmt.Errorf("%w: no rate for %s/%s", apperrors.ErrNotFound, base, quote)
}

func (r *memExchangeRateRepository) findDirectLocked(base, quote string, asOf time.Time) (decimal.Decimal, bool) {
	var best *rateFixing
	for i := range r.store.rates {
		f := &r.store.rates[i]
		if f.base != base || f.quote != quote || f.effectiveAt.After(asOf) {
			continue
		}
		if best == nil || f.effectiveAt.After(best.effectiveAt) {
			best = f
		}
	}
	if best == nil {
		return decimal.Zero, false
	}
	return best.rate, true
}
