package repositories

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ExchangeRateRepository persists currency pair rates and backs the rate oracle.
type ExchangeRateRepository interface {
	SaveRate(ctx context.Context, base, quote string, rate decimal.Decimal, effectiveAt time.Time, createdBy string) error
	// FindRate returns the most recent rate for (base, quote) effective at or
	// before asOf; implementations may fall back to the inverse pair.
	FindRate(ctx context.Context, base, quote string, asOf time.Time) (decimal.Decimal, error)
}
