package pgsql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/crestfx/fincore/internal/apperrors"
	portsrepo "github.com/crestfx/fincore/internal/core/ports/repositories"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type PgxExchangeRateRepository struct {
	BaseRepository
}

// newPgxExchangeRateRepository creates a new repository for currency pair rates.
func newPgxExchangeRateRepository(pool *pgxpool.Pool) portsrepo.ExchangeRateRepository {
	return &PgxExchangeRateRepository{BaseRepository: BaseRepository{Pool: pool}}
}

var _ portsrepo.ExchangeRateRepository = (*PgxExchangeRateRepository)(nil)

// SaveRate records a rate fixing for (base, quote) effective at effectiveAt.
func (r *PgxExchangeRateRepository) SaveRate(ctx context.Context, base, quote string, rate decimal.Decimal, effectiveAt time.Time, createdBy string) error {
	query := `
		INSERT INTO exchange_rates (rate_id, base_currency, quote_currency, rate, effective_at, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW());
	`
	_, err := r.db(ctx).Exec(ctx, query, uuid.NewString(), base, quote, rate, effectiveAt, createdBy)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: rate %s/%s at %s", apperrors.ErrDuplicate, base, quote, effectiveAt.Format(time.RFC3339))
		}
		return apperrors.NewAppError(500, fmt.Sprintf("failed to save rate %s/%s", base, quote), err)
	}
	return nil
}

// FindRate returns the most recent rate for (base, quote) effective at or
// before asOf. When the pair has no direct fixing it falls back to the
// reciprocal of the inverse pair.
func (r *PgxExchangeRateRepository) FindRate(ctx context.Context, base, quote string, asOf time.Time) (decimal.Decimal, error) {
	if base == quote {
		return decimal.NewFromInt(1), nil
	}

	rate, err := r.findDirect(ctx, base, quote, asOf)
	if err == nil {
		return rate, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return decimal.Zero, err
	}

	inverse, err := r.findDirect(ctx, quote, base, asOf)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return decimal.Zero, fmt.Errorf("%w: no rate for %s/%s", apperrors.ErrNotFound, base, quote)
		}
		return decimal.Zero, err
	}
	if inverse.IsZero() {
		return decimal.Zero, fmt.Errorf("%w: zero inverse rate for %s/%s", apperrors.ErrInvariantViolation, quote, base)
	}
	return decimal.NewFromInt(1).DivRound(inverse, 12), nil
}

func (r *PgxExchangeRateRepository) findDirect(ctx context.Context, base, quote string, asOf time.Time) (decimal.Decimal, error) {
	query := `
		SELECT rate
		FROM exchange_rates
		WHERE base_currency = $1 AND quote_currency = $2 AND effective_at <= $3
		ORDER BY effective_at DESC
		LIMIT 1;
	`
	var rate decimal.Decimal
	err := r.db(ctx).QueryRow(ctx, query, base, quote, asOf).Scan(&rate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, apperrors.ErrNotFound
		}
		return decimal.Zero, apperrors.NewAppError(500, fmt.Sprintf("failed to find rate %s/%s", base, quote), err)
	}
	return rate, nil
}
