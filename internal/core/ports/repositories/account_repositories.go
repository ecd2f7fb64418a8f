package repositories

import (
	"context"

	"github.com/crestfx/fincore/internal/core/domain"
	"github.com/shopspring/decimal"
)

// AccountRepository persists accounts. Balances are only ever mutated through
// the guarded primitives, each of which commits only if the persisted version
// equals expectedVersion and increments the version by exactly one.
type AccountRepository interface {
	SaveAccount(ctx context.Context, account domain.Account) error
	FindAccountByID(ctx context.Context, accountID string) (*domain.Account, error)
	FindAccountsByIDs(ctx context.Context, accountIDs []string) (map[string]domain.Account, error)
	// FindByCustomer locates the wallet of (tenant, customer, currency).
	FindByCustomer(ctx context.Context, tenantID, customerID, currencyCode string) (*domain.Account, error)
	// FindSystemAccount locates a system account by tenant, type and currency.
	FindSystemAccount(ctx context.Context, tenantID string, accountType domain.AccountType, currencyCode string) (*domain.Account, error)
	ListAccountsByTenant(ctx context.Context, tenantID string) ([]domain.Account, error)
	DeactivateAccount(ctx context.Context, accountID string, updatedBy string) error

	// ApplyDelta is the guarded balance update. deltaBlocked is derived as
	// deltaBalance-deltaAvailable so balance == available + blocked holds by
	// construction. Fails with ErrVersionConflict on a stale version,
	// ErrInsufficientFunds when available would go negative on an account
	// whose policy forbids it, and ErrInvariantViolation when blocked would
	// go negative.
	ApplyDelta(ctx context.Context, accountID string, expectedVersion int64, deltaBalance, deltaAvailable decimal.Decimal, updatedBy string) (*domain.BalanceSnapshot, error)
	// Block moves amount from available to blocked.
	Block(ctx context.Context, accountID string, expectedVersion int64, amount decimal.Decimal, updatedBy string) (*domain.BalanceSnapshot, error)
	// Unblock moves amount from blocked back to available.
	Unblock(ctx context.Context, accountID string, expectedVersion int64, amount decimal.Decimal, updatedBy string) (*domain.BalanceSnapshot, error)
}
