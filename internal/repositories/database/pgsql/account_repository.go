package pgsql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/crestfx/fincore/internal/apperrors"
	"github.com/crestfx/fincore/internal/core/domain"
	portsrepo "github.com/crestfx/fincore/internal/core/ports/repositories"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type PgxAccountRepository struct {
	BaseRepository
}

// newPgxAccountRepository creates a new repository for account data.
func newPgxAccountRepository(pool *pgxpool.Pool) portsrepo.AccountRepository {
	return &PgxAccountRepository{BaseRepository: BaseRepository{Pool: pool}}
}

var _ portsrepo.AccountRepository = (*PgxAccountRepository)(nil)

const accountColumns = `
	account_id, account_number, tenant_id, customer_id, name, account_type,
	currency_code, parent_account_id, balance, available_balance,
	blocked_balance, is_active, version,
	created_at, created_by, last_updated_at, last_updated_by`

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var acc domain.Account
	var customerID, parentID sql.NullString
	err := row.Scan(
		&acc.AccountID,
		&acc.AccountNumber,
		&acc.TenantID,
		&customerID,
		&acc.Name,
		&acc.AccountType,
		&acc.CurrencyCode,
		&parentID,
		&acc.Balance,
		&acc.AvailableBalance,
		&acc.BlockedBalance,
		&acc.IsActive,
		&acc.Version,
		&acc.CreatedAt,
		&acc.CreatedBy,
		&acc.LastUpdatedAt,
		&acc.LastUpdatedBy,
	)
	if err != nil {
		return nil, err
	}
	acc.CustomerID = customerID.String
	acc.ParentAccountID = parentID.String
	return &acc, nil
}

// SaveAccount inserts a new account.
func (r *PgxAccountRepository) SaveAccount(ctx context.Context, account domain.Account) error {
	query := `
		INSERT INTO accounts (` + accountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17);
	`
	var customerID, parentID sql.NullString
	if account.CustomerID != "" {
		customerID = sql.NullString{String: account.CustomerID, Valid: true}
	}
	if account.ParentAccountID != "" {
		parentID = sql.NullString{String: account.ParentAccountID, Valid: true}
	}

	_, err := r.db(ctx).Exec(ctx, query,
		account.AccountID,
		account.AccountNumber,
		account.TenantID,
		customerID,
		account.Name,
		account.AccountType,
		account.CurrencyCode,
		parentID,
		account.Balance,
		account.AvailableBalance,
		account.BlockedBalance,
		account.IsActive,
		account.Version,
		account.CreatedAt,
		account.CreatedBy,
		account.LastUpdatedAt,
		account.LastUpdatedBy,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: account %s (%s)", apperrors.ErrDuplicate, account.AccountID, account.AccountNumber)
		}
		return apperrors.NewAppError(500, "failed to save account "+account.AccountID, err)
	}
	return nil
}

// FindAccountByID retrieves an account by its ID.
func (r *PgxAccountRepository) FindAccountByID(ctx context.Context, accountID string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE account_id = $1;`
	acc, err := scanAccount(r.db(ctx).QueryRow(ctx, query, accountID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrAccountNotFound
		}
		return nil, apperrors.NewAppError(500, "failed to find account "+accountID, err)
	}
	return acc, nil
}

// FindAccountsByIDs retrieves multiple accounts by their IDs.
func (r *PgxAccountRepository) FindAccountsByIDs(ctx context.Context, accountIDs []string) (map[string]domain.Account, error) {
	if len(accountIDs) == 0 {
		return map[string]domain.Account{}, nil
	}

	query := `SELECT ` + accountColumns + ` FROM accounts WHERE account_id = ANY($1);`
	rows, err := r.db(ctx).Query(ctx, query, accountIDs)
	if err != nil {
		return nil, apperrors.NewAppError(500, "failed to query accounts by IDs", err)
	}
	defer rows.Close()

	accounts := make(map[string]domain.Account)
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, apperrors.NewAppError(500, "failed to scan account row", err)
		}
		accounts[acc.AccountID] = *acc
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewAppError(500, "error iterating account rows", err)
	}
	return accounts, nil
}

// FindByCustomer locates the wallet of (tenant, customer, currency).
func (r *PgxAccountRepository) FindByCustomer(ctx context.Context, tenantID, customerID, currencyCode string) (*domain.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE tenant_id = $1 AND customer_id = $2 AND currency_code = $3 AND is_active = TRUE;
	`
	acc, err := scanAccount(r.db(ctx).QueryRow(ctx, query, tenantID, customerID, currencyCode))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrAccountNotFound
		}
		return nil, apperrors.NewAppError(500, "failed to find customer account", err)
	}
	return acc, nil
}

// FindSystemAccount locates a house account by tenant, type and currency.
func (r *PgxAccountRepository) FindSystemAccount(ctx context.Context, tenantID string, accountType domain.AccountType, currencyCode string) (*domain.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE tenant_id = $1 AND customer_id IS NULL AND account_type = $2
		  AND currency_code = $3 AND is_active = TRUE
		ORDER BY created_at
		LIMIT 1;
	`
	acc, err := scanAccount(r.db(ctx).QueryRow(ctx, query, tenantID, accountType, currencyCode))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrAccountNotFound
		}
		return nil, apperrors.NewAppError(500, "failed to find system account", err)
	}
	return acc, nil
}

// ListAccountsByTenant retrieves the active accounts of a tenant ordered by number.
func (r *PgxAccountRepository) ListAccountsByTenant(ctx context.Context, tenantID string) ([]domain.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE tenant_id = $1 AND is_active = TRUE
		ORDER BY account_number;
	`
	rows, err := r.db(ctx).Query(ctx, query, tenantID)
	if err != nil {
		return nil, apperrors.NewAppError(500, "failed to list accounts for tenant "+tenantID, err)
	}
	defer rows.Close()

	accounts := []domain.Account{}
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, apperrors.NewAppError(500, "failed to scan account row", err)
		}
		accounts = append(accounts, *acc)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewAppError(500, "error iterating account rows", err)
	}
	return accounts, nil
}

// DeactivateAccount marks an account as inactive.
func (r *PgxAccountRepository) DeactivateAccount(ctx context.Context, accountID string, updatedBy string) error {
	query := `
		UPDATE accounts
		SET is_active = FALSE, version = version + 1, last_updated_at = NOW(), last_updated_by = $2
		WHERE account_id = $1 AND is_active = TRUE;
	`
	cmdTag, err := r.db(ctx).Exec(ctx, query, accountID, updatedBy)
	if err != nil {
		return apperrors.NewAppError(500, "failed to deactivate account "+accountID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		if _, findErr := r.FindAccountByID(ctx, accountID); findErr != nil {
			return findErr
		}
		return fmt.Errorf("%w: account %s is already inactive", apperrors.ErrConflict, accountID)
	}
	return nil
}

// ApplyDelta is the guarded balance update: compare-and-swap on version with
// the blocked delta derived so balance == available + blocked always holds.
func (r *PgxAccountRepository) ApplyDelta(ctx context.Context, accountID string, expectedVersion int64, deltaBalance, deltaAvailable decimal.Decimal, updatedBy string) (*domain.BalanceSnapshot, error) {
	deltaBlocked := deltaBalance.Sub(deltaAvailable)
	return r.applyBalanceChange(ctx, accountID, expectedVersion, deltaBalance, deltaAvailable, deltaBlocked, updatedBy)
}

// Block moves amount from available to blocked.
func (r *PgxAccountRepository) Block(ctx context.Context, accountID string, expectedVersion int64, amount decimal.Decimal, updatedBy string) (*domain.BalanceSnapshot, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: block amount must be positive", apperrors.ErrValidation)
	}
	return r.applyBalanceChange(ctx, accountID, expectedVersion, decimal.Zero, amount.Neg(), amount, updatedBy)
}

// Unblock moves amount from blocked back to available.
func (r *PgxAccountRepository) Unblock(ctx context.Context, accountID string, expectedVersion int64, amount decimal.Decimal, updatedBy string) (*domain.BalanceSnapshot, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: unblock amount must be positive", apperrors.ErrValidation)
	}
	return r.applyBalanceChange(ctx, accountID, expectedVersion, decimal.Zero, amount, amount.Neg(), updatedBy)
}

// applyBalanceChange validates the resulting balances against the account's
// policy and commits them with a single version-guarded UPDATE. Exactly one
// writer per observed version succeeds.
func (r *PgxAccountRepository) applyBalanceChange(ctx context.Context, accountID string, expectedVersion int64, dBalance, dAvailable, dBlocked decimal.Decimal, updatedBy string) (*domain.BalanceSnapshot, error) {
	acc, err := r.FindAccountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acc.Version != expectedVersion {
		return nil, fmt.Errorf("%w: account %s expected v%d, have v%d", apperrors.ErrVersionConflict, accountID, expectedVersion, acc.Version)
	}
	if !acc.IsActive {
		return nil, fmt.Errorf("%w: account %s is inactive", apperrors.ErrValidation, accountID)
	}

	newAvailable := acc.AvailableBalance.Add(dAvailable)
	newBlocked := acc.BlockedBalance.Add(dBlocked)
	if newAvailable.IsNegative() && !acc.AllowsNegative() {
		return nil, fmt.Errorf("%w: account %s available %s cannot cover %s", apperrors.ErrInsufficientFunds, accountID, acc.AvailableBalance, dAvailable.Neg())
	}
	if newBlocked.IsNegative() {
		return nil, fmt.Errorf("%w: account %s blocked balance would become %s", apperrors.ErrInvariantViolation, accountID, newBlocked)
	}

	query := `
		UPDATE accounts
		SET balance = balance + $3,
		    available_balance = available_balance + $4,
		    blocked_balance = blocked_balance + $5,
		    version = version + 1,
		    last_updated_at = NOW(),
		    last_updated_by = $6
		WHERE account_id = $1 AND version = $2
		RETURNING balance, available_balance, blocked_balance, version;
	`
	snap := domain.BalanceSnapshot{AccountID: accountID}
	err = r.db(ctx).QueryRow(ctx, query, accountID, expectedVersion, dBalance, dAvailable, dBlocked, updatedBy).
		Scan(&snap.Balance, &snap.AvailableBalance, &snap.BlockedBalance, &snap.Version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// The row moved between the read and the guarded write.
			return nil, fmt.Errorf("%w: account %s moved past v%d", apperrors.ErrVersionConflict, accountID, expectedVersion)
		}
		return nil, apperrors.NewAppError(500, "failed to apply balance change to account "+accountID, err)
	}

	if !snap.Balance.Equal(snap.AvailableBalance.Add(snap.BlockedBalance)) {
		return nil, fmt.Errorf("%w: account %s balance decomposition broken after update", apperrors.ErrInvariantViolation, accountID)
	}
	return &snap, nil
}
