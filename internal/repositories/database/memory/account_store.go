package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/crestfx/fincore/internal/apperrors"
	"github.com/crestfx/fincore/internal/core/domain"
	portsrepo "github.com/crestfx/fincore/internal/core/ports/repositories"
	"github.com/shopspring/decimal"
)

type memAccountRepository struct {
	store *Store
}

var _ portsrepo.AccountRepository = (*memAccountRepository)(nil)

func (r *memAccountRepository) SaveAccount(ctx context.Context, account domain.Account) error {
	defer r.store.lock(ctx)()

	if _, exists := r.store.accounts[account.AccountID]; exists {
		return fmt.Errorf("%w: account %s", apperrors.ErrDuplicate, account.AccountID)
	}
	for _, existing := range r.store.accounts {
		if existing.AccountNumber == account.AccountNumber {
			return fmt.Errorf("%w: account number %s", apperrors.ErrDuplicate, account.AccountNumber)
		}
	}
	r.store.accounts[account.AccountID] = account
	return nil
}

func (r *memAccountRepository) FindAccountByID(ctx context.Context, accountID string) (*domain.Account, error) {
	defer r.store.lock(ctx)()
	return r.findLocked(accountID)
}

func (r *memAccountRepository) findLocked(accountID string) (*domain.Account, error) {
	acc, ok := r.store.accounts[accountID]
	if !ok {
		return nil, apperrors.ErrAccountNotFound
	}
	return &acc, nil
}

func (r *memAccountRepository) FindAccountsByIDs(ctx context.Context, accountIDs []string) (map[string]domain.Account, error) {
	defer r.store.lock(ctx)()

	accounts := make(map[string]domain.Account, len(accountIDs))
	for _, id := range accountIDs {
		if acc, ok := r.store.accounts[id]; ok {
			accounts[id] = acc
		}
	}
	return accounts, nil
}

func (r *memAccountRepository) FindByCustomer(ctx context.Context, tenantID, customerID, currencyCode string) (*domain.Account, error) {
	defer r.store.lock(ctx)()

	for _, acc := range r.store.accounts {
		if acc.TenantID == tenantID && acc.CustomerID == customerID &&
			acc.CurrencyCode == currencyCode && acc.IsActive && customerID != "" {
			return &acc, nil
		}
	}
	return nil, apperrors.ErrAccountNotFound
}

func (r *memAccountRepository) FindSystemAccount(ctx context.Context, tenantID string, accountType domain.AccountType, currencyCode string) (*domain.Account, error) {
	defer r.store.lock(ctx)()

	var best *domain.Account
	for _, acc := range r.store.accounts {
		acc := acc
		if acc.TenantID != tenantID || acc.CustomerID != "" || acc.AccountType != accountType ||
			acc.CurrencyCode != currencyCode || !acc.IsActive {
			continue
		}
		if best == nil || acc.CreatedAt.Before(best.CreatedAt) {
			best = &acc
		}
	}
	if best == nil {
		return nil, apperrors.ErrAccountNotFound
	}
	return best, nil
}

func (r *memAccountRepository) ListAccountsByTenant(ctx context.Context, tenantID string) ([]domain.Account, error) {
	defer r.store.lock(ctx)()

	accounts := []domain.Account{}
	for _, acc := range r.store.accounts {
		if acc.TenantID == tenantID && acc.IsActive {
			accounts = append(accounts, acc)
		}
	}
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].AccountNumber < accounts[j].AccountNumber
	})
	return accounts, nil
}

func (r *memAccountRepository) DeactivateAccount(ctx context.Context, accountID string, updatedBy string) error {
	defer r.store.lock(ctx)()

	acc, err := r.findLocked(accountID)
	if err != nil {
		return err
	}
	if !acc.IsActive {
		return fmt.Errorf("%w: account %s is already inactive", apperrors.ErrConflict, accountID)
	}
	acc.IsActive = false
	acc.Version++
	acc.LastUpdatedBy = updatedBy
	r.store.accounts[accountID] = *acc
	return nil
}

func (r *memAccountRepository) ApplyDelta(ctx context.Context, accountID string, expectedVersion int64, deltaBalance, deltaAvailable decimal.Decimal, updatedBy string) (*domain.BalanceSnapshot, error) {
	deltaBlocked := deltaBalance.Sub(deltaAvailable)
	return r.applyBalanceChange(ctx, accountID, expectedVersion, deltaBalance, deltaAvailable, deltaBlocked, updatedBy)
}

func (r *memAccountRepository) Block(ctx context.Context, accountID string, expectedVersion int64, amount decimal.Decimal, updatedBy string) (*domain.BalanceSnapshot, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: block amount must be positive", apperrors.ErrValidation)
	}
	return r.applyBalanceChange(ctx, accountID, expectedVersion, decimal.Zero, amount.Neg(), amount, updatedBy)
}

func (r *memAccountRepository) Unblock(ctx context.Context, accountID string, expectedVersion int64, amount decimal.Decimal, updatedBy string) (*domain.BalanceSnapshot, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: unblock amount must be positive", apperrors.ErrValidation)
	}
	return r.applyBalanceChange(ctx, accountID, expectedVersion, decimal.Zero, amount, amount.Neg(), updatedBy)
}

func (r *memAccountRepository) applyBalanceChange(ctx context.Context, accountID string, expectedVersion int64, dBalance, dAvailable, dBlocked decimal.Decimal, updatedBy string) (*domain.BalanceSnapshot, error) {
	defer r.store.lock(ctx)()

	acc, err := r.findLocked(accountID)
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

	acc.Balance = acc.Balance.Add(dBalance)
	acc.AvailableBalance = newAvailable
	acc.BlockedBalance = newBlocked
	acc.Version++
	acc.LastUpdatedBy = updatedBy
	r.store.accounts[accountID] = *acc

	return &domain.BalanceSnapshot{
		AccountID:        accountID,
		Balance:          acc.Balance,
		AvailableBalance: acc.AvailableBalance,
		BlockedBalance:   acc.BlockedBalance,
		Version:          acc.Version,
	}, nil
}
