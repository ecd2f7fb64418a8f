package services_test

import (
	"context"
	"testing"

	"github.com/crestfx/fincore/internal/apperrors"
	"github.com/crestfx/fincore/internal/core/domain"
	"github.com/crestfx/fincore/internal/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAccount(t *testing.T) {
	env := newTestEnv(t)

	wallet := env.newWallet(t, "cust-1", "USD")
	assert.Equal(t, "2", wallet.AccountNumber[:1], "liability accounts carry the 2 prefix")
	assert.Equal(t, int64(1), wallet.Version)
	assert.True(t, wallet.Balance.IsZero())
	assert.True(t, wallet.IsActive)

	found, err := env.svcs.Accounts.FindByCustomer(context.Background(), env.tenant.TenantID, "cust-1", "USD")
	require.NoError(t, err)
	assert.Equal(t, wallet.AccountID, found.AccountID)
}

func TestCreateAccountCustomerWalletMustBeLiability(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svcs.Accounts.CreateAccount(context.Background(), dto.CreateAccountRequest{
		TenantID:     env.tenant.TenantID,
		CustomerID:   "cust-1",
		Name:         "bad wallet",
		AccountType:  domain.Asset,
		CurrencyCode: "USD",
	}, env.admin)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestCreateAccountDuplicateWalletRefused(t *testing.T) {
	env := newTestEnv(t)

	env.newWallet(t, "cust-1", "USD")
	_, err := env.svcs.Accounts.CreateAccount(context.Background(), dto.CreateAccountRequest{
		TenantID:     env.tenant.TenantID,
		CustomerID:   "cust-1",
		Name:         "second USD wallet",
		AccountType:  domain.Liability,
		CurrencyCode: "USD",
	}, env.admin)
	assert.ErrorIs(t, err, apperrors.ErrDuplicate)

	// A wallet in another currency for the same customer is fine.
	eur := env.newWallet(t, "cust-1", "EUR")
	assert.Equal(t, "EUR", eur.CurrencyCode)
}

func TestCreateAccountInactiveTenantRefused(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	child := env.newChildTenant(t, "Dormant", env.tenant.TenantID)
	require.NoError(t, env.svcs.Tenants.DeactivateTenant(ctx, child.TenantID, env.admin))

	_, err := env.svcs.Accounts.CreateAccount(ctx, dto.CreateAccountRequest{
		TenantID:     child.TenantID,
		Name:         "orphan account",
		AccountType:  domain.Asset,
		CurrencyCode: "USD",
	}, env.admin)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestAccountBalanceAsOf(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	wallet := env.newWallet(t, "cust-1", "USD")
	env.deposit(t, wallet.AccountID, "100", "USD")
	cut := env.clock.Now()
	env.deposit(t, wallet.AccountID, "150", "USD")

	live := env.balance(t, wallet.AccountID)
	assert.True(t, live.Balance.Equal(dec("250")), "got %s", live.Balance)
	assert.Equal(t, int64(3), live.Version)

	historic, err := env.svcs.Accounts.AccountBalance(ctx, wallet.AccountID, &cut)
	require.NoError(t, err)
	assert.True(t, historic.Balance.Equal(dec("100")), "got %s", historic.Balance)
	assert.True(t, historic.BlockedBalance.IsZero())
}

func TestSystemAccountLazilyCreatedOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.svcs.Accounts.SystemAccount(ctx, env.tenant.TenantID, domain.Asset, "USD", env.admin)
	require.NoError(t, err)
	assert.True(t, first.IsSystem())
	assert.Equal(t, "Cash USD", first.Name)

	second, err := env.svcs.Accounts.SystemAccount(ctx, env.tenant.TenantID, domain.Asset, "USD", env.admin)
	require.NoError(t, err)
	assert.Equal(t, first.AccountID, second.AccountID, "repeat resolution returns the same account")
}

func TestDeactivateAccountRefusedWhileFunded(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	wallet := env.newWallet(t, "cust-1", "USD")
	env.deposit(t, wallet.AccountID, "50", "USD")

	err := env.svcs.Accounts.DeactivateAccount(ctx, wallet.AccountID, env.admin)
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	empty := env.newWallet(t, "cust-2", "USD")
	require.NoError(t, env.svcs.Accounts.DeactivateAccount(ctx, empty.AccountID, env.admin))

	found, err := env.svcs.Accounts.GetAccountByID(ctx, empty.AccountID)
	require.NoError(t, err)
	assert.False(t, found.IsActive)
}
