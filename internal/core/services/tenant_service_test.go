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

func (e *testEnv) newChildTenant(t *testing.T, name, parentID string) *domain.Tenant {
	t.Helper()
	child, err := e.svcs.Tenants.CreateTenant(context.Background(), dto.CreateTenantRequest{
		Name:             name,
		ParentTenantID:   parentID,
		BaseCurrencyCode: "USD",
	}, e.admin)
	require.NoError(t, err)
	return child
}

func TestCreateTenantHierarchy(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	child := env.newChildTenant(t, "EU Branch", env.tenant.TenantID)
	assert.Equal(t, 2, child.Level)
	require.NotNil(t, child.ParentTenantID)
	assert.Equal(t, env.tenant.TenantID, *child.ParentTenantID)

	grandchild := env.newChildTenant(t, "DE Desk", child.TenantID)
	assert.Equal(t, 3, grandchild.Level)

	chain, err := env.svcs.Tenants.AncestorsOf(ctx, grandchild.TenantID)
	require.NoError(t, err)
	require.Len(t, chain, 3)
	assert.Equal(t, grandchild.TenantID, chain[0].TenantID)
	assert.Equal(t, child.TenantID, chain[1].TenantID)
	assert.Equal(t, env.tenant.TenantID, chain[2].TenantID)

	below, err := env.svcs.Tenants.DescendantsOf(ctx, env.tenant.TenantID)
	require.NoError(t, err)
	assert.Len(t, below, 2)
	assert.Contains(t, below, child.TenantID)
	assert.Contains(t, below, grandchild.TenantID)
}

func TestCreateTenantDefaultsApprovalThreshold(t *testing.T) {
	env := newTestEnv(t)

	child := env.newChildTenant(t, "No Threshold", env.tenant.TenantID)
	assert.True(t, child.ApprovalThreshold.Equal(dec("10000")), "got %s", child.ApprovalThreshold)
}

func TestCreateRootTenantRequiresGlobal(t *testing.T) {
	env := newTestEnv(t)

	localAdmin := domain.Principal{
		ID:           "local-admin",
		HomeTenantID: env.tenant.TenantID,
		Roles:        []domain.Role{domain.RoleAdmin},
	}
	_, err := env.svcs.Tenants.CreateTenant(context.Background(), dto.CreateTenantRequest{
		Name:             "Rogue Root",
		BaseCurrencyCode: "USD",
	}, localAdmin)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
}

func TestSiblingTenantIsNotAccessible(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	branchA := env.newChildTenant(t, "Branch A", env.tenant.TenantID)
	branchB := env.newChildTenant(t, "Branch B", env.tenant.TenantID)

	aAdmin := domain.Principal{
		ID:           "a-admin",
		HomeTenantID: branchA.TenantID,
		Roles:        []domain.Role{domain.RoleAdmin},
	}

	ok, err := env.svcs.Tenants.IsAccessible(ctx, aAdmin, branchA.TenantID)
	require.NoError(t, err)
	assert.True(t, ok, "own tenant must be accessible")

	ok, err = env.svcs.Tenants.IsAccessible(ctx, aAdmin, branchB.TenantID)
	require.NoError(t, err)
	assert.False(t, ok, "sibling tenant must not be accessible")

	rootOperator := domain.Principal{
		ID:           "root-op",
		HomeTenantID: env.tenant.TenantID,
		Roles:        []domain.Role{domain.RoleOperator},
	}
	ok, err = env.svcs.Tenants.IsAccessible(ctx, rootOperator, branchB.TenantID)
	require.NoError(t, err)
	assert.True(t, ok, "ancestor principals reach descendants")
}

func TestMoveTenantRefusesCycles(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	child := env.newChildTenant(t, "Child", env.tenant.TenantID)
	grandchild := env.newChildTenant(t, "Grandchild", child.TenantID)

	err := env.svcs.Tenants.MoveTenant(ctx, child.TenantID, child.TenantID, env.admin)
	assert.ErrorIs(t, err, apperrors.ErrHierarchyCycle)

	err = env.svcs.Tenants.MoveTenant(ctx, child.TenantID, grandchild.TenantID, env.admin)
	assert.ErrorIs(t, err, apperrors.ErrHierarchyCycle)
}

func TestMoveTenantShiftsSubtreeLevels(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	branch := env.newChildTenant(t, "Branch", env.tenant.TenantID)
	desk := env.newChildTenant(t, "Desk", branch.TenantID)
	other := env.newChildTenant(t, "Other Branch", env.tenant.TenantID)

	require.NoError(t, env.svcs.Tenants.MoveTenant(ctx, branch.TenantID, other.TenantID, env.admin))

	moved, err := env.svcs.Tenants.GetTenantByID(ctx, branch.TenantID)
	require.NoError(t, err)
	assert.Equal(t, 3, moved.Level)
	require.NotNil(t, moved.ParentTenantID)
	assert.Equal(t, other.TenantID, *moved.ParentTenantID)

	movedDesk, err := env.svcs.Tenants.GetTenantByID(ctx, desk.TenantID)
	require.NoError(t, err)
	assert.Equal(t, 4, movedDesk.Level)
	require.NotNil(t, movedDesk.ParentTenantID)
	assert.Equal(t, branch.TenantID, *movedDesk.ParentTenantID, "descendants keep their parent")
}

func TestDeactivateTenantRefusedWhileBalancesRemain(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	child := env.newChildTenant(t, "Closing Branch", env.tenant.TenantID)
	wallet, err := env.svcs.Accounts.CreateAccount(ctx, dto.CreateAccountRequest{
		TenantID:     child.TenantID,
		CustomerID:   "cust-77",
		Name:         "cust-77 USD wallet",
		AccountType:  domain.Liability,
		CurrencyCode: "USD",
	}, env.admin)
	require.NoError(t, err)

	_, err = env.svcs.Transactions.Execute(ctx, dto.DepositRequest{
		Common:       dto.Common{TenantID: child.TenantID},
		AccountID:    wallet.AccountID,
		Amount:       dec("100"),
		CurrencyCode: "USD",
	}, env.admin)
	require.NoError(t, err)

	err = env.svcs.Tenants.DeactivateTenant(ctx, child.TenantID, env.admin)
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	// Draining the wallet zeroes both the wallet and the house cash account,
	// after which deactivation goes through.
	_, err = env.svcs.Transactions.Execute(ctx, dto.WithdrawalRequest{
		Common:       dto.Common{TenantID: child.TenantID},
		AccountID:    wallet.AccountID,
		Amount:       dec("100"),
		CurrencyCode: "USD",
	}, env.admin)
	require.NoError(t, err)

	require.NoError(t, env.svcs.Tenants.DeactivateTenant(ctx, child.TenantID, env.admin))

	deactivated, err := env.svcs.Tenants.GetTenantByID(ctx, child.TenantID)
	require.NoError(t, err)
	assert.False(t, deactivated.IsActive)
}
