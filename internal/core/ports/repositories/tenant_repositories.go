package repositories

import (
	"context"

	"github.com/crestfx/fincore/internal/core/domain"
)

// TenantRepository persists the tenant forest.
type TenantRepository interface {
	SaveTenant(ctx context.Context, tenant domain.Tenant) error
	FindTenantByID(ctx context.Context, tenantID string) (*domain.Tenant, error)
	// ListTenants returns every tenant; the resolver caches adjacency from it.
	ListTenants(ctx context.Context) ([]domain.Tenant, error)
	// UpdateTenantParent rewires a node under a new parent and stores its new level.
	UpdateTenantParent(ctx context.Context, tenantID string, parentTenantID *string, level int, updatedBy string) error
	// DeactivateTenant flags a tenant inactive.
	DeactivateTenant(ctx context.Context, tenantID string, updatedBy string) error
	// HasAccountsWithBalance reports whether any account of the tenant holds a
	// nonzero balance. Deactivation is refused while it does.
	HasAccountsWithBalance(ctx context.Context, tenantID string) (bool, error)
}
