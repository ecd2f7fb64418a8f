package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/crestfx/fincore/internal/apperrors"
	"github.com/crestfx/fincore/internal/core/domain"
	portsrepo "github.com/crestfx/fincore/internal/core/ports/repositories"
)

type memTenantRepository struct {
	store *Store
}

var _ portsrepo.TenantRepository = (*memTenantRepository)(nil)

func (r *memTenantRepository) SaveTenant(ctx context.Context, tenant domain.Tenant) error {
	defer r.store.lock(ctx)()

	if _, exists := r.store.tenants[tenant.TenantID]; exists {
		return fmt.Errorf("%w: tenant %s", apperrors.ErrDuplicate, tenant.TenantID)
	}
	r.store.tenants[tenant.TenantID] = tenant
	return nil
}

func (r *memTenantRepository) FindTenantByID(ctx context.Context, tenantID string) (*domain.Tenant, error) {
	defer r.store.lock(ctx)()

	t, ok := r.store.tenants[tenantID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrTenantNotFound, tenantID)
	}
	return &t, nil
}

func (r *memTenantRepository) ListTenants(ctx context.Context) ([]domain.Tenant, error) {
	defer r.store.lock(ctx)()

	tenants := make([]domain.Tenant, 0, len(r.store.tenants))
	for _, t := range r.store.tenants {
		tenants = append(tenants, t)
	}
	sort.Slice(tenants, func(i, j int) bool {
		if tenants[i].Level != tenants[j].Level {
			return tenants[i].Level < tenants[j].Level
		}
		return tenants[i].TenantID < tenants[j].TenantID
	})
	return tenants, nil
}

func (r *memTenantRepository) UpdateTenantParent(ctx context.Context, tenantID string, parentTenantID *string, level int, updatedBy string) error {
	defer r.store.lock(ctx)()

	t, ok := r.store.tenants[tenantID]
	if !ok {
		return fmt.Errorf("%w: %s", apperrors.ErrTenantNotFound, tenantID)
	}
	t.ParentTenantID = parentTenantID
	t.Level = level
	t.LastUpdatedBy = updatedBy
	r.store.tenants[tenantID] = t
	return nil
}

func (r *memTenantRepository) DeactivateTenant(ctx context.Context, tenantID string, updatedBy string) error {
	defer r.store.lock(ctx)()

	t, ok := r.store.tenants[tenantID]
	if !ok {
		return fmt.Errorf("%w: %s", apperrors.ErrTenantNotFound, tenantID)
	}
	if !t.IsActive {
		return fmt.Errorf("%w: tenant %s is already inactive", apperrors.ErrConflict, tenantID)
	}
	t.IsActive = false
	t.LastUpdatedBy = updatedBy
	r.store.tenants[tenantID] = t
	return nil
}

func (r *memTenantRepository) HasAccountsWithBalance(ctx context.Context, tenantID string) (bool, error) {
	defer r.store.lock(ctx)()

	for _, acc := range r.store.accounts {
		if acc.TenantID == tenantID && !acc.Balance.IsZero() {
			return true, nil
		}
	}
	return false, nil
}
