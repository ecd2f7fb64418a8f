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
)

type PgxTenantRepository struct {
	BaseRepository
}

// newPgxTenantRepository creates a new repository for tenant data.
func newPgxTenantRepository(pool *pgxpool.Pool) portsrepo.TenantRepository {
	return &PgxTenantRepository{BaseRepository: BaseRepository{Pool: pool}}
}

var _ portsrepo.TenantRepository = (*PgxTenantRepository)(nil)

const tenantColumns = `
	tenant_id, name, parent_tenant_id, level, is_active,
	base_currency_code, approval_threshold,
	created_at, created_by, last_updated_at, last_updated_by`

func scanTenant(row pgx.Row) (*domain.Tenant, error) {
	var t domain.Tenant
	var parentID sql.NullString
	err := row.Scan(
		&t.TenantID,
		&t.Name,
		&parentID,
		&t.Level,
		&t.IsActive,
		&t.BaseCurrencyCode,
		&t.ApprovalThreshold,
		&t.CreatedAt,
		&t.CreatedBy,
		&t.LastUpdatedAt,
		&t.LastUpdatedBy,
	)
	if err != nil {
		return nil, err
	}
	if parentID.Valid {
		t.ParentTenantID = &parentID.String
	}
	return &t, nil
}

// SaveTenant persists a new tenant node.
func (r *PgxTenantRepository) SaveTenant(ctx context.Context, tenant domain.Tenant) error {
	query := `
		INSERT INTO tenants (` + tenantColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11);
	`
	var parentID sql.NullString
	if tenant.ParentTenantID != nil && *tenant.ParentTenantID != "" {
		parentID = sql.NullString{String: *tenant.ParentTenantID, Valid: true}
	}

	_, err := r.db(ctx).Exec(ctx, query,
		tenant.TenantID, tenant.Name, parentID, tenant.Level, tenant.IsActive,
		tenant.BaseCurrencyCode, tenant.ApprovalThreshold,
		tenant.CreatedAt, tenant.CreatedBy, tenant.LastUpdatedAt, tenant.LastUpdatedBy,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: tenant %s", apperrors.ErrDuplicate, tenant.TenantID)
		}
		return apperrors.NewAppError(500, "failed to save tenant "+tenant.TenantID, err)
	}
	return nil
}

// FindTenantByID retrieves a tenant by its ID.
func (r *PgxTenantRepository) FindTenantByID(ctx context.Context, tenantID string) (*domain.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE tenant_id = $1;`
	t, err := scanTenant(r.db(ctx).QueryRow(ctx, query, tenantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrTenantNotFound, tenantID)
		}
		return nil, apperrors.NewAppError(500, "failed to find tenant "+tenantID, err)
	}
	return t, nil
}

// ListTenants returns every tenant node, roots first.
func (r *PgxTenantRepository) ListTenants(ctx context.Context) ([]domain.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants ORDER BY level, tenant_id;`
	rows, err := r.db(ctx).Query(ctx, query)
	if err != nil {
		return nil, apperrors.NewAppError(500, "failed to list tenants", err)
	}
	defer rows.Close()

	tenants := []domain.Tenant{}
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, apperrors.NewAppError(500, "failed to scan tenant row", err)
		}
		tenants = append(tenants, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewAppError(500, "error iterating tenant rows", err)
	}
	return tenants, nil
}

// UpdateTenantParent rewires a node under a new parent and stores its new level.
func (r *PgxTenantRepository) UpdateTenantParent(ctx context.Context, tenantID string, parentTenantID *string, level int, updatedBy string) error {
	query := `
		UPDATE tenants
		SET parent_tenant_id = $2, level = $3, last_updated_by = $4, last_updated_at = NOW()
		WHERE tenant_id = $1;
	`
	var parentID sql.NullString
	if parentTenantID != nil && *parentTenantID != "" {
		parentID = sql.NullString{String: *parentTenantID, Valid: true}
	}

	cmdTag, err := r.db(ctx).Exec(ctx, query, tenantID, parentID, level, updatedBy)
	if err != nil {
		return apperrors.NewAppError(500, "failed to move tenant "+tenantID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", apperrors.ErrTenantNotFound, tenantID)
	}
	return nil
}

// DeactivateTenant flags a tenant inactive.
func (r *PgxTenantRepository) DeactivateTenant(ctx context.Context, tenantID string, updatedBy string) error {
	query := `
		UPDATE tenants
		SET is_active = FALSE, last_updated_by = $2, last_updated_at = NOW()
		WHERE tenant_id = $1 AND is_active = TRUE;
	`
	cmdTag, err := r.db(ctx).Exec(ctx, query, tenantID, updatedBy)
	if err != nil {
		return apperrors.NewAppError(500, "failed to deactivate tenant "+tenantID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		if _, findErr := r.FindTenantByID(ctx, tenantID); findErr != nil {
			return findErr
		}
		return fmt.Errorf("%w: tenant %s is already inactive", apperrors.ErrConflict, tenantID)
	}
	return nil
}

// HasAccountsWithBalance reports whether any account of the tenant holds a
// nonzero balance.
func (r *PgxTenantRepository) HasAccountsWithBalance(ctx context.Context, tenantID string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM accounts WHERE tenant_id = $1 AND balance <> 0);`
	var exists bool
	if err := r.db(ctx).QueryRow(ctx, query, tenantID).Scan(&exists); err != nil {
		return false, apperrors.NewAppError(500, "failed to check balances for tenant "+tenantID, err)
	}
	return exists, nil
}
