package repositories

import (
	"context"

	"github.com/crestfx/fincore/internal/core/domain"
	"github.com/crestfx/fincore/internal/dto"
)

// AuditRepository is the append-only audit store. Writes never block reads.
type AuditRepository interface {
	SaveAuditRecord(ctx context.Context, record domain.AuditRecord) error
	// QueryAuditRecords pages the trail by (tenant, actor, action, dateRange),
	// ordered by (createdAt, auditID) descending.
	QueryAuditRecords(ctx context.Context, params dto.AuditQueryParams) ([]domain.AuditRecord, *string, error)
}
