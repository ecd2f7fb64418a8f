package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/crestfx/fincore/internal/apperrors"
	"github.com/crestfx/fincore/internal/core/domain"
	portsrepo "github.com/crestfx/fincore/internal/core/ports/repositories"
	"github.com/crestfx/fincore/internal/dto"
	"github.com/crestfx/fincore/internal/utils/pagination"
)

type memAuditRepository struct {
	store *Store
}

var _ portsrepo.AuditRepository = (*memAuditRepository)(nil)

func (r *memAuditRepository) SaveAuditRecord(ctx context.Context, record domain.AuditRecord) error {
	defer r.store.lock(ctx)()

	for _, existing := range r.store.audits {
		if existing.AuditID == record.AuditID {
			return fmt.Errorf("%w: audit record %s", apperrors.ErrDuplicate, record.AuditID)
		}
	}
	r.store.audits = append(r.store.audits, record)
	return nil
}

func (r *memAuditRepository) QueryAuditRecords(ctx context.Context, params dto.AuditQueryParams) ([]domain.AuditRecord, *string, error) {
	defer r.store.lock(ctx)()

	limit := params.Limit
	if limit <= 0 {
		limit = 50
	}

	matches := []domain.AuditRecord{}
	for _, rec := range r.store.audits {
		if rec.TenantID != params.TenantID {
			continue
		}
		if params.ActorID != "" && rec.ActorID != params.ActorID {
			continue
		}
		if params.Action != "" && rec.Action != params.Action {
			continue
		}
		if params.From != nil && rec.CreatedAt.Before(*params.From) {
			continue
		}
		if params.To != nil && rec.CreatedAt.After(*params.To) {
			continue
		}
		matches = append(matches, rec)
	}
	// Newest first, auditID breaks ties.
	sort.Slice(matches, func(i, j int) bool {
		if !matches[i].CreatedAt.Equal(matches[j].CreatedAt) {
			return matches[i].CreatedAt.After(matches[j].CreatedAt)
		}
		return matches[i].AuditID > matches[j].AuditID
	})

	if params.NextToken != nil && *params.NextToken != "" {
		lastCreatedAt, lastID, err := pagination.DecodeToken(*params.NextToken)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
		}
		cut := 0
		for cut < len(matches) {
			rec := matches[cut]
			if rec.CreatedAt.Before(lastCreatedAt) || (rec.CreatedAt.Equal(lastCreatedAt) && rec.AuditID < lastID) {
				break
			}
			cut++
		}
		matches = matches[cut:]
	}

	var token *string
	if len(matches) > limit {
		matches = matches[:limit]
		last := matches[limit-1]
		t := pagination.EncodeToken(last.CreatedAt, last.AuditID)
		token = &t
	}
	return matches, token, nil
}
