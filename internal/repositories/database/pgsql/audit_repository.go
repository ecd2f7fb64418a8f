package pgsql

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/crestfx/fincore/internal/apperrors"
	"github.com/crestfx/fincore/internal/core/domain"
	portsrepo "github.com/crestfx/fincore/internal/core/ports/repositories"
	"github.com/crestfx/fincore/internal/dto"
	"github.com/crestfx/fincore/internal/utils/pagination"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgxAuditRepository struct {
	BaseRepository
}

// newPgxAuditRepository creates a new repository for the append-only audit trail.
func newPgxAuditRepository(pool *pgxpool.Pool) portsrepo.AuditRepository {
	return &PgxAuditRepository{BaseRepository: BaseRepository{Pool: pool}}
}

var _ portsrepo.AuditRepository = (*PgxAuditRepository)(nil)

const auditColumns = `
	audit_id, audit_number, tenant_id, actor_id, action,
	resource_type, resource_id, transaction_id, description,
	before_state, after_state, metadata, ip_address, user_agent,
	severity, risk_score, tags, retained_until, created_at`

func scanAuditRecord(row pgx.Row) (*domain.AuditRecord, error) {
	var rec domain.AuditRecord
	var transactionID, beforeState, afterState, ipAddress, userAgent sql.NullString
	err := row.Scan(
		&rec.AuditID,
		&rec.AuditNumber,
		&rec.TenantID,
		&rec.ActorID,
		&rec.Action,
		&rec.ResourceType,
		&rec.ResourceID,
		&transactionID,
		&rec.Description,
		&beforeState,
		&afterState,
		&rec.Metadata,
		&ipAddress,
		&userAgent,
		&rec.Severity,
		&rec.RiskScore,
		&rec.Tags,
		&rec.RetainedUntil,
		&rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.TransactionID = transactionID.String
	rec.BeforeState = beforeState.String
	rec.AfterState = afterState.String
	rec.IPAddress = ipAddress.String
	rec.UserAgent = userAgent.String
	return &rec, nil
}

// SaveAuditRecord appends one record. There is no update path; the table is
// insert-only and RetainedUntil is fixed at write time.
func (r *PgxAuditRepository) SaveAuditRecord(ctx context.Context, record domain.AuditRecord) error {
	query := `
		INSERT INTO audit_records (` + auditColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19);
	`
	metadata := record.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	tags := record.Tags
	if tags == nil {
		tags = []string{}
	}

	_, err := r.db(ctx).Exec(ctx, query,
		record.AuditID, record.AuditNumber, record.TenantID, record.ActorID, record.Action,
		record.ResourceType, record.ResourceID, nullStr(record.TransactionID), record.Description,
		nullStr(record.BeforeState), nullStr(record.AfterState), metadata,
		nullStr(record.IPAddress), nullStr(record.UserAgent),
		record.Severity, record.RiskScore, tags, record.RetainedUntil, record.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: audit record %s (%s)", apperrors.ErrDuplicate, record.AuditID, record.AuditNumber)
		}
		return apperrors.NewAppError(500, "failed to save audit record "+record.AuditID, err)
	}
	return nil
}

// QueryAuditRecords pages the trail newest-first.
func (r *PgxAuditRepository) QueryAuditRecords(ctx context.Context, params dto.AuditQueryParams) ([]domain.AuditRecord, *string, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = 50
	}
	fetchLimit := limit + 1

	query := `SELECT ` + auditColumns + ` FROM audit_records WHERE tenant_id = $1`
	args := []any{params.TenantID}

	if params.ActorID != "" {
		args = append(args, params.ActorID)
		query += ` AND actor_id = $` + strconv.Itoa(len(args))
	}
	if params.Action != "" {
		args = append(args, params.Action)
		query += ` AND action = $` + strconv.Itoa(len(args))
	}
	if params.From != nil {
		args = append(args, *params.From)
		query += ` AND created_at >= $` + strconv.Itoa(len(args))
	}
	if params.To != nil {
		args = append(args, *params.To)
		query += ` AND created_at <= $` + strconv.Itoa(len(args))
	}
	if params.NextToken != nil && *params.NextToken != "" {
		lastCreatedAt, lastID, err := pagination.DecodeToken(*params.NextToken)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
		}
		args = append(args, lastCreatedAt, lastID)
		query += ` AND (created_at, audit_id) < ($` + strconv.Itoa(len(args)-1) + `, $` + strconv.Itoa(len(args)) + `)`
	}
	args = append(args, fetchLimit)
	query += ` ORDER BY created_at DESC, audit_id DESC LIMIT $` + strconv.Itoa(len(args)) + `;`

	rows, err := r.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, nil, apperrors.NewAppError(500, "failed to query audit records", err)
	}
	defer rows.Close()

	records := []domain.AuditRecord{}
	for rows.Next() {
		rec, err := scanAuditRecord(rows)
		if err != nil {
			return nil, nil, apperrors.NewAppError(500, "failed to scan audit record row", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, apperrors.NewAppError(500, "error iterating audit record rows", err)
	}

	var nextToken *string
	if len(records) > limit {
		records = records[:limit]
		last := records[limit-1]
		token := pagination.EncodeToken(last.CreatedAt, last.AuditID)
		nextToken = &token
	}
	return records, nextToken, nil
}
