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

type PgxTransactionRepository struct {
	BaseRepository
}

// newPgxTransactionRepository creates a new repository for financial transaction data.
func newPgxTransactionRepository(pool *pgxpool.Pool) portsrepo.TransactionRepository {
	return &PgxTransactionRepository{BaseRepository: BaseRepository{Pool: pool}}
}

var _ portsrepo.TransactionRepository = (*PgxTransactionRepository)(nil)

const transactionColumns = `
	transaction_id, transaction_number, tenant_id, customer_id, type,
	from_currency, to_currency, source_amount, destination_amount,
	exchange_rate, fee_amount, fee_currency, status, description,
	reference, external_reference, approved_by, approved_at,
	processed_at, failed_at, failure_reason,
	created_at, created_by, last_updated_at, last_updated_by`

func scanTransaction(row pgx.Row) (*domain.FinancialTransaction, error) {
	var t domain.FinancialTransaction
	var customerID, reference, externalRef, approvedBy, failureReason sql.NullString
	var approvedAt, processedAt, failedAt sql.NullTime
	err := row.Scan(
		&t.TransactionID,
		&t.TransactionNumber,
		&t.TenantID,
		&customerID,
		&t.Type,
		&t.FromCurrency,
		&t.ToCurrency,
		&t.SourceAmount,
		&t.DestinationAmount,
		&t.ExchangeRate,
		&t.FeeAmount,
		&t.FeeCurrency,
		&t.Status,
		&t.Description,
		&reference,
		&externalRef,
		&approvedBy,
		&approvedAt,
		&processedAt,
		&failedAt,
		&failureReason,
		&t.CreatedAt,
		&t.CreatedBy,
		&t.LastUpdatedAt,
		&t.LastUpdatedBy,
	)
	if err != nil {
		return nil, err
	}
	t.CustomerID = customerID.String
	t.Reference = reference.String
	t.ExternalReference = externalRef.String
	t.ApprovedBy = approvedBy.String
	t.FailureReason = failureReason.String
	if approvedAt.Valid {
		t.ApprovedAt = &approvedAt.Time
	}
	if processedAt.Valid {
		t.ProcessedAt = &processedAt.Time
	}
	if failedAt.Valid {
		t.FailedAt = &failedAt.Time
	}
	return &t, nil
}

func nullStr(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// SaveTransaction persists a new financial transaction record.
func (r *PgxTransactionRepository) SaveTransaction(ctx context.Context, txn domain.FinancialTransaction) error {
	query := `
		INSERT INTO financial_transactions (` + transactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
		        $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25);
	`
	var approvedAt, processedAt, failedAt sql.NullTime
	if txn.ApprovedAt != nil {
		approvedAt = sql.NullTime{Time: *txn.ApprovedAt, Valid: true}
	}
	if txn.ProcessedAt != nil {
		processedAt = sql.NullTime{Time: *txn.ProcessedAt, Valid: true}
	}
	if txn.FailedAt != nil {
		failedAt = sql.NullTime{Time: *txn.FailedAt, Valid: true}
	}

	_, err := r.db(ctx).Exec(ctx, query,
		txn.TransactionID, txn.TransactionNumber, txn.TenantID, nullStr(txn.CustomerID), txn.Type,
		txn.FromCurrency, txn.ToCurrency, txn.SourceAmount, txn.DestinationAmount,
		txn.ExchangeRate, txn.FeeAmount, txn.FeeCurrency, txn.Status, txn.Description,
		nullStr(txn.Reference), nullStr(txn.ExternalReference), nullStr(txn.ApprovedBy), approvedAt,
		processedAt, failedAt, nullStr(txn.FailureReason),
		txn.CreatedAt, txn.CreatedBy, txn.LastUpdatedAt, txn.LastUpdatedBy,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: transaction %s (%s)", apperrors.ErrDuplicate, txn.TransactionID, txn.TransactionNumber)
		}
		return apperrors.NewAppError(500, "failed to save transaction "+txn.TransactionID, err)
	}
	return nil
}

// FindTransactionByID retrieves a financial transaction by its ID.
func (r *PgxTransactionRepository) FindTransactionByID(ctx context.Context, transactionID string) (*domain.FinancialTransaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM financial_transactions WHERE transaction_id = $1;`
	t, err := scanTransaction(r.db(ctx).QueryRow(ctx, query, transactionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, apperrors.NewAppError(500, "failed to find transaction "+transactionID, err)
	}
	return t, nil
}

// FindByExternalReference serves the idempotency lookup.
func (r *PgxTransactionRepository) FindByExternalReference(ctx context.Context, tenantID, externalReference string) (*domain.FinancialTransaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM financial_transactions
		WHERE tenant_id = $1 AND external_reference = $2;
	`
	t, err := scanTransaction(r.db(ctx).QueryRow(ctx, query, tenantID, externalReference))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, apperrors.NewAppError(500, "failed to look up external reference "+externalReference, err)
	}
	return t, nil
}

// UpdateTransactionStatus moves a transaction along a state-machine edge. The
// write is guarded on the current status, so a row that already left `from`
// is reported as a conflict instead of being overwritten.
func (r *PgxTransactionRepository) UpdateTransactionStatus(ctx context.Context, transactionID string, from, to domain.TransactionStatus, update portsrepo.StatusUpdate) error {
	query := `
		UPDATE financial_transactions
		SET status = $3,
		    processed_at = COALESCE($4, processed_at),
		    failed_at = COALESCE($5, failed_at),
		    failure_reason = COALESCE(NULLIF($6, ''), failure_reason),
		    approved_by = COALESCE(NULLIF($7, ''), approved_by),
		    approved_at = COALESCE($8, approved_at),
		    reference = COALESCE(NULLIF($9, ''), reference),
		    last_updated_by = $10,
		    last_updated_at = $11
		WHERE transaction_id = $1 AND status = $2;
	`
	var processedAt, failedAt, approvedAt sql.NullTime
	if update.ProcessedAt != nil {
		processedAt = sql.NullTime{Time: *update.ProcessedAt, Valid: true}
	}
	if update.FailedAt != nil {
		failedAt = sql.NullTime{Time: *update.FailedAt, Valid: true}
	}
	if update.ApprovedAt != nil {
		approvedAt = sql.NullTime{Time: *update.ApprovedAt, Valid: true}
	}

	cmdTag, err := r.db(ctx).Exec(ctx, query,
		transactionID, from, to,
		processedAt, failedAt, update.FailureReason,
		update.ApprovedBy, approvedAt, update.Reference,
		update.UpdatedBy, update.UpdatedAt,
	)
	if err != nil {
		return apperrors.NewAppError(500, "failed to update status of transaction "+transactionID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		current, findErr := r.FindTransactionByID(ctx, transactionID)
		if findErr != nil {
			return findErr
		}
		return fmt.Errorf("%w: transaction %s is %s, expected %s",
			apperrors.ErrConflict, transactionID, current.Status, from)
	}
	return nil
}
