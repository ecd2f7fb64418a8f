package pgsql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/crestfx/fincore/internal/apperrors"
	"github.com/crestfx/fincore/internal/core/domain"
	portsrepo "github.com/crestfx/fincore/internal/core/ports/repositories"
	"github.com/crestfx/fincore/internal/utils/pagination"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgxEntryRepository struct {
	BaseRepository
}

// newPgxEntryRepository creates a new repository for ledger entry data.
func newPgxEntryRepository(pool *pgxpool.Pool) portsrepo.EntryRepository {
	return &PgxEntryRepository{BaseRepository: BaseRepository{Pool: pool}}
}

var _ portsrepo.EntryRepository = (*PgxEntryRepository)(nil)

const entryColumns = `
	entry_id, entry_number, tenant_id, transaction_id, account_id, side,
	amount, currency_code, posting_date, value_date,
	posted, posted_at, posted_by, reversed, reversed_at, reversed_by,
	reversal_entry_id, created_by, created_at`

func scanEntry(row pgx.Row) (*domain.LedgerEntry, error) {
	var e domain.LedgerEntry
	var postedAt, reversedAt sql.NullTime
	var postedBy, reversedBy, reversalID sql.NullString
	err := row.Scan(
		&e.EntryID,
		&e.EntryNumber,
		&e.TenantID,
		&e.TransactionID,
		&e.AccountID,
		&e.Side,
		&e.Amount,
		&e.CurrencyCode,
		&e.PostingDate,
		&e.ValueDate,
		&e.Posted,
		&postedAt,
		&postedBy,
		&e.Reversed,
		&reversedAt,
		&reversedBy,
		&reversalID,
		&e.CreatedBy,
		&e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if postedAt.Valid {
		e.PostedAt = &postedAt.Time
	}
	if reversedAt.Valid {
		e.ReversedAt = &reversedAt.Time
	}
	e.PostedBy = postedBy.String
	e.ReversedBy = reversedBy.String
	e.ReversalEntryID = reversalID.String
	return &e, nil
}

// SaveEntries appends ledger entries in insertion order.
func (r *PgxEntryRepository) SaveEntries(ctx context.Context, entries []domain.LedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}

	query := `
		INSERT INTO ledger_entries (` + entryColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19);
	`
	db := r.db(ctx)
	for _, e := range entries {
		var postedAt, reversedAt sql.NullTime
		if e.PostedAt != nil {
			postedAt = sql.NullTime{Time: *e.PostedAt, Valid: true}
		}
		if e.ReversedAt != nil {
			reversedAt = sql.NullTime{Time: *e.ReversedAt, Valid: true}
		}
		var postedBy, reversedBy, reversalID sql.NullString
		if e.PostedBy != "" {
			postedBy = sql.NullString{String: e.PostedBy, Valid: true}
		}
		if e.ReversedBy != "" {
			reversedBy = sql.NullString{String: e.ReversedBy, Valid: true}
		}
		if e.ReversalEntryID != "" {
			reversalID = sql.NullString{String: e.ReversalEntryID, Valid: true}
		}

		_, err := db.Exec(ctx, query,
			e.EntryID, e.EntryNumber, e.TenantID, e.TransactionID, e.AccountID, e.Side,
			e.Amount, e.CurrencyCode, e.PostingDate, e.ValueDate,
			e.Posted, postedAt, postedBy, e.Reversed, reversedAt, reversedBy,
			reversalID, e.CreatedBy, e.CreatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: ledger entry %s (%s)", apperrors.ErrDuplicate, e.EntryID, e.EntryNumber)
			}
			return apperrors.NewAppError(500, "failed to save ledger entry "+e.EntryID, err)
		}
	}
	return nil
}

// FindEntryByID retrieves a ledger entry by its ID.
func (r *PgxEntryRepository) FindEntryByID(ctx context.Context, entryID string) (*domain.LedgerEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM ledger_entries WHERE entry_id = $1;`
	e, err := scanEntry(r.db(ctx).QueryRow(ctx, query, entryID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, apperrors.NewAppError(500, "failed to find ledger entry "+entryID, err)
	}
	return e, nil
}

// FindEntriesByTransactionID retrieves a transaction's entries in insertion order.
func (r *PgxEntryRepository) FindEntriesByTransactionID(ctx context.Context, transactionID string) ([]domain.LedgerEntry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM ledger_entries
		WHERE transaction_id = $1
		ORDER BY created_at, entry_id;
	`
	rows, err := r.db(ctx).Query(ctx, query, transactionID)
	if err != nil {
		return nil, apperrors.NewAppError(500, "failed to query entries for transaction "+transactionID, err)
	}
	defer rows.Close()

	entries := []domain.LedgerEntry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, apperrors.NewAppError(500, "failed to scan ledger entry row", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewAppError(500, "error iterating ledger entry rows", err)
	}
	return entries, nil
}

// MarkPosted flips the given unposted entries to posted in one atomic unit.
func (r *PgxEntryRepository) MarkPosted(ctx context.Context, entryIDs []string, postedBy string, postedAt time.Time) error {
	if len(entryIDs) == 0 {
		return nil
	}

	query := `
		UPDATE ledger_entries
		SET posted = TRUE, posted_at = $2, posted_by = $3
		WHERE entry_id = ANY($1) AND posted = FALSE;
	`
	cmdTag, err := r.db(ctx).Exec(ctx, query, entryIDs, postedAt, postedBy)
	if err != nil {
		return apperrors.NewAppError(500, "failed to post ledger entries", err)
	}
	if cmdTag.RowsAffected() != int64(len(entryIDs)) {
		return fmt.Errorf("%w: %d of %d entries were missing or already posted",
			apperrors.ErrConflict, int64(len(entryIDs))-cmdTag.RowsAffected(), len(entryIDs))
	}
	return nil
}

// MarkReversed sets the reversal triple on an original posted entry.
func (r *PgxEntryRepository) MarkReversed(ctx context.Context, entryID, reversedBy string, reversedAt time.Time) error {
	query := `
		UPDATE ledger_entries
		SET reversed = TRUE, reversed_at = $2, reversed_by = $3
		WHERE entry_id = $1 AND posted = TRUE AND reversed = FALSE;
	`
	cmdTag, err := r.db(ctx).Exec(ctx, query, entryID, reversedAt, reversedBy)
	if err != nil {
		return apperrors.NewAppError(500, "failed to mark entry reversed "+entryID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		entry, findErr := r.FindEntryByID(ctx, entryID)
		if findErr != nil {
			return findErr
		}
		if !entry.Posted {
			return fmt.Errorf("%w: entry %s", apperrors.ErrNotPosted, entryID)
		}
		return fmt.Errorf("%w: entry %s", apperrors.ErrAlreadyReversed, entryID)
	}
	return nil
}

// ListEntriesByAccount pages the account statement ordered by (postingDate, entryID).
func (r *PgxEntryRepository) ListEntriesByAccount(ctx context.Context, accountID string, from, to *time.Time, limit int, nextToken *string) ([]domain.LedgerEntry, *string, error) {
	if limit <= 0 {
		limit = 50
	}
	fetchLimit := limit + 1

	query := `SELECT ` + entryColumns + ` FROM ledger_entries WHERE account_id = $1`
	args := []any{accountID}

	if from != nil {
		args = append(args, *from)
		query += ` AND posting_date >= $` + strconv.Itoa(len(args))
	}
	if to != nil {
		args = append(args, *to)
		query += ` AND posting_date <= $` + strconv.Itoa(len(args))
	}
	if nextToken != nil && *nextToken != "" {
		lastDate, lastID, err := pagination.DecodeToken(*nextToken)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
		}
		args = append(args, lastDate, lastID)
		query += ` AND (posting_date, entry_id) > ($` + strconv.Itoa(len(args)-1) + `, $` + strconv.Itoa(len(args)) + `)`
	}
	args = append(args, fetchLimit)
	query += ` ORDER BY posting_date, entry_id LIMIT $` + strconv.Itoa(len(args)) + `;`

	rows, err := r.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, nil, apperrors.NewAppError(500, "failed to list entries for account "+accountID, err)
	}
	defer rows.Close()

	entries := []domain.LedgerEntry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, nil, apperrors.NewAppError(500, "failed to scan ledger entry row", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, apperrors.NewAppError(500, "error iterating ledger entry rows", err)
	}

	var nextTokenVal *string
	if len(entries) > limit {
		entries = entries[:limit]
		last := entries[limit-1]
		token := pagination.EncodeToken(last.PostingDate, last.EntryID)
		nextTokenVal = &token
	}
	return entries, nextTokenVal, nil
}

// SumEntriesByAccount sums the countable entries of an account up to asOf.
// Countable means posted, not flagged reversed, and not itself a reversal.
func (r *PgxEntryRepository) SumEntriesByAccount(ctx context.Context, accountID string, asOf time.Time) (*domain.BalanceTriple, error) {
	query := `
		SELECT
			COALESCE(SUM(amount) FILTER (WHERE side = 'DEBIT'), 0),
			COALESCE(SUM(amount) FILTER (WHERE side = 'CREDIT'), 0)
		FROM ledger_entries
		WHERE account_id = $1
		  AND posted = TRUE
		  AND reversed = FALSE
		  AND reversal_entry_id IS NULL
		  AND posting_date <= $2;
	`
	triple := domain.BalanceTriple{AccountID: accountID}
	err := r.db(ctx).QueryRow(ctx, query, accountID, asOf).Scan(&triple.DebitSum, &triple.CreditSum)
	if err != nil {
		return nil, apperrors.NewAppError(500, "failed to sum entries for account "+accountID, err)
	}
	return &triple, nil
}
