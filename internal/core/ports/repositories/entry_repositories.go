package repositories

import (
	"context"
	"time"

	"github.com/crestfx/fincore/internal/core/domain"
)

// EntryRepository is the append-mostly ledger store. Posted entries are
// immutable except for the reversal triple.
type EntryRepository interface {
	// SaveEntries appends entries (normally a debit/credit pair) in insertion order.
	SaveEntries(ctx context.Context, entries []domain.LedgerEntry) error
	FindEntryByID(ctx context.Context, entryID string) (*domain.LedgerEntry, error)
	FindEntriesByTransactionID(ctx context.Context, transactionID string) ([]domain.LedgerEntry, error)
	// MarkPosted flips the given unposted entries to posted in one atomic unit;
	// fails with ErrConflict if any is already posted.
	MarkPosted(ctx context.Context, entryIDs []string, postedBy string, postedAt time.Time) error
	// MarkReversed sets the reversal triple on an original entry.
	MarkReversed(ctx context.Context, entryID, reversedBy string, reversedAt time.Time) error
	// ListEntriesByAccount pages the account statement ordered by
	// (postingDate, entryID); the cursor token makes the sequence restartable.
	ListEntriesByAccount(ctx context.Context, accountID string, from, to *time.Time, limit int, nextToken *string) ([]domain.LedgerEntry, *string, error)
	// SumEntriesByAccount returns debit and credit sums of countable entries
	// (posted, non-reversed, non-reversal) with postingDate <= asOf.
	SumEntriesByAccount(ctx context.Context, accountID string, asOf time.Time) (*domain.BalanceTriple, error)
}
