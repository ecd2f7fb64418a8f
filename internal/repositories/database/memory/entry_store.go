package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/crestfx/fincore/internal/apperrors"
	"github.com/crestfx/fincore/internal/core/domain"
	portsrepo "github.com/crestfx/fincore/internal/core/ports/repositories"
	"github.com/crestfx/fincore/internal/utils/pagination"
)

type memEntryRepository struct {
	store *Store
}

var _ portsrepo.EntryRepository = (*memEntryRepository)(nil)

func (r *memEntryRepository) SaveEntries(ctx context.Context, entries []domain.LedgerEntry) error {
	defer r.store.lock(ctx)()

	for _, e := range entries {
		for _, existing := range r.store.entries {
			if existing.EntryID == e.EntryID || existing.EntryNumber == e.EntryNumber {
				return fmt.Errorf("%w: ledger entry %s (%s)", apperrors.ErrDuplicate, e.EntryID, e.EntryNumber)
			}
		}
		r.store.entries = append(r.store.entries, e)
	}
	return nil
}

func (r *memEntryRepository) FindEntryByID(ctx context.Context, entryID string) (*domain.LedgerEntry, error) {
	defer r.store.lock(ctx)()

	if i := r.indexLocked(entryID); i >= 0 {
		e := r.store.entries[i]
		return &e, nil
	}
	return nil, apperrors.ErrNotFound
}

func (r *memEntryRepository) indexLocked(entryID string) int {
	for i := range r.store.entries {
		if r.store.entries[i].EntryID == entryID {
			return i
		}
	}
	return -1
}

func (r *memEntryRepository) FindEntriesByTransactionID(ctx context.Context, transactionID string) ([]domain.LedgerEntry, error) {
	defer r.store.lock(ctx)()

	entries := []domain.LedgerEntry{}
	for _, e := range r.store.entries {
		if e.TransactionID == transactionID {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

func (r *memEntryRepository) MarkPosted(ctx context.Context, entryIDs []string, postedBy string, postedAt time.Time) error {
	defer r.store.lock(ctx)()

	// Validate all before flipping any; the unit of work expects all-or-nothing.
	indexes := make([]int, 0, len(entryIDs))
	for _, id := range entryIDs {
		i := r.indexLocked(id)
		if i < 0 || r.store.entries[i].Posted {
			return fmt.Errorf("%w: entry %s missing or already posted", apperrors.ErrConflict, id)
		}
		indexes = append(indexes, i)
	}
	for _, i := range indexes {
		e := r.store.entries[i]
		e.Posted = true
		ts := postedAt
		e.PostedAt = &ts
		e.PostedBy = postedBy
		r.store.entries[i] = e
	}
	return nil
}

func (r *memEntryRepository) MarkReversed(ctx context.Context, entryID, reversedBy string, reversedAt time.Time) error {
	defer r.store.lock(ctx)()

	i := r.indexLocked(entryID)
	if i < 0 {
		return apperrors.ErrNotFound
	}
	e := r.store.entries[i]
	if !e.Posted {
		return fmt.Errorf("%w: entry %s", apperrors.ErrNotPosted, entryID)
	}
	if e.Reversed {
		return fmt.Errorf("%w: entry %s", apperrors.ErrAlreadyReversed, entryID)
	}
	e.Reversed = true
	ts := reversedAt
	e.ReversedAt = &ts
	e.ReversedBy = reversedBy
	r.store.entries[i] = e
	return nil
}

func (r *memEntryRepository) ListEntriesByAccount(ctx context.Context, accountID string, from, to *time.Time, limit int, nextToken *string) ([]domain.LedgerEntry, *string, error) {
	defer r.store.lock(ctx)()

	if limit <= 0 {
		limit = 50
	}

	matches := []domain.LedgerEntry{}
	for _, e := range r.store.entries {
		if e.AccountID != accountID {
			continue
		}
		if from != nil && e.PostingDate.Before(*from) {
			continue
		}
		if to != nil && e.PostingDate.After(*to) {
			continue
		}
		matches = append(matches, e)
	}
	sort.Slice(matches, func(i, j int) bool {
		if !matches[i].PostingDate.Equal(matches[j].PostingDate) {
			return matches[i].PostingDate.Before(matches[j].PostingDate)
		}
		return matches[i].EntryID < matches[j].EntryID
	})

	if nextToken != nil && *nextToken != "" {
		lastDate, lastID, err := pagination.DecodeToken(*nextToken)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
		}
		cut := 0
		for cut < len(matches) {
			e := matches[cut]
			if e.PostingDate.After(lastDate) || (e.PostingDate.Equal(lastDate) && e.EntryID > lastID) {
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
		t := pagination.EncodeToken(last.PostingDate, last.EntryID)
		token = &t
	}
	return matches, token, nil
}

func (r *memEntryRepository) SumEntriesByAccount(ctx context.Context, accountID string, asOf time.Time) (*domain.BalanceTriple, error) {
	defer r.store.lock(ctx)()

	triple := domain.BalanceTriple{AccountID: accountID}
	for _, e := range r.store.entries {
		if e.AccountID != accountID || !e.CountsTowardBalance() || e.PostingDate.After(asOf) {
			continue
		}
		if e.Side == domain.DebitSide {
			triple.DebitSum = triple.DebitSum.Add(e.Amount)
		} else {
			triple.CreditSum = triple.CreditSum.Add(e.Amount)
		}
	}
	return &triple, nil
}
