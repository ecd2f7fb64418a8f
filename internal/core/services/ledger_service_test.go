package services_test

import (
	"context"
	"testing"

	"github.com/crestfx/fincore/internal/apperrors"
	"github.com/crestfx/fincore/internal/core/domain"
	"github.com/crestfx/fincore/internal/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendPairValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	alice := env.newWallet(t, "alice", "USD")
	bob := env.newWallet(t, "bob", "USD")
	eur := env.newWallet(t, "carol", "EUR")

	t.Run("same account refused", func(t *testing.T) {
		_, err := env.svcs.Ledger.AppendPair(ctx, "txn-1", *alice, *alice, dec("10"), "USD", "", env.admin)
		assert.ErrorIs(t, err, apperrors.ErrValidation)
	})

	t.Run("currency mismatch refused", func(t *testing.T) {
		_, err := env.svcs.Ledger.AppendPair(ctx, "txn-1", *alice, *eur, dec("10"), "USD", "", env.admin)
		assert.ErrorIs(t, err, apperrors.ErrValidation)
	})

	t.Run("non-positive amount refused", func(t *testing.T) {
		_, err := env.svcs.Ledger.AppendPair(ctx, "txn-1", *alice, *bob, dec("0"), "USD", "", env.admin)
		assert.ErrorIs(t, err, apperrors.ErrValidation)
	})

	t.Run("entries are born unposted", func(t *testing.T) {
		pair, err := env.svcs.Ledger.AppendPair(ctx, "txn-1", *alice, *bob, dec("10"), "USD", "manual pair", env.admin)
		require.NoError(t, err)
		require.Len(t, pair, 2)
		assert.Equal(t, domain.DebitSide, pair[0].Side)
		assert.Equal(t, domain.CreditSide, pair[1].Side)
		for _, e := range pair {
			assert.False(t, e.Posted)
			assert.False(t, e.CountsTowardBalance())
		}

		require.NoError(t, env.svcs.Ledger.PostEntries(ctx, []string{pair[0].EntryID, pair[1].EntryID}, env.admin))
		posted, err := env.repos.Entries.FindEntryByID(ctx, pair[0].EntryID)
		require.NoError(t, err)
		assert.True(t, posted.Posted)
		assert.NotNil(t, posted.PostedAt)
	})
}

func TestEntriesForPagination(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	alice := env.newWallet(t, "alice", "USD")
	env.deposit(t, alice.AccountID, "10", "USD")
	env.deposit(t, alice.AccountID, "20", "USD")
	env.deposit(t, alice.AccountID, "30", "USD")

	first, err := env.svcs.Ledger.EntriesFor(ctx, alice.AccountID, dto.EntryListParams{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first.Entries, 2)
	require.NotNil(t, first.NextToken)
	assert.True(t, first.Entries[0].PostingDate.Before(first.Entries[1].PostingDate), "statements read oldest first")
	assert.True(t, first.Entries[0].Amount.Equal(dec("10")))

	second, err := env.svcs.Ledger.EntriesFor(ctx, alice.AccountID, dto.EntryListParams{Limit: 2, NextToken: first.NextToken})
	require.NoError(t, err)
	require.Len(t, second.Entries, 1)
	assert.Nil(t, second.NextToken)
	assert.True(t, second.Entries[0].Amount.Equal(dec("30")))
}

func TestEntriesForTimeWindow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	alice := env.newWallet(t, "alice", "USD")
	env.deposit(t, alice.AccountID, "10", "USD")
	cut := env.clock.Now()
	env.deposit(t, alice.AccountID, "20", "USD")

	early, err := env.svcs.Ledger.EntriesFor(ctx, alice.AccountID, dto.EntryListParams{To: &cut, Limit: 10})
	require.NoError(t, err)
	require.Len(t, early.Entries, 1)
	assert.True(t, early.Entries[0].Amount.Equal(dec("10")))

	late, err := env.svcs.Ledger.EntriesFor(ctx, alice.AccountID, dto.EntryListParams{From: &cut, Limit: 10})
	require.NoError(t, err)
	require.Len(t, late.Entries, 1)
	assert.True(t, late.Entries[0].Amount.Equal(dec("20")))
}

func TestTrialBalance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	alice := env.newWallet(t, "alice", "USD")
	bob := env.newWallet(t, "bob", "USD")
	env.deposit(t, alice.AccountID, "100", "USD")

	_, err := env.svcs.Transactions.Execute(ctx, dto.TransferRequest{
		Common:        dto.Common{TenantID: env.tenant.TenantID},
		FromAccountID: alice.AccountID,
		ToAccountID:   bob.AccountID,
		Amount:        dec("30"),
		CurrencyCode:  "USD",
	}, env.operator())
	require.NoError(t, err)

	rows, err := env.svcs.Ledger.TrialBalance(ctx, env.tenant.TenantID, env.clock.Now())
	require.NoError(t, err)
	require.Len(t, rows, 3, "two wallets plus the house cash account")

	totalDebits, totalCredits := dec("0"), dec("0")
	for _, row := range rows {
		totalDebits = totalDebits.Add(row.DebitSum)
		totalCredits = totalCredits.Add(row.CreditSum)
		if row.AccountID == alice.AccountID {
			assert.True(t, row.Net.Equal(dec("70")))
		}
	}
	assert.True(t, totalDebits.Equal(totalCredits), "the trial balance must balance")
}

func TestBalanceAsOfDerivesFromCountableEntries(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	alice := env.newWallet(t, "alice", "USD")
	deposit := env.deposit(t, alice.AccountID, "100", "USD")

	entries, err := env.repos.Entries.FindEntriesByTransactionID(ctx, deposit.TransactionID)
	require.NoError(t, err)
	var walletEntry domain.LedgerEntry
	for _, e := range entries {
		if e.AccountID == alice.AccountID {
			walletEntry = e
		}
	}
	_, err = env.svcs.Reversals.ReverseEntry(ctx, walletEntry.EntryID, "wrong amount", env.approver())
	require.NoError(t, err)

	// Neither the reversed original nor its compensating entry counts, so the
	// derived balance drops back to zero while the history stays on file.
	triple, err := env.svcs.Ledger.BalanceAsOf(ctx, alice.AccountID, env.clock.Now())
	require.NoError(t, err)
	assert.True(t, triple.Net.IsZero(), "got %s", triple.Net)

	all, err := env.svcs.Ledger.EntriesFor(ctx, alice.AccountID, dto.EntryListParams{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, all.Entries, 2, "history keeps both the original and the compensating entry")
}
