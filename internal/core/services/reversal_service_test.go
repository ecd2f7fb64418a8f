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

func TestReverseEntry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	alice := env.newWallet(t, "alice", "USD")
	deposit := env.deposit(t, alice.AccountID, "100", "USD")

	entries, err := env.repos.Entries.FindEntriesByTransactionID(ctx, deposit.TransactionID)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	var walletCredit domain.LedgerEntry
	for _, e := range entries {
		if e.AccountID == alice.AccountID {
			walletCredit = e
		}
	}
	require.Equal(t, domain.CreditSide, walletCredit.Side)

	compensating, err := env.svcs.Reversals.ReverseEntry(ctx, walletCredit.EntryID, "posted in error", env.approver())
	require.NoError(t, err)

	assert.Equal(t, domain.DebitSide, compensating.Side, "the compensating entry sits on the opposite side")
	assert.Equal(t, walletCredit.EntryID, compensating.ReversalEntryID)
	assert.True(t, compensating.Posted, "compensating entries are born posted")
	assert.True(t, compensating.Amount.Equal(walletCredit.Amount))

	assert.True(t, env.balance(t, alice.AccountID).Balance.IsZero(), "the reversal restores the balance")

	original, err := env.repos.Entries.FindEntryByID(ctx, walletCredit.EntryID)
	require.NoError(t, err)
	assert.True(t, original.Reversed)
	assert.NotNil(t, original.ReversedAt)

	t.Run("double reversal refused", func(t *testing.T) {
		_, err := env.svcs.Reversals.ReverseEntry(ctx, walletCredit.EntryID, "again", env.approver())
		assert.ErrorIs(t, err, apperrors.ErrAlreadyReversed)
	})

	t.Run("reversing a reversal refused", func(t *testing.T) {
		_, err := env.svcs.Reversals.ReverseEntry(ctx, compensating.EntryID, "undo the undo", env.approver())
		assert.ErrorIs(t, err, apperrors.ErrValidation)
	})

	t.Run("reason required", func(t *testing.T) {
		_, err := env.svcs.Reversals.ReverseEntry(ctx, walletCredit.EntryID, "", env.approver())
		assert.ErrorIs(t, err, apperrors.ErrValidation)
	})
}

func TestReverseEntryRequiresApproverRole(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	alice := env.newWallet(t, "alice", "USD")
	deposit := env.deposit(t, alice.AccountID, "100", "USD")

	entries, err := env.repos.Entries.FindEntriesByTransactionID(ctx, deposit.TransactionID)
	require.NoError(t, err)

	_, err = env.svcs.Reversals.ReverseEntry(ctx, entries[0].EntryID, "not my call", env.operator())
	assert.ErrorIs(t, err, apperrors.ErrAccessDenied)
}

func TestRefundTransaction(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	alice := env.newWallet(t, "alice", "USD")
	bob := env.newWallet(t, "bob", "USD")
	env.deposit(t, alice.AccountID, "100", "USD")

	transfer, err := env.svcs.Transactions.Execute(ctx, dto.TransferRequest{
		Common:        dto.Common{TenantID: env.tenant.TenantID},
		FromAccountID: alice.AccountID,
		ToAccountID:   bob.AccountID,
		Amount:        dec("30"),
		CurrencyCode:  "USD",
	}, env.operator())
	require.NoError(t, err)

	result, err := env.svcs.Reversals.RefundTransaction(ctx, transfer.TransactionID, "customer dispute", env.approver())
	require.NoError(t, err)

	assert.Equal(t, domain.Refund, result.Type)
	assert.Equal(t, domain.StatusCompleted, result.Status)
	assert.Len(t, result.EntryIDs, 2)

	refund, err := env.repos.Transactions.FindTransactionByID(ctx, result.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, transfer.TransactionID, refund.Reference, "the refund references the original")

	original, err := env.repos.Transactions.FindTransactionByID(ctx, transfer.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRefunded, original.Status)

	assert.True(t, env.balance(t, alice.AccountID).Balance.Equal(dec("100")), "the refund restores both balances")
	assert.True(t, env.balance(t, bob.AccountID).Balance.IsZero())

	originalEntries, err := env.repos.Entries.FindEntriesByTransactionID(ctx, transfer.TransactionID)
	require.NoError(t, err)
	for _, e := range originalEntries {
		assert.True(t, e.Reversed, "entry %s must be flagged reversed", e.EntryID)
	}

	t.Run("double refund refused", func(t *testing.T) {
		_, err := env.svcs.Reversals.RefundTransaction(ctx, transfer.TransactionID, "again", env.approver())
		assert.ErrorIs(t, err, apperrors.ErrConflict)
	})
}

func TestRefundViaCoordinatorRequest(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	alice := env.newWallet(t, "alice", "USD")
	deposit := env.deposit(t, alice.AccountID, "100", "USD")

	result, err := env.svcs.Transactions.Execute(ctx, dto.RefundRequest{
		Common:        dto.Common{TenantID: env.tenant.TenantID},
		TransactionID: deposit.TransactionID,
		Reason:        "duplicate deposit",
	}, env.approver())
	require.NoError(t, err)

	assert.Equal(t, domain.Refund, result.Type)
	assert.True(t, env.balance(t, alice.AccountID).Balance.IsZero())

	original, err := env.repos.Transactions.FindTransactionByID(ctx, deposit.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRefunded, original.Status)
}

func TestRefundOnlyCompletedTransactions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	alice := env.newWallet(t, "alice", "USD")

	// A parked transaction is PENDING and cannot be refunded.
	parked, err := env.svcs.Transactions.Execute(ctx, dto.DepositRequest{
		Common:       dto.Common{TenantID: env.tenant.TenantID},
		AccountID:    alice.AccountID,
		Amount:       dec("20000"),
		CurrencyCode: "USD",
	}, env.operator())
	require.NoError(t, err)
	require.Equal(t, domain.StatusPending, parked.Status)

	_, err = env.svcs.Reversals.RefundTransaction(ctx, parked.TransactionID, "not yet", env.approver())
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}
