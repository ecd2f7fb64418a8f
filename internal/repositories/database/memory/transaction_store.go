package memory

import (
	"context"
	"fmt"

	"github.com/crestfx/fincore/internal/apperrors"
	"github.com/crestfx/fincore/internal/core/domain"
	portsrepo "github.com/crestfx/fincore/internal/core/ports/repositories"
)

type memTransactionRepository struct {
	store *Store
}

var _ portsrepo.TransactionRepository = (*memTransactionRepository)(nil)

func extRefKey(tenantID, externalReference string) string {
	return tenantID + "|" + externalReference
}

func (r *memTransactionRepository) SaveTransaction(ctx context.Context, txn domain.FinancialTransaction) error {
	defer r.store.lock(ctx)()

	if _, exists := r.store.transactions[txn.TransactionID]; exists {
		return fmt.Errorf("%w: transaction %s", apperrors.ErrDuplicate, txn.TransactionID)
	}
	if txn.ExternalReference != "" {
		key := extRefKey(txn.TenantID, txn.ExternalReference)
		if _, exists := r.store.extRefIndex[key]; exists {
			return fmt.Errorf("%w: external reference %s", apperrors.ErrDuplicate, txn.ExternalReference)
		}
		r.store.extRefIndex[key] = txn.TransactionID
	}
	r.store.transactions[txn.TransactionID] = txn
	return nil
}

func (r *memTransactionRepository) FindTransactionByID(ctx context.Context, transactionID string) (*domain.FinancialTransaction, error) {
	defer r.store.lock(ctx)()

	txn, ok := r.store.transactions[transactionID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return &txn, nil
}

func (r *memTransactionRepository) FindByExternalReference(ctx context.Context, tenantID, externalReference string) (*domain.FinancialTransaction, error) {
	defer r.store.lock(ctx)()

	id, ok := r.store.extRefIndex[extRefKey(tenantID, externalReference)]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	txn := r.store.transactions[id]
	return &txn, nil
}

func (r *memTransactionRepository) UpdateTransactionStatus(ctx context.Context, transactionID string, from, to domain.TransactionStatus, update portsrepo.StatusUpdate) error {
	defer r.store.lock(ctx)()

	txn, ok := r.store.transactions[transactionID]
	if !ok {
		return apperrors.ErrNotFound
	}
	if txn.Status != from {
		return fmt.Errorf("%w: transaction %s is %s, expected %s", apperrors.ErrConflict, transactionID, txn.Status, from)
	}

	txn.Status = to
	if update.ProcessedAt != nil {
		txn.ProcessedAt = update.ProcessedAt
	}
	if update.FailedAt != nil {
		txn.FailedAt = update.FailedAt
	}
	if update.FailureReason != "" {
		txn.FailureReason = update.FailureReason
	}
	if update.ApprovedBy != "" {
		txn.ApprovedBy = update.ApprovedBy
	}
	if update.ApprovedAt != nil {
		txn.ApprovedAt = update.ApprovedAt
	}
	if update.Reference != "" {
		txn.Reference = update.Reference
	}
	txn.LastUpdatedBy = update.UpdatedBy
	txn.LastUpdatedAt = update.UpdatedAt
	r.store.transactions[transactionID] = txn
	return nil
}
