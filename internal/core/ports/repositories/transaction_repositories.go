package repositories

import (
	"context"
	"time"

	"github.com/crestfx/fincore/internal/core/domain"
)

// TransactionRepository persists financial transaction records.
type TransactionRepository interface {
	SaveTransaction(ctx context.Context, txn domain.FinancialTransaction) error
	FindTransactionByID(ctx context.Context, transactionID string) (*domain.FinancialTransaction, error)
	// FindByExternalReference serves the idempotency lookup; ErrNotFound when absent.
	FindByExternalReference(ctx context.Context, tenantID, externalReference string) (*domain.FinancialTransaction, error)
	// UpdateTransactionStatus moves a transaction along a state-machine edge.
	// The write is guarded on the current status so terminal rows stay
	// immutable and concurrent transitions cannot double-apply.
	UpdateTransactionStatus(ctx context.Context, transactionID string, from, to domain.TransactionStatus, update StatusUpdate) error
}

// StatusUpdate carries the status-adjacent fields written with a transition.
type StatusUpdate struct {
	ProcessedAt   *time.Time
	FailedAt      *time.Time
	FailureReason string
	ApprovedBy    string
	ApprovedAt    *time.Time
	Reference     string
	UpdatedBy     string
	UpdatedAt     time.Time
}
