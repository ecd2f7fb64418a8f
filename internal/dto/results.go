package dto

import (
	"time"

	"github.com/crestfx/fincore/internal/core/domain"
	"github.com/shopspring/decimal"
)

// TransactionResult is the coordinator's reply for any request variant.
type TransactionResult struct {
	TransactionID     string                   `json:"transactionID"`
	TransactionNumber string                   `json:"transactionNumber"`
	Status            domain.TransactionStatus `json:"status"`
	Type              domain.TransactionType   `json:"type"`
	SourceAmount      string                   `json:"sourceAmount"` // fixed-point decimal string
	DestinationAmount string                   `json:"destinationAmount"`
	ExchangeRate      string                   `json:"exchangeRate,omitempty"`
	FeeAmount         string                   `json:"feeAmount,omitempty"`
	EntryIDs          []string                 `json:"entryIDs"`
	ProcessedAt       *time.Time               `json:"processedAt"`
	Idempotent        bool                     `json:"idempotent"` // true when matched by ExternalReference
}

// ToTransactionResult maps a committed transaction to its boundary shape.
// Monetary fields serialize as fixed-point strings to avoid floating-point
// drift at the boundary.
func ToTransactionResult(txn *domain.FinancialTransaction, entryIDs []string, idempotent bool) *TransactionResult {
	res := &TransactionResult{
		TransactionID:     txn.TransactionID,
		TransactionNumber: txn.TransactionNumber,
		Status:            txn.Status,
		Type:              txn.Type,
		SourceAmount:      txn.SourceAmount.StringFixed(8),
		DestinationAmount: txn.DestinationAmount.StringFixed(8),
		EntryIDs:          entryIDs,
		ProcessedAt:       txn.ProcessedAt,
		Idempotent:        idempotent,
	}
	if !txn.ExchangeRate.IsZero() {
		res.ExchangeRate = txn.ExchangeRate.String()
	}
	if !txn.FeeAmount.IsZero() {
		res.FeeAmount = txn.FeeAmount.StringFixed(8)
	}
	return res
}

// CreateAccountRequest describes a new account.
type CreateAccountRequest struct {
	TenantID        string             `validate:"required"`
	CustomerID      string             // empty = system account
	Name            string             `validate:"required"`
	AccountType     domain.AccountType `validate:"required,oneof=ASSET LIABILITY EQUITY REVENUE EXPENSE"`
	CurrencyCode    string             `validate:"required,len=3"`
	ParentAccountID string
}

// Validate checks structural validity of the request.
func (r CreateAccountRequest) Validate() error { return validateStruct(r) }

// CreateTenantRequest describes a new tenant node.
type CreateTenantRequest struct {
	Name              string `validate:"required"`
	ParentTenantID    string // empty = new root
	BaseCurrencyCode  string `validate:"required,len=3"`
	ApprovalThreshold decimal.Decimal
}

// Validate checks structural validity of the request.
func (r CreateTenantRequest) Validate() error { return validateStruct(r) }

// EntryListParams narrows and pages an account statement listing.
type EntryListParams struct {
	From      *time.Time
	To        *time.Time
	Limit     int
	NextToken *string
}

// EntryListResult is one page of an account statement.
type EntryListResult struct {
	Entries   []domain.LedgerEntry `json:"entries"`
	NextToken *string              `json:"nextToken"`
}

// AuditQueryParams filters the audit trail.
type AuditQueryParams struct {
	TenantID  string
	ActorID   string
	Action    domain.AuditAction
	From      *time.Time
	To        *time.Time
	Limit     int
	NextToken *string
}

// AuditQueryResult is one page of audit records.
type AuditQueryResult struct {
	Records   []domain.AuditRecord `json:"records"`
	NextToken *string              `json:"nextToken"`
}
