package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType classifies the business event behind a financial transaction.
type TransactionType string

const (
	CurrencyBuy  TransactionType = "CURRENCY_BUY"
	CurrencySell TransactionType = "CURRENCY_SELL"
	Deposit      TransactionType = "DEPOSIT"
	Withdrawal   TransactionType = "WITHDRAWAL"
	Transfer     TransactionType = "TRANSFER"
	Remittance   TransactionType = "REMITTANCE"
	Fee          TransactionType = "FEE"
	Refund       TransactionType = "REFUND"
	Adjustment   TransactionType = "ADJUSTMENT"
	P2PTrade     TransactionType = "P2P_TRADE"
)

// TransactionStatus is the state of a financial transaction.
//
// PENDING ──approve──▶ PROCESSING ──complete──▶ COMPLETED ──refund──▶ REFUNDED ──▶ REVERSED
//
//	PENDING/PROCESSING ──cancel──▶ CANCELLED
//	PENDING/PROCESSING ──fail──▶ FAILED
type TransactionStatus string

const (
	StatusPending    TransactionStatus = "PENDING"
	StatusProcessing TransactionStatus = "PROCESSING"
	StatusCompleted  TransactionStatus = "COMPLETED"
	StatusFailed     TransactionStatus = "FAILED"
	StatusCancelled  TransactionStatus = "CANCELLED"
	StatusRefunded   TransactionStatus = "REFUNDED"
	StatusReversed   TransactionStatus = "REVERSED"
)

// IsTerminal reports whether the status admits no further transitions
// (REFUNDED may still move to REVERSED, it is terminal for every other edge).
func (s TransactionStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusRefunded, StatusReversed:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether the state machine permits the edge s -> next.
func (s TransactionStatus) CanTransitionTo(next TransactionStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing || next == StatusCancelled || next == StatusFailed
	case StatusProcessing:
		return next == StatusCompleted || next == StatusCancelled || next == StatusFailed
	case StatusCompleted:
		return next == StatusRefunded
	case StatusRefunded:
		return next == StatusReversed
	default:
		return false
	}
}

// FinancialTransaction is a business-level event whose ledger entries sum to
// zero per currency. Once a terminal status is reached the record is immutable.
type FinancialTransaction struct {
	TransactionID     string            `json:"transactionID"`
	TransactionNumber string            `json:"transactionNumber"` // TXN<epoch-ms><4 digits>, globally unique
	TenantID          string            `json:"tenantID"`
	CustomerID        string            `json:"customerID"`
	Type              TransactionType   `json:"type"`
	FromCurrency      string            `json:"fromCurrency"`
	ToCurrency        string            `json:"toCurrency"`
	SourceAmount      decimal.Decimal   `json:"sourceAmount"`
	DestinationAmount decimal.Decimal   `json:"destinationAmount"`
	ExchangeRate      decimal.Decimal   `json:"exchangeRate"`
	FeeAmount         decimal.Decimal   `json:"feeAmount"`
	FeeCurrency       string            `json:"feeCurrency"`
	Status            TransactionStatus `json:"status"`
	Description       string            `json:"description"`
	Reference         string            `json:"reference"`         // links compensating transactions to originals
	ExternalReference string            `json:"externalReference"` // idempotency key, unique when set
	ApprovedBy        string            `json:"approvedBy"`
	ApprovedAt        *time.Time        `json:"approvedAt"`
	ProcessedAt       *time.Time        `json:"processedAt"`
	FailedAt          *time.Time        `json:"failedAt"`
	FailureReason     string            `json:"failureReason"`
	AuditFields
}
