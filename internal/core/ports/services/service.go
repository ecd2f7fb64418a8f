// Package services declares the driving ports (facades) of the financial core.
package services

import (
	"context"
	"time"

	"github.com/crestfx/fincore/internal/core/domain"
	"github.com/crestfx/fincore/internal/dto"
	"github.com/shopspring/decimal"
)

// TenantSvcFacade is the tenant hierarchy resolver (C1).
type TenantSvcFacade interface {
	CreateTenant(ctx context.Context, req dto.CreateTenantRequest, creator domain.Principal) (*domain.Tenant, error)
	GetTenantByID(ctx context.Context, tenantID string) (*domain.Tenant, error)
	// AncestorsOf returns the chain from the tenant up to its root, tenant first.
	AncestorsOf(ctx context.Context, tenantID string) ([]domain.Tenant, error)
	// DescendantsOf returns the set of tenants below the given one.
	DescendantsOf(ctx context.Context, tenantID string) (map[string]domain.Tenant, error)
	// IsAccessible reports whether the principal may operate on the target
	// tenant: home == target, home is an ancestor of target, or the principal
	// is global. Siblings and cousins are always denied.
	IsAccessible(ctx context.Context, principal domain.Principal, targetTenantID string) (bool, error)
	// MoveTenant rewires a subtree under a new parent; cycles are refused.
	MoveTenant(ctx context.Context, tenantID, newParentID string, actor domain.Principal) error
	// DeactivateTenant flags a tenant inactive; refused while the tenant owns
	// accounts with nonzero balance.
	DeactivateTenant(ctx context.Context, tenantID string, actor domain.Principal) error
}

// AccountSvcFacade is the account store surface (C2).
type AccountSvcFacade interface {
	CreateAccount(ctx context.Context, req dto.CreateAccountRequest, creator domain.Principal) (*domain.Account, error)
	GetAccountByID(ctx context.Context, accountID string) (*domain.Account, error)
	GetAccountsByIDs(ctx context.Context, accountIDs []string) (map[string]domain.Account, error)
	FindByCustomer(ctx context.Context, tenantID, customerID, currencyCode string) (*domain.Account, error)
	// AccountBalance returns the persisted snapshot, or the entry-derived
	// triple when asOf is given.
	AccountBalance(ctx context.Context, accountID string, asOf *time.Time) (*domain.BalanceSnapshot, error)
	// SystemAccount resolves (and lazily creates) the tenant's house account
	// of the given type and currency.
	SystemAccount(ctx context.Context, tenantID string, accountType domain.AccountType, currencyCode string, actor domain.Principal) (*domain.Account, error)
	DeactivateAccount(ctx context.Context, accountID string, actor domain.Principal) error
}

// LedgerSvcFacade is the ledger store surface (C3).
type LedgerSvcFacade interface {
	// AppendPair atomically creates an unposted debit/credit entry pair for
	// the transaction; both accounts must carry the stated currency.
	AppendPair(ctx context.Context, txnID string, debitAccount, creditAccount domain.Account, amount decimal.Decimal, currencyCode, description string, actor domain.Principal) ([]domain.LedgerEntry, error)
	// PostEntries marks the given entries posted in one atomic unit.
	PostEntries(ctx context.Context, entryIDs []string, actor domain.Principal) error
	// EntriesFor pages the account statement; finite and restartable.
	EntriesFor(ctx context.Context, accountID string, params dto.EntryListParams) (*dto.EntryListResult, error)
	BalanceAsOf(ctx context.Context, accountID string, asOf time.Time) (*domain.BalanceTriple, error)
	TrialBalance(ctx context.Context, tenantID string, asOf time.Time) ([]domain.TrialBalanceRow, error)
	ValidateDoubleEntry(ctx context.Context, txnID string) (*domain.DoubleEntryReport, error)
}

// TransactionSvcFacade is the transaction coordinator (C5).
type TransactionSvcFacade interface {
	// Execute drives one request variant through the access gate, the
	// idempotency lookup and a retried atomic unit of work.
	Execute(ctx context.Context, req dto.TransactionRequest, principal domain.Principal) (*dto.TransactionResult, error)
	GetTransactionByID(ctx context.Context, transactionID string, principal domain.Principal) (*domain.FinancialTransaction, error)
}

// ReversalSvcFacade is the reversal engine (C6).
type ReversalSvcFacade interface {
	// ReverseEntry posts a compensating entry for one posted, non-reversed entry.
	ReverseEntry(ctx context.Context, entryID, reason string, principal domain.Principal) (*domain.LedgerEntry, error)
	// RefundTransaction reverses every countable entry of the transaction,
	// restores balances and writes a compensating REFUND transaction.
	RefundTransaction(ctx context.Context, transactionID, reason string, principal domain.Principal) (*dto.TransactionResult, error)
}

// AuditSvcFacade is the audit logger (C7).
type AuditSvcFacade interface {
	// Log scores, classifies and persists one audit event. Called inside the
	// mutating unit of work so the mutation commits only if the record was
	// written.
	Log(ctx context.Context, event AuditEvent) (*domain.AuditRecord, error)
	// LogAsync enqueues an out-of-band record (e.g. an access denial) on the
	// bounded retry queue.
	LogAsync(event AuditEvent)
	Query(ctx context.Context, params dto.AuditQueryParams, principal domain.Principal) (*dto.AuditQueryResult, error)
	// Close drains the retry queue.
	Close()
}

// AuditEvent is the raw input to the audit logger.
type AuditEvent struct {
	TenantID      string
	Actor         domain.Principal
	Action        domain.AuditAction
	ResourceType  string
	ResourceID    string
	TransactionID string
	Description   string
	BeforeState   string
	AfterState    string
	Metadata      map[string]string
	Tags          []string
	// AmountInBase is the moved amount converted to the tenant base currency;
	// amounts above 10,000 raise the risk score.
	AmountInBase decimal.Decimal
	ResponseCode int
	// SeverityFloor lets callers force a minimum severity (e.g. HIGH for
	// denials, CRITICAL for invariant violations).
	SeverityFloor domain.AuditSeverity
}

// Operation names a gated coordinator operation for role checks.
type Operation string

const (
	OpExecuteTransaction Operation = "transaction:execute"
	OpApproveTransaction Operation = "transaction:approve"
	OpReverse            Operation = "ledger:reverse"
	OpReadLedger         Operation = "ledger:read"
	OpManageAccounts     Operation = "accounts:manage"
	OpManageTenants      Operation = "tenants:manage"
	OpReadAudit          Operation = "audit:read"
)

// AccessTarget identifies what an operation touches.
type AccessTarget struct {
	TenantID        string
	ResourceType    string
	ResourceID      string
	OwnerCustomerID string // set when the resource belongs to a customer
}

// AccessSvcFacade is the access gate (C8): tenant accessibility, role set,
// then per-resource ownership. A denial is terminal and audited.
type AccessSvcFacade interface {
	Authorize(ctx context.Context, principal domain.Principal, op Operation, target AccessTarget) error
}

// Container bundles the service facades for hosts.
type Container struct {
	Tenants      TenantSvcFacade
	Accounts     AccountSvcFacade
	Ledger       LedgerSvcFacade
	Transactions TransactionSvcFacade
	Reversals    ReversalSvcFacade
	Audit        AuditSvcFacade
	Access       AccessSvcFacade
}
