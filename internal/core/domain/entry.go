package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntrySide indicates whether a ledger entry is a debit or a credit.
type EntrySide string

const (
	DebitSide  EntrySide = "DEBIT"
	CreditSide EntrySide = "CREDIT"
)

// Opposite returns the other side.
func (s EntrySide) Opposite() EntrySide {
	if s == DebitSide {
		return CreditSide
	}
	return DebitSide
}

// LedgerEntry is one debit or credit against a single account, belonging to
// exactly one transaction. Entries are born unposted, posted once, and
// optionally reversed once; a posted entry is immutable except for the
// reversal triple.
type LedgerEntry struct {
	EntryID       string          `json:"entryID"`
	EntryNumber   string          `json:"entryNumber"` // LE<epoch-ms><3 digits>, unique
	TenantID      string          `json:"tenantID"`
	TransactionID string          `json:"transactionID"`
	AccountID     string          `json:"accountID"`
	Side          EntrySide       `json:"side"`
	Amount        decimal.Decimal `json:"amount"` // always > 0
	CurrencyCode  string          `json:"currencyCode"`
	PostingDate   time.Time       `json:"postingDate"`
	ValueDate     time.Time       `json:"valueDate"`
	Posted        bool            `json:"posted"`
	PostedAt      *time.Time      `json:"postedAt"`
	PostedBy      string          `json:"postedBy"`
	Reversed      bool            `json:"reversed"`
	ReversedAt    *time.Time      `json:"reversedAt"`
	ReversedBy    string          `json:"reversedBy"`
	ReversalEntryID string        `json:"reversalEntryID"` // set on the compensating entry, pointing at the original
	CreatedBy     string          `json:"createdBy"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// IsReversal reports whether the entry is itself a compensating entry.
func (e LedgerEntry) IsReversal() bool {
	return e.ReversalEntryID != ""
}

// CountsTowardBalance reports whether the entry participates in balance
// derivation and double-entry validation: posted, not flagged reversed, and
// not itself a reversal (a reversed original and its compensating entry
// cancel by exclusion, leaving history intact).
func (e LedgerEntry) CountsTowardBalance() bool {
	return e.Posted && !e.Reversed && !e.IsReversal()
}

// BalanceTriple is the derived (debit, credit, net) view of an account.
type BalanceTriple struct {
	AccountID  string          `json:"accountID"`
	DebitSum   decimal.Decimal `json:"debitSum"`
	CreditSum  decimal.Decimal `json:"creditSum"`
	Net        decimal.Decimal `json:"net"`
}

// DoubleEntryReport is the result of validating one transaction's entries.
type DoubleEntryReport struct {
	TransactionID string          `json:"transactionID"`
	Balanced      bool            `json:"balanced"`
	TotalDebits   decimal.Decimal `json:"totalDebits"`
	TotalCredits  decimal.Decimal `json:"totalCredits"`
	EntryCount    int             `json:"entryCount"`
}

// TrialBalanceRow is one line of a tenant trial balance.
type TrialBalanceRow struct {
	AccountID     string          `json:"accountID"`
	AccountNumber string          `json:"accountNumber"`
	AccountName   string          `json:"accountName"`
	AccountType   AccountType     `json:"accountType"`
	CurrencyCode  string          `json:"currencyCode"`
	DebitSum      decimal.Decimal `json:"debitSum"`
	CreditSum     decimal.Decimal `json:"creditSum"`
	Net           decimal.Decimal `json:"net"`
}
