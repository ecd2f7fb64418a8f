package domain

import "github.com/shopspring/decimal"

// AccountType defines the fundamental accounting type of an account.
type AccountType string

const (
	Asset     AccountType = "ASSET"
	Liability AccountType = "LIABILITY"
	Equity    AccountType = "EQUITY"
	Revenue   AccountType = "REVENUE"
	Expense   AccountType = "EXPENSE"
)

// AccountNumberPrefix returns the leading digit of account numbers of this type.
func (t AccountType) AccountNumberPrefix() string {
	switch t {
	case Asset:
		return "1"
	case Liability:
		return "2"
	case Equity:
		return "3"
	case Revenue:
		return "4"
	case Expense:
		return "5"
	default:
		return "9"
	}
}

// Account is a named container of value in one currency. Customer wallets are
// LIABILITY accounts (the platform owes the customer); system accounts carry
// an empty CustomerID. Balances are mutated only through the guarded
// compare-and-swap primitives keyed on Version.
type Account struct {
	AccountID        string          `json:"accountID"`
	AccountNumber    string          `json:"accountNumber"` // unique, type-prefixed
	TenantID         string          `json:"tenantID"`
	CustomerID       string          `json:"customerID"` // empty = system account
	Name             string          `json:"name"`
	AccountType      AccountType     `json:"accountType"`
	CurrencyCode     string          `json:"currencyCode"`
	ParentAccountID  string          `json:"parentAccountID"` // nullable, self-referencing
	Balance          decimal.Decimal `json:"balance"`
	AvailableBalance decimal.Decimal `json:"availableBalance"`
	BlockedBalance   decimal.Decimal `json:"blockedBalance"`
	IsActive         bool            `json:"isActive"`
	Version          int64           `json:"version"` // strictly increasing on every mutation
	AuditFields
}

// IsSystem reports whether the account is a house/system account.
func (a Account) IsSystem() bool {
	return a.CustomerID == ""
}

// AllowsNegative reports whether policy permits this account's available
// balance to go below zero. Only system accounts of the credit-normal types
// (settlement positions, revenue, equity) may run negative.
func (a Account) AllowsNegative() bool {
	if !a.IsSystem() {
		return false
	}
	switch a.AccountType {
	case Liability, Equity, Revenue:
		return true
	default:
		return false
	}
}

// BalanceSnapshot is the read model returned by balance queries.
type BalanceSnapshot struct {
	AccountID        string          `json:"accountID"`
	Balance          decimal.Decimal `json:"balance"`
	AvailableBalance decimal.Decimal `json:"availableBalance"`
	BlockedBalance   decimal.Decimal `json:"blockedBalance"`
	Version          int64           `json:"version"`
}
