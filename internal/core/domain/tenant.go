package domain

import "github.com/shopspring/decimal"

// Tenant represents one node of the tenant forest. Every account, transaction,
// ledger entry and audit record belongs to exactly one tenant; access flows
// from ancestors to descendants only.
type Tenant struct {
	TenantID          string          `json:"tenantID"`
	Name              string          `json:"name"`
	ParentTenantID    *string         `json:"parentTenantID"` // nil for roots
	Level             int             `json:"level"`          // root = 1, parent.Level+1 otherwise
	IsActive          bool            `json:"isActive"`
	BaseCurrencyCode  string          `json:"baseCurrencyCode"`
	ApprovalThreshold decimal.Decimal `json:"approvalThreshold"` // amounts above it require an approver
	AuditFields
}

// IsRoot reports whether the tenant has no parent.
func (t Tenant) IsRoot() bool {
	return t.ParentTenantID == nil || *t.ParentTenantID == ""
}
