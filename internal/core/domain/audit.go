package domain

import "time"

// AuditAction enumerates the auditable mutations of the core.
type AuditAction string

const (
	ActionTransactionCreated  AuditAction = "TRANSACTION_CREATED"
	ActionTransactionApproved AuditAction = "TRANSACTION_APPROVED"
	ActionTransactionFailed   AuditAction = "TRANSACTION_FAILED"
	ActionTransactionReversed AuditAction = "TRANSACTION_REVERSED"
	ActionEntryReversed       AuditAction = "ENTRY_REVERSED"
	ActionAccountCreated      AuditAction = "ACCOUNT_CREATED"
	ActionAccountDeactivated  AuditAction = "ACCOUNT_DEACTIVATED"
	ActionBalanceAdjusted     AuditAction = "BALANCE_ADJUSTED"
	ActionAccessDenied        AuditAction = "ACCESS_DENIED"
	ActionTenantCreated       AuditAction = "TENANT_CREATED"
	ActionTenantMoved         AuditAction = "TENANT_MOVED"
	ActionTenantDeactivated   AuditAction = "TENANT_DEACTIVATED"
	ActionLoginFailed         AuditAction = "LOGIN_FAILED"
	ActionSuspiciousActivity  AuditAction = "SUSPICIOUS_ACTIVITY"
)

// AuditSeverity classifies an audit record; it also drives retention.
type AuditSeverity string

const (
	SeverityLow      AuditSeverity = "LOW"
	SeverityMedium   AuditSeverity = "MEDIUM"
	SeverityHigh     AuditSeverity = "HIGH"
	SeverityCritical AuditSeverity = "CRITICAL"
)

// rank orders severities so per-action floors can be applied.
func (s AuditSeverity) rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 1
	default:
		return 0
	}
}

// AtLeast returns the higher of s and floor.
func (s AuditSeverity) AtLeast(floor AuditSeverity) AuditSeverity {
	if floor.rank() > s.rank() {
		return floor
	}
	return s
}

// AuditRecord is the append-only description of one mutation. Records are
// immutable after commit and RetainedUntil is never shortened.
type AuditRecord struct {
	AuditID       string            `json:"auditID"`
	AuditNumber   string            `json:"auditNumber"` // AUD<epoch-ms><3 digits>, unique
	TenantID      string            `json:"tenantID"`
	ActorID       string            `json:"actorID"`
	Action        AuditAction       `json:"action"`
	ResourceType  string            `json:"resourceType"`
	ResourceID    string            `json:"resourceID"`
	TransactionID string            `json:"transactionID"`
	Description   string            `json:"description"`
	BeforeState   string            `json:"beforeState"` // JSON snapshot, may be empty
	AfterState    string            `json:"afterState"`  // JSON snapshot, may be empty
	Metadata      map[string]string `json:"metadata"`
	IPAddress     string            `json:"ipAddress"`
	UserAgent     string            `json:"userAgent"`
	Severity      AuditSeverity     `json:"severity"`
	RiskScore     int               `json:"riskScore"` // 0..100
	Tags          []string          `json:"tags"`
	RetainedUntil time.Time         `json:"retainedUntil"`
	CreatedAt     time.Time         `json:"createdAt"`
}
