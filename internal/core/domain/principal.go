package domain

// Role is a coarse permission tier a principal holds within its home tenant.
type Role string

const (
	RoleViewer   Role = "VIEWER"
	RoleOperator Role = "OPERATOR"
	RoleApprover Role = "APPROVER"
	RoleAdmin    Role = "ADMIN"
)

// CapabilityGlobal grants access to every tenant regardless of hierarchy.
const CapabilityGlobal = "global:all"

// Principal describes the authenticated caller of a core operation. It is
// constructed by the (external) authentication layer and passed explicitly
// through every public operation; the core never consults ambient state.
type Principal struct {
	ID           string   `json:"id"`
	HomeTenantID string   `json:"homeTenantID"`
	Roles        []Role   `json:"roles"`
	Capabilities []string `json:"capabilities"`
	IPAddress    string   `json:"ipAddress"`
	UserAgent    string   `json:"userAgent"`
	UnusualIP    bool     `json:"unusualIP"` // set by the caller's fraud screening
}

// HasRole reports whether the principal holds the given role.
func (p Principal) HasRole(role Role) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasCapability reports whether the principal holds the given capability.
func (p Principal) HasCapability(capability string) bool {
	for _, c := range p.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// IsGlobal reports whether the principal bypasses the tenant hierarchy.
func (p Principal) IsGlobal() bool {
	return p.HasCapability(CapabilityGlobal)
}
