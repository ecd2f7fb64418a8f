package services

import (
	"context"
	"fmt"

	"github.com/crestfx/fincore/internal/apperrors"
	"github.com/crestfx/fincore/internal/core/domain"
	portssvc "github.com/crestfx/fincore/internal/core/ports/services"
	"github.com/crestfx/fincore/internal/platform/logging"
)

// operationRoles is the role set required per gated operation. Any listed
// role suffices; ADMIN is implied everywhere.
var operationRoles = map[portssvc.Operation][]domain.Role{
	portssvc.OpExecuteTransaction: {domain.RoleOperator},
	portssvc.OpApproveTransaction: {domain.RoleApprover},
	portssvc.OpReverse:            {domain.RoleApprover},
	portssvc.OpReadLedger:         {domain.RoleViewer, domain.RoleOperator, domain.RoleApprover},
	portssvc.OpManageAccounts:     {domain.RoleOperator},
	portssvc.OpManageTenants:      {},
	portssvc.OpReadAudit:          {domain.RoleApprover},
}

// AccessService is the access gate (C8). Checks run in a fixed order —
// tenant accessibility, then role, then per-resource ownership — and the
// first failure is terminal and audited out of band.
type AccessService struct {
	tenants portssvc.TenantSvcFacade
	audit   portssvc.AuditSvcFacade
}

var _ portssvc.AccessSvcFacade = (*AccessService)(nil)

// NewAccessService creates the access gate.
func NewAccessService(tenants portssvc.TenantSvcFacade, audit portssvc.AuditSvcFacade) *AccessService {
	return &AccessService{tenants: tenants, audit: audit}
}

// Authorize admits or denies one gated operation against a target.
func (s *AccessService) Authorize(ctx context.Context, principal domain.Principal, op portssvc.Operation, target portssvc.AccessTarget) error {
	if reason := s.check(ctx, principal, op, target); reason != "" {
		s.deny(ctx, principal, op, target, reason)
		return fmt.Errorf("%w: %s: %s", apperrors.ErrAccessDenied, op, reason)
	}
	return nil
}

// check returns an empty string when admitted, or the denial reason.
func (s *AccessService) check(ctx context.Context, principal domain.Principal, op portssvc.Operation, target portssvc.AccessTarget) string {
	ok, err := s.tenants.IsAccessible(ctx, principal, target.TenantID)
	if err != nil {
		return "tenant lookup failed: " + err.Error()
	}
	if !ok {
		return "tenant " + target.TenantID + " is outside the principal's subtree"
	}

	if !s.roleAdmits(principal, op) {
		return "missing role for " + string(op)
	}

	// A customer acting as themselves may only touch their own resources.
	if target.OwnerCustomerID != "" && s.isCustomerOnly(principal) && principal.ID != target.OwnerCustomerID {
		return "resource belongs to another customer"
	}
	return ""
}

func (s *AccessService) roleAdmits(principal domain.Principal, op portssvc.Operation) bool {
	if principal.HasRole(domain.RoleAdmin) || principal.IsGlobal() {
		return true
	}
	for _, role := range operationRoles[op] {
		if principal.HasRole(role) {
			return true
		}
	}
	return false
}

// isCustomerOnly reports whether the principal holds no staff role at all.
func (s *AccessService) isCustomerOnly(principal domain.Principal) bool {
	return !principal.HasRole(domain.RoleOperator) &&
		!principal.HasRole(domain.RoleApprover) &&
		!principal.HasRole(domain.RoleAdmin)
}

// deny records the denial out of band so the decision never blocks on the
// audit store.
func (s *AccessService) deny(ctx context.Context, principal domain.Principal, op portssvc.Operation, target portssvc.AccessTarget, reason string) {
	logging.FromContext(ctx).Warn("access denied",
		"operation", string(op), "principalID", principal.ID, "tenantID", target.TenantID, "reason", reason)

	s.audit.LogAsync(portssvc.AuditEvent{
		TenantID:     target.TenantID,
		Actor:        principal,
		Action:       domain.ActionAccessDenied,
		ResourceType: target.ResourceType,
		ResourceID:   target.ResourceID,
		Description:  fmt.Sprintf("denied %s: %s", op, reason),
		Metadata: map[string]string{
			"operation": string(op),
			"reason":    reason,
		},
		ResponseCode:  403,
		SeverityFloor: domain.SeverityHigh,
	})
}
