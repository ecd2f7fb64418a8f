package services_test

import (
	"context"
	"testing"

	"github.com/crestfx/fincore/internal/apperrors"
	"github.com/crestfx/fincore/internal/core/domain"
	portssvc "github.com/crestfx/fincore/internal/core/ports/services"
	"github.com/crestfx/fincore/internal/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthorizeRoleMatrix(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	target := portssvc.AccessTarget{TenantID: env.tenant.TenantID, ResourceType: "transaction"}

	staff := func(roles ...domain.Role) domain.Principal {
		return domain.Principal{ID: "staff", HomeTenantID: env.tenant.TenantID, Roles: roles}
	}

	tests := []struct {
		name      string
		principal domain.Principal
		op        portssvc.Operation
		allowed   bool
	}{
		{"operator executes", staff(domain.RoleOperator), portssvc.OpExecuteTransaction, true},
		{"operator cannot approve", staff(domain.RoleOperator), portssvc.OpApproveTransaction, false},
		{"operator cannot reverse", staff(domain.RoleOperator), portssvc.OpReverse, false},
		{"operator cannot read audit", staff(domain.RoleOperator), portssvc.OpReadAudit, false},
		{"viewer reads ledger", staff(domain.RoleViewer), portssvc.OpReadLedger, true},
		{"viewer cannot execute", staff(domain.RoleViewer), portssvc.OpExecuteTransaction, false},
		{"approver approves", staff(domain.RoleApprover), portssvc.OpApproveTransaction, true},
		{"approver reverses", staff(domain.RoleApprover), portssvc.OpReverse, true},
		{"approver reads audit", staff(domain.RoleApprover), portssvc.OpReadAudit, true},
		{"admin manages tenants", staff(domain.RoleAdmin), portssvc.OpManageTenants, true},
		{"operator cannot manage tenants", staff(domain.RoleOperator), portssvc.OpManageTenants, false},
		{"admin does everything", staff(domain.RoleAdmin), portssvc.OpReverse, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := env.svcs.Access.Authorize(ctx, tt.principal, tt.op, target)
			if tt.allowed {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, apperrors.ErrAccessDenied)
			}
		})
	}
}

func TestAuthorizeCustomerOwnership(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	customer := domain.Principal{
		ID:           "cust-1",
		HomeTenantID: env.tenant.TenantID,
		Roles:        []domain.Role{domain.RoleViewer},
	}

	own := portssvc.AccessTarget{
		TenantID:        env.tenant.TenantID,
		ResourceType:    "account",
		OwnerCustomerID: "cust-1",
	}
	assert.NoError(t, env.svcs.Access.Authorize(ctx, customer, portssvc.OpReadLedger, own))

	foreign := own
	foreign.OwnerCustomerID = "cust-2"
	err := env.svcs.Access.Authorize(ctx, customer, portssvc.OpReadLedger, foreign)
	assert.ErrorIs(t, err, apperrors.ErrAccessDenied)

	// Staff principals are not bound by resource ownership.
	assert.NoError(t, env.svcs.Access.Authorize(ctx, env.operator(), portssvc.OpExecuteTransaction, foreign))
}

func TestAuthorizeSiblingTenantDenied(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	branchA := env.newChildTenant(t, "Branch A", env.tenant.TenantID)
	branchB := env.newChildTenant(t, "Branch B", env.tenant.TenantID)

	aOperator := domain.Principal{
		ID:           "a-op",
		HomeTenantID: branchA.TenantID,
		Roles:        []domain.Role{domain.RoleOperator},
	}

	err := env.svcs.Access.Authorize(ctx, aOperator, portssvc.OpExecuteTransaction, portssvc.AccessTarget{
		TenantID:     branchB.TenantID,
		ResourceType: "transaction",
	})
	require.ErrorIs(t, err, apperrors.ErrAccessDenied)
}

func TestDenialIsAudited(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	branchA := env.newChildTenant(t, "Branch A", env.tenant.TenantID)
	branchB := env.newChildTenant(t, "Branch B", env.tenant.TenantID)

	intruder := domain.Principal{
		ID:           "a-op",
		HomeTenantID: branchA.TenantID,
		Roles:        []domain.Role{domain.RoleOperator},
		IPAddress:    "203.0.113.9",
	}
	err := env.svcs.Access.Authorize(ctx, intruder, portssvc.OpExecuteTransaction, portssvc.AccessTarget{
		TenantID:     branchB.TenantID,
		ResourceType: "transaction",
	})
	require.ErrorIs(t, err, apperrors.ErrAccessDenied)

	// The denial record goes through the async queue; draining it makes the
	// record visible.
	env.svcs.Audit.Close()

	result, err := env.svcs.Audit.Query(ctx, dto.AuditQueryParams{
		TenantID: branchB.TenantID,
		Action:   domain.ActionAccessDenied,
	}, env.admin)
	require.NoError(t, err)
	require.Len(t, result.Records, 1)

	record := result.Records[0]
	assert.Equal(t, "a-op", record.ActorID)
	assert.Equal(t, domain.SeverityHigh, record.Severity)
	// 45 base + 25 for the 403 response.
	assert.Equal(t, 70, record.RiskScore)
	assert.Equal(t, "203.0.113.9", record.IPAddress)
	assert.Equal(t, string(portssvc.OpExecuteTransaction), record.Metadata["operation"])
}
