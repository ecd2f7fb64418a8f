package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/crestfx/fincore/internal/apperrors"
	"github.com/crestfx/fincore/internal/core/domain"
	portssvc "github.com/crestfx/fincore/internal/core/ports/services"
	"github.com/crestfx/fincore/internal/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditLogScoresAndClassifies(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	t.Run("routine action stays low", func(t *testing.T) {
		record, err := env.svcs.Audit.Log(ctx, portssvc.AuditEvent{
			TenantID: env.tenant.TenantID,
			Actor:    env.operator(),
			Action:   domain.ActionTransactionCreated,
		})
		require.NoError(t, err)
		assert.Equal(t, 30, record.RiskScore)
		assert.Equal(t, domain.SeverityLow, record.Severity)
	})

	t.Run("large amount raises the score", func(t *testing.T) {
		record, err := env.svcs.Audit.Log(ctx, portssvc.AuditEvent{
			TenantID:     env.tenant.TenantID,
			Actor:        env.operator(),
			Action:       domain.ActionTransactionCreated,
			AmountInBase: dec("20000"),
		})
		require.NoError(t, err)
		assert.Equal(t, 50, record.RiskScore)
	})

	t.Run("stacked signals cross the alert threshold", func(t *testing.T) {
		before := env.alerts.count()
		actor := env.operator()
		actor.UnusualIP = true

		record, err := env.svcs.Audit.Log(ctx, portssvc.AuditEvent{
			TenantID:     env.tenant.TenantID,
			Actor:        actor,
			Action:       domain.ActionAccessDenied,
			ResponseCode: 403,
		})
		require.NoError(t, err)
		// 45 base + 15 unusual IP + 25 error response.
		assert.Equal(t, 85, record.RiskScore)
		assert.Equal(t, domain.SeverityHigh, record.Severity)
		assert.Equal(t, before+1, env.alerts.count(), "a score at or above 80 raises a security alert")
	})

	t.Run("critical severity alerts regardless of score", func(t *testing.T) {
		before := env.alerts.count()
		record, err := env.svcs.Audit.Log(ctx, portssvc.AuditEvent{
			TenantID: env.tenant.TenantID,
			Actor:    env.operator(),
			Action:   domain.ActionSuspiciousActivity,
		})
		require.NoError(t, err)
		assert.Equal(t, 90, record.RiskScore)
		assert.Equal(t, domain.SeverityCritical, record.Severity)
		assert.Equal(t, before+1, env.alerts.count())
	})

	t.Run("severity floor is applied", func(t *testing.T) {
		record, err := env.svcs.Audit.Log(ctx, portssvc.AuditEvent{
			TenantID:      env.tenant.TenantID,
			Actor:         env.operator(),
			Action:        domain.ActionTransactionCreated,
			SeverityFloor: domain.SeverityHigh,
		})
		require.NoError(t, err)
		assert.Equal(t, domain.SeverityHigh, record.Severity)
	})
}

func TestAuditOffHoursRaisesScore(t *testing.T) {
	env := newTestEnv(t)

	env.clock.set(time.Date(2025, 3, 10, 23, 30, 0, 0, time.UTC))
	record, err := env.svcs.Audit.Log(context.Background(), portssvc.AuditEvent{
		TenantID: env.tenant.TenantID,
		Actor:    env.operator(),
		Action:   domain.ActionTransactionCreated,
	})
	require.NoError(t, err)
	assert.Equal(t, 40, record.RiskScore, "23:30 adds the off-hours modifier")
}

func TestAuditRetention(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	t.Run("severity drives the lifetime", func(t *testing.T) {
		low, err := env.svcs.Audit.Log(ctx, portssvc.AuditEvent{
			TenantID: env.tenant.TenantID,
			Actor:    env.operator(),
			Action:   domain.ActionTransactionCreated,
		})
		require.NoError(t, err)
		assert.Equal(t, low.CreatedAt.Add(5*365*24*time.Hour), low.RetainedUntil)

		high, err := env.svcs.Audit.Log(ctx, portssvc.AuditEvent{
			TenantID: env.tenant.TenantID,
			Actor:    env.operator(),
			Action:   domain.ActionEntryReversed,
		})
		require.NoError(t, err)
		assert.Equal(t, high.CreatedAt.Add(8*365*24*time.Hour), high.RetainedUntil)
	})

	t.Run("compliance tags force maximum retention", func(t *testing.T) {
		record, err := env.svcs.Audit.Log(ctx, portssvc.AuditEvent{
			TenantID: env.tenant.TenantID,
			Actor:    env.operator(),
			Action:   domain.ActionTransactionCreated,
			Tags:     []string{"AML"},
		})
		require.NoError(t, err)
		assert.Equal(t, domain.SeverityLow, record.Severity)
		assert.Equal(t, record.CreatedAt.Add(10*365*24*time.Hour), record.RetainedUntil)
	})
}

func TestAuditLogAsyncFlushesOnClose(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		env.svcs.Audit.LogAsync(portssvc.AuditEvent{
			TenantID:    env.tenant.TenantID,
			Actor:       env.operator(),
			Action:      domain.ActionLoginFailed,
			Description: "bad credentials",
		})
	}
	env.svcs.Audit.Close()

	result, err := env.svcs.Audit.Query(ctx, dto.AuditQueryParams{
		TenantID: env.tenant.TenantID,
		Action:   domain.ActionLoginFailed,
	}, env.admin)
	require.NoError(t, err)
	assert.Len(t, result.Records, 3)
}

func TestAuditQueryAccess(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	branchA := env.newChildTenant(t, "Branch A", env.tenant.TenantID)
	branchB := env.newChildTenant(t, "Branch B", env.tenant.TenantID)

	aApprover := domain.Principal{
		ID:           "a-approver",
		HomeTenantID: branchA.TenantID,
		Roles:        []domain.Role{domain.RoleApprover},
	}

	_, err := env.svcs.Audit.Query(ctx, dto.AuditQueryParams{TenantID: branchB.TenantID}, aApprover)
	assert.ErrorIs(t, err, apperrors.ErrAccessDenied, "sibling trails are unreadable")

	_, err = env.svcs.Audit.Query(ctx, dto.AuditQueryParams{TenantID: branchA.TenantID}, aApprover)
	assert.NoError(t, err, "own trail is readable")

	rootReader := domain.Principal{
		ID:           "root-reader",
		HomeTenantID: env.tenant.TenantID,
		Roles:        []domain.Role{domain.RoleApprover},
	}
	_, err = env.svcs.Audit.Query(ctx, dto.AuditQueryParams{TenantID: branchB.TenantID}, rootReader)
	assert.NoError(t, err, "ancestors read descendant trails")

	_, err = env.svcs.Audit.Query(ctx, dto.AuditQueryParams{}, env.admin)
	assert.ErrorIs(t, err, apperrors.ErrValidation, "tenantID is required")
}

func TestAuditQueryPagination(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := env.svcs.Audit.Log(ctx, portssvc.AuditEvent{
			TenantID: env.tenant.TenantID,
			Actor:    env.operator(),
			Action:   domain.ActionLoginFailed,
		})
		require.NoError(t, err)
	}

	params := dto.AuditQueryParams{
		TenantID: env.tenant.TenantID,
		Action:   domain.ActionLoginFailed,
		Limit:    2,
	}
	first, err := env.svcs.Audit.Query(ctx, params, env.admin)
	require.NoError(t, err)
	require.Len(t, first.Records, 2)
	require.NotNil(t, first.NextToken)
	assert.True(t, first.Records[0].CreatedAt.After(first.Records[1].CreatedAt), "newest first")

	params.NextToken = first.NextToken
	second, err := env.svcs.Audit.Query(ctx, params, env.admin)
	require.NoError(t, err)
	require.Len(t, second.Records, 2)
	assert.True(t, first.Records[1].CreatedAt.After(second.Records[0].CreatedAt), "pages do not overlap")

	params.NextToken = second.NextToken
	third, err := env.svcs.Audit.Query(ctx, params, env.admin)
	require.NoError(t, err)
	assert.Len(t, third.Records, 1)
	assert.Nil(t, third.NextToken, "the sequence is finite")
}
