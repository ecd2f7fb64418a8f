package services_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/crestfx/fincore/internal/core/domain"
	portsrepo "github.com/crestfx/fincore/internal/core/ports/repositories"
	portssvc "github.com/crestfx/fincore/internal/core/ports/services"
	"github.com/crestfx/fincore/internal/core/services"
	"github.com/crestfx/fincore/internal/dto"
	"github.com/crestfx/fincore/internal/platform/config"
	"github.com/crestfx/fincore/internal/repositories/database/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// tickingClock advances by one millisecond per reading so generated business
// numbers never collide, while staying inside working hours for risk scoring.
type tickingClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTickingClock() *tickingClock {
	return &tickingClock{now: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)}
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func (c *tickingClock) set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// alertRecorder captures security alerts raised by the audit logger.
type alertRecorder struct {
	mu      sync.Mutex
	records []domain.AuditRecord
}

func (r *alertRecorder) SecurityAlert(_ context.Context, record domain.AuditRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, record)
}

func (r *alertRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

func (r *alertRecorder) last() domain.AuditRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.records[len(r.records)-1]
}

// testEnv wires the full service stack over the in-memory store, with one
// root tenant (base currency USD) already created.
type testEnv struct {
	repos  *portsrepo.Container
	svcs   *portssvc.Container
	clock  *tickingClock
	alerts *alertRecorder
	admin  domain.Principal
	tenant *domain.Tenant
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	clock := newTickingClock()
	alerts := &alertRecorder{}
	repos := memory.NewRepositoryContainer(memory.NewStore())
	cfg := &config.Config{
		ApprovalThresholdDefault: "10000",
		ConflictMaxRetries:       10,
		ConflictBackoffBase:      time.Millisecond,
		ConflictBackoffJitter:    0.5,
		AuditQueueSize:           64,
	}
	svcs := services.NewServiceContainer(repos, cfg, clock, alerts)
	t.Cleanup(svcs.Audit.Close)

	admin := domain.Principal{
		ID:           "root-admin",
		Roles:        []domain.Role{domain.RoleAdmin},
		Capabilities: []string{domain.CapabilityGlobal},
	}
	tenant, err := svcs.Tenants.CreateTenant(context.Background(), dto.CreateTenantRequest{
		Name:             "Crest FX",
		BaseCurrencyCode: "USD",
	}, admin)
	require.NoError(t, err)
	admin.HomeTenantID = tenant.TenantID

	return &testEnv{
		repos:  repos,
		svcs:   svcs,
		clock:  clock,
		alerts: alerts,
		admin:  admin,
		tenant: tenant,
	}
}

func (e *testEnv) operator() domain.Principal {
	return domain.Principal{
		ID:           "op-1",
		HomeTenantID: e.tenant.TenantID,
		Roles:        []domain.Role{domain.RoleOperator},
	}
}

func (e *testEnv) approver() domain.Principal {
	return domain.Principal{
		ID:           "appr-1",
		HomeTenantID: e.tenant.TenantID,
		Roles:        []domain.Role{domain.RoleOperator, domain.RoleApprover},
	}
}

func (e *testEnv) newWallet(t *testing.T, customerID, currency string) *domain.Account {
	t.Helper()
	wallet, err := e.svcs.Accounts.CreateAccount(context.Background(), dto.CreateAccountRequest{
		TenantID:     e.tenant.TenantID,
		CustomerID:   customerID,
		Name:         customerID + " " + currency + " wallet",
		AccountType:  domain.Liability,
		CurrencyCode: currency,
	}, e.admin)
	require.NoError(t, err)
	return wallet
}

func (e *testEnv) deposit(t *testing.T, accountID, amount, currency string) *dto.TransactionResult {
	t.Helper()
	result, err := e.svcs.Transactions.Execute(context.Background(), dto.DepositRequest{
		Common:       dto.Common{TenantID: e.tenant.TenantID},
		AccountID:    accountID,
		Amount:       dec(amount),
		CurrencyCode: currency,
	}, e.operator())
	require.NoError(t, err)
	require.Equal(t, domain.StatusCompleted, result.Status)
	return result
}

func (e *testEnv) balance(t *testing.T, accountID string) *domain.BalanceSnapshot {
	t.Helper()
	snap, err := e.svcs.Accounts.AccountBalance(context.Background(), accountID, nil)
	require.NoError(t, err)
	return snap
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
