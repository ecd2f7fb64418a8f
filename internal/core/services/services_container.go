package services

import (
	"context"
	"time"

	portsrepo "github.com/crestfx/fincore/internal/core/ports/repositories"
	portssvc "github.com/crestfx/fincore/internal/core/ports/services"
	"github.com/crestfx/fincore/internal/platform/config"
	"github.com/shopspring/decimal"
)

// repoRateOracle answers rate lookups from the exchange-rate repository.
type repoRateOracle struct {
	rates portsrepo.ExchangeRateRepository
}

func (o repoRateOracle) Rate(ctx context.Context, base, quote string, asOf time.Time) (decimal.Decimal, error) {
	return o.rates.FindRate(ctx, base, quote, asOf)
}

// NewRateOracle adapts the exchange-rate repository to the oracle port.
func NewRateOracle(rates portsrepo.ExchangeRateRepository) portsrepo.RateOracle {
	return repoRateOracle{rates: rates}
}

// NewServiceContainer wires every facade over one repository container.
// alerts may be nil when no security alerting is attached.
func NewServiceContainer(repos *portsrepo.Container, cfg *config.Config, clock portsrepo.Clock, alerts portsrepo.AlertSink) *portssvc.Container {
	if clock == nil {
		clock = NewClock()
	}

	defaultThreshold, err := decimal.NewFromString(cfg.ApprovalThresholdDefault)
	if err != nil || defaultThreshold.IsNegative() {
		defaultThreshold = decimal.NewFromInt(10000)
	}
	retry := RetryPolicy{
		MaxAttempts: cfg.ConflictMaxRetries,
		BackoffBase: cfg.ConflictBackoffBase,
		Jitter:      cfg.ConflictBackoffJitter,
	}

	audit := NewAuditService(repos.Audit, repos.Tenants, clock, alerts, cfg.AuditQueueSize)
	tenants := NewTenantService(repos.Tenants, audit, repos.Tx, clock, defaultThreshold)
	accounts := NewAccountService(repos.Accounts, repos.Entries, tenants, audit, repos.Tx, clock)
	ledger := NewLedgerService(repos.Entries, repos.Accounts, repos.Tx, clock)
	access := NewAccessService(tenants, audit)
	reversals := NewReversalService(repos.Entries, repos.Accounts, repos.Transactions, access, audit, repos.Tx, clock, retry)
	transactions := NewTransactionService(
		repos.Accounts, repos.Entries, repos.Transactions,
		accounts, ledger, tenants, access, audit, reversals,
		NewRateOracle(repos.Rates), repos.Tx, clock, retry,
	)

	return &portssvc.Container{
		Tenants:      tenants,
		Accounts:     accounts,
		Ledger:       ledger,
		Transactions: transactions,
		Reversals:    reversals,
		Audit:        audit,
		Access:       access,
	}
}
