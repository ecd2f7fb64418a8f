package repositories

import (
	"context"
	"time"

	"github.com/crestfx/fincore/internal/core/domain"
	"github.com/shopspring/decimal"
)

// Clock abstracts wall-clock time so identifiers, posting dates and retention
// are deterministic under test.
type Clock interface {
	Now() time.Time
}

// RateOracle answers (base, quote, asOf) -> rate. Production wires it to the
// exchange-rate repository; tests use a fixed oracle.
type RateOracle interface {
	Rate(ctx context.Context, base, quote string, asOf time.Time) (decimal.Decimal, error)
}

// AlertSink receives security alerts raised by the audit logger for records
// with riskScore >= 80 or CRITICAL severity.
type AlertSink interface {
	SecurityAlert(ctx context.Context, record domain.AuditRecord)
}
