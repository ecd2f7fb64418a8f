// Package pgsql implements the repository ports over PostgreSQL using pgx.
package pgsql

import (
	portsrepo "github.com/crestfx/fincore/internal/core/ports/repositories"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NewRepositoryContainer wires every PostgreSQL repository over one pool.
func NewRepositoryContainer(pool *pgxpool.Pool) *portsrepo.Container {
	return &portsrepo.Container{
		Tenants:      newPgxTenantRepository(pool),
		Accounts:     newPgxAccountRepository(pool),
		Entries:      newPgxEntryRepository(pool),
		Transactions: newPgxTransactionRepository(pool),
		Audit:        newPgxAuditRepository(pool),
		Rates:        newPgxExchangeRateRepository(pool),
		Tx:           &TxManager{Pool: pool},
	}
}
