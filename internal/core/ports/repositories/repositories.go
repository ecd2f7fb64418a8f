// Package repositories declares the driven ports of the financial core.
// Implementations live under internal/repositories/database.
package repositories

import "context"

// TxManager provides the atomic unit of work. fn runs with a transactional
// context; every repository call made with that context joins the same store
// transaction. fn returning an error rolls the whole unit back — a failed
// unit of work produces no ledger entries and no balance changes.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Container bundles every repository implementation of one store.
type Container struct {
	Tenants      TenantRepository
	Accounts     AccountRepository
	Entries      EntryRepository
	Transactions TransactionRepository
	Audit        AuditRepository
	Rates        ExchangeRateRepository
	Tx           TxManager
}
