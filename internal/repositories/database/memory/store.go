// Package memory implements the repository ports over in-process maps. It
// backs tests and the consistency sweep's dry-run mode; semantics mirror the
// pgsql package, including version guards and unit-of-work atomicity.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/crestfx/fincore/internal/core/domain"
	portsrepo "github.com/crestfx/fincore/internal/core/ports/repositories"
	"github.com/shopspring/decimal"
)

// rateFixing is one stored exchange-rate observation.
type rateFixing struct {
	base        string
	quote       string
	rate        decimal.Decimal
	effectiveAt time.Time
	createdBy   string
}

// Store holds all state behind one mutex. A unit of work holds the lock for
// its whole duration, so writes inside it are atomic with respect to every
// other caller; reads outside a unit of work lock per call.
type Store struct {
	mu sync.Mutex

	tenants      map[string]domain.Tenant
	accounts     map[string]domain.Account
	entries      []domain.LedgerEntry
	transactions map[string]domain.FinancialTransaction
	extRefIndex  map[string]string // tenantID|externalReference -> transactionID
	audits       []domain.AuditRecord
	rates        []rateFixing
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		tenants:      map[string]domain.Tenant{},
		accounts:     map[string]domain.Account{},
		transactions: map[string]domain.FinancialTransaction{},
		extRefIndex:  map[string]string{},
	}
}

// NewRepositoryContainer wires every in-memory repository over one store.
func NewRepositoryContainer(store *Store) *portsrepo.Container {
	return &portsrepo.Container{
		Tenants:      &memTenantRepository{store: store},
		Accounts:     &memAccountRepository{store: store},
		Entries:      &memEntryRepository{store: store},
		Transactions: &memTransactionRepository{store: store},
		Audit:        &memAuditRepository{store: store},
		Rates:        &memExchangeRateRepository{store: store},
		Tx:           &TxManager{store: store},
	}
}

type memTxKey struct{}

// lock acquires the store mutex unless ctx already runs inside a unit of
// work, in which case the lock is held by WithinTx. The returned func
// releases whatever was acquired.
func (s *Store) lock(ctx context.Context) func() {
	if ctx.Value(memTxKey{}) != nil {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

type snapshot struct {
	tenants      map[string]domain.Tenant
	accounts     map[string]domain.Account
	entries      []domain.LedgerEntry
	transactions map[string]domain.FinancialTransaction
	extRefIndex  map[string]string
	audits       []domain.AuditRecord
	rates        []rateFixing
}

// snapshotLocked copies the whole state. Callers must hold mu. Struct values
// are copied by value; mutation paths always replace entries wholesale, so a
// shallow copy of the containers is a correct restore point.
func (s *Store) snapshotLocked() snapshot {
	snap := snapshot{
		tenants:      make(map[string]domain.Tenant, len(s.tenants)),
		accounts:     make(map[string]domain.Account, len(s.accounts)),
		entries:      append([]domain.LedgerEntry(nil), s.entries...),
		transactions: make(map[string]domain.FinancialTransaction, len(s.transactions)),
		extRefIndex:  make(map[string]string, len(s.extRefIndex)),
		audits:       append([]domain.AuditRecord(nil), s.audits...),
		rates:        append([]rateFixing(nil), s.rates...),
	}
	for k, v := range s.tenants {
		snap.tenants[k] = v
	}
	for k, v := range s.accounts {
		snap.accounts[k] = v
	}
	for k, v := range s.transactions {
		snap.transactions[k] = v
	}
	for k, v := range s.extRefIndex {
		snap.extRefIndex[k] = v
	}
	return snap
}

// restoreLocked rolls the state back to snap. Callers must hold mu.
func (s *Store) restoreLocked(snap snapshot) {
	s.tenants = snap.tenants
	s.accounts = snap.accounts
	s.entries = snap.entries
	s.transactions = snap.transactions
	s.extRefIndex = snap.extRefIndex
	s.audits = snap.audits
	s.rates = snap.rates
}

// TxManager implements the unit of work by holding the store lock and rolling
// back to a snapshot when fn fails.
type TxManager struct {
	store *Store
}

// WithinTx runs fn atomically against the store. A nested call joins the
// unit of work already bound to ctx.
func (m *TxManager) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(memTxKey{}) != nil {
		return fn(ctx)
	}

	m.store.mu.Lock()
	defer m.store.mu.Unlock()

	snap := m.store.snapshotLocked()
	if err := fn(context.WithValue(ctx, memTxKey{}, true)); err != nil {
		m.store.restoreLocked(snap)
		return err
	}
	return nil
}
