package services

import (
	"context"
	"fmt"
	"time"

	"github.com/crestfx/fincore/internal/apperrors"
	"github.com/crestfx/fincore/internal/core/domain"
	portsrepo "github.com/crestfx/fincore/internal/core/ports/repositories"
	portssvc "github.com/crestfx/fincore/internal/core/ports/services"
	"github.com/crestfx/fincore/internal/dto"
	"github.com/crestfx/fincore/internal/utils/accounting"
	"github.com/crestfx/fincore/internal/utils/idgen"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LedgerService is the double-entry ledger surface (C3). Entries are
// append-only; the only mutations ever applied to a saved entry are the
// posting flip and the reversal triple.
type LedgerService struct {
	entryRepo   portsrepo.EntryRepository
	accountRepo portsrepo.AccountRepository
	txManager   portsrepo.TxManager
	clock       portsrepo.Clock
}

var _ portssvc.LedgerSvcFacade = (*LedgerService)(nil)

// NewLedgerService creates the ledger surface.
func NewLedgerService(entryRepo portsrepo.EntryRepository, accountRepo portsrepo.AccountRepository, txManager portsrepo.TxManager, clock portsrepo.Clock) *LedgerService {
	return &LedgerService{
		entryRepo:   entryRepo,
		accountRepo: accountRepo,
		txManager:   txManager,
		clock:       clock,
	}
}

// AppendPair atomically creates an unposted debit/credit pair for the
// transaction. Both accounts must be active and carry the stated currency.
func (s *LedgerService) AppendPair(ctx context.Context, txnID string, debitAccount, creditAccount domain.Account, amount decimal.Decimal, currencyCode, description string, actor domain.Principal) ([]domain.LedgerEntry, error) {
	for _, acc := range []domain.Account{debitAccount, creditAccount} {
		if !acc.IsActive {
			return nil, fmt.Errorf("%w: account %s is inactive", apperrors.ErrValidation, acc.AccountID)
		}
		if acc.CurrencyCode != currencyCode {
			return nil, fmt.Errorf("%w: account %s carries %s, entry is %s", apperrors.ErrValidation, acc.AccountID, acc.CurrencyCode, currencyCode)
		}
	}
	if debitAccount.AccountID == creditAccount.AccountID {
		return nil, fmt.Errorf("%w: debit and credit accounts must differ", apperrors.ErrValidation)
	}

	now := s.clock.Now()
	debit := s.newEntry(txnID, debitAccount, domain.DebitSide, amount, currencyCode, actor.ID, now)
	credit := s.newEntry(txnID, creditAccount, domain.CreditSide, amount, currencyCode, actor.ID, now)
	if err := accounting.ValidatePair(debit, credit); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
	}

	pair := []domain.LedgerEntry{debit, credit}
	err := s.txManager.WithinTx(ctx, func(ctx context.Context) error {
		return s.entryRepo.SaveEntries(ctx, pair)
	})
	if err != nil {
		return nil, err
	}
	return pair, nil
}

func (s *LedgerService) newEntry(txnID string, account domain.Account, side domain.EntrySide, amount decimal.Decimal, currencyCode, actorID string, now time.Time) domain.LedgerEntry {
	return domain.LedgerEntry{
		EntryID:       uuid.NewString(),
		EntryNumber:   idgen.EntryNumber(now),
		TenantID:      account.TenantID,
		TransactionID: txnID,
		AccountID:     account.AccountID,
		Side:          side,
		Amount:        amount,
		CurrencyCode:  currencyCode,
		PostingDate:   now,
		ValueDate:     now,
		CreatedBy:     actorID,
		CreatedAt:     now,
	}
}

// PostEntries marks the given entries posted in one atomic unit.
func (s *LedgerService) PostEntries(ctx context.Context, entryIDs []string, actor domain.Principal) error {
	return s.txManager.WithinTx(ctx, func(ctx context.Context) error {
		return s.entryRepo.MarkPosted(ctx, entryIDs, actor.ID, s.clock.Now())
	})
}

// EntriesFor pages the account statement; finite and restartable via the
// opaque token.
func (s *LedgerService) EntriesFor(ctx context.Context, accountID string, params dto.EntryListParams) (*dto.EntryListResult, error) {
	entries, nextToken, err := s.entryRepo.ListEntriesByAccount(ctx, accountID, params.From, params.To, params.Limit, params.NextToken)
	if err != nil {
		return nil, err
	}
	return &dto.EntryListResult{Entries: entries, NextToken: nextToken}, nil
}

// BalanceAsOf derives the (debit, credit, net) triple of an account from its
// countable entries up to the given instant.
func (s *LedgerService) BalanceAsOf(ctx context.Context, accountID string, asOf time.Time) (*domain.BalanceTriple, error) {
	account, err := s.accountRepo.FindAccountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	triple, err := s.entryRepo.SumEntriesByAccount(ctx, accountID, asOf)
	if err != nil {
		return nil, err
	}
	triple.Net = accounting.Net(account.AccountType, triple.DebitSum, triple.CreditSum)
	return triple, nil
}

// TrialBalance derives one row per active account of the tenant as of the
// given instant.
func (s *LedgerService) TrialBalance(ctx context.Context, tenantID string, asOf time.Time) ([]domain.TrialBalanceRow, error) {
	accounts, err := s.accountRepo.ListAccountsByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	rows := make([]domain.TrialBalanceRow, 0, len(accounts))
	for _, acc := range accounts {
		triple, err := s.entryRepo.SumEntriesByAccount(ctx, acc.AccountID, asOf)
		if err != nil {
			return nil, err
		}
		rows = append(rows, domain.TrialBalanceRow{
			AccountID:     acc.AccountID,
			AccountNumber: acc.AccountNumber,
			AccountName:   acc.Name,
			AccountType:   acc.AccountType,
			CurrencyCode:  acc.CurrencyCode,
			DebitSum:      triple.DebitSum,
			CreditSum:     triple.CreditSum,
			Net:           accounting.Net(acc.AccountType, triple.DebitSum, triple.CreditSum),
		})
	}
	return rows, nil
}

// ValidateDoubleEntry checks that the transaction's countable entries balance
// per currency: within every currency the debits equal the credits.
func (s *LedgerService) ValidateDoubleEntry(ctx context.Context, txnID string) (*domain.DoubleEntryReport, error) {
	entries, err := s.entryRepo.FindEntriesByTransactionID(ctx, txnID)
	if err != nil {
		return nil, err
	}

	report := &domain.DoubleEntryReport{TransactionID: txnID, Balanced: true}
	debitsByCurrency := map[string]decimal.Decimal{}
	creditsByCurrency := map[string]decimal.Decimal{}
	for _, e := range entries {
		if !e.CountsTowardBalance() {
			continue
		}
		report.EntryCount++
		if e.Side == domain.DebitSide {
			report.TotalDebits = report.TotalDebits.Add(e.Amount)
			debitsByCurrency[e.CurrencyCode] = debitsByCurrency[e.CurrencyCode].Add(e.Amount)
		} else {
			report.TotalCredits = report.TotalCredits.Add(e.Amount)
			creditsByCurrency[e.CurrencyCode] = creditsByCurrency[e.CurrencyCode].Add(e.Amount)
		}
	}

	for currency, debits := range debitsByCurrency {
		if !debits.Equal(creditsByCurrency[currency]) {
			report.Balanced = false
		}
	}
	for currency, credits := range creditsByCurrency {
		if _, ok := debitsByCurrency[currency]; !ok && !credits.IsZero() {
			report.Balanced = false
		}
	}
	return report, nil
}
