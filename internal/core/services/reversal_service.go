package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/crestfx/fincore/internal/apperrors"
	"github.com/crestfx/fincore/internal/core/domain"
	portsrepo "github.com/crestfx/fincore/internal/core/ports/repositories"
	portssvc "github.com/crestfx/fincore/internal/core/ports/services"
	"github.com/crestfx/fincore/internal/dto"
	"github.com/crestfx/fincore/internal/platform/logging"
	"github.com/crestfx/fincore/internal/utils/accounting"
	"github.com/crestfx/fincore/internal/utils/idgen"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReversalService is the reversal engine (C6). It never deletes: a reversal
// flags the original entry and posts a compensating entry on the opposite
// side, so the full history stays readable while derived balances exclude
// both halves.
type ReversalService struct {
	entryRepo   portsrepo.EntryRepository
	accountRepo portsrepo.AccountRepository
	txnRepo     portsrepo.TransactionRepository
	access      portssvc.AccessSvcFacade
	audit       portssvc.AuditSvcFacade
	txManager   portsrepo.TxManager
	clock       portsrepo.Clock
	retry       RetryPolicy
}

var _ portssvc.ReversalSvcFacade = (*ReversalService)(nil)

// NewReversalService creates the reversal engine.
func NewReversalService(entryRepo portsrepo.EntryRepository, accountRepo portsrepo.AccountRepository, txnRepo portsrepo.TransactionRepository, access portssvc.AccessSvcFacade, audit portssvc.AuditSvcFacade, txManager portsrepo.TxManager, clock portsrepo.Clock, retry RetryPolicy) *ReversalService {
	return &ReversalService{
		entryRepo:   entryRepo,
		accountRepo: accountRepo,
		txnRepo:     txnRepo,
		access:      access,
		audit:       audit,
		txManager:   txManager,
		clock:       clock,
		retry:       retry,
	}
}

// ReverseEntry posts a compensating entry for one posted, non-reversed entry
// and restores the account balance.
func (s *ReversalService) ReverseEntry(ctx context.Context, entryID, reason string, principal domain.Principal) (*domain.LedgerEntry, error) {
	if reason == "" {
		return nil, fmt.Errorf("%w: a reversal reason is required", apperrors.ErrValidation)
	}

	original, err := s.entryRepo.FindEntryByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if !original.Posted {
		return nil, fmt.Errorf("%w: entry %s", apperrors.ErrNotPosted, entryID)
	}
	if original.Reversed {
		return nil, fmt.Errorf("%w: entry %s", apperrors.ErrAlreadyReversed, entryID)
	}
	if original.IsReversal() {
		return nil, fmt.Errorf("%w: entry %s is itself a reversal", apperrors.ErrValidation, entryID)
	}

	err = s.access.Authorize(ctx, principal, portssvc.OpReverse, portssvc.AccessTarget{
		TenantID:     original.TenantID,
		ResourceType: "ledger_entry",
		ResourceID:   entryID,
	})
	if err != nil {
		return nil, err
	}

	account, err := s.accountRepo.FindAccountByID(ctx, original.AccountID)
	if err != nil {
		return nil, err
	}
	undo, err := accounting.SignedAmount(*original, account.AccountType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
	}
	undo = undo.Neg()

	var compensating domain.LedgerEntry
	err = s.retry.Run(ctx, func(ctx context.Context) error {
		fresh, err := s.accountRepo.FindAccountByID(ctx, original.AccountID)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		compensating = s.compensatingEntry(*original, principal.ID, now)
		return s.txManager.WithinTx(ctx, func(ctx context.Context) error {
			if err := s.entryRepo.MarkReversed(ctx, entryID, principal.ID, now); err != nil {
				return err
			}
			if err := s.entryRepo.SaveEntries(ctx, []domain.LedgerEntry{compensating}); err != nil {
				return err
			}
			if _, err := s.accountRepo.ApplyDelta(ctx, original.AccountID, fresh.Version, undo, undo, principal.ID); err != nil {
				return err
			}
			_, err := s.audit.Log(ctx, portssvc.AuditEvent{
				TenantID:      original.TenantID,
				Actor:         principal,
				Action:        domain.ActionEntryReversed,
				ResourceType:  "ledger_entry",
				ResourceID:    entryID,
				TransactionID: original.TransactionID,
				Description:   "entry reversed: " + reason,
				Metadata: map[string]string{
					"compensatingEntryID": compensating.EntryID,
					"reason":              reason,
				},
			})
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	logging.FromContext(ctx).Info("entry reversed",
		"entryID", entryID, "compensatingEntryID", compensating.EntryID)
	return &compensating, nil
}

// RefundTransaction reverses every countable entry of a COMPLETED
// transaction, restores the balances, and records a compensating REFUND
// transaction referencing the original. The original moves to REFUNDED.
func (s *ReversalService) RefundTransaction(ctx context.Context, transactionID, reason string, principal domain.Principal) (*dto.TransactionResult, error) {
	if reason == "" {
		return nil, fmt.Errorf("%w: a refund reason is required", apperrors.ErrValidation)
	}

	original, err := s.txnRepo.FindTransactionByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if original.Status != domain.StatusCompleted {
		return nil, fmt.Errorf("%w: transaction %s is %s, only COMPLETED transactions can be refunded",
			apperrors.ErrConflict, transactionID, original.Status)
	}

	err = s.access.Authorize(ctx, principal, portssvc.OpReverse, portssvc.AccessTarget{
		TenantID:        original.TenantID,
		ResourceType:    "transaction",
		ResourceID:      transactionID,
		OwnerCustomerID: original.CustomerID,
	})
	if err != nil {
		return nil, err
	}

	entries, err := s.entryRepo.FindEntriesByTransactionID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	countable := make([]domain.LedgerEntry, 0, len(entries))
	for _, e := range entries {
		if e.CountsTowardBalance() {
			countable = append(countable, e)
		}
	}
	if len(countable) == 0 {
		return nil, fmt.Errorf("%w: transaction %s has no countable entries", apperrors.ErrConflict, transactionID)
	}

	// One aggregated undo per account, applied in ascending order.
	accountIDs, undos, err := s.undoDeltas(ctx, countable)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	refund := domain.FinancialTransaction{
		TransactionID:     uuid.NewString(),
		TransactionNumber: idgen.TransactionNumber(now),
		TenantID:          original.TenantID,
		CustomerID:        original.CustomerID,
		Type:              domain.Refund,
		FromCurrency:      original.ToCurrency,
		ToCurrency:        original.FromCurrency,
		SourceAmount:      original.DestinationAmount,
		DestinationAmount: original.SourceAmount,
		FeeCurrency:       original.FeeCurrency,
		Status:            domain.StatusPending,
		Description:       "refund of " + original.TransactionNumber + ": " + reason,
		Reference:         original.TransactionID,
		AuditFields: domain.AuditFields{
			CreatedAt:     now,
			CreatedBy:     principal.ID,
			LastUpdatedAt: now,
			LastUpdatedBy: principal.ID,
		},
	}

	var compensatingIDs []string
	err = s.retry.Run(ctx, func(ctx context.Context) error {
		compensatingIDs = compensatingIDs[:0]

		fresh, err := s.accountRepo.FindAccountsByIDs(ctx, accountIDs)
		if err != nil {
			return err
		}
		for _, id := range accountIDs {
			if _, ok := fresh[id]; !ok {
				return fmt.Errorf("%w: %s", apperrors.ErrAccountNotFound, id)
			}
		}

		now := s.clock.Now()
		return s.txManager.WithinTx(ctx, func(ctx context.Context) error {
			if err := s.txnRepo.SaveTransaction(ctx, refund); err != nil {
				return err
			}
			if err := s.txnRepo.UpdateTransactionStatus(ctx, refund.TransactionID, domain.StatusPending, domain.StatusProcessing,
				portsrepo.StatusUpdate{UpdatedBy: principal.ID, UpdatedAt: now}); err != nil {
				return err
			}

			compensating := make([]domain.LedgerEntry, 0, len(countable))
			for _, e := range countable {
				if err := s.entryRepo.MarkReversed(ctx, e.EntryID, principal.ID, now); err != nil {
					return err
				}
				comp := s.compensatingEntry(e, principal.ID, now)
				comp.TransactionID = refund.TransactionID
				compensating = append(compensating, comp)
				compensatingIDs = append(compensatingIDs, comp.EntryID)
			}
			if err := s.entryRepo.SaveEntries(ctx, compensating); err != nil {
				return err
			}

			for _, id := range accountIDs {
				undo := undos[id]
				if _, err := s.accountRepo.ApplyDelta(ctx, id, fresh[id].Version, undo, undo, principal.ID); err != nil {
					return err
				}
			}

			processedAt := now
			if err := s.txnRepo.UpdateTransactionStatus(ctx, refund.TransactionID, domain.StatusProcessing, domain.StatusCompleted,
				portsrepo.StatusUpdate{ProcessedAt: &processedAt, UpdatedBy: principal.ID, UpdatedAt: now}); err != nil {
				return err
			}
			if err := s.txnRepo.UpdateTransactionStatus(ctx, original.TransactionID, domain.StatusCompleted, domain.StatusRefunded,
				portsrepo.StatusUpdate{UpdatedBy: principal.ID, UpdatedAt: now}); err != nil {
				return err
			}

			_, err := s.audit.Log(ctx, portssvc.AuditEvent{
				TenantID:      original.TenantID,
				Actor:         principal,
				Action:        domain.ActionTransactionReversed,
				ResourceType:  "transaction",
				ResourceID:    original.TransactionID,
				TransactionID: refund.TransactionID,
				Description:   "transaction refunded: " + reason,
				Metadata: map[string]string{
					"refundTransactionID": refund.TransactionID,
					"reversedEntries":     fmt.Sprintf("%d", len(countable)),
					"reason":              reason,
				},
			})
			if err != nil {
				return err
			}

			refund.Status = domain.StatusCompleted
			refund.ProcessedAt = &processedAt
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	logging.FromContext(ctx).Info("transaction refunded",
		"transactionID", transactionID, "refundTransactionID", refund.TransactionID)
	return dto.ToTransactionResult(&refund, compensatingIDs, false), nil
}

// compensatingEntry mirrors the original on the opposite side and links back
// to it. Compensating entries are born posted: they exist only to cancel.
func (s *ReversalService) compensatingEntry(original domain.LedgerEntry, actorID string, now time.Time) domain.LedgerEntry {
	postedAt := now
	return domain.LedgerEntry{
		EntryID:         uuid.NewString(),
		EntryNumber:     idgen.EntryNumber(now),
		TenantID:        original.TenantID,
		TransactionID:   original.TransactionID,
		AccountID:       original.AccountID,
		Side:            original.Side.Opposite(),
		Amount:          original.Amount,
		CurrencyCode:    original.CurrencyCode,
		PostingDate:     now,
		ValueDate:       now,
		Posted:          true,
		PostedAt:        &postedAt,
		PostedBy:        actorID,
		ReversalEntryID: original.EntryID,
		CreatedBy:       actorID,
		CreatedAt:       now,
	}
}

// undoDeltas aggregates the signed undo per account across the entries.
func (s *ReversalService) undoDeltas(ctx context.Context, entries []domain.LedgerEntry) ([]string, map[string]decimal.Decimal, error) {
	ids := []string{}
	undos := map[string]decimal.Decimal{}
	for _, e := range entries {
		if _, seen := undos[e.AccountID]; !seen {
			ids = append(ids, e.AccountID)
		}
		account, err := s.accountRepo.FindAccountByID(ctx, e.AccountID)
		if err != nil {
			return nil, nil, err
		}
		signed, err := accounting.SignedAmount(e, account.AccountType)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
		}
		undos[e.AccountID] = undos[e.AccountID].Sub(signed)
	}
	sort.Strings(ids)
	return ids, undos, nil
}
