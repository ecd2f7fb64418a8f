package services

import (
	"context"
	"errors"
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

// transactionNumberAttempts bounds reruns when a generated transaction number collides.
const transactionNumberAttempts = 3

// Failure reasons recorded on FAILED transactions.
const (
	reasonInsufficientFunds = "insufficient_funds"
	reasonRetryExhausted    = "conflict_retry_exhausted"
	reasonDeadlineExceeded  = "deadline_exceeded"
	reasonValidationFailed  = "validation_failed"
	reasonInternal          = "internal_error"
)

// plannedLeg is one debit/credit pair the coordinator will append.
type plannedLeg struct {
	debitAccountID  string
	creditAccountID string
	amount          decimal.Decimal
	currency        string
	description     string
}

type balanceOpKind int

const (
	opDelta balanceOpKind = iota
	opBlock
	opUnblock
)

// plannedOp is one guarded balance mutation, at most one per account.
type plannedOp struct {
	accountID      string
	kind           balanceOpKind
	deltaBalance   decimal.Decimal
	deltaAvailable decimal.Decimal
	amount         decimal.Decimal // opBlock / opUnblock
}

// executionPlan fixes account IDs and amounts before the retry loop; versions
// are re-read fresh on every attempt.
type executionPlan struct {
	txnType           domain.TransactionType
	fromCurrency      string
	toCurrency        string
	sourceAmount      decimal.Decimal
	destinationAmount decimal.Decimal
	exchangeRate      decimal.Decimal
	feeAmount         decimal.Decimal
	feeCurrency       string
	reference         string
	legs              []plannedLeg
	ops               []plannedOp
	accountIDs        []string
}

// TransactionService is the transaction coordinator (C5): it drives every
// request variant through validation, the access gate, the idempotency
// lookup and a retried atomic unit of work.
type TransactionService struct {
	accountRepo portsrepo.AccountRepository
	entryRepo   portsrepo.EntryRepository
	txnRepo     portsrepo.TransactionRepository
	accounts    portssvc.AccountSvcFacade
	ledger      portssvc.LedgerSvcFacade
	tenants     portssvc.TenantSvcFacade
	access      portssvc.AccessSvcFacade
	audit       portssvc.AuditSvcFacade
	reversals   portssvc.ReversalSvcFacade
	rates       portsrepo.RateOracle
	txManager   portsrepo.TxManager
	clock       portsrepo.Clock
	retry       RetryPolicy
}

var _ portssvc.TransactionSvcFacade = (*TransactionService)(nil)

// NewTransactionService creates the coordinator.
func NewTransactionService(
	accountRepo portsrepo.AccountRepository,
	entryRepo portsrepo.EntryRepository,
	txnRepo portsrepo.TransactionRepository,
	accounts portssvc.AccountSvcFacade,
	ledger portssvc.LedgerSvcFacade,
	tenants portssvc.TenantSvcFacade,
	access portssvc.AccessSvcFacade,
	audit portssvc.AuditSvcFacade,
	reversals portssvc.ReversalSvcFacade,
	rates portsrepo.RateOracle,
	txManager portsrepo.TxManager,
	clock portsrepo.Clock,
	retry RetryPolicy,
) *TransactionService {
	return &TransactionService{
		accountRepo: accountRepo,
		entryRepo:   entryRepo,
		txnRepo:     txnRepo,
		accounts:    accounts,
		ledger:      ledger,
		tenants:     tenants,
		access:      access,
		audit:       audit,
		reversals:   reversals,
		rates:       rates,
		txManager:   txManager,
		clock:       clock,
		retry:       retry,
	}
}

// Execute drives one request variant end to end.
func (s *TransactionService) Execute(ctx context.Context, req dto.TransactionRequest, principal domain.Principal) (*dto.TransactionResult, error) {
	logger := logging.FromContext(ctx)
	if req == nil {
		return nil, fmt.Errorf("%w: nil request", apperrors.ErrValidation)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	common := commonOf(req)
	tenant, err := s.tenants.GetTenantByID(ctx, common.TenantID)
	if err != nil {
		return nil, err
	}
	if !tenant.IsActive {
		return nil, fmt.Errorf("%w: tenant %s is inactive", apperrors.ErrValidation, tenant.TenantID)
	}

	target := portssvc.AccessTarget{
		TenantID:        common.TenantID,
		ResourceType:    "transaction",
		OwnerCustomerID: common.CustomerID,
	}
	if err := s.access.Authorize(ctx, principal, portssvc.OpExecuteTransaction, target); err != nil {
		return nil, err
	}

	var resume *domain.FinancialTransaction
	if common.ExternalReference != "" {
		existing, err := s.txnRepo.FindByExternalReference(ctx, common.TenantID, common.ExternalReference)
		switch {
		case err == nil && existing.Status == domain.StatusPending && s.canApprove(principal):
			// A transaction parked for approval moves forward when an
			// approver re-submits the same request; anyone else gets the
			// parked state replayed.
			resume = existing
		case err == nil:
			entries, err := s.entryRepo.FindEntriesByTransactionID(ctx, existing.TransactionID)
			if err != nil {
				return nil, err
			}
			return dto.ToTransactionResult(existing, entryIDsOf(entries), true), nil
		case !errors.Is(err, apperrors.ErrNotFound):
			return nil, err
		}
	}

	if refund, ok := req.(dto.RefundRequest); ok {
		return s.reversals.RefundTransaction(ctx, refund.TransactionID, refund.Reason, principal)
	}

	plan, err := s.buildPlan(ctx, req, tenant, principal)
	if err != nil {
		return nil, err
	}
	amountInBase := s.amountInBase(ctx, plan, tenant)

	now := s.clock.Now()
	txn := domain.FinancialTransaction{
		TransactionID:     uuid.NewString(),
		TransactionNumber: idgen.TransactionNumber(now),
		TenantID:          common.TenantID,
		CustomerID:        common.CustomerID,
		Type:              plan.txnType,
		FromCurrency:      plan.fromCurrency,
		ToCurrency:        plan.toCurrency,
		SourceAmount:      plan.sourceAmount,
		DestinationAmount: plan.destinationAmount,
		ExchangeRate:      plan.exchangeRate,
		FeeAmount:         plan.feeAmount,
		FeeCurrency:       plan.feeCurrency,
		Status:            domain.StatusPending,
		Description:       common.Description,
		Reference:         plan.reference,
		ExternalReference: common.ExternalReference,
		AuditFields: domain.AuditFields{
			CreatedAt:     now,
			CreatedBy:     principal.ID,
			LastUpdatedAt: now,
			LastUpdatedBy: principal.ID,
		},
	}
	if resume != nil {
		// Keep the parked record's identity; only the update trail moves.
		txn = *resume
		txn.LastUpdatedAt = now
		txn.LastUpdatedBy = principal.ID
	}

	requiresApproval := amountInBase.GreaterThan(tenant.ApprovalThreshold)
	if requiresApproval && !s.canApprove(principal) {
		// Parked for a second pair of eyes: no ledger effect until an
		// approver re-submits.
		err := s.txManager.WithinTx(ctx, func(ctx context.Context) error {
			if err := s.txnRepo.SaveTransaction(ctx, txn); err != nil {
				return err
			}
			_, err := s.audit.Log(ctx, s.auditEvent(&txn, principal, domain.ActionTransactionCreated,
				"transaction parked pending approval", amountInBase))
			return err
		})
		if err != nil {
			return nil, err
		}
		logger.Info("transaction parked pending approval",
			"transactionID", txn.TransactionID, "amountInBase", amountInBase.String())
		return dto.ToTransactionResult(&txn, nil, false), nil
	}
	if requiresApproval {
		if err := s.access.Authorize(ctx, principal, portssvc.OpApproveTransaction, target); err != nil {
			return nil, err
		}
	}

	var entryIDs []string
	for numberAttempt := 1; ; numberAttempt++ {
		err = s.retry.Run(ctx, func(ctx context.Context) error {
			entryIDs = entryIDs[:0]
			return s.attempt(ctx, &txn, plan, principal, requiresApproval, resume != nil, amountInBase, &entryIDs)
		})
		if err == nil {
			break
		}
		if errors.Is(err, apperrors.ErrDuplicate) {
			// A racing execute carrying the same external reference may have
			// won the insert after our pre-check; resolve to the winner.
			if common.ExternalReference != "" {
				existing, lookupErr := s.txnRepo.FindByExternalReference(ctx, common.TenantID, common.ExternalReference)
				if lookupErr == nil && existing.TransactionID != txn.TransactionID {
					entries, entriesErr := s.entryRepo.FindEntriesByTransactionID(ctx, existing.TransactionID)
					if entriesErr != nil {
						return nil, entriesErr
					}
					return dto.ToTransactionResult(existing, entryIDsOf(entries), true), nil
				}
			}
			// Otherwise a generated number collided; mint a fresh one and rerun.
			if numberAttempt < transactionNumberAttempts {
				if resume == nil {
					txn.TransactionNumber = idgen.TransactionNumber(s.clock.Now())
				}
				continue
			}
		}
		s.recordFailure(ctx, txn, principal, err, amountInBase, resume != nil)
		return nil, err
	}

	logger.Info("transaction completed",
		"transactionID", txn.TransactionID, "type", string(txn.Type), "entries", len(entryIDs))
	return dto.ToTransactionResult(&txn, entryIDs, false), nil
}

// attempt runs one full unit of work against freshly read account versions.
// preexisting marks a parked record being resumed, whose row is already stored.
func (s *TransactionService) attempt(ctx context.Context, txn *domain.FinancialTransaction, plan *executionPlan, principal domain.Principal, approved, preexisting bool, amountInBase decimal.Decimal, entryIDs *[]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// Versions are read outside the unit of work; the guarded writes inside
	// it are what detect a racing mutation.
	fresh, err := s.accountRepo.FindAccountsByIDs(ctx, plan.accountIDs)
	if err != nil {
		return err
	}
	for _, id := range plan.accountIDs {
		acc, ok := fresh[id]
		if !ok {
			return fmt.Errorf("%w: %s", apperrors.ErrAccountNotFound, id)
		}
		if !acc.IsActive {
			return fmt.Errorf("%w: account %s is inactive", apperrors.ErrValidation, id)
		}
	}

	now := s.clock.Now()
	return s.txManager.WithinTx(ctx, func(ctx context.Context) error {
		if !preexisting {
			if err := s.txnRepo.SaveTransaction(ctx, *txn); err != nil {
				return err
			}
		}

		update := portsrepo.StatusUpdate{UpdatedBy: principal.ID, UpdatedAt: now}
		if approved {
			approvedAt := now
			update.ApprovedBy = principal.ID
			update.ApprovedAt = &approvedAt
		}
		if err := s.txnRepo.UpdateTransactionStatus(ctx, txn.TransactionID, domain.StatusPending, domain.StatusProcessing, update); err != nil {
			return err
		}

		for _, leg := range plan.legs {
			pair, err := s.ledger.AppendPair(ctx, txn.TransactionID,
				fresh[leg.debitAccountID], fresh[leg.creditAccountID],
				leg.amount, leg.currency, leg.description, principal)
			if err != nil {
				return err
			}
			for _, e := range pair {
				*entryIDs = append(*entryIDs, e.EntryID)
			}
		}

		// Ascending account order keeps concurrent multi-account plans from
		// deadlocking against each other.
		for _, op := range plan.ops {
			version := fresh[op.accountID].Version
			switch op.kind {
			case opBlock:
				_, err = s.accountRepo.Block(ctx, op.accountID, version, op.amount, principal.ID)
			case opUnblock:
				_, err = s.accountRepo.Unblock(ctx, op.accountID, version, op.amount, principal.ID)
			default:
				_, err = s.accountRepo.ApplyDelta(ctx, op.accountID, version, op.deltaBalance, op.deltaAvailable, principal.ID)
			}
			if err != nil {
				return err
			}
		}

		if len(*entryIDs) > 0 {
			if err := s.ledger.PostEntries(ctx, *entryIDs, principal); err != nil {
				return err
			}
		}

		processedAt := now
		if err := s.txnRepo.UpdateTransactionStatus(ctx, txn.TransactionID, domain.StatusProcessing, domain.StatusCompleted,
			portsrepo.StatusUpdate{ProcessedAt: &processedAt, UpdatedBy: principal.ID, UpdatedAt: now}); err != nil {
			return err
		}

		if _, err := s.audit.Log(ctx, s.auditEvent(txn, principal, domain.ActionTransactionCreated,
			fmt.Sprintf("%s completed with %d entries", txn.Type, len(*entryIDs)), amountInBase)); err != nil {
			return err
		}
		if approved {
			if _, err := s.audit.Log(ctx, s.auditEvent(txn, principal, domain.ActionTransactionApproved,
				"transaction self-approved above threshold", amountInBase)); err != nil {
				return err
			}
		}

		txn.Status = domain.StatusCompleted
		txn.ProcessedAt = &processedAt
		if approved {
			txn.ApprovedBy = principal.ID
			txn.ApprovedAt = update.ApprovedAt
		}
		return nil
	})
}

// GetTransactionByID retrieves one transaction the principal may read.
func (s *TransactionService) GetTransactionByID(ctx context.Context, transactionID string, principal domain.Principal) (*domain.FinancialTransaction, error) {
	txn, err := s.txnRepo.FindTransactionByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	err = s.access.Authorize(ctx, principal, portssvc.OpReadLedger, portssvc.AccessTarget{
		TenantID:        txn.TenantID,
		ResourceType:    "transaction",
		ResourceID:      txn.TransactionID,
		OwnerCustomerID: txn.CustomerID,
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// buildPlan resolves accounts and fixes amounts for one request variant.
func (s *TransactionService) buildPlan(ctx context.Context, req dto.TransactionRequest, tenant *domain.Tenant, principal domain.Principal) (*executionPlan, error) {
	switch r := req.(type) {
	case dto.TransferRequest:
		return s.planTransfer(ctx, r)
	case dto.ExchangeRequest:
		return s.planExchange(ctx, r, principal)
	case dto.DepositRequest:
		return s.planDeposit(ctx, r, principal)
	case dto.WithdrawalRequest:
		return s.planWithdrawal(ctx, r, principal)
	case dto.FeeRequest:
		return s.planFee(ctx, r, principal)
	case dto.AdjustmentRequest:
		return s.planAdjustment(ctx, r, principal)
	case dto.P2PLegRequest:
		return s.planP2PLeg(ctx, r)
	default:
		return nil, fmt.Errorf("%w: unsupported request variant %T", apperrors.ErrValidation, req)
	}
}

func (s *TransactionService) planTransfer(ctx context.Context, r dto.TransferRequest) (*executionPlan, error) {
	from, to, err := s.walletPair(ctx, r.TenantID, r.FromAccountID, r.ToAccountID, r.CurrencyCode, r.CurrencyCode)
	if err != nil {
		return nil, err
	}

	plan := &executionPlan{
		txnType:      domain.Transfer,
		fromCurrency: r.CurrencyCode,
		toCurrency:   r.CurrencyCode,
		sourceAmount: r.Amount,
		destinationAmount: r.Amount,
		legs: []plannedLeg{{
			debitAccountID:  from.AccountID,
			creditAccountID: to.AccountID,
			amount:          r.Amount,
			currency:        r.CurrencyCode,
			description:     r.Description,
		}},
	}
	return s.finishPlan(plan, map[string]domain.Account{from.AccountID: *from, to.AccountID: *to})
}

func (s *TransactionService) planExchange(ctx context.Context, r dto.ExchangeRequest, principal domain.Principal) (*executionPlan, error) {
	from, err := s.accounts.GetAccountByID(ctx, r.FromAccountID)
	if err != nil {
		return nil, err
	}
	to, err := s.accounts.GetAccountByID(ctx, r.ToAccountID)
	if err != nil {
		return nil, err
	}
	for _, acc := range []*domain.Account{from, to} {
		if acc.TenantID != r.TenantID {
			return nil, fmt.Errorf("%w: account %s belongs to another tenant", apperrors.ErrValidation, acc.AccountID)
		}
	}
	if from.CurrencyCode == to.CurrencyCode {
		return nil, fmt.Errorf("%w: exchange requires two currencies, both wallets carry %s", apperrors.ErrValidation, from.CurrencyCode)
	}

	now := s.clock.Now()
	rate, err := s.rates.Rate(ctx, from.CurrencyCode, to.CurrencyCode, now)
	if err != nil {
		return nil, err
	}
	gross := accounting.Convert(r.SourceAmount, rate)
	net := gross.Sub(r.FeeAmount)
	if net.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: fee %s consumes the converted amount %s", apperrors.ErrValidation, r.FeeAmount, gross)
	}

	sourcePos, err := s.accounts.SystemAccount(ctx, r.TenantID, domain.Liability, from.CurrencyCode, principal)
	if err != nil {
		return nil, err
	}
	destPos, err := s.accounts.SystemAccount(ctx, r.TenantID, domain.Liability, to.CurrencyCode, principal)
	if err != nil {
		return nil, err
	}

	legs := []plannedLeg{
		{
			debitAccountID:  from.AccountID,
			creditAccountID: sourcePos.AccountID,
			amount:          r.SourceAmount,
			currency:        from.CurrencyCode,
			description:     "exchange source leg",
		},
		{
			debitAccountID:  destPos.AccountID,
			creditAccountID: to.AccountID,
			amount:          gross,
			currency:        to.CurrencyCode,
			description:     "exchange destination leg",
		},
	}
	accounts := map[string]domain.Account{
		from.AccountID:      *from,
		to.AccountID:        *to,
		sourcePos.AccountID: *sourcePos,
		destPos.AccountID:   *destPos,
	}
	if r.FeeAmount.IsPositive() {
		revenue, err := s.accounts.SystemAccount(ctx, r.TenantID, domain.Revenue, to.CurrencyCode, principal)
		if err != nil {
			return nil, err
		}
		legs = append(legs, plannedLeg{
			debitAccountID:  to.AccountID,
			creditAccountID: revenue.AccountID,
			amount:          r.FeeAmount,
			currency:        to.CurrencyCode,
			description:     "exchange fee",
		})
		accounts[revenue.AccountID] = *revenue
	}

	plan := &executionPlan{
		txnType:           r.TransactionType(),
		fromCurrency:      from.CurrencyCode,
		toCurrency:        to.CurrencyCode,
		sourceAmount:      r.SourceAmount,
		destinationAmount: net,
		exchangeRate:      rate,
		feeAmount:         r.FeeAmount,
		feeCurrency:       to.CurrencyCode,
		legs:              legs,
	}
	return s.finishPlan(plan, accounts)
}

func (s *TransactionService) planDeposit(ctx context.Context, r dto.DepositRequest, principal domain.Principal) (*executionPlan, error) {
	wallet, err := s.wallet(ctx, r.TenantID, r.AccountID, r.CurrencyCode)
	if err != nil {
		return nil, err
	}
	cash, err := s.accounts.SystemAccount(ctx, r.TenantID, domain.Asset, r.CurrencyCode, principal)
	if err != nil {
		return nil, err
	}

	plan := &executionPlan{
		txnType:           domain.Deposit,
		fromCurrency:      r.CurrencyCode,
		toCurrency:        r.CurrencyCode,
		sourceAmount:      r.Amount,
		destinationAmount: r.Amount,
		legs: []plannedLeg{{
			debitAccountID:  cash.AccountID,
			creditAccountID: wallet.AccountID,
			amount:          r.Amount,
			currency:        r.CurrencyCode,
			description:     r.Description,
		}},
	}
	return s.finishPlan(plan, map[string]domain.Account{wallet.AccountID: *wallet, cash.AccountID: *cash})
}

func (s *TransactionService) planWithdrawal(ctx context.Context, r dto.WithdrawalRequest, principal domain.Principal) (*executionPlan, error) {
	wallet, err := s.wallet(ctx, r.TenantID, r.AccountID, r.CurrencyCode)
	if err != nil {
		return nil, err
	}
	cash, err := s.accounts.SystemAccount(ctx, r.TenantID, domain.Asset, r.CurrencyCode, principal)
	if err != nil {
		return nil, err
	}

	plan := &executionPlan{
		txnType:           domain.Withdrawal,
		fromCurrency:      r.CurrencyCode,
		toCurrency:        r.CurrencyCode,
		sourceAmount:      r.Amount,
		destinationAmount: r.Amount,
		legs: []plannedLeg{{
			debitAccountID:  wallet.AccountID,
			creditAccountID: cash.AccountID,
			amount:          r.Amount,
			currency:        r.CurrencyCode,
			description:     r.Description,
		}},
	}
	return s.finishPlan(plan, map[string]domain.Account{wallet.AccountID: *wallet, cash.AccountID: *cash})
}

func (s *TransactionService) planFee(ctx context.Context, r dto.FeeRequest, principal domain.Principal) (*executionPlan, error) {
	wallet, err := s.wallet(ctx, r.TenantID, r.AccountID, r.CurrencyCode)
	if err != nil {
		return nil, err
	}
	revenue, err := s.accounts.SystemAccount(ctx, r.TenantID, domain.Revenue, r.CurrencyCode, principal)
	if err != nil {
		return nil, err
	}

	plan := &executionPlan{
		txnType:           domain.Fee,
		fromCurrency:      r.CurrencyCode,
		toCurrency:        r.CurrencyCode,
		sourceAmount:      r.Amount,
		destinationAmount: r.Amount,
		feeAmount:         r.Amount,
		feeCurrency:       r.CurrencyCode,
		legs: []plannedLeg{{
			debitAccountID:  wallet.AccountID,
			creditAccountID: revenue.AccountID,
			amount:          r.Amount,
			currency:        r.CurrencyCode,
			description:     r.Description,
		}},
	}
	return s.finishPlan(plan, map[string]domain.Account{wallet.AccountID: *wallet, revenue.AccountID: *revenue})
}

func (s *TransactionService) planAdjustment(ctx context.Context, r dto.AdjustmentRequest, principal domain.Principal) (*executionPlan, error) {
	wallet, err := s.wallet(ctx, r.TenantID, r.AccountID, r.CurrencyCode)
	if err != nil {
		return nil, err
	}
	settlement, err := s.accounts.SystemAccount(ctx, r.TenantID, domain.Liability, r.CurrencyCode, principal)
	if err != nil {
		return nil, err
	}

	// Positive amounts credit the wallet from the settlement position;
	// negative amounts claw back.
	leg := plannedLeg{
		debitAccountID:  settlement.AccountID,
		creditAccountID: wallet.AccountID,
		amount:          r.Amount,
		currency:        r.CurrencyCode,
		description:     "adjustment: " + r.Reason,
	}
	if r.Amount.IsNegative() {
		leg.debitAccountID = wallet.AccountID
		leg.creditAccountID = settlement.AccountID
		leg.amount = r.Amount.Abs()
	}

	plan := &executionPlan{
		txnType:           domain.Adjustment,
		fromCurrency:      r.CurrencyCode,
		toCurrency:        r.CurrencyCode,
		sourceAmount:      r.Amount.Abs(),
		destinationAmount: r.Amount.Abs(),
		legs:              []plannedLeg{leg},
	}
	return s.finishPlan(plan, map[string]domain.Account{wallet.AccountID: *wallet, settlement.AccountID: *settlement})
}

func (s *TransactionService) planP2PLeg(ctx context.Context, r dto.P2PLegRequest) (*executionPlan, error) {
	seller, err := s.wallet(ctx, r.TenantID, r.SellerAccountID, r.CurrencyCode)
	if err != nil {
		return nil, err
	}

	plan := &executionPlan{
		txnType:           domain.P2PTrade,
		fromCurrency:      r.CurrencyCode,
		toCurrency:        r.CurrencyCode,
		sourceAmount:      r.Amount,
		destinationAmount: r.Amount,
		reference:         r.TradeReference,
	}

	switch r.Phase {
	case dto.P2PBlock:
		plan.ops = []plannedOp{{accountID: seller.AccountID, kind: opBlock, amount: r.Amount}}
		plan.accountIDs = []string{seller.AccountID}
		return plan, nil

	case dto.P2PCancel:
		plan.ops = []plannedOp{{accountID: seller.AccountID, kind: opUnblock, amount: r.Amount}}
		plan.accountIDs = []string{seller.AccountID}
		return plan, nil

	case dto.P2PRelease:
		buyer, err := s.wallet(ctx, r.TenantID, r.BuyerAccountID, r.CurrencyCode)
		if err != nil {
			return nil, err
		}
		plan.legs = []plannedLeg{{
			debitAccountID:  seller.AccountID,
			creditAccountID: buyer.AccountID,
			amount:          r.Amount,
			currency:        r.CurrencyCode,
			description:     "p2p trade " + r.TradeReference,
		}}
		// The seller leg settles straight out of escrow: the balance drops
		// while available is untouched, consuming the blocked funds.
		plan.ops = []plannedOp{
			{accountID: seller.AccountID, kind: opDelta, deltaBalance: r.Amount.Neg(), deltaAvailable: decimal.Zero},
			{accountID: buyer.AccountID, kind: opDelta, deltaBalance: r.Amount, deltaAvailable: r.Amount},
		}
		sort.Slice(plan.ops, func(i, j int) bool { return plan.ops[i].accountID < plan.ops[j].accountID })
		plan.accountIDs = []string{seller.AccountID, buyer.AccountID}
		sort.Strings(plan.accountIDs)
		return plan, nil

	default:
		return nil, fmt.Errorf("%w: unknown p2p phase %q", apperrors.ErrValidation, r.Phase)
	}
}

// wallet loads and checks one tenant-owned account in the stated currency.
func (s *TransactionService) wallet(ctx context.Context, tenantID, accountID, currencyCode string) (*domain.Account, error) {
	acc, err := s.accounts.GetAccountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acc.TenantID != tenantID {
		return nil, fmt.Errorf("%w: account %s belongs to another tenant", apperrors.ErrValidation, accountID)
	}
	if acc.CurrencyCode != currencyCode {
		return nil, fmt.Errorf("%w: account %s carries %s, request is %s", apperrors.ErrValidation, accountID, acc.CurrencyCode, currencyCode)
	}
	return acc, nil
}

func (s *TransactionService) walletPair(ctx context.Context, tenantID, fromID, toID, fromCurrency, toCurrency string) (*domain.Account, *domain.Account, error) {
	from, err := s.wallet(ctx, tenantID, fromID, fromCurrency)
	if err != nil {
		return nil, nil, err
	}
	to, err := s.wallet(ctx, tenantID, toID, toCurrency)
	if err != nil {
		return nil, nil, err
	}
	return from, to, nil
}

// finishPlan derives the aggregated balance ops from the plan's legs: one
// signed delta per account, sorted ascending by account ID.
func (s *TransactionService) finishPlan(plan *executionPlan, accounts map[string]domain.Account) (*executionPlan, error) {
	deltas := map[string]decimal.Decimal{}
	for _, leg := range plan.legs {
		debit := domain.LedgerEntry{AccountID: leg.debitAccountID, Side: domain.DebitSide, Amount: leg.amount}
		credit := domain.LedgerEntry{AccountID: leg.creditAccountID, Side: domain.CreditSide, Amount: leg.amount}
		for _, e := range []domain.LedgerEntry{debit, credit} {
			signed, err := accounting.SignedAmount(e, accounts[e.AccountID].AccountType)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
			}
			deltas[e.AccountID] = deltas[e.AccountID].Add(signed)
		}
	}

	for id, delta := range deltas {
		plan.ops = append(plan.ops, plannedOp{
			accountID:      id,
			kind:           opDelta,
			deltaBalance:   delta,
			deltaAvailable: delta,
		})
		plan.accountIDs = append(plan.accountIDs, id)
	}
	sort.Slice(plan.ops, func(i, j int) bool { return plan.ops[i].accountID < plan.ops[j].accountID })
	sort.Strings(plan.accountIDs)
	return plan, nil
}

// amountInBase converts the moved amount to the tenant base currency for
// risk scoring and the approval threshold. A missing rate falls back to the
// unconverted amount rather than blocking the transaction.
func (s *TransactionService) amountInBase(ctx context.Context, plan *executionPlan, tenant *domain.Tenant) decimal.Decimal {
	if plan.fromCurrency == tenant.BaseCurrencyCode || plan.fromCurrency == "" {
		return plan.sourceAmount
	}
	rate, err := s.rates.Rate(ctx, plan.fromCurrency, tenant.BaseCurrencyCode, s.clock.Now())
	if err != nil {
		logging.FromContext(ctx).Warn("no base-currency rate, scoring on raw amount",
			"fromCurrency", plan.fromCurrency, "baseCurrency", tenant.BaseCurrencyCode)
		return plan.sourceAmount
	}
	return accounting.Convert(plan.sourceAmount, rate)
}

func (s *TransactionService) canApprove(principal domain.Principal) bool {
	return principal.HasRole(domain.RoleApprover) || principal.HasRole(domain.RoleAdmin) || principal.IsGlobal()
}

// recordFailure persists a FAILED transaction row naming why the attempt
// could not commit. Best effort: a failure to record is logged, not returned.
func (s *TransactionService) recordFailure(ctx context.Context, txn domain.FinancialTransaction, principal domain.Principal, cause error, amountInBase decimal.Decimal, preexisting bool) {
	logger := logging.FromContext(ctx)
	now := s.clock.Now()

	reason := reasonInternal
	switch {
	case errors.Is(cause, apperrors.ErrInsufficientFunds):
		reason = reasonInsufficientFunds
	case errors.Is(cause, apperrors.ErrRetryExhausted):
		reason = reasonRetryExhausted
	case errors.Is(cause, context.DeadlineExceeded) || errors.Is(cause, context.Canceled):
		reason = reasonDeadlineExceeded
	case errors.Is(cause, apperrors.ErrValidation):
		reason = reasonValidationFailed
	}

	txn.Status = domain.StatusFailed
	txn.FailedAt = &now
	txn.FailureReason = reason
	txn.LastUpdatedAt = now

	// The failed unit of work rolled everything back, so the record is a
	// fresh insert unless the row predates this execute (a resumed parked
	// transaction). Recording runs on a detached context so a blown deadline
	// cannot also erase the failure trail.
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	err := s.txManager.WithinTx(recordCtx, func(ctx context.Context) error {
		if preexisting {
			if err := s.txnRepo.UpdateTransactionStatus(ctx, txn.TransactionID, domain.StatusPending, domain.StatusFailed, portsrepo.StatusUpdate{
				FailedAt:      &now,
				FailureReason: reason,
				UpdatedBy:     principal.ID,
				UpdatedAt:     now,
			}); err != nil {
				return err
			}
		} else if err := s.txnRepo.SaveTransaction(ctx, txn); err != nil {
			return err
		}
		event := s.auditEvent(&txn, principal, domain.ActionTransactionFailed, "transaction failed: "+reason, amountInBase)
		event.ResponseCode = 500
		if reason == reasonRetryExhausted {
			event.SeverityFloor = domain.SeverityHigh
		}
		_, err := s.audit.Log(ctx, event)
		return err
	})
	if err != nil {
		logger.Error("failed to record transaction failure",
			"transactionID", txn.TransactionID, "reason", reason, "error", err)
	}
}

func (s *TransactionService) auditEvent(txn *domain.FinancialTransaction, principal domain.Principal, action domain.AuditAction, description string, amountInBase decimal.Decimal) portssvc.AuditEvent {
	return portssvc.AuditEvent{
		TenantID:      txn.TenantID,
		Actor:         principal,
		Action:        action,
		ResourceType:  "transaction",
		ResourceID:    txn.TransactionID,
		TransactionID: txn.TransactionID,
		Description:   description,
		Metadata: map[string]string{
			"type":         string(txn.Type),
			"sourceAmount": txn.SourceAmount.StringFixed(accounting.MoneyScale),
			"fromCurrency": txn.FromCurrency,
			"toCurrency":   txn.ToCurrency,
		},
		AmountInBase: amountInBase,
	}
}

// commonOf extracts the shared fields of any request variant.
func commonOf(req dto.TransactionRequest) dto.Common {
	switch r := req.(type) {
	case dto.TransferRequest:
		return r.Common
	case dto.ExchangeRequest:
		return r.Common
	case dto.DepositRequest:
		return r.Common
	case dto.WithdrawalRequest:
		return r.Common
	case dto.FeeRequest:
		return r.Common
	case dto.RefundRequest:
		return r.Common
	case dto.AdjustmentRequest:
		return r.Common
	case dto.P2PLegRequest:
		return r.Common
	default:
		return dto.Common{}
	}
}

func entryIDsOf(entries []domain.LedgerEntry) []string {
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.EntryID)
	}
	return ids
}
