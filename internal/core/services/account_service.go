package services

import (
	"context"
	"errors"
	"fmt"
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

// accountNumberAttempts bounds retries when a generated account number collides.
const accountNumberAttempts = 3

// AccountService is the account store surface (C2).
type AccountService struct {
	accountRepo portsrepo.AccountRepository
	entryRepo   portsrepo.EntryRepository
	tenants     portssvc.TenantSvcFacade
	audit       portssvc.AuditSvcFacade
	txManager   portsrepo.TxManager
	clock       portsrepo.Clock
}

var _ portssvc.AccountSvcFacade = (*AccountService)(nil)

// NewAccountService creates the account store surface.
func NewAccountService(accountRepo portsrepo.AccountRepository, entryRepo portsrepo.EntryRepository, tenants portssvc.TenantSvcFacade, audit portssvc.AuditSvcFacade, txManager portsrepo.TxManager, clock portsrepo.Clock) *AccountService {
	return &AccountService{
		accountRepo: accountRepo,
		entryRepo:   entryRepo,
		tenants:     tenants,
		audit:       audit,
		txManager:   txManager,
		clock:       clock,
	}
}

// CreateAccount creates one account under an active tenant. Customer wallets
// are LIABILITY accounts; any other type for a customer account is refused.
func (s *AccountService) CreateAccount(ctx context.Context, req dto.CreateAccountRequest, creator domain.Principal) (*domain.Account, error) {
	logger := logging.FromContext(ctx)
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.CustomerID != "" && req.AccountType != domain.Liability {
		return nil, fmt.Errorf("%w: customer wallets must be LIABILITY accounts, got %s", apperrors.ErrValidation, req.AccountType)
	}

	tenant, err := s.tenants.GetTenantByID(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}
	if !tenant.IsActive {
		return nil, fmt.Errorf("%w: tenant %s is inactive", apperrors.ErrValidation, req.TenantID)
	}
	if req.ParentAccountID != "" {
		parent, err := s.accountRepo.FindAccountByID(ctx, req.ParentAccountID)
		if err != nil {
			return nil, err
		}
		if parent.TenantID != req.TenantID {
			return nil, fmt.Errorf("%w: parent account belongs to another tenant", apperrors.ErrValidation)
		}
	}
	if req.CustomerID != "" {
		if _, err := s.accountRepo.FindByCustomer(ctx, req.TenantID, req.CustomerID, req.CurrencyCode); err == nil {
			return nil, fmt.Errorf("%w: customer %s already holds a %s wallet", apperrors.ErrDuplicate, req.CustomerID, req.CurrencyCode)
		} else if !errors.Is(err, apperrors.ErrNotFound) {
			return nil, err
		}
	}

	var account domain.Account
	for attempt := 1; ; attempt++ {
		now := s.clock.Now()
		account = domain.Account{
			AccountID:       uuid.NewString(),
			AccountNumber:   idgen.AccountNumber(req.AccountType.AccountNumberPrefix(), now),
			TenantID:        req.TenantID,
			CustomerID:      req.CustomerID,
			Name:            req.Name,
			AccountType:     req.AccountType,
			CurrencyCode:    req.CurrencyCode,
			ParentAccountID: req.ParentAccountID,
			Balance:         decimal.Zero,
			AvailableBalance: decimal.Zero,
			BlockedBalance:  decimal.Zero,
			IsActive:        true,
			Version:         1,
			AuditFields: domain.AuditFields{
				CreatedAt:     now,
				CreatedBy:     creator.ID,
				LastUpdatedAt: now,
				LastUpdatedBy: creator.ID,
			},
		}

		err = s.txManager.WithinTx(ctx, func(ctx context.Context) error {
			if err := s.accountRepo.SaveAccount(ctx, account); err != nil {
				return err
			}
			_, err := s.audit.Log(ctx, portssvc.AuditEvent{
				TenantID:     account.TenantID,
				Actor:        creator,
				Action:       domain.ActionAccountCreated,
				ResourceType: "account",
				ResourceID:   account.AccountID,
				Description:  fmt.Sprintf("%s account %s (%s) created", account.AccountType, account.AccountNumber, account.CurrencyCode),
			})
			return err
		})
		if err == nil {
			break
		}
		if errors.Is(err, apperrors.ErrDuplicate) && attempt < accountNumberAttempts {
			continue
		}
		return nil, err
	}

	logger.Info("account created", "accountID", account.AccountID, "accountNumber", account.AccountNumber)
	return &account, nil
}

// GetAccountByID retrieves one account.
func (s *AccountService) GetAccountByID(ctx context.Context, accountID string) (*domain.Account, error) {
	return s.accountRepo.FindAccountByID(ctx, accountID)
}

// GetAccountsByIDs retrieves multiple accounts keyed by ID.
func (s *AccountService) GetAccountsByIDs(ctx context.Context, accountIDs []string) (map[string]domain.Account, error) {
	return s.accountRepo.FindAccountsByIDs(ctx, accountIDs)
}

// FindByCustomer locates the wallet of (tenant, customer, currency).
func (s *AccountService) FindByCustomer(ctx context.Context, tenantID, customerID, currencyCode string) (*domain.Account, error) {
	return s.accountRepo.FindByCustomer(ctx, tenantID, customerID, currencyCode)
}

// AccountBalance returns the persisted snapshot, or the entry-derived view as
// of the given instant. The derived view carries no blocked decomposition;
// blocked funds exist only in the live snapshot.
func (s *AccountService) AccountBalance(ctx context.Context, accountID string, asOf *time.Time) (*domain.BalanceSnapshot, error) {
	account, err := s.accountRepo.FindAccountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if asOf == nil {
		return &domain.BalanceSnapshot{
			AccountID:        account.AccountID,
			Balance:          account.Balance,
			AvailableBalance: account.AvailableBalance,
			BlockedBalance:   account.BlockedBalance,
			Version:          account.Version,
		}, nil
	}

	triple, err := s.entryRepo.SumEntriesByAccount(ctx, accountID, *asOf)
	if err != nil {
		return nil, err
	}
	net := accounting.Net(account.AccountType, triple.DebitSum, triple.CreditSum)
	return &domain.BalanceSnapshot{
		AccountID:        account.AccountID,
		Balance:          net,
		AvailableBalance: net,
		BlockedBalance:   decimal.Zero,
		Version:          account.Version,
	}, nil
}

// SystemAccount resolves the tenant's house account of the given type and
// currency, creating it lazily on first use. A racing creation resolves to
// the winner's account.
func (s *AccountService) SystemAccount(ctx context.Context, tenantID string, accountType domain.AccountType, currencyCode string, actor domain.Principal) (*domain.Account, error) {
	account, err := s.accountRepo.FindSystemAccount(ctx, tenantID, accountType, currencyCode)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}

	created, err := s.CreateAccount(ctx, dto.CreateAccountRequest{
		TenantID:     tenantID,
		Name:         fmt.Sprintf("%s %s", systemAccountName(accountType), currencyCode),
		AccountType:  accountType,
		CurrencyCode: currencyCode,
	}, actor)
	if err != nil {
		if errors.Is(err, apperrors.ErrDuplicate) {
			return s.accountRepo.FindSystemAccount(ctx, tenantID, accountType, currencyCode)
		}
		return nil, err
	}
	return created, nil
}

// DeactivateAccount marks an account inactive. Refused while the balance is nonzero.
func (s *AccountService) DeactivateAccount(ctx context.Context, accountID string, actor domain.Principal) error {
	account, err := s.accountRepo.FindAccountByID(ctx, accountID)
	if err != nil {
		return err
	}
	if !account.Balance.IsZero() {
		return fmt.Errorf("%w: account %s holds balance %s", apperrors.ErrConflict, accountID, account.Balance)
	}

	return s.txManager.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.accountRepo.DeactivateAccount(ctx, accountID, actor.ID); err != nil {
			return err
		}
		_, err := s.audit.Log(ctx, portssvc.AuditEvent{
			TenantID:     account.TenantID,
			Actor:        actor,
			Action:       domain.ActionAccountDeactivated,
			ResourceType: "account",
			ResourceID:   accountID,
			Description:  "account " + account.AccountNumber + " deactivated",
		})
		return err
	})
}

func systemAccountName(accountType domain.AccountType) string {
	switch accountType {
	case domain.Asset:
		return "Cash"
	case domain.Liability:
		return "Settlement position"
	case domain.Revenue:
		return "Fee revenue"
	case domain.Equity:
		return "Equity"
	default:
		return "Operating expense"
	}
}
