package dto

import (
	"fmt"

	"github.com/crestfx/fincore/internal/apperrors"
	"github.com/crestfx/fincore/internal/core/domain"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// validate is the shared validator instance for the request boundary.
var validate = validator.New()

// TransactionRequest is the closed union of coordinator request variants.
// It is parsed once at the boundary; the coordinator switches on the concrete
// type and never sees a string-keyed map.
type TransactionRequest interface {
	// TransactionType reports the financial transaction type the variant produces.
	TransactionType() domain.TransactionType
	// Validate checks structural validity of the variant.
	Validate() error

	isTransactionRequest()
}

// Common carries fields shared by every request variant.
type Common struct {
	TenantID          string `validate:"required"`
	CustomerID        string
	Description       string
	ExternalReference string // idempotency key; optional, globally unique when set
}

// TransferRequest moves Amount of CurrencyCode from one wallet to another.
type TransferRequest struct {
	Common
	FromAccountID string          `validate:"required"`
	ToAccountID   string          `validate:"required,nefield=FromAccountID"`
	Amount        decimal.Decimal `validate:"required"`
	CurrencyCode  string          `validate:"required,len=3"`
}

// ExchangeRequest converts SourceAmount from the source wallet's currency into
// the destination wallet's currency at the oracle rate, charging FeeAmount in
// the destination currency to the house revenue account.
type ExchangeRequest struct {
	Common
	FromAccountID string          `validate:"required"`
	ToAccountID   string          `validate:"required,nefield=FromAccountID"`
	SourceAmount  decimal.Decimal `validate:"required"`
	FeeAmount     decimal.Decimal
	Type          domain.TransactionType `validate:"omitempty,oneof=CURRENCY_BUY CURRENCY_SELL"`
}

// DepositRequest credits a customer wallet from the house cash account.
type DepositRequest struct {
	Common
	AccountID    string          `validate:"required"`
	Amount       decimal.Decimal `validate:"required"`
	CurrencyCode string          `validate:"required,len=3"`
}

// WithdrawalRequest debits a customer wallet toward the house cash account.
type WithdrawalRequest struct {
	Common
	AccountID    string          `validate:"required"`
	Amount       decimal.Decimal `validate:"required"`
	CurrencyCode string          `validate:"required,len=3"`
}

// FeeRequest charges a standalone fee from a wallet to the house revenue account.
type FeeRequest struct {
	Common
	AccountID    string          `validate:"required"`
	Amount       decimal.Decimal `validate:"required"`
	CurrencyCode string          `validate:"required,len=3"`
}

// RefundRequest refunds a completed transaction by reversing its entries.
type RefundRequest struct {
	Common
	TransactionID string `validate:"required"`
	Reason        string `validate:"required"`
}

// AdjustmentRequest applies an operator-initiated balancing correction between
// a wallet and the house adjustment (settlement) account.
type AdjustmentRequest struct {
	Common
	AccountID    string          `validate:"required"`
	Amount       decimal.Decimal `validate:"required"` // signed: positive credits the wallet
	CurrencyCode string          `validate:"required,len=3"`
	Reason       string          `validate:"required"`
}

// P2PLegPhase selects the escrow phase of a P2P trade leg.
type P2PLegPhase string

const (
	// P2PBlock escrows the seller's funds.
	P2PBlock P2PLegPhase = "BLOCK"
	// P2PRelease releases escrow and settles the transfer to the buyer.
	P2PRelease P2PLegPhase = "RELEASE"
	// P2PCancel releases escrow back to the seller without settling.
	P2PCancel P2PLegPhase = "CANCEL"
)

// P2PLegRequest drives one leg of a P2P trade: the external trade state
// machine blocks seller funds first and, on final verification, calls again
// with the release phase.
type P2PLegRequest struct {
	Common
	SellerAccountID string          `validate:"required"`
	BuyerAccountID  string          `validate:"required_if=Phase RELEASE"`
	Amount          decimal.Decimal `validate:"required"`
	CurrencyCode    string          `validate:"required,len=3"`
	Phase           P2PLegPhase     `validate:"required,oneof=BLOCK RELEASE CANCEL"`
	TradeReference  string          `validate:"required"`
}

func (TransferRequest) isTransactionRequest()   {}
func (ExchangeRequest) isTransactionRequest()   {}
func (DepositRequest) isTransactionRequest()    {}
func (WithdrawalRequest) isTransactionRequest() {}
func (FeeRequest) isTransactionRequest()        {}
func (RefundRequest) isTransactionRequest()     {}
func (AdjustmentRequest) isTransactionRequest() {}
func (P2PLegRequest) isTransactionRequest()     {}

func (TransferRequest) TransactionType() domain.TransactionType   { return domain.Transfer }
func (DepositRequest) TransactionType() domain.TransactionType    { return domain.Deposit }
func (WithdrawalRequest) TransactionType() domain.TransactionType { return domain.Withdrawal }
func (FeeRequest) TransactionType() domain.TransactionType        { return domain.Fee }
func (RefundRequest) TransactionType() domain.TransactionType     { return domain.Refund }
func (AdjustmentRequest) TransactionType() domain.TransactionType { return domain.Adjustment }
func (P2PLegRequest) TransactionType() domain.TransactionType     { return domain.P2PTrade }

func (r ExchangeRequest) TransactionType() domain.TransactionType {
	if r.Type == "" {
		return domain.CurrencyBuy
	}
	return r.Type
}

func (r TransferRequest) Validate() error   { return validateAmount(r, r.Amount) }
func (r DepositRequest) Validate() error    { return validateAmount(r, r.Amount) }
func (r WithdrawalRequest) Validate() error { return validateAmount(r, r.Amount) }
func (r FeeRequest) Validate() error        { return validateAmount(r, r.Amount) }

func (r ExchangeRequest) Validate() error {
	if err := validateStruct(r); err != nil {
		return err
	}
	if r.SourceAmount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: source amount must be positive", apperrors.ErrValidation)
	}
	if r.FeeAmount.IsNegative() {
		return fmt.Errorf("%w: fee amount must not be negative", apperrors.ErrValidation)
	}
	return nil
}

func (r RefundRequest) Validate() error { return validateStruct(r) }

func (r AdjustmentRequest) Validate() error {
	if err := validateStruct(r); err != nil {
		return err
	}
	if r.Amount.IsZero() {
		return fmt.Errorf("%w: adjustment amount must not be zero", apperrors.ErrValidation)
	}
	return nil
}

func (r P2PLegRequest) Validate() error { return validateAmount(r, r.Amount) }

func validateAmount(req interface{}, amount decimal.Decimal) error {
	if err := validateStruct(req); err != nil {
		return err
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: amount must be positive", apperrors.ErrValidation)
	}
	return nil
}

func validateStruct(req interface{}) error {
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
	}
	return nil
}
