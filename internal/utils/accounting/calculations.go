package accounting

import (
	"fmt"

	"github.com/crestfx/fincore/internal/core/domain"
	"github.com/shopspring/decimal"
)

// MoneyScale is the fixed-point scale of every monetary value at the boundary.
const MoneyScale = 8

// SignedAmount applies the sign convention to one ledger entry: debits are
// positive for ASSET/EXPENSE accounts and negative for the credit-normal
// types; credits are the mirror image.
func SignedAmount(entry domain.LedgerEntry, accountType domain.AccountType) (decimal.Decimal, error) {
	signed := entry.Amount
	isDebit := entry.Side == domain.DebitSide

	switch accountType {
	case domain.Asset, domain.Expense:
		if !isDebit {
			signed = signed.Neg()
		}
	case domain.Liability, domain.Equity, domain.Revenue:
		if isDebit {
			signed = signed.Neg()
		}
	default:
		return decimal.Zero, fmt.Errorf("unknown account type %q for account %s", accountType, entry.AccountID)
	}
	return signed, nil
}

// Net folds a (debit, credit) pair of sums into the account-type-signed net.
func Net(accountType domain.AccountType, debitSum, creditSum decimal.Decimal) decimal.Decimal {
	switch accountType {
	case domain.Asset, domain.Expense:
		return debitSum.Sub(creditSum)
	default:
		return creditSum.Sub(debitSum)
	}
}

// Convert applies an exchange rate with banker's rounding at the fixed scale.
// Rounding happens only here, at the rate-conversion boundary.
func Convert(amount, rate decimal.Decimal) decimal.Decimal {
	return amount.Mul(rate).RoundBank(MoneyScale)
}

// ValidatePair checks that a debit/credit entry pair is well formed: positive
// equal amounts, one entry per side, matching currency.
func ValidatePair(debit, credit domain.LedgerEntry) error {
	if debit.Side != domain.DebitSide || credit.Side != domain.CreditSide {
		return fmt.Errorf("entry pair sides are wrong: %s/%s", debit.Side, credit.Side)
	}
	if !debit.Amount.Equal(credit.Amount) {
		return fmt.Errorf("entry pair amounts differ: %s vs %s", debit.Amount, credit.Amount)
	}
	if debit.Amount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("entry amount must be positive, got %s", debit.Amount)
	}
	if debit.CurrencyCode != credit.CurrencyCode {
		return fmt.Errorf("entry pair currencies differ: %s vs %s", debit.CurrencyCode, credit.CurrencyCode)
	}
	return nil
}
