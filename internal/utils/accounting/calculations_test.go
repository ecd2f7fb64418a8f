package accounting

import (
	"testing"

	"github.com/crestfx/fincore/internal/core/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignedAmount(t *testing.T) {
	amount := decimal.RequireFromString("25.50")
	tests := []struct {
		name        string
		side        domain.EntrySide
		accountType domain.AccountType
		want        string
	}{
		{"debit on asset is positive", domain.DebitSide, domain.Asset, "25.50"},
		{"credit on asset is negative", domain.CreditSide, domain.Asset, "-25.50"},
		{"debit on expense is positive", domain.DebitSide, domain.Expense, "25.50"},
		{"debit on liability is negative", domain.DebitSide, domain.Liability, "-25.50"},
		{"credit on liability is positive", domain.CreditSide, domain.Liability, "25.50"},
		{"credit on equity is positive", domain.CreditSide, domain.Equity, "25.50"},
		{"debit on revenue is negative", domain.DebitSide, domain.Revenue, "-25.50"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := domain.LedgerEntry{AccountID: "acc-1", Side: tt.side, Amount: amount}
			got, err := SignedAmount(entry, tt.accountType)
			require.NoError(t, err)
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "got %s", got)
		})
	}
}

func TestSignedAmountUnknownType(t *testing.T) {
	entry := domain.LedgerEntry{AccountID: "acc-1", Side: domain.DebitSide, Amount: decimal.NewFromInt(1)}
	_, err := SignedAmount(entry, domain.AccountType("BOGUS"))
	assert.Error(t, err)
}

func TestNet(t *testing.T) {
	debits := decimal.NewFromInt(100)
	credits := decimal.NewFromInt(40)

	assert.True(t, Net(domain.Asset, debits, credits).Equal(decimal.NewFromInt(60)))
	assert.True(t, Net(domain.Expense, debits, credits).Equal(decimal.NewFromInt(60)))
	assert.True(t, Net(domain.Liability, debits, credits).Equal(decimal.NewFromInt(-60)))
	assert.True(t, Net(domain.Revenue, debits, credits).Equal(decimal.NewFromInt(-60)))
}

func TestConvertRoundsBankersAtFixedScale(t *testing.T) {
	// Half-to-even at the 8th decimal place.
	got := Convert(decimal.NewFromInt(1), decimal.RequireFromString("0.123456785"))
	assert.Equal(t, "0.12345678", got.StringFixed(8))

	got = Convert(decimal.NewFromInt(1), decimal.RequireFromString("0.123456775"))
	assert.Equal(t, "0.12345678", got.StringFixed(8))

	// Plain multiplication stays exact when it fits the scale.
	got = Convert(decimal.RequireFromString("200"), decimal.RequireFromString("0.91"))
	assert.Equal(t, "182.00000000", got.StringFixed(8))
}

func TestValidatePair(t *testing.T) {
	amount := decimal.NewFromInt(10)
	debit := domain.LedgerEntry{Side: domain.DebitSide, Amount: amount, CurrencyCode: "USD"}
	credit := domain.LedgerEntry{Side: domain.CreditSide, Amount: amount, CurrencyCode: "USD"}

	assert.NoError(t, ValidatePair(debit, credit))

	t.Run("swapped sides", func(t *testing.T) {
		assert.Error(t, ValidatePair(credit, debit))
	})

	t.Run("amount mismatch", func(t *testing.T) {
		bad := credit
		bad.Amount = decimal.NewFromInt(11)
		assert.Error(t, ValidatePair(debit, bad))
	})

	t.Run("non-positive amount", func(t *testing.T) {
		d, c := debit, credit
		d.Amount = decimal.Zero
		c.Amount = decimal.Zero
		assert.Error(t, ValidatePair(d, c))
	})

	t.Run("currency mismatch", func(t *testing.T) {
		bad := credit
		bad.CurrencyCode = "EUR"
		assert.Error(t, ValidatePair(debit, bad))
	})
}
