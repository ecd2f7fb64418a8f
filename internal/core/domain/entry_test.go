package domain_test

import (
	"testing"

	"github.com/crestfx/fincore/internal/core/domain"
	"github.com/stretchr/testify/assert"
)

func TestEntrySide_Opposite(t *testing.T) {
	assert.Equal(t, domain.CreditSide, domain.DebitSide.Opposite())
	assert.Equal(t, domain.DebitSide, domain.CreditSide.Opposite())
}

func TestLedgerEntry_CountsTowardBalance(t *testing.T) {
	tests := []struct {
		name  string
		entry domain.LedgerEntry
		want  bool
	}{
		{"posted original", domain.LedgerEntry{Posted: true}, true},
		{"unposted", domain.LedgerEntry{Posted: false}, false},
		{"reversed original", domain.LedgerEntry{Posted: true, Reversed: true}, false},
		{"compensating entry", domain.LedgerEntry{Posted: true, ReversalEntryID: "orig-1"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.entry.CountsTowardBalance())
		})
	}
}

func TestAuditSeverity_AtLeast(t *testing.T) {
	assert.Equal(t, domain.SeverityHigh, domain.SeverityLow.AtLeast(domain.SeverityHigh))
	assert.Equal(t, domain.SeverityCritical, domain.SeverityCritical.AtLeast(domain.SeverityMedium))
	assert.Equal(t, domain.SeverityMedium, domain.SeverityMedium.AtLeast(domain.SeverityMedium))
	assert.Equal(t, domain.SeverityLow, domain.SeverityLow.AtLeast(""))
}

func TestAccount_AllowsNegative(t *testing.T) {
	system := domain.Account{AccountType: domain.Liability}
	assert.True(t, system.AllowsNegative())

	wallet := domain.Account{AccountType: domain.Liability, CustomerID: "cust-1"}
	assert.False(t, wallet.AllowsNegative(), "customer wallets never run negative")

	cash := domain.Account{AccountType: domain.Asset}
	assert.False(t, cash.AllowsNegative(), "asset accounts never run negative")
}
