package domain_test

import (
	"testing"

	"github.com/crestfx/fincore/internal/core/domain"
	"github.com/stretchr/testify/assert"
)

func TestTransactionStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		name string
		from domain.TransactionStatus
		to   domain.TransactionStatus
		want bool
	}{
		{"pending to processing", domain.StatusPending, domain.StatusProcessing, true},
		{"pending to cancelled", domain.StatusPending, domain.StatusCancelled, true},
		{"pending to failed", domain.StatusPending, domain.StatusFailed, true},
		{"pending skips straight to completed", domain.StatusPending, domain.StatusCompleted, false},
		{"processing to completed", domain.StatusProcessing, domain.StatusCompleted, true},
		{"processing to cancelled", domain.StatusProcessing, domain.StatusCancelled, true},
		{"processing to failed", domain.StatusProcessing, domain.StatusFailed, true},
		{"processing back to pending", domain.StatusProcessing, domain.StatusPending, false},
		{"completed to refunded", domain.StatusCompleted, domain.StatusRefunded, true},
		{"completed to reversed directly", domain.StatusCompleted, domain.StatusReversed, false},
		{"refunded to reversed", domain.StatusRefunded, domain.StatusReversed, true},
		{"failed is a dead end", domain.StatusFailed, domain.StatusPending, false},
		{"cancelled is a dead end", domain.StatusCancelled, domain.StatusProcessing, false},
		{"reversed is a dead end", domain.StatusReversed, domain.StatusRefunded, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestTransactionStatus_IsTerminal(t *testing.T) {
	assert.False(t, domain.StatusPending.IsTerminal())
	assert.False(t, domain.StatusProcessing.IsTerminal())
	assert.True(t, domain.StatusCompleted.IsTerminal())
	assert.True(t, domain.StatusFailed.IsTerminal())
	assert.True(t, domain.StatusCancelled.IsTerminal())
	assert.True(t, domain.StatusRefunded.IsTerminal())
	assert.True(t, domain.StatusReversed.IsTerminal())
}
