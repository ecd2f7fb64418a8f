package pagination

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEncodeDecodeToken(t *testing.T) {
	orderedAt := time.Date(2025, 3, 10, 14, 30, 45, 123456789, time.UTC)

	token := EncodeToken(orderedAt, "entry-42")
	assert.NotEmpty(t, token, "Token should not be empty")

	decodedAt, tieBreaker, err := DecodeToken(token)
	assert.NoError(t, err, "Decoding should not return an error")
	assert.True(t, orderedAt.Equal(decodedAt), "Ordering timestamp should match after decode")
	assert.Equal(t, "entry-42", tieBreaker, "Tie-breaker should match after decode")
}

func TestEncodeDecodeTokenWithPipeInTieBreaker(t *testing.T) {
	// The tie-breaker may itself contain the separator; only the first pipe splits.
	orderedAt := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	token := EncodeToken(orderedAt, "a|b")

	_, tieBreaker, err := DecodeToken(token)
	assert.NoError(t, err)
	assert.Equal(t, "a|b", tieBreaker)
}

func TestDecodeTokenError(t *testing.T) {
	// Invalid base64
	_, _, err := DecodeToken("this is not base64!")
	assert.Error(t, err, "Should return an error for invalid base64")
	assert.Contains(t, err.Error(), "base64 decode", "Error should mention base64 decoding")

	// Valid base64, missing separator
	_, _, err = DecodeToken("bm8tc2VwYXJhdG9y") // "no-separator"
	assert.Error(t, err, "Should return an error when the separator is missing")

	// Valid base64, unparseable timestamp
	_, _, err = DecodeToken("bm90LWEtdGltZXxpZA==") // "not-a-time|id"
	assert.Error(t, err, "Should return an error for an unparseable timestamp")
	assert.Contains(t, err.Error(), "time parse", "Error should mention time parsing")
}
