// Package idgen generates the observable business identifiers of the core.
// Formats are stable: TXN<epoch-ms><4 digits>, LE<epoch-ms><3 digits>,
// AUD<epoch-ms><3 digits>, account numbers <type-prefix><epoch-ms><3 digits>.
// Suffix digits come from crypto/rand; collisions surface as unique-constraint
// violations and are retried by callers.
package idgen

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// randomDigits returns n decimal digits from a cryptographically secure source.
func randomDigits(n int) string {
	max := big.NewInt(1)
	for i := 0; i < n; i++ {
		max.Mul(max, big.NewInt(10))
	}
	v, err := rand.Int(rand.Reader, max)
	if err != nil {
		// crypto/rand failing means the platform random source is broken;
		// fall back to the clock so id generation still terminates.
		v = big.NewInt(time.Now().UnixNano() % max.Int64())
	}
	return fmt.Sprintf("%0*d", n, v)
}

// TransactionNumber returns a TXN identifier for the given instant.
func TransactionNumber(now time.Time) string {
	return fmt.Sprintf("TXN%d%s", now.UnixMilli(), randomDigits(4))
}

// EntryNumber returns an LE identifier for the given instant.
func EntryNumber(now time.Time) string {
	return fmt.Sprintf("LE%d%s", now.UnixMilli(), randomDigits(3))
}

// AuditNumber returns an AUD identifier for the given instant.
func AuditNumber(now time.Time) string {
	return fmt.Sprintf("AUD%d%s", now.UnixMilli(), randomDigits(3))
}

// AccountNumber returns a type-prefixed account number.
func AccountNumber(prefix string, now time.Time) string {
	return fmt.Sprintf("%s%d%s", prefix, now.UnixMilli(), randomDigits(3))
}
