package idgen

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var fixedNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func TestTransactionNumberFormat(t *testing.T) {
	number := TransactionNumber(fixedNow)
	assert.Regexp(t, regexp.MustCompile(`^TXN\d{17}$`), number)
	assert.Contains(t, number, "1741608000000") // the epoch-ms component
}

func TestEntryAndAuditNumberFormats(t *testing.T) {
	assert.Regexp(t, regexp.MustCompile(`^LE\d{16}$`), EntryNumber(fixedNow))
	assert.Regexp(t, regexp.MustCompile(`^AUD\d{16}$`), AuditNumber(fixedNow))
}

func TestAccountNumberCarriesTypePrefix(t *testing.T) {
	number := AccountNumber("2", fixedNow)
	assert.Regexp(t, regexp.MustCompile(`^2\d{16}$`), number)
}
