package fulfillment

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// InvoiceSetHash computes a content hash of an invoice set over {id, state}
// pairs. The hash is independent of input order and of wall-clock time, so
// it changes exactly when an invoice enters, leaves, or changes state. The
// empty set hashes to a stable non-empty value.
func InvoiceSetHash(invoices []Invoice) string {
	pairs := make([]string, 0, len(invoices))
	for _, inv := range invoices {
		pairs = append(pairs, inv.ID.String()+":"+string(inv.State))
	}
	sort.Strings(pairs)
	sum := sha256.Sum256([]byte(strings.Join(pairs, "\n")))
	return hex.EncodeToString(sum[:])
}
