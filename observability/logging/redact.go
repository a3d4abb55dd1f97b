package logging

import (
	"log/slog"
	"sort"
	"strings"
)

// RedactedValue replaces link keys, signatures and authorizations in logs.
const RedactedValue = "[REDACTED]"

var redactionAllowlist = map[string]struct{}{
	"service":    {},
	"env":        {},
	"message":    {},
	"severity":   {},
	"timestamp":  {},
	"error":      {},
	"reason":     {},
	"component":  {},
	"operation":  {},
	"outcome":    {},
	"asset":      {},
	"amount":     {},
	"expiration": {},
	"tokenid":    {},
	"method":     {},
	"sender":     {},
	"receiver":   {},
	"transferid": {},
	"sequence":   {},
}

// IsAllowlisted reports whether key may be logged verbatim. Matching ignores
// case, so "transferId" and "transferid" are the same field.
func IsAllowlisted(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	_, ok := redactionAllowlist[normalized]
	return ok
}

// RedactionAllowlist returns the allowlisted keys in sorted order.
func RedactionAllowlist() []string {
	keys := make([]string, 0, len(redactionAllowlist))
	for key := range redactionAllowlist {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// MaskValue redacts any non-blank value.
func MaskValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return value
	}
	return RedactedValue
}

// MaskField builds the attribute for an RPC param. Addresses, amounts and
// expirations pass through; everything else is redacted.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || IsAllowlisted(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}
