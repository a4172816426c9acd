package db

import (
	"net/url"
	"strings"
)

// hasParam reports whether a postgres URL or keyword/value DSN sets key.
func hasParam(raw, key string) bool {
	if u, err := url.Parse(raw); err == nil && (u.Scheme == "postgres" || u.Scheme == "postgresql") {
		return u.Query().Has(key)
	}
	for _, field := range strings.Fields(raw) {
		if k, _, ok := strings.Cut(field, "="); ok && k == key {
			return true
		}
	}
	return false
}
