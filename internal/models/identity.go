package models

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// Identity is the composite key an abuse history is tracked under.
// IPAddress is always present; Account and Fingerprint are optional signals
// supplied by the calling endpoint. An Identity is never persisted as an
// object, only its Key.
type Identity struct {
	IPAddress   string
	Account     string // email or username, hashed before it touches storage or logs
	Fingerprint string // opaque client-supplied device fingerprint
}

// Key returns the storage key for this identity. The account component is
// hashed so raw emails never land in the failure_records table.
func (i Identity) Key() string {
	var b strings.Builder
	b.WriteString("ip:")
	b.WriteString(i.IPAddress)
	if i.Account != "" {
		b.WriteString("|acct:")
		b.WriteString(HashAccount(i.Account))
	}
	if i.Fingerprint != "" {
		b.WriteString("|fp:")
		b.WriteString(i.Fingerprint)
	}
	return b.String()
}

// HashAccount returns a truncated SHA-256 digest of the lowercased account
// identifier, matching what gets stored and logged.
func HashAccount(account string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(account))))
	return fmt.Sprintf("%x", sum)[:16]
}
