package model

import (
	"strings"
	"time"
)

// DefaultCredentialTTL is how long a stored credential stays valid after the
// most recent successful login.
const DefaultCredentialTTL = 30 * 24 * time.Hour

// CredentialRecord is the durable, encrypted copy of a platform session
// credential. There is at most one record per AccountID.
type CredentialRecord struct {
	AccountID        string
	DisplayName      string
	EncryptedPayload string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	ExpiresAt        *time.Time // nil means the record never expires.
}

// IsExpired reports whether the record's expiry lies before now. Records
// without an expiry never expire.
func (r CredentialRecord) IsExpired(now time.Time) bool {
	return r.ExpiresAt != nil && r.ExpiresAt.Before(now)
}

// CredentialPath returns the upstream-relative artifact path for an account,
// e.g. "data/42.json".
func CredentialPath(accountID string) string {
	return "data/" + accountID + ".json"
}

// AccountIDFromPath extracts the account id from an artifact path by
// stripping the directory prefix and the file extension. Both "/" and "\"
// separators are accepted because the upstream may run on either platform.
func AccountIDFromPath(path string) string {
	name := path
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.LastIndex(name, "."); i > 0 {
		name = name[:i]
	}
	return strings.TrimSpace(name)
}

// MaxAccountIDLen bounds account ids, which become artifact file names.
const MaxAccountIDLen = 64

// ValidAccountID reports whether id is 1 to MaxAccountIDLen characters of
// [A-Za-z0-9_-].
func ValidAccountID(id string) bool {
	if id == "" || len(id) > MaxAccountIDLen {
		return false
	}
	for _, ch := range id {
		if !isAccountIDChar(ch) {
			return false
		}
	}
	return true
}

func isAccountIDChar(ch rune) bool {
	return (ch >= 'a' && ch <= 'z') ||
		(ch >= 'A' && ch <= 'Z') ||
		(ch >= '0' && ch <= '9') ||
		ch == '-' || ch == '_'
}
