// Package fingerprint canonicalizes and hashes draft content for exact
// repeat detection.
//
// Fingerprints are case-sensitive: two drafts that differ only in the
// casing of a name or company token hash differently.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// BodyPrefixChars is how much of the normalized body participates in the
// fingerprint.
const BodyPrefixChars = 500

// Normalize collapses every run of whitespace to a single space and trims
// the result.
func Normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Fingerprint returns the hex SHA-256 of the first BodyPrefixChars
// characters of the normalized body followed by the normalized subject.
func Fingerprint(subject, body string) string {
	b := Normalize(body)
	if r := []rune(b); len(r) > BodyPrefixChars {
		b = string(r[:BodyPrefixChars])
	}
	sum := sha256.Sum256([]byte(b + Normalize(subject)))
	return hex.EncodeToString(sum[:])
}

// RecipientKey hashes a normalized email address so storage keys never
// carry the raw address.
func RecipientKey(email string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(email))))
	return hex.EncodeToString(sum[:])
}
