// Package fingerprint computes content digests for clipboard integrity checks.
//
// A fingerprint is the SHA-256 digest of clipboard text, hex encoded. Equality
// comparisons throughout the guard use fingerprints so the protected address
// never has to be passed around in comparison logic.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Size is the length of a hex-encoded fingerprint.
const Size = sha256.Size * 2

// Hash returns the hex-encoded SHA-256 digest of s.
func Hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// HashTrimmed returns the digest of s with surrounding whitespace removed.
// Clipboard content is trimmed before classification, so fingerprints taken
// at capture time and at verification time must trim identically.
func HashTrimmed(s string) string {
	return Hash(strings.TrimSpace(s))
}

// Equal reports whether two fingerprints match. Both must be non-empty;
// an empty fingerprint never matches anything, including another empty one.
func Equal(a, b string) bool {
	return a != "" && a == b
}
