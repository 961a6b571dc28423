package core

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashString returns the hex SHA-256 digest of s.
func HashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// ShortHash returns the first n hex characters of HashString(s).
func ShortHash(s string, n int) string {
	h := HashString(s)
	if n <= 0 || n >= len(h) {
		return h
	}
	return h[:n]
}
