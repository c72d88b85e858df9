package utils

import (
	"crypto/sha256"
	"fmt"
)

// ShortHash returns the first 16 hex characters of the SHA-256 digest of input.
func ShortHash(input string) string {
	hash := sha256.Sum256([]byte(input))
	return fmt.Sprintf("%x", hash)[:16]
}

// Truncate cuts s to at most n bytes.
func Truncate(s string, n int) string {
	if n >= 0 && len(s) > n {
		return s[:n]
	}
	return s
}
