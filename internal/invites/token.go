package invites

import (
	"crypto/rand"
	"fmt"
)

const (
	// DefaultTokenLength gives about 190 bits of entropy over the 62-symbol alphabet.
	DefaultTokenLength = 32
	// MinTokenLength is the shortest token Mint will issue.
	MinTokenLength = 24
	// MaxTokenLength bounds lookups so oversized input never reaches the store.
	MaxTokenLength = 128

	tokenAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// GenerateToken returns a random token of length n drawn uniformly from [A-Za-z0-9].
// Bytes >= 248 are discarded so every symbol is equally likely.
func GenerateToken(n int) (string, error) {
	if n < MinTokenLength {
		n = MinTokenLength
	}
	const limit = 256 - 256%len(tokenAlphabet)
	out := make([]byte, 0, n)
	buf := make([]byte, n*2)
	for len(out) < n {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("read random: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, tokenAlphabet[int(b)%len(tokenAlphabet)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}
