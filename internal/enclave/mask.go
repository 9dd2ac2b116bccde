package enclave

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

// Mask hides all but the last visible characters, e.g. "****1234".
func Mask(s string, visible int) string {
	if visible < 0 {
		visible = 0
	}
	if len(s) <= visible {
		return strings.Repeat("*", len(s))
	}
	return strings.Repeat("*", len(s)-visible) + s[len(s)-visible:]
}

// GenerateToken returns n random bytes, hex encoded.
func GenerateToken(n int) (string, error) {
	if n <= 0 {
		n = 32
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
