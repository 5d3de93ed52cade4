package session

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// tokenBytes gives 256 bits of entropy per token.
const tokenBytes = 32

// GenerateToken returns a new URL-safe random session token.
func GenerateToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("session: failed to generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
