package session

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// GenerateID generates a cryptographically secure session ID.
// 32 bytes = 256 bits of entropy.
func GenerateID() (string, error) {
	return randomString(32)
}

// GenerateSecret generates a per-session CSRF secret.
func GenerateSecret() (string, error) {
	return randomString(18)
}

func randomString(size int) (string, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("session: failed to generate random value: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
