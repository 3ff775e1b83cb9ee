package utils

import (
	"crypto/rand"
	"encoding/hex"
)

// MinSecretBytes is the smallest signing secret the service accepts.
const MinSecretBytes = 32

// GenerateSecret returns n random bytes, hex encoded.
// Example: GenerateSecret(32) -> "a1b2c3d4e5f6..." (64 chars)
func GenerateSecret(n int) (string, error) {
	if n < MinSecretBytes {
		n = MinSecretBytes
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
