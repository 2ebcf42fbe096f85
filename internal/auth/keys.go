package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
)

// KeyPrefix marks BeadHub secret keys in credential stores and logs.
const KeyPrefix = "aw_sk_"

const base62 = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// keyEntropyChars gives well over 128 bits of entropy in base62.
const keyEntropyChars = 40

// MintKey generates a plaintext API key. The plaintext is returned to the
// caller exactly once; only HashKey(plaintext) is ever stored.
func MintKey() (string, error) {
	buf := make([]byte, keyEntropyChars)
	max := big.NewInt(int64(len(base62)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate key: %w", err)
		}
		buf[i] = base62[n.Int64()]
	}
	return KeyPrefix + string(buf), nil
}

// HashKey derives the stored lookup hash for a plaintext key.
func HashKey(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}
