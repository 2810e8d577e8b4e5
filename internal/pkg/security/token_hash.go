package security

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashForStorage returns the SHA-256 digest of a token as lowercase hex. Only
// this digest of a refresh token is ever persisted.
func HashForStorage(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
