package cache

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashToken produces the one-way hash under which a token value is persisted.
// Records never hold the plaintext token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
