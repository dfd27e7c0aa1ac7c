package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/guardian-dev/guardian/services"
)

// BcryptPasswordHasher backs services.PasswordHasher with bcrypt. It hashes
// login passwords, the six-digit MFA codes embedded in challenge tokens, and
// the decoy hash verified against for unknown usernames.
type BcryptPasswordHasher struct {
	cost int
}

// NewBcryptPasswordHasher creates a hasher with the given cost. Costs outside
// bcrypt's supported range fall back to bcrypt.DefaultCost.
func NewBcryptPasswordHasher(cost int) *BcryptPasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptPasswordHasher{cost: cost}
}

// Cost reports the effective bcrypt cost.
func (h *BcryptPasswordHasher) Cost() int {
	return h.cost
}

// Hash generates a bcrypt hash of the plaintext. Inputs over bcrypt's 72-byte
// limit are rejected by the library, not truncated.
func (h *BcryptPasswordHasher) Hash(plaintext string) (string, error) {
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", fmt.Errorf("bcrypt hash generation failed: %w", err)
	}
	return string(hashedBytes), nil
}

// Verify returns nil when plaintext matches the hash.
func (h *BcryptPasswordHasher) Verify(hashed, plaintext string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plaintext))
}

var _ services.PasswordHasher = (*BcryptPasswordHasher)(nil)
