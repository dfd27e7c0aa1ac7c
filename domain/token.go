package domain

import "time"

// TokenType discriminates the two halves of a session token pair.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// SessionToken is one issued token record. Access and refresh tokens of the
// same login share a SessionID but are separate records with separate
// expiries. Only a one-way hash of the token value is kept; the presence of a
// record for a session id is the revocation signal, not a hash lookup.
type SessionToken struct {
	ID        string    `bson:"_id,omitempty"`
	UserID    string    `bson:"user_id"`
	SessionID string    `bson:"session_id"`
	TokenHash string    `bson:"token_hash"`
	Type      TokenType `bson:"type"`
	ExpiresAt time.Time `bson:"expires_at"`
	CreatedAt time.Time `bson:"created_at"`
}
