package services

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidKeyID = errors.New("invalid key id")

// Token purposes. Each purpose signs with its own secret so an access token
// can never be replayed as a refresh token or an MFA challenge.
const (
	KeyPurposeAccess  = "access"
	KeyPurposeRefresh = "refresh"
	KeyPurposeMFA     = "mfa"
)

// TokenSigner signs and verifies HS256 tokens keyed by purpose.
type TokenSigner struct {
	secrets map[string][]byte
}

// NewTokenSigner creates a new TokenSigner instance.
func NewTokenSigner() *TokenSigner {
	return &TokenSigner{
		secrets: make(map[string][]byte),
	}
}

// AddKeySigner registers the signing secret for a purpose.
func (s *TokenSigner) AddKeySigner(purpose, secretKey string) {
	s.secrets[purpose] = []byte(secretKey)
}

// Sign signs claims with the secret registered for the purpose.
func (s *TokenSigner) Sign(claims jwt.Claims, purpose string) (string, error) {
	secret, ok := s.secrets[purpose]
	if !ok {
		return "", ErrInvalidKeyID
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// Keyfunc returns the verification key function for a purpose.
func (s *TokenSigner) Keyfunc(purpose string) jwt.Keyfunc {
	return func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		secret, ok := s.secrets[purpose]
		if !ok {
			return nil, ErrInvalidKeyID
		}
		return secret, nil
	}
}
