package services

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"

	"github.com/guardian-dev/guardian/domain"
	serrors "github.com/guardian-dev/guardian/errors"
	"github.com/guardian-dev/guardian/internal/metrics"
)

// MFAClaims is the signed payload of a challenge token. The challenge is
// fully self-contained: a salted hash of the one-time code travels inside the
// token, so no server-side challenge state is kept.
type MFAClaims struct {
	Code  string `json:"code"`
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// MFAConfig holds the challenger's knobs.
type MFAConfig struct {
	// StalenessCutoff is how long an identity may go unseen before the next
	// login requires a second factor.
	StalenessCutoff time.Duration
	// CodeTTL is the challenge token lifetime.
	CodeTTL time.Duration
	// ResendInterval is the minimum delay between challenge mails per user.
	ResendInterval time.Duration
}

// MFAService decides when a login needs a second factor and issues/verifies
// one-time codes carried in signed challenge tokens.
type MFAService struct {
	signer   *TokenSigner
	mailer   Mailer
	hasher   PasswordHasher
	lastSent *ttlcache.Cache[string, time.Time]
	cfg      MFAConfig
}

// NewMFAService creates a new MFAService instance.
func NewMFAService(signer *TokenSigner, mailer Mailer, hasher PasswordHasher, cfg MFAConfig) *MFAService {
	lastSent := ttlcache.New(
		ttlcache.WithTTL[string, time.Time](cfg.ResendInterval),
		ttlcache.WithDisableTouchOnHit[string, time.Time](),
	)
	go lastSent.Start()

	return &MFAService{
		signer:   signer,
		mailer:   mailer,
		hasher:   hasher,
		lastSent: lastSent,
		cfg:      cfg,
	}
}

// ShouldChallenge reports whether a login for this identity needs a second
// factor: only identities with an email are challengeable, and only when they
// have not been seen within the staleness cutoff.
func (s *MFAService) ShouldChallenge(user *domain.User) bool {
	if user == nil || user.Email == "" {
		return false
	}
	return time.Since(user.LastSeenAt) > s.cfg.StalenessCutoff
}

// IssueChallenge generates a one-time code, mails it, and returns a signed
// challenge token embedding the code's hash. When existingExp is non-nil the
// resent challenge reuses it, so resending never extends the attack window.
// Violating the per-user resend interval fails with ErrTooManyRequests.
func (s *MFAService) IssueChallenge(ctx context.Context, userID, email string, existingExp *time.Time) (string, error) {
	if userID == "" || email == "" {
		return "", serrors.ErrIssuance
	}

	if s.lastSent.Get(userID) != nil {
		return "", serrors.ErrTooManyRequests
	}

	exp := time.Now().Add(s.cfg.CodeTTL)
	if existingExp != nil {
		exp = *existingExp
	}

	code, err := generateCode()
	if err != nil {
		return "", err
	}
	hashedCode, err := s.hasher.Hash(code)
	if err != nil {
		return "", err
	}

	claims := &MFAClaims{
		Code:  hashedCode,
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token, err := s.signer.Sign(claims, KeyPurposeMFA)
	if err != nil {
		return "", err
	}

	if err := s.mailer.Send(ctx, email, "Guardian 2FA Code", fmt.Sprintf("<h1>%s</h1>", code)); err != nil {
		return "", err
	}

	s.lastSent.Set(userID, time.Now(), ttlcache.DefaultTTL)
	metrics.MFAChallengesTotal.Inc()

	return token, nil
}

// ParseChallenge verifies a challenge token's signature and expiry.
func (s *MFAService) ParseChallenge(token string) (*MFAClaims, error) {
	claims := &MFAClaims{}
	_, err := jwt.ParseWithClaims(token, claims, s.signer.Keyfunc(KeyPurposeMFA),
		jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, serrors.ErrInvalidToken
	}
	return claims, nil
}

// VerifyChallenge checks the presented code against the hash embedded in the
// challenge token. A mismatch fails with ErrInvalidCode.
func (s *MFAService) VerifyChallenge(token, code string) (*MFAClaims, error) {
	claims, err := s.ParseChallenge(token)
	if err != nil {
		return nil, err
	}

	if err := s.hasher.Verify(claims.Code, code); err != nil {
		return nil, serrors.ErrInvalidCode
	}
	return claims, nil
}

// Close stops the resend-stamp cache.
func (s *MFAService) Close() {
	s.lastSent.Stop()
}

// generateCode returns a 6-digit numeric one-time code.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
