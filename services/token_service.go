package services

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/guardian-dev/guardian/cache"
	"github.com/guardian-dev/guardian/domain"
	serrors "github.com/guardian-dev/guardian/errors"
	"github.com/guardian-dev/guardian/internal/metrics"
)

// SessionClaims is the signed payload of an access or refresh token. The jti
// carries the session id shared by both halves of a pair.
type SessionClaims struct {
	IsOfficer bool `json:"is_officer"`
	jwt.RegisteredClaims
}

// TokenPair is one issued access/refresh pair.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// TokenServiceConfig holds the token authority's timing knobs.
type TokenServiceConfig struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// RefreshEnabledWindow is how close to expiry an access token must be
	// before its session becomes eligible for rotation.
	RefreshEnabledWindow time.Duration
	// RotationGraceDelay is how long the old session's records survive after
	// rotation, to tolerate requests already in flight.
	RotationGraceDelay time.Duration
}

// TokenService mints, verifies and rotates session token pairs.
type TokenService struct {
	repo   domain.TokenRepository
	cache  cache.SessionStore
	signer *TokenSigner
	sched  Scheduler
	cfg    TokenServiceConfig
}

// NewTokenService creates a new TokenService instance.
func NewTokenService(
	repo domain.TokenRepository,
	sessionCache cache.SessionStore,
	signer *TokenSigner,
	sched Scheduler,
	cfg TokenServiceConfig,
) *TokenService {
	return &TokenService{
		repo:   repo,
		cache:  sessionCache,
		signer: signer,
		sched:  sched,
		cfg:    cfg,
	}
}

// Issue mints a new session: one access and one refresh token sharing a fresh
// session id, both persisted as hashed records.
func (s *TokenService) Issue(ctx context.Context, userID string, isOfficer bool) (*TokenPair, error) {
	if userID == "" {
		return nil, serrors.ErrIssuance
	}

	sessionID := uuid.NewString()
	now := time.Now()

	access, err := s.mint(ctx, userID, sessionID, isOfficer, domain.TokenTypeAccess, now.Add(s.cfg.AccessTTL))
	if err != nil {
		return nil, err
	}
	refresh, err := s.mint(ctx, userID, sessionID, isOfficer, domain.TokenTypeRefresh, now.Add(s.cfg.RefreshTTL))
	if err != nil {
		return nil, err
	}

	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *TokenService) mint(ctx context.Context, userID, sessionID string, isOfficer bool, typ domain.TokenType, expiresAt time.Time) (string, error) {
	claims := &SessionClaims{
		IsOfficer: isOfficer,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        sessionID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	signed, err := s.signer.Sign(claims, string(typ))
	if err != nil {
		return "", err
	}

	record := &domain.SessionToken{
		UserID:    userID,
		SessionID: sessionID,
		TokenHash: cache.HashToken(signed),
		Type:      typ,
		ExpiresAt: expiresAt,
	}
	if err := s.repo.StoreToken(ctx, record); err != nil {
		return "", err
	}
	metrics.TokensCreatedTotal.Inc()

	if err := s.cache.Set(ctx, &cache.SessionEntry{
		SessionID: sessionID,
		UserID:    userID,
		Type:      string(typ),
		ExpiresAt: expiresAt,
	}); err != nil {
		log.Warn().Err(err).Msg("failed to cache session entry")
	}

	return signed, nil
}

// Verify checks signature and expiry, then confirms the embedded session is
// still live. A bad token fails with ErrInvalidToken; a verifiable token whose
// session record is gone fails with ErrRevokedSession.
func (s *TokenService) Verify(ctx context.Context, tokenValue string, typ domain.TokenType) (*SessionClaims, error) {
	claims, err := s.parse(tokenValue, typ)
	if err != nil {
		return nil, err
	}

	if entry, cacheErr := s.cache.Get(ctx, claims.ID, typ); cacheErr == nil && entry != nil {
		return claims, nil
	}

	record, err := s.repo.GetBySession(ctx, claims.ID, typ)
	if err != nil {
		if errors.Is(err, serrors.ErrNotFound) {
			return nil, serrors.ErrRevokedSession
		}
		return nil, err
	}

	if err := s.cache.Set(ctx, &cache.SessionEntry{
		SessionID: record.SessionID,
		UserID:    record.UserID,
		Type:      string(record.Type),
		ExpiresAt: record.ExpiresAt,
	}); err != nil {
		log.Warn().Err(err).Msg("failed to cache session entry")
	}

	return claims, nil
}

func (s *TokenService) parse(tokenValue string, typ domain.TokenType) (*SessionClaims, error) {
	claims := &SessionClaims{}
	_, err := jwt.ParseWithClaims(tokenValue, claims, s.signer.Keyfunc(string(typ)),
		jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, serrors.ErrInvalidToken
	}
	return claims, nil
}

// Rotate replaces a session's token pair with a fresh pair under a new
// session id. Rotation is rate-limited by freshness: while the presented
// access token still has more than RefreshEnabledWindow of life left, it is
// refused with ErrRefreshNotEligible. The old session's records are deleted
// after a grace delay rather than synchronously, so requests already in
// flight with the old access token do not 401 spuriously.
func (s *TokenService) Rotate(ctx context.Context, accessToken, refreshToken string) (*TokenPair, error) {
	if accessToken != "" {
		if accessClaims, err := s.Verify(ctx, accessToken, domain.TokenTypeAccess); err == nil {
			remaining := time.Until(accessClaims.ExpiresAt.Time)
			if remaining > s.cfg.RefreshEnabledWindow {
				return nil, serrors.ErrRefreshNotEligible
			}
		}
	}

	refreshClaims, err := s.Verify(ctx, refreshToken, domain.TokenTypeRefresh)
	if err != nil {
		return nil, err
	}

	oldSessionID := refreshClaims.ID
	s.sched.Schedule(s.cfg.RotationGraceDelay, func() {
		// Detached from the request: failures are logged, never surfaced.
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := s.repo.DeleteBySession(cleanupCtx, oldSessionID); err != nil {
			log.Warn().Err(err).Str("sessionID", oldSessionID).Msg("deferred session cleanup failed")
		}
		if err := s.cache.Delete(cleanupCtx, oldSessionID); err != nil {
			log.Warn().Err(err).Str("sessionID", oldSessionID).Msg("deferred session cache cleanup failed")
		}
	})

	pair, err := s.Issue(ctx, refreshClaims.Subject, refreshClaims.IsOfficer)
	if err != nil {
		return nil, err
	}
	metrics.TokensRotatedTotal.Inc()
	return pair, nil
}

// Revoke deletes a single session's records immediately.
func (s *TokenService) Revoke(ctx context.Context, sessionID string) error {
	if err := s.cache.Delete(ctx, sessionID); err != nil {
		log.Warn().Err(err).Msg("failed to delete session from cache")
	}
	_, err := s.repo.DeleteBySession(ctx, sessionID)
	return err
}

// RevokeAll deletes every session record for a user.
func (s *TokenService) RevokeAll(ctx context.Context, userID string) error {
	sessionIDs, err := s.repo.ListSessionIDsByUser(ctx, userID)
	if err != nil {
		return err
	}
	for _, id := range sessionIDs {
		if cacheErr := s.cache.Delete(ctx, id); cacheErr != nil {
			log.Warn().Err(cacheErr).Str("sessionID", id).Msg("failed to delete session from cache")
		}
	}
	_, err = s.repo.DeleteByUser(ctx, userID)
	return err
}
