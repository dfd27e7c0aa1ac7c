package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/guardian-dev/guardian/domain"
	serrors "github.com/guardian-dev/guardian/errors"
)

// LockoutConfig holds the brute-force lockout knobs.
type LockoutConfig struct {
	// Window is how long a failed-attempt counter stays live. A counter older
	// than this self-heals to zero on the next check.
	Window time.Duration
	// MaxAttempts is the failure count at which login is blocked.
	MaxAttempts int
}

// LockoutService tracks failed login attempts per identity and decides
// whether a login is blocked.
type LockoutService struct {
	repo domain.LoginAttemptRepository
	cfg  LockoutConfig
}

// NewLockoutService creates a new LockoutService instance.
func NewLockoutService(repo domain.LoginAttemptRepository, cfg LockoutConfig) *LockoutService {
	return &LockoutService{repo: repo, cfg: cfg}
}

// RecordFailure increments the user's counter, creating it if absent, and
// stamps the attempt time.
func (s *LockoutService) RecordFailure(ctx context.Context, userID string) error {
	attempt, err := s.repo.GetByUser(ctx, userID)
	if err != nil {
		if !errors.Is(err, serrors.ErrNotFound) {
			return err
		}
		attempt = &domain.LoginAttempt{UserID: userID}
	}

	attempt.Attempts++
	attempt.LastAttemptAt = time.Now().UTC()
	return s.repo.Upsert(ctx, attempt)
}

// Reset zeroes the user's counter, used after a successful login.
func (s *LockoutService) Reset(ctx context.Context, userID string) error {
	return s.repo.Upsert(ctx, &domain.LoginAttempt{
		UserID:        userID,
		Attempts:      0,
		LastAttemptAt: time.Now().UTC(),
	})
}

// IsBlocked reports whether login for the user is currently blocked. An empty
// user id (unknown username) is never blocked, but the lookup is still made
// so the unknown-user path costs the same as the known-user path.
func (s *LockoutService) IsBlocked(ctx context.Context, userID string) (bool, error) {
	if userID == "" {
		_, _ = s.repo.GetByUser(ctx, "-")
		return false, nil
	}

	attempt, err := s.repo.GetByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, serrors.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	if time.Since(attempt.LastAttemptAt) > s.cfg.Window {
		attempt.Attempts = 0
		attempt.LastAttemptAt = time.Now().UTC()
		if err := s.repo.Upsert(ctx, attempt); err != nil {
			log.Warn().Err(err).Str("userID", userID).Msg("failed to reset stale login attempts")
		}
		return false, nil
	}

	return attempt.Attempts >= s.cfg.MaxAttempts, nil
}
