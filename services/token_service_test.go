package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guardian-dev/guardian/cache"
	"github.com/guardian-dev/guardian/domain"
	serrors "github.com/guardian-dev/guardian/errors"
	"github.com/guardian-dev/guardian/services"
)

func newTokenService(t *testing.T, cfg services.TokenServiceConfig) (*services.TokenService, *memTokenRepo, *syncScheduler) {
	t.Helper()

	repo := newMemTokenRepo()
	store := cache.NewMemorySessionStore()
	t.Cleanup(func() { _ = store.Close() })
	sched := &syncScheduler{}

	return services.NewTokenService(repo, store, newTestSigner(), sched, cfg), repo, sched
}

func defaultTokenConfig() services.TokenServiceConfig {
	return services.TokenServiceConfig{
		AccessTTL:            15 * time.Minute,
		RefreshTTL:           168 * time.Hour,
		RefreshEnabledWindow: time.Minute,
		RotationGraceDelay:   5 * time.Second,
	}
}

func TestTokenServiceIssueAndVerify(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := newTokenService(t, defaultTokenConfig())

	pair, err := svc.Issue(ctx, "user-1", true)
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)

	accessClaims, err := svc.Verify(ctx, pair.AccessToken, domain.TokenTypeAccess)
	require.NoError(t, err)
	assert.Equal(t, "user-1", accessClaims.Subject)
	assert.True(t, accessClaims.IsOfficer)

	refreshClaims, err := svc.Verify(ctx, pair.RefreshToken, domain.TokenTypeRefresh)
	require.NoError(t, err)
	assert.Equal(t, accessClaims.ID, refreshClaims.ID, "both halves share the session id")

	t.Run("RecordsAreHashed", func(t *testing.T) {
		record, err := repo.GetBySession(ctx, accessClaims.ID, domain.TokenTypeAccess)
		require.NoError(t, err)
		assert.NotEqual(t, pair.AccessToken, record.TokenHash)
		assert.Equal(t, cache.HashToken(pair.AccessToken), record.TokenHash)
	})

	t.Run("WrongTypeRejected", func(t *testing.T) {
		_, err := svc.Verify(ctx, pair.AccessToken, domain.TokenTypeRefresh)
		assert.ErrorIs(t, err, serrors.ErrInvalidToken)
	})

	t.Run("GarbageRejected", func(t *testing.T) {
		_, err := svc.Verify(ctx, "not-a-token", domain.TokenTypeAccess)
		assert.ErrorIs(t, err, serrors.ErrInvalidToken)
	})

	t.Run("EmptyUserRefused", func(t *testing.T) {
		_, err := svc.Issue(ctx, "", false)
		assert.ErrorIs(t, err, serrors.ErrIssuance)
	})
}

func TestTokenServiceRotationFreshnessGate(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTokenService(t, defaultTokenConfig())

	pair, err := svc.Issue(ctx, "user-1", false)
	require.NoError(t, err)

	// Access token has nearly its whole 15m left, far above the 1m window.
	_, err = svc.Rotate(ctx, pair.AccessToken, pair.RefreshToken)
	assert.ErrorIs(t, err, serrors.ErrRefreshNotEligible)
}

func TestTokenServiceRotationAtWindowBoundary(t *testing.T) {
	ctx := context.Background()
	cfg := defaultTokenConfig()
	// The access token's remaining life equals the window at issue time and
	// only shrinks from there. Eligibility is strict: only remaining life
	// strictly above the window refuses, so the boundary rotates.
	cfg.AccessTTL = cfg.RefreshEnabledWindow
	svc, _, _ := newTokenService(t, cfg)

	pair, err := svc.Issue(ctx, "user-1", false)
	require.NoError(t, err)

	rotated, err := svc.Rotate(ctx, pair.AccessToken, pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, rotated.AccessToken)
	assert.NotEmpty(t, rotated.RefreshToken)
}

func TestTokenServiceRotate(t *testing.T) {
	ctx := context.Background()
	cfg := defaultTokenConfig()
	// Access tokens land inside the refresh window immediately.
	cfg.AccessTTL = 30 * time.Second
	svc, repo, sched := newTokenService(t, cfg)

	pair, err := svc.Issue(ctx, "user-1", true)
	require.NoError(t, err)
	oldClaims, err := svc.Verify(ctx, pair.AccessToken, domain.TokenTypeAccess)
	require.NoError(t, err)

	newPair, err := svc.Rotate(ctx, pair.AccessToken, pair.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, pair.RefreshToken, newPair.RefreshToken)

	newClaims, err := svc.Verify(ctx, newPair.AccessToken, domain.TokenTypeAccess)
	require.NoError(t, err)
	assert.Equal(t, "user-1", newClaims.Subject)
	assert.True(t, newClaims.IsOfficer, "officer flag survives rotation")
	assert.NotEqual(t, oldClaims.ID, newClaims.ID, "rotation produces a new session id")

	t.Run("OldSessionSurvivesGracePeriod", func(t *testing.T) {
		_, err := repo.GetBySession(ctx, oldClaims.ID, domain.TokenTypeRefresh)
		assert.NoError(t, err, "old records still present before the grace delay fires")
	})

	t.Run("OldSessionGoneAfterGracePeriod", func(t *testing.T) {
		sched.Flush()
		_, err := repo.GetBySession(ctx, oldClaims.ID, domain.TokenTypeRefresh)
		assert.ErrorIs(t, err, serrors.ErrNotFound)
	})

	t.Run("MissingAccessTokenStillRotates", func(t *testing.T) {
		rotated, err := svc.Rotate(ctx, "", newPair.RefreshToken)
		require.NoError(t, err)
		assert.NotEmpty(t, rotated.RefreshToken)
	})
}

func TestTokenServiceRevoke(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTokenService(t, defaultTokenConfig())

	pair, err := svc.Issue(ctx, "user-1", false)
	require.NoError(t, err)
	claims, err := svc.Verify(ctx, pair.AccessToken, domain.TokenTypeAccess)
	require.NoError(t, err)

	require.NoError(t, svc.Revoke(ctx, claims.ID))

	_, err = svc.Verify(ctx, pair.AccessToken, domain.TokenTypeAccess)
	assert.ErrorIs(t, err, serrors.ErrRevokedSession)
	_, err = svc.Verify(ctx, pair.RefreshToken, domain.TokenTypeRefresh)
	assert.ErrorIs(t, err, serrors.ErrRevokedSession)
}

func TestTokenServiceRevokeAll(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTokenService(t, defaultTokenConfig())

	first, err := svc.Issue(ctx, "user-1", false)
	require.NoError(t, err)
	second, err := svc.Issue(ctx, "user-1", false)
	require.NoError(t, err)
	other, err := svc.Issue(ctx, "user-2", false)
	require.NoError(t, err)

	require.NoError(t, svc.RevokeAll(ctx, "user-1"))

	_, err = svc.Verify(ctx, first.AccessToken, domain.TokenTypeAccess)
	assert.ErrorIs(t, err, serrors.ErrRevokedSession)
	_, err = svc.Verify(ctx, second.RefreshToken, domain.TokenTypeRefresh)
	assert.ErrorIs(t, err, serrors.ErrRevokedSession)

	_, err = svc.Verify(ctx, other.AccessToken, domain.TokenTypeAccess)
	assert.NoError(t, err, "other users' sessions are untouched")
}
