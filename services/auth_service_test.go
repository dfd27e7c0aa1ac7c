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

type authFixture struct {
	svc    *services.AuthService
	users  *memUserRepo
	mailer *captureMailer
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()

	users := newMemUserRepo()
	tokenRepo := newMemTokenRepo()
	store := cache.NewMemorySessionStore()
	t.Cleanup(func() { _ = store.Close() })

	signer := newTestSigner()
	tokens := services.NewTokenService(tokenRepo, store, signer, &syncScheduler{}, defaultTokenConfig())
	lockout := services.NewLockoutService(newMemAttemptRepo(), services.LockoutConfig{
		Window:      15 * time.Minute,
		MaxAttempts: 3,
	})
	mailer := &captureMailer{}
	mfa := services.NewMFAService(signer, mailer, plainHasher{}, services.MFAConfig{
		StalenessCutoff: 720 * time.Hour,
		CodeTTL:         5 * time.Minute,
		ResendInterval:  50 * time.Millisecond,
	})
	t.Cleanup(mfa.Close)

	decoy, err := plainHasher{}.Hash("decoy-password")
	require.NoError(t, err)

	return &authFixture{
		svc:    services.NewAuthService(users, tokens, lockout, mfa, plainHasher{}, decoy),
		users:  users,
		mailer: mailer,
	}
}

func (f *authFixture) addUser(t *testing.T, username, password string, mutate func(*domain.User)) *domain.User {
	t.Helper()
	hash, err := plainHasher{}.Hash(password)
	require.NoError(t, err)
	user := &domain.User{
		Username:     username,
		Email:        username + "@guardian.test",
		PasswordHash: hash,
		LastSeenAt:   time.Now(),
	}
	if mutate != nil {
		mutate(user)
	}
	require.NoError(t, f.users.CreateUser(context.Background(), user))
	return user
}

func TestAuthServiceLogin(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	f.addUser(t, "officer.jones", "correct-horse", func(u *domain.User) { u.IsOfficer = true })

	t.Run("Success", func(t *testing.T) {
		result, err := f.svc.Login(ctx, "officer.jones", "correct-horse")
		require.NoError(t, err)
		require.False(t, result.MFARequired())
		require.NotNil(t, result.Tokens)
		assert.NotEmpty(t, result.Tokens.AccessToken)
		assert.True(t, result.User.IsOfficer)
	})

	t.Run("WrongPassword", func(t *testing.T) {
		_, err := f.svc.Login(ctx, "officer.jones", "wrong")
		assert.ErrorIs(t, err, serrors.ErrInvalidCredentials)
	})

	t.Run("UnknownUserSameError", func(t *testing.T) {
		_, err := f.svc.Login(ctx, "nobody", "whatever")
		assert.ErrorIs(t, err, serrors.ErrInvalidCredentials)
	})
}

func TestAuthServiceLockout(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	f.addUser(t, "officer.jones", "correct-horse", nil)

	for i := 0; i < 3; i++ {
		_, err := f.svc.Login(ctx, "officer.jones", "wrong")
		require.ErrorIs(t, err, serrors.ErrInvalidCredentials)
	}

	// Correct password is refused while blocked, and the refusal is
	// indistinguishable from a bad password.
	_, err := f.svc.Login(ctx, "officer.jones", "correct-horse")
	assert.ErrorIs(t, err, serrors.ErrInvalidCredentials)
}

func TestAuthServiceMFAFlow(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	f.addUser(t, "officer.jones", "correct-horse", func(u *domain.User) {
		u.LastSeenAt = time.Now().Add(-9000 * time.Hour)
	})

	result, err := f.svc.Login(ctx, "officer.jones", "correct-horse")
	require.NoError(t, err)
	require.True(t, result.MFARequired(), "stale identity triggers a challenge")
	require.Nil(t, result.Tokens)

	t.Run("StalenessFlagPersisted", func(t *testing.T) {
		stored, err := f.users.GetUserByUsername(ctx, "officer.jones")
		require.NoError(t, err)
		assert.True(t, stored.MFARequired)
	})

	t.Run("WrongCodeRefused", func(t *testing.T) {
		_, err := f.svc.VerifyMFA(ctx, result.MFAToken, "000000")
		assert.ErrorIs(t, err, serrors.ErrInvalidCode)
	})

	t.Run("CorrectCodeCompletesLogin", func(t *testing.T) {
		completed, err := f.svc.VerifyMFA(ctx, result.MFAToken, f.mailer.lastCode())
		require.NoError(t, err)
		require.NotNil(t, completed.Tokens)
		assert.NotEmpty(t, completed.Tokens.AccessToken)

		stored, err := f.users.GetUserByUsername(ctx, "officer.jones")
		require.NoError(t, err)
		assert.False(t, stored.MFARequired, "verification clears the flag")
	})

	t.Run("NextLoginSkipsChallenge", func(t *testing.T) {
		result, err := f.svc.Login(ctx, "officer.jones", "correct-horse")
		require.NoError(t, err)
		assert.False(t, result.MFARequired())
		require.NotNil(t, result.Tokens)
	})
}

func TestAuthServiceResendMFA(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	f.addUser(t, "officer.jones", "correct-horse", func(u *domain.User) {
		u.LastSeenAt = time.Now().Add(-9000 * time.Hour)
	})

	result, err := f.svc.Login(ctx, "officer.jones", "correct-horse")
	require.NoError(t, err)
	require.True(t, result.MFARequired())

	_, err = f.svc.ResendMFA(ctx, result.MFAToken)
	assert.ErrorIs(t, err, serrors.ErrTooManyRequests, "resend inside the interval is refused")

	time.Sleep(80 * time.Millisecond)
	resent, err := f.svc.ResendMFA(ctx, result.MFAToken)
	require.NoError(t, err)

	completed, err := f.svc.VerifyMFA(ctx, resent, f.mailer.lastCode())
	require.NoError(t, err)
	assert.NotNil(t, completed.Tokens)
}

func TestAuthServiceRegister(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)

	t.Run("Success", func(t *testing.T) {
		user, err := f.svc.Register(ctx, services.RegisterInput{
			Username: "officer.jones",
			Password: "correct-horse",
			Email:    "jones@guardian.test",
		})
		require.NoError(t, err)
		assert.NotEmpty(t, user.ID)
		assert.NotEqual(t, "correct-horse", user.PasswordHash)
	})

	t.Run("Duplicate", func(t *testing.T) {
		_, err := f.svc.Register(ctx, services.RegisterInput{
			Username: "officer.jones",
			Password: "another-pass",
		})
		assert.ErrorIs(t, err, serrors.ErrDuplicateRecord)
	})

	t.Run("ShortUsername", func(t *testing.T) {
		_, err := f.svc.Register(ctx, services.RegisterInput{Username: "abc", Password: "long-enough"})
		assert.ErrorIs(t, err, serrors.ErrInvalidCredentials)
	})

	t.Run("ShortPassword", func(t *testing.T) {
		_, err := f.svc.Register(ctx, services.RegisterInput{Username: "officer.smith", Password: "short"})
		assert.ErrorIs(t, err, serrors.ErrInvalidCredentials)
	})

	t.Run("RegisteredUserCanLogin", func(t *testing.T) {
		result, err := f.svc.Login(ctx, "officer.jones", "correct-horse")
		require.NoError(t, err)
		assert.NotNil(t, result.Tokens)
	})
}

func TestAuthServiceLogout(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	user := f.addUser(t, "officer.jones", "correct-horse", nil)

	first, err := f.svc.Login(ctx, "officer.jones", "correct-horse")
	require.NoError(t, err)
	second, err := f.svc.Login(ctx, "officer.jones", "correct-horse")
	require.NoError(t, err)

	t.Run("SingleSession", func(t *testing.T) {
		err := f.svc.Logout(ctx, user.ID, first.Tokens.AccessToken, domain.TokenTypeAccess)
		require.NoError(t, err)

		_, err = f.svc.Refresh(ctx, "", first.Tokens.RefreshToken)
		assert.ErrorIs(t, err, serrors.ErrRevokedSession)

		_, err = f.svc.Refresh(ctx, "", second.Tokens.RefreshToken)
		assert.NoError(t, err, "the other session is untouched")
	})

	t.Run("Everywhere", func(t *testing.T) {
		third, err := f.svc.Login(ctx, "officer.jones", "correct-horse")
		require.NoError(t, err)

		require.NoError(t, f.svc.Logout(ctx, user.ID, "", domain.TokenTypeAccess))

		_, err = f.svc.Refresh(ctx, "", third.Tokens.RefreshToken)
		assert.ErrorIs(t, err, serrors.ErrRevokedSession)
	})
}
