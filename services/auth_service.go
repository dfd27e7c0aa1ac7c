package services

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/guardian-dev/guardian/domain"
	serrors "github.com/guardian-dev/guardian/errors"
	"github.com/guardian-dev/guardian/internal/metrics"
)

// AuthService orchestrates credential verification, lockout, MFA and token
// issuance. It holds no state of its own.
type AuthService struct {
	users   domain.UserRepository
	tokens  *TokenService
	lockout *LockoutService
	mfa     *MFAService
	hasher  PasswordHasher
	// decoyHash is verified against when the username is unknown, so response
	// timing does not reveal whether the user exists.
	decoyHash string
}

// NewAuthService creates a new AuthService instance.
func NewAuthService(
	users domain.UserRepository,
	tokens *TokenService,
	lockout *LockoutService,
	mfa *MFAService,
	hasher PasswordHasher,
	decoyHash string,
) *AuthService {
	return &AuthService{
		users:     users,
		tokens:    tokens,
		lockout:   lockout,
		mfa:       mfa,
		hasher:    hasher,
		decoyHash: decoyHash,
	}
}

// RegisterInput carries a registration request.
type RegisterInput struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// LoginResult is the outcome of a successful password check: either a token
// pair, or a challenge token when a second factor is required.
type LoginResult struct {
	User     *domain.User
	Tokens   *TokenPair
	MFAToken string
}

// MFARequired reports whether the login stopped at the challenge step.
func (r *LoginResult) MFARequired() bool {
	return r.MFAToken != ""
}

// Login verifies credentials and either issues a token pair or returns an MFA
// challenge token. Every failure path records a failed attempt (when the user
// is known) and fails uniformly with ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil && !errors.Is(err, serrors.ErrNotFound) {
		log.Error().Err(err).Msg("login: user lookup failed")
		return nil, serrors.ErrInvalidCredentials
	}

	// The unknown-user path still performs a hash verification (against the
	// decoy) and a lockout lookup, keeping its timing in line with the
	// known-user path.
	var validPassword bool
	var userID string
	if user == nil {
		validPassword = s.hasher.Verify(s.decoyHash, password) == nil
	} else {
		validPassword = s.hasher.Verify(user.PasswordHash, password) == nil
		userID = user.ID
	}

	blocked, err := s.lockout.IsBlocked(ctx, userID)
	if err != nil {
		log.Error().Err(err).Msg("login: lockout check failed")
		return nil, serrors.ErrInvalidCredentials
	}

	if user == nil || !validPassword || blocked {
		if user != nil {
			if err := s.lockout.RecordFailure(ctx, user.ID); err != nil {
				log.Warn().Err(err).Str("userID", user.ID).Msg("login: failed to record login attempt")
			}
		}
		metrics.LoginFailureTotal.Inc()
		return nil, serrors.ErrInvalidCredentials
	}

	if err := s.lockout.Reset(ctx, user.ID); err != nil {
		log.Warn().Err(err).Str("userID", user.ID).Msg("login: failed to reset login attempts")
	}

	// Evaluate staleness before the touch: the touch must not hide how long
	// the identity had gone unseen.
	if !user.MFARequired && s.mfa.ShouldChallenge(user) {
		user.MFARequired = true
		if err := s.users.SetMFARequired(ctx, user.ID, true); err != nil {
			log.Warn().Err(err).Str("userID", user.ID).Msg("login: failed to persist mfa_required")
		}
	}

	if err := s.users.TouchLastSeen(ctx, user.ID); err != nil {
		log.Warn().Err(err).Str("userID", user.ID).Msg("login: failed to touch last_seen_at")
	}

	if user.MFARequired {
		challenge, err := s.mfa.IssueChallenge(ctx, user.ID, user.Email, nil)
		if err != nil {
			if errors.Is(err, serrors.ErrTooManyRequests) {
				return nil, err
			}
			log.Error().Err(err).Str("userID", user.ID).Msg("login: failed to issue MFA challenge")
			return nil, serrors.ErrInvalidCredentials
		}
		return &LoginResult{User: user, MFAToken: challenge}, nil
	}

	pair, err := s.tokens.Issue(ctx, user.ID, user.IsOfficer)
	if err != nil {
		log.Error().Err(err).Str("userID", user.ID).Msg("login: failed to issue tokens")
		return nil, serrors.ErrInvalidCredentials
	}

	metrics.LoginSuccessTotal.Inc()
	return &LoginResult{User: user, Tokens: pair}, nil
}

// Register creates a new identity. A username or email collision surfaces as
// ErrDuplicateRecord.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*domain.User, error) {
	if len(in.Username) < 5 || len(in.Password) < 8 {
		return nil, serrors.ErrInvalidCredentials
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	user := &domain.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	metrics.UsersRegisteredTotal.Inc()
	return user, nil
}

// Refresh delegates to the token authority's rotation.
func (s *AuthService) Refresh(ctx context.Context, accessToken, refreshToken string) (*TokenPair, error) {
	return s.tokens.Rotate(ctx, accessToken, refreshToken)
}

// Logout revokes sessions. With a token, that token must itself verify and
// only its session is revoked. Without one, every session for the user is
// revoked (logout-everywhere).
func (s *AuthService) Logout(ctx context.Context, userID, token string, typ domain.TokenType) error {
	if token == "" {
		return s.tokens.RevokeAll(ctx, userID)
	}

	claims, err := s.tokens.Verify(ctx, token, typ)
	if err != nil {
		return err
	}
	return s.tokens.Revoke(ctx, claims.ID)
}

// Profile returns the identity for an id.
func (s *AuthService) Profile(ctx context.Context, id string) (*domain.User, error) {
	return s.users.GetUserByID(ctx, id)
}

// VerifyMFA checks a challenge token and code, clears the identity's
// mfa_required flag, and completes the login with a fresh token pair.
func (s *AuthService) VerifyMFA(ctx context.Context, token, code string) (*LoginResult, error) {
	claims, err := s.mfa.VerifyChallenge(token, code)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetUserByID(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}

	if err := s.users.SetMFARequired(ctx, user.ID, false); err != nil {
		log.Warn().Err(err).Str("userID", user.ID).Msg("mfa: failed to clear mfa_required")
	}

	pair, err := s.tokens.Issue(ctx, user.ID, user.IsOfficer)
	if err != nil {
		return nil, err
	}

	metrics.LoginSuccessTotal.Inc()
	return &LoginResult{User: user, Tokens: pair}, nil
}

// ResendMFA issues a fresh challenge for an existing one, reusing its expiry.
func (s *AuthService) ResendMFA(ctx context.Context, token string) (string, error) {
	claims, err := s.mfa.ParseChallenge(token)
	if err != nil {
		return "", err
	}
	exp := claims.ExpiresAt.Time
	return s.mfa.IssueChallenge(ctx, claims.Subject, claims.Email, &exp)
}

// TouchLastSeen updates the identity's last-seen stamp, called by the authn
// middleware on every authenticated pass-through.
func (s *AuthService) TouchLastSeen(ctx context.Context, userID string) error {
	return s.users.TouchLastSeen(ctx, userID)
}
