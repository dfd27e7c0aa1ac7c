package echo

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/guardian-dev/guardian/domain"
	serrors "github.com/guardian-dev/guardian/errors"
	"github.com/guardian-dev/guardian/middleware"
	"github.com/guardian-dev/guardian/services"
)

// AuthAPIConfig holds the handler-level settings.
type AuthAPIConfig struct {
	// AccessTTL and RefreshTTL size the token cookies' max age.
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// SecureCookies marks the token cookies Secure. Off only for local setups
	// without TLS.
	SecureCookies bool
}

// AuthAPI holds the authentication endpoints' dependencies.
type AuthAPI struct {
	auth   *services.AuthService
	tokens *services.TokenService
	users  domain.UserRepository
	cfg    AuthAPIConfig
}

// NewAuthAPI initializes the authentication API.
func NewAuthAPI(auth *services.AuthService, tokens *services.TokenService, users domain.UserRepository, cfg AuthAPIConfig) *AuthAPI {
	return &AuthAPI{auth: auth, tokens: tokens, users: users, cfg: cfg}
}

// RegisterRoutes registers the authentication routes. Public routes carry the
// coarse per-source limit; routes behind Authn additionally carry the tight
// per-identity limit, applied after authentication so the key is the verified
// user id and not a client-supplied value.
func (a *AuthAPI) RegisterRoutes(e *echo.Echo, ipLimit, userLimit *middleware.RateLimitStore) {
	public := e.Group("/auth", middleware.RateLimit(ipLimit, middleware.KeyByIP))
	public.POST("/register", a.RegisterHandler)
	public.POST("/login", a.LoginHandler)
	public.POST("/refresh", a.RefreshHandler)
	public.POST("/mfa/verify", a.MFAVerifyHandler)
	public.POST("/mfa/resend", a.MFAResendHandler)

	protected := e.Group("/auth",
		middleware.RateLimit(ipLimit, middleware.KeyByIP),
		middleware.Authn(a.tokens, a.users),
		middleware.RateLimit(userLimit, middleware.KeyByUser),
	)
	protected.POST("/logout", a.LogoutHandler)
	protected.POST("/logout/all", a.LogoutAllHandler)
	protected.GET("/profile", a.ProfileHandler)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type mfaVerifyRequest struct {
	MFAToken string `json:"mfaToken"`
	Code     string `json:"code"`
}

type mfaResendRequest struct {
	MFAToken string `json:"mfaToken"`
}

type loginResponse struct {
	User        *domain.User        `json:"user,omitempty"`
	Tokens      *services.TokenPair `json:"tokens,omitempty"`
	MFARequired bool                `json:"mfaRequired,omitempty"`
	MFAToken    string              `json:"mfaToken,omitempty"`
}

// RegisterHandler creates a new identity. A username or email already in use
// yields 409.
func (a *AuthAPI) RegisterHandler(c echo.Context) error {
	var req services.RegisterInput
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, serrors.NewErrorResponse(serrors.ErrInvalidCredentials))
	}

	user, err := a.auth.Register(c.Request().Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, serrors.ErrDuplicateRecord):
			return c.JSON(http.StatusConflict, serrors.NewErrorResponse(err))
		case errors.Is(err, serrors.ErrInvalidCredentials):
			return c.JSON(http.StatusBadRequest, serrors.NewErrorResponse(err))
		default:
			log.Error().Err(err).Msg("registration failed")
			return c.JSON(http.StatusInternalServerError, serrors.NewErrorResponse(errors.New("registration failed")))
		}
	}

	return c.JSON(http.StatusCreated, loginResponse{User: user})
}

// LoginHandler verifies credentials. On success it sets the token cookies and
// returns the pair; when a second factor is required it returns the challenge
// token instead. All credential failures share one 400 response.
func (a *AuthAPI) LoginHandler(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, serrors.NewErrorResponse(serrors.ErrInvalidCredentials))
	}

	result, err := a.auth.Login(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		// A too-quick challenge resend keeps its own message; every credential
		// failure collapses into the uniform one. The 429 status is reserved
		// for the request rate limiter.
		if errors.Is(err, serrors.ErrTooManyRequests) {
			return c.JSON(http.StatusBadRequest, serrors.NewErrorResponse(err))
		}
		return c.JSON(http.StatusBadRequest, serrors.NewErrorResponse(serrors.ErrInvalidCredentials))
	}

	if result.MFARequired() {
		return c.JSON(http.StatusOK, loginResponse{MFARequired: true, MFAToken: result.MFAToken})
	}

	a.setTokenCookies(c, result.Tokens)
	return c.JSON(http.StatusOK, loginResponse{User: result.User, Tokens: result.Tokens})
}

// RefreshHandler rotates the session pair. Tokens come from cookies or, when
// absent, from the Authorization and Refresh-Token headers.
func (a *AuthAPI) RefreshHandler(c echo.Context) error {
	accessToken := middleware.AccessTokenFromRequest(c)
	refreshToken := middleware.RefreshTokenFromRequest(c)

	pair, err := a.auth.Refresh(c.Request().Context(), accessToken, refreshToken)
	if err != nil {
		switch {
		case errors.Is(err, serrors.ErrRefreshNotEligible):
			return c.JSON(http.StatusBadRequest, serrors.NewErrorResponse(err))
		case errors.Is(err, serrors.ErrInvalidToken), errors.Is(err, serrors.ErrRevokedSession):
			return c.JSON(http.StatusUnauthorized, serrors.NewErrorResponse(err))
		default:
			log.Error().Err(err).Msg("token rotation failed")
			return c.JSON(http.StatusInternalServerError, serrors.NewErrorResponse(errors.New("token rotation failed")))
		}
	}

	a.setTokenCookies(c, pair)
	return c.JSON(http.StatusOK, loginResponse{Tokens: pair})
}

// LogoutHandler revokes the current session and clears the token cookies.
func (a *AuthAPI) LogoutHandler(c echo.Context) error {
	userID, _ := c.Get(middleware.ContextKeyUserID).(string)
	token := middleware.AccessTokenFromRequest(c)

	if err := a.auth.Logout(c.Request().Context(), userID, token, domain.TokenTypeAccess); err != nil {
		log.Warn().Err(err).Str("userID", userID).Msg("logout failed")
	}

	a.clearTokenCookies(c)
	return c.NoContent(http.StatusNoContent)
}

// LogoutAllHandler revokes every session of the authenticated user.
func (a *AuthAPI) LogoutAllHandler(c echo.Context) error {
	userID, _ := c.Get(middleware.ContextKeyUserID).(string)

	if err := a.auth.Logout(c.Request().Context(), userID, "", domain.TokenTypeAccess); err != nil {
		log.Warn().Err(err).Str("userID", userID).Msg("logout-all failed")
	}

	a.clearTokenCookies(c)
	return c.NoContent(http.StatusNoContent)
}

// ProfileHandler returns the authenticated identity.
func (a *AuthAPI) ProfileHandler(c echo.Context) error {
	userID, _ := c.Get(middleware.ContextKeyUserID).(string)

	user, err := a.auth.Profile(c.Request().Context(), userID)
	if err != nil {
		if errors.Is(err, serrors.ErrNotFound) {
			return c.JSON(http.StatusNotFound, serrors.NewErrorResponse(err))
		}
		log.Error().Err(err).Str("userID", userID).Msg("profile lookup failed")
		return c.JSON(http.StatusInternalServerError, serrors.NewErrorResponse(errors.New("profile lookup failed")))
	}

	return c.JSON(http.StatusOK, user)
}

// MFAVerifyHandler checks a challenge token and code, completing the login
// with a fresh token pair on success.
func (a *AuthAPI) MFAVerifyHandler(c echo.Context) error {
	var req mfaVerifyRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, serrors.NewErrorResponse(serrors.ErrInvalidCode))
	}

	result, err := a.auth.VerifyMFA(c.Request().Context(), req.MFAToken, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, serrors.ErrInvalidCode):
			return c.JSON(http.StatusBadRequest, serrors.NewErrorResponse(err))
		case errors.Is(err, serrors.ErrInvalidToken):
			return c.JSON(http.StatusUnauthorized, serrors.NewErrorResponse(err))
		default:
			log.Error().Err(err).Msg("mfa verification failed")
			return c.JSON(http.StatusInternalServerError, serrors.NewErrorResponse(errors.New("mfa verification failed")))
		}
	}

	a.setTokenCookies(c, result.Tokens)
	return c.JSON(http.StatusOK, loginResponse{User: result.User, Tokens: result.Tokens})
}

// MFAResendHandler mails a fresh code for an existing challenge. The new
// challenge token keeps the original expiry.
func (a *AuthAPI) MFAResendHandler(c echo.Context) error {
	var req mfaResendRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, serrors.NewErrorResponse(serrors.ErrInvalidToken))
	}

	token, err := a.auth.ResendMFA(c.Request().Context(), req.MFAToken)
	if err != nil {
		switch {
		case errors.Is(err, serrors.ErrTooManyRequests):
			return c.JSON(http.StatusBadRequest, serrors.NewErrorResponse(err))
		case errors.Is(err, serrors.ErrInvalidToken):
			return c.JSON(http.StatusUnauthorized, serrors.NewErrorResponse(err))
		default:
			log.Error().Err(err).Msg("mfa resend failed")
			return c.JSON(http.StatusInternalServerError, serrors.NewErrorResponse(errors.New("mfa resend failed")))
		}
	}

	return c.JSON(http.StatusOK, loginResponse{MFARequired: true, MFAToken: token})
}

func (a *AuthAPI) setTokenCookies(c echo.Context, pair *services.TokenPair) {
	c.SetCookie(a.tokenCookie(middleware.AccessTokenCookie, pair.AccessToken, a.cfg.AccessTTL))
	c.SetCookie(a.tokenCookie(middleware.RefreshTokenCookie, pair.RefreshToken, a.cfg.RefreshTTL))
}

func (a *AuthAPI) clearTokenCookies(c echo.Context) {
	c.SetCookie(a.tokenCookie(middleware.AccessTokenCookie, "", -time.Second))
	c.SetCookie(a.tokenCookie(middleware.RefreshTokenCookie, "", -time.Second))
}

func (a *AuthAPI) tokenCookie(name, value string, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   a.cfg.SecureCookies,
		SameSite: http.SameSiteStrictMode,
	}
}
