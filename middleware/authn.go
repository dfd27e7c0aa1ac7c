package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/guardian-dev/guardian/domain"
	serrors "github.com/guardian-dev/guardian/errors"
	"github.com/guardian-dev/guardian/services"
)

// Context keys under which the authenticated identity is stored.
const (
	ContextKeyUserID    = "user_id"
	ContextKeyIsOfficer = "is_officer"
)

// Cookie and header names for token transport. Cookies take precedence over
// headers when both are present.
const (
	AccessTokenCookie  = "accessToken"
	RefreshTokenCookie = "refreshToken"
	RefreshTokenHeader = "Refresh-Token"
)

// AccessTokenFromRequest extracts the access token, preferring the cookie
// over the Authorization header.
func AccessTokenFromRequest(c echo.Context) string {
	if cookie, err := c.Cookie(AccessTokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
	if parts := strings.SplitN(authHeader, " ", 2); len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return parts[1]
	}
	return ""
}

// RefreshTokenFromRequest extracts the refresh token, preferring the cookie
// over the Refresh-Token header.
func RefreshTokenFromRequest(c echo.Context) string {
	if cookie, err := c.Cookie(RefreshTokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return c.Request().Header.Get(RefreshTokenHeader)
}

// Authn verifies the request's access token and stores the identity in the
// echo context. Requests without a verifiable live session get a 401.
func Authn(tokens *services.TokenService, users domain.UserRepository) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tokenValue := AccessTokenFromRequest(c)
			if tokenValue == "" {
				return c.JSON(http.StatusUnauthorized, serrors.NewErrorResponse(serrors.ErrInvalidToken))
			}

			claims, err := tokens.Verify(c.Request().Context(), tokenValue, domain.TokenTypeAccess)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, serrors.NewErrorResponse(err))
			}

			c.Set(ContextKeyUserID, claims.Subject)
			c.Set(ContextKeyIsOfficer, claims.IsOfficer)

			if err := users.TouchLastSeen(c.Request().Context(), claims.Subject); err != nil {
				log.Warn().Err(err).Str("userID", claims.Subject).Msg("failed to touch last_seen_at")
			}

			return next(c)
		}
	}
}
