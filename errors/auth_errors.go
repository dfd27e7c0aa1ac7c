package errors

import "errors"

// Sentinel errors for the authentication core. Handlers map these onto HTTP
// statuses; repositories translate driver errors into them so nothing above
// the persistence layer sees a raw database error.
var (
	// ErrInvalidCredentials is the uniform login failure. It deliberately does
	// not distinguish an unknown user, a wrong password or a blocked account.
	ErrInvalidCredentials = errors.New("bad login request")

	// ErrInvalidToken means the token itself failed signature or expiry checks.
	ErrInvalidToken = errors.New("invalid token")

	// ErrRevokedSession means the token verified but its session record is
	// gone: the client has to log in again.
	ErrRevokedSession = errors.New("session revoked")

	// ErrRefreshNotEligible is returned when rotation is refused because the
	// presented access token still has too much life left.
	ErrRefreshNotEligible = errors.New("not yet eligible for refresh")

	// ErrTooManyRequests covers MFA resends inside the minimum interval.
	ErrTooManyRequests = errors.New("requesting codes too quickly")

	// ErrRateLimited is returned by the request rate limiter.
	ErrRateLimited = errors.New("rate limited")

	// ErrInvalidCode means the presented MFA code does not match the challenge.
	ErrInvalidCode = errors.New("invalid 2fa code")

	// ErrIssuance means a token pair was requested without a user id.
	ErrIssuance = errors.New("cannot issue tokens without a user")

	// ErrDuplicateRecord surfaces a unique-constraint violation from the store.
	ErrDuplicateRecord = errors.New("record already exists")

	// ErrNotFound is the store's generic miss.
	ErrNotFound = errors.New("record not found")
)

// ErrorResponse is the JSON error body returned by the API.
type ErrorResponse struct {
	Error string `json:"error"`
}

// NewErrorResponse builds an ErrorResponse from any error.
func NewErrorResponse(err error) ErrorResponse {
	return ErrorResponse{Error: err.Error()}
}
