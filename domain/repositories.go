package domain

import "context"

// UserRepository persists identities.
type UserRepository interface {
	CreateUser(ctx context.Context, user *User) error
	GetUserByID(ctx context.Context, id string) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	SetMFARequired(ctx context.Context, id string, required bool) error
	TouchLastSeen(ctx context.Context, id string) error
}

// TokenRepository persists issued session token records.
type TokenRepository interface {
	StoreToken(ctx context.Context, token *SessionToken) error
	GetBySession(ctx context.Context, sessionID string, typ TokenType) (*SessionToken, error)
	DeleteBySession(ctx context.Context, sessionID string) (int64, error)
	DeleteByUser(ctx context.Context, userID string) (int64, error)
	ListSessionIDsByUser(ctx context.Context, userID string) ([]string, error)
}

// LoginAttemptRepository persists failed-login counters.
type LoginAttemptRepository interface {
	GetByUser(ctx context.Context, userID string) (*LoginAttempt, error)
	Upsert(ctx context.Context, attempt *LoginAttempt) error
}
