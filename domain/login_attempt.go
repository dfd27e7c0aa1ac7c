package domain

import "time"

// LoginAttempt tracks consecutive failed logins for one user. Created lazily
// on the first failure, reset on success or once the lockout window elapses.
type LoginAttempt struct {
	ID            string    `bson:"_id,omitempty"`
	UserID        string    `bson:"user_id"`
	Attempts      int       `bson:"attempts"`
	LastAttemptAt time.Time `bson:"last_attempt_at"`
}
