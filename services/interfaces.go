package services

import "context"

// PasswordHasher abstracts one-way hashing for passwords and MFA codes.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	// Verify returns nil when plaintext matches the hash.
	Verify(hashed, plaintext string) error
}

// Mailer delivers outbound mail. Implementations live outside the core; the
// caller applies its own timeout via ctx.
type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}
