package domain

import "time"

// User represents an identity known to the service.
type User struct {
	ID           string    `bson:"_id,omitempty" json:"id"`
	Username     string    `bson:"username" json:"username"`
	Email        string    `bson:"email,omitempty" json:"email,omitempty"`
	PasswordHash string    `bson:"password_hash" json:"-"`
	FirstName    string    `bson:"first_name,omitempty" json:"first_name,omitempty"`
	LastName     string    `bson:"last_name,omitempty" json:"last_name,omitempty"`
	IsOfficer    bool      `bson:"is_officer" json:"is_officer"`
	MFARequired  bool      `bson:"mfa_required" json:"-"`
	LastSeenAt   time.Time `bson:"last_seen_at" json:"last_seen_at"`
	CreatedAt    time.Time `bson:"created_at" json:"created_at"`
}
