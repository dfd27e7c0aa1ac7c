package mongodb

import "go.mongodb.org/mongo-driver/bson/primitive"

const (
	UsersCollection         = "users"          // identities
	SessionTokensCollection = "session_tokens" // issued token records
	LoginAttemptsCollection = "login_attempts" // failed-login counters
)

// NewObjectID generates a new MongoDB ObjectID as a string.
func NewObjectID() string {
	return primitive.NewObjectID().Hex()
}
