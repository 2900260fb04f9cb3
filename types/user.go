package types

import "time"

// User represents an account in the system.
// Secrets and session state are persisted but never serialized to clients.
type User struct {
	// ID is the unique identifier of the user.
	ID string `json:"id" bson:"_id"`

	// Name is the user's display name.
	Name string `json:"name" bson:"name"`

	// Email is the user's lowercased, unique email address.
	Email string `json:"email" bson:"email"`

	// Age is optional and defaults to 0.
	Age int `json:"age" bson:"age"`

	// PasswordHash stores the bcrypt hash of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" bson:"password"`

	// Tokens holds every session token currently active for this user,
	// in issue order.
	Tokens []string `json:"-" bson:"tokens"`

	// Avatar is the 250x250 PNG produced by the avatar pipeline.
	Avatar []byte `json:"-" bson:"avatar,omitempty"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"created_at" bson:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// HasToken reports whether token is in the user's active set.
func (u User) HasToken(token string) bool {
	for _, t := range u.Tokens {
		if t == token {
			return true
		}
	}
	return false
}
