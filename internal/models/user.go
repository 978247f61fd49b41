package models

import (
	"time"
)

// Profile is the caller's account as served by user/me/
type Profile struct {
	ID         int       `json:"id"`
	Username   string    `json:"username"`
	Email      string    `json:"email"`
	DateJoined time.Time `json:"date_joined"`
}

// Identity is what the client displays for the logged-in user
type Identity struct {
	Username string
	Email    string
}

// Credentials is the body of token/
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Registration is the body of register/
type Registration struct {
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Password string `json:"password"`
}

// ProfileUpdate is the body of PATCH user/me/
type ProfileUpdate struct {
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
}

// TokenPair is returned by token/, token/refresh/ and auth/{provider}/.
// Refresh is empty on token/refresh/ unless the server rotates refresh tokens.
type TokenPair struct {
	Access   string `json:"access"`
	Refresh  string `json:"refresh,omitempty"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
}
