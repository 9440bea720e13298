package models

import (
	"strings"
	"time"
)

// User is an account in the backend's users table. Email or Phone identifies it.
type User struct {
	ID           string    `bson:"_id"             json:"id"`
	Email        string    `bson:"email,omitempty" json:"email,omitempty"`
	Phone        string    `bson:"phone,omitempty" json:"phone,omitempty"`
	PasswordHash string    `bson:"passwordHash"    json:"-"`
	CreatedAt    time.Time `bson:"createdAt"       json:"createdAt"`
}

// AuthState mirrors the external auth session.
type AuthState struct {
	LoggedIn  bool   `json:"loggedIn"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Onboarded bool   `json:"onboarded"`
	Ready     bool   `json:"ready"`
}

// NormalizeEmail lower-cases and trims an address.
func NormalizeEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// NormalizePhone strips spaces and dashes.
func NormalizePhone(s string) string {
	return strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(strings.TrimSpace(s))
}

// ValidationError is a form-level failure surfaced as a 400 with the field name.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Field + ": " + e.Message }
