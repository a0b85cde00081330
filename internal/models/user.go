package models

// User identifies an authenticated principal. Users are provisioned outside
// the core; the core receives them from the authenticator and never stores
// credential material.
type User struct {
	// Username is the unique, case-sensitive identity key.
	Username string `json:"username"`

	// Locales is the user's ordered locale preference list. May be empty.
	Locales []string `json:"locales,omitempty"`
}
