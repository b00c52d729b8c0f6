// Package model defines the data structures used throughout the application.
package model

import "time"

// User represents a registered account.
//
// Accounts come from two places: email/password registration and Google
// OAuth. That split shapes two fields:
//
// WHY PasswordHash *string (not string)?
// An OAuth-only account never sets a password, so there is genuinely no hash.
// A nil pointer models "no password" honestly — an empty string would be
// indistinguishable from a corrupted hash. Login must check for nil and tell
// the user to sign in with Google instead of reporting a generic mismatch.
//
// WHY GoogleID *string?
// Same reasoning in reverse: a password-only account has no Google identity.
// The UNIQUE constraint on google_id in the DB ensures one Google account
// maps to exactly one app account.
//
// PasswordHash is json:"-" so it can never leak into an API response, no
// matter how carelessly a handler serializes the struct.
type User struct {
	ID           string     `json:"id"           db:"id"`
	Email        string     `json:"email"        db:"email"` // unique, stored lower-cased
	PasswordHash *string    `json:"-"            db:"password_hash"`
	GoogleID     *string    `json:"-"            db:"google_id"`
	FullName     string     `json:"fullName"     db:"full_name"`
	CreatedAt    time.Time  `json:"createdAt"    db:"created_at"`
	LastLoginAt  *time.Time `json:"lastLoginAt,omitempty" db:"last_login_at"`
}
