// Package auth — password hashing and credential-format validation.
//
// WHY BCRYPT?
// bcrypt is a password hashing function specifically designed to be slow.
// That slowness is a security feature: it makes brute-force attacks expensive.
//
// bcrypt automatically:
//   - Generates a random salt (two users with the same password get different hashes)
//   - Embeds the salt in the output hash (no separate salt column needed)
//   - Controls the work factor via "cost"
//
// NEVER store passwords in plain text or with fast hashes (MD5, SHA-256).
//
// Hash format (the full output of bcrypt.GenerateFromPassword):
//
//	$2a$10$<22-char salt><31-char hash>
//	 ^   ^
//	 |   cost (10 rounds → 2^10 iterations)
//	 version
package auth

import (
	"errors"
	"fmt"
	"net/mail"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// defaultCost is the bcrypt work factor used for new password hashes.
// Roughly ~60ms per hash on a modern server — negligible on login, brutal
// for an attacker trying billions of guesses.
const defaultCost = 10

// MinPasswordLength is the policy floor checked by ValidatePassword.
const MinPasswordLength = 8

// PasswordService provides bcrypt hashing and verification.
//
// It's a struct (not free functions) so the cost can be injected in tests —
// bcrypt cost 4 (the minimum) makes tests run much faster without changing
// the logic being tested.
type PasswordService struct {
	cost int
}

// NewPasswordService creates a PasswordService with the default cost (10).
func NewPasswordService() *PasswordService {
	return &PasswordService{cost: defaultCost}
}

// NewPasswordServiceForTest creates a PasswordService with a custom (low)
// cost. Do NOT use in production — cost 4 is far too weak.
func NewPasswordServiceForTest(cost int) *PasswordService {
	return &PasswordService{cost: cost}
}

// Hash hashes the given plaintext password with bcrypt.
//
// The output is self-contained (salt and cost included) — store it directly;
// bcrypt.CompareHashAndPassword knows how to decode it.
//
// Returns an error if the plaintext is too long (>72 bytes — a bcrypt limit;
// bcrypt silently truncates beyond that, so we reject explicitly).
func (p *PasswordService) Hash(plaintext string) (string, error) {
	if len(plaintext) > 72 {
		return "", fmt.Errorf("auth: password must be 72 bytes or fewer")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), p.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}

	return string(hashed), nil
}

// Verify checks whether a plaintext password matches a stored bcrypt hash.
// Returns nil if they match.
//
// TIMING SAFETY:
// bcrypt.CompareHashAndPassword uses a constant-time comparison internally,
// so an attacker can't tell from response time how close a guess was.
func (p *PasswordService) Verify(hash, plaintext string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return fmt.Errorf("auth: invalid password")
		}
		return fmt.Errorf("auth: comparing password hash: %w", err)
	}
	return nil
}

// ValidateEmail reports whether s is a structurally valid email address.
//
// net/mail implements the RFC 5322 grammar, which is far more reliable than
// a hand-rolled regex. We additionally reject addresses with a display name
// ("Bob <bob@x.com>" parses fine but is not a bare address).
func ValidateEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}

// PasswordCheck is the result of ValidatePassword. When the password is
// rejected, Message names the specific rule that was violated so the user
// knows what to fix.
type PasswordCheck struct {
	Valid   bool
	Message string
}

// ValidatePassword enforces the registration password policy:
// at least 8 characters, at least one letter, at least one digit.
//
// This runs BEFORE hashing — a policy-failing password must never reach
// bcrypt or the database.
func ValidatePassword(s string) PasswordCheck {
	if len(s) < MinPasswordLength {
		return PasswordCheck{Message: fmt.Sprintf("Password must be at least %d characters long", MinPasswordLength)}
	}

	var hasLetter, hasDigit bool
	for _, r := range s {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}

	if !hasLetter {
		return PasswordCheck{Message: "Password must contain at least one letter"}
	}
	if !hasDigit {
		return PasswordCheck{Message: "Password must contain at least one number"}
	}

	return PasswordCheck{Valid: true}
}
