package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/cardlink/internal/apperror"
	"github.com/sakif/cardlink/internal/model"
	"github.com/sakif/cardlink/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

// CreateUser inserts a new user.
//
// Emails are stored lower-cased AND the column is COLLATE NOCASE, so we get
// case-insensitive uniqueness twice over — the application normalizes, the
// database enforces. A duplicate surfaces as repository.ErrEmailTaken so the
// service can map it to 409 without knowing any SQL.
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	user.ID = xid.New().String()
	user.CreatedAt = time.Now()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, google_id, full_name, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Email,
		user.PasswordHash,
		user.GoogleID,
		user.FullName,
		user.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "users.email") {
			return repository.ErrEmailTaken
		}
		return fmt.Errorf("sqlite: inserting user: %w", err)
	}

	return nil
}

// GetUserByID retrieves a user by their internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return db.getUser(ctx, `WHERE id = ?`, id)
}

// GetUserByEmail retrieves a user by email. The COLLATE NOCASE column makes the
// comparison case-insensitive regardless of how the caller cased the input.
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return db.getUser(ctx, `WHERE email = ?`, email)
}

func (db *DB) getUser(ctx context.Context, where string, arg any) (*model.User, error) {
	var u model.User

	err := db.conn.QueryRowContext(ctx,
		`SELECT id, email, password_hash, google_id, full_name, created_at, last_login_at
		 FROM users `+where,
		arg,
	).Scan(
		&u.ID,
		&u.Email,
		&u.PasswordHash,
		&u.GoogleID,
		&u.FullName,
		&u.CreatedAt,
		&u.LastLoginAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", fmt.Sprint(arg))
		}
		return nil, fmt.Errorf("sqlite: getting user: %w", err)
	}

	return &u, nil
}

// UpdateLastLogin stamps the most recent successful login.
func (db *DB) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE users SET last_login_at = ? WHERE id = ?`, at, id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating last login for user %s: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("user", id)
	}

	return nil
}

// UpsertGoogle creates or updates the account behind a Google identity.
//
// Match order:
//  1. By google_id — a returning OAuth user; refresh the name.
//  2. By email — an existing password account logging in with Google for
//     the first time; LINK the google_id to it rather than creating a
//     duplicate account for the same email.
//  3. Neither — a brand-new OAuth-only account (no password hash).
//
// After the call, user carries the canonical record (ID, timestamps, and
// any password hash the linked account already had).
func (db *DB) UpsertGoogle(ctx context.Context, user *model.User) error {
	if user.GoogleID == nil || *user.GoogleID == "" {
		return fmt.Errorf("sqlite: upserting google user: google ID is required")
	}

	existing, err := db.getUser(ctx, `WHERE google_id = ?`, *user.GoogleID)
	if err == nil {
		_, err = db.conn.ExecContext(ctx,
			`UPDATE users SET full_name = ? WHERE id = ?`,
			user.FullName, existing.ID,
		)
		if err != nil {
			return fmt.Errorf("sqlite: updating google user %s: %w", existing.ID, err)
		}
		existing.FullName = user.FullName
		*user = *existing
		return nil
	}
	if !isNotFound(err) {
		return err
	}

	byEmail, err := db.getUser(ctx, `WHERE email = ?`, user.Email)
	if err == nil {
		_, err = db.conn.ExecContext(ctx,
			`UPDATE users SET google_id = ? WHERE id = ?`,
			user.GoogleID, byEmail.ID,
		)
		if err != nil {
			return fmt.Errorf("sqlite: linking google ID to user %s: %w", byEmail.ID, err)
		}
		byEmail.GoogleID = user.GoogleID
		*user = *byEmail
		return nil
	}
	if !isNotFound(err) {
		return err
	}

	return db.CreateUser(ctx, user)
}

func isNotFound(err error) bool {
	return errors.Is(err, apperror.ErrNotFound)
}
