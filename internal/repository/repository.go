// Package repository defines the storage interfaces consumed by the service
// layer. The sqlite subpackage implements them; tests use in-memory fakes.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/sakif/cardlink/internal/model"
)

// ErrSlugTaken is returned by ProfileRepository.Create when the profile's
// slug collides with an existing one at INSERT time.
//
// The slug-free check and the insert are not one serializable unit: two
// concurrent creations with the same base name can both pass the check and
// race on the insert. The storage UNIQUE constraint is the final backstop,
// and the service treats this error as "probe the next counter", not as a
// hard failure.
var ErrSlugTaken = errors.New("slug already taken")

// ErrEmailTaken is returned by UserRepository.CreateUser when the email (compared
// case-insensitively) is already registered.
var ErrEmailTaken = errors.New("email already registered")

type UserRepository interface {
	// CreateUser inserts a new user. Returns ErrEmailTaken on a duplicate
	// email.
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	// GetUserByEmail matches case-insensitively and returns
	// apperror.ErrNotFound when no account exists.
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
	// UpsertGoogle creates or updates the account for a Google identity:
	// match by google_id first, then link by email (an existing password
	// account gains a google_id), else insert a fresh OAuth-only account.
	UpsertGoogle(ctx context.Context, user *model.User) error
}

type ProfileRepository interface {
	// Create inserts the profile row and both child collections in ONE
	// transaction, then re-reads the full aggregate into profile.
	// Returns ErrSlugTaken if the slug lost the race to another insert.
	Create(ctx context.Context, profile *model.Profile, experiences []model.WorkExperience, links []model.SocialLink) error

	// GetOwned loads the full aggregate only when the profile exists AND
	// belongs to userID; otherwise apperror.ErrNotFound (deliberately the
	// same error for both cases — no existence leak).
	GetOwned(ctx context.Context, id, userID string) (*model.Profile, error)

	// GetBySlug loads the public aggregate; unpublished profiles are
	// invisible here (apperror.ErrNotFound).
	GetBySlug(ctx context.Context, slug string) (*model.Profile, error)

	// GetPublished loads the public aggregate by ID, for the anonymous
	// view-tracking path. Same visibility rule as GetBySlug.
	GetPublished(ctx context.Context, id string) (*model.Profile, error)

	// ListByUser returns the caller's profiles newest-first with child counts.
	ListByUser(ctx context.Context, userID string) ([]model.ProfileSummary, error)

	// Update writes the profile's own columns and, per child collection,
	// applies the wholesale-replace policy: a nil slice leaves the existing
	// collection untouched, a non-nil slice (even empty) deletes the whole
	// collection and reinserts it. All within one transaction.
	Update(ctx context.Context, profile *model.Profile, experiences []model.WorkExperience, links []model.SocialLink) error

	// Delete removes the profile; children and views cascade at the
	// storage level.
	Delete(ctx context.Context, id string) error

	SlugExists(ctx context.Context, slug string) (bool, error)

	// SetQRCodeURL persists the QR/profile URL pair after the (post-commit)
	// QR render.
	SetQRCodeURL(ctx context.Context, id, qrCodeURL, profileURL string) error
}

type ViewRepository interface {
	// CreateView appends one visit event. Views are never updated or
	// deleted individually.
	CreateView(ctx context.Context, view *model.ProfileView) error
	// ListViewsByProfile returns all views newest-first.
	ListViewsByProfile(ctx context.Context, profileID string) ([]model.ProfileView, error)
}
