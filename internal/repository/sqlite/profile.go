package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/cardlink/internal/apperror"
	"github.com/sakif/cardlink/internal/model"
	"github.com/sakif/cardlink/internal/repository"
)

// compile-time check that *DB implements repository.ProfileRepository
var _ repository.ProfileRepository = (*DB)(nil)

// querier is the subset of database/sql methods shared by *sql.DB and
// *sql.Tx. The aggregate readers take it so the same code can re-read a
// profile inside the creating transaction or on the plain connection.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// ownershipHiddenMessage is used for both "no such profile" and "not your
// profile" — the API must not reveal which one it was.
const ownershipHiddenMessage = "Profile not found or unauthorized"

// Create inserts a profile and both child collections in one transaction,
// then re-reads the full aggregate (inside the same transaction, so the
// caller gets exactly what was committed, child IDs included).
//
// TRANSACTION PATTERN:
// BeginTx / defer Rollback / Commit. The deferred Rollback is a no-op after
// a successful Commit, but it guarantees the transaction never leaks when
// any step in between fails.
//
// The profiles.slug UNIQUE index is the backstop for the slug-probe race;
// a collision comes back as repository.ErrSlugTaken and the service retries
// with the next counter.
func (db *DB) Create(ctx context.Context, profile *model.Profile, experiences []model.WorkExperience, links []model.SocialLink) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning profile create: %w", err)
	}
	defer tx.Rollback()

	profile.ID = xid.New().String()
	now := time.Now()
	profile.CreatedAt = now
	profile.UpdatedAt = now

	_, err = tx.ExecContext(ctx,
		`INSERT INTO profiles
		 (id, user_id, slug, full_name, title, phone, address, email,
		  avatar_url, qr_code_url, profile_url, is_published, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		profile.ID,
		profile.UserID,
		profile.Slug,
		profile.FullName,
		profile.Title,
		profile.Phone,
		profile.Address,
		profile.Email,
		profile.AvatarURL,
		profile.QRCodeURL,
		profile.ProfileURL,
		profile.IsPublished,
		profile.CreatedAt,
		profile.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "profiles.slug") {
			return repository.ErrSlugTaken
		}
		return fmt.Errorf("sqlite: inserting profile: %w", err)
	}

	if err := insertExperiences(ctx, tx, profile.ID, experiences); err != nil {
		return err
	}
	if err := insertSocialLinks(ctx, tx, profile.ID, links); err != nil {
		return err
	}

	created, err := getAggregate(ctx, tx, `WHERE id = ?`, profile.ID)
	if err != nil {
		return err
	}
	*profile = *created

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing profile create: %w", err)
	}

	return nil
}

// GetOwned loads the full aggregate only if the profile belongs to userID.
// "Doesn't exist" and "isn't yours" are indistinguishable on purpose.
func (db *DB) GetOwned(ctx context.Context, id, userID string) (*model.Profile, error) {
	return getAggregate(ctx, db.conn, `WHERE id = ? AND user_id = ?`, id, userID)
}

// GetBySlug loads the public aggregate. Unpublished profiles are invisible —
// they 404 exactly like profiles that never existed.
func (db *DB) GetBySlug(ctx context.Context, slug string) (*model.Profile, error) {
	return getAggregate(ctx, db.conn, `WHERE slug = ? AND is_published = 1`, slug)
}

// GetPublished is the by-ID flavor of GetBySlug, used by view tracking.
func (db *DB) GetPublished(ctx context.Context, id string) (*model.Profile, error) {
	return getAggregate(ctx, db.conn, `WHERE id = ? AND is_published = 1`, id)
}

// getAggregate reads one profile row plus both child collections, ordered by
// display_order.
func getAggregate(ctx context.Context, q querier, where string, args ...any) (*model.Profile, error) {
	var p model.Profile

	err := q.QueryRowContext(ctx,
		`SELECT id, user_id, slug, full_name, title, phone, address, email,
		        avatar_url, qr_code_url, profile_url, is_published, created_at, updated_at
		 FROM profiles `+where,
		args...,
	).Scan(
		&p.ID, &p.UserID, &p.Slug, &p.FullName, &p.Title, &p.Phone,
		&p.Address, &p.Email, &p.AvatarURL, &p.QRCodeURL, &p.ProfileURL,
		&p.IsPublished, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFoundMessage(ownershipHiddenMessage)
		}
		return nil, fmt.Errorf("sqlite: getting profile: %w", err)
	}

	rows, err := q.QueryContext(ctx,
		`SELECT id, profile_id, company, position, start_date, end_date, description, display_order
		 FROM work_experiences WHERE profile_id = ? ORDER BY display_order ASC`,
		p.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing experiences for profile %s: %w", p.ID, err)
	}
	defer rows.Close()

	p.Experiences = []model.WorkExperience{}
	for rows.Next() {
		var e model.WorkExperience
		if err := rows.Scan(
			&e.ID, &e.ProfileID, &e.Company, &e.Position,
			&e.StartDate, &e.EndDate, &e.Description, &e.DisplayOrder,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scanning experience row: %w", err)
		}
		p.Experiences = append(p.Experiences, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating experiences: %w", err)
	}

	linkRows, err := q.QueryContext(ctx,
		`SELECT id, profile_id, platform, url, display_order
		 FROM social_links WHERE profile_id = ? ORDER BY display_order ASC`,
		p.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing social links for profile %s: %w", p.ID, err)
	}
	defer linkRows.Close()

	p.SocialLinks = []model.SocialLink{}
	for linkRows.Next() {
		var l model.SocialLink
		if err := linkRows.Scan(&l.ID, &l.ProfileID, &l.Platform, &l.URL, &l.DisplayOrder); err != nil {
			return nil, fmt.Errorf("sqlite: scanning social link row: %w", err)
		}
		p.SocialLinks = append(p.SocialLinks, l)
	}
	if err := linkRows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating social links: %w", err)
	}

	return &p, nil
}

// ListByUser returns the caller's profiles newest-first with child counts.
// The counts come from correlated subqueries instead of loading the children
// — the list view never renders them, only the numbers.
func (db *DB) ListByUser(ctx context.Context, userID string) ([]model.ProfileSummary, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT p.id, p.slug, p.full_name, p.title, p.avatar_url, p.qr_code_url,
		        p.profile_url, p.is_published,
		        (SELECT COUNT(*) FROM work_experiences e WHERE e.profile_id = p.id),
		        (SELECT COUNT(*) FROM social_links s WHERE s.profile_id = p.id),
		        p.created_at
		 FROM profiles p
		 WHERE p.user_id = ?
		 ORDER BY p.created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing profiles for user %s: %w", userID, err)
	}
	defer rows.Close()

	summaries := []model.ProfileSummary{}
	for rows.Next() {
		var s model.ProfileSummary
		if err := rows.Scan(
			&s.ID, &s.Slug, &s.FullName, &s.Title, &s.AvatarURL, &s.QRCodeURL,
			&s.ProfileURL, &s.IsPublished, &s.ExperienceCount, &s.SocialLinkCount,
			&s.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scanning profile summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating profile summaries: %w", err)
	}

	return summaries, nil
}

// Update writes the profile's own columns and applies the wholesale-replace
// policy per child collection, all in one transaction:
//
//   - nil slice      → collection untouched (the caller omitted the field)
//   - non-nil slice  → DELETE every existing row, INSERT the new ones
//     (an empty non-nil slice therefore deletes everything)
//
// Deliberately NOT a diff/merge: callers rely on "what I send is exactly
// what ends up stored, in that order". Two concurrent partial updates will
// not merge — the last writer's full array wins.
func (db *DB) Update(ctx context.Context, profile *model.Profile, experiences []model.WorkExperience, links []model.SocialLink) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning profile update: %w", err)
	}
	defer tx.Rollback()

	profile.UpdatedAt = time.Now()

	result, err := tx.ExecContext(ctx,
		`UPDATE profiles
		 SET full_name = ?, title = ?, phone = ?, address = ?, avatar_url = ?, updated_at = ?
		 WHERE id = ?`,
		profile.FullName,
		profile.Title,
		profile.Phone,
		profile.Address,
		profile.AvatarURL,
		profile.UpdatedAt,
		profile.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating profile %s: %w", profile.ID, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFoundMessage(ownershipHiddenMessage)
	}

	if experiences != nil {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM work_experiences WHERE profile_id = ?`, profile.ID,
		); err != nil {
			return fmt.Errorf("sqlite: clearing experiences for profile %s: %w", profile.ID, err)
		}
		if err := insertExperiences(ctx, tx, profile.ID, experiences); err != nil {
			return err
		}
	}

	if links != nil {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM social_links WHERE profile_id = ?`, profile.ID,
		); err != nil {
			return fmt.Errorf("sqlite: clearing social links for profile %s: %w", profile.ID, err)
		}
		if err := insertSocialLinks(ctx, tx, profile.ID, links); err != nil {
			return err
		}
	}

	updated, err := getAggregate(ctx, tx, `WHERE id = ?`, profile.ID)
	if err != nil {
		return err
	}
	*profile = *updated

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing profile update: %w", err)
	}

	return nil
}

// Delete removes the profile row. Experiences, social links, and views go
// with it via ON DELETE CASCADE — no application-level cleanup loops.
func (db *DB) Delete(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM profiles WHERE id = ?`, id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: deleting profile %s: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFoundMessage(ownershipHiddenMessage)
	}

	return nil
}

// SlugExists checks a candidate slug during the sequential probe.
func (db *DB) SlugExists(ctx context.Context, slug string) (bool, error) {
	var count int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM profiles WHERE slug = ?`, slug,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking slug %q: %w", slug, err)
	}
	return count > 0, nil
}

// SetQRCodeURL persists the QR and profile URL pair. Runs after the create
// transaction has committed (QR rendering is non-fatal, so it cannot be
// allowed to abort the aggregate write).
func (db *DB) SetQRCodeURL(ctx context.Context, id, qrCodeURL, profileURL string) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE profiles SET qr_code_url = ?, profile_url = ?, updated_at = ? WHERE id = ?`,
		qrCodeURL, profileURL, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: setting QR code URL for profile %s: %w", id, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("profile", id)
	}
	return nil
}

func insertExperiences(ctx context.Context, tx *sql.Tx, profileID string, experiences []model.WorkExperience) error {
	for i := range experiences {
		e := &experiences[i]
		e.ID = xid.New().String()
		e.ProfileID = profileID
		e.DisplayOrder = i // render order = array order

		_, err := tx.ExecContext(ctx,
			`INSERT INTO work_experiences
			 (id, profile_id, company, position, start_date, end_date, description, display_order)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, e.ProfileID, e.Company, e.Position,
			e.StartDate, e.EndDate, e.Description, e.DisplayOrder,
		)
		if err != nil {
			return fmt.Errorf("sqlite: inserting experience %d: %w", i, err)
		}
	}
	return nil
}

func insertSocialLinks(ctx context.Context, tx *sql.Tx, profileID string, links []model.SocialLink) error {
	for i := range links {
		l := &links[i]
		l.ID = xid.New().String()
		l.ProfileID = profileID
		l.DisplayOrder = i

		_, err := tx.ExecContext(ctx,
			`INSERT INTO social_links (id, profile_id, platform, url, display_order)
			 VALUES (?, ?, ?, ?, ?)`,
			l.ID, l.ProfileID, l.Platform, l.URL, l.DisplayOrder,
		)
		if err != nil {
			return fmt.Errorf("sqlite: inserting social link %d: %w", i, err)
		}
	}
	return nil
}
