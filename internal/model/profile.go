package model

import "time"

// Profile is a public business-card page owned by a user. One user can own
// many profiles (e.g. a personal card and a company card).
//
// Slug is the URL-safe unique identifier derived from FullName — it is what
// appears in the public URL and what the QR code points at. ProfileURL and
// QRCodeURL are denormalized so the frontend never has to rebuild them.
type Profile struct {
	ID          string    `json:"id"          db:"id"`
	UserID      string    `json:"userId"      db:"user_id"`
	Slug        string    `json:"slug"        db:"slug"`
	FullName    string    `json:"fullName"    db:"full_name"`
	Title       string    `json:"title"       db:"title"`
	Phone       string    `json:"phone"       db:"phone"`
	Address     string    `json:"address"     db:"address"`
	Email       string    `json:"email"       db:"email"`
	AvatarURL   string    `json:"avatarUrl"   db:"avatar_url"`
	QRCodeURL   string    `json:"qrCodeUrl"   db:"qr_code_url"`
	ProfileURL  string    `json:"profileUrl"  db:"profile_url"`
	IsPublished bool      `json:"isPublished" db:"is_published"`
	CreatedAt   time.Time `json:"createdAt"   db:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt"   db:"updated_at"`

	// Child collections, ordered by DisplayOrder. Loaded by the aggregate
	// queries; nil when the profile was fetched without its children.
	Experiences []WorkExperience `json:"experiences,omitempty"`
	SocialLinks []SocialLink     `json:"socialLinks,omitempty"`
}

// WorkExperience is one entry of a profile's work history.
//
// WHY EndDate *time.Time?
// A nil end date means "current position". The renderer shows "Present"
// instead of a date, and nil round-trips cleanly as SQL NULL.
//
// DisplayOrder defines the render sequence, not insertion order. The whole
// collection is replaced wholesale on update (delete-all + recreate with
// DisplayOrder = array index), so the order the client sends is the order
// that renders.
type WorkExperience struct {
	ID           string     `json:"id"           db:"id"`
	ProfileID    string     `json:"profileId"    db:"profile_id"`
	Company      string     `json:"company"      db:"company"`
	Position     string     `json:"position"     db:"position"`
	StartDate    time.Time  `json:"startDate"    db:"start_date"`
	EndDate      *time.Time `json:"endDate"      db:"end_date"` // nil = current
	Description  string     `json:"description"  db:"description"`
	DisplayOrder int        `json:"displayOrder" db:"display_order"`
}

// SocialLink is a link to an external platform (LINKEDIN, GITHUB, ...).
// Platform is normalized to upper case on write. Same wholesale-replace
// lifecycle as WorkExperience.
type SocialLink struct {
	ID           string `json:"id"           db:"id"`
	ProfileID    string `json:"profileId"    db:"profile_id"`
	Platform     string `json:"platform"     db:"platform"`
	URL          string `json:"url"          db:"url"`
	DisplayOrder int    `json:"displayOrder" db:"display_order"`
}

// ProfileSummary is the list-view shape returned by "my profiles": the
// profile's own columns plus child counts, without loading the children.
type ProfileSummary struct {
	ID              string    `json:"id"`
	Slug            string    `json:"slug"`
	FullName        string    `json:"fullName"`
	Title           string    `json:"title"`
	AvatarURL       string    `json:"avatarUrl"`
	QRCodeURL       string    `json:"qrCodeUrl"`
	ProfileURL      string    `json:"profileUrl"`
	IsPublished     bool      `json:"isPublished"`
	ExperienceCount int       `json:"experienceCount"`
	SocialLinkCount int       `json:"socialLinkCount"`
	CreatedAt       time.Time `json:"createdAt"`
}
