package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/cardlink/internal/apperror"
	"github.com/sakif/cardlink/internal/model"
	"github.com/sakif/cardlink/internal/qrcode"
	"github.com/sakif/cardlink/internal/repository"
)

// slugMaxAttempts bounds the sequential probe. Hitting it means thousands of
// profiles share one name — at that point failing loudly beats spinning.
const slugMaxAttempts = 1000

// ProfileService owns the profile lifecycle: slug generation, the
// transactional create, wholesale child replacement, QR images, ownership
// checks.
type ProfileService struct {
	profiles    repository.ProfileRepository
	qr          *qrcode.Generator
	frontendURL string
	logger      *slog.Logger
}

func NewProfileService(
	profiles repository.ProfileRepository,
	qr *qrcode.Generator,
	frontendURL string,
	logger *slog.Logger,
) *ProfileService {
	return &ProfileService{
		profiles:    profiles,
		qr:          qr,
		frontendURL: strings.TrimRight(frontendURL, "/"),
		logger:      logger,
	}
}

// ProfileInput is the payload for Create and Update.
//
// WHY ALL THE NIL SEMANTICS?
// encoding/json already distinguishes "field absent" (nil) from "field
// present" — for slices AND for pointer scalars. Update forwards that
// distinction untouched: a nil collection leaves the stored one alone,
// non-nil (even empty) replaces it wholesale; a nil Title/Phone/Address
// leaves the stored value alone, a present value (even "") overwrites it.
// A partial update that only sends socialLinks must not blank out the
// rest of the card.
type ProfileInput struct {
	FullName    string                 `json:"fullName"`
	Title       *string                `json:"title"`
	Phone       *string                `json:"phone"`
	Address     *string                `json:"address"`
	Email       string                 `json:"email"`
	AvatarURL   string                 `json:"avatarUrl"`
	IsPublished *bool                  `json:"isPublished"`
	Experiences []model.WorkExperience `json:"experiences"`
	SocialLinks []model.SocialLink     `json:"socialLinks"`
}

// trimOpt dereferences an optional scalar field; absent means empty.
func trimOpt(p *string) string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(*p)
}

// GenerateSlug turns a display name into its URL-safe base slug: lower-case,
// every run of non-alphanumeric characters collapsed to a single hyphen,
// leading/trailing hyphens trimmed.
//
//	"John Doe"        → "john-doe"
//	"  Anna-Marie! "  → "anna-marie"
//	"李 明"            → "" (no ASCII alphanumerics survive)
func GenerateSlug(name string) string {
	var b strings.Builder
	lastHyphen := true // suppress a leading hyphen
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// generateUniqueSlug probes base, base-1, base-2, ... until a free slug is
// found. The probe is advisory only — the UNIQUE index is the real arbiter,
// and Create retries on ErrSlugTaken when the probe loses the race.
func (s *ProfileService) generateUniqueSlug(ctx context.Context, base string) (string, error) {
	if base == "" {
		base = "profile"
	}
	candidate := base
	for i := 1; i <= slugMaxAttempts; i++ {
		exists, err := s.profiles.SlugExists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("service/profile: probing slug %q: %w", candidate, err)
		}
		if !exists {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
	return "", fmt.Errorf("service/profile: no free slug for %q after %d attempts", base, slugMaxAttempts)
}

// Create builds a new profile for userID: derive a unique slug, write the
// aggregate in one transaction, then render the QR code.
//
// QR GENERATION IS NON-FATAL:
// The image render runs after the transaction commits. If it fails, the
// profile is still created and returned — a card without a QR image is
// useful, a rolled-back card is not. RegenerateQRCode exists to fill the gap.
func (s *ProfileService) Create(ctx context.Context, userID string, in ProfileInput) (*model.Profile, error) {
	fullName := strings.TrimSpace(in.FullName)
	email := strings.TrimSpace(in.Email)
	if fullName == "" {
		return nil, apperror.ValidationFailed("fullName", "Full name is required")
	}
	if email == "" {
		return nil, apperror.ValidationFailed("email", "Email is required")
	}

	base := GenerateSlug(fullName)

	published := true
	if in.IsPublished != nil {
		published = *in.IsPublished
	}

	var profile *model.Profile
	for attempt := 0; ; attempt++ {
		slug, err := s.generateUniqueSlug(ctx, base)
		if err != nil {
			return nil, err
		}

		profile = &model.Profile{
			UserID:      userID,
			Slug:        slug,
			FullName:    fullName,
			Title:       trimOpt(in.Title),
			Phone:       trimOpt(in.Phone),
			Address:     trimOpt(in.Address),
			Email:       email,
			AvatarURL:   in.AvatarURL,
			ProfileURL:  s.frontendURL + "/" + slug,
			IsPublished: published,
		}

		err = s.profiles.Create(ctx, profile, normalizeExperiences(in.Experiences), normalizeLinks(in.SocialLinks))
		if err == nil {
			break
		}
		// Lost the insert race: another request claimed the slug between
		// the probe and the INSERT. Probe again from the same base.
		if errors.Is(err, repository.ErrSlugTaken) && attempt < slugMaxAttempts {
			continue
		}
		return nil, fmt.Errorf("service/profile: creating profile: %w", err)
	}

	s.logger.Info("profile created",
		slog.String("profileID", profile.ID),
		slog.String("slug", profile.Slug),
		slog.String("userID", userID),
	)

	s.attachQRCode(ctx, profile)

	return profile, nil
}

// attachQRCode renders the QR image and persists its URL. Failures are
// logged and swallowed.
func (s *ProfileService) attachQRCode(ctx context.Context, profile *model.Profile) {
	qrURL, err := s.qr.Generate(profile.ProfileURL, profile.ID)
	if err != nil {
		s.logger.Warn("QR code generation failed",
			slog.String("profileID", profile.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := s.profiles.SetQRCodeURL(ctx, profile.ID, qrURL, profile.ProfileURL); err != nil {
		s.logger.Warn("persisting QR code URL failed",
			slog.String("profileID", profile.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	profile.QRCodeURL = qrURL
}

// Get returns the full aggregate for the owner's edit view.
func (s *ProfileService) Get(ctx context.Context, id, userID string) (*model.Profile, error) {
	profile, err := s.profiles.GetOwned(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	return profile, nil
}

// GetBySlug returns the public aggregate; unpublished profiles 404.
func (s *ProfileService) GetBySlug(ctx context.Context, slug string) (*model.Profile, error) {
	return s.profiles.GetBySlug(ctx, slug)
}

// ListMine returns the caller's profiles newest-first.
func (s *ProfileService) ListMine(ctx context.Context, userID string) ([]model.ProfileSummary, error) {
	return s.profiles.ListByUser(ctx, userID)
}

// Update applies a partial update after the ownership check. The slug never
// changes on update — it is the stable public identity of the card; printed
// QR codes must keep working after a typo fix in the name.
func (s *ProfileService) Update(ctx context.Context, id, userID string, in ProfileInput) (*model.Profile, error) {
	profile, err := s.profiles.GetOwned(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	// Absent scalars stay as they are; only fields the client actually sent
	// are written.
	if v := strings.TrimSpace(in.FullName); v != "" {
		profile.FullName = v
	}
	if in.Title != nil {
		profile.Title = strings.TrimSpace(*in.Title)
	}
	if in.Phone != nil {
		profile.Phone = strings.TrimSpace(*in.Phone)
	}
	if in.Address != nil {
		profile.Address = strings.TrimSpace(*in.Address)
	}
	if in.AvatarURL != "" {
		profile.AvatarURL = in.AvatarURL
	}
	if in.IsPublished != nil {
		profile.IsPublished = *in.IsPublished
	}

	err = s.profiles.Update(ctx, profile, normalizeExperiences(in.Experiences), normalizeLinks(in.SocialLinks))
	if err != nil {
		return nil, fmt.Errorf("service/profile: updating profile %s: %w", id, err)
	}

	s.logger.Info("profile updated",
		slog.String("profileID", profile.ID),
		slog.String("userID", userID),
	)

	return profile, nil
}

// Delete removes the profile after the ownership check, then cleans up the
// QR image best-effort.
func (s *ProfileService) Delete(ctx context.Context, id, userID string) error {
	if _, err := s.profiles.GetOwned(ctx, id, userID); err != nil {
		return err
	}
	if err := s.profiles.Delete(ctx, id); err != nil {
		return fmt.Errorf("service/profile: deleting profile %s: %w", id, err)
	}

	if err := s.qr.Delete(id); err != nil {
		s.logger.Warn("QR code cleanup failed",
			slog.String("profileID", id),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("profile deleted",
		slog.String("profileID", id),
		slog.String("userID", userID),
	)

	return nil
}

// RegenerateQRCode re-renders the QR image for an owned profile. Unlike the
// create-time render, failure here IS an error — the user explicitly asked
// for the image.
func (s *ProfileService) RegenerateQRCode(ctx context.Context, id, userID string) (*model.Profile, error) {
	profile, err := s.profiles.GetOwned(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	qrURL, err := s.qr.Generate(profile.ProfileURL, profile.ID)
	if err != nil {
		return nil, fmt.Errorf("service/profile: regenerating QR code for %s: %w", id, err)
	}
	if err := s.profiles.SetQRCodeURL(ctx, profile.ID, qrURL, profile.ProfileURL); err != nil {
		return nil, fmt.Errorf("service/profile: saving QR code URL for %s: %w", id, err)
	}
	profile.QRCodeURL = qrURL

	return profile, nil
}

// normalizeExperiences sorts out client-provided fields that the storage
// layer owns: IDs and display order are reassigned on insert, so only the
// content fields matter, but nil-ness must survive (it encodes "untouched").
func normalizeExperiences(in []model.WorkExperience) []model.WorkExperience {
	if in == nil {
		return nil
	}
	out := make([]model.WorkExperience, len(in))
	for i, e := range in {
		out[i] = model.WorkExperience{
			Company:     strings.TrimSpace(e.Company),
			Position:    strings.TrimSpace(e.Position),
			StartDate:   e.StartDate,
			EndDate:     e.EndDate,
			Description: strings.TrimSpace(e.Description),
		}
	}
	return out
}

// normalizeLinks upper-cases the platform so frontend icon lookups never
// care how the client cased it.
func normalizeLinks(in []model.SocialLink) []model.SocialLink {
	if in == nil {
		return nil
	}
	out := make([]model.SocialLink, len(in))
	for i, l := range in {
		out[i] = model.SocialLink{
			Platform: strings.ToUpper(strings.TrimSpace(l.Platform)),
			URL:      strings.TrimSpace(l.URL),
		}
	}
	return out
}
