package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sakif/cardlink/internal/apperror"
	"github.com/sakif/cardlink/internal/model"
	"github.com/sakif/cardlink/internal/qrcode"
	"github.com/sakif/cardlink/internal/repository"
)

// fakeProfileRepo is an in-memory repository.ProfileRepository. It mirrors
// the real store's semantics closely enough for service tests: ownership
// filtering, slug uniqueness, the nil-vs-empty replace policy.
type fakeProfileRepo struct {
	profiles map[string]*model.Profile
	nextID   int
	// forceSlugTakenOnce makes the next Create fail with ErrSlugTaken
	// regardless of actual uniqueness, to exercise the retry path.
	forceSlugTakenOnce bool
}

func newFakeProfileRepo() *fakeProfileRepo {
	return &fakeProfileRepo{profiles: make(map[string]*model.Profile), nextID: 1}
}

func (f *fakeProfileRepo) Create(ctx context.Context, profile *model.Profile, experiences []model.WorkExperience, links []model.SocialLink) error {
	if f.forceSlugTakenOnce {
		f.forceSlugTakenOnce = false
		return repository.ErrSlugTaken
	}
	for _, p := range f.profiles {
		if p.Slug == profile.Slug {
			return repository.ErrSlugTaken
		}
	}
	profile.ID = fmt.Sprintf("profile-fake-%d", f.nextID)
	f.nextID++
	now := time.Now()
	profile.CreatedAt = now
	profile.UpdatedAt = now
	profile.Experiences = experiencesOrEmpty(experiences)
	profile.SocialLinks = linksOrEmpty(links)
	copied := *profile
	f.profiles[profile.ID] = &copied
	return nil
}

func (f *fakeProfileRepo) GetOwned(ctx context.Context, id, userID string) (*model.Profile, error) {
	p, ok := f.profiles[id]
	if !ok || p.UserID != userID {
		return nil, apperror.NotFoundMessage("Profile not found or unauthorized")
	}
	copied := *p
	return &copied, nil
}

func (f *fakeProfileRepo) GetBySlug(ctx context.Context, slug string) (*model.Profile, error) {
	for _, p := range f.profiles {
		if p.Slug == slug && p.IsPublished {
			copied := *p
			return &copied, nil
		}
	}
	return nil, apperror.NotFoundMessage("Profile not found or unauthorized")
}

func (f *fakeProfileRepo) GetPublished(ctx context.Context, id string) (*model.Profile, error) {
	p, ok := f.profiles[id]
	if !ok || !p.IsPublished {
		return nil, apperror.NotFoundMessage("Profile not found or unauthorized")
	}
	copied := *p
	return &copied, nil
}

func (f *fakeProfileRepo) ListByUser(ctx context.Context, userID string) ([]model.ProfileSummary, error) {
	summaries := []model.ProfileSummary{}
	for _, p := range f.profiles {
		if p.UserID != userID {
			continue
		}
		summaries = append(summaries, model.ProfileSummary{
			ID:              p.ID,
			Slug:            p.Slug,
			FullName:        p.FullName,
			IsPublished:     p.IsPublished,
			ExperienceCount: len(p.Experiences),
			SocialLinkCount: len(p.SocialLinks),
			CreatedAt:       p.CreatedAt,
		})
	}
	return summaries, nil
}

func (f *fakeProfileRepo) Update(ctx context.Context, profile *model.Profile, experiences []model.WorkExperience, links []model.SocialLink) error {
	stored, ok := f.profiles[profile.ID]
	if !ok {
		return apperror.NotFoundMessage("Profile not found or unauthorized")
	}
	stored.FullName = profile.FullName
	stored.Title = profile.Title
	stored.Phone = profile.Phone
	stored.Address = profile.Address
	stored.AvatarURL = profile.AvatarURL
	stored.IsPublished = profile.IsPublished
	stored.UpdatedAt = time.Now()
	if experiences != nil {
		stored.Experiences = experiencesOrEmpty(experiences)
	}
	if links != nil {
		stored.SocialLinks = linksOrEmpty(links)
	}
	*profile = *stored
	return nil
}

func (f *fakeProfileRepo) Delete(ctx context.Context, id string) error {
	if _, ok := f.profiles[id]; !ok {
		return apperror.NotFoundMessage("Profile not found or unauthorized")
	}
	delete(f.profiles, id)
	return nil
}

func (f *fakeProfileRepo) SlugExists(ctx context.Context, slug string) (bool, error) {
	for _, p := range f.profiles {
		if p.Slug == slug {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeProfileRepo) SetQRCodeURL(ctx context.Context, id, qrCodeURL, profileURL string) error {
	p, ok := f.profiles[id]
	if !ok {
		return apperror.NotFound("profile", id)
	}
	p.QRCodeURL = qrCodeURL
	p.ProfileURL = profileURL
	return nil
}

func strPtr(s string) *string { return &s }

func experiencesOrEmpty(in []model.WorkExperience) []model.WorkExperience {
	if in == nil {
		return []model.WorkExperience{}
	}
	return in
}

func linksOrEmpty(in []model.SocialLink) []model.SocialLink {
	if in == nil {
		return []model.SocialLink{}
	}
	return in
}

func newTestProfileService(t *testing.T) (*ProfileService, *fakeProfileRepo) {
	t.Helper()
	repo := newFakeProfileRepo()
	svc := NewProfileService(repo, qrcode.New(t.TempDir()), "http://localhost:5173", testLogger())
	return svc, repo
}

func createProfile(t *testing.T, svc *ProfileService, userID, fullName string) *model.Profile {
	t.Helper()
	profile, err := svc.Create(context.Background(), userID, ProfileInput{
		FullName: fullName,
		Email:    "card@example.com",
	})
	if err != nil {
		t.Fatalf("creating profile: %v", err)
	}
	return profile
}

// =========================================================================
// SLUG GENERATION
// =========================================================================

func TestGenerateSlug(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"John Doe", "john-doe"},
		{"  Anna-Marie!  ", "anna-marie"},
		{"O'Brien & Sons", "o-brien-sons"},
		{"ALLCAPS", "allcaps"},
		{"dev@2024", "dev-2024"},
		{"---", ""},
		{"", ""},
		{"a    b", "a-b"},
	}
	for _, tt := range tests {
		if got := GenerateSlug(tt.in); got != tt.want {
			t.Errorf("GenerateSlug(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCreate_SlugCollisionGetsCounter(t *testing.T) {
	svc, _ := newTestProfileService(t)

	first := createProfile(t, svc, "user-1", "John Doe")
	second := createProfile(t, svc, "user-2", "John Doe")
	third := createProfile(t, svc, "user-3", "John Doe")

	if first.Slug != "john-doe" {
		t.Errorf("first slug = %q, want john-doe", first.Slug)
	}
	if second.Slug != "john-doe-1" {
		t.Errorf("second slug = %q, want john-doe-1", second.Slug)
	}
	if third.Slug != "john-doe-2" {
		t.Errorf("third slug = %q, want john-doe-2", third.Slug)
	}
}

func TestCreate_EmptySlugFallsBack(t *testing.T) {
	svc, _ := newTestProfileService(t)

	profile := createProfile(t, svc, "user-1", "李 明") // no ASCII alphanumerics
	if profile.Slug != "profile" {
		t.Errorf("slug = %q, want the fallback base", profile.Slug)
	}
}

// When the advisory probe loses the INSERT race (the store reports
// ErrSlugTaken even though the probe said free), Create must retry with the
// next counter instead of failing the request.
func TestCreate_RetriesOnInsertRace(t *testing.T) {
	svc, repo := newTestProfileService(t)
	repo.forceSlugTakenOnce = true

	profile := createProfile(t, svc, "user-1", "John Doe")
	if profile.ID == "" {
		t.Error("Create() did not recover from the slug race")
	}
}

// =========================================================================
// CREATE
// =========================================================================

func TestProfileCreate(t *testing.T) {
	svc, _ := newTestProfileService(t)

	start := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	profile, err := svc.Create(context.Background(), "user-1", ProfileInput{
		FullName: "John Doe",
		Title:    strPtr("Engineer"),
		Email:    "john@example.com",
		Experiences: []model.WorkExperience{
			{Company: "Acme", Position: "Dev", StartDate: start},
		},
		SocialLinks: []model.SocialLink{
			{Platform: "github", URL: "https://github.com/johndoe"},
		},
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if profile.ProfileURL != "http://localhost:5173/john-doe" {
		t.Errorf("ProfileURL = %q", profile.ProfileURL)
	}
	if !profile.IsPublished {
		t.Error("profiles default to published")
	}
	if profile.QRCodeURL == "" {
		t.Error("QR code was not attached")
	}
	if len(profile.SocialLinks) != 1 || profile.SocialLinks[0].Platform != "GITHUB" {
		t.Errorf("platform = %v, want upper-cased GITHUB", profile.SocialLinks)
	}
}

func TestProfileCreate_RequiredFields(t *testing.T) {
	svc, _ := newTestProfileService(t)

	_, err := svc.Create(context.Background(), "user-1", ProfileInput{Email: "a@example.com"})
	if !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("Create() without fullName error = %v, want ErrValidation", err)
	}

	_, err = svc.Create(context.Background(), "user-1", ProfileInput{FullName: "John"})
	if !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("Create() without email error = %v, want ErrValidation", err)
	}
}

// =========================================================================
// UPDATE
// =========================================================================

func TestProfileUpdate_SlugIsStable(t *testing.T) {
	svc, _ := newTestProfileService(t)
	profile := createProfile(t, svc, "user-1", "John Doe")

	updated, err := svc.Update(context.Background(), profile.ID, "user-1", ProfileInput{
		FullName: "Johnathan Doe",
		Email:    "card@example.com",
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.FullName != "Johnathan Doe" {
		t.Errorf("FullName = %q", updated.FullName)
	}
	// Printed QR codes point at the slug; a name change must not move the page.
	if updated.Slug != "john-doe" {
		t.Errorf("Slug changed to %q on update, must stay john-doe", updated.Slug)
	}
}

func TestProfileUpdate_NilCollectionsUntouched(t *testing.T) {
	svc, _ := newTestProfileService(t)

	profile, err := svc.Create(context.Background(), "user-1", ProfileInput{
		FullName:    "John Doe",
		Email:       "john@example.com",
		SocialLinks: []model.SocialLink{{Platform: "GITHUB", URL: "https://github.com/x"}},
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	updated, err := svc.Update(context.Background(), profile.ID, "user-1", ProfileInput{
		FullName: "John Doe",
		Title:    strPtr("New Title"),
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if len(updated.SocialLinks) != 1 {
		t.Errorf("omitted socialLinks wiped the collection: %d links", len(updated.SocialLinks))
	}
}

func TestProfileUpdate_OmittedScalarsUntouched(t *testing.T) {
	svc, _ := newTestProfileService(t)

	profile, err := svc.Create(context.Background(), "user-1", ProfileInput{
		FullName: "John Doe",
		Title:    strPtr("CTO"),
		Phone:    strPtr("+1 555 0100"),
		Address:  strPtr("1 Main St"),
		Email:    "john@example.com",
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// A collection-only body must not blank out the scalar fields.
	updated, err := svc.Update(context.Background(), profile.ID, "user-1", ProfileInput{
		SocialLinks: []model.SocialLink{{Platform: "GITHUB", URL: "https://github.com/johndoe"}},
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.Title != "CTO" || updated.Phone != "+1 555 0100" || updated.Address != "1 Main St" {
		t.Errorf("omitted scalars changed: title=%q phone=%q address=%q",
			updated.Title, updated.Phone, updated.Address)
	}

	// An explicit empty string is a deliberate clear, not an omission.
	updated, err = svc.Update(context.Background(), profile.ID, "user-1", ProfileInput{
		Title: strPtr(""),
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.Title != "" {
		t.Errorf("explicit empty title not cleared, got %q", updated.Title)
	}
	if updated.Phone != "+1 555 0100" {
		t.Errorf("phone changed by title-only update: %q", updated.Phone)
	}
}

func TestProfileUpdate_EmptyCollectionClears(t *testing.T) {
	svc, _ := newTestProfileService(t)

	profile, err := svc.Create(context.Background(), "user-1", ProfileInput{
		FullName:    "John Doe",
		Email:       "john@example.com",
		SocialLinks: []model.SocialLink{{Platform: "GITHUB", URL: "https://github.com/x"}},
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	updated, err := svc.Update(context.Background(), profile.ID, "user-1", ProfileInput{
		FullName:    "John Doe",
		SocialLinks: []model.SocialLink{},
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if len(updated.SocialLinks) != 0 {
		t.Errorf("explicit [] should clear the collection, got %d links", len(updated.SocialLinks))
	}
}

func TestProfileUpdate_OwnershipEnforced(t *testing.T) {
	svc, _ := newTestProfileService(t)
	profile := createProfile(t, svc, "user-1", "John Doe")

	_, err := svc.Update(context.Background(), profile.ID, "intruder", ProfileInput{FullName: "Hacked"})
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Update() by non-owner error = %v, want ErrNotFound", err)
	}
}

// =========================================================================
// DELETE / GET / LIST
// =========================================================================

func TestProfileDelete(t *testing.T) {
	svc, repo := newTestProfileService(t)
	profile := createProfile(t, svc, "user-1", "John Doe")

	if err := svc.Delete(context.Background(), profile.ID, "user-1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if len(repo.profiles) != 0 {
		t.Error("profile still present after Delete()")
	}
}

func TestProfileDelete_OwnershipEnforced(t *testing.T) {
	svc, _ := newTestProfileService(t)
	profile := createProfile(t, svc, "user-1", "John Doe")

	err := svc.Delete(context.Background(), profile.ID, "intruder")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Delete() by non-owner error = %v, want ErrNotFound", err)
	}
}

func TestGetBySlug_PublishedOnly(t *testing.T) {
	svc, _ := newTestProfileService(t)

	unpublished := false
	_, err := svc.Create(context.Background(), "user-1", ProfileInput{
		FullName:    "Hidden Person",
		Email:       "hidden@example.com",
		IsPublished: &unpublished,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	_, err = svc.GetBySlug(context.Background(), "hidden-person")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetBySlug() on unpublished error = %v, want ErrNotFound", err)
	}
}

func TestRegenerateQRCode(t *testing.T) {
	svc, _ := newTestProfileService(t)
	profile := createProfile(t, svc, "user-1", "John Doe")

	regenerated, err := svc.RegenerateQRCode(context.Background(), profile.ID, "user-1")
	if err != nil {
		t.Fatalf("RegenerateQRCode() error = %v", err)
	}
	if regenerated.QRCodeURL == "" {
		t.Error("RegenerateQRCode() did not set the QR URL")
	}
}

func TestListMine(t *testing.T) {
	svc, _ := newTestProfileService(t)
	createProfile(t, svc, "user-1", "John Doe")
	createProfile(t, svc, "user-1", "Jane Doe")
	createProfile(t, svc, "user-2", "Not Mine")

	summaries, err := svc.ListMine(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("ListMine() error = %v", err)
	}
	if len(summaries) != 2 {
		t.Errorf("ListMine() returned %d profiles, want 2", len(summaries))
	}
}
