package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/sakif/cardlink/internal/model"
)

func TestCreateView(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, "owner@example.com")
	profile := createTestProfile(t, db, user.ID, "john-doe")

	view := &model.ProfileView{
		ProfileID: profile.ID,
		Source:    model.SourceQRScan,
		IPAddress: "203.0.113.7",
		UserAgent: "Mozilla/5.0",
		Referrer:  "https://example.com/page",
		Timestamp: time.Now(),
	}
	if err := db.CreateView(context.Background(), view); err != nil {
		t.Fatalf("CreateView() error = %v", err)
	}
	if view.ID == "" {
		t.Error("CreateView() did not set view.ID")
	}
}

func TestListViewsByProfile_NewestFirst(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, "owner@example.com")
	profile := createTestProfile(t, db, user.ID, "john-doe")

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		view := &model.ProfileView{
			ProfileID: profile.ID,
			Source:    model.SourceDirect,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		}
		if err := db.CreateView(context.Background(), view); err != nil {
			t.Fatalf("CreateView() error = %v", err)
		}
	}

	views, err := db.ListViewsByProfile(context.Background(), profile.ID)
	if err != nil {
		t.Fatalf("ListViewsByProfile() error = %v", err)
	}
	if len(views) != 3 {
		t.Fatalf("got %d views, want 3", len(views))
	}
	for i := 1; i < len(views); i++ {
		if views[i].Timestamp.After(views[i-1].Timestamp) {
			t.Errorf("views not newest-first at index %d", i)
		}
	}
}

func TestListViewsByProfile_Empty(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, "owner@example.com")
	profile := createTestProfile(t, db, user.ID, "john-doe")

	views, err := db.ListViewsByProfile(context.Background(), profile.ID)
	if err != nil {
		t.Fatalf("ListViewsByProfile() error = %v", err)
	}
	if views == nil || len(views) != 0 {
		t.Errorf("got %v, want empty non-nil slice", views)
	}
}
