package model

import "time"

// View sources. Tracked values are upper-cased on write; anything the client
// sends outside this set is still stored (upper-cased) so the analytics
// breakdown can report it.
const (
	SourceDirect = "DIRECT"
	SourceQRScan = "QR_SCAN"
)

// ProfileView is one append-only visit event for a profile.
//
// Rows are never mutated or deleted individually — they only disappear when
// the owning profile is deleted (ON DELETE CASCADE). IPAddress, UserAgent and
// Referrer are truncated at write time (45/255/255) so a hostile client can't
// grow the table with megabyte headers.
type ProfileView struct {
	ID        string    `json:"id"        db:"id"`
	ProfileID string    `json:"profileId" db:"profile_id"`
	Source    string    `json:"source"    db:"source"`
	IPAddress string    `json:"ipAddress" db:"ip_address"`
	UserAgent string    `json:"userAgent" db:"user_agent"`
	Referrer  string    `json:"referrer"  db:"referrer"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
}
