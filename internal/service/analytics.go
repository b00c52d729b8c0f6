package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/sakif/cardlink/internal/model"
	"github.com/sakif/cardlink/internal/repository"
)

// Header truncation limits. 45 bytes fits the longest textual IPv6 form;
// the others match the storage columns.
const (
	maxIPLen        = 45
	maxUserAgentLen = 255
	maxReferrerLen  = 255
)

const topReferrerLimit = 10

// AnalyticsService records profile visits and aggregates them for the
// owner's dashboard. Aggregation happens in Go, not in SQL: view volumes
// are small per profile, and one ListViewsByProfile read feeds the summary,
// the day series, and the CSV export alike.
type AnalyticsService struct {
	views    repository.ViewRepository
	profiles repository.ProfileRepository
	logger   *slog.Logger
}

func NewAnalyticsService(
	views repository.ViewRepository,
	profiles repository.ProfileRepository,
	logger *slog.Logger,
) *AnalyticsService {
	return &AnalyticsService{
		views:    views,
		profiles: profiles,
		logger:   logger,
	}
}

// TrackInput is the public tracking payload plus the request metadata the
// handler extracts.
type TrackInput struct {
	ProfileID string
	Source    string
	IPAddress string
	UserAgent string
	Referrer  string
}

// TrackView records one visit to a published profile.
//
// Only publicly visible profiles accept views: unpublished and nonexistent
// IDs 404 identically, so the anonymous endpoint cannot be used to probe
// which hidden profile IDs exist.
//
// Metadata is truncated here, at the trust boundary, so a hostile client
// cannot grow the table with megabyte headers.
func (s *AnalyticsService) TrackView(ctx context.Context, in TrackInput) error {
	if _, err := s.profiles.GetPublished(ctx, in.ProfileID); err != nil {
		return err
	}

	source := strings.ToUpper(strings.TrimSpace(in.Source))
	if source == "" {
		source = model.SourceDirect
	}

	view := &model.ProfileView{
		ProfileID: in.ProfileID,
		Source:    source,
		IPAddress: truncate(in.IPAddress, maxIPLen),
		UserAgent: truncate(in.UserAgent, maxUserAgentLen),
		Referrer:  truncate(in.Referrer, maxReferrerLen),
		Timestamp: time.Now(),
	}
	if err := s.views.CreateView(ctx, view); err != nil {
		return fmt.Errorf("service/analytics: recording view: %w", err)
	}

	return nil
}

// Summary is the owner dashboard payload.
type Summary struct {
	TotalViews       int             `json:"totalViews"`
	ViewsLast7Days   int             `json:"viewsLast7Days"`
	ViewsLast30Days  int             `json:"viewsLast30Days"`
	TotalQRScans     int             `json:"totalQrScans"`
	QRScansLast7Days int             `json:"qrScansLast7Days"`
	ViewsBySource    map[string]int  `json:"viewsBySource"`
	ViewsByDay       []DayCount      `json:"viewsByDay"`
	DeviceBreakdown  map[string]int  `json:"deviceBreakdown"`
	TopReferrers     []ReferrerCount `json:"topReferrers"`
}

// DayCount is one zero-filled day in the 30-day series.
type DayCount struct {
	Date  string `json:"date"` // YYYY-MM-DD
	Count int    `json:"count"`
}

// ReferrerCount is one entry of the top-referrers list, keyed by domain.
type ReferrerCount struct {
	Domain string `json:"domain"`
	Count  int    `json:"count"`
}

// GetSummary aggregates the view history of an owned profile.
func (s *AnalyticsService) GetSummary(ctx context.Context, profileID, userID string) (*Summary, error) {
	if _, err := s.profiles.GetOwned(ctx, profileID, userID); err != nil {
		return nil, err
	}

	views, err := s.views.ListViewsByProfile(ctx, profileID)
	if err != nil {
		return nil, fmt.Errorf("service/analytics: listing views: %w", err)
	}

	now := time.Now()
	sevenDaysAgo := now.AddDate(0, 0, -7)
	thirtyDaysAgo := now.AddDate(0, 0, -30)

	summary := &Summary{
		TotalViews:      len(views),
		ViewsBySource:   map[string]int{},
		DeviceBreakdown: map[string]int{"mobile": 0, "desktop": 0},
	}

	// Zero-filled 30-day series, oldest day first, today last.
	dayIndex := make(map[string]int, 30)
	for i := 29; i >= 0; i-- {
		date := now.AddDate(0, 0, -i).Format("2006-01-02")
		dayIndex[date] = len(summary.ViewsByDay)
		summary.ViewsByDay = append(summary.ViewsByDay, DayCount{Date: date})
	}

	referrers := map[string]int{}
	for _, v := range views {
		summary.ViewsBySource[v.Source]++
		if v.Source == model.SourceQRScan {
			summary.TotalQRScans++
			if v.Timestamp.After(sevenDaysAgo) {
				summary.QRScansLast7Days++
			}
		}
		if v.Timestamp.After(sevenDaysAgo) {
			summary.ViewsLast7Days++
		}
		if v.Timestamp.After(thirtyDaysAgo) {
			summary.ViewsLast30Days++
		}
		if i, ok := dayIndex[v.Timestamp.Format("2006-01-02")]; ok {
			summary.ViewsByDay[i].Count++
		}
		summary.DeviceBreakdown[deviceType(v.UserAgent)]++
		if domain := referrerDomain(v.Referrer); domain != "" {
			referrers[domain]++
		}
	}

	summary.TopReferrers = topReferrers(referrers, topReferrerLimit)

	return summary, nil
}

// ExportCSV streams the raw view events of an owned profile as CSV and
// returns the suggested attachment filename.
func (s *AnalyticsService) ExportCSV(ctx context.Context, w io.Writer, profileID, userID string) (string, error) {
	profile, err := s.profiles.GetOwned(ctx, profileID, userID)
	if err != nil {
		return "", err
	}

	views, err := s.views.ListViewsByProfile(ctx, profileID)
	if err != nil {
		return "", fmt.Errorf("service/analytics: listing views for export: %w", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Timestamp", "Source", "Referrer", "Device Type"}); err != nil {
		return "", fmt.Errorf("service/analytics: writing CSV header: %w", err)
	}
	for _, v := range views {
		record := []string{
			v.Timestamp.Format(time.RFC3339),
			v.Source,
			v.Referrer,
			deviceType(v.UserAgent),
		}
		if err := cw.Write(record); err != nil {
			return "", fmt.Errorf("service/analytics: writing CSV record: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return "", fmt.Errorf("service/analytics: flushing CSV: %w", err)
	}

	filename := fmt.Sprintf("%s-analytics-%s.csv", profile.Slug, time.Now().Format("2006-01-02"))
	return filename, nil
}

// deviceType is a deliberately crude user-agent split: the dashboard only
// distinguishes mobile from desktop, and the two substrings below cover the
// overwhelming majority of mobile browsers.
func deviceType(userAgent string) string {
	ua := strings.ToLower(userAgent)
	if strings.Contains(ua, "mobile") || strings.Contains(ua, "android") {
		return "mobile"
	}
	return "desktop"
}

// referrerDomain extracts the host from a referrer URL; empty or unparsable
// referrers contribute nothing to the top list.
func referrerDomain(referrer string) string {
	if referrer == "" {
		return ""
	}
	u, err := url.Parse(referrer)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Host
}

// topReferrers sorts domains by count descending (ties by name for a stable
// order) and keeps the first limit entries.
func topReferrers(counts map[string]int, limit int) []ReferrerCount {
	out := make([]ReferrerCount, 0, len(counts))
	for domain, count := range counts {
		out = append(out, ReferrerCount{Domain: domain, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Domain < out[j].Domain
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
