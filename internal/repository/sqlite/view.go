package sqlite

import (
	"context"
	"fmt"

	"github.com/rs/xid"
	"github.com/sakif/cardlink/internal/model"
	"github.com/sakif/cardlink/internal/repository"
)

var _ repository.ViewRepository = (*DB)(nil)

// CreateView appends one visit event. Field truncation happens in the
// analytics service before this is called; the row goes in as given.
func (db *DB) CreateView(ctx context.Context, view *model.ProfileView) error {
	view.ID = xid.New().String()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO profile_views (id, profile_id, source, ip_address, user_agent, referrer, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		view.ID, view.ProfileID, view.Source,
		view.IPAddress, view.UserAgent, view.Referrer, view.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting profile view: %w", err)
	}

	return nil
}

// ListViewsByProfile returns every view event for a profile, newest first.
// Aggregation (totals, windows, breakdowns) happens in the service — the
// store hands back raw events so one query feeds both the analytics
// summary and the CSV export.
func (db *DB) ListViewsByProfile(ctx context.Context, profileID string) ([]model.ProfileView, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, profile_id, source, ip_address, user_agent, referrer, timestamp
		 FROM profile_views
		 WHERE profile_id = ?
		 ORDER BY timestamp DESC`,
		profileID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing views for profile %s: %w", profileID, err)
	}
	defer rows.Close()

	views := []model.ProfileView{}
	for rows.Next() {
		var v model.ProfileView
		if err := rows.Scan(
			&v.ID, &v.ProfileID, &v.Source,
			&v.IPAddress, &v.UserAgent, &v.Referrer, &v.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scanning view row: %w", err)
		}
		views = append(views, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating views: %w", err)
	}

	return views, nil
}
