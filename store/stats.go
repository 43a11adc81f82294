package store

import (
	"context"
	"fmt"
	"time"

	"github.com/hazyhaar/cookiewall/dbopen"
)

// Stat names.
const (
	StatSitesAnalyzed   = "sitesAnalyzed"
	StatCookiesBlocked  = "cookiesBlocked"
	StatBannersDeclined = "bannersDeclined"
	StatTrackersBlocked = "trackersBlocked"
)

// Stats are the running usage counters.
type Stats struct {
	SitesAnalyzed   int64 `json:"sitesAnalyzed"`
	CookiesBlocked  int64 `json:"cookiesBlocked"`
	BannersDeclined int64 `json:"bannersDeclined"`
	TrackersBlocked int64 `json:"trackersBlocked"`
}

// Increment adds n to the named counter.
func (s *Store) Increment(ctx context.Context, stat string, n int64) error {
	if n == 0 {
		return nil
	}
	_, err := dbopen.Exec(ctx, s.DB, `
		INSERT INTO stats (name, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET value = value + excluded.value, updated_at = excluded.updated_at`,
		stat, n, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("store: increment %s: %w", stat, err)
	}
	return nil
}

// Stats returns all counters; unknown names are ignored.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT name, value FROM stats`)
	if err != nil {
		return Stats{}, fmt.Errorf("store: stats: %w", err)
	}
	defer rows.Close()

	var st Stats
	for rows.Next() {
		var name string
		var v int64
		if err := rows.Scan(&name, &v); err != nil {
			return Stats{}, fmt.Errorf("store: scan stat: %w", err)
		}
		switch name {
		case StatSitesAnalyzed:
			st.SitesAnalyzed = v
		case StatCookiesBlocked:
			st.CookiesBlocked = v
		case StatBannersDeclined:
			st.BannersDeclined = v
		case StatTrackersBlocked:
			st.TrackersBlocked = v
		}
	}
	return st, rows.Err()
}
