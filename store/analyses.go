package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hazyhaar/cookiewall/analysis"
	"github.com/hazyhaar/cookiewall/dbopen"
)

// Summary is the list view of a stored analysis.
type Summary struct {
	Domain          string `json:"domain"`
	ID              string `json:"id"`
	URL             string `json:"url"`
	Score           string `json:"score"`
	TotalCookies    int    `json:"total_cookies"`
	TrackingCookies int    `json:"tracking_cookies"`
	TrackingScripts int    `json:"tracking_scripts"`
	CreatedAt       int64  `json:"created_at"`
}

// SaveAnalysis stores pa, replacing any previous analysis of its domain.
func (s *Store) SaveAnalysis(ctx context.Context, pa *analysis.PageAnalysis) error {
	if pa == nil || pa.Domain == "" {
		return errors.New("store: save analysis: missing domain")
	}
	data, err := json.Marshal(pa)
	if err != nil {
		return fmt.Errorf("store: marshal analysis: %w", err)
	}
	ts := pa.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err = dbopen.Exec(ctx, s.DB, `
		INSERT INTO analyses
			(domain, id, url, score, total_cookies, tracking_cookies, tracking_scripts, data, created_at)
		VALUES (?,?,?,?,?,?,?,?,?)
		ON CONFLICT(domain) DO UPDATE SET
			id = excluded.id,
			url = excluded.url,
			score = excluded.score,
			total_cookies = excluded.total_cookies,
			tracking_cookies = excluded.tracking_cookies,
			tracking_scripts = excluded.tracking_scripts,
			data = excluded.data,
			created_at = excluded.created_at`,
		pa.Domain, pa.ID, pa.URL, string(pa.Score), pa.Cookies.Total, pa.TrackingCookies(),
		len(pa.TrackingScripts), string(data), ts.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("store: save analysis: %w", err)
	}
	return nil
}

// GetAnalysis returns the analysis of domain, or nil if none is stored.
func (s *Store) GetAnalysis(ctx context.Context, domain string) (*analysis.PageAnalysis, error) {
	var data string
	err := s.DB.QueryRowContext(ctx, `SELECT data FROM analyses WHERE domain = ?`, domain).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get analysis: %w", err)
	}
	pa := &analysis.PageAnalysis{}
	if err := json.Unmarshal([]byte(data), pa); err != nil {
		return nil, fmt.Errorf("store: decode analysis %s: %w", domain, err)
	}
	return pa, nil
}

// ListAnalyses returns summaries, newest first. limit <= 0 means no limit.
func (s *Store) ListAnalyses(ctx context.Context, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT domain, id, url, score, total_cookies, tracking_cookies, tracking_scripts, created_at
		FROM analyses ORDER BY created_at DESC, domain LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list analyses: %w", err)
	}
	defer rows.Close()

	out := []Summary{}
	for rows.Next() {
		var sm Summary
		if err := rows.Scan(&sm.Domain, &sm.ID, &sm.URL, &sm.Score, &sm.TotalCookies,
			&sm.TrackingCookies, &sm.TrackingScripts, &sm.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan analysis: %w", err)
		}
		out = append(out, sm)
	}
	return out, rows.Err()
}

// allAnalyses decodes every stored analysis, newest first.
func (s *Store) allAnalyses(ctx context.Context) ([]*analysis.PageAnalysis, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT data FROM analyses ORDER BY created_at DESC, domain`)
	if err != nil {
		return nil, fmt.Errorf("store: all analyses: %w", err)
	}
	defer rows.Close()

	out := []*analysis.PageAnalysis{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("store: scan analysis: %w", err)
		}
		pa := &analysis.PageAnalysis{}
		if err := json.Unmarshal([]byte(data), pa); err != nil {
			continue
		}
		out = append(out, pa)
	}
	return out, rows.Err()
}

// Cleanup deletes analyses older than olderThan and returns how many were dropped.
func (s *Store) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan).UnixMilli()
	res, err := dbopen.Exec(ctx, s.DB, `DELETE FROM analyses WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("store: cleanup: %w", err)
	}
	return res.RowsAffected()
}
