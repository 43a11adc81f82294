package settings

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/cookiewall/dbopen"
)

// Schema is the key/value settings table. Values are JSON.
const Schema = `
CREATE TABLE IF NOT EXISTS settings (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
`

// SQLiteSource stores settings as one row per key.
type SQLiteSource struct {
	DB *sql.DB
	// Logger reports undecodable values. Nil means slog.Default().
	Logger *slog.Logger
}

// NewSQLiteSource applies Schema and returns the source.
func NewSQLiteSource(ctx context.Context, db *sql.DB) (*SQLiteSource, error) {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return nil, fmt.Errorf("settings: schema: %w", err)
	}
	return &SQLiteSource{DB: db}, nil
}

// Load implements Source. Missing keys keep their defaults; a value that
// fails to decode is logged and keeps its default.
func (s *SQLiteSource) Load(ctx context.Context) (Settings, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return Settings{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer rows.Close()

	out := Defaults()
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return Settings{}, fmt.Errorf("%w: scan: %w", ErrUnavailable, err)
		}
		var target any
		switch key {
		case "autoDeclineEnabled":
			target = &out.AutoDeclineEnabled
		case "blockTrackingCookies":
			target = &out.BlockTrackingCookies
		case "showNotifications":
			target = &out.ShowNotifications
		case "privacyLevel":
			target = &out.PrivacyLevel
		case "whitelist":
			target = &out.Whitelist
		default:
			continue
		}
		if err := json.Unmarshal([]byte(value), target); err != nil {
			s.logger().Warn("settings: bad stored value", "key", key, "error", err)
		}
	}
	if err := rows.Err(); err != nil {
		return Settings{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return out.normalize(), nil
}

// Save replaces every key with the values of v.
func (s *SQLiteSource) Save(ctx context.Context, v Settings) error {
	v = v.normalize()
	if !v.PrivacyLevel.Valid() {
		return fmt.Errorf("settings: invalid privacy level %q", v.PrivacyLevel)
	}
	values := map[string]any{
		"autoDeclineEnabled":   v.AutoDeclineEnabled,
		"blockTrackingCookies": v.BlockTrackingCookies,
		"showNotifications":    v.ShowNotifications,
		"privacyLevel":         v.PrivacyLevel,
		"whitelist":            v.Whitelist,
	}
	now := time.Now().UnixNano()
	return dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		for key, val := range values {
			data, err := json.Marshal(val)
			if err != nil {
				return fmt.Errorf("settings: marshal %s: %w", key, err)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
				ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
				key, string(data), now); err != nil {
				return fmt.Errorf("settings: save %s: %w", key, err)
			}
		}
		return nil
	})
}

func (s *SQLiteSource) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// version is the change token polled by Watch.
func (s *SQLiteSource) version(ctx context.Context) (int64, error) {
	var v int64
	err := s.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(updated_at), 0) FROM settings`).Scan(&v)
	return v, err
}
