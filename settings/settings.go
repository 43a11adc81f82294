// Package settings holds the user preferences read by the consent engine
// and the stores they are loaded from.
package settings

import (
	"context"
	"errors"
	"log/slog"
	"strings"
)

// ErrUnavailable is returned by a Source that cannot produce settings.
var ErrUnavailable = errors.New("settings: unavailable")

// PrivacyLevel tunes how aggressive the engine is.
type PrivacyLevel string

const (
	Strict PrivacyLevel = "strict"
	Medium PrivacyLevel = "medium"
	// Basic never force-hides banners it could not decline.
	Basic PrivacyLevel = "basic"
)

// Valid reports whether l is a known level.
func (l PrivacyLevel) Valid() bool {
	return l == Strict || l == Medium || l == Basic
}

// Settings are the recognized preference keys.
type Settings struct {
	AutoDeclineEnabled   bool         `json:"autoDeclineEnabled"`
	BlockTrackingCookies bool         `json:"blockTrackingCookies"`
	ShowNotifications    bool         `json:"showNotifications"`
	PrivacyLevel         PrivacyLevel `json:"privacyLevel"`
	Whitelist            []string     `json:"whitelist"`
}

// Defaults is the baseline used whenever settings are missing.
func Defaults() Settings {
	return Settings{
		AutoDeclineEnabled:   true,
		BlockTrackingCookies: true,
		ShowNotifications:    true,
		PrivacyLevel:         Medium,
		Whitelist:            []string{},
	}
}

// Whitelisted reports whether host equals a whitelist entry or is a
// subdomain of one. Entries may carry a leading dot.
func (s Settings) Whitelisted(host string) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	for _, w := range s.Whitelist {
		w = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(w), "."))
		if w == "" {
			continue
		}
		if host == w || strings.HasSuffix(host, "."+w) {
			return true
		}
	}
	return false
}

// SuppressAllowed reports whether banners may be force-hidden.
func (s Settings) SuppressAllowed() bool { return s.PrivacyLevel != Basic }

// normalize replaces an unknown level with Medium and a nil whitelist with
// an empty one.
func (s Settings) normalize() Settings {
	if !s.PrivacyLevel.Valid() {
		s.PrivacyLevel = Medium
	}
	if s.Whitelist == nil {
		s.Whitelist = []string{}
	}
	return s
}

// Source produces settings.
type Source interface {
	Load(ctx context.Context) (Settings, error)
}

// Static is a fixed Source.
type Static Settings

// Load implements Source.
func (s Static) Load(context.Context) (Settings, error) { return Settings(s).normalize(), nil }

// Resolve loads settings from src, falling back to Defaults when src is
// nil or fails.
func Resolve(ctx context.Context, src Source, logger *slog.Logger) Settings {
	if logger == nil {
		logger = slog.Default()
	}
	if src == nil {
		return Defaults()
	}
	s, err := src.Load(ctx)
	if err != nil {
		logger.Warn("settings: using defaults", "error", err)
		return Defaults()
	}
	return s.normalize()
}
