package settings

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileSettings mirrors Settings with pointers so absent keys keep their
// defaults. Keys match the stored settings names; the snake_case spellings
// are still read.
type fileSettings struct {
	AutoDeclineEnabled   *bool    `yaml:"autoDeclineEnabled,omitempty"`
	BlockTrackingCookies *bool    `yaml:"blockTrackingCookies,omitempty"`
	ShowNotifications    *bool    `yaml:"showNotifications,omitempty"`
	PrivacyLevel         string   `yaml:"privacyLevel,omitempty"`
	Whitelist            []string `yaml:"whitelist"`

	SnakeAutoDecline   *bool  `yaml:"auto_decline_enabled,omitempty"`
	SnakeBlockTracking *bool  `yaml:"block_tracking_cookies,omitempty"`
	SnakeNotifications *bool  `yaml:"show_notifications,omitempty"`
	SnakePrivacyLevel  string `yaml:"privacy_level,omitempty"`
}

func firstBool(vs ...*bool) *bool {
	for _, v := range vs {
		if v != nil {
			return v
		}
	}
	return nil
}

// FileSource reads settings from a YAML file.
type FileSource struct {
	Path string
}

// Load implements Source.
func (f FileSource) Load(context.Context) (Settings, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return Settings{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return ParseYAML(data)
}

// ParseYAML decodes settings, applying defaults for absent keys.
func ParseYAML(data []byte) (Settings, error) {
	var raw fileSettings
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Settings{}, fmt.Errorf("%w: parse yaml: %w", ErrUnavailable, err)
	}
	s := Defaults()
	if v := firstBool(raw.AutoDeclineEnabled, raw.SnakeAutoDecline); v != nil {
		s.AutoDeclineEnabled = *v
	}
	if v := firstBool(raw.BlockTrackingCookies, raw.SnakeBlockTracking); v != nil {
		s.BlockTrackingCookies = *v
	}
	if v := firstBool(raw.ShowNotifications, raw.SnakeNotifications); v != nil {
		s.ShowNotifications = *v
	}
	switch {
	case raw.PrivacyLevel != "":
		s.PrivacyLevel = PrivacyLevel(raw.PrivacyLevel)
	case raw.SnakePrivacyLevel != "":
		s.PrivacyLevel = PrivacyLevel(raw.SnakePrivacyLevel)
	}
	if raw.Whitelist != nil {
		s.Whitelist = raw.Whitelist
	}
	return s.normalize(), nil
}

// WriteFile stores s as YAML at path.
func WriteFile(path string, s Settings) error {
	raw := fileSettings{
		AutoDeclineEnabled:   &s.AutoDeclineEnabled,
		BlockTrackingCookies: &s.BlockTrackingCookies,
		ShowNotifications:    &s.ShowNotifications,
		PrivacyLevel:         string(s.PrivacyLevel),
		Whitelist:            s.Whitelist,
	}
	data, err := yaml.Marshal(&raw)
	if err != nil {
		return fmt.Errorf("settings: marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("settings: write %s: %w", path, err)
	}
	return nil
}
