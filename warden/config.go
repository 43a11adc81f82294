package warden

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the warden configuration file.
type Config struct {
	Listen string `yaml:"listen"`
	// Database holds analyses, statistics and settings.
	Database string `yaml:"database"`
	// SettingsFile, when set, is read instead of the settings table and
	// PUT /api/settings rewrites it.
	SettingsFile string `yaml:"settings_file"`
	// AllowPrivateTargets lets inspections reach loopback and private
	// addresses.
	AllowPrivateTargets bool `yaml:"allow_private_targets"`

	Browser   BrowserConfig   `yaml:"browser"`
	Decline   DeclineConfig   `yaml:"decline"`
	Retention RetentionConfig `yaml:"retention"`
	Sinks     []SinkConfig    `yaml:"sinks"`
}

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig struct {
	Remote           string        `yaml:"remote"`
	MemoryLimit      int64         `yaml:"memory_limit"`
	RecycleInterval  time.Duration `yaml:"recycle_interval"`
	ResourceBlocking []string      `yaml:"resource_blocking"`
	Stealth          string        `yaml:"stealth"` // http | headless | headful
	NavTimeout       time.Duration `yaml:"nav_timeout"`
	XvfbDisplay      string        `yaml:"xvfb_display"`
	Debounce         time.Duration `yaml:"debounce"`
}

// DeclineConfig holds the decline timings.
type DeclineConfig struct {
	AutoDelay    time.Duration `yaml:"auto_delay"`
	Settle       time.Duration `yaml:"settle"`
	Fallback     time.Duration `yaml:"fallback"`
	Report       time.Duration `yaml:"report"`
	IndicatorTTL time.Duration `yaml:"indicator_ttl"`
	// Watch is how long an inspection keeps the page open after the first
	// automatic run, so late banners still trigger a decline.
	Watch time.Duration `yaml:"watch"`
}

// RetentionConfig controls analysis cleanup.
type RetentionConfig struct {
	MaxAge   time.Duration `yaml:"max_age"`
	Interval time.Duration `yaml:"interval"`
}

// SinkConfig defines a report output.
type SinkConfig struct {
	Type string `yaml:"type"` // stdout | webhook
	URL  string `yaml:"url"`  // for webhook
}

// LoadConfigFile reads a YAML configuration file and applies defaults.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("warden: read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML configuration and applies defaults.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("warden: parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = ":8087"
	}
	if c.Database == "" {
		c.Database = "cookiewall.db"
	}
	if c.Browser.MemoryLimit <= 0 {
		c.Browser.MemoryLimit = 1 << 30
	}
	if c.Browser.RecycleInterval <= 0 {
		c.Browser.RecycleInterval = 4 * time.Hour
	}
	if c.Browser.Stealth == "" {
		c.Browser.Stealth = "headless"
	}
	if c.Browser.NavTimeout <= 0 {
		c.Browser.NavTimeout = 30 * time.Second
	}
	if c.Browser.XvfbDisplay == "" {
		c.Browser.XvfbDisplay = ":99"
	}
	if c.Browser.Debounce <= 0 {
		c.Browser.Debounce = 250 * time.Millisecond
	}
	if c.Decline.AutoDelay <= 0 {
		c.Decline.AutoDelay = 2000 * time.Millisecond
	}
	if c.Decline.Settle <= 0 {
		c.Decline.Settle = 500 * time.Millisecond
	}
	if c.Decline.Fallback <= 0 {
		c.Decline.Fallback = time.Second
	}
	if c.Decline.Report <= 0 {
		c.Decline.Report = time.Second
	}
	if c.Decline.IndicatorTTL <= 0 {
		c.Decline.IndicatorTTL = 4 * time.Second
	}
	if c.Decline.Watch <= 0 {
		c.Decline.Watch = 3 * time.Second
	}
	if c.Retention.MaxAge <= 0 {
		c.Retention.MaxAge = 7 * 24 * time.Hour
	}
	if c.Retention.Interval <= 0 {
		c.Retention.Interval = time.Hour
	}
}

func (c *Config) validate() error {
	switch c.Browser.Stealth {
	case "http", "headless", "headful":
	default:
		return fmt.Errorf("warden: unknown browser stealth %q", c.Browser.Stealth)
	}
	for i, s := range c.Sinks {
		switch s.Type {
		case "stdout":
		case "webhook":
			if s.URL == "" {
				return fmt.Errorf("warden: sink %d: webhook needs a url", i)
			}
		default:
			return fmt.Errorf("warden: sink %d: unknown type %q", i, s.Type)
		}
	}
	return nil
}
