package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every setting of the service.
type Config struct {
	Server    ServerConfig   `yaml:"server"`
	Media     MediaConfig    `yaml:"media"`
	Database  DatabaseConfig `yaml:"database"`
	Auth      AuthConfig     `yaml:"auth"`
	Subtitles SubtitleConfig `yaml:"subtitles"`
	Search    SearchConfig   `yaml:"search"`
	Prefs     PrefsConfig    `yaml:"prefs"`
	Ads       AdsConfig      `yaml:"ads"`
	Billing   BillingConfig  `yaml:"billing"`
	Caption   CaptionConfig  `yaml:"caption"`
	Collage   CollageConfig  `yaml:"collage"`
	Log       LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	PublicURL       string        `yaml:"public_url"`
	CORS            bool          `yaml:"cors"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type MediaConfig struct {
	Root         string        `yaml:"root"`
	ScanInterval time.Duration `yaml:"scan_interval"` // 0 disables periodic rescans
	FPS          float64       `yaml:"fps"`           // frames per second extracted from episodes
	FFmpegPath   string        `yaml:"ffmpeg_path"`
	FFprobePath  string        `yaml:"ffprobe_path"`
}

type DatabaseConfig struct {
	Path        string        `yaml:"path"`
	BusyTimeout time.Duration `yaml:"busy_timeout"`
	Synchronous string        `yaml:"synchronous"`
	CacheSize   int           `yaml:"cache_size"`
}

type AuthConfig struct {
	SessionDuration time.Duration `yaml:"session_duration"`
	AdminEmail      string        `yaml:"admin_email"`
	LoginInterval   time.Duration `yaml:"login_interval"`
}

type SubtitleConfig struct {
	FallbackURL string        `yaml:"fallback_url"`
	Timeout     time.Duration `yaml:"timeout"`
	CacheSize   int           `yaml:"cache_size"`
}

type SearchConfig struct {
	MinInterval time.Duration `yaml:"min_interval"`
}

type PrefsConfig struct {
	Salt string `yaml:"salt"`
}

type AdsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	ScriptURL string `yaml:"script_url"`
}

type BillingConfig struct {
	CheckoutURL      string        `yaml:"checkout_url"`
	SupportedRegions []string      `yaml:"supported_regions"`
	Timeout          time.Duration `yaml:"timeout"`
}

type CaptionConfig struct {
	ReferenceWidth int     `yaml:"reference_width"`
	FontSize       float64 `yaml:"font_size"`
	Quality        int     `yaml:"quality"`
}

type CollageConfig struct {
	MaxWidth    int           `yaml:"max_width"`
	Border      int           `yaml:"border"`
	BorderColor string        `yaml:"border_color"`
	MaxSlots    int           `yaml:"max_slots"`
	BoardTTL    time.Duration `yaml:"board_ttl"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 5 * time.Second,
		},
		Media: MediaConfig{
			Root:         "./media",
			ScanInterval: 10 * time.Minute,
			FPS:          10,
		},
		Database: DatabaseConfig{
			Path:        "./data/memesrc.db",
			BusyTimeout: 5 * time.Second,
			Synchronous: "NORMAL",
			CacheSize:   -20000,
		},
		Auth: AuthConfig{
			SessionDuration: 24 * time.Hour,
			AdminEmail:      "admin@localhost",
			LoginInterval:   time.Second,
		},
		Subtitles: SubtitleConfig{
			Timeout:   3 * time.Second,
			CacheSize: 4096,
		},
		Search: SearchConfig{
			MinInterval: 200 * time.Millisecond,
		},
		Prefs: PrefsConfig{
			Salt: "memesrc",
		},
		Billing: BillingConfig{
			SupportedRegions: []string{"US", "CA", "GB", "AU"},
			Timeout:          10 * time.Second,
		},
		Caption: CaptionConfig{
			ReferenceWidth: 1000,
			FontSize:       40,
			Quality:        90,
		},
		Collage: CollageConfig{
			MaxWidth:    1000,
			Border:      10,
			BorderColor: "#000000",
			MaxSlots:    20,
			BoardTTL:    time.Hour,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (when
// path is non-empty) and MEMESRC_* environment variables, in that order.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	str("MEMESRC_ADDR", &c.Server.Addr)
	str("MEMESRC_PUBLIC_URL", &c.Server.PublicURL)
	boolean("MEMESRC_CORS", &c.Server.CORS)
	str("MEMESRC_ROOT", &c.Media.Root)
	dur("MEMESRC_SCAN_INTERVAL", &c.Media.ScanInterval)
	str("MEMESRC_FFMPEG", &c.Media.FFmpegPath)
	str("MEMESRC_FFPROBE", &c.Media.FFprobePath)
	str("MEMESRC_DB", &c.Database.Path)
	str("MEMESRC_ADMIN_EMAIL", &c.Auth.AdminEmail)
	str("MEMESRC_SUBTITLE_FALLBACK_URL", &c.Subtitles.FallbackURL)
	str("MEMESRC_PREFS_SALT", &c.Prefs.Salt)
	boolean("MEMESRC_ADS_ENABLED", &c.Ads.Enabled)
	str("MEMESRC_ADS_SCRIPT_URL", &c.Ads.ScriptURL)
	str("MEMESRC_CHECKOUT_URL", &c.Billing.CheckoutURL)
	if v, ok := lookup("MEMESRC_SUPPORTED_REGIONS"); ok && v != "" {
		c.Billing.SupportedRegions = strings.Split(v, ",")
	}
	str("MEMESRC_LOG_LEVEL", &c.Log.Level)

	return errors.Join(errs...)
}

func (c *Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Media.Root == "" {
		errs = append(errs, errors.New("media.root is required"))
	}
	if c.Media.ScanInterval < 0 {
		errs = append(errs, fmt.Errorf("media.scan_interval must not be negative: %s", c.Media.ScanInterval))
	}
	if c.Media.FPS <= 0 {
		errs = append(errs, fmt.Errorf("media.fps must be positive: %v", c.Media.FPS))
	}
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	switch strings.ToUpper(c.Database.Synchronous) {
	case "", "OFF", "NORMAL", "FULL", "EXTRA":
	default:
		errs = append(errs, fmt.Errorf("database.synchronous must be OFF, NORMAL, FULL or EXTRA: %q", c.Database.Synchronous))
	}
	if c.Ads.Enabled && c.Ads.ScriptURL == "" {
		errs = append(errs, errors.New("ads.script_url is required when ads are enabled"))
	}
	if c.Caption.Quality < 1 || c.Caption.Quality > 100 {
		errs = append(errs, fmt.Errorf("caption.quality must be between 1 and 100: %d", c.Caption.Quality))
	}
	if c.Collage.Border < 0 {
		errs = append(errs, fmt.Errorf("collage.border must not be negative: %d", c.Collage.Border))
	}
	if c.Collage.MaxSlots < 1 {
		errs = append(errs, fmt.Errorf("collage.max_slots must be at least 1: %d", c.Collage.MaxSlots))
	}
	if _, err := c.LogLevel(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// LogLevel parses Log.Level.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}
