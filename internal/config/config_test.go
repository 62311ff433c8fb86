package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() error = %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memesrc.yaml")
	data := `
server:
  addr: ":9090"
  public_url: "https://memesrc.example"
media:
  root: /srv/frames
  scan_interval: 30m
billing:
  supported_regions: [US, DE]
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Addr != ":9090" || cfg.Server.PublicURL != "https://memesrc.example" {
		t.Fatalf("server = %+v", cfg.Server)
	}
	if cfg.Media.Root != "/srv/frames" || cfg.Media.ScanInterval != 30*time.Minute {
		t.Fatalf("media = %+v", cfg.Media)
	}
	// untouched sections keep their defaults
	if cfg.Database.Path != Default().Database.Path {
		t.Fatalf("database.path = %q", cfg.Database.Path)
	}
	if strings.Join(cfg.Billing.SupportedRegions, ",") != "US,DE" {
		t.Fatalf("regions = %v", cfg.Billing.SupportedRegions)
	}
	level, err := cfg.LogLevel()
	if err != nil || level != slog.LevelDebug {
		t.Fatalf("LogLevel() = %v, %v", level, err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"MEMESRC_ADDR":              ":7000",
		"MEMESRC_ROOT":              "/data/frames",
		"MEMESRC_SCAN_INTERVAL":     "0s",
		"MEMESRC_ADS_ENABLED":       "true",
		"MEMESRC_ADS_SCRIPT_URL":    "https://ads.example/tag.js",
		"MEMESRC_SUPPORTED_REGIONS": "US,FR",
	}
	cfg := Default()
	if err := cfg.applyEnv(func(k string) (string, bool) { v, ok := env[k]; return v, ok }); err != nil {
		t.Fatalf("applyEnv() error = %v", err)
	}
	if cfg.Server.Addr != ":7000" || cfg.Media.Root != "/data/frames" || cfg.Media.ScanInterval != 0 {
		t.Fatalf("cfg = %+v", cfg)
	}
	if !cfg.Ads.Enabled || cfg.Ads.ScriptURL == "" {
		t.Fatalf("ads = %+v", cfg.Ads)
	}
	if len(cfg.Billing.SupportedRegions) != 2 {
		t.Fatalf("regions = %v", cfg.Billing.SupportedRegions)
	}

	bad := Default()
	err := bad.applyEnv(func(k string) (string, bool) {
		if k == "MEMESRC_SCAN_INTERVAL" {
			return "soon", true
		}
		return "", false
	})
	if err == nil || !strings.Contains(err.Error(), "MEMESRC_SCAN_INTERVAL") {
		t.Fatalf("applyEnv() error = %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty addr", func(c *Config) { c.Server.Addr = "" }},
		{"empty root", func(c *Config) { c.Media.Root = "" }},
		{"negative scan interval", func(c *Config) { c.Media.ScanInterval = -time.Second }},
		{"zero fps", func(c *Config) { c.Media.FPS = 0 }},
		{"bad synchronous", func(c *Config) { c.Database.Synchronous = "SOMETIMES" }},
		{"ads without script", func(c *Config) { c.Ads.Enabled = true }},
		{"bad quality", func(c *Config) { c.Caption.Quality = 0 }},
		{"no collage slots", func(c *Config) { c.Collage.MaxSlots = 0 }},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("Validate() succeeded, want error")
			}
		})
	}
}
