package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"rental-tracker/filter"
)

const sampleConfig = `
store: listings.db
request_timeout: 5s
max_pages: 20
interval: 15m
brokers:
  - name: somerville
    url: https://example.com/rentals/search
    query:
      city: Somerville
      beds_min: "2"
    filters:
      - name: rentMax
        value: "3200"
filters:
  - name: excludeInAddress
    value: Allston,Brighton
notifications:
  - json://localhost:9000/notify
server:
  addr: ":9090"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func clearEnv(t *testing.T) {
	for _, key := range []string{"TG_KEY", "CHAT_ID", "AUTH_USER", "AUTH_PASS"} {
		t.Setenv(key, "")
	}
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}

	if cfg.Store != "listings.db" {
		t.Errorf("Store = %q", cfg.Store)
	}
	if cfg.RequestTimeout != 5*time.Second {
		t.Errorf("RequestTimeout = %s, want 5s", cfg.RequestTimeout)
	}
	if cfg.Interval != 15*time.Minute {
		t.Errorf("Interval = %s, want 15m", cfg.Interval)
	}
	if cfg.MaxPages != 20 {
		t.Errorf("MaxPages = %d, want 20", cfg.MaxPages)
	}
	if cfg.UserAgent != DefaultUserAgent {
		t.Errorf("UserAgent should keep its default, got %q", cfg.UserAgent)
	}
	if len(cfg.Brokers) != 1 {
		t.Fatalf("got %d brokers, want 1", len(cfg.Brokers))
	}
	b := cfg.Brokers[0]
	if b.Name != "somerville" || b.Query["city"] != "Somerville" || b.Query["beds_min"] != "2" {
		t.Errorf("unexpected broker %+v", b)
	}
	if len(b.Filters) != 1 || b.Filters[0] != (filter.RawRule{Name: "rentMax", Value: "3200"}) {
		t.Errorf("unexpected broker filters %+v", b.Filters)
	}
	if len(cfg.Filters) != 1 || cfg.Filters[0].Value != "Allston,Brighton" {
		t.Errorf("unexpected filters %+v", cfg.Filters)
	}
	if cfg.Server.Addr != ":9090" {
		t.Errorf("Server.Addr = %q", cfg.Server.Addr)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.RequestTimeout != DefaultRequestTimeout || cfg.Server.Addr != DefaultServerAddr {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if len(cfg.Brokers) != 0 || len(cfg.Notifications) != 0 {
		t.Errorf("expected no brokers or notifications, got %+v", cfg)
	}
}

func TestLoadBadYAML(t *testing.T) {
	clearEnv(t)
	if _, err := Load(writeConfig(t, "brokers: [")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestApplyEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("TG_KEY", "123:abc")
	t.Setenv("CHAT_ID", "-42")
	t.Setenv("AUTH_USER", "admin")
	t.Setenv("AUTH_PASS", "hunter2")

	cfg, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(cfg.Notifications) != 2 || cfg.Notifications[1] != "tgram://123:abc/-42" {
		t.Errorf("Notifications = %v", cfg.Notifications)
	}
	if cfg.Server.AuthUser != "admin" || cfg.Server.AuthPass != "hunter2" {
		t.Errorf("auth not applied: %+v", cfg.Server)
	}
}

func TestApplyEnvNeedsTokenAndChat(t *testing.T) {
	clearEnv(t)
	t.Setenv("TG_KEY", "123:abc")

	cfg := GetDefaultConfig()
	cfg.ApplyEnv()
	if len(cfg.Notifications) != 0 {
		t.Errorf("Telegram channel added without CHAT_ID: %v", cfg.Notifications)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(c *Config)
		wantErr error
		ok      bool
	}{
		{"defaults", func(c *Config) {}, nil, true},
		{"zero timeout", func(c *Config) { c.RequestTimeout = 0 }, nil, false},
		{"negative pages", func(c *Config) { c.MaxPages = -1 }, nil, false},
		{"negative interval", func(c *Config) { c.Interval = -time.Second }, nil, false},
		{"broker without url", func(c *Config) { c.Brokers = []Broker{{Name: "x"}} }, nil, false},
		{"unknown filter", func(c *Config) { c.Filters = []filter.RawRule{{Name: "pets", Value: "yes"}} }, filter.ErrUnknownRule, false},
		{"bad broker filter", func(c *Config) {
			c.Brokers = []Broker{{Name: "x", URL: "https://example.com", Filters: []filter.RawRule{{Name: "bedsMin", Value: "many"}}}}
		}, filter.ErrInvalidValue, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.ok {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidateNamesBrokers(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Brokers = []Broker{{URL: "https://example.com/search"}}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if cfg.Brokers[0].Name != "https://example.com/search" {
		t.Errorf("Name = %q, want the URL", cfg.Brokers[0].Name)
	}
}
