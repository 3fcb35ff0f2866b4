package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"rental-tracker/filter"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPath           = "config.yaml"
	DefaultRequestTimeout = 10 * time.Second
	DefaultUserAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	DefaultServerAddr     = ":8080"
)

// Broker is one configured search. Query parameters are added to URL.
type Broker struct {
	Name    string            `yaml:"name"`
	URL     string            `yaml:"url"`
	Query   map[string]string `yaml:"query"`
	Filters []filter.RawRule  `yaml:"filters"`
}

// ServerConfig configures the dashboard API
type ServerConfig struct {
	Addr     string `yaml:"addr"`
	AuthUser string `yaml:"-"`
	AuthPass string `yaml:"-"`
}

// Config represents the tracker configuration
type Config struct {
	Store          string           `yaml:"store"`
	RequestTimeout time.Duration    `yaml:"request_timeout"`
	UserAgent      string           `yaml:"user_agent"`
	MaxPages       int              `yaml:"max_pages"`
	Interval       time.Duration    `yaml:"interval"`
	Brokers        []Broker         `yaml:"brokers"`
	Filters        []filter.RawRule `yaml:"filters"`
	Notifications  []string         `yaml:"notifications"`
	Server         ServerConfig     `yaml:"server"`
}

// LoadConfig loads configuration from a YAML file. Unset fields keep
// their defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := GetDefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// GetDefaultConfig returns a default configuration
func GetDefaultConfig() *Config {
	return &Config{
		RequestTimeout: DefaultRequestTimeout,
		UserAgent:      DefaultUserAgent,
		Server: ServerConfig{
			Addr: DefaultServerAddr,
		},
	}
}

// Load reads .env (if present), the config file at path (defaults when it
// does not exist) and the environment overrides, then validates the result.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg, err := LoadConfig(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg = GetDefaultConfig()
	} else if err != nil {
		return nil, err
	}

	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv applies the environment overrides. TG_KEY and CHAT_ID together
// add a Telegram channel; AUTH_USER and AUTH_PASS enable API basic auth.
func (c *Config) ApplyEnv() {
	token := strings.TrimSpace(os.Getenv("TG_KEY"))
	chatID := strings.TrimSpace(os.Getenv("CHAT_ID"))
	if token != "" && chatID != "" {
		c.Notifications = append(c.Notifications, fmt.Sprintf("tgram://%s/%s", token, chatID))
	}

	if user := os.Getenv("AUTH_USER"); user != "" {
		c.Server.AuthUser = user
		c.Server.AuthPass = os.Getenv("AUTH_PASS")
	}
}

// Validate checks the configuration, including that every filter setting
// names a known rule with a valid value.
func (c *Config) Validate() error {
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %s", c.RequestTimeout)
	}
	if c.MaxPages < 0 {
		return fmt.Errorf("max_pages must not be negative, got %d", c.MaxPages)
	}
	if c.Interval < 0 {
		return fmt.Errorf("interval must not be negative, got %s", c.Interval)
	}

	if _, err := filter.Normalize(c.Filters); err != nil {
		return fmt.Errorf("filters: %w", err)
	}
	for i, b := range c.Brokers {
		if strings.TrimSpace(b.URL) == "" {
			return fmt.Errorf("broker %d (%s): url is required", i+1, b.Name)
		}
		if b.Name == "" {
			c.Brokers[i].Name = b.URL
		}
		if _, err := filter.Normalize(b.Filters); err != nil {
			return fmt.Errorf("broker %s filters: %w", b.Name, err)
		}
	}
	return nil
}
