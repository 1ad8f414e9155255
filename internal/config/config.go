package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is stripped from environment variables before they are mapped
// onto config keys: TASKMASTER_PUSH_VAPID_PRIVATE_KEY -> push.vapid_private_key.
const EnvPrefix = "TASKMASTER_"

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Push      PushConfig      `koanf:"push"`
	Cron      CronConfig      `koanf:"cron"`
	Reminder  ReminderConfig  `koanf:"reminder"`
	Redis     RedisConfig     `koanf:"redis"`
	RateLimit RateLimitConfig `koanf:"ratelimit"`
	Log       LogConfig       `koanf:"log"`
}

// ServerConfig holds the listen address and the public origin that relative
// reminder links resolve against.
type ServerConfig struct {
	Addr    string `koanf:"addr"`
	BaseURL string `koanf:"base_url"`
}

type DatabaseConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver  string `koanf:"driver"`
	DSN     string `koanf:"dsn"`
	DataDir string `koanf:"data_dir"`
}

type PushConfig struct {
	VAPIDPublicKey  string        `koanf:"vapid_public_key"`
	VAPIDPrivateKey string        `koanf:"vapid_private_key"`
	Subject         string        `koanf:"subject"`
	TTL             int           `koanf:"ttl"`
	Urgency         string        `koanf:"urgency"`
	Timeout         time.Duration `koanf:"timeout"`
}

type CronConfig struct {
	Secret string `koanf:"secret"`
	// Interval enables the in-process scheduler when non-zero.
	Interval time.Duration `koanf:"interval"`
	Timezone string        `koanf:"timezone"`
}

type ReminderConfig struct {
	Concurrency int    `koanf:"concurrency"`
	Title       string `koanf:"title"`
	Icon        string `koanf:"icon"`
	Badge       string `koanf:"badge"`
	URL         string `koanf:"url"`
}

// RedisConfig configures the optional identity cache. Timeouts are short and
// MaxRetries of -1 disables retries, so a stalled Redis cannot hold up requests.
type RedisConfig struct {
	Addr         string        `koanf:"addr"`
	Password     string        `koanf:"password"`
	DB           int           `koanf:"db"`
	TTL          time.Duration `koanf:"ttl"`
	DialTimeout  time.Duration `koanf:"dial_timeout"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
	MaxRetries   int           `koanf:"max_retries"`
}

type RateLimitConfig struct {
	RPS   float64 `koanf:"rps"`
	Burst int     `koanf:"burst"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:    ":8080",
			BaseURL: "http://localhost:8080",
		},
		Database: DatabaseConfig{
			Driver:  "sqlite",
			DataDir: "data",
		},
		Push: PushConfig{
			Subject: "admin@example.com",
			TTL:     3600,
			Urgency: "normal",
			Timeout: 10 * time.Second,
		},
		Cron: CronConfig{
			Timezone: "Local",
		},
		Reminder: ReminderConfig{
			Concurrency: 4,
			Title:       "TaskMaster Reminder",
			Icon:        "/icons/icon-192x192.png",
			Badge:       "/icons/icon-72x72.png",
			URL:         "/",
		},
		Redis: RedisConfig{
			TTL:          24 * time.Hour,
			DialTimeout:  200 * time.Millisecond,
			ReadTimeout:  200 * time.Millisecond,
			WriteTimeout: 200 * time.Millisecond,
			MaxRetries:   -1,
		},
		RateLimit: RateLimitConfig{
			RPS:   5,
			Burst: 10,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads defaults, then the YAML file at path (skipped when path is
// empty or missing), then TASKMASTER_* environment variables.
func Load(path string) (Config, error) {
	k := koanf.New(".")

	if path != "" {
		content, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		case !os.IsNotExist(err):
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("load env: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// envKey maps SECTION_FIELD_NAME onto section.field_name.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, field, ok := strings.Cut(lower, "_")
	if !ok {
		return lower
	}
	return section + "." + field
}

func (c Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.Database.Driver)
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		return fmt.Errorf("log.format must be json or console, got %q", c.Log.Format)
	}
	if c.Cron.Interval < 0 {
		return fmt.Errorf("cron.interval must not be negative")
	}
	if c.Server.BaseURL != "" {
		if u, err := url.Parse(c.Server.BaseURL); err != nil || !u.IsAbs() {
			return fmt.Errorf("server.base_url must be an absolute URL, got %q", c.Server.BaseURL)
		}
	}
	if c.Reminder.Concurrency < 1 {
		return fmt.Errorf("reminder.concurrency must be at least 1")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves cron.timezone; "" and "Local" mean the process zone.
func (c Config) Location() (*time.Location, error) {
	if c.Cron.Timezone == "" || c.Cron.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Cron.Timezone)
	if err != nil {
		return nil, fmt.Errorf("cron.timezone: %w", err)
	}
	return loc, nil
}

// ResolveURL makes ref absolute against server.base_url. Absolute refs, and
// every ref when no base URL is set, are returned unchanged.
func (c Config) ResolveURL(ref string) string {
	if c.Server.BaseURL == "" || ref == "" {
		return ref
	}
	base, err := url.Parse(c.Server.BaseURL)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil || r.IsAbs() {
		return ref
	}
	return base.ResolveReference(r).String()
}

// PushEnabled reports whether a VAPID key pair has been configured.
func (c Config) PushEnabled() bool {
	return c.Push.VAPIDPublicKey != "" && c.Push.VAPIDPrivateKey != ""
}
