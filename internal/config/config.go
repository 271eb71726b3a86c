// Package config loads the storefront configuration from a YAML file,
// environment variables and built-in defaults, in increasing priority.
//
// Environment variables use the STOREFRONT_ prefix with underscores standing
// in for key separators, e.g. STOREFRONT_NOTIFY_INTERVAL=30s sets
// notify.interval.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of environment variables read by Load.
const EnvPrefix = "STOREFRONT_"

// Defaults applied before any other source.
const (
	DefaultHTTPAddr          = ":8080"
	DefaultMongoDBName       = "storefront"
	DefaultSessionCookie     = "sf_session"
	DefaultSessionTTL        = 7 * 24 * time.Hour
	DefaultUploadField       = "image"
	DefaultUploadDir         = "data/images"
	DefaultNotifyInterval    = 10 * time.Second
	DefaultNotifyConcurrency = 4
)

var (
	// ErrMissingMongoURI is returned by Validate if no store URI is configured.
	ErrMissingMongoURI = errors.New("mongo.uri is required")

	// ErrMissingSessionSecret is returned by Validate if no session secret is configured.
	ErrMissingSessionSecret = errors.New("session.secret is required")
)

// HTTP holds the listener configuration.
type HTTP struct {
	Addr string `koanf:"addr"`
}

// Mongo holds the store connection configuration.
type Mongo struct {
	URI    string `koanf:"uri"`
	DBName string `koanf:"db"`
}

// Session holds session cookie and secret configuration.
type Session struct {
	// Secret is the key material CSRF tokens are derived from.
	Secret string `koanf:"secret"`

	CookieName string        `koanf:"cookie"`
	TTL        time.Duration `koanf:"ttl"`

	// Secure marks the session cookie as HTTPS-only.
	Secure bool `koanf:"secure"`
}

// Upload holds upload gate configuration.
type Upload struct {
	// Field is the multipart form field uploads are read from.
	Field string `koanf:"field"`

	// Dir is the directory accepted files are stored under.
	Dir string `koanf:"dir"`

	// RejectLoudly makes the gate answer disallowed uploads with a client
	// error instead of silently dropping them.
	RejectLoudly bool `koanf:"reject_loudly"`
}

// Notify holds notification dispatcher configuration.
type Notify struct {
	// Interval between dispatcher ticks.
	Interval time.Duration `koanf:"interval"`

	// Concurrency bounds parallel mail sends within one tick.
	Concurrency int `koanf:"concurrency"`
}

// SMTP holds mail provider configuration.
type SMTP struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	From     string `koanf:"from"`

	// RatePerSec caps outbound sends per second. Zero means no cap.
	RatePerSec float64 `koanf:"rate_per_sec"`
}

// Log holds logging configuration.
type Log struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Config is the root configuration of the storefront process.
type Config struct {
	HTTP    HTTP    `koanf:"http"`
	Mongo   Mongo   `koanf:"mongo"`
	Session Session `koanf:"session"`
	Upload  Upload  `koanf:"upload"`
	Notify  Notify  `koanf:"notify"`
	SMTP    SMTP    `koanf:"smtp"`
	Log     Log     `koanf:"log"`
}

func defaults() map[string]any {
	return map[string]any{
		"http.addr":          DefaultHTTPAddr,
		"mongo.db":           DefaultMongoDBName,
		"session.cookie":     DefaultSessionCookie,
		"session.ttl":        DefaultSessionTTL,
		"upload.field":       DefaultUploadField,
		"upload.dir":         DefaultUploadDir,
		"notify.interval":    DefaultNotifyInterval,
		"notify.concurrency": DefaultNotifyConcurrency,
		"smtp.port":          587,
		"log.level":          "info",
		"log.format":         "json",
	}
}

// Load reads the configuration. path may be empty, in which case only
// defaults and environment variables apply.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// STOREFRONT_SMTP_HOST -> smtp.host
	transform := func(s string) string {
		s = strings.TrimPrefix(s, EnvPrefix)
		s = strings.ToLower(s)
		return strings.ReplaceAll(s, "_", ".")
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", transform), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Validate reports configuration the process cannot start without.
func (c *Config) Validate() error {
	if c.Mongo.URI == "" {
		return ErrMissingMongoURI
	}
	if c.Session.Secret == "" {
		return ErrMissingSessionSecret
	}
	if c.Notify.Interval <= 0 {
		return fmt.Errorf("notify.interval must be positive, got %v", c.Notify.Interval)
	}
	if c.Notify.Concurrency <= 0 {
		return fmt.Errorf("notify.concurrency must be positive, got %d", c.Notify.Concurrency)
	}
	return nil
}
