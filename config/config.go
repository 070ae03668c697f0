/*
config.go - Server configuration

PURPOSE:
  Loads the YAML config file, applies LEAVE_* environment overrides, fills
  defaults and validates the result. Durations are written as Go duration
  strings ("30s", "1h") and parsed into the typed fields.

ENVIRONMENT:
  LEAVE_SERVER_ADDR, LEAVE_STORE_DRIVER, LEAVE_SQLITE_PATH,
  LEAVE_MONGODB_URI, LEAVE_MONGODB_DATABASE, LEAVE_JWT_SECRET,
  LEAVE_JWT_ISSUER, LEAVE_LOCALE, LEAVE_TIMEZONE, LEAVE_LOG_LEVEL,
  LEAVE_LOG_FORMAT, LEAVE_SWEEP_ENABLED

SEE ALSO:
  - cmd/server/main.go: flags layered on top
*/
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"

	DefaultTimezone = "America/Guayaquil"
)

type Config struct {
	Server   ServerConfig `yaml:"server"`
	Store    StoreConfig  `yaml:"store"`
	Auth     AuthConfig   `yaml:"auth"`
	Notify   NotifyConfig `yaml:"notify"`
	Sweep    SweepConfig  `yaml:"sweep"`
	Log      LogConfig    `yaml:"log"`
	Timezone string       `yaml:"timezone"`
}

type ServerConfig struct {
	Addr               string        `yaml:"addr"`
	AllowedOrigins     []string      `yaml:"allowed_origins"`
	ShutdownTimeout    time.Duration `yaml:"-"`
	ShutdownTimeoutRaw string        `yaml:"shutdown_timeout"`
}

type StoreConfig struct {
	Driver        string `yaml:"driver"`
	SQLitePath    string `yaml:"sqlite_path"`
	MongoURI      string `yaml:"mongo_uri"`
	MongoDatabase string `yaml:"mongo_database"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
}

type NotifyConfig struct {
	Locale              string        `yaml:"locale"`
	HandshakeTimeout    time.Duration `yaml:"-"`
	HandshakeTimeoutRaw string        `yaml:"handshake_timeout"`
	SendTimeout         time.Duration `yaml:"-"`
	SendTimeoutRaw      string        `yaml:"send_timeout"`
}

type SweepConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Parallelism int           `yaml:"parallelism"`
	Interval    time.Duration `yaml:"-"`
	IntervalRaw string        `yaml:"interval"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:               ":8080",
			AllowedOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			ShutdownTimeoutRaw: "30s",
		},
		Store: StoreConfig{
			Driver:        DriverSQLite,
			SQLitePath:    "leave.db",
			MongoDatabase: "leave",
		},
		Auth: AuthConfig{Issuer: "leave-engine"},
		Notify: NotifyConfig{
			Locale:              "es",
			HandshakeTimeoutRaw: "10s",
			SendTimeoutRaw:      "5s",
		},
		Sweep: SweepConfig{
			Enabled:     true,
			Parallelism: 4,
			IntervalRaw: "1h",
		},
		Log:      LogConfig{Level: "info", Format: "text"},
		Timezone: DefaultTimezone,
	}
}

// Load reads path over the defaults. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("config: parse yaml: %w", err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"LEAVE_SERVER_ADDR":      &c.Server.Addr,
		"LEAVE_STORE_DRIVER":     &c.Store.Driver,
		"LEAVE_SQLITE_PATH":      &c.Store.SQLitePath,
		"LEAVE_MONGODB_URI":      &c.Store.MongoURI,
		"LEAVE_MONGODB_DATABASE": &c.Store.MongoDatabase,
		"LEAVE_JWT_SECRET":       &c.Auth.JWTSecret,
		"LEAVE_JWT_ISSUER":       &c.Auth.Issuer,
		"LEAVE_LOCALE":           &c.Notify.Locale,
		"LEAVE_TIMEZONE":         &c.Timezone,
		"LEAVE_LOG_LEVEL":        &c.Log.Level,
		"LEAVE_LOG_FORMAT":       &c.Log.Format,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	if v, ok := lookup("LEAVE_SWEEP_ENABLED"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: LEAVE_SWEEP_ENABLED: %w", err)
		}
		c.Sweep.Enabled = b
	}
	return nil
}

// Validate checks required fields and parses durations. It must run again
// after changing any *Raw field.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("config: server.addr must be set")
	}

	switch c.Store.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("config: store.sqlite_path must be set for the sqlite driver")
		}
	case DriverMongo:
		if c.Store.MongoURI == "" {
			return fmt.Errorf("config: store.mongo_uri must be set for the mongo driver")
		}
		if c.Store.MongoDatabase == "" {
			return fmt.Errorf("config: store.mongo_database must be set for the mongo driver")
		}
	default:
		return fmt.Errorf("config: unknown store.driver %q", c.Store.Driver)
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("config: auth.jwt_secret must be set")
	}

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("config: timezone: %w", err)
	}

	if c.Sweep.Parallelism <= 0 {
		c.Sweep.Parallelism = 1
	}

	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
		c.Log.Format = strings.ToLower(c.Log.Format)
	default:
		return fmt.Errorf("config: log.format must be text or json, got %q", c.Log.Format)
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}

	durations := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"server.shutdown_timeout", c.Server.ShutdownTimeoutRaw, &c.Server.ShutdownTimeout},
		{"notify.handshake_timeout", c.Notify.HandshakeTimeoutRaw, &c.Notify.HandshakeTimeout},
		{"notify.send_timeout", c.Notify.SendTimeoutRaw, &c.Notify.SendTimeout},
		{"sweep.interval", c.Sweep.IntervalRaw, &c.Sweep.Interval},
	}
	for _, d := range durations {
		v, err := parseDurationAllowEmpty(d.raw)
		if err != nil {
			return fmt.Errorf("config: %s: %w", d.name, err)
		}
		if v < 0 {
			return fmt.Errorf("config: %s must not be negative", d.name)
		}
		*d.dst = v
	}
	if c.Sweep.Enabled && c.Sweep.Interval == 0 {
		return fmt.Errorf("config: sweep.interval must be set when the sweep is enabled")
	}
	return nil
}

// SlogLevel maps the configured level name.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("config: log.level: %w", err)
	}
	return level, nil
}

func parseDurationAllowEmpty(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	return time.ParseDuration(raw)
}
