package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `server:
  addr: ":9090"
  shutdown_timeout: "10s"
  allowed_origins: ["https://rrhh.example.com"]
store:
  driver: mongo
  mongo_uri: "mongodb://localhost:27017"
  mongo_database: leave_prod
auth:
  jwt_secret: s3cret
notify:
  locale: en
  send_timeout: "2s"
sweep:
  interval: "15m"
  parallelism: 8
log:
  level: debug
  format: JSON
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, []string{"https://rrhh.example.com"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, DriverMongo, cfg.Store.Driver)
	assert.Equal(t, "leave_prod", cfg.Store.MongoDatabase)
	assert.Equal(t, "en", cfg.Notify.Locale)
	assert.Equal(t, 2*time.Second, cfg.Notify.SendTimeout)
	// Unset fields keep their defaults.
	assert.Equal(t, 10*time.Second, cfg.Notify.HandshakeTimeout)
	assert.Equal(t, "leave-engine", cfg.Auth.Issuer)
	assert.Equal(t, DefaultTimezone, cfg.Timezone)
	assert.Equal(t, 15*time.Minute, cfg.Sweep.Interval)
	assert.Equal(t, 8, cfg.Sweep.Parallelism)
	assert.Equal(t, "json", cfg.Log.Format)

	level, err := cfg.Log.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("LEAVE_JWT_SECRET", "from-env")
	t.Setenv("LEAVE_STORE_DRIVER", "memory")
	t.Setenv("LEAVE_SWEEP_ENABLED", "false")
	t.Setenv("LEAVE_TIMEZONE", "UTC")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	assert.Equal(t, DriverMemory, cfg.Store.Driver)
	assert.False(t, cfg.Sweep.Enabled)
	assert.Equal(t, "UTC", cfg.Timezone)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"missing secret", `store: {driver: memory}`, "auth.jwt_secret"},
		{"unknown driver", "auth: {jwt_secret: x}\nstore: {driver: redis}", "store.driver"},
		{"mongo without uri", "auth: {jwt_secret: x}\nstore: {driver: mongo}", "store.mongo_uri"},
		{"bad duration", "auth: {jwt_secret: x}\nnotify: {send_timeout: soon}", "notify.send_timeout"},
		{"negative duration", "auth: {jwt_secret: x}\nserver: {shutdown_timeout: -1s}", "server.shutdown_timeout"},
		{"bad timezone", "auth: {jwt_secret: x}\ntimezone: Mars/Olympus", "timezone"},
		{"bad log format", "auth: {jwt_secret: x}\nlog: {format: xml}", "log.format"},
		{"bad log level", "auth: {jwt_secret: x}\nlog: {level: loud}", "log.level"},
		{"sweep without interval", "auth: {jwt_secret: x}\nsweep: {enabled: true, interval: \"\"}", "sweep.interval"},
		{"invalid yaml", "auth: [", "parse yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestApplyEnv_BadBool(t *testing.T) {
	cfg := Default()
	err := cfg.applyEnv(func(key string) (string, bool) {
		if key == "LEAVE_SWEEP_ENABLED" {
			return "maybe", true
		}
		return "", false
	})
	require.Error(t, err)
}
