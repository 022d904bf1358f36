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

func env(vars map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}
}

func TestParse_Full(t *testing.T) {
	c, err := Parse([]byte(`
server:
  url: https://chat.example.com
  token: abc
  timeout: 5s
push:
  transport: nats
  nats:
    url: nats://localhost:4222
    prefix: acme
uploads:
  max_size: 10MB
  orphan_ttl: 3600
cache:
  path: /tmp/c.db
mutations: rest
logging:
  level: debug
  format: json
metrics:
  address: ":9100"
`))
	require.NoError(t, err)
	require.NoError(t, c.Validate())

	assert.Equal(t, "https://chat.example.com", c.Server.URL)
	assert.Equal(t, 5*time.Second, c.Server.Timeout.Std())
	assert.Equal(t, TransportNATS, c.Push.Transport)
	assert.Equal(t, "acme", c.Push.NATS.Prefix)
	assert.Equal(t, SizeBytes(10_000_000), c.Uploads.MaxSize)
	assert.Equal(t, time.Hour, c.Uploads.OrphanTTL.Std())
	assert.Equal(t, MutationsREST, c.Mutations)
	assert.Equal(t, ":9100", c.Metrics.Address)
}

func TestParse_EmptyKeepsDefaults(t *testing.T) {
	c, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
}

func TestParse_RejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("server:\n  uri: http://typo\n"))
	assert.Error(t, err)
}

func TestParse_RejectsBadSize(t *testing.T) {
	_, err := Parse([]byte("uploads:\n  max_size: lots\n"))
	assert.ErrorContains(t, err, "invalid size value")
}

func TestApplyEnv(t *testing.T) {
	c := Default()
	err := c.ApplyEnv(env(map[string]string{
		"CONVSYNC_SERVER_URL":        "http://localhost:8000",
		"CONVSYNC_TOKEN":             " tok ",
		"CONVSYNC_UPLOAD_MAX_SIZE":   "1 MiB",
		"CONVSYNC_ORPHAN_TTL":        "90m",
		"CONVSYNC_CACHE_DISABLED":    "true",
		"CONVSYNC_LOG_LEVEL":         "warn",
		"CONVSYNC_MUTATIONS":         "rest",
		"CONVSYNC_PUSH_URL":          "ws://localhost:8000/ws/1",
		"CONVSYNC_UNRELATED_SETTING": "ignored",
	}))
	require.NoError(t, err)
	require.NoError(t, c.Validate())

	assert.Equal(t, "tok", c.Server.Token)
	assert.Equal(t, SizeBytes(1<<20), c.Uploads.MaxSize)
	assert.Equal(t, 90*time.Minute, c.Uploads.OrphanTTL.Std())
	assert.True(t, c.Cache.Disabled)
	assert.Equal(t, "warn", c.Logging.Level)
}

func TestApplyEnv_ReportsEveryBadValue(t *testing.T) {
	err := Default().ApplyEnv(env(map[string]string{
		"CONVSYNC_TIMEOUT":         "soon",
		"CONVSYNC_UPLOAD_MAX_SIZE": "big",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CONVSYNC_TIMEOUT")
	assert.Contains(t, err.Error(), "CONVSYNC_UPLOAD_MAX_SIZE")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing url", func(c *Config) { c.Server.URL = "" }, "server.url is required"},
		{"bad scheme", func(c *Config) { c.Server.URL = "ftp://x" }, "must be an http(s) URL"},
		{"bad push url", func(c *Config) { c.Push.URL = "http://x/ws/1" }, "must be a ws(s) URL"},
		{"unknown transport", func(c *Config) { c.Push.Transport = "carrier-pigeon" }, "push.transport"},
		{"nats without url", func(c *Config) { c.Push.Transport = TransportNATS }, "push.nats.url is required"},
		{"nats wildcard prefix", func(c *Config) {
			c.Push.Transport = TransportNATS
			c.Push.NATS.URL = "nats://x"
			c.Push.NATS.Prefix = "chat.>"
		}, "not a valid subject token"},
		{"cache without path", func(c *Config) { c.Cache.Path = "" }, "cache.path is required"},
		{"mutations", func(c *Config) { c.Mutations = "carrier" }, "mutations"},
		{"level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"negative ttl", func(c *Config) { c.Uploads.OrphanTTL = -1 }, "orphan_ttl"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			c.Server.URL = "http://localhost:8000"
			tt.mutate(c)
			err := c.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_CacheDisabledNeedsNoPath(t *testing.T) {
	c := Default()
	c.Server.URL = "http://localhost:8000"
	c.Cache.Path = ""
	c.Cache.Disabled = true
	assert.NoError(t, c.Validate())
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "convsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  url: http://file:8000\nmutations: rest\n"), 0o600))
	t.Setenv("CONVSYNC_SERVER_URL", "http://env:8000")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://env:8000", c.Server.URL)
	assert.Equal(t, MutationsREST, c.Mutations)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "read config")
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, LoadEnvFile(filepath.Join(dir, "missing.env")))

	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("CONVSYNC_TEST_DOTENV=from-file\n"), 0o600))
	t.Setenv("CONVSYNC_TEST_DOTENV", "")
	os.Unsetenv("CONVSYNC_TEST_DOTENV")

	require.NoError(t, LoadEnvFile(path))
	assert.Equal(t, "from-file", os.Getenv("CONVSYNC_TEST_DOTENV"))
}

func TestParseLevel(t *testing.T) {
	l, err := ParseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, l)

	_, err = ParseLevel("verbose")
	assert.Error(t, err)
}

func TestSizeAndDurationStrings(t *testing.T) {
	assert.Equal(t, "1.0 MiB", SizeBytes(1<<20).String())
	assert.Equal(t, "1m30s", Duration(90*time.Second).String())

	d, err := ParseDuration("2.5")
	require.NoError(t, err)
	assert.Equal(t, 2500*time.Millisecond, d.Std())
}
