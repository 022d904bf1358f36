// Package config loads the client configuration from a YAML file, an
// optional .env file and CONVSYNC_* environment variables, in increasing
// order of precedence. Command-line flags are applied on top by the CLI.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Push transports.
const (
	TransportWebSocket = "websocket"
	TransportNATS      = "nats"
)

// Mutation routes.
const (
	MutationsSocket = "socket"
	MutationsREST   = "rest"
)

// Config is the client configuration.
type Config struct {
	Server struct {
		URL     string   `yaml:"url"`
		Token   string   `yaml:"token"`
		Timeout Duration `yaml:"timeout"`
	} `yaml:"server"`

	Push struct {
		Transport string `yaml:"transport"` // websocket | nats
		URL       string `yaml:"url"`       // websocket endpoint; derived from server.url when empty
		NATS      struct {
			URL    string `yaml:"url"`
			Prefix string `yaml:"prefix"`
		} `yaml:"nats"`
	} `yaml:"push"`

	Uploads struct {
		MaxSize   SizeBytes `yaml:"max_size"`
		OrphanTTL Duration  `yaml:"orphan_ttl"`
	} `yaml:"uploads"`

	Cache struct {
		Path     string `yaml:"path"`
		Disabled bool   `yaml:"disabled"`
	} `yaml:"cache"`

	Mutations string `yaml:"mutations"` // socket | rest

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // text | json
	} `yaml:"logging"`

	Metrics struct {
		Address string `yaml:"address"` // empty disables the /metrics endpoint
	} `yaml:"metrics"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	c := &Config{}
	c.Server.Timeout = Duration(15 * time.Second)
	c.Push.Transport = TransportWebSocket
	c.Push.NATS.Prefix = "chat"
	c.Uploads.MaxSize = 25 * 1000 * 1000
	c.Uploads.OrphanTTL = Duration(24 * time.Hour)
	c.Cache.Path = "convsync.db"
	c.Mutations = MutationsSocket
	c.Logging.Level = "info"
	c.Logging.Format = "text"
	return c
}

// Parse decodes YAML over the defaults. Unknown keys are an error.
func Parse(data []byte) (*Config, error) {
	c := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return c, nil
}

// Load reads the YAML file at path (defaults only when path is empty), then
// applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if c, err = Parse(data); err != nil {
			return nil, err
		}
	}
	if err := c.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment.
// Variables already set win. A missing file is not an error.
func LoadEnvFile(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides fields from CONVSYNC_* variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	var errs []error

	str("CONVSYNC_SERVER_URL", &c.Server.URL)
	str("CONVSYNC_TOKEN", &c.Server.Token)
	if v, ok := lookup("CONVSYNC_TIMEOUT"); ok {
		d, err := ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("CONVSYNC_TIMEOUT: %w", err))
		} else {
			c.Server.Timeout = d
		}
	}
	str("CONVSYNC_PUSH_TRANSPORT", &c.Push.Transport)
	str("CONVSYNC_PUSH_URL", &c.Push.URL)
	str("CONVSYNC_NATS_URL", &c.Push.NATS.URL)
	str("CONVSYNC_NATS_PREFIX", &c.Push.NATS.Prefix)
	if v, ok := lookup("CONVSYNC_UPLOAD_MAX_SIZE"); ok {
		n, err := ParseSize(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("CONVSYNC_UPLOAD_MAX_SIZE: %w", err))
		} else {
			c.Uploads.MaxSize = n
		}
	}
	if v, ok := lookup("CONVSYNC_ORPHAN_TTL"); ok {
		d, err := ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("CONVSYNC_ORPHAN_TTL: %w", err))
		} else {
			c.Uploads.OrphanTTL = d
		}
	}
	str("CONVSYNC_CACHE_PATH", &c.Cache.Path)
	if v, ok := lookup("CONVSYNC_CACHE_DISABLED"); ok {
		c.Cache.Disabled = v == "1" || strings.EqualFold(v, "true")
	}
	str("CONVSYNC_MUTATIONS", &c.Mutations)
	str("CONVSYNC_LOG_LEVEL", &c.Logging.Level)
	str("CONVSYNC_LOG_FORMAT", &c.Logging.Format)
	str("CONVSYNC_METRICS_ADDR", &c.Metrics.Address)

	return errors.Join(errs...)
}

// Validate reports every problem with the configuration at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.URL == "" {
		errs = append(errs, errors.New("server.url is required"))
	} else if u, err := url.Parse(c.Server.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("server.url %q must be an http(s) URL", c.Server.URL))
	}
	if c.Server.Timeout < 0 {
		errs = append(errs, errors.New("server.timeout must not be negative"))
	}

	switch c.Push.Transport {
	case TransportWebSocket:
		if c.Push.URL != "" {
			if u, err := url.Parse(c.Push.URL); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
				errs = append(errs, fmt.Errorf("push.url %q must be a ws(s) URL", c.Push.URL))
			}
		}
	case TransportNATS:
		if c.Push.NATS.URL == "" {
			errs = append(errs, errors.New("push.nats.url is required for the nats transport"))
		}
		if c.Push.NATS.Prefix == "" || strings.ContainsAny(c.Push.NATS.Prefix, " *>") {
			errs = append(errs, fmt.Errorf("push.nats.prefix %q is not a valid subject token", c.Push.NATS.Prefix))
		}
	default:
		errs = append(errs, fmt.Errorf("push.transport %q: want %s or %s", c.Push.Transport, TransportWebSocket, TransportNATS))
	}

	if c.Uploads.OrphanTTL < 0 {
		errs = append(errs, errors.New("uploads.orphan_ttl must not be negative"))
	}
	if !c.Cache.Disabled && c.Cache.Path == "" {
		errs = append(errs, errors.New("cache.path is required unless cache.disabled"))
	}

	switch c.Mutations {
	case MutationsSocket, MutationsREST:
	default:
		errs = append(errs, fmt.Errorf("mutations %q: want %s or %s", c.Mutations, MutationsSocket, MutationsREST))
	}

	if _, err := ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, err)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q: want text or json", c.Logging.Format))
	}

	return errors.Join(errs...)
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(name)); err != nil {
		return 0, fmt.Errorf("logging.level %q: want debug, info, warn or error", name)
	}
	return l, nil
}
