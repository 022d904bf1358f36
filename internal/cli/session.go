package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/roach88/convsync/internal/api"
	"github.com/roach88/convsync/internal/cache"
	"github.com/roach88/convsync/internal/config"
	"github.com/roach88/convsync/internal/engine"
	"github.com/roach88/convsync/internal/model"
	"github.com/roach88/convsync/internal/transport"
	"github.com/roach88/convsync/internal/upload"
)

// ConnFlags are the connection flags shared by commands that talk to the
// server. Set flags win over the config file and the environment.
type ConnFlags struct {
	Server    string
	Token     string
	Transport string
	Mutations string
	CachePath string
	NoCache   bool
}

func (f *ConnFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.Server, "server", "", "chat server base URL (overrides server.url)")
	cmd.Flags().StringVar(&f.Token, "token", "", "bearer token (overrides server.token)")
	cmd.Flags().StringVar(&f.Transport, "transport", "", "push transport: websocket or nats")
	cmd.Flags().StringVar(&f.Mutations, "mutations", "", "route edits and deletes over socket or rest")
	cmd.Flags().StringVar(&f.CachePath, "cache", "", "path to the local cache database")
	cmd.Flags().BoolVar(&f.NoCache, "no-cache", false, "do not open the local cache")
}

func (f *ConnFlags) apply(c *config.Config) {
	set := func(v string, dst *string) {
		if v != "" {
			*dst = v
		}
	}
	set(f.Server, &c.Server.URL)
	set(f.Token, &c.Server.Token)
	set(f.Transport, &c.Push.Transport)
	set(f.Mutations, &c.Mutations)
	set(f.CachePath, &c.Cache.Path)
	if f.NoCache {
		c.Cache.Disabled = true
	}
}

// loadConfig builds the effective configuration: defaults, then the config
// file, then .env and CONVSYNC_* variables, then flags.
func loadConfig(opts *RootOptions, flags *ConnFlags, lookup func(string) (string, bool)) (*config.Config, error) {
	if opts.EnvFile != "" {
		if err := config.LoadEnvFile(opts.EnvFile); err != nil {
			return nil, err
		}
	}

	c := config.Default()
	if opts.Config != "" {
		data, err := os.ReadFile(opts.Config)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if c, err = config.Parse(data); err != nil {
			return nil, err
		}
	}
	if err := c.ApplyEnv(lookup); err != nil {
		return nil, err
	}
	if flags != nil {
		flags.apply(c)
	}
	return c, nil
}

// newLogger builds the process logger. --verbose forces debug level.
func newLogger(c *config.Config, verbose bool, w io.Writer) (*slog.Logger, error) {
	level, err := config.ParseLevel(c.Logging.Level)
	if err != nil {
		return nil, err
	}
	if verbose {
		level = slog.LevelDebug
	}
	hopts := &slog.HandlerOptions{Level: level}
	if c.Logging.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, hopts)), nil
	}
	return slog.New(slog.NewTextHandler(w, hopts)), nil
}

// Session is everything a connected client needs: the REST client, the push
// transport, the optional cache and metrics. Close releases all of it.
type Session struct {
	Config   *config.Config
	Logger   *slog.Logger
	Token    *api.BearerToken
	User     model.ID
	Client   *api.Client
	Push     transport.Transport
	Cache    *cache.Store // nil when disabled
	Registry *prometheus.Registry
	Metrics  *engine.Metrics

	metricsServer *http.Server
}

// Connect validates c, parses the token and opens every connection. The
// websocket dial honours ctx.
func Connect(ctx context.Context, c *config.Config, logger *slog.Logger) (*Session, error) {
	if err := c.Validate(); err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	token, err := api.ParseBearerToken(c.Server.Token)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid token", err)
	}
	if token.Expired(time.Now()) {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("token expired at %s", token.ExpiresAt().Format(time.RFC3339)))
	}

	client, err := api.New(c.Server.URL, token, api.WithTimeout(c.Server.Timeout.Std()), api.WithLogger(logger))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid server url", err)
	}

	s := &Session{Config: c, Logger: logger, Token: token, Client: client, User: token.Subject()}
	if s.User.IsZero() {
		// The push endpoint is per user, so the id is needed before the
		// engine bootstraps.
		me, err := client.CurrentUser(ctx)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "could not identify the current user", err)
		}
		s.User = me.ID
	}

	if err := s.openPush(ctx); err != nil {
		return nil, err
	}

	if !c.Cache.Disabled {
		st, err := cache.Open(c.Cache.Path)
		if err != nil {
			s.Close()
			return nil, WrapExitError(ExitCommandError, "failed to open cache", err)
		}
		s.Cache = st.WithLogger(logger)
		if n, err := s.Cache.PruneOrphans(ctx, time.Now().Add(-c.Uploads.OrphanTTL.Std())); err != nil {
			logger.Warn("pruning orphan uploads failed", "error", err)
		} else if n > 0 {
			logger.Debug("pruned orphan uploads", "count", n)
		}
	}

	s.Registry = prometheus.NewRegistry()
	if s.Metrics, err = engine.NewMetrics(s.Registry); err != nil {
		s.Close()
		return nil, WrapExitError(ExitCommandError, "failed to register metrics", err)
	}
	if c.Metrics.Address != "" {
		s.serveMetrics(c.Metrics.Address)
	}
	return s, nil
}

func (s *Session) openPush(ctx context.Context) error {
	c := s.Config
	switch c.Push.Transport {
	case config.TransportNATS:
		nc, err := transport.ConnectNATS(c.Push.NATS.URL, c.Push.NATS.Prefix, s.User, transport.WithNATSLogger(s.Logger))
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to connect push transport", err)
		}
		s.Push = nc
	default:
		pushURL := c.Push.URL
		if pushURL == "" {
			var err error
			if pushURL, err = transport.PushURL(c.Server.URL, s.User); err != nil {
				return WrapExitError(ExitCommandError, "invalid push url", err)
			}
		}
		raw, err := s.Token.Token(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "no token for push transport", err)
		}
		header := http.Header{}
		header.Set("Authorization", "Bearer "+raw)
		ws, err := transport.DialWebSocket(ctx, pushURL, transport.WithHeader(header), transport.WithWebSocketLogger(s.Logger))
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to connect push transport", err)
		}
		s.Push = ws
	}
	return nil
}

func (s *Session) serveMetrics(addr string) {
	s.metricsServer = &http.Server{Addr: addr, Handler: metricsHandler(s.Registry), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		s.Logger.Info("metrics listening", "addr", addr)
		if err := s.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.Logger.Error("metrics server failed", "error", err)
		}
	}()
}

func metricsHandler(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	return mux
}

// Pipeline returns the upload pipeline. Orphans are kept in the cache when
// it is open and in memory otherwise.
func (s *Session) Pipeline() *upload.Pipeline {
	var ledger upload.OrphanLedger = upload.NewMemoryOrphans()
	if s.Cache != nil {
		ledger = s.Cache
	}
	return upload.New(s.Client,
		upload.WithOrphanLedger(ledger),
		upload.WithMaxSize(uint64(s.Config.Uploads.MaxSize)),
		upload.WithOrphanTTL(s.Config.Uploads.OrphanTTL.Std()),
		upload.WithLogger(s.Logger),
	)
}

// EngineOptions returns the engine options implied by the session.
func (s *Session) EngineOptions() []engine.EngineOption {
	opts := []engine.EngineOption{
		engine.WithUser(s.User),
		engine.WithUploader(s.Pipeline()),
		engine.WithMetrics(s.Metrics),
		engine.WithLogger(s.Logger),
	}
	if s.Cache != nil {
		opts = append(opts, engine.WithCache(s.Cache))
	}
	if s.Config.Mutations == config.MutationsREST {
		opts = append(opts, engine.WithRESTMutations())
	}
	return opts
}

// Close shuts down the metrics endpoint, the push transport and the cache.
func (s *Session) Close() error {
	var errs []error
	if s.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		errs = append(errs, s.metricsServer.Shutdown(ctx))
		cancel()
	}
	if s.Push != nil {
		errs = append(errs, s.Push.Close())
	}
	if s.Cache != nil {
		errs = append(errs, s.Cache.Close())
	}
	return errors.Join(errs...)
}
