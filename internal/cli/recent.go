package cli

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/convsync/internal/api"
	"github.com/roach88/convsync/internal/cache"
	"github.com/roach88/convsync/internal/config"
	"github.com/roach88/convsync/internal/model"
)

// RecentOptions holds flags for the recent command.
type RecentOptions struct {
	*RootOptions
	Conn   ConnFlags
	Cached bool
}

// RecentRow is one recent chat in JSON output.
type RecentRow struct {
	Conversation string `json:"conversation"`
	Name         string `json:"name,omitempty"`
	Unread       int    `json:"unread"`
}

// NewRecentCommand creates the recent command.
func NewRecentCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RecentOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "recent",
		Short: "List recent chats with unread counts",
		Long: `Print the recent chat list, most recent first.

By default the list is fetched from the server and written to the local
cache. --cached prints what the cache holds without contacting the server.

Example:
  convsync recent --server https://chat.example --token $TOKEN
  convsync recent --cached --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecent(cmd, opts)
		},
	}

	opts.Conn.register(cmd)
	cmd.Flags().BoolVar(&opts.Cached, "cached", false, "read the local cache instead of the server")

	return cmd
}

func runRecent(cmd *cobra.Command, opts *RecentOptions) error {
	cfg, err := loadConfig(opts.RootOptions, &opts.Conn, os.LookupEnv)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	logger, err := newLogger(cfg, opts.Verbose, cmd.ErrOrStderr())
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid logging config", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var entries []model.RecentEntry
	if opts.Cached {
		entries, err = cachedRecents(ctx, cfg)
	} else {
		entries, err = fetchRecents(ctx, cfg, logger)
	}
	if err != nil {
		return err
	}

	out := &Output{Format: opts.Format, Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr(), Verbose: opts.Verbose}
	if opts.Format == "json" {
		rows := make([]RecentRow, len(entries))
		for i, e := range entries {
			rows[i] = RecentRow{Conversation: e.Ref.Key(), Name: e.Name, Unread: e.UnreadCount}
		}
		return out.Success(rows)
	}

	var buf bytes.Buffer
	writeRecent(&buf, entries)
	return out.Success(strings.TrimSuffix(buf.String(), "\n"))
}

func cachedRecents(ctx context.Context, cfg *config.Config) ([]model.RecentEntry, error) {
	if cfg.Cache.Disabled {
		return nil, NewExitError(ExitCommandError, "--cached needs the cache; it is disabled")
	}
	st, err := cache.Open(cfg.Cache.Path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open cache", err)
	}
	defer st.Close()

	entries, err := st.LoadRecents(ctx)
	if err != nil {
		return nil, WrapExitError(ExitFailure, "failed to read cache", err)
	}
	return entries, nil
}

// fetchRecents asks the server for the list and refreshes the cache with
// it. A cache failure is logged, not returned.
func fetchRecents(ctx context.Context, cfg *config.Config, logger *slog.Logger) ([]model.RecentEntry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	token, err := api.ParseBearerToken(cfg.Server.Token)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid token", err)
	}
	client, err := api.New(cfg.Server.URL, token, api.WithTimeout(cfg.Server.Timeout.Std()), api.WithLogger(logger))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid server url", err)
	}

	entries, err := client.RecentConversations(ctx)
	if err != nil {
		if api.IsUnauthorized(err) {
			return nil, WrapExitError(ExitCommandError, "server rejected the token", err)
		}
		return nil, WrapExitError(ExitFailure, "failed to load recent chats", err)
	}

	if !cfg.Cache.Disabled {
		st, err := cache.Open(cfg.Cache.Path)
		if err != nil {
			logger.Warn("cache unavailable", "path", cfg.Cache.Path, "error", err)
			return entries, nil
		}
		defer st.Close()
		if err := st.SaveRecents(ctx, entries); err != nil {
			logger.Warn("saving recent chats failed", "error", err)
		}
	}
	return entries, nil
}
