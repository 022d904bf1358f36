package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/convsync/internal/engine"
	"github.com/roach88/convsync/internal/model"
	"github.com/roach88/convsync/internal/transport"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Conn     ConnFlags
	PageSize int
	Open     string // conversation key opened at start, e.g. "direct:7"
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the interactive chat client",
		Long: `Connect to the chat server and start an interactive session.

The client loads your profile and recent chats, listens for push events and
reads commands from standard input. Type /help for the command list. Plain
lines are sent to the active chat.

Example:
  convsync run --server https://chat.example --token $TOKEN
  convsync run -c convsync.yaml --open direct:7 --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClient(cmd, opts)
		},
	}

	opts.Conn.register(cmd)
	cmd.Flags().IntVar(&opts.PageSize, "page-size", DefaultPageSize, "messages shown per page")
	cmd.Flags().StringVar(&opts.Open, "open", "", "conversation to open at start (direct:<id> or group:<id>)")

	return cmd
}

func runClient(cmd *cobra.Command, opts *RunOptions) error {
	cfg, err := loadConfig(opts.RootOptions, &opts.Conn, os.LookupEnv)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	logger, err := newLogger(cfg, opts.Verbose, cmd.ErrOrStderr())
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid logging config", err)
	}
	slog.SetDefault(logger)

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	sess, err := Connect(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := sess.Close(); closeErr != nil {
			logger.Error("error closing session", "error", closeErr)
		}
	}()

	term := NewTerminal(cmd.OutOrStdout(), sess.User, opts.PageSize)
	eng := engine.New(sess.Client, sess.Push, term, append(sess.EngineOptions(), engine.WithViewport(term))...)
	repl := NewREPL(eng, term, sess.Client)

	eng.Bootstrap()
	if opts.Open != "" {
		ref, err := model.ParseConversationKey(opts.Open)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --open", err)
		}
		eng.OnActivate(model.Conversation{Ref: ref})
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Connected as %s. Type /help for commands.\n", sess.User)
	return serve(ctx, eng, sess.Push, repl, cmd.InOrStdin(), logger)
}

// serve runs the engine loop, the push listener and the REPL until one of
// them ends.
func serve(ctx context.Context, eng *engine.Engine, push transport.Transport, repl *REPL, in io.Reader, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	engineDone := make(chan error, 1)
	go func() { engineDone <- eng.Run(ctx) }()

	pushDone := make(chan error, 1)
	go func() {
		pushDone <- push.Listen(ctx, func(data []byte) { eng.OnPushPayload(data) })
	}()

	replDone := make(chan error, 1)
	go func() { replDone <- repl.Run(ctx, in) }()

	var result error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-replDone:
		result = err
	case err := <-pushDone:
		if err != nil && !errors.Is(err, context.Canceled) {
			result = WrapExitError(ExitFailure, "push connection lost", err)
		} else {
			logger.Info("push connection closed")
		}
	}

	cancel()
	eng.Stop()
	if err := <-engineDone; err != nil && !errors.Is(err, context.Canceled) && result == nil {
		result = WrapExitError(ExitFailure, "engine error", err)
	}
	return result
}
