package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/roach88/convsync/internal/model"
)

const defaultFlushTimeout = 5 * time.Second

// natsConn is the subset of *nats.Conn the transport uses.
type natsConn interface {
	Publish(subj string, data []byte) error
	Subscribe(subj string, cb nats.MsgHandler) (*nats.Subscription, error)
	FlushWithContext(ctx context.Context) error
	Close()
}

// NATS is a push connection through a NATS broker.
//
// Inbound events arrive on "<prefix>.user.<id>"; outbound commands are
// published to "<prefix>.send.<id>", where id is the signed-in user.
type NATS struct {
	conn   natsConn
	prefix string
	user   model.ID
	closed chan struct{}
	logger *slog.Logger
}

// NATSOption configures ConnectNATS.
type NATSOption func(*natsConfig)

type natsConfig struct {
	opts   []nats.Option
	logger *slog.Logger
}

// WithNATSOptions passes options through to nats.Connect.
func WithNATSOptions(opts ...nats.Option) NATSOption {
	return func(c *natsConfig) { c.opts = append(c.opts, opts...) }
}

// WithNATSLogger sets the logger. Default: slog.Default().
func WithNATSLogger(l *slog.Logger) NATSOption {
	return func(c *natsConfig) { c.logger = l }
}

// ConnectNATS connects to the broker at url on behalf of user.
func ConnectNATS(url, prefix string, user model.ID, opts ...NATSOption) (*NATS, error) {
	if user.IsZero() {
		return nil, fmt.Errorf("connect nats: user id is required")
	}
	cfg := natsConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}

	closed := make(chan struct{})
	natsOpts := append([]nats.Option{
		nats.Name("convsync"),
		nats.ClosedHandler(func(*nats.Conn) { close(closed) }),
	}, cfg.opts...)

	nc, err := nats.Connect(url, natsOpts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	cfg.logger.Info("push connection open", "url", nc.ConnectedUrlRedacted(), "user", user)

	return newNATS(nc, prefix, user, closed, cfg.logger), nil
}

func newNATS(conn natsConn, prefix string, user model.ID, closed chan struct{}, logger *slog.Logger) *NATS {
	if prefix == "" {
		prefix = "chat"
	}
	return &NATS{conn: conn, prefix: prefix, user: user, closed: closed, logger: logger}
}

// InboxSubject is the subject inbound events for the user arrive on.
func (n *NATS) InboxSubject() string {
	return fmt.Sprintf("%s.user.%s", n.prefix, n.user)
}

// SendSubject is the subject outbound commands are published to.
func (n *NATS) SendSubject() string {
	return fmt.Sprintf("%s.send.%s", n.prefix, n.user)
}

// Listen subscribes to the user's inbox until ctx is cancelled or the
// connection closes. NATS invokes a subscription's handler serially.
func (n *NATS) Listen(ctx context.Context, handle func([]byte)) error {
	sub, err := n.conn.Subscribe(n.InboxSubject(), func(msg *nats.Msg) {
		handle(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", n.InboxSubject(), err)
	}
	defer func() {
		if err := sub.Unsubscribe(); err != nil {
			n.logger.Debug("unsubscribe failed", "subject", n.InboxSubject(), "error", err)
		}
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-n.closed:
		return nil
	}
}

// Send publishes payload and flushes so a broker rejection is reported to
// the caller.
func (n *NATS) Send(ctx context.Context, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode push command: %w", err)
	}
	if err := n.conn.Publish(n.SendSubject(), data); err != nil {
		return fmt.Errorf("publish %s: %w", n.SendSubject(), err)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultFlushTimeout)
		defer cancel()
	}
	if err := n.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush %s: %w", n.SendSubject(), err)
	}
	return nil
}

// Close closes the connection.
func (n *NATS) Close() error {
	n.conn.Close()
	return nil
}
