package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roach88/convsync/internal/model"
)

const (
	defaultWriteTimeout = 10 * time.Second
	defaultReadLimit    = 1 << 20
)

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("transport closed")

// wsConn is the subset of *websocket.Conn the transport uses, so tests can
// substitute a fake.
type wsConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	Close() error
}

// WebSocket is a push connection over the server's websocket endpoint.
//
// Thread-safety: Send and Close are safe for concurrent use. Listen must be
// called from one goroutine.
type WebSocket struct {
	conn         wsConn
	writeTimeout time.Duration
	logger       *slog.Logger

	mu     sync.Mutex // serializes writes
	closed bool
}

// WebSocketOption configures DialWebSocket.
type WebSocketOption func(*wsConfig)

type wsConfig struct {
	header       http.Header
	dialer       *websocket.Dialer
	writeTimeout time.Duration
	readLimit    int64
	logger       *slog.Logger
}

// WithHeader adds request headers to the handshake, e.g. Authorization.
func WithHeader(h http.Header) WebSocketOption {
	return func(c *wsConfig) { c.header = h }
}

// WithDialer replaces websocket.DefaultDialer.
func WithDialer(d *websocket.Dialer) WebSocketOption {
	return func(c *wsConfig) { c.dialer = d }
}

// WithWriteTimeout bounds Send when its context has no deadline.
func WithWriteTimeout(d time.Duration) WebSocketOption {
	return func(c *wsConfig) { c.writeTimeout = d }
}

// WithReadLimit caps the size of an inbound frame.
func WithReadLimit(n int64) WebSocketOption {
	return func(c *wsConfig) { c.readLimit = n }
}

// WithWebSocketLogger sets the logger. Default: slog.Default().
func WithWebSocketLogger(l *slog.Logger) WebSocketOption {
	return func(c *wsConfig) { c.logger = l }
}

// PushURL derives the websocket endpoint of user from the REST base URL:
// http(s)://host/prefix becomes ws(s)://host/prefix/ws/{user}.
func PushURL(baseURL string, user model.ID) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("base url %q: unsupported scheme %q", baseURL, u.Scheme)
	}
	if user.IsZero() {
		return "", fmt.Errorf("push url: user id is required")
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/" + url.PathEscape(string(user))
	return u.String(), nil
}

// DialWebSocket opens the push connection at rawURL.
func DialWebSocket(ctx context.Context, rawURL string, opts ...WebSocketOption) (*WebSocket, error) {
	cfg := wsConfig{
		dialer:       websocket.DefaultDialer,
		writeTimeout: defaultWriteTimeout,
		readLimit:    defaultReadLimit,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	conn, resp, err := cfg.dialer.DialContext(ctx, rawURL, cfg.header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", rawURL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", rawURL, err)
	}
	cfg.logger.Info("push connection open", "url", rawURL)

	return newWebSocket(conn, cfg), nil
}

func newWebSocket(conn wsConn, cfg wsConfig) *WebSocket {
	conn.SetReadLimit(cfg.readLimit)
	return &WebSocket{conn: conn, writeTimeout: cfg.writeTimeout, logger: cfg.logger}
}

// Listen reads frames until ctx is cancelled or the server closes the
// connection. A normal close returns nil; cancellation returns ctx.Err().
func (w *WebSocket) Listen(ctx context.Context, handle func([]byte)) error {
	stop := context.AfterFunc(ctx, func() {
		// Unblocks ReadMessage.
		_ = w.Close()
	})
	defer stop()

	for {
		typ, data, err := w.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				w.logger.Info("push connection closed by server")
				return nil
			}
			if w.isClosed() {
				return nil
			}
			return fmt.Errorf("read push frame: %w", err)
		}
		if typ != websocket.TextMessage && typ != websocket.BinaryMessage {
			continue
		}
		handle(data)
	}
}

// Send writes payload as one JSON text frame.
func (w *WebSocket) Send(ctx context.Context, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode push command: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(w.writeTimeout)
	}
	if err := w.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := w.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write push command: %w", err)
	}
	return nil
}

// Close sends a close frame and closes the connection. It is idempotent.
func (w *WebSocket) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	_ = w.conn.SetWriteDeadline(time.Now().Add(time.Second))
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = w.conn.WriteMessage(websocket.CloseMessage, msg)
	return w.conn.Close()
}

func (w *WebSocket) isClosed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}
