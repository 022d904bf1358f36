// Package transport carries push events between the chat server and the
// engine.
//
// Two transports are provided. WebSocket is the server's native push
// channel (/ws/{userId}). NATS subscribes to a per-user subject for
// deployments that fan messages out through a broker.
//
// Both deliver each inbound frame to a handler in arrival order and accept
// outbound commands through Send, which makes them engine.Sender
// implementations. Neither reconnects; the host restarts the session when
// Listen returns.
package transport

import "context"

// Transport is a push connection.
type Transport interface {
	// Listen delivers inbound payloads to handle until ctx is cancelled or
	// the connection closes. handle is never called concurrently.
	Listen(ctx context.Context, handle func([]byte)) error

	// Send writes one outbound command, JSON-encoded.
	Send(ctx context.Context, payload any) error

	Close() error
}
