// Package api is the REST client for the chat server.
//
// Client implements engine.API and upload.Uploader over fasthttp. Every
// request carries a bearer token from a TokenSource; non-2xx responses are
// returned as *StatusError so callers can tell an auth failure from an
// unreachable server.
//
// Direct conversations are addressed by the peer's user id and groups by the
// group id:
//
//	GET  /messages/{peer}          GET  /messages/group/{id}
//	POST /messages/{peer}/read     POST /messages/group/{id}/read
//	POST /chats/{peer}/clear       POST /chats/group/{id}/clear
package api
