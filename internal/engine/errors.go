package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/convsync/internal/model"
)

// FailureKind categorizes errors raised while processing events.
type FailureKind string

const (
	// NetworkFailure: a REST call, upload or socket send failed.
	NetworkFailure FailureKind = "NETWORK_FAILURE"

	// ValidationFailure: a composer precondition was violated or an event was
	// missing required fields. Raised before any network call.
	ValidationFailure FailureKind = "VALIDATION_FAILURE"

	// StaleStateFailure: a completion arrived for an activation or load that
	// has since been superseded. Discarded silently.
	StaleStateFailure FailureKind = "STALE_STATE"

	// ProtocolFailure: a push payload could not be decoded or named an
	// unknown action.
	ProtocolFailure FailureKind = "PROTOCOL_FAILURE"
)

// SyncError is an error detected while processing an event.
//
// No SyncError is fatal: the loop logs it and moves on. Network and protocol
// failures are also surfaced through Sink.Notify.
type SyncError struct {
	// Kind identifies the error category.
	Kind FailureKind

	// Op names the operation, e.g. "mark_read" or "send".
	Op string

	// Conversation is the affected conversation, if any.
	Conversation model.ConversationRef

	// Message is a human-readable description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error implements the error interface.
func (e *SyncError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Op != "" && !e.Conversation.IsZero() {
		msg = fmt.Sprintf("%s (op=%s, conversation=%s)", msg, e.Op, e.Conversation)
	} else if e.Op != "" {
		msg = fmt.Sprintf("%s (op=%s)", msg, e.Op)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *SyncError) Unwrap() error {
	return e.Err
}

func failureKind(err error) (FailureKind, bool) {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return "", false
}

// IsNetworkFailure reports whether err is a NetworkFailure.
// Uses errors.As to handle wrapped and joined errors.
func IsNetworkFailure(err error) bool {
	k, ok := failureKind(err)
	return ok && k == NetworkFailure
}

// IsValidationFailure reports whether err is a ValidationFailure.
func IsValidationFailure(err error) bool {
	k, ok := failureKind(err)
	return ok && k == ValidationFailure
}

// IsStaleState reports whether err is a StaleStateFailure.
func IsStaleState(err error) bool {
	k, ok := failureKind(err)
	return ok && k == StaleStateFailure
}

// IsProtocolFailure reports whether err is a ProtocolFailure.
func IsProtocolFailure(err error) bool {
	k, ok := failureKind(err)
	return ok && k == ProtocolFailure
}

func newNetworkError(op string, ref model.ConversationRef, err error) *SyncError {
	return &SyncError{Kind: NetworkFailure, Op: op, Conversation: ref, Message: "request failed", Err: err}
}

func newValidationError(op string, ref model.ConversationRef, message string) *SyncError {
	return &SyncError{Kind: ValidationFailure, Op: op, Conversation: ref, Message: message}
}

func newStaleError(op string, ref model.ConversationRef, token, current int64) *SyncError {
	return &SyncError{
		Kind:         StaleStateFailure,
		Op:           op,
		Conversation: ref,
		Message:      fmt.Sprintf("token %d superseded by %d", token, current),
	}
}

func newProtocolError(op string, err error) *SyncError {
	return &SyncError{Kind: ProtocolFailure, Op: op, Message: "undecodable push event", Err: err}
}
