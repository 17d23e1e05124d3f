package ncerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrCancelled resolves a pending request cancelled by its caller.
var ErrCancelled = errors.New("request cancelled")

// TransportError is a failure of the underlying transport channel.
// It is fatal to the session.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	if e.Op == "" {
		return "transport error: " + e.Err.Error()
	}
	return "transport " + e.Op + " error: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error { return e.Err }

// FramingError reports input which violates RFC6242 framing, or a message
// exceeding the configured maximum size. It is fatal to the session.
type FramingError struct {
	Reason string
	// Offset is the offset of the error within the current message
	// buffer, or -1 when unknown.
	Offset int
	Err    error
}

func (e *FramingError) Error() string {
	s := "framing error: " + e.Reason
	if e.Offset >= 0 {
		s += fmt.Sprintf(" (offset %d)", e.Offset)
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *FramingError) Unwrap() error { return e.Err }

// NegotiationError reports a failed <hello> exchange. The session never
// becomes open.
type NegotiationError struct {
	Reason string
	Err    error
}

func (e *NegotiationError) Error() string {
	if e.Err != nil {
		return "negotiation failed: " + e.Reason + ": " + e.Err.Error()
	}
	return "negotiation failed: " + e.Reason
}

func (e *NegotiationError) Unwrap() error { return e.Err }

// TimeoutError resolves a pending request whose deadline passed before a
// reply arrived. The session survives.
type TimeoutError struct {
	MessageID string
	Operation string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout waiting for reply to %s message-id %q", e.Operation, e.MessageID)
}

// Timeout implements the net.Error style timeout check.
func (e *TimeoutError) Timeout() bool { return true }

// UnexpectedReplyError reports an <rpc-reply> whose message-id matches no
// pending request. It is logged and the reply dropped.
type UnexpectedReplyError struct {
	MessageID string
}

func (e *UnexpectedReplyError) Error() string {
	return fmt.Sprintf("unexpected rpc-reply message-id %q", e.MessageID)
}

// SessionClosedError resolves requests still pending when a session closes.
// Cause is the error which closed the session, nil for a graceful close.
type SessionClosedError struct {
	Cause error
}

func (e *SessionClosedError) Error() string {
	if e.Cause == nil {
		return "session closed"
	}
	return "session closed: " + e.Cause.Error()
}

func (e *SessionClosedError) Unwrap() error { return e.Cause }

// UnsupportedOperationError is a local precondition failure. The request
// was never sent.
type UnsupportedOperationError struct {
	Operation string
	// Capability is the missing capability URI, if any.
	Capability string
	Reason     string
}

func (e *UnsupportedOperationError) Error() string {
	s := "unsupported operation " + e.Operation
	if e.Capability != "" {
		s += ": peer lacks capability " + e.Capability
	}
	if e.Reason != "" {
		s += ": " + e.Reason
	}
	return s
}

// IsFatal returns true if err terminates a session: transport, framing
// and negotiation errors.
func IsFatal(err error) bool {
	var (
		te *TransportError
		fe *FramingError
		ne *NegotiationError
	)
	return errors.As(err, &te) || errors.As(err, &fe) || errors.As(err, &ne)
}
