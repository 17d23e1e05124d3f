package session

import (
	"time"

	"github.com/andaru/ncrpc/capability"
	"github.com/andaru/ncrpc/framing"
	"github.com/andaru/ncrpc/message"
)

// Default timeouts.
const (
	DefaultHelloTimeout   = 30 * time.Second
	DefaultRequestTimeout = 60 * time.Second
)

// Config contains Session configuration
type Config struct {
	// ID is the configured session-id. Must be 0 for client sessions
	// and non-0 for server sessions
	ID uint32
	// Capabilities holds our session capabilities. Nil selects
	// capability.Default().
	Capabilities capability.Set
	// HelloTimeout bounds the hello exchange.
	HelloTimeout time.Duration
	// RequestTimeout is the time a client waits for each reply. Zero
	// selects DefaultRequestTimeout; a negative value disables timeouts.
	RequestTimeout time.Duration
	// MaxMessageSize is the largest message accepted from the peer.
	MaxMessageSize int
	// MaxChunkSize is the largest chunk sent with chunked framing.
	MaxChunkSize int
	// NotificationSink receives the notifications of client sessions.
	NotificationSink NotificationSink
}

func (c Config) withDefaults() Config {
	if c.Capabilities == nil {
		c.Capabilities = capability.Default()
	}
	if c.HelloTimeout <= 0 {
		c.HelloTimeout = DefaultHelloTimeout
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = framing.DefaultMaxMessageSize
	}
	if c.MaxChunkSize <= 0 {
		c.MaxChunkSize = framing.DefaultMaxChunkSize
	}
	return c
}

// NotificationSink accepts the notifications received by a session. r has
// kind message.ReplyNotification. HandleNotification is called from the
// session's reader and must not block for long.
type NotificationSink interface {
	HandleNotification(s *Session, r *message.Reply)
}

// NotificationFunc is a NotificationSink function.
type NotificationFunc func(s *Session, r *message.Reply)

func (f NotificationFunc) HandleNotification(s *Session, r *message.Reply) { f(s, r) }

// State is a Session's (present) state.
type State int

const (
	// StateNegotiating is the initial state, lasting until the
	// hello exchange completes.
	StateNegotiating State = iota
	// StateOpen is set once capabilities exchange succeeds.
	StateOpen
	// StateClosing is set once close-session is sent (client) or
	// received (server).
	StateClosing
	// StateClosed is terminal.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNegotiating:
		return "negotiating"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}
