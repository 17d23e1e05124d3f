package session

import (
	"sync"
	"time"

	"github.com/andaru/ncrpc/metrics"
	"github.com/pkg/errors"
)

// ErrEnvClosed is returned by Open after the Env is closed, and is the
// cause given to sessions terminated by Env.Close.
var ErrEnvClosed = errors.New("session environment closed")

// Env is the context shared by the sessions of a process. Create one with
// NewEnv and release it with Close.
type Env struct {
	metrics *metrics.Metrics
	now     func() time.Time

	mu       sync.Mutex
	closed   bool
	sessions map[*Session]struct{}
}

// EnvOption configures an Env.
type EnvOption func(*Env)

// WithMetrics records session and RPC metrics in m.
func WithMetrics(m *metrics.Metrics) EnvOption { return func(e *Env) { e.metrics = m } }

// WithClock sets the clock used to timestamp requests.
func WithClock(now func() time.Time) EnvOption { return func(e *Env) { e.now = now } }

// NewEnv returns a new Env.
func NewEnv(opts ...EnvOption) *Env {
	e := &Env{now: time.Now, sessions: map[*Session]struct{}{}}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Metrics returns the Env's metrics, which may be nil.
func (e *Env) Metrics() *metrics.Metrics { return e.metrics }

// Now returns the current time from the Env's clock.
func (e *Env) Now() time.Time { return e.now() }

// Sessions returns the number of open sessions.
func (e *Env) Sessions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sessions)
}

// Close terminates all open sessions. Later calls to Open fail with
// ErrEnvClosed.
func (e *Env) Close() {
	e.mu.Lock()
	e.closed = true
	var open []*Session
	for s := range e.sessions {
		open = append(open, s)
	}
	e.mu.Unlock()
	for _, s := range open {
		s.Terminate(ErrEnvClosed)
	}
}

func (e *Env) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

func (e *Env) register(s *Session) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEnvClosed
	}
	e.sessions[s] = struct{}{}
	return nil
}

func (e *Env) unregister(s *Session) {
	e.mu.Lock()
	delete(e.sessions, s)
	e.mu.Unlock()
}
