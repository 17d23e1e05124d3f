package session

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/andaru/ncrpc/capability"
	"github.com/andaru/ncrpc/message"
	"github.com/andaru/ncrpc/ncerr"
	"github.com/andaru/ncrpc/transport"
	"github.com/golang/glog"
	"github.com/pkg/errors"
)

// Session represents a NETCONF session
type Session struct {
	cfg    Config
	env    *Env
	ch     transport.Channel
	reader *transport.Reader
	writer *transport.Writer

	// set by Open, then read only
	id       uint32
	caps     capability.Set
	peerCaps capability.Set
	chunked  bool

	// sendMu serializes writes to the channel
	sendMu sync.Mutex

	mu      sync.Mutex
	state   State
	nextID  uint64
	pending map[string]*Pending
	closeID string
	err     error
	errs    []error

	done chan struct{}
}

// Open opens a session on ch, exchanging <hello> messages with the peer.
// On failure ch is closed and a *ncerr.NegotiationError returned.
func Open(ctx context.Context, ch transport.Channel, cfg Config, env *Env) (*Session, error) {
	if env == nil {
		env = NewEnv()
	}
	if env.isClosed() {
		_ = ch.Close()
		return nil, ErrEnvClosed
	}
	cfg = cfg.withDefaults()
	s := &Session{
		cfg:     cfg,
		env:     env,
		ch:      ch,
		reader:  transport.NewReader(ch, cfg.MaxMessageSize),
		writer:  transport.NewWriter(ch, cfg.MaxChunkSize),
		state:   StateNegotiating,
		pending: map[string]*Pending{},
		done:    make(chan struct{}),
	}
	err := s.negotiate(ctx)
	if err == nil {
		err = env.register(s)
	}
	if err != nil {
		glog.Warningf("%s session: %v", s.role(), err)
		s.mu.Lock()
		s.state, s.err = StateClosed, err
		s.mu.Unlock()
		_ = ch.Close()
		close(s.done)
		return nil, err
	}

	s.mu.Lock()
	s.state = StateOpen
	s.mu.Unlock()
	env.metrics.SessionOpened(s.role())
	glog.Infof("session %d: open as %s, chunked framing %v", s.id, s.role(), s.chunked)
	if !s.Server() {
		go s.readLoop()
	}
	return s, nil
}

// negotiate performs the hello exchange, capabilities exchange and
// framing mode selection.
func (s *Session) negotiate(ctx context.Context) error {
	hello, err := message.EncodeHello(message.Hello{Capabilities: s.cfg.Capabilities, SessionID: s.cfg.ID})
	if err != nil {
		return &ncerr.NegotiationError{Reason: "cannot encode hello", Err: err}
	}

	// send and receive concurrently; the peer may not read our hello
	// before sending its own
	type received struct {
		b   []byte
		err error
	}
	sentc := make(chan error, 1)
	recvc := make(chan received, 1)
	go func() { sentc <- s.writer.WriteMessage(hello) }()
	go func() {
		b, err := s.reader.ReadMessage()
		recvc <- received{b, err}
	}()

	timer := time.NewTimer(s.cfg.HelloTimeout)
	defer timer.Stop()
	var peer []byte
	for n := 0; n < 2; n++ {
		select {
		case err := <-sentc:
			if err != nil {
				return &ncerr.NegotiationError{Reason: "failed to send hello", Err: err}
			}
		case r := <-recvc:
			if r.err != nil {
				return &ncerr.NegotiationError{Reason: "failed to receive hello", Err: r.err}
			}
			peer = r.b
		case <-timer.C:
			return &ncerr.NegotiationError{Reason: "timed out waiting for hello exchange"}
		case <-ctx.Done():
			return &ncerr.NegotiationError{Reason: "hello exchange cancelled", Err: ctx.Err()}
		}
	}

	m, err := message.Parse(peer)
	if err == nil && m.Kind != message.KindHello {
		err = errors.Errorf("received %s message", m.Kind)
	}
	var h *message.Hello
	if err == nil {
		h, err = message.DecodeHello(m)
	}
	if err != nil {
		return &ncerr.NegotiationError{Reason: "bad hello", Err: err}
	}

	// RFC6241 states only a client should receive a <session-id>
	// element in the <hello>. If we have a non-zero s.cfg.ID, we are a
	// server session and should not receive one.
	switch {
	case h.SessionID == 0 && s.cfg.ID == 0:
		return &ncerr.NegotiationError{Reason: "no session-id received for client session"}
	case h.SessionID != 0 && s.cfg.ID != 0:
		return &ncerr.NegotiationError{Reason: "session-id received from client peer"}
	case h.SessionID != 0:
		s.id = h.SessionID
	default:
		s.id = s.cfg.ID
	}

	// select :base:1.1 chunked framing if both ends support it
	local := s.cfg.Capabilities
	base11 := local.Has(capability.Base11) && h.Capabilities.Has(capability.Base11)
	if base10 := local.Has(capability.Base10) && h.Capabilities.Has(capability.Base10); !(base11 || base10) {
		return &ncerr.NegotiationError{Reason: "session failed to negotiate framing mode"}
	}
	s.reader.SetFramingMode(base11)
	s.writer.SetFramingMode(base11)
	s.chunked = base11
	s.peerCaps = h.Capabilities
	s.caps = local.Intersect(h.Capabilities)
	return nil
}

// Server returns true for server sessions.
func (s *Session) Server() bool { return s.cfg.ID != 0 }

func (s *Session) role() string {
	if s.Server() {
		return "server"
	}
	return "client"
}

// ID returns the session-id.
func (s *Session) ID() uint32 { return s.id }

// Capabilities returns the negotiated capabilities: those advertised by
// both ends.
func (s *Session) Capabilities() capability.Set { return s.caps }

// PeerCapabilities returns the capabilities advertised by the peer.
func (s *Session) PeerCapabilities() capability.Set { return s.peerCaps }

// State returns the session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done returns a channel closed when the session is closed.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err returns the error which closed the session. It is nil while the
// session is open and after a graceful close.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// AddError adds non-fatal errors to the session state
func (s *Session) AddError(errs ...error) (added int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, err := range errs {
		if err != nil {
			s.errs = append(s.errs, err)
			added++
		}
	}
	return added
}

// Errors returns all non-fatal session errors, such as unexpected replies.
func (s *Session) Errors() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.errs...)
}

// Terminate closes the session immediately, without close-session. Pending
// requests are resolved with *ncerr.SessionClosedError with Cause err.
func (s *Session) Terminate(err error) { s.teardown(err) }

// protocolError logs and records a non-fatal protocol violation.
func (s *Session) protocolError(err error) {
	glog.Warningf("session %d: %v", s.id, err)
	s.AddError(err)
}

// readFailed handles the termination of the message stream.
func (s *Session) readFailed(err error) {
	var fe *ncerr.FramingError
	switch {
	case err == io.EOF:
		err = &ncerr.TransportError{Op: "read", Err: io.EOF}
	case errors.As(err, &fe):
		s.env.metrics.FramingError()
	}
	s.teardown(err)
}

// teardown moves the session to StateClosed, closes the channel and
// resolves all pending requests. cause is nil for a graceful close.
func (s *Session) teardown(cause error) {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state, s.err = StateClosed, cause
	pending := s.pending
	s.pending = map[string]*Pending{}
	s.mu.Unlock()

	_ = s.ch.Close()
	for _, p := range pending {
		p.resolve(nil, &ncerr.SessionClosedError{Cause: cause})
	}
	close(s.done)
	s.env.unregister(s)
	s.env.metrics.SessionClosed(s.role(), cause == nil)
	if cause != nil {
		glog.Errorf("session %d: closed: %v", s.id, cause)
	} else {
		glog.Infof("session %d: closed", s.id)
	}
}

// write writes one message to the peer. Fatal errors close the session.
func (s *Session) write(b []byte) error {
	s.sendMu.Lock()
	err := s.writer.WriteMessage(b)
	s.sendMu.Unlock()
	if err != nil && ncerr.IsFatal(err) {
		s.teardown(err)
	}
	return err
}

// readLoop reads and dispatches the messages received by a client session.
func (s *Session) readLoop() {
	for {
		b, err := s.reader.ReadMessage()
		if err != nil {
			s.readFailed(err)
			return
		}
		s.receive(b)
	}
}

func (s *Session) receive(b []byte) {
	m, err := message.Parse(b)
	if err != nil {
		s.protocolError(errors.Wrap(err, "dropped message"))
		return
	}
	switch m.Kind {
	case message.KindRPCReply:
		r, err := message.DecodeReply(m)
		if r == nil {
			s.protocolError(errors.Wrap(err, "dropped rpc-reply"))
			return
		}
		s.resolveReply(r, err)
	case message.KindNotification:
		n, err := message.DecodeNotification(m)
		if err != nil {
			s.protocolError(errors.Wrap(err, "dropped notification"))
			return
		}
		s.env.metrics.Notification()
		if sink := s.cfg.NotificationSink; sink != nil {
			sink.HandleNotification(s, &message.Reply{Kind: message.ReplyNotification, Notification: n})
		} else if glog.V(1) {
			glog.Infof("session %d: notification at %v dropped, no sink", s.id, n.EventTime)
		}
	default:
		s.protocolError(errors.Errorf("dropped unexpected %s message", m.Kind))
	}
}

// resolveReply resolves the request pending for r. decodeErr is set when
// r's content could not be decoded.
func (s *Session) resolveReply(r *message.Reply, decodeErr error) {
	graceful := decodeErr == nil && r.Kind == message.ReplyOK
	s.mu.Lock()
	p, ok := s.pending[r.MessageID]
	if ok {
		delete(s.pending, r.MessageID)
	}
	closing := ok && s.state == StateClosing && r.MessageID == s.closeID
	if closing && !graceful {
		// the peer refused close-session; the session remains open
		s.state, s.closeID = StateOpen, ""
	}
	s.mu.Unlock()

	if !ok {
		s.env.metrics.UnexpectedReply()
		s.protocolError(&ncerr.UnexpectedReplyError{MessageID: r.MessageID})
		return
	}
	s.env.metrics.ReplyReceived(p.Operation, r.Kind.String(), s.env.now().Sub(p.Sent))
	if glog.V(1) {
		glog.Infof("session %d: %s reply to %s message-id %s", s.id, r.Kind, p.Operation, r.MessageID)
	}
	if decodeErr != nil {
		p.resolve(nil, errors.Wrap(decodeErr, "bad rpc-reply"))
	} else {
		p.resolve(r, nil)
	}
	if closing && graceful {
		s.teardown(nil)
	}
}
