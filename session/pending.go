package session

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/andaru/ncrpc/message"
	"github.com/andaru/ncrpc/ncerr"
	"github.com/andaru/ncrpc/ops"
	"github.com/golang/glog"
	"github.com/pkg/errors"
)

// Pending is a request awaiting its reply. It is resolved exactly once:
// by the reply with its message-id, by timeout, by cancellation, or by
// the session closing.
type Pending struct {
	ID        string
	Operation string
	// Sent is the time the request was registered.
	Sent time.Time
	// Deadline is zero if the request does not time out.
	Deadline time.Time

	s     *Session
	timer *time.Timer
	once  sync.Once
	done  chan struct{}
	reply *message.Reply
	err   error
}

func (p *Pending) resolve(r *message.Reply, err error) (resolved bool) {
	p.once.Do(func() {
		if p.timer != nil {
			p.timer.Stop()
		}
		p.reply, p.err = r, err
		close(p.done)
		resolved = true
	})
	return resolved
}

// Done returns a channel closed when p is resolved.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Result blocks until p is resolved and returns its resolution. The reply
// may carry rpc-errors; see message.Reply.Err.
func (p *Pending) Result() (*message.Reply, error) {
	<-p.done
	return p.reply, p.err
}

// Wait returns the resolution of p, or ctx.Err() if ctx is done first. p
// remains pending in the latter case.
func (p *Pending) Wait(ctx context.Context) (*message.Reply, error) {
	select {
	case <-p.done:
		return p.reply, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel resolves p with ncerr.ErrCancelled, if not already resolved. A
// reply arriving later is treated as unexpected. Cancelling close-session
// terminates the session.
func (p *Pending) Cancel() bool {
	if !p.s.remove(p) {
		return false
	}
	resolved := p.resolve(nil, ncerr.ErrCancelled)
	p.s.abandon(p, ncerr.ErrCancelled)
	return resolved
}

// remove removes p from the pending map, returning false if it was not
// present.
func (s *Session) remove(p *Pending) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending[p.ID] != p {
		return false
	}
	delete(s.pending, p.ID)
	return true
}

func (s *Session) expire(p *Pending) {
	if !s.remove(p) {
		return
	}
	s.env.metrics.Timeout(p.Operation)
	glog.Warningf("session %d: %s message-id %s timed out", s.id, p.Operation, p.ID)
	err := &ncerr.TimeoutError{MessageID: p.ID, Operation: p.Operation}
	p.resolve(nil, err)
	s.abandon(p, err)
}

// abandon terminates the session with cause when p, resolved without a
// reply, was its close-session request.
func (s *Session) abandon(p *Pending, cause error) {
	s.mu.Lock()
	closing := s.state == StateClosing && p.ID == s.closeID
	s.mu.Unlock()
	if closing {
		s.teardown(cause)
	}
}

// Pending returns the number of requests awaiting replies.
func (s *Session) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Send checks op against the negotiated capabilities, then sends it with
// the next message-id. It returns once the request is written. Operations
// failing the check return *ncerr.UnsupportedOperationError and nothing is
// sent.
func (s *Session) Send(ctx context.Context, op ops.Operation) (*Pending, error) {
	if s.Server() {
		return nil, errors.New("requests are sent by client sessions only")
	}
	if err := op.Check(s.caps); err != nil {
		return nil, err
	}
	payload, err := op.Payload()
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s", op.Name())
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// message-ids are allocated and written in the same order
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	s.mu.Lock()
	if s.state != StateOpen {
		err := &ncerr.SessionClosedError{Cause: s.err}
		s.mu.Unlock()
		return nil, err
	}
	s.nextID++
	now := s.env.now()
	p := &Pending{
		ID:        strconv.FormatUint(s.nextID, 10),
		Operation: op.Name(),
		Sent:      now,
		s:         s,
		done:      make(chan struct{}),
	}
	if t := s.cfg.RequestTimeout; t > 0 {
		p.Deadline = now.Add(t)
		p.timer = time.AfterFunc(t, func() { s.expire(p) })
	}
	s.pending[p.ID] = p
	if op.Name() == ops.NameCloseSession {
		s.state, s.closeID = StateClosing, p.ID
	}
	s.mu.Unlock()

	b, err := message.EncodeRPC(p.ID, payload)
	if err == nil {
		err = s.writer.WriteMessage(b)
	}
	if err != nil {
		s.remove(p)
		p.resolve(nil, err)
		if ncerr.IsFatal(err) {
			s.teardown(err)
		}
		return nil, err
	}
	s.env.metrics.RPCSent(op.Name())
	if glog.V(1) {
		glog.Infof("session %d: sent %s message-id %s", s.id, op.Name(), p.ID)
	}
	return p, nil
}

// Call sends op and waits for its reply. If ctx is done first, the
// request is cancelled.
func (s *Session) Call(ctx context.Context, op ops.Operation) (*message.Reply, error) {
	p, err := s.Send(ctx, op)
	if err != nil {
		return nil, err
	}
	select {
	case <-p.Done():
		return p.Result()
	case <-ctx.Done():
		p.Cancel()
		return nil, ctx.Err()
	}
}

// Close gracefully closes a client session with close-session, blocking
// until the session is closed or ctx is done, at which point the session is
// terminated. Server sessions are terminated immediately.
func (s *Session) Close(ctx context.Context) error {
	if s.Server() {
		s.Terminate(nil)
		return nil
	}
	p, err := s.Send(ctx, ops.CloseSession{})
	if err != nil {
		var sce *ncerr.SessionClosedError
		if errors.As(err, &sce) {
			return nil
		}
		s.Terminate(err)
		return err
	}
	r, err := p.Wait(ctx)
	if err == nil {
		err = r.Err()
	}
	if err != nil {
		s.Terminate(err)
		return err
	}
	select {
	case <-s.done:
	case <-ctx.Done():
		s.Terminate(ctx.Err())
		return ctx.Err()
	}
	return nil
}
