package session

import (
	"context"
	"encoding/xml"

	"github.com/andaru/ncrpc/message"
	"github.com/andaru/ncrpc/ncerr"
	"github.com/andaru/ncrpc/ops"
	"github.com/andaru/ncrpc/xmlutil"
	"github.com/golang/glog"
	"github.com/pkg/errors"
)

// Handler handles the requests received by server sessions.
type Handler interface {
	// HandleRPC returns the reply to rpc. Returning nil signals that the
	// handler will reply later by calling s.SendReply.
	HandleRPC(ctx context.Context, s *Session, rpc *message.RPC) *message.Reply
}

// HandlerFunc is a Handler function.
type HandlerFunc func(ctx context.Context, s *Session, rpc *message.RPC) *message.Reply

func (f HandlerFunc) HandleRPC(ctx context.Context, s *Session, rpc *message.RPC) *message.Reply {
	return f(ctx, s, rpc)
}

// Serve reads requests from the peer of server session s and dispatches
// them to h until the session closes. Cancelling ctx terminates the
// session. Serve returns the error which closed the session, nil after
// close-session.
func (s *Session) Serve(ctx context.Context, h Handler) error {
	if !s.Server() {
		return errors.New("Serve requires a server session")
	}
	stop := context.AfterFunc(ctx, func() { s.Terminate(ctx.Err()) })
	defer stop()
	for {
		b, err := s.reader.ReadMessage()
		if err != nil {
			s.readFailed(err)
			break
		}
		s.serveMessage(ctx, h, b)
	}
	return s.Err()
}

func (s *Session) serveMessage(ctx context.Context, h Handler, b []byte) {
	m, err := message.Parse(b)
	if err == nil && m.Kind != message.KindRPC {
		err = errors.Errorf("received %s message", m.Kind)
	}
	if err != nil {
		s.protocolError(errors.Wrap(err, "dropped message"))
		s.sendError(nil, ncerr.MalformedMessage(ncerr.WithMessage(err.Error())))
		return
	}
	rpc, err := message.DecodeRPC(m)
	switch {
	case errors.Is(err, message.ErrMissingMessageID):
		s.sendError(rpc, ncerr.MissingAttribute("message-id", "rpc", ncerr.WithType(ncerr.TypeRPC)))
		return
	case err != nil:
		s.protocolError(err)
		s.sendError(rpc, ncerr.MalformedMessage(ncerr.WithMessage(err.Error())))
		return
	}
	if glog.V(1) {
		glog.Infof("session %d: received %s message-id %s", s.id, rpc.Operation.Local, rpc.MessageID)
	}
	if rpc.Operation == xmlutil.XMLName(ops.NameCloseSession, message.NSBase) {
		s.mu.Lock()
		if s.state == StateOpen {
			s.state = StateClosing
		}
		s.mu.Unlock()
	}
	if r := h.HandleRPC(ctx, s, rpc); r != nil {
		if err := s.SendReply(rpc, r); err != nil {
			glog.Warningf("session %d: reply to message-id %s: %v", s.id, rpc.MessageID, err)
		}
	}
}

// sendError replies to rpc, which may be nil, with a single rpc-error.
func (s *Session) sendError(rpc *message.RPC, e *ncerr.Error) {
	r := message.ErrorReply(e)
	if rpc != nil {
		r.MessageID, r.Attrs = rpc.MessageID, replyAttrs(rpc)
	}
	b, err := r.Encode()
	if err == nil {
		err = s.write(b)
	}
	if err != nil {
		glog.Warningf("session %d: error reply: %v", s.id, err)
	}
}

// replyAttrs returns the attributes of rpc to be returned on its reply.
func replyAttrs(rpc *message.RPC) (attrs []xml.Attr) {
	for _, a := range rpc.Attrs {
		if a.Name.Local != "message-id" || a.Name.Space != "" {
			attrs = append(attrs, a)
		}
	}
	return attrs
}

// SendReply sends r as the reply to rpc. The reply carries the message-id
// and other attributes of rpc. An ok reply to close-session closes the
// session once written.
func (s *Session) SendReply(rpc *message.RPC, r *message.Reply) error {
	if s.State() == StateClosed {
		return &ncerr.SessionClosedError{Cause: s.Err()}
	}
	out := *r
	out.MessageID, out.Attrs = rpc.MessageID, replyAttrs(rpc)
	b, err := out.Encode()
	if err != nil {
		return errors.Wrapf(err, "encode reply to %s", rpc.Operation.Local)
	}
	if err := s.write(b); err != nil {
		return err
	}
	s.env.metrics.RPCHandled(rpc.Operation.Local, r.Kind.String())
	if rpc.Operation == xmlutil.XMLName(ops.NameCloseSession, message.NSBase) {
		if r.Kind == message.ReplyOK {
			s.teardown(nil)
		} else {
			s.mu.Lock()
			if s.state == StateClosing {
				s.state = StateOpen
			}
			s.mu.Unlock()
		}
	}
	return nil
}

// Notify sends the notification n to the peer of server session s.
func (s *Session) Notify(n *message.Notification) error {
	if st := s.State(); st != StateOpen {
		return &ncerr.SessionClosedError{Cause: s.Err()}
	}
	b, err := n.Encode()
	if err != nil {
		return err
	}
	return s.write(b)
}
