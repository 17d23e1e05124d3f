package server

import (
	"context"
	"strconv"

	"github.com/andaru/ncrpc/message"
	"github.com/andaru/ncrpc/ncerr"
	"github.com/andaru/ncrpc/ops"
	"github.com/andaru/ncrpc/xmlutil"
	"github.com/golang/glog"
	"github.com/pkg/errors"
)

func (s *Server) defaultHandlers() {
	for name, fn := range map[string]HandlerFunc{
		ops.NameGet:            s.get,
		ops.NameGetConfig:      s.getConfig,
		ops.NameEditConfig:     s.editConfig,
		ops.NameCopyConfig:     s.copyConfig,
		ops.NameDeleteConfig:   s.deleteConfig,
		ops.NameLock:           s.lock,
		ops.NameUnlock:         s.unlock,
		ops.NameCommit:         s.commit,
		ops.NameDiscardChanges: s.discardChanges,
		ops.NameValidate:       s.validate,
		ops.NameCloseSession:   closeSession,
		ops.NameKillSession:    s.killSession,
	} {
		s.handlers[xmlutil.XMLName(name, message.NSBase)] = fn
	}
	s.handlers[xmlutil.XMLName(ops.NameCreateSubscription, message.NSNotification)] = s.createSubscription
}

func okReply(err error) (*message.Reply, error) {
	if err != nil {
		return nil, err
	}
	return message.OK(), nil
}

func dataReply(b []byte, err error) (*message.Reply, error) {
	if err != nil {
		return nil, err
	}
	return message.DataReply(b), nil
}

func (s *Server) get(ctx context.Context, req *Request) (*message.Reply, error) {
	op := req.Op.(ops.Get)
	return dataReply(s.store.Get(ctx, req.Session.ID(), op.Filter))
}

func (s *Server) getConfig(ctx context.Context, req *Request) (*message.Reply, error) {
	op := req.Op.(ops.GetConfig)
	return dataReply(s.store.GetConfig(ctx, req.Session.ID(), op.Source, op.Filter))
}

// check runs the validator, if any, over configuration content.
func (s *Server) check(config []byte, ns xmlutil.PrefixMap) error {
	if s.cfg.Validator == nil {
		return nil
	}
	return s.cfg.Validator.Validate(config, ns)
}

func (s *Server) editConfig(ctx context.Context, req *Request) (*message.Reply, error) {
	op := req.Op.(ops.EditConfig)
	if op.TestOption != ops.TestSet {
		if err := s.check(op.Config, op.Namespaces); err != nil {
			return nil, err
		}
	}
	err := s.store.EditConfig(ctx, req.Session.ID(), op)
	if op.Target == ops.Running && op.TestOption != ops.TestOnly && !fatal(err) {
		s.configChanged(req, ops.Running)
	}
	return okReply(err)
}

// fatal returns true if err holds an error severity rpc-error, or is not
// an rpc-error at all.
func fatal(err error) bool { return err != nil && ncerr.AsList(err).Fatal() }

func (s *Server) copyConfig(ctx context.Context, req *Request) (*message.Reply, error) {
	op := req.Op.(ops.CopyConfig)
	if op.Source == (ops.Ref{}) {
		if err := s.check(op.Config, op.Namespaces); err != nil {
			return nil, err
		}
	}
	err := s.store.CopyConfig(ctx, req.Session.ID(), op)
	if err == nil && op.Target.Datastore == ops.Running {
		s.configChanged(req, ops.Running)
	}
	return okReply(err)
}

func (s *Server) deleteConfig(ctx context.Context, req *Request) (*message.Reply, error) {
	op := req.Op.(ops.DeleteConfig)
	return okReply(s.store.DeleteConfig(ctx, req.Session.ID(), op.Target))
}

func (s *Server) lock(ctx context.Context, req *Request) (*message.Reply, error) {
	op := req.Op.(ops.Lock)
	return okReply(s.store.Lock(ctx, req.Session.ID(), op.Target))
}

func (s *Server) unlock(ctx context.Context, req *Request) (*message.Reply, error) {
	op := req.Op.(ops.Unlock)
	return okReply(s.store.Unlock(ctx, req.Session.ID(), op.Target))
}

func (s *Server) commit(ctx context.Context, req *Request) (*message.Reply, error) {
	op := req.Op.(ops.Commit)
	err := s.store.Commit(ctx, req.Session.ID(), op)
	if err == nil {
		s.configChanged(req, ops.Running)
	}
	return okReply(err)
}

func (s *Server) discardChanges(ctx context.Context, req *Request) (*message.Reply, error) {
	return okReply(s.store.DiscardChanges(ctx, req.Session.ID()))
}

func (s *Server) validate(ctx context.Context, req *Request) (*message.Reply, error) {
	op := req.Op.(ops.Validate)
	id := req.Session.ID()
	switch {
	case op.Source == (ops.Ref{}):
		if err := s.check(op.Config, op.Namespaces); err != nil {
			return nil, err
		}
	case op.Source.Datastore != "" && s.cfg.Validator != nil:
		b, err := s.store.GetConfig(ctx, id, op.Source.Datastore, nil)
		if err != nil {
			return nil, err
		}
		if err := s.check(b, nil); err != nil {
			return nil, err
		}
	}
	return okReply(s.store.Validate(ctx, id, op))
}

// closeSession accepts close-session. The session closes once the reply
// is sent and its locks are then released.
func closeSession(context.Context, *Request) (*message.Reply, error) {
	return message.OK(), nil
}

func (s *Server) killSession(ctx context.Context, req *Request) (*message.Reply, error) {
	op := req.Op.(ops.KillSession)
	id := req.Session.ID()
	if op.SessionID == id {
		return nil, ncerr.InvalidValue(ncerr.WithType(ncerr.TypeProtocol), ncerr.WithMessage("a session cannot kill itself"))
	}
	target := s.session(op.SessionID)
	if target == nil {
		return nil, ncerr.InvalidValue(ncerr.WithType(ncerr.TypeProtocol),
			ncerr.WithMessage("no session "+strconv.FormatUint(uint64(op.SessionID), 10)))
	}
	glog.Infof("session %d (user %q) killed session %d", id, req.User, op.SessionID)
	target.s.Terminate(errors.Errorf("killed by session %d", id))
	s.store.ReleaseLocks(op.SessionID)
	return message.OK(), nil
}

// createSubscription subscribes the session to the NETCONF event stream.
// Event filters and replay are not supported.
func (s *Server) createSubscription(ctx context.Context, req *Request) (*message.Reply, error) {
	op := req.Op.(ops.CreateSubscription)
	if op.Stream != "" && op.Stream != ops.StreamNETCONF {
		return nil, ncerr.InvalidValue(ncerr.WithType(ncerr.TypeApplication), ncerr.WithMessage("unknown event stream "+op.Stream))
	}
	if op.Filter != nil {
		return nil, ncerr.OperationNotSupported(ncerr.WithType(ncerr.TypeApplication), ncerr.WithMessage("event filters are not supported"))
	}
	if !op.StartTime.IsZero() {
		return nil, ncerr.OperationFailed(ncerr.WithMessage("stream " + ops.StreamNETCONF + " does not support replay"))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.sessions[req.Session.ID()]
	if p == nil {
		return nil, ncerr.OperationFailed(ncerr.WithMessage("session is not registered"))
	}
	if p.subscribed {
		return nil, ncerr.InUse(ncerr.WithType(ncerr.TypeProtocol), ncerr.WithMessage("subscription already active"))
	}
	p.subscribed = true
	glog.V(1).Infof("session %d subscribed to %s", req.Session.ID(), ops.StreamNETCONF)
	return message.OK(), nil
}
