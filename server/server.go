// Package server is a NETCONF server. It accepts SSH connections, opens
// a server session for each netconf subsystem channel and dispatches the
// operations received to one handler per operation name. The default
// handlers serve the RFC6241 operations from a Datastore.
package server

import (
	"context"
	"encoding/xml"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/andaru/ncrpc/capability"
	"github.com/andaru/ncrpc/message"
	"github.com/andaru/ncrpc/ncerr"
	"github.com/andaru/ncrpc/ops"
	"github.com/andaru/ncrpc/session"
	"github.com/andaru/ncrpc/transport"
	"github.com/andaru/ncrpc/xmlutil"
	"github.com/golang/glog"
	"github.com/pkg/errors"
	"golang.org/x/crypto/ssh"
)

// ErrTooManySessions is returned by ServeChannel when MaxSessions
// sessions are already open.
var ErrTooManySessions = errors.New("too many sessions")

// Datastore is the configuration backend of the default handlers. Errors
// should be *ncerr.Error or ncerr.List; other errors are returned to the
// client as operation-failed. id is the session-id of the requester.
type Datastore interface {
	Get(ctx context.Context, id uint32, f *ops.Filter) ([]byte, error)
	GetConfig(ctx context.Context, id uint32, source ops.Datastore, f *ops.Filter) ([]byte, error)
	EditConfig(ctx context.Context, id uint32, op ops.EditConfig) error
	CopyConfig(ctx context.Context, id uint32, op ops.CopyConfig) error
	DeleteConfig(ctx context.Context, id uint32, target ops.Ref) error
	Lock(ctx context.Context, id uint32, target ops.Datastore) error
	Unlock(ctx context.Context, id uint32, target ops.Datastore) error
	Commit(ctx context.Context, id uint32, op ops.Commit) error
	DiscardChanges(ctx context.Context, id uint32) error
	Validate(ctx context.Context, id uint32, op ops.Validate) error
	// ReleaseLocks is called when session id ends.
	ReleaseLocks(id uint32)
}

// Validator checks configuration content against a schema.
type Validator interface {
	Validate(config []byte, ns xmlutil.PrefixMap) error
}

// Config is the server configuration.
type Config struct {
	// Capabilities are advertised in each session's hello. Nil selects
	// capability.Default().
	Capabilities capability.Set
	// Session is the template for server sessions. ID and Capabilities
	// are set by the server.
	Session session.Config
	// MaxSessions limits concurrent sessions, zero for no limit.
	MaxSessions int
	// SSH configures the SSH server used by Serve.
	SSH *ssh.ServerConfig
	// Validator, if set, checks configuration before it is stored.
	Validator Validator
}

// Request is an operation received by the server.
type Request struct {
	Session *session.Session
	// User is the authenticated user name of the session.
	User string
	RPC  *message.RPC
	// Op is the decoded operation for base operations and
	// create-subscription.
	Op ops.Operation
}

// HandlerFunc handles the requests for one operation. The error, if any,
// is sent as the reply's rpc-errors. Returning a nil reply and error
// means the handler replies later with Request.Session.SendReply.
type HandlerFunc func(ctx context.Context, req *Request) (*message.Reply, error)

type peer struct {
	s      *session.Session
	user   string
	opened time.Time
	// subscribed is set once the session has created a subscription.
	subscribed bool
}

// Server is a NETCONF server.
type Server struct {
	cfg   Config
	store Datastore
	env   *session.Env

	mu       sync.Mutex
	handlers map[xml.Name]HandlerFunc
	sessions map[uint32]*peer
	reserved int
	nextID   uint32
}

// New returns a server serving store. env may be nil.
func New(store Datastore, cfg Config, env *session.Env) *Server {
	if cfg.Capabilities == nil {
		cfg.Capabilities = capability.Default()
	}
	if env == nil {
		env = session.NewEnv()
	}
	s := &Server{
		cfg:      cfg,
		store:    store,
		env:      env,
		handlers: map[xml.Name]HandlerFunc{},
		sessions: map[uint32]*peer{},
	}
	s.defaultHandlers()
	return s
}

// Handle sets the handler for operation name, replacing any existing
// handler. Names in the base namespace are given as local names only.
func (s *Server) Handle(name xml.Name, fn HandlerFunc) {
	if name.Space == "" {
		name.Space = message.NSBase
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn == nil {
		delete(s.handlers, name)
		return
	}
	s.handlers[name] = fn
}

func (s *Server) handler(name xml.Name) HandlerFunc {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handlers[name]
}

// Sessions returns the ids of the open sessions, in ascending order.
func (s *Server) Sessions() []uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]uint32, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (s *Server) session(id uint32) *peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[id]
}

// reserve allocates a session-id, or fails when MaxSessions are open.
func (s *Server) reserve() (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg.MaxSessions > 0 && s.reserved >= s.cfg.MaxSessions {
		return 0, ErrTooManySessions
	}
	s.reserved++
	s.nextID++
	if s.nextID == 0 {
		s.nextID = 1
	}
	return s.nextID, nil
}

func (s *Server) release(id uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reserved--
	delete(s.sessions, id)
}

// Serve accepts connections on l, performing the SSH handshake and
// serving each netconf subsystem channel as a session. It returns when
// ctx is done or Accept fails.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	if s.cfg.SSH == nil {
		return errors.New("Serve requires an SSH server configuration")
	}
	stop := context.AfterFunc(ctx, func() { l.Close() })
	defer stop()

	glog.Infof("serving NETCONF on %s", l.Addr())
	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "accept")
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := transport.ServeSSH(ctx, conn, s.cfg.SSH, func(ch transport.Channel, user string) {
				if err := s.ServeChannel(ctx, ch, user); err != nil {
					glog.Warningf("session from %s: %v", conn.RemoteAddr(), err)
				}
			})
			if err != nil {
				glog.Warningf("connection from %s: %v", conn.RemoteAddr(), err)
			}
		}()
	}
}

// ServeChannel opens a server session on ch for the authenticated user and
// serves it until it closes. Locks held by the session are released when
// it ends. It returns the error which closed the session.
func (s *Server) ServeChannel(ctx context.Context, ch transport.Channel, user string) error {
	id, err := s.reserve()
	if err != nil {
		ch.Close()
		return err
	}
	defer s.release(id)

	cfg := s.cfg.Session
	cfg.ID, cfg.Capabilities = id, s.cfg.Capabilities
	sess, err := session.Open(ctx, ch, cfg, s.env)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.sessions[id] = &peer{s: sess, user: user, opened: s.env.Now()}
	s.mu.Unlock()
	glog.Infof("session %d opened for user %q", id, user)

	err = sess.Serve(ctx, session.HandlerFunc(func(ctx context.Context, sess *session.Session, rpc *message.RPC) *message.Reply {
		return s.dispatch(ctx, &Request{Session: sess, User: user, RPC: rpc})
	}))
	s.store.ReleaseLocks(id)
	if err != nil {
		glog.Infof("session %d closed: %v", id, err)
	} else {
		glog.Infof("session %d closed", id)
	}
	return err
}

// dispatch returns the reply to req from the handler for its operation.
func (s *Server) dispatch(ctx context.Context, req *Request) *message.Reply {
	fn := s.handler(req.RPC.Operation)
	if fn == nil {
		return message.ErrorReply(ncerr.OperationNotSupported(
			ncerr.WithType(ncerr.TypeProtocol),
			ncerr.WithMessage("unsupported operation "+req.RPC.Operation.Local)))
	}
	if ns := req.RPC.Operation.Space; ns == message.NSBase || ns == message.NSNotification {
		op, perr := ops.Parse(req.RPC)
		if perr != nil {
			return message.ErrorReply(perr)
		}
		if err := op.Check(s.cfg.Capabilities); err != nil {
			return message.ErrorReply(ncerr.OperationNotSupported(
				ncerr.WithType(ncerr.TypeProtocol), ncerr.WithMessage(err.Error())))
		}
		req.Op = op
	}
	r, err := fn(ctx, req)
	if err != nil {
		return message.ErrorReply(ncerr.AsList(err)...)
	}
	return r
}
