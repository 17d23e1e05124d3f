// Package client is a NETCONF client offering a method per operation.
//
// Operations are checked against the session's negotiated capabilities
// before they are sent. Replies carrying error severity rpc-errors are
// returned as ncerr.List; warnings are logged.
package client

import (
	"context"

	"github.com/andaru/ncrpc/message"
	"github.com/andaru/ncrpc/ops"
	"github.com/andaru/ncrpc/session"
	"github.com/andaru/ncrpc/transport"
	"github.com/golang/glog"
	"github.com/pkg/errors"
)

// Client is a NETCONF client session.
type Client struct {
	s *session.Session
}

// New opens a client session on ch. cfg.ID must be zero.
func New(ctx context.Context, ch transport.Channel, cfg session.Config, env *session.Env) (*Client, error) {
	if cfg.ID != 0 {
		_ = ch.Close()
		return nil, errors.New("client sessions have no configured session-id")
	}
	s, err := session.Open(ctx, ch, cfg, env)
	if err != nil {
		return nil, err
	}
	return &Client{s: s}, nil
}

// DialConfig configures Dial.
type DialConfig struct {
	SSH     transport.SSHConfig
	Session session.Config
}

// Dial connects to the NETCONF SSH server at addr and opens a session.
func Dial(ctx context.Context, addr string, cfg DialConfig, env *session.Env) (*Client, error) {
	ch, err := transport.DialSSH(ctx, addr, cfg.SSH)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", addr)
	}
	c, err := New(ctx, ch, cfg.Session, env)
	if err != nil {
		return nil, errors.Wrapf(err, "open session with %s", addr)
	}
	glog.Infof("connected to %s as %q, session-id %d", addr, cfg.SSH.User, c.s.ID())
	return c, nil
}

// Session returns the client's session.
func (c *Client) Session() *session.Session { return c.s }

// Do sends op and waits for its reply. If the reply carries error
// severity rpc-errors, both the reply and the errors (as ncerr.List) are
// returned.
func (c *Client) Do(ctx context.Context, op ops.Operation) (*message.Reply, error) {
	r, err := c.s.Call(ctx, op)
	if err != nil {
		return nil, err
	}
	for _, w := range r.Errors.Warnings() {
		glog.Warningf("session %d: %s: %v", c.s.ID(), op.Name(), w)
	}
	return r, r.Err()
}

func (c *Client) data(ctx context.Context, op ops.Operation) ([]byte, error) {
	r, err := c.Do(ctx, op)
	if err != nil {
		return nil, err
	}
	return ops.DataResult(r)
}

func (c *Client) ok(ctx context.Context, op ops.Operation) error {
	r, err := c.Do(ctx, op)
	if err != nil {
		return err
	}
	return ops.OKResult(r)
}

// Get returns running configuration and state data matching filter,
// which may be nil.
func (c *Client) Get(ctx context.Context, filter *ops.Filter) ([]byte, error) {
	return c.data(ctx, ops.Get{Filter: filter})
}

// GetConfig returns the configuration of source matching filter, which
// may be nil.
func (c *Client) GetConfig(ctx context.Context, source ops.Datastore, filter *ops.Filter) ([]byte, error) {
	return c.data(ctx, ops.GetConfig{Source: source, Filter: filter})
}

func (c *Client) EditConfig(ctx context.Context, op ops.EditConfig) error { return c.ok(ctx, op) }

func (c *Client) CopyConfig(ctx context.Context, op ops.CopyConfig) error { return c.ok(ctx, op) }

func (c *Client) DeleteConfig(ctx context.Context, target ops.Ref) error {
	return c.ok(ctx, ops.DeleteConfig{Target: target})
}

func (c *Client) Lock(ctx context.Context, target ops.Datastore) error {
	return c.ok(ctx, ops.Lock{Target: target})
}

func (c *Client) Unlock(ctx context.Context, target ops.Datastore) error {
	return c.ok(ctx, ops.Unlock{Target: target})
}

func (c *Client) Commit(ctx context.Context, op ops.Commit) error { return c.ok(ctx, op) }

func (c *Client) DiscardChanges(ctx context.Context) error { return c.ok(ctx, ops.DiscardChanges{}) }

func (c *Client) Validate(ctx context.Context, op ops.Validate) error { return c.ok(ctx, op) }

// KillSession terminates another session on the server.
func (c *Client) KillSession(ctx context.Context, id uint32) error {
	return c.ok(ctx, ops.KillSession{SessionID: id})
}

// CreateSubscription asks the server to send event notifications to the
// session's NotificationSink.
func (c *Client) CreateSubscription(ctx context.Context, op ops.CreateSubscription) error {
	return c.ok(ctx, op)
}

// Close closes the session with close-session.
func (c *Client) Close(ctx context.Context) error { return c.s.Close(ctx) }
