package client

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/andaru/ncrpc/message"
	"github.com/andaru/ncrpc/ncerr"
	"github.com/andaru/ncrpc/ops"
	"github.com/andaru/ncrpc/session"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// serve opens a client on a pipe to a server session replying with h.
func serve(t *testing.T, h session.HandlerFunc) *Client {
	a, b := net.Pipe()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	go func() {
		s, err := session.Open(ctx, a, session.Config{ID: 7}, nil)
		if err != nil {
			return
		}
		_ = s.Serve(context.Background(), h)
	}()
	c, err := New(ctx, b, session.Config{}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.Session().Terminate(nil) })
	return c
}

func TestNewRefusesSessionID(t *testing.T) {
	a, b := net.Pipe()
	defer b.Close()
	_, err := New(context.Background(), a, session.Config{ID: 1}, nil)
	assert.Error(t, err)
}

func TestTypedMethods(t *testing.T) {
	ctx := context.Background()
	for _, tc := range []struct {
		name string
		call func(c *Client) ([]byte, error)
		want ops.Operation
	}{
		{
			name: "get",
			call: func(c *Client) ([]byte, error) { return c.Get(ctx, nil) },
			want: ops.Get{},
		},
		{
			name: "get-config",
			call: func(c *Client) ([]byte, error) {
				return c.GetConfig(ctx, ops.Candidate, &ops.Filter{Type: ops.FilterSubtree, Content: []byte(`<system/>`)})
			},
			want: ops.GetConfig{Source: ops.Candidate, Filter: &ops.Filter{Type: ops.FilterSubtree, Content: []byte(`<system/>`)}},
		},
		{
			name: "edit-config",
			call: func(c *Client) ([]byte, error) {
				return nil, c.EditConfig(ctx, ops.EditConfig{Target: ops.Running, Config: []byte(`<system/>`)})
			},
			want: ops.EditConfig{Target: ops.Running, Config: []byte(`<system/>`)},
		},
		{
			name: "copy-config",
			call: func(c *Client) ([]byte, error) {
				return nil, c.CopyConfig(ctx, ops.CopyConfig{Target: ops.Ref{Datastore: ops.Startup}, Source: ops.Ref{Datastore: ops.Running}})
			},
			want: ops.CopyConfig{Target: ops.Ref{Datastore: ops.Startup}, Source: ops.Ref{Datastore: ops.Running}},
		},
		{
			name: "delete-config",
			call: func(c *Client) ([]byte, error) { return nil, c.DeleteConfig(ctx, ops.Ref{Datastore: ops.Startup}) },
			want: ops.DeleteConfig{Target: ops.Ref{Datastore: ops.Startup}},
		},
		{
			name: "lock",
			call: func(c *Client) ([]byte, error) { return nil, c.Lock(ctx, ops.Running) },
			want: ops.Lock{Target: ops.Running},
		},
		{
			name: "unlock",
			call: func(c *Client) ([]byte, error) { return nil, c.Unlock(ctx, ops.Candidate) },
			want: ops.Unlock{Target: ops.Candidate},
		},
		{
			name: "commit",
			call: func(c *Client) ([]byte, error) {
				return nil, c.Commit(ctx, ops.Commit{Confirmed: true, ConfirmTimeout: 30})
			},
			want: ops.Commit{Confirmed: true, ConfirmTimeout: 30},
		},
		{
			name: "discard-changes",
			call: func(c *Client) ([]byte, error) { return nil, c.DiscardChanges(ctx) },
			want: ops.DiscardChanges{},
		},
		{
			name: "validate",
			call: func(c *Client) ([]byte, error) {
				return nil, c.Validate(ctx, ops.Validate{Source: ops.Ref{Datastore: ops.Candidate}})
			},
			want: ops.Validate{Source: ops.Ref{Datastore: ops.Candidate}},
		},
		{
			name: "kill-session",
			call: func(c *Client) ([]byte, error) { return nil, c.KillSession(ctx, 12) },
			want: ops.KillSession{SessionID: 12},
		},
		{
			name: "create-subscription",
			call: func(c *Client) ([]byte, error) {
				return nil, c.CreateSubscription(ctx, ops.CreateSubscription{Stream: ops.StreamNETCONF})
			},
			want: ops.CreateSubscription{Stream: ops.StreamNETCONF},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert := assert.New(t)
			got := make(chan ops.Operation, 1)
			c := serve(t, func(ctx context.Context, s *session.Session, rpc *message.RPC) *message.Reply {
				op, perr := ops.Parse(rpc)
				if perr != nil {
					return message.ErrorReply(perr)
				}
				got <- op
				switch op.(type) {
				case ops.Get, ops.GetConfig:
					return message.DataReply([]byte("<data-for-" + op.Name() + "/>"))
				}
				return message.OK()
			})
			data, err := tc.call(c)
			require.NoError(t, err)
			assert.Equal(tc.want, <-got)
			switch tc.want.(type) {
			case ops.Get, ops.GetConfig:
				assert.Equal("<data-for-"+tc.want.Name()+"/>", string(data))
			}
		})
	}
}

func TestReplyErrors(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	c := serve(t, func(ctx context.Context, s *session.Session, rpc *message.RPC) *message.Reply {
		switch rpc.Operation.Local {
		case ops.NameLock:
			return message.ErrorReply(ncerr.LockDenied("3"))
		case ops.NameUnlock:
			return message.ErrorReply(ncerr.OperationFailed(ncerr.WithSeverity(ncerr.SeverityWarning), ncerr.WithMessage("nothing to unlock")))
		case ops.NameGet:
			return message.OK()
		}
		return message.DataReply(nil)
	})

	err := c.Lock(ctx, ops.Running)
	var l ncerr.List
	require.True(t, errors.As(err, &l))
	assert.Equal("lock-denied", l[0].Tag)
	assert.Equal("3", l[0].Info.SessionID)

	// warnings alone do not fail an operation
	r, err := c.Do(ctx, ops.Unlock{Target: ops.Running})
	require.NoError(t, err)
	assert.Len(r.Errors.Warnings(), 1)
	assert.NoError(c.Unlock(ctx, ops.Running))

	// wrong reply kinds
	_, err = c.Get(ctx, nil)
	assert.Error(err)
	assert.Error(c.DiscardChanges(ctx))

	// refused locally, before anything is sent
	var unsupported *ncerr.UnsupportedOperationError
	assert.True(errors.As(c.DeleteConfig(ctx, ops.Ref{Datastore: ops.Running}), &unsupported))
}

func TestClose(t *testing.T) {
	assert := assert.New(t)
	c := serve(t, func(ctx context.Context, s *session.Session, rpc *message.RPC) *message.Reply {
		return message.OK()
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(c.Close(ctx))
	assert.Equal(session.StateClosed, c.Session().State())
	_, err := c.Get(ctx, nil)
	var closed *ncerr.SessionClosedError
	assert.True(errors.As(err, &closed))
}
