package session

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/andaru/ncrpc/capability"
	"github.com/andaru/ncrpc/message"
	"github.com/andaru/ncrpc/ops"
	"github.com/andaru/ncrpc/transport"
	"github.com/stretchr/testify/require"
)

// peer is a scripted far end of a session under test.
type peer struct {
	t    *testing.T
	conn net.Conn
	r    *transport.Reader
	w    *transport.Writer
	in   chan []byte
}

func newPipe(t *testing.T) (transport.Channel, *peer) {
	a, b := net.Pipe()
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return a, &peer{
		t:    t,
		conn: b,
		r:    transport.NewReader(b, 0),
		w:    transport.NewWriter(b, 0),
		in:   make(chan []byte, 64),
	}
}

// hello exchanges hellos with the session, switches framing mode and
// starts reading messages in the background.
func (p *peer) hello(id uint32, caps ...string) {
	b, err := message.EncodeHello(message.Hello{Capabilities: caps, SessionID: id})
	require.NoError(p.t, err)
	errc := make(chan error, 1)
	go func() { errc <- p.w.WriteMessage(b) }()
	got, err := p.r.ReadMessage()
	require.NoError(p.t, err)
	m, err := message.Parse(got)
	require.NoError(p.t, err)
	require.Equal(p.t, message.KindHello, m.Kind)
	require.NoError(p.t, <-errc)

	chunked := capability.Set(caps).Has(capability.Base11)
	p.r.SetFramingMode(chunked)
	p.w.SetFramingMode(chunked)
	go func() {
		defer close(p.in)
		for {
			b, err := p.r.ReadMessage()
			if err != nil {
				return
			}
			p.in <- b
		}
	}()
}

// next returns the next message sent by the session.
func (p *peer) next() *message.Message {
	select {
	case b, ok := <-p.in:
		require.True(p.t, ok, "session closed the channel")
		m, err := message.Parse(b)
		require.NoError(p.t, err)
		return m
	case <-time.After(5 * time.Second):
		p.t.Fatal("timed out waiting for a message from the session")
	}
	return nil
}

// nextRPC returns the next <rpc> sent by the session.
func (p *peer) nextRPC() *message.RPC {
	rpc, err := message.DecodeRPC(p.next())
	require.NoError(p.t, err)
	return rpc
}

// idle asserts the session sends nothing for d.
func (p *peer) idle(d time.Duration) {
	select {
	case b := <-p.in:
		p.t.Fatalf("unexpected message from session: %s", b)
	case <-time.After(d):
	}
}

func (p *peer) write(msg string) {
	require.NoError(p.t, p.w.WriteMessage([]byte(msg)))
}

func (p *peer) reply(id, content string) {
	p.write(`<rpc-reply xmlns="urn:ietf:params:xml:ns:netconf:base:1.0" message-id="` + id + `">` + content + `</rpc-reply>`)
}

// openClient opens a client session against a peer server advertising
// caps with session-id 1.
func openClient(t *testing.T, cfg Config, env *Env, caps ...string) (*Session, *peer) {
	ch, p := newPipe(t)
	type result struct {
		s   *Session
		err error
	}
	done := make(chan result, 1)
	go func() {
		s, err := Open(context.Background(), ch, cfg, env)
		done <- result{s, err}
	}()
	p.hello(1, caps...)
	r := <-done
	require.NoError(t, r.err)
	t.Cleanup(func() { r.s.Terminate(nil) })
	return r.s, p
}

// openServer opens a server session with session-id id against a peer
// client advertising caps.
func openServer(t *testing.T, id uint32, caps ...string) (*Session, *peer) {
	ch, p := newPipe(t)
	type result struct {
		s   *Session
		err error
	}
	done := make(chan result, 1)
	go func() {
		s, err := Open(context.Background(), ch, Config{ID: id}, nil)
		done <- result{s, err}
	}()
	p.hello(0, caps...)
	r := <-done
	require.NoError(t, r.err)
	t.Cleanup(func() { r.s.Terminate(nil) })
	return r.s, p
}

type callResult struct {
	r   *message.Reply
	err error
}

// call runs s.Call in the background.
func call(s *Session, op ops.Operation) <-chan callResult {
	done := make(chan callResult, 1)
	go func() {
		r, err := s.Call(context.Background(), op)
		done <- callResult{r, err}
	}()
	return done
}

// drain discards everything the session writes.
func drain(conn net.Conn) { go io.Copy(io.Discard, conn) }

var (
	lockRunning = ops.Lock{Target: ops.Running}

	base    = []string{capability.Base10, capability.Base11}
	base10  = []string{capability.Base10}
	allCaps = []string(capability.Default())
)
