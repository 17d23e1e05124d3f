package transport

import (
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/andaru/ncrpc/ncerr"
	"github.com/golang/glog"
	"github.com/pkg/errors"
	"golang.org/x/crypto/ssh"
)

// SubsystemName is the SSH subsystem carrying NETCONF (RFC6242 s3).
const SubsystemName = "netconf"

// CredentialProvider supplies SSH authentication methods. It is consulted
// once, while the transport is being set up.
type CredentialProvider interface {
	AuthMethods(user, addr string) ([]ssh.AuthMethod, error)
}

// CredentialFunc adapts a function to the CredentialProvider interface.
type CredentialFunc func(user, addr string) ([]ssh.AuthMethod, error)

func (f CredentialFunc) AuthMethods(user, addr string) ([]ssh.AuthMethod, error) {
	return f(user, addr)
}

// PasswordCredentials authenticates with a fixed password.
type PasswordCredentials struct{ Password string }

func (p PasswordCredentials) AuthMethods(string, string) ([]ssh.AuthMethod, error) {
	return []ssh.AuthMethod{ssh.Password(p.Password)}, nil
}

// KeyCredentials authenticates with a PEM encoded private key.
type KeyCredentials struct {
	PEM        []byte
	Passphrase []byte
}

func (k KeyCredentials) AuthMethods(string, string) ([]ssh.AuthMethod, error) {
	var (
		signer ssh.Signer
		err    error
	)
	if len(k.Passphrase) > 0 {
		signer, err = ssh.ParsePrivateKeyWithPassphrase(k.PEM, k.Passphrase)
	} else {
		signer, err = ssh.ParsePrivateKey(k.PEM)
	}
	if err != nil {
		return nil, errors.Wrap(err, "parse private key")
	}
	return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
}

// SSHConfig is the client side SSH transport configuration.
type SSHConfig struct {
	User        string
	Credentials CredentialProvider
	// HostKeyCallback verifies the server host key and must be set.
	HostKeyCallback ssh.HostKeyCallback
	// Timeout bounds TCP connection and SSH handshake time.
	Timeout time.Duration
}

// DialSSH connects to addr and returns a Channel bound to the server's
// netconf subsystem.
func DialSSH(ctx context.Context, addr string, cfg SSHConfig) (Channel, error) {
	if cfg.Credentials == nil {
		return nil, errors.New("DialSSH: no credential provider")
	}
	if cfg.HostKeyCallback == nil {
		return nil, errors.New("DialSSH: no host key callback")
	}
	auth, err := cfg.Credentials.AuthMethods(cfg.User, addr)
	if err != nil {
		return nil, errors.Wrap(err, "credentials")
	}

	d := net.Dialer{Timeout: cfg.Timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &ncerr.TransportError{Op: "dial", Err: err}
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            auth,
		HostKeyCallback: cfg.HostKeyCallback,
		Timeout:         cfg.Timeout,
	})
	if err != nil {
		conn.Close()
		return nil, &ncerr.TransportError{Op: "handshake", Err: err}
	}
	_ = conn.SetDeadline(time.Time{})
	client := ssh.NewClient(c, chans, reqs)

	ch, err := openSubsystem(client)
	if err != nil {
		client.Close()
		return nil, &ncerr.TransportError{Op: "subsystem", Err: err}
	}
	return ch, nil
}

func openSubsystem(client *ssh.Client) (*sshClientChannel, error) {
	sess, err := client.NewSession()
	if err != nil {
		return nil, err
	}
	stdin, err := sess.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := sess.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := sess.RequestSubsystem(SubsystemName); err != nil {
		return nil, err
	}
	return &sshClientChannel{Reader: stdout, WriteCloser: stdin, sess: sess, client: client}, nil
}

type sshClientChannel struct {
	io.Reader
	io.WriteCloser
	sess   *ssh.Session
	client *ssh.Client
	once   sync.Once
}

func (c *sshClientChannel) Close() (err error) {
	c.once.Do(func() {
		c.WriteCloser.Close()
		c.sess.Close()
		err = c.client.Close()
	})
	return err
}

// ServeSSH performs the server side SSH handshake on conn and calls handle
// for each netconf subsystem channel the client opens, passing the
// authenticated user name. handle owns the channel and blocks for the
// lifetime of its session. ServeSSH returns when the connection closes or
// ctx is done.
func ServeSSH(ctx context.Context, conn net.Conn, cfg *ssh.ServerConfig, handle func(ch Channel, user string)) error {
	sconn, chans, reqs, err := ssh.NewServerConn(conn, cfg)
	if err != nil {
		conn.Close()
		return &ncerr.TransportError{Op: "handshake", Err: err}
	}
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			sconn.Close()
		case <-done:
		}
	}()
	go ssh.DiscardRequests(reqs)

	user := sconn.User()
	glog.V(1).Infof("ssh connection from %s user %q", sconn.RemoteAddr(), user)

	var wg sync.WaitGroup
	for nc := range chans {
		if nc.ChannelType() != "session" {
			_ = nc.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}
		ch, requests, err := nc.Accept()
		if err != nil {
			glog.Warningf("ssh channel accept from %s: %v", sconn.RemoteAddr(), err)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			serveSessionChannel(ch, requests, user, handle)
		}()
	}
	wg.Wait()
	return sconn.Close()
}

// serveSessionChannel waits for a netconf subsystem request on the session
// channel ch, refusing shells, commands and other subsystems.
func serveSessionChannel(ch ssh.Channel, requests <-chan *ssh.Request, user string, handle func(Channel, string)) {
	defer ch.Close()
	for req := range requests {
		if req.Type != "subsystem" {
			_ = req.Reply(false, nil)
			continue
		}
		var payload struct{ Name string }
		if err := ssh.Unmarshal(req.Payload, &payload); err != nil || payload.Name != SubsystemName {
			_ = req.Reply(false, nil)
			continue
		}
		_ = req.Reply(true, nil)
		go ssh.DiscardRequests(requests)
		handle(ch, user)
		return
	}
}
