// Package config holds the YAML configuration of the ncclient and
// ncserver programs.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/andaru/ncrpc/capability"
	"github.com/andaru/ncrpc/session"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Defaults.
const (
	DefaultAddress        = "localhost:830"
	DefaultListen         = ":830"
	DefaultMetricsListen  = ":9830"
	DefaultHostKey        = "ncserver_host_ed25519_key"
	DefaultMaxSessions    = 100
	DefaultDialTimeout    = 30 * time.Second
	DefaultConfirmTimeout = 600 * time.Second
)

// Duration is a time.Duration written in YAML as a string such as "30s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return errors.Wrapf(err, "line %d", n.Line)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) { return time.Duration(d).String(), nil }

// Session configures NETCONF sessions. Zero values select the session
// package defaults.
type Session struct {
	HelloTimeout   Duration `yaml:"hello-timeout,omitempty"`
	RequestTimeout Duration `yaml:"request-timeout,omitempty"`
	MaxMessageSize int      `yaml:"max-message-size,omitempty"`
	MaxChunkSize   int      `yaml:"max-chunk-size,omitempty"`
	// Capabilities replaces the default capabilities advertised.
	Capabilities []string `yaml:"capabilities,omitempty"`
}

// SessionConfig returns the session.Config described by s.
func (s Session) SessionConfig() session.Config {
	cfg := session.Config{
		HelloTimeout:   time.Duration(s.HelloTimeout),
		RequestTimeout: time.Duration(s.RequestTimeout),
		MaxMessageSize: s.MaxMessageSize,
		MaxChunkSize:   s.MaxChunkSize,
	}
	if len(s.Capabilities) > 0 {
		cfg.Capabilities = capability.Set(s.Capabilities)
	}
	return cfg
}

func (s Session) validate() error {
	if s.MaxMessageSize < 0 || s.MaxChunkSize < 0 {
		return errors.New("session: sizes must not be negative")
	}
	if len(s.Capabilities) > 0 && !capability.Set(s.Capabilities).Any(capability.Base10, capability.Base11) {
		return errors.New("session: capabilities must include a base protocol version")
	}
	return nil
}

// Client is the ncclient configuration.
type Client struct {
	Address  string `yaml:"address"`
	User     string `yaml:"user"`
	Password string `yaml:"password,omitempty"`
	// KeyFile is a PEM private key used instead of Password.
	KeyFile    string `yaml:"key-file,omitempty"`
	Passphrase string `yaml:"passphrase,omitempty"`
	// KnownHosts is an OpenSSH known_hosts file checked against the
	// server host key.
	KnownHosts string `yaml:"known-hosts,omitempty"`
	// InsecureIgnoreHostKey accepts any server host key.
	InsecureIgnoreHostKey bool     `yaml:"insecure-ignore-host-key,omitempty"`
	Timeout               Duration `yaml:"timeout,omitempty"`
	Session               Session  `yaml:"session,omitempty"`
}

// DefaultClient returns the default client configuration.
func DefaultClient() Client {
	return Client{
		Address: DefaultAddress,
		User:    os.Getenv("USER"),
		Timeout: Duration(DefaultDialTimeout),
	}
}

// Validate checks c for errors.
func (c Client) Validate() error {
	if strings.TrimSpace(c.Address) == "" {
		return errors.New("client: address is required")
	}
	if c.User == "" {
		return errors.New("client: user is required")
	}
	if c.KnownHosts == "" && !c.InsecureIgnoreHostKey {
		return errors.New("client: known-hosts is required unless insecure-ignore-host-key is set")
	}
	if c.Timeout < 0 {
		return errors.New("client: timeout must not be negative")
	}
	return c.Session.validate()
}

// User is an account allowed to connect to the server.
type User struct {
	Name string `yaml:"name"`
	// PasswordHash is a bcrypt or argon2id hash, as made by HashPassword.
	PasswordHash string `yaml:"password-hash"`
}

// SSH restricts the algorithms offered by the SSH server. Empty lists
// select the golang.org/x/crypto/ssh defaults.
type SSH struct {
	Ciphers      []string `yaml:"ciphers,omitempty"`
	KeyExchanges []string `yaml:"key-exchanges,omitempty"`
	MACs         []string `yaml:"macs,omitempty"`
}

// Server is the ncserver configuration.
type Server struct {
	Listen string `yaml:"listen"`
	// MetricsListen is the address of the HTTP /metrics endpoint. Empty
	// disables it.
	MetricsListen string `yaml:"metrics-listen"`
	// HostKey is the path of the SSH host key, generated when absent.
	HostKey     string `yaml:"host-key"`
	MaxSessions int    `yaml:"max-sessions"`
	// ConfirmTimeout is the default confirmed commit timeout.
	ConfirmTimeout Duration `yaml:"confirm-timeout,omitempty"`
	Users          []User   `yaml:"users"`
	// YANG lists module files checked against configuration.
	YANG []string `yaml:"yang,omitempty"`
	// Running and Startup are XML files loaded into the datastores.
	Running string  `yaml:"running,omitempty"`
	Startup string  `yaml:"startup,omitempty"`
	SSH     SSH     `yaml:"ssh,omitempty"`
	Session Session `yaml:"session,omitempty"`
}

// DefaultServer returns the default server configuration.
func DefaultServer() Server {
	return Server{
		Listen:         DefaultListen,
		MetricsListen:  DefaultMetricsListen,
		HostKey:        DefaultHostKey,
		MaxSessions:    DefaultMaxSessions,
		ConfirmTimeout: Duration(DefaultConfirmTimeout),
	}
}

// Validate checks s for errors.
func (s Server) Validate() error {
	if strings.TrimSpace(s.Listen) == "" {
		return errors.New("server: listen is required")
	}
	if s.HostKey == "" {
		return errors.New("server: host-key is required")
	}
	if s.MaxSessions < 0 {
		return errors.New("server: max-sessions must not be negative")
	}
	if s.ConfirmTimeout < 0 {
		return errors.New("server: confirm-timeout must not be negative")
	}
	if len(s.Users) == 0 {
		return errors.New("server: no users")
	}
	seen := map[string]bool{}
	for i, u := range s.Users {
		if u.Name == "" {
			return errors.Errorf("server: users[%d]: name is required", i)
		}
		if seen[u.Name] {
			return errors.Errorf("server: users[%d]: duplicate user %q", i, u.Name)
		}
		seen[u.Name] = true
		if !isHash(u.PasswordHash) {
			return errors.Errorf("server: users[%d]: password-hash is not a bcrypt or argon2id hash", i)
		}
	}
	return s.Session.validate()
}

// LoadClient reads the client configuration at path over the defaults.
// An empty path returns the defaults.
func LoadClient(path string) (Client, error) {
	c := DefaultClient()
	if err := load(path, &c); err != nil {
		return Client{}, err
	}
	return c, nil
}

// LoadServer reads the server configuration at path over the defaults.
func LoadServer(path string) (Server, error) {
	s := DefaultServer()
	if err := load(path, &s); err != nil {
		return Server{}, err
	}
	return s, nil
}

func load(path string, out interface{}) error {
	if path == "" {
		return nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "config load")
	}
	if err := yaml.Unmarshal(b, out); err != nil {
		return errors.Wrapf(err, "config parse %s", path)
	}
	return nil
}
