// Command ncclient sends NETCONF operations to a server over SSH and
// prints the replies.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/andaru/ncrpc/client"
	"github.com/andaru/ncrpc/config"
	"github.com/andaru/ncrpc/session"
	"github.com/andaru/ncrpc/transport"
	"github.com/fatih/color"
	"github.com/golang/glog"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

var flags struct {
	config     string
	address    string
	user       string
	password   string
	keyFile    string
	knownHosts string
	insecure   bool
	timeout    time.Duration
	noColor    bool
}

var rootCmd = &cobra.Command{
	Use:   "ncclient",
	Short: "ncclient sends NETCONF operations to a server",
	Long: `ncclient connects to a NETCONF server over SSH, sends one operation
and prints the reply. Run without a subcommand it fetches the running
configuration.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if flags.noColor {
			color.NoColor = true
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return getConfigCmd.RunE(cmd, args)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.config, "config", "c", "", "YAML configuration file")
	pf.StringVarP(&flags.address, "address", "a", "", "server address (host:port)")
	pf.StringVarP(&flags.user, "user", "u", "", "SSH user name")
	pf.StringVarP(&flags.password, "password", "p", "", "SSH password")
	pf.StringVar(&flags.keyFile, "key-file", "", "SSH private key file")
	pf.StringVar(&flags.knownHosts, "known-hosts", "", "OpenSSH known_hosts file")
	pf.BoolVar(&flags.insecure, "insecure", false, "accept any server host key")
	pf.DurationVar(&flags.timeout, "timeout", 0, "connect and reply timeout")
	pf.BoolVar(&flags.noColor, "no-color", false, "disable colored output")
	pf.AddGoFlagSet(flag.CommandLine)

	addSourceFlags(rootCmd)
}

// loadConfig returns the configuration file contents overridden by the
// flags set on cmd.
func loadConfig(cmd *cobra.Command) (config.Client, error) {
	c, err := config.LoadClient(flags.config)
	if err != nil {
		return c, err
	}
	pf := cmd.Flags()
	if pf.Changed("address") {
		c.Address = flags.address
	}
	if pf.Changed("user") {
		c.User = flags.user
	}
	if pf.Changed("password") {
		c.Password = flags.password
	}
	if pf.Changed("key-file") {
		c.KeyFile = flags.keyFile
	}
	if pf.Changed("known-hosts") {
		c.KnownHosts = flags.knownHosts
	}
	if pf.Changed("insecure") {
		c.InsecureIgnoreHostKey = flags.insecure
	}
	if pf.Changed("timeout") {
		c.Timeout = config.Duration(flags.timeout)
		c.Session.RequestTimeout = config.Duration(flags.timeout)
	}
	return c, c.Validate()
}

func dialConfig(c config.Client, sink session.NotificationSink) (client.DialConfig, error) {
	dc := client.DialConfig{
		SSH: transport.SSHConfig{
			User:        c.User,
			Credentials: transport.PasswordCredentials{Password: c.Password},
			Timeout:     time.Duration(c.Timeout),
		},
		Session: c.Session.SessionConfig(),
	}
	dc.Session.NotificationSink = sink
	if c.KeyFile != "" {
		pem, err := os.ReadFile(c.KeyFile)
		if err != nil {
			return dc, errors.Wrap(err, "key-file")
		}
		dc.SSH.Credentials = transport.KeyCredentials{PEM: pem, Passphrase: []byte(c.Passphrase)}
	}
	if c.InsecureIgnoreHostKey {
		dc.SSH.HostKeyCallback = ssh.InsecureIgnoreHostKey()
		return dc, nil
	}
	cb, err := knownhosts.New(c.KnownHosts)
	if err != nil {
		return dc, errors.Wrap(err, "known-hosts")
	}
	dc.SSH.HostKeyCallback = cb
	return dc, nil
}

// connect opens a session with the configured server. The session is
// closed when run returns.
func connect(cmd *cobra.Command, sink session.NotificationSink, run func(ctx context.Context, c *client.Client) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	dc, err := dialConfig(cfg, sink)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	c, err := client.Dial(ctx, cfg.Address, dc, nil)
	if err != nil {
		return err
	}
	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.Close(cctx); err != nil {
			glog.Warningf("close-session: %v", err)
		}
	}()
	return run(ctx, c)
}

func main() {
	defer glog.Flush()
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
