// Command ncserver is a NETCONF server over SSH backed by an in-memory
// datastore.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/andaru/ncrpc/capability"
	"github.com/andaru/ncrpc/config"
	"github.com/andaru/ncrpc/metrics"
	"github.com/andaru/ncrpc/ops"
	"github.com/andaru/ncrpc/server"
	"github.com/andaru/ncrpc/server/memstore"
	"github.com/andaru/ncrpc/session"
	"github.com/andaru/ncrpc/yangschema"
	"github.com/golang/glog"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/ssh"
)

var flags struct {
	config        string
	listen        string
	metricsListen string
	hostKey       string
	yang          []string
	running       string
}

var rootCmd = &cobra.Command{
	Use:          "ncserver",
	Short:        "ncserver is a NETCONF server with an in-memory datastore",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return run(ctx, cfg)
	},
}

var hashCmd = &cobra.Command{
	Use:   "hash-password PASSWORD",
	Short: "Print the password-hash configuration value for PASSWORD",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := config.HashPassword(args[0])
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), h)
		return err
	},
}

func init() {
	pf := rootCmd.Flags()
	pf.StringVarP(&flags.config, "config", "c", "", "YAML configuration file")
	pf.StringVarP(&flags.listen, "listen", "l", "", "NETCONF SSH listen address")
	pf.StringVar(&flags.metricsListen, "metrics-listen", "", "HTTP /metrics listen address, empty to disable")
	pf.StringVar(&flags.hostKey, "host-key", "", "SSH host key file, generated if absent")
	pf.StringSliceVar(&flags.yang, "yang", nil, "YANG module files used to validate configuration")
	pf.StringVar(&flags.running, "running", "", "XML file loaded into the running datastore")
	rootCmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)
	rootCmd.AddCommand(hashCmd)
}

func loadConfig(cmd *cobra.Command) (config.Server, error) {
	cfg, err := config.LoadServer(flags.config)
	if err != nil {
		return cfg, err
	}
	f := cmd.Flags()
	if f.Changed("listen") {
		cfg.Listen = flags.listen
	}
	if f.Changed("metrics-listen") {
		cfg.MetricsListen = flags.metricsListen
	}
	if f.Changed("host-key") {
		cfg.HostKey = flags.hostKey
	}
	if f.Changed("yang") {
		cfg.YANG = flags.yang
	}
	if f.Changed("running") {
		cfg.Running = flags.running
	}
	return cfg, cfg.Validate()
}

// newStore returns the datastore loaded with the configured files.
func newStore(cfg config.Server, state func() []byte) (*memstore.Store, error) {
	store := memstore.New(
		memstore.WithConfirmTimeout(time.Duration(cfg.ConfirmTimeout)),
		memstore.WithState(state),
	)
	for ds, path := range map[ops.Datastore]string{ops.Running: cfg.Running, ops.Startup: cfg.Startup} {
		if path == "" {
			continue
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "%s datastore", ds)
		}
		if err := store.Load(ds, b, nil); err != nil {
			return nil, errors.Wrapf(err, "%s datastore %s", ds, path)
		}
		glog.Infof("loaded %s datastore from %s", ds, path)
	}
	return store, nil
}

func run(ctx context.Context, cfg config.Server) error {
	signer, err := hostKey(cfg.HostKey)
	if err != nil {
		return err
	}
	sshConfig := &ssh.ServerConfig{
		Config: ssh.Config{
			Ciphers:      cfg.SSH.Ciphers,
			KeyExchanges: cfg.SSH.KeyExchanges,
			MACs:         cfg.SSH.MACs,
		},
		PasswordCallback: cfg.PasswordCallback(),
	}
	sshConfig.AddHostKey(signer)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	env := session.NewEnv(session.WithMetrics(metrics.New(reg)))
	defer env.Close()

	var srv *server.Server
	store, err := newStore(cfg, func() []byte { return srv.State() })
	if err != nil {
		return err
	}
	scfg := server.Config{
		Session:     cfg.Session.SessionConfig(),
		MaxSessions: cfg.MaxSessions,
		SSH:         sshConfig,
	}
	if len(cfg.Session.Capabilities) > 0 {
		scfg.Capabilities = capability.Set(cfg.Session.Capabilities)
	}
	if len(cfg.YANG) > 0 {
		schema, err := yangschema.Load(cfg.YANG...)
		if err != nil {
			return err
		}
		glog.Infof("validating configuration against YANG modules %v", schema.Modules())
		scfg.Validator = schema
	}
	srv = server.New(store, scfg, env)

	if cfg.MetricsListen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
		hs := &http.Server{Addr: cfg.MetricsListen, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			glog.Infof("serving metrics on %s", cfg.MetricsListen)
			if err := hs.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				glog.Errorf("metrics: %v", err)
			}
		}()
		defer hs.Close()
	}

	l, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return errors.Wrap(err, "listen")
	}
	err = srv.Serve(ctx, l)
	glog.Infof("shutting down, %d sessions open", len(srv.Sessions()))
	return err
}

func main() {
	defer glog.Flush()
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		glog.Errorf("%v", err)
		glog.Flush()
		os.Exit(1)
	}
}
