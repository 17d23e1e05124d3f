package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/andaru/ncrpc/client"
	"github.com/andaru/ncrpc/message"
	"github.com/andaru/ncrpc/ops"
	"github.com/andaru/ncrpc/session"
	"github.com/andaru/ncrpc/xmlutil"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var opFlags struct {
	source     string
	// validate defaults to the candidate rather than running
	check      string
	target     string
	url        string
	subtree    string
	xpath      string
	namespaces []string
	defaultOp  string
	testOpt    string
	errorOpt   string
	confirmed  bool
	timeout    uint32
	persist    string
	persistID  string
	stream     string
}

// readContent returns the contents of the named file, or of stdin for "-".
func readContent(name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(os.Stdin)
	}
	b, err := os.ReadFile(name)
	return b, errors.Wrap(err, "read config")
}

// prefixes parses prefix=namespace flag values.
func prefixes(values []string) (xmlutil.PrefixMap, error) {
	if len(values) == 0 {
		return nil, nil
	}
	m := xmlutil.PrefixMap{}
	for _, v := range values {
		pfx, ns, ok := strings.Cut(v, "=")
		if !ok || pfx == "" || ns == "" {
			return nil, errors.Errorf("bad namespace %q, want prefix=uri", v)
		}
		m[pfx] = ns
	}
	return m, nil
}

func filter() (*ops.Filter, error) {
	ns, err := prefixes(opFlags.namespaces)
	if err != nil {
		return nil, err
	}
	switch {
	case opFlags.subtree != "" && opFlags.xpath != "":
		return nil, errors.New("--subtree and --xpath are exclusive")
	case opFlags.subtree != "":
		b, err := readContent(opFlags.subtree)
		if err != nil {
			return nil, err
		}
		return &ops.Filter{Type: ops.FilterSubtree, Content: b, Namespaces: ns}, nil
	case opFlags.xpath != "":
		return &ops.Filter{Type: ops.FilterXPath, Select: opFlags.xpath, Namespaces: ns}, nil
	}
	return nil, nil
}

// ref returns the --url flag's URL if set, else the datastore ds.
func ref(ds string) ops.Ref {
	if opFlags.url != "" {
		return ops.Ref{URL: opFlags.url}
	}
	return ops.Ref{Datastore: ops.Datastore(ds)}
}

func addFilterFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&opFlags.subtree, "subtree", "", "subtree filter file, - for stdin")
	cmd.Flags().StringVar(&opFlags.xpath, "xpath", "", "XPath filter expression")
	cmd.Flags().StringSliceVarP(&opFlags.namespaces, "ns", "n", nil, "prefix=namespace used by the filter or config")
}

func addSourceFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&opFlags.source, "source", string(ops.Running), "source datastore")
	addFilterFlags(cmd)
}

var getCmd = &cobra.Command{
	Use:   "get",
	Short: "Retrieve configuration and state data",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := filter()
		if err != nil {
			return err
		}
		return connect(cmd, nil, func(ctx context.Context, c *client.Client) error {
			return printData(c.Get(ctx, f))
		})
	},
}

var getConfigCmd = &cobra.Command{
	Use:   "get-config",
	Short: "Retrieve a configuration datastore",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := filter()
		if err != nil {
			return err
		}
		return connect(cmd, nil, func(ctx context.Context, c *client.Client) error {
			return printData(c.GetConfig(ctx, ops.Datastore(opFlags.source), f))
		})
	},
}

var editConfigCmd = &cobra.Command{
	Use:   "edit-config FILE",
	Short: "Edit a configuration datastore with the config in FILE (- for stdin)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := readContent(args[0])
		if err != nil {
			return err
		}
		ns, err := prefixes(opFlags.namespaces)
		if err != nil {
			return err
		}
		op := ops.EditConfig{
			Target:           ops.Datastore(opFlags.target),
			DefaultOperation: opFlags.defaultOp,
			TestOption:       opFlags.testOpt,
			ErrorOption:      opFlags.errorOpt,
			Config:           b,
			Namespaces:       ns,
		}
		return connect(cmd, nil, func(ctx context.Context, c *client.Client) error {
			return printReply(c.Do(ctx, op))
		})
	},
}

var copyConfigCmd = &cobra.Command{
	Use:   "copy-config [FILE]",
	Short: "Replace a datastore with another datastore, a URL or the config in FILE",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		op := ops.CopyConfig{Target: ops.Ref{Datastore: ops.Datastore(opFlags.target)}}
		switch {
		case len(args) == 1:
			b, err := readContent(args[0])
			if err != nil {
				return err
			}
			if op.Namespaces, err = prefixes(opFlags.namespaces); err != nil {
				return err
			}
			op.Config = b
		default:
			op.Source = ref(opFlags.source)
		}
		return connect(cmd, nil, func(ctx context.Context, c *client.Client) error {
			return printReply(c.Do(ctx, op))
		})
	},
}

var deleteConfigCmd = &cobra.Command{
	Use:   "delete-config",
	Short: "Delete a configuration datastore",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		target := ref(opFlags.target)
		return connect(cmd, nil, func(ctx context.Context, c *client.Client) error {
			return printReply(c.Do(ctx, ops.DeleteConfig{Target: target}))
		})
	},
}

var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Lock a datastore for the duration of the session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return connect(cmd, nil, func(ctx context.Context, c *client.Client) error {
			return printReply(c.Do(ctx, ops.Lock{Target: ops.Datastore(opFlags.target)}))
		})
	},
}

var unlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "Unlock a datastore",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return connect(cmd, nil, func(ctx context.Context, c *client.Client) error {
			return printReply(c.Do(ctx, ops.Unlock{Target: ops.Datastore(opFlags.target)}))
		})
	},
}

var commitCmd = &cobra.Command{
	Use:   "commit",
	Short: "Commit the candidate datastore to running",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		op := ops.Commit{
			Confirmed:      opFlags.confirmed,
			ConfirmTimeout: opFlags.timeout,
			Persist:        opFlags.persist,
			PersistID:      opFlags.persistID,
		}
		return connect(cmd, nil, func(ctx context.Context, c *client.Client) error {
			return printReply(c.Do(ctx, op))
		})
	},
}

var discardChangesCmd = &cobra.Command{
	Use:   "discard-changes",
	Short: "Revert the candidate datastore to running",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return connect(cmd, nil, func(ctx context.Context, c *client.Client) error {
			return printReply(c.Do(ctx, ops.DiscardChanges{}))
		})
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate [FILE]",
	Short: "Validate a datastore, a URL or the config in FILE",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var op ops.Validate
		if len(args) == 1 {
			b, err := readContent(args[0])
			if err != nil {
				return err
			}
			if op.Namespaces, err = prefixes(opFlags.namespaces); err != nil {
				return err
			}
			op.Config = b
		} else {
			op.Source = ref(opFlags.check)
		}
		return connect(cmd, nil, func(ctx context.Context, c *client.Client) error {
			return printReply(c.Do(ctx, op))
		})
	},
}

var killSessionCmd = &cobra.Command{
	Use:   "kill-session ID",
	Short: "Terminate another session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseUint(args[0], 10, 32)
		if err != nil || id == 0 {
			return errors.Errorf("bad session-id %q", args[0])
		}
		return connect(cmd, nil, func(ctx context.Context, c *client.Client) error {
			return printReply(c.Do(ctx, ops.KillSession{SessionID: uint32(id)}))
		})
	},
}

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Print notifications until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sink := session.NotificationFunc(func(_ *session.Session, r *message.Reply) {
			printNotification(r.Notification)
		})
		return connect(cmd, sink, func(ctx context.Context, c *client.Client) error {
			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if err := c.CreateSubscription(ctx, ops.CreateSubscription{Stream: opFlags.stream}); err != nil {
				return printFailure(err)
			}
			select {
			case <-ctx.Done():
				return nil
			case <-c.Session().Done():
				return c.Session().Err()
			}
		})
	},
}

func init() {
	addSourceFlags(getConfigCmd)
	addFilterFlags(getCmd)

	for _, cmd := range []*cobra.Command{editConfigCmd, copyConfigCmd, deleteConfigCmd, lockCmd, unlockCmd} {
		cmd.Flags().StringVar(&opFlags.target, "target", string(ops.Candidate), "target datastore")
	}
	for _, cmd := range []*cobra.Command{copyConfigCmd, deleteConfigCmd, validateCmd} {
		cmd.Flags().StringVar(&opFlags.url, "url", "", "configuration URL")
	}
	copyConfigCmd.Flags().StringVar(&opFlags.source, "source", string(ops.Running), "source datastore")
	validateCmd.Flags().StringVar(&opFlags.check, "source", string(ops.Candidate), "source datastore")
	for _, cmd := range []*cobra.Command{editConfigCmd, copyConfigCmd, validateCmd} {
		cmd.Flags().StringSliceVarP(&opFlags.namespaces, "ns", "n", nil, "prefix=namespace used by the config")
	}

	ef := editConfigCmd.Flags()
	ef.StringVar(&opFlags.defaultOp, "default-operation", "", "merge, replace or none")
	ef.StringVar(&opFlags.testOpt, "test-option", "", "test-then-set, set or test-only")
	ef.StringVar(&opFlags.errorOpt, "error-option", "", "stop-on-error, continue-on-error or rollback-on-error")

	listenCmd.Flags().StringVar(&opFlags.stream, "stream", "", "event stream, empty for NETCONF")

	cf := commitCmd.Flags()
	cf.BoolVar(&opFlags.confirmed, "confirmed", false, "confirmed commit")
	cf.Uint32Var(&opFlags.timeout, "confirm-timeout", 0, "confirmed commit timeout in seconds")
	cf.StringVar(&opFlags.persist, "persist", "", "persist the confirmed commit beyond the session with this id")
	cf.StringVar(&opFlags.persistID, "persist-id", "", "confirm or cancel the persistent confirmed commit with this id")

	rootCmd.AddCommand(getCmd, getConfigCmd, editConfigCmd, copyConfigCmd, deleteConfigCmd,
		lockCmd, unlockCmd, commitCmd, discardChangesCmd, validateCmd, killSessionCmd, listenCmd)
}
