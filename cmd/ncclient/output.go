package main

import (
	"fmt"
	"io"
	"time"

	"github.com/andaru/ncrpc/message"
	"github.com/andaru/ncrpc/ncerr"
	"github.com/fatih/color"
	"github.com/pkg/errors"
)

var (
	okColor    = color.New(color.FgGreen, color.Bold)
	errorColor = color.New(color.FgRed, color.Bold)
	warnColor  = color.New(color.FgYellow)
	fieldColor = color.New(color.FgCyan)
	eventColor = color.New(color.FgMagenta, color.Bold)
)

var out io.Writer = color.Output

// printErrors prints each rpc-error in l.
func printErrors(l ncerr.List) {
	for _, e := range l {
		c := errorColor
		if !e.Fatal() {
			c = warnColor
		}
		c.Fprintf(out, "  %s %s (%s)\n", e.Severity, e.Tag, e.Type)
		field := func(name, value string) {
			if value != "" {
				fmt.Fprintf(out, "    %s %s\n", fieldColor.Sprint(name+":"), value)
			}
		}
		field("message", e.Message)
		field("path", e.Path)
		field("app-tag", e.AppTag)
		if e.Info != nil {
			field("bad-element", e.Info.BadElement)
			field("bad-attribute", e.Info.BadAttribute)
			field("bad-namespace", e.Info.BadNamespace)
			field("session-id", e.Info.SessionID)
		}
	}
}

// printFailure prints the rpc-errors of err, returning err.
func printFailure(err error) error {
	var l ncerr.List
	if errors.As(err, &l) {
		errorColor.Fprintln(out, "RPC Error")
		printErrors(l)
	}
	return err
}

func printReply(r *message.Reply, err error) error {
	if err != nil {
		return printFailure(err)
	}
	switch r.Kind {
	case message.ReplyData:
		okColor.Fprint(out, "RPC Data: ")
		fmt.Fprintln(out, string(r.Data))
	default:
		okColor.Fprintln(out, "RPC OK")
	}
	if w := r.Errors.Warnings(); len(w) > 0 {
		printErrors(w)
	}
	return nil
}

func printData(data []byte, err error) error {
	if err != nil {
		return printFailure(err)
	}
	okColor.Fprint(out, "RPC Data: ")
	fmt.Fprintln(out, string(data))
	return nil
}

func printNotification(n *message.Notification) {
	if n == nil {
		return
	}
	eventColor.Fprintf(out, "%s ", n.EventTime.Format(time.RFC3339))
	fmt.Fprintln(out, string(n.Payload))
}
