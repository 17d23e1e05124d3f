package ncerr

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Type represents the NETCONF error-type enumerate
type Type int

const (
	// TypeApplication is an application layer error
	TypeApplication Type = iota
	// TypeProtocol is a NETCONF protocol layer error
	TypeProtocol
	// TypeRPC is a NETCONF RPC layer error
	TypeRPC
	// TypeTransport is an error at the secure transport layer
	TypeTransport
)

var typeNames = [...]string{"application", "protocol", "rpc", "transport"}

func (t Type) String() string {
	if t >= 0 && int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

func (t *Type) UnmarshalText(b []byte) error {
	v := string(bytes.TrimSpace(b))
	for i, name := range typeNames {
		if v == name {
			*t = Type(i)
			return nil
		}
	}
	return errors.Errorf("unknown error-type %q", v)
}

func (t Type) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// Severity represents the NETCONF error-severity enumerate
type Severity int

const (
	// SeverityError indicates "error" level
	SeverityError Severity = iota
	// SeverityWarning indicates "warning" level.
	// (Not used in errors defined in RFC6241 Appendix A)
	SeverityWarning
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return fmt.Sprintf("Severity(%d)", int(s))
	}
}

func (s Severity) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Severity) UnmarshalText(b []byte) error {
	switch v := string(bytes.TrimSpace(b)); v {
	case "error":
		*s = SeverityError
	case "warning":
		*s = SeverityWarning
	default:
		return errors.Errorf("unknown error-severity %q", v)
	}
	return nil
}

// Error is a NETCONF <rpc-error>, as returned inside an <rpc-reply>.
type Error struct {
	XMLName  xml.Name `xml:"urn:ietf:params:xml:ns:netconf:base:1.0 rpc-error" json:"-"`
	Type     Type     `xml:"error-type" json:"error-type"`
	Tag      string   `xml:"error-tag" json:"error-tag"`
	Severity Severity `xml:"error-severity" json:"error-severity"`
	AppTag   string   `xml:"error-app-tag,omitempty" json:"error-app-tag,omitempty"`
	Path     string   `xml:"error-path,omitempty" json:"error-path,omitempty"`
	Message  string   `xml:"error-message,omitempty" json:"error-message,omitempty"`
	Info     *Info    `xml:"error-info,omitempty" json:"error-info,omitempty"`
}

// Info is the RFC6241 defined content of <error-info>.
type Info struct {
	BadAttribute string `xml:"bad-attribute,omitempty" json:"bad-attribute,omitempty"`
	BadElement   string `xml:"bad-element,omitempty" json:"bad-element,omitempty"`
	BadNamespace string `xml:"bad-namespace,omitempty" json:"bad-namespace,omitempty"`
	SessionID    string `xml:"session-id,omitempty" json:"session-id,omitempty"`
}

func (e Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s error tag:%s", e.Type, e.Tag)
	if e.Severity != SeverityError {
		b.WriteString(" severity:" + e.Severity.String())
	}
	if e.AppTag != "" {
		b.WriteString(" app-tag:" + e.AppTag)
	}
	if e.Path != "" {
		b.WriteString(" path:" + e.Path)
	}
	if info := e.Info; info != nil {
		for _, kv := range [][2]string{
			{"bad-attribute", info.BadAttribute},
			{"bad-element", info.BadElement},
			{"bad-namespace", info.BadNamespace},
			{"session-id", info.SessionID},
		} {
			if kv[1] != "" {
				b.WriteString(" " + kv[0] + ":" + kv[1])
			}
		}
	}
	if e.Message != "" {
		b.WriteString(" " + strings.TrimSpace(e.Message))
	}
	return b.String()
}

// Fatal returns true if the error has error severity.
func (e *Error) Fatal() bool { return e.Severity == SeverityError }

func newError(tag string, info *Info, opts []Option) *Error {
	e := &Error{Tag: tag, Info: info}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func InUse(opts ...Option) *Error { return newError("in-use", nil, opts) }

func InvalidValue(opts ...Option) *Error { return newError("invalid-value", nil, opts) }

func TooBig(opts ...Option) *Error { return newError("too-big", nil, opts) }

func MissingAttribute(attributeName, elementName string, opts ...Option) *Error {
	return newError("missing-attribute", &Info{BadAttribute: attributeName, BadElement: elementName}, opts)
}

func BadAttribute(attributeName, elementName string, opts ...Option) *Error {
	return newError("bad-attribute", &Info{BadAttribute: attributeName, BadElement: elementName}, opts)
}

func UnknownAttribute(attributeName, elementName string, opts ...Option) *Error {
	return newError("unknown-attribute", &Info{BadAttribute: attributeName, BadElement: elementName}, opts)
}

func MissingElement(elementName string, opts ...Option) *Error {
	return newError("missing-element", &Info{BadElement: elementName}, opts)
}

func BadElement(elementName string, opts ...Option) *Error {
	return newError("bad-element", &Info{BadElement: elementName}, opts)
}

func UnknownElement(elementName string, opts ...Option) *Error {
	return newError("unknown-element", &Info{BadElement: elementName}, opts)
}

func UnknownNamespace(elementName, namespace string, opts ...Option) *Error {
	return newError("unknown-namespace", &Info{BadElement: elementName, BadNamespace: namespace}, opts)
}

func AccessDenied(opts ...Option) *Error { return newError("access-denied", nil, opts) }

// LockDenied reports the lock is held by the session sessionID.
func LockDenied(sessionID string, opts ...Option) *Error {
	e := newError("lock-denied", &Info{SessionID: sessionID}, opts)
	// error-type must be protocol for lock-denied
	e.Type = TypeProtocol
	return e
}

func ResourceDenied(opts ...Option) *Error { return newError("resource-denied", nil, opts) }

func RollbackFailed(opts ...Option) *Error { return newError("rollback-failed", nil, opts) }

func DataExists(opts ...Option) *Error {
	e := newError("data-exists", nil, opts)
	// error-type must be application for data-exists
	e.Type = TypeApplication
	return e
}

func DataMissing(opts ...Option) *Error {
	e := newError("data-missing", nil, opts)
	// error-type must be application for data-missing
	e.Type = TypeApplication
	return e
}

func OperationNotSupported(opts ...Option) *Error {
	return newError("operation-not-supported", nil, opts)
}

func OperationFailed(opts ...Option) *Error { return newError("operation-failed", nil, opts) }

func MalformedMessage(opts ...Option) *Error {
	e := newError("malformed-message", nil, opts)
	// error-type must be rpc for malformed-message
	e.Type = TypeRPC
	return e
}

// List is the list of <rpc-error> elements carried by a single reply.
type List []*Error

func (l List) Error() string {
	switch len(l) {
	case 0:
		return "no rpc-errors"
	case 1:
		return l[0].Error()
	}
	msgs := make([]string, len(l))
	for i, e := range l {
		msgs[i] = e.Error()
	}
	return fmt.Sprintf("%d rpc-errors: %s", len(l), strings.Join(msgs, "; "))
}

// Fatal returns true if any member has error severity.
func (l List) Fatal() bool {
	for _, e := range l {
		if e.Fatal() {
			return true
		}
	}
	return false
}

// Warnings returns the members with warning severity.
func (l List) Warnings() (w List) {
	for _, e := range l {
		if !e.Fatal() {
			w = append(w, e)
		}
	}
	return w
}

// AsList converts err into a List of rpc-errors. Errors other than *Error
// and List become a single operation-failed error carrying err's message.
func AsList(err error) List {
	if err == nil {
		return nil
	}
	var l List
	if errors.As(err, &l) {
		return l
	}
	var e *Error
	if errors.As(err, &e) {
		return List{e}
	}
	return List{OperationFailed(WithErr(err))}
}
