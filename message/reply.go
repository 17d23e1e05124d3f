package message

import (
	"encoding/xml"

	"github.com/andaru/ncrpc/ncerr"
	"github.com/andaru/ncrpc/xmlutil"
	"github.com/pkg/errors"
)

// ReplyKind is the variant of a Reply.
type ReplyKind int

const (
	// ReplyOK is an <ok/> reply
	ReplyOK ReplyKind = iota
	// ReplyData is a <data> reply
	ReplyData
	// ReplyError is a reply with one or more error severity rpc-errors
	ReplyError
	// ReplyNotification carries a <notification> rather than a reply
	ReplyNotification
)

func (k ReplyKind) String() string {
	switch k {
	case ReplyOK:
		return "ok"
	case ReplyData:
		return "data"
	case ReplyError:
		return "error"
	case ReplyNotification:
		return "notification"
	}
	return "unknown"
}

// Reply is a decoded <rpc-reply>, or a notification delivered in place of one.
type Reply struct {
	Kind      ReplyKind
	MessageID string
	// Attrs holds the <rpc-reply> attributes other than message-id and
	// namespace declarations.
	Attrs []xml.Attr
	// Data is the content of the <data> element for ReplyData.
	Data []byte
	// Errors holds all rpc-errors, including warnings on ok/data replies.
	Errors ncerr.List
	// Notification is set for ReplyNotification.
	Notification *Notification
}

// OK returns an <ok/> reply.
func OK() *Reply { return &Reply{Kind: ReplyOK} }

// DataReply returns a <data> reply with content data.
func DataReply(data []byte) *Reply { return &Reply{Kind: ReplyData, Data: data} }

// ErrorReply returns a reply carrying errs. Its kind is ReplyError unless
// every member of errs is a warning.
func ErrorReply(errs ...*ncerr.Error) *Reply {
	r := &Reply{Kind: ReplyError, Errors: errs}
	if !r.Errors.Fatal() {
		r.Kind = ReplyOK
	}
	return r
}

// Err returns the reply's rpc-errors if any has error severity, else nil.
func (r *Reply) Err() error {
	if r.Errors.Fatal() {
		return r.Errors
	}
	return nil
}

type innerXML struct {
	Inner []byte `xml:",innerxml"`
}

type replyXML struct {
	XMLName xml.Name       `xml:"urn:ietf:params:xml:ns:netconf:base:1.0 rpc-reply"`
	Attrs   []xml.Attr     `xml:",any,attr"`
	Errors  []*ncerr.Error `xml:"rpc-error"`
	OK      *struct{}      `xml:"ok"`
	Data    *innerXML      `xml:"data"`
}

// Encode returns the <rpc-reply> message for r.
func (r *Reply) Encode() ([]byte, error) {
	if r.Kind == ReplyNotification {
		return nil, errors.New("notification replies are not encoded as rpc-reply")
	}
	out := replyXML{Errors: r.Errors}
	if r.MessageID != "" {
		out.Attrs = append(out.Attrs, xml.Attr{Name: xmlutil.XMLName("message-id"), Value: r.MessageID})
	}
	out.Attrs = append(out.Attrs, r.Attrs...)
	switch r.Kind {
	case ReplyOK:
		out.OK = &struct{}{}
	case ReplyData:
		out.Data = &innerXML{Inner: r.Data}
	case ReplyError:
		if len(r.Errors) == 0 {
			return nil, errors.New("error reply has no rpc-errors")
		}
	}
	return xml.Marshal(out)
}

// DecodeReply returns the <rpc-reply> m.
func DecodeReply(m *Message) (*Reply, error) {
	if m.Kind != KindRPCReply {
		return nil, errors.Errorf("cannot decode %s message as rpc-reply", m.Kind)
	}
	var in replyXML
	if err := xml.Unmarshal(m.Raw, &in); err != nil {
		return nil, errors.Wrap(err, "decode rpc-reply")
	}
	r := &Reply{Errors: in.Errors}
	for _, a := range in.Attrs {
		switch {
		case xmlutil.IsNamespaceDecl(a):
		case a.Name.Local == "message-id":
			r.MessageID = a.Value
		default:
			r.Attrs = append(r.Attrs, a)
		}
	}
	switch {
	case r.Errors.Fatal():
		r.Kind = ReplyError
	case in.Data != nil:
		r.Kind, r.Data = ReplyData, in.Data.Inner
		if r.Data == nil {
			r.Data = []byte{}
		}
	case in.OK != nil || len(r.Errors) > 0:
		r.Kind = ReplyOK
	default:
		return r, errors.New("rpc-reply has no <ok>, <data> or <rpc-error> element")
	}
	return r, nil
}
