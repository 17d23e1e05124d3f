package message

import (
	"bytes"
	"encoding/xml"
	"io"

	"github.com/antchfx/xmlquery"
	"github.com/pkg/errors"
)

// XML namespaces of NETCONF messages.
const (
	NSBase         = "urn:ietf:params:xml:ns:netconf:base:1.0"
	NSNotification = "urn:ietf:params:xml:ns:netconf:notification:1.0"
)

// Kind is the type of a NETCONF message.
type Kind int

const (
	// KindUnknown is the zero Kind
	KindUnknown Kind = iota
	KindHello
	KindRPC
	KindRPCReply
	KindNotification
)

func (k Kind) String() string {
	switch k {
	case KindHello:
		return "hello"
	case KindRPC:
		return "rpc"
	case KindRPCReply:
		return "rpc-reply"
	case KindNotification:
		return "notification"
	}
	return "unknown"
}

// Message is a single received NETCONF message. It must not be modified.
type Message struct {
	Kind Kind
	// Raw is the message as received, without framing.
	Raw []byte
	// Doc is the parsed document.
	Doc *xmlquery.Node
}

// Root returns the message's root element.
func (m *Message) Root() *xmlquery.Node { return rootElement(m.Doc) }

func rootElement(doc *xmlquery.Node) *xmlquery.Node {
	for n := doc.FirstChild; n != nil; n = n.NextSibling {
		if n.Type == xmlquery.ElementNode {
			return n
		}
	}
	return nil
}

// Parse parses and classifies the message b.
func Parse(b []byte) (*Message, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(b))
	if err != nil {
		return nil, errors.Wrap(err, "parse message")
	}
	root := rootElement(doc)
	if root == nil {
		return nil, errors.New("message has no root element")
	}
	m := &Message{Raw: b, Doc: doc}
	switch ns, name := root.NamespaceURI, root.Data; {
	case ns == NSBase && name == "hello":
		m.Kind = KindHello
	case ns == NSBase && name == "rpc":
		m.Kind = KindRPC
	case ns == NSBase && name == "rpc-reply":
		m.Kind = KindRPCReply
	case ns == NSNotification && name == "notification":
		m.Kind = KindNotification
	default:
		return nil, errors.Errorf("unknown message element <%s> in namespace %q", name, ns)
	}
	return m, nil
}

// element is a child of a message's root element.
type element struct {
	Start xml.StartElement
	// Raw is the element's text as received.
	Raw []byte
}

// splitRoot returns the root element of raw and its child elements.
func splitRoot(raw []byte) (root xml.StartElement, children []element, err error) {
	d := xml.NewDecoder(bytes.NewReader(raw))
	var seen bool
	for {
		off := d.InputOffset()
		tok, terr := d.Token()
		if terr == io.EOF {
			break
		}
		if terr != nil {
			return root, nil, terr
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if !seen {
				root, seen = t.Copy(), true
				continue
			}
			if err := d.Skip(); err != nil {
				return root, nil, err
			}
			children = append(children, element{Start: t.Copy(), Raw: raw[off:d.InputOffset()]})
		case xml.EndElement:
			return root, children, nil
		}
	}
	if !seen {
		return root, nil, errors.New("no root element")
	}
	return root, nil, io.ErrUnexpectedEOF
}
