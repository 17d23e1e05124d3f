package message

import (
	"bytes"
	"encoding/xml"

	"github.com/andaru/ncrpc/xmlutil"
	"github.com/pkg/errors"
)

// RPC is a decoded <rpc> request.
type RPC struct {
	MessageID string
	// Attrs holds the attributes of the <rpc> element, other than
	// namespace declarations, in received order. It includes message-id.
	Attrs []xml.Attr
	// Operation is the name of the operation element.
	Operation xml.Name
	// Body is the operation element as received.
	Body []byte
	// Namespaces holds the prefixes declared on the <rpc> element, which
	// remain in scope for Body.
	Namespaces xmlutil.PrefixMap
}

var seRPC = xml.StartElement{Name: xmlutil.XMLName("rpc", NSBase)}

// EncodeRPC returns an <rpc> message with the given message-id wrapping
// the operation payload. Extra attributes are added to the <rpc> element.
func EncodeRPC(messageID string, payload []byte, attrs ...xml.Attr) ([]byte, error) {
	if messageID == "" {
		return nil, errors.New("rpc requires a message-id")
	}
	start := seRPC.Copy()
	start.Attr = append([]xml.Attr{{Name: xmlutil.XMLName("message-id"), Value: messageID}}, attrs...)

	var b bytes.Buffer
	xe := xml.NewEncoder(&b)
	if err := xe.EncodeToken(start); err != nil {
		return nil, err
	}
	if err := xe.Flush(); err != nil {
		return nil, err
	}
	b.Write(payload)
	if err := xe.EncodeToken(start.End()); err != nil {
		return nil, err
	}
	if err := xe.Flush(); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// ErrMissingMessageID is returned by DecodeRPC for an <rpc> lacking the
// message-id attribute. The RPC is still returned.
var ErrMissingMessageID = errors.New("rpc has no message-id attribute")

// DecodeRPC returns the <rpc> request m.
func DecodeRPC(m *Message) (*RPC, error) {
	if m.Kind != KindRPC {
		return nil, errors.Errorf("cannot decode %s message as rpc", m.Kind)
	}
	root, children, err := splitRoot(m.Raw)
	if err != nil {
		return nil, errors.Wrap(err, "decode rpc")
	}
	rpc := &RPC{Namespaces: xmlutil.NewPrefixMap(root.Attr...)}
	if len(rpc.Namespaces) == 0 {
		rpc.Namespaces = nil
	}
	for _, a := range root.Attr {
		if xmlutil.IsNamespaceDecl(a) {
			continue
		}
		if a.Name.Local == "message-id" {
			rpc.MessageID = a.Value
		}
		rpc.Attrs = append(rpc.Attrs, a)
	}
	if len(children) != 1 {
		return rpc, errors.Errorf("rpc has %d operation elements, want 1", len(children))
	}
	rpc.Operation = children[0].Start.Name
	rpc.Body = children[0].Raw
	if rpc.MessageID == "" {
		return rpc, ErrMissingMessageID
	}
	return rpc, nil
}
