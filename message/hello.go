package message

import (
	"bytes"
	"encoding/xml"
	"strconv"
	"strings"

	"github.com/andaru/ncrpc/capability"
	"github.com/andaru/ncrpc/xmlutil"
	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"
	"github.com/pkg/errors"
)

// Hello is the content of a <hello> message. SessionID is zero when the
// sender is a client.
type Hello struct {
	Capabilities capability.Set
	SessionID    uint32
}

var (
	xpNSetHello      = xpath.MustCompile(`/hello[namespace-uri()='urn:ietf:params:xml:ns:netconf:base:1.0']`)
	xpNSetCapability = xpath.MustCompile(`/hello[namespace-uri()='urn:ietf:params:xml:ns:netconf:base:1.0']/capabilities/capability`)
	xpNSetSessionID  = xpath.MustCompile(`/hello[namespace-uri()='urn:ietf:params:xml:ns:netconf:base:1.0']/session-id`)

	seHello        = xml.StartElement{Name: xmlutil.XMLName("hello", NSBase)}
	seCapabilities = xml.StartElement{Name: xmlutil.XMLName("capabilities")}
	seCapability   = xml.StartElement{Name: xmlutil.XMLName("capability")}
	seSessionID    = xml.StartElement{Name: xmlutil.XMLName("session-id")}
)

// EncodeHello returns the <hello> message for h.
func EncodeHello(h Hello) ([]byte, error) {
	var b bytes.Buffer
	xe := xml.NewEncoder(&b)
	tokens := []xml.Token{seHello, seCapabilities}
	for _, uri := range h.Capabilities {
		tokens = append(tokens, seCapability, xml.CharData(uri), seCapability.End())
	}
	tokens = append(tokens, seCapabilities.End())
	if h.SessionID != 0 {
		tokens = append(tokens, seSessionID, xml.CharData(strconv.FormatUint(uint64(h.SessionID), 10)), seSessionID.End())
	}
	tokens = append(tokens, seHello.End())
	for _, tok := range tokens {
		if err := xe.EncodeToken(tok); err != nil {
			return nil, err
		}
	}
	if err := xe.Flush(); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// DecodeHello returns the validated content of the <hello> message m.
func DecodeHello(m *Message) (*Hello, error) {
	// look for a <hello> element in the NETCONF namespace
	if xmlquery.QuerySelector(m.Doc, xpNSetHello) == nil {
		return nil, errors.New("missing <hello> element")
	}
	h := &Hello{}
	for _, c := range xmlquery.QuerySelectorAll(m.Doc, xpNSetCapability) {
		if uri := strings.TrimSpace(c.InnerText()); uri != "" {
			h.Capabilities = append(h.Capabilities, uri)
		}
	}
	// at least :base:1.0 or :base:1.1 must be present
	if len(h.Capabilities) == 0 {
		return nil, errors.New("missing non-empty <capability> element(s)")
	}
	if sid := xmlquery.QuerySelector(m.Doc, xpNSetSessionID); sid != nil {
		idVal := strings.TrimSpace(sid.InnerText())
		if idVal == "" {
			return nil, errors.New("missing session-id value")
		}
		v, err := strconv.ParseUint(idVal, 10, 32)
		if err != nil || v == 0 {
			return nil, errors.New("invalid session-id value")
		}
		h.SessionID = uint32(v)
	}
	return h, nil
}
