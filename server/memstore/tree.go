package memstore

import (
	"bytes"
	"encoding/xml"
	"strings"

	"github.com/andaru/ncrpc/message"
	"github.com/andaru/ncrpc/ncerr"
	"github.com/andaru/ncrpc/xmlutil"
	"github.com/antchfx/xmlquery"
)

// keyElement names the child element identifying list entries. Two
// sibling elements with the same name and namespace are the same data
// node only if their keyElement children hold the same text.
const keyElement = "name"

func newTree() *xmlquery.Node { return &xmlquery.Node{Type: xmlquery.DocumentNode} }

// parseTree parses configuration content, with the prefixes ns in scope,
// into a document node holding the top-level elements as children.
func parseTree(content []byte, ns xmlutil.PrefixMap) (*xmlquery.Node, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(ns.Wrap("config", content)))
	if err != nil {
		return nil, ncerr.InvalidValue(ncerr.WithMessage("config: " + err.Error()))
	}
	var wrapper *xmlquery.Node
	for c := doc.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode {
			wrapper = c
			break
		}
	}
	t := newTree()
	if wrapper == nil {
		return t, nil
	}
	for c := wrapper.FirstChild; c != nil; {
		next := c.NextSibling
		switch c.Type {
		case xmlquery.ElementNode:
			xmlquery.RemoveFromTree(c)
			clean(c)
			xmlquery.AddChild(t, c)
		case xmlquery.TextNode, xmlquery.CharDataNode:
			if strings.TrimSpace(c.Data) != "" {
				return nil, ncerr.InvalidValue(ncerr.WithMessage("config: unexpected text content"))
			}
		}
		c = next
	}
	return t, nil
}

// clean removes comments, namespace declarations and the whitespace
// between child elements below n.
func clean(n *xmlquery.Node) {
	attrs := n.Attr[:0]
	for _, a := range n.Attr {
		if isDecl(a) {
			continue
		}
		attrs = append(attrs, a)
	}
	n.Attr = attrs

	hasElements := false
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode {
			hasElements = true
			break
		}
	}
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		switch c.Type {
		case xmlquery.ElementNode:
			clean(c)
		case xmlquery.TextNode, xmlquery.CharDataNode:
			if hasElements && strings.TrimSpace(c.Data) == "" {
				xmlquery.RemoveFromTree(c)
			}
		default:
			xmlquery.RemoveFromTree(c)
		}
		c = next
	}
}

func isDecl(a xmlquery.Attr) bool {
	return a.Name.Space == "xmlns" || (a.Name.Space == "" && a.Name.Local == "xmlns")
}

// isOperationAttr returns true for the edit-config operation attribute.
func isOperationAttr(a xmlquery.Attr) bool {
	return a.NamespaceURI == message.NSBase && a.Name.Local == "operation"
}

// copyNode returns a deep copy of n, detached from any tree. Operation
// attributes are dropped.
func copyNode(n *xmlquery.Node) *xmlquery.Node {
	out := shallowCopy(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		xmlquery.AddChild(out, copyNode(c))
	}
	return out
}

// shallowCopy returns n without its children.
func shallowCopy(n *xmlquery.Node) *xmlquery.Node {
	out := &xmlquery.Node{
		Type:         n.Type,
		Data:         n.Data,
		Prefix:       n.Prefix,
		NamespaceURI: n.NamespaceURI,
	}
	for _, a := range n.Attr {
		if !isOperationAttr(a) {
			out.Attr = append(out.Attr, a)
		}
	}
	return out
}

func elements(n *xmlquery.Node) (out []*xmlquery.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode {
			out = append(out, c)
		}
	}
	return out
}

func isLeaf(n *xmlquery.Node) bool { return len(elements(n)) == 0 }

// text returns the trimmed text content of a leaf element.
func text(n *xmlquery.Node) string { return strings.TrimSpace(n.InnerText()) }

func keyOf(n *xmlquery.Node) (string, bool) {
	for _, c := range elements(n) {
		if c.Data == keyElement && c.NamespaceURI == n.NamespaceURI {
			return text(c), true
		}
	}
	return "", false
}

// sameNode returns true if a and b name the same data node.
func sameNode(a, b *xmlquery.Node) bool {
	if a.Data != b.Data || a.NamespaceURI != b.NamespaceURI {
		return false
	}
	ka, oka := keyOf(a)
	kb, okb := keyOf(b)
	if oka && okb {
		return ka == kb
	}
	return true
}

// find returns the child of parent naming the same data node as n.
func find(parent, n *xmlquery.Node) *xmlquery.Node {
	for c := parent.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode && sameNode(c, n) {
			return c
		}
	}
	return nil
}

// replaceNode puts n in old's place in its tree.
func replaceNode(old, n *xmlquery.Node) {
	parent := old.Parent
	n.Parent = parent
	n.PrevSibling, n.NextSibling = old.PrevSibling, old.NextSibling
	if old.PrevSibling != nil {
		old.PrevSibling.NextSibling = n
	} else {
		parent.FirstChild = n
	}
	if old.NextSibling != nil {
		old.NextSibling.PrevSibling = n
	} else {
		parent.LastChild = n
	}
	old.Parent, old.PrevSibling, old.NextSibling = nil, nil, nil
}

// setText replaces the content of leaf n with the text of leaf from.
func setText(n, from *xmlquery.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		xmlquery.RemoveFromTree(c)
		c = next
	}
	for c := from.FirstChild; c != nil; c = c.NextSibling {
		xmlquery.AddChild(n, copyNode(c))
	}
}

// path returns the location of n for error-path, such as
// /interfaces/interface[name='eth0']/mtu.
func path(n *xmlquery.Node) string {
	var parts []string
	for ; n != nil && n.Type == xmlquery.ElementNode; n = n.Parent {
		p := n.Data
		if k, ok := keyOf(n); ok {
			p += "[" + keyElement + "='" + k + "']"
		}
		parts = append(parts, p)
	}
	var b strings.Builder
	for i := len(parts) - 1; i >= 0; i-- {
		b.WriteString("/" + parts[i])
	}
	return b.String()
}

// render returns the XML encoding of the children of t. A non-empty
// indent puts each element on its own line.
func render(t *xmlquery.Node, indent string) []byte {
	var b bytes.Buffer
	for c := t.FirstChild; c != nil; c = c.NextSibling {
		renderNode(&b, c, "", indent, 0)
	}
	return b.Bytes()
}

func renderNode(b *bytes.Buffer, n *xmlquery.Node, parentNS, indent string, depth int) {
	switch n.Type {
	case xmlquery.TextNode, xmlquery.CharDataNode:
		_ = xml.EscapeText(b, []byte(n.Data))
		return
	case xmlquery.ElementNode:
	default:
		return
	}
	if indent != "" {
		b.WriteString(strings.Repeat(indent, depth))
	}
	b.WriteString("<" + n.Data)
	if n.NamespaceURI != parentNS {
		b.WriteString(` xmlns="`)
		_ = xml.EscapeText(b, []byte(n.NamespaceURI))
		b.WriteString(`"`)
	}
	declared := map[string]bool{}
	for _, a := range n.Attr {
		name := a.Name.Local
		if a.Name.Space != "" {
			name = a.Name.Space + ":" + name
			if a.NamespaceURI != "" && !declared[a.Name.Space] {
				declared[a.Name.Space] = true
				b.WriteString(" xmlns:" + a.Name.Space + `="`)
				_ = xml.EscapeText(b, []byte(a.NamespaceURI))
				b.WriteString(`"`)
			}
		}
		b.WriteString(" " + name + `="`)
		_ = xml.EscapeText(b, []byte(a.Value))
		b.WriteString(`"`)
	}
	if n.FirstChild == nil {
		b.WriteString("/>")
		if indent != "" {
			b.WriteString("\n")
		}
		return
	}
	b.WriteString(">")
	nested := indent != "" && !isLeaf(n)
	if nested {
		b.WriteString("\n")
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if nested {
			renderNode(b, c, n.NamespaceURI, indent, depth+1)
		} else {
			renderNode(b, c, n.NamespaceURI, "", 0)
		}
	}
	if nested {
		b.WriteString(strings.Repeat(indent, depth))
	}
	b.WriteString("</" + n.Data + ">")
	if indent != "" {
		b.WriteString("\n")
	}
}
