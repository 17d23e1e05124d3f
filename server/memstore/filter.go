package memstore

import (
	"github.com/andaru/ncrpc/ncerr"
	"github.com/andaru/ncrpc/ops"
	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"
)

// applyFilter returns the part of tree t selected by f. A nil filter
// selects everything.
func applyFilter(t *xmlquery.Node, f *ops.Filter) (*xmlquery.Node, error) {
	if f == nil {
		return t, nil
	}
	switch f.Type {
	case ops.FilterXPath:
		return xpathFilter(t, f)
	case ops.FilterSubtree, "":
		ft, err := parseTree(f.Content, f.Namespaces)
		if err != nil {
			return nil, ncerr.InvalidValue(ncerr.WithType(ncerr.TypeProtocol), ncerr.WithMessage("bad subtree filter"))
		}
		out := newTree()
		if len(elements(ft)) == 0 {
			return out, nil
		}
		kids, _ := subtree(t, ft)
		for _, k := range kids {
			xmlquery.AddChild(out, k)
		}
		return out, nil
	}
	return nil, ncerr.BadAttribute("type", "filter", ncerr.WithType(ncerr.TypeProtocol))
}

// matches returns true if the data element d is named by the filter
// element f. A filter element without a namespace matches any namespace.
func matches(d, f *xmlquery.Node) bool {
	if d.Data != f.Data {
		return false
	}
	if f.NamespaceURI != "" && f.NamespaceURI != d.NamespaceURI {
		return false
	}
	for _, fa := range f.Attr {
		found := false
		for _, da := range d.Attr {
			if da.Name.Local == fa.Name.Local && da.NamespaceURI == fa.NamespaceURI && da.Value == fa.Value {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// contentMatch returns true for a filter leaf holding text.
func contentMatch(f *xmlquery.Node) bool { return isLeaf(f) && text(f) != "" }

// subtree returns copies of the children of data selected by the
// children of filter (RFC6241 s6). ok is false when a content match
// node fails, deselecting data.
func subtree(data, filter *xmlquery.Node) (out []*xmlquery.Node, ok bool) {
	var cms, rest []*xmlquery.Node
	for _, f := range elements(filter) {
		if contentMatch(f) {
			cms = append(cms, f)
		} else {
			rest = append(rest, f)
		}
	}
	children := elements(data)
	for _, cm := range cms {
		found := false
		for _, d := range children {
			if matches(d, cm) && text(d) == text(cm) {
				found = true
				break
			}
		}
		if !found {
			return nil, false
		}
	}
	if len(cms) > 0 && len(rest) == 0 {
		for _, d := range children {
			out = append(out, copyNode(d))
		}
		return out, true
	}

	for _, d := range children {
		var sel *xmlquery.Node
		for _, cm := range cms {
			if matches(d, cm) && text(d) == text(cm) {
				sel = copyNode(d)
				break
			}
		}
		for _, f := range rest {
			if sel != nil {
				break
			}
			if !matches(d, f) {
				continue
			}
			if isLeaf(f) {
				sel = copyNode(d)
				break
			}
			kids, ok := subtree(d, f)
			if !ok || len(kids) == 0 {
				continue
			}
			sel = shallowCopy(d)
			for _, k := range kids {
				xmlquery.AddChild(sel, k)
			}
		}
		if sel != nil {
			out = append(out, sel)
		}
	}
	return out, true
}

// xpathFilter returns the nodes selected by the filter expression with
// their ancestors. Ancestors carry their list key.
func xpathFilter(t *xmlquery.Node, f *ops.Filter) (*xmlquery.Node, error) {
	expr, err := xpath.CompileWithNS(f.Select, map[string]string(f.Namespaces))
	if err != nil {
		return nil, ncerr.InvalidValue(ncerr.WithType(ncerr.TypeProtocol), ncerr.WithMessage("bad xpath filter: "+err.Error()))
	}
	it, ok := expr.Evaluate(xmlquery.CreateXPathNavigator(t)).(*xpath.NodeIterator)
	if !ok {
		return nil, ncerr.InvalidValue(ncerr.WithType(ncerr.TypeProtocol), ncerr.WithMessage("xpath filter does not select a node-set"))
	}

	out := newTree()
	copies := map[*xmlquery.Node]*xmlquery.Node{t: out}
	full := map[*xmlquery.Node]bool{}
	for it.MoveNext() {
		n := it.Current().(*xmlquery.NodeNavigator).Current()
		for n != nil && n.Type != xmlquery.ElementNode && n.Type != xmlquery.DocumentNode {
			n = n.Parent
		}
		if n == nil {
			continue
		}
		if n == t {
			return copyNode(t), nil
		}
		var chain []*xmlquery.Node
		covered := false
		for a := n; a != nil && a != t; a = a.Parent {
			if full[a] {
				covered = true
				break
			}
			chain = append(chain, a)
		}
		if covered {
			continue
		}
		parent := out
		for i := len(chain) - 1; i > 0; i-- {
			a := chain[i]
			c, ok := copies[a]
			if !ok {
				c = shallowCopy(a)
				if k := keyNode(a); k != nil {
					kc := copyNode(k)
					xmlquery.AddChild(c, kc)
					copies[k] = kc
				}
				copies[a] = c
				xmlquery.AddChild(parent, c)
			}
			parent = c
		}
		c := copyNode(n)
		if old, ok := copies[n]; ok {
			replaceNode(old, c)
		} else {
			xmlquery.AddChild(parent, c)
		}
		copies[n] = c
		full[n] = true
	}
	return out, nil
}

func keyNode(n *xmlquery.Node) *xmlquery.Node {
	for _, c := range elements(n) {
		if c.Data == keyElement && c.NamespaceURI == n.NamespaceURI {
			return c
		}
	}
	return nil
}
