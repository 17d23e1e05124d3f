// Package yangschema checks configuration content against the data
// nodes of a set of YANG modules.
//
// Only structure is checked: element names and namespaces, list keys and
// whether a node is configuration. Leaf values are not checked against
// their YANG types.
package yangschema

import (
	"bytes"
	"path/filepath"
	"sort"
	"strings"

	"github.com/andaru/ncrpc/ncerr"
	"github.com/andaru/ncrpc/xmlutil"
	"github.com/antchfx/xmlquery"
	"github.com/golang/glog"
	"github.com/openconfig/goyang/pkg/yang"
	"github.com/pkg/errors"
)

// Schema holds the top-level data nodes of processed YANG modules, by
// module namespace.
type Schema struct {
	modules []string
	roots   map[string]map[string]*yang.Entry
}

// Load reads and processes the YANG files at paths. Each file's directory
// is searched for the modules it imports.
func Load(paths ...string) (*Schema, error) {
	ms := yang.NewModules()
	for _, p := range paths {
		ms.AddPath(filepath.Dir(p))
	}
	for _, p := range paths {
		if err := ms.Read(p); err != nil {
			return nil, errors.Wrapf(err, "yang: %s", p)
		}
	}
	return build(ms)
}

// Parse processes the YANG module source src, named name in errors.
func Parse(name, src string) (*Schema, error) {
	ms := yang.NewModules()
	if err := ms.Parse(src, name); err != nil {
		return nil, errors.Wrapf(err, "yang: %s", name)
	}
	return build(ms)
}

func build(ms *yang.Modules) (*Schema, error) {
	if errs := ms.Process(); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, err := range errs {
			msgs[i] = err.Error()
		}
		return nil, errors.Errorf("yang: %s", strings.Join(msgs, "; "))
	}
	s := &Schema{roots: map[string]map[string]*yang.Entry{}}
	seen := map[*yang.Module]bool{}
	for _, m := range ms.Modules {
		// modules are indexed by both name and name@revision
		if seen[m] {
			continue
		}
		seen[m] = true
		if m.Namespace == nil {
			continue
		}
		s.modules = append(s.modules, m.Name)
		entry := yang.ToEntry(m)
		nodes := s.roots[m.Namespace.Name]
		if nodes == nil {
			nodes = map[string]*yang.Entry{}
			s.roots[m.Namespace.Name] = nodes
		}
		for name, e := range entry.Dir {
			nodes[name] = e
		}
		glog.V(1).Infof("yang module %s: %d top-level nodes in %s", m.Name, len(entry.Dir), m.Namespace.Name)
	}
	sort.Strings(s.modules)
	return s, nil
}

// Modules returns the names of the loaded modules, sorted.
func (s *Schema) Modules() []string { return s.modules }

// Namespaces returns the namespaces of the loaded modules, sorted.
func (s *Schema) Namespaces() []string {
	ns := make([]string, 0, len(s.roots))
	for n := range s.roots {
		ns = append(ns, n)
	}
	sort.Strings(ns)
	return ns
}

// Validate checks the configuration elements in config, with the prefixes
// ns in scope, against the schema. It returns an ncerr.List holding an
// rpc-error for each element that does not fit.
func (s *Schema) Validate(config []byte, ns xmlutil.PrefixMap) error {
	doc, err := xmlquery.Parse(bytes.NewReader(ns.Wrap("config", config)))
	if err != nil {
		return ncerr.InvalidValue(ncerr.WithMessage("config: " + err.Error()))
	}
	var l ncerr.List
	for _, n := range children(wrapper(doc)) {
		nodes, ok := s.roots[n.NamespaceURI]
		if !ok {
			l = append(l, ncerr.UnknownNamespace(n.Data, n.NamespaceURI, ncerr.WithPath("/"+n.Data)))
			continue
		}
		e, ok := nodes[n.Data]
		if !ok {
			l = append(l, ncerr.UnknownElement(n.Data, ncerr.WithPath("/"+n.Data)))
			continue
		}
		l = append(l, check(n, e, "/"+n.Data)...)
	}
	if len(l) == 0 {
		return nil
	}
	return l
}

func check(n *xmlquery.Node, e *yang.Entry, path string) (l ncerr.List) {
	if e.ReadOnly() {
		return ncerr.List{ncerr.BadElement(n.Data, ncerr.WithPath(path), ncerr.WithMessage("not configuration"))}
	}
	kids := children(n)
	if e.IsLeaf() || e.IsLeafList() {
		if len(kids) > 0 {
			l = append(l, ncerr.BadElement(n.Data, ncerr.WithPath(path), ncerr.WithMessage("leaf has child elements")))
		}
		return l
	}
	if e.IsList() && e.Key != "" {
		present := map[string]bool{}
		for _, c := range kids {
			present[c.Data] = true
		}
		for _, k := range strings.Fields(e.Key) {
			if !present[k] {
				l = append(l, ncerr.MissingElement(k, ncerr.WithPath(path)))
			}
		}
	}
	for _, c := range kids {
		cp := path + "/" + c.Data
		ce := child(e, c.Data)
		if ce == nil {
			l = append(l, ncerr.UnknownElement(c.Data, ncerr.WithPath(cp)))
			continue
		}
		l = append(l, check(c, ce, cp)...)
	}
	return l
}

// child returns the data node of e named name, looking through choices
// and cases, which do not appear in instance data.
func child(e *yang.Entry, name string) *yang.Entry {
	if c, ok := e.Dir[name]; ok && !c.IsChoice() && !c.IsCase() {
		return c
	}
	for _, c := range e.Dir {
		if c.IsChoice() || c.IsCase() {
			if found := child(c, name); found != nil {
				return found
			}
		}
	}
	return nil
}

func wrapper(doc *xmlquery.Node) *xmlquery.Node {
	for c := doc.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode {
			return c
		}
	}
	return nil
}

func children(n *xmlquery.Node) (out []*xmlquery.Node) {
	if n == nil {
		return nil
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode {
			out = append(out, c)
		}
	}
	return out
}
