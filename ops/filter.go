package ops

import (
	"encoding/xml"

	"github.com/andaru/ncrpc/capability"
	"github.com/andaru/ncrpc/ncerr"
	"github.com/andaru/ncrpc/xmlutil"
)

// FilterType is the type of a <filter>.
type FilterType string

const (
	FilterSubtree FilterType = "subtree"
	FilterXPath   FilterType = "xpath"
)

// Filter selects part of a datastore for get and get-config.
type Filter struct {
	Type FilterType
	// Content is the subtree filter content.
	Content []byte
	// Select is the XPath filter expression.
	Select string
	// Namespaces declares the prefixes used by Content or Select.
	Namespaces xmlutil.PrefixMap
}

func (f *Filter) check(op string, caps capability.Set) error {
	if f == nil {
		return nil
	}
	switch f.Type {
	case FilterSubtree:
	case FilterXPath:
		if !caps.Has(capability.XPath) {
			return unsupported(op, capability.XPath, "")
		}
		if f.Select == "" {
			return unsupported(op, "", "xpath filter has no select expression")
		}
	default:
		return unsupported(op, "", "unknown filter type "+string(f.Type))
	}
	return nil
}

type filterXML struct {
	Type   string     `xml:"type,attr,omitempty"`
	Select string     `xml:"select,attr,omitempty"`
	Attrs  []xml.Attr `xml:",any,attr"`
	Inner  []byte     `xml:",innerxml"`
}

func (f *Filter) encode() *filterXML {
	if f == nil {
		return nil
	}
	return &filterXML{Type: string(f.Type), Select: f.Select, Attrs: f.Namespaces.DeclAttr(), Inner: f.Content}
}

func (x *filterXML) filter(outer xmlutil.PrefixMap) (*Filter, *ncerr.Error) {
	if x == nil {
		return nil, nil
	}
	f := &Filter{
		Type:       FilterType(x.Type),
		Select:     x.Select,
		Namespaces: outer.Merge(xmlutil.NewPrefixMap(x.Attrs...)),
	}
	if f.Type == "" {
		f.Type = FilterSubtree
	}
	if len(x.Inner) > 0 {
		f.Content = x.Inner
	}
	switch f.Type {
	case FilterSubtree:
	case FilterXPath:
		if f.Select == "" {
			return nil, ncerr.MissingAttribute("select", "filter", ncerr.WithType(ncerr.TypeProtocol))
		}
	default:
		return nil, ncerr.BadAttribute("type", "filter", ncerr.WithType(ncerr.TypeProtocol))
	}
	return f, nil
}
