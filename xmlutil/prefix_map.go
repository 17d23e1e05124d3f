package xmlutil

import (
	"bytes"
	"encoding/xml"
	"sort"
)

// PrefixMap is a prefix to namespace URI map
type PrefixMap map[string]string

// NewPrefixMap returns a PrefixMap, containing the xmlns:<prefix>
// declarations found in attrs.
func NewPrefixMap(attrs ...xml.Attr) PrefixMap {
	pmap := PrefixMap{}
	for _, attr := range attrs {
		if attr.Name.Space == "xmlns" {
			pmap[attr.Name.Local] = attr.Value
		}
	}
	return pmap
}

// Attr returns the prefix map contents as a series of xmlns:<prefix>=<nsuri> attributes,
// sorted lexically by prefix.
func (m PrefixMap) Attr() (a []xml.Attr) {
	for k, v := range m {
		a = append(a, xml.Attr{Name: xml.Name{Space: "xmlns", Local: k}, Value: v})
	}
	sort.Slice(a, func(i int, j int) bool { return a[i].Name.Local < a[j].Name.Local })
	return a
}

// Namespace returns the namespace URI for the given prefix
func (m PrefixMap) Namespace(prefix string) string { return m[prefix] }

// Prefix returns any prefixes found for the namespace URI, sorted lexically.
func (m PrefixMap) Prefix(nsURI string) (pfxes []string) {
	for k, v := range m {
		if nsURI == v {
			pfxes = append(pfxes, k)
		}
	}
	sort.Strings(pfxes)
	return pfxes
}

// Wrap returns content enclosed in a <local> element declaring every prefix
// in m, so a fragment cut from a larger document parses on its own.
func (m PrefixMap) Wrap(local string, content []byte) []byte {
	var b bytes.Buffer
	b.WriteString("<" + local)
	for _, a := range m.Attr() {
		b.WriteString(" xmlns:" + a.Name.Local + `="`)
		_ = xml.EscapeText(&b, []byte(a.Value))
		b.WriteString(`"`)
	}
	b.WriteString(">")
	b.Write(content)
	b.WriteString("</" + local + ">")
	return b.Bytes()
}

// DeclAttr returns the prefix map contents as xmlns:<prefix> attributes
// suitable for encoding with encoding/xml, which does not bind the
// xmlns attribute namespace itself. Attributes are sorted by prefix.
func (m PrefixMap) DeclAttr() (a []xml.Attr) {
	for _, attr := range m.Attr() {
		a = append(a, xml.Attr{Name: xml.Name{Local: "xmlns:" + attr.Name.Local}, Value: attr.Value})
	}
	return a
}

// Merge returns a new PrefixMap holding m's declarations overridden by
// other's. It returns nil if the result is empty.
func (m PrefixMap) Merge(other PrefixMap) PrefixMap {
	out := PrefixMap{}
	for k, v := range m {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
