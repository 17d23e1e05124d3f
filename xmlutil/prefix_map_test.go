package xmlutil

import (
	"encoding/xml"
	"testing"

	"github.com/stretchr/testify/assert"
)

const nsInterfaces = "urn:ietf:params:xml:ns:yang:ietf-interfaces"

func TestNewPrefixMap(t *testing.T) {
	a := assert.New(t)
	// attributes of <rpc xmlns="..." xmlns:nc="..." xmlns:if="..." message-id="7">
	m := NewPrefixMap(
		xml.Attr{Name: xml.Name{Local: "xmlns"}, Value: nsBase},
		xml.Attr{Name: xml.Name{Space: "xmlns", Local: "nc"}, Value: nsBase},
		xml.Attr{Name: xml.Name{Space: "xmlns", Local: "if"}, Value: nsInterfaces},
		xml.Attr{Name: xml.Name{Local: "message-id"}, Value: "7"},
	)
	a.Equal(PrefixMap{"nc": nsBase, "if": nsInterfaces}, m)
	a.Equal(nsInterfaces, m.Namespace("if"))
	a.Empty(m.Namespace("ex"))
	a.Equal([]string{"nc"}, m.Prefix(nsBase))
	a.Nil(m.Prefix(nsNotification))

	m["netconf"] = nsBase
	a.Equal([]string{"nc", "netconf"}, m.Prefix(nsBase))
	a.Equal([]xml.Attr{
		{Name: xml.Name{Space: "xmlns", Local: "if"}, Value: nsInterfaces},
		{Name: xml.Name{Space: "xmlns", Local: "nc"}, Value: nsBase},
		{Name: xml.Name{Space: "xmlns", Local: "netconf"}, Value: nsBase},
	}, m.Attr())

	a.Empty(NewPrefixMap())
	a.Nil(PrefixMap{}.Attr())
}

func TestPrefixMapWrap(t *testing.T) {
	for _, tc := range []struct {
		name string
		pmap PrefixMap
		want string
	}{
		{name: "no prefixes", want: `<config><interfaces/></config>`},
		{
			name: "rpc prefixes",
			pmap: PrefixMap{"if": nsInterfaces, "nc": nsBase},
			want: `<config xmlns:if="` + nsInterfaces + `" xmlns:nc="` + nsBase + `"><interfaces/></config>`,
		},
		{
			name: "escaped",
			pmap: PrefixMap{"q": "urn:x?a=1&b=2"},
			want: `<config xmlns:q="urn:x?a=1&amp;b=2"><interfaces/></config>`,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, string(tc.pmap.Wrap("config", []byte("<interfaces/>"))))
		})
	}
}

func TestPrefixMapDeclAttrMerge(t *testing.T) {
	a := assert.New(t)
	rpc := PrefixMap{"nc": nsBase, "if": nsInterfaces}
	a.Equal([]xml.Attr{
		{Name: xml.Name{Local: "xmlns:if"}, Value: nsInterfaces},
		{Name: xml.Name{Local: "xmlns:nc"}, Value: nsBase},
	}, rpc.DeclAttr())

	// declarations on the config element override those on <rpc>
	inner := PrefixMap{"if": "urn:example:interfaces"}
	a.Equal(PrefixMap{"nc": nsBase, "if": "urn:example:interfaces"}, rpc.Merge(inner))
	a.Equal(nsInterfaces, rpc["if"])
	a.Nil(PrefixMap(nil).Merge(PrefixMap{}))
}
