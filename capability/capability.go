// Package capability holds NETCONF capability URIs and capability sets.
package capability

import (
	"sort"
	"strings"
)

// NETCONF capability URIs (RFC6241 s8, RFC5277).
const (
	Base10          = "urn:ietf:params:netconf:base:1.0"
	Base11          = "urn:ietf:params:netconf:base:1.1"
	WritableRunning = "urn:ietf:params:netconf:capability:writable-running:1.0"
	Candidate       = "urn:ietf:params:netconf:capability:candidate:1.0"
	ConfirmedCommit = "urn:ietf:params:netconf:capability:confirmed-commit:1.1"
	RollbackOnError = "urn:ietf:params:netconf:capability:rollback-on-error:1.0"
	Validate10      = "urn:ietf:params:netconf:capability:validate:1.0"
	Validate11      = "urn:ietf:params:netconf:capability:validate:1.1"
	Startup         = "urn:ietf:params:netconf:capability:startup:1.0"
	URL             = "urn:ietf:params:netconf:capability:url:1.0"
	XPath           = "urn:ietf:params:netconf:capability:xpath:1.0"
	Notification    = "urn:ietf:params:netconf:capability:notification:1.0"
	Interleave      = "urn:ietf:params:netconf:capability:interleave:1.0"
)

// Set is a slice of strings denoting NETCONF capability URIs
type Set []string

// Default returns the capabilities implemented by this module.
func Default() Set {
	return Set{
		Base10, Base11, WritableRunning, Candidate, ConfirmedCommit,
		RollbackOnError, Validate10, Validate11, Startup, XPath,
		Notification, Interleave,
	}
}

func strip(uri string) string {
	if i := strings.IndexByte(uri, '?'); i > -1 {
		return uri[:i]
	}
	return uri
}

// Has returns true if uri is in the set. Query parameters (such as the
// ?module= parameters of YANG module capabilities) are ignored.
func (c Set) Has(uri string) bool {
	uri = strip(uri)
	for _, cap := range c {
		if uri == strip(cap) {
			return true
		}
	}
	return false
}

// Any returns true if the set has any of uris.
func (c Set) Any(uris ...string) bool {
	for _, uri := range uris {
		if c.Has(uri) {
			return true
		}
	}
	return false
}

// Intersect returns the capabilities of c also present in other, in the
// order they appear in c.
func (c Set) Intersect(other Set) (out Set) {
	for _, cap := range c {
		if other.Has(cap) {
			out = append(out, cap)
		}
	}
	return out
}

// Sorted returns a sorted copy of c without duplicates.
func (c Set) Sorted() Set {
	out := append(Set(nil), c...)
	sort.Strings(out)
	n := 0
	for i, cap := range out {
		if i == 0 || cap != out[n-1] {
			out[n] = cap
			n++
		}
	}
	return out[:n]
}
