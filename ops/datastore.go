package ops

import (
	"encoding/xml"

	"github.com/andaru/ncrpc/capability"
	"github.com/andaru/ncrpc/ncerr"
	"github.com/andaru/ncrpc/xmlutil"
)

// Datastore names a configuration datastore.
type Datastore string

const (
	Running   Datastore = "running"
	Candidate Datastore = "candidate"
	Startup   Datastore = "startup"
)

// Ref names either a datastore or, with the :url capability, a URL.
type Ref struct {
	Datastore Datastore
	URL       string
}

func (r Ref) String() string {
	if r.URL != "" {
		return r.URL
	}
	return string(r.Datastore)
}

func unsupported(op, capURI, reason string) error {
	return &ncerr.UnsupportedOperationError{Operation: op, Capability: capURI, Reason: reason}
}

// checkDatastore checks ds may be used by op. write is true when ds is
// the target of a configuration change.
func checkDatastore(op string, caps capability.Set, ds Datastore, write bool) error {
	switch ds {
	case Running:
		if write && !caps.Has(capability.WritableRunning) {
			return unsupported(op, capability.WritableRunning, "")
		}
	case Candidate:
		if !caps.Has(capability.Candidate) {
			return unsupported(op, capability.Candidate, "")
		}
	case Startup:
		if !caps.Has(capability.Startup) {
			return unsupported(op, capability.Startup, "")
		}
	case "":
		return unsupported(op, "", "no datastore given")
	default:
		return unsupported(op, "", "unknown datastore "+string(ds))
	}
	return nil
}

func checkRef(op string, caps capability.Set, r Ref, write bool) error {
	if r.URL != "" {
		if r.Datastore != "" {
			return unsupported(op, "", "both datastore and url given")
		}
		if !caps.Has(capability.URL) {
			return unsupported(op, capability.URL, "")
		}
		return nil
	}
	return checkDatastore(op, caps, r.Datastore, write)
}

// datastoreXML is the content of <source> and <target> elements.
type datastoreXML struct {
	Running   *struct{}  `xml:"running"`
	Candidate *struct{}  `xml:"candidate"`
	Startup   *struct{}  `xml:"startup"`
	URL       string     `xml:"url,omitempty"`
	Config    *configXML `xml:"config"`
}

func refXML(r Ref) *datastoreXML {
	x := &datastoreXML{URL: r.URL}
	switch r.Datastore {
	case Running:
		x.Running = &struct{}{}
	case Candidate:
		x.Candidate = &struct{}{}
	case Startup:
		x.Startup = &struct{}{}
	}
	return x
}

// ref returns the single datastore or URL named by x. Inline config is
// returned separately by the operations accepting it.
func (x *datastoreXML) ref(parent string) (Ref, *ncerr.Error) {
	if x == nil {
		return Ref{}, ncerr.MissingElement(parent, ncerr.WithType(ncerr.TypeProtocol))
	}
	var (
		r Ref
		n int
	)
	if x.Running != nil {
		r.Datastore, n = Running, n+1
	}
	if x.Candidate != nil {
		r.Datastore, n = Candidate, n+1
	}
	if x.Startup != nil {
		r.Datastore, n = Startup, n+1
	}
	if x.URL != "" {
		r.URL, n = x.URL, n+1
	}
	if x.Config != nil {
		n++
	}
	switch {
	case n > 1:
		return Ref{}, ncerr.BadElement(parent, ncerr.WithType(ncerr.TypeProtocol), ncerr.WithMessage("more than one "+parent+" given"))
	case n == 0:
		return Ref{}, ncerr.MissingElement(parent, ncerr.WithType(ncerr.TypeProtocol))
	}
	return r, nil
}

// inline returns true if x holds only inline configuration.
func (x *datastoreXML) inline() bool {
	return x != nil && x.Config != nil && x.Running == nil && x.Candidate == nil && x.Startup == nil && x.URL == ""
}

// configXML is a <config> element with inline configuration.
type configXML struct {
	Attrs []xml.Attr `xml:",any,attr"`
	Inner []byte    `xml:",innerxml"`
}

func newConfigXML(content []byte, ns xmlutil.PrefixMap) *configXML {
	return &configXML{Attrs: ns.DeclAttr(), Inner: content}
}

// namespaces returns the prefixes in scope for the config content.
func (c *configXML) namespaces(outer xmlutil.PrefixMap) xmlutil.PrefixMap {
	return outer.Merge(xmlutil.NewPrefixMap(c.Attrs...))
}
