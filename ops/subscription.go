package ops

import (
	"encoding/xml"
	"time"

	"github.com/andaru/ncrpc/capability"
	"github.com/andaru/ncrpc/message"
	"github.com/andaru/ncrpc/ncerr"
)

// NameCreateSubscription is the RFC5277 subscription operation, in the
// notification namespace.
const NameCreateSubscription = "create-subscription"

// StreamNETCONF is the default event stream.
const StreamNETCONF = "NETCONF"

// CreateSubscription starts delivery of event notifications to the
// session.
type CreateSubscription struct {
	// Stream names the event stream, empty for the NETCONF stream.
	Stream string
	Filter *Filter
	// StartTime requests replay of past events, StopTime ends the
	// subscription. Both are zero for a live subscription.
	StartTime time.Time
	StopTime  time.Time
}

type createSubscriptionXML struct {
	XMLName   xml.Name
	Stream    string     `xml:"stream,omitempty"`
	Filter    *filterXML `xml:"filter"`
	StartTime string     `xml:"startTime,omitempty"`
	StopTime  string     `xml:"stopTime,omitempty"`
}

func (CreateSubscription) Name() string { return NameCreateSubscription }

func (o CreateSubscription) Check(caps capability.Set) error {
	if !caps.Has(capability.Notification) {
		return unsupported(NameCreateSubscription, capability.Notification, "")
	}
	if !o.StopTime.IsZero() && o.StartTime.IsZero() {
		return unsupported(NameCreateSubscription, "", "stopTime requires startTime")
	}
	return o.Filter.check(NameCreateSubscription, caps)
}

func (o CreateSubscription) Payload() ([]byte, error) {
	x := createSubscriptionXML{
		XMLName: xml.Name{Space: message.NSNotification, Local: NameCreateSubscription},
		Stream:  o.Stream,
		Filter:  o.Filter.encode(),
	}
	if !o.StartTime.IsZero() {
		x.StartTime = o.StartTime.Format(time.RFC3339Nano)
	}
	if !o.StopTime.IsZero() {
		x.StopTime = o.StopTime.Format(time.RFC3339Nano)
	}
	return xml.Marshal(x)
}

func parseCreateSubscription(rpc *message.RPC) (Operation, *ncerr.Error) {
	var x createSubscriptionXML
	if err := xml.Unmarshal(rpc.Body, &x); err != nil {
		return nil, ncerr.MalformedMessage(ncerr.WithErr(err))
	}
	f, rerr := x.Filter.filter(rpc.Namespaces)
	if rerr != nil {
		return nil, rerr
	}
	o := CreateSubscription{Stream: x.Stream, Filter: f}
	for _, t := range []struct {
		name string
		s    string
		v    *time.Time
	}{{"startTime", x.StartTime, &o.StartTime}, {"stopTime", x.StopTime, &o.StopTime}} {
		if t.s == "" {
			continue
		}
		v, err := time.Parse(time.RFC3339Nano, t.s)
		if err != nil {
			return nil, ncerr.InvalidValue(ncerr.WithType(ncerr.TypeProtocol), ncerr.WithMessage(t.name+": "+err.Error()))
		}
		*t.v = v
	}
	if !o.StopTime.IsZero() && o.StartTime.IsZero() {
		return nil, ncerr.MissingElement("startTime", ncerr.WithType(ncerr.TypeProtocol))
	}
	return o, nil
}
