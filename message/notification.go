package message

import (
	"bytes"
	"encoding/xml"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Notification is an RFC5277 event notification.
type Notification struct {
	EventTime time.Time
	// Payload is the event content following <eventTime>.
	Payload []byte
}

// Encode returns the <notification> message for n.
func (n *Notification) Encode() ([]byte, error) {
	var b bytes.Buffer
	b.WriteString(`<notification xmlns="` + NSNotification + `"><eventTime>`)
	b.WriteString(n.EventTime.Format(time.RFC3339Nano))
	b.WriteString(`</eventTime>`)
	b.Write(n.Payload)
	b.WriteString(`</notification>`)
	return b.Bytes(), nil
}

// DecodeNotification returns the <notification> m.
func DecodeNotification(m *Message) (*Notification, error) {
	if m.Kind != KindNotification {
		return nil, errors.Errorf("cannot decode %s message as notification", m.Kind)
	}
	_, children, err := splitRoot(m.Raw)
	if err != nil {
		return nil, errors.Wrap(err, "decode notification")
	}
	n := &Notification{}
	var seenTime bool
	for _, c := range children {
		if c.Start.Name.Local == "eventTime" && !seenTime {
			var v struct {
				Text string `xml:",chardata"`
			}
			if err := xml.Unmarshal(c.Raw, &v); err != nil {
				return nil, errors.Wrap(err, "decode eventTime")
			}
			if n.EventTime, err = time.Parse(time.RFC3339Nano, strings.TrimSpace(v.Text)); err != nil {
				return nil, errors.Wrap(err, "invalid eventTime")
			}
			seenTime = true
			continue
		}
		n.Payload = append(n.Payload, c.Raw...)
	}
	if !seenTime {
		return nil, errors.New("notification has no <eventTime>")
	}
	return n, nil
}
