package server

import (
	"bytes"
	"encoding/xml"
	"strconv"

	"github.com/andaru/ncrpc/message"
	"github.com/andaru/ncrpc/ops"
	"github.com/golang/glog"
)

// NSNotifications is the namespace of the RFC6470 notifications.
const NSNotifications = "urn:ietf:params:xml:ns:yang:ietf-netconf-notifications"

type configChangeXML struct {
	XMLName   xml.Name `xml:"urn:ietf:params:xml:ns:yang:ietf-netconf-notifications netconf-config-change"`
	Username  string   `xml:"changed-by>username"`
	SessionID string   `xml:"changed-by>session-id"`
	Datastore string   `xml:"datastore"`
}

// ConfigChange returns the payload of a netconf-config-change event.
func ConfigChange(user string, id uint32, ds ops.Datastore) []byte {
	var b bytes.Buffer
	_ = xml.NewEncoder(&b).Encode(configChangeXML{
		Username:  user,
		SessionID: strconv.FormatUint(uint64(id), 10),
		Datastore: string(ds),
	})
	return b.Bytes()
}

// Notify sends n to every open session which has created a
// subscription.
func (s *Server) Notify(n *message.Notification) (sent int) {
	s.mu.Lock()
	peers := make([]*peer, 0, len(s.sessions))
	for _, p := range s.sessions {
		if p.subscribed {
			peers = append(peers, p)
		}
	}
	s.mu.Unlock()

	for _, p := range peers {
		if err := p.s.Notify(n); err != nil {
			glog.V(1).Infof("session %d: notification not sent: %v", p.s.ID(), err)
			continue
		}
		sent++
	}
	return sent
}

func (s *Server) configChanged(req *Request, ds ops.Datastore) {
	n := &message.Notification{
		EventTime: s.env.Now(),
		Payload:   ConfigChange(req.User, req.Session.ID(), ds),
	}
	if sent := s.Notify(n); sent > 0 {
		glog.V(1).Infof("session %d changed %s, notified %d sessions", req.Session.ID(), ds, sent)
	}
}
