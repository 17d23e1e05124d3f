package server

import (
	"bytes"
	"encoding/xml"
	"sort"
	"strconv"
	"time"
)

// NSMonitoring is the namespace of the RFC6022 netconf-state data.
const NSMonitoring = "urn:ietf:params:xml:ns:yang:ietf-netconf-monitoring"

type netconfStateXML struct {
	XMLName      xml.Name            `xml:"urn:ietf:params:xml:ns:yang:ietf-netconf-monitoring netconf-state"`
	Capabilities []string            `xml:"capabilities>capability"`
	Sessions     []monitorSessionXML `xml:"sessions>session"`
}

type monitorSessionXML struct {
	SessionID string `xml:"session-id"`
	Transport string `xml:"transport"`
	Username  string `xml:"username"`
	LoginTime string `xml:"login-time"`
}

// State returns the netconf-state element describing the server's
// capabilities and open sessions, for use as state data in get replies.
func (s *Server) State() []byte {
	s.mu.Lock()
	sessions := make([]monitorSessionXML, 0, len(s.sessions))
	for id, p := range s.sessions {
		sessions = append(sessions, monitorSessionXML{
			SessionID: strconv.FormatUint(uint64(id), 10),
			Transport: "netconf-ssh",
			Username:  p.user,
			LoginTime: p.opened.UTC().Format(time.RFC3339),
		})
	}
	s.mu.Unlock()
	sort.Slice(sessions, func(i, j int) bool {
		a, _ := strconv.ParseUint(sessions[i].SessionID, 10, 32)
		b, _ := strconv.ParseUint(sessions[j].SessionID, 10, 32)
		return a < b
	})

	var b bytes.Buffer
	_ = xml.NewEncoder(&b).Encode(netconfStateXML{
		Capabilities: s.cfg.Capabilities.Sorted(),
		Sessions:     sessions,
	})
	return b.Bytes()
}
