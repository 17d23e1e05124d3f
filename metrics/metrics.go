// Package metrics holds the prometheus collectors of NETCONF sessions and
// the RPCs exchanged on them.
//
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "netconf"

// Metrics is a set of session and RPC collectors.
type Metrics struct {
	sessionsOpened   *prometheus.CounterVec
	sessionsClosed   *prometheus.CounterVec
	sessionsOpen     *prometheus.GaugeVec
	rpcsSent         *prometheus.CounterVec
	replies          *prometheus.CounterVec
	timeouts         *prometheus.CounterVec
	unexpected       prometheus.Counter
	framingErrors    prometheus.Counter
	notifications    prometheus.Counter
	rpcsHandled      *prometheus.CounterVec
	roundTripSeconds *prometheus.HistogramVec
}

// New returns Metrics registered with reg. A nil reg leaves the
// collectors unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		sessionsOpened: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "opened_total",
				Help:      "Sessions which completed the hello exchange.",
			},
			[]string{"role"},
		),
		sessionsClosed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "closed_total",
				Help:      "Sessions closed, by role and whether the close was graceful.",
			},
			[]string{"role", "graceful"},
		),
		sessionsOpen: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "open",
				Help:      "Sessions presently open.",
			},
			[]string{"role"},
		),
		rpcsSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "rpc",
				Name:      "sent_total",
				Help:      "RPCs sent, by operation.",
			},
			[]string{"operation"},
		),
		replies: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "rpc",
				Name:      "replies_total",
				Help:      "Replies matched to pending requests, by reply kind.",
			},
			[]string{"kind"},
		),
		timeouts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "rpc",
				Name:      "timeouts_total",
				Help:      "Pending requests expired before a reply arrived.",
			},
			[]string{"operation"},
		),
		unexpected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "unexpected_replies_total",
			Help:      "Replies dropped because no request was pending for their message-id.",
		}),
		framingErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "framing_errors_total",
			Help:      "Sessions terminated by a framing error.",
		}),
		notifications: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "notifications_total",
			Help:      "Notifications received.",
		}),
		rpcsHandled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "server",
				Name:      "rpcs_handled_total",
				Help:      "RPCs handled by server sessions, by operation and reply kind.",
			},
			[]string{"operation", "kind"},
		),
		roundTripSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "rpc",
				Name:      "round_trip_seconds",
				Help:      "Time from sending an RPC to receiving its reply.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.collectors()...)
	}
	return m
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.sessionsOpened, m.sessionsClosed, m.sessionsOpen,
		m.rpcsSent, m.replies, m.timeouts, m.unexpected,
		m.framingErrors, m.notifications, m.rpcsHandled, m.roundTripSeconds,
	}
}

// SessionOpened records a session of role ("client" or "server") opening.
func (m *Metrics) SessionOpened(role string) {
	if m == nil {
		return
	}
	m.sessionsOpened.WithLabelValues(role).Inc()
	m.sessionsOpen.WithLabelValues(role).Inc()
}

// SessionClosed records an open session closing.
func (m *Metrics) SessionClosed(role string, graceful bool) {
	if m == nil {
		return
	}
	g := "false"
	if graceful {
		g = "true"
	}
	m.sessionsClosed.WithLabelValues(role, g).Inc()
	m.sessionsOpen.WithLabelValues(role).Dec()
}

func (m *Metrics) RPCSent(operation string) {
	if m == nil {
		return
	}
	m.rpcsSent.WithLabelValues(operation).Inc()
}

// ReplyReceived records a reply of kind to operation, received d after
// the request was sent.
func (m *Metrics) ReplyReceived(operation, kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.replies.WithLabelValues(kind).Inc()
	m.roundTripSeconds.WithLabelValues(operation).Observe(d.Seconds())
}

func (m *Metrics) Timeout(operation string) {
	if m == nil {
		return
	}
	m.timeouts.WithLabelValues(operation).Inc()
}

func (m *Metrics) UnexpectedReply() {
	if m == nil {
		return
	}
	m.unexpected.Inc()
}

func (m *Metrics) FramingError() {
	if m == nil {
		return
	}
	m.framingErrors.Inc()
}

func (m *Metrics) Notification() {
	if m == nil {
		return
	}
	m.notifications.Inc()
}

// RPCHandled records a server session replying to operation.
func (m *Metrics) RPCHandled(operation, kind string) {
	if m == nil {
		return
	}
	m.rpcsHandled.WithLabelValues(operation, kind).Inc()
}
