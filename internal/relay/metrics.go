package relay

import (
	"time"

	"github.com/muurk/qcdiag/internal/protocol"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks relay traffic. All metrics use the "qcdiag_relay_" prefix.
// Methods handle a nil receiver, so a nil *Metrics is a no-op.
type Metrics struct {
	// Requests counts forwarded requests.
	// Labels: opcode=[NV_READ, SUBSYS_CMD, ...]
	Requests *prometheus.CounterVec

	// EmptyReplies counts requests the device did not answer.
	EmptyReplies prometheus.Counter

	// LinkErrors counts requests that failed on the local channel.
	LinkErrors prometheus.Counter

	// Latency is the device round trip time.
	Latency prometheus.Histogram

	// ActiveSessions is 1 while a client holds the port.
	ActiveSessions prometheus.Gauge

	// RejectedSessions counts clients turned away while busy.
	RejectedSessions prometheus.Counter
}

// NewMetrics creates the relay metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qcdiag_relay_requests_total",
				Help: "Diag requests forwarded to the device by opcode",
			},
			[]string{"opcode"},
		),
		EmptyReplies: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "qcdiag_relay_empty_replies_total",
			Help: "Requests the device did not answer within the response timeout",
		}),
		LinkErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "qcdiag_relay_link_errors_total",
			Help: "Requests that failed on the local diag channel",
		}),
		Latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "qcdiag_relay_request_duration_seconds",
			Help:    "Device round trip time",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "qcdiag_relay_active_sessions",
			Help: "Clients currently holding the diag port",
		}),
		RejectedSessions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "qcdiag_relay_rejected_sessions_total",
			Help: "Clients rejected because the port was busy",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Requests, m.EmptyReplies, m.LinkErrors, m.Latency, m.ActiveSessions, m.RejectedSessions)
	}
	return m
}

func (m *Metrics) observe(req []byte, d time.Duration, empty bool, err error) {
	if m == nil || len(req) == 0 {
		return
	}
	m.Requests.WithLabelValues(protocol.DiagCommand(req[0]).String()).Inc()
	switch {
	case err != nil:
		m.LinkErrors.Inc()
		return
	case empty:
		m.EmptyReplies.Inc()
	}
	m.Latency.Observe(d.Seconds())
}

func (m *Metrics) sessionStarted() {
	if m != nil {
		m.ActiveSessions.Inc()
	}
}

func (m *Metrics) sessionEnded() {
	if m != nil {
		m.ActiveSessions.Dec()
	}
}

func (m *Metrics) rejected() {
	if m != nil {
		m.RejectedSessions.Inc()
	}
}
