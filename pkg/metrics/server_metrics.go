package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ServerMetrics instruments the TCP server: session lifecycle, per-command
// traffic, transfer volume, and authentication outcomes. A nil
// *ServerMetrics is valid and records nothing.
type ServerMetrics struct {
	activeSessions  prometheus.Gauge
	sessionsTotal   prometheus.Counter
	packetsTotal    *prometheus.CounterVec
	packetDuration  *prometheus.HistogramVec
	bytesUploaded   prometheus.Counter
	bytesDownloaded prometheus.Counter
	authFailures    prometheus.Counter
	idleDisconnects prometheus.Counter
}

// NewServerMetrics creates the server instruments on the process registry.
// Returns nil when metrics are disabled.
func NewServerMetrics() *ServerMetrics {
	if !IsEnabled() {
		return nil
	}

	reg := GetRegistry()
	return &ServerMetrics{
		activeSessions: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "cubby_active_sessions",
			Help: "Number of currently connected client sessions",
		}),
		sessionsTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "cubby_sessions_total",
			Help: "Total number of client sessions accepted",
		}),
		packetsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "cubby_packets_total",
				Help: "Total packets processed by command and outcome",
			},
			[]string{"command", "status"}, // status: "ok", "error"
		),
		packetDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "cubby_packet_duration_milliseconds",
				Help: "Request handling duration in milliseconds",
				Buckets: []float64{
					0.5,  // metadata-only requests
					1,
					5,
					10,
					50,   // chunk writes
					100,
					500,
					1000, // slow disks
				},
			},
			[]string{"command"},
		),
		bytesUploaded: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "cubby_upload_bytes_total",
			Help: "Total chunk payload bytes received from clients",
		}),
		bytesDownloaded: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "cubby_download_bytes_total",
			Help: "Total chunk payload bytes sent to clients",
		}),
		authFailures: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "cubby_auth_failures_total",
			Help: "Total failed login attempts",
		}),
		idleDisconnects: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "cubby_idle_disconnects_total",
			Help: "Total sessions disconnected by the idle sweeper",
		}),
	}
}

// SessionStarted records a new session.
func (m *ServerMetrics) SessionStarted() {
	if m != nil {
		m.sessionsTotal.Inc()
		m.activeSessions.Inc()
	}
}

// SessionEnded records a session teardown.
func (m *ServerMetrics) SessionEnded() {
	if m != nil {
		m.activeSessions.Dec()
	}
}

// ObservePacket records one handled request.
func (m *ServerMetrics) ObservePacket(command string, ok bool, duration time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "error"
	}
	m.packetsTotal.WithLabelValues(command, status).Inc()
	m.packetDuration.WithLabelValues(command).Observe(float64(duration.Milliseconds()))
}

// AddUploadBytes records received chunk payload bytes.
func (m *ServerMetrics) AddUploadBytes(n int) {
	if m != nil {
		m.bytesUploaded.Add(float64(n))
	}
}

// AddDownloadBytes records sent chunk payload bytes.
func (m *ServerMetrics) AddDownloadBytes(n int) {
	if m != nil {
		m.bytesDownloaded.Add(float64(n))
	}
}

// AuthFailure records a failed login attempt.
func (m *ServerMetrics) AuthFailure() {
	if m != nil {
		m.authFailures.Inc()
	}
}

// IdleDisconnect records a sweeper-initiated disconnect.
func (m *ServerMetrics) IdleDisconnect() {
	if m != nil {
		m.idleDisconnects.Inc()
	}
}
