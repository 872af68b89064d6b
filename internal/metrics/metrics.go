// Package metrics exposes Prometheus counters for the table engine. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	handsStarted      prometheus.Counter
	handsCompleted    *prometheus.CounterVec
	handsAborted      prometheus.Counter
	actions           *prometheus.CounterVec
	protocolErrors    prometheus.Counter
	timeBankExpiries  prometheus.Counter
	chatMessages      prometheus.Counter
	historySaves      *prometheus.CounterVec
	archiveFailures   prometheus.Counter
	activeTables      prometheus.Gauge
	activeConnections prometheus.Gauge
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		handsStarted: f.NewCounter(prometheus.CounterOpts{
			Name: "homepoker_hands_started_total",
			Help: "Total number of hands dealt",
		}),
		handsCompleted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "homepoker_hands_completed_total",
			Help: "Total number of hands completed, by hand type",
		}, []string{"hand_type"}),
		handsAborted: f.NewCounter(prometheus.CounterOpts{
			Name: "homepoker_hands_aborted_total",
			Help: "Total number of hands aborted and refunded",
		}),
		actions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "homepoker_actions_total",
			Help: "Player actions by type and outcome",
		}, []string{"action", "result"}),
		protocolErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "homepoker_protocol_errors_total",
			Help: "Total number of malformed inbound messages",
		}),
		timeBankExpiries: f.NewCounter(prometheus.CounterOpts{
			Name: "homepoker_time_bank_expiries_total",
			Help: "Total number of turns decided by the time bank",
		}),
		chatMessages: f.NewCounter(prometheus.CounterOpts{
			Name: "homepoker_chat_messages_total",
			Help: "Total number of chat messages relayed",
		}),
		historySaves: f.NewCounterVec(prometheus.CounterOpts{
			Name: "homepoker_history_saves_total",
			Help: "Hand history repository writes by outcome",
		}, []string{"result"}),
		archiveFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "homepoker_archive_flush_failures_total",
			Help: "Total number of failed PHH archive flushes",
		}),
		activeTables: f.NewGauge(prometheus.GaugeOpts{
			Name: "homepoker_active_tables",
			Help: "Number of open tables",
		}),
		activeConnections: f.NewGauge(prometheus.GaugeOpts{
			Name: "homepoker_active_connections",
			Help: "Number of connected clients",
		}),
	}
}

func (m *Metrics) HandStarted() {
	if m != nil {
		m.handsStarted.Inc()
	}
}

func (m *Metrics) HandCompleted(handType string) {
	if m != nil {
		m.handsCompleted.WithLabelValues(handType).Inc()
	}
}

func (m *Metrics) HandAborted() {
	if m != nil {
		m.handsAborted.Inc()
	}
}

// Action counts a player action; accepted is false when it was rejected.
func (m *Metrics) Action(action string, accepted bool) {
	if m == nil {
		return
	}
	result := "accepted"
	if !accepted {
		result = "rejected"
	}
	m.actions.WithLabelValues(action, result).Inc()
}

func (m *Metrics) ProtocolError() {
	if m != nil {
		m.protocolErrors.Inc()
	}
}

func (m *Metrics) TimeBankExpired() {
	if m != nil {
		m.timeBankExpiries.Inc()
	}
}

func (m *Metrics) ChatMessage() {
	if m != nil {
		m.chatMessages.Inc()
	}
}

// HistorySaved counts a repository write.
func (m *Metrics) HistorySaved(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.historySaves.WithLabelValues(result).Inc()
}

func (m *Metrics) ArchiveFailed() {
	if m != nil {
		m.archiveFailures.Inc()
	}
}

func (m *Metrics) SetActiveTables(n int) {
	if m != nil {
		m.activeTables.Set(float64(n))
	}
}

func (m *Metrics) SetActiveConnections(n int) {
	if m != nil {
		m.activeConnections.Set(float64(n))
	}
}
