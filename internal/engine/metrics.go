package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes engine counters to Prometheus. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	events    *prometheus.CounterVec
	stales    *prometheus.CounterVec
	markReads *prometheus.CounterVec
	sends     *prometheus.CounterVec
	uploads   *prometheus.CounterVec
	unread    prometheus.Gauge
}

// NewMetrics creates the engine metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "convsync",
			Name:      "push_events_total",
			Help:      "Push events processed, by action and outcome.",
		}, []string{"action", "outcome"}),
		stales: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "convsync",
			Name:      "stale_completions_total",
			Help:      "Completions discarded because their generation was superseded.",
		}, []string{"task"}),
		markReads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "convsync",
			Name:      "mark_read_total",
			Help:      "Mark-read calls, by result.",
		}, []string{"result"}),
		sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "convsync",
			Name:      "sends_total",
			Help:      "Composer submissions, by result.",
		}, []string{"result"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "convsync",
			Name:      "upload_batches_total",
			Help:      "Attachment batches, by result.",
		}, []string{"result"}),
		unread: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "convsync",
			Name:      "unread_messages",
			Help:      "Sum of unread counts across conversations.",
		}),
	}

	for _, c := range []prometheus.Collector{m.events, m.stales, m.markReads, m.sends, m.uploads, m.unread} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) event(action, outcome string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(action, outcome).Inc()
}

func (m *Metrics) stale(kind CompletionKind) {
	if m == nil {
		return
	}
	m.stales.WithLabelValues(kind.String()).Inc()
}

func (m *Metrics) markRead(result string) {
	if m == nil {
		return
	}
	m.markReads.WithLabelValues(result).Inc()
}

func (m *Metrics) send(result string) {
	if m == nil {
		return
	}
	m.sends.WithLabelValues(result).Inc()
}

func (m *Metrics) upload(result string) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(result).Inc()
}

func (m *Metrics) setUnread(total int) {
	if m == nil {
		return
	}
	m.unread.Set(float64(total))
}
