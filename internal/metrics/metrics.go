// Package metrics exposes simulator and fan-out counters to Prometheus.
// All methods are safe to call on a nil *Metrics, which records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "parknow"

type Metrics struct {
	ticks       *prometheus.CounterVec
	toggles     *prometheus.CounterVec
	available   *prometheus.GaugeVec
	occupied    *prometheus.GaugeVec
	subscribers *prometheus.GaugeVec
	delivered   *prometheus.CounterVec
	dropped     *prometheus.CounterVec
	evicted     *prometheus.CounterVec
	sessions    *prometheus.CounterVec
}

// New registers the collectors on reg. Pass prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	facility := []string{"facility"}
	m := &Metrics{
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "simulation_ticks_total",
			Help: "Simulation ticks applied per facility.",
		}, facility),
		toggles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "slot_toggles_total",
			Help: "Slot status flips applied per facility.",
		}, facility),
		available: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "slots_available",
			Help: "Available slots in the latest snapshot.",
		}, facility),
		occupied: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "slots_occupied",
			Help: "Occupied slots in the latest snapshot.",
		}, facility),
		subscribers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "hub_subscribers",
			Help: "Viewers currently attached to a facility hub.",
		}, facility),
		delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "hub_snapshots_delivered_total",
			Help: "Snapshots enqueued to subscribers.",
		}, facility),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "hub_snapshots_dropped_total",
			Help: "Queued snapshots discarded because a subscriber fell behind.",
		}, facility),
		evicted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "hub_subscribers_evicted_total",
			Help: "Subscribers detached for stalling.",
		}, facility),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "viewer_sessions_total",
			Help: "Viewer sessions by facility and close reason.",
		}, []string{"facility", "reason"}),
	}
	reg.MustRegister(m.ticks, m.toggles, m.available, m.occupied,
		m.subscribers, m.delivered, m.dropped, m.evicted, m.sessions)
	return m
}

func (m *Metrics) Tick(facility string, toggles, available, occupied int) {
	if m == nil {
		return
	}
	m.ticks.WithLabelValues(facility).Inc()
	m.toggles.WithLabelValues(facility).Add(float64(toggles))
	m.available.WithLabelValues(facility).Set(float64(available))
	m.occupied.WithLabelValues(facility).Set(float64(occupied))
}

func (m *Metrics) Subscribers(facility string, n int) {
	if m == nil {
		return
	}
	m.subscribers.WithLabelValues(facility).Set(float64(n))
}

func (m *Metrics) Delivered(facility string) {
	if m == nil {
		return
	}
	m.delivered.WithLabelValues(facility).Inc()
}

func (m *Metrics) Dropped(facility string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(facility).Inc()
}

func (m *Metrics) Evicted(facility string) {
	if m == nil {
		return
	}
	m.evicted.WithLabelValues(facility).Inc()
}

func (m *Metrics) SessionClosed(facility, reason string) {
	if m == nil {
		return
	}
	m.sessions.WithLabelValues(facility, reason).Inc()
}
