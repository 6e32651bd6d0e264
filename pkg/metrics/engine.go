package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// EngineMetrics records ingestion and presentation counters for the
// notification engine. A nil receiver or unregistered instance is safe to
// call, so tests and hosts without a registry can skip wiring it.
type EngineMetrics struct {
	ingested   *prometheus.CounterVec
	duplicates *prometheus.CounterVec
	dropped    *prometheus.CounterVec
	admitted   prometheus.Counter
	removed    *prometheus.CounterVec
	timers     prometheus.Gauge
	overflow   prometheus.Gauge
}

// NewEngineMetrics registers the engine metrics on the provided registerer.
func NewEngineMetrics(reg prometheus.Registerer) *EngineMetrics {
	if reg == nil {
		return &EngineMetrics{}
	}
	ingested := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notification_events_ingested_total",
		Help: "Domain events successfully normalized into notifications.",
	}, []string{"source"})
	duplicates := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notification_events_duplicate_total",
		Help: "Domain events dropped because their id was already present.",
	}, []string{"source"})
	dropped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notification_events_dropped_total",
		Help: "Malformed domain events dropped at the ingestion boundary.",
	}, []string{"source", "reason"})
	admitted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notification_toasts_admitted_total",
		Help: "Toast instances admitted into the visible set.",
	})
	removed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notification_toasts_removed_total",
		Help: "Toast instances removed from the visible set.",
	}, []string{"reason"})
	timers := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "notification_active_timers",
		Help: "Live countdown timers currently registered on the tick loop.",
	})
	overflow := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "notification_overflow_candidates",
		Help: "Admitted candidates waiting for a visible slot.",
	})
	reg.MustRegister(ingested, duplicates, dropped, admitted, removed, timers, overflow)
	return &EngineMetrics{
		ingested:   ingested,
		duplicates: duplicates,
		dropped:    dropped,
		admitted:   admitted,
		removed:    removed,
		timers:     timers,
		overflow:   overflow,
	}
}

// IncIngested counts a normalized event from the named source.
func (e *EngineMetrics) IncIngested(source string) {
	if e == nil || e.ingested == nil {
		return
	}
	e.ingested.WithLabelValues(normalizeLabel(source)).Inc()
}

// IncDuplicate counts an event dropped as already ingested.
func (e *EngineMetrics) IncDuplicate(source string) {
	if e == nil || e.duplicates == nil {
		return
	}
	e.duplicates.WithLabelValues(normalizeLabel(source)).Inc()
}

// IncDropped counts a malformed event dropped for the given reason.
func (e *EngineMetrics) IncDropped(source, reason string) {
	if e == nil || e.dropped == nil {
		return
	}
	e.dropped.WithLabelValues(normalizeLabel(source), normalizeLabel(reason)).Inc()
}

// IncAdmitted counts a toast entering the visible set.
func (e *EngineMetrics) IncAdmitted() {
	if e == nil || e.admitted == nil {
		return
	}
	e.admitted.Inc()
}

// IncRemoved counts a toast leaving the visible set.
func (e *EngineMetrics) IncRemoved(reason string) {
	if e == nil || e.removed == nil {
		return
	}
	e.removed.WithLabelValues(normalizeLabel(reason)).Inc()
}

// SetActiveTimers publishes the current size of the tick set.
func (e *EngineMetrics) SetActiveTimers(count int) {
	if e == nil || e.timers == nil {
		return
	}
	e.timers.Set(float64(count))
}

// SetOverflow publishes the current overflow count.
func (e *EngineMetrics) SetOverflow(count int) {
	if e == nil || e.overflow == nil {
		return
	}
	e.overflow.Set(float64(count))
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
