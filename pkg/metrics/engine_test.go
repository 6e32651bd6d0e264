package metrics

import (
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestEngineMetricsExportsCountersAndGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewEngineMetrics(reg)

	metrics.IncIngested("bookings")
	metrics.IncIngested("bookings")
	metrics.IncDuplicate("bookings")
	metrics.IncDropped("orders", "unknown_category")
	metrics.IncAdmitted()
	metrics.IncRemoved("timeout")
	metrics.SetActiveTimers(3)
	metrics.SetOverflow(2)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "notification_events_ingested_total", "source", "bookings"); err != nil {
		t.Fatalf("fetch ingested: %v", err)
	} else if got != 2 {
		t.Fatalf("expected ingested=2, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "notification_events_dropped_total", "reason", "unknown_category"); err != nil {
		t.Fatalf("fetch dropped: %v", err)
	} else if got != 1 {
		t.Fatalf("expected dropped=1, got %f", got)
	}

	if got, err := fetchGaugeValue(mfs, "notification_active_timers"); err != nil {
		t.Fatalf("fetch timers: %v", err)
	} else if got != 3 {
		t.Fatalf("expected timers=3, got %f", got)
	}
}

func TestEngineMetricsNilRegistryIsNoop(t *testing.T) {
	metrics := NewEngineMetrics(nil)
	metrics.IncIngested("bookings")
	metrics.SetActiveTimers(10)
	var absent *EngineMetrics
	absent.IncAdmitted()
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func fetchGaugeValue(mfs []*dto.MetricFamily, name string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		return metric.GetGauge().GetValue(), nil
	}
	return 0, fmt.Errorf("metric %q has no samples", name)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
