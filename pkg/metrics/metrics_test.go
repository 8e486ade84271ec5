package metrics_test

import (
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/momentseek/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

func gather(t *testing.T, reg *prometheus.Registry) map[string]float64 {
	t.Helper()
	families, err := reg.Gather()
	gt.NoError(t, err)

	values := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			key := mf.GetName()
			for _, lp := range m.GetLabel() {
				key += "/" + lp.GetValue()
			}
			switch {
			case m.GetCounter() != nil:
				values[key] = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				values[key] = m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				values[key] = float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return values
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.ObserveQuery(metrics.StatusMatched)
	m.ObserveQuery(metrics.StatusMatched)
	m.ObserveQuery(metrics.StatusNoMatch)
	done := m.StartPrediction()
	done()
	m.ObserveSegments(3, 2)
	m.PersistFailed()
	m.TimelineDegraded()

	values := gather(t, reg)
	gt.Equal(t, values["momentseek_queries_total/matched"], 2.0)
	gt.Equal(t, values["momentseek_queries_total/no_match"], 1.0)
	gt.Equal(t, values["momentseek_prediction_duration_seconds"], 1.0)
	gt.Equal(t, values["momentseek_queries_in_flight"], 0.0)
	gt.Equal(t, values["momentseek_segments_returned"], 1.0)
	gt.Equal(t, values["momentseek_segments_discarded_total"], 2.0)
	gt.Equal(t, values["momentseek_history_persist_failures_total"], 1.0)
	gt.Equal(t, values["momentseek_degraded_timelines_total"], 1.0)
	gt.Equal(t, values["momentseek_archive_failures_total"], 0.0)
}

func TestNilMetrics(t *testing.T) {
	var m *metrics.Metrics
	m.ObserveQuery(metrics.StatusFailed)
	m.StartPrediction()()
	m.ObserveSegments(1, 1)
	m.PersistFailed()
	m.ArchiveFailed()
	m.TimelineDegraded()
}
