package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCountersRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.IncItem("fda", "NEW")
	m.IncItem("fda", "NEW")
	m.IncFailure("normalize")
	m.IncAssessment("HIGH", true)
	m.IncAssessment("LOW", false)
	m.IncSinkError("kafka")
	m.IncSourceError("fda")
	m.ObserveStage("detect", time.Millisecond)
	m.ObserveBatch(time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Items.WithLabelValues("fda", "NEW")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Failures.WithLabelValues("normalize")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SummaryFallbacks))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Assessments.WithLabelValues("LOW")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.StageLatency))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncItem("s", "NEW")
		m.IncFailure("detect")
		m.IncSourceError("s")
		m.IncAssessment("HIGH", true)
		m.IncSinkError("x")
		m.ObserveStage("map", time.Second)
		m.ObserveBatch(time.Second)
	})
}
