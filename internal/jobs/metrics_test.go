package jobmetrics

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsResult(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	require.NoError(t, m.Track("settlement:batch").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("settlement:batch").End(boom), boom)

	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("settlement:batch", "ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("settlement:batch", "error")))
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	boom := errors.New("boom")

	require.ErrorIs(t, m.Track("x").End(boom), boom)
	m.ObserveOutcome("PAYABLE_AGENCY", "CREATED")
	m.ObserveBatch(1, 2, 3, time.Now())
}

func TestObserveBatchPublishesLastRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	finished := time.Date(2024, 2, 1, 3, 0, 5, 0, time.UTC)

	m.ObserveBatch(4, 1, 0, finished)
	m.ObserveOutcome("", "FAILED")

	expected := `
# HELP crossbridge_settlement_last_batch Counts from the most recent settlement batch.
# TYPE crossbridge_settlement_last_batch gauge
crossbridge_settlement_last_batch{status="CREATED"} 4
crossbridge_settlement_last_batch{status="FAILED"} 0
crossbridge_settlement_last_batch{status="SKIPPED"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "crossbridge_settlement_last_batch"))
	require.Equal(t, float64(finished.Unix()), testutil.ToFloat64(m.lastRun))
	require.Equal(t, 1.0, testutil.ToFloat64(m.outcomes.WithLabelValues("unknown", "FAILED")))
}

func TestDuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(reg)
	require.Panics(t, func() { NewMetrics(reg) })
}
