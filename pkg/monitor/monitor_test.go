package monitor

import (
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/pumpstream/ingest/pkg/config"
	"github.com/pumpstream/ingest/pkg/eventbus"
)

func testLogger() zerolog.Logger { return zerolog.New(io.Discard) }

func TestAggregateSnapshots_ComputesAvgAndPercentiles(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snaps := []Snapshot{
		{Timestamp: base, ParseLatencyMs: []float64{10, 20, 30}, StreamLagSec: 0.5, QueueDepth: 10},
		{Timestamp: base.Add(5 * time.Second), ParseLatencyMs: []float64{100}, StreamLagSec: 1.5, QueueDepth: 20},
	}

	agg := aggregateSnapshots(snaps)
	require.InDelta(t, 1.0, agg.StreamLagAvgSec, 0.001)
	require.InDelta(t, 15.0, agg.QueueDepthAvg, 0.001)
	require.Equal(t, 100.0, agg.ParseLatencyP99Ms)
	require.Greater(t, agg.ParseLatencyAvgMs, 0.0)
}

func TestPercentile_NearestRank(t *testing.T) {
	sorted := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	require.Equal(t, 10.0, percentile(sorted, 0.99))
	require.Equal(t, 1.0, percentile(sorted, 0))
}

func TestEvaluateThresholds_RaisesThenResolvesAlert(t *testing.T) {
	bus := eventbus.New()
	var raised, resolved int
	bus.Subscribe(eventbus.TopicAlertRaised, func(any) { raised++ })
	bus.Subscribe(eventbus.TopicAlertResolved, func(any) { resolved++ })

	cfg := config.DefaultMonitorConfig()
	m := New(cfg, bus, testLogger())

	m.evaluateThresholds(Aggregate{StreamLagAvgSec: 5, QueueDepthAvg: 2000})
	require.Equal(t, 2, raised, "stream lag and queue depth both breach their thresholds")
	require.Len(t, m.ActiveAlerts(), 2)

	m.evaluateThresholds(Aggregate{StreamLagAvgSec: 0.1, QueueDepthAvg: 10})
	require.Equal(t, 2, resolved)
	require.Empty(t, m.ActiveAlerts())
}

func TestHealthScore_DeductsPerActiveAlertSeverity(t *testing.T) {
	bus := eventbus.New()
	cfg := config.DefaultMonitorConfig()
	m := New(cfg, bus, testLogger())

	require.Equal(t, 100, m.HealthScore())

	m.evaluateThresholds(Aggregate{MissedTxAvgFrac: 0.5}) // critical, -30
	require.Equal(t, 70, m.HealthScore())
}

func TestMonitor_CountsThroughputFromBus(t *testing.T) {
	bus := eventbus.New()
	cfg := config.DefaultMonitorConfig()
	m := New(cfg, bus, testLogger())

	bus.Publish(eventbus.TopicParserSuccess, nil)
	bus.Publish(eventbus.TopicParserSuccess, nil)
	bus.Publish(eventbus.TopicBatchFlushed, nil)

	parsed, flushed := m.Counters()
	require.Equal(t, uint64(2), parsed)
	require.Equal(t, uint64(1), flushed)
}
