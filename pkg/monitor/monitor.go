// Package monitor implements spec.md §4.9: 5-second snapshots of
// per-component counters, 1-minute aggregation with p95/p99, threshold
// comparison, deduplicated alerts, and a health score. It subscribes to
// the shared event bus rather than being polled, per the "components
// emit, C9 observes" data-flow note.
package monitor

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/mem"

	"github.com/pumpstream/ingest/pkg/config"
	"github.com/pumpstream/ingest/pkg/eventbus"
)

// Snapshot is one 5-second sample of raw counters.
type Snapshot struct {
	Timestamp       time.Time
	ParseLatencyMs  []float64
	StreamLagSec    float64
	MissedTxFrac    float64
	MemoryBytes     uint64
	CPUPercent      float64
	QueueDepth      int
}

// Aggregate is the 1-minute rollup persisted for a window.
type Aggregate struct {
	WindowStart       time.Time
	WindowEnd         time.Time
	ParseLatencyAvgMs float64
	ParseLatencyP95Ms float64
	ParseLatencyP99Ms float64
	StreamLagAvgSec   float64
	MissedTxAvgFrac   float64
	MemoryAvgBytes    uint64
	CPUAvgPercent     float64
	QueueDepthAvg     float64
}

// Severity classifies an alert for health-score deduction and display.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Alert is a threshold breach, deduplicated by (Type, Metric).
type Alert struct {
	Type       string
	Severity   Severity
	Metric     string
	Value      float64
	Threshold  float64
	Message    string
	RaisedAt   time.Time
	Resolved   bool
	ResolvedAt time.Time
}

func alertKey(alertType, metric string) string { return alertType + "|" + metric }

// Monitor accumulates snapshots, aggregates every minute, and tracks
// active alerts and a health score.
type Monitor struct {
	cfg config.MonitorConfig
	bus *eventbus.Bus
	log zerolog.Logger

	mu        sync.Mutex
	snapshots []Snapshot
	active    map[string]*Alert
	lastAgg   Aggregate

	unsubParse func()
	unsubBatch func()

	parseLatencies []float64
	queueDepth     int
	streamLagSec   float64
	missedTxFrac   float64
	parsedTotal    uint64
	batchesFlushed uint64
}

// New builds a Monitor subscribed to the bus's observability topics.
func New(cfg config.MonitorConfig, bus *eventbus.Bus, log zerolog.Logger) *Monitor {
	m := &Monitor{cfg: cfg, bus: bus, log: log, active: make(map[string]*Alert)}
	m.unsubParse = bus.Subscribe(eventbus.TopicParserSuccess, m.onParserSuccess)
	m.unsubBatch = bus.Subscribe(eventbus.TopicBatchFlushed, m.onBatchFlushed)
	return m
}

// RecordParseLatency feeds one parse-duration sample into the current
// 5-second window.
func (m *Monitor) RecordParseLatency(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.parseLatencies = append(m.parseLatencies, float64(d.Milliseconds()))
}

// RecordStreamLag sets the current stream lag sample.
func (m *Monitor) RecordStreamLag(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streamLagSec = d.Seconds()
}

// RecordQueueDepth sets the current batching queue depth sample.
func (m *Monitor) RecordQueueDepth(depth int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queueDepth = depth
}

// RecordMissedTxFraction sets the current missed-transaction rate sample.
func (m *Monitor) RecordMissedTxFraction(frac float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.missedTxFrac = frac
}

// onParserSuccess and onBatchFlushed track raw throughput counters off the
// bus; they don't carry timing themselves (callers measure and report
// latency directly via RecordParseLatency). The counts are exposed through
// Counters; HealthScore does not use them.
func (m *Monitor) onParserSuccess(payload any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.parsedTotal++
}

func (m *Monitor) onBatchFlushed(payload any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batchesFlushed++
}

// Counters returns the raw throughput totals observed via the event bus.
func (m *Monitor) Counters() (parsed, batchesFlushed uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.parsedTotal, m.batchesFlushed
}

// Run drives the snapshot/aggregation ticker loop until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	defer m.unsubParse()
	defer m.unsubBatch()

	snapInterval := m.cfg.SnapshotInterval
	if snapInterval <= 0 {
		snapInterval = 5 * time.Second
	}
	aggInterval := m.cfg.AggregationInterval
	if aggInterval <= 0 {
		aggInterval = time.Minute
	}

	snapTicker := time.NewTicker(snapInterval)
	aggTicker := time.NewTicker(aggInterval)
	defer snapTicker.Stop()
	defer aggTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-snapTicker.C:
			m.takeSnapshot()
		case <-aggTicker.C:
			m.aggregate()
		}
	}
}

func (m *Monitor) takeSnapshot() {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		Timestamp:      time.Now(),
		ParseLatencyMs: append([]float64(nil), m.parseLatencies...),
		StreamLagSec:   m.streamLagSec,
		MissedTxFrac:   m.missedTxFrac,
		QueueDepth:     m.queueDepth,
	}
	snap.MemoryBytes, snap.CPUPercent = sampleResourceUsage(m.log)
	m.snapshots = append(m.snapshots, snap)
	m.parseLatencies = nil
}

// sampleResourceUsage reads process-host memory and CPU usage via
// gopsutil, a direct dependency of this module; cpu.Percent with a zero
// interval reports the
// instantaneous usage since the previous call, which fits the 5-second
// snapshot cadence without blocking it.
func sampleResourceUsage(log zerolog.Logger) (memBytes uint64, cpuPercent float64) {
	if vm, err := mem.VirtualMemory(); err != nil {
		log.Debug().Err(err).Msg("monitor: memory sample failed")
	} else {
		memBytes = vm.Used
	}

	if pct, err := cpu.Percent(0, false); err != nil {
		log.Debug().Err(err).Msg("monitor: cpu sample failed")
	} else if len(pct) > 0 {
		cpuPercent = pct[0]
	}
	return memBytes, cpuPercent
}

// aggregate rolls up every snapshot collected since the last aggregation,
// computes p95/p99 over parse latency, compares against thresholds, and
// clears the window.
func (m *Monitor) aggregate() {
	m.mu.Lock()
	snaps := m.snapshots
	m.snapshots = nil
	m.mu.Unlock()

	if len(snaps) == 0 {
		return
	}

	agg := aggregateSnapshots(snaps)
	m.mu.Lock()
	m.lastAgg = agg
	m.mu.Unlock()

	m.evaluateThresholds(agg)
}

func aggregateSnapshots(snaps []Snapshot) Aggregate {
	var allLatencies []float64
	var lagSum, missedSum, cpuSum float64
	var queueSum float64
	var memSum uint64

	for _, s := range snaps {
		allLatencies = append(allLatencies, s.ParseLatencyMs...)
		lagSum += s.StreamLagSec
		missedSum += s.MissedTxFrac
		queueSum += float64(s.QueueDepth)
		memSum += s.MemoryBytes
		cpuSum += s.CPUPercent
	}

	n := float64(len(snaps))
	agg := Aggregate{
		WindowStart:     snaps[0].Timestamp,
		WindowEnd:       snaps[len(snaps)-1].Timestamp,
		StreamLagAvgSec: lagSum / n,
		MissedTxAvgFrac: missedSum / n,
		QueueDepthAvg:   queueSum / n,
		MemoryAvgBytes:  uint64(float64(memSum) / n),
		CPUAvgPercent:   cpuSum / n,
	}

	if len(allLatencies) > 0 {
		sort.Float64s(allLatencies)
		var sum float64
		for _, v := range allLatencies {
			sum += v
		}
		agg.ParseLatencyAvgMs = sum / float64(len(allLatencies))
		agg.ParseLatencyP95Ms = percentile(allLatencies, 0.95)
		agg.ParseLatencyP99Ms = percentile(allLatencies, 0.99)
	}

	return agg
}

// percentile returns the value at the given fraction of a sorted slice
// using nearest-rank interpolation; no percentile library appears
// anywhere in the example pack, so this is a minimal stdlib implementation.
func percentile(sorted []float64, frac float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(frac*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func (m *Monitor) evaluateThresholds(agg Aggregate) {
	m.checkThreshold("latency", "parse_latency_p99_ms", agg.ParseLatencyP99Ms, m.cfg.ParseLatencyMs, SeverityMedium)
	m.checkThreshold("lag", "stream_lag_seconds", agg.StreamLagAvgSec, m.cfg.StreamLagSeconds, SeverityHigh)
	m.checkThreshold("loss", "missed_tx_fraction", agg.MissedTxAvgFrac, m.cfg.MissedTxRateFrac, SeverityCritical)
	m.checkThreshold("backlog", "queue_depth", agg.QueueDepthAvg, float64(m.cfg.QueueDepth), SeverityHigh)
	m.checkThreshold("resource", "memory_bytes", float64(agg.MemoryAvgBytes), float64(m.cfg.MemoryBytes), SeverityMedium)
	m.checkThreshold("resource", "cpu_percent", agg.CPUAvgPercent, m.cfg.CPUPercent, SeverityMedium)
}

func (m *Monitor) checkThreshold(alertType, metric string, value, threshold float64, sev Severity) {
	key := alertKey(alertType, metric)
	breached := value > threshold

	m.mu.Lock()
	defer m.mu.Unlock()

	existing, active := m.active[key]
	switch {
	case breached && active:
		existing.Value = value
		existing.RaisedAt = time.Now()
	case breached && !active:
		alert := &Alert{
			Type:      alertType,
			Severity:  sev,
			Metric:    metric,
			Value:     value,
			Threshold: threshold,
			Message:   metric + " exceeded threshold",
			RaisedAt:  time.Now(),
		}
		m.active[key] = alert
		if m.bus != nil {
			m.bus.Publish(eventbus.TopicAlertRaised, *alert)
		}
	case !breached && active:
		existing.Resolved = true
		existing.ResolvedAt = time.Now()
		if m.bus != nil {
			m.bus.Publish(eventbus.TopicAlertResolved, *existing)
		}
		delete(m.active, key)
	}
}

// HealthScore returns 100 minus per-severity deductions for every active
// alert, floored at 0.
func (m *Monitor) HealthScore() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	score := 100
	for _, a := range m.active {
		score -= severityDeduction(a.Severity)
	}
	if score < 0 {
		score = 0
	}
	return score
}

func severityDeduction(sev Severity) int {
	switch sev {
	case SeverityCritical:
		return 30
	case SeverityHigh:
		return 20
	case SeverityMedium:
		return 10
	case SeverityLow:
		return 5
	default:
		return 0
	}
}

// ActiveAlerts returns a snapshot of currently active alerts.
func (m *Monitor) ActiveAlerts() []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Alert, 0, len(m.active))
	for _, a := range m.active {
		out = append(out, *a)
	}
	return out
}

// LastAggregate returns the most recently computed 1-minute rollup.
func (m *Monitor) LastAggregate() Aggregate {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastAgg
}
