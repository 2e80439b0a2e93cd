package recovery

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/pumpstream/ingest/pkg/config"
	"github.com/pumpstream/ingest/pkg/eventbus"
	"github.com/pumpstream/ingest/pkg/persistence"
)

type fakeTokenSource struct {
	stale        []StaleToken
	byMarketCap  []StaleToken
	lastBatchEnd time.Time
	hasLastBatch bool
}

func (f *fakeTokenSource) ListStale(ctx context.Context, staleThreshold time.Duration, minMarketCapUSD float64) ([]StaleToken, error) {
	return f.stale, nil
}

func (f *fakeTokenSource) ListByMarketCapDesc(ctx context.Context, minMarketCapUSD float64) ([]StaleToken, error) {
	return f.byMarketCap, nil
}

func (f *fakeTokenSource) LastBatchEndedAt(ctx context.Context) (time.Time, bool, error) {
	return f.lastBatchEnd, f.hasLastBatch, nil
}

type fakeRecoverer struct {
	mu       sync.Mutex
	failFor  map[string]bool
	attempts map[string]int
}

func newFakeRecoverer(failFor map[string]bool) *fakeRecoverer {
	return &fakeRecoverer{failFor: failFor, attempts: make(map[string]int)}
}

func (f *fakeRecoverer) Recover(ctx context.Context, mint string) (RecoveryResult, error) {
	f.mu.Lock()
	f.attempts[mint]++
	f.mu.Unlock()

	if f.failFor[mint] {
		return RecoveryResult{}, errors.New("simulated adapter failure")
	}
	return RecoveryResult{Mint: mint, PriceUSD: 1.23, MarketCap: 10_000, SourceTag: "pool_state"}, nil
}

func testLogger() zerolog.Logger { return zerolog.New(io.Discard) }

func newTestDetector(tokens TokenSource, recoverer Recoverer) *Detector {
	cfg := config.DefaultRecoveryConfig()
	cfg.EnableStartupRecovery = false
	store := persistence.New(nil, config.DefaultBatchConfig(), eventbus.New(), testLogger())
	return New(tokens, recoverer, store, cfg, eventbus.New(), testLogger())
}

func TestScanAndDispatch_RecoversAllAndEnqueuesUpserts(t *testing.T) {
	now := time.Now()
	tokens := &fakeTokenSource{stale: []StaleToken{
		{Mint: "m1", MarketCapUSD: 60_000, UpdatedAt: now.Add(-2 * time.Hour)},
		{Mint: "m2", MarketCapUSD: 1_000, UpdatedAt: now.Add(-31 * time.Minute)},
	}}
	recoverer := newFakeRecoverer(nil)
	d := newTestDetector(tokens, recoverer)

	d.scanAndDispatch(context.Background())

	recoverer.mu.Lock()
	defer recoverer.mu.Unlock()
	require.Equal(t, 1, recoverer.attempts["m1"])
	require.Equal(t, 1, recoverer.attempts["m2"])
	require.Equal(t, 0, d.queue.Len())
}

func TestScanAndDispatch_FailedRecoveryIsRetriedThenDropped(t *testing.T) {
	tokens := &fakeTokenSource{stale: []StaleToken{
		{Mint: "bad", MarketCapUSD: 60_000, UpdatedAt: time.Now()},
	}}
	recoverer := newFakeRecoverer(map[string]bool{"bad": true})
	d := newTestDetector(tokens, recoverer)
	d.cfg.MaxRetries = 2

	d.scanAndDispatch(context.Background())
	require.Equal(t, 1, d.queue.Len(), "requeued after first failure")

	d.dispatchWorkers(context.Background(), &BatchLog{StartedAt: time.Now()})
	require.Equal(t, 0, d.queue.Len(), "dropped after exhausting retries")

	recoverer.mu.Lock()
	defer recoverer.mu.Unlock()
	require.Equal(t, 2, recoverer.attempts["bad"])
}

func TestRunStartupRecovery_SkippedWhenRecentBatchExists(t *testing.T) {
	tokens := &fakeTokenSource{
		hasLastBatch: true,
		lastBatchEnd: time.Now().Add(-time.Minute),
		byMarketCap:  []StaleToken{{Mint: "m1", MarketCapUSD: 10_000}},
	}
	recoverer := newFakeRecoverer(nil)
	d := newTestDetector(tokens, recoverer)
	d.cfg.StartupRecoveryThreshold = 5 * time.Minute

	d.runStartupRecovery(context.Background())

	recoverer.mu.Lock()
	defer recoverer.mu.Unlock()
	require.Empty(t, recoverer.attempts)
}

func TestRunStartupRecovery_RunsWhenNoPriorBatch(t *testing.T) {
	tokens := &fakeTokenSource{
		hasLastBatch: false,
		byMarketCap:  []StaleToken{{Mint: "m1", MarketCapUSD: 10_000}, {Mint: "m2", MarketCapUSD: 20_000}},
	}
	recoverer := newFakeRecoverer(nil)
	d := newTestDetector(tokens, recoverer)

	d.runStartupRecovery(context.Background())

	recoverer.mu.Lock()
	defer recoverer.mu.Unlock()
	require.Equal(t, 1, recoverer.attempts["m1"])
	require.Equal(t, 1, recoverer.attempts["m2"])
}
