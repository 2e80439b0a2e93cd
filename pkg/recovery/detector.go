package recovery

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/pumpstream/ingest/pkg/config"
	"github.com/pumpstream/ingest/pkg/eventbus"
	"github.com/pumpstream/ingest/pkg/persistence"
)

func decimalFromFloat(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

// StaleToken is one row returned by a stale scan.
type StaleToken struct {
	Mint         string
	MarketCapUSD float64
	UpdatedAt    time.Time
}

// TokenSource is the read side the detector scans and the startup
// recovery path queries.
type TokenSource interface {
	ListStale(ctx context.Context, staleThreshold time.Duration, minMarketCapUSD float64) ([]StaleToken, error)
	ListByMarketCapDesc(ctx context.Context, minMarketCapUSD float64) ([]StaleToken, error)
	LastBatchEndedAt(ctx context.Context) (time.Time, bool, error)
}

// RecoveryResult is what a successful recovery produces, ready to enqueue
// as a token-upsert row.
type RecoveryResult struct {
	Mint        string
	PriceSOL    float64
	PriceUSD    float64
	MarketCap   float64
	SourceTag   string
}

// Recoverer queries the fallback chain of external price adapters for one
// mint (implemented by pkg/priceadapters; declared here to avoid an import
// cycle, matching the teacher's dependency-inverted interface style).
type Recoverer interface {
	Recover(ctx context.Context, mint string) (RecoveryResult, error)
}

// BatchLogWriter persists a finished recovery batch to the
// stale_detection_runs table (implemented by pkg/recoverystore).
type BatchLogWriter interface {
	RecordBatch(ctx context.Context, log BatchLog) error
}

// BatchLog is a recovery-batch log row, matching spec.md §3's
// "recovery-batch log" entity.
type BatchLog struct {
	StartedAt          time.Time
	EndedAt            time.Time
	TokensChecked      int
	TokensRecovered    int
	TokensFailed       int
	ExternalQueryCount int
	Status             string
}

// Detector runs the scan timer and the bounded-concurrency worker pool.
type Detector struct {
	tokens    TokenSource
	recoverer Recoverer
	store     *persistence.Store
	queue     *Queue
	cfg       config.RecoveryConfig
	bus       *eventbus.Bus
	log       zerolog.Logger
	logs      BatchLogWriter
}

// New builds a Detector.
func New(tokens TokenSource, recoverer Recoverer, store *persistence.Store, cfg config.RecoveryConfig, bus *eventbus.Bus, log zerolog.Logger) *Detector {
	return &Detector{tokens: tokens, recoverer: recoverer, store: store, queue: NewQueue(), cfg: cfg, bus: bus, log: log}
}

// WithBatchLogWriter attaches the stale_detection_runs writer; without one,
// batch outcomes are still logged via zerolog but never persisted.
func (d *Detector) WithBatchLogWriter(w BatchLogWriter) *Detector {
	d.logs = w
	return d
}

// Run drives the scan timer and, if configured, a startup recovery pass,
// until ctx is cancelled. Workers run inside each dispatch, so none are in
// flight once cancellation is observed; it then polls until the queue is
// empty or 10 seconds pass, with no worker draining it, and writes no batch
// log at shutdown.
func (d *Detector) Run(ctx context.Context) {
	if d.cfg.EnableStartupRecovery {
		d.runStartupRecovery(ctx)
	}

	interval := d.cfg.ScanInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.drainOnShutdown()
			return
		case <-ticker.C:
			d.scanAndDispatch(ctx)
		}
	}
}

// scanAndDispatch performs one scan-enqueue-dispatch cycle, used both by
// the periodic ticker and directly by tests.
func (d *Detector) scanAndDispatch(ctx context.Context) {
	batchLog := d.scan(ctx)
	d.dispatchWorkers(ctx, batchLog)
}

func (d *Detector) scan(ctx context.Context) *BatchLog {
	started := time.Now()
	stale, err := d.tokens.ListStale(ctx, d.cfg.StaleThreshold, d.cfg.MarketCapTiers.Low)
	if err != nil {
		d.log.Warn().Err(err).Msg("stale scan query failed")
		return &BatchLog{StartedAt: started, EndedAt: time.Now(), Status: "failed"}
	}

	for _, t := range stale {
		score := Score(t.MarketCapUSD, time.Since(t.UpdatedAt), d.cfg.MarketCapTiers)
		d.queue.Enqueue(t.Mint, score)
	}

	return &BatchLog{StartedAt: started, TokensChecked: len(stale), Status: "running"}
}

// dispatchWorkers runs MaxConcurrentRecoveries bounded workers over up to
// BatchSize queued items using errgroup, writing results through C6.
func (d *Detector) dispatchWorkers(ctx context.Context, log *BatchLog) {
	items := d.queue.PopBatch(d.cfg.BatchSize)
	if len(items) == 0 {
		log.EndedAt = time.Now()
		log.Status = "complete"
		d.persistBatchLog(ctx, log)
		return
	}

	concurrency := d.cfg.MaxConcurrentRecoveries
	if concurrency <= 0 {
		concurrency = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var recovered, failed, queries int
	var mu sync.Mutex

	for _, item := range items {
		item := item
		g.Go(func() error {
			result, err := d.recoverer.Recover(gctx, item.Mint)
			mu.Lock()
			queries++
			mu.Unlock()
			if err != nil {
				d.queue.Retry(item, d.cfg.MaxRetries)
				mu.Lock()
				failed++
				mu.Unlock()
				return nil // worker failures don't abort the batch
			}

			d.store.Enqueue(persistence.KindTokenUpsert, persistence.TokenUpsertRow{
				Mint:              result.Mint,
				PriceSOL:          decimalFromFloat(result.PriceSOL),
				PriceUSD:          decimalFromFloat(result.PriceUSD),
				MarketCapUSD:      decimalFromFloat(result.MarketCap),
				LastPriceUpdateAt: time.Now(),
				PriceSource:       result.SourceTag,
			})
			d.queue.Complete(item.Mint)
			mu.Lock()
			recovered++
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	log.TokensRecovered = recovered
	log.TokensFailed = failed
	log.ExternalQueryCount = queries
	log.EndedAt = time.Now()
	log.Status = "complete"
	d.persistBatchLog(ctx, log)

	if d.bus != nil {
		d.bus.Publish(eventbus.TopicRecoveryDone, *log)
	}
}

func (d *Detector) runStartupRecovery(ctx context.Context) {
	lastEnd, ok, err := d.tokens.LastBatchEndedAt(ctx)
	if err != nil {
		d.log.Warn().Err(err).Msg("startup recovery: could not read last batch time")
		return
	}
	if ok && time.Since(lastEnd) <= d.cfg.StartupRecoveryThreshold {
		return
	}

	tokens, err := d.tokens.ListByMarketCapDesc(ctx, d.cfg.StartupRecoveryMinMarketCap)
	if err != nil {
		d.log.Warn().Err(err).Msg("startup recovery: list failed")
		return
	}

	d.log.Info().Int("count", len(tokens)).Msg("startup recovery: enqueueing")
	for _, t := range tokens {
		d.queue.Enqueue(t.Mint, 100)
	}
	d.dispatchWorkers(ctx, &BatchLog{StartedAt: time.Now(), TokensChecked: len(tokens), Status: "startup"})
}

func (d *Detector) drainOnShutdown() {
	deadline := time.After(10 * time.Second)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		if d.queue.Len() == 0 {
			return
		}
		select {
		case <-deadline:
			return
		case <-ticker.C:
		}
	}
}

func (d *Detector) persistBatchLog(ctx context.Context, log *BatchLog) {
	d.log.Info().
		Int("checked", log.TokensChecked).
		Int("recovered", log.TokensRecovered).
		Int("failed", log.TokensFailed).
		Str("status", log.Status).
		Msg("recovery batch complete")

	if d.logs == nil {
		return
	}
	if err := d.logs.RecordBatch(ctx, *log); err != nil {
		d.log.Warn().Err(err).Msg("failed to persist recovery batch log")
	}
}
