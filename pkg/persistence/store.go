// Package persistence is the batching write path described in spec.md
// §4.6: a process-wide queue of pending rows classified by kind, flushed
// on a timer into PostgreSQL via jackc/pgx/v5, grouped by kind and
// inserted inside a single transaction, idempotent on conflict. Each kind
// is sent as a pgx.Batch of single-row INSERT statements, one per row; no
// multi-row INSERT statement is built.
package persistence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/pumpstream/ingest/pkg/config"
	"github.com/pumpstream/ingest/pkg/eventbus"
)

// Counters tracks cumulative outcomes, read by the performance monitor.
type Counters struct {
	mu          sync.Mutex
	Flushed     uint64
	Failed      uint64
	Requeued    uint64
	Dropped     uint64
	Duplicates  uint64
}

func (c *Counters) snapshot() Counters {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Counters{Flushed: c.Flushed, Failed: c.Failed, Requeued: c.Requeued, Dropped: c.Dropped, Duplicates: c.Duplicates}
}

// Store owns the pending-row queue and the flush ticker.
type Store struct {
	pool *pgxpool.Pool
	cfg  config.BatchConfig
	bus  *eventbus.Bus
	log  zerolog.Logger

	mu      sync.Mutex
	pending map[Kind][]any

	counters Counters

	stopCh chan struct{}
	doneCh chan struct{}
}

// New builds a Store against an already-established pool. Connection
// pooling and migrations are external collaborators (out of scope per
// spec.md §1); callers pass in a ready *pgxpool.Pool.
func New(pool *pgxpool.Pool, cfg config.BatchConfig, bus *eventbus.Bus, log zerolog.Logger) *Store {
	return &Store{
		pool:    pool,
		cfg:     cfg,
		bus:     bus,
		log:     log,
		pending: make(map[Kind][]any),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Enqueue adds a row to its kind's pending queue. Safe for concurrent callers.
func (s *Store) Enqueue(kind Kind, row any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[kind] = append(s.pending[kind], row)
}

// Run drives the flush ticker until ctx is cancelled, then flushes one
// final time and returns.
func (s *Store) Run(ctx context.Context) {
	defer close(s.doneCh)

	interval := s.cfg.BatchInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.flush(context.Background())
			return
		case <-s.stopCh:
			s.flush(context.Background())
			return
		case <-ticker.C:
			s.flush(ctx)
		}
	}
}

// Stop signals Run to flush and exit, and blocks until it has.
func (s *Store) Stop() {
	close(s.stopCh)
	<-s.doneCh
}

// Counters returns a snapshot of cumulative flush outcomes.
func (s *Store) Counters() Counters {
	return s.counters.snapshot()
}

// PendingCount returns the total number of rows across every kind's
// pending queue, for the performance monitor's queue-depth metric.
func (s *Store) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0
	for _, items := range s.pending {
		total += len(items)
	}
	return total
}

// drain pulls up to BatchSize items per kind off the pending queues.
func (s *Store) drain() map[Kind][]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	batchSize := s.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	out := make(map[Kind][]any)
	for kind, items := range s.pending {
		if len(items) == 0 {
			continue
		}
		n := len(items)
		if n > batchSize {
			n = batchSize
		}
		out[kind] = items[:n]
		s.pending[kind] = items[n:]
	}
	return out
}

// requeueAtHead puts items back at the front of their kind's queue,
// bounded by MaxRequeueDepth to prevent unbounded growth on repeated
// failures (spec.md §4.6).
func (s *Store) requeueAtHead(batch map[Kind][]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	maxDepth := s.cfg.MaxRequeueDepth
	if maxDepth <= 0 {
		maxDepth = 10
	}

	for kind, items := range batch {
		combined := append(append([]any(nil), items...), s.pending[kind]...)
		if len(combined) > maxDepth*s.batchSizeOrDefault() {
			dropped := len(combined) - maxDepth*s.batchSizeOrDefault()
			combined = combined[:maxDepth*s.batchSizeOrDefault()]
			s.counters.mu.Lock()
			s.counters.Dropped += uint64(dropped)
			s.counters.mu.Unlock()
		}
		s.pending[kind] = combined
	}
}

func (s *Store) batchSizeOrDefault() int {
	if s.cfg.BatchSize <= 0 {
		return 100
	}
	return s.cfg.BatchSize
}

func (s *Store) flush(ctx context.Context) {
	batch := s.drain()
	if len(batch) == 0 {
		return
	}

	if err := s.flushTx(ctx, batch); err != nil {
		s.log.Warn().Err(err).Msg("batch flush failed, requeueing at head")
		s.counters.mu.Lock()
		s.counters.Failed++
		s.counters.Requeued++
		s.counters.mu.Unlock()
		s.requeueAtHead(batch)
		return
	}

	s.counters.mu.Lock()
	s.counters.Flushed++
	s.counters.mu.Unlock()
	if s.bus != nil {
		s.bus.Publish(eventbus.TopicBatchFlushed, batch)
	}
}

// flushTx groups batch by kind and sends each kind as a pgx.Batch of
// single-row INSERT statements inside a single transaction. Inserts within
// a batch are atomic but
// unordered across kinds (spec.md §4.6's ordering guarantee).
func (s *Store) flushTx(ctx context.Context, batch map[Kind][]any) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("persistence: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for kind, items := range batch {
		if err := s.flushKind(ctx, tx, kind, items); err != nil {
			return fmt.Errorf("persistence: flush kind %s: %w", kind, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("persistence: commit tx: %w", err)
	}
	return nil
}

func (s *Store) flushKind(ctx context.Context, tx pgx.Tx, kind Kind, items []any) error {
	switch kind {
	case KindBCTrade, KindAMMSwap:
		return s.flushTrades(ctx, tx, items)
	case KindTokenUpsert:
		return s.flushTokenUpserts(ctx, tx, items)
	case KindBCState:
		return s.flushPoolStates(ctx, tx, items)
	case KindPriceSnapshot:
		return s.flushPriceSnapshots(ctx, tx, items)
	case KindLiquidity:
		return s.flushLiquidity(ctx, tx, items)
	case KindFee:
		return s.flushFees(ctx, tx, items)
	default:
		return fmt.Errorf("persistence: unknown kind %s", kind)
	}
}
