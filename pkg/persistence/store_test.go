package persistence

import (
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/pumpstream/ingest/pkg/config"
	"github.com/pumpstream/ingest/pkg/eventbus"
)

func newTestStore() *Store {
	cfg := config.DefaultBatchConfig()
	cfg.BatchSize = 2
	cfg.MaxRequeueDepth = 2
	return New(nil, cfg, eventbus.New(), testLogger())
}

func TestEnqueueAndDrain_RespectsBatchSize(t *testing.T) {
	s := newTestStore()
	s.Enqueue(KindBCTrade, TradeRow{Signature: "a"})
	s.Enqueue(KindBCTrade, TradeRow{Signature: "b"})
	s.Enqueue(KindBCTrade, TradeRow{Signature: "c"})

	batch := s.drain()
	require.Len(t, batch[KindBCTrade], 2)

	remaining := s.drain()
	require.Len(t, remaining[KindBCTrade], 1)
}

func TestRequeueAtHead_PutsItemsBackInOrder(t *testing.T) {
	s := newTestStore()
	s.Enqueue(KindBCTrade, TradeRow{Signature: "new1"})

	failedBatch := map[Kind][]any{
		KindBCTrade: {TradeRow{Signature: "old1"}, TradeRow{Signature: "old2"}},
	}
	s.requeueAtHead(failedBatch)

	batch := s.drain()
	sigs := make([]string, 0, len(batch[KindBCTrade]))
	for _, item := range batch[KindBCTrade] {
		sigs = append(sigs, item.(TradeRow).Signature)
	}
	require.Equal(t, []string{"old1", "old2"}, sigs)
}

func TestRequeueAtHead_DropsBeyondMaxDepth(t *testing.T) {
	s := newTestStore() // batchSize=2, maxRequeueDepth=2 -> cap of 4 items

	huge := make([]any, 10)
	for i := range huge {
		huge[i] = TradeRow{Signature: "x"}
	}
	s.requeueAtHead(map[Kind][]any{KindBCTrade: huge})

	require.Equal(t, uint64(6), s.Counters().Dropped)
}

func testLogger() zerolog.Logger { return zerolog.New(io.Discard) }
