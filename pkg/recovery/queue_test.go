package recovery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pumpstream/ingest/pkg/config"
)

func TestQueue_PopBatchOrdersByPriorityThenFIFO(t *testing.T) {
	q := NewQueue()
	q.Enqueue("low", 10)
	q.Enqueue("high-a", 90)
	q.Enqueue("high-b", 90)
	q.Enqueue("mid", 50)

	batch := q.PopBatch(10)
	require.Len(t, batch, 4)
	require.Equal(t, "high-a", batch[0].Mint)
	require.Equal(t, "high-b", batch[1].Mint)
	require.Equal(t, "mid", batch[2].Mint)
	require.Equal(t, "low", batch[3].Mint)
}

func TestQueue_EnqueueRejectsDuplicateWhileQueuedOrInFlight(t *testing.T) {
	q := NewQueue()
	require.True(t, q.Enqueue("m1", 50))
	require.False(t, q.Enqueue("m1", 90))

	batch := q.PopBatch(1)
	require.Len(t, batch, 1)
	require.False(t, q.Enqueue("m1", 50), "still in flight")

	q.Complete("m1")
	require.True(t, q.Enqueue("m1", 50))
}

func TestQueue_RetryReenqueuesUntilMaxRetries(t *testing.T) {
	q := NewQueue()
	q.Enqueue("m1", 50)
	item := q.PopBatch(1)[0]

	q.Retry(item, 3)
	require.Equal(t, 1, q.Len())

	item2 := q.PopBatch(1)[0]
	q.Retry(item2, 3)
	require.Equal(t, 1, q.Len())

	item3 := q.PopBatch(1)[0]
	q.Retry(item3, 3)
	require.Equal(t, 0, q.Len(), "exhausted after reaching maxRetries")
}

func TestScore_HigherMarketCapAndStalerAlwaysScoresAtLeastAsHigh(t *testing.T) {
	tiers := config.DefaultMarketCapTiers()

	low := Score(1_000, 0, tiers)
	critical := Score(100_000, 0, tiers)
	require.Greater(t, critical, low)

	fresh := Score(100_000, time.Minute, tiers)
	stale := Score(100_000, 3*time.Hour, tiers)
	require.GreaterOrEqual(t, stale, fresh)
}

func TestScore_NeverExceeds100(t *testing.T) {
	tiers := config.DefaultMarketCapTiers()
	require.Equal(t, 100, Score(10_000_000, 10*time.Hour, tiers))
}
