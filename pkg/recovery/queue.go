// Package recovery implements spec.md §4.7: a priority-scored scan for
// stale, high-value tokens, a bounded-concurrency worker pool that queries
// external price sources, and a recovery-batch log persisted through a
// BatchLogWriter.
package recovery

import (
	"container/heap"
	"sync"
	"time"

	"github.com/pumpstream/ingest/pkg/config"
)

// Item is one mint awaiting recovery.
type Item struct {
	Mint        string
	Priority    int
	Attempts    int
	LastAttempt time.Time
	AddedAt     time.Time

	index int // heap bookkeeping
}

// priorityHeap is a max-heap on Priority, FIFO (by AddedAt) among ties —
// Property 5's "stable ordering among equal priorities".
type priorityHeap []*Item

func (h priorityHeap) Len() int { return len(h) }
func (h priorityHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].AddedAt.Before(h[j].AddedAt)
}
func (h priorityHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *priorityHeap) Push(x any) {
	item := x.(*Item)
	item.index = len(*h)
	*h = append(*h, item)
}
func (h *priorityHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

// Queue protects the priority heap and an in-flight set with a single
// lock, matching spec.md §5's "recovery queue protects queue and
// processing with a lock" guarantee.
type Queue struct {
	mu         sync.Mutex
	heap       priorityHeap
	queued     map[string]*Item
	inFlight   map[string]*Item
}

// NewQueue builds an empty recovery queue.
func NewQueue() *Queue {
	return &Queue{queued: make(map[string]*Item), inFlight: make(map[string]*Item)}
}

// Enqueue adds mint with priority unless it's already queued or in-flight.
func (q *Queue) Enqueue(mint string, priority int) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.queued[mint]; ok {
		return false
	}
	if _, ok := q.inFlight[mint]; ok {
		return false
	}

	item := &Item{Mint: mint, Priority: priority, AddedAt: time.Now()}
	q.queued[mint] = item
	heap.Push(&q.heap, item)
	return true
}

// PopBatch pops up to n items off the head of the queue (highest priority
// first), marking them in-flight.
func (q *Queue) PopBatch(n int) []*Item {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]*Item, 0, n)
	for len(out) < n && q.heap.Len() > 0 {
		item := heap.Pop(&q.heap).(*Item)
		delete(q.queued, item.Mint)
		q.inFlight[item.Mint] = item
		out = append(out, item)
	}
	return out
}

// Complete removes mint from the in-flight set after a successful recovery.
func (q *Queue) Complete(mint string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.inFlight, mint)
}

// Retry re-enqueues an item after a failed attempt, unless it has exhausted
// maxRetries, in which case it is dropped.
func (q *Queue) Retry(item *Item, maxRetries int) {
	q.mu.Lock()
	item.Attempts++
	item.LastAttempt = time.Now()
	exhausted := item.Attempts >= maxRetries
	delete(q.inFlight, item.Mint)
	q.mu.Unlock()

	if exhausted {
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.queued[item.Mint]; ok {
		return
	}
	q.queued[item.Mint] = item
	heap.Push(&q.heap, item)
}

// Len reports the number of queued (not in-flight) items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.heap.Len()
}

// Score computes a recovery priority per spec.md §4.7's worked formula.
func Score(marketCapUSD float64, staleFor time.Duration, tiers config.MarketCapTiers) int {
	score := 50

	switch {
	case marketCapUSD >= tiers.Critical:
		score += 30
	case marketCapUSD >= tiers.High:
		score += 20
	case marketCapUSD >= tiers.Medium:
		score += 10
	case marketCapUSD >= tiers.Low:
		score += 5
	}

	switch {
	case staleFor > 120*time.Minute:
		score += 15
	case staleFor > 60*time.Minute:
		score += 10
	case staleFor > 30*time.Minute:
		score += 5
	}

	if score > 100 {
		score = 100
	}
	return score
}
