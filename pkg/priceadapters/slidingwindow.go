package priceadapters

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// slidingWindowLimiter enforces "at most maxRequests in the trailing
// window" rather than golang.org/x/time/rate's token-bucket refill, which
// would let a burst at the top of every window through. A doubly linked
// list of request timestamps lets Allow() evict expired entries from the
// front in O(1) amortized per call.
type slidingWindowLimiter struct {
	mu          sync.Mutex
	window      time.Duration
	maxRequests int
	timestamps  *list.List
}

func newSlidingWindowLimiter(window time.Duration, maxRequests int) *slidingWindowLimiter {
	return &slidingWindowLimiter{window: window, maxRequests: maxRequests, timestamps: list.New()}
}

// Allow reports whether a request may proceed now, recording it if so.
func (l *slidingWindowLimiter) Allow(now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := now.Add(-l.window)
	for front := l.timestamps.Front(); front != nil; front = l.timestamps.Front() {
		if front.Value.(time.Time).After(cutoff) {
			break
		}
		l.timestamps.Remove(front)
	}

	if l.timestamps.Len() >= l.maxRequests {
		return false
	}
	l.timestamps.PushBack(now)
	return true
}

// nextSlot reports how long a caller should wait, from now, for the
// oldest recorded timestamp to fall out of the window and free a slot. A
// zero duration means a slot is free immediately.
func (l *slidingWindowLimiter) nextSlot(now time.Time) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.timestamps.Len() < l.maxRequests {
		return 0
	}
	oldest := l.timestamps.Front().Value.(time.Time)
	wait := oldest.Add(l.window).Sub(now)
	if wait < 0 {
		return 0
	}
	return wait
}

// Wait blocks until a slot in the window is free (or ctx is cancelled),
// then records the request, matching the "await the oldest timestamp's
// expiry" semantics a non-blocking Allow can't express.
func (l *slidingWindowLimiter) Wait(ctx context.Context) error {
	for {
		now := time.Now()
		if l.Allow(now) {
			return nil
		}

		wait := l.nextSlot(now)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
