// Package poolcache is the in-memory, slot-monotonic cache of per-mint and
// per-pool reserves described in spec.md §4.4: the authoritative source
// for reserves when trade events don't carry them.
package poolcache

import (
	"sync"

	"github.com/pumpstream/ingest/pkg/eventbus"
)

// Reserves is a reserve snapshot for one mint/pool, in smallest units.
type Reserves struct {
	Mint                 string
	Pool                 string
	VirtualSolReserves   uint64
	VirtualTokenReserves uint64
	RealSolReserves      uint64
	RealTokenReserves    uint64
	Slot                 uint64
}

// Cache is a concurrency-safe mint→Reserves and pool→mint index. Writes
// use an internal lock; the slot check enforces monotonicity even under
// concurrent writers (Property 4).
type Cache struct {
	mu        sync.RWMutex
	byMint    map[string]Reserves
	poolMint  map[string]string
	bus       *eventbus.Bus
}

// New builds an empty Cache.
func New(bus *eventbus.Bus) *Cache {
	return &Cache{
		byMint:   make(map[string]Reserves),
		poolMint: make(map[string]string),
		bus:      bus,
	}
}

// Update accepts a reserve snapshot only if slot is >= the currently
// stored slot for that mint. Returns true if the update was applied.
// Emits POOL_STATE_UPDATED on mutation.
func (c *Cache) Update(r Reserves) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing, ok := c.byMint[r.Mint]
	if ok && r.Slot < existing.Slot {
		return false
	}

	c.byMint[r.Mint] = r
	if r.Pool != "" {
		c.poolMint[r.Pool] = r.Mint
	}

	if c.bus != nil {
		c.bus.Publish(eventbus.TopicPoolStateUpdated, r)
	}
	return true
}

// ByMint returns the latest reserves for mint, if known.
func (c *Cache) ByMint(mint string) (Reserves, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.byMint[mint]
	return r, ok
}

// ByPool returns the latest reserves for the mint owning pool, if known.
func (c *Cache) ByPool(pool string) (Reserves, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	mint, ok := c.poolMint[pool]
	if !ok {
		return Reserves{}, false
	}
	r, ok := c.byMint[mint]
	return r, ok
}

// Len reports the number of distinct mints tracked, mainly for monitoring.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byMint)
}
