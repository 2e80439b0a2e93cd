package poolcache

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pumpstream/ingest/pkg/eventbus"
)

func TestUpdate_RejectsOlderSlot(t *testing.T) {
	c := New(eventbus.New())

	require.True(t, c.Update(Reserves{Mint: "M1", VirtualSolReserves: 30_000_000_000, Slot: 100}))
	require.False(t, c.Update(Reserves{Mint: "M1", VirtualSolReserves: 999, Slot: 99}))

	r, ok := c.ByMint("M1")
	require.True(t, ok)
	require.Equal(t, uint64(100), r.Slot)
	require.Equal(t, uint64(30_000_000_000), r.VirtualSolReserves)
}

func TestUpdate_AcceptsEqualSlot(t *testing.T) {
	c := New(eventbus.New())
	require.True(t, c.Update(Reserves{Mint: "M1", Slot: 100}))
	require.True(t, c.Update(Reserves{Mint: "M1", Slot: 100, VirtualSolReserves: 5}))
}

func TestUpdate_ConcurrentWritersConvergeOnMaxSlot(t *testing.T) {
	c := New(eventbus.New())
	var wg sync.WaitGroup
	for i := uint64(1); i <= 100; i++ {
		wg.Add(1)
		go func(slot uint64) {
			defer wg.Done()
			c.Update(Reserves{Mint: "M1", Slot: slot})
		}(i)
	}
	wg.Wait()

	r, ok := c.ByMint("M1")
	require.True(t, ok)
	require.Equal(t, uint64(100), r.Slot)
}

func TestByPool_ResolvesViaMintIndex(t *testing.T) {
	c := New(eventbus.New())
	c.Update(Reserves{Mint: "M1", Pool: "P1", Slot: 1})

	r, ok := c.ByPool("P1")
	require.True(t, ok)
	require.Equal(t, "M1", r.Mint)

	_, ok = c.ByPool("unknown")
	require.False(t, ok)
}

func TestUpdate_PublishesPoolStateUpdated(t *testing.T) {
	bus := eventbus.New()
	var got Reserves
	bus.Subscribe(eventbus.TopicPoolStateUpdated, func(payload any) {
		got = payload.(Reserves)
	})

	c := New(bus)
	c.Update(Reserves{Mint: "M1", Slot: 1})
	require.Equal(t, "M1", got.Mint)
}
