package stream

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
)

// fakeSubscriber lets tests script a sequence of Connect outcomes and
// records pongs written back.
type fakeSubscriber struct {
	mu        sync.Mutex
	failCount int
	failed    int
	pongsSent []int64
	updates   []Update
}

func (f *fakeSubscriber) Connect(ctx context.Context, programID, commitment string, handle func(Update)) error {
	f.mu.Lock()
	shouldFail := f.failed < f.failCount
	f.failed++
	f.mu.Unlock()

	if shouldFail {
		return errors.New("simulated disconnect")
	}

	for _, u := range f.updates {
		handle(u)
	}
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeSubscriber) Pong(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pongsSent = append(f.pongsSent, id)
	return nil
}

func (f *fakeSubscriber) Close() error { return nil }

func TestManager_RepliesToEveryPingExactlyOnce(t *testing.T) {
	sub := &fakeSubscriber{updates: []Update{
		{Kind: UpdateKindPing, PingID: 42},
	}}
	cfg := config.DefaultStreamConfig()
	m := NewManager(sub, cfg, zerolog.New(io.Discard))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	var received []Update
	var mu sync.Mutex
	m.Run(ctx, "prog", func(u Update) {
		mu.Lock()
		received = append(received, u)
		mu.Unlock()
	})

	sub.mu.Lock()
	defer sub.mu.Unlock()
	require.Equal(t, []int64{42}, sub.pongsSent)

	mu.Lock()
	defer mu.Unlock()
	for _, u := range received {
		require.NotEqual(t, UpdateKindPing, u.Kind, "pings must not reach the handler")
	}
}

func TestManager_TransactionUpdatesReachHandler(t *testing.T) {
	sub := &fakeSubscriber{updates: []Update{
		{Kind: UpdateKindTransaction, Transaction: &TransactionUpdate{Signature: "sig1", Slot: 5}},
	}}
	cfg := config.DefaultStreamConfig()
	m := NewManager(sub, cfg, zerolog.New(io.Discard))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	var got *TransactionUpdate
	m.Run(ctx, "prog", func(u Update) {
		if u.Kind == UpdateKindTransaction {
			got = u.Transaction
		}
	})

	require.NotNil(t, got)
	require.Equal(t, "sig1", got.Signature)
	require.Equal(t, uint64(5), m.LastSlot())
}

func TestNextBackoff_DoublesThenCaps(t *testing.T) {
	cfg := config.DefaultStreamConfig()
	cfg.ReconnectBaseDelay = time.Second
	cfg.ReconnectMaxDelay = 4 * time.Second
	cfg.MaxConsecutiveFailures = 100

	m := NewManager(&fakeSubscriber{}, cfg, zerolog.New(io.Discard))

	require.Equal(t, time.Second, m.nextBackoff())
	require.Equal(t, 2*time.Second, m.nextBackoff())
	require.Equal(t, 4*time.Second, m.nextBackoff())
	require.Equal(t, 4*time.Second, m.nextBackoff()) // capped
}

func TestAllowReconnect_EnforcesPerMinuteLimit(t *testing.T) {
	cfg := config.DefaultStreamConfig()
	cfg.MaxReconnectsPerMinute = 2

	m := NewManager(&fakeSubscriber{}, cfg, zerolog.New(io.Discard))
	require.True(t, m.allowReconnect())
	require.True(t, m.allowReconnect())
	require.False(t, m.allowReconnect())
}

func TestManager_StopsInTerminalStateOnCancel(t *testing.T) {
	sub := &fakeSubscriber{}
	cfg := config.DefaultStreamConfig()
	m := NewManager(sub, cfg, zerolog.New(io.Discard))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx, "prog", func(Update) {})
		close(done)
	}()

	cancel()
	<-done
	require.Equal(t, StateStopped, m.State())
}
