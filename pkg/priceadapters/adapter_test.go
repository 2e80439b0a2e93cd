package priceadapters

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/pumpstream/ingest/pkg/recovery"
)

type fakeAdapter struct {
	name   string
	result recovery.RecoveryResult
	err    error
}

func (f fakeAdapter) Name() string { return f.name }
func (f fakeAdapter) Resolve(ctx context.Context, mint string) (recovery.RecoveryResult, error) {
	return f.result, f.err
}

func TestChain_ReturnsFirstSuccessfulTier(t *testing.T) {
	chain := NewChain(zerolog.New(io.Discard),
		fakeAdapter{name: "pool_state", err: ErrNoPrice},
		fakeAdapter{name: "aggregator", result: recovery.RecoveryResult{Mint: "m1", PriceUSD: 1.5, SourceTag: "aggregator"}},
		fakeAdapter{name: "rpc", err: errors.New("should not be called")},
	)

	result, err := chain.Recover(context.Background(), "m1")
	require.NoError(t, err)
	require.Equal(t, "aggregator", result.SourceTag)
	require.Equal(t, 1.5, result.PriceUSD)
}

func TestChain_AllTiersExhaustedReturnsError(t *testing.T) {
	chain := NewChain(zerolog.New(io.Discard),
		fakeAdapter{name: "pool_state", err: ErrNoPrice},
		fakeAdapter{name: "aggregator", err: ErrNoPrice},
		fakeAdapter{name: "rpc", err: ErrNoPrice},
	)

	_, err := chain.Recover(context.Background(), "m1")
	require.Error(t, err)
}

func TestSlidingWindowLimiter_BlocksAfterLimitThenRecoversPastWindow(t *testing.T) {
	l := newSlidingWindowLimiter(time.Second, 2)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.True(t, l.Allow(now))
	require.True(t, l.Allow(now))
	require.False(t, l.Allow(now))

	require.True(t, l.Allow(now.Add(2*time.Second)))
}

func TestTTLCache_ExpiresAfterTTL(t *testing.T) {
	c := newTTLCache(time.Second)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.Set("m1", recoveryCacheValue{PriceUSD: 2}, now)

	v, ok := c.Get("m1", now)
	require.True(t, ok)
	require.Equal(t, 2.0, v.PriceUSD)

	_, ok = c.Get("m1", now.Add(2*time.Second))
	require.False(t, ok)
}
