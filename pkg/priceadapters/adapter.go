// Package priceadapters implements spec.md §4.8's three-tier external
// price recovery chain: pool-state history first, the dexscreener-shaped
// aggregator second, a direct RPC vault read last. Each tier is an Adapter;
// Chain tries them in order and returns the first success, the same
// fallback-waterfall shape pkg/tradehandler uses for reserve resolution.
package priceadapters

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/pumpstream/ingest/pkg/recovery"
)

// ErrNoPrice is returned by an Adapter that has no data for a mint; Chain
// treats it as "try the next tier" rather than a hard failure.
var ErrNoPrice = errors.New("priceadapters: no price available")

// Adapter resolves one mint's current price from a single external source.
type Adapter interface {
	Name() string
	Resolve(ctx context.Context, mint string) (recovery.RecoveryResult, error)
}

// Chain tries each adapter in order, returning the first success. It
// implements recovery.Recoverer.
type Chain struct {
	tiers []Adapter
	log   zerolog.Logger
}

// NewChain builds a fallback chain over tiers, tried in the given order.
func NewChain(log zerolog.Logger, tiers ...Adapter) *Chain {
	return &Chain{tiers: tiers, log: log}
}

// Recover tries every tier in order, returning the first success or the
// last tier's error if all fail.
func (c *Chain) Recover(ctx context.Context, mint string) (recovery.RecoveryResult, error) {
	var lastErr error
	for _, tier := range c.tiers {
		result, err := tier.Resolve(ctx, mint)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, ErrNoPrice) {
			c.log.Debug().Str("tier", tier.Name()).Str("mint", mint).Err(err).Msg("recovery tier errored")
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = ErrNoPrice
	}
	return recovery.RecoveryResult{}, fmt.Errorf("priceadapters: all tiers exhausted for %s: %w", mint, lastErr)
}
