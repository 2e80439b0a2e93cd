// Package solusd maintains the SOL/USD conversion rate every price
// computation in the pipeline depends on: a small in-memory cache
// refreshed every 60 seconds from an external spot-price endpoint and
// persisted to the sol_usd_rates singleton row, per spec.md §6.
package solusd

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Feed refreshes and caches the current SOL/USD rate. It implements the
// SolUSDSource interface every price-consuming component depends on
// (pkg/tradehandler.SolUSDSource, pkg/priceadapters.SolUSDSource).
type Feed struct {
	httpClient *http.Client
	url        string
	pool       *pgxpool.Pool
	log        zerolog.Logger

	rateBits atomic.Uint64 // float64 bits, read/written via math.Float64bits
}

// New builds a Feed. url is a spot-price endpoint returning
// {"solana":{"usd":<rate>}} (the CoinGecko simple-price shape); pool may
// be nil in tests that never call Run.
func New(url string, pool *pgxpool.Pool, log zerolog.Logger) *Feed {
	f := &Feed{httpClient: &http.Client{Timeout: 5 * time.Second}, url: url, pool: pool, log: log}
	f.setRate(0)
	return f
}

// SolUSD returns the most recently cached rate; 0 before the first
// successful refresh.
func (f *Feed) SolUSD() float64 {
	return math.Float64frombits(f.rateBits.Load())
}

// Run refreshes the rate every interval until ctx is cancelled, seeding
// from the persisted row first so a restart doesn't start at zero.
func (f *Feed) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}

	f.loadPersisted(ctx)
	if err := f.Refresh(ctx); err != nil {
		f.log.Warn().Err(err).Msg("solusd: initial refresh failed")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := f.Refresh(ctx); err != nil {
				f.log.Warn().Err(err).Msg("solusd: refresh failed")
			}
		}
	}
}

type coingeckoResponse struct {
	Solana struct {
		USD float64 `json:"usd"`
	} `json:"solana"`
}

// Refresh fetches the current rate and persists it.
func (f *Feed) Refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return fmt.Errorf("solusd: build request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("solusd: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("solusd: status %d", resp.StatusCode)
	}

	var parsed coingeckoResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("solusd: decode response: %w", err)
	}
	if parsed.Solana.USD <= 0 {
		return fmt.Errorf("solusd: non-positive rate in response")
	}

	f.setRate(parsed.Solana.USD)
	f.persist(ctx, parsed.Solana.USD)
	return nil
}

func (f *Feed) setRate(rate float64) {
	f.rateBits.Store(math.Float64bits(rate))
}

func (f *Feed) persist(ctx context.Context, rate float64) {
	if f.pool == nil {
		return
	}
	const q = `
		INSERT INTO sol_usd_rates (id, rate_usd, updated_at) VALUES (TRUE, $1, now())
		ON CONFLICT (id) DO UPDATE SET rate_usd = EXCLUDED.rate_usd, updated_at = now()`
	if _, err := f.pool.Exec(ctx, q, rate); err != nil {
		f.log.Warn().Err(err).Msg("solusd: persist rate failed")
	}
}

func (f *Feed) loadPersisted(ctx context.Context) {
	if f.pool == nil {
		return
	}
	var rate float64
	row := f.pool.QueryRow(ctx, `SELECT rate_usd FROM sol_usd_rates WHERE id = TRUE`)
	if err := row.Scan(&rate); err != nil {
		return
	}
	f.setRate(rate)
}
