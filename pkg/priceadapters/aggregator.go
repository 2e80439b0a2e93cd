package priceadapters

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/pumpstream/ingest/pkg/config"
	"github.com/pumpstream/ingest/pkg/recovery"
)

// dexPairsResponse mirrors the dexscreener /latest/dex/tokens/{mint} shape:
// a list of pairs for the mint, each carrying its own priceUsd/priceNative
// and fdv. Multiple pairs can exist (bonding-curve pool plus a migrated
// AMM pool); the adapter picks the highest-liquidity pair.
type dexPairsResponse struct {
	Pairs []dexPair `json:"pairs"`
}

type dexPair struct {
	PriceNative string  `json:"priceNative"`
	PriceUSD    string  `json:"priceUsd"`
	FDV         float64 `json:"fdv"`
	Liquidity   struct {
		USD float64 `json:"usd"`
	} `json:"liquidity"`
}

// AggregatorAdapter is the tier-2 recovery source: a third-party market
// data aggregator queried over HTTP, guarded by a sliding-window rate
// limiter and a short TTL cache since it's the most expensive tier to
// over-call.
type AggregatorAdapter struct {
	httpClient *http.Client
	cfg        config.AggregatorConfig
	limiter    *slidingWindowLimiter
	cache      *ttlCache
	log        zerolog.Logger
}

// NewAggregatorAdapter builds the tier-2 adapter.
func NewAggregatorAdapter(cfg config.AggregatorConfig, log zerolog.Logger) *AggregatorAdapter {
	return &AggregatorAdapter{
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		cfg:        cfg,
		limiter:    newSlidingWindowLimiter(cfg.RateLimitWindow, cfg.MaxRequestsInWindow),
		cache:      newTTLCache(cfg.CacheTTL),
		log:        log,
	}
}

func (a *AggregatorAdapter) Name() string { return "aggregator" }

func (a *AggregatorAdapter) Resolve(ctx context.Context, mint string) (recovery.RecoveryResult, error) {
	now := time.Now()
	if cached, ok := a.cache.Get(mint, now); ok {
		return toResult(mint, cached, a.Name()), nil
	}

	if err := a.limiter.Wait(ctx); err != nil {
		return recovery.RecoveryResult{}, fmt.Errorf("priceadapters: await aggregator rate-limit window: %w", err)
	}

	url := fmt.Sprintf("%s/latest/dex/tokens/%s", a.cfg.BaseURL, mint)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return recovery.RecoveryResult{}, fmt.Errorf("priceadapters: build aggregator request: %w", err)
	}
	if a.cfg.APIKey != "" {
		req.Header.Set("X-API-Key", a.cfg.APIKey)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return recovery.RecoveryResult{}, fmt.Errorf("priceadapters: aggregator request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		a.log.Warn().Str("mint", mint).Msg("aggregator returned 429 despite local rate limiting; deferring to next recovery pass")
		return recovery.RecoveryResult{}, fmt.Errorf("priceadapters: aggregator rate limited us: %w", ErrNoPrice)
	}
	if resp.StatusCode != http.StatusOK {
		return recovery.RecoveryResult{}, fmt.Errorf("priceadapters: aggregator status %d: %w", resp.StatusCode, ErrNoPrice)
	}

	var parsed dexPairsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return recovery.RecoveryResult{}, fmt.Errorf("priceadapters: decode aggregator response: %w", err)
	}
	if len(parsed.Pairs) == 0 {
		return recovery.RecoveryResult{}, ErrNoPrice
	}

	best := bestLiquidityPair(parsed.Pairs)
	priceUSD, _ := strconv.ParseFloat(best.PriceUSD, 64)
	priceSOL, _ := strconv.ParseFloat(best.PriceNative, 64)
	if priceUSD <= 0 {
		return recovery.RecoveryResult{}, ErrNoPrice
	}

	value := recoveryCacheValue{PriceSOL: priceSOL, PriceUSD: priceUSD, MarketCap: best.FDV}
	a.cache.Set(mint, value, now)
	return toResult(mint, value, a.Name()), nil
}

func bestLiquidityPair(pairs []dexPair) dexPair {
	best := pairs[0]
	for _, p := range pairs[1:] {
		if p.Liquidity.USD > best.Liquidity.USD {
			best = p
		}
	}
	return best
}

func toResult(mint string, v recoveryCacheValue, source string) recovery.RecoveryResult {
	return recovery.RecoveryResult{
		Mint:      mint,
		PriceSOL:  v.PriceSOL,
		PriceUSD:  v.PriceUSD,
		MarketCap: v.MarketCap,
		SourceTag: source,
	}
}
