package priceadapters

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/pumpstream/ingest/pkg/config"
	"github.com/pumpstream/ingest/pkg/priceengine"
	"github.com/pumpstream/ingest/pkg/recovery"
)

// LatestReserves is the most recent pool_states row for a mint.
type LatestReserves struct {
	VirtualSolReserves   uint64
	VirtualTokenReserves uint64
	Slot                 uint64
}

// PoolStateReader reads the most recently recorded reserves for a mint,
// the first recovery tier per spec.md §4.8 (cheapest: already in our DB).
type PoolStateReader interface {
	LatestForMint(ctx context.Context, mint string) (LatestReserves, bool, error)
}

// PoolStateAdapter is the tier-1 recovery source: the last reserves this
// pipeline itself recorded for the mint, repriced through pkg/priceengine.
type PoolStateAdapter struct {
	reader PoolStateReader
	rates  SolUSDSource
	cfg    config.PriceConfig
	log    zerolog.Logger
}

// pgPoolStateReader implements PoolStateReader directly against the
// pool_states table written by pkg/persistence, avoiding a second ORM
// layer for a single indexed lookup.
type pgPoolStateReader struct {
	pool *pgxpool.Pool
}

// NewPoolStateReader builds the production PoolStateReader.
func NewPoolStateReader(pool *pgxpool.Pool) PoolStateReader {
	return &pgPoolStateReader{pool: pool}
}

func (r *pgPoolStateReader) LatestForMint(ctx context.Context, mint string) (LatestReserves, bool, error) {
	const q = `
		SELECT virtual_sol_reserves, virtual_token_reserves, slot
		FROM pool_states
		WHERE mint = $1
		ORDER BY slot DESC
		LIMIT 1`

	var out LatestReserves
	row := r.pool.QueryRow(ctx, q, mint)
	if err := row.Scan(&out.VirtualSolReserves, &out.VirtualTokenReserves, &out.Slot); err != nil {
		return LatestReserves{}, false, nil
	}
	return out, true, nil
}

// SolUSDSource supplies the current SOL/USD conversion rate; shared with
// pkg/tradehandler's SolUSDSource to avoid a second rate-feed abstraction.
type SolUSDSource interface {
	SolUSD() float64
}

// NewPoolStateAdapter builds the tier-1 adapter.
func NewPoolStateAdapter(reader PoolStateReader, rates SolUSDSource, cfg config.PriceConfig, log zerolog.Logger) *PoolStateAdapter {
	return &PoolStateAdapter{reader: reader, rates: rates, cfg: cfg, log: log}
}

func (a *PoolStateAdapter) Name() string { return "pool_state" }

func (a *PoolStateAdapter) Resolve(ctx context.Context, mint string) (recovery.RecoveryResult, error) {
	reserves, ok, err := a.reader.LatestForMint(ctx, mint)
	if err != nil {
		return recovery.RecoveryResult{}, fmt.Errorf("priceadapters: pool_state lookup: %w", err)
	}
	if !ok {
		return recovery.RecoveryResult{}, ErrNoPrice
	}

	price := priceengine.PriceFromReserves(reserves.VirtualSolReserves, reserves.VirtualTokenReserves, a.rates.SolUSD(), a.cfg)
	if !price.Valid {
		return recovery.RecoveryResult{}, ErrNoPrice
	}

	priceUSD, _ := price.PriceUSD.Float64()
	priceSOL, _ := price.PriceSOL.Float64()
	marketCap, _ := price.MarketCapUSD.Float64()

	return recovery.RecoveryResult{
		Mint:      mint,
		PriceSOL:  priceSOL,
		PriceUSD:  priceUSD,
		MarketCap: marketCap,
		SourceTag: a.Name(),
	}, nil
}
