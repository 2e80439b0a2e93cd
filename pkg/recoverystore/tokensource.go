// Package recoverystore implements pkg/recovery.TokenSource against the
// tables pkg/persistence writes. It lives in its own package, rather than
// inside pkg/persistence itself, so pkg/recovery (which already depends on
// pkg/persistence for its write side) doesn't become a two-way dependency.
package recoverystore

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pumpstream/ingest/pkg/recovery"
)

// TokenSource implements recovery.TokenSource directly against the tokens
// and stale_detection_runs tables, avoiding a second query layer for a
// pair of simple indexed reads.
type TokenSource struct {
	pool *pgxpool.Pool
}

// NewTokenSource builds the production recovery.TokenSource.
func NewTokenSource(pool *pgxpool.Pool) *TokenSource {
	return &TokenSource{pool: pool}
}

// ListStale returns tokens not priced within staleThreshold whose market
// cap is at least minMarketCapUSD, per spec.md §4.7/§3's "stale detector
// only operates on tokens with market cap >= a configured floor" invariant.
func (t *TokenSource) ListStale(ctx context.Context, staleThreshold time.Duration, minMarketCapUSD float64) ([]recovery.StaleToken, error) {
	const q = `
		SELECT mint, market_cap_usd, last_price_update_at
		FROM tokens
		WHERE NOT should_remove
		  AND market_cap_usd >= $1
		  AND (last_price_update_at IS NULL OR last_price_update_at < now() - $2::interval)`

	rows, err := t.pool.Query(ctx, q, minMarketCapUSD, staleThreshold.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanStaleTokens(rows)
}

// ListByMarketCapDesc returns every non-removed token at or above
// minMarketCapUSD, ordered highest market cap first, for the startup
// recovery pass.
func (t *TokenSource) ListByMarketCapDesc(ctx context.Context, minMarketCapUSD float64) ([]recovery.StaleToken, error) {
	const q = `
		SELECT mint, market_cap_usd, last_price_update_at
		FROM tokens
		WHERE NOT should_remove AND market_cap_usd >= $1
		ORDER BY market_cap_usd DESC`

	rows, err := t.pool.Query(ctx, q, minMarketCapUSD)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanStaleTokens(rows)
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanStaleTokens(rows rowScanner) ([]recovery.StaleToken, error) {
	var out []recovery.StaleToken
	for rows.Next() {
		var st recovery.StaleToken
		var updatedAt *time.Time
		if err := rows.Scan(&st.Mint, &st.MarketCapUSD, &updatedAt); err != nil {
			return nil, err
		}
		if updatedAt != nil {
			st.UpdatedAt = *updatedAt
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// LastBatchEndedAt returns the end time of the most recent recovery batch,
// used to decide whether startup recovery should run.
func (t *TokenSource) LastBatchEndedAt(ctx context.Context) (time.Time, bool, error) {
	const q = `SELECT ended_at FROM stale_detection_runs WHERE ended_at IS NOT NULL ORDER BY id DESC LIMIT 1`

	var endedAt time.Time
	row := t.pool.QueryRow(ctx, q)
	if err := row.Scan(&endedAt); err != nil {
		return time.Time{}, false, nil
	}
	return endedAt, true, nil
}

// RecordBatch inserts one finished recovery-batch log, implementing
// recovery.BatchLogWriter.
func (t *TokenSource) RecordBatch(ctx context.Context, log recovery.BatchLog) error {
	const q = `
		INSERT INTO stale_detection_runs
			(started_at, ended_at, tokens_checked, tokens_recovered, tokens_failed, external_query_count, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := t.pool.Exec(ctx, q,
		log.StartedAt, log.EndedAt, log.TokensChecked, log.TokensRecovered,
		log.TokensFailed, log.ExternalQueryCount, log.Status)
	return err
}
