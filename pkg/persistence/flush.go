package persistence

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/pumpstream/ingest/pkg/types"
)

// validSignature reports whether row.Signature passes types.ValidateSignature,
// logging and dropping the row otherwise instead of sending a row the
// signature-keyed ON CONFLICT clause couldn't dedup correctly.
func (s *Store) validSignature(sig string) bool {
	if err := types.ValidateSignature(sig); err != nil {
		s.log.Warn().Str("signature", sig).Err(err).Msg("persistence: dropping row with invalid signature")
		return false
	}
	return true
}

// flushTrades inserts bc_trade/amm_swap rows with ON CONFLICT (signature)
// DO NOTHING — signature is the idempotency key (Property 1).
func (s *Store) flushTrades(ctx context.Context, tx pgx.Tx, items []any) error {
	batch := &pgx.Batch{}
	n := 0
	for _, item := range items {
		row, ok := item.(TradeRow)
		if !ok || !s.validSignature(row.Signature) {
			continue
		}
		batch.Queue(`
			INSERT INTO trades (
				signature, mint, program, side, "user", sol_amount, token_amount,
				price_sol, price_usd, market_cap_usd, virtual_sol_reserves,
				virtual_token_reserves, bonding_curve_progress, price_impact_pct,
				slippage_pct, spot_price, execution_price, slot, block_time
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
			ON CONFLICT (signature) DO NOTHING`,
			row.Signature, row.Mint, row.Program, row.Side, row.User,
			row.SolAmount, row.TokenAmount, row.PriceSOL, row.PriceUSD, row.MarketCapUSD,
			row.VirtualSolReserves, row.VirtualTokenReserves, row.BondingCurveProgress,
			row.PriceImpactPct, row.SlippagePct, row.SpotPrice, row.ExecutionPrice,
			row.Slot, row.BlockTime,
		)
		n++
	}
	return s.sendBatch(ctx, tx, batch, n)
}

// flushTokenUpserts upserts the tokens table, ON CONFLICT (mint) DO UPDATE —
// trades advance price/progress fields without clobbering graduation state
// once set (graduated is OR'd, never unset, per the one-way invariant).
func (s *Store) flushTokenUpserts(ctx context.Context, tx pgx.Tx, items []any) error {
	batch := &pgx.Batch{}
	n := 0
	for _, item := range items {
		row, ok := item.(TokenUpsertRow)
		if !ok {
			continue
		}
		batch.Queue(`
			INSERT INTO tokens (
				mint, symbol, name, uri, program, first_seen_slot, first_seen_at,
				price_sol, price_usd, market_cap_usd, bonding_curve_progress,
				bonding_curve_complete, graduated, graduation_slot, graduation_signature,
				creator, decimals, total_supply, last_trade_at, last_price_update_at,
				price_source, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,now())
			ON CONFLICT (mint) DO UPDATE SET
				price_sol = EXCLUDED.price_sol,
				price_usd = EXCLUDED.price_usd,
				market_cap_usd = EXCLUDED.market_cap_usd,
				bonding_curve_progress = EXCLUDED.bonding_curve_progress,
				bonding_curve_complete = tokens.bonding_curve_complete OR EXCLUDED.bonding_curve_complete,
				program = CASE WHEN EXCLUDED.graduated THEN EXCLUDED.program ELSE tokens.program END,
				graduated = tokens.graduated OR EXCLUDED.graduated,
				graduation_slot = COALESCE(NULLIF(tokens.graduation_slot, 0), NULLIF(EXCLUDED.graduation_slot, 0)),
				graduation_signature = COALESCE(NULLIF(tokens.graduation_signature, ''), NULLIF(EXCLUDED.graduation_signature, '')),
				last_trade_at = GREATEST(tokens.last_trade_at, EXCLUDED.last_trade_at),
				last_price_update_at = EXCLUDED.last_price_update_at,
				price_source = EXCLUDED.price_source,
				updated_at = now()`,
			row.Mint, row.Symbol, row.Name, row.URI, row.Program, row.FirstSeenSlot, row.FirstSeenAt,
			row.PriceSOL, row.PriceUSD, row.MarketCapUSD, row.BondingCurveProgress,
			row.BondingCurveComplete, row.Graduated, row.GraduationSlot, row.GraduationSignature,
			row.Creator, row.Decimals, row.TotalSupply, row.LastTradeAt, row.LastPriceUpdateAt,
			row.PriceSource,
		)
		n++
	}
	return s.sendBatch(ctx, tx, batch, n)
}

// flushPoolStates inserts append-only pool-state snapshots, keyed on
// (pool_address, slot); a repeat write for the same slot is a no-op.
func (s *Store) flushPoolStates(ctx context.Context, tx pgx.Tx, items []any) error {
	batch := &pgx.Batch{}
	n := 0
	for _, item := range items {
		row, ok := item.(PoolStateRow)
		if !ok {
			continue
		}
		batch.Queue(`
			INSERT INTO pool_states (
				pool_address, slot, mint, virtual_sol_reserves, virtual_token_reserves,
				real_sol_reserves, real_token_reserves, pool_open
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
			ON CONFLICT (pool_address, slot) DO NOTHING`,
			row.PoolAddress, row.Slot, row.Mint, row.VirtualSolReserves, row.VirtualTokenReserves,
			row.RealSolReserves, row.RealTokenReserves, row.PoolOpen,
		)
		n++
	}
	return s.sendBatch(ctx, tx, batch, n)
}

// flushPriceSnapshots inserts price_snapshots rows, ON CONFLICT (mint,
// slot) DO NOTHING — a repeat snapshot for a slot already recorded is a
// no-op, same as pool_states.
func (s *Store) flushPriceSnapshots(ctx context.Context, tx pgx.Tx, items []any) error {
	batch := &pgx.Batch{}
	n := 0
	for _, item := range items {
		row, ok := item.(PriceSnapshotRow)
		if !ok {
			continue
		}
		batch.Queue(`
			INSERT INTO price_snapshots (mint, slot, program, price_sol, price_usd, market_cap_usd)
			VALUES ($1,$2,$3,$4,$5,$6)
			ON CONFLICT (mint, slot) DO NOTHING`,
			row.Mint, row.Slot, row.Program, row.PriceSOL, row.PriceUSD, row.MarketCapUSD,
		)
		n++
	}
	return s.sendBatch(ctx, tx, batch, n)
}

// flushLiquidity inserts liquidity_events rows, ON CONFLICT (signature) DO NOTHING.
func (s *Store) flushLiquidity(ctx context.Context, tx pgx.Tx, items []any) error {
	batch := &pgx.Batch{}
	n := 0
	for _, item := range items {
		row, ok := item.(LiquidityRow)
		if !ok || !s.validSignature(row.Signature) {
			continue
		}
		batch.Queue(`
			INSERT INTO liquidity_events (
				signature, event_type, pool, "user", lp_amount, sol_amount, token_amount,
				sol_reserves_after, token_reserves_after, value_usd
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
			ON CONFLICT (signature) DO NOTHING`,
			row.Signature, row.EventType, row.Pool, row.User, row.LPAmount, row.SolAmount,
			row.TokenAmount, row.SolReservesAfter, row.TokenReservesAfter, row.ValueUSD,
		)
		n++
	}
	return s.sendBatch(ctx, tx, batch, n)
}

// flushFees inserts fee_events rows, ON CONFLICT (signature, event_type) DO
// NOTHING — the same transaction can emit both a creator and protocol fee.
func (s *Store) flushFees(ctx context.Context, tx pgx.Tx, items []any) error {
	batch := &pgx.Batch{}
	n := 0
	for _, item := range items {
		row, ok := item.(FeeRow)
		if !ok || !s.validSignature(row.Signature) {
			continue
		}
		batch.Queue(`
			INSERT INTO fee_events (
				signature, event_type, pool, recipient, sol_fee_amount, token_fee_amount, sol_reserves_after
			) VALUES ($1,$2,$3,$4,$5,$6,$7)
			ON CONFLICT (signature, event_type) DO NOTHING`,
			row.Signature, row.EventType, row.Pool, row.Recipient, row.SolFeeAmount,
			row.TokenFeeAmount, row.SolReservesAfter,
		)
		n++
	}
	return s.sendBatch(ctx, tx, batch, n)
}

// sendBatch executes a queued batch and, for each statement whose
// CommandTag reports zero rows affected (an ON CONFLICT ... DO NOTHING
// no-op), counts it as a duplicate — Property 1's "duplicate signature is
// discarded but counted" half.
func (s *Store) sendBatch(ctx context.Context, tx pgx.Tx, batch *pgx.Batch, expected int) error {
	if expected == 0 {
		return nil
	}
	results := tx.SendBatch(ctx, batch)
	defer results.Close()

	var duplicates uint64
	for i := 0; i < expected; i++ {
		tag, err := results.Exec()
		if err != nil {
			return fmt.Errorf("persistence: batch exec %d/%d: %w", i+1, expected, err)
		}
		if tag.RowsAffected() == 0 {
			duplicates++
		}
	}

	if duplicates > 0 {
		s.counters.mu.Lock()
		s.counters.Duplicates += duplicates
		s.counters.mu.Unlock()
	}
	return nil
}
