// Package tradehandler implements spec.md §4.5: consume a parsed trade
// event, resolve reserves, price it via priceengine, annotate AMM impact,
// gate on market cap, and enqueue the resulting rows for persistence.
package tradehandler

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/pumpstream/ingest/pkg/config"
	"github.com/pumpstream/ingest/pkg/event"
	"github.com/pumpstream/ingest/pkg/eventbus"
	"github.com/pumpstream/ingest/pkg/persistence"
	"github.com/pumpstream/ingest/pkg/poolcache"
	"github.com/pumpstream/ingest/pkg/priceengine"
	"github.com/pumpstream/ingest/pkg/types"
)

// Default bonding-curve reserves used when neither the event nor the pool
// cache carries a reserve snapshot (spec.md §4.5).
const (
	defaultBCSolReserves   uint64 = 30_000_000_000
	defaultBCTokenReserves uint64 = 1_073_000_000_000_000
)

// SolUSDSource supplies the current SOL/USD rate; implemented by whatever
// refreshes pkg/persistence's sol_usd_rates table every 60s.
type SolUSDSource interface {
	SolUSD() float64
}

// Handler wires C1 pricing and C4 reserves into the write path described
// by spec.md §4.5.
type Handler struct {
	pool  *poolcache.Cache
	store *persistence.Store
	bus   *eventbus.Bus
	rates SolUSDSource
	cfg   config.PriceConfig
	log   zerolog.Logger
}

// New builds a Handler.
func New(pool *poolcache.Cache, store *persistence.Store, bus *eventbus.Bus, rates SolUSDSource, cfg config.PriceConfig, log zerolog.Logger) *Handler {
	return &Handler{pool: pool, store: store, bus: bus, rates: rates, cfg: cfg, log: log}
}

// HandleBCTrade processes one bonding-curve trade event end to end.
func (h *Handler) HandleBCTrade(ev event.BondingCurveTrade) {
	solReserves, tokenReserves := h.resolveBCReserves(ev)
	solUSD := h.rates.SolUSD()

	reservePrice := priceengine.PriceFromReserves(solReserves, tokenReserves, solUSD, h.cfg)
	tradePrice := priceengine.PriceFromTrade(ev.SolAmount, ev.TokenAmount, solUSD, ev.TradeSide == event.SideBuy, h.cfg)

	result := h.reconcile(reservePrice, tradePrice, ev.Sig)
	progress := priceengine.Progress(solReserves, h.cfg)

	if !h.passesThreshold(result.MarketCapUSD) {
		return
	}

	row := persistence.TradeRow{
		Signature:            ev.Sig,
		Mint:                 ev.Mint,
		Program:              "bonding_curve",
		Side:                 string(ev.TradeSide),
		User:                 ev.User,
		SolAmount:            ev.SolAmount,
		TokenAmount:          ev.TokenAmount,
		PriceSOL:             result.PriceSOL,
		PriceUSD:             result.PriceUSD,
		MarketCapUSD:         result.MarketCapUSD,
		VirtualSolReserves:   solReserves,
		VirtualTokenReserves: tokenReserves,
		BondingCurveProgress: progress,
		Slot:                 ev.SlotNum,
		BlockTime:            ev.BlockTimeVal,
	}
	h.store.Enqueue(persistence.KindBCTrade, row)
	h.ensureTokenRow(ev.Mint, "bonding_curve", ev.SlotNum, ev.BlockTimeVal, result, progress, "bonding_curve_state")

	h.bus.Publish(eventbus.TopicTradeProcessed, row)
}

// HandleAMMSwap processes one AMM swap event end to end, including price
// impact and slippage annotation.
func (h *Handler) HandleAMMSwap(ev event.AMMSwap) {
	solReserves, tokenReserves := h.resolveAMMReserves(ev)
	solUSD := h.rates.SolUSD()

	solAmount, tokenAmount := ev.InAmount, ev.OutAmount
	if ev.TradeSide == event.SideSell {
		solAmount, tokenAmount = ev.OutAmount, ev.InAmount
	}

	reservePrice := priceengine.PriceFromReserves(solReserves, tokenReserves, solUSD, h.cfg)
	tradePrice := priceengine.PriceFromTrade(solAmount, tokenAmount, solUSD, ev.TradeSide == event.SideBuy, h.cfg)
	result := h.reconcile(reservePrice, tradePrice, ev.Sig)

	if !h.passesThreshold(result.MarketCapUSD) {
		return
	}

	row := persistence.TradeRow{
		Signature:            ev.Sig,
		Mint:                 ev.Mint,
		Program:              "amm_pool",
		Side:                 string(ev.TradeSide),
		User:                 ev.User,
		SolAmount:            solAmount,
		TokenAmount:          tokenAmount,
		PriceSOL:             result.PriceSOL,
		PriceUSD:             result.PriceUSD,
		MarketCapUSD:         result.MarketCapUSD,
		VirtualSolReserves:   solReserves,
		VirtualTokenReserves: tokenReserves,
		BondingCurveProgress: 100,
		Slot:                 ev.SlotNum,
		BlockTime:            ev.BlockTimeVal,
	}

	if solReserves > 0 && tokenReserves > 0 && ev.InAmount > 0 {
		impact := priceengine.PriceImpact(ev.InAmount, solReserves, tokenReserves, 9, h.cfg.TokenDecimals)
		if ev.TradeSide == event.SideSell {
			impact = priceengine.PriceImpact(ev.InAmount, tokenReserves, solReserves, h.cfg.TokenDecimals, 9)
		}
		impactPct := impact.ImpactPct
		execPrice := impact.ExecutionPrice
		spotPrice := reservePrice.PriceSOL
		row.PriceImpactPct = &impactPct
		row.SpotPrice = &spotPrice
		row.ExecutionPrice = &execPrice
		row.SlippagePct = &impactPct

		if impactPct >= 0 {
			if err := types.ValidateSlippage(uint64(impactPct * 100)); err != nil {
				h.log.Warn().Str("signature", ev.Sig).Float64("impact_pct", impactPct).Msg("amm swap slippage exceeds 100%, likely a decoding anomaly")
			}
		}
	}

	h.store.Enqueue(persistence.KindAMMSwap, row)
	h.ensureTokenRow(ev.Mint, "amm_pool", ev.SlotNum, ev.BlockTimeVal, result, 100, "amm_pool_state")

	h.bus.Publish(eventbus.TopicTradeProcessed, row)
}

// resolveBCReserves implements the waterfall: event → cache → defaults.
func (h *Handler) resolveBCReserves(ev event.BondingCurveTrade) (sol, token uint64) {
	if ev.HasReserves {
		return ev.VirtualSolRes, ev.VirtualTokenRes
	}
	if cached, ok := h.pool.ByMint(ev.Mint); ok {
		return cached.VirtualSolReserves, cached.VirtualTokenReserves
	}
	return defaultBCSolReserves, defaultBCTokenReserves
}

func (h *Handler) resolveAMMReserves(ev event.AMMSwap) (sol, token uint64) {
	if ev.HasReserves {
		return ev.PoolSolRes, ev.PoolTokenRes
	}
	if cached, ok := h.pool.ByMint(ev.Mint); ok {
		return cached.VirtualSolReserves, cached.VirtualTokenReserves
	}
	return 0, 0
}

// reconcile picks the reserve-based price as authoritative when available,
// falling back to trade-amount pricing, and warns on large divergence
// between the two (spec.md §4.5, tolerance per §9's resolved decision).
func (h *Handler) reconcile(reservePrice, tradePrice priceengine.PriceResult, sig string) priceengine.PriceResult {
	if !reservePrice.Valid {
		return tradePrice
	}
	if !tradePrice.Valid {
		return reservePrice
	}

	if !reservePrice.PriceUSD.IsZero() {
		diff := reservePrice.PriceUSD.Sub(tradePrice.PriceUSD).Abs()
		fraction, _ := diff.Div(reservePrice.PriceUSD).Float64()
		if fraction > priceengine.DivergenceWarnThreshold {
			h.log.Warn().
				Str("signature", sig).
				Float64("divergence_fraction", fraction).
				Msg("reserve price and trade-amount price diverge beyond tolerance")
		}
	}

	return reservePrice
}

func (h *Handler) passesThreshold(marketCapUSD decimal.Decimal) bool {
	threshold := decimal.NewFromFloat(h.cfg.MarketCapThresholdUSD)
	return marketCapUSD.GreaterThanOrEqual(threshold)
}

// HandleLiquidityDeposit records an LP-mint event; the pool cache is not
// updated.
func (h *Handler) HandleLiquidityDeposit(ev event.LiquidityDeposit) {
	h.recordLiquidity("deposit", ev.Sig, ev.Pool, ev.User, ev.LPTokenAmount, ev.SolAmount, ev.TokenAmount, ev.SolReservesAfter, ev.TokenReservesAfter)
}

// HandleLiquidityWithdraw records an LP-burn event.
func (h *Handler) HandleLiquidityWithdraw(ev event.LiquidityWithdraw) {
	h.recordLiquidity("withdraw", ev.Sig, ev.Pool, ev.User, ev.LPTokenAmount, ev.SolAmount, ev.TokenAmount, ev.SolReservesAfter, ev.TokenReservesAfter)
}

func (h *Handler) recordLiquidity(eventType, sig, pool, user string, lpAmount, solAmount, tokenAmount, solReservesAfter, tokenReservesAfter uint64) {
	price := priceengine.PriceFromReserves(solReservesAfter, tokenReservesAfter, h.rates.SolUSD(), h.cfg)
	valueUSD := decimal.Zero
	if price.Valid {
		valueUSD = price.PriceUSD.Mul(decimal.NewFromInt(int64(tokenAmount)))
	}

	h.store.Enqueue(persistence.KindLiquidity, persistence.LiquidityRow{
		Signature:          sig,
		EventType:          eventType,
		Pool:               pool,
		User:               user,
		LPAmount:           lpAmount,
		SolAmount:          solAmount,
		TokenAmount:        tokenAmount,
		SolReservesAfter:   solReservesAfter,
		TokenReservesAfter: tokenReservesAfter,
		ValueUSD:           valueUSD,
	})
}

// HandleCreatorFee records a creator fee payout.
func (h *Handler) HandleCreatorFee(ev event.CreatorFee) {
	h.recordFee("creator_fee", ev.Sig, ev.Pool, ev.Recipient, ev.SolFeeAmount, ev.TokenFeeAmount, ev.SolReservesAfter)
}

// HandleProtocolFee records a protocol treasury fee payout.
func (h *Handler) HandleProtocolFee(ev event.ProtocolFee) {
	h.recordFee("protocol_fee", ev.Sig, ev.Pool, "", ev.SolFeeAmount, ev.TokenFeeAmount, ev.SolReservesAfter)
}

func (h *Handler) recordFee(eventType, sig, pool, recipient string, solFeeAmount, tokenFeeAmount, solReservesAfter uint64) {
	h.store.Enqueue(persistence.KindFee, persistence.FeeRow{
		Signature:        sig,
		EventType:        eventType,
		Pool:             pool,
		Recipient:        recipient,
		SolFeeAmount:     solFeeAmount,
		TokenFeeAmount:   tokenFeeAmount,
		SolReservesAfter: solReservesAfter,
	})
}

// HandleGraduation flips a mint's token row over to the AMM pool once its
// bonding curve completes, per spec.md's one-way bonding_curve→amm_pool
// transition.
func (h *Handler) HandleGraduation(ev event.Graduation) {
	h.store.Enqueue(persistence.KindTokenUpsert, persistence.TokenUpsertRow{
		Mint:                 ev.Mint,
		Program:              "amm_pool",
		BondingCurveProgress: 100,
		BondingCurveComplete: true,
		Graduated:            true,
		GraduationSlot:       ev.SlotNum,
		GraduationSignature:  ev.Sig,
		LastTradeAt:          ev.BlockTimeVal,
		LastPriceUpdateAt:    ev.BlockTimeVal,
		PriceSource:          "graduation",
	})
	h.bus.Publish(eventbus.TopicPoolStateUpdated, ev)
}

// HandlePoolCreated seeds the pool cache's pool→mint index as soon as a
// new AMM pool account exists, ahead of its first swap.
func (h *Handler) HandlePoolCreated(ev event.PoolCreated) {
	h.pool.Update(poolcache.Reserves{
		Mint: ev.Mint,
		Pool: ev.Pool,
		Slot: ev.SlotNum,
	})
}

func (h *Handler) ensureTokenRow(mint, program string, slot uint64, blockTime time.Time, price priceengine.PriceResult, progress float64, source string) {
	h.store.Enqueue(persistence.KindPriceSnapshot, persistence.PriceSnapshotRow{
		Mint:         mint,
		Slot:         slot,
		Program:      program,
		PriceSOL:     price.PriceSOL,
		PriceUSD:     price.PriceUSD,
		MarketCapUSD: price.MarketCapUSD,
	})

	h.store.Enqueue(persistence.KindTokenUpsert, persistence.TokenUpsertRow{
		Mint:                 mint,
		Program:              program,
		FirstSeenSlot:        slot,
		FirstSeenAt:          blockTime,
		PriceSOL:             price.PriceSOL,
		PriceUSD:             price.PriceUSD,
		MarketCapUSD:         price.MarketCapUSD,
		BondingCurveProgress: progress,
		BondingCurveComplete: progress >= 100,
		Decimals:             h.cfg.TokenDecimals,
		LastTradeAt:          blockTime,
		LastPriceUpdateAt:    blockTime,
		PriceSource:          source,
	})
}
