// Package priceengine holds the pure, stateless arithmetic over integer
// reserves that every other component calls into for spot price, market
// cap, bonding-curve progress, and constant-product impact/slippage.
//
// All reserve/amount inputs are integers in their smallest units (9-decimal
// lamports for SOL, 6-decimal base units for the token) per the unit
// discipline in the design notes; float64 is confined to the SOL/USD rate
// and to the internal division here, never persisted directly — callers
// convert the Decimal outputs at the persistence boundary.
//
// Grounded on pkg/quote/quote.go's calculatePriceMetrics and
// PumpBuyQuote/PumpSellQuote constant-product math, generalized from
// "simulate a trade I'm about to send" to "price a trade I already
// observed".
package priceengine

import (
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/pumpstream/ingest/pkg/config"
	"github.com/pumpstream/ingest/pkg/types"
)

// DivergenceWarnThreshold is the tolerance between a reserve-derived price
// and a trade-amount-derived price above which callers should log a
// divergence warning. The source specifies no exact number; per the design
// notes this rewrite adopts a conservative 1% threshold.
const DivergenceWarnThreshold = 0.01

// PriceResult is the output of pricing a reserve pair or a trade amount.
type PriceResult struct {
	PriceSOL     decimal.Decimal
	PriceUSD     decimal.Decimal
	MarketCapUSD decimal.Decimal
	// Valid is false when either reserve was zero; callers should fall back
	// to trade-amount pricing in that case.
	Valid bool
}

// PriceFromReserves computes spot price and market cap from integer
// reserves and the current SOL/USD rate. Reserves are in their smallest
// units (solReserves: 9dp lamports, tokenReserves: tokenDecimals dp).
func PriceFromReserves(solReserves, tokenReserves uint64, solUSD float64, cfg config.PriceConfig) PriceResult {
	if err := types.ValidateReserves(solReserves, tokenReserves); err != nil {
		return PriceResult{}
	}

	priceSOL := reservesToDecimalPrice(solReserves, tokenReserves, cfg.TokenDecimals)
	solUSDDec := decimal.NewFromFloat(solUSD)
	priceUSD := priceSOL.Mul(solUSDDec)
	marketCap := marketCapFromPriceUSD(priceUSD, cfg)

	return PriceResult{PriceSOL: priceSOL, PriceUSD: priceUSD, MarketCapUSD: marketCap, Valid: true}
}

// PriceFromTrade computes an implied price directly from a trade's amounts,
// independent of reserves — the fallback path when reserves are missing.
// isBuy does not affect the price magnitude (sol/token ratio is symmetric)
// but is accepted for symmetry with callers that branch on trade side.
func PriceFromTrade(solAmount, tokenAmount uint64, solUSD float64, isBuy bool, cfg config.PriceConfig) PriceResult {
	if err := types.ValidateReserves(solAmount, tokenAmount); err != nil {
		return PriceResult{}
	}
	_ = isBuy // price magnitude is direction-independent; kept for call-site symmetry.

	priceSOL := reservesToDecimalPrice(solAmount, tokenAmount, cfg.TokenDecimals)
	solUSDDec := decimal.NewFromFloat(solUSD)
	priceUSD := priceSOL.Mul(solUSDDec)
	marketCap := marketCapFromPriceUSD(priceUSD, cfg)

	return PriceResult{PriceSOL: priceSOL, PriceUSD: priceUSD, MarketCapUSD: marketCap, Valid: true}
}

// reservesToDecimalPrice computes (solUnits/1e9) / (tokenUnits/10^tokenDecimals)
// using big.Int intermediate math (as quote.go does) before converting to
// Decimal, to avoid float64 precision loss on large reserve values.
func reservesToDecimalPrice(solUnits, tokenUnits uint64, tokenDecimals uint8) decimal.Decimal {
	// price = (sol/1e9) / (token/10^tokenDecimals)
	//       = sol * 10^tokenDecimals / (1e9 * token)
	num := new(big.Int).SetUint64(solUnits)
	tokenScale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(tokenDecimals)), nil)
	num.Mul(num, tokenScale)

	denom := new(big.Int).SetUint64(tokenUnits)
	solScale := big.NewInt(1_000_000_000)
	denom.Mul(denom, solScale)

	return bigRatToDecimal(num, denom)
}

// bigRatToDecimal divides num/denom at 18 decimal digits of precision,
// matching the ≥15 significant digit requirement for persisted prices.
func bigRatToDecimal(num, denom *big.Int) decimal.Decimal {
	const precision = 18
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(precision), nil)
	scaled := new(big.Int).Mul(num, scale)
	quotient := new(big.Int).Div(scaled, denom)
	return decimal.NewFromBigInt(quotient, -precision)
}

// marketCapFromPriceUSD is price * fully-diluted-supply, unless a per-token
// override is recorded by the caller (the token model carries that override
// separately; this function computes the default).
func marketCapFromPriceUSD(priceUSD decimal.Decimal, cfg config.PriceConfig) decimal.Decimal {
	supply := decimal.NewFromInt(int64(cfg.FullyDilutedSupply))
	return priceUSD.Mul(supply)
}

// Progress computes bonding-curve progress in [0, 100] from the SOL
// currently in the curve, using the configured formula convention.
func Progress(solInCurveLamports uint64, cfg config.PriceConfig) float64 {
	solIn := float64(solInCurveLamports) / 1e9

	var pct float64
	switch cfg.ProgressFormula {
	case config.ProgressLamportRatio:
		pct = solIn / 84 * 100
	default:
		start, target := cfg.BCStartSOL, cfg.BCTargetSOL
		if target <= start {
			return 0
		}
		pct = (solIn - start) / (target - start) * 100
	}

	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// ImpactResult is the output of a constant-product swap simulation.
type ImpactResult struct {
	AmountOut      uint64
	ImpactPct      float64
	ExecutionPrice decimal.Decimal
	NewSpotPrice   decimal.Decimal
}

// PriceImpact runs the constant-product formula out = y*in/(x+in) over
// (reservesIn, reservesOut) and reports the price impact versus the
// pre-trade spot price. reservesIn/reservesOut are in the asset being
// sold/bought's smallest units respectively; isBuy only affects which
// side of the pool is in/out is not inferred here — callers pass the
// correct (in, out) pair for the trade direction.
func PriceImpact(amountIn, reservesIn, reservesOut uint64, inDecimals, outDecimals uint8) ImpactResult {
	if reservesIn == 0 || reservesOut == 0 || amountIn == 0 {
		return ImpactResult{}
	}

	in := new(big.Int).SetUint64(amountIn)
	x := new(big.Int).SetUint64(reservesIn)
	y := new(big.Int).SetUint64(reservesOut)

	numerator := new(big.Int).Mul(y, in)
	denominator := new(big.Int).Add(x, in)
	out := new(big.Int).Div(numerator, denominator)

	// Spot price expressed as out-per-in, scaled for each side's decimals.
	spotPrice := ratioAsDecimal(y, x, outDecimals, inDecimals)
	execPrice := ratioAsDecimal(out, in, outDecimals, inDecimals)

	var impactPct float64
	if !spotPrice.IsZero() {
		diff := spotPrice.Sub(execPrice).Abs()
		impactPct, _ = diff.Div(spotPrice).Mul(decimal.NewFromInt(100)).Float64()
	}

	newY := new(big.Int).Sub(y, out)
	newX := new(big.Int).Add(x, in)
	newSpot := ratioAsDecimal(newY, newX, outDecimals, inDecimals)

	return ImpactResult{
		AmountOut:      out.Uint64(),
		ImpactPct:      impactPct,
		ExecutionPrice: execPrice,
		NewSpotPrice:   newSpot,
	}
}

// ratioAsDecimal computes (numRaw/10^numDecimals) / (denomRaw/10^denomDecimals).
func ratioAsDecimal(numRaw, denomRaw *big.Int, numDecimals, denomDecimals uint8) decimal.Decimal {
	if denomRaw.Sign() == 0 {
		return decimal.Zero
	}
	num := new(big.Int).Mul(numRaw, pow10(denomDecimals))
	denom := new(big.Int).Mul(denomRaw, pow10(numDecimals))
	return bigRatToDecimal(num, denom)
}

func pow10(n uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// ValidateConstantK is a diagnostic equality test confirming a pool's
// constant-product invariant held (within tolerance) across a state
// transition. Only tests call it; no parser strategy or handler does.
func ValidateConstantK(beforeX, beforeY, afterX, afterY uint64, tolerance float64) bool {
	if tolerance <= 0 {
		tolerance = 0.001
	}
	kBefore := new(big.Int).Mul(big.NewInt(int64(beforeX)), big.NewInt(int64(beforeY)))
	kAfter := new(big.Int).Mul(big.NewInt(int64(afterX)), big.NewInt(int64(afterY)))
	if kBefore.Sign() == 0 {
		return kAfter.Sign() == 0
	}

	diff := new(big.Int).Sub(kAfter, kBefore)
	diff.Abs(diff)
	diffF, _ := new(big.Float).SetInt(diff).Float64()
	kBeforeF, _ := new(big.Float).SetInt(kBefore).Float64()
	if kBeforeF == 0 {
		return diffF == 0
	}
	return diffF/kBeforeF <= tolerance
}
