package priceengine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pumpstream/ingest/pkg/config"
)

func TestPriceFromReserves_MatchesPriceFromTrade(t *testing.T) {
	cfg := config.DefaultPriceConfig()
	solReserves := uint64(30_000_000_000) // 30 SOL
	tokenReserves := uint64(800_000_000_000_000) // 800M tokens at 6dp

	fromReserves := PriceFromReserves(solReserves, tokenReserves, 150.0, cfg)
	fromTrade := PriceFromTrade(solReserves, tokenReserves, 150.0, true, cfg)

	require.True(t, fromReserves.Valid)
	require.True(t, fromTrade.Valid)
	require.True(t, fromReserves.PriceSOL.Equal(fromTrade.PriceSOL))
	require.True(t, fromReserves.PriceUSD.Equal(fromTrade.PriceUSD))
}

func TestPriceFromReserves_ZeroReservesInvalid(t *testing.T) {
	cfg := config.DefaultPriceConfig()
	res := PriceFromReserves(0, 100, 150.0, cfg)
	require.False(t, res.Valid)
}

func TestProgress_LinearSOLFormula(t *testing.T) {
	cfg := config.DefaultPriceConfig()
	cfg.ProgressFormula = config.ProgressLinearSOL
	cfg.BCStartSOL = 30
	cfg.BCTargetSOL = 85

	require.Equal(t, float64(0), Progress(30_000_000_000, cfg))
	require.InDelta(t, 50.0, Progress(57_500_000_000, cfg), 0.01)
	require.Equal(t, float64(100), Progress(85_000_000_000, cfg))
	require.Equal(t, float64(100), Progress(999_000_000_000, cfg))
	require.Equal(t, float64(0), Progress(0, cfg))
}

func TestProgress_LamportRatioFormula(t *testing.T) {
	cfg := config.DefaultPriceConfig()
	cfg.ProgressFormula = config.ProgressLamportRatio

	got := Progress(42_000_000_000, cfg) // 42 SOL
	require.InDelta(t, 42.0/84*100, got, 0.01)
}

func TestPriceImpact_MonotonicWithTradeSize(t *testing.T) {
	reservesIn := uint64(30_000_000_000)
	reservesOut := uint64(800_000_000_000_000)

	small := PriceImpact(1_000_000_000, reservesIn, reservesOut, 9, 6)
	large := PriceImpact(10_000_000_000, reservesIn, reservesOut, 9, 6)

	require.Greater(t, large.ImpactPct, small.ImpactPct)
	require.Greater(t, large.AmountOut, uint64(0))
	require.Greater(t, small.AmountOut, uint64(0))
}

func TestPriceImpact_ZeroInputsInvalid(t *testing.T) {
	res := PriceImpact(0, 100, 100, 9, 6)
	require.Equal(t, ImpactResult{}, res)
}

func TestValidateConstantK_HoldsAcrossSwap(t *testing.T) {
	beforeX, beforeY := uint64(30_000_000_000), uint64(800_000_000_000_000)
	impact := PriceImpact(1_000_000_000, beforeX, beforeY, 9, 6)
	afterX := beforeX + 1_000_000_000
	afterY := beforeY - impact.AmountOut

	require.True(t, ValidateConstantK(beforeX, beforeY, afterX, afterY, 0.01))
}

func TestValidateConstantK_DetectsViolation(t *testing.T) {
	require.False(t, ValidateConstantK(30_000_000_000, 800_000_000_000_000, 31_000_000_000, 850_000_000_000_000, 0.001))
}
