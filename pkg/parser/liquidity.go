package parser

import "github.com/pumpstream/ingest/pkg/event"

// LiquidityStrategy distinguishes deposit/withdraw by field presence in
// the source's logs, translated here into a tagged variant rather than a
// duck-typed key check: an `lpTokenAmountOut` log field means tokens were
// minted (deposit); `lpTokenAmountIn` means tokens were burned (withdraw).
type LiquidityStrategy struct {
	ProgramID string
}

func (s LiquidityStrategy) Name() string { return "liquidity" }

func (s LiquidityStrategy) CanParse(ctx event.ParseContext) bool {
	if ctx.ProgramID != s.ProgramID {
		return false
	}
	scraped := ScrapeLogs(ctx.Logs)
	_, hasOut := scraped.String("lpTokenAmountOut")
	_, hasIn := scraped.String("lpTokenAmountIn")
	return hasOut || hasIn
}

func (s LiquidityStrategy) Parse(ctx event.ParseContext) (event.Event, error) {
	scraped := ScrapeLogs(ctx.Logs)
	pool, _ := scraped.String("pool")
	user, _ := scraped.String("user")
	solAmount, _ := scraped.Uint64("solAmount")
	tokenAmount, _ := scraped.Uint64("tokenAmount")
	solReservesAfter, _ := scraped.Uint64("solReservesAfter")
	tokenReservesAfter, _ := scraped.Uint64("tokenReservesAfter")

	if lpOut, ok := scraped.Uint64("lpTokenAmountOut"); ok {
		return event.LiquidityDeposit{
			Sig:                ctx.Signature,
			SlotNum:            ctx.Slot,
			BlockTimeVal:       ctx.BlockTime,
			Pool:               pool,
			User:               user,
			LPTokenAmount:      lpOut,
			SolAmount:          solAmount,
			TokenAmount:        tokenAmount,
			SolReservesAfter:   solReservesAfter,
			TokenReservesAfter: tokenReservesAfter,
		}, nil
	}

	lpIn, _ := scraped.Uint64("lpTokenAmountIn")
	return event.LiquidityWithdraw{
		Sig:                ctx.Signature,
		SlotNum:            ctx.Slot,
		BlockTimeVal:       ctx.BlockTime,
		Pool:               pool,
		User:                user,
		LPTokenAmount:      lpIn,
		SolAmount:          solAmount,
		TokenAmount:        tokenAmount,
		SolReservesAfter:   solReservesAfter,
		TokenReservesAfter: tokenReservesAfter,
	}, nil
}
