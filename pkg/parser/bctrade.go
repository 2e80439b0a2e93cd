package parser

import (
	"github.com/pumpstream/ingest/internal/layouts"
	"github.com/pumpstream/ingest/pkg/event"
	"github.com/pumpstream/ingest/pkg/types"
)

// BCTradeStrategy recognises bonding-curve Buy/Sell instructions. When
// instruction data is present it decodes the fixed layout (see
// internal/layouts); otherwise it falls back to log-scraping for the mint,
// leaving reserves to be filled in later from the pool-state cache.
type BCTradeStrategy struct {
	ProgramID string
}

func (s BCTradeStrategy) Name() string { return "bc_trade" }

func (s BCTradeStrategy) CanParse(ctx event.ParseContext) bool {
	if ctx.ProgramID != s.ProgramID {
		return false
	}
	return Contains(ctx.Logs, "Instruction: Buy") || Contains(ctx.Logs, "Instruction: Sell")
}

func (s BCTradeStrategy) Parse(ctx event.ParseContext) (event.Event, error) {
	side := event.SideBuy
	if Contains(ctx.Logs, "Instruction: Sell") {
		side = event.SideSell
	}

	if len(ctx.InstructionData) > 0 {
		if ev, ok := s.parseFromData(ctx, side); ok {
			return ev, nil
		}
	}

	return s.parseFromLogs(ctx, side)
}

func (s BCTradeStrategy) parseFromData(ctx event.ParseContext, side event.Side) (event.BondingCurveTrade, bool) {
	short, hasReserves, long, err := layouts.DecodeBCTrade(ctx.InstructionData)
	if err != nil {
		return event.BondingCurveTrade{}, false
	}

	trade := event.BondingCurveTrade{
		Sig:          ctx.Signature,
		SlotNum:      ctx.Slot,
		BlockTimeVal: ctx.BlockTime,
		Mint:         short.Mint.String(),
		User:         short.User.String(),
		TradeSide:    side,
		SolAmount:    short.SolAmount,
		TokenAmount:  short.TokenAmount,
	}

	if hasReserves {
		trade.BondingCurve = long.BondingCurve.String()
		trade.VirtualSolRes = long.VirtualSolReserves
		trade.VirtualTokenRes = long.VirtualTokenReserves
		trade.HasReserves = true
	}

	return trade, true
}

func (s BCTradeStrategy) parseFromLogs(ctx event.ParseContext, side event.Side) (event.Event, error) {
	scraped := ScrapeLogs(ctx.Logs)

	mint, ok := scraped.String("mint")
	if !ok && len(ctx.Accounts) > 0 {
		mint = ctx.Accounts[0]
	}
	if err := types.ValidateMintString(mint); err != nil {
		return nil, errUnrecognized(s.Name(), ctx.Signature, errNoMintInLogs)
	}

	solAmount, _ := scraped.Uint64("sol_amount")
	tokenAmount, _ := scraped.Uint64("token_amount")

	return event.BondingCurveTrade{
		Sig:          ctx.Signature,
		SlotNum:      ctx.Slot,
		BlockTimeVal: ctx.BlockTime,
		Mint:         mint,
		TradeSide:    side,
		SolAmount:    solAmount,
		TokenAmount:  tokenAmount,
	}, nil
}
