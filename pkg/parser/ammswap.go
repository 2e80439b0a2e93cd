package parser

import (
	"github.com/pumpstream/ingest/pkg/constants"
	"github.com/pumpstream/ingest/pkg/event"
	"github.com/pumpstream/ingest/pkg/types"
)

// AMMSwapStrategy recognises pump-AMM swap instructions. Direction is
// resolved from mint identity against native SOL first, falling back to
// log keywords when neither side is wrapped SOL.
type AMMSwapStrategy struct {
	ProgramID string
}

func (s AMMSwapStrategy) Name() string { return "amm_swap" }

func (s AMMSwapStrategy) CanParse(ctx event.ParseContext) bool {
	if ctx.ProgramID != s.ProgramID {
		return false
	}
	return Contains(ctx.Logs, "Instruction: Swap") || Contains(ctx.Logs, "Instruction: Buy") || Contains(ctx.Logs, "Instruction: Sell")
}

func (s AMMSwapStrategy) Parse(ctx event.ParseContext) (event.Event, error) {
	scraped := ScrapeLogs(ctx.Logs)

	inputMint, _ := scraped.String("input_mint")
	outputMint, _ := scraped.String("output_mint")
	inAmount, _ := scraped.Uint64("in_amount")
	outAmount, _ := scraped.Uint64("out_amount")
	pool, _ := scraped.String("pool")

	if inputMint == "" && outputMint == "" {
		return nil, errUnrecognized(s.Name(), ctx.Signature, errNoMintInLogs)
	}

	side, mint := resolveAMMSide(inputMint, outputMint, ctx.Logs)
	if err := types.ValidateMintString(mint); err != nil {
		return nil, errUnrecognized(s.Name(), ctx.Signature, err)
	}

	swap := event.AMMSwap{
		Sig:          ctx.Signature,
		SlotNum:      ctx.Slot,
		BlockTimeVal: ctx.BlockTime,
		Pool:         pool,
		Mint:         mint,
		TradeSide:    side,
		InputMint:    inputMint,
		OutputMint:   outputMint,
		InAmount:     inAmount,
		OutAmount:    outAmount,
	}

	if poolSol, ok := scraped.Uint64("pool_sol"); ok {
		if poolTok, ok := scraped.Uint64("pool_tok"); ok {
			swap.PoolSolRes = poolSol
			swap.PoolTokenRes = poolTok
			swap.HasReserves = true
		}
	}

	return swap, nil
}

// resolveAMMSide decides buy/sell from mint identity: native SOL in → buy,
// native SOL out → sell, otherwise disambiguate via log keywords (spec
// §4.2). The non-SOL mint is returned as the traded token's mint.
func resolveAMMSide(inputMint, outputMint string, logs []string) (event.Side, string) {
	wsol := constants.WSOLMint.String()

	switch {
	case inputMint == wsol:
		return event.SideBuy, outputMint
	case outputMint == wsol:
		return event.SideSell, inputMint
	case Contains(logs, "Instruction: Buy"):
		return event.SideBuy, outputMint
	case Contains(logs, "Instruction: Sell"):
		return event.SideSell, inputMint
	default:
		return event.SideBuy, outputMint
	}
}
