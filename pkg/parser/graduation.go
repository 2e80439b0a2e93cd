package parser

import (
	"github.com/pumpstream/ingest/pkg/event"
	"github.com/pumpstream/ingest/pkg/types"
)

// GraduationStrategy matches `withdraw` (bonding-curve completion, funds
// moved to the AMM) or `create_pool` instructions to emit graduation and
// pool-created events respectively.
type GraduationStrategy struct {
	BCProgramID  string
	AMMProgramID string
}

func (s GraduationStrategy) Name() string { return "graduation" }

func (s GraduationStrategy) CanParse(ctx event.ParseContext) bool {
	switch ctx.ProgramID {
	case s.BCProgramID:
		return Contains(ctx.Logs, "Instruction: Withdraw")
	case s.AMMProgramID:
		return Contains(ctx.Logs, "Instruction: CreatePool")
	default:
		return false
	}
}

func (s GraduationStrategy) Parse(ctx event.ParseContext) (event.Event, error) {
	scraped := ScrapeLogs(ctx.Logs)
	mint, _ := scraped.String("mint")
	if err := types.ValidateMintString(mint); err != nil {
		return nil, errUnrecognized(s.Name(), ctx.Signature, err)
	}

	if ctx.ProgramID == s.BCProgramID {
		bondingCurve, _ := scraped.String("bondingCurve")
		pool, _ := scraped.String("pool")
		return event.Graduation{
			Sig:          ctx.Signature,
			SlotNum:      ctx.Slot,
			BlockTimeVal: ctx.BlockTime,
			Mint:         mint,
			BondingCurve: bondingCurve,
			Pool:         pool,
		}, nil
	}

	pool, _ := scraped.String("pool")
	creator, _ := scraped.String("creator")
	return event.PoolCreated{
		Sig:          ctx.Signature,
		SlotNum:      ctx.Slot,
		BlockTimeVal: ctx.BlockTime,
		Mint:         mint,
		Pool:         pool,
		Creator:      creator,
	}, nil
}
