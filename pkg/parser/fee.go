package parser

import "github.com/pumpstream/ingest/pkg/event"

// FeeStrategy distinguishes creator-fee (has a recipient) from
// protocol-fee (no recipient) variants.
type FeeStrategy struct {
	ProgramID string
}

func (s FeeStrategy) Name() string { return "fee" }

func (s FeeStrategy) CanParse(ctx event.ParseContext) bool {
	if ctx.ProgramID != s.ProgramID {
		return false
	}
	return Contains(ctx.Logs, "Instruction: CollectCreatorFee") || Contains(ctx.Logs, "Instruction: CollectProtocolFee") ||
		Contains(ctx.Logs, "fee_type:")
}

func (s FeeStrategy) Parse(ctx event.ParseContext) (event.Event, error) {
	scraped := ScrapeLogs(ctx.Logs)
	pool, _ := scraped.String("pool")
	solFee, _ := scraped.Uint64("solFeeAmount")
	tokenFee, _ := scraped.Uint64("tokenFeeAmount")
	reservesAfter, _ := scraped.Uint64("solReservesAfter")

	if recipient, ok := scraped.String("recipient"); ok && recipient != "" {
		return event.CreatorFee{
			Sig:              ctx.Signature,
			SlotNum:          ctx.Slot,
			BlockTimeVal:     ctx.BlockTime,
			Pool:             pool,
			Recipient:        recipient,
			SolFeeAmount:     solFee,
			TokenFeeAmount:   tokenFee,
			SolReservesAfter: reservesAfter,
		}, nil
	}

	return event.ProtocolFee{
		Sig:              ctx.Signature,
		SlotNum:          ctx.Slot,
		BlockTimeVal:     ctx.BlockTime,
		Pool:             pool,
		SolFeeAmount:     solFee,
		TokenFeeAmount:   tokenFee,
		SolReservesAfter: reservesAfter,
	}, nil
}
