package parser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pumpstream/ingest/pkg/constants"
	"github.com/pumpstream/ingest/pkg/event"
	"github.com/pumpstream/ingest/pkg/eventbus"
)

func TestBCTradeStrategy_ParsesFromLogsWhenNoInstructionData(t *testing.T) {
	s := BCTradeStrategy{ProgramID: constants.PumpProgramID.String()}
	ctx := event.ParseContext{
		Signature: "sig1",
		Slot:      200_000_000,
		BlockTime: time.Now(),
		ProgramID: constants.PumpProgramID.String(),
		Logs: []string{
			"Program log: Instruction: Buy",
			"Program log: mint: Mint1111111111111111111111111111111111111",
			"Program log: sol_amount: 1000000000",
			"Program log: token_amount: 10000000",
		},
	}

	require.True(t, s.CanParse(ctx))
	ev, err := s.Parse(ctx)
	require.NoError(t, err)

	trade, ok := ev.(event.BondingCurveTrade)
	require.True(t, ok)
	require.Equal(t, event.SideBuy, trade.TradeSide)
	require.Equal(t, uint64(1_000_000_000), trade.SolAmount)
	require.Equal(t, uint64(10_000_000), trade.TokenAmount)
}

func TestBCTradeStrategy_RejectsOtherPrograms(t *testing.T) {
	s := BCTradeStrategy{ProgramID: constants.PumpProgramID.String()}
	ctx := event.ParseContext{ProgramID: "SomeOtherProgram", Logs: []string{"Program log: Instruction: Buy"}}
	require.False(t, s.CanParse(ctx))
}

func TestAMMSwapStrategy_ResolvesBuyFromWSOLInput(t *testing.T) {
	s := AMMSwapStrategy{ProgramID: constants.PumpAmmProgramID.String()}
	ctx := event.ParseContext{
		Signature: "sig2",
		ProgramID: constants.PumpAmmProgramID.String(),
		Logs: []string{
			"Program log: Instruction: Swap",
			"Program log: input_mint: " + constants.WSOLMint.String(),
			"Program log: in_amount: 2000000000",
			"Program log: output_mint: Mint2222222222222222222222222222222222222",
			"Program log: out_amount: 10000000000",
		},
	}

	require.True(t, s.CanParse(ctx))
	ev, err := s.Parse(ctx)
	require.NoError(t, err)

	swap, ok := ev.(event.AMMSwap)
	require.True(t, ok)
	require.Equal(t, event.SideBuy, swap.TradeSide)
	require.Equal(t, uint64(2_000_000_000), swap.InAmount)
	require.Equal(t, uint64(10_000_000_000), swap.OutAmount)
}

func TestRegistry_FirstMatchWinsAndPublishesSuccess(t *testing.T) {
	bus := eventbus.New()
	var got any
	bus.Subscribe(eventbus.TopicParserSuccess, func(payload any) { got = payload })

	r := NewDefaultRegistry(bus, testLogger())
	ctx := event.ParseContext{
		Signature: "sig3",
		ProgramID: constants.PumpProgramID.String(),
		Logs:      []string{"Program log: Instruction: Sell", "Program log: mint: MintX111111111111111111111111111111111111"},
	}

	ev, ok := r.Parse(ctx)
	require.True(t, ok)
	require.NotNil(t, ev)
	require.NotNil(t, got)

	stats := r.Stats()
	require.Equal(t, uint64(1), stats.Parsed)
	require.Equal(t, uint64(1), stats.Total)
	require.Equal(t, float64(1), stats.ParseRate())
}

func TestRegistry_UnrecognizedPublishesFailed(t *testing.T) {
	bus := eventbus.New()
	failed := false
	bus.Subscribe(eventbus.TopicParserFailed, func(payload any) { failed = true })

	r := NewDefaultRegistry(bus, testLogger())
	ctx := event.ParseContext{Signature: "sig4", ProgramID: "unknown-program"}

	_, ok := r.Parse(ctx)
	require.False(t, ok)
	require.True(t, failed)

	stats := r.Stats()
	require.Equal(t, uint64(1), stats.Failed)
	require.Equal(t, float64(0), stats.ParseRate())
}
