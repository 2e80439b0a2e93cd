package parser

import (
	"github.com/rs/zerolog"

	"github.com/pumpstream/ingest/pkg/constants"
	"github.com/pumpstream/ingest/pkg/eventbus"
)

// NewDefaultRegistry builds the registry with the standard strategy order:
// bonding-curve trades and AMM swaps are tried first since they dominate
// volume, then liquidity, fees, and finally graduation/pool-creation.
func NewDefaultRegistry(bus *eventbus.Bus, log zerolog.Logger) *Registry {
	r := NewRegistry(bus, log)
	bcProgram := constants.PumpProgramID.String()
	ammProgram := constants.PumpAmmProgramID.String()

	r.Register(BCTradeStrategy{ProgramID: bcProgram})
	r.Register(AMMSwapStrategy{ProgramID: ammProgram})
	r.Register(LiquidityStrategy{ProgramID: ammProgram})
	r.Register(FeeStrategy{ProgramID: ammProgram})
	r.Register(GraduationStrategy{BCProgramID: bcProgram, AMMProgramID: ammProgram})
	return r
}
