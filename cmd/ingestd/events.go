package main

import (
	"sync"

	"github.com/pumpstream/ingest/internal/layouts"
	"github.com/pumpstream/ingest/pkg/constants"
	"github.com/pumpstream/ingest/pkg/event"
	"github.com/pumpstream/ingest/pkg/persistence"
	"github.com/pumpstream/ingest/pkg/poolcache"
	"github.com/pumpstream/ingest/pkg/stream"
	"github.com/pumpstream/ingest/pkg/tradehandler"
)

// routeEvent dispatches one parsed event to the tradehandler method that
// owns its kind, and records the bonding-curve/pool address a later
// account update would arrive under so mintIndex can resolve it back to a
// mint without re-deriving the PDA.
func routeEvent(h *tradehandler.Handler, idx *mintIndex, ev event.Event) {
	switch e := ev.(type) {
	case event.BondingCurveTrade:
		idx.recordBondingCurve(e.BondingCurve, e.Mint)
		h.HandleBCTrade(e)
	case event.AMMSwap:
		idx.recordPool(e.Pool, e.Mint)
		h.HandleAMMSwap(e)
	case event.LiquidityDeposit:
		h.HandleLiquidityDeposit(e)
	case event.LiquidityWithdraw:
		h.HandleLiquidityWithdraw(e)
	case event.CreatorFee:
		h.HandleCreatorFee(e)
	case event.ProtocolFee:
		h.HandleProtocolFee(e)
	case event.Graduation:
		idx.recordBondingCurve(e.BondingCurve, e.Mint)
		idx.recordPool(e.Pool, e.Mint)
		h.HandleGraduation(e)
	case event.PoolCreated:
		idx.recordPool(e.Pool, e.Mint)
		h.HandlePoolCreated(e)
	}
}

// mintIndex maps the bonding-curve and AMM-pool addresses observed in
// parsed transactions back to their mint, so an account-level reserve
// update (which carries only an address) can be attributed to a mint in
// the pool cache.
type mintIndex struct {
	mu    sync.RWMutex
	bcMint   map[string]string
	poolMint map[string]string
}

func newMintIndex() *mintIndex {
	return &mintIndex{bcMint: make(map[string]string), poolMint: make(map[string]string)}
}

func (m *mintIndex) recordBondingCurve(address, mint string) {
	if address == "" || mint == "" {
		return
	}
	m.mu.Lock()
	m.bcMint[address] = mint
	m.mu.Unlock()
}

func (m *mintIndex) recordPool(address, mint string) {
	if address == "" || mint == "" {
		return
	}
	m.mu.Lock()
	m.poolMint[address] = mint
	m.mu.Unlock()
}

func (m *mintIndex) mintForBondingCurve(address string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mint, ok := m.bcMint[address]
	return mint, ok
}

func (m *mintIndex) mintForPool(address string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mint, ok := m.poolMint[address]
	return mint, ok
}

// handleAccountUpdate keeps the pool cache current from raw account
// notifications, for reserve changes that land outside any instruction
// this pipeline's parser strategies recognise (e.g. a bonding-curve buy
// routed through an aggregator program). AMM pool account updates only
// carry vault addresses, not balances (the RPC recovery tier reads those
// vaults during stale-token recovery), so for AMM pools this path only
// records the pool→mint mapping; reserves are cached for the bonding-curve
// case, which stores them inline.
func handleAccountUpdate(pool *poolcache.Cache, store *persistence.Store, idx *mintIndex, au *stream.AccountUpdate) {
	if au == nil {
		return
	}

	switch au.Owner {
	case constants.PumpProgramID.String():
		mint, ok := idx.mintForBondingCurve(au.Pubkey)
		if !ok {
			return
		}
		acc, err := layouts.DecodeBondingCurveAccount(au.Data)
		if err != nil {
			return
		}
		if !pool.Update(poolcache.Reserves{
			Mint:                 mint,
			Pool:                 au.Pubkey,
			VirtualSolReserves:   acc.VirtualSolReserves,
			VirtualTokenReserves: acc.VirtualTokenReserves,
			RealSolReserves:      acc.RealSolReserves,
			RealTokenReserves:    acc.RealTokenReserves,
			Slot:                 au.Slot,
		}) {
			return
		}
		store.Enqueue(persistence.KindBCState, persistence.PoolStateRow{
			PoolAddress:          au.Pubkey,
			Slot:                 au.Slot,
			Mint:                 mint,
			VirtualSolReserves:   acc.VirtualSolReserves,
			VirtualTokenReserves: acc.VirtualTokenReserves,
			RealSolReserves:      acc.RealSolReserves,
			RealTokenReserves:    acc.RealTokenReserves,
			PoolOpen:             !acc.Complete,
		})
	case constants.PumpAmmProgramID.String():
		if _, ok := idx.mintForPool(au.Pubkey); ok {
			return
		}
		acc, err := layouts.DecodeAMMPoolAccount(au.Data)
		if err != nil {
			return
		}
		mint := acc.BaseMint.String()
		if mint == constants.WSOLMint.String() {
			mint = acc.QuoteMint.String()
		}
		idx.recordPool(au.Pubkey, mint)
	}
}
