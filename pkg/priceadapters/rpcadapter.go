package priceadapters

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"

	"github.com/pumpstream/ingest/internal/layouts"
	"github.com/pumpstream/ingest/pkg/config"
	"github.com/pumpstream/ingest/pkg/constants"
	"github.com/pumpstream/ingest/pkg/priceengine"
	"github.com/pumpstream/ingest/pkg/recovery"
	"github.com/pumpstream/ingest/pkg/solanarpc"
	"github.com/pumpstream/ingest/pkg/types"
)

// RPCAdapter is the tier-3, last-resort recovery source: derive the
// bonding-curve PDA from the mint and read its account directly, the same
// lookup pkg/quote/quote.go's fetchBondingCurve performs to simulate a
// trade, here used to reconstruct a stale token's price instead.
type RPCAdapter struct {
	rpc   *solanarpc.Client
	rates SolUSDSource
	cfg   config.PriceConfig
	log   zerolog.Logger
}

// NewRPCAdapter builds the tier-3 adapter.
func NewRPCAdapter(rpc *solanarpc.Client, rates SolUSDSource, cfg config.PriceConfig, log zerolog.Logger) *RPCAdapter {
	return &RPCAdapter{rpc: rpc, rates: rates, cfg: cfg, log: log}
}

func (a *RPCAdapter) Name() string { return "rpc" }

func (a *RPCAdapter) Resolve(ctx context.Context, mint string) (recovery.RecoveryResult, error) {
	mintKey, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return recovery.RecoveryResult{}, fmt.Errorf("priceadapters: invalid mint %q: %w", mint, err)
	}
	if err := types.ValidatePublicKey("mint", mintKey); err != nil {
		return recovery.RecoveryResult{}, fmt.Errorf("priceadapters: %w", err)
	}

	bcAddr, _, err := solana.FindProgramAddress(
		[][]byte{[]byte(constants.SeedBondingCurve), mintKey.Bytes()},
		constants.PumpProgramID,
	)
	if err != nil {
		return recovery.RecoveryResult{}, fmt.Errorf("priceadapters: derive bonding curve pda: %w", err)
	}

	info, err := a.rpc.GetAccountInfo(ctx, bcAddr)
	if err != nil || info == nil || info.Value == nil || info.Value.Data == nil {
		return a.resolveViaAMMPool(ctx, mintKey)
	}

	bc, err := layouts.DecodeBondingCurveAccount(info.Value.Data.GetBinary())
	if err != nil {
		return recovery.RecoveryResult{}, fmt.Errorf("priceadapters: decode bonding curve: %w", err)
	}
	if bc.Complete {
		return a.resolveViaAMMPool(ctx, mintKey)
	}

	price := priceengine.PriceFromReserves(bc.VirtualSolReserves, bc.VirtualTokenReserves, a.rates.SolUSD(), a.cfg)
	if !price.Valid {
		return recovery.RecoveryResult{}, ErrNoPrice
	}
	priceSOL, _ := price.PriceSOL.Float64()
	priceUSD, _ := price.PriceUSD.Float64()
	marketCap, _ := price.MarketCapUSD.Float64()
	return recovery.RecoveryResult{Mint: mint, PriceSOL: priceSOL, PriceUSD: priceUSD, MarketCap: marketCap, SourceTag: a.Name()}, nil
}

// resolveViaAMMPool handles graduated tokens: the bonding curve is closed
// or missing, so price comes from the AMM pool's vault balances instead.
func (a *RPCAdapter) resolveViaAMMPool(ctx context.Context, mint solana.PublicKey) (recovery.RecoveryResult, error) {
	poolAddr, _, err := solana.FindProgramAddress(
		[][]byte{[]byte(constants.SeedGlobal), mint.Bytes(), constants.WSOLMint.Bytes()},
		constants.PumpAmmProgramID,
	)
	if err != nil {
		return recovery.RecoveryResult{}, fmt.Errorf("priceadapters: derive amm pool pda: %w", err)
	}

	info, err := a.rpc.GetAccountInfo(ctx, poolAddr)
	if err != nil || info == nil || info.Value == nil || info.Value.Data == nil {
		return recovery.RecoveryResult{}, ErrNoPrice
	}

	pool, err := layouts.DecodeAMMPoolAccount(info.Value.Data.GetBinary())
	if err != nil {
		return recovery.RecoveryResult{}, fmt.Errorf("priceadapters: decode amm pool: %w", err)
	}

	balances, err := a.rpc.GetMultipleAccounts(ctx, pool.PoolBaseVault, pool.PoolQuoteVault)
	if err != nil || balances == nil || len(balances.Value) != 2 {
		return recovery.RecoveryResult{}, fmt.Errorf("priceadapters: read amm vaults: %w", ErrNoPrice)
	}

	baseReserves, quoteReserves, err := decodeVaultBalances(balances.Value[0].Data.GetBinary(), balances.Value[1].Data.GetBinary())
	if err != nil {
		return recovery.RecoveryResult{}, err
	}

	price := priceengine.PriceFromReserves(quoteReserves, baseReserves, a.rates.SolUSD(), a.cfg)
	if !price.Valid {
		return recovery.RecoveryResult{}, ErrNoPrice
	}
	priceSOL, _ := price.PriceSOL.Float64()
	priceUSD, _ := price.PriceUSD.Float64()
	marketCap, _ := price.MarketCapUSD.Float64()
	return recovery.RecoveryResult{Mint: mint.String(), PriceSOL: priceSOL, PriceUSD: priceUSD, MarketCap: marketCap, SourceTag: a.Name()}, nil
}

// decodeVaultBalances reads the SPL token-account Amount field (u64 at
// byte offset 64) out of raw vault account data, the same field
// pkg/quote/quote.go's bin.Decode(&acc) extracts via the full token.Account
// layout; only the amount is needed here.
func decodeVaultBalances(baseData, quoteData []byte) (base, quote uint64, err error) {
	base, err = tokenAccountAmount(baseData)
	if err != nil {
		return 0, 0, err
	}
	quote, err = tokenAccountAmount(quoteData)
	if err != nil {
		return 0, 0, err
	}
	return base, quote, nil
}

func tokenAccountAmount(data []byte) (uint64, error) {
	const amountOffset = 64
	if len(data) < amountOffset+8 {
		return 0, fmt.Errorf("priceadapters: token account data too short: %d bytes", len(data))
	}
	var amount uint64
	for i := 0; i < 8; i++ {
		amount |= uint64(data[amountOffset+i]) << (8 * i)
	}
	return amount, nil
}
