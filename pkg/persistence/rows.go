package persistence

import (
	"time"

	"github.com/shopspring/decimal"
)

// Kind classifies a queued row so the flusher can batch like with like and
// apply the right ON CONFLICT clause per spec.md §4.6.
type Kind string

const (
	KindBCState       Kind = "bc_state"
	KindBCTrade       Kind = "bc_trade"
	KindAMMSwap       Kind = "amm_swap"
	KindTokenUpsert   Kind = "token_upsert"
	KindPriceSnapshot Kind = "price_snapshot"
	KindLiquidity     Kind = "liquidity"
	KindFee           Kind = "fee"
)

// TradeRow is a row destined for the trades table (bc_trade or amm_swap
// kind share this shape; program distinguishes them).
type TradeRow struct {
	Signature            string
	Mint                 string
	Program              string
	Side                 string
	User                 string
	SolAmount            uint64
	TokenAmount          uint64
	PriceSOL             decimal.Decimal
	PriceUSD             decimal.Decimal
	MarketCapUSD         decimal.Decimal
	VirtualSolReserves   uint64
	VirtualTokenReserves uint64
	BondingCurveProgress float64
	PriceImpactPct       *float64
	SlippagePct          *float64
	SpotPrice            *decimal.Decimal
	ExecutionPrice       *decimal.Decimal
	Slot                 uint64
	BlockTime            time.Time
}

// TokenUpsertRow is a row destined for the tokens table, applied with
// ON CONFLICT (mint) DO UPDATE.
type TokenUpsertRow struct {
	Mint                 string
	Symbol               string
	Name                 string
	URI                  string
	Program              string
	FirstSeenSlot        uint64
	FirstSeenAt          time.Time
	PriceSOL             decimal.Decimal
	PriceUSD             decimal.Decimal
	MarketCapUSD         decimal.Decimal
	BondingCurveProgress float64
	BondingCurveComplete bool
	Graduated            bool
	GraduationSlot       uint64
	GraduationSignature  string
	Creator              string
	Decimals             uint8
	TotalSupply          uint64
	LastTradeAt          time.Time
	LastPriceUpdateAt    time.Time
	PriceSource          string
}

// PriceSnapshotRow is a row destined for the price_snapshots append-only
// time series — one point per priced trade, kept alongside the tokens
// table's latest-only row so a mint's price history can be charted.
type PriceSnapshotRow struct {
	Mint         string
	Slot         uint64
	Program      string
	PriceSOL     decimal.Decimal
	PriceUSD     decimal.Decimal
	MarketCapUSD decimal.Decimal
}

// PoolStateRow is a row destined for the pool_states append-only history.
type PoolStateRow struct {
	PoolAddress          string
	Slot                 uint64
	Mint                 string
	VirtualSolReserves   uint64
	VirtualTokenReserves uint64
	RealSolReserves      uint64
	RealTokenReserves    uint64
	PoolOpen             bool
}

// LiquidityRow is a row destined for liquidity_events.
type LiquidityRow struct {
	Signature          string
	EventType          string // "deposit" | "withdraw"
	Pool               string
	User               string
	LPAmount           uint64
	SolAmount          uint64
	TokenAmount        uint64
	SolReservesAfter   uint64
	TokenReservesAfter uint64
	ValueUSD           decimal.Decimal
}

// FeeRow is a row destined for fee_events.
type FeeRow struct {
	Signature        string
	EventType        string // "creator_fee" | "protocol_fee"
	Pool             string
	Recipient        string
	SolFeeAmount     uint64
	TokenFeeAmount   uint64
	SolReservesAfter uint64
}

// queueItem wraps a row with its kind for uniform queueing.
type queueItem struct {
	kind Kind
	row  any
}
