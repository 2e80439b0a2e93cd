// Package event defines the typed event variants the parser strategies
// produce, replacing the source's duck-typed field checks (e.g.
// "'lpTokenAmountOut' in event") with a sealed interface and tagged structs.
package event

import "time"

// Kind tags which concrete variant an Event carries.
type Kind string

const (
	KindBondingCurveTrade Kind = "bonding_curve_trade"
	KindAMMSwap           Kind = "amm_swap"
	KindLiquidityDeposit  Kind = "liquidity_deposit"
	KindLiquidityWithdraw Kind = "liquidity_withdraw"
	KindCreatorFee        Kind = "creator_fee"
	KindProtocolFee       Kind = "protocol_fee"
	KindGraduation        Kind = "graduation"
	KindPoolCreated       Kind = "pool_created"
)

// Side is a trade direction.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Event is implemented by every typed variant below; Kind lets consumers
// switch without a type assertion chain, and Signature/Slot/BlockTime give
// every variant a uniform identity and ordering key.
type Event interface {
	Kind() Kind
	Signature() string
	Slot() uint64
	BlockTime() time.Time
}

// common fields embedded (not exported as a type — each struct carries its
// own copies so instrument literals stay readable at parser call sites).

// BondingCurveTrade is a buy/sell against the bonding-curve virtual reserves.
type BondingCurveTrade struct {
	Sig             string
	SlotNum         uint64
	BlockTimeVal    time.Time
	Mint            string
	BondingCurve    string
	User            string
	TradeSide       Side
	SolAmount       uint64
	TokenAmount     uint64
	VirtualSolRes   uint64 // 0 when the 113-byte layout omitted reserves
	VirtualTokenRes uint64
	HasReserves     bool
}

func (e BondingCurveTrade) Kind() Kind           { return KindBondingCurveTrade }
func (e BondingCurveTrade) Signature() string    { return e.Sig }
func (e BondingCurveTrade) Slot() uint64         { return e.SlotNum }
func (e BondingCurveTrade) BlockTime() time.Time { return e.BlockTimeVal }

// AMMSwap is a trade against a graduated constant-product pool.
type AMMSwap struct {
	Sig          string
	SlotNum      uint64
	BlockTimeVal time.Time
	Pool         string
	Mint         string
	User         string
	TradeSide    Side
	InputMint    string
	OutputMint   string
	InAmount     uint64
	OutAmount    uint64
	PoolSolRes   uint64 // 0 when the transaction carried no ray-log balances
	PoolTokenRes uint64
	HasReserves  bool
}

func (e AMMSwap) Kind() Kind           { return KindAMMSwap }
func (e AMMSwap) Signature() string    { return e.Sig }
func (e AMMSwap) Slot() uint64         { return e.SlotNum }
func (e AMMSwap) BlockTime() time.Time { return e.BlockTimeVal }

// LiquidityDeposit is an LP-mint event.
type LiquidityDeposit struct {
	Sig             string
	SlotNum         uint64
	BlockTimeVal    time.Time
	Pool            string
	User            string
	LPTokenAmount   uint64
	SolAmount       uint64
	TokenAmount     uint64
	SolReservesAfter   uint64
	TokenReservesAfter uint64
}

func (e LiquidityDeposit) Kind() Kind           { return KindLiquidityDeposit }
func (e LiquidityDeposit) Signature() string    { return e.Sig }
func (e LiquidityDeposit) Slot() uint64         { return e.SlotNum }
func (e LiquidityDeposit) BlockTime() time.Time { return e.BlockTimeVal }

// LiquidityWithdraw is an LP-burn event.
type LiquidityWithdraw struct {
	Sig                string
	SlotNum            uint64
	BlockTimeVal       time.Time
	Pool               string
	User               string
	LPTokenAmount      uint64
	SolAmount          uint64
	TokenAmount        uint64
	SolReservesAfter   uint64
	TokenReservesAfter uint64
}

func (e LiquidityWithdraw) Kind() Kind           { return KindLiquidityWithdraw }
func (e LiquidityWithdraw) Signature() string    { return e.Sig }
func (e LiquidityWithdraw) Slot() uint64         { return e.SlotNum }
func (e LiquidityWithdraw) BlockTime() time.Time { return e.BlockTimeVal }

// CreatorFee is a fee payout to the token's creator.
type CreatorFee struct {
	Sig              string
	SlotNum          uint64
	BlockTimeVal     time.Time
	Pool             string
	Recipient        string
	SolFeeAmount     uint64
	TokenFeeAmount   uint64
	SolReservesAfter uint64
}

func (e CreatorFee) Kind() Kind           { return KindCreatorFee }
func (e CreatorFee) Signature() string    { return e.Sig }
func (e CreatorFee) Slot() uint64         { return e.SlotNum }
func (e CreatorFee) BlockTime() time.Time { return e.BlockTimeVal }

// ProtocolFee is a fee payout with no recipient (protocol treasury).
type ProtocolFee struct {
	Sig              string
	SlotNum          uint64
	BlockTimeVal     time.Time
	Pool             string
	SolFeeAmount     uint64
	TokenFeeAmount   uint64
	SolReservesAfter uint64
}

func (e ProtocolFee) Kind() Kind           { return KindProtocolFee }
func (e ProtocolFee) Signature() string    { return e.Sig }
func (e ProtocolFee) Slot() uint64         { return e.SlotNum }
func (e ProtocolFee) BlockTime() time.Time { return e.BlockTimeVal }

// Graduation marks a mint's one-way transition from bonding_curve to amm_pool.
type Graduation struct {
	Sig           string
	SlotNum       uint64
	BlockTimeVal  time.Time
	Mint          string
	BondingCurve  string
	Pool          string
}

func (e Graduation) Kind() Kind           { return KindGraduation }
func (e Graduation) Signature() string    { return e.Sig }
func (e Graduation) Slot() uint64         { return e.SlotNum }
func (e Graduation) BlockTime() time.Time { return e.BlockTimeVal }

// PoolCreated marks a new AMM pool coming into existence for a mint.
type PoolCreated struct {
	Sig          string
	SlotNum      uint64
	BlockTimeVal time.Time
	Mint         string
	Pool         string
	Creator      string
}

func (e PoolCreated) Kind() Kind           { return KindPoolCreated }
func (e PoolCreated) Signature() string    { return e.Sig }
func (e PoolCreated) Slot() uint64         { return e.SlotNum }
func (e PoolCreated) BlockTime() time.Time { return e.BlockTimeVal }

// ParseContext carries everything a strategy needs to decide whether it
// can parse a raw transaction and, if so, produce an Event.
type ParseContext struct {
	Signature       string
	Slot            uint64
	BlockTime       time.Time
	Accounts        []string // base58 account keys, in instruction order
	Logs            []string
	InstructionData []byte // nil when the instruction carried no data
	ProgramID       string
}
