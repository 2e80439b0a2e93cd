// Package layouts hand-decodes the raw instruction/account data byte
// layouts emitted by the bonding-curve and AMM programs, using
// gagliardetto/binary the way the rest of the Solana tooling in this space
// does, rather than generating a full Anchor IDL client for a read-only
// pipeline that never builds instructions of its own.
package layouts

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// BCTradeShort is the short bonding-curve trade instruction-data layout:
// an 8-byte discriminator followed by mint, sol amount, token amount, and
// user. No reserve fields; the bonding-curve PDA is derived from the mint
// rather than carried in the payload.
type BCTradeShort struct {
	Discriminator [8]byte
	Mint          solana.PublicKey
	SolAmount     uint64
	TokenAmount   uint64
	User          solana.PublicKey
}

// BCTradeLong is the long layout: BCTradeShort plus the bonding-curve key
// and post-trade virtual SOL/token reserves.
type BCTradeLong struct {
	BCTradeShort
	BondingCurve         solana.PublicKey
	VirtualSolReserves   uint64
	VirtualTokenReserves uint64
}

// Minimum payload lengths the two observed trade instruction encodings use.
// The short encoding omits post-trade reserves; the long one appends them.
// These thresholds are empirical (upstream program versions), not derived
// from the struct field sizes above, which model only the documented
// fields.
const (
	bcTradeShortLen = 113
	bcTradeLongMin  = 225
)

// DecodeBCTrade decodes a bonding-curve trade instruction payload. short
// carries HasReserves=false, long carries HasReserves=true; shorter or
// malformed payloads return an error so the caller falls back to
// log-scraping.
func DecodeBCTrade(data []byte) (short BCTradeShort, hasReserves bool, long BCTradeLong, err error) {
	if len(data) < bcTradeShortLen {
		return BCTradeShort{}, false, BCTradeLong{}, fmt.Errorf("layouts: bc trade payload too short: %d bytes", len(data))
	}

	decoder := bin.NewBinDecoder(data)
	if err := decoder.Decode(&short); err != nil {
		return BCTradeShort{}, false, BCTradeLong{}, fmt.Errorf("layouts: decode bc trade short: %w", err)
	}

	if len(data) >= bcTradeLongMin {
		longDecoder := bin.NewBinDecoder(data)
		var l BCTradeLong
		if err := longDecoder.Decode(&l); err == nil {
			return short, true, l, nil
		}
	}

	return short, false, BCTradeLong{}, nil
}

// BondingCurveAccount is the on-chain bonding-curve account layout read from
// stream account updates and by the RPC recovery adapter.
type BondingCurveAccount struct {
	Discriminator          [8]byte
	VirtualTokenReserves   uint64
	VirtualSolReserves     uint64
	RealTokenReserves      uint64
	RealSolReserves        uint64
	TokenTotalSupply       uint64
	Complete               bool
	Creator                solana.PublicKey
}

// DecodeBondingCurveAccount decodes raw account data fetched via RPC.
func DecodeBondingCurveAccount(data []byte) (BondingCurveAccount, error) {
	var acc BondingCurveAccount
	decoder := bin.NewBinDecoder(data)
	if err := decoder.Decode(&acc); err != nil {
		return BondingCurveAccount{}, fmt.Errorf("layouts: decode bonding curve account: %w", err)
	}
	return acc, nil
}

// AMMPoolAccount is the on-chain AMM pool account layout: base/quote vault
// addresses and the mint, used to resolve a pool's reserves by reading its
// vault token-account balances.
type AMMPoolAccount struct {
	Discriminator  [8]byte
	PoolBump       uint8
	Index          uint16
	Creator        solana.PublicKey
	BaseMint       solana.PublicKey
	QuoteMint      solana.PublicKey
	LPMint         solana.PublicKey
	PoolBaseVault  solana.PublicKey
	PoolQuoteVault solana.PublicKey
}

// DecodeAMMPoolAccount decodes raw AMM pool account data.
func DecodeAMMPoolAccount(data []byte) (AMMPoolAccount, error) {
	var acc AMMPoolAccount
	decoder := bin.NewBinDecoder(data)
	if err := decoder.Decode(&acc); err != nil {
		return AMMPoolAccount{}, fmt.Errorf("layouts: decode amm pool account: %w", err)
	}
	return acc, nil
}

// HasDiscriminator reports whether data begins with the given 8-byte
// Anchor account/instruction discriminator.
func HasDiscriminator(data []byte, disc [8]byte) bool {
	if len(data) < 8 {
		return false
	}
	return bytes.Equal(data[:8], disc[:])
}
