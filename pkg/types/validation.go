package types

import (
	"github.com/gagliardetto/solana-go"
)

// ValidateReserves validates a reserve pair used in price-engine math.
func ValidateReserves(solReserves, tokenReserves uint64) error {
	if solReserves == 0 {
		return NewValidationError("solReserves", "must be greater than 0")
	}
	if tokenReserves == 0 {
		return NewValidationError("tokenReserves", "must be greater than 0")
	}
	return nil
}

// ValidateSlippage validates slippage basis points.
func ValidateSlippage(slippageBps uint64) error {
	if slippageBps > 10000 {
		return NewValidationError("slippageBps", "must be <= 10000 (100%)")
	}
	return nil
}

// ValidatePublicKey validates a public key is not zero.
func ValidatePublicKey(name string, key solana.PublicKey) error {
	if key.IsZero() {
		return NewValidationError(name, "cannot be zero")
	}
	return nil
}

// ValidatePublicKeys validates multiple public keys.
func ValidatePublicKeys(keys map[string]solana.PublicKey) error {
	for name, key := range keys {
		if err := ValidatePublicKey(name, key); err != nil {
			return err
		}
	}
	return nil
}

// ValidateMintString validates a base58 mint address by length, matching the
// 32-44 char bound documented for the on-chain key encoding.
func ValidateMintString(mint string) error {
	if len(mint) < 32 || len(mint) > 44 {
		return NewValidationError("mint", "must be a 32-44 char base58 address")
	}
	return nil
}

// ValidateSignature validates a transaction signature string used as the
// idempotency key for trades, swaps, and fee events.
func ValidateSignature(sig string) error {
	if sig == "" {
		return NewValidationError("signature", "cannot be empty")
	}
	if len(sig) > 128 {
		return NewValidationError("signature", "exceeds 128 chars")
	}
	return nil
}
