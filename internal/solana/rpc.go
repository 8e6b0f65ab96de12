package solana

import (
	"context"

	"github.com/mr-tron/base58"
)

// TokenRPC defines the SPL token queries used for holder concentration.
type TokenRPC interface {
	// GetTokenLargestAccounts returns the largest token accounts of a mint (up to 20).
	GetTokenLargestAccounts(ctx context.Context, mint string) ([]TokenAccountBalance, error)

	// GetTokenSupply returns the total supply of a mint.
	GetTokenSupply(ctx context.Context, mint string) (*TokenAmount, error)
}

// TokenAmount is an SPL token amount as reported by RPC.
type TokenAmount struct {
	Amount         string // raw integer amount
	Decimals       int
	UIAmountString string // decimal-adjusted amount
}

// TokenAccountBalance is one entry of getTokenLargestAccounts.
type TokenAccountBalance struct {
	Address string
	TokenAmount
}

// IsValidAddress reports whether s decodes from base58 to a 32-byte public key.
func IsValidAddress(s string) bool {
	if s == "" || len(s) > 44 {
		return false
	}
	decoded, err := base58.Decode(s)
	if err != nil {
		return false
	}
	return len(decoded) == 32
}
