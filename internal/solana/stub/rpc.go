package stub

import (
	"context"
	"errors"
	"sync/atomic"

	"token-screener/internal/solana"
)

// ErrNotFound is returned when a mint is not known to the stub.
var ErrNotFound = errors.New("not found")

// RPCClient implements solana.TokenRPC for testing.
type RPCClient struct {
	Largest map[string][]solana.TokenAccountBalance
	Supply  map[string]*solana.TokenAmount
	Err     error // returned by every call when set

	calls atomic.Int64
}

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Largest: make(map[string][]solana.TokenAccountBalance),
		Supply:  make(map[string]*solana.TokenAmount),
	}
}

// Compile-time interface check.
var _ solana.TokenRPC = (*RPCClient)(nil)

// GetTokenLargestAccounts returns the configured accounts for mint.
func (c *RPCClient) GetTokenLargestAccounts(_ context.Context, mint string) ([]solana.TokenAccountBalance, error) {
	c.calls.Add(1)
	if c.Err != nil {
		return nil, c.Err
	}
	accounts, ok := c.Largest[mint]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]solana.TokenAccountBalance(nil), accounts...), nil
}

// GetTokenSupply returns the configured supply for mint.
func (c *RPCClient) GetTokenSupply(_ context.Context, mint string) (*solana.TokenAmount, error) {
	c.calls.Add(1)
	if c.Err != nil {
		return nil, c.Err
	}
	supply, ok := c.Supply[mint]
	if !ok {
		return nil, ErrNotFound
	}
	s := *supply
	return &s, nil
}

// Calls returns the number of RPC calls served.
func (c *RPCClient) Calls() int64 {
	return c.calls.Load()
}
