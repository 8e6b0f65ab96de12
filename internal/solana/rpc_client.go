package solana

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
)

// Defaults for NewHTTPClient.
const (
	DefaultTimeout    = 10 * time.Second
	DefaultMaxRetries = 3
	DefaultRetryDelay = 500 * time.Millisecond
	DefaultMaxDelay   = 5 * time.Second
)

// ErrRateLimited is returned when the endpoint still answers 429 after all retries.
var ErrRateLimited = errors.New("rate limited (429)")

type clientConfig struct {
	timeout    time.Duration
	maxRetries int
	retryDelay time.Duration
	maxDelay   time.Duration
	httpClient *http.Client
}

// ClientOption configures HTTPClient.
type ClientOption func(*clientConfig)

// WithTimeout sets the per-attempt HTTP timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *clientConfig) { c.timeout = d }
}

// WithMaxRetries sets how many times a 429, 5xx or transport failure is retried.
func WithMaxRetries(n int) ClientOption {
	return func(c *clientConfig) { c.maxRetries = n }
}

// WithRetryDelay sets the initial backoff.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *clientConfig) { c.retryDelay = d }
}

// WithMaxDelay caps the backoff.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *clientConfig) { c.maxDelay = d }
}

// WithHTTPClient sets the underlying http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *clientConfig) { c.httpClient = client }
}

// HTTPClient implements TokenRPC over JSON-RPC 2.0.
type HTTPClient struct {
	client    *resty.Client
	endpoint  string
	requestID atomic.Uint64
}

// Compile-time interface check.
var _ TokenRPC = (*HTTPClient)(nil)

// NewHTTPClient creates a Solana RPC client for endpoint.
func NewHTTPClient(endpoint string, opts ...ClientOption) *HTTPClient {
	cfg := clientConfig{
		timeout:    DefaultTimeout,
		maxRetries: DefaultMaxRetries,
		retryDelay: DefaultRetryDelay,
		maxDelay:   DefaultMaxDelay,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	client := resty.New()
	if cfg.httpClient != nil {
		client = resty.NewWithClient(cfg.httpClient)
	}
	client.
		SetTimeout(cfg.timeout).
		SetHeader("Content-Type", "application/json").
		SetRetryCount(cfg.maxRetries).
		SetRetryWaitTime(cfg.retryDelay).
		SetRetryMaxWaitTime(cfg.maxDelay).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			code := resp.StatusCode()
			return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
		})

	return &HTTPClient{client: client, endpoint: endpoint}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// call posts one request. JSON-RPC level errors are returned as *rpcError
// and never retried.
func (c *HTTPClient) call(ctx context.Context, method string, params []any, result any) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(rpcRequest{JSONRPC: "2.0", ID: c.requestID.Add(1), Method: method, Params: params}).
		Post(c.endpoint)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}

	switch code := resp.StatusCode(); {
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("%s: max retries exceeded: %w", method, ErrRateLimited)
	case code != http.StatusOK:
		return fmt.Errorf("%s: unexpected status %d: %s", method, code, resp.String())
	}

	var body rpcResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return fmt.Errorf("%s: decode response: %w", method, err)
	}
	if body.Error != nil {
		return body.Error
	}
	if result != nil && body.Result != nil {
		if err := json.Unmarshal(body.Result, result); err != nil {
			return fmt.Errorf("%s: decode result: %w", method, err)
		}
	}
	return nil
}

type uiTokenAmount struct {
	Amount         string `json:"amount"`
	Decimals       int    `json:"decimals"`
	UIAmountString string `json:"uiAmountString"`
}

func (a uiTokenAmount) toDomain() TokenAmount {
	return TokenAmount{Amount: a.Amount, Decimals: a.Decimals, UIAmountString: a.UIAmountString}
}

var confirmed = map[string]any{"commitment": "confirmed"}

// GetTokenLargestAccounts returns up to 20 of the mint's largest token accounts.
func (c *HTTPClient) GetTokenLargestAccounts(ctx context.Context, mint string) ([]TokenAccountBalance, error) {
	var result struct {
		Value []struct {
			Address string `json:"address"`
			uiTokenAmount
		} `json:"value"`
	}
	if err := c.call(ctx, "getTokenLargestAccounts", []any{mint, confirmed}, &result); err != nil {
		return nil, err
	}

	accounts := make([]TokenAccountBalance, len(result.Value))
	for i, v := range result.Value {
		accounts[i] = TokenAccountBalance{Address: v.Address, TokenAmount: v.toDomain()}
	}
	return accounts, nil
}

// GetTokenSupply returns the mint's total supply.
func (c *HTTPClient) GetTokenSupply(ctx context.Context, mint string) (*TokenAmount, error) {
	var result struct {
		Value *uiTokenAmount `json:"value"`
	}
	if err := c.call(ctx, "getTokenSupply", []any{mint, confirmed}, &result); err != nil {
		return nil, err
	}
	if result.Value == nil {
		return nil, fmt.Errorf("getTokenSupply %s: empty result", mint)
	}

	amount := result.Value.toDomain()
	return &amount, nil
}
