package sources

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/dgraph-io/ristretto"
	"go.uber.org/zap"

	"token-screener/internal/domain"
	"token-screener/internal/logging"
	"token-screener/internal/observability"
	"token-screener/internal/solana"
)

const solanaChain = "solana"

// HolderStats is the holder concentration of a mint in percent of supply.
type HolderStats struct {
	Top10Pct     float64
	SingleMaxPct float64
}

// HolderEnricherOptions configures HolderEnricher.
type HolderEnricherOptions struct {
	CacheTTL      time.Duration // default 1h
	LookupTimeout time.Duration // default 10s
	Logger        *zap.Logger
}

// HolderEnricher fills holder concentration signals for Solana mints.
type HolderEnricher struct {
	rpc     solana.TokenRPC
	cache   *ristretto.Cache
	ttl     time.Duration
	timeout time.Duration
	logger  *zap.Logger
}

// NewHolderEnricher creates an enricher backed by rpc with a TTL cache keyed by mint.
func NewHolderEnricher(rpc solana.TokenRPC, opts HolderEnricherOptions) (*HolderEnricher, error) {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = time.Hour
	}
	if opts.LookupTimeout <= 0 {
		opts.LookupTimeout = 10 * time.Second
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 100_000,
		MaxCost:     10_000, // one unit per mint
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create holder cache: %w", err)
	}

	return &HolderEnricher{
		rpc:     rpc,
		cache:   cache,
		ttl:     opts.CacheTTL,
		timeout: opts.LookupTimeout,
		logger:  logging.OrNop(opts.Logger).Named("holders"),
	}, nil
}

// Close releases the cache.
func (h *HolderEnricher) Close() {
	h.cache.Close()
}

// Enrich returns a copy of r with holder signals filled when r is a Solana mint
// the record does not already describe. Lookup failures leave the signals unknown.
func (h *HolderEnricher) Enrich(ctx context.Context, r *domain.CandidateRecord) *domain.CandidateRecord {
	if r.ChainName() != solanaChain || r.Identifier == nil || !solana.IsValidAddress(*r.Identifier) {
		observability.RecordHolderLookup("skipped")
		return r
	}
	if r.Signals.Top10HolderPct != nil && r.Signals.SingleHolderMaxPct != nil {
		return r
	}

	stats, err := h.Lookup(ctx, *r.Identifier)
	if err != nil {
		h.logger.Debug("holder lookup failed",
			zap.String("mint", *r.Identifier),
			zap.Error(err),
		)
		return r
	}

	out := r.Clone()
	out.Signals.Top10HolderPct = ptr(stats.Top10Pct)
	out.Signals.SingleHolderMaxPct = ptr(stats.SingleMaxPct)
	return out
}

// Lookup returns holder stats for mint, served from cache when fresh.
func (h *HolderEnricher) Lookup(ctx context.Context, mint string) (HolderStats, error) {
	if v, ok := h.cache.Get(mint); ok {
		observability.RecordHolderLookup("hit")
		return v.(HolderStats), nil
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	stats, err := h.fetch(ctx, mint)
	if err != nil {
		observability.RecordHolderLookup("error")
		return HolderStats{}, err
	}
	observability.RecordHolderLookup("miss")

	h.cache.SetWithTTL(mint, stats, 1, h.ttl)
	return stats, nil
}

func (h *HolderEnricher) fetch(ctx context.Context, mint string) (HolderStats, error) {
	supply, err := h.rpc.GetTokenSupply(ctx, mint)
	if err != nil {
		return HolderStats{}, fmt.Errorf("token supply: %w", err)
	}
	total, err := strconv.ParseFloat(supply.Amount, 64)
	if err != nil || total <= 0 {
		return HolderStats{}, fmt.Errorf("token supply %q unusable", supply.Amount)
	}

	accounts, err := h.rpc.GetTokenLargestAccounts(ctx, mint)
	if err != nil {
		return HolderStats{}, fmt.Errorf("largest accounts: %w", err)
	}

	return computeHolderStats(accounts, total), nil
}

// computeHolderStats sums the ten largest balances. RPC returns accounts sorted
// by balance descending, but the maximum is computed explicitly.
func computeHolderStats(accounts []solana.TokenAccountBalance, total float64) HolderStats {
	var top10, single float64
	for i, a := range accounts {
		amount, err := strconv.ParseFloat(a.Amount, 64)
		if err != nil {
			continue
		}
		if i < 10 {
			top10 += amount
		}
		if amount > single {
			single = amount
		}
	}
	return HolderStats{
		Top10Pct:     min(100, top10/total*100),
		SingleMaxPct: min(100, single/total*100),
	}
}

// enrichedAdapter decorates an adapter with holder enrichment.
type enrichedAdapter struct {
	Adapter
	enricher *HolderEnricher
}

// WithHolderStats wraps a so that every returned Solana record carries holder signals.
func WithHolderStats(a Adapter, e *HolderEnricher) Adapter {
	if e == nil {
		return a
	}
	return &enrichedAdapter{Adapter: a, enricher: e}
}

// FetchPage fetches from the wrapped adapter and enriches the records.
func (a *enrichedAdapter) FetchPage(ctx context.Context, cursor string, pageSize int) (Page, error) {
	page, err := a.Adapter.FetchPage(ctx, cursor, pageSize)
	if err != nil {
		return page, err
	}
	for i, r := range page.Records {
		page.Records[i] = a.enricher.Enrich(ctx, r)
	}
	return page, nil
}
