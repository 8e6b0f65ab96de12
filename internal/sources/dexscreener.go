package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"token-screener/internal/domain"
)

const (
	dexScreenerURL     = "https://api.dexscreener.com"
	dexScreenerMaxPage = 30 // the search endpoint returns at most 30 pairs
)

// DexScreenerOptions configures the DexScreener adapter.
type DexScreenerOptions struct {
	BaseURL string
	Queries []string // search terms, one page per term; defaults to "trending"
	Timeout time.Duration
	Now     func() time.Time
}

// DexScreener searches trading pairs and reports their base tokens.
type DexScreener struct {
	client  *resty.Client
	baseURL string
	queries []string
	now     func() time.Time
}

// NewDexScreener creates a DexScreener adapter.
func NewDexScreener(opts DexScreenerOptions) *DexScreener {
	if opts.BaseURL == "" {
		opts.BaseURL = dexScreenerURL
	}
	if len(opts.Queries) == 0 {
		opts.Queries = []string{"trending"}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	client := resty.New().
		SetBaseURL(opts.BaseURL).
		SetTimeout(opts.Timeout).
		SetHeader("Accept", "application/json")

	return &DexScreener{
		client:  client,
		baseURL: opts.BaseURL,
		queries: append([]string(nil), opts.Queries...),
		now:     opts.Now,
	}
}

// Compile-time interface check.
var _ Adapter = (*DexScreener)(nil)

// Spec returns the adapter's paging limits.
func (d *DexScreener) Spec() AdapterSpec {
	return AdapterSpec{
		Source:          domain.SourceDexScreener,
		DefaultPageSize: dexScreenerMaxPage,
		MaxPageSize:     dexScreenerMaxPage,
		BaseURL:         d.baseURL,
	}
}

type dexSearchResponse struct {
	Pairs []dexPair `json:"pairs"`
}

type dexPair struct {
	ChainID     string `json:"chainId"`
	DexID       string `json:"dexId"`
	PairAddress string `json:"pairAddress"`
	BaseToken   struct {
		Address string `json:"address"`
		Name    string `json:"name"`
		Symbol  string `json:"symbol"`
	} `json:"baseToken"`
	PriceUSD    string `json:"priceUsd"`
	PriceChange struct {
		H24 *float64 `json:"h24"`
	} `json:"priceChange"`
	Volume struct {
		H24 *float64 `json:"h24"`
	} `json:"volume"`
	Liquidity *struct {
		USD *float64 `json:"usd"`
	} `json:"liquidity"`
	FDV           *float64 `json:"fdv"`
	MarketCap     *float64 `json:"marketCap"`
	PairCreatedAt *int64   `json:"pairCreatedAt"`
}

// FetchPage fetches the pairs of one search term. The cursor is the index of
// the term in Queries; terms with no results are skipped so that an empty page
// only ever means exhaustion.
func (d *DexScreener) FetchPage(ctx context.Context, cursor string, pageSize int) (Page, error) {
	src := domain.SourceDexScreener
	idx := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 0 {
			return Page{}, &FetchError{Source: src, Cursor: cursor, Err: fmt.Errorf("invalid cursor")}
		}
		idx = n
	}
	pageSize = ClampPageSize(d.Spec(), pageSize)

	for ; idx < len(d.queries); idx++ {
		cur := strconv.Itoa(idx)
		pairs, err := d.search(ctx, cur, d.queries[idx])
		if err != nil {
			return Page{}, err
		}
		if len(pairs) == 0 {
			continue
		}

		if len(pairs) > pageSize {
			pairs = pairs[:pageSize]
		}
		records := d.toRecords(pairs)

		next := ""
		if idx+1 < len(d.queries) {
			next = strconv.Itoa(idx + 1)
		}
		return Page{Records: records, Next: next}, nil
	}
	return Page{}, nil
}

func (d *DexScreener) search(ctx context.Context, cursor, query string) ([]dexPair, error) {
	src := domain.SourceDexScreener
	resp, err := d.client.R().
		SetContext(ctx).
		SetQueryParam("q", query).
		Get("/latest/dex/search")
	if err != nil {
		return nil, transportError(ctx, src, cursor, err)
	}
	if resp.IsError() {
		return nil, statusError(src, cursor, resp.StatusCode(), resp.Body())
	}

	var body dexSearchResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return nil, decodeError(src, cursor, err)
	}
	return body.Pairs, nil
}

func (d *DexScreener) toRecords(pairs []dexPair) []*domain.CandidateRecord {
	fetchedAt := d.now().UTC()
	records := make([]*domain.CandidateRecord, 0, len(pairs))
	for _, p := range pairs {
		if p.BaseToken.Address == "" {
			continue
		}

		r := &domain.CandidateRecord{
			Source:            domain.SourceDexScreener,
			Symbol:            strings.ToUpper(p.BaseToken.Symbol),
			Name:              p.BaseToken.Name,
			Identifier:        ptr(p.BaseToken.Address),
			ObservedAt:        fetchedAt,
			PriceChange24hPct: p.PriceChange.H24,
			Volume24h:         p.Volume.H24,
			MarketCap:         p.MarketCap,
			FDV:               p.FDV,
		}
		if p.ChainID != "" {
			r.Chain = ptr(strings.ToLower(p.ChainID))
		}
		if p.PairCreatedAt != nil && *p.PairCreatedAt > 0 {
			r.ObservedAt = time.UnixMilli(*p.PairCreatedAt).UTC()
		}
		if price, err := strconv.ParseFloat(p.PriceUSD, 64); err == nil {
			r.Price = ptr(price)
		}
		if p.Liquidity != nil {
			r.DexLiquidityUSD = p.Liquidity.USD
		}
		records = append(records, r)
	}
	return records
}
