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
	coinGeckoPublicURL = "https://api.coingecko.com/api/v3"
	coinGeckoProURL    = "https://pro-api.coingecko.com/api/v3"
	coinGeckoMaxPage   = 250
)

// CoinGeckoOptions configures the CoinGecko adapter.
type CoinGeckoOptions struct {
	BaseURL string // defaults to the public or Pro host depending on APIKey
	APIKey  string // sent as x-cg-pro-api-key
	Timeout time.Duration
	Now     func() time.Time
}

// CoinGecko pages through /coins/markets ordered by 24h volume.
// Only market metrics are exposed; qualitative signals stay unknown.
type CoinGecko struct {
	client  *resty.Client
	baseURL string
	now     func() time.Time
}

// NewCoinGecko creates a CoinGecko adapter.
func NewCoinGecko(opts CoinGeckoOptions) *CoinGecko {
	if opts.BaseURL == "" {
		opts.BaseURL = coinGeckoPublicURL
		if opts.APIKey != "" {
			opts.BaseURL = coinGeckoProURL
		}
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
	if opts.APIKey != "" {
		client.SetHeader("x-cg-pro-api-key", opts.APIKey)
	}

	return &CoinGecko{client: client, baseURL: opts.BaseURL, now: opts.Now}
}

// Compile-time interface check.
var _ Adapter = (*CoinGecko)(nil)

// Spec returns the adapter's paging limits.
func (c *CoinGecko) Spec() AdapterSpec {
	return AdapterSpec{
		Source:          domain.SourceCoinGecko,
		DefaultPageSize: coinGeckoMaxPage,
		MaxPageSize:     coinGeckoMaxPage,
		BaseURL:         c.baseURL,
	}
}

type coinGeckoMarket struct {
	ID                       string   `json:"id"`
	Symbol                   string   `json:"symbol"`
	Name                     string   `json:"name"`
	CurrentPrice             *float64 `json:"current_price"`
	MarketCap                *float64 `json:"market_cap"`
	FullyDilutedValuation    *float64 `json:"fully_diluted_valuation"`
	TotalVolume              *float64 `json:"total_volume"`
	PriceChangePercentage24h *float64 `json:"price_change_percentage_24h"`
	LastUpdated              string   `json:"last_updated"`
}

// FetchPage fetches one page. The cursor is the 1-based page number; "" means 1.
func (c *CoinGecko) FetchPage(ctx context.Context, cursor string, pageSize int) (Page, error) {
	src := domain.SourceCoinGecko
	page := 1
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 1 {
			return Page{}, &FetchError{Source: src, Cursor: cursor, Err: fmt.Errorf("invalid cursor")}
		}
		page = n
	}
	pageSize = ClampPageSize(c.Spec(), pageSize)

	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"vs_currency":             "usd",
			"order":                   "volume_desc",
			"per_page":                strconv.Itoa(pageSize),
			"page":                    strconv.Itoa(page),
			"sparkline":               "false",
			"price_change_percentage": "24h",
		}).
		Get("/coins/markets")
	if err != nil {
		return Page{}, transportError(ctx, src, cursor, err)
	}
	if resp.IsError() {
		return Page{}, statusError(src, cursor, resp.StatusCode(), resp.Body())
	}

	var markets []coinGeckoMarket
	if err := json.Unmarshal(resp.Body(), &markets); err != nil {
		return Page{}, decodeError(src, cursor, err)
	}

	fetchedAt := c.now().UTC()
	records := make([]*domain.CandidateRecord, 0, len(markets))
	for _, m := range markets {
		if m.ID == "" {
			continue
		}
		records = append(records, &domain.CandidateRecord{
			Source:            src,
			Symbol:            strings.ToUpper(m.Symbol),
			Name:              m.Name,
			Identifier:        ptr(m.ID),
			ObservedAt:        parseObservedAt(m.LastUpdated, fetchedAt),
			Price:             m.CurrentPrice,
			PriceChange24hPct: m.PriceChangePercentage24h,
			Volume24h:         m.TotalVolume,
			MarketCap:         m.MarketCap,
			FDV:               m.FullyDilutedValuation,
		})
	}

	next := ""
	if len(markets) >= pageSize {
		next = strconv.Itoa(page + 1)
	}
	return Page{Records: records, Next: next}, nil
}

func parseObservedAt(s string, fallback time.Time) time.Time {
	if s == "" {
		return fallback
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return fallback
	}
	return t.UTC()
}
