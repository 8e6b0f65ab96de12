package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"token-screener/internal/domain"
)

var fixedNow = time.Date(2024, 5, 2, 0, 5, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

const coinGeckoPage = `[
  {"id":"dogerocket","symbol":"drkt","name":"DogeRocket","current_price":0.0012,
   "market_cap":15000000,"fully_diluted_valuation":null,"total_volume":600000,
   "price_change_percentage_24h":-3.5,"last_updated":"2024-05-01T13:00:00.000Z"},
  {"id":"plainchain","symbol":"pln","name":"PlainChain","current_price":null,
   "market_cap":null,"total_volume":null,"last_updated":""}
]`

func TestCoinGecko_FetchPage(t *testing.T) {
	var gotQuery map[string]string
	var gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/coins/markets" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotQuery = map[string]string{}
		for k := range r.URL.Query() {
			gotQuery[k] = r.URL.Query().Get(k)
		}
		gotKey = r.Header.Get("x-cg-pro-api-key")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(coinGeckoPage))
	}))
	defer server.Close()

	cg := NewCoinGecko(CoinGeckoOptions{BaseURL: server.URL, APIKey: "secret", Now: fixedClock})
	page, err := cg.FetchPage(context.Background(), "", 2)
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}

	if gotQuery["page"] != "1" || gotQuery["per_page"] != "2" || gotQuery["order"] != "volume_desc" {
		t.Errorf("unexpected query: %v", gotQuery)
	}
	if gotKey != "secret" {
		t.Errorf("expected api key header, got %q", gotKey)
	}
	if len(page.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(page.Records))
	}
	if page.Next != "2" {
		t.Errorf("full page should advance cursor, got %q", page.Next)
	}

	r := page.Records[0]
	if r.Source != domain.SourceCoinGecko || r.Symbol != "DRKT" || r.Key() != "dogerocket" {
		t.Errorf("unexpected record: %+v", r)
	}
	if want := time.Date(2024, 5, 1, 13, 0, 0, 0, time.UTC); !r.ObservedAt.Equal(want) {
		t.Errorf("observed_at = %v, want %v", r.ObservedAt, want)
	}
	if r.MarketCap == nil || *r.MarketCap != 15_000_000 {
		t.Errorf("unexpected market cap: %v", r.MarketCap)
	}
	if r.FDV != nil {
		t.Errorf("null fdv should stay unknown")
	}
	if r.Signals.TeamPublic != nil || r.Signals.Top10HolderPct != nil {
		t.Errorf("coingecko must not invent signals")
	}

	plain := page.Records[1]
	if plain.Price != nil || plain.Volume24h != nil {
		t.Errorf("absent metrics should stay nil: %+v", plain)
	}
	if !plain.ObservedAt.Equal(fixedNow) {
		t.Errorf("missing last_updated should fall back to fetch time, got %v", plain.ObservedAt)
	}
}

func TestCoinGecko_ShortPageEndsPaging(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") != "3" {
			t.Errorf("expected page 3, got %s", r.URL.Query().Get("page"))
		}
		w.Write([]byte(coinGeckoPage))
	}))
	defer server.Close()

	cg := NewCoinGecko(CoinGeckoOptions{BaseURL: server.URL, Now: fixedClock})
	page, err := cg.FetchPage(context.Background(), "3", 10)
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	if page.Next != "" {
		t.Errorf("short page should end paging, got next %q", page.Next)
	}
}

func TestCoinGecko_StatusClassification(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusBadGateway, true},
		{http.StatusServiceUnavailable, true},
		{http.StatusUnauthorized, false},
		{http.StatusNotFound, false},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"error":"nope"}`))
			}))
			defer server.Close()

			cg := NewCoinGecko(CoinGeckoOptions{BaseURL: server.URL})
			_, err := cg.FetchPage(context.Background(), "", 0)
			if err == nil {
				t.Fatal("expected error")
			}
			if IsRetryable(err) != tt.retryable {
				t.Errorf("IsRetryable = %v, want %v (%v)", IsRetryable(err), tt.retryable, err)
			}
		})
	}
}

func TestCoinGecko_MalformedPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"not":"an array"`))
	}))
	defer server.Close()

	_, err := NewCoinGecko(CoinGeckoOptions{BaseURL: server.URL}).FetchPage(context.Background(), "", 0)
	if err == nil {
		t.Fatal("expected decode error")
	}
	if IsRetryable(err) {
		t.Error("decode errors are terminal")
	}
}

func TestCoinGecko_CancelledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewCoinGecko(CoinGeckoOptions{BaseURL: server.URL}).FetchPage(ctx, "", 0)
	if err == nil {
		t.Fatal("expected error")
	}
	if IsRetryable(err) {
		t.Error("cancellation must not be retried")
	}
}

func TestCoinGecko_DefaultHosts(t *testing.T) {
	if got := NewCoinGecko(CoinGeckoOptions{}).Spec().BaseURL; got != coinGeckoPublicURL {
		t.Errorf("public host = %s", got)
	}
	if got := NewCoinGecko(CoinGeckoOptions{APIKey: "k"}).Spec().BaseURL; got != coinGeckoProURL {
		t.Errorf("pro host = %s", got)
	}
}

func TestClampPageSize(t *testing.T) {
	spec := AdapterSpec{DefaultPageSize: 100, MaxPageSize: 250}
	if got := ClampPageSize(spec, 0); got != 100 {
		t.Errorf("default = %d", got)
	}
	if got := ClampPageSize(spec, 1000); got != 250 {
		t.Errorf("clamped = %d", got)
	}
	if got := ClampPageSize(spec, 7); got != 7 {
		t.Errorf("passthrough = %d", got)
	}
}
