package domain

import (
	"fmt"
	"strings"
	"time"
)

// EngagementQuality is an ordinal rating of community engagement.
type EngagementQuality string

const (
	EngagementLow    EngagementQuality = "low"
	EngagementMedium EngagementQuality = "medium"
	EngagementHigh   EngagementQuality = "high"
)

// Rank returns the ordinal position: low=0, medium=1, high=2.
func (e EngagementQuality) Rank() int {
	switch e {
	case EngagementMedium:
		return 1
	case EngagementHigh:
		return 2
	default:
		return 0
	}
}

// ParseEngagementQuality parses a rating case-insensitively.
func ParseEngagementQuality(s string) (EngagementQuality, error) {
	switch q := EngagementQuality(strings.ToLower(strings.TrimSpace(s))); q {
	case EngagementLow, EngagementMedium, EngagementHigh:
		return q, nil
	}
	return "", fmt.Errorf("unknown engagement quality %q", s)
}

// Signals holds qualitative and holder-concentration attributes.
// A nil field means the source did not provide it, which is distinct from false or zero.
type Signals struct {
	HasMVP             *bool              `json:"has_mvp,omitempty"`
	HasAudit           *bool              `json:"has_audit,omitempty"`
	IsTierExchange     *bool              `json:"is_tier_exchange,omitempty"`
	TeamPublic         *bool              `json:"team_public,omitempty"`
	InvestorsPresent   *bool              `json:"investors_present,omitempty"`
	HasRoadmap         *bool              `json:"has_roadmap,omitempty"`
	HasVesting         *bool              `json:"has_vesting,omitempty"`
	Top10HolderPct     *float64           `json:"top10_holder_pct,omitempty"`
	SingleHolderMaxPct *float64           `json:"single_holder_max_pct,omitempty"`
	MediaMentions      *int               `json:"media_mentions,omitempty"`
	EngagementQuality  *EngagementQuality `json:"engagement_quality,omitempty"`
	GitHubActivity     *EngagementQuality `json:"github_activity,omitempty"` // same low/medium/high scale
}

// CandidateRecord is one observation of one asset from one source at one instant.
// Records are never mutated once collected; enrichment works on copies.
type CandidateRecord struct {
	Source     Source    `json:"source"`
	Symbol     string    `json:"symbol"`
	Name       string    `json:"name"`
	Chain      *string   `json:"chain,omitempty"`
	Identifier *string   `json:"identifier,omitempty"` // contract address or source-native id
	ObservedAt time.Time `json:"observed_at"`          // UTC

	Price             *float64 `json:"price,omitempty"`
	PriceChange24hPct *float64 `json:"price_change_24h_pct,omitempty"`
	Volume24h         *float64 `json:"volume_24h,omitempty"`
	MarketCap         *float64 `json:"market_cap,omitempty"`
	FDV               *float64 `json:"fdv,omitempty"`
	DexLiquidityUSD   *float64 `json:"dex_liquidity_usd,omitempty"`

	Signals Signals `json:"signals"`
}

// Key returns the identifier when present, otherwise the lower-cased symbol.
// It is the dedup key of the passed-assets table and the purge key of the raw log.
func (r *CandidateRecord) Key() string {
	if r.Identifier != nil && *r.Identifier != "" {
		return *r.Identifier
	}
	return strings.ToLower(r.Symbol)
}

// ChainName returns the chain or an empty string.
func (r *CandidateRecord) ChainName() string {
	if r.Chain == nil {
		return ""
	}
	return *r.Chain
}

// Clone returns a copy that shares no pointers with r.
func (r *CandidateRecord) Clone() *CandidateRecord {
	c := *r
	c.Chain = clonePtr(r.Chain)
	c.Identifier = clonePtr(r.Identifier)
	c.Price = clonePtr(r.Price)
	c.PriceChange24hPct = clonePtr(r.PriceChange24hPct)
	c.Volume24h = clonePtr(r.Volume24h)
	c.MarketCap = clonePtr(r.MarketCap)
	c.FDV = clonePtr(r.FDV)
	c.DexLiquidityUSD = clonePtr(r.DexLiquidityUSD)

	s := r.Signals
	c.Signals = Signals{
		HasMVP:             clonePtr(s.HasMVP),
		HasAudit:           clonePtr(s.HasAudit),
		IsTierExchange:     clonePtr(s.IsTierExchange),
		TeamPublic:         clonePtr(s.TeamPublic),
		InvestorsPresent:   clonePtr(s.InvestorsPresent),
		HasRoadmap:         clonePtr(s.HasRoadmap),
		HasVesting:         clonePtr(s.HasVesting),
		Top10HolderPct:     clonePtr(s.Top10HolderPct),
		SingleHolderMaxPct: clonePtr(s.SingleHolderMaxPct),
		MediaMentions:      clonePtr(s.MediaMentions),
		EngagementQuality:  clonePtr(s.EngagementQuality),
		GitHubActivity:     clonePtr(s.GitHubActivity),
	}
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
