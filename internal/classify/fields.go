package classify

import (
	"fmt"
	"sort"

	"token-screener/internal/domain"
)

type boolField func(r *domain.CandidateRecord) *bool

type numField func(r *domain.CandidateRecord) *float64

var boolFields = map[string]boolField{
	"has_mvp":           func(r *domain.CandidateRecord) *bool { return r.Signals.HasMVP },
	"has_audit":         func(r *domain.CandidateRecord) *bool { return r.Signals.HasAudit },
	"is_tier_exchange":  func(r *domain.CandidateRecord) *bool { return r.Signals.IsTierExchange },
	"team_public":       func(r *domain.CandidateRecord) *bool { return r.Signals.TeamPublic },
	"investors_present": func(r *domain.CandidateRecord) *bool { return r.Signals.InvestorsPresent },
	"has_roadmap":       func(r *domain.CandidateRecord) *bool { return r.Signals.HasRoadmap },
	"has_vesting":       func(r *domain.CandidateRecord) *bool { return r.Signals.HasVesting },
}

var numFields = map[string]numField{
	"price":                 func(r *domain.CandidateRecord) *float64 { return r.Price },
	"price_change_24h_pct":  func(r *domain.CandidateRecord) *float64 { return r.PriceChange24hPct },
	"volume_24h":            func(r *domain.CandidateRecord) *float64 { return r.Volume24h },
	"market_cap":            func(r *domain.CandidateRecord) *float64 { return r.MarketCap },
	"fdv":                   func(r *domain.CandidateRecord) *float64 { return r.FDV },
	"dex_liquidity_usd":     func(r *domain.CandidateRecord) *float64 { return r.DexLiquidityUSD },
	"top10_holder_pct":      func(r *domain.CandidateRecord) *float64 { return r.Signals.Top10HolderPct },
	"single_holder_max_pct": func(r *domain.CandidateRecord) *float64 { return r.Signals.SingleHolderMaxPct },
	"media_mentions": func(r *domain.CandidateRecord) *float64 {
		if r.Signals.MediaMentions == nil {
			return nil
		}
		v := float64(*r.Signals.MediaMentions)
		return &v
	},
	// low=0, medium=1, high=2
	"engagement_quality": func(r *domain.CandidateRecord) *float64 {
		if r.Signals.EngagementQuality == nil {
			return nil
		}
		v := float64(r.Signals.EngagementQuality.Rank())
		return &v
	},
	"github_activity": func(r *domain.CandidateRecord) *float64 {
		if r.Signals.GitHubActivity == nil {
			return nil
		}
		v := float64(r.Signals.GitHubActivity.Rank())
		return &v
	},
}

func lookupBool(name string) (boolField, error) {
	f, ok := boolFields[name]
	if !ok {
		return nil, fmt.Errorf("unknown boolean field %q (known: %v)", name, keys(boolFields))
	}
	return f, nil
}

func lookupNum(name string) (numField, error) {
	f, ok := numFields[name]
	if !ok {
		return nil, fmt.Errorf("unknown numeric field %q (known: %v)", name, keys(numFields))
	}
	return f, nil
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
