package classify

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"token-screener/internal/domain"
)

// Tier awards Points when a value reaches Min.
type Tier struct {
	Min    float64 `yaml:"min"`
	Points float64 `yaml:"points"`
}

// HeuristicConfig parameterizes the metrics-only classifiers.
type HeuristicConfig struct {
	MemeKeywords     []string          `yaml:"meme_keywords"`
	SeriousMcap      float64           `yaml:"serious_mcap_usd"`
	SeriousVolume    float64           `yaml:"serious_volume_usd"`
	StandaloneVolume float64           `yaml:"standalone_volume_usd"`
	SeriousScore     float64           `yaml:"serious_score"`
	VolumeTiers      []Tier            `yaml:"volume_tiers"`
	McapTiers        []Tier            `yaml:"mcap_tiers"`
	ChangeTiers      []Tier            `yaml:"price_change_tiers"` // on |24h change %|
	PassCategories   []domain.Category `yaml:"pass_categories"`
}

// DefaultMemeKeywords is the default meme vocabulary.
var DefaultMemeKeywords = []string{
	"doge", "shib", "inu", "pepe", "floki", "bonk", "wojak", "meme",
	"elon", "moon", "cat", "frog", "baby", "wif", "pump",
}

// DefaultHeuristicConfig returns the production heuristic parameters.
func DefaultHeuristicConfig() HeuristicConfig {
	return HeuristicConfig{
		MemeKeywords:     DefaultMemeKeywords,
		SeriousMcap:      5_000_000,
		SeriousVolume:    1_000_000,
		StandaloneVolume: 10_000_000,
		SeriousScore:     2,
		VolumeTiers:      []Tier{{Min: 1_000_000, Points: 1}, {Min: 10_000_000, Points: 2}, {Min: 50_000_000, Points: 3}},
		McapTiers:        []Tier{{Min: 5_000_000, Points: 1}, {Min: 50_000_000, Points: 2}, {Min: 500_000_000, Points: 3}},
		ChangeTiers:      []Tier{{Min: 10, Points: 1}, {Min: 50, Points: 2}},
		PassCategories:   []domain.Category{domain.CategorySerious, domain.CategorySeriousMemecoin},
	}
}

// Validate checks heuristic parameters.
func (c HeuristicConfig) Validate() error {
	if c.SeriousMcap < 0 || c.SeriousVolume < 0 || c.StandaloneVolume < 0 || c.SeriousScore < 0 {
		return fmt.Errorf("heuristic thresholds must be non-negative")
	}
	for _, cat := range c.PassCategories {
		switch cat {
		case domain.CategorySerious, domain.CategorySeriousMemecoin, domain.CategoryTrashMemecoin, domain.CategoryTrash:
		default:
			return fmt.Errorf("unknown pass category %q", cat)
		}
	}
	return nil
}

// Heuristic sorts records into a 2x2 of serious/trash and meme/non-meme
// using market metrics only. In score mode seriousness is a point threshold.
type Heuristic struct {
	cfg      HeuristicConfig
	keywords []string
	useScore bool
}

// NewHeuristic creates a heuristic classifier; useScore selects score mode.
func NewHeuristic(cfg HeuristicConfig, useScore bool) *Heuristic {
	if len(cfg.PassCategories) == 0 {
		cfg.PassCategories = DefaultHeuristicConfig().PassCategories
	}
	keywords := make([]string, 0, len(cfg.MemeKeywords))
	for _, k := range cfg.MemeKeywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			keywords = append(keywords, k)
		}
	}
	return &Heuristic{cfg: cfg, keywords: keywords, useScore: useScore}
}

// Compile-time interface check.
var _ Classifier = (*Heuristic)(nil)

// Mode returns ModeScore or ModeHeuristic.
func (h *Heuristic) Mode() Mode {
	if h.useScore {
		return ModeScore
	}
	return ModeHeuristic
}

// Classify assigns one of the four metric categories.
func (h *Heuristic) Classify(r *domain.CandidateRecord) domain.Verdict {
	meme := h.IsMeme(r)
	score := h.Score(r)

	var serious bool
	if h.useScore {
		serious = value(r.Price) > 0 && score >= h.cfg.SeriousScore
	} else {
		serious = h.seriousByMetrics(r)
	}

	var cat domain.Category
	switch {
	case serious && !meme:
		cat = domain.CategorySerious
	case serious && meme:
		cat = domain.CategorySeriousMemecoin
	case meme:
		cat = domain.CategoryTrashMemecoin
	default:
		cat = domain.CategoryTrash
	}

	v := domain.Verdict{Pass: slices.Contains(h.cfg.PassCategories, cat), Category: cat, Score: score}
	if !v.Pass {
		v.Reasons = []string{fmt.Sprintf("category %s not accepted", cat)}
	}
	return v
}

// IsMeme reports whether the name or symbol contains a meme keyword.
func (h *Heuristic) IsMeme(r *domain.CandidateRecord) bool {
	name := strings.ToLower(r.Name)
	symbol := strings.ToLower(r.Symbol)
	for _, k := range h.keywords {
		if strings.Contains(name, k) || strings.Contains(symbol, k) {
			return true
		}
	}
	return false
}

func (h *Heuristic) seriousByMetrics(r *domain.CandidateRecord) bool {
	if value(r.Price) <= 0 {
		return false
	}
	vol := value(r.Volume24h)
	mcap := value(r.MarketCap)
	return (mcap >= h.cfg.SeriousMcap && vol >= h.cfg.SeriousVolume) || vol >= h.cfg.StandaloneVolume
}

// Score sums the highest matching tier of volume, market cap and absolute
// 24h price change. Absent metrics score nothing.
func (h *Heuristic) Score(r *domain.CandidateRecord) float64 {
	score := tierPoints(h.cfg.VolumeTiers, r.Volume24h) + tierPoints(h.cfg.McapTiers, r.MarketCap)
	if r.PriceChange24hPct != nil {
		abs := math.Abs(*r.PriceChange24hPct)
		score += tierPoints(h.cfg.ChangeTiers, &abs)
	}
	return score
}

func tierPoints(tiers []Tier, v *float64) float64 {
	if v == nil {
		return 0
	}
	best := 0.0
	for _, t := range tiers {
		if *v >= t.Min && t.Points > best {
			best = t.Points
		}
	}
	return best
}

func value(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
