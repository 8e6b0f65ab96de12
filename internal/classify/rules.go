package classify

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"token-screener/internal/domain"
)

// Kind is the type of check a Rule performs.
type Kind string

const (
	KindIsTrue   Kind = "is_true"   // boolean must be true; absent fails
	KindNotFalse Kind = "not_false" // boolean must not be explicitly false; absent passes
	KindMin      Kind = "min"       // value >= Threshold
	KindMax      Kind = "max"       // value <= Threshold
	KindAny      Kind = "any"       // at least one child passes
	KindAll      Kind = "all"       // every child passes
)

// Rule is one entry of the strict filter table. Leaf kinds read Field;
// any/all combine Rules. For min/max an absent value is replaced by Default,
// and fails when Default is nil.
type Rule struct {
	Block     string   `yaml:"block,omitempty"`
	Name      string   `yaml:"name"`
	Kind      Kind     `yaml:"kind"`
	Field     string   `yaml:"field,omitempty"`
	Threshold float64  `yaml:"threshold,omitempty"`
	Default   *float64 `yaml:"default,omitempty"`
	Rules     []Rule   `yaml:"rules,omitempty"`
}

// Thresholds parameterize the default rule table.
type Thresholds struct {
	MinVolume         float64 `yaml:"min_volume_usd"`
	MinLiquidity      float64 `yaml:"min_dex_liquidity_usd"`
	MaxTop10          float64 `yaml:"max_top10_pct"`
	MaxSingleHolder   float64 `yaml:"max_single_holder_pct"`
	RequireAudit      bool    `yaml:"require_audit"`
	RequirePublicTeam bool    `yaml:"require_public_team"`
	// Rejects absent or low GitHub activity. Off by default: neither market
	// feed reports it.
	RequireGitHubActivity bool `yaml:"require_github_activity"`
}

// DefaultThresholds returns the production thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinVolume:         1_000_000,
		MinLiquidity:      200_000,
		MaxTop10:          70,
		MaxSingleHolder:   20,
		RequireAudit:      true,
		RequirePublicTeam: true,
	}
}

// Validate checks threshold ranges.
func (t Thresholds) Validate() error {
	if t.MinVolume < 0 || t.MinLiquidity < 0 {
		return errors.New("volume and liquidity minimums must be non-negative")
	}
	if t.MaxTop10 < 0 || t.MaxTop10 > 100 {
		return fmt.Errorf("max top10 pct %v out of [0,100]", t.MaxTop10)
	}
	if t.MaxSingleHolder < 0 || t.MaxSingleHolder > 100 {
		return fmt.Errorf("max single holder pct %v out of [0,100]", t.MaxSingleHolder)
	}
	return nil
}

func dflt(v float64) *float64 { return &v }

// DefaultStrictRules builds the five-block strict table.
func DefaultStrictRules(t Thresholds) []Rule {
	var rules []Rule

	if t.RequirePublicTeam {
		rules = append(rules, Rule{Block: "legitimacy", Name: "public team", Kind: KindIsTrue, Field: "team_public"})
	}
	rules = append(rules, Rule{Block: "legitimacy", Name: "investors or media", Kind: KindAny, Rules: []Rule{
		{Name: "investors present", Kind: KindIsTrue, Field: "investors_present"},
		{Name: "media mentions", Kind: KindMin, Field: "media_mentions", Threshold: 1, Default: dflt(0)},
	}})

	rules = append(rules, Rule{Block: "product", Name: "mvp", Kind: KindIsTrue, Field: "has_mvp"})
	if t.RequireAudit {
		rules = append(rules, Rule{Block: "product", Name: "audit", Kind: KindIsTrue, Field: "has_audit"})
	}

	rules = append(rules,
		Rule{Block: "capital", Name: "tier exchange or dex traction", Kind: KindAny, Rules: []Rule{
			{Name: "tier exchange", Kind: KindIsTrue, Field: "is_tier_exchange"},
			{Name: "dex traction", Kind: KindAll, Rules: []Rule{
				{Name: "volume", Kind: KindMin, Field: "volume_24h", Threshold: t.MinVolume, Default: dflt(0)},
				{Name: "liquidity", Kind: KindMin, Field: "dex_liquidity_usd", Threshold: t.MinLiquidity, Default: dflt(0)},
			}},
		}},
		Rule{Block: "tokenomics", Name: "vesting", Kind: KindNotFalse, Field: "has_vesting"},
		Rule{Block: "tokenomics", Name: "top10 concentration", Kind: KindMax, Field: "top10_holder_pct", Threshold: t.MaxTop10, Default: dflt(100)},
		Rule{Block: "tokenomics", Name: "single holder", Kind: KindMax, Field: "single_holder_max_pct", Threshold: t.MaxSingleHolder, Default: dflt(100)},
		Rule{Block: "publicity", Name: "engagement", Kind: KindMin, Field: "engagement_quality", Threshold: 1, Default: dflt(0)},
		Rule{Block: "publicity", Name: "roadmap", Kind: KindIsTrue, Field: "has_roadmap"},
	)
	if t.RequireGitHubActivity {
		rules = append(rules, Rule{Block: "publicity", Name: "github activity", Kind: KindMin, Field: "github_activity", Threshold: 1, Default: dflt(0)})
	}
	return rules
}

type rulesFile struct {
	Rules []Rule `yaml:"rules"`
}

// LoadRules reads a rule table from a YAML file of the form `rules: [...]`.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	return ParseRules(data)
}

// ParseRules decodes and validates a YAML rule table.
func ParseRules(data []byte) ([]Rule, error) {
	var f rulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	if len(f.Rules) == 0 {
		return nil, errors.New("rules file defines no rules")
	}
	for i := range f.Rules {
		if err := f.Rules[i].validate(); err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
	}
	return f.Rules, nil
}

func (r *Rule) validate() error {
	switch r.Kind {
	case KindIsTrue, KindNotFalse:
		_, err := lookupBool(r.Field)
		return err
	case KindMin, KindMax:
		_, err := lookupNum(r.Field)
		return err
	case KindAny, KindAll:
		if len(r.Rules) == 0 {
			return fmt.Errorf("%s %q has no children", r.Kind, r.Name)
		}
		for i := range r.Rules {
			if err := r.Rules[i].validate(); err != nil {
				return fmt.Errorf("%s: %w", r.Name, err)
			}
		}
		return nil
	}
	return fmt.Errorf("unknown kind %q", r.Kind)
}

// Eval reports whether rec satisfies the rule. Unknown fields fail.
func (r *Rule) Eval(rec *domain.CandidateRecord) bool {
	switch r.Kind {
	case KindIsTrue:
		f, err := lookupBool(r.Field)
		if err != nil {
			return false
		}
		v := f(rec)
		return v != nil && *v
	case KindNotFalse:
		f, err := lookupBool(r.Field)
		if err != nil {
			return false
		}
		v := f(rec)
		return v == nil || *v
	case KindMin, KindMax:
		f, err := lookupNum(r.Field)
		if err != nil {
			return false
		}
		v := f(rec)
		if v == nil {
			if r.Default == nil {
				return false
			}
			v = r.Default
		}
		if r.Kind == KindMin {
			return *v >= r.Threshold
		}
		return *v <= r.Threshold
	case KindAny:
		for i := range r.Rules {
			if r.Rules[i].Eval(rec) {
				return true
			}
		}
		return false
	case KindAll:
		for i := range r.Rules {
			if !r.Rules[i].Eval(rec) {
				return false
			}
		}
		return true
	}
	return false
}

// Label names the rule for rejection reasons.
func (r *Rule) Label() string {
	if r.Block == "" {
		return r.Name
	}
	return r.Block + ": " + r.Name
}
