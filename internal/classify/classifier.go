// Package classify decides whether a candidate record passes, and into which
// category it falls.
package classify

import (
	"fmt"
	"strings"

	"token-screener/internal/domain"
)

// Mode selects a classifier implementation.
type Mode string

const (
	ModeStrict    Mode = "strict"
	ModeHeuristic Mode = "heuristic"
	ModeScore     Mode = "score"
)

// ParseMode parses a classifier mode case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeStrict, ModeHeuristic, ModeScore:
		return m, nil
	}
	return "", fmt.Errorf("unknown classifier mode %q", s)
}

// Classifier turns one record into a verdict. Implementations are pure and
// safe for concurrent use.
type Classifier interface {
	Mode() Mode
	Classify(r *domain.CandidateRecord) domain.Verdict
}

// Config selects and parameterizes a classifier.
type Config struct {
	Mode       Mode
	Thresholds Thresholds
	RulesFile  string // optional YAML table replacing the default strict rules
	Heuristic  HeuristicConfig
}

// FromConfig builds the classifier named by cfg.Mode.
func FromConfig(cfg Config) (Classifier, error) {
	switch cfg.Mode {
	case ModeStrict, "":
		rules := DefaultStrictRules(cfg.Thresholds)
		if cfg.RulesFile != "" {
			loaded, err := LoadRules(cfg.RulesFile)
			if err != nil {
				return nil, err
			}
			rules = loaded
		}
		return NewStrict(rules), nil
	case ModeHeuristic:
		return NewHeuristic(cfg.Heuristic, false), nil
	case ModeScore:
		return NewHeuristic(cfg.Heuristic, true), nil
	}
	return nil, fmt.Errorf("unknown classifier mode %q", cfg.Mode)
}

// Strict applies an ordered rule table; the first failing rule rejects.
type Strict struct {
	rules []Rule
}

// NewStrict creates a strict classifier over rules.
func NewStrict(rules []Rule) *Strict {
	return &Strict{rules: append([]Rule(nil), rules...)}
}

// Compile-time interface check.
var _ Classifier = (*Strict)(nil)

// Mode returns ModeStrict.
func (s *Strict) Mode() Mode { return ModeStrict }

// Rules returns a copy of the rule table.
func (s *Strict) Rules() []Rule {
	return append([]Rule(nil), s.rules...)
}

// Classify evaluates the rules in order. Score is the number of rules passed
// before the first failure.
func (s *Strict) Classify(r *domain.CandidateRecord) domain.Verdict {
	for i := range s.rules {
		if !s.rules[i].Eval(r) {
			return domain.Verdict{
				Category: domain.CategoryRejected,
				Score:    float64(i),
				Reasons:  []string{s.rules[i].Label()},
			}
		}
	}
	return domain.Verdict{Pass: true, Category: domain.CategoryPassed, Score: float64(len(s.rules))}
}
