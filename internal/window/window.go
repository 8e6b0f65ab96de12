// Package window computes the analysis window of a run and selects the
// records observed inside it.
package window

import (
	"fmt"
	"strings"
	"time"

	"token-screener/internal/domain"
)

// Mode names how the analysis window is derived from the reference instant.
type Mode string

// ModePreviousDay covers the full local calendar day before the reference.
const ModePreviousDay Mode = "previous_day"

// ParseMode parses an analysis mode. Unknown values fall back to
// ModePreviousDay; ok reports whether s was recognised.
func ParseMode(s string) (mode Mode, ok bool) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModePreviousDay, "":
		return ModePreviousDay, true
	}
	return ModePreviousDay, false
}

// LoadLocation resolves an IANA zone name. Empty means UTC.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return loc, nil
}

// PreviousDay returns [local midnight of yesterday, local midnight of today)
// relative to ref in loc, expressed in UTC. Across DST transitions the window
// is 23 or 25 hours long but always exactly one local calendar day.
func PreviousDay(ref time.Time, loc *time.Location) domain.Window {
	if loc == nil {
		loc = time.UTC
	}
	local := ref.In(loc)
	y, m, d := local.Date()
	end := time.Date(y, m, d, 0, 0, 0, 0, loc)
	start := time.Date(y, m, d-1, 0, 0, 0, 0, loc)
	return domain.Window{Start: start.UTC(), End: end.UTC(), Location: loc.String()}
}

// Select keeps the records with Start <= observed_at < End, preserving order.
func Select(records []*domain.CandidateRecord, loc *time.Location, ref time.Time) ([]*domain.CandidateRecord, domain.Window) {
	w := PreviousDay(ref, loc)
	out := make([]*domain.CandidateRecord, 0, len(records))
	for _, r := range records {
		if w.Contains(r.ObservedAt) {
			out = append(out, r)
		}
	}
	return out, w
}
