// Package stub provides scripted source adapters for collector tests.
package stub

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"token-screener/internal/domain"
	"token-screener/internal/sources"
)

// Step is the scripted outcome of one FetchPage call.
type Step struct {
	Records []*domain.CandidateRecord
	Err     error
	Delay   time.Duration // honoured against ctx
}

// ScriptedAdapter replays steps in call order. Once the script runs out it
// reports exhaustion.
type ScriptedAdapter struct {
	spec sources.AdapterSpec

	mu      sync.Mutex
	steps   []Step
	calls   int
	cursors []string
	sizes   []int
}

// NewScriptedAdapter creates a scripted adapter.
func NewScriptedAdapter(source domain.Source, pageSize int, steps ...Step) *ScriptedAdapter {
	return &ScriptedAdapter{
		spec:  sources.AdapterSpec{Source: source, DefaultPageSize: pageSize, MaxPageSize: pageSize},
		steps: steps,
	}
}

// Compile-time interface check.
var _ sources.Adapter = (*ScriptedAdapter)(nil)

// Spec returns the adapter's paging limits.
func (a *ScriptedAdapter) Spec() sources.AdapterSpec {
	return a.spec
}

// FetchPage returns the next scripted step.
func (a *ScriptedAdapter) FetchPage(ctx context.Context, cursor string, pageSize int) (sources.Page, error) {
	a.mu.Lock()
	i := a.calls
	a.calls++
	a.cursors = append(a.cursors, cursor)
	a.sizes = append(a.sizes, pageSize)
	a.mu.Unlock()

	if i >= len(a.steps) {
		return sources.Page{}, nil
	}
	step := a.steps[i]

	if step.Delay > 0 {
		select {
		case <-ctx.Done():
			return sources.Page{}, &sources.FetchError{Source: a.spec.Source, Cursor: cursor, Err: ctx.Err()}
		case <-time.After(step.Delay):
		}
	}
	if step.Err != nil {
		return sources.Page{}, step.Err
	}

	records := make([]*domain.CandidateRecord, len(step.Records))
	for j, r := range step.Records {
		records[j] = r.Clone()
	}
	next := ""
	if i+1 < len(a.steps) {
		next = strconv.Itoa(i + 1)
	}
	return sources.Page{Records: records, Next: next}, nil
}

// Calls returns the number of FetchPage calls.
func (a *ScriptedAdapter) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

// Cursors returns the cursors passed to FetchPage, in call order.
func (a *ScriptedAdapter) Cursors() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.cursors...)
}

// Records builds n records for source with symbols prefix0..prefixN-1.
func Records(source domain.Source, prefix string, n int, observedAt time.Time) []*domain.CandidateRecord {
	out := make([]*domain.CandidateRecord, n)
	for i := range out {
		id := fmt.Sprintf("%s-%d", prefix, i)
		out[i] = &domain.CandidateRecord{
			Source:     source,
			Symbol:     fmt.Sprintf("%s%d", prefix, i),
			Name:       id,
			Identifier: &id,
			ObservedAt: observedAt,
		}
	}
	return out
}
