package sources

import (
	"context"
	"fmt"
	"strconv"

	"token-screener/internal/domain"
)

// Static serves fixed pages from memory. Used for fixtures and offline runs.
type Static struct {
	source domain.Source
	pages  [][]*domain.CandidateRecord
	failAt map[int]error
}

// NewStatic creates an adapter that serves pages in order, reporting as source.
func NewStatic(source domain.Source, pages ...[]*domain.CandidateRecord) *Static {
	return &Static{source: source, pages: pages, failAt: make(map[int]error)}
}

// FailAt makes the fetch of page index i (0-based) return err.
func (s *Static) FailAt(i int, err error) *Static {
	s.failAt[i] = err
	return s
}

// Compile-time interface check.
var _ Adapter = (*Static)(nil)

// Spec returns the adapter's paging limits.
func (s *Static) Spec() AdapterSpec {
	size := 1
	for _, p := range s.pages {
		if len(p) > size {
			size = len(p)
		}
	}
	return AdapterSpec{Source: s.source, DefaultPageSize: size, MaxPageSize: size}
}

// FetchPage returns copies of the page at the cursor index, truncated to pageSize.
func (s *Static) FetchPage(ctx context.Context, cursor string, pageSize int) (Page, error) {
	idx := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 0 {
			return Page{}, &FetchError{Source: s.source, Cursor: cursor, Err: fmt.Errorf("invalid cursor")}
		}
		idx = n
	}
	if err := ctx.Err(); err != nil {
		return Page{}, transportError(ctx, s.source, cursor, err)
	}
	if err, ok := s.failAt[idx]; ok {
		return Page{}, err
	}
	if idx >= len(s.pages) {
		return Page{}, nil
	}

	page := s.pages[idx]
	if pageSize > 0 && len(page) > pageSize {
		page = page[:pageSize]
	}
	records := make([]*domain.CandidateRecord, len(page))
	for i, r := range page {
		records[i] = r.Clone()
	}

	next := ""
	if idx+1 < len(s.pages) {
		next = strconv.Itoa(idx + 1)
	}
	return Page{Records: records, Next: next}, nil
}
