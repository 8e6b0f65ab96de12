// Package sources adapts external market-data feeds into candidate records.
package sources

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"token-screener/internal/domain"
)

// ErrInvalidPageSize is returned when a page size cannot be satisfied.
var ErrInvalidPageSize = errors.New("invalid page size")

// AdapterSpec describes an adapter's paging limits.
type AdapterSpec struct {
	Source          domain.Source
	DefaultPageSize int
	MaxPageSize     int
	BaseURL         string
}

// Page is one page of records. An empty Next means the source is exhausted.
type Page struct {
	Records []*domain.CandidateRecord
	Next    string
}

// Adapter fetches pages of candidate records from one upstream.
// Implementations are stateless between calls and safe for concurrent use;
// transport and decode failures are returned as *FetchError, never panics.
type Adapter interface {
	Spec() AdapterSpec
	FetchPage(ctx context.Context, cursor string, pageSize int) (Page, error)
}

// FetchError describes a failed page fetch.
type FetchError struct {
	Source     domain.Source
	Cursor     string
	StatusCode int
	Retryable  bool
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s fetch (cursor %q): status %d: %v", e.Source, e.Cursor, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s fetch (cursor %q): %v", e.Source, e.Cursor, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err is worth retrying on the same page.
func IsRetryable(err error) bool {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Retryable
	}
	return false
}

// retryableStatus reports whether an HTTP status is transient.
func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// transportError classifies a failure that happened before a response arrived.
// A cancelled or expired context is terminal for the source.
func transportError(ctx context.Context, source domain.Source, cursor string, err error) *FetchError {
	return &FetchError{
		Source:    source,
		Cursor:    cursor,
		Retryable: ctx.Err() == nil,
		Err:       err,
	}
}

// statusError classifies a non-2xx response.
func statusError(source domain.Source, cursor string, code int, body []byte) *FetchError {
	const maxBody = 256
	if len(body) > maxBody {
		body = body[:maxBody]
	}
	return &FetchError{
		Source:     source,
		Cursor:     cursor,
		StatusCode: code,
		Retryable:  retryableStatus(code),
		Err:        fmt.Errorf("unexpected response: %s", body),
	}
}

// decodeError classifies a malformed payload; these are terminal.
func decodeError(source domain.Source, cursor string, err error) *FetchError {
	return &FetchError{Source: source, Cursor: cursor, Err: fmt.Errorf("decode: %w", err)}
}

// ClampPageSize resolves a requested page size against the adapter spec.
// Zero or negative selects the default.
func ClampPageSize(spec AdapterSpec, pageSize int) int {
	if pageSize <= 0 {
		pageSize = spec.DefaultPageSize
	}
	if spec.MaxPageSize > 0 && pageSize > spec.MaxPageSize {
		pageSize = spec.MaxPageSize
	}
	return pageSize
}

func ptr[T any](v T) *T {
	return &v
}
