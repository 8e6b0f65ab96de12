// Package ingestion gathers candidate records from source adapters under a
// global record budget.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"token-screener/internal/domain"
	"token-screener/internal/logging"
	"token-screener/internal/observability"
	"token-screener/internal/sources"
)

// ErrInvalidBudget is returned when maxTotal is not positive.
var ErrInvalidBudget = errors.New("max total must be positive")

// Batch is the outcome of one collection pass.
type Batch struct {
	Records []*domain.CandidateRecord
	Reports []domain.SourceReport
}

// Options contains configuration for creating a Collector.
type Options struct {
	PageSize     int           // 0 selects each adapter's default
	MaxRetries   int           // Default: 3 retries per page
	RetryDelay   time.Duration // Default: 500ms, doubled per attempt
	MaxDelay     time.Duration // Default: 10s
	FetchTimeout time.Duration // Default: 30s per page
	Parallel     bool          // fetch sources concurrently
	Logger       *zap.Logger
}

// Collector pages through adapters in priority order.
type Collector struct {
	pageSize     int
	maxRetries   int
	retryDelay   time.Duration
	maxDelay     time.Duration
	fetchTimeout time.Duration
	parallel     bool
	logger       *zap.Logger
}

// NewCollector creates a new collector.
func NewCollector(opts Options) *Collector {
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	} else if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 500 * time.Millisecond
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 10 * time.Second
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 30 * time.Second
	}

	return &Collector{
		pageSize:     opts.PageSize,
		maxRetries:   opts.MaxRetries,
		retryDelay:   opts.RetryDelay,
		maxDelay:     opts.MaxDelay,
		fetchTimeout: opts.FetchTimeout,
		parallel:     opts.Parallel,
		logger:       logging.OrNop(opts.Logger).Named("collector"),
	}
}

// Collect gathers at most maxTotal records. Source failures never fail the
// collection; they end that source early and are recorded in its report.
// Records keep source priority order, then page order.
func (c *Collector) Collect(ctx context.Context, adapters []sources.Adapter, maxTotal int) (*Batch, error) {
	if maxTotal <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBudget, maxTotal)
	}
	if c.parallel {
		return c.collectParallel(ctx, adapters, maxTotal), nil
	}
	return c.collectSequential(ctx, adapters, maxTotal), nil
}

func (c *Collector) collectSequential(ctx context.Context, adapters []sources.Adapter, maxTotal int) *Batch {
	batch := &Batch{Reports: make([]domain.SourceReport, 0, len(adapters))}
	for _, a := range adapters {
		remaining := maxTotal - len(batch.Records)
		if remaining <= 0 {
			batch.Reports = append(batch.Reports, domain.SourceReport{Source: a.Spec().Source})
			continue
		}
		records, report := c.drain(ctx, a, remaining)
		batch.Records = append(batch.Records, records...)
		batch.Reports = append(batch.Reports, report)
	}
	return batch
}

// collectParallel drains every source concurrently, each capped at maxTotal,
// then concatenates in priority order and truncates. It returns only after
// every fetch has finished.
func (c *Collector) collectParallel(ctx context.Context, adapters []sources.Adapter, maxTotal int) *Batch {
	results := make([][]*domain.CandidateRecord, len(adapters))
	reports := make([]domain.SourceReport, len(adapters))

	var g errgroup.Group
	for i, a := range adapters {
		g.Go(func() error {
			results[i], reports[i] = c.drain(ctx, a, maxTotal)
			return nil
		})
	}
	_ = g.Wait() // drain never returns an error

	batch := &Batch{Reports: reports}
	for i, records := range results {
		remaining := maxTotal - len(batch.Records)
		if len(records) > remaining {
			records = records[:remaining]
			reports[i].Records = remaining
		}
		batch.Records = append(batch.Records, records...)
	}
	return batch
}

// drain pages one adapter until budget, exhaustion or a terminal failure.
func (c *Collector) drain(ctx context.Context, a sources.Adapter, budget int) ([]*domain.CandidateRecord, domain.SourceReport) {
	spec := a.Spec()
	report := domain.SourceReport{Source: spec.Source}
	logger := c.logger.With(zap.String("source", spec.Source.String()))

	// Page size stays fixed across pages so offset-based cursors line up;
	// the last page is truncated locally instead.
	pageSize := sources.ClampPageSize(spec, c.pageSize)
	if pageSize <= 0 {
		report.Err = fmt.Sprintf("%v: %d", sources.ErrInvalidPageSize, pageSize)
		logger.Warn("source skipped", zap.Error(sources.ErrInvalidPageSize))
		return nil, report
	}

	var records []*domain.CandidateRecord
	cursor := ""
	for len(records) < budget {
		page, err := c.fetchWithRetry(ctx, a, cursor, pageSize, logger)
		if err != nil {
			report.Err = err.Error()
			logger.Warn("source stopped early",
				zap.String("cursor", cursor),
				zap.Int("records", len(records)),
				zap.Error(err),
			)
			break
		}
		report.Pages++

		if len(page.Records) == 0 {
			break
		}
		if left := budget - len(records); len(page.Records) > left {
			page.Records = page.Records[:left]
		}
		records = append(records, page.Records...)

		if page.Next == "" {
			break
		}
		cursor = page.Next
	}

	report.Records = len(records)
	logger.Debug("source drained", zap.Int("records", report.Records), zap.Int("pages", report.Pages))
	return records, report
}

// fetchWithRetry fetches one page, retrying retryable failures with
// exponential backoff. Each attempt runs under its own timeout.
func (c *Collector) fetchWithRetry(ctx context.Context, a sources.Adapter, cursor string, pageSize int, logger *zap.Logger) (sources.Page, error) {
	source := a.Spec().Source.String()
	delay := c.retryDelay

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return sources.Page{}, ctx.Err()
			case <-time.After(delay):
			}
			delay = min(delay*2, c.maxDelay)
		}

		start := time.Now()
		page, err := c.fetchOnce(ctx, a, cursor, pageSize)
		if err == nil {
			observability.RecordPageFetched(source, len(page.Records), time.Since(start).Seconds())
			return page, nil
		}

		retryable := sources.IsRetryable(err) && ctx.Err() == nil
		observability.RecordSourceError(source, retryable)
		lastErr = err
		if !retryable {
			return sources.Page{}, err
		}
		logger.Debug("retrying page",
			zap.String("cursor", cursor),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}
	return sources.Page{}, fmt.Errorf("retries exhausted: %w", lastErr)
}

func (c *Collector) fetchOnce(ctx context.Context, a sources.Adapter, cursor string, pageSize int) (sources.Page, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()

	page, err := a.FetchPage(fetchCtx, cursor, pageSize)
	if err != nil && fetchCtx.Err() != nil && ctx.Err() == nil {
		// per-page timeout: end this source
		return sources.Page{}, &sources.FetchError{
			Source: a.Spec().Source,
			Cursor: cursor,
			Err:    fmt.Errorf("fetch timeout after %s: %w", c.fetchTimeout, err),
		}
	}
	return page, err
}
