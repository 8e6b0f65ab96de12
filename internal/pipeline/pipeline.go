// Package pipeline runs one ingestion-classification-retention cycle:
// collect → window → classify → append raw → upsert passed → purge → log run → notify.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"token-screener/internal/classify"
	"token-screener/internal/domain"
	"token-screener/internal/ingestion"
	"token-screener/internal/logging"
	"token-screener/internal/observability"
	"token-screener/internal/report"
	"token-screener/internal/retention"
	"token-screener/internal/sources"
	"token-screener/internal/storage"
	"token-screener/internal/window"
)

var (
	// ErrRunInProgress is returned when a run is already executing in this process.
	ErrRunInProgress = errors.New("run already in progress")
	// ErrLeaseHeld is returned when another process holds the run lease.
	ErrLeaseHeld = errors.New("run lease held by another process")
)

// DefaultLeaseName is the lease row guarding the daily run.
const DefaultLeaseName = "daily_run"

// Options for creating a Pipeline.
type Options struct {
	Collector  *ingestion.Collector // required
	Adapters   []sources.Adapter    // priority order
	Classifier classify.Classifier  // required
	Retention  *retention.Store     // required
	Notifier   report.Notifier      // optional

	// Optional cross-process single flight.
	Leases    storage.LeaseStore
	LeaseName string        // Default: DefaultLeaseName
	LeaseTTL  time.Duration // Default: 30m
	Holder    string        // Default: host-pid

	Location       *time.Location // Default: UTC
	MaxRecords     int            // Default: 5000
	RetentionHours int            // 0 expires every row observed before the run; negative means 24
	PurgeNonPassed bool
	NotifyTimeout  time.Duration // Default: 20s

	Logger *zap.Logger
}

// RunOptions parameterize one run.
type RunOptions struct {
	Reference  time.Time // window reference; zero means now
	SkipNotify bool
}

// Status is a snapshot of the pipeline's run history in this process.
type Status struct {
	Running    bool              `json:"running"`
	Runs       int64             `json:"runs"`
	Failures   int64             `json:"failures"`
	Rejected   int64             `json:"rejected"`
	LastRunAt  *time.Time        `json:"last_run_at,omitempty"`
	LastError  string            `json:"last_error,omitempty"`
	LastResult *domain.RunResult `json:"last_result,omitempty"`
}

// Pipeline coordinates one run at a time.
type Pipeline struct {
	collector  *ingestion.Collector
	adapters   []sources.Adapter
	classifier classify.Classifier
	retention  *retention.Store
	notifier   report.Notifier

	leases    storage.LeaseStore
	leaseName string
	leaseTTL  time.Duration
	holder    string

	loc            *time.Location
	maxRecords     int
	retentionHours int
	purgeNonPassed bool
	notifyTimeout  time.Duration

	clock  func() time.Time
	newID  func() string
	logger *zap.Logger

	runMu   sync.Mutex // single flight
	running atomic.Bool

	statusMu sync.RWMutex
	status   Status
}

// New creates a Pipeline.
func New(opts Options) (*Pipeline, error) {
	if opts.Collector == nil || opts.Classifier == nil || opts.Retention == nil {
		return nil, errors.New("pipeline: collector, classifier and retention are required")
	}
	if opts.LeaseName == "" {
		opts.LeaseName = DefaultLeaseName
	}
	if opts.LeaseTTL <= 0 {
		opts.LeaseTTL = 30 * time.Minute
	}
	if opts.Holder == "" {
		host, _ := os.Hostname()
		opts.Holder = fmt.Sprintf("%s-%d", host, os.Getpid())
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.MaxRecords <= 0 {
		opts.MaxRecords = 5000
	}
	if opts.RetentionHours < 0 {
		opts.RetentionHours = 24
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = 20 * time.Second
	}

	return &Pipeline{
		collector:      opts.Collector,
		adapters:       opts.Adapters,
		classifier:     opts.Classifier,
		retention:      opts.Retention,
		notifier:       opts.Notifier,
		leases:         opts.Leases,
		leaseName:      opts.LeaseName,
		leaseTTL:       opts.LeaseTTL,
		holder:         opts.Holder,
		loc:            opts.Location,
		maxRecords:     opts.MaxRecords,
		retentionHours: opts.RetentionHours,
		purgeNonPassed: opts.PurgeNonPassed,
		notifyTimeout:  opts.NotifyTimeout,
		clock:          func() time.Time { return time.Now().UTC() },
		newID:          func() string { return uuid.NewString() },
		logger:         logging.OrNop(opts.Logger).Named("pipeline"),
	}, nil
}

// WithClock sets a custom clock function for deterministic output.
func (p *Pipeline) WithClock(clock func() time.Time) *Pipeline {
	p.clock = clock
	return p
}

// Running reports whether a run is executing.
func (p *Pipeline) Running() bool {
	return p.running.Load()
}

// Status returns a snapshot of the run history.
func (p *Pipeline) Status() Status {
	p.statusMu.RLock()
	defer p.statusMu.RUnlock()
	s := p.status
	s.Running = p.running.Load()
	return s
}

// RunOnce executes one full cycle. Overlapping calls fail fast with
// ErrRunInProgress or ErrLeaseHeld. Once collection finishes, persistence
// runs to completion even if ctx is cancelled.
func (p *Pipeline) RunOnce(ctx context.Context, opts RunOptions) (*domain.RunResult, error) {
	if !p.runMu.TryLock() {
		p.reject("in_progress")
		return nil, ErrRunInProgress
	}
	defer p.runMu.Unlock()

	if p.leases != nil {
		ok, err := p.leases.Acquire(ctx, p.leaseName, p.holder, p.leaseTTL)
		if err != nil {
			return nil, fmt.Errorf("acquire run lease: %w", err)
		}
		if !ok {
			p.reject("lease_held")
			return nil, ErrLeaseHeld
		}
		defer func() {
			if err := p.leases.Release(context.WithoutCancel(ctx), p.leaseName, p.holder); err != nil {
				p.logger.Warn("release run lease failed", zap.Error(err))
			}
		}()
	}

	p.running.Store(true)
	defer p.running.Store(false)

	started := p.clock()
	res, err := p.run(ctx, opts, started)
	finished := p.clock()

	status := domain.RunStatusSuccess
	if err != nil {
		status = domain.RunStatusFailed
	}
	observability.RecordPipelineRun(status, finished.Sub(started).Seconds(), finished.Unix())
	p.record(res, err, finished)
	return res, err
}

func (p *Pipeline) run(ctx context.Context, opts RunOptions, started time.Time) (*domain.RunResult, error) {
	runID := p.newID()
	logger := p.logger.With(zap.String("run_id", runID))
	ref := opts.Reference
	if ref.IsZero() {
		ref = started
	}

	// Phase 1: collect
	batch, err := p.collector.Collect(ctx, p.adapters, p.maxRecords)
	if err != nil {
		return nil, fmt.Errorf("collect: %w", err)
	}
	logger.Info("collected", zap.Int("records", len(batch.Records)), zap.Int("sources", len(batch.Reports)))

	// Collection is the only cancellable phase.
	ctx = context.WithoutCancel(ctx)

	// Phase 2: window
	windowed, w := window.Select(batch.Records, p.loc, ref)

	// Phase 3: classify
	cls := p.classifyAll(windowed, started)
	if cls.err != nil {
		return nil, fmt.Errorf("classify: %w", cls.err)
	}

	res := &domain.RunResult{
		RunID:        runID,
		Collected:    len(batch.Records),
		Windowed:     len(windowed),
		Passed:       len(cls.passedIDs),
		Categories:   cls.categories,
		WindowStart:  w.Start,
		WindowEnd:    w.End,
		Location:     w.Location,
		PassedAssets: cls.links,
		Sources:      batch.Reports,
		StartedAt:    started,
	}

	// Phase 4: persist
	if _, err := p.retention.AppendRaw(ctx, batch.Records, started); err != nil {
		return nil, fmt.Errorf("append raw: %w", err)
	}
	if _, err := p.retention.UpsertPassed(ctx, cls.assets); err != nil {
		return nil, fmt.Errorf("upsert passed: %w", err)
	}
	purged, err := p.retention.Purge(ctx, retention.PurgeRequest{
		Window:         w,
		PassedIDs:      cls.passedIDs,
		Cutoff:         started.Add(-time.Duration(p.retentionHours) * time.Hour),
		PurgeNonPassed: p.purgeNonPassed,
	})
	if err != nil {
		return nil, fmt.Errorf("purge: %w", err)
	}
	res.Purged = purged
	res.FinishedAt = p.clock()

	if err := p.retention.LogRun(ctx, p.logEntry(res)); err != nil {
		return nil, fmt.Errorf("log run: %w", err)
	}

	// Phase 5: notify
	if !opts.SkipNotify && p.notifier != nil {
		res.Notified = report.Dispatch(ctx, p.notifier, report.FormatDigest(res), p.notifyTimeout, logger)
	}

	logger.Info("run completed",
		zap.Int("collected", res.Collected),
		zap.Int("windowed", res.Windowed),
		zap.Int("passed", res.Passed),
		zap.Int64("purged_non_passed", purged.NonPassed),
		zap.Int64("purged_expired", purged.Expired),
		zap.Bool("notified", res.Notified),
	)
	return res, nil
}

type classification struct {
	categories map[domain.Category]int
	assets     []*domain.PassedAsset
	links      []domain.AssetLink
	passedIDs  []string
	err        error
}

// classifyAll classifies every windowed record. Passed assets are unique by key;
// the first passing record of a key is the one reported.
func (p *Pipeline) classifyAll(records []*domain.CandidateRecord, now time.Time) classification {
	out := classification{categories: make(map[domain.Category]int)}
	seen := make(map[string]bool)
	passedByCategory := make(map[string]int)

	for _, r := range records {
		v := p.classifier.Classify(r)
		out.categories[v.Category]++
		if !v.Pass {
			continue
		}

		key := r.Key()
		asset, err := domain.NewPassedAsset(r, v, now)
		if err != nil {
			out.err = err
			return out
		}
		out.assets = append(out.assets, asset)
		if seen[key] {
			continue
		}
		seen[key] = true
		passedByCategory[string(v.Category)]++
		out.passedIDs = append(out.passedIDs, key)
		out.links = append(out.links, domain.AssetLink{Name: r.Name, Symbol: r.Symbol, Link: report.Link(r)})
	}

	observability.RecordClassification(len(records), passedByCategory)
	return out
}

type runInfo struct {
	Mode       string                  `json:"analysis_mode"`
	Classifier string                  `json:"classifier"`
	Categories map[domain.Category]int `json:"categories"`
	Sources    []domain.SourceReport   `json:"sources"`
}

func (p *Pipeline) logEntry(res *domain.RunResult) *domain.RunLogEntry {
	info, err := json.Marshal(runInfo{
		Mode:       string(window.ModePreviousDay),
		Classifier: string(p.classifier.Mode()),
		Categories: res.Categories,
		Sources:    res.Sources,
	})
	if err != nil {
		info = []byte("{}")
	}
	return &domain.RunLogEntry{
		RunID:           res.RunID,
		StartedAt:       res.StartedAt,
		FinishedAt:      res.FinishedAt,
		RawCount:        res.Collected,
		WindowedCount:   res.Windowed,
		PassedCount:     res.Passed,
		PurgedNonPassed: res.Purged.NonPassed,
		PurgedExpired:   res.Purged.Expired,
		WindowStart:     res.WindowStart,
		WindowEnd:       res.WindowEnd,
		Status:          domain.RunStatusSuccess,
		Info:            info,
	}
}

func (p *Pipeline) reject(reason string) {
	observability.RecordRunRejected(reason)
	p.statusMu.Lock()
	p.status.Rejected++
	p.statusMu.Unlock()
}

func (p *Pipeline) record(res *domain.RunResult, err error, at time.Time) {
	p.statusMu.Lock()
	defer p.statusMu.Unlock()

	p.status.Runs++
	p.status.LastRunAt = &at
	if err != nil {
		p.status.Failures++
		p.status.LastError = err.Error()
		p.logger.Error("run failed", zap.Error(err))
		return
	}
	p.status.LastError = ""
	p.status.LastResult = res
}
