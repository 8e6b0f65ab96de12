// Package retention persists the outcome of a run: the raw log, the
// deduplicated passed assets and the audit trail, and enforces raw-log expiry.
package retention

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"token-screener/internal/domain"
	"token-screener/internal/logging"
	"token-screener/internal/observability"
	"token-screener/internal/storage"
)

// Options contains configuration for creating a Store.
type Options struct {
	RawLog  storage.RawLogStore      // required
	Passed  storage.PassedAssetStore // required
	RunLog  storage.RunLogStore      // required
	Mirrors []storage.RunLogStore    // best effort, e.g. ClickHouse
	Policy  domain.ConflictPolicy    // Default: ignore
	Logger  *zap.Logger
}

// Store coordinates the retention backends.
type Store struct {
	raw     storage.RawLogStore
	passed  storage.PassedAssetStore
	runLog  storage.RunLogStore
	mirrors []storage.RunLogStore
	policy  domain.ConflictPolicy
	logger  *zap.Logger
}

// New creates a retention store.
func New(opts Options) (*Store, error) {
	if opts.RawLog == nil || opts.Passed == nil || opts.RunLog == nil {
		return nil, fmt.Errorf("%w: raw log, passed and run log stores are required", storage.ErrInvalidInput)
	}
	if opts.Policy == "" {
		opts.Policy = domain.ConflictIgnore
	}
	if !opts.Policy.IsValid() {
		return nil, fmt.Errorf("%w: conflict policy %q", storage.ErrInvalidInput, opts.Policy)
	}
	return &Store{
		raw:     opts.RawLog,
		passed:  opts.Passed,
		runLog:  opts.RunLog,
		mirrors: opts.Mirrors,
		policy:  opts.Policy,
		logger:  logging.OrNop(opts.Logger).Named("retention"),
	}, nil
}

// Policy returns the configured conflict policy.
func (s *Store) Policy() domain.ConflictPolicy {
	return s.policy
}

// AppendRaw writes every collected record in one transaction.
func (s *Store) AppendRaw(ctx context.Context, records []*domain.CandidateRecord, ingestedAt time.Time) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	return s.raw.AppendBulk(ctx, records, ingestedAt)
}

// UpsertPassed writes passed assets keyed by identifier. Duplicates inside the
// batch collapse first: first wins under ignore, last wins under overwrite.
func (s *Store) UpsertPassed(ctx context.Context, passed []*domain.PassedAsset) (int, error) {
	deduped := dedupe(passed, s.policy)
	if len(deduped) == 0 {
		return 0, nil
	}
	return s.passed.UpsertBulk(ctx, deduped, s.policy)
}

func dedupe(assets []*domain.PassedAsset, policy domain.ConflictPolicy) []*domain.PassedAsset {
	index := make(map[string]int, len(assets))
	out := make([]*domain.PassedAsset, 0, len(assets))
	for _, a := range assets {
		i, seen := index[a.Identifier]
		switch {
		case !seen:
			index[a.Identifier] = len(out)
			out = append(out, a)
		case policy == domain.ConflictOverwrite:
			firstSeen := out[i].FirstSeenAt
			replaced := *a
			replaced.FirstSeenAt = firstSeen
			out[i] = &replaced
		}
	}
	return out
}

// PurgeRequest selects what Purge deletes.
type PurgeRequest struct {
	Window         domain.Window
	PassedIDs      []string // keys that must survive the non-passed purge
	Cutoff         time.Time
	PurgeNonPassed bool
}

// Purge removes non-passed raw rows of the window (when enabled) and every raw
// row observed before the cutoff. Both deletions run even if the first fails.
func (s *Store) Purge(ctx context.Context, req PurgeRequest) (domain.PurgeCounts, error) {
	var counts domain.PurgeCounts
	var errs []error

	if req.PurgeNonPassed {
		n, err := s.raw.DeleteInWindowExcept(ctx, req.Window.Start, req.Window.End, req.PassedIDs)
		if err != nil {
			errs = append(errs, fmt.Errorf("purge non-passed: %w", err))
		}
		counts.NonPassed = n
	}

	n, err := s.raw.DeleteObservedBefore(ctx, req.Cutoff)
	if err != nil {
		errs = append(errs, fmt.Errorf("purge expired: %w", err))
	}
	counts.Expired = n

	observability.RecordPurge(counts.NonPassed, counts.Expired)
	return counts, errors.Join(errs...)
}

// LogRun appends the audit entry. Mirror failures are logged, not returned.
func (s *Store) LogRun(ctx context.Context, e *domain.RunLogEntry) error {
	if err := s.runLog.Insert(ctx, e); err != nil {
		return err
	}
	for _, m := range s.mirrors {
		if err := m.Insert(ctx, e); err != nil {
			s.logger.Warn("run log mirror failed", zap.String("run_id", e.RunID), zap.Error(err))
		}
	}
	return nil
}

// RecentRuns returns up to limit audit entries, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]*domain.RunLogEntry, error) {
	return s.runLog.GetRecent(ctx, limit)
}
