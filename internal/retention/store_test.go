package retention

import (
	"context"
	"errors"
	"testing"
	"time"

	"token-screener/internal/domain"
	"token-screener/internal/storage"
	"token-screener/internal/storage/memory"
)

var now = time.Date(2024, 5, 2, 0, 5, 0, 0, time.UTC)

type fixture struct {
	raw    *memory.RawLogStore
	passed *memory.PassedAssetStore
	runs   *memory.RunLogStore
	store  *Store
}

func newFixture(t *testing.T, policy domain.ConflictPolicy, mirrors ...storage.RunLogStore) *fixture {
	t.Helper()
	f := &fixture{
		raw:    memory.NewRawLogStore(),
		passed: memory.NewPassedAssetStore(),
		runs:   memory.NewRunLogStore(),
	}
	s, err := New(Options{RawLog: f.raw, Passed: f.passed, RunLog: f.runs, Mirrors: mirrors, Policy: policy})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	f.store = s
	return f
}

func record(id string, observedAt time.Time) *domain.CandidateRecord {
	return &domain.CandidateRecord{Source: domain.SourceStatic, Symbol: id, Name: id, Identifier: &id, ObservedAt: observedAt}
}

func asset(id, name string, at time.Time) *domain.PassedAsset {
	return &domain.PassedAsset{Identifier: id, Name: name, Source: domain.SourceStatic, FirstSeenAt: at, UpdatedAt: at}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Options{}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
	_, err := New(Options{
		RawLog: memory.NewRawLogStore(), Passed: memory.NewPassedAssetStore(), RunLog: memory.NewRunLogStore(),
		Policy: "merge",
	})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for bad policy, got %v", err)
	}
}

func TestAppendRaw(t *testing.T) {
	f := newFixture(t, domain.ConflictIgnore)
	ctx := context.Background()

	n, err := f.store.AppendRaw(ctx, []*domain.CandidateRecord{record("a", now), record("a", now), record("b", now)}, now)
	if err != nil {
		t.Fatalf("AppendRaw: %v", err)
	}
	if n != 3 {
		t.Errorf("raw log keeps duplicates: expected 3, got %d", n)
	}

	if n, err := f.store.AppendRaw(ctx, nil, now); err != nil || n != 0 {
		t.Errorf("empty append: %d %v", n, err)
	}
}

func TestUpsertPassed_Idempotent(t *testing.T) {
	f := newFixture(t, domain.ConflictIgnore)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := f.store.UpsertPassed(ctx, []*domain.PassedAsset{asset("x", "X", now)}); err != nil {
			t.Fatalf("UpsertPassed: %v", err)
		}
	}
	all, _ := f.passed.List(ctx)
	if len(all) != 1 {
		t.Errorf("expected one row, got %d", len(all))
	}
}

func TestUpsertPassed_InBatchDuplicates(t *testing.T) {
	ctx := context.Background()
	later := now.Add(time.Hour)

	ignore := newFixture(t, domain.ConflictIgnore)
	if _, err := ignore.store.UpsertPassed(ctx, []*domain.PassedAsset{asset("x", "first", now), asset("x", "second", later)}); err != nil {
		t.Fatalf("UpsertPassed: %v", err)
	}
	got, _ := ignore.passed.GetByIdentifier(ctx, "x")
	if got.Name != "first" {
		t.Errorf("ignore: first should win, got %q", got.Name)
	}

	overwrite := newFixture(t, domain.ConflictOverwrite)
	if _, err := overwrite.store.UpsertPassed(ctx, []*domain.PassedAsset{asset("x", "first", now), asset("x", "second", later)}); err != nil {
		t.Fatalf("UpsertPassed: %v", err)
	}
	got, _ = overwrite.passed.GetByIdentifier(ctx, "x")
	if got.Name != "second" {
		t.Errorf("overwrite: last should win, got %q", got.Name)
	}
	if !got.FirstSeenAt.Equal(now) {
		t.Errorf("overwrite keeps first_seen_at, got %v", got.FirstSeenAt)
	}
}

func TestPurge_RetentionHours(t *testing.T) {
	f := newFixture(t, domain.ConflictIgnore)
	ctx := context.Background()

	old := record("old", now.Add(-25*time.Hour))
	fresh := record("fresh", now.Add(-23*time.Hour))
	if _, err := f.store.AppendRaw(ctx, []*domain.CandidateRecord{old, fresh}, now); err != nil {
		t.Fatal(err)
	}

	counts, err := f.store.Purge(ctx, PurgeRequest{
		Cutoff:    now.Add(-24 * time.Hour),
		PassedIDs: []string{"old"}, // pass status is irrelevant to expiry
	})
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if counts.Expired != 1 || counts.NonPassed != 0 {
		t.Errorf("unexpected counts: %+v", counts)
	}

	left, _ := f.raw.GetByObservedRange(ctx, now.Add(-48*time.Hour), now)
	if len(left) != 1 || left[0].Key != "fresh" {
		t.Errorf("expected only fresh row to remain, got %d rows", len(left))
	}
}

func TestPurge_NonPassedKeepsPassed(t *testing.T) {
	f := newFixture(t, domain.ConflictIgnore)
	ctx := context.Background()

	w := domain.Window{Start: now.Add(-24 * time.Hour), End: now}
	inside := now.Add(-12 * time.Hour)
	records := []*domain.CandidateRecord{record("keep", inside), record("drop", inside), record("outside", now.Add(time.Hour))}
	if _, err := f.store.AppendRaw(ctx, records, now); err != nil {
		t.Fatal(err)
	}

	counts, err := f.store.Purge(ctx, PurgeRequest{
		Window:         w,
		PassedIDs:      []string{"keep"},
		Cutoff:         now.Add(-48 * time.Hour),
		PurgeNonPassed: true,
	})
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if counts.NonPassed != 1 {
		t.Errorf("expected 1 non-passed purge, got %+v", counts)
	}
	if n, _ := f.raw.Count(ctx); n != 2 {
		t.Errorf("expected keep + outside to remain, got %d", n)
	}
}

func TestPurge_Disabled(t *testing.T) {
	f := newFixture(t, domain.ConflictIgnore)
	ctx := context.Background()
	f.store.AppendRaw(ctx, []*domain.CandidateRecord{record("drop", now.Add(-time.Hour))}, now)

	counts, err := f.store.Purge(ctx, PurgeRequest{
		Window: domain.Window{Start: now.Add(-24 * time.Hour), End: now},
		Cutoff: now.Add(-48 * time.Hour),
	})
	if err != nil || counts.NonPassed != 0 {
		t.Errorf("disabled purge should delete nothing: %+v %v", counts, err)
	}
}

// failingRaw fails the non-passed deletion only.
type failingRaw struct {
	*memory.RawLogStore
	expiredCalled bool
}

func (r *failingRaw) DeleteInWindowExcept(context.Context, time.Time, time.Time, []string) (int64, error) {
	return 0, errors.New("disk full")
}

func (r *failingRaw) DeleteObservedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.expiredCalled = true
	return r.RawLogStore.DeleteObservedBefore(ctx, cutoff)
}

func TestPurge_BothRulesRunOnFailure(t *testing.T) {
	raw := &failingRaw{RawLogStore: memory.NewRawLogStore()}
	s, err := New(Options{RawLog: raw, Passed: memory.NewPassedAssetStore(), RunLog: memory.NewRunLogStore()})
	if err != nil {
		t.Fatal(err)
	}

	_, err = s.Purge(context.Background(), PurgeRequest{PurgeNonPassed: true, Cutoff: now})
	if err == nil {
		t.Fatal("expected joined error")
	}
	if !raw.expiredCalled {
		t.Error("expiry purge must run even when the first deletion fails")
	}
}

type brokenRunLog struct{}

func (brokenRunLog) Insert(context.Context, *domain.RunLogEntry) error {
	return errors.New("mirror down")
}

func (brokenRunLog) GetRecent(context.Context, int) ([]*domain.RunLogEntry, error) {
	return nil, nil
}

func TestLogRun_MirrorFailureIsSwallowed(t *testing.T) {
	mirror := memory.NewRunLogStore()
	f := newFixture(t, domain.ConflictIgnore, brokenRunLog{}, mirror)
	ctx := context.Background()

	entry := &domain.RunLogEntry{RunID: "r1", StartedAt: now, FinishedAt: now, Status: domain.RunStatusSuccess}
	if err := f.store.LogRun(ctx, entry); err != nil {
		t.Fatalf("LogRun: %v", err)
	}

	recent, _ := f.store.RecentRuns(ctx, 10)
	if len(recent) != 1 {
		t.Errorf("primary log should have 1 entry, got %d", len(recent))
	}
	if mirrored, _ := mirror.GetRecent(ctx, 10); len(mirrored) != 1 {
		t.Errorf("healthy mirror should still receive the entry")
	}

	if err := f.store.LogRun(ctx, entry); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("duplicate run id should surface, got %v", err)
	}
}
