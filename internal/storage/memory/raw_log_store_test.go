package memory

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"token-screener/internal/domain"
)

func rawRecord(id string, observedAt time.Time) *domain.CandidateRecord {
	return &domain.CandidateRecord{
		Source:     domain.SourceStatic,
		Symbol:     id,
		Name:       id,
		Identifier: &id,
		ObservedAt: observedAt,
	}
}

func TestRawLogStore_AppendAndRange(t *testing.T) {
	store := NewRawLogStore()
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	records := []*domain.CandidateRecord{
		rawRecord("b", base.Add(2*time.Hour)),
		rawRecord("a", base.Add(1*time.Hour)),
		rawRecord("c", base.Add(30*time.Hour)),
	}

	n, err := store.AppendBulk(ctx, records, base)
	if err != nil {
		t.Fatalf("AppendBulk failed: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 rows written, got %d", n)
	}

	got, err := store.GetByObservedRange(ctx, base, base.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("GetByObservedRange failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rows in range, got %d", len(got))
	}
	if got[0].Key != "a" || got[1].Key != "b" {
		t.Errorf("expected rows ordered by observed_at, got %s, %s", got[0].Key, got[1].Key)
	}
	if got[0].RecordID == "" || got[0].ID == 0 {
		t.Errorf("expected record id and row id to be assigned")
	}
}

func TestRawLogStore_AppendStoresCopy(t *testing.T) {
	store := NewRawLogStore()
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	r := rawRecord("a", base)
	if _, err := store.AppendBulk(ctx, []*domain.CandidateRecord{r}, base); err != nil {
		t.Fatalf("AppendBulk failed: %v", err)
	}
	r.Name = "mutated"

	got, _ := store.GetByObservedRange(ctx, base, base.Add(time.Hour))
	if got[0].Record.Name != "a" {
		t.Errorf("store should keep its own copy, got name %q", got[0].Record.Name)
	}
}

func TestRawLogStore_RetentionCutoff(t *testing.T) {
	store := NewRawLogStore()
	ctx := context.Background()
	now := time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC)

	old := rawRecord("old", now.Add(-25*time.Hour))
	fresh := rawRecord("fresh", now.Add(-23*time.Hour))
	if _, err := store.AppendBulk(ctx, []*domain.CandidateRecord{old, fresh}, now); err != nil {
		t.Fatalf("AppendBulk failed: %v", err)
	}

	deleted, err := store.DeleteObservedBefore(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("DeleteObservedBefore failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 deleted, got %d", deleted)
	}

	rest, _ := store.GetByObservedRange(ctx, time.Time{}, now)
	if len(rest) != 1 || rest[0].Key != "fresh" {
		t.Errorf("expected only fresh row to survive, got %+v", rest)
	}
}

func TestRawLogStore_DeleteInWindowExcept(t *testing.T) {
	store := NewRawLogStore()
	ctx := context.Background()
	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	records := []*domain.CandidateRecord{
		rawRecord("keep", start),
		rawRecord("drop", start.Add(time.Hour)),
		rawRecord("drop", end.Add(-time.Nanosecond)),
		rawRecord("outside", end),
		rawRecord("before", start.Add(-time.Second)),
	}
	if _, err := store.AppendBulk(ctx, records, start); err != nil {
		t.Fatalf("AppendBulk failed: %v", err)
	}

	deleted, err := store.DeleteInWindowExcept(ctx, start, end, []string{"keep"})
	if err != nil {
		t.Fatalf("DeleteInWindowExcept failed: %v", err)
	}
	if deleted != 2 {
		t.Errorf("expected 2 deleted, got %d", deleted)
	}

	n, _ := store.Count(ctx)
	if n != 3 {
		t.Errorf("expected 3 rows left, got %d", n)
	}
}

// Rows whose key is kept must survive for any window bounds.
func TestRawLogStore_DeleteInWindowExcept_NeverDropsKept(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for iter := 0; iter < 50; iter++ {
		store := NewRawLogStore()
		ctx := context.Background()

		var records []*domain.CandidateRecord
		for i := 0; i < 40; i++ {
			key := fmt.Sprintf("k%d", rng.Intn(10))
			records = append(records, rawRecord(key, base.Add(time.Duration(rng.Intn(72))*time.Hour)))
		}
		if _, err := store.AppendBulk(ctx, records, base); err != nil {
			t.Fatalf("AppendBulk failed: %v", err)
		}

		keep := []string{"k1", "k3", "k7"}
		start := base.Add(time.Duration(rng.Intn(48)) * time.Hour)
		end := start.Add(time.Duration(1+rng.Intn(36)) * time.Hour)

		if _, err := store.DeleteInWindowExcept(ctx, start, end, keep); err != nil {
			t.Fatalf("DeleteInWindowExcept failed: %v", err)
		}

		rest, _ := store.GetByObservedRange(ctx, time.Time{}, base.Add(1000*time.Hour))
		survivors := make(map[string]int)
		for _, e := range rest {
			survivors[e.Key]++
		}
		for _, r := range records {
			k := r.Key()
			if k == "k1" || k == "k3" || k == "k7" {
				if survivors[k] == 0 {
					t.Fatalf("iter %d: kept key %s was deleted", iter, k)
				}
			}
		}
	}
}

func TestRawLogStore_ConcurrentAppend(t *testing.T) {
	store := NewRawLogStore()
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r := rawRecord(fmt.Sprintf("r%d", i), base)
			if _, err := store.AppendBulk(ctx, []*domain.CandidateRecord{r}, base); err != nil {
				t.Errorf("AppendBulk failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	n, _ := store.Count(ctx)
	if n != 10 {
		t.Errorf("expected 10 rows, got %d", n)
	}
}
