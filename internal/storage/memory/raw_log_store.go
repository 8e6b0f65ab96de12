package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"token-screener/internal/domain"
	"token-screener/internal/idhash"
	"token-screener/internal/storage"
)

// RawLogStore is an in-memory implementation of storage.RawLogStore.
type RawLogStore struct {
	mu     sync.RWMutex
	nextID int64
	rows   []*domain.RawEntry
}

// NewRawLogStore creates a new in-memory raw log store.
func NewRawLogStore() *RawLogStore {
	return &RawLogStore{nextID: 1}
}

// Compile-time interface check.
var _ storage.RawLogStore = (*RawLogStore)(nil)

// AppendBulk writes every record. A nil record rejects the whole batch.
func (s *RawLogStore) AppendBulk(_ context.Context, records []*domain.CandidateRecord, ingestedAt time.Time) (int, error) {
	for _, r := range records {
		if r == nil {
			return 0, storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range records {
		s.rows = append(s.rows, &domain.RawEntry{
			ID:         s.nextID,
			RecordID:   idhash.ForRecord(r),
			Key:        r.Key(),
			IngestedAt: ingestedAt.UTC(),
			Record:     r.Clone(),
		})
		s.nextID++
	}
	return len(records), nil
}

// GetByObservedRange retrieves rows with observed_at in [start, end).
func (s *RawLogStore) GetByObservedRange(_ context.Context, start, end time.Time) ([]*domain.RawEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.RawEntry
	for _, e := range s.rows {
		obs := e.Record.ObservedAt
		if !obs.Before(start) && obs.Before(end) {
			result = append(result, copyEntry(e))
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Record.ObservedAt.Before(result[j].Record.ObservedAt)
	})
	return result, nil
}

// DeleteInWindowExcept deletes rows with observed_at in [start, end) whose key is not in keep.
func (s *RawLogStore) DeleteInWindowExcept(_ context.Context, start, end time.Time, keep []string) (int64, error) {
	keepSet := make(map[string]struct{}, len(keep))
	for _, k := range keep {
		keepSet[k] = struct{}{}
	}

	return s.deleteWhere(func(e *domain.RawEntry) bool {
		obs := e.Record.ObservedAt
		if obs.Before(start) || !obs.Before(end) {
			return false
		}
		_, kept := keepSet[e.Key]
		return !kept
	}), nil
}

// DeleteObservedBefore deletes rows with observed_at < cutoff.
func (s *RawLogStore) DeleteObservedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	return s.deleteWhere(func(e *domain.RawEntry) bool {
		return e.Record.ObservedAt.Before(cutoff)
	}), nil
}

// Count returns the number of rows currently stored.
func (s *RawLogStore) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.rows)), nil
}

func (s *RawLogStore) deleteWhere(match func(*domain.RawEntry) bool) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.rows[:0]
	var deleted int64
	for _, e := range s.rows {
		if match(e) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	// Clear the tail so removed entries can be collected.
	for i := len(kept); i < len(s.rows); i++ {
		s.rows[i] = nil
	}
	s.rows = kept
	return deleted
}

func copyEntry(e *domain.RawEntry) *domain.RawEntry {
	c := *e
	c.Record = e.Record.Clone()
	return &c
}
