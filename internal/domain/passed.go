package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// PassedAsset is a deduplicated record that passed classification.
// Corresponds to passed_assets table in PostgreSQL; at most one row per Identifier.
type PassedAsset struct {
	Identifier  string // PRIMARY KEY, CandidateRecord.Key()
	Source      Source
	Symbol      string
	Name        string
	Chain       *string
	Category    Category
	Score       float64
	ObservedAt  time.Time
	FirstSeenAt time.Time
	UpdatedAt   time.Time
	Payload     json.RawMessage // full record as JSON
}

// NewPassedAsset builds the persisted form of a passing record.
func NewPassedAsset(r *CandidateRecord, v Verdict, now time.Time) (*PassedAsset, error) {
	payload, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal record payload: %w", err)
	}
	return &PassedAsset{
		Identifier:  r.Key(),
		Source:      r.Source,
		Symbol:      r.Symbol,
		Name:        r.Name,
		Chain:       clonePtr(r.Chain),
		Category:    v.Category,
		Score:       v.Score,
		ObservedAt:  r.ObservedAt,
		FirstSeenAt: now,
		UpdatedAt:   now,
		Payload:     payload,
	}, nil
}

// ConflictPolicy selects what happens when a passed asset already exists.
type ConflictPolicy string

const (
	// ConflictIgnore keeps the first-seen row.
	ConflictIgnore ConflictPolicy = "ignore"
	// ConflictOverwrite replaces the row with the latest data, keeping FirstSeenAt.
	ConflictOverwrite ConflictPolicy = "overwrite"
)

// IsValid checks if the policy is a known value.
func (p ConflictPolicy) IsValid() bool {
	return p == ConflictIgnore || p == ConflictOverwrite
}
