package domain

import (
	"encoding/json"
	"time"
)

// Run statuses.
const (
	RunStatusSuccess = "success"
	RunStatusFailed  = "failed"
)

// RawEntry is one row of the append-only raw log.
type RawEntry struct {
	ID         int64
	RecordID   string // idhash.ComputeRecordID
	Key        string // CandidateRecord.Key()
	IngestedAt time.Time
	Record     *CandidateRecord
}

// SourceReport summarizes one adapter's contribution to a run.
type SourceReport struct {
	Source  Source `json:"source"`
	Records int    `json:"records"`
	Pages   int    `json:"pages"`
	Err     string `json:"error,omitempty"`
}

// PurgeCounts holds the number of raw rows removed by each purge rule.
type PurgeCounts struct {
	NonPassed int64 `json:"non_passed"`
	Expired   int64 `json:"expired"`
}

// AssetLink is a passed asset as shown to humans.
type AssetLink struct {
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
	Link   string `json:"link,omitempty"`
}

// RunResult is returned to whoever triggered the run.
type RunResult struct {
	RunID        string           `json:"run_id"`
	Collected    int              `json:"collected"`
	Windowed     int              `json:"windowed"`
	Passed       int              `json:"passed"`
	Categories   map[Category]int `json:"categories"`
	WindowStart  time.Time        `json:"window_start"`
	WindowEnd    time.Time        `json:"window_end"`
	Location     string           `json:"timezone"`
	PassedAssets []AssetLink      `json:"passed_assets"`
	Sources      []SourceReport   `json:"sources"`
	Purged       PurgeCounts      `json:"purged"`
	Notified     bool             `json:"notified"`
	StartedAt    time.Time        `json:"started_at"`
	FinishedAt   time.Time        `json:"finished_at"`
}

// RunLogEntry is an audit row describing a completed or failed run.
type RunLogEntry struct {
	RunID           string
	StartedAt       time.Time
	FinishedAt      time.Time
	RawCount        int
	WindowedCount   int
	PassedCount     int
	PurgedNonPassed int64
	PurgedExpired   int64
	WindowStart     time.Time
	WindowEnd       time.Time
	Status          string
	Info            json.RawMessage
}
