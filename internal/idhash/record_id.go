package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"token-screener/internal/domain"
)

// ComputeRecordID computes a deterministic record id using SHA256.
// Formula: SHA256(source|key|observed_at_ms)
// Returns hex-encoded hash (64 characters).
func ComputeRecordID(source domain.Source, key string, observedAtMs int64) string {
	data := fmt.Sprintf("%s|%s|%d", string(source), key, observedAtMs)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// ForRecord computes the record id of a collected record.
func ForRecord(r *domain.CandidateRecord) string {
	return ComputeRecordID(r.Source, r.Key(), r.ObservedAt.UnixMilli())
}
