package index

import (
	"sort"
	"strings"
	"time"
)

// StorageKey is the fixed key the record set is stored under.
const StorageKey = "prompt-analyses"

// Record maps a prompt to the job that analyses it
type Record struct {
	Prompt    string `json:"prompt"`
	RequestID string `json:"requestId"`
	Timestamp int64  `json:"timestamp"` // unix millis
}

// CreatedAt returns the record timestamp as time.
func (r Record) CreatedAt() time.Time {
	return time.UnixMilli(r.Timestamp)
}

// SortByRecency orders records newest first. Ties keep their relative order.
func SortByRecency(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp > records[j].Timestamp
	})
}

// Without returns a copy of records minus any record whose prompt equals prompt exactly.
func Without(records []Record, prompt string) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if r.Prompt != prompt {
			out = append(out, r)
		}
	}
	return out
}

// Find returns the record for prompt (exact match).
func Find(records []Record, prompt string) (Record, bool) {
	for _, r := range records {
		if r.Prompt == prompt {
			return r, true
		}
	}
	return Record{}, false
}

// Filter keeps records whose prompt contains term, case-insensitively, and truncates
// the result to limit entries when limit > 0.
func Filter(records []Record, term string, limit int) []Record {
	term = strings.ToLower(strings.TrimSpace(term))
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if term != "" && !strings.Contains(strings.ToLower(r.Prompt), term) {
			continue
		}
		out = append(out, r)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
