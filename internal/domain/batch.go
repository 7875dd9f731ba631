package domain

import "time"

// ItemError records why one batch item failed.
type ItemError struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// BatchResult aggregates the outcome of one refresh cycle.
// Partial is set when the cycle stopped early on cancellation. Degraded
// items are also counted in Succeeded.
type BatchResult struct {
	RunID      string      `json:"run_id"`
	Kind       RecordKind  `json:"kind"`
	Total      int         `json:"total"`
	Succeeded  int         `json:"succeeded"`
	Degraded   int         `json:"degraded"`
	Failed     int         `json:"failed"`
	Errors     []ItemError `json:"errors"`
	Partial    bool        `json:"partial"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
}

// RecordFailure appends an item error and bumps the failure count.
func (r *BatchResult) RecordFailure(id string, err error) {
	r.Failed++
	r.Errors = append(r.Errors, ItemError{ID: id, Error: err.Error()})
}

// RecordSuccess bumps the success count.
func (r *BatchResult) RecordSuccess() {
	r.Succeeded++
}

// RecordDegraded counts an item refreshed with placeholder metadata.
func (r *BatchResult) RecordDegraded() {
	r.Succeeded++
	r.Degraded++
}

// Processed returns how many items were attempted.
func (r *BatchResult) Processed() int {
	return r.Succeeded + r.Failed
}
