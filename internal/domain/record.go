// Package domain contains the core entities of the product catalog pipeline:
// canonical products, unofficial user submissions, cached images and the
// derived promotion groups built from them.
package domain

import "time"

// Record provides the identity and timestamp fields shared by persisted
// catalog entities. It gets embedded in CanonicalProduct and
// UnofficialSubmission.
type Record struct {
	ID              string    `json:"id"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	LastRefreshedAt time.Time `json:"last_refreshed_at"`
}

// InitTimestamps sets every timestamp to now. Call this when creating a new record.
func (r *Record) InitTimestamps() {
	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now
	r.LastRefreshedAt = now
}

// Touch updates UpdatedAt. Call this whenever the record changes.
func (r *Record) Touch() {
	r.UpdatedAt = time.Now().UTC()
}

// MarkRefreshed stamps a successful metadata refresh at the given time.
func (r *Record) MarkRefreshed(at time.Time) {
	r.LastRefreshedAt = at.UTC()
	r.UpdatedAt = at.UTC()
}

// RecordKind distinguishes the two refreshable record families.
type RecordKind string

// Record kinds.
const (
	KindCanonical  RecordKind = "canonical"
	KindUnofficial RecordKind = "unofficial"
)

// Valid reports whether k is a known record kind.
func (k RecordKind) Valid() bool {
	return k == KindCanonical || k == KindUnofficial
}
