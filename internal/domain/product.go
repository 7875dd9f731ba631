package domain

// CanonicalProduct is the single authoritative catalog entry for an identifier.
// It is created by promotion (or administrative entry) and afterwards only
// mutated by scheduled metadata refreshes.
type CanonicalProduct struct {
	Record
	Identifier   Identifier      `json:"identifier"`
	Metadata     ProductMetadata `json:"metadata"`
	Category     string          `json:"category,omitempty"`
	SourceURL    string          `json:"source_url"`
	AffiliateURL string          `json:"affiliate_url,omitempty"`
}

// UnofficialSubmission is a user-owned product record. Before promotion it
// carries its own metadata snapshot; after promotion Metadata is nil and
// CanonicalID points at the canonical record.
type UnofficialSubmission struct {
	Record
	Identifier  Identifier       `json:"identifier"`
	UserID      string           `json:"user_id"`
	Metadata    *ProductMetadata `json:"metadata,omitempty"`
	CanonicalID string           `json:"canonical_id,omitempty"`
	SourceURL   string           `json:"source_url,omitempty"`
}

// IsPromoted reports whether the submission has been folded into a canonical record.
func (s *UnofficialSubmission) IsPromoted() bool {
	return s.CanonicalID != ""
}
