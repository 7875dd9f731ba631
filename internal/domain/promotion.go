package domain

import "time"

// PromotionState is the reconciliation state of one identifier.
type PromotionState string

// Promotion states. Promoted and Rejected are terminal.
const (
	StateUngrouped         PromotionState = "ungrouped"
	StateGrouped           PromotionState = "grouped"
	StatePromotionEligible PromotionState = "promotion_eligible"
	StatePromoted          PromotionState = "promoted"
	StateRejected          PromotionState = "rejected"
)

// RejectReason explains a Rejected promotion.
type RejectReason string

// Rejection reasons.
const (
	RejectAlreadyCanonical RejectReason = "already-canonical"
	RejectGroupEmpty       RejectReason = "group-empty"
	RejectBelowThreshold   RejectReason = "below-threshold"
)

// PromotionGroup is the derived view of all unpromoted submissions sharing an
// identifier. It is computed on demand and never persisted.
type PromotionGroup struct {
	Identifier             Identifier              `json:"identifier"`
	RepresentativeMetadata *ProductMetadata        `json:"representative_metadata,omitempty"`
	Members                []*UnofficialSubmission `json:"members"`
	FirstSeenAt            time.Time               `json:"first_seen_at"`
	LastSeenAt             time.Time               `json:"last_seen_at"`
	DistinctUserCount      int                     `json:"distinct_user_count"`
	State                  PromotionState          `json:"state"`
}

// Eligible reports whether the group may be promoted without an override.
func (g *PromotionGroup) Eligible() bool {
	return g.State == StatePromotionEligible
}

// MemberIDs returns the submission IDs in the group.
func (g *PromotionGroup) MemberIDs() []string {
	ids := make([]string, len(g.Members))
	for i, m := range g.Members {
		ids[i] = m.ID
	}
	return ids
}
