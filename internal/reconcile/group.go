package reconcile

import (
	"cmp"
	"slices"

	"github.com/wishlistapp/catalog-server/internal/domain"
)

// DefaultMinDistinctUsers is the corroboration threshold for promotion.
const DefaultMinDistinctUsers = 2

// Group buckets unpromoted submissions by identifier and derives each
// group's statistics. Promoted submissions and submissions without a
// snapshot are ignored. Groups come back sorted by distinct users
// (descending), then most recent activity, then identifier.
func Group(subs []*domain.UnofficialSubmission, minUsers int) []domain.PromotionGroup {
	if minUsers < 1 {
		minUsers = DefaultMinDistinctUsers
	}

	byID := make(map[domain.Identifier]*domain.PromotionGroup)
	users := make(map[domain.Identifier]map[string]struct{})
	var order []domain.Identifier

	for _, sub := range subs {
		if sub == nil || sub.IsPromoted() || sub.Metadata == nil {
			continue
		}
		g, ok := byID[sub.Identifier]
		if !ok {
			g = &domain.PromotionGroup{
				Identifier:  sub.Identifier,
				FirstSeenAt: sub.CreatedAt,
				LastSeenAt:  sub.CreatedAt,
			}
			byID[sub.Identifier] = g
			users[sub.Identifier] = make(map[string]struct{})
			order = append(order, sub.Identifier)
		}
		g.Members = append(g.Members, sub)
		users[sub.Identifier][sub.UserID] = struct{}{}
		if sub.CreatedAt.Before(g.FirstSeenAt) {
			g.FirstSeenAt = sub.CreatedAt
		}
		if sub.CreatedAt.After(g.LastSeenAt) {
			g.LastSeenAt = sub.CreatedAt
		}
	}

	out := make([]domain.PromotionGroup, 0, len(order))
	for _, ident := range order {
		g := byID[ident]
		g.DistinctUserCount = len(users[ident])
		g.RepresentativeMetadata = representative(g.Members)
		g.State = domain.StateGrouped
		if g.DistinctUserCount >= minUsers {
			g.State = domain.StatePromotionEligible
		}
		out = append(out, *g)
	}

	slices.SortFunc(out, func(a, b domain.PromotionGroup) int {
		if c := cmp.Compare(b.DistinctUserCount, a.DistinctUserCount); c != 0 {
			return c
		}
		if c := b.LastSeenAt.Compare(a.LastSeenAt); c != 0 {
			return c
		}
		return cmp.Compare(a.Identifier, b.Identifier)
	})
	return out
}

// representative picks the most recently updated full-quality snapshot,
// falling back to the most recently updated snapshot of any quality.
func representative(members []*domain.UnofficialSubmission) *domain.ProductMetadata {
	var best, latest *domain.UnofficialSubmission
	for _, m := range members {
		if latest == nil || m.UpdatedAt.After(latest.UpdatedAt) {
			latest = m
		}
		if m.Metadata.Quality == domain.QualityFull && (best == nil || m.UpdatedAt.After(best.UpdatedAt)) {
			best = m
		}
	}
	if best == nil {
		best = latest
	}
	if best == nil {
		return nil
	}
	md := best.Metadata.Clone()
	return &md
}
