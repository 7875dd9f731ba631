package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/wishlistapp/catalog-server/internal/domain"
	domainerrors "github.com/wishlistapp/catalog-server/internal/errors"
	"github.com/wishlistapp/catalog-server/internal/reconcile"
)

func (s *Server) registerPromotionRoutes() {
	if s.services.Reconcile == nil {
		return
	}

	huma.Register(s.api, huma.Operation{
		OperationID: "listPromotionCandidates",
		Method:      http.MethodGet,
		Path:        "/api/v1/admin/promotions",
		Summary:     "List promotion candidates",
		Description: "Groups unpromoted submissions by identifier, most corroborated first",
		Tags:        []string{"Admin"},
	}, s.handleListPromotionCandidates)

	huma.Register(s.api, huma.Operation{
		OperationID: "promoteProduct",
		Method:      http.MethodPost,
		Path:        "/api/v1/admin/promotions/{identifier}",
		Summary:     "Promote submissions",
		Description: "Creates the canonical product for an identifier and repoints every submission in its group",
		Tags:        []string{"Admin"},
	}, s.handlePromote)

	huma.Register(s.api, huma.Operation{
		OperationID: "relinkProduct",
		Method:      http.MethodPost,
		Path:        "/api/v1/admin/promotions/{identifier}/relink",
		Summary:     "Relink submissions",
		Description: "Repoints submissions created after the identifier was promoted",
		Tags:        []string{"Admin"},
	}, s.handleRelink)
}

// === DTOs ===

// PromotionCandidate summarizes one promotion group.
type PromotionCandidate struct {
	Identifier        domain.Identifier     `json:"identifier" doc:"Marketplace product identifier"`
	Title             string                `json:"title" doc:"Title from the representative snapshot"`
	ImageURL          string                `json:"image_url,omitempty" doc:"Image from the representative snapshot"`
	State             domain.PromotionState `json:"state" doc:"grouped or promotion_eligible"`
	DistinctUserCount int                   `json:"distinct_user_count" doc:"Number of distinct submitting users"`
	SubmissionIDs     []string              `json:"submission_ids" doc:"Submissions in the group"`
	FirstSeenAt       time.Time             `json:"first_seen_at" doc:"Oldest submission"`
	LastSeenAt        time.Time             `json:"last_seen_at" doc:"Newest submission"`
}

// ListPromotionCandidatesOutput wraps the candidate list for Huma.
type ListPromotionCandidatesOutput struct {
	Body struct {
		MinDistinctUsers int                  `json:"min_distinct_users" doc:"Eligibility threshold"`
		Candidates       []PromotionCandidate `json:"candidates" doc:"Promotion groups"`
	}
}

// IdentifierPathInput carries an identifier path parameter.
type IdentifierPathInput struct {
	Identifier string `path:"identifier" doc:"Marketplace product identifier"`
}

// PromoteRequest holds optional promotion controls.
type PromoteRequest struct {
	Override bool   `json:"override,omitempty" doc:"Promote even below the distinct-user threshold"`
	Category string `json:"category,omitempty" maxLength:"200" doc:"Category for the new catalog entry"`
}

// PromoteInput wraps the promote request for Huma.
type PromoteInput struct {
	IdentifierPathInput
	Body *PromoteRequest
}

// PromotionOutput wraps a promotion result for Huma.
type PromotionOutput struct {
	Body *reconcile.Result
}

// === Handlers ===

func (s *Server) handleListPromotionCandidates(ctx context.Context, _ *struct{}) (*ListPromotionCandidatesOutput, error) {
	groups, err := s.services.Reconcile.ListCandidates(ctx)
	if err != nil {
		return nil, err
	}

	out := &ListPromotionCandidatesOutput{}
	out.Body.MinDistinctUsers = s.services.Reconcile.MinDistinctUsers()
	out.Body.Candidates = make([]PromotionCandidate, 0, len(groups))
	for i := range groups {
		g := &groups[i]
		c := PromotionCandidate{
			Identifier:        g.Identifier,
			State:             g.State,
			DistinctUserCount: g.DistinctUserCount,
			SubmissionIDs:     g.MemberIDs(),
			FirstSeenAt:       g.FirstSeenAt,
			LastSeenAt:        g.LastSeenAt,
		}
		if g.RepresentativeMetadata != nil {
			c.Title = g.RepresentativeMetadata.Title
			c.ImageURL = g.RepresentativeMetadata.ImageURL
		}
		out.Body.Candidates = append(out.Body.Candidates, c)
	}
	return out, nil
}

func (s *Server) handlePromote(ctx context.Context, input *PromoteInput) (*PromotionOutput, error) {
	ident, err := parseIdentifierParam(input.Identifier)
	if err != nil {
		return nil, err
	}

	var opts reconcile.PromoteOptions
	if input.Body != nil {
		opts.Override = input.Body.Override
		opts.Category = input.Body.Category
	}

	res, err := s.services.Reconcile.Promote(ctx, ident, opts)
	if err != nil {
		return nil, promotionError(res, err)
	}
	return &PromotionOutput{Body: res}, nil
}

func (s *Server) handleRelink(ctx context.Context, input *IdentifierPathInput) (*PromotionOutput, error) {
	ident, err := parseIdentifierParam(input.Identifier)
	if err != nil {
		return nil, err
	}

	res, err := s.services.Reconcile.Relink(ctx, ident)
	if err != nil {
		return nil, promotionError(res, err)
	}
	return &PromotionOutput{Body: res}, nil
}

// promotionError maps engine errors to HTTP errors, carrying the structured
// result as details when there is one.
func promotionError(res *reconcile.Result, err error) error {
	var derr *domainerrors.Error
	switch {
	case errors.Is(err, reconcile.ErrAlreadyPromoted), errors.Is(err, reconcile.ErrConflict):
		derr = domainerrors.Conflictf("%s", err.Error())
	case errors.Is(err, reconcile.ErrNotPromoted):
		derr = domainerrors.NotFoundf("%s", err.Error())
	case reconcile.IsRejection(err):
		derr = domainerrors.Rejectedf("%s", err.Error())
	default:
		return err
	}
	if res != nil {
		return derr.WithDetails(res)
	}
	return derr
}
