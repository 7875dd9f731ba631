package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/wishlistapp/catalog-server/internal/domain"
	"github.com/wishlistapp/catalog-server/internal/service"
)

func (s *Server) registerProductRoutes() {
	if s.services.Lookup == nil {
		return
	}

	huma.Register(s.api, huma.Operation{
		OperationID: "resolveProduct",
		Method:      http.MethodPost,
		Path:        "/api/v1/products/resolve",
		Summary:     "Resolve product link",
		Description: "Extracts the product identifier from a marketplace link, short link or bare identifier",
		Tags:        []string{"Products"},
		Middlewares: huma.Middlewares{s.rateLimit},
	}, s.handleResolveProduct)

	huma.Register(s.api, huma.Operation{
		OperationID: "lookupProduct",
		Method:      http.MethodPost,
		Path:        "/api/v1/products/lookup",
		Summary:     "Look up product",
		Description: "Scrapes public product metadata and caches the product image. Never fails on upstream errors; check metadata.quality",
		Tags:        []string{"Products"},
		Middlewares: huma.Middlewares{s.rateLimit},
	}, s.handleLookupProduct)

	huma.Register(s.api, huma.Operation{
		OperationID:   "submitProduct",
		Method:        http.MethodPost,
		Path:          "/api/v1/products/submissions",
		Summary:       "Save product",
		Description:   "Records a user's product. Links to the catalog entry when one exists, otherwise stores a metadata snapshot",
		Tags:          []string{"Products"},
		DefaultStatus: http.StatusCreated,
		Middlewares:   huma.Middlewares{s.rateLimit},
	}, s.handleSubmitProduct)

	huma.Register(s.api, huma.Operation{
		OperationID: "adminLookupProduct",
		Method:      http.MethodPost,
		Path:        "/api/v1/admin/products/lookup",
		Summary:     "Look up product in catalog",
		Description: "Fetches authoritative metadata from the catalog API",
		Tags:        []string{"Admin"},
	}, s.handleAdminLookupProduct)
}

// === DTOs ===

// ProductURLInput carries a user-supplied product reference.
type ProductURLInput struct {
	Body struct {
		URL string `json:"url" minLength:"1" maxLength:"2048" doc:"Product link, short link or bare identifier"`
	}
}

// ResolveResponse is the result of resolving a product link.
type ResolveResponse struct {
	Identifier domain.Identifier `json:"identifier" doc:"Marketplace product identifier"`
	SourceURL  string            `json:"source_url" doc:"Canonical product page URL"`
}

// ResolveOutput wraps the resolve response for Huma.
type ResolveOutput struct {
	Body ResolveResponse
}

// ProductResponse is a looked-up product.
type ProductResponse struct {
	Identifier  domain.Identifier      `json:"identifier" doc:"Marketplace product identifier"`
	SourceURL   string                 `json:"source_url" doc:"Canonical product page URL"`
	Metadata    domain.ProductMetadata `json:"metadata" doc:"Fetched metadata; image_url is in proxy form when cached"`
	CanonicalID string                 `json:"canonical_id,omitempty" doc:"Existing catalog entry for this identifier"`
}

// ProductOutput wraps the product response for Huma.
type ProductOutput struct {
	Body ProductResponse
}

// SubmitInput identifies the saving user and the product.
type SubmitInput struct {
	Body struct {
		UserID string `json:"user_id" minLength:"1" maxLength:"128" doc:"Owning user, as known to the host application"`
		URL    string `json:"url" minLength:"1" maxLength:"2048" doc:"Product link, short link or bare identifier"`
	}
}

// SubmitOutput wraps the stored submission for Huma.
type SubmitOutput struct {
	Body *domain.UnofficialSubmission
}

// === Handlers ===

func (s *Server) handleResolveProduct(ctx context.Context, input *ProductURLInput) (*ResolveOutput, error) {
	ctx, cancel := service.WithLookupTimeout(ctx)
	defer cancel()

	ident, err := s.services.Lookup.Resolve(ctx, input.Body.URL)
	if err != nil {
		return nil, err
	}
	return &ResolveOutput{Body: ResolveResponse{
		Identifier: ident,
		SourceURL:  productURL(ident),
	}}, nil
}

func (s *Server) handleLookupProduct(ctx context.Context, input *ProductURLInput) (*ProductOutput, error) {
	ctx, cancel := service.WithLookupTimeout(ctx)
	defer cancel()

	res, err := s.services.Lookup.Lookup(ctx, input.Body.URL)
	if err != nil {
		return nil, err
	}
	return &ProductOutput{Body: toProductResponse(res)}, nil
}

func (s *Server) handleSubmitProduct(ctx context.Context, input *SubmitInput) (*SubmitOutput, error) {
	ctx, cancel := service.WithLookupTimeout(ctx)
	defer cancel()

	sub, err := s.services.Lookup.Submit(ctx, input.Body.UserID, input.Body.URL)
	if err != nil {
		return nil, err
	}
	return &SubmitOutput{Body: sub}, nil
}

func (s *Server) handleAdminLookupProduct(ctx context.Context, input *ProductURLInput) (*ProductOutput, error) {
	ctx, cancel := service.WithLookupTimeout(ctx)
	defer cancel()

	res, err := s.services.Lookup.AdminLookup(ctx, input.Body.URL)
	if err != nil {
		return nil, err
	}
	return &ProductOutput{Body: toProductResponse(res)}, nil
}

func toProductResponse(res *service.LookupResult) ProductResponse {
	out := ProductResponse{
		Identifier: res.Identifier,
		SourceURL:  res.SourceURL,
		Metadata:   res.Metadata,
	}
	if res.Canonical != nil {
		out.CanonicalID = res.Canonical.ID
	}
	return out
}
