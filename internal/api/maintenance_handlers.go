package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/wishlistapp/catalog-server/internal/domain"
	domainerrors "github.com/wishlistapp/catalog-server/internal/errors"
	"github.com/wishlistapp/catalog-server/internal/imagecache"
	"github.com/wishlistapp/catalog-server/internal/scheduler"
)

func (s *Server) registerMaintenanceRoutes() {
	if s.services.Scheduler != nil {
		huma.Register(s.api, huma.Operation{
			OperationID: "runRefreshCycle",
			Method:      http.MethodPost,
			Path:        "/api/v1/admin/refresh",
			Summary:     "Run refresh cycle",
			Description: "Synchronously refreshes the least recently refreshed records of one kind",
			Tags:        []string{"Admin"},
		}, s.handleRefresh)
	}

	if s.services.Images != nil {
		huma.Register(s.api, huma.Operation{
			OperationID: "collectImages",
			Method:      http.MethodPost,
			Path:        "/api/v1/admin/images/gc",
			Summary:     "Garbage collect images",
			Description: "Deletes cached images older than the given age",
			Tags:        []string{"Admin"},
		}, s.handleImageGC)
	}
}

// === DTOs ===

// RefreshInput selects the records of one refresh cycle.
type RefreshInput struct {
	Body struct {
		Kind      domain.RecordKind `json:"kind" enum:"canonical,unofficial" doc:"Record kind to refresh"`
		Threshold Duration          `json:"threshold" doc:"Refresh records last refreshed longer ago than this"`
		Limit     int               `json:"limit" minimum:"1" maximum:"500" doc:"Maximum records to process"`
	}
}

// RefreshOutput wraps the batch result for Huma.
type RefreshOutput struct {
	Body *domain.BatchResult
}

// ImageGCInput selects the images to delete.
type ImageGCInput struct {
	Body struct {
		OlderThan Duration `json:"older_than" doc:"Delete images cached longer ago than this"`
	}
}

// ImageGCOutput wraps the GC result for Huma.
type ImageGCOutput struct {
	Body *imagecache.GCResult
}

// === Handlers ===

func (s *Server) handleRefresh(ctx context.Context, input *RefreshInput) (*RefreshOutput, error) {
	res, err := s.services.Scheduler.RunCycle(ctx, scheduler.CycleParams{
		Kind:      input.Body.Kind,
		Threshold: input.Body.Threshold.Duration,
		Limit:     input.Body.Limit,
	})
	if err != nil {
		return nil, err
	}
	return &RefreshOutput{Body: res}, nil
}

func (s *Server) handleImageGC(ctx context.Context, input *ImageGCInput) (*ImageGCOutput, error) {
	res, err := s.services.Images.GarbageCollect(ctx, input.Body.OlderThan.Duration)
	if errors.Is(err, imagecache.ErrInvalidAge) {
		return nil, domainerrors.Validation("older_than must be positive")
	}
	if err != nil {
		return nil, err
	}
	s.logger.Info("Image GC finished",
		"scanned", res.Scanned,
		"deleted", res.Deleted,
		"failed", res.Failed,
		"freed_bytes", res.FreedBytes,
	)
	return &ImageGCOutput{Body: res}, nil
}
