package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/boothcam/internal/api/models"
	"github.com/smazurov/boothcam/internal/storage"
	"github.com/smazurov/boothcam/internal/surface"
)

func (s *Server) registerSurfaceRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "surface-frame",
		Method:      http.MethodGet,
		Path:        "/api/surfaces/{handle}/frame",
		Summary:     "Preview Frame",
		Description: "Latest preview frame of a surface as JPEG. Poll it to render the live preview.",
		Tags:        []string{"camera"},
		Security:    withAuth(),
		Errors:      []int{401, 404, 500},
	}, func(_ context.Context, input *models.SurfaceFrameRequest) (*models.SurfaceFrameResponse, error) {
		surf, err := s.options.Surfaces.Lookup(input.Handle)
		if err != nil {
			if errors.Is(err, surface.ErrSurfaceNotFound) {
				return nil, huma.Error404NotFound("Surface not found", err)
			}
			return nil, huma.Error500InternalServerError("Failed to look up surface", err)
		}
		frame, ok := surf.Latest()
		if !ok {
			return nil, huma.Error404NotFound("No preview frame yet")
		}

		quality := s.options.JPEGQuality
		if quality <= 0 {
			quality = storage.DefaultJPEGQuality
		}
		data, err := storage.EncodeJPEG(frame, quality)
		if err != nil {
			return nil, huma.Error500InternalServerError("Failed to encode preview frame", err)
		}
		return &models.SurfaceFrameResponse{
			ContentType:  "image/jpeg",
			CacheControl: "no-store",
			Body:         data,
		}, nil
	})
}
