package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/boothcam/internal/api/models"
)

func (s *Server) registerDiagnosticsRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "diagnostics-errors",
		Method:      http.MethodGet,
		Path:        "/api/diagnostics/errors",
		Summary:     "Recent Errors",
		Description: "Recent terminal camera errors with device, state and operation",
		Tags:        []string{"diagnostics"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, input *models.ErrorsRequest) (*models.ErrorsResponse, error) {
		reports := s.options.Diagnostics.Recent(input.Limit)
		return &models.ErrorsResponse{
			Body: models.ErrorsData{Errors: reports, Count: len(reports)},
		}, nil
	})
}
