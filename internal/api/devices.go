package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/boothcam/internal/api/models"
)

func (s *Server) registerDeviceRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-devices",
		Method:      http.MethodGet,
		Path:        "/api/devices",
		Summary:     "List Devices",
		Description: "List cameras with their classified facing",
		Tags:        []string{"devices"},
		Security:    withAuth(),
		Errors:      []int{401, 500},
	}, func(ctx context.Context, _ *struct{}) (*models.DevicesResponse, error) {
		descs, err := s.options.Devices.ListDevices(ctx)
		if err != nil {
			return nil, huma.Error500InternalServerError("Failed to list devices", err)
		}

		devices := make([]models.DeviceData, len(descs))
		for i, d := range descs {
			devices[i] = models.DeviceData{
				ID:          d.ID,
				Name:        d.Name,
				DisplayName: d.DisplayName(),
				Facing:      d.Facing.String(),
			}
		}
		return &models.DevicesResponse{
			Body: models.DeviceListData{Devices: devices, Count: len(devices)},
		}, nil
	})
}
