package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/boothcam/internal/api/models"
	"github.com/smazurov/boothcam/internal/bridge"
)

var commandErrors = []int{401, 403, 404, 409, 500, 503}

func commandResponse(res bridge.Result) (*models.CommandResponse, error) {
	if !res.Success {
		return nil, newCommandError(res)
	}
	return &models.CommandResponse{
		Body: models.CommandData{
			Success:       true,
			SurfaceHandle: res.SurfaceHandle,
			DisplayName:   res.DisplayName,
			Path:          res.Path,
		},
	}, nil
}

func (s *Server) registerCameraRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "camera-initialize",
		Method:      http.MethodPost,
		Path:        "/api/camera/initialize",
		Summary:     "Initialize Camera",
		Description: "Bind a camera, disposing the current one first. Returns the preview surface handle.",
		Tags:        []string{"camera"},
		Security:    withAuth(),
		Errors:      commandErrors,
	}, func(ctx context.Context, input *models.InitializeRequest) (*models.CommandResponse, error) {
		return commandResponse(s.options.Bridge.Initialize(ctx, input.Body.DeviceID))
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "camera-start-preview",
		Method:      http.MethodPost,
		Path:        "/api/camera/preview",
		Summary:     "Start Preview",
		Description: "Start the live preview, or queue it until the capture session is configured",
		Tags:        []string{"camera"},
		Security:    withAuth(),
		Errors:      commandErrors,
	}, func(ctx context.Context, _ *struct{}) (*models.CommandResponse, error) {
		return commandResponse(s.options.Bridge.StartPreview(ctx))
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "camera-take-picture",
		Method:      http.MethodPost,
		Path:        "/api/camera/capture",
		Summary:     "Take Picture",
		Description: "Capture one still and return the path it was saved to",
		Tags:        []string{"camera"},
		Security:    withAuth(),
		Errors:      commandErrors,
	}, func(ctx context.Context, _ *struct{}) (*models.CommandResponse, error) {
		return commandResponse(s.options.Bridge.TakePicture(ctx))
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "camera-dispose",
		Method:      http.MethodPost,
		Path:        "/api/camera/dispose",
		Summary:     "Dispose Camera",
		Description: "Release the camera. Always succeeds.",
		Tags:        []string{"camera"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(ctx context.Context, _ *struct{}) (*models.CommandResponse, error) {
		return commandResponse(s.options.Bridge.Dispose(ctx))
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "camera-state",
		Method:      http.MethodGet,
		Path:        "/api/camera/state",
		Summary:     "Camera State",
		Description: "Current session state and bound camera",
		Tags:        []string{"camera"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.CameraStateResponse, error) {
		cam := s.options.Camera
		data := models.CameraStateData{
			State:              cam.State().String(),
			DiscardedCallbacks: cam.DiscardedCallbacks(),
		}
		if desc, ok := cam.Device(); ok {
			data.DeviceID = desc.ID
			data.DisplayName = desc.DisplayName()
		}
		return &models.CameraStateResponse{Body: data}, nil
	})
}
