// Package api serves the camera over HTTP with huma: device listing, camera
// commands, preview frames, error reports and a server-sent event stream.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/smazurov/boothcam/internal/api/models"
	"github.com/smazurov/boothcam/internal/bridge"
	"github.com/smazurov/boothcam/internal/camera"
	"github.com/smazurov/boothcam/internal/diagnostics"
	"github.com/smazurov/boothcam/internal/events"
	"github.com/smazurov/boothcam/internal/logging"
	"github.com/smazurov/boothcam/internal/session"
	"github.com/smazurov/boothcam/internal/surface"
	"github.com/smazurov/boothcam/internal/version"
)

// DeviceLister lists cameras.
type DeviceLister interface {
	ListDevices(ctx context.Context) ([]camera.Descriptor, error)
}

// CameraStatus reports the controller's current state.
type CameraStatus interface {
	State() session.State
	Device() (camera.Descriptor, bool)
	DiscardedCallbacks() uint64
}

// SurfaceLookup finds preview surfaces by handle.
type SurfaceLookup interface {
	Lookup(handle int64) (surface.Surface, error)
}

// ErrorLog returns recent terminal errors.
type ErrorLog interface {
	Recent(n int) []diagnostics.Report
}

// Options wires the server to the rest of the application.
type Options struct {
	AuthUsername      string
	AuthPassword      string
	Bridge            *bridge.Bridge
	Camera            CameraStatus
	Devices           DeviceLister
	Surfaces          SurfaceLookup
	Diagnostics       ErrorLog
	EventBus          *events.Bus
	JPEGQuality       int
	PrometheusHandler http.Handler // Optional Prometheus metrics handler
}

// Server is the HTTP API.
type Server struct {
	api        huma.API
	mux        *http.ServeMux
	httpServer *http.Server
	options    *Options
	eventBus   *events.Bus
	logger     *slog.Logger
}

// NewServer creates the API and registers every route.
func NewServer(opts *Options) *Server {
	mux := http.NewServeMux()
	cors := DefaultCORSConfig()
	AddCORSHandler(mux, cors)

	config := huma.DefaultConfig("boothcam API", version.String())
	config.Info.Description = "Camera session control for photo booths"
	config.Servers = []*huma.Server{}
	config.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"basicAuth": {
			Type:   "http",
			Scheme: "basic",
		},
	}

	api := humago.New(mux, config)
	s := &Server{
		api:      api,
		mux:      mux,
		options:  opts,
		eventBus: opts.EventBus,
		logger:   logging.GetLogger("api"),
	}

	api.UseMiddleware(NewCORSMiddleware(cors))
	api.UseMiddleware(HTTPLoggingMiddleware)
	if opts.AuthUsername != "" && opts.AuthPassword != "" {
		api.UseMiddleware(basicAuthMiddleware(api, opts.AuthUsername, opts.AuthPassword))
	}

	if opts.PrometheusHandler != nil {
		mux.Handle("GET /metrics", opts.PrometheusHandler)
	}

	s.registerRoutes()
	return s
}

// GetMux returns the underlying ServeMux.
func (s *Server) GetMux() *http.ServeMux {
	return s.mux
}

// GetAPI returns the huma API.
func (s *Server) GetAPI() huma.API {
	return s.api
}

// Start listens on addr until Stop is called.
func (s *Server) Start(addr string) error {
	s.logger.Info("Starting boothcam API server", "addr", addr)
	s.logger.Info("OpenAPI documentation available", "url", "http://"+addr+"/docs")

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts the server down, waiting for in-flight requests until ctx ends.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping API server")
	if s.httpServer == nil {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return s.httpServer.Close()
	}
	return nil
}

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "health-check",
		Method:      http.MethodGet,
		Path:        "/api/health",
		Summary:     "Health",
		Description: "Check API health status",
		Tags:        []string{"health"},
		Security:    []map[string][]string{},
	}, func(_ context.Context, _ *struct{}) (*models.HealthResponse, error) {
		return &models.HealthResponse{
			Body: models.HealthData{Status: "ok", Message: "API is healthy"},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-version",
		Method:      http.MethodGet,
		Path:        "/api/version",
		Summary:     "Version",
		Description: "Get application version information",
		Tags:        []string{"system"},
		Security:    []map[string][]string{},
	}, func(_ context.Context, _ *struct{}) (*models.VersionResponse, error) {
		info := version.Get()
		return &models.VersionResponse{
			Body: models.VersionData{
				Version:   info.Version,
				GitCommit: info.GitCommit,
				BuildDate: info.BuildDate,
				Modified:  info.Modified,
				GoVersion: info.GoVersion,
				Compiler:  info.Compiler,
				Platform:  info.Platform,
			},
		}, nil
	})

	s.registerDeviceRoutes()
	s.registerCameraRoutes()
	s.registerSurfaceRoutes()
	s.registerDiagnosticsRoutes()
	s.registerSSERoutes()
}

// withAuth returns the basic auth security requirement.
func withAuth() []map[string][]string {
	return []map[string][]string{
		{"basicAuth": {}},
	}
}
