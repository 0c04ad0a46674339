// Package models holds the request and response bodies of the HTTP API.
package models

import "github.com/smazurov/boothcam/internal/diagnostics"

// Health check models
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"API is healthy" doc:"Status message"`
}

type HealthResponse struct {
	Body HealthData
}

// Version models
type VersionData struct {
	Version   string `json:"version" example:"1.2.0" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"a1b2c3d" doc:"Git commit hash"`
	BuildDate string `json:"build_date" example:"2026-10-14T10:30:00Z" doc:"Build timestamp"`
	Modified  bool   `json:"modified" doc:"Built from a dirty working tree"`
	GoVersion string `json:"go_version" example:"go1.24.11" doc:"Go toolchain version"`
	Compiler  string `json:"compiler" example:"gc" doc:"Go compiler"`
	Platform  string `json:"platform" example:"linux/arm64" doc:"Target platform"`
}

type VersionResponse struct {
	Body VersionData
}

// Device models
type DeviceData struct {
	ID          string `json:"id" example:"2" doc:"Driver device identifier"`
	Name        string `json:"name" example:"USB Camera" doc:"Name reported by the driver"`
	DisplayName string `json:"display_name" example:"USB Camera" doc:"Name to show to users"`
	Facing      string `json:"facing" example:"external" enum:"front,back,external,unknown" doc:"Lens facing"`
}

type DeviceListData struct {
	Devices []DeviceData `json:"devices" doc:"Discovered cameras"`
	Count   int          `json:"count" example:"3" doc:"Number of cameras"`
}

type DevicesResponse struct {
	Body DeviceListData
}

// Camera command models
type InitializeBody struct {
	DeviceID string `json:"device_id" example:"2" doc:"Camera to bind" minLength:"1"`
}

type InitializeRequest struct {
	Body InitializeBody
}

type CommandData struct {
	Success       bool   `json:"success" example:"true" doc:"Whether the command succeeded"`
	SurfaceHandle int64  `json:"surface_handle,omitempty" example:"1" doc:"Preview surface handle (initialize)"`
	DisplayName   string `json:"display_name,omitempty" example:"USB Camera" doc:"Bound camera name (initialize)"`
	Path          string `json:"path,omitempty" example:"/var/lib/boothcam/captures/capture_20261014_103000.000_000001.jpg" doc:"Saved still (capture)"`
}

type CommandResponse struct {
	Body CommandData
}

type CameraStateData struct {
	State              string `json:"state" example:"preview_running" doc:"Session state"`
	DeviceID           string `json:"device_id,omitempty" example:"2" doc:"Bound camera"`
	DisplayName        string `json:"display_name,omitempty" example:"USB Camera" doc:"Bound camera name"`
	DiscardedCallbacks uint64 `json:"discarded_callbacks" example:"0" doc:"Late driver callbacks ignored since start"`
}

type CameraStateResponse struct {
	Body CameraStateData
}

// Surface frame models
type SurfaceFrameRequest struct {
	Handle int64 `path:"handle" example:"1" doc:"Surface handle returned by initialize"`
}

type SurfaceFrameResponse struct {
	ContentType  string `header:"Content-Type"`
	CacheControl string `header:"Cache-Control"`
	Body         []byte
}

// Diagnostics models
type ErrorsRequest struct {
	Limit int `query:"limit" example:"50" doc:"Maximum reports to return, 0 for all" minimum:"0"`
}

type ErrorsData struct {
	Errors []diagnostics.Report `json:"errors" doc:"Recent terminal errors, oldest first"`
	Count  int                  `json:"count" example:"1" doc:"Number of reports returned"`
}

type ErrorsResponse struct {
	Body ErrorsData
}
