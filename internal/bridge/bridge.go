// Package bridge exposes the session controller through a method-call
// protocol: a method name plus arguments in, a flat Result out. Errors never
// escape as Go errors; they become an error code and a message.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/smazurov/boothcam/internal/logging"
	"github.com/smazurov/boothcam/internal/session"
)

// Protocol method names.
const (
	MethodInitialize   = "initialize"
	MethodStartPreview = "startPreview"
	MethodTakePicture  = "takePicture"
	MethodDispose      = "dispose"
)

// CodeNotImplemented is returned for unknown methods.
const CodeNotImplemented = "NOT_IMPLEMENTED"

// DefaultTimeout bounds each operation when no timeout is configured.
const DefaultTimeout = 10 * time.Second

// Result is the reply to one call.
type Result struct {
	Success       bool   `json:"success"`
	SurfaceHandle int64  `json:"surfaceHandle,omitempty"`
	DisplayName   string `json:"displayName,omitempty"`
	Path          string `json:"path,omitempty"`
	ErrorCode     string `json:"errorCode,omitempty"`
	Message       string `json:"message,omitempty"`
}

// Camera is the part of session.Controller the bridge drives.
type Camera interface {
	Initialize(ctx context.Context, deviceID string) (session.InitResult, error)
	StartPreview(ctx context.Context) error
	TakePicture(ctx context.Context) (string, error)
	Dispose(ctx context.Context) error
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithTimeout sets the per-operation timeout. Non-positive values keep the
// default.
func WithTimeout(d time.Duration) Option {
	return func(b *Bridge) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// WithLogger overrides the bridge logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// Bridge dispatches protocol calls to a Camera.
type Bridge struct {
	cam     Camera
	timeout time.Duration
	logger  *slog.Logger
}

// New creates a bridge for cam.
func New(cam Camera, opts ...Option) *Bridge {
	b := &Bridge{
		cam:     cam,
		timeout: DefaultTimeout,
		logger:  logging.GetLogger("bridge"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Timeout returns the per-operation timeout.
func (b *Bridge) Timeout() time.Duration {
	return b.timeout
}

// Call runs method with args. initialize reads "deviceId", which may be a
// string or a number.
func (b *Bridge) Call(ctx context.Context, method string, args map[string]any) Result {
	switch method {
	case MethodInitialize:
		return b.Initialize(ctx, deviceID(args))
	case MethodStartPreview:
		return b.StartPreview(ctx)
	case MethodTakePicture:
		return b.TakePicture(ctx)
	case MethodDispose:
		return b.Dispose(ctx)
	default:
		b.logger.Warn("Unknown method", "method", method)
		return Result{
			ErrorCode: CodeNotImplemented,
			Message:   fmt.Sprintf("method %q not implemented", method),
		}
	}
}

// Initialize opens deviceID and returns its preview surface handle.
func (b *Bridge) Initialize(ctx context.Context, deviceID string) Result {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	res, err := b.cam.Initialize(ctx, deviceID)
	if err != nil {
		return b.failure(session.OpInitialize, err)
	}
	return Result{Success: true, SurfaceHandle: res.SurfaceHandle, DisplayName: res.DisplayName}
}

// StartPreview starts or queues the repeating preview request.
func (b *Bridge) StartPreview(ctx context.Context) Result {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	if err := b.cam.StartPreview(ctx); err != nil {
		return b.failure(session.OpStartPreview, err)
	}
	return Result{Success: true}
}

// TakePicture captures one still and returns where it was saved.
func (b *Bridge) TakePicture(ctx context.Context) Result {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	path, err := b.cam.TakePicture(ctx)
	if err != nil {
		return b.failure(session.OpTakePicture, err)
	}
	return Result{Success: true, Path: path}
}

// Dispose always succeeds.
func (b *Bridge) Dispose(ctx context.Context) Result {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	if err := b.cam.Dispose(ctx); err != nil {
		b.logger.Warn("Dispose returned an error", "error", err)
	}
	return Result{Success: true}
}

func (b *Bridge) failure(op session.Operation, err error) Result {
	code := session.ErrorCode(op, err)
	b.logger.Debug("Call failed", "method", string(op), "error_code", code, "error", err)
	return Result{ErrorCode: code, Message: err.Error()}
}

func deviceID(args map[string]any) string {
	switch v := args["deviceId"].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
