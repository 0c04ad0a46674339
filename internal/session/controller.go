// Package session drives one camera through open, session configuration,
// live preview, still capture and teardown.
//
// Every driver callback and every state change runs on a per-session
// executor. Public operations post their work there and wait for the answer
// under the caller's context, so a caller can bound any operation with a
// deadline.
//
//	ctrl, _ := session.New(session.Options{Driver: drv, Surfaces: reg, Store: sink})
//	res, err := ctrl.Initialize(ctx, "2")
//	err = ctrl.StartPreview(ctx)
//	path, err := ctrl.TakePicture(ctx)
//	_ = ctrl.Dispose(ctx)
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smazurov/boothcam/internal/camera"
	"github.com/smazurov/boothcam/internal/diagnostics"
	"github.com/smazurov/boothcam/internal/driver"
	"github.com/smazurov/boothcam/internal/events"
	"github.com/smazurov/boothcam/internal/logging"
	"github.com/smazurov/boothcam/internal/metrics"
	"github.com/smazurov/boothcam/internal/storage"
	"github.com/smazurov/boothcam/internal/surface"
)

// abandonGrace bounds the cleanup of a session whose Initialize caller gave up.
const abandonGrace = 5 * time.Second

// Config tunes the requests sent to the driver.
type Config struct {
	// MaxOutputSize bounds both preview and still sizes. Zero means
	// camera.DefaultMaxOutputSize.
	MaxOutputSize driver.Size
	// DisplayRotation is the rotation of the display in degrees.
	DisplayRotation int
	Focus           driver.FocusMode
	Exposure        driver.ExposureMode
}

// ErrorReporter receives every terminal error.
type ErrorReporter interface {
	Report(rep diagnostics.Report)
}

// Options configures a Controller.
type Options struct {
	Driver driver.Driver
	// Enumerator defaults to camera.NewEnumerator(Driver).
	Enumerator *camera.Enumerator
	// Surfaces allocates preview targets. Initialize fails with
	// ErrNoSurfaceProvider when it is nil.
	Surfaces surface.Provider
	Store    storage.Sink
	Config   Config
	EventBus *events.Bus
	Reporter ErrorReporter
	Logger   *slog.Logger
}

// InitResult is returned by a successful Initialize.
type InitResult struct {
	SurfaceHandle int64  `json:"surface_handle"`
	DisplayName   string `json:"display_name"`
}

// Controller owns at most one camera session at a time.
type Controller struct {
	opts   Options
	enum   *camera.Enumerator
	logger *slog.Logger

	// lifecycle serializes Initialize, Dispose and abandoned-open cleanup.
	lifecycle sync.Mutex

	mu      sync.RWMutex
	current *cameraSession
	closed  bool

	discarded atomic.Uint64
}

// New creates a controller.
func New(opts Options) (*Controller, error) {
	if opts.Driver == nil {
		return nil, errors.New("session: driver is required")
	}
	if opts.Store == nil {
		return nil, errors.New("session: image store is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetLogger("session")
	}
	enum := opts.Enumerator
	if enum == nil {
		enum = camera.NewEnumerator(opts.Driver)
	}
	return &Controller{
		opts:   opts,
		enum:   enum,
		logger: logger,
	}, nil
}

// State returns the state of the current session. After Dispose it is
// StateClosed until the next Initialize.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stateLocked()
}

func (c *Controller) stateLocked() State {
	if c.current != nil {
		return c.current.State()
	}
	if c.closed {
		return StateClosed
	}
	return StateUninitialized
}

// Device returns the descriptor of the bound device.
func (c *Controller) Device() (camera.Descriptor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current == nil {
		return camera.Descriptor{}, false
	}
	return c.current.desc, true
}

// DiscardedCallbacks returns how many driver callbacks arrived after their
// session was torn down.
func (c *Controller) DiscardedCallbacks() uint64 {
	return c.discarded.Load()
}

// snapshot returns the bound session and its state read under one lock, so
// a concurrent Initialize cannot pair a new session with the old state.
func (c *Controller) snapshot() (*cameraSession, State) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current, c.stateLocked()
}

// Initialize binds deviceID. A bound device is fully disposed first. It
// returns once the driver has answered the open.
func (c *Controller) Initialize(ctx context.Context, deviceID string) (res InitResult, err error) {
	state := StateUninitialized
	defer func() {
		c.finish(OpInitialize, deviceID, state, err)
	}()

	c.lifecycle.Lock()
	sess, err := c.begin(ctx, deviceID)
	c.lifecycle.Unlock()
	if err != nil {
		return InitResult{}, err
	}

	select {
	case o := <-sess.initOp.done:
		state = o.state
		if o.err != nil {
			return InitResult{}, o.err
		}
	case <-ctx.Done():
		state = sess.State()
		c.abandon(sess)
		return InitResult{}, fmt.Errorf("%w: device open did not complete: %w", ErrAccess, ctx.Err())
	}

	c.logger.Info("Camera initialized", "device_id", deviceID, "surface", sess.binding.preview.Handle())
	return InitResult{
		SurfaceHandle: sess.binding.preview.Handle(),
		DisplayName:   sess.desc.DisplayName(),
	}, nil
}

func (c *Controller) begin(ctx context.Context, deviceID string) (*cameraSession, error) {
	if c.opts.Surfaces == nil {
		return nil, ErrNoSurfaceProvider
	}

	desc, meta, err := c.enum.Resolve(ctx, deviceID)
	if err != nil {
		if errors.Is(err, camera.ErrDeviceNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
		}
		return nil, fmt.Errorf("%w: %w", ErrAccess, err)
	}

	c.disposeLocked(ctx)

	bound := c.opts.Config.MaxOutputSize
	previewSize := camera.SelectOptimalSize(meta.PreviewSizes, bound)
	stillSize := camera.SelectOptimalSize(meta.StillSizes, bound)

	preview, err := c.opts.Surfaces.Allocate(previewSize)
	if err != nil {
		return nil, fmt.Errorf("%w: allocate preview surface: %w", ErrInit, err)
	}

	sess := newCameraSession(c, desc, meta)
	sess.binding = &binding{
		preview: preview,
		capture: newCaptureSink(stillSize, sess.onImageAvailable),
	}

	c.mu.Lock()
	if prev := c.stateLocked(); prev != StateUninitialized {
		metrics.SetSessionState(prev.String(), StateUninitialized.String())
	}
	c.current = sess
	c.mu.Unlock()

	c.logger.Debug("Opening camera",
		"device_id", deviceID,
		"facing", desc.Facing.String(),
		"preview_size", previewSize.String(),
		"still_size", stillSize.String())

	sess.exec.Post(sess.open)
	return sess, nil
}

// abandon tears down sess after its Initialize caller stopped waiting.
func (c *Controller) abandon(sess *cameraSession) {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	c.mu.Lock()
	if c.current != sess {
		c.mu.Unlock()
		return
	}
	c.current = nil
	c.closed = true
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), abandonGrace)
	defer cancel()
	sess.shutdown(ctx)
}

// StartPreview submits the repeating preview request. Before the capture
// session is ready the request waits; a newer StartPreview supersedes it.
func (c *Controller) StartPreview(ctx context.Context) (err error) {
	sess, state := c.snapshot()
	deviceID := ""
	if sess != nil {
		deviceID = sess.desc.ID
	}
	defer func() {
		c.finish(OpStartPreview, deviceID, state, err)
	}()

	if sess == nil || !acceptsPreview(state) {
		return ErrNotInitialized
	}

	op := newPendingOp()
	if !sess.exec.Post(func() { sess.startPreview(op) }) {
		return ErrNotInitialized
	}

	select {
	case o := <-op.done:
		state = o.state
		return o.err
	case <-ctx.Done():
		state = sess.State()
		sess.exec.Post(func() {
			if sess.coord.withdraw(op) {
				op.resolve(outcome{err: ctx.Err(), state: sess.State()})
			}
		})
		return fmt.Errorf("start preview: %w", ctx.Err())
	}
}

func acceptsPreview(s State) bool {
	return s.configuring() || s.Ready()
}

// TakePicture captures one still and returns the saved path. It fails with
// ErrNotInitialized unless the capture session is ready; it never waits for
// readiness.
func (c *Controller) TakePicture(ctx context.Context) (path string, err error) {
	sess, state := c.snapshot()
	deviceID := ""
	if sess != nil {
		deviceID = sess.desc.ID
	}
	defer func() {
		c.finish(OpTakePicture, deviceID, state, err)
	}()

	if sess == nil || !state.Ready() {
		return "", ErrNotInitialized
	}

	op := &captureOp{pendingOp: newPendingOp()}
	if !sess.exec.Post(func() { sess.takePicture(op) }) {
		return "", ErrNotInitialized
	}

	select {
	case o := <-op.done:
		state = o.state
		return o.path, o.err
	case <-ctx.Done():
		state = sess.State()
		return "", fmt.Errorf("take picture: %w", ctx.Err())
	}
}

// Dispose tears down the current session. It always returns nil and may be
// called any number of times. ctx bounds how long Dispose waits for the
// driver; teardown still completes in the background after it expires.
func (c *Controller) Dispose(ctx context.Context) error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	c.disposeLocked(ctx)
	metrics.RecordOperation(string(OpDispose), "ok")
	return nil
}

func (c *Controller) disposeLocked(ctx context.Context) {
	c.mu.Lock()
	sess := c.current
	c.current = nil
	if sess != nil {
		c.closed = true
	}
	c.mu.Unlock()

	if sess == nil {
		return
	}
	sess.shutdown(ctx)
	c.logger.Info("Camera disposed", "device_id", sess.desc.ID)
}

// finish records the outcome of a public operation. Failures other than
// cancellation go to the reporter.
func (c *Controller) finish(op Operation, deviceID string, state State, err error) {
	if err == nil {
		metrics.RecordOperation(string(op), "ok")
		return
	}
	code := ErrorCode(op, err)
	metrics.RecordOperation(string(op), code)
	if cancellation(err) {
		c.logger.Debug("Operation cancelled", "operation", op, "device_id", deviceID, "error", err)
		return
	}
	c.report(deviceID, state, string(op), code, err)
}

func (c *Controller) report(deviceID string, state State, operation, code string, err error) {
	if c.opts.Reporter == nil {
		c.logger.Warn("Camera error",
			"device_id", deviceID,
			"state", state.String(),
			"operation", operation,
			"error_code", code,
			"error", err)
		return
	}
	c.opts.Reporter.Report(diagnostics.Report{
		DeviceID:  deviceID,
		State:     state.String(),
		Operation: operation,
		ErrorCode: code,
		Message:   err.Error(),
	})
}
