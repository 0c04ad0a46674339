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
	"github.com/smazurov/boothcam/internal/driver"
	"github.com/smazurov/boothcam/internal/events"
	"github.com/smazurov/boothcam/internal/executor"
	"github.com/smazurov/boothcam/internal/metrics"
)

type captureOp struct {
	*pendingOp

	saving         bool
	restartPreview bool
}

// cameraSession is one Initialize..Dispose cycle. Fields below exec are
// owned by the executor; state is also read atomically by the public API.
type cameraSession struct {
	ctrl        *Controller
	desc        camera.Descriptor
	orientation int
	logger      *slog.Logger
	state       atomic.Int32

	exec   *executor.Executor
	ctx    context.Context
	cancel context.CancelFunc

	binding       *binding
	device        driver.Device
	capture       driver.Session
	coord         coordinator
	inflight      *captureOp
	beforeCapture State
	repeating     bool
	torn          bool

	initOp      *pendingOp
	openSettled chan struct{}
	settleOnce  sync.Once
}

func newCameraSession(c *Controller, desc camera.Descriptor, meta driver.Metadata) *cameraSession {
	logger := c.logger.With("device_id", desc.ID)
	ctx, cancel := context.WithCancel(context.Background())
	return &cameraSession{
		ctrl:        c,
		desc:        desc,
		orientation: camera.CaptureOrientation(meta.SensorOrientation, desc.Facing, c.opts.Config.DisplayRotation),
		logger:      logger,
		exec:        executor.New("camera-"+desc.ID, logger),
		ctx:         ctx,
		cancel:      cancel,
		initOp:      newPendingOp(),
		openSettled: make(chan struct{}),
	}
}

func (s *cameraSession) State() State {
	return State(s.state.Load())
}

func (s *cameraSession) setState(next State) {
	prev := State(s.state.Swap(int32(next)))
	if prev == next {
		return
	}
	metrics.SetSessionState(prev.String(), next.String())
	s.logger.Debug("Session state changed", "from", prev.String(), "to", next.String())
	s.ctrl.opts.EventBus.Publish(events.SessionStateChangedEvent{
		DeviceID:  s.desc.ID,
		From:      prev.String(),
		To:        next.String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// post runs fn on the executor, counting the callback as discarded when the
// executor is gone.
func (s *cameraSession) post(callback string, fn func()) bool {
	if s.exec.Post(fn) {
		return true
	}
	s.discard(callback)
	return false
}

func (s *cameraSession) discard(callback string) {
	s.ctrl.discarded.Add(1)
	metrics.RecordDiscardedCallback(callback)
	s.logger.Debug("Discarded late callback", "callback", callback)
}

func (s *cameraSession) settleOpen() {
	s.settleOnce.Do(func() { close(s.openSettled) })
}

func (s *cameraSession) request(target driver.Output, repeating bool) driver.CaptureRequest {
	cfg := s.ctrl.opts.Config
	return driver.CaptureRequest{
		Target:      target,
		Repeating:   repeating,
		Focus:       cfg.Focus,
		Exposure:    cfg.Exposure,
		Orientation: s.orientation,
	}
}

// fault moves the session to Faulted and resolves every waiting operation
// with cause. The error is reported directly only when no caller received it.
func (s *cameraSession) fault(source string, cause error, owner *pendingOp) {
	prev := s.State()
	if prev == StateFaulted {
		return
	}
	s.setState(StateFaulted)
	s.logger.Error("Camera session faulted", "source", source, "state", prev.String(), "error", cause)

	delivered := false
	if owner != nil && owner.resolve(outcome{err: cause, state: prev}) {
		delivered = true
	}
	if s.initOp.resolve(outcome{err: cause, state: prev}) {
		delivered = true
	}
	if s.coord.cancel(cause, prev) {
		delivered = true
	}
	if op := s.inflight; op != nil {
		s.inflight = nil
		if op.resolve(outcome{err: cause, state: prev}) {
			delivered = true
		}
	}
	if !delivered {
		s.ctrl.report(s.desc.ID, prev, source, ErrorCode("", cause), cause)
	}
}

// open runs on the executor.
func (s *cameraSession) open() {
	if s.torn {
		s.settleOpen()
		return
	}
	s.setState(StateOpening)
	if err := s.ctrl.opts.Driver.Open(s.desc.ID, s.deviceCallbacks()); err != nil {
		s.settleOpen()
		s.fault("device_open", openError(err), nil)
	}
}

func (s *cameraSession) deviceCallbacks() driver.DeviceCallbacks {
	return driver.DeviceCallbacks{
		Opened: func(dev driver.Device) {
			defer s.settleOpen()
			if !s.post("device_opened", func() { s.handleOpened(dev) }) {
				closeQuietly(s.logger, "device", dev)
			}
		},
		Failed: func(err error) {
			defer s.settleOpen()
			s.post("device_error", func() { s.handleDeviceError(err) })
		},
	}
}

func (s *cameraSession) handleOpened(dev driver.Device) {
	if s.torn || s.device != nil || s.State() != StateOpening {
		s.discard("device_opened")
		closeQuietly(s.logger, "device", dev)
		return
	}
	s.device = dev
	s.setState(StateOpened)
	s.initOp.resolve(outcome{state: StateOpened})

	s.setState(StateConfiguringSession)
	if err := dev.CreateSession(s.binding.outputs(), s.sessionCallbacks()); err != nil {
		s.fault("session_configure", fmt.Errorf("%w: %w", ErrSessionConfigurationFailed, err), nil)
	}
}

func (s *cameraSession) handleDeviceError(err error) {
	if s.torn {
		s.discard("device_error")
		return
	}
	state := s.State()
	s.fault("device_error", deviceErrorCause(state, err), nil)
}

func (s *cameraSession) sessionCallbacks() driver.SessionCallbacks {
	return driver.SessionCallbacks{
		Configured: func(cs driver.Session) {
			if !s.post("session_configured", func() { s.handleConfigured(cs) }) {
				closeQuietly(s.logger, "capture session", cs)
			}
		},
		ConfigureFailed: func(err error) {
			s.post("session_configure_failed", func() { s.handleConfigureFailed(err) })
		},
	}
}

func (s *cameraSession) handleConfigured(cs driver.Session) {
	if s.torn || s.State() != StateConfiguringSession {
		s.discard("session_configured")
		closeQuietly(s.logger, "capture session", cs)
		return
	}
	s.capture = cs
	s.setState(StateSessionReady)

	if op := s.coord.take(); op != nil {
		s.submitPreview(op)
	}
}

func (s *cameraSession) handleConfigureFailed(err error) {
	if s.torn {
		s.discard("session_configure_failed")
		return
	}
	s.fault("session_configure", fmt.Errorf("%w: %w", ErrSessionConfigurationFailed, err), nil)
}

func (s *cameraSession) startPreview(op *pendingOp) {
	state := s.State()
	switch {
	case s.torn:
		op.resolve(outcome{err: ErrNotInitialized, state: state})
	case state.configuring():
		s.coord.enqueue(op, state)
	case state == StateSessionReady:
		s.submitPreview(op)
	case state == StatePreviewRunning:
		op.resolve(outcome{state: state})
	case state == StateCapturing:
		if s.repeating || (s.inflight != nil && s.inflight.restartPreview) {
			op.resolve(outcome{state: state})
			return
		}
		s.submitPreview(op)
	default:
		op.resolve(outcome{err: ErrNotInitialized, state: state})
	}
}

// submitPreview sends the repeating request to the preview surface. op may
// be nil when the preview is resumed internally.
func (s *cameraSession) submitPreview(op *pendingOp) {
	state := s.State()
	metrics.RecordPreviewSubmission()

	err := s.capture.SetRepeating(s.request(s.binding.preview, true), s.repeatingCallbacks())
	if err != nil {
		s.fault("preview_submit", fmt.Errorf("%w: %w", ErrPreviewFailed, err), op)
		return
	}
	s.repeating = true
	if state == StateCapturing {
		s.beforeCapture = StatePreviewRunning
	} else {
		s.setState(StatePreviewRunning)
	}
	if op != nil {
		op.resolve(outcome{state: StatePreviewRunning})
	}
}

func (s *cameraSession) repeatingCallbacks() driver.CaptureCallbacks {
	return driver.CaptureCallbacks{
		Failed: func(_ driver.CaptureRequest, err error) {
			s.post("preview_failed", func() { s.handlePreviewFailed(err) })
		},
	}
}

func (s *cameraSession) handlePreviewFailed(err error) {
	if s.torn {
		s.discard("preview_failed")
		return
	}
	if !s.repeating {
		return
	}
	s.repeating = false
	s.fault("preview", fmt.Errorf("%w: %w", ErrPreviewFailed, err), nil)
}

func (s *cameraSession) takePicture(op *captureOp) {
	state := s.State()
	if s.torn || !state.Ready() {
		op.resolve(outcome{err: ErrNotInitialized, state: state})
		return
	}
	if s.inflight != nil {
		op.resolve(outcome{err: ErrCaptureInProgress, state: state})
		return
	}

	s.inflight = op
	s.beforeCapture = state
	s.setState(StateCapturing)

	req := s.request(s.binding.capture, false)
	cb := s.stillCallbacks(op)
	err := s.capture.Capture(req, cb)
	if errors.Is(err, driver.ErrConcurrentCapture) && s.repeating {
		s.logger.Debug("Driver cannot capture while repeating, pausing preview")
		if err = s.capture.StopRepeating(); err == nil {
			s.repeating = false
			op.restartPreview = true
			err = s.capture.Capture(req, cb)
		}
	}
	if err != nil {
		s.fault("capture_submit", fmt.Errorf("%w: %w", ErrCaptureFailed, err), nil)
	}
}

func (s *cameraSession) stillCallbacks(op *captureOp) driver.CaptureCallbacks {
	return driver.CaptureCallbacks{
		Completed: func(_ driver.CaptureRequest, frame driver.Frame) {
			s.post("capture_completed", func() { s.handleCaptureCompleted(op, frame) })
		},
		Failed: func(_ driver.CaptureRequest, err error) {
			s.post("capture_failed", func() { s.handleCaptureFailed(op, err) })
		},
	}
}

func (s *cameraSession) handleCaptureCompleted(op *captureOp, frame driver.Frame) {
	if s.torn {
		s.discard("capture_completed")
		return
	}
	s.logger.Debug("Still capture completed", "seq", frame.Seq, "saving", s.inflight == op && op.saving)
}

func (s *cameraSession) handleCaptureFailed(op *captureOp, err error) {
	if s.torn {
		s.discard("capture_failed")
		return
	}
	if s.inflight != op {
		return
	}
	s.fault("capture", fmt.Errorf("%w: %w", ErrCaptureFailed, err), nil)
}

// onImageAvailable is called by the capture sink on the driver's goroutine.
func (s *cameraSession) onImageAvailable() {
	s.post("image_available", s.handleImageAvailable)
}

func (s *cameraSession) handleImageAvailable() {
	if s.torn {
		s.discard("image_available")
		return
	}
	op := s.inflight
	if op == nil || op.saving {
		if _, ok := s.binding.capture.acquire(); ok {
			s.logger.Debug("Dropped unrequested still")
		}
		return
	}
	frame, ok := s.binding.capture.acquire()
	if !ok {
		return
	}
	op.saving = true
	go s.save(op, frame)
}

func (s *cameraSession) save(op *captureOp, frame driver.Frame) {
	start := time.Now()
	path, err := s.ctrl.opts.Store.Save(s.ctx, frame)
	metrics.ObserveCaptureSave(time.Since(start))
	s.post("save_completed", func() { s.finishSave(op, frame, path, err) })
}

func (s *cameraSession) finishSave(op *captureOp, frame driver.Frame, path string, err error) {
	if s.torn {
		s.discard("save_completed")
		return
	}
	if s.inflight != op {
		return
	}
	s.inflight = nil

	if op.restartPreview {
		s.setState(StateSessionReady)
		s.submitPreview(nil)
	} else {
		s.setState(s.beforeCapture)
	}

	if err != nil {
		op.resolve(outcome{err: fmt.Errorf("%w: %w", ErrSaveFailed, err), state: StateCapturing})
		return
	}

	s.ctrl.opts.EventBus.Publish(events.CaptureSavedEvent{
		DeviceID:  s.desc.ID,
		Path:      path,
		Bytes:     len(frame.Data),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	op.resolve(outcome{path: path, state: s.State()})
}

// shutdown runs teardown on the executor, waits for any device open still in
// flight, then stops the executor.
func (s *cameraSession) shutdown(ctx context.Context) {
	torn := make(chan struct{})
	if !s.exec.Post(func() {
		defer close(torn)
		s.teardown()
	}) {
		close(torn)
	}

	s.await(ctx, torn, "teardown")
	s.await(ctx, s.openSettled, "device open")
	s.exec.Stop()
	s.await(ctx, s.exec.Done(), "executor")
}

func (s *cameraSession) await(ctx context.Context, ch <-chan struct{}, what string) {
	select {
	case <-ch:
	case <-ctx.Done():
		s.logger.Warn("Stopped waiting for camera shutdown", "waiting_for", what, "error", ctx.Err())
	}
}

// teardown releases everything in order. A failing step never stops the
// steps after it.
func (s *cameraSession) teardown() {
	if s.torn {
		return
	}
	s.torn = true
	prev := s.State()
	s.setState(StateClosing)

	s.step("cancel pending", func() error {
		s.initOp.resolve(outcome{err: ErrCancelled, state: prev})
		s.coord.cancel(ErrCancelled, prev)
		if op := s.inflight; op != nil {
			s.inflight = nil
			op.resolve(outcome{err: ErrCancelled, state: prev})
		}
		return nil
	})
	s.step("stop repeating", func() error {
		if s.capture == nil || !s.repeating {
			return nil
		}
		s.repeating = false
		return s.capture.StopRepeating()
	})
	s.step("release capture sink", s.binding.capture.release)
	s.step("release preview surface", s.binding.preview.Release)
	s.step("close capture session", func() error {
		cs := s.capture
		s.capture = nil
		if cs == nil {
			return nil
		}
		return cs.Close()
	})
	s.step("close device", func() error {
		dev := s.device
		s.device = nil
		if dev == nil {
			return nil
		}
		return dev.Close()
	})

	s.cancel()
	s.setState(StateClosed)
}

func (s *cameraSession) step(name string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Teardown step panicked", "step", name, "panic", r)
		}
	}()
	if err := fn(); err != nil {
		s.logger.Warn("Teardown step failed", "step", name, "error", err)
	}
}

type closer interface {
	Close() error
}

func closeQuietly(logger *slog.Logger, what string, c closer) {
	if err := c.Close(); err != nil {
		logger.Warn("Failed to close late "+what, "error", err)
	}
}

// openError maps a failed open to the error Initialize returns.
func openError(err error) error {
	switch {
	case errors.Is(err, driver.ErrPermissionDenied):
		return fmt.Errorf("%w: %w", ErrPermissionDenied, err)
	case errors.Is(err, driver.ErrDeviceNotFound):
		return fmt.Errorf("%w: %w", ErrDeviceNotFound, err)
	default:
		return fmt.Errorf("%w: %w", ErrAccess, err)
	}
}

// deviceErrorCause maps a device error to the session error for the state
// it interrupted.
func deviceErrorCause(state State, err error) error {
	switch state {
	case StateUninitialized, StateOpening, StateOpened:
		return openError(err)
	case StateConfiguringSession:
		return fmt.Errorf("%w: %w", ErrSessionConfigurationFailed, err)
	case StatePreviewRunning:
		return fmt.Errorf("%w: %w", ErrPreviewFailed, err)
	case StateCapturing:
		return fmt.Errorf("%w: %w", ErrCaptureFailed, err)
	default:
		return fmt.Errorf("%w: %w", ErrDeviceFailed, err)
	}
}
