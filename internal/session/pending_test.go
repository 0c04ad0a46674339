package session

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/smazurov/boothcam/internal/driver"
)

func TestPendingOpResolvesOnce(t *testing.T) {
	op := newPendingOp()
	if !op.resolve(outcome{path: "a"}) {
		t.Fatal("first resolve reported false")
	}
	if op.resolve(outcome{err: ErrCancelled}) {
		t.Fatal("second resolve reported true")
	}
	if o := <-op.done; o.path != "a" || o.err != nil {
		t.Errorf("outcome = %+v", o)
	}
}

func TestCoordinator(t *testing.T) {
	var c coordinator
	first, second := newPendingOp(), newPendingOp()

	c.enqueue(first, StateOpening)
	c.enqueue(second, StateConfiguringSession)

	o := <-first.done
	if !errors.Is(o.err, ErrSuperseded) || o.state != StateConfiguringSession {
		t.Errorf("superseded outcome = %+v", o)
	}
	if c.withdraw(first) {
		t.Error("withdrew a request that was no longer pending")
	}
	if got := c.take(); got != second {
		t.Error("take did not return the latest request")
	}
	if c.cancel(ErrCancelled, StateClosing) {
		t.Error("cancel on empty coordinator reported a request")
	}

	third := newPendingOp()
	c.enqueue(third, StateOpened)
	if !c.cancel(ErrSessionConfigurationFailed, StateConfiguringSession) {
		t.Fatal("cancel did not resolve the request")
	}
	if o := <-third.done; !errors.Is(o.err, ErrSessionConfigurationFailed) {
		t.Errorf("cancel outcome = %+v", o)
	}
}

func TestCaptureSinkKeepsLatest(t *testing.T) {
	calls := 0
	s := newCaptureSink(driver.Size{Width: 4, Height: 4}, func() { calls++ })

	_ = s.Deliver(driver.Frame{Seq: 1})
	_ = s.Deliver(driver.Frame{Seq: 2})
	if calls != 2 {
		t.Errorf("onAvailable calls = %d", calls)
	}
	frame, ok := s.acquire()
	if !ok || frame.Seq != 2 {
		t.Errorf("acquire = %+v, %v", frame, ok)
	}
	if _, ok := s.acquire(); ok {
		t.Error("slot not emptied by acquire")
	}

	_ = s.release()
	if err := s.Deliver(driver.Frame{Seq: 3}); !errors.Is(err, driver.ErrOutputReleased) {
		t.Errorf("Deliver after release = %v", err)
	}
	if calls != 2 {
		t.Error("released sink signalled availability")
	}
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		op   Operation
		err  error
		want string
	}{
		{OpInitialize, nil, ""},
		{OpInitialize, ErrNoSurfaceProvider, CodeInit},
		{OpInitialize, fmt.Errorf("%w: 9", ErrDeviceNotFound), CodeCameraNotFound},
		{OpInitialize, fmt.Errorf("%w: %w", ErrPermissionDenied, driver.ErrPermissionDenied), CodePermission},
		{OpInitialize, fmt.Errorf("%w: %w", ErrAccess, driver.ErrCameraInUse), CodeCameraAccess},
		{OpInitialize, context.DeadlineExceeded, CodeCameraAccess},
		{OpStartPreview, ErrNotInitialized, CodeNotInitialized},
		{OpStartPreview, ErrSuperseded, CodeCancelled},
		{OpStartPreview, fmt.Errorf("%w: %w", ErrSessionConfigurationFailed, errors.New("x")), CodeSession},
		{OpStartPreview, fmt.Errorf("%w: %w", ErrPreviewFailed, driver.ErrDisconnected), CodePreview},
		{OpStartPreview, context.DeadlineExceeded, CodePreview},
		{OpStartPreview, context.Canceled, CodeCancelled},
		{OpTakePicture, ErrCaptureInProgress, CodeCapture},
		{OpTakePicture, fmt.Errorf("%w: disk full", ErrSaveFailed), CodeSave},
		{OpTakePicture, context.DeadlineExceeded, CodeCapture},
		{OpTakePicture, ErrCancelled, CodeCancelled},
		{"", fmt.Errorf("%w: %w", ErrDeviceFailed, driver.ErrDisconnected), CodeSession},
	}
	for _, tt := range tests {
		if got := ErrorCode(tt.op, tt.err); got != tt.want {
			t.Errorf("ErrorCode(%s, %v) = %q, want %q", tt.op, tt.err, got, tt.want)
		}
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
		ready bool
	}{
		{StateUninitialized, "uninitialized", false},
		{StateConfiguringSession, "configuring_session", false},
		{StateSessionReady, "session_ready", true},
		{StatePreviewRunning, "preview_running", true},
		{StateCapturing, "capturing", true},
		{StateFaulted, "faulted", false},
		{State(42), "unknown", false},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
		if got := tt.state.Ready(); got != tt.ready {
			t.Errorf("%s.Ready() = %v", tt.want, got)
		}
	}
}
