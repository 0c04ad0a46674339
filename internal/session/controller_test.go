package session

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/smazurov/boothcam/internal/driver"
	"github.com/smazurov/boothcam/internal/driver/sim"
	"github.com/smazurov/boothcam/internal/events"
	"github.com/smazurov/boothcam/internal/storage"
)

func TestDisposeIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)

	f.dispose()
	f.dispose()
	if got := f.ctrl.State(); got != StateUninitialized {
		t.Errorf("state after dispose without initialize = %v", got)
	}

	f.ready("2")
	f.dispose()
	f.dispose()
	if got := f.ctrl.State(); got != StateClosed {
		t.Errorf("state after dispose = %v, want closed", got)
	}
	if n := f.drv.OpenDevices(); n != 0 {
		t.Errorf("open devices = %d", n)
	}
}

func TestInitializeErrors(t *testing.T) {
	tests := []struct {
		name     string
		simOpts  []sim.Option
		opts     []fixtureOption
		deviceID string
		failOpen error
		want     error
		code     string
	}{
		{
			name:     "unknown device",
			deviceID: "9",
			want:     ErrDeviceNotFound,
			code:     CodeCameraNotFound,
		},
		{
			name:     "no surface provider",
			opts:     []fixtureOption{withoutSurfaces()},
			deviceID: "2",
			want:     ErrNoSurfaceProvider,
			code:     CodeInit,
		},
		{
			name:     "permission denied on open",
			simOpts:  []sim.Option{sim.WithOpenError("2", driver.ErrPermissionDenied)},
			deviceID: "2",
			want:     ErrPermissionDenied,
			code:     CodePermission,
		},
		{
			name:     "device busy",
			deviceID: "2",
			failOpen: driver.ErrCameraInUse,
			want:     driver.ErrCameraInUse,
			code:     CodeCameraAccess,
		},
		{
			name:     "too many cameras",
			deviceID: "2",
			failOpen: driver.ErrMaxCamerasInUse,
			want:     ErrAccess,
			code:     CodeCameraAccess,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.simOpts, tt.opts...)

			ch := f.goInitialize(context.Background(), tt.deviceID)
			if tt.failOpen != nil {
				eventually(t, func() bool { return f.drv.PendingOpen(tt.deviceID) }, "open request")
				if err := f.drv.FailOpen(tt.deviceID, tt.failOpen); err != nil {
					t.Fatal(err)
				}
			}
			r := receive(t, ch, "initialize")

			if !errors.Is(r.err, tt.want) {
				t.Fatalf("error = %v, want %v", r.err, tt.want)
			}
			if code := ErrorCode(OpInitialize, r.err); code != tt.code {
				t.Errorf("code = %s, want %s", code, tt.code)
			}
			reports := f.reporter.all()
			if len(reports) != 1 {
				t.Fatalf("reports = %d, want 1", len(reports))
			}
			if reports[0].Operation != string(OpInitialize) || reports[0].ErrorCode != tt.code {
				t.Errorf("report = %+v", reports[0])
			}
		})
	}
}

func TestOpenFailureFaultsUntilDispose(t *testing.T) {
	f := newFixture(t, nil)

	ch := f.goInitialize(context.Background(), "2")
	eventually(t, func() bool { return f.drv.PendingOpen("2") }, "open request")
	_ = f.drv.FailOpen("2", driver.ErrCameraDisabled)
	if r := receive(t, ch, "initialize"); r.err == nil {
		t.Fatal("expected initialize to fail")
	}

	if got := f.ctrl.State(); got != StateFaulted {
		t.Fatalf("state = %v, want faulted", got)
	}
	if err := f.ctrl.StartPreview(context.Background()); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("StartPreview in faulted = %v", err)
	}
	if _, err := f.ctrl.TakePicture(context.Background()); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("TakePicture in faulted = %v", err)
	}

	f.dispose()
	if got := f.ctrl.State(); got != StateClosed {
		t.Errorf("state after dispose = %v", got)
	}
	if f.surfaces.Len() != 0 {
		t.Errorf("surfaces left = %d", f.surfaces.Len())
	}
}

func TestInitializeResult(t *testing.T) {
	f := newFixture(t, nil)

	res := f.initialize("2")
	if res.DisplayName != "USB Camera" {
		t.Errorf("display name = %q", res.DisplayName)
	}
	if _, err := f.surfaces.Lookup(res.SurfaceHandle); err != nil {
		t.Errorf("surface handle %d not live: %v", res.SurfaceHandle, err)
	}
	if desc, ok := f.ctrl.Device(); !ok || desc.ID != "2" {
		t.Errorf("Device() = %+v, %v", desc, ok)
	}
}

func TestSingleActiveSession(t *testing.T) {
	f := newFixture(t, nil)

	first, firstSess := f.ready("2")
	if err := f.ctrl.StartPreview(context.Background()); err != nil {
		t.Fatal(err)
	}

	second := f.initialize("1")

	if got := f.drv.MaxConcurrentOpen(); got != 1 {
		t.Errorf("max concurrent open = %d, want 1", got)
	}
	if !firstSess.Closed() {
		t.Error("first capture session not closed")
	}
	if _, err := f.surfaces.Lookup(first.SurfaceHandle); err == nil {
		t.Error("first surface still live")
	}
	if _, err := f.surfaces.Lookup(second.SurfaceHandle); err != nil {
		t.Errorf("second surface: %v", err)
	}
	if desc, _ := f.ctrl.Device(); desc.ID != "1" {
		t.Errorf("bound device = %s", desc.ID)
	}
}

func TestQueuedPreviewSubmittedOnceAtReady(t *testing.T) {
	f := newFixture(t, nil)
	res := f.initialize("2")

	preview := f.goStartPreview(context.Background())
	eventually(t, f.pendingPreview, "queued preview")

	eventually(t, f.drv.PendingConfigure, "session configuration request")
	sess, err := f.drv.CompleteConfigure()
	if err != nil {
		t.Fatal(err)
	}

	if err := receive(t, preview, "preview"); err != nil {
		t.Fatalf("StartPreview = %v", err)
	}
	if n := sess.RepeatingSubmissions(); n != 1 {
		t.Errorf("repeating submissions = %d, want 1", n)
	}
	surf, err := f.surfaces.Lookup(res.SurfaceHandle)
	if err != nil {
		t.Fatal(err)
	}
	if sess.LastRepeatingTarget() != surf {
		t.Error("preview request does not target the session's preview surface")
	}
	if sess.Outputs()[0] != surf {
		t.Error("session was not created with the preview surface")
	}
	if got := f.ctrl.State(); got != StatePreviewRunning {
		t.Errorf("state = %v", got)
	}

	// Already running.
	if err := f.ctrl.StartPreview(context.Background()); err != nil {
		t.Errorf("second StartPreview = %v", err)
	}
	if n := sess.RepeatingSubmissions(); n != 1 {
		t.Errorf("repeating submissions after second call = %d", n)
	}
}

func TestQueuedPreviewResolvedOnConfigureFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.initialize("2")

	preview := f.goStartPreview(context.Background())
	eventually(t, f.pendingPreview, "queued preview")

	eventually(t, f.drv.PendingConfigure, "session configuration request")
	if err := f.drv.FailConfigure(errors.New("unsupported stream combination")); err != nil {
		t.Fatal(err)
	}

	err := receive(t, preview, "preview")
	if !errors.Is(err, ErrSessionConfigurationFailed) {
		t.Fatalf("StartPreview = %v, want session configuration failure", err)
	}
	if code := ErrorCode(OpStartPreview, err); code != CodeSession {
		t.Errorf("code = %s", code)
	}
	if n := f.drv.LastSession().RepeatingSubmissions(); n != 0 {
		t.Errorf("repeating submissions = %d, want 0", n)
	}
	if got := f.ctrl.State(); got != StateFaulted {
		t.Errorf("state = %v", got)
	}
	if n := len(f.reporter.all()); n != 1 {
		t.Errorf("reports = %d, want exactly one", n)
	}
}

func TestPendingPreviewSupersession(t *testing.T) {
	f := newFixture(t, nil)
	f.initialize("2")

	first := f.goStartPreview(context.Background())
	eventually(t, f.pendingPreview, "first queued preview")
	second := f.goStartPreview(context.Background())

	err := receive(t, first, "first preview")
	if !errors.Is(err, ErrSuperseded) || !errors.Is(err, ErrCancelled) {
		t.Fatalf("first StartPreview = %v, want superseded", err)
	}
	if code := ErrorCode(OpStartPreview, err); code != CodeCancelled {
		t.Errorf("code = %s", code)
	}

	eventually(t, f.drv.PendingConfigure, "session configuration request")
	sess, _ := f.drv.CompleteConfigure()
	if err := receive(t, second, "second preview"); err != nil {
		t.Fatalf("second StartPreview = %v", err)
	}
	if n := sess.RepeatingSubmissions(); n != 1 {
		t.Errorf("repeating submissions = %d, want 1", n)
	}
	if n := len(f.reporter.all()); n != 0 {
		t.Errorf("cancellation was reported as a failure: %+v", f.reporter.all())
	}
}

func TestTakePictureRequiresReadiness(t *testing.T) {
	f := newFixture(t, nil)

	if _, err := f.ctrl.TakePicture(context.Background()); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("before initialize = %v", err)
	}

	f.initialize("2")
	_, err := f.ctrl.TakePicture(context.Background())
	if !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("before session ready = %v", err)
	}
	if code := ErrorCode(OpTakePicture, err); code != CodeNotInitialized {
		t.Errorf("code = %s", code)
	}

	eventually(t, f.drv.PendingConfigure, "session configuration request")
	sess, _ := f.drv.CompleteConfigure()
	f.waitState(StateSessionReady)

	if n := sess.PendingCaptures(); n != 0 {
		t.Errorf("rejected capture was queued: %d pending", n)
	}
	if f.mem.count() != 0 {
		t.Error("rejected capture produced an image")
	}
}

func TestExampleScenario(t *testing.T) {
	sink, err := storage.NewFileSink(t.TempDir(), 0)
	if err != nil {
		t.Fatal(err)
	}
	f := newFixture(t, nil, withStore(sink))

	f.initialize("2")
	preview := f.goStartPreview(context.Background())
	eventually(t, f.pendingPreview, "queued preview")

	eventually(t, f.drv.PendingConfigure, "session configuration request")
	sess, _ := f.drv.CompleteConfigure()
	if err := receive(t, preview, "preview"); err != nil {
		t.Fatalf("StartPreview = %v", err)
	}
	if n := sess.RepeatingSubmissions(); n != 1 {
		t.Fatalf("repeating submissions = %d", n)
	}
	if err := sess.EmitPreviewFrame(); err != nil {
		t.Fatalf("preview frame: %v", err)
	}

	picture := f.goTakePicture(context.Background())
	eventually(t, func() bool { return sess.PendingCaptures() == 1 }, "capture request")
	if !sess.Repeating() {
		t.Error("preview was stopped for the still capture")
	}
	sess.CompleteCapture()

	r := receive(t, picture, "picture")
	if r.err != nil {
		t.Fatalf("TakePicture = %v", r.err)
	}
	if _, err := os.Stat(r.path); err != nil {
		t.Fatalf("saved image missing: %v", err)
	}
	f.waitState(StatePreviewRunning)

	cs, _ := f.ctrl.snapshot()
	f.dispose()

	before := f.ctrl.DiscardedCallbacks()
	if err := sess.DeliverStill(); !errors.Is(err, driver.ErrOutputReleased) {
		t.Errorf("late still delivery = %v, want ErrOutputReleased", err)
	}
	cs.onImageAvailable()
	if got := f.ctrl.DiscardedCallbacks(); got != before+1 {
		t.Errorf("discarded callbacks = %d, want %d", got, before+1)
	}
	if got := f.ctrl.State(); got != StateClosed {
		t.Errorf("state = %v", got)
	}
	saved, _ := sink.Stats()
	if saved != 1 {
		t.Errorf("saved = %d, want 1", saved)
	}
}

func TestLateCaptureCallbacksAfterDispose(t *testing.T) {
	f := newFixture(t, nil)
	_, sess := f.ready("2")

	picture := f.goTakePicture(context.Background())
	eventually(t, func() bool { return sess.PendingCaptures() == 1 }, "capture request")

	f.dispose()
	r := receive(t, picture, "picture")
	if !errors.Is(r.err, ErrCancelled) {
		t.Fatalf("TakePicture across dispose = %v, want cancelled", r.err)
	}

	before := f.ctrl.DiscardedCallbacks()
	sess.CompleteCapture()
	if got := f.ctrl.DiscardedCallbacks(); got != before+1 {
		t.Errorf("discarded callbacks = %d, want %d", got, before+1)
	}
	if f.mem.count() != 0 {
		t.Error("late capture was saved")
	}
	if f.surfaces.Len() != 0 {
		t.Errorf("surfaces = %d", f.surfaces.Len())
	}
}

func TestDisposeDuringOpen(t *testing.T) {
	f := newFixture(t, nil)

	ch := f.goInitialize(context.Background(), "2")
	eventually(t, func() bool { return f.drv.PendingOpen("2") }, "open request")

	disposed := make(chan error, 1)
	go func() { disposed <- f.ctrl.Dispose(context.Background()) }()

	r := receive(t, ch, "initialize")
	if !errors.Is(r.err, ErrCancelled) {
		t.Fatalf("Initialize across dispose = %v, want cancelled", r.err)
	}

	dev, err := f.drv.CompleteOpen("2")
	if err != nil {
		t.Fatal(err)
	}
	if err := receive(t, disposed, "dispose"); err != nil {
		t.Fatalf("Dispose = %v", err)
	}
	if !dev.Closed() {
		t.Error("device opened after dispose was not closed")
	}
	if n := f.drv.OpenDevices(); n != 0 {
		t.Errorf("open devices = %d", n)
	}
}

func TestDisposeCancelsQueuedPreview(t *testing.T) {
	f := newFixture(t, nil)
	f.initialize("2")

	preview := f.goStartPreview(context.Background())
	eventually(t, f.pendingPreview, "queued preview")
	f.dispose()

	if err := receive(t, preview, "preview"); !errors.Is(err, ErrCancelled) {
		t.Fatalf("StartPreview across dispose = %v", err)
	}
}

func TestTeardownContinuesAfterFailingStep(t *testing.T) {
	f := newFixture(t, []sim.Option{
		sim.WithStopRepeatingPanic(),
		sim.WithSessionCloseError(errors.New("close failed")),
	})
	_, sess := f.ready("2")
	if err := f.ctrl.StartPreview(context.Background()); err != nil {
		t.Fatal(err)
	}

	f.dispose()

	if !sess.Closed() {
		t.Error("capture session close was skipped")
	}
	if n := f.drv.OpenDevices(); n != 0 {
		t.Errorf("device not closed after failing steps: %d open", n)
	}
	if f.surfaces.Len() != 0 {
		t.Errorf("surface not released: %d", f.surfaces.Len())
	}
	if got := f.ctrl.State(); got != StateClosed {
		t.Errorf("state = %v", got)
	}
}

func TestCaptureInProgress(t *testing.T) {
	f := newFixture(t, nil)
	_, sess := f.ready("2")

	first := f.goTakePicture(context.Background())
	eventually(t, func() bool { return sess.PendingCaptures() == 1 }, "capture request")

	_, err := f.ctrl.TakePicture(context.Background())
	if !errors.Is(err, ErrCaptureInProgress) {
		t.Fatalf("second TakePicture = %v", err)
	}
	if code := ErrorCode(OpTakePicture, err); code != CodeCapture {
		t.Errorf("code = %s", code)
	}

	sess.CompleteCapture()
	if r := receive(t, first, "first picture"); r.err != nil {
		t.Fatalf("first TakePicture = %v", r.err)
	}
	f.waitState(StateSessionReady)
}

func TestCaptureFailureFaults(t *testing.T) {
	f := newFixture(t, nil)
	_, sess := f.ready("2")

	picture := f.goTakePicture(context.Background())
	eventually(t, func() bool { return sess.PendingCaptures() == 1 }, "capture request")
	sess.FailCapture(errors.New("sensor timeout"))

	r := receive(t, picture, "picture")
	if !errors.Is(r.err, ErrCaptureFailed) {
		t.Fatalf("TakePicture = %v", r.err)
	}
	if got := f.ctrl.State(); got != StateFaulted {
		t.Errorf("state = %v", got)
	}
	reports := f.reporter.all()
	if len(reports) != 1 {
		t.Fatalf("reports = %d, want 1", len(reports))
	}
	if reports[0].State != StateCapturing.String() || reports[0].DeviceID != "2" {
		t.Errorf("report = %+v", reports[0])
	}
}

func TestSaveFailureKeepsSession(t *testing.T) {
	f := newFixture(t, nil)
	f.mem.err = errors.New("disk full")
	_, sess := f.ready("2")

	picture := f.goTakePicture(context.Background())
	eventually(t, func() bool { return sess.PendingCaptures() == 1 }, "capture request")
	sess.CompleteCapture()

	r := receive(t, picture, "picture")
	if !errors.Is(r.err, ErrSaveFailed) {
		t.Fatalf("TakePicture = %v", r.err)
	}
	if code := ErrorCode(OpTakePicture, r.err); code != CodeSave {
		t.Errorf("code = %s", code)
	}
	f.waitState(StateSessionReady)
}

func TestConcurrentCaptureFallback(t *testing.T) {
	f := newFixture(t, []sim.Option{sim.RejectConcurrentCapture()})
	_, sess := f.ready("2")
	if err := f.ctrl.StartPreview(context.Background()); err != nil {
		t.Fatal(err)
	}

	picture := f.goTakePicture(context.Background())
	eventually(t, func() bool { return sess.PendingCaptures() == 1 }, "capture request")
	if sess.Repeating() {
		t.Error("preview still repeating while driver captures")
	}
	sess.CompleteCapture()

	if r := receive(t, picture, "picture"); r.err != nil {
		t.Fatalf("TakePicture = %v", r.err)
	}
	f.waitState(StatePreviewRunning)
	if n := sess.RepeatingSubmissions(); n != 2 {
		t.Errorf("repeating submissions = %d, want 2", n)
	}
}

func TestDeviceDisconnectFaults(t *testing.T) {
	f := newFixture(t, nil)
	ch := f.goInitialize(context.Background(), "2")
	eventually(t, func() bool { return f.drv.PendingOpen("2") }, "open request")
	dev, _ := f.drv.CompleteOpen("2")
	receive(t, ch, "initialize")
	eventually(t, f.drv.PendingConfigure, "session configuration request")
	_, _ = f.drv.CompleteConfigure()
	f.waitState(StateSessionReady)
	if err := f.ctrl.StartPreview(context.Background()); err != nil {
		t.Fatal(err)
	}

	dev.Fail(driver.ErrDisconnected)
	f.waitState(StateFaulted)

	eventually(t, func() bool { return len(f.reporter.all()) == 1 }, "error report")
	rep := f.reporter.all()[0]
	if rep.ErrorCode != CodePreview || rep.State != StatePreviewRunning.String() || rep.Operation != "device_error" {
		t.Errorf("report = %+v", rep)
	}
}

func TestOperationDeadlines(t *testing.T) {
	f := newFixture(t, nil)
	_, sess := f.ready("2")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := f.ctrl.TakePicture(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("TakePicture = %v", err)
	}
	if code := ErrorCode(OpTakePicture, err); code != CodeCapture {
		t.Errorf("code = %s", code)
	}
	if sess.PendingCaptures() != 1 {
		t.Errorf("pending captures = %d", sess.PendingCaptures())
	}
}

func TestInitializeDeadline(t *testing.T) {
	f := newFixture(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	ch := f.goInitialize(ctx, "2")
	eventually(t, func() bool { return f.drv.PendingOpen("2") }, "open request")
	<-ctx.Done()

	// The abandoned session waits for the open to settle before it is gone.
	time.Sleep(10 * time.Millisecond)
	dev, err := f.drv.CompleteOpen("2")
	if err != nil {
		t.Fatal(err)
	}

	r := receive(t, ch, "initialize")
	if code := ErrorCode(OpInitialize, r.err); code != CodeCameraAccess {
		t.Fatalf("Initialize = %v (code %s)", r.err, code)
	}
	eventually(t, dev.Closed, "late device close")
	if got := f.ctrl.State(); got != StateClosed {
		t.Errorf("state = %v", got)
	}
}

func TestOutputSizesNeverExceedBound(t *testing.T) {
	huge := []driver.Size{{Width: 4000, Height: 3000}, {Width: 8000, Height: 6000}}
	f := newFixture(t,
		[]sim.Option{sim.WithDevice(driver.Metadata{ID: "5", Facing: driver.LensFacingExternal, PreviewSizes: huge, StillSizes: huge})},
		withConfig(Config{MaxOutputSize: driver.Size{Width: 1920, Height: 1080}}))

	_, sess := f.ready("5")
	bound := driver.Size{Width: 1920, Height: 1080}
	for _, out := range sess.Outputs() {
		if !out.Size().Fits(bound) {
			t.Errorf("%s output %s exceeds %s", out.Kind(), out.Size(), bound)
		}
	}
}

func TestStateChangeEvents(t *testing.T) {
	f := newFixture(t, nil)
	got := make(chan string, 32)
	unsub := f.bus.Subscribe(func(e events.SessionStateChangedEvent) { got <- e.To })
	defer unsub()

	f.ready("2")
	f.dispose()

	want := []string{"opening", "opened", "configuring_session", "session_ready", "closing", "closed"}
	for _, w := range want {
		if s := receive(t, got, "state event "+w); s != w {
			t.Fatalf("state event = %s, want %s", s, w)
		}
	}
}

func TestSnapshotPairsSessionWithItsState(t *testing.T) {
	f := newFixture(t, nil)

	if sess, state := f.ctrl.snapshot(); sess != nil || state != StateUninitialized {
		t.Fatalf("before initialize: %v, %v", sess, state)
	}

	f.ready("0")
	sess, state := f.ctrl.snapshot()
	if sess == nil || sess.desc.ID != "0" || state != sess.State() {
		t.Fatalf("bound: session %v, state %v", sess, state)
	}

	f.initialize("1")
	next, state := f.ctrl.snapshot()
	if next == sess || next.desc.ID != "1" || state != next.State() {
		t.Errorf("after re-initialize: session %s, state %v", next.desc.ID, state)
	}

	f.dispose()
	if sess, state := f.ctrl.snapshot(); sess != nil || state != StateClosed {
		t.Errorf("after dispose: %v, %v", sess, state)
	}
}
