package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/boothcam/internal/diagnostics"
	"github.com/smazurov/boothcam/internal/driver"
	"github.com/smazurov/boothcam/internal/driver/sim"
	"github.com/smazurov/boothcam/internal/events"
	"github.com/smazurov/boothcam/internal/storage"
	"github.com/smazurov/boothcam/internal/surface"
)

const waitTimeout = 2 * time.Second

var boothSizes = []driver.Size{
	{Width: 3840, Height: 2160},
	{Width: 1920, Height: 1080},
	{Width: 1280, Height: 720},
}

func boothDevices() []sim.Option {
	return []sim.Option{
		sim.WithDevice(driver.Metadata{ID: "0", Facing: driver.LensFacingBack, SensorOrientation: 90, PreviewSizes: boothSizes, StillSizes: boothSizes}),
		sim.WithDevice(driver.Metadata{ID: "1", Facing: driver.LensFacingFront, SensorOrientation: 270, PreviewSizes: boothSizes, StillSizes: boothSizes}),
		sim.WithDevice(driver.Metadata{ID: "2", Name: "USB Camera", Facing: driver.LensFacingExternal, PreviewSizes: boothSizes, StillSizes: boothSizes}),
	}
}

type memStore struct {
	mu    sync.Mutex
	saved []driver.Frame
	err   error
}

func (m *memStore) Save(ctx context.Context, frame driver.Frame) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.saved = append(m.saved, frame)
	return fmt.Sprintf("/captures/capture_%06d.jpg", len(m.saved)), nil
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saved)
}

type recordingReporter struct {
	mu      sync.Mutex
	reports []diagnostics.Report
}

func (r *recordingReporter) Report(rep diagnostics.Report) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, rep)
}

func (r *recordingReporter) all() []diagnostics.Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]diagnostics.Report(nil), r.reports...)
}

type fixture struct {
	t        *testing.T
	drv      *sim.Driver
	surfaces *surface.Registry
	store    storage.Sink
	mem      *memStore
	reporter *recordingReporter
	bus      *events.Bus
	ctrl     *Controller
}

type fixtureOption func(*Options)

func withStore(store storage.Sink) fixtureOption {
	return func(o *Options) { o.Store = store }
}

func withConfig(cfg Config) fixtureOption {
	return func(o *Options) { o.Config = cfg }
}

func withoutSurfaces() fixtureOption {
	return func(o *Options) { o.Surfaces = nil }
}

func newFixture(t *testing.T, simOpts []sim.Option, opts ...fixtureOption) *fixture {
	t.Helper()
	f := &fixture{
		t:        t,
		drv:      sim.New(append(boothDevices(), simOpts...)...),
		surfaces: surface.NewRegistry(nil),
		mem:      &memStore{},
		reporter: &recordingReporter{},
		bus:      events.New(),
	}
	o := Options{
		Driver:   f.drv,
		Surfaces: f.surfaces,
		Store:    f.mem,
		EventBus: f.bus,
		Reporter: f.reporter,
	}
	for _, opt := range opts {
		opt(&o)
	}
	f.store = o.Store

	ctrl, err := New(o)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	f.ctrl = ctrl
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
		defer cancel()
		_ = ctrl.Dispose(ctx)
	})
	return f
}

func eventually(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func receive[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(waitTimeout):
		t.Fatalf("timed out waiting for %s", what)
	}
	var zero T
	return zero
}

type initReturn struct {
	res InitResult
	err error
}

func (f *fixture) goInitialize(ctx context.Context, id string) <-chan initReturn {
	ch := make(chan initReturn, 1)
	go func() {
		res, err := f.ctrl.Initialize(ctx, id)
		ch <- initReturn{res, err}
	}()
	return ch
}

// initialize opens id and returns once Initialize has returned.
func (f *fixture) initialize(id string) InitResult {
	f.t.Helper()
	ch := f.goInitialize(context.Background(), id)
	eventually(f.t, func() bool { return f.drv.PendingOpen(id) }, "open request")
	if _, err := f.drv.CompleteOpen(id); err != nil {
		f.t.Fatal(err)
	}
	r := receive(f.t, ch, "initialize")
	if r.err != nil {
		f.t.Fatalf("Initialize(%s) failed: %v", id, r.err)
	}
	return r.res
}

// ready opens id and configures its capture session.
func (f *fixture) ready(id string) (InitResult, *sim.Session) {
	f.t.Helper()
	res := f.initialize(id)
	eventually(f.t, f.drv.PendingConfigure, "session configuration request")
	sess, err := f.drv.CompleteConfigure()
	if err != nil {
		f.t.Fatal(err)
	}
	f.waitState(StateSessionReady)
	return res, sess
}

func (f *fixture) waitState(want State) {
	f.t.Helper()
	eventually(f.t, func() bool { return f.ctrl.State() == want }, "state "+want.String())
}

func (f *fixture) goStartPreview(ctx context.Context) <-chan error {
	ch := make(chan error, 1)
	go func() { ch <- f.ctrl.StartPreview(ctx) }()
	return ch
}

type pictureReturn struct {
	path string
	err  error
}

func (f *fixture) goTakePicture(ctx context.Context) <-chan pictureReturn {
	ch := make(chan pictureReturn, 1)
	go func() {
		path, err := f.ctrl.TakePicture(ctx)
		ch <- pictureReturn{path, err}
	}()
	return ch
}

// pendingPreview reports whether a preview request waits in the coordinator.
func (f *fixture) pendingPreview() bool {
	sess, _ := f.ctrl.snapshot()
	if sess == nil {
		return false
	}
	var waiting bool
	if err := sess.exec.Call(func() { waiting = sess.coord.preview != nil }); err != nil {
		return false
	}
	return waiting
}

func (f *fixture) dispose() {
	f.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	if err := f.ctrl.Dispose(ctx); err != nil {
		f.t.Fatalf("Dispose returned %v", err)
	}
}
