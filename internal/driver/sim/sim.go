// Package sim is a scriptable in-memory camera driver.
//
// In manual mode (the default) nothing happens until the test drives it:
// CompleteOpen, FailOpen, CompleteConfigure, FailConfigure and the Session
// helpers fire the driver callbacks from the calling goroutine. With
// WithAutoComplete the driver answers every request by itself and streams
// synthetic frames, which is what `--driver sim` uses.
package sim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/smazurov/boothcam/internal/driver"
)

// Option configures a Driver.
type Option func(*Driver)

// WithDevice adds a device. Devices are listed in the order they were added.
func WithDevice(meta driver.Metadata) Option {
	return func(d *Driver) {
		d.addDevice(meta)
	}
}

// WithMetadataError makes Metadata fail for id.
func WithMetadataError(id string, err error) Option {
	return func(d *Driver) {
		d.metaErr[id] = err
	}
}

// WithOpenError makes Open return err synchronously for id.
func WithOpenError(id string, err error) Option {
	return func(d *Driver) {
		d.openErr[id] = err
	}
}

// WithAutoComplete answers opens, configurations and captures on background
// goroutines and streams preview frames at the given interval.
func WithAutoComplete(frameInterval time.Duration) Option {
	return func(d *Driver) {
		d.auto = true
		if frameInterval > 0 {
			d.frameInterval = frameInterval
		}
	}
}

// RejectConcurrentCapture makes Session.Capture fail with
// driver.ErrConcurrentCapture while a repeating request is active.
func RejectConcurrentCapture() Option {
	return func(d *Driver) {
		d.rejectConcurrent = true
	}
}

// WithStopRepeatingPanic makes Session.StopRepeating panic.
func WithStopRepeatingPanic() Option {
	return func(d *Driver) {
		d.stopRepeatingPanics = true
	}
}

// WithSessionCloseError makes Session.Close return err.
func WithSessionCloseError(err error) Option {
	return func(d *Driver) {
		d.sessionCloseErr = err
	}
}

type pendingOpen struct {
	id string
	cb driver.DeviceCallbacks
}

// Driver is a simulated driver.Driver.
type Driver struct {
	mu sync.Mutex

	order   []string
	devices map[string]driver.Metadata
	metaErr map[string]error
	openErr map[string]error

	auto                bool
	frameInterval       time.Duration
	rejectConcurrent    bool
	stopRepeatingPanics bool
	sessionCloseErr     error

	pendingOpens []pendingOpen
	pendingCfg   []*Session
	open         map[*Device]struct{}
	maxOpen      int
	opens        int
	sessions     []*Session
	seq          uint64
	frames       map[driver.Size][]byte
}

// New creates a driver.
func New(opts ...Option) *Driver {
	d := &Driver{
		devices:       make(map[string]driver.Metadata),
		metaErr:       make(map[string]error),
		openErr:       make(map[string]error),
		open:          make(map[*Device]struct{}),
		frames:        make(map[driver.Size][]byte),
		frameInterval: 33 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DefaultDevices returns a typical booth setup: two built-in cameras and
// one USB camera.
func DefaultDevices() []Option {
	sizes := []driver.Size{{Width: 3840, Height: 2160}, {Width: 1920, Height: 1080}, {Width: 1280, Height: 720}, {Width: 640, Height: 480}}
	return []Option{
		WithDevice(driver.Metadata{ID: "0", Name: "Built-in Back", Facing: driver.LensFacingBack, SensorOrientation: 90, PreviewSizes: sizes, StillSizes: sizes}),
		WithDevice(driver.Metadata{ID: "1", Name: "Built-in Front", Facing: driver.LensFacingFront, SensorOrientation: 270, PreviewSizes: sizes, StillSizes: sizes}),
		WithDevice(driver.Metadata{ID: "2", Name: "USB Camera", Facing: driver.LensFacingExternal, PreviewSizes: sizes, StillSizes: sizes}),
	}
}

func (d *Driver) addDevice(meta driver.Metadata) {
	if _, ok := d.devices[meta.ID]; !ok {
		d.order = append(d.order, meta.ID)
	}
	d.devices[meta.ID] = meta
}

// AddDevice adds or replaces a device at runtime.
func (d *Driver) AddDevice(meta driver.Metadata) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.addDevice(meta)
}

// RemoveDevice drops a device from the listing.
func (d *Driver) RemoveDevice(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.devices, id)
	for i, v := range d.order {
		if v == id {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
}

// Name implements driver.Driver.
func (d *Driver) Name() string { return "sim" }

// DeviceIDs implements driver.Driver.
func (d *Driver) DeviceIDs(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.order...), nil
}

// Metadata implements driver.Driver.
func (d *Driver) Metadata(ctx context.Context, id string) (driver.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return driver.Metadata{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.metaErr[id]; err != nil {
		return driver.Metadata{}, err
	}
	meta, ok := d.devices[id]
	if !ok {
		return driver.Metadata{}, fmt.Errorf("%w: %s", driver.ErrDeviceNotFound, id)
	}
	return meta, nil
}

// Open implements driver.Driver.
func (d *Driver) Open(id string, cb driver.DeviceCallbacks) error {
	d.mu.Lock()
	if err := d.openErr[id]; err != nil {
		d.mu.Unlock()
		return err
	}
	if _, ok := d.devices[id]; !ok {
		d.mu.Unlock()
		return fmt.Errorf("%w: %s", driver.ErrDeviceNotFound, id)
	}
	auto := d.auto
	if !auto {
		d.pendingOpens = append(d.pendingOpens, pendingOpen{id: id, cb: cb})
	}
	d.mu.Unlock()

	if auto {
		go d.deliverOpen(id, cb)
	}
	return nil
}

func (d *Driver) deliverOpen(id string, cb driver.DeviceCallbacks) *Device {
	dev := &Device{id: id, d: d, cb: cb}
	d.mu.Lock()
	d.open[dev] = struct{}{}
	d.opens++
	if len(d.open) > d.maxOpen {
		d.maxOpen = len(d.open)
	}
	d.mu.Unlock()

	cb.Opened(dev)
	return dev
}

func (d *Driver) takeOpen(id string) (pendingOpen, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, p := range d.pendingOpens {
		if p.id == id {
			d.pendingOpens = append(d.pendingOpens[:i], d.pendingOpens[i+1:]...)
			return p, true
		}
	}
	return pendingOpen{}, false
}

// PendingOpen reports whether an open for id awaits completion.
func (d *Driver) PendingOpen(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, p := range d.pendingOpens {
		if p.id == id {
			return true
		}
	}
	return false
}

// CompleteOpen fires Opened for the oldest pending open of id.
func (d *Driver) CompleteOpen(id string) (*Device, error) {
	p, ok := d.takeOpen(id)
	if !ok {
		return nil, fmt.Errorf("no pending open for %s", id)
	}
	return d.deliverOpen(id, p.cb), nil
}

// FailOpen fires Failed for the oldest pending open of id.
func (d *Driver) FailOpen(id string, err error) error {
	p, ok := d.takeOpen(id)
	if !ok {
		return fmt.Errorf("no pending open for %s", id)
	}
	p.cb.Failed(err)
	return nil
}

// PendingConfigure reports whether a session awaits configuration.
func (d *Driver) PendingConfigure() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pendingCfg) > 0
}

func (d *Driver) takeConfigure() (*Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.pendingCfg) == 0 {
		return nil, fmt.Errorf("no pending session configuration")
	}
	s := d.pendingCfg[0]
	d.pendingCfg = d.pendingCfg[1:]
	return s, nil
}

// CompleteConfigure fires Configured for the oldest pending session.
func (d *Driver) CompleteConfigure() (*Session, error) {
	s, err := d.takeConfigure()
	if err != nil {
		return nil, err
	}
	s.cfg.Configured(s)
	return s, nil
}

// FailConfigure fires ConfigureFailed for the oldest pending session.
func (d *Driver) FailConfigure(cause error) error {
	s, err := d.takeConfigure()
	if err != nil {
		return err
	}
	s.cfg.ConfigureFailed(cause)
	return nil
}

// OpenDevices returns the number of device handles currently open.
func (d *Driver) OpenDevices() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.open)
}

// MaxConcurrentOpen returns the highest number of handles open at once.
func (d *Driver) MaxConcurrentOpen() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.maxOpen
}

// Opens returns how many device handles were handed out in total.
func (d *Driver) Opens() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opens
}

// LastSession returns the most recently created session.
func (d *Driver) LastSession() *Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.sessions) == 0 {
		return nil
	}
	return d.sessions[len(d.sessions)-1]
}

func (d *Driver) nextFrame(size driver.Size) driver.Frame {
	d.mu.Lock()
	d.seq++
	seq := d.seq
	data, ok := d.frames[size]
	d.mu.Unlock()

	if !ok {
		data = testPattern(size)
		d.mu.Lock()
		d.frames[size] = data
		d.mu.Unlock()
	}
	return driver.Frame{
		Seq:       seq,
		Timestamp: time.Now(),
		Size:      size,
		Format:    driver.FormatMJPEG,
		Data:      data,
	}
}

// Device is an open simulated handle.
type Device struct {
	id string
	d  *Driver
	cb driver.DeviceCallbacks

	mu     sync.Mutex
	closed bool
}

// ID implements driver.Device.
func (dev *Device) ID() string { return dev.id }

// Closed reports whether Close was called.
func (dev *Device) Closed() bool {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	return dev.closed
}

// Fail fires the device error callback, as a disconnect would.
func (dev *Device) Fail(err error) {
	dev.cb.Failed(err)
}

// CreateSession implements driver.Device.
func (dev *Device) CreateSession(outputs []driver.Output, cb driver.SessionCallbacks) error {
	dev.mu.Lock()
	closed := dev.closed
	dev.mu.Unlock()
	if closed {
		return driver.ErrDisconnected
	}

	s := &Session{d: dev.d, dev: dev, outputs: append([]driver.Output(nil), outputs...), cfg: cb}
	dev.d.mu.Lock()
	dev.d.sessions = append(dev.d.sessions, s)
	auto := dev.d.auto
	if !auto {
		dev.d.pendingCfg = append(dev.d.pendingCfg, s)
	}
	dev.d.mu.Unlock()

	if auto {
		go cb.Configured(s)
	}
	return nil
}

// Close implements driver.Device.
func (dev *Device) Close() error {
	dev.mu.Lock()
	if dev.closed {
		dev.mu.Unlock()
		return nil
	}
	dev.closed = true
	dev.mu.Unlock()

	dev.d.mu.Lock()
	delete(dev.d.open, dev)
	dev.d.mu.Unlock()
	return nil
}
