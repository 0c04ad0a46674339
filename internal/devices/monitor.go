// Package devices watches for cameras being plugged in and removed and
// publishes each change as an events.DeviceDiscoveryEvent.
package devices

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/smazurov/boothcam/internal/events"
	"github.com/smazurov/boothcam/internal/logging"
	"github.com/smazurov/boothcam/pkg/linuxav/hotplug"
)

const defaultSysfsRoot = "/sys/class/video4linux"

// Change actions.
const (
	ActionAdded   = "added"
	ActionRemoved = "removed"
)

// Change is one camera node appearing or disappearing.
type Change struct {
	Action     string
	DeviceID   string
	DevicePath string
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithSysfsRoot overrides /sys/class/video4linux.
func WithSysfsRoot(path string) Option {
	return func(m *Monitor) { m.sysfsRoot = path }
}

// WithHandler registers fn for every published change.
func WithHandler(fn func(Change)) Option {
	return func(m *Monitor) { m.handlers = append(m.handlers, fn) }
}

// Monitor turns kernel uevents into camera changes.
type Monitor struct {
	bus       *events.Bus
	sysfsRoot string
	handlers  []func(Change)
	logger    *slog.Logger
	now       func() time.Time
}

// NewMonitor creates a monitor publishing on bus. bus may be nil.
func NewMonitor(bus *events.Bus, opts ...Option) *Monitor {
	m := &Monitor{
		bus:       bus,
		sysfsRoot: defaultSysfsRoot,
		logger:    logging.GetLogger("devices"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start watches until ctx is done. It returns once monitoring is running, or
// with the error that prevented it.
func (m *Monitor) Start(ctx context.Context) error {
	return m.start(ctx)
}

// classify maps a uevent to a camera change. Only primary capture nodes of
// the video4linux subsystem count; a removed node can no longer be checked
// and is always reported.
func (m *Monitor) classify(ev hotplug.Event) (Change, bool) {
	var action string
	switch ev.Action {
	case hotplug.ActionAdd:
		action = ActionAdded
	case hotplug.ActionRemove:
		action = ActionRemoved
	default:
		return Change{}, false
	}
	id, ok := ev.VideoIndex()
	if !ok {
		return Change{}, false
	}
	if ev.Action == hotplug.ActionAdd && !m.primaryNode(id) {
		m.logger.Debug("Ignoring secondary video node", "device_id", id)
		return Change{}, false
	}
	return Change{
		Action:     action,
		DeviceID:   id,
		DevicePath: ev.DeviceNode(),
	}, true
}

func (m *Monitor) primaryNode(id string) bool {
	data, err := os.ReadFile(filepath.Join(m.sysfsRoot, "video"+id, "index"))
	if err != nil {
		return true
	}
	idx, err := strconv.Atoi(strings.TrimSpace(string(data)))
	return err != nil || idx == 0
}

func (m *Monitor) handle(ev hotplug.Event) {
	change, ok := m.classify(ev)
	if !ok {
		return
	}
	m.logger.Info("Camera "+change.Action, "device_id", change.DeviceID, "path", change.DevicePath)

	m.bus.Publish(events.DeviceDiscoveryEvent{
		DeviceID:   change.DeviceID,
		DevicePath: change.DevicePath,
		Action:     change.Action,
		Timestamp:  m.now().UTC().Format(time.RFC3339),
	})
	for _, fn := range m.handlers {
		fn(change)
	}
}
