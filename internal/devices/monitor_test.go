package devices

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/smazurov/boothcam/internal/events"
	"github.com/smazurov/boothcam/pkg/linuxav/hotplug"
)

func TestClassify(t *testing.T) {
	root := t.TempDir()
	for name, index := range map[string]string{"video2": "0", "video3": "1"} {
		dir := filepath.Join(root, name)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, "index"), []byte(index+"\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	m := NewMonitor(nil, WithSysfsRoot(root))

	v4l := func(action, name string) hotplug.Event {
		return hotplug.Event{Action: action, Subsystem: hotplug.SubsystemVideo4Linux, DevName: name}
	}
	tests := []struct {
		name string
		ev   hotplug.Event
		want Change
		ok   bool
	}{
		{"primary added", v4l("add", "video2"), Change{ActionAdded, "2", "/dev/video2"}, true},
		{"metadata node added", v4l("add", "video3"), Change{}, false},
		{"unknown sysfs added", v4l("add", "video7"), Change{ActionAdded, "7", "/dev/video7"}, true},
		{"removed", v4l("remove", "video3"), Change{ActionRemoved, "3", "/dev/video3"}, true},
		{"change ignored", v4l("change", "video2"), Change{}, false},
		{"subdev ignored", v4l("add", "v4l-subdev0"), Change{}, false},
		{"usb ignored", hotplug.Event{Action: "add", Subsystem: hotplug.SubsystemUSB, DevName: "bus/usb/001/002"}, Change{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := m.classify(tt.ev)
			if ok != tt.ok || got != tt.want {
				t.Errorf("classify() = %+v, %v, want %+v, %v", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestHandlePublishes(t *testing.T) {
	bus := events.New()
	published := make(chan events.DeviceDiscoveryEvent, 1)
	unsub := bus.Subscribe(func(e events.DeviceDiscoveryEvent) { published <- e })
	defer unsub()

	var handled []Change
	m := NewMonitor(bus, WithSysfsRoot(t.TempDir()), WithHandler(func(c Change) { handled = append(handled, c) }))
	m.now = func() time.Time { return time.Date(2026, 10, 14, 10, 30, 0, 0, time.UTC) }

	m.handle(hotplug.Event{Action: "remove", Subsystem: hotplug.SubsystemVideo4Linux, DevName: "video2"})
	m.handle(hotplug.Event{Action: "bind", Subsystem: hotplug.SubsystemVideo4Linux, DevName: "video2"})

	select {
	case ev := <-published:
		if ev.DeviceID != "2" || ev.Action != ActionRemoved || ev.Timestamp != "2026-10-14T10:30:00Z" {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("event not published")
	}
	if len(handled) != 1 {
		t.Errorf("handler calls = %d", len(handled))
	}
}
