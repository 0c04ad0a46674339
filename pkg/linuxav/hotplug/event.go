// Package hotplug watches kernel uevents for camera nodes without cgo or
// libudev, by reading the kernel's netlink broadcast directly.
package hotplug

import (
	"bytes"
	"strings"
)

// Actions the camera monitor cares about.
const (
	ActionAdd    = "add"
	ActionRemove = "remove"
	ActionChange = "change"
)

// Subsystems a camera shows up under.
const (
	SubsystemVideo4Linux = "video4linux"
	SubsystemUSB         = "usb"
)

const videoPrefix = "video"

// Event is one kernel uevent.
type Event struct {
	Action    string
	KObj      string // sysfs path of the kernel object
	Subsystem string
	DevType   string
	DevName   string // node name relative to /dev, e.g. "video2"
	DevPath   string
	Env       map[string]string
}

// DeviceNode returns the /dev path of the event's node, or "" when the event
// carries no DEVNAME.
func (e Event) DeviceNode() string {
	if e.DevName == "" {
		return ""
	}
	if strings.HasPrefix(e.DevName, "/") {
		return e.DevName
	}
	return "/dev/" + e.DevName
}

// VideoIndex returns N for a /dev/videoN node.
func (e Event) VideoIndex() (string, bool) {
	if e.Subsystem != SubsystemVideo4Linux {
		return "", false
	}
	name := strings.TrimPrefix(e.DevName, "/dev/")
	n, ok := strings.CutPrefix(name, videoPrefix)
	if !ok || n == "" {
		return "", false
	}
	for _, r := range n {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	return n, true
}

// libudevMagic prefixes messages re-broadcast by udevd.
var libudevMagic = []byte("libudev")

// ParseUEvent parses "ACTION@KOBJ\0KEY=VALUE\0...". It returns nil for
// anything that is not a kernel uevent, including udevd's binary
// re-broadcasts.
func ParseUEvent(data []byte) *Event {
	if len(data) == 0 || bytes.HasPrefix(data, libudevMagic) {
		return nil
	}

	header, rest, _ := bytes.Cut(data, []byte{0})
	action, kobj, ok := strings.Cut(string(header), "@")
	if !ok || action == "" {
		return nil
	}

	ev := &Event{Action: action, KObj: kobj, Env: make(map[string]string)}
	for len(rest) > 0 {
		var field []byte
		field, rest, _ = bytes.Cut(rest, []byte{0})
		key, value, ok := strings.Cut(string(field), "=")
		if !ok || key == "" {
			continue
		}
		ev.Env[key] = value
	}

	ev.Subsystem = ev.Env["SUBSYSTEM"]
	ev.DevType = ev.Env["DEVTYPE"]
	ev.DevName = ev.Env["DEVNAME"]
	ev.DevPath = ev.Env["DEVPATH"]
	return ev
}
