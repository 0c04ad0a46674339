package events

// Event type constants for kelindar/event.
const (
	TypeSessionStateChanged uint32 = iota + 1
	TypeCaptureSaved
	TypeErrorReported
	TypeDeviceDiscovery
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// SessionStateChangedEvent is published on every session state transition.
type SessionStateChangedEvent struct {
	DeviceID  string `json:"device_id" example:"2" doc:"Camera device identifier"`
	From      string `json:"from" example:"configuring_session" doc:"Previous state"`
	To        string `json:"to" example:"session_ready" doc:"New state"`
	Timestamp string `json:"timestamp" example:"2026-10-14T10:30:00Z" doc:"Transition timestamp"`
}

// Type returns the event type identifier for SessionStateChangedEvent.
func (e SessionStateChangedEvent) Type() uint32 { return TypeSessionStateChanged }

// CaptureSavedEvent is published when a still has been written to disk.
type CaptureSavedEvent struct {
	DeviceID  string `json:"device_id" example:"2" doc:"Camera device identifier"`
	Path      string `json:"path" example:"/var/lib/boothcam/captures/capture_20261014_103000.000_000001.jpg" doc:"Saved image path"`
	Bytes     int    `json:"bytes" example:"284113" doc:"Encoded image size"`
	Timestamp string `json:"timestamp" example:"2026-10-14T10:30:00Z" doc:"Save timestamp"`
}

// Type returns the event type identifier for CaptureSavedEvent.
func (e CaptureSavedEvent) Type() uint32 { return TypeCaptureSaved }

// ErrorReportedEvent carries one terminal camera error.
type ErrorReportedEvent struct {
	DeviceID  string `json:"device_id" example:"2" doc:"Camera device identifier"`
	State     string `json:"state" example:"capturing" doc:"Session state when the error occurred"`
	Operation string `json:"operation" example:"takePicture" doc:"Operation that failed"`
	ErrorCode string `json:"error_code" example:"CAPTURE_ERROR" doc:"Protocol error code"`
	Message   string `json:"message" doc:"Error description"`
	Timestamp string `json:"timestamp" example:"2026-10-14T10:30:00Z" doc:"Report timestamp"`
}

// Type returns the event type identifier for ErrorReportedEvent.
func (e ErrorReportedEvent) Type() uint32 { return TypeErrorReported }

// DeviceDiscoveryEvent represents camera hotplug events.
type DeviceDiscoveryEvent struct {
	DeviceID   string `json:"device_id" example:"2" doc:"Camera device identifier"`
	DevicePath string `json:"device_path" example:"/dev/video2" doc:"Device node"`
	Action     string `json:"action" example:"added" doc:"Action type: added, removed, changed"`
	Timestamp  string `json:"timestamp" example:"2026-10-14T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for DeviceDiscoveryEvent.
func (e DeviceDiscoveryEvent) Type() uint32 { return TypeDeviceDiscovery }
