// Package driver defines the camera hardware layer the session controller
// talks to: device metadata queries, asynchronous device open, capture
// session configuration and repeating/one-shot capture requests.
//
// Drivers deliver every state change through callbacks, from whatever
// goroutine they like. Callers are responsible for marshalling callbacks onto
// their own execution context.
package driver

import (
	"context"
	"fmt"
	"time"
)

// Size is a frame size in pixels.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Area returns width * height.
func (s Size) Area() int {
	return s.Width * s.Height
}

// Fits reports whether s fits inside bound in both dimensions.
func (s Size) Fits(bound Size) bool {
	return s.Width <= bound.Width && s.Height <= bound.Height
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// LensFacing is the facing reported by the driver. The zero value means the
// driver did not report any facing for the device.
type LensFacing int

// Reported facings.
const (
	LensFacingUnreported LensFacing = iota
	LensFacingFront
	LensFacingBack
	LensFacingExternal
)

func (f LensFacing) String() string {
	switch f {
	case LensFacingFront:
		return "front"
	case LensFacingBack:
		return "back"
	case LensFacingExternal:
		return "external"
	case LensFacingUnreported:
		return "unreported"
	default:
		return fmt.Sprintf("facing(%d)", int(f))
	}
}

// Metadata is what the driver reports about one device.
type Metadata struct {
	ID                string
	Name              string
	Facing            LensFacing
	SensorOrientation int // degrees clockwise, multiple of 90
	PreviewSizes      []Size
	StillSizes        []Size
}

// PixelFormat identifies the encoding of Frame.Data.
type PixelFormat string

// Supported pixel formats.
const (
	FormatMJPEG PixelFormat = "mjpeg"
	FormatYUYV  PixelFormat = "yuyv422"
)

// Frame is one image produced by the hardware.
type Frame struct {
	Seq       uint64
	Timestamp time.Time
	Size      Size
	Format    PixelFormat
	Data      []byte
}

// OutputKind distinguishes the two outputs of a capture session.
type OutputKind int

// Output kinds.
const (
	OutputPreview OutputKind = iota
	OutputStill
)

func (k OutputKind) String() string {
	if k == OutputStill {
		return "still"
	}
	return "preview"
}

// Output is a hardware-visible sink attached to a capture session.
// Deliver returns ErrOutputReleased once the output has been released.
type Output interface {
	Kind() OutputKind
	Size() Size
	Deliver(frame Frame) error
}

// FocusMode selects auto-focus behaviour for a request.
type FocusMode int

// Focus modes.
const (
	FocusContinuous FocusMode = iota
	FocusAuto
	FocusOff
)

// ExposureMode selects auto-exposure behaviour for a request.
type ExposureMode int

// Exposure modes.
const (
	ExposureAuto ExposureMode = iota
	ExposureManual
)

// CaptureRequest is one submission to the hardware.
type CaptureRequest struct {
	Target      Output
	Repeating   bool
	Focus       FocusMode
	Exposure    ExposureMode
	Orientation int
}

// DeviceCallbacks receive the outcome of Driver.Open and later device errors.
// Opened is called at most once. Failed may be called instead of Opened, or
// after it when the device fails or disappears.
type DeviceCallbacks struct {
	Opened func(dev Device)
	Failed func(err error)
}

// SessionCallbacks receive the outcome of Device.CreateSession.
type SessionCallbacks struct {
	Configured      func(sess Session)
	ConfigureFailed func(err error)
}

// CaptureCallbacks receive per-request results. Either field may be nil.
// For repeating requests Completed fires once per frame.
type CaptureCallbacks struct {
	Completed func(req CaptureRequest, frame Frame)
	Failed    func(req CaptureRequest, err error)
}

// Driver enumerates devices and opens them.
type Driver interface {
	Name() string
	DeviceIDs(ctx context.Context) ([]string, error)
	Metadata(ctx context.Context, id string) (Metadata, error)
	// Open starts opening the device. A nil error means exactly one of
	// cb.Opened or cb.Failed will eventually be called.
	Open(id string, cb DeviceCallbacks) error
}

// Device is an open, exclusive handle to a camera.
type Device interface {
	ID() string
	// CreateSession starts configuring a session bound to outputs. A nil
	// error means exactly one of cb.Configured or cb.ConfigureFailed follows.
	CreateSession(outputs []Output, cb SessionCallbacks) error
	Close() error
}

// Session is a configured binding of a device to its outputs.
type Session interface {
	SetRepeating(req CaptureRequest, cb CaptureCallbacks) error
	StopRepeating() error
	// Capture submits a one-shot request. Drivers that cannot serve a
	// one-shot request while a repeating request runs return
	// ErrConcurrentCapture.
	Capture(req CaptureRequest, cb CaptureCallbacks) error
	Close() error
}
