package driver

import "errors"

// Device errors reported through DeviceCallbacks.Failed or returned from Open.
var (
	ErrCameraInUse       = errors.New("camera device is in use")
	ErrCameraDisabled    = errors.New("camera device is disabled")
	ErrMaxCamerasInUse   = errors.New("too many camera devices open")
	ErrCameraDevice      = errors.New("camera driver error")
	ErrPermissionDenied  = errors.New("camera permission denied")
	ErrDisconnected      = errors.New("camera device disconnected")
	ErrDeviceNotFound    = errors.New("camera device not found")
	ErrUnsupported       = errors.New("camera driver not supported on this platform")
	ErrOutputReleased    = errors.New("output released")
	ErrSessionClosed     = errors.New("capture session closed")
	ErrConcurrentCapture = errors.New("still capture not supported while repeating")
	ErrCaptureBusy       = errors.New("still capture already pending")
)
