package session

import (
	"context"
	"errors"
	"fmt"
)

// Errors returned by Controller operations. Hardware causes are wrapped
// alongside them, so errors.Is works for both the session error and the
// driver error.
var (
	ErrInit                       = errors.New("camera initialization failed")
	ErrNoSurfaceProvider          = fmt.Errorf("%w: no rendering surface provider", ErrInit)
	ErrDeviceNotFound             = errors.New("camera not found")
	ErrPermissionDenied           = errors.New("camera permission denied")
	ErrAccess                     = errors.New("camera access error")
	ErrNotInitialized             = errors.New("camera not initialized")
	ErrSessionConfigurationFailed = errors.New("capture session configuration failed")
	ErrDeviceFailed               = errors.New("camera device failed")
	ErrPreviewFailed              = errors.New("preview failed")
	ErrCaptureFailed              = errors.New("capture failed")
	ErrCaptureInProgress          = fmt.Errorf("%w: capture already in progress", ErrCaptureFailed)
	ErrSaveFailed                 = errors.New("failed to save image")
	ErrCancelled                  = errors.New("request cancelled")
	ErrSuperseded                 = fmt.Errorf("request superseded: %w", ErrCancelled)
)

// Operation names a public controller operation.
type Operation string

// Operations as named by the command protocol.
const (
	OpInitialize   Operation = "initialize"
	OpStartPreview Operation = "startPreview"
	OpTakePicture  Operation = "takePicture"
	OpDispose      Operation = "dispose"
)

// Protocol error codes.
const (
	CodeCameraNotFound = "CAMERA_NOT_FOUND"
	CodeCameraAccess   = "CAMERA_ACCESS_ERROR"
	CodePermission     = "PERMISSION_ERROR"
	CodeInit           = "INIT_ERROR"
	CodeSession        = "SESSION_ERROR"
	CodePreview        = "PREVIEW_ERROR"
	CodeCapture        = "CAPTURE_ERROR"
	CodeSave           = "SAVE_ERROR"
	CodeNotInitialized = "NOT_INITIALIZED"
	CodeCancelled      = "CANCELLED"
)

// ErrorCode maps an operation error to its protocol code. Errors carrying no
// session sentinel, such as an expired operation deadline, take the generic
// code of the operation that failed. A nil error has no code.
func ErrorCode(op Operation, err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return CodeCancelled
	case errors.Is(err, ErrInit):
		return CodeInit
	case errors.Is(err, ErrDeviceNotFound):
		return CodeCameraNotFound
	case errors.Is(err, ErrPermissionDenied):
		return CodePermission
	case errors.Is(err, ErrAccess):
		return CodeCameraAccess
	case errors.Is(err, ErrNotInitialized):
		return CodeNotInitialized
	case errors.Is(err, ErrSessionConfigurationFailed), errors.Is(err, ErrDeviceFailed):
		return CodeSession
	case errors.Is(err, ErrPreviewFailed):
		return CodePreview
	case errors.Is(err, ErrCaptureFailed):
		return CodeCapture
	case errors.Is(err, ErrSaveFailed):
		return CodeSave
	}

	switch op {
	case OpInitialize:
		return CodeCameraAccess
	case OpStartPreview:
		return CodePreview
	case OpTakePicture:
		return CodeCapture
	default:
		return CodeSession
	}
}

// cancellation reports whether err is a cancellation rather than a failure.
func cancellation(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled)
}
