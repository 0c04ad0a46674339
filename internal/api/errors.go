package api

import (
	"net/http"

	"github.com/smazurov/boothcam/internal/bridge"
	"github.com/smazurov/boothcam/internal/session"
)

// commandError is the problem body of a failed camera command. It carries
// the protocol error code next to the usual huma fields.
type commandError struct {
	Status    int    `json:"status" example:"409" doc:"HTTP status code"`
	Title     string `json:"title" example:"Conflict" doc:"HTTP status text"`
	Detail    string `json:"detail" doc:"Error description"`
	ErrorCode string `json:"error_code" example:"NOT_INITIALIZED" doc:"Protocol error code"`
}

func (e *commandError) Error() string  { return e.Detail }
func (e *commandError) GetStatus() int { return e.Status }

func newCommandError(res bridge.Result) *commandError {
	status := statusForCode(res.ErrorCode)
	return &commandError{
		Status:    status,
		Title:     http.StatusText(status),
		Detail:    res.Message,
		ErrorCode: res.ErrorCode,
	}
}

func statusForCode(code string) int {
	switch code {
	case session.CodeCameraNotFound:
		return http.StatusNotFound
	case session.CodePermission:
		return http.StatusForbidden
	case session.CodeNotInitialized, session.CodeCancelled:
		return http.StatusConflict
	case session.CodeCameraAccess:
		return http.StatusServiceUnavailable
	case bridge.CodeNotImplemented:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}
