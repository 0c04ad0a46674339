// Package diagnostics collects terminal camera errors with the context
// needed to debug them in the field: device, session state and operation.
package diagnostics

import (
	"log/slog"
	"time"

	"github.com/smazurov/boothcam/internal/events"
	"github.com/smazurov/boothcam/internal/logging"
)

const defaultCapacity = 200

// Report is one terminal error.
type Report struct {
	Timestamp time.Time `json:"timestamp"`
	DeviceID  string    `json:"device_id"`
	State     string    `json:"state"`
	Operation string    `json:"operation"`
	ErrorCode string    `json:"error_code"`
	Message   string    `json:"message"`
}

// Reporter keeps recent reports in memory, logs them and publishes them on
// the event bus.
type Reporter struct {
	buf    *RingBuffer[Report]
	bus    *events.Bus
	logger *slog.Logger
}

// NewReporter creates a reporter keeping up to capacity reports. bus may be nil.
func NewReporter(capacity int, bus *events.Bus) *Reporter {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Reporter{
		buf:    NewRingBuffer[Report](capacity),
		bus:    bus,
		logger: logging.GetLogger("diagnostics"),
	}
}

// Report records r.
func (r *Reporter) Report(rep Report) {
	if rep.Timestamp.IsZero() {
		rep.Timestamp = time.Now()
	}
	r.buf.Write(rep)

	r.logger.Warn("Camera error reported",
		"device_id", rep.DeviceID,
		"state", rep.State,
		"operation", rep.Operation,
		"error_code", rep.ErrorCode,
		"message", rep.Message)

	r.bus.Publish(events.ErrorReportedEvent{
		DeviceID:  rep.DeviceID,
		State:     rep.State,
		Operation: rep.Operation,
		ErrorCode: rep.ErrorCode,
		Message:   rep.Message,
		Timestamp: rep.Timestamp.UTC().Format(time.RFC3339),
	})
}

// Recent returns up to n reports, oldest first. n <= 0 returns all.
func (r *Reporter) Recent(n int) []Report {
	return r.buf.Last(n)
}
