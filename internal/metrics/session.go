// Package metrics provides Prometheus metrics for the camera session
// controller and drivers.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "boothcam",
		Subsystem: "session",
		Name:      "state",
		Help:      "1 for the current session state, 0 otherwise",
	}, []string{"state"})

	sessionTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "boothcam",
		Subsystem: "session",
		Name:      "transitions_total",
		Help:      "Session state transitions by target state",
	}, []string{"state"})

	operations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "boothcam",
		Subsystem: "session",
		Name:      "operations_total",
		Help:      "Public camera operations by result code",
	}, []string{"operation", "result"})

	discardedCallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "boothcam",
		Subsystem: "session",
		Name:      "discarded_callbacks_total",
		Help:      "Driver callbacks that arrived after teardown and were ignored",
	}, []string{"callback"})

	previewSubmissions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "boothcam",
		Subsystem: "session",
		Name:      "preview_submissions_total",
		Help:      "Repeating preview requests submitted to the driver",
	})

	captureSaveSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "boothcam",
		Subsystem: "capture",
		Name:      "save_seconds",
		Help:      "Time to encode and persist a still",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	})

	framesDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "boothcam",
		Subsystem: "driver",
		Name:      "frames_delivered_total",
		Help:      "Frames handed to session outputs",
	}, []string{"output"})
)

// SetSessionState moves the state gauge from prev to next.
func SetSessionState(prev, next string) {
	if prev != "" {
		sessionState.WithLabelValues(prev).Set(0)
	}
	sessionState.WithLabelValues(next).Set(1)
	sessionTransitions.WithLabelValues(next).Inc()
}

// RecordOperation counts one public operation outcome. result is "ok" or
// the protocol error code.
func RecordOperation(operation, result string) {
	operations.WithLabelValues(operation, result).Inc()
}

// RecordDiscardedCallback counts a late driver callback.
func RecordDiscardedCallback(callback string) {
	discardedCallbacks.WithLabelValues(callback).Inc()
}

// RecordPreviewSubmission counts one repeating preview submission.
func RecordPreviewSubmission() {
	previewSubmissions.Inc()
}

// ObserveCaptureSave records how long a save took.
func ObserveCaptureSave(d time.Duration) {
	captureSaveSeconds.Observe(d.Seconds())
}

// RecordFrameDelivered counts a frame handed to an output ("preview" or "still").
func RecordFrameDelivered(output string) {
	framesDelivered.WithLabelValues(output).Inc()
}
