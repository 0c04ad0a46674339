package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestSetSessionState(t *testing.T) {
	SetSessionState("", "opening")
	SetSessionState("opening", "opened")

	if got := testutil.ToFloat64(sessionState.WithLabelValues("opening")); got != 0 {
		t.Errorf("opening gauge = %v, want 0", got)
	}
	if got := testutil.ToFloat64(sessionState.WithLabelValues("opened")); got != 1 {
		t.Errorf("opened gauge = %v, want 1", got)
	}
}

func TestCounters(t *testing.T) {
	beforeOps := testutil.ToFloat64(operations.WithLabelValues("takePicture", "ok"))
	RecordOperation("takePicture", "ok")
	if got := testutil.ToFloat64(operations.WithLabelValues("takePicture", "ok")); got != beforeOps+1 {
		t.Errorf("operations = %v, want %v", got, beforeOps+1)
	}

	beforeDiscard := testutil.ToFloat64(discardedCallbacks.WithLabelValues("image_available"))
	RecordDiscardedCallback("image_available")
	if got := testutil.ToFloat64(discardedCallbacks.WithLabelValues("image_available")); got != beforeDiscard+1 {
		t.Errorf("discarded = %v, want %v", got, beforeDiscard+1)
	}

	beforePreview := testutil.ToFloat64(previewSubmissions)
	RecordPreviewSubmission()
	if got := testutil.ToFloat64(previewSubmissions); got != beforePreview+1 {
		t.Errorf("preview submissions = %v", got)
	}

	beforeFrames := testutil.ToFloat64(framesDelivered.WithLabelValues("still"))
	RecordFrameDelivered("still")
	if got := testutil.ToFloat64(framesDelivered.WithLabelValues("still")); got != beforeFrames+1 {
		t.Errorf("frames delivered = %v", got)
	}
}

func histogramCount(t *testing.T) uint64 {
	t.Helper()
	var m dto.Metric
	if err := captureSaveSeconds.Write(&m); err != nil {
		t.Fatal(err)
	}
	return m.GetHistogram().GetSampleCount()
}

func TestObserveCaptureSave(t *testing.T) {
	before := histogramCount(t)
	ObserveCaptureSave(30 * time.Millisecond)
	if got := histogramCount(t); got != before+1 {
		t.Errorf("sample count = %d, want %d", got, before+1)
	}
}
