package diagnostics

import (
	"testing"
	"time"

	"github.com/smazurov/boothcam/internal/events"
)

func TestRingBuffer(t *testing.T) {
	rb := NewRingBuffer[int](3)
	if got := rb.ReadAll(); got != nil {
		t.Fatalf("empty buffer returned %v", got)
	}

	for i := 1; i <= 5; i++ {
		rb.Write(i)
	}

	tests := []struct {
		n    int
		want []int
	}{
		{0, []int{3, 4, 5}},
		{2, []int{4, 5}},
		{10, []int{3, 4, 5}},
	}
	for _, tt := range tests {
		got := rb.Last(tt.n)
		if len(got) != len(tt.want) {
			t.Fatalf("Last(%d) = %v, want %v", tt.n, got, tt.want)
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("Last(%d) = %v, want %v", tt.n, got, tt.want)
				break
			}
		}
	}
	if rb.Count() != 3 {
		t.Errorf("Count = %d", rb.Count())
	}
}

func TestRingBufferPartial(t *testing.T) {
	rb := NewRingBuffer[string](4)
	rb.Write("a")
	rb.Write("b")

	got := rb.ReadAll()
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("ReadAll = %v", got)
	}
}

func TestReporterPublishes(t *testing.T) {
	bus := events.New()
	received := make(chan events.ErrorReportedEvent, 1)
	unsub := bus.Subscribe(func(e events.ErrorReportedEvent) { received <- e })
	defer unsub()

	r := NewReporter(10, bus)
	r.Report(Report{DeviceID: "2", State: "capturing", Operation: "takePicture", ErrorCode: "CAPTURE_ERROR", Message: "boom"})

	select {
	case ev := <-received:
		if ev.DeviceID != "2" || ev.State != "capturing" || ev.ErrorCode != "CAPTURE_ERROR" {
			t.Errorf("unexpected event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("event not published")
	}

	recent := r.Recent(0)
	if len(recent) != 1 || recent[0].Timestamp.IsZero() {
		t.Errorf("Recent = %+v", recent)
	}
}

func TestReporterWithoutBus(t *testing.T) {
	r := NewReporter(0, nil)
	r.Report(Report{ErrorCode: "SESSION_ERROR"})
	if len(r.Recent(5)) != 1 {
		t.Error("report not kept")
	}
}
