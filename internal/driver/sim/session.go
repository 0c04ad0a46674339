package sim

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"time"

	"github.com/smazurov/boothcam/internal/driver"
	"github.com/smazurov/boothcam/internal/metrics"
)

type submittedCapture struct {
	req driver.CaptureRequest
	cb  driver.CaptureCallbacks
}

// Session is a configured simulated capture session.
type Session struct {
	d       *Driver
	dev     *Device
	outputs []driver.Output
	cfg     driver.SessionCallbacks

	mu            sync.Mutex
	closed        bool
	repeating     *submittedCapture
	submissions   int
	lastRepeating driver.Output
	captures      []submittedCapture
	stopStream    chan struct{}
}

// Outputs returns the outputs the session was created with.
func (s *Session) Outputs() []driver.Output {
	return s.outputs
}

// RepeatingSubmissions counts SetRepeating calls.
func (s *Session) RepeatingSubmissions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submissions
}

// LastRepeatingTarget returns the target of the latest repeating request.
func (s *Session) LastRepeatingTarget() driver.Output {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRepeating
}

// Repeating reports whether a repeating request is active.
func (s *Session) Repeating() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repeating != nil
}

// PendingCaptures returns the number of one-shot requests not yet answered.
func (s *Session) PendingCaptures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.captures)
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// SetRepeating implements driver.Session.
func (s *Session) SetRepeating(req driver.CaptureRequest, cb driver.CaptureCallbacks) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return driver.ErrSessionClosed
	}
	s.stopStreamLocked()
	s.repeating = &submittedCapture{req: req, cb: cb}
	s.submissions++
	s.lastRepeating = req.Target
	if s.d.auto {
		s.stopStream = make(chan struct{})
		go s.stream(req, cb, s.stopStream)
	}
	s.mu.Unlock()
	return nil
}

// StopRepeating implements driver.Session.
func (s *Session) StopRepeating() error {
	if s.d.stopRepeatingPanics {
		panic("sim: stop repeating failed")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.repeating = nil
	s.stopStreamLocked()
	return nil
}

func (s *Session) stopStreamLocked() {
	if s.stopStream != nil {
		close(s.stopStream)
		s.stopStream = nil
	}
}

// Capture implements driver.Session.
func (s *Session) Capture(req driver.CaptureRequest, cb driver.CaptureCallbacks) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return driver.ErrSessionClosed
	}
	if s.d.rejectConcurrent && s.repeating != nil {
		s.mu.Unlock()
		return driver.ErrConcurrentCapture
	}
	if s.d.auto {
		s.mu.Unlock()
		go func() {
			time.Sleep(s.d.frameInterval)
			s.answer(submittedCapture{req: req, cb: cb})
		}()
		return nil
	}
	s.captures = append(s.captures, submittedCapture{req: req, cb: cb})
	s.mu.Unlock()
	return nil
}

// CompleteCapture delivers a still to the oldest pending one-shot request's
// target and fires its Completed callback.
func (s *Session) CompleteCapture() bool {
	c, ok := s.takeCapture()
	if !ok {
		return false
	}
	s.answer(c)
	return true
}

// FailCapture fires Failed for the oldest pending one-shot request.
func (s *Session) FailCapture(err error) bool {
	c, ok := s.takeCapture()
	if !ok {
		return false
	}
	if c.cb.Failed != nil {
		c.cb.Failed(c.req, err)
	}
	return true
}

// DeliverStill pushes a frame into the still output without any request,
// like a late buffer arriving after its request completed.
func (s *Session) DeliverStill() error {
	for _, out := range s.outputs {
		if out.Kind() == driver.OutputStill {
			return out.Deliver(s.d.nextFrame(out.Size()))
		}
	}
	return driver.ErrOutputReleased
}

// EmitPreviewFrame delivers one frame to the repeating target.
func (s *Session) EmitPreviewFrame() error {
	s.mu.Lock()
	r := s.repeating
	s.mu.Unlock()
	if r == nil {
		return nil
	}
	frame := s.d.nextFrame(r.req.Target.Size())
	if err := r.req.Target.Deliver(frame); err != nil {
		return err
	}
	metrics.RecordFrameDelivered(driver.OutputPreview.String())
	if r.cb.Completed != nil {
		r.cb.Completed(r.req, frame)
	}
	return nil
}

// FailRepeating fires Failed for the active repeating request.
func (s *Session) FailRepeating(err error) {
	s.mu.Lock()
	r := s.repeating
	s.mu.Unlock()
	if r != nil && r.cb.Failed != nil {
		r.cb.Failed(r.req, err)
	}
}

func (s *Session) takeCapture() (submittedCapture, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.captures) == 0 {
		return submittedCapture{}, false
	}
	c := s.captures[0]
	s.captures = s.captures[1:]
	return c, true
}

func (s *Session) answer(c submittedCapture) {
	frame := s.d.nextFrame(c.req.Target.Size())
	if err := c.req.Target.Deliver(frame); err == nil {
		metrics.RecordFrameDelivered(driver.OutputStill.String())
	}
	if c.cb.Completed != nil {
		c.cb.Completed(c.req, frame)
	}
}

func (s *Session) stream(req driver.CaptureRequest, cb driver.CaptureCallbacks, stop <-chan struct{}) {
	ticker := time.NewTicker(s.d.frameInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			frame := s.d.nextFrame(req.Target.Size())
			if err := req.Target.Deliver(frame); err != nil {
				return
			}
			metrics.RecordFrameDelivered(driver.OutputPreview.String())
			if cb.Completed != nil {
				cb.Completed(req, frame)
			}
		}
	}
}

// Close implements driver.Session.
func (s *Session) Close() error {
	s.mu.Lock()
	s.closed = true
	s.repeating = nil
	s.stopStreamLocked()
	s.mu.Unlock()
	return s.d.sessionCloseErr
}

// testPattern renders colour bars as a JPEG.
func testPattern(size driver.Size) []byte {
	w, h := size.Width, size.Height
	if w <= 0 || h <= 0 {
		w, h = 64, 48
	}
	bars := []color.RGBA{
		{235, 235, 235, 255}, {235, 235, 16, 255}, {16, 235, 235, 255}, {16, 235, 16, 255},
		{235, 16, 235, 255}, {235, 16, 16, 255}, {16, 16, 235, 255},
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := range w {
		c := bars[x*len(bars)/w]
		for y := range h {
			img.SetRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 75}); err != nil {
		return nil
	}
	return buf.Bytes()
}
