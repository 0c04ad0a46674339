//go:build linux

package v4l2cam

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/blackjack/webcam"
	"github.com/smazurov/boothcam/internal/driver"
	"github.com/smazurov/boothcam/internal/metrics"
)

// frameWaitSeconds is how long one WaitForFrame call blocks.
const frameWaitSeconds = 1

// streamer is the part of *webcam.Webcam an open device uses.
type streamer interface {
	GetSupportedFormats() map[webcam.PixelFormat]string
	SetImageFormat(f webcam.PixelFormat, width, height uint32) (webcam.PixelFormat, uint32, uint32, error)
	SetBufferCount(count uint32) error
	SetControl(id webcam.ControlID, value int32) error
	StartStreaming() error
	StopStreaming() error
	WaitForFrame(timeout uint32) error
	GetFrame() ([]byte, uint32, error)
	ReleaseFrame(index uint32) error
	Close() error
}

type device struct {
	id     string
	drv    *Driver
	cam    streamer
	cb     driver.DeviceCallbacks
	logger *slog.Logger

	mu      sync.Mutex
	session *session
	closed  bool
}

func (dev *device) ID() string { return dev.id }

// CreateSession negotiates one stream large enough for both outputs. Preview
// and still frames are taken from the same stream.
func (dev *device) CreateSession(outputs []driver.Output, cb driver.SessionCallbacks) error {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	if dev.closed {
		return driver.ErrDisconnected
	}
	if dev.session != nil {
		return fmt.Errorf("%w: session already configured", driver.ErrCameraDevice)
	}

	var want driver.Size
	for _, out := range outputs {
		if out.Size().Area() > want.Area() {
			want = out.Size()
		}
	}

	s := &session{
		dev:        dev,
		outputs:    outputs,
		configured: make(chan struct{}),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	dev.session = s
	go s.configure(want, cb)
	return nil
}

func (dev *device) Close() error {
	dev.mu.Lock()
	if dev.closed {
		dev.mu.Unlock()
		return nil
	}
	dev.closed = true
	s := dev.session
	dev.mu.Unlock()

	if s != nil {
		_ = s.Close()
	}
	dev.drv.release(dev.id, dev)
	dev.logger.Debug("Camera closed")
	return dev.cam.Close()
}

type pendingStill struct {
	req driver.CaptureRequest
	cb  driver.CaptureCallbacks
}

type session struct {
	dev     *device
	outputs []driver.Output
	format  driver.PixelFormat
	size    driver.Size

	mu        sync.Mutex
	repeating *pendingStill
	stills    []pendingStill
	closed    bool
	streaming bool

	// configured is closed when configure returns, whatever the outcome.
	// The device handle must not be closed while it is open.
	configured chan struct{}
	stop       chan struct{}
	done       chan struct{}
	closeOnce  sync.Once
}

func (s *session) configure(want driver.Size, cb driver.SessionCallbacks) {
	err := s.start(want)
	close(s.configured)

	if err == nil {
		s.mu.Lock()
		closed := s.closed
		s.mu.Unlock()
		if closed {
			err = driver.ErrSessionClosed
		}
	}
	if err != nil {
		cb.ConfigureFailed(err)
		return
	}
	cb.Configured(s)
}

// start negotiates the format and starts streaming unless the session was
// closed in the meantime.
func (s *session) start(want driver.Size) error {
	cam := s.dev.cam
	format, ok := preferredFormat(cam.GetSupportedFormats())
	if !ok {
		return fmt.Errorf("%w: no MJPEG or YUYV format", driver.ErrCameraDevice)
	}

	got, w, h, err := cam.SetImageFormat(format, uint32(want.Width), uint32(want.Height))
	if err != nil {
		return mapErrno(err)
	}
	size := driver.Size{Width: int(w), Height: int(h)}
	if err := checkNegotiated(want, size); err != nil {
		return err
	}
	if err := cam.SetBufferCount(s.dev.drv.buffers); err != nil {
		return mapErrno(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return driver.ErrSessionClosed
	}
	if err := cam.StartStreaming(); err != nil {
		return mapErrno(err)
	}
	s.format = pixelFormat(got)
	s.size = size
	s.streaming = true

	s.dev.logger.Info("Capture session configured",
		"format", string(s.format),
		"requested", want.String(),
		"negotiated", size.String())

	go s.loop()
	return nil
}

// checkNegotiated rejects a stream the driver widened beyond the requested
// size; frames larger than the configured bound must never reach an output.
func checkNegotiated(want, got driver.Size) error {
	if got.Width <= 0 || got.Height <= 0 {
		return fmt.Errorf("%w: driver negotiated empty size %s", driver.ErrCameraDevice, got)
	}
	if got.Width > want.Width || got.Height > want.Height {
		return fmt.Errorf("%w: driver negotiated %s, larger than requested %s",
			driver.ErrCameraDevice, got, want)
	}
	return nil
}

// applyControls sets focus and exposure. Cameras without the control keep
// their defaults.
func (s *session) applyControls(req driver.CaptureRequest) {
	cam := s.dev.cam
	focus := int32(1)
	if req.Focus == driver.FocusOff {
		focus = 0
	}
	if err := cam.SetControl(ctrlFocusAuto, focus); err != nil {
		s.dev.logger.Debug("Focus control not applied", "error", err)
	}

	exposure := int32(exposureAperturePriority)
	if req.Exposure == driver.ExposureManual {
		exposure = exposureManual
	}
	if err := cam.SetControl(ctrlExposureAuto, exposure); err != nil {
		s.dev.logger.Debug("Exposure control not applied", "error", err)
	}
}

func (s *session) SetRepeating(req driver.CaptureRequest, cb driver.CaptureCallbacks) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return driver.ErrSessionClosed
	}
	s.repeating = &pendingStill{req: req, cb: cb}
	s.mu.Unlock()

	s.applyControls(req)
	return nil
}

func (s *session) StopRepeating() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.repeating = nil
	return nil
}

func (s *session) Capture(req driver.CaptureRequest, cb driver.CaptureCallbacks) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return driver.ErrSessionClosed
	}
	if len(s.stills) > 0 {
		return driver.ErrCaptureBusy
	}
	s.stills = append(s.stills, pendingStill{req: req, cb: cb})
	return nil
}

func (s *session) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.repeating = nil
		s.mu.Unlock()

		close(s.stop)
		<-s.configured

		s.mu.Lock()
		streaming := s.streaming
		s.mu.Unlock()
		if streaming {
			<-s.done
		}
	})

	s.mu.Lock()
	streaming := s.streaming
	s.streaming = false
	s.mu.Unlock()
	if streaming {
		return s.dev.cam.StopStreaming()
	}
	return nil
}

func (s *session) loop() {
	defer close(s.done)
	cam := s.dev.cam
	var seq uint64

	for {
		select {
		case <-s.stop:
			return
		default:
		}

		err := cam.WaitForFrame(frameWaitSeconds)
		var timeout *webcam.Timeout
		switch {
		case err == nil:
		case errors.As(err, &timeout):
			continue
		default:
			s.fail(mapErrno(err))
			return
		}

		buf, index, err := cam.GetFrame()
		if err != nil {
			s.fail(mapErrno(err))
			return
		}
		if len(buf) == 0 {
			continue
		}
		data := make([]byte, len(buf))
		copy(data, buf)
		if err := cam.ReleaseFrame(index); err != nil {
			s.dev.logger.Debug("Failed to requeue buffer", "index", index, "error", err)
		}

		seq++
		s.dispatch(driver.Frame{
			Seq:       seq,
			Timestamp: time.Now(),
			Size:      s.size,
			Format:    s.format,
			Data:      data,
		})
	}
}

func (s *session) dispatch(frame driver.Frame) {
	s.mu.Lock()
	repeating := s.repeating
	var still *pendingStill
	if len(s.stills) > 0 {
		still = &s.stills[0]
		s.stills = s.stills[1:]
	}
	s.mu.Unlock()

	if repeating != nil {
		if err := repeating.req.Target.Deliver(frame); err == nil {
			metrics.RecordFrameDelivered(driver.OutputPreview.String())
			if repeating.cb.Completed != nil {
				repeating.cb.Completed(repeating.req, frame)
			}
		}
	}
	if still != nil {
		if err := still.req.Target.Deliver(frame); err != nil {
			if still.cb.Failed != nil {
				still.cb.Failed(still.req, err)
			}
			return
		}
		metrics.RecordFrameDelivered(driver.OutputStill.String())
		if still.cb.Completed != nil {
			still.cb.Completed(still.req, frame)
		}
	}
}

// fail reports a stream error as a device error; a vanished camera shows up
// here as ENODEV.
func (s *session) fail(err error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}
	s.dev.logger.Warn("Capture stream failed", "error", err)
	if s.dev.cb.Failed != nil {
		s.dev.cb.Failed(err)
	}
}
