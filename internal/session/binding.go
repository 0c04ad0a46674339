package session

import (
	"sync"

	"github.com/smazurov/boothcam/internal/driver"
	"github.com/smazurov/boothcam/internal/surface"
)

// binding is the pair of outputs a capture session is created with. The
// preview surface passed to CreateSession is the one every preview request
// targets.
type binding struct {
	preview surface.Surface
	capture *captureSink
}

func (b *binding) outputs() []driver.Output {
	return []driver.Output{b.preview, b.capture}
}

// captureSink is a single-slot still output. A newer frame replaces an
// unread one. onAvailable runs after every accepted frame, on the driver's
// goroutine.
type captureSink struct {
	size        driver.Size
	onAvailable func()

	mu       sync.Mutex
	frame    driver.Frame
	hasFrame bool
	released bool
}

func newCaptureSink(size driver.Size, onAvailable func()) *captureSink {
	return &captureSink{size: size, onAvailable: onAvailable}
}

func (s *captureSink) Kind() driver.OutputKind { return driver.OutputStill }
func (s *captureSink) Size() driver.Size       { return s.size }

func (s *captureSink) Deliver(frame driver.Frame) error {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return driver.ErrOutputReleased
	}
	s.frame = frame
	s.hasFrame = true
	s.mu.Unlock()

	if s.onAvailable != nil {
		s.onAvailable()
	}
	return nil
}

// acquire takes the unread frame.
func (s *captureSink) acquire() (driver.Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released || !s.hasFrame {
		return driver.Frame{}, false
	}
	frame := s.frame
	s.frame = driver.Frame{}
	s.hasFrame = false
	return frame, true
}

func (s *captureSink) release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released = true
	s.frame = driver.Frame{}
	s.hasFrame = false
	return nil
}
