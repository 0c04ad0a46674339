// Package surface provides rendering targets for live preview. A Surface is
// handed to the driver as the preview output of a capture session; callers
// find it again by its opaque handle to render the most recent frame.
package surface

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/smazurov/boothcam/internal/driver"
)

// ErrSurfaceNotFound is returned when a handle does not name a live surface.
var ErrSurfaceNotFound = errors.New("surface not found")

// Provider allocates rendering targets.
type Provider interface {
	Allocate(size driver.Size) (Surface, error)
}

// Surface is a preview target that keeps the latest delivered frame.
type Surface interface {
	driver.Output
	Handle() int64
	Latest() (driver.Frame, bool)
	Release() error
}

// Registry is an in-memory Provider handing out sequential handles.
type Registry struct {
	surfaces map[int64]*frameSurface
	next     atomic.Int64
	mu       sync.RWMutex
	logger   *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		surfaces: make(map[int64]*frameSurface),
		logger:   logger,
	}
}

// Allocate creates a surface of the given size.
func (r *Registry) Allocate(size driver.Size) (Surface, error) {
	s := &frameSurface{
		handle:   r.next.Add(1),
		size:     size,
		registry: r,
	}

	r.mu.Lock()
	r.surfaces[s.handle] = s
	r.mu.Unlock()

	r.logger.Debug("Surface allocated", "handle", s.handle, "size", size.String())
	return s, nil
}

// Lookup returns the live surface for handle.
func (r *Registry) Lookup(handle int64) (Surface, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.surfaces[handle]
	if !ok {
		return nil, ErrSurfaceNotFound
	}
	return s, nil
}

// Len returns the number of live surfaces.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.surfaces)
}

func (r *Registry) remove(handle int64) {
	r.mu.Lock()
	delete(r.surfaces, handle)
	r.mu.Unlock()
	r.logger.Debug("Surface released", "handle", handle)
}

type frameSurface struct {
	handle   int64
	size     driver.Size
	registry *Registry

	mu       sync.RWMutex
	latest   driver.Frame
	hasFrame bool
	released bool
}

func (s *frameSurface) Kind() driver.OutputKind { return driver.OutputPreview }
func (s *frameSurface) Size() driver.Size       { return s.size }
func (s *frameSurface) Handle() int64           { return s.handle }

func (s *frameSurface) Deliver(frame driver.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return driver.ErrOutputReleased
	}
	s.latest = frame
	s.hasFrame = true
	return nil
}

func (s *frameSurface) Latest() (driver.Frame, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.released || !s.hasFrame {
		return driver.Frame{}, false
	}
	return s.latest, true
}

// Release drops the surface from its registry. Releasing twice is a no-op.
func (s *frameSurface) Release() error {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return nil
	}
	s.released = true
	s.latest = driver.Frame{}
	s.mu.Unlock()

	s.registry.remove(s.handle)
	return nil
}
