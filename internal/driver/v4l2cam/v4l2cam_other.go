//go:build !linux

package v4l2cam

import (
	"context"

	"github.com/smazurov/boothcam/internal/driver"
)

// Option configures a Driver.
type Option func(*Driver)

// WithSysfsRoot is ignored on this platform.
func WithSysfsRoot(string) Option { return func(*Driver) {} }

// WithDevDir is ignored on this platform.
func WithDevDir(string) Option { return func(*Driver) {} }

// WithBufferCount is ignored on this platform.
func WithBufferCount(uint32) Option { return func(*Driver) {} }

// Driver reports driver.ErrUnsupported for every operation.
type Driver struct{}

// New creates a driver.
func New(...Option) *Driver { return &Driver{} }

// Name implements driver.Driver.
func (d *Driver) Name() string { return "v4l2" }

// DeviceIDs implements driver.Driver.
func (d *Driver) DeviceIDs(context.Context) ([]string, error) {
	return nil, driver.ErrUnsupported
}

// Metadata implements driver.Driver.
func (d *Driver) Metadata(context.Context, string) (driver.Metadata, error) {
	return driver.Metadata{}, driver.ErrUnsupported
}

// Open implements driver.Driver.
func (d *Driver) Open(string, driver.DeviceCallbacks) error {
	return driver.ErrUnsupported
}
