// Package camera enumerates camera hardware and classifies devices as
// built-in or external.
package camera

import (
	"errors"
	"fmt"
)

// ErrDeviceNotFound is returned when an id does not resolve to a listed device.
var ErrDeviceNotFound = errors.New("camera not found")

// Facing is the classified facing of a device.
type Facing int

// Facing values.
const (
	FacingUnknown Facing = iota
	FacingFront
	FacingBack
	FacingExternal
)

func (f Facing) String() string {
	switch f {
	case FacingFront:
		return "front"
	case FacingBack:
		return "back"
	case FacingExternal:
		return "external"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (f Facing) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// BuiltIn reports whether the facing belongs to a built-in camera.
func (f Facing) BuiltIn() bool {
	return f == FacingFront || f == FacingBack
}

// Descriptor identifies one discovered camera.
type Descriptor struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Facing Facing `json:"facing"`
}

// DisplayName returns the name to show to users, falling back to a
// facing-based label when the driver reported none.
func (d Descriptor) DisplayName() string {
	if d.Name != "" {
		return d.Name
	}
	switch d.Facing {
	case FacingExternal:
		return fmt.Sprintf("External Camera %s", d.ID)
	case FacingFront:
		return fmt.Sprintf("Front Camera %s", d.ID)
	case FacingBack:
		return fmt.Sprintf("Back Camera %s", d.ID)
	default:
		return fmt.Sprintf("Camera %s", d.ID)
	}
}
