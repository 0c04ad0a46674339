// Package cmd holds the boothcam subcommands and the wiring they share.
package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/smazurov/boothcam/internal/bridge"
	"github.com/smazurov/boothcam/internal/camera"
	"github.com/smazurov/boothcam/internal/diagnostics"
	"github.com/smazurov/boothcam/internal/driver"
	"github.com/smazurov/boothcam/internal/driver/sim"
	"github.com/smazurov/boothcam/internal/driver/v4l2cam"
	"github.com/smazurov/boothcam/internal/events"
	"github.com/smazurov/boothcam/internal/logging"
	"github.com/smazurov/boothcam/internal/session"
	"github.com/smazurov/boothcam/internal/storage"
	"github.com/smazurov/boothcam/internal/surface"
)

// Driver names accepted by --driver.
const (
	DriverV4L2 = "v4l2"
	DriverSim  = "sim"
)

// StackConfig selects and tunes the components of a Stack.
type StackConfig struct {
	Driver           string
	V4L2Buffers      uint32
	BuiltInCameras   int
	CaptureDir       string
	JPEGQuality      int
	MaxOutput        driver.Size
	DisplayRotation  int
	Focus            string
	Exposure         string
	OperationTimeout time.Duration
	ErrorHistory     int
}

// Stack is the assembled camera pipeline.
type Stack struct {
	Driver      driver.Driver
	Enumerator  *camera.Enumerator
	Surfaces    *surface.Registry
	Sink        *storage.FileSink
	Bus         *events.Bus
	Diagnostics *diagnostics.Reporter
	Controller  *session.Controller
	Bridge      *bridge.Bridge
}

// NewDriver returns the named driver.
func NewDriver(name string, buffers uint32) (driver.Driver, error) {
	switch strings.ToLower(name) {
	case DriverV4L2, "":
		return v4l2cam.New(v4l2cam.WithBufferCount(buffers)), nil
	case DriverSim:
		return sim.New(append(sim.DefaultDevices(), sim.WithAutoComplete(33*time.Millisecond))...), nil
	default:
		return nil, fmt.Errorf("unknown driver %q (want %s or %s)", name, DriverV4L2, DriverSim)
	}
}

// ParseFocus parses continuous, auto or off.
func ParseFocus(s string) (driver.FocusMode, error) {
	switch strings.ToLower(s) {
	case "", "continuous":
		return driver.FocusContinuous, nil
	case "auto":
		return driver.FocusAuto, nil
	case "off":
		return driver.FocusOff, nil
	default:
		return 0, fmt.Errorf("unknown focus mode %q", s)
	}
}

// ParseExposure parses auto or manual.
func ParseExposure(s string) (driver.ExposureMode, error) {
	switch strings.ToLower(s) {
	case "", "auto":
		return driver.ExposureAuto, nil
	case "manual":
		return driver.ExposureManual, nil
	default:
		return 0, fmt.Errorf("unknown exposure mode %q", s)
	}
}

// NewEnumerator builds the enumerator for drv.
func NewEnumerator(drv driver.Driver, builtIn int) *camera.Enumerator {
	return camera.NewEnumerator(drv,
		camera.WithPolicy(camera.ThresholdPolicy{BuiltInCount: builtIn}.Classify),
		camera.WithLogger(logging.GetLogger("camera")))
}

// BuildStack assembles the driver, enumerator, surfaces, sink, controller and
// bridge described by cfg.
func BuildStack(cfg StackConfig) (*Stack, error) {
	focus, err := ParseFocus(cfg.Focus)
	if err != nil {
		return nil, err
	}
	exposure, err := ParseExposure(cfg.Exposure)
	if err != nil {
		return nil, err
	}
	drv, err := NewDriver(cfg.Driver, cfg.V4L2Buffers)
	if err != nil {
		return nil, err
	}
	sink, err := storage.NewFileSink(cfg.CaptureDir, cfg.JPEGQuality)
	if err != nil {
		return nil, err
	}

	bus := events.New()
	st := &Stack{
		Driver:      drv,
		Enumerator:  NewEnumerator(drv, cfg.BuiltInCameras),
		Surfaces:    surface.NewRegistry(logging.GetLogger("surface")),
		Sink:        sink,
		Bus:         bus,
		Diagnostics: diagnostics.NewReporter(cfg.ErrorHistory, bus),
	}

	st.Controller, err = session.New(session.Options{
		Driver:     drv,
		Enumerator: st.Enumerator,
		Surfaces:   st.Surfaces,
		Store:      sink,
		Config: session.Config{
			MaxOutputSize:   cfg.MaxOutput,
			DisplayRotation: cfg.DisplayRotation,
			Focus:           focus,
			Exposure:        exposure,
		},
		EventBus: bus,
		Reporter: st.Diagnostics,
	})
	if err != nil {
		return nil, err
	}
	st.Bridge = bridge.New(st.Controller, bridge.WithTimeout(cfg.OperationTimeout))
	return st, nil
}
