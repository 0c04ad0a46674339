//go:build linux

// Package v4l2cam drives USB/UVC cameras through Video4Linux2 using
// github.com/blackjack/webcam.
//
// Devices are identified by their node number: id "2" is /dev/video2. Only
// primary capture nodes (sysfs index 0) are listed, so metadata nodes of the
// same camera never show up as separate devices.
package v4l2cam

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/blackjack/webcam"
	"github.com/smazurov/boothcam/internal/driver"
	"github.com/smazurov/boothcam/internal/logging"
)

// Pixel formats as V4L2 fourcc values.
const (
	pixFmtYUYV  webcam.PixelFormat = 0x56595559 // 'YUYV'
	pixFmtMJPEG webcam.PixelFormat = 0x47504A4D // 'MJPG'
)

// Camera-class control ids.
const (
	ctrlExposureAuto      webcam.ControlID = 0x009a0901
	ctrlFocusAuto         webcam.ControlID = 0x009a090c
	ctrlCameraOrientation webcam.ControlID = 0x009a0922
	ctrlSensorRotation    webcam.ControlID = 0x009a0923
)

// V4L2_CID_CAMERA_ORIENTATION values.
const (
	orientationFront    = 0
	orientationBack     = 1
	orientationExternal = 2
)

// V4L2_CID_EXPOSURE_AUTO values.
const (
	exposureManual           = 1
	exposureAperturePriority = 3
)

const defaultSysfsRoot = "/sys/class/video4linux"

// Option configures a Driver.
type Option func(*Driver)

// WithSysfsRoot overrides /sys/class/video4linux.
func WithSysfsRoot(path string) Option {
	return func(d *Driver) { d.sysfsRoot = path }
}

// WithDevDir overrides /dev.
func WithDevDir(path string) Option {
	return func(d *Driver) { d.devDir = path }
}

// WithBufferCount sets the number of mmap buffers per stream.
func WithBufferCount(n uint32) Option {
	return func(d *Driver) {
		if n > 0 {
			d.buffers = n
		}
	}
}

// Driver is a driver.Driver for V4L2 capture devices.
type Driver struct {
	sysfsRoot string
	devDir    string
	buffers   uint32
	logger    *slog.Logger

	mu   sync.Mutex
	open map[string]*device
}

// New creates a driver.
func New(opts ...Option) *Driver {
	d := &Driver{
		sysfsRoot: defaultSysfsRoot,
		devDir:    "/dev",
		buffers:   4,
		logger:    logging.GetLogger("driver"),
		open:      make(map[string]*device),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Name implements driver.Driver.
func (d *Driver) Name() string { return "v4l2" }

func (d *Driver) devicePath(id string) string {
	return filepath.Join(d.devDir, "video"+id)
}

// DeviceIDs lists primary capture nodes in numeric order.
func (d *Driver) DeviceIDs(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(d.sysfsRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", d.sysfsRoot, err)
	}

	var nums []int
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, "video") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(name, "video"))
		if err != nil {
			continue
		}
		if idx, ok := readSysfsInt(filepath.Join(d.sysfsRoot, name, "index")); ok && idx != 0 {
			continue
		}
		nums = append(nums, n)
	}
	sort.Ints(nums)

	ids := make([]string, len(nums))
	for i, n := range nums {
		ids[i] = strconv.Itoa(n)
	}
	return ids, nil
}

// Metadata opens the node briefly to read formats and camera controls.
func (d *Driver) Metadata(ctx context.Context, id string) (driver.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return driver.Metadata{}, err
	}
	meta := driver.Metadata{
		ID:   id,
		Name: readSysfsString(filepath.Join(d.sysfsRoot, "video"+id, "name")),
	}

	cam, err := webcam.Open(d.devicePath(id))
	if err != nil {
		return driver.Metadata{}, mapErrno(err)
	}
	defer cam.Close()

	format, ok := preferredFormat(cam.GetSupportedFormats())
	if !ok {
		return driver.Metadata{}, fmt.Errorf("%w: no MJPEG or YUYV format on video%s", driver.ErrCameraDevice, id)
	}
	sizes := expandFrameSizes(cam.GetSupportedFrameSizes(format))
	meta.PreviewSizes = sizes
	meta.StillSizes = sizes

	if v, err := cam.GetControl(ctrlCameraOrientation); err == nil {
		meta.Facing = facingFromControl(v)
	}
	if v, err := cam.GetControl(ctrlSensorRotation); err == nil {
		meta.SensorOrientation = int(v)
	}
	return meta, nil
}

// Open opens the node on a background goroutine.
func (d *Driver) Open(id string, cb driver.DeviceCallbacks) error {
	path := d.devicePath(id)
	if _, err := os.Stat(path); err != nil {
		return mapErrno(err)
	}

	go func() {
		d.mu.Lock()
		if _, busy := d.open[id]; busy {
			d.mu.Unlock()
			cb.Failed(fmt.Errorf("%w: video%s", driver.ErrCameraInUse, id))
			return
		}
		cam, err := webcam.Open(path)
		if err != nil {
			d.mu.Unlock()
			cb.Failed(mapErrno(err))
			return
		}
		dev := &device{id: id, drv: d, cam: cam, cb: cb, logger: d.logger.With("device", path)}
		d.open[id] = dev
		d.mu.Unlock()

		d.logger.Debug("Camera opened", "device", path)
		cb.Opened(dev)
	}()
	return nil
}

func (d *Driver) release(id string, dev *device) {
	d.mu.Lock()
	if d.open[id] == dev {
		delete(d.open, id)
	}
	d.mu.Unlock()
}

func preferredFormat(formats map[webcam.PixelFormat]string) (webcam.PixelFormat, bool) {
	if _, ok := formats[pixFmtMJPEG]; ok {
		return pixFmtMJPEG, true
	}
	if _, ok := formats[pixFmtYUYV]; ok {
		return pixFmtYUYV, true
	}
	return 0, false
}

func pixelFormat(f webcam.PixelFormat) driver.PixelFormat {
	if f == pixFmtMJPEG {
		return driver.FormatMJPEG
	}
	return driver.FormatYUYV
}

// commonResolutions are offered for stepwise and continuous frame sizes.
var commonResolutions = []driver.Size{
	{Width: 320, Height: 240},
	{Width: 640, Height: 480},
	{Width: 800, Height: 600},
	{Width: 1024, Height: 768},
	{Width: 1280, Height: 720},
	{Width: 1280, Height: 960},
	{Width: 1600, Height: 1200},
	{Width: 1920, Height: 1080},
	{Width: 2560, Height: 1440},
	{Width: 3840, Height: 2160},
}

func expandFrameSizes(frameSizes []webcam.FrameSize) []driver.Size {
	seen := make(map[driver.Size]struct{})
	var sizes []driver.Size
	add := func(s driver.Size) {
		if _, ok := seen[s]; ok {
			return
		}
		seen[s] = struct{}{}
		sizes = append(sizes, s)
	}

	for _, fs := range frameSizes {
		if (fs.StepWidth == 0 && fs.StepHeight == 0) || (fs.MinWidth == fs.MaxWidth && fs.MinHeight == fs.MaxHeight) {
			add(driver.Size{Width: int(fs.MaxWidth), Height: int(fs.MaxHeight)})
			continue
		}
		for _, r := range commonResolutions {
			w, h := uint32(r.Width), uint32(r.Height)
			if w >= fs.MinWidth && w <= fs.MaxWidth && h >= fs.MinHeight && h <= fs.MaxHeight {
				add(r)
			}
		}
	}
	sort.Slice(sizes, func(i, j int) bool { return sizes[i].Area() > sizes[j].Area() })
	return sizes
}

func facingFromControl(v int32) driver.LensFacing {
	switch v {
	case orientationFront:
		return driver.LensFacingFront
	case orientationBack:
		return driver.LensFacingBack
	case orientationExternal:
		return driver.LensFacingExternal
	default:
		return driver.LensFacingUnreported
	}
}

// mapErrno translates open and ioctl failures into driver errors.
func mapErrno(err error) error {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %w", driver.ErrDeviceNotFound, err)
		}
		return fmt.Errorf("%w: %w", driver.ErrCameraDevice, err)
	}
	switch errno {
	case syscall.EBUSY:
		return fmt.Errorf("%w: %w", driver.ErrCameraInUse, err)
	case syscall.EACCES, syscall.EPERM:
		return fmt.Errorf("%w: %w", driver.ErrPermissionDenied, err)
	case syscall.ENOENT:
		return fmt.Errorf("%w: %w", driver.ErrDeviceNotFound, err)
	case syscall.ENODEV, syscall.ENXIO:
		return fmt.Errorf("%w: %w", driver.ErrDisconnected, err)
	case syscall.EMFILE, syscall.ENFILE:
		return fmt.Errorf("%w: %w", driver.ErrMaxCamerasInUse, err)
	default:
		return fmt.Errorf("%w: %w", driver.ErrCameraDevice, err)
	}
}

func readSysfsString(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func readSysfsInt(path string) (int, bool) {
	v, err := strconv.Atoi(readSysfsString(path))
	if err != nil {
		return 0, false
	}
	return v, true
}
