package main

import (
	"context"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/smazurov/boothcam/cmd"
	"github.com/smazurov/boothcam/internal/api"
	"github.com/smazurov/boothcam/internal/config"
	"github.com/smazurov/boothcam/internal/devices"
	"github.com/smazurov/boothcam/internal/driver"
	"github.com/smazurov/boothcam/internal/logging"
	"github.com/smazurov/boothcam/internal/metrics/exporters"
	"github.com/smazurov/boothcam/internal/version"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port string `help:"Port to listen on" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`

	// Camera settings
	Driver           string `help:"Camera driver (v4l2, sim)" default:"v4l2" toml:"camera.driver" env:"CAMERA_DRIVER"`
	MaxWidth         int    `help:"Maximum preview and still width" default:"1920" toml:"camera.max_width" env:"CAMERA_MAX_WIDTH"`
	MaxHeight        int    `help:"Maximum preview and still height" default:"1080" toml:"camera.max_height" env:"CAMERA_MAX_HEIGHT"`
	DisplayRotation  int    `help:"Display rotation in degrees" default:"0" toml:"camera.display_rotation" env:"CAMERA_DISPLAY_ROTATION"`
	Focus            string `help:"Focus mode (continuous, auto, off)" default:"continuous" toml:"camera.focus" env:"CAMERA_FOCUS"`
	Exposure         string `help:"Exposure mode (auto, manual)" default:"auto" toml:"camera.exposure" env:"CAMERA_EXPOSURE"`
	OperationTimeout string `help:"Per-operation timeout" default:"10s" toml:"camera.operation_timeout" env:"CAMERA_OPERATION_TIMEOUT"`
	BuiltInCameras   int    `help:"Number of built-in cameras; 0 derives it from reported facing" default:"0" toml:"camera.builtin_count" env:"CAMERA_BUILTIN_COUNT"`
	V4L2Buffers      int    `help:"V4L2 stream buffers" default:"4" toml:"camera.v4l2_buffers" env:"CAMERA_V4L2_BUFFERS"`
	Hotplug          bool   `help:"Watch for camera hotplug" default:"true" toml:"camera.hotplug" env:"CAMERA_HOTPLUG"`

	// Capture settings
	CaptureDir   string `help:"Directory photos are saved in" default:"captures" toml:"capture.dir" env:"CAPTURE_DIR"`
	JPEGQuality  int    `help:"JPEG quality for YUYV cameras and preview frames" default:"90" toml:"capture.jpeg_quality" env:"CAPTURE_JPEG_QUALITY"`
	ErrorHistory int    `help:"Error reports kept for diagnostics" default:"100" toml:"diagnostics.history" env:"DIAGNOSTICS_HISTORY"`

	// Auth settings
	AuthUsername string `help:"Basic auth username" default:"admin" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"password" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Logging settings
	LoggingLevel       string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat      string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingSession     string `help:"Session logging level" default:"info" toml:"logging.session" env:"LOGGING_SESSION"`
	LoggingCamera      string `help:"Camera enumeration logging level" default:"info" toml:"logging.camera" env:"LOGGING_CAMERA"`
	LoggingDriver      string `help:"Driver logging level" default:"info" toml:"logging.driver" env:"LOGGING_DRIVER"`
	LoggingStorage     string `help:"Storage logging level" default:"info" toml:"logging.storage" env:"LOGGING_STORAGE"`
	LoggingDevices     string `help:"Hotplug logging level" default:"info" toml:"logging.devices" env:"LOGGING_DEVICES"`
	LoggingBridge      string `help:"Bridge logging level" default:"info" toml:"logging.bridge" env:"LOGGING_BRIDGE"`
	LoggingAPI         string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
	LoggingHTTP        string `help:"HTTP request logging level" default:"info" toml:"logging.http" env:"LOGGING_HTTP"`
	LoggingDiagnostics string `help:"Diagnostics logging level" default:"info" toml:"logging.diagnostics" env:"LOGGING_DIAGNOSTICS"`
}

func (o *Options) loggingConfig() logging.Config {
	return logging.Config{
		Level:  o.LoggingLevel,
		Format: o.LoggingFormat,
		Modules: map[string]string{
			"session":     o.LoggingSession,
			"camera":      o.LoggingCamera,
			"surface":     o.LoggingCamera,
			"driver":      o.LoggingDriver,
			"storage":     o.LoggingStorage,
			"devices":     o.LoggingDevices,
			"bridge":      o.LoggingBridge,
			"api":         o.LoggingAPI,
			"http":        o.LoggingHTTP,
			"diagnostics": o.LoggingDiagnostics,
		},
	}
}

func main() {
	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		loadErr := config.LoadConfig(opts, cli.Root())
		logging.Initialize(opts.loggingConfig())
		logger := logging.GetLogger("main")
		if loadErr != nil {
			logger.Warn("Failed to load config", "error", loadErr)
		}

		stack, err := cmd.BuildStack(cmd.StackConfig{
			Driver:           opts.Driver,
			V4L2Buffers:      uint32(max(opts.V4L2Buffers, 0)),
			BuiltInCameras:   opts.BuiltInCameras,
			CaptureDir:       opts.CaptureDir,
			JPEGQuality:      opts.JPEGQuality,
			MaxOutput:        driver.Size{Width: opts.MaxWidth, Height: opts.MaxHeight},
			DisplayRotation:  opts.DisplayRotation,
			Focus:            opts.Focus,
			Exposure:         opts.Exposure,
			OperationTimeout: config.ParseDuration(opts.OperationTimeout, 10*time.Second),
			ErrorHistory:     opts.ErrorHistory,
		})
		if err != nil {
			logger.Error("Failed to build camera stack", "error", err)
			os.Exit(1)
		}

		server := api.NewServer(&api.Options{
			AuthUsername:      opts.AuthUsername,
			AuthPassword:      opts.AuthPassword,
			Bridge:            stack.Bridge,
			Camera:            stack.Controller,
			Devices:           stack.Enumerator,
			Surfaces:          stack.Surfaces,
			Diagnostics:       stack.Diagnostics,
			EventBus:          stack.Bus,
			JPEGQuality:       opts.JPEGQuality,
			PrometheusHandler: exporters.HTTPHandler(),
		})

		// Log levels can change without a restart.
		var watcher *config.Watcher[logging.Config]
		if opts.Config != "" {
			watcher = config.NewConfigWatcher(opts.Config, config.LoadLoggingConfig, logger)
			watcher.OnReload(func(cfg logging.Config) {
				logging.SetLevels(cfg)
				logger.Info("Logging levels reloaded", "level", cfg.Level)
			})
		}

		ctx, cancel := context.WithCancel(context.Background())

		hooks.OnStart(func() {
			if watcher != nil {
				if startErr := watcher.Start(); startErr != nil {
					logger.Warn("Failed to start config watcher", "error", startErr)
				}
			}

			if opts.Hotplug {
				monitor := devices.NewMonitor(stack.Bus)
				if startErr := monitor.Start(ctx); startErr != nil {
					logger.Warn("Camera hotplug disabled", "error", startErr)
				}
			}

			logger.Info("Starting HTTP server", "port", opts.Port, "driver", opts.Driver, "build", version.Get())
			if startErr := server.Start(opts.Port); startErr != nil {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down server")
			cancel()

			stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer stopCancel()
			if stopErr := server.Stop(stopCtx); stopErr != nil {
				logger.Error("Error stopping HTTP server", "error", stopErr)
			}

			// Release the camera after the server stops accepting commands.
			if disposeErr := stack.Controller.Dispose(stopCtx); disposeErr != nil {
				logger.Error("Error releasing camera", "error", disposeErr)
			}

			if watcher != nil {
				if stopErr := watcher.Stop(); stopErr != nil {
					logger.Warn("Error stopping config watcher", "error", stopErr)
				}
			}
		})
	})

	cli.Root().Use = "boothcam"
	cli.Root().Short = "Photo booth camera service"

	cli.Root().AddCommand(cmd.CreateDevicesCmd())
	cli.Root().AddCommand(cmd.CreateSnapCmd())

	cli.Run()
}
