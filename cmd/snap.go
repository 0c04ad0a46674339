package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/smazurov/boothcam/internal/bridge"
	"github.com/smazurov/boothcam/internal/driver"
	"github.com/smazurov/boothcam/internal/logging"
	"github.com/smazurov/boothcam/internal/storage"
	"github.com/spf13/cobra"
)

// CreateSnapCmd creates the snap command.
func CreateSnapCmd() *cobra.Command {
	cfg := StackConfig{}
	var maxWidth, maxHeight int
	var warmup time.Duration
	var verbose bool

	cmd := &cobra.Command{
		Use:   "snap [device-id]",
		Short: "Take one photo",
		Long: "Initializes the camera, runs the preview until exposure settles, " +
			"takes one still and prints the path it was saved to.",
		Args: cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			level := "warn"
			if verbose {
				level = "debug"
			}
			logging.Initialize(logging.Config{Level: level, Format: "text"})
			logger := logging.GetLogger("snap").With("device_id", args[0])

			cfg.MaxOutput = driver.Size{Width: maxWidth, Height: maxHeight}
			st, err := BuildStack(cfg)
			if err != nil {
				return err
			}

			ctx := c.Context()
			defer func() {
				_ = st.Bridge.Dispose(context.WithoutCancel(ctx))
			}()

			steps := []func() bridge.Result{
				func() bridge.Result { return st.Bridge.Initialize(ctx, args[0]) },
				func() bridge.Result { return st.Bridge.StartPreview(ctx) },
				func() bridge.Result {
					logger.Debug("Waiting for preview to settle", "warmup", warmup)
					select {
					case <-time.After(warmup):
					case <-ctx.Done():
					}
					return st.Bridge.TakePicture(ctx)
				},
			}
			var res bridge.Result
			for _, step := range steps {
				if res = step(); !res.Success {
					return fmt.Errorf("%s: %s", res.ErrorCode, res.Message)
				}
			}
			fmt.Fprintln(c.OutOrStdout(), res.Path)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.Driver, "driver", DriverV4L2, "Camera driver (v4l2, sim)")
	f.Uint32Var(&cfg.V4L2Buffers, "buffers", 4, "V4L2 stream buffers")
	f.StringVarP(&cfg.CaptureDir, "dir", "d", ".", "Directory to save the photo in")
	f.IntVarP(&cfg.JPEGQuality, "quality", "q", storage.DefaultJPEGQuality, "JPEG quality for YUYV cameras")
	f.IntVar(&maxWidth, "max-width", 1920, "Maximum output width")
	f.IntVar(&maxHeight, "max-height", 1080, "Maximum output height")
	f.IntVar(&cfg.DisplayRotation, "rotation", 0, "Display rotation in degrees")
	f.StringVar(&cfg.Focus, "focus", "continuous", "Focus mode (continuous, auto, off)")
	f.StringVar(&cfg.Exposure, "exposure", "auto", "Exposure mode (auto, manual)")
	f.DurationVar(&cfg.OperationTimeout, "timeout", 10*time.Second, "Per-operation timeout")
	f.DurationVar(&warmup, "warmup", time.Second, "Preview time before the still")
	f.BoolVarP(&verbose, "verbose", "v", false, "Debug logging")
	return cmd
}
