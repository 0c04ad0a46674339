package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/smazurov/boothcam/internal/logging"
	"github.com/spf13/cobra"
)

// CreateDevicesCmd creates the devices command.
func CreateDevicesCmd() *cobra.Command {
	var driverName string
	var builtIn int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List cameras",
		Long:  "Lists every camera the driver reports, with the facing the booth would classify it as.",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			logging.Initialize(logging.Config{Level: "warn", Format: "text"})

			drv, err := NewDriver(driverName, 0)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(c.Context(), 10*time.Second)
			defer cancel()

			descs, err := NewEnumerator(drv, builtIn).ListDevices(ctx)
			if err != nil {
				return err
			}

			out := c.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(descs)
			}
			if len(descs) == 0 {
				fmt.Fprintln(out, "No cameras found")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tFACING\tNAME")
			for _, d := range descs {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", d.ID, d.Facing, d.DisplayName())
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&driverName, "driver", DriverV4L2, "Camera driver (v4l2, sim)")
	cmd.Flags().IntVar(&builtIn, "builtin-cameras", 0, "Number of built-in cameras; 0 derives it from reported facing")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}
