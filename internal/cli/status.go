package cli

import (
	"os"
	"time"

	"github.com/spf13/cobra"
)

var statusInterval time.Duration

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show CPU, memory, disk, network and battery status",
	RunE: func(cmd *cobra.Command, args []string) error {
		core, err := newCore()
		if err != nil {
			return err
		}
		defer core.Close()

		ctx, stop := signalContext()
		defer stop()

		// Rates need two samples.
		core.Status.Collect(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(statusInterval):
		}
		snap := core.Status.Collect(ctx)

		if jsonFlag {
			return printJSON(os.Stdout, snap)
		}
		printStatus(os.Stdout, snap)
		return nil
	},
}

func init() {
	statusCmd.Flags().DurationVar(&statusInterval, "interval", time.Second, "Sampling interval for network rates")
	rootCmd.AddCommand(statusCmd)
}
