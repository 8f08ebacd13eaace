package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/lyallcooper/moleui/internal/services"
	"github.com/lyallcooper/moleui/internal/sizes"
	"github.com/lyallcooper/moleui/internal/types"
)

// newFilesCmd builds a command that runs one of the filesystem scans and
// optionally moves what it found to the Trash. Recently modified paths are
// listed but never trashed.
func newFilesCmd(verb, short string, start func(*services.Scanner) func() (uint64, error)) *cobra.Command {
	var trashFlag bool
	cmd := &cobra.Command{
		Use:   verb,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			core, err := newCore()
			if err != nil {
				return err
			}
			defer core.Close()

			ctx, stop := signalContext()
			defer stop()

			if !jsonFlag {
				fmt.Println(dimStyle.Render("Scanning for " + verb + "..."))
			}
			view, err := awaitScan(ctx, core.Scanner, verb, start(core.Scanner), nil)
			if err != nil {
				return err
			}
			if view.Status == types.StatusFailed && len(view.Found) == 0 {
				return fmt.Errorf("%s scan failed: %s", verb, view.Error)
			}
			if jsonFlag && !trashFlag {
				return printJSON(os.Stdout, view)
			}
			if !jsonFlag {
				printFound(os.Stdout, verb, view.Found, time.Now())
			}
			if !trashFlag {
				return nil
			}

			var ids []string
			var total int64
			for _, f := range view.Found {
				if f.IsRecentlyModified {
					continue
				}
				ids = append(ids, f.ID)
				if f.SizeBytes != nil {
					total += *f.SizeBytes
				}
			}
			if len(ids) == 0 {
				fmt.Println("Nothing to move.")
				return nil
			}
			if !confirmAction(fmt.Sprintf("Move %d items (%s) to the Trash?", len(ids), sizes.Format(total))) {
				fmt.Println("Cancelled.")
				return nil
			}

			out, err := core.Scanner.TrashFound(ctx, verb, ids)
			if out == nil {
				return err
			}
			if jsonFlag {
				return printJSON(os.Stdout, out)
			}
			for _, r := range out.Results {
				if !r.OK() {
					fmt.Println(errorStyle.Render(fmt.Sprintf("  %s: %s", r.Path, r.Error)))
				}
			}
			for _, p := range out.Protected {
				fmt.Println(dimStyle.Render("  protected by whitelist: " + p))
			}
			fmt.Println(titleStyle.Render(fmt.Sprintf("Moved %d of %d to the Trash", out.Moved(), len(ids))))
			return err
		},
	}
	cmd.Flags().BoolVar(&trashFlag, "trash", false, "Move everything found (except recent items) to the Trash")
	return cmd
}

func init() {
	rootCmd.AddCommand(newFilesCmd(services.VerbArtifacts, "Find project build artifacts such as node_modules and target",
		func(s *services.Scanner) func() (uint64, error) { return s.StartArtifactScan }))
	rootCmd.AddCommand(newFilesCmd(services.VerbInstallers, "Find leftover installers in Downloads, Desktop and Documents",
		func(s *services.Scanner) func() (uint64, error) { return s.StartInstallerScan }))
}
