package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lyallcooper/moleui/internal/parser"
	"github.com/lyallcooper/moleui/internal/services"
	"github.com/lyallcooper/moleui/internal/types"
)

type verbFlags struct {
	run     bool
	details bool
}

var verbDescriptions = map[string]string{
	"clean":     "Preview or run a system cleanup",
	"optimize":  "Preview or run system maintenance tasks",
	"purge":     "Preview or purge project build artifacts through Mole",
	"uninstall": "Preview or remove apps and their leftovers",
}

// newVerbCmd builds the command for one engine verb. Without --run it shows
// a dry-run preview; with --run it asks for confirmation and streams the
// real run.
func newVerbCmd(verb string) *cobra.Command {
	var flags verbFlags
	cmd := &cobra.Command{
		Use:   verb + " [-- extra mole args]",
		Short: verbDescriptions[verb],
		RunE: func(cmd *cobra.Command, args []string) error {
			core, err := newCore()
			if err != nil {
				return err
			}
			defer core.Close()

			ctx, stop := signalContext()
			defer stop()

			opts := services.ScanOptions{DryRun: true, Details: flags.details, Extra: args}
			if !flags.run {
				if !jsonFlag {
					fmt.Println(dimStyle.Render("Previewing mole " + verb + "..."))
				}
				res, err := core.Scanner.RunBuffered(ctx, verb, opts)
				if err != nil {
					return err
				}
				if jsonFlag {
					return printJSON(os.Stdout, res)
				}
				printResult(os.Stdout, verb, res)
				return nil
			}

			if !confirmAction(fmt.Sprintf("Run mole %s for real? This cannot be undone.", verb)) {
				fmt.Println("Cancelled.")
				return nil
			}

			opts.DryRun = false
			start := func() (uint64, error) { return core.Scanner.StartScan(verb, opts) }
			if !jsonFlag && isTerminal(os.Stdout) {
				view, err := awaitWithProgress(ctx, os.Stdout, core.Scanner, verb, start)
				if err != nil {
					return err
				}
				if view.Status == types.StatusFailed {
					fmt.Println(errorStyle.Render(view.Error))
					return fmt.Errorf("mole %s failed", verb)
				}
				printResult(os.Stdout, verb, resultOf(view))
				return nil
			}

			view, err := awaitScan(ctx, core.Scanner, verb, start, func(u *types.ScanUpdate) {
				if u.Event == nil || jsonFlag {
					return
				}
				switch u.Event.Kind {
				case parser.CategoryOpened:
					fmt.Println(categoryStyle.Render(u.Event.Category))
				case parser.ItemAppended:
					fmt.Printf("  %s\n", u.Event.Item.Description)
				}
			})
			if err != nil {
				return err
			}
			if jsonFlag {
				return printJSON(os.Stdout, view)
			}
			if view.Status == types.StatusFailed {
				fmt.Println(errorStyle.Render(view.Error))
				return fmt.Errorf("mole %s failed", verb)
			}
			fmt.Println(titleStyle.Render(doneLine(view)))
			return nil
		},
	}
	cmd.Flags().BoolVar(&flags.run, "run", false, "Run for real instead of previewing")
	cmd.Flags().BoolVar(&flags.details, "details", false, "Ask mole for per-item details")
	return cmd
}

func init() {
	for _, verb := range parser.Verbs() {
		rootCmd.AddCommand(newVerbCmd(verb))
	}
}
