// Package cli implements the moleui command line: a local web server and
// terminal renderings of every engine verb.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lyallcooper/moleui/internal/app"
	"github.com/lyallcooper/moleui/internal/engine"
)

var (
	jsonFlag   bool
	yesFlag    bool
	enginePath string
	logLevel   string

	// Set via ldflags at build time.
	version = "dev"
	commit  = ""
)

var rootCmd = &cobra.Command{
	Use:           "moleui",
	Short:         "A front end for the Mole cleanup engine",
	Long:          "moleui previews and runs Mole's clean, optimize, purge and uninstall verbs,\nfinds project build artifacts and leftover installers, and serves a local web UI.",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	if errors.Is(err, engine.ErrEngineNotFound) {
		return fmt.Errorf("%w\n%s", err, engine.InstallHint)
	}
	return err
}

// RootCmd exposes the command tree for documentation generators.
func RootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("moleui %s\n", version))
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().BoolVar(&jsonFlag, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&yesFlag, "yes", "y", false, "Skip confirmation prompts")
	rootCmd.PersistentFlags().StringVar(&enginePath, "engine", "", "Path to the mole binary (default: search install locations)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
}

// newCore builds the shared services for one command invocation. Terminal
// commands only log warnings unless --log-level says otherwise.
func newCore() (*app.Core, error) {
	level := logLevel
	if level == "" {
		level = "warn"
	}
	return app.NewCore(app.Options{EnginePath: enginePath, Version: version, Commit: commit, LogLevel: level})
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
