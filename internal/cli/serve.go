package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/lyallcooper/moleui/internal/app"
	"github.com/lyallcooper/moleui/internal/webfs"
)

var (
	servePort int
	serveBind string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the web UI on localhost",
	RunE: func(cmd *cobra.Command, args []string) error {
		server, err := app.CreateServer(app.ServerConfig{
			Options:     app.Options{Port: servePort, EnginePath: enginePath, Version: version, Commit: commit, LogLevel: logLevel},
			WebFS:       webfs.FS,
			BindAddress: serveBind,
		})
		if err != nil {
			return err
		}
		defer server.Cleanup()

		ctx, stop := signalContext()
		defer stop()

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			server.Log.Info("Shutting down...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.HTTP.Shutdown(shutdownCtx); err != nil {
				server.Log.WithError(err).Warn("Shutdown error")
			}
		}()

		server.Log.Infof("Server listening on http://%s", server.HTTP.Addr)
		if err := server.HTTP.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		server.Log.Info("Server stopped")
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (default from MOLEUI_PORT or 8080)")
	serveCmd.Flags().StringVar(&serveBind, "bind", "127.0.0.1", "Address to bind to")
	rootCmd.AddCommand(serveCmd)
}
