package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/sirupsen/logrus"
	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
	"github.com/wailsapp/wails/v2/pkg/options/mac"

	"github.com/lyallcooper/moleui/internal/app"
	"github.com/lyallcooper/moleui/internal/engine"
	"github.com/lyallcooper/moleui/internal/webfs"
)

// Version info - injected at build time via ldflags
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	// Find available port for internal server
	port, err := findAvailablePort()
	if err != nil {
		logrus.Fatalf("Failed to find available port: %v", err)
	}

	// Find bundled mole binary
	moleBinary := findBundledMole()
	if moleBinary != "" {
		logrus.Infof("Using mole: %s", moleBinary)
	}

	// Create the internal HTTP server
	server, err := app.CreateServer(app.ServerConfig{
		Options: app.Options{
			Port:       port,
			EnginePath: moleBinary,
			Version:    version,
			Commit:     commit,
		},
		WebFS:       webfs.FS,
		BindAddress: "127.0.0.1", // Only local connections
	})
	if err != nil {
		logrus.Fatalf("Failed to create server: %v", err)
	}
	log := server.Log.WithField("app", "desktop")

	// Create reverse proxy to internal server
	targetURL, _ := url.Parse(fmt.Sprintf("http://127.0.0.1:%d", port))
	proxy := httputil.NewSingleHostReverseProxy(targetURL)

	desktopApp := NewApp(server.Scanner, log)

	err = wails.Run(&options.App{
		Title:     "Mole",
		Width:     1100,
		Height:    760,
		MinWidth:  800,
		MinHeight: 560,
		AssetServer: &assetserver.Options{
			Handler: proxy,
		},
		OnStartup: func(ctx context.Context) {
			desktopApp.startup(ctx)
			// Start HTTP server in background
			go func() {
				log.Infof("Internal server listening on http://127.0.0.1:%d", port)
				if err := server.HTTP.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
					log.WithError(err).Error("HTTP server error")
				}
			}()
		},
		OnShutdown: func(ctx context.Context) {
			log.Info("Shutting down...")
			server.HTTP.Shutdown(context.Background())
			server.Cleanup()
			desktopApp.wg.Wait()
			log.Info("Shutdown complete")
		},
		Bind: []interface{}{
			desktopApp,
		},
		Mac: &mac.Options{
			TitleBar: &mac.TitleBar{
				TitlebarAppearsTransparent: false,
			},
			About: &mac.AboutInfo{
				Title:   "Mole",
				Message: fmt.Sprintf("Mac cleanup front end\n\nVersion: %s", buildVersionString()),
			},
		},
	})

	if err != nil {
		log.Fatalf("Wails error: %v", err)
	}
}

// findAvailablePort finds an available TCP port on localhost.
func findAvailablePort() (int, error) {
	// Try preferred port first
	preferredPort := 18090
	if isPortAvailable(preferredPort) {
		return preferredPort, nil
	}

	// Otherwise find any available port
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer listener.Close()
	return listener.Addr().(*net.TCPAddr).Port, nil
}

// isPortAvailable checks if a port is available on localhost.
func isPortAvailable(port int) bool {
	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return false
	}
	listener.Close()
	return true
}

// findBundledMole looks for a mole binary shipped next to the app. An empty
// result leaves the search to the engine resolver.
func findBundledMole() string {
	// 1. Check environment variable override
	if envPath := os.Getenv("MOLEUI_ENGINE_PATH"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	// 2. Look relative to executable (bundled app)
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}
	execDir := filepath.Dir(execPath)

	var candidates []string
	switch runtime.GOOS {
	case "darwin":
		// Inside .app bundle: Mole.app/Contents/MacOS/Mole
		// Resources at: Mole.app/Contents/Resources/
		candidates = []string{
			filepath.Join(execDir, "..", "Resources", engine.BinaryName),
			filepath.Join(execDir, engine.BinaryName),
		}
	default:
		candidates = []string{
			filepath.Join(execDir, engine.BinaryName),
		}
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	// 3. Fall back to system PATH
	if path, err := exec.LookPath(engine.BinaryName); err == nil {
		return path
	}

	return ""
}

// buildVersionString creates a display version string.
func buildVersionString() string {
	if version == "dev" {
		return "Development"
	}
	return version
}
