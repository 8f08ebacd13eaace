// Package app provides shared application initialization logic used by both
// the CLI and desktop (Wails) entry points.
package app

import (
	"context"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lyallcooper/moleui/internal/config"
	"github.com/lyallcooper/moleui/internal/engine"
	"github.com/lyallcooper/moleui/internal/handlers"
	"github.com/lyallcooper/moleui/internal/scheduler"
	"github.com/lyallcooper/moleui/internal/services"
	"github.com/lyallcooper/moleui/internal/status"
)

// Options contains overrides applied on top of the loaded configuration.
type Options struct {
	// Port to listen on. If 0, uses config default.
	Port int

	// EnginePath overrides the mole binary. If empty, the config value or
	// the usual install locations are used.
	EnginePath string

	// Version string for display.
	Version string

	// Commit hash for display.
	Commit string

	// LogLevel overrides the configured log level when set.
	LogLevel string
}

// Core is everything except the HTTP surface. The CLI uses it directly.
type Core struct {
	Config   *config.Config
	Log      *logrus.Logger
	Resolver *engine.Resolver
	Executor *engine.Executor
	Scanner  *services.Scanner
	Status   *status.Collector
	Version  string
}

// NewCore loads configuration and builds the engine, scan service and
// metrics collector. Call Close when done.
func NewCore(opts Options) (*Core, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if opts.Port > 0 {
		cfg.Port = opts.Port
	}
	if opts.EnginePath != "" {
		cfg.EnginePath = opts.EnginePath
	}
	if opts.LogLevel != "" {
		cfg.LogLevel = opts.LogLevel
	}

	logger := NewLogger(cfg.LogLevel)
	log := logger.WithField("app", "moleui")

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to find home directory: %w", err)
	}

	resolver := engine.NewResolver(cfg.EnginePath, engine.DefaultCandidates(home))
	executor := engine.NewExecutor(resolver, log)
	executor.SetStreamTimeout(cfg.StreamTimeout)

	scanner := services.NewScanner(services.Deps{
		Runner: executor,
		Config: cfg,
		Home:   home,
		Log:    log,
		Preflight: func() error {
			_, err := resolver.Resolve()
			return err
		},
	})

	return &Core{
		Config:   cfg,
		Log:      logger,
		Resolver: resolver,
		Executor: executor,
		Scanner:  scanner,
		Status:   status.NewCollector(status.DefaultSources(), log),
		Version:  buildVersionString(opts.Version, opts.Commit),
	}, nil
}

// CheckEngine logs whether the engine can be found and which version it is.
func (c *Core) CheckEngine(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	version, err := c.Executor.Version(ctx)
	if err != nil {
		c.Log.WithError(err).Warn("mole not available")
		c.Log.Warn("  " + engine.InstallHint)
		return
	}
	c.Log.Infof("  Engine: %s (%s)", c.Resolver.Cached(), version)
}

// Close stops running scans.
func (c *Core) Close() {
	c.Scanner.Close()
}

// ServerConfig contains options for creating the application server.
type ServerConfig struct {
	Options

	// WebFS is the embedded filesystem containing web assets.
	WebFS fs.FS

	// BindAddress is the address to bind to. Defaults to 127.0.0.1; the
	// server can move files to the Trash and must not be reachable remotely.
	BindAddress string
}

// Server wraps the HTTP server and associated resources.
type Server struct {
	*Core
	HTTP      *http.Server
	Scheduler *scheduler.Scheduler
}

// CreateServer initializes all application components and returns a Server.
// Call Server.Cleanup() when done to release resources.
func CreateServer(cfg ServerConfig) (*Server, error) {
	core, err := NewCore(cfg.Options)
	if err != nil {
		return nil, err
	}
	appCfg := core.Config

	core.Log.Infof("moleui %s starting...", core.Version)
	core.Log.Infof("  Port: %d", appCfg.Port)
	core.Log.Infof("  Mole config: %s", appCfg.MoleConfigDir)
	if appCfg.File != "" {
		core.Log.Infof("  Config file: %s", appCfg.File)
	}
	core.Log.Infof("  Stream timeout: %s", appCfg.StreamTimeout)
	core.CheckEngine(context.Background())

	// Initialize scheduler
	sched, err := scheduler.New(appCfg.Refresh, core.Scanner, core.Log.WithField("app", "moleui"))
	if err != nil {
		core.Close()
		return nil, fmt.Errorf("failed to initialize scheduler: %w", err)
	}
	sched.Start()
	for _, job := range sched.Jobs() {
		core.Log.Infof("  Refresh: %s at %q (next %s)", job.Verb, job.Cron, job.NextRun.Format(time.RFC3339))
	}

	// Initialize handlers
	h, err := handlers.New(handlers.Options{
		Config:    appCfg,
		Scanner:   core.Scanner,
		Runner:    core.Executor,
		Resolver:  core.Resolver,
		Status:    core.Status,
		Scheduler: sched,
		WebFS:     cfg.WebFS,
		Version:   core.Version,
		Log:       core.Log.WithField("app", "moleui"),
	})
	if err != nil {
		sched.Stop()
		core.Close()
		return nil, fmt.Errorf("failed to initialize handlers: %w", err)
	}

	// Set up HTTP server
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	bindAddr := cfg.BindAddress
	if bindAddr == "" {
		bindAddr = "127.0.0.1"
	}
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", bindAddr, appCfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // No timeout for SSE
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		Core:      core,
		HTTP:      server,
		Scheduler: sched,
	}, nil
}

// Cleanup releases all resources held by the server.
func (s *Server) Cleanup() {
	if s.Scheduler != nil {
		s.Scheduler.Stop()
	}
	s.Core.Close()
}

// NewLogger creates a text logger at level. Unknown levels fall back to info.
func NewLogger(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)
	return logger
}

func buildVersionString(version, commit string) string {
	if version == "" {
		version = "dev"
	}
	if strings.HasPrefix(version, "v") {
		return version
	}
	shortCommit := commit
	if len(shortCommit) > 7 {
		shortCommit = shortCommit[:7]
	}
	if shortCommit == "" {
		shortCommit = "unknown"
	}
	return version + "-" + shortCommit
}
