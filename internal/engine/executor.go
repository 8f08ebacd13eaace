// Package engine runs the external mole binary. It resolves the binary once,
// gives it a predictable environment, and offers a buffered run-to-completion
// mode and a line-streaming mode.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Engine verbs.
const (
	VerbStatus    = "status"
	VerbClean     = "clean"
	VerbOptimize  = "optimize"
	VerbUninstall = "uninstall"
	VerbPurge     = "purge"
	VerbInstaller = "installer"
)

const (
	// DefaultTimeout bounds buffered runs.
	DefaultTimeout = 2 * time.Minute
	// DefaultMaxOutput caps buffered stdout.
	DefaultMaxOutput = 10 << 20
	// DefaultStreamTimeout is the hard limit after which a streaming run is
	// killed and resolved with whatever it already produced.
	DefaultStreamTimeout = 5 * time.Minute

	stderrLimit = 64 << 10
	waitDelay   = 2 * time.Second
)

// Invocation describes one engine call: <verb> [--dry-run] [--details] [extra...].
type Invocation struct {
	Verb    string
	DryRun  bool
	Details bool
	Extra   []string
}

// Args renders the command-line arguments.
func (i Invocation) Args() []string {
	var args []string
	if i.Verb != "" {
		args = append(args, i.Verb)
	}
	if i.DryRun {
		args = append(args, "--dry-run")
	}
	if i.Details {
		args = append(args, "--details")
	}
	return append(args, i.Extra...)
}

// BufferedOptions bounds a buffered run. Zero values use the defaults.
type BufferedOptions struct {
	Timeout        time.Duration
	MaxOutputBytes int
}

func (o BufferedOptions) withDefaults() BufferedOptions {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.MaxOutputBytes <= 0 {
		o.MaxOutputBytes = DefaultMaxOutput
	}
	return o
}

// Runner is the engine surface used by the rest of the application.
// This allows mocking the executor in tests.
type Runner interface {
	// RunBuffered runs to completion and returns stdout.
	RunBuffered(ctx context.Context, inv Invocation, opts BufferedOptions) (string, error)

	// RunStreaming delivers stdout line by line until the process exits or
	// the stream timeout fires.
	RunStreaming(ctx context.Context, inv Invocation, onLine func(string)) error

	// Version returns the engine's --version output.
	Version(ctx context.Context) (string, error)
}

// Ensure Executor implements Runner
var _ Runner = (*Executor)(nil)

// Executor runs engine commands
type Executor struct {
	resolver      *Resolver
	streamTimeout time.Duration
	environ       func() []string
	log           *logrus.Entry
}

// NewExecutor creates an executor using resolver to locate the binary.
func NewExecutor(resolver *Resolver, log *logrus.Entry) *Executor {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Executor{
		resolver:      resolver,
		streamTimeout: DefaultStreamTimeout,
		environ:       os.Environ,
		log:           log.WithField("component", "engine"),
	}
}

// SetStreamTimeout overrides the streaming hard timeout.
func (e *Executor) SetStreamTimeout(d time.Duration) {
	if d > 0 {
		e.streamTimeout = d
	}
}

// Resolver exposes the path resolver.
func (e *Executor) Resolver() *Resolver {
	return e.resolver
}

func (e *Executor) command(ctx context.Context, bin string, args []string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Env = Environ(e.environ())
	cmd.WaitDelay = waitDelay
	return cmd
}

// Version runs `mole --version`.
func (e *Executor) Version(ctx context.Context) (string, error) {
	out, err := e.RunBuffered(ctx, Invocation{Extra: []string{"--version"}}, BufferedOptions{Timeout: 5 * time.Second})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// RunBuffered spawns the engine, captures stdout and discards stderr except
// as diagnostic text. A non-zero exit is tolerated when stdout is non-empty.
func (e *Executor) RunBuffered(ctx context.Context, inv Invocation, opts BufferedOptions) (string, error) {
	opts = opts.withDefaults()

	bin, err := e.resolver.Resolve()
	if err != nil {
		return "", err
	}

	runCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	cmd := e.command(runCtx, bin, inv.Args())
	stdout := &cappedBuffer{limit: opts.MaxOutputBytes, onOverflow: cancel}
	stderr := &cappedBuffer{limit: stderrLimit}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	log := e.log.WithFields(logrus.Fields{"verb": inv.Verb, "args": inv.Args()})
	log.Debug("running engine")

	if err := cmd.Start(); err != nil {
		return "", &ExecutionError{Verb: inv.Verb, Err: fmt.Errorf("%w: %v", ErrSpawn, err)}
	}
	waitErr := cmd.Wait()

	switch {
	case stdout.Overflowed():
		return "", &ExecutionError{
			Verb:       inv.Verb,
			Diagnostic: stderr.String(),
			Err:        fmt.Errorf("%w (%d bytes)", ErrOutputLimit, opts.MaxOutputBytes),
		}
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return "", &ExecutionError{
			Verb:       inv.Verb,
			Diagnostic: stderr.String(),
			Err:        fmt.Errorf("%w after %s", ErrTimeout, opts.Timeout),
		}
	case ctx.Err() != nil:
		return "", &ExecutionError{Verb: inv.Verb, Err: ctx.Err()}
	}

	out := stdout.String()
	if waitErr != nil {
		if strings.TrimSpace(out) != "" {
			log.WithError(waitErr).Warn("engine exited with error, using stdout")
			return out, nil
		}
		return "", &ExecutionError{Verb: inv.Verb, Diagnostic: stderr.String(), Err: waitErr}
	}
	return out, nil
}

// RunStreaming spawns the engine and calls onLine for every stdout line in
// emission order. It returns when the process exits. When the stream timeout
// fires the process is killed and RunStreaming returns nil so the caller
// keeps the partial output. Separate calls share no state.
func (e *Executor) RunStreaming(ctx context.Context, inv Invocation, onLine func(string)) error {
	bin, err := e.resolver.Resolve()
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithTimeout(ctx, e.streamTimeout)
	defer cancel()

	cmd := e.command(runCtx, bin, inv.Args())
	lines := NewLineWriter(onLine)
	stderr := &cappedBuffer{limit: stderrLimit}
	cmd.Stdout = lines
	cmd.Stderr = stderr

	log := e.log.WithFields(logrus.Fields{"verb": inv.Verb, "args": inv.Args()})
	log.Debug("streaming engine")

	if err := cmd.Start(); err != nil {
		return &ExecutionError{Verb: inv.Verb, Err: fmt.Errorf("%w: %v", ErrSpawn, err)}
	}
	waitErr := cmd.Wait()
	lines.Flush()

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		log.WithField("lines", lines.Lines()).Warnf("engine killed after %s, keeping partial output", e.streamTimeout)
		return nil
	}
	if waitErr != nil {
		if lines.Lines() > 0 {
			log.WithError(waitErr).Warn("engine exited with error after producing output")
			return nil
		}
		return &ExecutionError{Verb: inv.Verb, Diagnostic: stderr.String(), Err: waitErr}
	}
	return nil
}
