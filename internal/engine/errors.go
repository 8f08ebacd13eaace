package engine

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEngineNotFound means neither the install locations nor a PATH
	// lookup produced an engine binary.
	ErrEngineNotFound = errors.New("mole engine not found")

	// ErrSpawn wraps failures to start the engine process.
	ErrSpawn = errors.New("failed to start engine")

	// ErrTimeout means the engine was killed after exceeding its time budget.
	ErrTimeout = errors.New("engine timed out")

	// ErrOutputLimit means stdout grew past the configured cap.
	ErrOutputLimit = errors.New("engine output exceeded limit")
)

// ExecutionError reports an engine invocation that produced no usable output.
type ExecutionError struct {
	Verb       string
	Diagnostic string // captured stderr, trimmed
	Err        error
}

func (e *ExecutionError) Error() string {
	verb := e.Verb
	if verb == "" {
		verb = "command"
	}
	msg := fmt.Sprintf("mole %s failed: %v", verb, e.Err)
	if d := strings.TrimSpace(e.Diagnostic); d != "" {
		msg += ": " + d
	}
	return msg
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// InstallHint is shown to users when the engine cannot be located.
const InstallHint = "Install Mole with `brew install mole` or set MOLEUI_ENGINE_PATH to the mole binary."
