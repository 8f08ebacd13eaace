package main

import (
	"context"
	"os/exec"
	"runtime"
	"sync"

	"github.com/sirupsen/logrus"
	wruntime "github.com/wailsapp/wails/v2/pkg/runtime"

	"github.com/lyallcooper/moleui/internal/parser"
	"github.com/lyallcooper/moleui/internal/services"
	"github.com/lyallcooper/moleui/internal/types"
)

// scanEvent is the Wails event carrying every accepted scan update.
const scanEvent = "scan:update"

// App struct holds the Wails application context and provides
// methods that can be called from the frontend.
type App struct {
	ctx     context.Context
	scanner *services.Scanner
	log     *logrus.Entry
	wg      sync.WaitGroup
}

// NewApp creates a new App instance.
func NewApp(scanner *services.Scanner, log *logrus.Entry) *App {
	return &App{scanner: scanner, log: log.WithField("component", "desktop")}
}

// startup is called when the app starts. Scan updates for every verb are
// forwarded to the frontend as events, alongside the SSE stream.
func (a *App) startup(ctx context.Context) {
	a.ctx = ctx
	verbs := append(parser.Verbs(), services.VerbArtifacts, services.VerbInstallers)
	for _, verb := range verbs {
		updates := a.scanner.Subscribe(verb)
		a.wg.Add(1)
		go a.forward(verb, updates)
	}
}

func (a *App) forward(verb string, updates chan *types.ScanUpdate) {
	defer a.wg.Done()
	defer a.scanner.Unsubscribe(verb, updates)
	for {
		select {
		case <-a.ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			wruntime.EventsEmit(a.ctx, scanEvent, u)
		}
	}
}

// Confirm shows a native confirmation dialog and reports whether the user
// chose the primary action. It blocks until the user answers.
func (a *App) Confirm(title, message, primaryAction string) (bool, error) {
	choice, err := wruntime.MessageDialog(a.ctx, wruntime.MessageDialogOptions{
		Type:          wruntime.QuestionDialog,
		Title:         title,
		Message:       message,
		Buttons:       []string{"Cancel", primaryAction},
		DefaultButton: "Cancel",
		CancelButton:  "Cancel",
	})
	if err != nil {
		a.log.WithError(err).Warn("Confirmation dialog failed")
		return false, err
	}
	// Windows dialogs answer with Yes/No rather than button titles.
	return choice == primaryAction || choice == "Yes", nil
}

// RevealInFileManager opens the system file manager at the specified path.
// This can be called from the frontend to reveal files/folders.
func (a *App) RevealInFileManager(path string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", "-R", path) // -R reveals in Finder
	case "windows":
		cmd = exec.Command("explorer", "/select,", path)
	default: // Linux
		cmd = exec.Command("xdg-open", path)
	}
	return cmd.Start()
}
