package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/lyallcooper/moleui/internal/parser"
	"github.com/lyallcooper/moleui/internal/services"
	"github.com/lyallcooper/moleui/internal/types"
)

type updateMsg struct{ update *types.ScanUpdate }

type finishedMsg struct {
	view services.View
	err  error
}

// progressModel shows a spinner with the category and item count of a
// running scan.
type progressModel struct {
	verb    string
	spinner spinner.Model
	result  parser.Result
	last    string
	done    bool
	cancel  context.CancelFunc
}

func newProgressModel(verb string, cancel context.CancelFunc) progressModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = categoryStyle
	return progressModel{verb: verb, spinner: s, cancel: cancel}
}

func (m progressModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			if m.cancel != nil {
				m.cancel()
			}
			m.done = true
			return m, tea.Quit
		}
	case updateMsg:
		if ev := msg.update.Event; ev != nil {
			m.result.Apply(*ev)
			if ev.Kind == parser.ItemAppended && ev.Item != nil {
				m.last = ev.Item.Description
			}
		}
	case finishedMsg:
		m.done = true
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m progressModel) View() string {
	if m.done {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s Running mole %s", m.spinner.View(), m.verb)
	if n := len(m.result.Categories); n > 0 {
		fmt.Fprintf(&b, "  %s", categoryStyle.Render(m.result.Categories[n-1].Name))
	}
	fmt.Fprintf(&b, "  %s\n", dimStyle.Render(fmt.Sprintf("%d items", m.result.ItemCount())))
	switch {
	case m.result.Activity != "":
		b.WriteString("  " + dimStyle.Render(truncate(m.result.Activity, pathWidth)) + "\n")
	case m.last != "":
		b.WriteString("  " + dimStyle.Render(truncate(m.last, pathWidth)) + "\n")
	}
	return b.String()
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// awaitWithProgress is awaitScan with a spinner drawn on out. The program
// only renders; the scan result comes from awaitScan.
func awaitWithProgress(ctx context.Context, out io.Writer, s *services.Scanner, verb string, start func() (uint64, error)) (services.View, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(newProgressModel(verb, cancel), tea.WithOutput(out))
	results := make(chan finishedMsg, 1)
	go func() {
		view, err := awaitScan(ctx, s, verb, start, func(u *types.ScanUpdate) {
			p.Send(updateMsg{update: u})
		})
		results <- finishedMsg{view: view, err: err}
		p.Send(finishedMsg{view: view, err: err})
	}()

	if _, err := p.Run(); err != nil {
		fmt.Fprintln(os.Stderr, warnStyle.Render("progress display failed: "+err.Error()))
	}
	r := <-results
	return r.view, r.err
}

// resultOf rebuilds a parse result from a view for printing.
func resultOf(view services.View) parser.Result {
	res := parser.Result{Summary: view.Summary}
	for _, c := range view.Categories {
		res.Categories = append(res.Categories, c.Category)
	}
	return res
}
