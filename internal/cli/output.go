package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/lyallcooper/moleui/internal/parser"
	"github.com/lyallcooper/moleui/internal/scanner"
	"github.com/lyallcooper/moleui/internal/services"
	"github.com/lyallcooper/moleui/internal/sizes"
	"github.com/lyallcooper/moleui/internal/status"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	categoryStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("81"))
	sizeStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("229")).Width(10).Align(lipgloss.Right)
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	warnStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

const pathWidth = 60

func printResult(w io.Writer, verb string, res parser.Result) {
	if len(res.Categories) == 0 {
		fmt.Fprintln(w, dimStyle.Render("Nothing to "+verb+"."))
		return
	}

	for _, c := range res.Categories {
		fmt.Fprintf(w, "\n%s %s\n", categoryStyle.Render(c.Name), dimStyle.Render(sizes.FormatPtr(c.TotalSize)))
		for _, item := range c.Items {
			fmt.Fprintf(w, "  %-*s %s\n", pathWidth, truncate(item.Description, pathWidth), sizeStyle.Render(sizes.FormatPtr(item.SizeBytes)))
		}
		if len(c.Items) == 0 {
			fmt.Fprintf(w, "  %s\n", dimStyle.Render("nothing found"))
		}
	}

	fmt.Fprintln(w)
	if res.Summary != nil {
		total := res.Summary.TotalSizeText
		if total == "" {
			total = sizes.FormatPtr(res.Summary.TotalSize)
		}
		fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("Potential space: %s · %s items · %s categories",
			total, humanize.Comma(int64(res.Summary.ItemCount)), humanize.Comma(int64(res.Summary.CategoryCount)))))
		return
	}
	line := fmt.Sprintf("%s items in %s categories", humanize.Comma(int64(res.ItemCount())), humanize.Comma(int64(len(res.Categories))))
	if total, ok := res.TotalSize(); ok {
		line = fmt.Sprintf("Potential space: %s · %s", sizes.Format(total), line)
	}
	fmt.Fprintln(w, titleStyle.Render(line))
}

// doneLine summarises a finished run from its final view, which holds every
// item even when live updates were dropped.
func doneLine(view services.View) string {
	return fmt.Sprintf("Done: %s items in %s categories", humanize.Comma(int64(view.ItemCount)), humanize.Comma(int64(len(view.Categories))))
}

func printFound(w io.Writer, verb string, found []scanner.DiscoveredPath, now time.Time) {
	if len(found) == 0 {
		fmt.Fprintln(w, dimStyle.Render("No "+verb+" found."))
		return
	}

	var total int64
	for _, f := range found {
		label := f.Path
		if f.Project != "" {
			label = fmt.Sprintf("%s (%s)", f.Path, f.Project)
		}
		age := humanize.RelTime(f.ModTime, now, "ago", "from now")
		line := fmt.Sprintf("  %-*s %s  %s", pathWidth, truncate(label, pathWidth), sizeStyle.Render(sizes.FormatPtr(f.SizeBytes)), dimStyle.Render(age))
		if f.IsRecentlyModified {
			line += " " + warnStyle.Render("recent")
		}
		fmt.Fprintln(w, line)
		if f.SizeBytes != nil {
			total += *f.SizeBytes
		}
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("%s %s · %s", humanize.Comma(int64(len(found))), verb, sizes.Format(total))))
}

func printStatus(w io.Writer, s status.Snapshot) {
	fmt.Fprintln(w, titleStyle.Render(s.Hostname)+" "+dimStyle.Render(s.OS))
	rows := [][2]string{
		{"Uptime", s.UptimeText},
		{"CPU", fmt.Sprintf("%.1f%% of %d cores  %s", s.CPU.Usage, s.CPU.Cores, s.CPU.Model)},
		{"Memory", fmt.Sprintf("%s / %s (%.0f%%)", humanize.IBytes(s.Memory.Used), humanize.IBytes(s.Memory.Total), s.Memory.Percent)},
		{"Disk", fmt.Sprintf("%s free of %s on %s", humanize.IBytes(s.Disk.Free), humanize.IBytes(s.Disk.Total), s.Disk.Path)},
		{"Network", fmt.Sprintf("↑ %s/s  ↓ %s/s", rate(s.Network.SendRate), rate(s.Network.RecvRate))},
	}
	if b := s.Battery; b != nil {
		battery := fmt.Sprintf("%d%% %s", b.Percent, b.State)
		if b.Remaining != "" {
			battery += " (" + b.Remaining + ")"
		}
		rows = append(rows, [2]string{"Battery", battery})
	}
	for _, r := range rows {
		fmt.Fprintf(w, "  %s %s\n", categoryStyle.Width(8).Render(r[0]), r[1])
	}
}

func rate(r *float64) string {
	if r == nil {
		return "-"
	}
	return humanize.IBytes(uint64(*r))
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen+3:]
}

// confirmAction asks a yes/no question on stdin unless --yes was given.
func confirmAction(prompt string) bool {
	if yesFlag {
		return true
	}
	fmt.Printf("%s [y/N]: ", warnStyle.Render(prompt))
	response, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	return strings.ToLower(strings.TrimSpace(response)) == "y"
}
