package status

import (
	"context"
	"errors"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

// Battery is the internal battery state as reported by pmset.
type Battery struct {
	Percent   int    `json:"percent"`
	State     string `json:"state"`
	Source    string `json:"source"`
	Remaining string `json:"remaining,omitempty"`
}

var (
	sourceRE  = regexp.MustCompile(`'([^']+)'`)
	batteryRE = regexp.MustCompile(`(\d+)%;\s*([^;]+)(?:;\s*(\d+:\d+|\(no estimate\)))?`)
)

// Pmset reads battery state from `pmset -g batt`.
type Pmset struct {
	run func(ctx context.Context) ([]byte, error)
}

func NewPmset() *Pmset {
	return &Pmset{run: func(ctx context.Context) ([]byte, error) {
		return exec.CommandContext(ctx, "pmset", "-g", "batt").Output()
	}}
}

// Battery returns nil without error on machines that have no battery. A
// missing pmset is an error, which leaves the battery unset.
func (p *Pmset) Battery(ctx context.Context) (*Battery, error) {
	out, err := p.run(ctx)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, errors.New("pmset not available")
		}
		return nil, err
	}
	return ParsePmset(string(out)), nil
}

// ParsePmset extracts the first internal battery line. It returns nil when
// there is none.
func ParsePmset(out string) *Battery {
	var source string
	for _, line := range strings.Split(out, "\n") {
		if source == "" {
			if m := sourceRE.FindStringSubmatch(line); m != nil && strings.Contains(line, "drawing from") {
				source = m[1]
				continue
			}
		}
		if !strings.Contains(line, "InternalBattery") {
			continue
		}
		m := batteryRE.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		pct, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		b := &Battery{Percent: pct, State: strings.TrimSpace(m[2]), Source: source}
		if m[3] != "" && m[3] != "(no estimate)" {
			b.Remaining = m[3]
		}
		return b
	}
	return nil
}
