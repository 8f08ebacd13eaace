package status

import (
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePmset(t *testing.T) {
	tests := []struct {
		name string
		out  string
		want *Battery
	}{
		{
			name: "charging",
			out:  "Now drawing from 'AC Power'\n -InternalBattery-0 (id=4653155)\t85%; charging; 1:20 remaining present: true\n",
			want: &Battery{Percent: 85, State: "charging", Source: "AC Power", Remaining: "1:20"},
		},
		{
			name: "no estimate",
			out:  "Now drawing from 'Battery Power'\n -InternalBattery-0 (id=1)\t42%; discharging; (no estimate) present: true\n",
			want: &Battery{Percent: 42, State: "discharging", Source: "Battery Power"},
		},
		{
			name: "attached not charging",
			out:  "Now drawing from 'AC Power'\n -InternalBattery-0 (id=1)\t80%; AC attached; not charging present: true\n",
			want: &Battery{Percent: 80, State: "AC attached", Source: "AC Power"},
		},
		{
			name: "desktop",
			out:  "Now drawing from 'AC Power'\n",
			want: nil,
		},
		{
			name: "empty",
			out:  "",
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParsePmset(tt.out))
		})
	}
}

func TestPmsetMissing(t *testing.T) {
	p := &Pmset{run: func(context.Context) ([]byte, error) {
		return nil, &exec.Error{Name: "pmset", Err: exec.ErrNotFound}
	}}
	b, err := p.Battery(context.Background())
	assert.Nil(t, b)
	assert.Error(t, err)
}

func TestCollectorNetworkRates(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	counters := [][2]uint64{{1000, 5000}, {3000, 9000}, {10, 20}}
	call := 0

	c := NewCollector(Sources{
		Network: func(context.Context) (uint64, uint64, error) {
			v := counters[call]
			call++
			return v[0], v[1], nil
		},
	}, nil)
	c.now = func() time.Time { return now }

	first := c.Collect(context.Background())
	assert.Equal(t, uint64(1000), first.Network.BytesSent)
	assert.Nil(t, first.Network.SendRate)
	assert.Nil(t, first.Network.RecvRate)

	now = now.Add(2 * time.Second)
	second := c.Collect(context.Background())
	require.NotNil(t, second.Network.SendRate)
	assert.InDelta(t, 1000.0, *second.Network.SendRate, 0.001)
	assert.InDelta(t, 2000.0, *second.Network.RecvRate, 0.001)

	now = now.Add(time.Second)
	third := c.Collect(context.Background())
	require.NotNil(t, third.Network.SendRate)
	assert.Zero(t, *third.Network.SendRate, "counter reset reads as zero")
}

func TestCollectorIsolatesSourceFailures(t *testing.T) {
	c := NewCollector(Sources{
		Host: func(context.Context) (*host.InfoStat, error) {
			return &host.InfoStat{Hostname: "mac", Platform: "darwin", PlatformVersion: "15.1", Uptime: 90061}, nil
		},
		CPUPercent: func(context.Context) (float64, error) { return 0, errors.New("boom") },
		Memory: func(context.Context) (*mem.VirtualMemoryStat, error) {
			return &mem.VirtualMemoryStat{Total: 16, Used: 8, Available: 8, UsedPercent: 50}, nil
		},
		Disk: func(_ context.Context, path string) (*disk.UsageStat, error) {
			assert.Equal(t, "/", path)
			return nil, errors.New("unmounted")
		},
		Battery: func(context.Context) (*Battery, error) { return nil, errors.New("pmset not available") },
	}, nil)

	s := c.Collect(context.Background())
	assert.Equal(t, "mac", s.Hostname)
	assert.Equal(t, "darwin 15.1", s.OS)
	assert.Equal(t, "1d 1h 1m", s.UptimeText)
	assert.Zero(t, s.CPU.Usage)
	assert.Positive(t, s.CPU.Cores)
	assert.Equal(t, MemInfo{Total: 16, Used: 8, Available: 8, Percent: 50}, s.Memory)
	assert.Equal(t, DiskInfo{}, s.Disk)
	assert.Nil(t, s.Battery)
}

func TestFormatUptime(t *testing.T) {
	assert.Equal(t, "0m", FormatUptime(59))
	assert.Equal(t, "2h 0m", FormatUptime(7200))
	assert.Equal(t, "3d 0h 5m", FormatUptime(3*86400+300))
}
