// Package status collects live system metrics for the status view. The
// collector keeps the previous network sample so it can report rates.
package status

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"
	"github.com/sirupsen/logrus"
)

type Snapshot struct {
	Hostname    string      `json:"hostname"`
	OS          string      `json:"os"`
	Uptime      uint64      `json:"uptime"`
	UptimeText  string      `json:"uptimeText"`
	CPU         CPUInfo     `json:"cpu"`
	Memory      MemInfo     `json:"memory"`
	Disk        DiskInfo    `json:"disk"`
	Network     NetworkInfo `json:"network"`
	Battery     *Battery    `json:"battery,omitempty"`
	CollectedAt time.Time   `json:"collectedAt"`
}

type CPUInfo struct {
	Model string  `json:"model"`
	Cores int     `json:"cores"`
	Usage float64 `json:"usage"`
}

type MemInfo struct {
	Total     uint64  `json:"total"`
	Used      uint64  `json:"used"`
	Available uint64  `json:"available"`
	Percent   float64 `json:"percent"`
}

type DiskInfo struct {
	Path    string  `json:"path"`
	Total   uint64  `json:"total"`
	Used    uint64  `json:"used"`
	Free    uint64  `json:"free"`
	Percent float64 `json:"percent"`
}

// NetworkInfo holds cumulative counters. The rates are bytes per second
// since the previous sample and are nil on the first one.
type NetworkInfo struct {
	BytesSent uint64   `json:"bytesSent"`
	BytesRecv uint64   `json:"bytesRecv"`
	SendRate  *float64 `json:"sendRate,omitempty"`
	RecvRate  *float64 `json:"recvRate,omitempty"`
}

// Sources are the metric adapters. Each may fail on its own; a failed
// source leaves its section zero.
type Sources struct {
	Host       func(ctx context.Context) (*host.InfoStat, error)
	CPUModel   func(ctx context.Context) (string, error)
	CPUPercent func(ctx context.Context) (float64, error)
	Memory     func(ctx context.Context) (*mem.VirtualMemoryStat, error)
	Disk       func(ctx context.Context, path string) (*disk.UsageStat, error)
	Network    func(ctx context.Context) (sent, recv uint64, err error)
	Battery    func(ctx context.Context) (*Battery, error)
}

// DefaultSources reads the local machine through gopsutil and pmset.
func DefaultSources() Sources {
	return Sources{
		Host: host.InfoWithContext,
		CPUModel: func(ctx context.Context) (string, error) {
			infos, err := cpu.InfoWithContext(ctx)
			if err != nil {
				return "", err
			}
			if len(infos) == 0 {
				return "", fmt.Errorf("no cpu info")
			}
			return infos[0].ModelName, nil
		},
		CPUPercent: func(ctx context.Context) (float64, error) {
			usage, err := cpu.PercentWithContext(ctx, 0, false)
			if err != nil {
				return 0, err
			}
			if len(usage) == 0 {
				return 0, fmt.Errorf("no cpu usage")
			}
			return usage[0], nil
		},
		Memory: mem.VirtualMemoryWithContext,
		Disk:   disk.UsageWithContext,
		Network: func(ctx context.Context) (uint64, uint64, error) {
			counters, err := net.IOCountersWithContext(ctx, false)
			if err != nil {
				return 0, 0, err
			}
			if len(counters) == 0 {
				return 0, 0, fmt.Errorf("no network counters")
			}
			return counters[0].BytesSent, counters[0].BytesRecv, nil
		},
		Battery: NewPmset().Battery,
	}
}

type netSample struct {
	at         time.Time
	sent, recv uint64
}

// Collector produces snapshots. It is safe for concurrent use.
type Collector struct {
	src      Sources
	diskPath string
	now      func() time.Time
	log      *logrus.Entry

	mu   sync.Mutex
	prev *netSample
}

func NewCollector(src Sources, log *logrus.Entry) *Collector {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Collector{
		src:      src,
		diskPath: "/",
		now:      time.Now,
		log:      log.WithField("component", "status"),
	}
}

// Collect takes one snapshot.
func (c *Collector) Collect(ctx context.Context) Snapshot {
	s := Snapshot{CollectedAt: c.now()}
	s.CPU.Cores = runtime.NumCPU()

	if c.src.Host != nil {
		if info, err := c.src.Host(ctx); err == nil {
			s.Hostname = info.Hostname
			s.OS = fmt.Sprintf("%s %s", info.Platform, info.PlatformVersion)
			s.Uptime = info.Uptime
			s.UptimeText = FormatUptime(info.Uptime)
		} else {
			c.skip("host", err)
		}
	}
	if c.src.CPUModel != nil {
		if model, err := c.src.CPUModel(ctx); err == nil {
			s.CPU.Model = model
		} else {
			c.skip("cpu model", err)
		}
	}
	if c.src.CPUPercent != nil {
		if usage, err := c.src.CPUPercent(ctx); err == nil {
			s.CPU.Usage = usage
		} else {
			c.skip("cpu usage", err)
		}
	}
	if c.src.Memory != nil {
		if m, err := c.src.Memory(ctx); err == nil {
			s.Memory = MemInfo{Total: m.Total, Used: m.Used, Available: m.Available, Percent: m.UsedPercent}
		} else {
			c.skip("memory", err)
		}
	}
	if c.src.Disk != nil {
		if d, err := c.src.Disk(ctx, c.diskPath); err == nil {
			s.Disk = DiskInfo{Path: c.diskPath, Total: d.Total, Used: d.Used, Free: d.Free, Percent: d.UsedPercent}
		} else {
			c.skip("disk", err)
		}
	}
	if c.src.Network != nil {
		if sent, recv, err := c.src.Network(ctx); err == nil {
			s.Network = c.rates(s.CollectedAt, sent, recv)
		} else {
			c.skip("network", err)
		}
	}
	if c.src.Battery != nil {
		if b, err := c.src.Battery(ctx); err == nil {
			s.Battery = b
		} else {
			c.skip("battery", err)
		}
	}
	return s
}

// rates derives per-second throughput from the previous sample and replaces
// it with the current one. A counter that went backwards reads as zero.
func (c *Collector) rates(at time.Time, sent, recv uint64) NetworkInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	info := NetworkInfo{BytesSent: sent, BytesRecv: recv}
	if p := c.prev; p != nil {
		if secs := at.Sub(p.at).Seconds(); secs > 0 {
			tx := delta(p.sent, sent) / secs
			rx := delta(p.recv, recv) / secs
			info.SendRate, info.RecvRate = &tx, &rx
		}
	}
	c.prev = &netSample{at: at, sent: sent, recv: recv}
	return info
}

func delta(prev, cur uint64) float64 {
	if cur < prev {
		return 0
	}
	return float64(cur - prev)
}

func (c *Collector) skip(source string, err error) {
	c.log.WithFields(logrus.Fields{"source": source, "error": err}).Debug("Metric unavailable")
}

// FormatUptime renders seconds as "3d 4h 5m", dropping leading zero units.
func FormatUptime(seconds uint64) string {
	days := seconds / 86400
	hours := (seconds % 86400) / 3600
	mins := (seconds % 3600) / 60
	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, mins)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	return fmt.Sprintf("%dm", mins)
}
