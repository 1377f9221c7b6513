// Package monitor samples host metrics and exposes them as the system_stats
// tool.
package monitor

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/moorebrett0/agentcore/internal/risk"
	"github.com/moorebrett0/agentcore/internal/tool"
)

// ToolName is the registered name of the stats tool.
const ToolName = "system_stats"

// SystemStats is one sample of host metrics.
type SystemStats struct {
	CPUPercent  float64   `json:"cpu_percent"`
	MemPercent  float64   `json:"mem_percent"`
	MemTotalMB  uint64    `json:"mem_total_mb"`
	DiskPercent float64   `json:"disk_percent"`
	TempC       float64   `json:"temp_c,omitempty"`
	Load1       float64   `json:"load_1m"`
	UptimeDays  float64   `json:"uptime_days"`
	SampledAt   time.Time `json:"sampled_at"`
}

// Monitor samples host metrics and keeps the latest snapshot.
type Monitor struct {
	stats    atomic.Pointer[SystemStats]
	interval time.Duration
	root     string
	disk     string

	// CPU delta tracking
	cpuMu     sync.Mutex
	prevIdle  uint64
	prevTotal uint64
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithRoot reads /proc and /sys below root. Tests point it at a fixture tree.
func WithRoot(root string) Option {
	return func(m *Monitor) { m.root = root }
}

// WithDiskPath selects the filesystem reported as disk usage.
func WithDiskPath(p string) Option {
	return func(m *Monitor) { m.disk = p }
}

// New creates a Monitor that samples every interval once Run is called.
func New(interval time.Duration, opts ...Option) *Monitor {
	m := &Monitor{interval: interval, root: "/", disk: "/"}
	for _, opt := range opts {
		opt(m)
	}
	if m.interval <= 0 {
		m.interval = 30 * time.Second
	}
	return m
}

// Stats returns the latest sample, taking one first if none exists.
func (m *Monitor) Stats() SystemStats {
	if s := m.stats.Load(); s != nil {
		return *s
	}
	return m.refresh()
}

// Run resamples every interval until ctx ends.
func (m *Monitor) Run(ctx context.Context) {
	m.refresh()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.refresh()
		}
	}
}

func (m *Monitor) refresh() SystemStats {
	memPct, memTotal := m.readMem()
	s := &SystemStats{
		CPUPercent:  m.readCPU(),
		MemPercent:  memPct,
		MemTotalMB:  memTotal / 1024,
		DiskPercent: readDiskPercent(m.disk),
		TempC:       m.readTemp(),
		Load1:       m.readLoad(),
		UptimeDays:  m.readUptime(),
		SampledAt:   time.Now(),
	}
	m.stats.Store(s)
	slog.Debug("monitor: sampled", "cpu", s.CPUPercent, "mem", s.MemPercent, "disk", s.DiskPercent)
	return *s
}

func (m *Monitor) path(p string) string {
	return filepath.Join(m.root, p)
}

// Tool exposes the latest sample as system_stats.
func (m *Monitor) Tool() *tool.Tool {
	return &tool.Tool{
		Name:        ToolName,
		Category:    tool.CategorySystem,
		Description: "Report host CPU, memory, disk, temperature, load and uptime.",
		Parameters: tool.Object(map[string]*tool.Schema{
			"refresh": {Type: tool.TypeBoolean, Description: "Take a fresh sample instead of the cached one"},
		}),
		Risk: risk.Safe,
		Execute: func(_ context.Context, in map[string]any) (string, error) {
			var s SystemStats
			if fresh, _ := in["refresh"].(bool); fresh {
				s = m.refresh()
			} else {
				s = m.Stats()
			}
			b, err := json.Marshal(s)
			if err != nil {
				return "", fmt.Errorf("encoding stats: %w", err)
			}
			return FormatStats(s) + "\n" + string(b), nil
		},
	}
}

// --- CPU (/proc/stat) ---

func (m *Monitor) readCPU() float64 {
	f, err := os.Open(m.path("proc/stat"))
	if err != nil {
		slog.Debug("monitor: cannot read /proc/stat", "err", err)
		return 0
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return 0
	}

	// cpu  user nice system idle iowait irq softirq steal ...
	fields := strings.Fields(scanner.Text())
	if len(fields) < 5 || fields[0] != "cpu" {
		return 0
	}

	var total, idle uint64
	for i, field := range fields[1:] {
		val, _ := strconv.ParseUint(field, 10, 64)
		total += val
		if i == 3 {
			idle = val
		}
	}

	m.cpuMu.Lock()
	defer m.cpuMu.Unlock()
	if m.prevTotal == 0 || total <= m.prevTotal {
		m.prevIdle, m.prevTotal = idle, total
		return 0
	}
	deltaTotal := total - m.prevTotal
	deltaIdle := idle - m.prevIdle
	m.prevIdle, m.prevTotal = idle, total
	return float64(deltaTotal-deltaIdle) / float64(deltaTotal) * 100
}

// --- Memory (/proc/meminfo) ---

func (m *Monitor) readMem() (float64, uint64) {
	f, err := os.Open(m.path("proc/meminfo"))
	if err != nil {
		return 0, 0
	}
	defer f.Close()

	var total, available uint64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "MemTotal:"):
			total = parseMeminfoKB(line)
		case strings.HasPrefix(line, "MemAvailable:"):
			available = parseMeminfoKB(line)
		}
	}

	if total == 0 || available > total {
		return 0, total
	}
	return float64(total-available) / float64(total) * 100, total
}

func parseMeminfoKB(line string) uint64 {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return 0
	}
	val, _ := strconv.ParseUint(fields[1], 10, 64)
	return val
}

// --- Disk (statfs) ---

func readDiskPercent(path string) float64 {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		slog.Debug("monitor: statfs failed", "path", path, "err", err)
		return 0
	}

	total := stat.Blocks * uint64(stat.Bsize)
	free := stat.Bavail * uint64(stat.Bsize)
	if total == 0 {
		return 0
	}
	return float64(total-free) / float64(total) * 100
}

// --- Temperature (/sys/class/thermal) ---

func (m *Monitor) readTemp() float64 {
	data, err := os.ReadFile(m.path("sys/class/thermal/thermal_zone0/temp"))
	if err != nil {
		return 0
	}
	milliC, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0
	}
	return float64(milliC) / 1000.0
}

// --- Load and uptime (/proc/loadavg, /proc/uptime) ---

func (m *Monitor) readLoad() float64 {
	return m.firstFloat("proc/loadavg")
}

func (m *Monitor) readUptime() float64 {
	return m.firstFloat("proc/uptime") / 86400.0
}

func (m *Monitor) firstFloat(p string) float64 {
	data, err := os.ReadFile(m.path(p))
	if err != nil {
		return 0
	}
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return 0
	}
	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0
	}
	return v
}

// FormatStats renders s as the short text the tool returns.
func FormatStats(s SystemStats) string {
	return fmt.Sprintf("CPU: %.1f%% | Mem: %.1f%% of %d MB | Disk: %.1f%% | Temp: %.1f°C | Load: %.2f | Up: %.1fd",
		s.CPUPercent, s.MemPercent, s.MemTotalMB, s.DiskPercent, s.TempC, s.Load1, s.UptimeDays)
}
