package monitor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moorebrett0/agentcore/internal/risk"
)

func writeFixture(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func fixtureRoot(t *testing.T) string {
	root := t.TempDir()
	writeFixture(t, root, "proc/stat", "cpu  100 0 100 800 0 0 0 0\ncpu0 1 2 3 4\n")
	writeFixture(t, root, "proc/meminfo", "MemTotal:       2048000 kB\nMemFree:         100000 kB\nMemAvailable:    512000 kB\n")
	writeFixture(t, root, "proc/uptime", "172800.00 12345.00\n")
	writeFixture(t, root, "proc/loadavg", "0.42 0.30 0.20 1/100 999\n")
	writeFixture(t, root, "sys/class/thermal/thermal_zone0/temp", "48250\n")
	return root
}

func TestStatsFromFixture(t *testing.T) {
	root := fixtureRoot(t)
	m := New(time.Minute, WithRoot(root), WithDiskPath(root))

	s := m.Stats()
	assert.InDelta(t, 75.0, s.MemPercent, 0.01)
	assert.EqualValues(t, 2000, s.MemTotalMB)
	assert.InDelta(t, 2.0, s.UptimeDays, 0.001)
	assert.InDelta(t, 0.42, s.Load1, 0.001)
	assert.InDelta(t, 48.25, s.TempC, 0.001)
	assert.Zero(t, s.CPUPercent, "first sample has no delta")

	// 100 more busy jiffies and 100 idle: 50% busy
	writeFixture(t, root, "proc/stat", "cpu  150 0 150 900 0 0 0 0\n")
	s = m.refresh()
	assert.InDelta(t, 50.0, s.CPUPercent, 0.01)
}

func TestMissingFilesReadAsZero(t *testing.T) {
	m := New(time.Minute, WithRoot(t.TempDir()), WithDiskPath("/nonexistent-path"))
	s := m.Stats()
	assert.Zero(t, s.MemPercent)
	assert.Zero(t, s.DiskPercent)
	assert.Zero(t, s.UptimeDays)
}

func TestRunRefreshesUntilCancelled(t *testing.T) {
	root := fixtureRoot(t)
	m := New(10*time.Millisecond, WithRoot(root), WithDiskPath(root))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return m.stats.Load() != nil }, time.Second, 5*time.Millisecond)
	first := m.Stats().SampledAt
	require.Eventually(t, func() bool { return m.Stats().SampledAt.After(first) }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestTool(t *testing.T) {
	root := fixtureRoot(t)
	tl := New(time.Minute, WithRoot(root), WithDiskPath(root)).Tool()

	assert.Equal(t, ToolName, tl.Name)
	assert.Equal(t, risk.Safe, tl.Risk)

	out, err := tl.Execute(context.Background(), map[string]any{"refresh": true})
	require.NoError(t, err)
	assert.Contains(t, out, "Mem: 75.0% of 2000 MB")
	assert.Contains(t, out, `"load_1m":0.42`)
}
