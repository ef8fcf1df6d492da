package procfs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostpulse/agent/pkg/collector"
	"github.com/hostpulse/agent/pkg/types"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func TestTotalMemory(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "meminfo", "MemTotal:       1000 kB\nMemAvailable:    250 kB\n")

	c := &Collector{Root: root}
	result := c.CollectOnce(collector.CollectCtx{Type: types.Total, Metric: types.Memory})

	require.Equal(t, collector.Success, result.Outcome)
	assert.InDelta(t, 0.25, result.Report.Percentage, 0.0001)
}

func TestTotalMemoryMissingFileIsUnsupportedDistro(t *testing.T) {
	root := t.TempDir()
	c := &Collector{Root: root}
	result := c.CollectOnce(collector.CollectCtx{Type: types.Total, Metric: types.Memory})

	require.Equal(t, collector.TaskFatal, result.Outcome)
	assert.Equal(t, "FATAL CAUSE UNSUPPORTED_DISTRO", result.Report.Message)
}

func TestDirectoryMemorySumsFileSizes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "hello")
	writeFile(t, dir, "b.txt", "world!")
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "c.txt"), []byte("x"), 0644))

	c := New()
	result := c.CollectOnce(collector.CollectCtx{
		Type:    types.Directory,
		Metric:  types.Memory,
		Options: []types.Option{{Type: types.Path, Value: dir}},
	})

	require.Equal(t, collector.Success, result.Outcome)
	assert.Equal(t, float64(5+6+1), result.Report.Value)
}

func TestDirectoryNotAccessible(t *testing.T) {
	c := New()
	result := c.CollectOnce(collector.CollectCtx{
		Type:    types.Directory,
		Metric:  types.Memory,
		Options: []types.Option{{Type: types.Path, Value: "/nonexistent/path/for/test"}},
	})

	require.Equal(t, collector.TaskFatal, result.Outcome)
	assert.Equal(t, "FATAL CAUSE DIR_NOT_ACCESSIBLE", result.Report.Message)
}

func TestDiskSwapLoadUnsupportedTask(t *testing.T) {
	c := New()
	for _, tt := range []types.TaskType{types.Disk, types.Swap, types.Load} {
		result := c.CollectOnce(collector.CollectCtx{Type: tt, Metric: types.NoMetric})
		assert.Equal(t, collector.TaskFatal, result.Outcome)
		assert.Equal(t, "FATAL CAUSE UNSUPPORTED_TASK", result.Report.Message)
	}
}

func TestProcessMissingPidfileIsFatal(t *testing.T) {
	c := New()
	result := c.CollectOnce(collector.CollectCtx{
		Type:   types.Process,
		Metric: types.Memory,
	})
	require.Equal(t, collector.TaskFatal, result.Outcome)
	assert.Equal(t, "FATAL CAUSE NO_PIDFILE", result.Report.Message)
}
