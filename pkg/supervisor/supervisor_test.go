package supervisor

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostpulse/agent/pkg/registry"
)

func TestEnsureRunningForksAndWritesPidfile(t *testing.T) {
	dir := t.TempDir()
	pidfile := filepath.Join(dir, "child.pid")

	children := registry.NewMap[int]()
	s := New(children)

	pid, err := s.EnsureRunning("t1", pidfile, strings.Join([]string{"/bin/sleep", "5"}, "\t"))
	require.NoError(t, err)
	assert.Greater(t, pid, 0)

	data, err := os.ReadFile(pidfile)
	require.NoError(t, err)
	gotPID, err := strconv.Atoi(strings.TrimSpace(string(data)))
	require.NoError(t, err)
	assert.Equal(t, pid, gotPID)

	got, ok := children.Get("t1")
	assert.True(t, ok)
	assert.Equal(t, pid, got)

	s.Stop("t1", time.Second)
}

func TestEnsureRunningReusesLiveChild(t *testing.T) {
	dir := t.TempDir()
	pidfile := filepath.Join(dir, "child.pid")

	children := registry.NewMap[int]()
	s := New(children)

	pid1, err := s.EnsureRunning("t1", pidfile, strings.Join([]string{"/bin/sleep", "5"}, "\t"))
	require.NoError(t, err)

	pid2, err := s.EnsureRunning("t1", pidfile, strings.Join([]string{"/bin/sleep", "5"}, "\t"))
	require.NoError(t, err)

	assert.Equal(t, pid1, pid2, "a live child must not be re-forked")
	s.Stop("t1", time.Second)
}

func TestReapRemovesExitedChild(t *testing.T) {
	dir := t.TempDir()
	pidfile := filepath.Join(dir, "child.pid")

	children := registry.NewMap[int]()
	s := New(children)

	_, err := s.EnsureRunning("t1", pidfile, "/bin/true")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		_, ok := children.Get("t1")
		return !ok
	}, time.Second, 5*time.Millisecond, "reap should drop the child once /bin/true exits")
}
