package worker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostpulse/agent/pkg/collector"
	"github.com/hostpulse/agent/pkg/registry"
	"github.com/hostpulse/agent/pkg/reportqueue"
	"github.com/hostpulse/agent/pkg/stats"
	"github.com/hostpulse/agent/pkg/supervisor"
	"github.com/hostpulse/agent/pkg/types"
)

type stubCollector struct {
	result collector.Result
}

func (s stubCollector) CollectOnce(ctx collector.CollectCtx) collector.Result {
	r := s.result
	r.Report.ID = ctx.ID
	return r
}

func newDeps(c collector.Collector) Deps {
	reg := registry.New()
	return Deps{
		Collector:  c,
		Supervisor: supervisor.New(reg.Children),
		Queue:      reportqueue.New(),
		Stats:      stats.New(),
	}
}

func TestWorkerPushesReportAndRepeats(t *testing.T) {
	deps := newDeps(stubCollector{result: collector.Result{Outcome: collector.Success, Report: types.Report{Value: 1}}})
	desc := types.Descriptor{ID: "1", Type: types.Process, Metric: types.Memory, Frequency: 10 * time.Millisecond}
	control := registry.NewThreadControl()

	handle := Spawn(desc, control, deps)
	defer func() {
		control.Kill()
		handle.Join()
	}()

	assert.Eventually(t, func() bool { return deps.Queue.Len() >= 2 }, time.Second, 5*time.Millisecond)
}

func TestWorkerStatsIncDecAcrossLifetime(t *testing.T) {
	deps := newDeps(stubCollector{result: collector.Result{Outcome: collector.Success}})
	desc := types.Descriptor{ID: "1", Type: types.Directory, Frequency: time.Hour}
	control := registry.NewThreadControl()

	handle := Spawn(desc, control, deps)
	assert.Eventually(t, func() bool { return deps.Stats.Snapshot().NumDirTasks == 1 }, time.Second, 5*time.Millisecond)

	control.Kill()
	handle.Join()
	assert.Equal(t, 0, deps.Stats.Snapshot().NumDirTasks)
}

func TestWorkerDropsOnTaskFatal(t *testing.T) {
	deps := newDeps(stubCollector{result: collector.Result{
		Outcome: collector.TaskFatal,
		Report:  types.Report{Message: "FATAL CAUSE INVALID_TASK"},
	}})
	desc := types.Descriptor{ID: "1", Type: types.Process, Frequency: time.Hour}
	control := registry.NewThreadControl()

	handle := Spawn(desc, control, deps)
	select {
	case <-handle.Done:
	case <-time.After(time.Second):
		t.Fatal("worker did not exit after TaskFatal")
	}
	assert.True(t, control.Dropped())
	require.Equal(t, 1, deps.Queue.Len())
}

func TestWorkerKillStopsLoopWhileParked(t *testing.T) {
	deps := newDeps(stubCollector{result: collector.Result{Outcome: collector.Success}})
	desc := types.Descriptor{ID: "1", Type: types.Process, Frequency: time.Hour}
	control := registry.NewThreadControl()
	control.Pause()

	handle := Spawn(desc, control, deps)
	time.Sleep(10 * time.Millisecond)
	control.Kill()

	select {
	case <-handle.Done:
	case <-time.After(time.Second):
		t.Fatal("worker did not exit after Kill while paused")
	}
}
