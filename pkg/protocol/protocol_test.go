package protocol

import (
	"sync/atomic"
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
	"github.com/hostpulse/agent/pkg/worker"
)

// fakeCollector never errors and returns immediately with a fixed value,
// so tests exercise the dispatcher without touching a real /proc.
type fakeCollector struct{}

func (fakeCollector) CollectOnce(ctx collector.CollectCtx) collector.Result {
	return collector.Result{
		Outcome: collector.Success,
		Report:  types.Report{ID: ctx.ID, Type: ctx.Type, Metric: ctx.Metric, Value: 1},
	}
}

func newDispatcher() *Dispatcher {
	reg := registry.New()
	var exiting atomic.Bool
	return &Dispatcher{
		Registry: reg,
		Deps: worker.Deps{
			Collector:  fakeCollector{},
			Supervisor: supervisor.New(reg.Children),
			Queue:      reportqueue.New(),
			Stats:      stats.New(),
		},
		Exiting: &exiting,
	}
}

func TestDispatchAddSuccessAcks(t *testing.T) {
	d := newDispatcher()
	frame := []byte("NGS JOB ADD\nID 7\nTYPE PROCESS\nMETRIC MEMORY\nFREQ 60\nPIDFILE /tmp/p.pid\n\n")

	result := d.Dispatch(frame)
	assert.Equal(t, "NGS ACK\n\n", string(result.Reply))

	_, ok := d.Registry.Threads.Get("7")
	assert.True(t, ok)

	// cleanup
	if c, ok := d.Registry.Controls.Get("7"); ok {
		c.Kill()
	}
	if h, ok := d.Registry.Threads.Get("7"); ok {
		h.Join()
	}
}

func TestDispatchDuplicateIDNacks(t *testing.T) {
	d := newDispatcher()
	frame := []byte("NGS JOB ADD\nID 42\nTYPE PROCESS\nMETRIC MEMORY\nFREQ 60\nPIDFILE /tmp/p.pid\n\n")

	first := d.Dispatch(frame)
	require.Equal(t, "NGS ACK\n\n", string(first.Reply))

	second := d.Dispatch(frame)
	assert.Equal(t, "NGS NACK\nCAUSE DUPLICATE_ID\n\n", string(second.Reply))

	if c, ok := d.Registry.Controls.Get("42"); ok {
		c.Kill()
	}
	if h, ok := d.Registry.Threads.Get("42"); ok {
		h.Join()
	}
}

func TestDispatchUnrecognizedType(t *testing.T) {
	d := newDispatcher()
	frame := []byte("NGS JOB ADD\nID 1\nTYPE BOGUS\nMETRIC MEMORY\nFREQ 60\n\n")
	result := d.Dispatch(frame)
	assert.Equal(t, "NGS NACK\nCAUSE UNRECOGNIZED_TYPE\n\n", string(result.Reply))
}

func TestDispatchInapplicableOption(t *testing.T) {
	d := newDispatcher()
	frame := []byte("NGS JOB ADD\nID 1\nTYPE DIRECTORY\nMETRIC MEMORY\nFREQ 60\nKEEPALIVE TRUE\n\n")
	result := d.Dispatch(frame)
	assert.Equal(t, "NGS NACK\nCAUSE INAPPLICABLE_OPTION\n\n", string(result.Reply))
}

func TestDispatchUnrecognizedOption(t *testing.T) {
	d := newDispatcher()
	frame := []byte("NGS JOB ADD\nID 1\nTYPE PROCESS\nMETRIC MEMORY\nFREQ 60\nBOGUS xyz\n\n")
	result := d.Dispatch(frame)
	assert.Equal(t, "NGS NACK\nCAUSE UNRECOGNIZED_OPTION\n\n", string(result.Reply))
}

func TestDispatchPauseNoSuchID(t *testing.T) {
	d := newDispatcher()
	result := d.Dispatch([]byte("NGS JOB PAUS\nID nope\n\n"))
	assert.Equal(t, "NGS NACK\nCAUSE NO_SUCH_ID\n\n", string(result.Reply))
}

func TestDispatchPauseResumeStopsReports(t *testing.T) {
	d := newDispatcher()
	add := []byte("NGS JOB ADD\nID 9\nTYPE PROCESS\nMETRIC MEMORY\nFREQ 1\nPIDFILE /tmp/p.pid\n\n")
	require.Equal(t, "NGS ACK\n\n", string(d.Dispatch(add).Reply))

	// The worker collects once immediately on spawn before its first
	// TimedWaitNext; drain that report before exercising pause so the
	// assertion below is about reports produced *after* the pause, not
	// the unavoidable immediate first collection.
	require.Eventually(t, func() bool { return d.Deps.Queue.Len() > 0 }, time.Second, 5*time.Millisecond)
	d.Deps.Queue.Drain()

	pause := d.Dispatch([]byte("NGS JOB PAUS\nID 9\n\n"))
	assert.Equal(t, "NGS ACK\n\n", string(pause.Reply))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, d.Deps.Queue.Len(), "a paused task must not produce reports")

	resume := d.Dispatch([]byte("NGS JOB RES\nID 9\n\n"))
	assert.Equal(t, "NGS ACK\n\n", string(resume.Reply))

	assert.Eventually(t, func() bool {
		return d.Deps.Queue.Len() > 0
	}, time.Second, 10*time.Millisecond)

	c, _ := d.Registry.Controls.Get("9")
	c.Kill()
	h, _ := d.Registry.Threads.Get("9")
	h.Join()
}

func TestDispatchDeleteJoinsWorker(t *testing.T) {
	d := newDispatcher()
	add := []byte("NGS JOB ADD\nID 11\nTYPE PROCESS\nMETRIC MEMORY\nFREQ 60\nPIDFILE /tmp/p.pid\n\n")
	require.Equal(t, "NGS ACK\n\n", string(d.Dispatch(add).Reply))

	del := d.Dispatch([]byte("NGS JOB DEL\nID 11\n\n"))
	assert.Equal(t, "NGS ACK\n\n", string(del.Reply))

	_, ok := d.Registry.Threads.Get("11")
	assert.False(t, ok)
	_, ok = d.Registry.Controls.Get("11")
	assert.False(t, ok)
}

func TestDispatchStillThere(t *testing.T) {
	d := newDispatcher()
	result := d.Dispatch([]byte("NGS STILL THERE?\n\n"))
	assert.Equal(t, "NGS STILL HERE!\n\n", string(result.Reply))
}

func TestDispatchBye(t *testing.T) {
	d := newDispatcher()
	result := d.Dispatch([]byte("NGS BYE\n\n"))
	assert.True(t, result.Bye)
	assert.Nil(t, result.Reply)
}

func TestDispatchUnrecognizedCommand(t *testing.T) {
	d := newDispatcher()
	result := d.Dispatch([]byte("NGS WHAT\n\n"))
	assert.Equal(t, "NGS NACK\nCAUSE UNRECOGNIZED_COMMAND\n\n", string(result.Reply))
}

func TestDispatchShutdownNacksUnhandledCommands(t *testing.T) {
	d := newDispatcher()
	d.Exiting.Store(true)
	result := d.Dispatch([]byte("NGS WHAT\n\n"))
	assert.Equal(t, "NGS NACK\nCAUSE SHUTDOWN\n\n", string(result.Reply))
}

func TestDrainFormatsKnownReportShapes(t *testing.T) {
	q := reportqueue.New()
	require.NoError(t, q.Push(types.Report{ID: "1", Type: types.Process, Metric: types.Memory, Value: 2048}))
	require.NoError(t, q.Push(types.Report{ID: "2", Type: types.Process, Metric: types.CPU, Percentage: 12.5}))
	require.NoError(t, q.Push(types.Report{ID: "3", Message: "FATAL CAUSE NO_PIDFILE"}))

	out := string(Drain(q))
	assert.Contains(t, out, "NGS JOB REPORT\nID 1\nBYTES 2048\n\n")
	assert.Contains(t, out, "NGS JOB REPORT\nID 2\nCPU PERCENT 12.50\n\n")
	assert.Contains(t, out, "NGS JOB REPORT\nID 3\nFATAL CAUSE NO_PIDFILE\n\n")
}

func TestDrainSkipsUnimplementedShape(t *testing.T) {
	q := reportqueue.New()
	require.NoError(t, q.Push(types.Report{ID: "1", Type: types.Disk, Metric: types.NoMetric}))

	out := Drain(q)
	assert.Empty(t, out)
}
