// Package worker implements the per-task worker lifecycle (C5): one
// goroutine per active task running a pause/kill-aware collection loop,
// grounded on monitor.c's launch_worker_thread state machine and adapted
// to the teacher's goroutine + stopCh idiom from pkg/worker/worker.go
// (heartbeatLoop/containerExecutorLoop).
package worker

import (
	"errors"

	"github.com/hostpulse/agent/pkg/collector"
	"github.com/hostpulse/agent/pkg/log"
	"github.com/hostpulse/agent/pkg/registry"
	"github.com/hostpulse/agent/pkg/reportqueue"
	"github.com/hostpulse/agent/pkg/stats"
	"github.com/hostpulse/agent/pkg/supervisor"
	"github.com/hostpulse/agent/pkg/types"
	"github.com/rs/zerolog"
)

// Deps bundles everything a worker needs to run a task to completion,
// shared across every worker goroutine.
type Deps struct {
	Collector  collector.Collector
	Supervisor *supervisor.Supervisor
	Queue      *reportqueue.Queue
	Stats      *stats.Counters
}

// Spawn starts a worker goroutine for desc, returning the handle the
// registry tracks for Join. The descriptor is effectively moved to the
// worker: callers must not mutate it afterward.
func Spawn(desc types.Descriptor, control *registry.ThreadControl, deps Deps) *registry.WorkerHandle {
	handle := registry.NewWorkerHandle()
	go run(desc, control, deps, handle)
	return handle
}

func run(desc types.Descriptor, control *registry.ThreadControl, deps Deps, handle *registry.WorkerHandle) {
	defer close(handle.Done)

	deps.Stats.Inc(desc.Type)
	defer deps.Stats.Dec(desc.Type)

	l := log.WithTaskID(string(desc.ID))
	l.Debug().Str("type", string(desc.Type)).Str("metric", string(desc.Metric)).Msg("worker starting")

	for {
		// Pause/kill predicate is re-checked under the control mutex on
		// every wake, exactly as the pthread_cond_wait loop does: a signal
		// observed here is observed exactly once.
		if control.WaitWhilePaused() {
			l.Debug().Msg("worker killed while paused")
			return
		}
		if control.Killed() {
			l.Debug().Msg("worker killed")
			return
		}

		if isKeepAlive(desc) {
			if !ensureKeepAliveChild(desc, deps, control, l) {
				return
			}
		}

		// The collector call happens outside the control mutex; nothing
		// above or below this line holds it.
		result := deps.Collector.CollectOnce(collector.CollectCtx{
			ID:      desc.ID,
			Type:    desc.Type,
			Metric:  desc.Metric,
			Options: desc.Options,
		})

		if err := deps.Queue.Push(result.Report); err != nil {
			l.Warn().Err(err).Msg("dropped report: queue frozen")
		}

		switch result.Outcome {
		case collector.TaskFatal, collector.GenericError:
			control.SetDropped()
			l.Info().Msg("worker dropped after fatal collection error")
			return
		}

		if control.TimedWaitNext(desc.Frequency) {
			l.Debug().Msg("worker killed during scheduled wait")
			return
		}
	}
}

func isKeepAlive(desc types.Descriptor) bool {
	if desc.Type != types.Process {
		return false
	}
	opt, ok := desc.Option(types.KeepAlive)
	return ok && opt.Value == "TRUE"
}

// ensureKeepAliveChild makes sure the task's keep-alive child is running
// before collection, per §4.6. A registry freeze means the agent is
// already shutting down — that's not a task failure, so nothing is
// reported and the worker simply stops; the control thread's Kill-then-
// join teardown reaps it. Any other failure (pidfile, exec, malformed
// RUNCMD) pushes a FATAL report and marks the task dropped.
func ensureKeepAliveChild(desc types.Descriptor, deps Deps, control *registry.ThreadControl, l zerolog.Logger) bool {
	pidfileOpt, _ := desc.Option(types.PIDFile)
	runcmdOpt, _ := desc.Option(types.RunCmd)

	_, err := deps.Supervisor.EnsureRunning(desc.ID, pidfileOpt.Value, runcmdOpt.Value)
	if err == nil {
		return true
	}

	if errors.Is(err, registry.ErrFrozen) {
		l.Debug().Err(err).Msg("keep-alive child not started: registry frozen")
		return false
	}

	l.Error().Err(err).Msg("failed to ensure keep-alive child")
	_ = deps.Queue.Push(types.Report{
		ID:      desc.ID,
		Type:    desc.Type,
		Metric:  desc.Metric,
		Message: "FATAL CAUSE NO_PIDFILE",
	})
	control.SetDropped()
	return false
}
