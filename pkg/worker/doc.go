/*
Package worker implements the agent's task worker lifecycle: one goroutine
per active task, running a pause/resume/kill-aware collection loop that
invokes a Collector and pushes results onto the report queue.

# Architecture

	┌──────────────── WORKER LOOP ────────────────┐
	│                                               │
	│  WaitWhilePaused()  ← parked here while       │
	│       │                control.paused         │
	│       ▼                                       │
	│  killed? ──yes──▶ return                       │
	│       │no                                      │
	│       ▼                                       │
	│  keep-alive? ──▶ supervisor.EnsureRunning      │
	│       │                                       │
	│       ▼                                       │
	│  Collector.CollectOnce()  (outside the lock)  │
	│       │                                       │
	│       ▼                                       │
	│  push Report to queue                          │
	│       │                                       │
	│  fatal? ──yes──▶ control.SetDropped(); return  │
	│       │no                                      │
	│       ▼                                       │
	│  TimedWaitNext(frequency)                      │
	│       │                                       │
	│       └──────────────── loop ─────────────────┘

A worker is spawned with an owned Descriptor and a borrowed
*registry.ThreadControl; it never touches the registry's threads/controls
maps directly; the control thread is the only writer of those.

# Pause/resume correctness

paused and killed are only ever read and written under the control
record's mutex, and every waiter re-checks both after waking — whether the
wake came from a Pause/Resume/Kill call or from TimedWaitNext's own timer —
so a signal from the control thread is observed exactly once, never lost
to a race between "check predicate" and "go to sleep".

# Keep-alive tasks

For PROCESS tasks with KEEPALIVE=TRUE, the worker asks pkg/supervisor to
ensure a child is running before every collection; pkg/supervisor owns the
fork/exec and reap lifecycle, the worker only reacts to failure by
dropping the task. A failure caused by a frozen registry (shutdown) is not
treated as a task failure: the worker stops without reporting or dropping.
*/
package worker
