// Package protocol implements C3: parsing a single double-newline-framed
// control message into its line-oriented command and dispatching it
// against the task registry and worker engine, grounded on monitor.c's
// handle_command/handle_job_add/handle_reschedule switch.
package protocol

import (
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hostpulse/agent/pkg/log"
	"github.com/hostpulse/agent/pkg/registry"
	"github.com/hostpulse/agent/pkg/reportqueue"
	"github.com/hostpulse/agent/pkg/types"
	"github.com/hostpulse/agent/pkg/worker"
)

// maxLines bounds a frame at 9 lines: 5 required (command + ID/TYPE/METRIC/
// FREQ) plus 4 option lines, per §4.3.
const maxLines = 9

// Dispatcher owns everything a control command needs to mutate: the
// registry, the shared worker dependencies, and the process-wide exiting
// flag the SIGTERM handler sets.
type Dispatcher struct {
	Registry *registry.Registry
	Deps     worker.Deps
	// Exiting is read, never written, by Dispatch; the agent package owns
	// setting it from the SIGTERM handler.
	Exiting *atomic.Bool
}

// Result is what Dispatch returns for one frame: the reply to write back
// (non-nil for every command except NGS BYE, which gets no reply), and
// whether the control loop should break out and re-enter the reconnect
// loop (NGS BYE).
type Result struct {
	Reply []byte
	Bye   bool
}

// Dispatch parses and handles a single frame's worth of lines (already
// split from the accumulated socket buffer, terminator included or not —
// Dispatch only looks at content lines). It never blocks beyond whatever
// the registry/worker calls it makes require (all of which are
// non-blocking except WorkerHandle.Join on DELETE and on an ADD whose
// registry insert is rejected).
func (d *Dispatcher) Dispatch(frame []byte) Result {
	text := strings.TrimRight(string(frame), "\n")
	lines := strings.Split(text, "\n")
	if len(lines) > maxLines {
		return nack("COMMAND_TOO_LONG")
	}

	first := lines[0]
	switch {
	case strings.HasPrefix(first, "NGS JOB ADD"):
		return d.handleAdd(lines)
	case strings.HasPrefix(first, "NGS JOB PAUS"):
		return d.handleReschedule(lines, actionPause)
	case strings.HasPrefix(first, "NGS JOB RES"):
		return d.handleReschedule(lines, actionResume)
	case strings.HasPrefix(first, "NGS JOB DEL"):
		return d.handleReschedule(lines, actionDelete)
	case strings.HasPrefix(first, "NGS STILL THERE?"):
		return Result{Reply: []byte("NGS STILL HERE!\n\n")}
	case strings.HasPrefix(first, "NGS BYE"):
		return Result{Reply: nil, Bye: true}
	default:
		if d.Exiting.Load() {
			return nack("SHUTDOWN")
		}
		return nack("UNRECOGNIZED_COMMAND")
	}
}

func nack(cause string) Result {
	return Result{Reply: []byte(fmt.Sprintf("NGS NACK\nCAUSE %s\n\n", cause))}
}

func ack() Result {
	return Result{Reply: []byte("NGS ACK\n\n")}
}

// scanKV splits a "KEY value" line on the first space.
func scanKV(line, key string) (string, bool) {
	prefix := key + " "
	if !strings.HasPrefix(line, prefix) {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(line, prefix)), true
}

func (d *Dispatcher) handleAdd(lines []string) Result {
	if d.Exiting.Load() {
		return nack("SHUTDOWN")
	}
	if len(lines) < 5 {
		return nack("UNRECOGNIZED_COMMAND")
	}

	idStr, ok := scanKV(lines[1], "ID")
	if !ok {
		return nack("UNRECOGNIZED_COMMAND")
	}
	typeStr, ok := scanKV(lines[2], "TYPE")
	if !ok {
		return nack("UNRECOGNIZED_COMMAND")
	}
	metricStr, ok := scanKV(lines[3], "METRIC")
	if !ok {
		return nack("UNRECOGNIZED_COMMAND")
	}
	freqStr, ok := scanKV(lines[4], "FREQ")
	if !ok {
		return nack("UNRECOGNIZED_COMMAND")
	}

	taskType, ok := types.ParseTaskType(typeStr)
	if !ok {
		return nack("UNRECOGNIZED_TYPE")
	}
	metric, ok := types.ParseMetricType(metricStr)
	if !ok && metricStr != string(types.NoMetric) {
		return nack("UNRECOGNIZED_METRIC")
	}
	if metricStr == string(types.NoMetric) {
		metric = types.NoMetric
	}
	freq, err := strconv.Atoi(freqStr)
	if err != nil || freq <= 0 {
		return nack("UNRECOGNIZED_COMMAND")
	}

	id := types.TaskID(idStr)
	if _, exists := d.Registry.Threads.Get(id); exists {
		return nack("DUPLICATE_ID")
	}

	var opts []types.Option
	for _, line := range lines[5:] {
		if line == "" {
			continue
		}
		optType, value, ok := parseOption(line)
		if !ok {
			return nack("UNRECOGNIZED_OPTION")
		}
		if !types.OptionAllowed(optType, taskType) {
			return nack("INAPPLICABLE_OPTION")
		}
		opts = append(opts, types.Option{Type: optType, Value: value})
	}

	desc := types.Descriptor{
		ID:        id,
		Type:      taskType,
		Metric:    metric,
		Frequency: time.Duration(freq) * time.Second,
		Options:   opts,
	}

	control := registry.NewThreadControl()
	handle := worker.Spawn(desc, control, d.Deps)

	if err := d.Registry.AddTask(id, handle, control); err != nil {
		control.Kill()
		handle.Join()
		if err == registry.ErrFrozen {
			return nack("SHUTDOWN")
		}
		return nack("DUPLICATE_ID")
	}

	log.WithTaskID(idStr).Info().Str("type", typeStr).Str("metric", metricStr).Int("freq", freq).Msg("task added")
	return ack()
}

// parseOption matches one of the option literals at the start of the line
// and returns its value (the remainder of the line after the literal and a
// space, e.g. "TRUE" for "KEEPALIVE TRUE"). A bare literal with no space
// and value after it does not match.
func parseOption(line string) (types.OptionType, string, bool) {
	for _, lit := range []types.OptionType{types.KeepAlive, types.PIDFile, types.RunCmd, types.MountPnt, types.Path} {
		if v, ok := scanKV(line, string(lit)); ok {
			return lit, v, true
		}
	}
	return types.Empty, "", false
}

type rescheduleAction int

const (
	actionPause rescheduleAction = iota
	actionResume
	actionDelete
)

func (d *Dispatcher) handleReschedule(lines []string, action rescheduleAction) Result {
	if len(lines) < 2 {
		return nack("UNRECOGNIZED_COMMAND")
	}
	idStr, ok := scanKV(lines[1], "ID")
	if !ok {
		return nack("UNRECOGNIZED_COMMAND")
	}
	id := types.TaskID(idStr)

	control, ok := d.Registry.Controls.Get(id)
	if !ok {
		return nack("NO_SUCH_ID")
	}

	switch action {
	case actionPause:
		control.Pause()
		return ack()
	case actionResume:
		control.Resume()
		return ack()
	case actionDelete:
		if d.Registry.Threads.Frozen() {
			return nack("SHUTDOWN")
		}
		control.Kill()
		if handle, ok := d.Registry.Threads.Get(id); ok {
			handle.Join()
		}
		d.Registry.RemoveTask(id)
		log.WithTaskID(idStr).Info().Msg("task deleted")
		return ack()
	}
	return nack("UNKNOWN")
}

// Drain formats every currently queued report per §4.7 and returns the
// concatenated frames ready to write to the control socket, draining the
// queue as a side effect.
func Drain(q *reportqueue.Queue) []byte {
	reports := q.Drain()
	var out strings.Builder
	for _, r := range reports {
		if frame, ok := formatReport(r); ok {
			out.WriteString(frame)
		}
	}
	return []byte(out.String())
}

func formatReport(r types.Report) (string, bool) {
	if r.Message != "" {
		return fmt.Sprintf("NGS JOB REPORT\nID %s\n%s\n\n", r.ID, r.Message), true
	}
	switch {
	case r.Type == types.Process && r.Metric == types.Memory:
		return fmt.Sprintf("NGS JOB REPORT\nID %s\nBYTES %d\n\n", r.ID, int64(r.Value)), true
	case r.Type == types.Process && r.Metric == types.CPU:
		return fmt.Sprintf("NGS JOB REPORT\nID %s\nCPU PERCENT %.2f\n\n", r.ID, r.Percentage), true
	case r.Type == types.Process && r.Metric == types.IO:
		return fmt.Sprintf("NGS JOB REPORT\nID %s\nIO PERCENT %.2f\n\n", r.ID, r.Percentage), true
	case r.Type == types.Directory && r.Metric == types.Memory:
		return fmt.Sprintf("NGS JOB REPORT\nID %s\nBYTES %d\n\n", r.ID, int64(r.Value)), true
	default:
		log.WithTaskID(string(r.ID)).Debug().Str("type", string(r.Type)).Str("metric", string(r.Metric)).Msg("skipping report: unimplemented (type, metric) wire format")
		return "", false
	}
}

// ReapDropped scans controls for any task the worker has marked dropped
// and removes it from every map, joining its worker first — the control
// thread's post-drain sweep from §4.7's last paragraph.
func ReapDropped(r *registry.Registry) {
	for _, id := range r.Controls.Keys() {
		control, ok := r.Controls.Get(id)
		if !ok || !control.Dropped() {
			continue
		}
		if handle, ok := r.Threads.Get(id); ok {
			handle.Join()
		}
		r.RemoveTask(id)
		log.WithTaskID(string(id)).Info().Msg("task reaped after fatal collection error")
	}
}
