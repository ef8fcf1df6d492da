package types

import "time"

// TaskType identifies the kind of resource a task collects metrics for.
type TaskType string

const (
	NoType    TaskType = "NO_TYPE"
	Process   TaskType = "PROCESS"
	Directory TaskType = "DIRECTORY"
	Disk      TaskType = "DISK"
	Swap      TaskType = "SWAP"
	Load      TaskType = "LOAD"
	Total     TaskType = "TOTAL"
)

// ParseTaskType maps a wire-format type token to a TaskType. ok is false for
// anything not in the enum.
func ParseTaskType(s string) (TaskType, bool) {
	switch TaskType(s) {
	case Process, Directory, Disk, Swap, Load, Total:
		return TaskType(s), true
	default:
		return NoType, false
	}
}

// MetricType identifies which measurement a task collects.
type MetricType string

const (
	NoMetric MetricType = "NONE"
	Memory   MetricType = "MEMORY"
	CPU      MetricType = "CPU"
	IO       MetricType = "IO"
)

// ParseMetricType maps a wire-format metric token to a MetricType.
func ParseMetricType(s string) (MetricType, bool) {
	switch MetricType(s) {
	case Memory, CPU, IO:
		return MetricType(s), true
	default:
		return NoMetric, false
	}
}

// OptionType identifies one of the task-descriptor option slots.
type OptionType string

const (
	Empty     OptionType = "EMPTY"
	KeepAlive OptionType = "KEEPALIVE"
	PIDFile   OptionType = "PIDFILE"
	RunCmd    OptionType = "RUNCMD"
	MountPnt  OptionType = "MNTPNT"
	Path      OptionType = "PATH"
)

// ParseOptionType maps a wire-format option literal to an OptionType.
func ParseOptionType(s string) (OptionType, bool) {
	switch OptionType(s) {
	case KeepAlive, PIDFile, RunCmd, MountPnt, Path:
		return OptionType(s), true
	default:
		return Empty, false
	}
}

// allowedOptions is the per-type option matrix from the ADD handler: an
// option literal is only valid alongside tasks of the listed type.
var allowedOptions = map[OptionType]TaskType{
	KeepAlive: Process,
	PIDFile:   Process,
	RunCmd:    Process,
	Path:      Directory,
	MountPnt:  Disk,
}

// OptionAllowed reports whether opt may appear on a descriptor of type t.
func OptionAllowed(opt OptionType, t TaskType) bool {
	want, ok := allowedOptions[opt]
	return ok && want == t
}

// MaxOptions is the fixed number of option slots a task descriptor carries,
// mirroring the wire frame's 4 optional lines.
const MaxOptions = 4

// MaxIDLen is the maximum task identifier length in bytes. Nothing in the
// agent checks identifiers against it.
const MaxIDLen = 12

// Option is a single (type, value) pair attached to a task descriptor.
type Option struct {
	Type  OptionType
	Value string
}

// TaskID is an opaque, caller-assigned identifier, unique within this agent.
type TaskID string

// Descriptor is a task's immutable configuration, fixed at ADD time.
type Descriptor struct {
	ID        TaskID
	Type      TaskType
	Metric    MetricType
	Frequency time.Duration
	Options   []Option
}

// Option looks up the first option of the given type on the descriptor.
func (d *Descriptor) Option(t OptionType) (Option, bool) {
	for _, o := range d.Options {
		if o.Type == t {
			return o, true
		}
	}
	return Option{}, false
}

// Report is a single collection result, either a value or a terminal/
// transient message.
type Report struct {
	ID         TaskID
	Type       TaskType
	Metric     MetricType
	Value      float64
	Percentage float64
	TimeTaken  time.Duration
	// Message carries "ERROR CAUSE X" (transient) or "FATAL CAUSE X"
	// (terminal for this task) when non-empty.
	Message string
}

// Fatal reports whether this report's message is a FATAL cause, meaning the
// task that produced it must be removed from the registry.
func (r Report) Fatal() bool {
	return len(r.Message) >= 5 && r.Message[:5] == "FATAL"
}

// Stats holds the seven running counters from the original monitor_stats_t,
// one per task type plus a grand total.
type Stats struct {
	NumTasks        int
	NumProcessTasks int
	NumDirTasks     int
	NumDiskTasks    int
	NumSwapTasks    int
	NumLoadTasks    int
	NumTotalTasks   int
}

// CounterFor returns the field to adjust in Stats for a given task type, or false
// if the type has no dedicated counter (NoType).
func CounterFor(t TaskType) (func(*Stats) *int, bool) {
	switch t {
	case Process:
		return func(s *Stats) *int { return &s.NumProcessTasks }, true
	case Directory:
		return func(s *Stats) *int { return &s.NumDirTasks }, true
	case Disk:
		return func(s *Stats) *int { return &s.NumDiskTasks }, true
	case Swap:
		return func(s *Stats) *int { return &s.NumSwapTasks }, true
	case Load:
		return func(s *Stats) *int { return &s.NumLoadTasks }, true
	case Total:
		return func(s *Stats) *int { return &s.NumTotalTasks }, true
	default:
		return nil, false
	}
}
