// Package collector defines the boundary the worker engine calls into to
// produce a Report: CollectOnce(type, metric, options, id) -> Outcome. The
// concrete "what does /proc look like" readers are an external concern per
// the core design — pkg/collector/procfs supplies one concrete
// implementation of this interface for Linux hosts.
package collector

import (
	"time"

	"github.com/hostpulse/agent/pkg/types"
)

// Outcome is the result of a single CollectOnce call.
type Outcome int

const (
	// Success means report carries a usable value.
	Success Outcome = iota
	// NoProc means the watched process is gone. pkg/worker does not
	// translate it: the accompanying Report is pushed unchanged and the
	// task stays scheduled.
	NoProc
	// UnsuppDistro means a required OS facility is absent.
	UnsuppDistro
	// UnsuppTask means this (type, metric) combination is not implemented.
	UnsuppTask
	// TaskFatal means the collector already pushed a FATAL report and the
	// task must be dropped.
	TaskFatal
	// GenericError means the task descriptor itself was invalid.
	GenericError
)

// Result is what CollectOnce returns: an Outcome plus, for Success, the
// Report to enqueue. For TaskFatal the FATAL report is carried in Report
// too, since the collector is responsible for producing the terminal
// message body, not just signaling the control thread.
type Result struct {
	Outcome Outcome
	Report  types.Report
}

// Collector is the capability the worker engine depends on. Implementations
// must be safe to call concurrently from different task workers; a single
// call blocks only the worker that made it.
type Collector interface {
	CollectOnce(ctx CollectCtx) Result
}

// CollectCtx bundles the arguments a collection needs: the task's type,
// metric, options, and id, plus the sample interval multi-sample CPU
// collectors wait between reads. There is no per-call deadline.
type CollectCtx struct {
	ID      types.TaskID
	Type    types.TaskType
	Metric  types.MetricType
	Options []types.Option
	// SampleInterval controls CPU collectors that take a before/after
	// /proc/stat sample instead of a single read.
	SampleInterval time.Duration
}

// Option looks up the first option of type t.
func (c CollectCtx) Option(t types.OptionType) (types.Option, bool) {
	for _, o := range c.Options {
		if o.Type == t {
			return o, true
		}
	}
	return types.Option{}, false
}
