// Package procfs is a concrete Linux /proc-based implementation of
// collector.Collector, grounded on worker.c's handle_process/
// handle_directory/handle_total dispatch and its process_*_collect,
// directory_memory_collect, and total_*_collect helpers.
package procfs

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/hostpulse/agent/pkg/collector"
	"github.com/hostpulse/agent/pkg/types"
)

// Collector implements collector.Collector against /proc on Linux.
type Collector struct {
	// Root lets tests point at a fake /proc tree; defaults to "/proc".
	Root string
}

// New returns a Collector rooted at the real /proc.
func New() *Collector {
	return &Collector{Root: "/proc"}
}

func (c *Collector) procPath(elem ...string) string {
	root := c.Root
	if root == "" {
		root = "/proc"
	}
	return filepath.Join(append([]string{root}, elem...)...)
}

// CollectOnce dispatches on task type, mirroring run_task's switch.
func (c *Collector) CollectOnce(ctx collector.CollectCtx) collector.Result {
	switch ctx.Type {
	case types.Process:
		return c.handleProcess(ctx)
	case types.Directory:
		return c.handleDirectory(ctx)
	case types.Total:
		return c.handleTotal(ctx)
	case types.Disk, types.Swap, types.Load:
		// Unimplemented in the original (handle_disk/handle_swap/handle_load
		// are TODO stubs) and left out of the wire spec pending a
		// server-side format.
		return unsupportedTask(ctx)
	default:
		return invalidTask(ctx)
	}
}

func baseReport(ctx collector.CollectCtx) types.Report {
	return types.Report{ID: ctx.ID, Type: ctx.Type, Metric: ctx.Metric}
}

func unsupportedTask(ctx collector.CollectCtx) collector.Result {
	r := baseReport(ctx)
	r.Message = "FATAL CAUSE UNSUPPORTED_TASK"
	return collector.Result{Outcome: collector.TaskFatal, Report: r}
}

func invalidTask(ctx collector.CollectCtx) collector.Result {
	r := baseReport(ctx)
	r.Message = "FATAL CAUSE INVALID_TASK"
	return collector.Result{Outcome: collector.GenericError, Report: r}
}

func (c *Collector) handleProcess(ctx collector.CollectCtx) collector.Result {
	report := baseReport(ctx)

	keepalive := false
	var pidfile, runcmd string
	if o, ok := ctx.Option(types.KeepAlive); ok {
		keepalive = o.Value == "TRUE"
	}
	if o, ok := ctx.Option(types.PIDFile); ok {
		pidfile = o.Value
	}
	if o, ok := ctx.Option(types.RunCmd); ok {
		runcmd = o.Value
	}
	_ = runcmd // child spawning itself is pkg/supervisor's job, not the collector's

	var pid int
	if keepalive {
		// By the time a keep-alive task reaches the collector, pkg/supervisor
		// has already ensured the child is forked and the pidfile written;
		// the collector only reads the pid back out.
		p, err := readPID(pidfile)
		if err != nil {
			report.Message = "FATAL CAUSE NO_PIDFILE"
			return collector.Result{Outcome: collector.TaskFatal, Report: report}
		}
		pid = p
	} else {
		p, err := readPID(pidfile)
		if err != nil {
			report.Message = "FATAL CAUSE NO_PIDFILE"
			return collector.Result{Outcome: collector.TaskFatal, Report: report}
		}
		if !processAlive(p) {
			report.Message = "ERROR CAUSE PROC_NOT_RUNNING"
			return collector.Result{Outcome: collector.Success, Report: report}
		}
		pid = p
	}

	switch ctx.Metric {
	case types.Memory:
		val, err := c.processMemory(pid)
		if err != nil {
			if keepalive {
				report.Message = "ERROR CAUSE PROC_NOT_RUNNING"
				return collector.Result{Outcome: collector.Success, Report: report}
			}
			return unsupportedDistro(ctx)
		}
		report.Value = val
		report.TimeTaken = 0
		return collector.Result{Outcome: collector.Success, Report: report}
	case types.CPU:
		pct, err := c.processCPU(pid, ctx.SampleInterval)
		if err != nil {
			return unsupportedDistro(ctx)
		}
		report.Percentage = pct
		return collector.Result{Outcome: collector.Success, Report: report}
	case types.IO:
		// process_io_collect is unimplemented in the original; left as a
		// TODO there too.
		return unsupportedTask(ctx)
	default:
		return invalidTask(ctx)
	}
}

func unsupportedDistro(ctx collector.CollectCtx) collector.Result {
	r := baseReport(ctx)
	r.Message = "FATAL CAUSE UNSUPPORTED_DISTRO"
	return collector.Result{Outcome: collector.TaskFatal, Report: r}
}

func readPID(pidfile string) (int, error) {
	if pidfile == "" {
		return 0, fmt.Errorf("no pidfile configured")
	}
	data, err := os.ReadFile(pidfile)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, err
	}
	return pid, nil
}

func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// kill(pid, 0) liveness probe: Signal(0) on Unix does exactly this
	// without actually delivering a signal.
	return proc.Signal(syscall.Signal(0)) == nil
}

// processMemory reads /proc/<pid>/statm's first field (size in pages) and
// converts to bytes, matching process_memory_collect.
func (c *Collector) processMemory(pid int) (float64, error) {
	f, err := os.Open(c.procPath(strconv.Itoa(pid), "statm"))
	if err != nil {
		return 0, err
	}
	defer f.Close()
	var pages int64
	if _, err := fmt.Fscan(f, &pages); err != nil {
		return 0, err
	}
	return float64(pages * int64(os.Getpagesize())), nil
}

type cpuSample struct {
	pidUser, pidSys                                    uint64
	user, nice, sys, idle, io                           uint64
}

func (c *Collector) readCPUSample(pid int) (cpuSample, error) {
	var s cpuSample
	pidStat, err := os.Open(c.procPath(strconv.Itoa(pid), "stat"))
	if err != nil {
		return s, err
	}
	defer pidStat.Close()
	fields := strings.Fields(mustReadLine(pidStat))
	// fields[13], fields[14] are utime, stime (1-indexed 14/15 in the
	// original's fscanf skip-list).
	if len(fields) < 15 {
		return s, fmt.Errorf("short stat line")
	}
	s.pidUser, err = strconv.ParseUint(fields[13], 10, 64)
	if err != nil {
		return s, err
	}
	s.pidSys, err = strconv.ParseUint(fields[14], 10, 64)
	if err != nil {
		return s, err
	}

	global, err := os.Open(c.procPath("stat"))
	if err != nil {
		return s, err
	}
	defer global.Close()
	gFields := strings.Fields(mustReadLine(global))
	if len(gFields) < 6 {
		return s, fmt.Errorf("short global stat line")
	}
	vals := make([]uint64, 4)
	for i := 0; i < 4; i++ {
		v, err := strconv.ParseUint(gFields[i+1], 10, 64)
		if err != nil {
			return s, err
		}
		vals[i] = v
	}
	s.user, s.nice, s.sys, s.idle = vals[0], vals[1], vals[2], vals[3]
	if len(gFields) > 5 {
		s.io, _ = strconv.ParseUint(gFields[5], 10, 64)
	}
	return s, nil
}

func mustReadLine(f *os.File) string {
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 4096), 1<<20)
	if sc.Scan() {
		return sc.Text()
	}
	return ""
}

// processCPU two-samples /proc/<pid>/stat and /proc/stat one interval
// apart and returns the process's share of total CPU time delta, matching
// process_cpu_collect.
func (c *Collector) processCPU(pid int, interval time.Duration) (float64, error) {
	if interval <= 0 {
		interval = time.Second
	}
	start, err := c.readCPUSample(pid)
	if err != nil {
		return 0, err
	}
	time.Sleep(interval)
	end, err := c.readCPUSample(pid)
	if err != nil {
		return 0, err
	}
	startPidTotal := start.pidUser + start.pidSys
	endPidTotal := end.pidUser + end.pidSys
	startGlobal := start.user + start.nice + start.sys + start.idle + start.io
	endGlobal := end.user + end.nice + end.sys + end.idle + end.io
	delta := endGlobal - startGlobal
	if delta == 0 {
		return 0, nil
	}
	return float64(endPidTotal-startPidTotal) * 100 / float64(delta), nil
}

func (c *Collector) handleDirectory(ctx collector.CollectCtx) collector.Result {
	report := baseReport(ctx)
	opt, ok := ctx.Option(types.Path)
	if !ok {
		report.Message = "FATAL CAUSE TASK_MISSING_OPTIONS"
		return collector.Result{Outcome: collector.TaskFatal, Report: report}
	}
	path := opt.Value

	if _, err := os.Stat(path); err != nil {
		report.Message = classifyStatErr(err)
		return collector.Result{Outcome: collector.TaskFatal, Report: report}
	}

	size, err := directorySize(path)
	if err != nil {
		if errTooManyFiles(err) {
			report.Message = "ERROR CAUSE TOO_MANY_FILES"
			return collector.Result{Outcome: collector.Success, Report: report}
		}
		report.Message = "FATAL CAUSE SUBDIR_NOT_ACCESSIBLE"
		return collector.Result{Outcome: collector.TaskFatal, Report: report}
	}
	report.Value = float64(size)
	return collector.Result{Outcome: collector.Success, Report: report}
}

func classifyStatErr(err error) string {
	switch {
	case os.IsNotExist(err), os.IsPermission(err):
		return "FATAL CAUSE DIR_NOT_ACCESSIBLE"
	default:
		if strings.Contains(err.Error(), "too many levels of symbolic links") {
			return "FATAL CAUSE DIR_INFINITE_LOOP"
		}
		if strings.Contains(err.Error(), "file name too long") {
			return "FATAL CAUSE DIR_NAME_TOO_LONG"
		}
		return "FATAL CAUSE UNKNOWN"
	}
}

func errTooManyFiles(err error) bool {
	return strings.Contains(err.Error(), "too many open files")
}

// directorySize recursively sums file sizes, matching
// directory_memory_collect's recursive walk, including one EMFILE retry
// after doubling RLIMIT_NOFILE.
func directorySize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if !info.IsDir() {
		return info.Size(), nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		if isEMFILE(err) {
			if doubled := doubleFileLimit(); doubled {
				entries, err = os.ReadDir(path)
			}
		}
		if err != nil {
			return 0, err
		}
	}

	var total int64
	for _, e := range entries {
		child := filepath.Join(path, e.Name())
		size, err := directorySize(child)
		if err != nil {
			return 0, err
		}
		total += size
	}
	return total, nil
}

func isEMFILE(err error) bool {
	return strings.Contains(err.Error(), "too many open files")
}

func doubleFileLimit() bool {
	var rlimit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rlimit); err != nil {
		return false
	}
	rlimit.Max *= 2
	rlimit.Cur = rlimit.Max
	return syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rlimit) == nil
}

func (c *Collector) handleTotal(ctx collector.CollectCtx) collector.Result {
	report := baseReport(ctx)
	switch ctx.Metric {
	case types.Memory:
		pct, err := c.totalMemory()
		if err != nil {
			return unsupportedDistro(ctx)
		}
		report.Percentage = pct
		return collector.Result{Outcome: collector.Success, Report: report}
	case types.CPU:
		pct, err := c.totalCPU(ctx.SampleInterval)
		if err != nil {
			return unsupportedDistro(ctx)
		}
		report.Percentage = pct
		return collector.Result{Outcome: collector.Success, Report: report}
	case types.IO:
		return unsupportedTask(ctx)
	default:
		return invalidTask(ctx)
	}
}

// totalMemory parses /proc/meminfo's MemTotal/MemAvailable, matching
// total_memory_collect.
func (c *Collector) totalMemory() (float64, error) {
	f, err := os.Open(c.procPath("meminfo"))
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var total, available float64
	var sawTotal, sawAvailable bool
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "MemTotal:"):
			total = parseMeminfoKB(line)
			sawTotal = true
		case strings.HasPrefix(line, "MemAvailable:"):
			available = parseMeminfoKB(line)
			sawAvailable = true
		}
	}
	if !sawTotal || !sawAvailable || total == 0 {
		return 0, fmt.Errorf("meminfo missing required fields")
	}
	return available / total, nil
}

func parseMeminfoKB(line string) float64 {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return 0
	}
	v, _ := strconv.ParseFloat(fields[1], 64)
	return v
}

func (c *Collector) readGlobalCPU() (user, nice, sys, idle, io uint64, err error) {
	f, ferr := os.Open(c.procPath("stat"))
	if ferr != nil {
		err = ferr
		return
	}
	defer f.Close()
	fields := strings.Fields(mustReadLine(f))
	if len(fields) < 6 {
		err = fmt.Errorf("short stat line")
		return
	}
	vals := make([]uint64, 5)
	for i := 0; i < 5; i++ {
		vals[i], err = strconv.ParseUint(fields[i+1], 10, 64)
		if err != nil {
			return
		}
	}
	return vals[0], vals[1], vals[2], vals[3], vals[4], nil
}

// totalCPU two-samples /proc/stat, matching total_cpu_collect.
func (c *Collector) totalCPU(interval time.Duration) (float64, error) {
	if interval <= 0 {
		interval = time.Second
	}
	su, sn, ss, si, sio, err := c.readGlobalCPU()
	if err != nil {
		return 0, err
	}
	time.Sleep(interval)
	eu, en, es, ei, eio, err := c.readGlobalCPU()
	if err != nil {
		return 0, err
	}
	startIdle := si + sio
	endIdle := ei + eio
	startTotal := su + sn + ss + si + sio
	endTotal := eu + en + es + ei + eio
	delta := endTotal - startTotal
	if delta == 0 {
		return 0, nil
	}
	return float64(delta-(endIdle-startIdle)) / float64(delta), nil
}
