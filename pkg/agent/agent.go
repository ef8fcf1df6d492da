// Package agent is the outer control loop: C2's handshake/reconnect dance,
// C8's signal coordination, and the glue that wires a received control
// frame through pkg/protocol into pkg/registry and pkg/worker, then drains
// pkg/reportqueue back to the same socket. Grounded on monitor.c's main()
// loop (connect_to_server / handle_connection / cleanup_and_exit).
package agent

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/google/uuid"

	"github.com/hostpulse/agent/pkg/log"
	"github.com/hostpulse/agent/pkg/metrics"
	"github.com/hostpulse/agent/pkg/protocol"
	"github.com/hostpulse/agent/pkg/registry"
	"github.com/hostpulse/agent/pkg/reportqueue"
	"github.com/hostpulse/agent/pkg/stats"
	"github.com/hostpulse/agent/pkg/supervisor"
	"github.com/hostpulse/agent/pkg/wire"
	"github.com/hostpulse/agent/pkg/worker"
)

// Agent bundles the single top-level value §9's design notes ask for in
// place of the original's process-wide globals: everything a
// connection-attempt needs lives here, handed to workers and the
// dispatcher by shared reference. exiting and wake are the two legitimate
// process-wide signals the SIGTERM handler must reach without allocating.
type Agent struct {
	ServerAddr string

	Registry *registry.Registry
	Queue    *reportqueue.Queue
	Stats    *stats.Counters
	Deps     worker.Deps

	exiting     atomic.Bool
	wake        chan struct{}
	wakeOnce    sync.Once
	prevDropped int
}

// New constructs an Agent wired to a concrete collector, ready to Run.
func New(serverAddr string, deps worker.Deps, reg *registry.Registry) *Agent {
	return &Agent{
		ServerAddr: serverAddr,
		Registry:   reg,
		Queue:      deps.Queue,
		Stats:      deps.Stats,
		Deps:       deps,
		wake:       make(chan struct{}),
	}
}

// installSignals wires SIGTERM to the freeze-then-wake sequence of §4.8:
// a goroutine started ahead of time receives the signal from
// signal.Notify, freezes the registry and the report queue (each under its
// own lock), sets the atomic exiting flag, and closes the wake channel. Go
// delivers signals to a regular goroutine, not a restricted signal-handler
// context, so the locking is safe there. SIGINT and SIGPIPE are ignored,
// matching §4.8.
func (a *Agent) installSignals() chan os.Signal {
	signal.Ignore(syscall.SIGINT, syscall.SIGPIPE)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM)
	go func() {
		<-sigCh
		a.Registry.Freeze()
		a.Queue.Freeze()
		a.exiting.Store(true)
		a.closeWake()
		log.Logger.Info().Msg("SIGTERM received, shutting down")
	}()
	return sigCh
}

func (a *Agent) closeWake() {
	a.wakeOnce.Do(func() { close(a.wake) })
}

// Run drives the outer handshake/reconnect loop until a graceful shutdown
// completes, returning nil on success or an error for an unrecoverable
// startup failure (§2 SERVER_UNREACHABLE / SERVER_REJECTED / bind failure).
func (a *Agent) Run() error {
	a.installSignals()

	ln, port, err := wire.Listen()
	if err != nil {
		return fmt.Errorf("agent: %w", err)
	}
	defer ln.Close()

	initial := true
	for {
		if a.exiting.Load() {
			return a.shutdown(nil)
		}

		conn, err := wire.DialWithBackoff(a.ServerAddr, initial, a.wake)
		if err != nil {
			if a.exiting.Load() {
				return a.shutdown(nil)
			}
			return fmt.Errorf("agent: %w", err)
		}
		metrics.RecordConnected(false)

		connID := uuid.New().String()
		l := log.WithConnID(connID)

		if err := wire.WriteFrame(conn, wire.HelloFrame(!initial, port), wire.WriteTimeout); err != nil {
			l.Warn().Err(err).Msg("hello write failed, retrying")
			conn.Close()
			continue
		}

		reply, err := wire.ReadFrame(conn, a.wake, wire.ReadTimeout)
		if err != nil {
			l.Warn().Err(err).Msg("hello reply read failed, retrying")
			conn.Close()
			continue
		}
		if reply == nil {
			conn.Close()
			return a.shutdown(nil)
		}
		switch {
		case hasFrame(reply, "NGS ACK"):
			// fall through to reverse-connect accept
		case hasFrame(reply, "NGS NACK"):
			conn.Close()
			return fmt.Errorf("agent: server rejected handshake")
		default:
			conn.Close()
			return fmt.Errorf("agent: generic handshake error")
		}

		ctrl, err := wire.AcceptReverse(ln)
		conn.Close() // the hello connection's job is done once the reverse connects
		if err != nil {
			l.Warn().Err(err).Msg("reverse connect timed out, retrying")
			initial = false
			continue
		}

		metrics.RecordConnected(true)
		l.Info().Str("remote", ctrl.RemoteAddr().String()).Msg("control connection established")
		bye, err := a.controlLoop(ctrl)
		metrics.RecordConnected(false)

		if a.exiting.Load() {
			// ctrl is still open here: write NGS BYE on it before tearing
			// down, per §6's clean-shutdown frame.
			shutdownErr := a.shutdown(ctrl)
			ctrl.Close()
			return shutdownErr
		}
		ctrl.Close()
		if err != nil {
			l.Warn().Err(err).Msg("control connection lost, reconnecting")
		}
		if bye {
			l.Info().Msg("server said BYE, reconnecting")
		}
		initial = false
	}
}

func hasFrame(frame []byte, prefix string) bool {
	return len(frame) >= len(prefix) && string(frame[:len(prefix)]) == prefix
}

// controlLoop is the per-connection read/dispatch/drain cycle, §4.3's
// "commands from the server are processed strictly sequentially" and
// §4.7's "ACK/NACK is written before the queue drain for that iteration"
// guarantees live here: both happen in a single goroutine, in order, with
// nothing else writing to ctrl.
func (a *Agent) controlLoop(ctrl net.Conn) (bye bool, err error) {
	dispatcher := &protocol.Dispatcher{
		Registry: a.Registry,
		Deps:     a.Deps,
		Exiting:  &a.exiting,
	}

	for {
		frame, ferr := wire.ReadFrame(ctrl, a.wake, wire.ReadTimeout)
		if ferr != nil {
			return false, ferr
		}
		if frame == nil {
			// Wake fired: shutdown requested mid-read. Zero-length frame
			// must never be treated as a command, per §8 invariant 9.
			return false, nil
		}

		result := dispatcher.Dispatch(frame)
		if result.Reply != nil {
			if werr := wire.WriteFrame(ctrl, result.Reply, wire.WriteTimeout); werr != nil {
				return result.Bye, werr
			}
		}

		if reports := protocol.Drain(a.Queue); len(reports) > 0 {
			if werr := wire.WriteFrame(ctrl, reports, wire.WriteTimeout); werr != nil {
				return result.Bye, werr
			}
		}
		protocol.ReapDropped(a.Registry)
		a.publishMetrics()

		if result.Bye {
			return true, nil
		}
	}
}

func (a *Agent) publishMetrics() {
	metrics.RecordStats(a.Stats.Snapshot())
	metrics.RecordQueueDepth(a.Queue.Len())
	dropped := a.Queue.Dropped()
	metrics.RecordQueueDropped(dropped - a.prevDropped)
	a.prevDropped = dropped
}

// shutdown performs the graceful-teardown path of §8 invariant 4: the
// registry was already frozen by the SIGTERM handler; this joins every
// live worker and returns, which the caller surfaces as a clean process
// exit. ctrl, if non-nil, gets a best-effort "NGS BYE" before teardown.
func (a *Agent) shutdown(ctrl net.Conn) error {
	if ctrl != nil {
		_ = wire.WriteFrame(ctrl, []byte("NGS BYE\n\n"), wire.WriteTimeout)
	}

	ids := a.Registry.Threads.Keys()
	for _, id := range ids {
		if control, ok := a.Registry.Controls.Get(id); ok {
			control.Kill()
		}
	}
	for _, id := range ids {
		if handle, ok := a.Registry.Threads.Get(id); ok {
			handle.Join()
		}
	}

	// Workers are joined, but a keep-alive child keeps running on its own
	// until told otherwise; stop each one still tracked in Children.
	for _, id := range a.Registry.Children.Keys() {
		a.Deps.Supervisor.Stop(id, supervisor.GracefulStopTimeout)
	}

	log.Logger.Info().Int("tasks_terminated", len(ids)).Msg("graceful shutdown complete")
	return nil
}
