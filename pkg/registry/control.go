package registry

import (
	"sync"
	"time"
)

// ThreadControl is the mutable, shared-between-control-thread-and-worker
// record the spec calls the thread-control record: paused/killed are read
// and written only under mu, with cond used to wake a parked worker;
// dropped is written once by the worker and later observed by the control
// thread during drain — see Dropped/SetDropped.
type ThreadControl struct {
	mu     sync.Mutex
	cond   *sync.Cond
	paused bool
	killed bool
	dropped bool
}

// NewThreadControl returns a fresh, unpaused, unkilled control record.
func NewThreadControl() *ThreadControl {
	tc := &ThreadControl{}
	tc.cond = sync.NewCond(&tc.mu)
	return tc
}

// Pause sets paused and wakes any waiter so it can re-check the predicate.
func (c *ThreadControl) Pause() {
	c.mu.Lock()
	c.paused = true
	c.mu.Unlock()
	c.cond.Broadcast()
}

// Resume clears paused and wakes any waiter.
func (c *ThreadControl) Resume() {
	c.mu.Lock()
	c.paused = false
	c.mu.Unlock()
	c.cond.Broadcast()
}

// Kill sets killed (and clears paused, so a parked worker wakes and exits
// rather than staying parked) and wakes any waiter.
func (c *ThreadControl) Kill() {
	c.mu.Lock()
	c.killed = true
	c.paused = false
	c.mu.Unlock()
	c.cond.Broadcast()
}

// SetDropped marks the task as dropped by its worker after a fatal
// collection error. Idempotent.
func (c *ThreadControl) SetDropped() {
	c.mu.Lock()
	c.dropped = true
	c.mu.Unlock()
}

// Dropped reports whether the worker has marked this task dropped.
func (c *ThreadControl) Dropped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

// WaitWhilePaused blocks the caller on cond while paused is true and killed
// is false, re-checking the predicate on every wake exactly as the C
// pthread_cond_wait loop does. Returns the killed flag observed at wake.
func (c *ThreadControl) WaitWhilePaused() (killed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.paused && !c.killed {
		c.cond.Wait()
	}
	return c.killed
}

// Killed reports the current killed flag without blocking.
func (c *ThreadControl) Killed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.killed
}

// Lock/Unlock expose the mutex directly. pkg/worker does not use them; the
// worker loop's bounded wait is TimedWaitNext below.
func (c *ThreadControl) Lock()   { c.mu.Lock() }
func (c *ThreadControl) Unlock() { c.mu.Unlock() }

// Signal exposes the underlying condition variable. The bounded,
// timer-driven wait (cond_timedwait equivalent) is TimedWaitNext below.
func (c *ThreadControl) Signal() *sync.Cond { return c.cond }

// TimedWaitNext blocks until either d has elapsed or the predicate changes
// (pause/resume/kill), the Go rendition of pthread_cond_timedwait: a timer
// broadcasts the condition variable after d so a plain Wait loop can
// observe both "woken by signal" and "woken by timeout" through the same
// predicate re-check. Returns true if the wait ended because the task was
// killed.
func (c *ThreadControl) TimedWaitNext(d time.Duration) (killed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.killed {
		return true
	}

	deadline := time.Now().Add(d)
	timer := time.AfterFunc(d, func() { c.cond.Broadcast() })
	defer timer.Stop()

	for {
		if c.killed {
			return true
		}
		if c.paused {
			// A pause arrived mid-wait; the caller's outer loop re-checks
			// paused next and parks in WaitWhilePaused instead.
			return false
		}
		if !time.Now().Before(deadline) {
			return false
		}
		c.cond.Wait()
	}
}
