package scheduler

import (
	"sync"
	"time"

	"github.com/me/gowe/pkg/model"
)

// coordinator is the concurrency coordinator from spec §4.B/§5: the locks,
// condition variables, and flags that let a compute thread and a present
// thread share module state without tearing, and that fence a structural
// mutation against both of them. It is grounded directly on the original's
// lockState/computeHalt/presentHalt/computeWait/computeSync/presentSync/
// sharedMutex/computeCond/presentCond (original_source/src/compute/scheduler.cc),
// replacing std::atomic_flag's wait/notify with a Go sync.Mutex/sync.Cond
// pair and std::unique_lock's lock-held-through-the-critical-section shape
// with the same discipline: sharedMutex stays locked for the full duration
// of a compute pass, a present pass, or a lockState mutation, so holding it
// is itself the mutual-exclusion mechanism. computeSync/presentSync are set
// and cleared only while sharedMutex is held, so they do not give present
// precedence over compute (see the sharedMutex field).
type coordinator struct {
	// flagMu/flagCond guard computeHalt, presentHalt and computeWait — the
	// three flags a structural mutation uses to fence the compute loop,
	// kept separate from sharedMutex just as the original keeps them as
	// distinct atomic_flags rather than sharedMutex-guarded state.
	flagMu      sync.Mutex
	flagCond    *sync.Cond
	computeHalt bool
	presentHalt bool
	computeWait bool

	// sharedMutex is held for the entire duration of whichever of
	// {compute pass, present pass, mutation} is currently running.
	// computeSync/presentSync are only written while it's held, and each
	// phase clears its flag before unlocking, so a phase that has just
	// acquired sharedMutex never finds the other's flag set and never waits
	// on computeCond/presentCond. When a compute pass and a present pass are
	// both blocked on sharedMutex, which one runs next is decided by
	// sync.Mutex alone; present is not given precedence.
	sharedMutex sync.Mutex
	computeCond *sync.Cond
	presentCond *sync.Cond
	computeSync bool
	presentSync bool
}

func newCoordinator() *coordinator {
	c := &coordinator{}
	c.flagCond = sync.NewCond(&c.flagMu)
	c.computeCond = sync.NewCond(&c.sharedMutex)
	c.presentCond = sync.NewCond(&c.sharedMutex)
	return c
}

// checkComputeHalt reports whether a mutation was in flight at the moment
// of the call and, if so, blocks until it clears before returning. Used by
// the compute loop (spec §4.B compute() step 2): "if compute_halt flag set,
// block on it, then return success" — the caller skips the rest of the
// pass entirely when this returns true.
func (c *coordinator) checkComputeHalt() bool {
	c.flagMu.Lock()
	halted := c.computeHalt
	for c.computeHalt {
		c.flagCond.Wait()
	}
	c.flagMu.Unlock()
	return halted
}

// presentHaltSet reports whether a mutation is in flight, for present()'s
// non-blocking check (spec §4.B present() step 2: "return success", no
// wait — present must never starve behind a pending mutation).
func (c *coordinator) presentHaltSet() bool {
	c.flagMu.Lock()
	defer c.flagMu.Unlock()
	return c.presentHalt
}

// setComputeWait/clearComputeWait bracket the readiness barrier (spec §4.B
// compute() step 3): raised while polling every executor's ComputeReady,
// cleared (and waiters notified) once all executors report ready. lockState
// waits on this flag to know the compute loop has left the barrier.
func (c *coordinator) setComputeWait(v bool) {
	c.flagMu.Lock()
	c.computeWait = v
	c.flagCond.Broadcast()
	c.flagMu.Unlock()
}

// runComputePhase waits for present to not hold priority, then runs fn with
// sharedMutex held for the whole call — matching the original's
// std::unique_lock scope spanning every graph->compute() invocation.
func (c *coordinator) runComputePhase(fn func() model.Result) model.Result {
	c.sharedMutex.Lock()
	for c.presentSync {
		c.computeCond.Wait()
	}
	c.computeSync = true

	res := fn()

	c.computeSync = false
	c.sharedMutex.Unlock()
	c.presentCond.Broadcast()
	return res
}

// runPresentPhase acquires sharedMutex (blocking until any in-flight compute
// phase or mutation releases it), sets presentSync, and runs fn with
// sharedMutex held.
func (c *coordinator) runPresentPhase(fn func() model.Result) model.Result {
	c.sharedMutex.Lock()
	c.presentSync = true
	for c.computeSync {
		c.presentCond.Wait()
	}

	res := fn()

	c.presentSync = false
	c.sharedMutex.Unlock()
	c.computeCond.Broadcast()
	return res
}

// lockState runs fn with both worker threads quiesced, per spec §4.B
// lock_state(fn):
//  1. raise compute_halt and present_halt
//  2. wait for compute_wait to clear (compute loop has left its readiness barrier)
//  3. acquire sharedMutex; force both *_sync flags true
//  4. run fn, holding sharedMutex for its entire duration — this is what
//     actually excludes a concurrently-running compute or present phase,
//     since both of those hold sharedMutex throughout their own work too
//  5. clear both *_sync flags, release mutex, notify both conds
//  6. clear both halt flags, notify waiters
func (c *coordinator) lockState(fn func() error) error {
	c.flagMu.Lock()
	c.computeHalt = true
	c.presentHalt = true
	for c.computeWait {
		c.flagCond.Wait()
	}
	c.flagMu.Unlock()

	c.sharedMutex.Lock()
	c.computeSync = true
	c.presentSync = true

	err := fn()

	c.computeSync = false
	c.presentSync = false
	c.sharedMutex.Unlock()
	c.computeCond.Broadcast()
	c.presentCond.Broadcast()

	c.flagMu.Lock()
	c.computeHalt = false
	c.presentHalt = false
	c.flagCond.Broadcast()
	c.flagMu.Unlock()

	return err
}

// idleSleep is how long compute() parks when there are no executors at all
// (spec §4.B compute() step 1).
const idleSleep = 200 * time.Millisecond
