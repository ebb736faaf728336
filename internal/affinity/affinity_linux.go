//go:build linux

package affinity

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// pin locks the calling goroutine to its OS thread and restricts that
// thread's CPU affinity mask to cores. LockOSThread is required: without it
// the Go runtime is free to migrate this goroutine onto an unpinned thread
// on the next preemption point.
func pin(cores []int) {
	runtime.LockOSThread()

	var set unix.CPUSet
	set.Zero()
	for _, c := range cores {
		set.Set(c)
	}
	_ = unix.SchedSetaffinity(0, &set)
}
