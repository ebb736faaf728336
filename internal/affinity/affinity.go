// Package affinity pins device-queue worker goroutines to specific CPU
// cores, best-effort. It is the Go analogue of the pinning a native
// scheduler does for its device worker threads; grounded on
// golang.org/x/sys/unix's CPU-set syscalls, one of the teacher pack's
// dependencies with no CWL-domain owner of its own until this package.
package affinity

import "github.com/me/gowe/pkg/model"

// CoreSet maps a Device to the CPU core indices its worker goroutine should
// be pinned to. Empty or missing entries leave the goroutine unpinned.
type CoreSet map[model.Device][]int

var configured CoreSet

// Configure installs the core assignment used by future PinCurrentGoroutine
// calls. Called once during scheduler startup from config.
func Configure(cores CoreSet) {
	configured = cores
}

// PinCurrentGoroutine pins the calling goroutine's backing OS thread to the
// cores configured for device, if any. Safe to call with no configuration;
// it is then a no-op. Failures are swallowed: affinity is an optimization,
// never a correctness requirement, matching spec §1's framing of device
// backends as advisory collaborators.
func PinCurrentGoroutine(device model.Device) {
	cores := configured[device]
	if len(cores) == 0 {
		return
	}
	pin(cores)
}
