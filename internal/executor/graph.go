// Package executor defines the per-device graph executor contract (§4.C)
// and two reference implementations. A Graph owns a contiguous run of
// modules sharing one device and one cluster, and is the only thing that
// actually invokes a module's Compute callback — the scheduler never calls
// a module directly. Grounded on the teacher's internal/executor (pluggable
// Executor interface + Registry) generalized from "run a Task" to "run an
// ordered list of modules on a device queue", and on the original's
// Scheduler::createExecutionGraphs / Graph contract.
package executor

import (
	"log/slog"

	"github.com/me/gowe/pkg/model"
)

// Graph is the device-specific executor contract. The scheduler constructs
// one per DeviceRun, wires it, calls Create once, then repeatedly calls
// ComputeReady/Compute from the compute loop until the pipeline rebuilds
// again, at which point Destroy is called and the Graph is discarded.
type Graph interface {
	// SetWiredInput/SetWiredOutput accumulate the locale hashes of every
	// active port belonging to modules in this run.
	SetWiredInput(localeHash uint64)
	SetWiredOutput(localeHash uint64)

	// SetExternallyWiredInput/SetExternallyWiredOutput mark a locale hash as
	// crossing this executor's device boundary — the scheduler computes
	// these by intersecting adjacent executors' wired sets after assembly.
	SetExternallyWiredInput(localeHash uint64)
	SetExternallyWiredOutput(localeHash uint64)

	// SetModule appends a module to this executor's ordered run.
	SetModule(module model.Compute)

	// Create finishes device-specific setup. Called only after all wiring
	// for this run has been set.
	Create() model.Result
	// Destroy tears down device-specific resources. Called before any
	// rebuild discards this executor.
	Destroy() model.Result

	// ComputeReady is a non-blocking readiness poll of every module in the
	// run. SUCCESS proceeds; TIMEOUT asks the readiness barrier to retry;
	// anything else is fatal.
	ComputeReady() model.Result
	// Compute invokes each module's Compute callback, in the accumulated
	// order, on this executor's device context. Returns the worst status
	// observed across the run (model.Worse ordering: fatal > skip >
	// timeout > success).
	Compute(meta model.RuntimeMetadata) model.Result

	// GetWiredInputs/GetWiredOutputs expose the accumulated sets for the
	// scheduler's externally-wired-port computation.
	GetWiredInputs() map[uint64]bool
	GetWiredOutputs() map[uint64]bool
}

// Factory constructs a fresh Graph for the given device. The scheduler
// calls this once per DeviceRun during executor assembly.
type Factory func(device model.Device, logger *slog.Logger) Graph
