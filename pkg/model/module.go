package model

import "log/slog"

// RuntimeMetadata is passed to Compute.Compute on every invocation. It
// carries nothing the scheduler interprets — it's a pass-through bundle
// the host application can use to give modules frame-scoped context
// (deadline, frame counter, ...).
type RuntimeMetadata struct {
	// FrameID increments once per compute() pass that reaches the compute
	// phase, whether or not that pass succeeds.
	FrameID uint64
}

// Compute is the heavy-work capability a module may expose.
type Compute interface {
	// Compute runs this module's work for one frame.
	Compute(meta RuntimeMetadata) Result

	// ComputeReady is a non-blocking readiness check, polled by the
	// scheduler's readiness barrier before Compute is invoked for the
	// frame. Returning Timeout asks the scheduler to retry the barrier;
	// it never surfaces as an error.
	ComputeReady() Result
}

// Present is the GUI/render-side capability a module may expose.
type Present interface {
	// Present runs this module's render-side work for one frame.
	Present() Result
}

// Module is the opaque object a host registers with the scheduler. Compute
// and Present are obtained as independent capability views (the module may
// implement either, both, or neither) rather than as separately shared
// handles — see DESIGN NOTES "Cyclic ownership".
type Module interface {
	// Device returns the execution device this module is bound to.
	Device() Device

	// Info emits human-readable configuration lines via the given logger,
	// invoked once at registration time (mirrors the original's
	// module->info() banner).
	Info(logger *slog.Logger)
}

// ComputeModule is satisfied by a Module that also implements Compute.
type ComputeModule interface {
	Module
	Compute
}

// PresentModule is satisfied by a Module that also implements Present.
type PresentModule interface {
	Module
	Present
}
