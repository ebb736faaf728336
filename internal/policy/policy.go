// Package policy implements the extension seam the original scheduler left
// as a TODO: checkSequenceValidity detects an in-place module sharing a
// branched vector with another consumer and always just warns (its
// `return Result::ERROR;` is commented out). This package makes that
// decision pluggable instead of hard-coded, per spec Open Question 2
// ("configurable, warn by default").
package policy

import (
	"fmt"
	"log/slog"

	"github.com/me/gowe/pkg/model"
)

// Conflict describes one in-place aliasing conflict found during Phase 5
// of a rebuild: a record hash shared by more than one consumer, where at
// least one of the sharing modules also writes that hash in-place.
type Conflict struct {
	Hash    uint64
	Modules []string
}

// ConflictPolicy decides what a detected Conflict means for the rebuild.
// Implementations must not mutate modules.
type ConflictPolicy interface {
	// Decide returns nil to let the rebuild proceed (after logging a
	// warning), or a non-nil error to fail the rebuild.
	Decide(c Conflict) error
}

// WarnOnly is the default policy: every conflict is logged and otherwise
// ignored, matching the original's commented-out fatal path.
type WarnOnly struct {
	Logger *slog.Logger
}

func (p WarnOnly) Decide(c Conflict) error {
	if p.Logger != nil {
		p.Logger.Warn("vector shared by >=2 consumers after a branch, at least one in-place",
			"hash", fmt.Sprintf("0x%016x", c.Hash), "modules", c.Modules)
	}
	return nil
}

// AlwaysFatal escalates every conflict to a fatal rebuild error. Useful for
// hosts that have not yet implemented automatic copy-module injection and
// would rather fail loudly than run with aliased in-place state.
type AlwaysFatal struct {
	Logger *slog.Logger
}

func (p AlwaysFatal) Decide(c Conflict) error {
	if p.Logger != nil {
		p.Logger.Warn("vector shared by >=2 consumers after a branch, at least one in-place (fatal policy)",
			"hash", fmt.Sprintf("0x%016x", c.Hash), "modules", c.Modules)
	}
	return model.NewInplaceAliasingError(c.Hash, c.Modules)
}

// Func adapts a plain function to ConflictPolicy.
type Func func(c Conflict) error

func (f Func) Decide(c Conflict) error { return f(c) }
