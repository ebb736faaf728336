package executor

import (
	"log/slog"

	"github.com/me/gowe/pkg/model"
)

// SyncGraph is the reference executor for devices that run in-process, on
// the calling goroutine (e.g. CPU). It has no private worker thread: Compute
// and ComputeReady run synchronously on whichever goroutine calls them
// (the scheduler's compute loop), matching how the teacher's LocalExecutor
// runs a task's command synchronously within Submit.
type SyncGraph struct {
	device  model.Device
	logger  *slog.Logger
	modules []model.Compute

	wiredInputs   map[uint64]bool
	wiredOutputs  map[uint64]bool
	externalIn    map[uint64]bool
	externalOut   map[uint64]bool
}

// NewSyncGraph is an executor.Factory for devices that need no dedicated
// worker goroutine.
func NewSyncGraph(device model.Device, logger *slog.Logger) Graph {
	return &SyncGraph{
		device:       device,
		logger:       logger.With("executor", "sync", "device", device),
		wiredInputs:  make(map[uint64]bool),
		wiredOutputs: make(map[uint64]bool),
		externalIn:   make(map[uint64]bool),
		externalOut:  make(map[uint64]bool),
	}
}

func (g *SyncGraph) SetWiredInput(localeHash uint64)  { g.wiredInputs[localeHash] = true }
func (g *SyncGraph) SetWiredOutput(localeHash uint64) { g.wiredOutputs[localeHash] = true }

func (g *SyncGraph) SetExternallyWiredInput(localeHash uint64)  { g.externalIn[localeHash] = true }
func (g *SyncGraph) SetExternallyWiredOutput(localeHash uint64) { g.externalOut[localeHash] = true }

func (g *SyncGraph) SetModule(module model.Compute) {
	g.modules = append(g.modules, module)
}

func (g *SyncGraph) Create() model.Result {
	g.logger.Debug("graph created", "modules", len(g.modules),
		"wired_in", len(g.wiredInputs), "wired_out", len(g.wiredOutputs),
		"external_in", len(g.externalIn), "external_out", len(g.externalOut))
	return model.Success
}

func (g *SyncGraph) Destroy() model.Result {
	g.logger.Debug("graph destroyed")
	return model.Success
}

func (g *SyncGraph) ComputeReady() model.Result {
	worst := model.Success
	for _, m := range g.modules {
		worst = model.Worse(worst, m.ComputeReady())
		if worst == model.Timeout {
			return model.Timeout
		}
		if worst.IsFatal() {
			return worst
		}
	}
	return worst
}

func (g *SyncGraph) Compute(meta model.RuntimeMetadata) model.Result {
	worst := model.Success
	for _, m := range g.modules {
		res := m.Compute(meta)
		worst = model.Worse(worst, res)
		if res.IsFatal() {
			break
		}
	}
	return worst
}

func (g *SyncGraph) GetWiredInputs() map[uint64]bool  { return g.wiredInputs }
func (g *SyncGraph) GetWiredOutputs() map[uint64]bool { return g.wiredOutputs }
