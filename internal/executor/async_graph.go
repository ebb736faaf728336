package executor

import (
	"log/slog"

	"github.com/me/gowe/internal/affinity"
	"github.com/me/gowe/pkg/model"
)

// AsyncGraph is the reference executor for devices whose work must run on a
// private device-queue thread (CUDA, Metal, Vulkan stand-ins here, since
// the real device backends are external collaborators per spec §1). It is
// grounded on the original's Jetstream::Async scheduler
// (original_source/subprojects/jetstream/include/jetstream/scheduler/async.hpp):
// a dedicated worker goroutine fed through a job channel, with a per-call
// result channel, replaces the original's std::thread + std::mutex +
// std::condition_variable.
//
// Every Compute/ComputeReady call is handed to the worker goroutine and the
// caller blocks until it's done, preserving the "ordered dependency chain"
// invariant (spec invariant 7) across executor boundaries: this graph's
// Compute never returns before its modules have actually run on the
// device's queue.
type AsyncGraph struct {
	device  model.Device
	logger  *slog.Logger
	modules []model.Compute

	wiredInputs  map[uint64]bool
	wiredOutputs map[uint64]bool
	externalIn   map[uint64]bool
	externalOut  map[uint64]bool

	jobs chan func()
	done chan struct{}
}

// NewAsyncGraph is an executor.Factory for devices that need a dedicated
// worker goroutine standing in for a device queue.
func NewAsyncGraph(device model.Device, logger *slog.Logger) Graph {
	return &AsyncGraph{
		device:       device,
		logger:       logger.With("executor", "async", "device", device),
		wiredInputs:  make(map[uint64]bool),
		wiredOutputs: make(map[uint64]bool),
		externalIn:   make(map[uint64]bool),
		externalOut:  make(map[uint64]bool),
	}
}

func (g *AsyncGraph) SetWiredInput(localeHash uint64)  { g.wiredInputs[localeHash] = true }
func (g *AsyncGraph) SetWiredOutput(localeHash uint64) { g.wiredOutputs[localeHash] = true }

func (g *AsyncGraph) SetExternallyWiredInput(localeHash uint64)  { g.externalIn[localeHash] = true }
func (g *AsyncGraph) SetExternallyWiredOutput(localeHash uint64) { g.externalOut[localeHash] = true }

func (g *AsyncGraph) SetModule(module model.Compute) {
	g.modules = append(g.modules, module)
}

func (g *AsyncGraph) Create() model.Result {
	g.jobs = make(chan func(), 1)
	g.done = make(chan struct{})

	go g.worker()

	g.logger.Debug("async graph created", "modules", len(g.modules))
	return model.Success
}

// worker is the private device-queue goroutine. It is pinned to this
// device's configured core set, best-effort, via internal/affinity.
func (g *AsyncGraph) worker() {
	affinity.PinCurrentGoroutine(g.device)
	for job := range g.jobs {
		job()
	}
	close(g.done)
}

func (g *AsyncGraph) Destroy() model.Result {
	if g.jobs != nil {
		close(g.jobs)
		<-g.done
		g.jobs = nil
	}
	g.logger.Debug("async graph destroyed")
	return model.Success
}

func (g *AsyncGraph) ComputeReady() model.Result {
	return g.run(func() model.Result {
		worst := model.Success
		for _, m := range g.modules {
			res := m.ComputeReady()
			if res == model.Timeout {
				return model.Timeout
			}
			worst = model.Worse(worst, res)
			if worst.IsFatal() {
				return worst
			}
		}
		return worst
	})
}

func (g *AsyncGraph) Compute(meta model.RuntimeMetadata) model.Result {
	return g.run(func() model.Result {
		worst := model.Success
		for _, m := range g.modules {
			res := m.Compute(meta)
			worst = model.Worse(worst, res)
			if res.IsFatal() {
				break
			}
		}
		return worst
	})
}

// run dispatches fn to the worker goroutine and blocks for its result.
func (g *AsyncGraph) run(fn func() model.Result) model.Result {
	result := make(chan model.Result, 1)
	g.jobs <- func() { result <- fn() }
	return <-result
}

func (g *AsyncGraph) GetWiredInputs() map[uint64]bool  { return g.wiredInputs }
func (g *AsyncGraph) GetWiredOutputs() map[uint64]bool { return g.wiredOutputs }
