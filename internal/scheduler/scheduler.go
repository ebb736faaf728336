// Package scheduler implements the compute scheduler core (spec §4.B):
// registration of modules, the five-phase rebuild pipeline in
// internal/graph, executor assembly against internal/executor.Registry, and
// the two worker-thread entry points (Compute/Present) fenced by the
// concurrency coordinator in coordinator.go. Grounded on the teacher's
// internal/scheduler package (the Scheduler interface shape, a
// component that owns a registry and drives work against it) generalized
// from task dispatch to module-graph execution, and on the original's
// Scheduler::addModule/removeModule/destroy/compute/present
// (original_source/src/compute/scheduler.cc).
package scheduler

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/me/gowe/internal/executor"
	"github.com/me/gowe/internal/graph"
	"github.com/me/gowe/internal/policy"
	"github.com/me/gowe/pkg/model"
)

// Scheduler owns every registered module, the validated execution order,
// the device-affinity run split, and the live Graph executors built from
// it. It is safe for concurrent use by exactly the three roles spec §5
// describes: one mutating caller, one compute-loop caller, one
// present-loop caller.
type Scheduler struct {
	logger   *slog.Logger
	registry *executor.Registry
	policy   policy.ConflictPolicy
	coord    *coordinator

	running bool

	// computeModules/presentModules are the raw, as-registered state —
	// every module ever added and not yet removed, before pruning.
	computeModules map[string]*model.ComputeModuleState
	presentModules map[string]*model.PresentModuleState

	// presentOrder records insertion order of presentModules keys, since
	// present() must iterate in registration order (spec §4.B present()
	// step 5) and Go maps carry none.
	presentOrder []string

	// mu guards the snapshot fields below, which are only ever written
	// inside lockState (one mutation at a time) but may be read from
	// DrawDebug at any time from any goroutine.
	mu             sync.Mutex
	validCompute   map[string]*model.ComputeModuleState
	validPresent   map[string]*model.PresentModuleState
	executionOrder []string
	deviceRuns     []graph.DeviceRun
	graphs         []executor.Graph

	frameID uint64

	// readinessTimeout bounds the readiness barrier in Compute, below. Zero
	// means spin without a deadline, matching the original's unbounded
	// goto loop.
	readinessTimeout time.Duration
}

// New creates an empty Scheduler bound to the given executor registry and
// in-place-aliasing conflict policy.
func New(registry *executor.Registry, pol policy.ConflictPolicy, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		logger:         logger.With("component", "scheduler"),
		registry:       registry,
		policy:         pol,
		coord:          newCoordinator(),
		computeModules: make(map[string]*model.ComputeModuleState),
		presentModules: make(map[string]*model.PresentModuleState),
	}
}

// SetReadinessTimeout bounds how long Compute's readiness barrier spins on
// ComputeReady==TIMEOUT before bailing with model.Timeout (spec §4.B, Open
// Question 1). A zero duration (the zero value) spins without a deadline.
func (s *Scheduler) SetReadinessTimeout(d time.Duration) {
	s.readinessTimeout = d
}

// AddModule registers a module's wiring and rebuilds the execution graph
// under lockState. module is a single owning value; its Compute and Present
// capability views are obtained by projection (a type assertion against
// the interfaces module happens to implement) rather than as separately
// shared handles — see DESIGN NOTES "Cyclic ownership". Fails with a
// *model.SchedulerError if the rebuild detects a cycle or a fatal aliasing
// conflict; the scheduler is left empty-but-consistent in that case,
// matching spec §7.
func (s *Scheduler) AddModule(
	locale model.Locale,
	module model.Module,
	inputMap, outputMap model.RecordMap,
) error {
	name := locale.ModuleName()
	device := module.Device()
	compute, _ := module.(model.Compute)
	present, _ := module.(model.Present)

	return s.coord.lockState(func() error {
		if compute != nil {
			s.computeModules[name] = &model.ComputeModuleState{
				Name:      name,
				Module:    compute,
				Device:    device,
				InputMap:  inputMap,
				OutputMap: outputMap,
			}
		}
		if present != nil {
			if _, exists := s.presentModules[name]; !exists {
				s.presentOrder = append(s.presentOrder, name)
			}
			s.presentModules[name] = &model.PresentModuleState{
				Name:      name,
				Module:    present,
				InputMap:  inputMap,
				OutputMap: outputMap,
			}
		}

		s.logRegistrationBanner(name, device, module, inputMap, outputMap, compute != nil, present != nil)

		s.running = true
		return s.rebuildLocked()
	})
}

// logRegistrationBanner reproduces the original's addModule banner (spec
// §12 "Verbose module-registration banner"): device, capability flags, the
// module's own Info() lines, and a per-port dump of every input/output
// record's shape, device, pointer, hash and locale.
func (s *Scheduler) logRegistrationBanner(
	name string,
	device model.Device,
	module model.Module,
	inputMap, outputMap model.RecordMap,
	hasCompute, hasPresent bool,
) {
	s.logger.Info("module registered", "module", name, "device", device,
		"inputs", len(inputMap), "outputs", len(outputMap),
		"compute", hasCompute, "present", hasPresent)

	module.Info(s.logger.With("module", name))

	for pin, rec := range inputMap {
		s.logger.Debug("module input port", "module", name, "pin", pin, "record", rec.String())
	}
	for pin, rec := range outputMap {
		s.logger.Debug("module output port", "module", name, "pin", pin, "record", rec.String())
	}
}

// RemoveModule reverses AddModule. No-op if the scheduler is not running
// (spec §4.B remove_module).
func (s *Scheduler) RemoveModule(locale model.Locale) error {
	if !s.running {
		return nil
	}
	name := locale.ModuleName()

	return s.coord.lockState(func() error {
		delete(s.computeModules, name)
		if _, exists := s.presentModules[name]; exists {
			delete(s.presentModules, name)
			for i, n := range s.presentOrder {
				if n == name {
					s.presentOrder = append(s.presentOrder[:i], s.presentOrder[i+1:]...)
					break
				}
			}
		}

		s.logger.Info("module removed", "module", name)
		return s.rebuildLocked()
	})
}

// Destroy tears down all executors, clears all internal state, and marks
// the scheduler not running.
func (s *Scheduler) Destroy() error {
	err := s.coord.lockState(func() error {
		s.destroyGraphsLocked()
		s.computeModules = make(map[string]*model.ComputeModuleState)
		s.presentModules = make(map[string]*model.PresentModuleState)
		s.presentOrder = nil

		s.mu.Lock()
		s.validCompute = nil
		s.validPresent = nil
		s.executionOrder = nil
		s.deviceRuns = nil
		s.mu.Unlock()

		return nil
	})
	s.running = false
	s.logger.Info("scheduler destroyed")
	return err
}

// rebuildLocked runs the side effect documented on add_module/remove_module:
// destroy every existing executor, then run the five-phase rebuild and
// reassemble executors from its result. Must be called from inside
// lockState. On failure the scheduler is left with no executors and no
// valid state (spec §7: "previous pipeline state is not restored").
func (s *Scheduler) rebuildLocked() error {
	s.destroyGraphsLocked()

	result, err := graph.Rebuild(s.computeModules, s.presentModules, s.policy, s.logger)
	if err != nil {
		s.logger.Error("rebuild failed", "error", err)
		s.mu.Lock()
		s.validCompute = nil
		s.validPresent = nil
		s.executionOrder = nil
		s.deviceRuns = nil
		s.mu.Unlock()
		return err
	}

	graphs, err := s.assembleGraphs(result.DeviceExecutionOrder, result.ValidCompute)
	if err != nil {
		s.logger.Error("executor assembly failed", "error", err)
		s.mu.Lock()
		s.validCompute = nil
		s.validPresent = nil
		s.executionOrder = nil
		s.deviceRuns = nil
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.validCompute = result.ValidCompute
	s.validPresent = result.ValidPresent
	s.executionOrder = result.ExecutionOrder
	s.deviceRuns = result.DeviceExecutionOrder
	s.graphs = graphs
	s.mu.Unlock()

	s.logger.Info("rebuild complete", "modules", len(result.ValidCompute),
		"present_modules", len(result.ValidPresent), "graphs", len(graphs))
	return nil
}

// destroyGraphsLocked tears down and discards every current executor. Must
// be called from inside lockState.
func (s *Scheduler) destroyGraphsLocked() {
	s.mu.Lock()
	graphs := s.graphs
	s.graphs = nil
	s.mu.Unlock()

	for _, g := range graphs {
		if res := g.Destroy(); res != model.Success {
			s.logger.Warn("graph destroy returned non-success", "result", res)
		}
	}
}

// assembleGraphs is the "Executor assembly" procedure: build one Graph per
// device-execution run, wire its ports, chain externally-wired ports
// between adjacent runs, then create every executor in order.
func (s *Scheduler) assembleGraphs(runs []graph.DeviceRun, valid map[string]*model.ComputeModuleState) ([]executor.Graph, error) {
	graphs := make([]executor.Graph, 0, len(runs))

	for _, run := range runs {
		g, err := s.registry.New(run.Device)
		if err != nil {
			return nil, err
		}
		for _, name := range run.Modules {
			state := valid[name]
			for _, rec := range state.ActiveInputs {
				g.SetWiredInput(rec.Locale.Hash())
			}
			for _, rec := range state.ActiveOutputs {
				g.SetWiredOutput(rec.Locale.Hash())
			}
			g.SetModule(state.Module)
		}
		graphs = append(graphs, g)
	}

	for i := 1; i < len(graphs); i++ {
		prevOut := graphs[i-1].GetWiredOutputs()
		currIn := graphs[i].GetWiredInputs()
		for hash := range prevOut {
			if currIn[hash] {
				graphs[i-1].SetExternallyWiredOutput(hash)
				graphs[i].SetExternallyWiredInput(hash)
			}
		}
	}

	for i, g := range graphs {
		if res := g.Create(); res != model.Success {
			return nil, fmt.Errorf("graph %d create failed: %s", i, res)
		}
	}

	return graphs, nil
}

// Compute drives one pass through every executor. Called repeatedly by the
// compute thread (spec §4.B compute()).
func (s *Scheduler) Compute() model.Result {
	s.mu.Lock()
	graphs := s.graphs
	s.mu.Unlock()

	if len(graphs) == 0 {
		time.Sleep(idleSleep)
		return model.Success
	}

	if s.coord.checkComputeHalt() {
		return model.Success
	}

	// Readiness barrier: retry until every executor reports ready, per
	// the original's goto-driven loop (spec §9, Open Question 1). Bounded
	// by readinessTimeout when set, so a stuck device queue cannot spin
	// the compute loop forever.
	var deadline time.Time
	if s.readinessTimeout > 0 {
		deadline = time.Now().Add(s.readinessTimeout)
	}
	s.coord.setComputeWait(true)
	for {
		if !deadline.IsZero() && time.Now().After(deadline) {
			s.coord.setComputeWait(false)
			s.logger.Warn("readiness barrier timed out", "timeout", s.readinessTimeout)
			return model.Timeout
		}
		allReady := true
		var nonSuccess model.Result
		for _, g := range graphs {
			res := g.ComputeReady()
			if res == model.Timeout {
				allReady = false
				break
			}
			if res != model.Success {
				nonSuccess = res
				break
			}
		}
		if nonSuccess != model.Success {
			s.coord.setComputeWait(false)
			return nonSuccess
		}
		if allReady {
			break
		}
	}
	s.coord.setComputeWait(false)

	res := s.coord.runComputePhase(func() model.Result {
		meta := model.RuntimeMetadata{FrameID: s.frameID}
		s.frameID++

		for _, g := range graphs {
			if r := g.Compute(meta); r != model.Success {
				return r
			}
		}
		return model.Success
	})

	switch {
	case res == model.Success:
		return model.Success
	case res.IsTransient():
		s.logger.Warn("graph underrun, skipping frame", "result", res)
		return model.Success
	default:
		s.logger.Error("fatal error in compute pass", "result", res)
		return res
	}
}

// Present drives one pass through every present-capable module, in
// registration order. Called repeatedly by the present thread (spec §4.B
// present()).
func (s *Scheduler) Present() model.Result {
	s.mu.Lock()
	validPresent := s.validPresent
	s.mu.Unlock()

	if len(validPresent) == 0 {
		return model.Success
	}

	if s.coord.presentHaltSet() {
		return model.Success
	}

	return s.coord.runPresentPhase(func() model.Result {
		for _, name := range s.presentOrder {
			state, ok := validPresent[name]
			if !ok {
				continue
			}
			if res := state.Module.Present(); res != model.Success {
				s.logger.Warn("present module returned non-success", "module", name, "result", res)
				return res
			}
		}
		return model.Success
	})
}

// Snapshot is the read-only view draw_debug() exposes to a host UI panel
// (spec §4.D): five labeled rows worth of state, no locks other than a
// brief read of the current counts.
type Snapshot struct {
	GraphCount   int
	StaleCount   int
	PresentCount int
	ComputeCount int
	Graphs       []GraphSnapshot
}

// GraphSnapshot is one row of the graph list: a device and the block names
// of the modules it runs, in execution order.
type GraphSnapshot struct {
	Device model.Device
	Blocks []string
}

// DrawDebug returns a point-in-time snapshot of scheduler state.
func (s *Scheduler) DrawDebug() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		GraphCount:   len(s.graphs),
		StaleCount:   len(s.computeModules) - len(s.validCompute),
		PresentCount: len(s.validPresent),
		ComputeCount: len(s.validCompute),
	}
	for _, run := range s.deviceRuns {
		snap.Graphs = append(snap.Graphs, GraphSnapshot{Device: run.Device, Blocks: run.Modules})
	}
	return snap
}
