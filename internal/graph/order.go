package graph

import (
	"log/slog"
	"sort"

	"github.com/me/gowe/pkg/model"
)

// Caches holds the lookup tables Phase 2 builds and Phase 3/5 reuse, mirroring
// moduleInputCache / moduleOutputCache / moduleEdgesCache in the original.
type Caches struct {
	// ModuleInput maps a locale hash (physical port identity) to every
	// module name that consumes it as an active input.
	ModuleInput map[uint64][]string
	// ModuleOutput maps a locale hash to the single module name that
	// produces it (one producer per locale hash by construction).
	ModuleOutput map[uint64]string
	// ModuleEdges maps a module name to the set of neighbor module names
	// reachable via either an input or an output edge.
	ModuleEdges map[string]map[string]bool
}

// BuildCaches constructs the three lookup caches Phase 2 needs.
func BuildCaches(valid map[string]*model.ComputeModuleState) *Caches {
	c := &Caches{
		ModuleInput:  make(map[uint64][]string),
		ModuleOutput: make(map[uint64]string),
		ModuleEdges:  make(map[string]map[string]bool),
	}

	for _, name := range sortedNames(valid) {
		state := valid[name]
		for _, rec := range state.ActiveInputs {
			lh := rec.Locale.Hash()
			c.ModuleInput[lh] = append(c.ModuleInput[lh], name)
		}
		for _, rec := range state.ActiveOutputs {
			c.ModuleOutput[rec.Locale.Hash()] = name
		}
	}

	for _, name := range sortedNames(valid) {
		state := valid[name]
		edges := make(map[string]bool)
		for _, rec := range state.ActiveInputs {
			if producer, ok := c.ModuleOutput[rec.Locale.Hash()]; ok {
				edges[producer] = true
			}
		}
		for _, rec := range state.ActiveOutputs {
			for _, consumer := range c.ModuleInput[rec.Locale.Hash()] {
				edges[consumer] = true
			}
		}
		c.ModuleEdges[name] = edges
	}

	return c
}

// Order is Phase 2: a topological ordering of the connected sub-graph,
// re-sorted among ready candidates to maximize runs on the same device.
//
// A module's in-degree counts its active inputs, except an input whose
// producer is the module itself (an in-place module reading and writing the
// same pin), which is not a dependency.
//
// The ready set starts with every in-degree-0 module. Each outer iteration
// scans the ready set for a module whose device matches lastDevice; if none
// matches, lastDevice resets to None and the loop retries the same ready
// set. Because lastDevice == None matches the *first* candidate scanned
// (the "if lastDevice == None { adopt it }" rule), the very next scan after
// a reset is guaranteed to pick a module — so the loop can reset at most
// once per module removed from the ready set and always terminates in a
// bounded number of scans (spec §9 Open Question 1).
func Order(valid map[string]*model.ComputeModuleState, caches *Caches, logger *slog.Logger) ([]string, error) {
	inDegree := make(map[string]int, len(valid))
	ready := make(map[string]bool)
	for _, name := range sortedNames(valid) {
		state := valid[name]
		for _, rec := range state.ActiveInputs {
			if producer, ok := caches.ModuleOutput[rec.Locale.Hash()]; ok && producer == name {
				continue
			}
			inDegree[name]++
		}
		if inDegree[name] == 0 {
			ready[name] = true
		}
	}

	lastDevice := model.DeviceNone
	var order []string

	for len(ready) > 0 {
		picked := pickReady(valid, ready, lastDevice)
		if picked == "" {
			// No ready module matches lastDevice; reset and rescan. The
			// very next scan is guaranteed to match (None matches
			// anything), so this branch executes at most once in a row.
			lastDevice = model.DeviceNone
			logger.Debug("device affinity reset, rescanning ready set")
			continue
		}

		lastDevice = valid[picked].Device
		delete(ready, picked)
		order = append(order, picked)

		for _, rec := range valid[picked].ActiveOutputs {
			for _, consumer := range caches.ModuleInput[rec.Locale.Hash()] {
				if consumer == picked {
					continue
				}
				inDegree[consumer]--
				if inDegree[consumer] == 0 {
					ready[consumer] = true
				}
			}
		}
	}

	if len(order) != len(valid) {
		var stuck []string
		for name, deg := range inDegree {
			if deg > 0 {
				stuck = append(stuck, name)
			}
		}
		sort.Strings(stuck)
		return nil, model.NewCycleError(stuck)
	}

	return order, nil
}

// pickReady scans the ready set (in deterministic sorted order) for a
// module whose device equals lastDevice. If lastDevice is DeviceNone, the
// first candidate (by sorted name) is adopted. Returns "" if nothing in
// ready matches a non-None lastDevice.
func pickReady(valid map[string]*model.ComputeModuleState, ready map[string]bool, lastDevice model.Device) string {
	names := make([]string, 0, len(ready))
	for name := range ready {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		device := valid[name].Device
		if lastDevice == model.DeviceNone || device == lastDevice {
			return name
		}
	}
	return ""
}
