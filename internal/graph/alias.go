package graph

import (
	"log/slog"
	"sort"

	"github.com/me/gowe/internal/policy"
	"github.com/me/gowe/pkg/model"
)

// ValidateAliasing is Phase 5: for each module, compute the intersection of
// its active-input and active-output hashes (its in-place set). Then, for
// every (record hash, locale hash) pin whose consumer list has more than
// one module, if that record hash is also in the in-place set and an
// in-place module appears among its consumers, report the conflict to pol.
func ValidateAliasing(order []string, valid map[string]*model.ComputeModuleState, pol policy.ConflictPolicy, logger *slog.Logger) error {
	inplaceByHash := make(map[uint64]map[string]bool)
	for _, name := range order {
		state := valid[name]

		inputs := make(map[uint64]bool)
		for _, rec := range state.ActiveInputs {
			inputs[rec.Hash] = true
		}
		outputs := make(map[uint64]bool)
		for _, rec := range state.ActiveOutputs {
			outputs[rec.Hash] = true
		}

		for hash := range inputs {
			if outputs[hash] {
				if inplaceByHash[hash] == nil {
					inplaceByHash[hash] = make(map[string]bool)
				}
				inplaceByHash[hash][name] = true
			}
		}
	}

	// consumers[(hash, localeHash)] = modules reading that exact pin.
	type pinKey struct {
		hash       uint64
		localeHash uint64
	}
	consumers := make(map[pinKey][]string)
	for _, name := range order {
		for _, rec := range valid[name].ActiveInputs {
			key := pinKey{hash: rec.Hash, localeHash: rec.Locale.Hash()}
			consumers[key] = append(consumers[key], name)
		}
	}

	// Deterministic iteration over the map of conflicts found.
	var keys []pinKey
	for k, mods := range consumers {
		if len(mods) > 1 {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].hash != keys[j].hash {
			return keys[i].hash < keys[j].hash
		}
		return keys[i].localeHash < keys[j].localeHash
	})
	logger.Debug("in-place aliasing scan", "branched_pins", len(keys), "inplace_hashes", len(inplaceByHash))

	for _, key := range keys {
		inplaceModules := inplaceByHash[key.hash]
		if len(inplaceModules) == 0 {
			continue
		}

		var overlap []string
		for _, m := range consumers[key] {
			if inplaceModules[m] {
				overlap = append(overlap, m)
			}
		}
		if len(overlap) == 0 {
			continue
		}

		if err := pol.Decide(policy.Conflict{Hash: key.hash, Modules: consumers[key]}); err != nil {
			return err
		}
	}

	return nil
}
