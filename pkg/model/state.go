package model

// ComputeModuleState is the per-module bookkeeping record on the compute
// side: the module's declared device, its full input/output maps, the
// subsets surviving pruning ("active"), and its cluster assignment.
type ComputeModuleState struct {
	Name string // Locale.ModuleName(), used as the map key everywhere.

	Module Compute
	Device Device

	InputMap  RecordMap
	OutputMap RecordMap

	// ActiveInputs/ActiveOutputs are the subsets of InputMap/OutputMap kept
	// after Phase 1 pruning (invariant 2: a record is "connected" iff its
	// hash is shared by >= 2 ports across the whole graph).
	ActiveInputs  RecordMap
	ActiveOutputs RecordMap

	// ClusterID is this module's weakly-connected-component id, assigned
	// in Phase 3. Every valid module belongs to exactly one cluster
	// (invariant 5).
	ClusterID uint64
}

// Stale reports whether this module has no active ports at all (invariant
// 3) — such modules are excluded from execution entirely.
func (s *ComputeModuleState) Stale() bool {
	return len(s.ActiveInputs) == 0 && len(s.ActiveOutputs) == 0
}

// PresentModuleState is the per-module bookkeeping record on the present
// side. Present modules never exchange data through the scheduler, so they
// carry no active/pruned distinction — their iteration order is simply
// insertion order (spec §4.B, present loop step 5).
type PresentModuleState struct {
	Name string

	Module    Present
	InputMap  RecordMap
	OutputMap RecordMap
}
