package graph

import (
	"testing"

	"github.com/me/gowe/pkg/model"
)

// TestOrderResetsDeviceAffinityAcrossIndependentReadyModules exercises the
// reset-to-None-then-rescan branch of Order's device-affinity loop (spec §9
// Open Question 1): two independent, indegree-0 modules on different
// devices are both ready at once, so after the first pick exhausts
// lastDevice's match, the loop must reset and immediately pick the other
// on the very next scan rather than spinning.
func TestOrderResetsDeviceAffinityAcrossIndependentReadyModules(t *testing.T) {
	compute := map[string]*model.ComputeModuleState{
		"A:0": wire("A:0", model.DeviceCPU, "", "ab"),
		"X:0": wire("X:0", model.DeviceCUDA, "", "xy"),
	}
	caches := BuildCaches(compute)

	order, err := Order(compute, caches, testLogger())
	if err != nil {
		t.Fatalf("Order failed: %v", err)
	}
	if !equalSlices(order, []string{"A:0", "X:0"}) {
		t.Fatalf("order = %v, want [A:0 X:0] (sorted-name tie-break after a device reset)", order)
	}
}

// TestOrderAlternatingDevicesAcrossManyIndependentRuns builds N independent
// single-module chains, each on a different device in round-robin, so every
// pick in the ready set forces a reset before the next pick matches. This
// pins down that the loop terminates in a bounded number of scans (at most
// one reset per module picked) rather than spinning when the ready set
// never contains two modules on the same device.
func TestOrderAlternatingDevicesAcrossManyIndependentRuns(t *testing.T) {
	devices := []model.Device{model.DeviceCPU, model.DeviceCUDA, model.DeviceMetal, model.DeviceVulkan}
	compute := map[string]*model.ComputeModuleState{}
	var want []string
	for i, d := range devices {
		name := []string{"M0:0", "M1:0", "M2:0", "M3:0"}[i]
		compute[name] = wire(name, d, "", name+"-out")
		want = append(want, name)
	}

	caches := BuildCaches(compute)
	order, err := Order(compute, caches, testLogger())
	if err != nil {
		t.Fatalf("Order failed: %v", err)
	}
	if len(order) != len(compute) {
		t.Fatalf("expected every module to be ordered, got %d of %d", len(order), len(compute))
	}
	if !equalSlices(order, want) {
		t.Fatalf("order = %v, want %v (sorted-name tie-break on every reset)", order, want)
	}
}

// TestOrderPicksMatchingDeviceBeforeResetting confirms the loop prefers a
// ready module that matches lastDevice over resetting to a different-device
// module.
func TestOrderPicksMatchingDeviceBeforeResetting(t *testing.T) {
	compute := map[string]*model.ComputeModuleState{
		"A:0": wire("A:0", model.DeviceCPU, "", "ab"),
		"B:0": wire("B:0", model.DeviceCPU, "ab", "bc"),
		"C:0": wire("C:0", model.DeviceCUDA, "", "cd"),
	}
	caches := BuildCaches(compute)

	order, err := Order(compute, caches, testLogger())
	if err != nil {
		t.Fatalf("Order failed: %v", err)
	}
	// Order reads ActiveInputs, which this test leaves unset (no Prune), so
	// all three modules are ready at the start. A:0 is picked first on the
	// initial None scan (sorted-name tie-break); B:0 then matches
	// lastDevice=CPU, so it is picked before a reset reaches C:0.
	if order[0] != "A:0" || order[1] != "B:0" {
		t.Fatalf("order = %v, want A:0 then B:0 before the device reset picks C:0", order)
	}
	if order[2] != "C:0" {
		t.Fatalf("order = %v, want C:0 last", order)
	}
}
