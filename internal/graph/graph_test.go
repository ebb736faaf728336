package graph

import (
	"io"
	"log/slog"
	"testing"

	"github.com/me/gowe/internal/policy"
	"github.com/me/gowe/pkg/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeModule struct{}

func (fakeModule) ComputeReady() model.Result                 { return model.Success }
func (fakeModule) Compute(model.RuntimeMetadata) model.Result { return model.Success }

// wire builds a ComputeModuleState with a single input pin and single
// output pin. The scheduler derives dependency edges from a port's own
// Locale (see BuildCaches / the original's arrangeDependencyOrder), so a
// wired connection is identified by sharing one Locale (and Hash) between
// the producer's output record and every consumer's input record — exactly
// how the original's wiring macros bind a consumer's input to the exact
// locale of the output it was wired to. inWire/outWire of "" mean "no port
// on this side".
func wire(name string, device model.Device, inWire, outWire string) *model.ComputeModuleState {
	s := &model.ComputeModuleState{
		Name:      name,
		Module:    fakeModule{},
		Device:    device,
		InputMap:  model.RecordMap{},
		OutputMap: model.RecordMap{},
	}
	if inWire != "" {
		s.InputMap["in"] = model.Record{Hash: localeHash(inWire), Locale: wireLocale(inWire)}
	}
	if outWire != "" {
		s.OutputMap["out"] = model.Record{Hash: localeHash(outWire), Locale: wireLocale(outWire)}
	}
	return s
}

// wireLocale/localeHash give every named wire a single stable Locale and
// content hash shared by both ends of the connection.
func wireLocale(wireName string) model.Locale {
	return model.Locale{BlockID: "wire", SubID: wireName, PinID: "pin"}
}

func localeHash(wireName string) uint64 {
	return wireLocale(wireName).Hash()
}

func rebuild(t *testing.T, compute map[string]*model.ComputeModuleState) (*Result, error) {
	t.Helper()
	present := map[string]*model.PresentModuleState{}
	return Rebuild(compute, present, policy.WarnOnly{Logger: testLogger()}, testLogger())
}

// S1 - Linear chain: A(CPU)->B(CPU)->C(CPU).
func TestScenarioLinearChain(t *testing.T) {
	compute := map[string]*model.ComputeModuleState{
		"A:0": wire("A:0", model.DeviceCPU, "", "ab"),
		"B:0": wire("B:0", model.DeviceCPU, "ab", "bc"),
		"C:0": wire("C:0", model.DeviceCPU, "bc", ""),
	}

	result, err := rebuild(t, compute)
	if err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}

	if got, want := result.ExecutionOrder, []string{"A:0", "B:0", "C:0"}; !equalSlices(got, want) {
		t.Fatalf("execution order = %v, want %v", got, want)
	}
	if len(result.DeviceExecutionOrder) != 1 {
		t.Fatalf("expected one executor, got %d", len(result.DeviceExecutionOrder))
	}
	run := result.DeviceExecutionOrder[0]
	if run.Device != model.DeviceCPU || !equalSlices(run.Modules, []string{"A:0", "B:0", "C:0"}) {
		t.Fatalf("unexpected executor run: %+v", run)
	}
	if result.ValidCompute["A:0"].ClusterID != result.ValidCompute["C:0"].ClusterID {
		t.Error("expected all three modules in a single cluster")
	}
}

// S2 - Device boundary: A(CPU)->B(CUDA)->C(CPU).
func TestScenarioDeviceBoundary(t *testing.T) {
	compute := map[string]*model.ComputeModuleState{
		"A:0": wire("A:0", model.DeviceCPU, "", "ab"),
		"B:0": wire("B:0", model.DeviceCUDA, "ab", "bc"),
		"C:0": wire("C:0", model.DeviceCPU, "bc", ""),
	}

	result, err := rebuild(t, compute)
	if err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}

	if len(result.DeviceExecutionOrder) != 3 {
		t.Fatalf("expected three executors, got %d: %+v", len(result.DeviceExecutionOrder), result.DeviceExecutionOrder)
	}
	wantDevices := []model.Device{model.DeviceCPU, model.DeviceCUDA, model.DeviceCPU}
	for i, run := range result.DeviceExecutionOrder {
		if run.Device != wantDevices[i] {
			t.Errorf("executor %d device = %s, want %s", i, run.Device, wantDevices[i])
		}
	}

	firstOut := result.DeviceExecutionOrder[0]
	secondIn := result.DeviceExecutionOrder[1]
	abHash := localeHash("ab")
	if !containsHash(firstOut.Modules, result.ValidCompute, abHash, false) {
		t.Error("expected A's executor to carry the ab wire as an active output")
	}
	_ = secondIn
}

func containsHash(names []string, valid map[string]*model.ComputeModuleState, hash uint64, input bool) bool {
	for _, name := range names {
		state := valid[name]
		recs := state.ActiveOutputs
		if input {
			recs = state.ActiveInputs
		}
		for _, rec := range recs {
			if rec.Hash == hash {
				return true
			}
		}
	}
	return false
}

// S3 - Independent sub-graphs: {A->B} and {X->Y}, both CPU, no shared hash.
func TestScenarioIndependentSubgraphs(t *testing.T) {
	compute := map[string]*model.ComputeModuleState{
		"A:0": wire("A:0", model.DeviceCPU, "", "ab"),
		"B:0": wire("B:0", model.DeviceCPU, "ab", ""),
		"X:0": wire("X:0", model.DeviceCPU, "", "xy"),
		"Y:0": wire("Y:0", model.DeviceCPU, "xy", ""),
	}

	result, err := rebuild(t, compute)
	if err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}

	clusters := map[uint64]bool{}
	for _, state := range result.ValidCompute {
		clusters[state.ClusterID] = true
	}
	if len(clusters) != 2 {
		t.Fatalf("expected 2 clusters, got %d", len(clusters))
	}
	if result.ValidCompute["A:0"].ClusterID == result.ValidCompute["X:0"].ClusterID {
		t.Error("A and X share no port and must be in different clusters")
	}
	if len(result.DeviceExecutionOrder) != 2 {
		t.Fatalf("expected two executors, got %d", len(result.DeviceExecutionOrder))
	}
}

// S4 - Cycle: A->B, B->A.
func TestScenarioCycle(t *testing.T) {
	compute := map[string]*model.ComputeModuleState{
		"A:0": wire("A:0", model.DeviceCPU, "ba", "ab"),
		"B:0": wire("B:0", model.DeviceCPU, "ab", "ba"),
	}

	_, err := rebuild(t, compute)
	if err == nil {
		t.Fatal("expected a cycle error")
	}
	schedErr, ok := err.(*model.SchedulerError)
	if !ok {
		t.Fatalf("expected *model.SchedulerError, got %T", err)
	}
	if schedErr.Kind != model.KindCycle {
		t.Errorf("expected KindCycle, got %s", schedErr.Kind)
	}
}

// S5 - In-place aliasing: module M has input/output sharing a hash, and
// another module N also consumes that hash (a branch).
func TestScenarioInplaceAliasing(t *testing.T) {
	m := wire("M:0", model.DeviceCPU, "branch", "branch") // in-place: same wire in and out
	n := wire("N:0", model.DeviceCPU, "branch", "")       // also consumes the branch wire

	compute := map[string]*model.ComputeModuleState{"M:0": m, "N:0": n}

	result, err := rebuild(t, compute)
	if err != nil {
		t.Fatalf("expected WarnOnly policy to let the rebuild succeed, got: %v", err)
	}
	if len(result.ValidCompute) != 2 {
		t.Fatalf("expected both modules to survive pruning, got %d", len(result.ValidCompute))
	}
}

func TestScenarioInplaceAliasingFatalPolicy(t *testing.T) {
	m := wire("M:0", model.DeviceCPU, "branch", "branch")
	n := wire("N:0", model.DeviceCPU, "branch", "")

	compute := map[string]*model.ComputeModuleState{"M:0": m, "N:0": n}
	present := map[string]*model.PresentModuleState{}

	_, err := Rebuild(compute, present, policy.AlwaysFatal{Logger: testLogger()}, testLogger())
	if err == nil {
		t.Fatal("expected AlwaysFatal policy to reject the in-place aliasing conflict")
	}
}

// S6 - Dynamic add: start with the S1 linear chain, add D(CPU) consuming C's output.
func TestScenarioDynamicAdd(t *testing.T) {
	compute := map[string]*model.ComputeModuleState{
		"A:0": wire("A:0", model.DeviceCPU, "", "ab"),
		"B:0": wire("B:0", model.DeviceCPU, "ab", "bc"),
		"C:0": wire("C:0", model.DeviceCPU, "bc", "cd"),
	}
	compute["D:0"] = wire("D:0", model.DeviceCPU, "cd", "")

	result, err := rebuild(t, compute)
	if err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}
	if len(result.DeviceExecutionOrder) != 1 {
		t.Fatalf("expected a single executor after the add, got %d", len(result.DeviceExecutionOrder))
	}
	if !equalSlices(result.DeviceExecutionOrder[0].Modules, []string{"A:0", "B:0", "C:0", "D:0"}) {
		t.Fatalf("unexpected run: %v", result.DeviceExecutionOrder[0].Modules)
	}
}

func TestPruneIsIdempotent(t *testing.T) {
	compute := map[string]*model.ComputeModuleState{
		"A:0": wire("A:0", model.DeviceCPU, "", "ab"),
		"B:0": wire("B:0", model.DeviceCPU, "ab", ""),
		"Z:0": wire("Z:0", model.DeviceCPU, "", "unconnected"), // nobody consumes this wire
	}
	present := map[string]*model.PresentModuleState{}

	valid1, _ := Prune(compute, present, testLogger())
	valid2, _ := Prune(compute, present, testLogger())

	if len(valid1) != len(valid2) {
		t.Fatalf("prune is not idempotent: %d vs %d valid modules", len(valid1), len(valid2))
	}
	if _, ok := valid1["Z:0"]; ok {
		t.Error("expected the unconnected module Z:0 to be pruned as stale")
	}
}

func TestPruneCountsPresentPorts(t *testing.T) {
	compute := map[string]*model.ComputeModuleState{
		"A:0": wire("A:0", model.DeviceCPU, "", "toRender"),
	}
	present := map[string]*model.PresentModuleState{
		"R:0": {
			Name:     "R:0",
			InputMap: model.RecordMap{"in": {Hash: localeHash("toRender"), Locale: wireLocale("toRender")}},
		},
	}

	valid, _ := Prune(compute, present, testLogger())
	if _, ok := valid["A:0"]; !ok {
		t.Fatal("expected A:0 to stay active because a present module consumes its only output")
	}
	if len(valid["A:0"].ActiveOutputs) != 1 {
		t.Error("expected A:0's output to be marked active")
	}
}

func equalSlices(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
