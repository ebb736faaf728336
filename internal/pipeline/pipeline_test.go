package pipeline

import (
	"io"
	"log/slog"
	"testing"

	"github.com/me/gowe/internal/executor"
	"github.com/me/gowe/internal/policy"
	"github.com/me/gowe/internal/scheduler"
	"github.com/me/gowe/pkg/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubModule struct{}

func (stubModule) ComputeReady() model.Result                 { return model.Success }
func (stubModule) Compute(model.RuntimeMetadata) model.Result { return model.Success }

func stubFactory(map[string]any) (model.Compute, model.Present, error) {
	return stubModule{}, nil, nil
}

const sampleYAML = `
modules:
  - block: source
    sub: "0"
    device: CPU
    kind: stub
    outputs:
      out:
        wire: s0
        dataType: f32
  - block: sink
    sub: "0"
    device: CPU
    kind: stub
    inputs:
      in:
        wire: s0
        dataType: f32
`

func TestLoadParsesModules(t *testing.T) {
	doc, err := Load([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(doc.Modules) != 2 {
		t.Fatalf("expected 2 modules, got %d", len(doc.Modules))
	}
	if doc.Modules[0].Outputs["out"].Wire != "s0" {
		t.Errorf("expected output wire s0, got %q", doc.Modules[0].Outputs["out"].Wire)
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	if _, err := Load([]byte("not: [valid")); err == nil {
		t.Fatal("expected an error for malformed YAML")
	}
}

func TestValidateCatchesUnknownDeviceAndKind(t *testing.T) {
	doc, err := Load([]byte(`
modules:
  - block: a
    sub: "0"
    device: Quantum
    kind: missing
    outputs:
      out: {wire: w1}
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	reg := NewRegistry(testLogger())

	errs := Validate(doc, reg)
	if len(errs) < 2 {
		t.Fatalf("expected at least 2 validation errors, got %d: %v", len(errs), errs)
	}
}

func TestValidateCatchesDuplicateWireProducers(t *testing.T) {
	doc, err := Load([]byte(`
modules:
  - block: a
    sub: "0"
    device: CPU
    kind: stub
    outputs:
      out: {wire: shared}
  - block: b
    sub: "0"
    device: CPU
    kind: stub
    outputs:
      out: {wire: shared}
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	reg := NewRegistry(testLogger())
	reg.Register("stub", stubFactory)

	errs := Validate(doc, reg)
	found := false
	for _, e := range errs {
		if e != nil {
			found = true
		}
	}
	if !found || len(errs) == 0 {
		t.Fatal("expected a duplicate-producer error for the shared wire")
	}
}

func TestBuildRegistersModulesWithScheduler(t *testing.T) {
	doc, err := Load([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	reg := NewRegistry(testLogger())
	reg.Register("stub", stubFactory)

	execReg := executor.NewRegistry(testLogger())
	execReg.Register(model.DeviceCPU, executor.NewSyncGraph)

	sched := scheduler.New(execReg, policy.WarnOnly{Logger: testLogger()}, testLogger())

	if err := Build(doc, reg, sched, testLogger()); err != nil {
		t.Fatalf("Build: %v", err)
	}

	snap := sched.DrawDebug()
	if snap.ComputeCount != 2 {
		t.Fatalf("expected 2 valid compute modules after Build, got %d", snap.ComputeCount)
	}
}

func TestBuildFailsValidationBeforeTouchingScheduler(t *testing.T) {
	doc, err := Load([]byte(`
modules:
  - block: a
    sub: "0"
    device: Nonsense
    kind: stub
    outputs:
      out: {wire: w1}
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	reg := NewRegistry(testLogger())
	reg.Register("stub", stubFactory)

	execReg := executor.NewRegistry(testLogger())
	execReg.Register(model.DeviceCPU, executor.NewSyncGraph)
	sched := scheduler.New(execReg, policy.WarnOnly{Logger: testLogger()}, testLogger())

	if err := Build(doc, reg, sched, testLogger()); err == nil {
		t.Fatal("expected Build to fail validation for an unknown device")
	}
	if snap := sched.DrawDebug(); snap.ComputeCount != 0 {
		t.Fatalf("expected no modules registered after a validation failure, got %d", snap.ComputeCount)
	}
}
