// Package pipeline loads a YAML pipeline description into scheduler
// registrations. It plays the role the teacher's internal/parser played
// for CWL documents (YAML in, typed domain objects out, then handed to a
// scheduler) but for module/tensor wiring instead of workflow steps: a
// WireSpec's Wire name is the shared physical connection between a
// producer's output pin and every consumer's input pin, mirroring how
// internal/graph derives dependency edges from a shared model.Locale.Hash.
package pipeline

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/me/gowe/internal/scheduler"
	"github.com/me/gowe/pkg/model"
)

// WireSpec names the wire a pin is connected to, plus the record metadata
// the scheduler carries along for logging/introspection only.
type WireSpec struct {
	Wire     string `yaml:"wire"`
	DataType string `yaml:"dataType"`
	Shape    []int  `yaml:"shape"`
}

// ModuleSpec is one module declaration in a pipeline document.
type ModuleSpec struct {
	Block   string              `yaml:"block"`
	Sub     string              `yaml:"sub"`
	Device  string              `yaml:"device"`
	Kind    string              `yaml:"kind"`
	Params  map[string]any      `yaml:"params"`
	Inputs  map[string]WireSpec `yaml:"inputs"`
	Outputs map[string]WireSpec `yaml:"outputs"`
	Present bool                `yaml:"present"`
}

// Document is a full pipeline description: an ordered list of modules.
// Order in the file has no scheduling significance — internal/graph
// derives the real execution order from wiring, not declaration order.
type Document struct {
	Modules []ModuleSpec `yaml:"modules"`
}

// Load parses a pipeline YAML document.
func Load(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("pipeline YAML parse error: %w", err)
	}
	return &doc, nil
}

// Factory builds the host-specific model.Compute/model.Present pair for a
// module kind, from its YAML params. Either return value may be nil: a
// compute-only module returns (c, nil); a present-only module returns
// (nil, p); a module with both capabilities returns both.
type Factory func(params map[string]any) (model.Compute, model.Present, error)

// Registry maps a module's "kind" string to the Factory that builds it,
// the pipeline-domain analogue of executor.Registry's Device->Factory map.
type Registry struct {
	factories map[string]Factory
	logger    *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{factories: make(map[string]Factory), logger: logger.With("component", "pipeline-registry")}
}

// Register installs the Factory for a module kind, overwriting any previous one.
func (r *Registry) Register(kind string, factory Factory) {
	r.factories[kind] = factory
	r.logger.Info("module kind registered", "kind", kind)
}

func (r *Registry) build(kind string, params map[string]any) (model.Compute, model.Present, error) {
	factory, ok := r.factories[kind]
	if !ok {
		return nil, nil, fmt.Errorf("no module factory registered for kind %q", kind)
	}
	return factory(params)
}

// Build validates doc, then registers every module it describes with sched
// in declaration order (AddModule's own rebuild handles real ordering).
// Returns the first registration error, leaving any already-added modules
// in place — callers that want all-or-nothing semantics should build
// against a fresh scheduler and discard it on error.
func Build(doc *Document, registry *Registry, sched *scheduler.Scheduler, logger *slog.Logger) error {
	if errs := Validate(doc, registry); len(errs) > 0 {
		return fmt.Errorf("pipeline validation failed: %w", errs[0])
	}

	for _, m := range doc.Modules {
		if m.Block == "" {
			m.Block = uuid.NewString()
		}

		compute, present, err := registry.build(m.Kind, m.Params)
		if err != nil {
			return fmt.Errorf("module %s:%s: %w", m.Block, m.Sub, err)
		}

		device, ok := model.ParseDevice(m.Device)
		if !ok {
			return fmt.Errorf("module %s:%s: unknown device %q", m.Block, m.Sub, m.Device)
		}

		inputMap := make(model.RecordMap, len(m.Inputs))
		for pin, wire := range m.Inputs {
			inputMap[pin] = wireRecord(wire, device)
		}
		outputMap := make(model.RecordMap, len(m.Outputs))
		for pin, wire := range m.Outputs {
			outputMap[pin] = wireRecord(wire, device)
		}

		locale := model.Locale{BlockID: m.Block, SubID: m.Sub, PinID: "module"}
		module := newPipelineModule(m.Kind, device, compute, present)
		if err := sched.AddModule(locale, module, inputMap, outputMap); err != nil {
			return fmt.Errorf("module %s:%s: %w", m.Block, m.Sub, err)
		}
		logger.Info("pipeline module added", "module", locale.ModuleName(), "kind", m.Kind, "device", device)
	}
	return nil
}

// pipelineModule is the model.Module projection every module a Factory
// builds gets wrapped in: just enough to satisfy Device()/Info() so
// AddModule's registration banner (spec §12) has something to call, since a
// Factory only ever hands back the bare model.Compute/model.Present pair.
type pipelineModule struct {
	kind   string
	device model.Device
}

func (m pipelineModule) Device() model.Device { return m.device }

func (m pipelineModule) Info(logger *slog.Logger) {
	logger.Info("pipeline module configured", "kind", m.kind, "device", m.device)
}

// computeCap/presentCap are local names for the capability interfaces.
// Embedding model.Compute directly would create a field named Compute that
// shadows the promoted Compute method (likewise for Present), and the
// adapter would then not satisfy the interface at all.
type computeCap = model.Compute
type presentCap = model.Present

// computeModule/presentModule/computePresentModule embed exactly the
// capability interfaces the Factory actually returned, so a type assertion
// against model.Compute/model.Present inside AddModule reflects the real
// capability set rather than a do-everything adapter that would claim both
// regardless of what the Factory built.
type computeModule struct {
	pipelineModule
	computeCap
}

type presentModule struct {
	pipelineModule
	presentCap
}

type computePresentModule struct {
	pipelineModule
	computeCap
	presentCap
}

// newPipelineModule builds the narrowest adapter that fits which of
// compute/present are non-nil.
func newPipelineModule(kind string, device model.Device, compute model.Compute, present model.Present) model.Module {
	base := pipelineModule{kind: kind, device: device}
	switch {
	case compute != nil && present != nil:
		return computePresentModule{pipelineModule: base, computeCap: compute, presentCap: present}
	case compute != nil:
		return computeModule{pipelineModule: base, computeCap: compute}
	case present != nil:
		return presentModule{pipelineModule: base, presentCap: present}
	default:
		return base
	}
}

// wireRecord builds the shared Record for a wire. Every pin across the
// whole document that names the same WireSpec.Wire gets an identical
// Locale (and therefore identical Locale.Hash()), which is how
// internal/graph recognizes the two pins as connected.
func wireRecord(wire WireSpec, device model.Device) model.Record {
	locale := model.Locale{BlockID: "wire", SubID: wire.Wire, PinID: "shared"}
	return model.Record{
		DataType: wire.DataType,
		Shape:    wire.Shape,
		Device:   device,
		Hash:     locale.Hash(),
		Locale:   locale,
	}
}
