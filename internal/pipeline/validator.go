package pipeline

import (
	"fmt"

	"github.com/me/gowe/pkg/model"
)

// Validate checks semantic correctness of a pipeline Document before any
// module is registered with a scheduler: unknown devices, unknown kinds,
// duplicate module names, and wires with more than one producer (an
// ambiguous wiring the scheduler's own cycle/cluster detection would not
// catch, since it has no concept of "too many producers", only "is there
// a cycle"). Returns every error found, not just the first.
func Validate(doc *Document, registry *Registry) []error {
	var errs []error

	seen := make(map[string]bool)
	producers := make(map[string]int)

	for _, m := range doc.Modules {
		name := m.Block + ":" + m.Sub
		if seen[name] {
			errs = append(errs, fmt.Errorf("duplicate module %q", name))
		}
		seen[name] = true

		if _, ok := model.ParseDevice(m.Device); !ok {
			errs = append(errs, fmt.Errorf("module %q: unknown device %q", name, m.Device))
		}

		if _, ok := registry.factories[m.Kind]; !ok {
			errs = append(errs, fmt.Errorf("module %q: unknown kind %q", name, m.Kind))
		}

		if !m.Present && len(m.Inputs) == 0 && len(m.Outputs) == 0 {
			errs = append(errs, fmt.Errorf("module %q: compute module declares no ports", name))
		}

		for _, wire := range m.Outputs {
			producers[wire.Wire]++
		}
	}

	for wire, count := range producers {
		if count > 1 {
			errs = append(errs, fmt.Errorf("wire %q has %d producers, want at most 1", wire, count))
		}
	}

	return errs
}
