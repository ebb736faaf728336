package executor

import (
	"fmt"
	"log/slog"

	"github.com/me/gowe/pkg/model"
)

// Registry maps a Device to the Factory that builds its Graph executor.
// Registration happens at startup before concurrent access, so no mutex is
// needed — the same assumption the teacher's executor.Registry documents.
type Registry struct {
	factories map[model.Device]Factory
	logger    *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		factories: make(map[model.Device]Factory),
		logger:    logger.With("component", "executor-registry"),
	}
}

// Register installs the Factory for a Device, overwriting any previous one.
func (r *Registry) Register(device model.Device, factory Factory) {
	r.factories[device] = factory
	r.logger.Info("graph executor registered", "device", device)
}

// New builds a fresh Graph for device using its registered Factory.
func (r *Registry) New(device model.Device) (Graph, error) {
	factory, ok := r.factories[device]
	if !ok {
		return nil, fmt.Errorf("no graph executor registered for device %s", device)
	}
	return factory(device, r.logger), nil
}
