package graph

import (
	"log/slog"

	"github.com/me/gowe/internal/policy"
	"github.com/me/gowe/pkg/model"
)

// Result holds everything a rebuild produces: the two phases' survivors,
// the linear order, and the device-affinity run split that the scheduler
// turns into actual Graph executors.
type Result struct {
	ValidCompute map[string]*model.ComputeModuleState
	ValidPresent map[string]*model.PresentModuleState

	ExecutionOrder       []string
	DeviceExecutionOrder []DeviceRun
}

// Rebuild runs the five phases in strict order: Prune, Order (+cache
// build), Cluster, Split, ValidateAliasing. On failure at any phase the
// caller gets the error and no partial Result — the scheduler is
// responsible for leaving itself empty-but-consistent (§7: "previous
// pipeline state is not restored").
func Rebuild(
	compute map[string]*model.ComputeModuleState,
	present map[string]*model.PresentModuleState,
	pol policy.ConflictPolicy,
	logger *slog.Logger,
) (*Result, error) {
	validCompute, validPresent := Prune(compute, present, logger)

	caches := BuildCaches(validCompute)

	order, err := Order(validCompute, caches, logger)
	if err != nil {
		return nil, err
	}

	Cluster(validCompute, caches, logger)

	runs := Split(order, validCompute, logger)

	if err := ValidateAliasing(order, validCompute, pol, logger); err != nil {
		return nil, err
	}

	return &Result{
		ValidCompute:         validCompute,
		ValidPresent:         validPresent,
		ExecutionOrder:       order,
		DeviceExecutionOrder: runs,
	}, nil
}
