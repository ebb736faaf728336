package graph

import (
	"log/slog"

	"github.com/me/gowe/pkg/model"
)

// DeviceRun is one entry of the device-execution order: a contiguous run of
// module names sharing one device and one cluster.
type DeviceRun struct {
	Device  model.Device
	Modules []string
}

// Split is Phase 4: walk the execution order, starting a new DeviceRun
// whenever the device or the cluster id changes from the previous module.
func Split(order []string, valid map[string]*model.ComputeModuleState, logger *slog.Logger) []DeviceRun {
	var runs []DeviceRun

	var lastDevice model.Device = model.DeviceNone
	var lastCluster uint64
	haveLast := false

	for _, name := range order {
		state := valid[name]

		newRun := !haveLast || state.Device != lastDevice || state.ClusterID != lastCluster
		if newRun {
			runs = append(runs, DeviceRun{Device: state.Device})
		}

		runs[len(runs)-1].Modules = append(runs[len(runs)-1].Modules, name)

		lastDevice = state.Device
		lastCluster = state.ClusterID
		haveLast = true
	}

	for i, r := range runs {
		logger.Debug("device execution run", "index", i, "device", r.Device, "modules", r.Modules)
	}

	return runs
}
