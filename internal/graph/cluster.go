package graph

import (
	"log/slog"

	"github.com/me/gowe/pkg/model"
)

// Cluster is Phase 3: weakly-connected components over ModuleEdges, found
// via a depth-first stack walk (matching the original's explicit
// std::stack walk rather than recursion, to avoid stack-depth surprises on
// large pipelines). Assigns each module's ClusterID in place.
func Cluster(valid map[string]*model.ComputeModuleState, caches *Caches, logger *slog.Logger) {
	visited := make(map[string]bool, len(valid))
	var clusterCount uint64

	for _, name := range sortedNames(valid) {
		if visited[name] {
			continue
		}

		stack := []string{name}
		for len(stack) > 0 {
			current := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			for neighbor := range caches.ModuleEdges[current] {
				if !visited[neighbor] {
					stack = append(stack, neighbor)
				}
			}

			if !visited[current] {
				visited[current] = true
				valid[current].ClusterID = clusterCount
			}
		}

		clusterCount++
	}

	logger.Debug("cluster assignment complete", "clusters", clusterCount)
}
