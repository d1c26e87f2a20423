package scheduler

import (
	"sort"

	"github.com/terminal-coder/tc/internal/domain"
)

// DetectCycle runs a Kahn's-algorithm topological sort over the task
// dependency graph and, if the graph is not a DAG, returns an error naming
// every task the sort could not order (the tasks on a cycle and any task
// downstream of one). The repository calls this before replace_plan commits
// so that "a plan with a dependency cycle persists nothing" (spec §8 item 4).
func DetectCycle(tasks []domain.Task, deps []domain.TaskDependency) error {
	inDegree := make(map[string]int, len(tasks))
	downstream := make(map[string][]string)
	known := make(map[string]bool, len(tasks))

	for _, t := range tasks {
		inDegree[t.ID] = 0
		known[t.ID] = true
	}
	for _, d := range deps {
		if !known[d.TaskID] || !known[d.DependsOnID] {
			return domain.Validationf("dependency references unknown task: %s depends on %s", d.TaskID, d.DependsOnID)
		}
		downstream[d.DependsOnID] = append(downstream[d.DependsOnID], d.TaskID)
		inDegree[d.TaskID]++
	}

	var queue []string
	for id, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}
	// Deterministic order so error messages (and test expectations) are
	// stable across runs.
	sort.Strings(queue)

	visited := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++
		next := append([]string(nil), downstream[id]...)
		sort.Strings(next)
		for _, n := range next {
			inDegree[n]--
			if inDegree[n] == 0 {
				queue = append(queue, n)
				sort.Strings(queue)
			}
		}
	}

	if visited != len(tasks) {
		var stuck []string
		for id, deg := range inDegree {
			if deg > 0 {
				stuck = append(stuck, id)
			}
		}
		sort.Strings(stuck)
		return domain.Validationf("dependency cycle detected involving task(s): %v", stuck)
	}
	return nil
}
