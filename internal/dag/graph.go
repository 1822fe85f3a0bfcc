// Package dag computes topological waves over a set of models.Task nodes and
// checks them for cycles and same-wave file conflicts. It is lifted from the
// teacher's internal/executor dependency-graph code, generalized from
// plan-file task numbers to arbitrary DAG node ids and from worktree groups
// to declared file scopes.
package dag

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/harrison/corerun/internal/models"
)

// DefaultMaxConcurrency bounds how many tasks in one wave run at once when a
// task or config doesn't say otherwise.
const DefaultMaxConcurrency = 10

// Graph is the adjacency-list view of a task set: Edges maps a prerequisite
// node to the nodes that depend on it.
type Graph struct {
	Tasks    map[string]*models.Task
	Edges    map[string][]string
	InDegree map[string]int
}

// Validate checks that every task id is unique and every dependency points at
// a task that exists.
func Validate(tasks []models.Task) error {
	seen := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		if t.ID() == "" {
			return fmt.Errorf("dag: task has empty id")
		}
		if seen[t.ID()] {
			return fmt.Errorf("dag: duplicate task id %q", t.ID())
		}
		seen[t.ID()] = true
	}
	for _, t := range tasks {
		for _, dep := range t.DependsOn {
			if !seen[dep] {
				return fmt.Errorf("dag: task %s (%s) depends on unknown task %s", t.ID(), t.Name, dep)
			}
		}
	}
	return nil
}

// Build constructs the adjacency-list graph from a task slice.
func Build(tasks []models.Task) *Graph {
	g := &Graph{
		Tasks:    make(map[string]*models.Task),
		Edges:    make(map[string][]string),
		InDegree: make(map[string]int),
	}
	for i := range tasks {
		g.Tasks[tasks[i].ID()] = &tasks[i]
		g.InDegree[tasks[i].ID()] = 0
	}
	for _, t := range tasks {
		for _, dep := range t.DependsOn {
			if _, ok := g.Tasks[dep]; !ok {
				continue
			}
			g.Edges[dep] = append(g.Edges[dep], t.ID())
			g.InDegree[t.ID()]++
		}
	}
	return g
}

// HasCycle runs DFS with white/gray/black coloring to detect any circular
// dependency, including direct self-reference.
func (g *Graph) HasCycle() bool {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	colors := make(map[string]int, len(g.Tasks))
	for id := range g.Tasks {
		colors[id] = white
	}

	for id, t := range g.Tasks {
		for _, dep := range t.DependsOn {
			if dep == id {
				return true
			}
		}
	}

	var dfs func(string) bool
	dfs = func(node string) bool {
		colors[node] = gray
		for _, next := range g.Edges[node] {
			if colors[next] == gray {
				return true
			}
			if colors[next] == white && dfs(next) {
				return true
			}
		}
		colors[node] = black
		return false
	}

	for id := range g.Tasks {
		if colors[id] == white {
			if dfs(id) {
				return true
			}
		}
	}
	return false
}

// parseOrdinal extracts a leading integer from a task id so waves render in a
// stable, human-friendly order even when ids aren't plain integers (e.g.
// "task-07", "7b"). Unparseable ids sort last.
func parseOrdinal(id string) int {
	if n, err := strconv.Atoi(id); err == nil {
		return n
	}
	var digits strings.Builder
	for _, r := range id {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		} else if digits.Len() > 0 {
			break
		}
	}
	if digits.Len() > 0 {
		if n, err := strconv.Atoi(digits.String()); err == nil {
			return n
		}
	}
	return 1 << 30
}

// ValidateFileOverlaps rejects a wave assignment where two tasks in the same
// wave declare overlapping Files — the teacher's same-wave write-conflict
// check, generalized to run before any locks are taken so a bad plan fails
// fast instead of deadlocking a FileLockRegistry holder.
func ValidateFileOverlaps(waves []models.Wave, tasks map[string]*models.Task) error {
	for _, wave := range waves {
		owners := make(map[string]*models.Task)
		for _, id := range wave.TaskNumbers {
			task, ok := tasks[id]
			if !ok {
				return fmt.Errorf("dag: wave %q references unknown task %s", wave.Name, id)
			}
			for _, f := range task.Files {
				norm := filepath.Clean(f)
				if owner, exists := owners[norm]; exists {
					if owner.ID() == task.ID() {
						continue
					}
					return fmt.Errorf("dag: wave %q: file %q claimed by both %s and %s; move one to a later wave", wave.Name, norm, owner.ID(), task.ID())
				}
				owners[norm] = task
			}
		}
	}
	return nil
}

// CalculateWaves partitions tasks into sequential waves via Kahn's algorithm:
// wave 1 holds every task with no unresolved dependency, wave 2 holds tasks
// whose dependencies are all in wave 1, and so on.
func CalculateWaves(tasks []models.Task) ([]models.Wave, error) {
	if err := Validate(tasks); err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return []models.Wave{}, nil
	}

	g := Build(tasks)
	if g.HasCycle() {
		return nil, fmt.Errorf("dag: circular dependency detected")
	}

	inDegree := make(map[string]int, len(g.InDegree))
	for k, v := range g.InDegree {
		inDegree[k] = v
	}

	var waves []models.Wave
	for len(inDegree) > 0 {
		var current []string
		for id, deg := range inDegree {
			if deg == 0 {
				current = append(current, id)
			}
		}
		if len(current) == 0 {
			return nil, fmt.Errorf("dag: no task ready to run — dependency bookkeeping is inconsistent")
		}

		sort.Slice(current, func(i, j int) bool {
			return parseOrdinal(current[i]) < parseOrdinal(current[j])
		})

		waves = append(waves, models.Wave{
			Name:           fmt.Sprintf("Wave %d", len(waves)+1),
			TaskNumbers:    current,
			MaxConcurrency: DefaultMaxConcurrency,
		})

		for _, id := range current {
			delete(inDegree, id)
			for _, dependent := range g.Edges[id] {
				if _, ok := inDegree[dependent]; ok {
					inDegree[dependent]--
				}
			}
		}
	}

	taskMap := make(map[string]*models.Task, len(tasks))
	for i := range tasks {
		taskMap[tasks[i].ID()] = &tasks[i]
	}
	if err := ValidateFileOverlaps(waves, taskMap); err != nil {
		return nil, err
	}

	return waves, nil
}
