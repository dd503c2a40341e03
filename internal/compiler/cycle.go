package compiler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/stagehand/internal/ir"
)

// CycleWarning represents a potential cycle in manager ordering hints.
//
// Cycles are warnings, not errors, because hints only apply between rules
// that enter in the same dispatch cycle: two rules whose hints contradict
// may never be picked together. When they are, dispatch fails with an
// ordering cycle error.
type CycleWarning struct {
	Path    []string `json:"path"`    // Cycle path: ["action", "display", "action"]
	Message string   `json:"message"` // Human-readable description
	Level   string   `json:"level"`   // "warning"
}

// AnalyzeOrdering performs static cycle analysis on run_before/run_after
// hints.
//
// The algorithm:
//  1. Build a manager -> must-run-before graph from every declaration,
//     nested ones included ("a run_after b" is the edge b -> a)
//  2. Use Tarjan's algorithm to find strongly connected components
//  3. Report each SCC with more than one manager as a potential cycle
//
// Hints naming a manager's own name or an unknown manager are ignored here;
// Validate reports the unknown ones. A DAG returns an empty list.
func AnalyzeOrdering(cfg *ir.Config) []CycleWarning {
	graph := buildOrderingGraph(cfg)

	var warnings []CycleWarning
	for _, scc := range tarjanSCC(graph) {
		if len(scc) > 1 {
			warnings = append(warnings, cycleSCCToWarning(scc, graph))
		}
	}
	slices.SortFunc(warnings, func(a, b CycleWarning) int {
		return strings.Compare(a.Path[0], b.Path[0])
	})
	if warnings == nil {
		return []CycleWarning{}
	}
	return warnings
}

// orderingGraph maps manager name -> managers it must run before.
type orderingGraph map[string][]string

func buildOrderingGraph(cfg *ir.Config) orderingGraph {
	graph := make(orderingGraph)
	for _, mc := range cfg.Managers {
		graph[mc.ManagerName()] = nil
	}

	addEdge := func(from, to string) {
		if from == to {
			return
		}
		if _, ok := graph[to]; !ok {
			return
		}
		if _, ok := graph[from]; !ok {
			return
		}
		if !slices.Contains(graph[from], to) {
			graph[from] = append(graph[from], to)
		}
	}

	var walk func(name string, decls []ir.Declaration)
	walk = func(name string, decls []ir.Declaration) {
		for _, d := range decls {
			for _, target := range d.Then.RunBefore {
				addEdge(name, target)
			}
			for _, target := range d.Then.RunAfter {
				addEdge(target, name)
			}
			walk(name, d.Nested)
		}
	}
	for _, mc := range cfg.Managers {
		walk(mc.ManagerName(), mc.Declarations)
	}

	for name := range graph {
		slices.Sort(graph[name])
	}
	return graph
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Nodes are visited in sorted order so results are deterministic.
func tarjanSCC(graph orderingGraph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// Root node: pop the stack and create an SCC
		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			slices.Sort(scc)
			sccs = append(sccs, scc)
		}
	}

	nodes := make([]string, 0, len(graph))
	for node := range graph {
		nodes = append(nodes, node)
	}
	slices.Sort(nodes)
	for _, node := range nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}

	return sccs
}

// cycleSCCToWarning converts an SCC to a CycleWarning, walking edges from
// the SCC's first member until the path returns to it.
func cycleSCCToWarning(scc []string, graph orderingGraph) CycleWarning {
	members := make(map[string]bool, len(scc))
	for _, node := range scc {
		members[node] = true
	}

	start := scc[0]
	current := start
	path := []string{current}
	visited := make(map[string]bool)

	for {
		visited[current] = true

		var next string
		for _, neighbor := range graph[current] {
			if members[neighbor] && (!visited[neighbor] || neighbor == start) {
				next = neighbor
				break
			}
		}
		if next == "" {
			break
		}

		path = append(path, next)
		if next == start {
			break
		}
		current = next
	}

	return CycleWarning{
		Path:    path,
		Message: fmt.Sprintf("contradicting ordering hints: %s", strings.Join(path, " -> ")),
		Level:   "warning",
	}
}
