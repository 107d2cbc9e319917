package ontology

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrCycle marks a hierarchy branch that loops back on itself. The branch
// is never committed; the error carries the offending edge chain.
var ErrCycle = errors.New("ontology: hierarchy cycle")

// edge is one directed hierarchy link, child -> parent.
type edge struct {
	Child  string
	Parent string
	Type   string
}

// CycleError reports every cycle found in the structural hierarchy along
// with the full node set touched by cycles, so callers can exclude the
// affected branches from the commit.
type CycleError struct {
	Chains [][]string
}

func (e *CycleError) Error() string {
	chains := make([]string, 0, len(e.Chains))
	for _, c := range e.Chains {
		chains = append(chains, strings.Join(c, " -> "))
	}
	return fmt.Sprintf("%v: %d cycle(s): %s", ErrCycle, len(e.Chains), strings.Join(chains, "; "))
}

func (e *CycleError) Unwrap() error { return ErrCycle }

// Nodes returns every term participating in a detected cycle.
func (e *CycleError) Nodes() map[string]struct{} {
	nodes := map[string]struct{}{}
	for _, chain := range e.Chains {
		for _, n := range chain {
			nodes[n] = struct{}{}
		}
	}
	return nodes
}

const (
	colorWhite = iota
	colorGrey
	colorBlack
)

// detectCycles walks the structural (IS_A / PART_OF) subgraph with an
// iterative depth-first search. Grey nodes are on the current path; an edge
// into a grey node is a back-edge and yields the chain from that node back
// to itself.
func detectCycles(edges []edge) *CycleError {
	adj := map[string][]string{}
	nodes := map[string]struct{}{}
	for _, e := range edges {
		if !structural(e.Type) {
			continue
		}
		adj[e.Child] = append(adj[e.Child], e.Parent)
		nodes[e.Child] = struct{}{}
		nodes[e.Parent] = struct{}{}
	}

	roots := make([]string, 0, len(nodes))
	for n := range nodes {
		roots = append(roots, n)
	}
	sort.Strings(roots)

	color := make(map[string]int, len(nodes))
	var chains [][]string

	type frame struct {
		node string
		next int
	}

	for _, root := range roots {
		if color[root] != colorWhite {
			continue
		}
		stack := []frame{{node: root}}
		color[root] = colorGrey
		path := []string{root}

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			targets := adj[top.node]
			if top.next < len(targets) {
				next := targets[top.next]
				top.next++
				switch color[next] {
				case colorGrey:
					chains = append(chains, extractChain(path, next))
				case colorWhite:
					color[next] = colorGrey
					stack = append(stack, frame{node: next})
					path = append(path, next)
				}
				continue
			}
			color[top.node] = colorBlack
			stack = stack[:len(stack)-1]
			path = path[:len(path)-1]
		}
	}

	if len(chains) == 0 {
		return nil
	}
	return &CycleError{Chains: chains}
}

// extractChain slices the DFS path from the re-entered node to the top and
// closes the loop.
func extractChain(path []string, reentered string) []string {
	for i, n := range path {
		if n == reentered {
			chain := make([]string, 0, len(path)-i+1)
			chain = append(chain, path[i:]...)
			chain = append(chain, reentered)
			return chain
		}
	}
	return []string{reentered, reentered}
}

// structural reports whether a relationship type participates in the
// acyclicity requirement. Regulatory edges may legitimately form loops.
func structural(relType string) bool {
	return relType == "IS_A" || relType == "PART_OF"
}
