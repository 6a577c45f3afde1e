package store

import "fmt"

// ErrDependencyCycle is returned when a backend dependency graph contains a
// cycle; per the spec this is treated as a bug in backend declarations, not
// a recoverable condition.
type ErrDependencyCycle struct {
	Cycle []string
}

func (e *ErrDependencyCycle) Error() string {
	return fmt.Sprintf("dependency cycle detected: %v", e.Cycle)
}

// node is one scheduler unit: a TV plus the short names of backends it
// depends on (from Backend.GetDependencies()).
type node struct {
	tv           *TV
	dependsOn    []string // short names
	dependents   []*node
	remaining    int // count of unresolved dependencies still in this batch
}

// buildWaves groups tvs into topological waves: every TV in wave N depends
// only on TVs in waves < N (or on backends absent from this batch, which are
// assumed already installed). Two TVs with disjoint dependency closures may
// land in the same wave and install in parallel.
func buildWaves(tvs []*TV, dependsOn func(tv *TV) []string) ([][]*TV, error) {
	nodes := make(map[string]*node, len(tvs))
	for _, tv := range tvs {
		nodes[tv.BA.Short] = &node{tv: tv, dependsOn: dependsOn(tv)}
	}

	for _, n := range nodes {
		for _, dep := range n.dependsOn {
			if depNode, ok := nodes[dep]; ok {
				depNode.dependents = append(depNode.dependents, n)
				n.remaining++
			}
		}
	}

	var waves [][]*TV
	visited := make(map[string]bool, len(nodes))
	remaining := len(nodes)

	for remaining > 0 {
		var wave []*TV
		for short, n := range nodes {
			if !visited[short] && n.remaining == 0 {
				wave = append(wave, n.tv)
			}
		}
		if len(wave) == 0 {
			return nil, &ErrDependencyCycle{Cycle: unresolvedShorts(nodes, visited)}
		}
		for _, tv := range wave {
			n := nodes[tv.BA.Short]
			visited[tv.BA.Short] = true
			remaining--
			for _, dependent := range n.dependents {
				dependent.remaining--
			}
		}
		waves = append(waves, wave)
	}

	return waves, nil
}

func unresolvedShorts(nodes map[string]*node, visited map[string]bool) []string {
	var out []string
	for short := range nodes {
		if !visited[short] {
			out = append(out, short)
		}
	}
	return out
}
