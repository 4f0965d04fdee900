package scenario

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidGraph is wrapped by every dependency graph error.
var ErrInvalidGraph = errors.New("invalid step graph")

// Order returns step indexes in execution order: every step comes after
// all of its dependencies, and steps that are free to run keep their
// declaration order.
func Order(steps []Step) ([]int, error) {
	index := make(map[string]int, len(steps))
	for i, st := range steps {
		if _, dup := index[st.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate step name %q", ErrInvalidGraph, st.Name)
		}
		index[st.Name] = i
	}

	pending := make([]int, len(steps))
	dependents := make([][]int, len(steps))
	for i, st := range steps {
		seen := make(map[string]bool, len(st.DependsOn))
		for _, dep := range st.DependsOn {
			if dep == st.Name {
				return nil, fmt.Errorf("%w: step %q depends on itself", ErrInvalidGraph, st.Name)
			}
			j, ok := index[dep]
			if !ok {
				return nil, fmt.Errorf("%w: step %q depends on unknown step %q", ErrInvalidGraph, st.Name, dep)
			}
			if seen[dep] {
				continue
			}
			seen[dep] = true
			pending[i]++
			dependents[j] = append(dependents[j], i)
		}
	}

	order := make([]int, 0, len(steps))
	done := make([]bool, len(steps))
	for len(order) < len(steps) {
		next := -1
		for i := range steps {
			if !done[i] && pending[i] == 0 {
				next = i
				break
			}
		}
		if next < 0 {
			var stuck []string
			for i, st := range steps {
				if !done[i] {
					stuck = append(stuck, st.Name)
				}
			}
			return nil, fmt.Errorf("%w: dependency cycle among %s", ErrInvalidGraph, strings.Join(stuck, ", "))
		}
		done[next] = true
		order = append(order, next)
		for _, d := range dependents[next] {
			pending[d]--
		}
	}

	return order, nil
}

// Dependents returns the names of all steps that depend on name, directly
// or transitively, in declaration order.
func Dependents(steps []Step, name string) []string {
	affected := map[string]bool{name: true}
	changed := true
	for changed {
		changed = false
		for _, st := range steps {
			if affected[st.Name] {
				continue
			}
			for _, dep := range st.DependsOn {
				if affected[dep] {
					affected[st.Name] = true
					changed = true
					break
				}
			}
		}
	}

	var out []string
	for _, st := range steps {
		if st.Name != name && affected[st.Name] {
			out = append(out, st.Name)
		}
	}
	return out
}
