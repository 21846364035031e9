package dag

import (
	"errors"
	"fmt"
	"sort"
)

// Category classifies a single validation violation.
type Category string

const (
	CategoryDanglingRef         Category = "dangling_reference"
	CategoryCycle               Category = "cycle"
	CategoryNoHead              Category = "no_head"
	CategoryNoTail              Category = "no_tail"
	CategoryMultipleTails       Category = "multiple_tails"
	CategoryCrossLevelReference Category = "cross_level_reference"
)

// Violation is a single structural defect found by Validate.
type Violation struct {
	Category Category
	Message  string
	// Path carries the offending node sequence for CategoryCycle violations.
	Path []string
}

func (v *Violation) Error() string {
	return v.Message
}

// ValidationError aggregates every Violation found in a single Validate
// pass. Validate is all-or-nothing: callers receive every violation at
// once, never a partial result.
type ValidationError struct {
	Violations []*Violation
}

func (e *ValidationError) Error() string {
	return errors.Join(violationsToErrors(e.Violations)...).Error()
}

// Unwrap exposes the individual violations to errors.Is/errors.As via
// errors.Join semantics.
func (e *ValidationError) Unwrap() []error {
	return violationsToErrors(e.Violations)
}

func violationsToErrors(violations []*Violation) []error {
	errs := make([]error, len(violations))
	for i, v := range violations {
		errs[i] = v
	}
	return errs
}

// Validate checks spec for structural well-formedness: every Next
// reference resolves to an existing key (CategoryDanglingRef), the graph is
// acyclic (CategoryCycle, with the offending path), there is at least one
// head (CategoryNoHead — a spec may have several; jobgraph.Build
// synthesizes a single passthrough entry point for those) and exactly one
// tail (CategoryNoTail / CategoryMultipleTails), since a task yields a
// single result. Subgraphs are validated recursively with an additional
// cross-level reference check.
//
// Validate returns nil only if the spec has zero violations; otherwise it
// returns a *ValidationError listing every violation found.
func Validate(spec *Spec) error {
	var violations []*Violation

	violations = append(violations, danglingRefs(spec)...)
	if cyclePath := findCycle(spec); cyclePath != nil {
		violations = append(violations, &Violation{
			Category: CategoryCycle,
			Message:  fmt.Sprintf("cycle detected: %v", cyclePath),
			Path:     cyclePath,
		})
	}
	violations = append(violations, headTailViolations(spec)...)
	violations = append(violations, crossLevelViolations(spec, spec.Nodes)...)

	for subName, sub := range spec.Subgraphs {
		if err := Validate(sub); err != nil {
			var subErr *ValidationError
			if errors.As(err, &subErr) {
				for _, v := range subErr.Violations {
					violations = append(violations, &Violation{
						Category: v.Category,
						Message:  fmt.Sprintf("subgraph %q: %s", subName, v.Message),
						Path:     v.Path,
					})
				}
			}
		}
	}

	if len(violations) == 0 {
		return nil
	}
	return &ValidationError{Violations: violations}
}

func danglingRefs(spec *Spec) []*Violation {
	var violations []*Violation
	names := make([]string, 0, len(spec.Nodes))
	for name := range spec.Nodes {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		for _, next := range spec.Nodes[name].Next {
			if _, ok := spec.Nodes[next]; !ok {
				violations = append(violations, &Violation{
					Category: CategoryDanglingRef,
					Message:  fmt.Sprintf("node %q references non-existent node %q", name, next),
				})
			}
		}
	}
	return violations
}

// findCycle runs an iterative DFS with an explicit on-stack set, returning
// the offending node path if a cycle exists, or nil if the graph is
// acyclic. Self-loops are reported as a two-element path [name, name].
func findCycle(spec *Spec) []string {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(spec.Nodes))

	names := make([]string, 0, len(spec.Nodes))
	for name := range spec.Nodes {
		names = append(names, name)
	}
	sort.Strings(names)

	type frame struct {
		name    string
		nextIdx int
	}

	for _, start := range names {
		if state[start] != unvisited {
			continue
		}

		stack := []frame{{name: start}}
		state[start] = visiting

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			node, exists := spec.Nodes[top.name]
			if !exists || top.nextIdx >= len(node.Next) {
				state[top.name] = done
				stack = stack[:len(stack)-1]
				continue
			}

			neighbor := node.Next[top.nextIdx]
			top.nextIdx++

			switch state[neighbor] {
			case unvisited:
				state[neighbor] = visiting
				stack = append(stack, frame{name: neighbor})
			case visiting:
				path := make([]string, 0, len(stack)+1)
				start := 0
				for i, f := range stack {
					if f.name == neighbor {
						start = i
						break
					}
				}
				for _, f := range stack[start:] {
					path = append(path, f.name)
				}
				path = append(path, neighbor)
				return path
			case done:
				// already fully explored, no cycle through here
			}
		}
	}
	return nil
}

func headTailViolations(spec *Spec) []*Violation {
	var violations []*Violation

	if len(spec.Heads()) == 0 {
		violations = append(violations, &Violation{Category: CategoryNoHead, Message: "graph has no head: every node has an incoming edge"})
	}

	tails := spec.Tails()
	sort.Strings(tails)
	switch len(tails) {
	case 0:
		violations = append(violations, &Violation{Category: CategoryNoTail, Message: "graph has no tail: every node has an outgoing edge"})
	case 1:
		// well-formed
	default:
		violations = append(violations, &Violation{Category: CategoryMultipleTails, Message: fmt.Sprintf("graph has multiple tails: %v", tails)})
	}

	return violations
}

// crossLevelViolations flags edges that target a subgraph name directly,
// as if the subgraph were a flat node in its parent's adjacency list. A
// subgraph is an attributed container, not a node: edges must terminate on
// one of spec.Nodes, never on a spec.Subgraphs key.
func crossLevelViolations(spec *Spec, levelNodes map[string]NodeSpec) []*Violation {
	if len(spec.Subgraphs) == 0 {
		return nil
	}
	var violations []*Violation
	names := make([]string, 0, len(levelNodes))
	for name := range levelNodes {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		for _, next := range levelNodes[name].Next {
			if _, isSubgraph := spec.Subgraphs[next]; isSubgraph {
				violations = append(violations, &Violation{
					Category: CategoryCrossLevelReference,
					Message:  fmt.Sprintf("node %q references subgraph %q directly: subgraphs cannot appear as edge targets", name, next),
				})
			}
		}
	}
	return violations
}
