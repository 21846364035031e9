// Package dag implements the GraphSpec adjacency representation and its
// validator: cycle detection, head/tail uniqueness, dangling-reference and
// cross-level checks. It is pure data plus structural validation — it knows
// nothing about job executors, tasks, or execution.
package dag

// NodeSpec is the adjacency entry for a single node: the set of node names
// it fans out to.
type NodeSpec struct {
	Next []string
}

// Spec is a GraphSpec: a map from node name to its NodeSpec. Keys must be
// unique (guaranteed by Go's map type), every name in every Next list must
// resolve to a key, there must be no self-loops and no cycles, at least one
// key must be absent from every Next list (a head; jobgraph.Build
// synthesizes a single entry point when there are several), and exactly one
// key must have an empty Next list (the tail).
type Spec struct {
	Nodes map[string]NodeSpec

	// Subgraphs holds optional attributed nodes containing their own inner
	// graph. References inside a subgraph may not cross into the parent
	// level or into sibling subgraphs; see Validate's cross-level pass.
	Subgraphs map[string]*Spec
}

// New creates an empty Spec ready for AddNode calls.
func New() *Spec {
	return &Spec{Nodes: make(map[string]NodeSpec)}
}

// AddNode registers a node with the given outgoing edges. Calling AddNode
// twice for the same name overwrites its edge list; callers that want
// duplicate-name detection should check Nodes first.
func (s *Spec) AddNode(name string, next ...string) {
	s.Nodes[name] = NodeSpec{Next: append([]string(nil), next...)}
}

// Heads returns every node name that appears as no other node's successor,
// in unspecified order.
func (s *Spec) Heads() []string {
	hasIncoming := make(map[string]bool, len(s.Nodes))
	for _, node := range s.Nodes {
		for _, next := range node.Next {
			hasIncoming[next] = true
		}
	}
	heads := make([]string, 0, len(s.Nodes))
	for name := range s.Nodes {
		if !hasIncoming[name] {
			heads = append(heads, name)
		}
	}
	return heads
}

// Tails returns every node name with an empty outgoing edge list, in
// unspecified order.
func (s *Spec) Tails() []string {
	tails := make([]string, 0, 1)
	for name, node := range s.Nodes {
		if len(node.Next) == 0 {
			tails = append(tails, name)
		}
	}
	return tails
}

// Predecessors computes, for every node, the set of node names with an edge
// into it.
func (s *Spec) Predecessors() map[string]map[string]struct{} {
	preds := make(map[string]map[string]struct{}, len(s.Nodes))
	for name := range s.Nodes {
		preds[name] = make(map[string]struct{})
	}
	for name, node := range s.Nodes {
		for _, next := range node.Next {
			if preds[next] == nil {
				preds[next] = make(map[string]struct{})
			}
			preds[next][name] = struct{}{}
		}
	}
	return preds
}
