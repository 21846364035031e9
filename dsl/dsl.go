// Package dsl provides the Serial/Parallel combinators and Leaf/Func/Typed wrappers used to
// describe a job graph as a tree, and the compiler that flattens that tree
// into a dag.Spec plus a table of job.Spec values keyed by short name.
//
// A DSL tree is built from Node values. Nodes are pointers, so the same
// *leaf may be referenced from more than one place in a tree and still
// compare equal to itself — identity that mirrors a job appearing more than
// once in a pipeline description while remaining "the same job".
package dsl

import (
	"context"
	"fmt"
	"time"

	"github.com/flowkit/dagflow/dag"
	"github.com/flowkit/dagflow/job"
)

// Node is any compilable DSL element: a leaf job, or a Serial/Parallel
// combinator over other Nodes.
type Node interface {
	isNode()
}

// leaf wraps a single job.Spec as a DSL node.
type leaf struct {
	spec *job.Spec
}

func (*leaf) isNode() {}

// serial is a DSL node chaining its children one after another: each
// child's tail set fans in/out to the next child's head set.
type serial struct {
	children []Node
}

func (*serial) isNode() {}

// parallel is a DSL node whose children run concurrently with no ordering
// between them; it is always embedded between a producer and a consumer
// that fan out to, and fan in from, every child.
type parallel struct {
	children []Node
}

func (*parallel) isNode() {}

// LeafOption configures a leaf node built via Leaf, Func, or Typed.
type LeafOption func(*job.Spec)

// WithSaveResult opts a leaf's result into the task's saved-results map.
func WithSaveResult() LeafOption {
	return func(s *job.Spec) { s.SaveResult = true }
}

// WithTimeout bounds how long this leaf's join wait may take.
func WithTimeout(d time.Duration) LeafOption {
	return func(s *job.Spec) { s.Timeout = d }
}

// WithProperties attaches opaque configuration passed through to the
// concrete job's executor.
func WithProperties(props map[string]any) LeafOption {
	return func(s *job.Spec) { s.Properties = props }
}

// Leaf wraps an existing Executor as a DSL node under the given short name.
func Leaf(shortName string, executor job.Executor, opts ...LeafOption) Node {
	spec := &job.Spec{ShortName: shortName, Executor: executor}
	for _, opt := range opts {
		opt(spec)
	}
	return &leaf{spec: spec}
}

// Func wraps a plain function as a DSL node, the job.ExecutorFunc shortcut
// for Leaf.
func Func(shortName string, fn job.ExecutorFunc, opts ...LeafOption) Node {
	return Leaf(shortName, fn, opts...)
}

// Typed wraps a strongly-typed function as a DSL node via job.Typed.
func Typed[P any, R any](shortName string, fn func(ctx context.Context, params P) (R, error), opts ...LeafOption) Node {
	return Leaf(shortName, job.Typed(fn), opts...)
}

// Serial chains nodes one after another: each node's result becomes visible
// to the next via the usual predecessor-result accumulation, and the next
// node does not activate until every predecessor in the preceding frontier
// has delivered.
func Serial(nodes ...Node) Node {
	return &serial{children: append([]Node(nil), nodes...)}
}

// Parallel fans out to every given node at once and fans back in to
// whatever follows: every branch's result is delivered to the downstream
// join, which activates once all of them have arrived.
func Parallel(nodes ...Node) Node {
	return &parallel{children: append([]Node(nil), nodes...)}
}

// compiler accumulates the flattened adjacency and job specs while walking
// a DSL tree.
type compiler struct {
	graphName string
	variant   string
	specs     map[string]*job.Spec
	edges     map[string][]string
	seen      map[string]int
	names     map[*job.Spec]string
}

// Compile flattens a DSL tree rooted at root into a dag.Spec describing its
// adjacency and a map from assigned short name to the job.Spec that name
// identifies. graphName and variant are not embedded in the short names
// Compile assigns here — jobgraph.Build applies the FQ-name grammar once
// the dag.Spec has been validated.
func Compile(root Node, graphName, variant string) (*dag.Spec, map[string]*job.Spec, error) {
	c := &compiler{
		graphName: graphName,
		variant:   variant,
		specs:     make(map[string]*job.Spec),
		edges:     make(map[string][]string),
		seen:      make(map[string]int),
		names:     make(map[*job.Spec]string),
	}

	if _, _, err := c.compile(root); err != nil {
		return nil, nil, err
	}

	spec := dag.New()
	for name := range c.specs {
		spec.AddNode(name, c.edges[name]...)
	}

	if err := dag.Validate(spec); err != nil {
		return nil, nil, fmt.Errorf("dsl: compiled graph %q/%q is invalid: %w", graphName, variant, err)
	}

	return spec, c.specs, nil
}

// compile walks n and returns the short names of its frontier heads (nodes
// with no predecessor inside this subtree) and tails (nodes with no
// successor inside this subtree).
func (c *compiler) compile(n Node) (heads, tails []string, err error) {
	switch v := n.(type) {
	case *leaf:
		name := c.assign(v.spec)
		if _, ok := c.edges[name]; !ok {
			c.edges[name] = nil
		}
		return []string{name}, []string{name}, nil

	case *serial:
		if len(v.children) == 0 {
			return nil, nil, fmt.Errorf("dsl: serial node has no children")
		}
		var firstHeads, prevTails []string
		for i, child := range v.children {
			childHeads, childTails, err := c.compile(child)
			if err != nil {
				return nil, nil, err
			}
			if i == 0 {
				firstHeads = childHeads
			} else {
				c.connect(prevTails, childHeads)
			}
			prevTails = childTails
		}
		return firstHeads, prevTails, nil

	case *parallel:
		if len(v.children) == 0 {
			return nil, nil, fmt.Errorf("dsl: parallel node has no children")
		}
		var heads, tails []string
		for _, child := range v.children {
			childHeads, childTails, err := c.compile(child)
			if err != nil {
				return nil, nil, err
			}
			heads = append(heads, childHeads...)
			tails = append(tails, childTails...)
		}
		// Branches that share a Node (the same job referenced twice) yield the
		// same name twice here; collapse before returning so the caller never
		// wires a duplicate edge to or from it.
		return dedup(heads), dedup(tails), nil

	default:
		return nil, nil, fmt.Errorf("dsl: unknown node type %T", n)
	}
}

// connect fans out every name in from to every name in to.
func (c *compiler) connect(from, to []string) {
	for _, f := range from {
		c.edges[f] = append(c.edges[f], to...)
	}
}

// dedup returns names with duplicates removed, preserving first-seen order.
func dedup(names []string) []string {
	if len(names) < 2 {
		return names
	}
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// assign returns the short name registered for spec, assigning one on first
// sight. The same *job.Spec pointer referenced from more than one place in
// the DSL tree (the shared-Node case) always resolves to the same name, so
// it compiles to a single graph node rather than a duplicate. Only a
// genuinely distinct *job.Spec collides on ShortName; those are disambiguated
// by suffixing "#2", "#3", ... while retaining the requested base name for
// the common, non-colliding case.
func (c *compiler) assign(spec *job.Spec) string {
	if name, ok := c.names[spec]; ok {
		return name
	}

	base := spec.ShortName
	if base == "" {
		base = "job"
	}

	count := c.seen[base]
	c.seen[base] = count + 1

	name := base
	if count > 0 {
		name = fmt.Sprintf("%s#%d", base, count+1)
	}

	c.specs[name] = spec
	c.names[spec] = name
	return name
}
