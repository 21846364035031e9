// Package jobgraph wires a validated dag.Spec and its job.Spec table into a
// fully-linked job.Job graph: fully-qualified names, predecessor-derived
// ExpectedInputs, and a synthesized passthrough head when the spec has more
// than one head.
package jobgraph

import (
	"context"
	"fmt"
	"sort"

	"github.com/flowkit/dagflow/dag"
	"github.com/flowkit/dagflow/job"
)

// defaultHeadShortName is the short name assigned to the synthesized
// passthrough head jobgraph.Build inserts when a spec has more than one
// head, so every Graph has exactly one entry point.
const defaultHeadShortName = "__default_head__"

// Graph is a fully-wired, ready-to-execute job graph: a single entry point
// plus a lookup table from fully-qualified name to *job.Job.
type Graph struct {
	// Name is the graph's base name, as passed to Build.
	Name string

	// Variant distinguishes alternate wirings of the same graph name.
	Variant string

	// Head is the graph's single entry point. If the source spec had more
	// than one head, Head is a synthesized passthrough job fanning out to
	// all of them.
	Head *job.Job

	// byName looks up any job in the graph by its fully-qualified name.
	byName map[string]*job.Job
}

// Lookup returns the job registered under the given fully-qualified name,
// or (nil, false) if no such job exists in this graph.
func (g *Graph) Lookup(fqName string) (*job.Job, bool) {
	j, ok := g.byName[fqName]
	return j, ok
}

// Jobs returns every job in the graph, in unspecified order.
func (g *Graph) Jobs() []*job.Job {
	jobs := make([]*job.Job, 0, len(g.byName))
	for _, j := range g.byName {
		jobs = append(jobs, j)
	}
	return jobs
}

// Build validates spec, assigns fully-qualified names to every job.Spec in
// specs via job.CreateFQName, computes each job's ExpectedInputs from
// spec.Predecessors, and links NextJobs. If spec has more than one head, a
// passthrough job is synthesized as the single Head, fanning out to every
// original head.
//
// specs must contain exactly one entry per key in spec.Nodes; Build returns
// an error if any short name is missing a corresponding spec.
func Build(spec *dag.Spec, specs map[string]*job.Spec, graphName, variant string) (*Graph, error) {
	if err := dag.Validate(spec); err != nil {
		return nil, fmt.Errorf("jobgraph: %w", err)
	}

	for shortName := range spec.Nodes {
		if _, ok := specs[shortName]; !ok {
			return nil, fmt.Errorf("jobgraph: no job.Spec registered for node %q", shortName)
		}
	}

	preds := spec.Predecessors()

	jobs := make(map[string]*job.Job, len(spec.Nodes))
	fqByShort := make(map[string]string, len(spec.Nodes))
	for shortName := range spec.Nodes {
		fqName := job.CreateFQName(graphName, variant, shortName)
		fqByShort[shortName] = fqName
		jobs[fqName] = &job.Job{
			Name:           fqName,
			Spec:           specs[shortName],
			ExpectedInputs: make(map[string]struct{}, len(preds[shortName])),
		}
	}

	for shortName, predSet := range preds {
		j := jobs[fqByShort[shortName]]
		for predShort := range predSet {
			j.ExpectedInputs[fqByShort[predShort]] = struct{}{}
		}
	}

	for shortName, nodeSpec := range spec.Nodes {
		j := jobs[fqByShort[shortName]]
		for _, nextShort := range nodeSpec.Next {
			j.NextJobs = append(j.NextJobs, jobs[fqByShort[nextShort]])
		}
	}

	heads := spec.Heads()
	sort.Strings(heads)

	graph := &Graph{Name: graphName, Variant: variant, byName: jobs}

	switch len(heads) {
	case 0:
		return nil, fmt.Errorf("jobgraph: spec %q/%q has no head, dag.Validate should have rejected this", graphName, variant)
	case 1:
		graph.Head = jobs[fqByShort[heads[0]]]
	default:
		head, err := synthesizeHead(graphName, variant, heads, fqByShort, jobs)
		if err != nil {
			return nil, err
		}
		graph.Head = head
		jobs[head.Name] = head
	}

	return graph, nil
}

// synthesizeHead builds a single passthrough entry point fanning out to
// every original head, so a multi-head spec still has exactly one
// activation root.
func synthesizeHead(graphName, variant string, heads []string, fqByShort map[string]string, jobs map[string]*job.Job) (*job.Job, error) {
	fqName := job.CreateFQName(graphName, variant, defaultHeadShortName)

	next := make([]*job.Job, 0, len(heads))
	for _, h := range heads {
		next = append(next, jobs[fqByShort[h]])
	}

	passthrough := job.ExecutorFunc(func(ctx context.Context, inputs map[string]any) (any, error) {
		return inputs, nil
	})

	return &job.Job{
		Name: fqName,
		Spec: &job.Spec{
			ShortName: defaultHeadShortName,
			Executor:  passthrough,
		},
		ExpectedInputs: make(map[string]struct{}),
		NextJobs:       next,
	}, nil
}
