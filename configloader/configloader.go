// Package configloader parses a YAML workflow document into a dag.Spec and
// the job properties needed to wire up its Executors. It defines the
// document shape and a Registry mapping job type names to constructors; it
// deliberately does not know how to construct any particular job — that is
// left to whatever Registry the caller supplies, per the package's
// interface-only contract with concrete job implementations.
package configloader

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flowkit/dagflow/dag"
	"github.com/flowkit/dagflow/job"
)

// NodeDocument is the YAML shape of a single graph node: its job type (used
// to look the constructor up in a Registry), the node names it fans out to,
// opaque properties passed to the constructor, and execution knobs.
type NodeDocument struct {
	Type       string         `yaml:"type"`
	Next       []string       `yaml:"next"`
	Properties map[string]any `yaml:"properties"`
	SaveResult bool           `yaml:"save_result"`
	TimeoutMS  int64          `yaml:"timeout_ms"`
}

// Document is the YAML shape of an entire graph definition: a graph name,
// an optional variant, and its nodes keyed by short name.
type Document struct {
	Name    string                  `yaml:"name"`
	Variant string                  `yaml:"variant"`
	Nodes   map[string]NodeDocument `yaml:"nodes"`
}

// JobConstructor builds a job.Executor from a node's opaque properties map.
// Concrete job implementations (LLM clients, RAG retrievers, file I/O, ...)
// register their constructors in a Registry; this package never imports
// them directly.
type JobConstructor func(properties map[string]any) (job.Executor, error)

// Registry maps a job type name, as it appears in a NodeDocument's Type
// field, to the constructor that builds its Executor.
type Registry map[string]JobConstructor

// LoadYAML parses raw YAML bytes into a Document.
func LoadYAML(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("configloader: parsing document: %w", err)
	}
	if doc.Name == "" {
		return nil, fmt.Errorf("configloader: document is missing a graph name")
	}
	return &doc, nil
}

// Build resolves every node's job type against reg and returns the
// resulting dag.Spec alongside the job.Spec table, ready for
// jobgraph.Build.
func (d *Document) Build(reg Registry) (*dag.Spec, map[string]*job.Spec, error) {
	spec := dag.New()
	specs := make(map[string]*job.Spec, len(d.Nodes))

	for shortName, nodeDoc := range d.Nodes {
		ctor, ok := reg[nodeDoc.Type]
		if !ok {
			return nil, nil, fmt.Errorf("configloader: node %q: unknown job type %q", shortName, nodeDoc.Type)
		}

		executor, err := ctor(nodeDoc.Properties)
		if err != nil {
			return nil, nil, fmt.Errorf("configloader: node %q: constructing job type %q: %w", shortName, nodeDoc.Type, err)
		}

		spec.AddNode(shortName, nodeDoc.Next...)
		specs[shortName] = &job.Spec{
			ShortName:  shortName,
			Executor:   executor,
			Properties: nodeDoc.Properties,
			SaveResult: nodeDoc.SaveResult,
			Timeout:    time.Duration(nodeDoc.TimeoutMS) * time.Millisecond,
		}
	}

	return spec, specs, nil
}
