package dag

import (
	"reflect"
	"sort"
	"testing"
)

func TestSpec_HeadsAndTails(t *testing.T) {
	spec := New()
	spec.AddNode("a", "b", "c")
	spec.AddNode("b", "d")
	spec.AddNode("c", "d")
	spec.AddNode("d")

	heads := spec.Heads()
	if len(heads) != 1 || heads[0] != "a" {
		t.Errorf("Heads() = %v, want [a]", heads)
	}

	tails := spec.Tails()
	if len(tails) != 1 || tails[0] != "d" {
		t.Errorf("Tails() = %v, want [d]", tails)
	}
}

func TestSpec_Heads_Multiple(t *testing.T) {
	spec := New()
	spec.AddNode("a", "c")
	spec.AddNode("b", "c")
	spec.AddNode("c")

	heads := spec.Heads()
	sort.Strings(heads)
	if !reflect.DeepEqual(heads, []string{"a", "b"}) {
		t.Errorf("Heads() = %v, want [a b]", heads)
	}
}

func TestSpec_Predecessors(t *testing.T) {
	spec := New()
	spec.AddNode("a", "b", "c")
	spec.AddNode("b", "d")
	spec.AddNode("c", "d")
	spec.AddNode("d")

	preds := spec.Predecessors()

	if _, ok := preds["a"]["?"]; ok {
		t.Fatalf("unexpected key")
	}
	if len(preds["a"]) != 0 {
		t.Errorf("predecessors of a = %v, want empty", preds["a"])
	}
	want := map[string]struct{}{"b": {}, "c": {}}
	if !reflect.DeepEqual(preds["d"], want) {
		t.Errorf("predecessors of d = %v, want %v", preds["d"], want)
	}
}

func TestSpec_AddNode_CopiesNext(t *testing.T) {
	spec := New()
	next := []string{"b"}
	spec.AddNode("a", next...)
	next[0] = "mutated"

	if spec.Nodes["a"].Next[0] != "b" {
		t.Errorf("AddNode should copy its Next slice, got %v", spec.Nodes["a"].Next)
	}
}
