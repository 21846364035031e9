package job

import "testing"

func TestCreateFQName(t *testing.T) {
	got := CreateFQName("graph", "default", "short")
	want := "graph$$default$$short$$"
	if got != want {
		t.Errorf("CreateFQName() = %q, want %q", got, want)
	}
}

func TestParseFQName_RoundTrip(t *testing.T) {
	cases := []struct {
		graph, variant, short string
	}{
		{"graph", "default", "short"},
		{"my-graph", "v2", "node_1"},
		{"g", "", "s"},
	}

	for _, c := range cases {
		fq := CreateFQName(c.graph, c.variant, c.short)
		gotGraph, gotVariant, gotShort, err := ParseFQName(fq)
		if err != nil {
			t.Fatalf("ParseFQName(%q) returned error: %v", fq, err)
		}
		if gotGraph != c.graph || gotVariant != c.variant || gotShort != c.short {
			t.Errorf("ParseFQName(%q) = (%q, %q, %q), want (%q, %q, %q)",
				fq, gotGraph, gotVariant, gotShort, c.graph, c.variant, c.short)
		}
	}
}

func TestParseFQName_Malformed(t *testing.T) {
	cases := []string{
		"",
		"graph$$variant$$short",     // missing trailing separator
		"graph$$variant$$short$$x",  // trailing garbage after the last separator
		"graph$$short$$",            // too few parts
		"a$$b$$c$$d$$e$$",           // too many parts
	}

	for _, fq := range cases {
		if _, _, _, err := ParseFQName(fq); err == nil {
			t.Errorf("ParseFQName(%q) = nil error, want an error", fq)
		}
	}
}

func TestGraphID(t *testing.T) {
	id := GraphID("graph", "default")
	graph, variant, short, err := ParseFQName(id)
	if err != nil {
		t.Fatalf("ParseFQName(GraphID(...)) returned error: %v", err)
	}
	if graph != "graph" || variant != "default" || short != "" {
		t.Errorf("ParseFQName(GraphID(...)) = (%q, %q, %q), want (graph, default, \"\")", graph, variant, short)
	}
}
