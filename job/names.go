package job

import (
	"fmt"
	"strings"
)

// separator joins the three components of a fully-qualified job name. A
// well-formed FQ name always ends with it, so splitting on it yields exactly
// four parts with the last one empty.
const separator = "$$"

// CreateFQName builds a fully-qualified job name from its three components.
// An empty variant is permitted and yields "graph$$$$short$$".
func CreateFQName(graphName, variant, shortName string) string {
	return graphName + separator + variant + separator + shortName + separator
}

// ParseFQName splits a fully-qualified name back into its graph name,
// variant, and short name. It is the inverse of CreateFQName on any
// well-formed name: ParseFQName(CreateFQName(g, v, s)) == (g, v, s, nil).
func ParseFQName(fqName string) (graphName, variant, shortName string, err error) {
	parts := strings.Split(fqName, separator)
	if len(parts) != 4 || parts[3] != "" {
		return "", "", "", fmt.Errorf("job: malformed fully-qualified name %q: want exactly 4 %q-separated parts with a trailing empty part", fqName, separator)
	}
	return parts[0], parts[1], parts[2], nil
}

// GraphID builds the identifier FlowManager uses to route tasks to a
// registered graph: the same grammar as a job FQ name with an empty short
// name, so a GraphID parses cleanly with ParseFQName.
func GraphID(graphName, variant string) string {
	return CreateFQName(graphName, variant, "")
}
