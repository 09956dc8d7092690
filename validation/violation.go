package validation

import (
	"sort"
	"strings"
)

// Violation is a single failed constraint.
type Violation struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (v Violation) String() string {
	if v.Path == "" {
		return v.Message
	}
	return v.Path + " " + v.Message
}

// Violations is the set of every constraint a value failed.
type Violations []Violation

// Strings renders each violation as "<path> <message>", sorted.
func (vs Violations) Strings() []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = v.String()
	}
	sort.Strings(out)
	return out
}

// Error implements error so a non-empty set can be returned directly.
func (vs Violations) Error() string {
	return strings.Join(vs.Strings(), "; ")
}

// Empty reports whether there are no violations.
func (vs Violations) Empty() bool { return len(vs) == 0 }

// Prefixed returns a copy with prefix prepended to every path.
func (vs Violations) Prefixed(prefix string) Violations {
	if prefix == "" {
		return vs
	}
	out := make(Violations, len(vs))
	for i, v := range vs {
		out[i] = v
		switch {
		case v.Path == "":
			out[i].Path = prefix
		case strings.HasPrefix(v.Path, "["):
			out[i].Path = prefix + v.Path
		default:
			out[i].Path = prefix + "." + v.Path
		}
	}
	return out
}
