package config

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// DefaultPrefix is the override key prefix used when none is configured.
const DefaultPrefix = "dw"

// Overrides maps prefixed dotted paths to replacement values.
type Overrides map[string]string

// Merge returns a new set holding o's entries replaced by other's.
func (o Overrides) Merge(other Overrides) Overrides {
	out := make(Overrides, len(o)+len(other))
	for k, v := range o {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// OverridesFromEnviron selects "KEY=value" entries whose key starts with
// prefix followed by a dot. The slice has the form of os.Environ().
func OverridesFromEnviron(environ []string, prefix string) Overrides {
	prefix = normalizePrefix(prefix)
	out := Overrides{}
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if ok && strings.HasPrefix(key, prefix) {
			out[key] = value
		}
	}
	return out
}

// OverridesFromDotEnv reads a .env file and keeps the prefixed entries.
func OverridesFromDotEnv(path, prefix string) (Overrides, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("read env file %s: %w", path, err)
	}
	prefix = normalizePrefix(prefix)
	out := Overrides{}
	for k, v := range values {
		if strings.HasPrefix(k, prefix) {
			out[k] = v
		}
	}
	return out, nil
}

// ParseOverrideFlags parses "key=value" pairs as given to -D flags.
func ParseOverrideFlags(pairs []string) (Overrides, error) {
	out := Overrides{}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid override %q: expected key=value", pair)
		}
		out[strings.TrimSpace(key)] = value
	}
	return out, nil
}

func normalizePrefix(prefix string) string {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if !strings.HasSuffix(prefix, ".") {
		prefix += "."
	}
	return prefix
}

var indexedSegment = regexp.MustCompile(`^(.+)\[(\d+)\]$`)

// ApplyOverrides merges the entries of overrides whose key starts with
// prefix into doc, in lexicographic key order.
//
// After the prefix is removed a key is split on unescaped dots ("\." is a
// literal dot). Missing intermediate objects are created. A segment of the
// form name[i] addresses element i of an existing array. A leaf that is
// currently an array is replaced by the comma-separated value ("\," is a
// literal comma). Two keys addressing the same leaf with different values,
// or one key addressing an ancestor of another, are rejected.
func ApplyOverrides(doc Document, prefix string, overrides Overrides) error {
	prefix = normalizePrefix(prefix)

	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	if err := checkConflicts(keys, prefix, overrides); err != nil {
		return err
	}
	for _, key := range keys {
		if err := applyOverride(doc, key, strings.TrimPrefix(key, prefix), overrides[key]); err != nil {
			return err
		}
	}
	return nil
}

// checkConflicts rejects overrides that would silently depend on ordering.
func checkConflicts(keys []string, prefix string, overrides Overrides) error {
	type entry struct {
		key    string
		tokens []string
	}
	entries := make([]entry, 0, len(keys))
	for _, k := range keys {
		entries = append(entries, entry{key: k, tokens: pathTokens(splitEscaped(strings.TrimPrefix(k, prefix), '.'))})
	}
	for i := 0; i < len(entries); i++ {
		for j := i + 1; j < len(entries); j++ {
			a, b := entries[i], entries[j]
			switch {
			case equalTokens(a.tokens, b.tokens):
				if overrides[a.key] != overrides[b.key] {
					return &OverrideError{Key: b.key, Reason: fmt.Sprintf("conflicting overrides: %s sets the same path", a.key)}
				}
			case hasTokenPrefix(a.tokens, b.tokens):
				return &OverrideError{Key: b.key, Reason: fmt.Sprintf("conflicting overrides: %s replaces a parent path", a.key)}
			case hasTokenPrefix(b.tokens, a.tokens):
				return &OverrideError{Key: a.key, Reason: fmt.Sprintf("conflicting overrides: %s replaces a parent path", b.key)}
			}
		}
	}
	return nil
}

// pathTokens expands name[i] segments into name and [i] tokens.
func pathTokens(parts []string) []string {
	tokens := make([]string, 0, len(parts))
	for _, p := range parts {
		if m := indexedSegment.FindStringSubmatch(p); m != nil {
			if i, err := strconv.Atoi(m[2]); err == nil {
				tokens = append(tokens, m[1], "["+strconv.Itoa(i)+"]")
				continue
			}
		}
		tokens = append(tokens, p)
	}
	return tokens
}

func equalTokens(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// hasTokenPrefix reports whether prefix is a strict ancestor of path.
func hasTokenPrefix(prefix, path []string) bool {
	if len(prefix) >= len(path) {
		return false
	}
	return equalTokens(prefix, path[:len(prefix)])
}

func applyOverride(doc Document, key, name, value string) error {
	parts := splitEscaped(name, '.')
	var node any = map[string]any(doc)

	for i, part := range parts {
		obj, ok := node.(map[string]any)
		if !ok {
			return &OverrideError{Key: key, Reason: "it's not a valid path."}
		}

		remaining := strings.Join(parts[i:], ".")
		if remaining != part {
			if existing, found := obj[remaining]; found && isValueNode(existing) {
				obj[remaining] = value
				return nil
			}
		}

		more := i < len(parts)-1

		if m := indexedSegment.FindStringSubmatch(part); m != nil {
			index, err := strconv.Atoi(m[2])
			if err != nil {
				return &OverrideError{Key: key, Reason: "index is not a number."}
			}
			child, found := obj[m[1]]
			if !found || child == nil {
				return &OverrideError{Key: key, Reason: "node with index not found."}
			}
			array, isArray := child.([]any)
			if !isArray {
				return &OverrideError{Key: key, Reason: "node with index is not an array."}
			}
			if index >= len(array) {
				return &OverrideError{Key: key, Reason: "index is greater than size of array."}
			}
			if !more {
				array[index] = value
				return nil
			}
			node = array[index]
			continue
		}

		if more {
			child, found := obj[part]
			if !found || child == nil {
				child = map[string]any{}
				obj[part] = child
			}
			if _, isArray := child.([]any); isArray {
				return &OverrideError{Key: key, Reason: "target is an array but no index specified"}
			}
			node = child
			continue
		}

		if _, isArray := obj[part].([]any); isArray {
			items := splitEscaped(value, ',')
			array := make([]any, len(items))
			for j, item := range items {
				array[j] = item
			}
			obj[part] = array
		} else {
			obj[part] = value
		}
	}
	return nil
}

func isValueNode(v any) bool {
	switch v.(type) {
	case map[string]any, []any:
		return false
	}
	return true
}

// splitEscaped splits s on sep unless it is preceded by a backslash, trims
// each part and removes the escaping backslashes.
func splitEscaped(s string, sep byte) []string {
	var parts []string
	var cur strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\\' && i+1 < len(s) && s[i+1] == sep {
			cur.WriteByte(sep)
			i++
			continue
		}
		if c == sep {
			parts = append(parts, strings.TrimSpace(cur.String()))
			cur.Reset()
			continue
		}
		cur.WriteByte(c)
	}
	return append(parts, strings.TrimSpace(cur.String()))
}
