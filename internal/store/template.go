package store

import (
	"regexp"
	"strings"
)

// Lookup resolves a placeholder key to its replacement text.
type Lookup interface {
	Lookup(key string) (string, bool)
}

// LookupFunc adapts a function to the Lookup interface.
type LookupFunc func(key string) (string, bool)

// Lookup calls f(key).
func (f LookupFunc) Lookup(key string) (string, bool) {
	return f(key)
}

// placeholder matches {key} and {namespace.key}. Keys must start with a
// letter or underscore, so JSON object braces such as {"id": 1} never match.
var placeholder = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_.\-]*)\}`)

// Expand replaces every {key} in tmpl with the first lookup that resolves
// it. It fails closed: the first unresolved key aborts expansion with a
// *MissingContextError and nothing is returned.
func Expand(tmpl string, lookups ...Lookup) (string, error) {
	if !strings.Contains(tmpl, "{") {
		return tmpl, nil
	}

	var missing string
	out := placeholder.ReplaceAllStringFunc(tmpl, func(match string) string {
		if missing != "" {
			return match
		}
		key := match[1 : len(match)-1]
		for _, l := range lookups {
			if l == nil {
				continue
			}
			if v, ok := l.Lookup(key); ok {
				return v
			}
		}
		missing = key
		return match
	})

	if missing != "" {
		return "", &MissingContextError{Key: missing}
	}
	return out, nil
}

// Keys returns the placeholder keys referenced by tmpl, in order of first use.
func Keys(tmpl string) []string {
	var keys []string
	seen := make(map[string]bool)
	for _, m := range placeholder.FindAllStringSubmatch(tmpl, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			keys = append(keys, m[1])
		}
	}
	return keys
}
