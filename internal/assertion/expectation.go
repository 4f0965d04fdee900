// Package assertion evaluates declarative expectations against an HTTP
// response and reports a result for every expectation.
package assertion

import (
	"fmt"
	"regexp"

	"github.com/wondertwin-ai/apicheck/internal/store"
)

// Expectation is one declarative check. Exactly one subject (Status,
// Header, Path or BodyContains) is set; Header and Path take exactly one
// operator (Equals, Contains, Size or NotNull).
//
//	- status: 200
//	- header: Content-Type
//	  contains: application/json
//	- path: photoUrls
//	  size: 0
//	- path: id
//	  not_null: true
type Expectation struct {
	Status       *int   `yaml:"status,omitempty" json:"status,omitempty"`
	Header       string `yaml:"header,omitempty" json:"header,omitempty"`
	Path         string `yaml:"path,omitempty" json:"path,omitempty"`
	BodyContains string `yaml:"body_contains,omitempty" json:"body_contains,omitempty"`

	Equals   any  `yaml:"equals,omitempty" json:"equals,omitempty"`
	Contains any  `yaml:"contains,omitempty" json:"contains,omitempty"`
	Size     *int `yaml:"size,omitempty" json:"size,omitempty"`
	NotNull  bool `yaml:"not_null,omitempty" json:"not_null,omitempty"`
}

// StatusEquals is shorthand for a status expectation.
func StatusEquals(code int) Expectation {
	return Expectation{Status: &code}
}

// HeaderEquals is shorthand for a header equality expectation.
func HeaderEquals(name, value string) Expectation {
	return Expectation{Header: name, Equals: value}
}

// HeaderContains is shorthand for a header substring expectation.
func HeaderContains(name, substr string) Expectation {
	return Expectation{Header: name, Contains: substr}
}

// PathEquals is shorthand for a JSON path equality expectation.
func PathEquals(path string, value any) Expectation {
	return Expectation{Path: path, Equals: value}
}

// PathSize is shorthand for a JSON path collection size expectation.
func PathSize(path string, n int) Expectation {
	return Expectation{Path: path, Size: &n}
}

// PathNotNull is shorthand for a JSON path presence expectation.
func PathNotNull(path string) Expectation {
	return Expectation{Path: path, NotNull: true}
}

// PathContains is shorthand for a JSON path contains expectation.
func PathContains(path string, value any) Expectation {
	return Expectation{Path: path, Contains: value}
}

// Validate reports malformed expectations.
func (e Expectation) Validate() error {
	subjects := 0
	if e.Status != nil {
		subjects++
	}
	if e.Header != "" {
		subjects++
	}
	if e.Path != "" {
		subjects++
	}
	if e.BodyContains != "" {
		subjects++
	}
	if subjects != 1 {
		return fmt.Errorf("expectation must set exactly one of status, header, path or body_contains")
	}

	ops := 0
	if e.Equals != nil {
		ops++
	}
	if e.Contains != nil {
		ops++
	}
	if e.Size != nil {
		ops++
	}
	if e.NotNull {
		ops++
	}

	switch {
	case e.Status != nil, e.BodyContains != "":
		if ops != 0 {
			return fmt.Errorf("status and body_contains expectations take no operator")
		}
	case e.Header != "":
		if ops != 1 || (e.Equals == nil && e.Contains == nil) {
			return fmt.Errorf("header %q: exactly one of equals or contains is required", e.Header)
		}
	case e.Path != "":
		if ops != 1 {
			return fmt.Errorf("path %q: exactly one of equals, contains, size or not_null is required", e.Path)
		}
		if e.Size != nil && *e.Size < 0 {
			return fmt.Errorf("path %q: size must not be negative", e.Path)
		}
	}
	return nil
}

// Description is the human-readable form used in results.
func (e Expectation) Description() string {
	switch {
	case e.Status != nil:
		return fmt.Sprintf("status equals %d", *e.Status)
	case e.BodyContains != "":
		return fmt.Sprintf("body contains %q", e.BodyContains)
	case e.Header != "":
		return fmt.Sprintf("header %s %s", e.Header, e.operator())
	case e.Path != "":
		return fmt.Sprintf("path %s %s", e.Path, e.operator())
	default:
		return "invalid expectation"
	}
}

func (e Expectation) operator() string {
	switch {
	case e.Size != nil:
		return fmt.Sprintf("has size %d", *e.Size)
	case e.NotNull:
		return "is not null"
	case e.Contains != nil:
		return fmt.Sprintf("contains %s", store.Stringify(e.Contains))
	default:
		return fmt.Sprintf("equals %s", store.Stringify(e.Equals))
	}
}

var soloPlaceholder = regexp.MustCompile(`^\{([A-Za-z_][A-Za-z0-9_.\-]*)\}$`)

// Resolve expands {key} placeholders in the expectation's string operands.
// An operand that is exactly one placeholder for a key held in s takes the
// stored typed value, so {orderId} compares as a number against a numeric
// body field.
func (e Expectation) Resolve(s *store.Store, extra ...store.Lookup) (Expectation, error) {
	var lookups []store.Lookup
	if s != nil {
		lookups = append(lookups, s)
	}
	lookups = append(lookups, extra...)

	var err error
	if e.BodyContains != "" {
		if e.BodyContains, err = store.Expand(e.BodyContains, lookups...); err != nil {
			return e, err
		}
	}
	if e.Equals, err = resolveOperand(e.Equals, s, lookups); err != nil {
		return e, err
	}
	if e.Contains, err = resolveOperand(e.Contains, s, lookups); err != nil {
		return e, err
	}
	return e, nil
}

func resolveOperand(v any, s *store.Store, lookups []store.Lookup) (any, error) {
	str, ok := v.(string)
	if !ok {
		return v, nil
	}
	if m := soloPlaceholder.FindStringSubmatch(str); m != nil && s != nil && s.Has(m[1]) {
		return s.Get(m[1])
	}
	return store.Expand(str, lookups...)
}
