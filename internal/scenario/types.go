// Package scenario loads API scenarios, orders their steps by declared
// dependencies, and runs them against a Sender with a per-run context store.
package scenario

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/wondertwin-ai/apicheck/internal/assertion"
)

// Scenario is a complete workflow loaded from a YAML or JSON file.
type Scenario struct {
	Name        string         `yaml:"name" json:"name"`
	Description string         `yaml:"description,omitempty" json:"description,omitempty"`
	Target      string         `yaml:"target,omitempty" json:"target,omitempty"`
	Variables   map[string]any `yaml:"variables,omitempty" json:"variables,omitempty"`
	Steps       []Step         `yaml:"steps" json:"steps"`

	// Path is the file the scenario was loaded from, if any.
	Path string `yaml:"-" json:"-"`
}

// Step is a single request/assert/extract unit.
type Step struct {
	Name      string                  `yaml:"name" json:"name"`
	DependsOn Deps                    `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`
	Request   Request                 `yaml:"request" json:"request"`
	Assert    []assertion.Expectation `yaml:"assert,omitempty" json:"assert,omitempty"`

	// Extract maps context keys to JSON paths read from the response body.
	Extract map[string]string `yaml:"extract,omitempty" json:"extract,omitempty"`
}

// Request is the request template of a step. URL, header values and string
// body leaves may contain {key} placeholders. A URL starting with "/" is
// resolved against the scenario's target.
type Request struct {
	Method  string            `yaml:"method" json:"method"`
	URL     string            `yaml:"url" json:"url"`
	Headers map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	Body    any               `yaml:"body,omitempty" json:"body,omitempty"`
}

// Deps lists the steps a step depends on. It decodes from either a single
// name or a list of names.
type Deps []string

// UnmarshalYAML accepts a scalar or a sequence.
func (d *Deps) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var s string
		if err := value.Decode(&s); err != nil {
			return err
		}
		if s != "" {
			*d = Deps{s}
		}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := value.Decode(&list); err != nil {
			return err
		}
		*d = list
		return nil
	default:
		return fmt.Errorf("depends_on must be a step name or a list of step names")
	}
}

// UnmarshalJSON accepts a string or an array of strings.
func (d *Deps) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s != "" {
			*d = Deps{s}
		}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("depends_on must be a step name or a list of step names")
	}
	*d = list
	return nil
}
