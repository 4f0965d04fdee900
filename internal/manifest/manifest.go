// Package manifest parses apicheck.yaml project manifests.
package manifest

import (
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultFile is the manifest looked up in the working directory.
const DefaultFile = "apicheck.yaml"

// Target is a named service that scenarios send requests to.
type Target struct {
	BaseURL string            `yaml:"base_url" json:"base_url"`
	Headers map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
}

// Settings holds project-wide run settings from the manifest.
type Settings struct {
	ScenarioDir string            `yaml:"scenario_dir" json:"scenario_dir"`
	Timeout     time.Duration     `yaml:"timeout" json:"timeout"`
	Headers     map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
}

// Manifest represents a parsed apicheck.yaml (or .json) file.
type Manifest struct {
	Targets  map[string]Target `yaml:"targets" json:"targets"`
	Settings Settings          `yaml:"settings" json:"settings"`
}

// Load reads and parses a manifest. JSON manifests are accepted too since
// JSON is valid YAML.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest %s: %w", path, err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}

	if len(m.Targets) == 0 {
		return nil, fmt.Errorf("manifest has no targets defined")
	}

	// Apply defaults
	if m.Settings.ScenarioDir == "" {
		m.Settings.ScenarioDir = "./scenarios"
	}

	for name, t := range m.Targets {
		if t.BaseURL == "" {
			return nil, fmt.Errorf("target %q: base_url is required", name)
		}
		u, err := url.Parse(t.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("target %q: base_url %q must be an absolute URL", name, t.BaseURL)
		}
		t.BaseURL = strings.TrimRight(t.BaseURL, "/")
		m.Targets[name] = t
	}

	return &m, nil
}

// Target returns a named target, or an error if not found.
func (m *Manifest) Target(name string) (Target, error) {
	t, ok := m.Targets[name]
	if !ok {
		return Target{}, fmt.Errorf("target %q not found in manifest", name)
	}
	return t, nil
}

// TargetNames returns all target names in sorted order.
func (m *Manifest) TargetNames() []string {
	names := make([]string, 0, len(m.Targets))
	for name := range m.Targets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup resolves "targets.<name>" to the target's base URL.
func (m *Manifest) Lookup(key string) (string, bool) {
	if m == nil {
		return "", false
	}
	name, ok := strings.CutPrefix(key, "targets.")
	if !ok {
		return "", false
	}
	t, ok := m.Targets[name]
	if !ok {
		return "", false
	}
	return t.BaseURL, true
}
