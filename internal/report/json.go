package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/wondertwin-ai/apicheck/internal/assertion"
	"github.com/wondertwin-ai/apicheck/internal/scenario"
	"github.com/wondertwin-ai/apicheck/internal/suite"
)

// Summary is the machine-readable form of a suite run.
type Summary struct {
	Passed    bool              `json:"passed"`
	Generated time.Time         `json:"generated"`
	Totals    Totals            `json:"totals"`
	Scenarios []ScenarioSummary `json:"scenarios"`
}

// ScenarioSummary is one scenario's outcome within a Summary.
type ScenarioSummary struct {
	Name       string         `json:"name"`
	File       string         `json:"file,omitempty"`
	RunID      string         `json:"run_id,omitempty"`
	Passed     bool           `json:"passed"`
	Error      string         `json:"error,omitempty"`
	DurationMS int64          `json:"duration_ms"`
	Steps      []StepSummary  `json:"steps,omitempty"`
	Context    map[string]any `json:"context,omitempty"`
}

// StepSummary is one step's outcome with its captured exchange.
type StepSummary struct {
	Name       string             `json:"name"`
	Status     scenario.Status    `json:"status"`
	SkippedBy  string             `json:"skipped_by,omitempty"`
	Error      string             `json:"error,omitempty"`
	DurationMS int64              `json:"duration_ms"`
	Request    *RequestCapture    `json:"request,omitempty"`
	Response   *ResponseCapture   `json:"response,omitempty"`
	Assertions []AssertionSummary `json:"assertions,omitempty"`
}

// AssertionSummary is one evaluated expectation. Error is set when the
// expectation could not be evaluated, e.g. a path missing from the body.
type AssertionSummary struct {
	Description string `json:"description"`
	Expected    any    `json:"expected,omitempty"`
	Actual      any    `json:"actual,omitempty"`
	Passed      bool   `json:"passed"`
	Error       string `json:"error,omitempty"`
}

// RequestCapture is the request a step sent.
type RequestCapture struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
}

// ResponseCapture is the response a step received.
type ResponseCapture struct {
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
}

// NewSummary builds a Summary from suite results.
func NewSummary(results []suite.Result) Summary {
	s := Summary{Passed: true, Generated: time.Now().UTC()}
	for _, r := range results {
		s.Totals.Add(r)
		if !r.Passed() {
			s.Passed = false
		}
		s.Scenarios = append(s.Scenarios, scenarioSummary(r))
	}
	return s
}

func scenarioSummary(r suite.Result) ScenarioSummary {
	var ss ScenarioSummary
	if r.Scenario != nil {
		ss.Name = r.Scenario.Name
		ss.File = r.Scenario.Path
	}
	if r.Err != nil {
		ss.Error = r.Err.Error()
	}
	if r.Run == nil {
		return ss
	}

	ss.RunID = r.Run.ID
	ss.Passed = r.Run.Passed
	ss.DurationMS = r.Run.Duration.Milliseconds()
	ss.Context = r.Run.Context
	for _, sr := range r.Run.Steps {
		ss.Steps = append(ss.Steps, stepSummary(sr))
	}
	return ss
}

func stepSummary(sr scenario.StepResult) StepSummary {
	st := StepSummary{
		Name:       sr.Name,
		Status:     sr.Status,
		SkippedBy:  sr.SkippedBy,
		DurationMS: sr.Duration.Milliseconds(),
		Assertions: assertionSummaries(sr.Assertions),
	}
	if sr.Err != nil {
		st.Error = sr.Err.Error()
	}
	if sr.Request != nil {
		st.Request = &RequestCapture{
			Method:  sr.Request.Method,
			URL:     sr.Request.URL,
			Headers: sr.Request.Headers,
			Body:    string(sr.Request.Body),
		}
	}
	if sr.Response != nil {
		rc := &ResponseCapture{
			Status: sr.Response.StatusCode,
			Body:   string(sr.Response.Body),
		}
		if len(sr.Response.Headers) > 0 {
			rc.Headers = make(map[string]string, len(sr.Response.Headers))
			for k := range sr.Response.Headers {
				rc.Headers[k] = sr.Response.Headers.Get(k)
			}
		}
		st.Response = rc
	}
	return st
}

func assertionSummaries(results []assertion.Result) []AssertionSummary {
	if len(results) == 0 {
		return nil
	}
	out := make([]AssertionSummary, 0, len(results))
	for _, r := range results {
		as := AssertionSummary{
			Description: r.Description,
			Expected:    r.Expected,
			Actual:      r.Actual,
			Passed:      r.Passed,
		}
		if r.Err != nil {
			as.Error = r.Err.Error()
		}
		out = append(out, as)
	}
	return out
}

// Encode writes s as indented JSON.
func (s Summary) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

// WriteJSON writes the summary of results to path, creating parent
// directories as needed.
func WriteJSON(path string, results []suite.Result) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating report dir: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating report: %w", err)
	}
	if err := NewSummary(results).Encode(f); err != nil {
		f.Close()
		return fmt.Errorf("writing report: %w", err)
	}
	return f.Close()
}
