package scenario

import (
	"time"

	"github.com/wondertwin-ai/apicheck/internal/assertion"
	"github.com/wondertwin-ai/apicheck/internal/httpclient"
)

// Status is the outcome of a step.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// StepResult records the outcome of a single step.
type StepResult struct {
	Name       string
	Status     Status
	Assertions []assertion.Result
	Err        error                // nil when passed
	SkippedBy  string               // failed or skipped dependency, when skipped
	Request    *httpclient.Request  // nil when no request was sent
	Response   *httpclient.Response // nil when no response was received
	Duration   time.Duration
}

// Passed reports whether the step passed.
func (sr *StepResult) Passed() bool { return sr.Status == StatusPassed }

// Run records the outcome of one execution of a scenario.
type Run struct {
	ID           string
	ScenarioName string
	Description  string
	Passed       bool
	Steps        []StepResult // in execution order
	Context      map[string]any
	Started      time.Time
	Duration     time.Duration
}

// Step returns the result of the named step.
func (r *Run) Step(name string) (*StepResult, bool) {
	for i := range r.Steps {
		if r.Steps[i].Name == name {
			return &r.Steps[i], true
		}
	}
	return nil, false
}

// Counts returns the number of passed, failed and skipped steps.
func (r *Run) Counts() (passed, failed, skipped int) {
	for _, sr := range r.Steps {
		switch sr.Status {
		case StatusPassed:
			passed++
		case StatusFailed:
			failed++
		case StatusSkipped:
			skipped++
		}
	}
	return
}
