// Package report renders suite results for people (console) and machines
// (a JSON summary).
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/wondertwin-ai/apicheck/internal/scenario"
	"github.com/wondertwin-ai/apicheck/internal/suite"
)

// Totals counts steps and scenarios across a suite.
type Totals struct {
	Passed          int `json:"passed"`
	Failed          int `json:"failed"`
	Skipped         int `json:"skipped"`
	Scenarios       int `json:"scenarios"`
	FailedScenarios int `json:"failed_scenarios"`
}

// Add folds one result into t.
func (t *Totals) Add(r suite.Result) {
	t.Scenarios++
	if !r.Passed() {
		t.FailedScenarios++
	}
	if r.Run == nil {
		return
	}
	p, f, s := r.Run.Counts()
	t.Passed += p
	t.Failed += f
	t.Skipped += s
}

// Console prints results the way the CLI shows them.
type Console struct {
	w io.Writer
}

// NewConsole creates a Console writing to w.
func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

// Print writes every result followed by the summary line and returns the totals.
func (c *Console) Print(results []suite.Result) Totals {
	var totals Totals
	for _, r := range results {
		c.Scenario(r)
		totals.Add(r)
	}
	c.Summary(totals)
	return totals
}

// Scenario prints one scenario's steps.
func (c *Console) Scenario(r suite.Result) {
	name := ""
	description := ""
	if r.Scenario != nil {
		name = r.Scenario.Name
		description = r.Scenario.Description
	}
	fmt.Fprintf(c.w, "\n--- %s ---\n", name)
	if description != "" {
		fmt.Fprintf(c.w, "    %s\n", description)
	}
	fmt.Fprintln(c.w)

	if r.Err != nil {
		fmt.Fprintf(c.w, "  ERROR: %v\n", r.Err)
		return
	}

	for _, sr := range r.Run.Steps {
		switch sr.Status {
		case scenario.StatusPassed:
			fmt.Fprintf(c.w, "  PASS  %-50s (%s)\n", sr.Name, sr.Duration.Round(time.Millisecond))
		case scenario.StatusSkipped:
			fmt.Fprintf(c.w, "  SKIP  %-50s (dependency %s did not pass)\n", sr.Name, sr.SkippedBy)
		default:
			fmt.Fprintf(c.w, "  FAIL  %-50s (%s)\n", sr.Name, sr.Duration.Round(time.Millisecond))
			c.failure(sr)
		}
	}

	fmt.Fprintf(c.w, "\n  Scenario: %s (%s)\n", passFailLabel(r.Run.Passed), r.Run.Duration.Round(time.Millisecond))
}

// failure lists each failed assertion, or the step error when the step
// failed before or after assertions ran.
func (c *Console) failure(sr scenario.StepResult) {
	failedAssertions := 0
	for _, a := range sr.Assertions {
		if !a.Passed {
			failedAssertions++
			fmt.Fprintf(c.w, "        %s\n", a.Message())
		}
	}
	if failedAssertions == 0 && sr.Err != nil {
		fmt.Fprintf(c.w, "        %s\n", sr.Err)
	}
}

// Summary prints the final results line.
func (c *Console) Summary(t Totals) {
	fmt.Fprintln(c.w)
	fmt.Fprintf(c.w, "Results: %d passed, %d failed, %d skipped, %d total (%d of %d scenarios failed)\n",
		t.Passed, t.Failed, t.Skipped, t.Passed+t.Failed+t.Skipped, t.FailedScenarios, t.Scenarios)
}

func passFailLabel(passed bool) string {
	if passed {
		return "PASSED"
	}
	return "FAILED"
}
