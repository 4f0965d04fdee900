// Package metrics records scenario outcomes as Prometheus metrics and
// exports them in the node_exporter textfile format.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wondertwin-ai/apicheck/internal/scenario"
)

// Metric names.
const (
	MetricStepsTotal          = "apicheck_steps_total"
	MetricStepDurationSeconds = "apicheck_step_duration_seconds"
	MetricAssertionsTotal     = "apicheck_assertions_total"
	MetricRunsTotal           = "apicheck_runs_total"
)

var _ scenario.Observer = (*Recorder)(nil)

// Recorder is a scenario.Observer backed by its own registry.
//
// Thread Safety: Safe for concurrent use by multiple goroutines.
type Recorder struct {
	registry *prometheus.Registry

	steps        *prometheus.CounterVec
	stepDuration *prometheus.HistogramVec
	assertions   *prometheus.CounterVec
	runs         *prometheus.CounterVec
}

// New creates a Recorder with a fresh registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		steps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricStepsTotal,
				Help: "Scenario steps by outcome.",
			},
			[]string{"scenario", "status"},
		),
		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricStepDurationSeconds,
				Help:    "Duration of executed steps, request through extraction.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"scenario"},
		),
		assertions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricAssertionsTotal,
				Help: "Evaluated assertions by result.",
			},
			[]string{"scenario", "result"},
		),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricRunsTotal,
				Help: "Completed scenario runs by result.",
			},
			[]string{"scenario", "result"},
		),
	}
	r.registry.MustRegister(r.steps, r.stepDuration, r.assertions, r.runs)
	return r
}

// Registry returns the registry holding the recorder's metrics.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// ObserveStep implements scenario.Observer.
func (r *Recorder) ObserveStep(name string, sr *scenario.StepResult) {
	r.steps.WithLabelValues(name, string(sr.Status)).Inc()
	if sr.Status == scenario.StatusSkipped {
		return
	}
	r.stepDuration.WithLabelValues(name).Observe(sr.Duration.Seconds())
	for _, a := range sr.Assertions {
		r.assertions.WithLabelValues(name, result(a.Passed)).Inc()
	}
}

// ObserveRun implements scenario.Observer.
func (r *Recorder) ObserveRun(run *scenario.Run) {
	r.runs.WithLabelValues(run.ScenarioName, result(run.Passed)).Inc()
}

// WriteTextfile writes all metrics to path atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}

func result(passed bool) string {
	if passed {
		return "passed"
	}
	return "failed"
}
