package scenario

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wondertwin-ai/apicheck/internal/assertion"
	"github.com/wondertwin-ai/apicheck/internal/httpclient"
	"github.com/wondertwin-ai/apicheck/internal/jsonpath"
	"github.com/wondertwin-ai/apicheck/internal/manifest"
	"github.com/wondertwin-ai/apicheck/internal/store"
)

// Observer is notified as steps and runs complete.
type Observer interface {
	ObserveStep(scenario string, sr *StepResult)
	ObserveRun(run *Run)
}

// Runner executes scenarios. A Runner holds no per-run state and may run
// several scenarios concurrently; each Run gets its own context store.
type Runner struct {
	sender   httpclient.Sender
	manifest *manifest.Manifest
	logger   *zap.Logger
	observer Observer
	fakeSeed uint64
}

// Option configures a Runner.
type Option func(*Runner)

// WithManifest supplies targets for relative URLs and {targets.<name>}.
func WithManifest(m *manifest.Manifest) Option {
	return func(r *Runner) { r.manifest = m }
}

// WithLogger sets the runner's logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithObserver registers an observer for step and run completion.
func WithObserver(o Observer) Option {
	return func(r *Runner) { r.observer = o }
}

// WithFakeSeed makes {fake.*} values reproducible. Zero means random.
func WithFakeSeed(seed uint64) Option {
	return func(r *Runner) { r.fakeSeed = seed }
}

// NewRunner creates a Runner that sends requests through sender.
func NewRunner(sender httpclient.Sender, opts ...Option) *Runner {
	r := &Runner{
		sender: sender,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// execution is the mutable state of one Run.
type execution struct {
	store   *store.Store
	lookups []store.Lookup
	baseURL string
	headers map[string]string
}

// Run executes s and returns its result. An error is returned only when
// the scenario cannot start (invalid graph, unknown target, bad variables);
// step failures are reported in the Run.
func (r *Runner) Run(ctx context.Context, s *Scenario) (*Run, error) {
	order, err := Order(s.Steps)
	if err != nil {
		return nil, fmt.Errorf("scenario %q: %w", s.Name, err)
	}

	ex, err := r.newExecution(s)
	if err != nil {
		return nil, fmt.Errorf("scenario %q: %w", s.Name, err)
	}

	run := &Run{
		ID:           uuid.NewString(),
		ScenarioName: s.Name,
		Description:  s.Description,
		Passed:       true,
		Started:      time.Now(),
	}
	logger := r.logger.With(zap.String("scenario", s.Name), zap.String("run_id", run.ID))
	logger.Debug("scenario started", zap.Int("steps", len(s.Steps)))

	statuses := make(map[string]Status, len(s.Steps))
	for _, i := range order {
		step := &s.Steps[i]
		sr := r.runStep(ctx, ex, step, statuses)
		statuses[step.Name] = sr.Status
		run.Steps = append(run.Steps, sr)
		if sr.Status != StatusPassed {
			run.Passed = false
		}

		switch sr.Status {
		case StatusFailed:
			logger.Warn("step failed", zap.String("step", sr.Name), zap.Error(sr.Err))
		case StatusSkipped:
			logger.Debug("step skipped", zap.String("step", sr.Name), zap.String("dependency", sr.SkippedBy))
		default:
			logger.Debug("step passed", zap.String("step", sr.Name), zap.Duration("duration", sr.Duration))
		}
		if r.observer != nil {
			r.observer.ObserveStep(s.Name, &run.Steps[len(run.Steps)-1])
		}
	}

	run.Context = ex.store.Snapshot()
	run.Duration = time.Since(run.Started)
	logger.Debug("scenario finished", zap.Bool("passed", run.Passed), zap.Duration("duration", run.Duration))
	if r.observer != nil {
		r.observer.ObserveRun(run)
	}
	return run, nil
}

func (r *Runner) newExecution(s *Scenario) (*execution, error) {
	ex := &execution{
		store:   store.New(),
		headers: make(map[string]string),
	}

	if r.manifest != nil {
		for k, v := range r.manifest.Settings.Headers {
			ex.headers[http.CanonicalHeaderKey(k)] = v
		}
	}

	target := s.Target
	if target == "" && r.manifest != nil && len(r.manifest.Targets) == 1 {
		target = r.manifest.TargetNames()[0]
	}
	if target != "" {
		if r.manifest == nil {
			return nil, fmt.Errorf("target %q requires a manifest", target)
		}
		t, err := r.manifest.Target(target)
		if err != nil {
			return nil, err
		}
		ex.baseURL = t.BaseURL
		for k, v := range t.Headers {
			ex.headers[http.CanonicalHeaderKey(k)] = v
		}
	}

	ex.lookups = []store.Lookup{ex.store, envLookup, fakeLookup(gofakeit.New(r.fakeSeed))}
	if r.manifest != nil {
		ex.lookups = append(ex.lookups, r.manifest)
	}

	keys := make([]string, 0, len(s.Variables))
	for k := range s.Variables {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := s.Variables[k]
		if str, ok := v.(string); ok {
			expanded, err := store.Expand(str, ex.lookups...)
			if err != nil {
				return nil, fmt.Errorf("variable %q: %w", k, err)
			}
			v = expanded
		}
		if err := ex.store.Set(k, v); err != nil {
			return nil, err
		}
	}

	return ex, nil
}

// runStep executes a single step and returns its result.
func (r *Runner) runStep(ctx context.Context, ex *execution, step *Step, statuses map[string]Status) StepResult {
	sr := StepResult{Name: step.Name}

	for _, dep := range step.DependsOn {
		if statuses[dep] != StatusPassed {
			sr.Status = StatusSkipped
			sr.SkippedBy = dep
			return sr
		}
	}

	start := time.Now()
	fail := func(err error) StepResult {
		sr.Status = StatusFailed
		sr.Err = err
		sr.Duration = time.Since(start)
		return sr
	}

	req, err := ex.buildRequest(step)
	if err != nil {
		return fail(err)
	}
	exps, err := ex.resolveExpectations(step)
	if err != nil {
		return fail(err)
	}

	sr.Request = req
	resp, err := r.sender.Send(ctx, req)
	if err != nil {
		return fail(err)
	}
	sr.Response = resp

	sr.Assertions = assertion.Evaluate(resp, exps)
	if err := assertion.Check(sr.Assertions); err != nil {
		return fail(err)
	}

	if err := ex.extract(step, resp); err != nil {
		return fail(err)
	}

	sr.Status = StatusPassed
	sr.Duration = time.Since(start)
	return sr
}

// buildRequest expands the step's request template against the store.
func (ex *execution) buildRequest(step *Step) (*httpclient.Request, error) {
	url, err := store.Expand(step.Request.URL, ex.lookups...)
	if err != nil {
		return nil, fmt.Errorf("url: %w", err)
	}
	if strings.HasPrefix(url, "/") {
		if ex.baseURL == "" {
			return nil, fmt.Errorf("relative url %q needs a scenario target", url)
		}
		url = ex.baseURL + url
	}

	headers := make(map[string]string, len(ex.headers)+len(step.Request.Headers))
	for k, v := range ex.headers {
		headers[k] = v
	}
	keys := make([]string, 0, len(step.Request.Headers))
	for k := range step.Request.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := step.Request.Headers[k]
		expanded, err := store.Expand(v, ex.lookups...)
		if err != nil {
			return nil, fmt.Errorf("header %q: %w", k, err)
		}
		headers[http.CanonicalHeaderKey(k)] = expanded
	}

	var body []byte
	switch b := step.Request.Body.(type) {
	case nil:
	case string:
		expanded, err := store.Expand(b, ex.lookups...)
		if err != nil {
			return nil, fmt.Errorf("body: %w", err)
		}
		body = []byte(expanded)
	default:
		resolved, err := ex.resolveValue(b)
		if err != nil {
			return nil, fmt.Errorf("body: %w", err)
		}
		if body, err = json.Marshal(resolved); err != nil {
			return nil, fmt.Errorf("marshaling body: %w", err)
		}
	}

	return &httpclient.Request{
		Method:  strings.ToUpper(step.Request.Method),
		URL:     url,
		Headers: headers,
		Body:    body,
	}, nil
}

// resolveValue walks a structured body. A string leaf that is exactly one
// {key} for a stored value takes that value with its type; other strings
// are expanded as text.
func (ex *execution) resolveValue(v any) (any, error) {
	switch t := v.(type) {
	case string:
		if key, ok := soloKey(t); ok && ex.store.Has(key) {
			return ex.store.Get(key)
		}
		return store.Expand(t, ex.lookups...)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			resolved, err := ex.resolveValue(val)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			resolved, err := ex.resolveValue(val)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return v, nil
	}
}

func (ex *execution) resolveExpectations(step *Step) ([]assertion.Expectation, error) {
	exps := make([]assertion.Expectation, 0, len(step.Assert))
	for i, e := range step.Assert {
		resolved, err := e.Resolve(ex.store, ex.lookups[1:]...)
		if err != nil {
			return nil, fmt.Errorf("assertion %d: %w", i+1, err)
		}
		exps = append(exps, resolved)
	}
	return exps, nil
}

// extract applies the step's extraction rules. A path missing from the
// response leaves its key unset, which fails the step with MissingContext.
func (ex *execution) extract(step *Step, resp *httpclient.Response) error {
	if len(step.Extract) == 0 {
		return nil
	}

	doc, err := jsonpath.Decode(resp.Body)
	if err != nil {
		return fmt.Errorf("extract: %w", err)
	}

	keys := make([]string, 0, len(step.Extract))
	for k := range step.Extract {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		path := step.Extract[key]
		val, found, err := jsonpath.Get(doc, path)
		if err != nil {
			return fmt.Errorf("extract %q: %w", key, err)
		}
		if !found || val == nil {
			return fmt.Errorf("extract %q from %s: %w", key, path, &store.MissingContextError{Key: key})
		}
		if err := ex.store.Set(key, val); err != nil {
			return fmt.Errorf("extract %q: %w", key, err)
		}
	}
	return nil
}

func soloKey(s string) (string, bool) {
	if len(s) < 3 || s[0] != '{' || s[len(s)-1] != '}' {
		return "", false
	}
	keys := store.Keys(s)
	if len(keys) != 1 || "{"+keys[0]+"}" != s {
		return "", false
	}
	return keys[0], true
}
