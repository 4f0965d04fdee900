package assertion

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/wondertwin-ai/apicheck/internal/httpclient"
	"github.com/wondertwin-ai/apicheck/internal/jsonpath"
	"github.com/wondertwin-ai/apicheck/internal/store"
)

var (
	// ErrAssertionFailed wraps the summary error for a step whose
	// expectations did not all pass.
	ErrAssertionFailed = errors.New("assertion failed")

	// ErrPathNotFound marks a JSON path that does not exist in the body.
	ErrPathNotFound = errors.New("path not found")

	// ErrHeaderNotFound marks a header absent from the response.
	ErrHeaderNotFound = errors.New("header not found")

	// ErrInvalidBody marks a path expectation against a non-JSON body.
	ErrInvalidBody = errors.New("response body is not JSON")
)

// Result is the outcome of one expectation.
type Result struct {
	Description string `json:"description"`
	Expected    any    `json:"expected,omitempty"`
	Actual      any    `json:"actual,omitempty"`
	Passed      bool   `json:"passed"`
	Err         error  `json:"-"`
}

// Message renders a failed result for console output.
func (r Result) Message() string {
	if r.Passed {
		return r.Description
	}
	if r.Err != nil {
		return fmt.Sprintf("%s: %v", r.Description, r.Err)
	}
	return fmt.Sprintf("%s: got %s", r.Description, describe(r.Actual))
}

// Evaluate checks every expectation independently against resp. The body
// is decoded at most once, and only when a path expectation needs it.
func Evaluate(resp *httpclient.Response, exps []Expectation) []Result {
	var (
		doc     any
		docErr  error
		decoded bool
	)
	body := func() (any, error) {
		if !decoded {
			doc, docErr = jsonpath.Decode(resp.Body)
			if docErr != nil {
				docErr = fmt.Errorf("%w: %v", ErrInvalidBody, docErr)
			}
			decoded = true
		}
		return doc, docErr
	}

	results := make([]Result, 0, len(exps))
	for _, e := range exps {
		results = append(results, evaluateOne(resp, e, body))
	}
	return results
}

// Check summarises results as an error wrapping ErrAssertionFailed, or nil
// when every result passed.
func Check(results []Result) error {
	var failed []string
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r.Message())
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %d of %d failed: %s", ErrAssertionFailed, len(failed), len(results), strings.Join(failed, "; "))
}

func evaluateOne(resp *httpclient.Response, e Expectation, body func() (any, error)) Result {
	r := Result{Description: e.Description()}
	if err := e.Validate(); err != nil {
		r.Err = err
		return r
	}

	switch {
	case e.Status != nil:
		r.Expected = *e.Status
		r.Actual = resp.StatusCode
		r.Passed = resp.StatusCode == *e.Status

	case e.BodyContains != "":
		r.Expected = e.BodyContains
		r.Passed = strings.Contains(string(resp.Body), e.BodyContains)
		if !r.Passed {
			r.Actual = truncate(string(resp.Body), 200)
		}

	case e.Header != "":
		evaluateHeader(resp, e, &r)

	case e.Path != "":
		doc, err := body()
		if err != nil {
			r.Err = err
			return r
		}
		evaluatePath(doc, e, &r)
	}

	return r
}

func evaluateHeader(resp *httpclient.Response, e Expectation, r *Result) {
	values := resp.Headers.Values(e.Header)
	if len(values) == 0 {
		if e.Equals != nil {
			r.Expected = store.Stringify(e.Equals)
		} else {
			r.Expected = store.Stringify(e.Contains)
		}
		r.Err = fmt.Errorf("%w: %s", ErrHeaderNotFound, e.Header)
		return
	}

	actual := strings.Join(values, ", ")
	r.Actual = actual
	if e.Equals != nil {
		want := store.Stringify(e.Equals)
		r.Expected = want
		r.Passed = actual == want
		return
	}
	want := store.Stringify(e.Contains)
	r.Expected = want
	r.Passed = strings.Contains(actual, want)
}

func evaluatePath(doc any, e Expectation, r *Result) {
	switch {
	case e.Size != nil:
		r.Expected = *e.Size
	case e.NotNull:
		r.Expected = "not null"
	case e.Contains != nil:
		r.Expected = e.Contains
	default:
		r.Expected = e.Equals
	}

	actual, found, err := jsonpath.Get(doc, e.Path)
	if err != nil {
		r.Err = err
		return
	}
	if !found {
		r.Err = fmt.Errorf("%w: %s", ErrPathNotFound, e.Path)
		return
	}

	switch {
	case e.Size != nil:
		n, ok := size(actual)
		if !ok {
			r.Actual = actual
			r.Err = fmt.Errorf("path %s is %s, not an array", e.Path, kind(actual))
			return
		}
		r.Actual = n
		r.Passed = n == *e.Size

	case e.NotNull:
		r.Actual = actual
		r.Passed = actual != nil

	case e.Contains != nil:
		r.Actual = actual
		switch v := actual.(type) {
		case string:
			r.Passed = strings.Contains(v, store.Stringify(e.Contains))
		case []any:
			for _, item := range v {
				if Equal(item, e.Contains) {
					r.Passed = true
					break
				}
			}
		default:
			r.Err = fmt.Errorf("path %s is %s; contains needs a string or array", e.Path, kind(actual))
		}

	default:
		r.Actual = actual
		r.Passed = Equal(actual, e.Equals)
	}
}

// Equal compares decoded JSON values without cross-type coercion: numbers
// equal numbers of the same value regardless of Go width, but the integer 1
// never equals the string "1" or the boolean true.
func Equal(actual, expected any) bool {
	return reflect.DeepEqual(normalize(actual), normalize(expected))
}

func normalize(v any) any {
	switch t := v.(type) {
	case int:
		return int64(t)
	case int8:
		return int64(t)
	case int16:
		return int64(t)
	case int32:
		return int64(t)
	case uint:
		return normalize(uint64(t))
	case uint8:
		return int64(t)
	case uint16:
		return int64(t)
	case uint32:
		return int64(t)
	case uint64:
		if t > math.MaxInt64 {
			return float64(t)
		}
		return int64(t)
	case float32:
		return normalize(float64(t))
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1<<53 {
			return int64(t)
		}
		return t
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	default:
		return v
	}
}

func size(v any) (int, bool) {
	switch t := v.(type) {
	case []any:
		return len(t), true
	case map[string]any:
		return len(t), true
	default:
		return 0, false
	}
}

func kind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "a string"
	case bool:
		return "a boolean"
	case int64, float64:
		return "a number"
	case map[string]any:
		return "an object"
	case []any:
		return "an array"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func describe(v any) string {
	switch t := v.(type) {
	case string:
		return fmt.Sprintf("%q", t)
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%v (%s)", t, kind(t))
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
