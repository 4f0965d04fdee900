// Package store holds the per-run context values carried between scenario
// steps, and expands {key} placeholders in request templates.
package store

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// ErrMissingContext is matched by every MissingContextError.
var ErrMissingContext = errors.New("missing context")

// MissingContextError reports a key that was read before any step set it.
type MissingContextError struct {
	Key string
}

func (e *MissingContextError) Error() string {
	return fmt.Sprintf("missing context value %q", e.Key)
}

// Is lets errors.Is(err, ErrMissingContext) match.
func (e *MissingContextError) Is(target error) bool {
	return target == ErrMissingContext
}

// Store maps keys to JSON scalars (string, int64, float64, bool).
// A Store belongs to a single scenario run and is not safe for concurrent use.
type Store struct {
	values map[string]any
}

// New returns an empty Store.
func New() *Store {
	return &Store{values: make(map[string]any)}
}

// Set stores value under key, overwriting any previous value.
// Integer kinds are widened to int64 and float kinds to float64; a float
// with no fractional part is kept as int64 so that IDs round-trip.
func (s *Store) Set(key string, value any) error {
	v, err := scalar(value)
	if err != nil {
		return fmt.Errorf("context key %q: %w", key, err)
	}
	s.values[key] = v
	return nil
}

// Get returns the value stored under key or a *MissingContextError.
func (s *Store) Get(key string) (any, error) {
	v, ok := s.values[key]
	if !ok {
		return nil, &MissingContextError{Key: key}
	}
	return v, nil
}

// Has reports whether key has been set.
func (s *Store) Has(key string) bool {
	_, ok := s.values[key]
	return ok
}

// Lookup implements Lookup by stringifying the stored value.
func (s *Store) Lookup(key string) (string, bool) {
	v, ok := s.values[key]
	if !ok {
		return "", false
	}
	return Stringify(v), true
}

// Keys returns all set keys in sorted order.
func (s *Store) Keys() []string {
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot returns a copy of the current values.
func (s *Store) Snapshot() map[string]any {
	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Stringify renders a scalar the way it appears inside a URL or JSON body.
func Stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%v", t)
	}
}

func scalar(value any) (any, error) {
	switch v := value.(type) {
	case string, bool, int64:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case uint:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint8:
		return int64(v), nil
	case float32:
		return scalar(float64(v))
	case float64:
		if v == math.Trunc(v) && math.Abs(v) < 1<<53 {
			return int64(v), nil
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T (want string, number or bool)", value)
	}
}
