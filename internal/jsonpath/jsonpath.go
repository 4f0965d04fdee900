// Package jsonpath evaluates simple dot/bracket paths against decoded JSON.
//
// Supported forms: $, $.field, field, field.nested, array[0], array[0].field.
// The leading "$." is optional so that paths read the same way they do in
// most REST assertion libraries ("category.name", "photoUrls").
package jsonpath

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ErrSyntax is returned when a path cannot be parsed.
var ErrSyntax = errors.New("invalid path")

// Get evaluates path against doc. found is false when any segment of the
// path does not exist; that is not an error.
func Get(doc any, path string) (value any, found bool, err error) {
	segments, err := split(path)
	if err != nil {
		return nil, false, err
	}

	current := doc
	for _, seg := range segments {
		if seg.field != "" {
			m, ok := current.(map[string]any)
			if !ok {
				return nil, false, nil
			}
			val, ok := m[seg.field]
			if !ok {
				return nil, false, nil
			}
			current = val
		}
		for _, idx := range seg.indexes {
			arr, ok := current.([]any)
			if !ok {
				return nil, false, nil
			}
			if idx < 0 || idx >= len(arr) {
				return nil, false, nil
			}
			current = arr[idx]
		}
	}

	return current, true, nil
}

// Decode parses a JSON body holding exactly one value. Numbers are decoded as
// int64 when they are integral and float64 otherwise, so that extracted IDs
// stringify without exponent notation.
func Decode(body []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("response body is not valid JSON: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("response body is not valid JSON: trailing data after the first value")
	}
	return Normalize(doc), nil
}

// Normalize converts json.Number leaves (recursively) into int64 or float64.
func Normalize(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case map[string]any:
		for k, val := range t {
			t[k] = Normalize(val)
		}
		return t
	case []any:
		for i, val := range t {
			t[i] = Normalize(val)
		}
		return t
	default:
		return v
	}
}

type segment struct {
	field   string
	indexes []int
}

// split turns "field.nested[0][1].name" into segments.
func split(path string) ([]segment, error) {
	rest := strings.TrimSpace(path)
	if strings.HasPrefix(rest, "$") {
		rest = strings.TrimPrefix(rest[1:], ".")
	}
	if rest == "" {
		return nil, nil
	}

	var segments []segment
	for _, raw := range strings.Split(rest, ".") {
		if raw == "" {
			return nil, fmt.Errorf("%w: empty segment in %q", ErrSyntax, path)
		}

		var seg segment
		open := strings.Index(raw, "[")
		if open < 0 {
			seg.field = raw
			segments = append(segments, seg)
			continue
		}

		seg.field = raw[:open]
		brackets := raw[open:]
		for brackets != "" {
			if brackets[0] != '[' {
				return nil, fmt.Errorf("%w: unexpected %q in %q", ErrSyntax, brackets, path)
			}
			end := strings.Index(brackets, "]")
			if end < 0 {
				return nil, fmt.Errorf("%w: unterminated index in %q", ErrSyntax, path)
			}
			idx, err := strconv.Atoi(brackets[1:end])
			if err != nil {
				return nil, fmt.Errorf("%w: invalid array index in %q", ErrSyntax, raw)
			}
			seg.indexes = append(seg.indexes, idx)
			brackets = brackets[end+1:]
		}
		segments = append(segments, seg)
	}

	return segments, nil
}
