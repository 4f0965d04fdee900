// Package testutil provides a canned-response HTTP server for scenario tests.
package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
)

// Recorded is a request received by the Server.
type Recorded struct {
	Method  string
	Path    string
	Pattern string
	Params  map[string]string
	Headers http.Header
	Body    []byte
}

// Reply is a canned response.
type Reply struct {
	Status  int
	Headers map[string]string
	Body    any // []byte and string are written as-is, anything else as JSON
}

// ReplyFunc builds a reply from the incoming request.
type ReplyFunc func(req Recorded) Reply

// Server is an httptest server whose routes return canned replies and
// record every request they receive.
type Server struct {
	*httptest.Server

	router chi.Router
	mu     sync.Mutex
	calls  []Recorded
}

// NewServer starts a Server that is closed when the test ends.
func NewServer(t *testing.T) *Server {
	t.Helper()
	s := &Server{router: chi.NewRouter()}
	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.record(r, "")
		writeReply(w, Reply{Status: http.StatusNotFound, Body: map[string]any{"code": 404, "message": "no canned route"}})
	})
	s.Server = httptest.NewServer(s.router)
	t.Cleanup(s.Close)
	return s
}

// Handle registers fn for method and a chi route pattern such as "/pet/{id}".
func (s *Server) Handle(method, pattern string, fn ReplyFunc) *Server {
	s.router.MethodFunc(method, pattern, func(w http.ResponseWriter, r *http.Request) {
		rec := s.record(r, pattern)
		writeReply(w, fn(rec))
	})
	return s
}

// Reply registers a fixed reply for method and pattern.
func (s *Server) Reply(method, pattern string, reply Reply) *Server {
	return s.Handle(method, pattern, func(Recorded) Reply { return reply })
}

// Calls returns every recorded request in arrival order.
func (s *Server) Calls() []Recorded {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Recorded, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallCount returns how many requests matched method and pattern.
func (s *Server) CallCount(method, pattern string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Method == method && c.Pattern == pattern {
			n++
		}
	}
	return n
}

func (s *Server) record(r *http.Request, pattern string) Recorded {
	body, _ := io.ReadAll(r.Body)
	rec := Recorded{
		Method:  r.Method,
		Path:    r.URL.Path,
		Pattern: pattern,
		Params:  make(map[string]string),
		Headers: r.Header.Clone(),
		Body:    body,
	}
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		for i, key := range rctx.URLParams.Keys {
			rec.Params[key] = rctx.URLParams.Values[i]
		}
	}

	s.mu.Lock()
	s.calls = append(s.calls, rec)
	s.mu.Unlock()
	return rec
}

func writeReply(w http.ResponseWriter, reply Reply) {
	var data []byte
	switch b := reply.Body.(type) {
	case nil:
	case []byte:
		data = b
	case string:
		data = []byte(b)
	default:
		data, _ = json.Marshal(b)
		if _, ok := reply.Headers["Content-Type"]; !ok {
			w.Header().Set("Content-Type", "application/json")
		}
	}

	for k, v := range reply.Headers {
		w.Header().Set(k, v)
	}
	status := reply.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// DecodeJSON unmarshals a recorded request body, failing the test on error.
func DecodeJSON(t *testing.T, rec Recorded) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(rec.Body, &m); err != nil {
		t.Fatalf("request body is not JSON: %v\nbody: %s", err, rec.Body)
	}
	return m
}
