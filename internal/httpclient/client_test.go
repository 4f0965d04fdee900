package httpclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Send(t *testing.T) {
	var gotMethod, gotPath, gotBody, gotCT, gotAccept, gotTrace string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotCT = r.Header.Get("Content-Type")
		gotAccept = r.Header.Get("Accept")
		gotTrace = r.Header.Get("X-Trace")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Server", "Jetty(9.4.53.v20231009)")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":1}`))
	}))
	defer srv.Close()

	c := New(5*time.Second, WithDefaultHeaders(map[string]string{
		"Accept":  "application/json",
		"X-Trace": "default",
	}))

	resp, err := c.Send(context.Background(), &Request{
		Method:  http.MethodPost,
		URL:     srv.URL + "/pet",
		Headers: map[string]string{"X-Trace": "step"},
		Body:    []byte(`{"name":"Buddy"}`),
	})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/pet", gotPath)
	assert.Equal(t, `{"name":"Buddy"}`, gotBody)
	assert.Equal(t, "application/json", gotCT, "content type defaults to JSON when a body is sent")
	assert.Equal(t, "application/json", gotAccept)
	assert.Equal(t, "step", gotTrace, "request headers override defaults")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Jetty(9.4.53.v20231009)", resp.Headers.Get("Server"))
	assert.JSONEq(t, `{"id":1}`, string(resp.Body))
}

func TestClient_ServerErrorIsNotNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"message":"boom"}`))
	}))
	defer srv.Close()

	resp, err := New(0).Send(context.Background(), &Request{Method: http.MethodGet, URL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestClient_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := New(time.Second).Send(context.Background(), &Request{Method: http.MethodGet, URL: url + "/pet/1"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNetwork))

	var ne *NetworkError
	require.ErrorAs(t, err, &ne)
	assert.Equal(t, http.MethodGet, ne.Method)
	assert.Contains(t, ne.URL, "/pet/1")
}

func TestClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	_, err := New(50*time.Millisecond).Send(context.Background(), &Request{Method: http.MethodGet, URL: srv.URL})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNetwork))
}

func TestClient_InvalidRequest(t *testing.T) {
	_, err := New(time.Second).Send(context.Background(), &Request{Method: "BAD METHOD", URL: "http://localhost"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNetwork))
}
