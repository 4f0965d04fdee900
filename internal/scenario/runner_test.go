package scenario

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/wondertwin-ai/apicheck/internal/assertion"
	"github.com/wondertwin-ai/apicheck/internal/httpclient"
	"github.com/wondertwin-ai/apicheck/internal/httpclient/mock"
	"github.com/wondertwin-ai/apicheck/internal/manifest"
	"github.com/wondertwin-ai/apicheck/internal/store"
	"github.com/wondertwin-ai/apicheck/internal/testutil"
)

func jsonResponse(status int, body string) *httpclient.Response {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	return &httpclient.Response{StatusCode: status, Headers: h, Body: []byte(body)}
}

func petManifest(url string) *manifest.Manifest {
	return &manifest.Manifest{Targets: map[string]manifest.Target{
		"petstore": {BaseURL: url},
	}}
}

func TestRunner_PetLifecycle(t *testing.T) {
	srv := testutil.NewServer(t)
	srv.Reply(http.MethodPost, "/pet", testutil.Reply{
		Body: map[string]any{"id": 0, "name": "Buddy", "status": "available"},
	})
	srv.Handle(http.MethodPut, "/pet", func(req testutil.Recorded) testutil.Reply {
		in := testutil.DecodeJSON(t, req)
		in["photoUrls"] = []any{}
		in["tags"] = []any{}
		return testutil.Reply{Body: in}
	})
	srv.Reply(http.MethodDelete, "/pet/{id}", testutil.Reply{Body: "Pet deleted"})
	srv.Reply(http.MethodGet, "/pet/{id}", testutil.Reply{Status: http.StatusNotFound, Body: "Pet not found"})

	s := &Scenario{
		Name:   "Pet lifecycle",
		Target: "petstore",
		Steps: []Step{
			{
				Name:    "createPet",
				Request: Request{Method: "POST", URL: "/pet", Body: `{"id": 0, "name": "Buddy", "category": {"id": 1, "name": "Dogs"}, "status": "available"}`},
				Assert:  []assertion.Expectation{assertion.StatusEquals(200), assertion.HeaderContains("Content-Type", "application/json")},
				Extract: map[string]string{"petId": "id"},
			},
			{
				Name:      "updatePet",
				DependsOn: Deps{"createPet"},
				Request: Request{Method: "PUT", URL: "/pet", Body: map[string]any{
					"id":       "{petId}",
					"name":     "Max",
					"status":   "sold",
					"category": map[string]any{"id": 1, "name": "Dogs"},
				}},
				Assert: []assertion.Expectation{
					assertion.StatusEquals(200),
					assertion.PathEquals("id", "{petId}"),
					assertion.PathEquals("category.name", "Dogs"),
					assertion.PathSize("photoUrls", 0),
					assertion.PathEquals("status", "sold"),
				},
			},
			{
				Name:      "deletePet",
				DependsOn: Deps{"updatePet"},
				Request:   Request{Method: "DELETE", URL: "/pet/{petId}"},
				Assert:    []assertion.Expectation{assertion.StatusEquals(200)},
			},
			{
				Name:      "verifyDeleted",
				DependsOn: Deps{"deletePet"},
				Request:   Request{Method: "GET", URL: "/pet/{petId}"},
				Assert:    []assertion.Expectation{assertion.StatusEquals(404), {BodyContains: "not found"}},
			},
		},
	}

	run, err := NewRunner(httpclient.New(0), WithManifest(petManifest(srv.URL))).Run(context.Background(), s)
	require.NoError(t, err)

	for _, sr := range run.Steps {
		assert.Equal(t, StatusPassed, sr.Status, "%s: %v", sr.Name, sr.Err)
	}
	assert.True(t, run.Passed)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, int64(0), run.Context["petId"])

	calls := srv.Calls()
	require.Len(t, calls, 4)
	update := testutil.DecodeJSON(t, calls[1])
	assert.Equal(t, float64(0), update["id"], "typed placeholder keeps the number type in the body")
	assert.Equal(t, "/pet/0", calls[2].Path)
	assert.Equal(t, "0", calls[3].Params["id"])
}

func TestRunner_FailedStepSkipsDependentsWithoutSending(t *testing.T) {
	ctrl := gomock.NewController(t)
	sender := mock.NewMockSender(ctrl)

	sender.EXPECT().
		Send(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req *httpclient.Request) (*httpclient.Response, error) {
			switch {
			case strings.HasSuffix(req.URL, "/pet"):
				return jsonResponse(500, `{"message":"boom"}`), nil
			default:
				return jsonResponse(200, `{"status":"available"}`), nil
			}
		}).
		Times(2) // createPet and the independent getPets; nothing else

	s := &Scenario{
		Name: "Pet lifecycle with failing create",
		Steps: []Step{
			{Name: "createPet", Request: Request{Method: "POST", URL: "http://petstore/pet"}, Assert: []assertion.Expectation{assertion.StatusEquals(200)}, Extract: map[string]string{"petId": "id"}},
			{Name: "updatePet", DependsOn: Deps{"createPet"}, Request: Request{Method: "PUT", URL: "http://petstore/pet/{petId}"}},
			{Name: "deletePet", DependsOn: Deps{"updatePet"}, Request: Request{Method: "DELETE", URL: "http://petstore/pet/{petId}"}},
			{Name: "getPets", Request: Request{Method: "GET", URL: "http://petstore/pet/findByStatus?status=available"}, Assert: []assertion.Expectation{assertion.StatusEquals(200)}},
		},
	}

	run, err := NewRunner(sender).Run(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, run.Passed)

	create, _ := run.Step("createPet")
	assert.Equal(t, StatusFailed, create.Status)
	assert.True(t, errors.Is(create.Err, assertion.ErrAssertionFailed))

	update, _ := run.Step("updatePet")
	assert.Equal(t, StatusSkipped, update.Status)
	assert.Equal(t, "createPet", update.SkippedBy)
	assert.Nil(t, update.Request)

	del, _ := run.Step("deletePet")
	assert.Equal(t, StatusSkipped, del.Status)
	assert.Equal(t, "updatePet", del.SkippedBy)

	get, _ := run.Step("getPets")
	assert.Equal(t, StatusPassed, get.Status)

	passed, failed, skipped := run.Counts()
	assert.Equal(t, 1, passed)
	assert.Equal(t, 1, failed)
	assert.Equal(t, 2, skipped)
}

func TestRunner_NetworkErrorFailsStep(t *testing.T) {
	ctrl := gomock.NewController(t)
	sender := mock.NewMockSender(ctrl)
	netErr := &httpclient.NetworkError{Method: "POST", URL: "http://petstore/store/order", Err: errors.New("connection refused")}
	sender.EXPECT().Send(gomock.Any(), gomock.Any()).Return(nil, netErr).Times(1)

	s := &Scenario{
		Name: "Store",
		Steps: []Step{
			{Name: "placeOrder", Request: Request{Method: "POST", URL: "http://petstore/store/order"}},
			{Name: "getOrder", DependsOn: Deps{"placeOrder"}, Request: Request{Method: "GET", URL: "http://petstore/store/order/{orderId}"}},
		},
	}

	run, err := NewRunner(sender).Run(context.Background(), s)
	require.NoError(t, err)

	place, _ := run.Step("placeOrder")
	assert.Equal(t, StatusFailed, place.Status)
	assert.True(t, errors.Is(place.Err, httpclient.ErrNetwork))
	assert.Nil(t, place.Response)

	get, _ := run.Step("getOrder")
	assert.Equal(t, StatusSkipped, get.Status)
}

func TestRunner_MissingContextSendsNothing(t *testing.T) {
	ctrl := gomock.NewController(t)
	sender := mock.NewMockSender(ctrl)
	sender.EXPECT().Send(gomock.Any(), gomock.Any()).Times(0)

	s := &Scenario{
		Name: "Missing",
		Steps: []Step{
			{Name: "getPet", Request: Request{Method: "GET", URL: "http://petstore/pet/{petId}"}},
			{Name: "headerRef", Request: Request{Method: "GET", URL: "http://petstore/pet", Headers: map[string]string{"api_key": "{apiKey}"}}},
			{Name: "bodyRef", Request: Request{Method: "POST", URL: "http://petstore/pet", Body: map[string]any{"id": "{petId}"}}},
			{Name: "assertRef", Request: Request{Method: "GET", URL: "http://petstore/pet"}, Assert: []assertion.Expectation{assertion.PathEquals("id", "{petId}")}},
		},
	}

	run, err := NewRunner(sender).Run(context.Background(), s)
	require.NoError(t, err)
	for _, sr := range run.Steps {
		assert.Equal(t, StatusFailed, sr.Status, sr.Name)
		assert.True(t, errors.Is(sr.Err, store.ErrMissingContext), "%s: %v", sr.Name, sr.Err)
		assert.Nil(t, sr.Request, sr.Name)
	}
}

func TestRunner_ExtractionMissingPathFailsStep(t *testing.T) {
	ctrl := gomock.NewController(t)
	sender := mock.NewMockSender(ctrl)
	sender.EXPECT().Send(gomock.Any(), gomock.Any()).Return(jsonResponse(200, `{"name":"Buddy"}`), nil).Times(1)

	s := &Scenario{
		Name: "Extraction",
		Steps: []Step{
			{Name: "createPet", Request: Request{Method: "POST", URL: "http://petstore/pet"}, Extract: map[string]string{"petId": "id"}},
			{Name: "getPet", DependsOn: Deps{"createPet"}, Request: Request{Method: "GET", URL: "http://petstore/pet/{petId}"}},
		},
	}

	run, err := NewRunner(sender).Run(context.Background(), s)
	require.NoError(t, err)

	create, _ := run.Step("createPet")
	assert.Equal(t, StatusFailed, create.Status)
	var mce *store.MissingContextError
	require.ErrorAs(t, create.Err, &mce)
	assert.Equal(t, "petId", mce.Key)

	get, _ := run.Step("getPet")
	assert.Equal(t, StatusSkipped, get.Status)
}

func TestRunner_AllAssertionsEvaluatedOnFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	sender := mock.NewMockSender(ctrl)
	sender.EXPECT().Send(gomock.Any(), gomock.Any()).
		Return(jsonResponse(200, `{"id": 3, "quantity": 2, "status": "placed", "complete": true}`), nil)

	s := &Scenario{
		Name: "Order",
		Steps: []Step{{
			Name:    "getOrder",
			Request: Request{Method: "GET", URL: "http://petstore/store/order/3"},
			Assert: []assertion.Expectation{
				assertion.StatusEquals(404),
				assertion.PathEquals("quantity", 1),
				assertion.PathEquals("status", "placed"),
				assertion.PathEquals("complete", true),
			},
		}},
	}

	run, err := NewRunner(sender).Run(context.Background(), s)
	require.NoError(t, err)

	sr := run.Steps[0]
	assert.Equal(t, StatusFailed, sr.Status)
	require.Len(t, sr.Assertions, 4)
	assert.False(t, sr.Assertions[0].Passed)
	assert.False(t, sr.Assertions[1].Passed)
	assert.True(t, sr.Assertions[2].Passed)
	assert.True(t, sr.Assertions[3].Passed)
	assert.Contains(t, sr.Err.Error(), "2 of 4 failed")
}

func TestRunner_VariablesAndLookups(t *testing.T) {
	t.Setenv("APICHECK_TEST_API_KEY", "secret")

	srv := testutil.NewServer(t)
	srv.Reply(http.MethodGet, "/user/{username}", testutil.Reply{Body: map[string]any{"username": "john_doe"}})

	s := &Scenario{
		Name: "User",
		Variables: map[string]any{
			"username": "john_doe",
			"email":    "{fake.email}",
		},
		Steps: []Step{{
			Name: "getUser",
			Request: Request{
				Method:  "get",
				URL:     "{targets.petstore}/user/{username}",
				Headers: map[string]string{"api_key": "{env.APICHECK_TEST_API_KEY}"},
			},
			Assert: []assertion.Expectation{assertion.PathEquals("username", "{username}")},
		}},
	}

	run, err := NewRunner(httpclient.New(0), WithManifest(petManifest(srv.URL)), WithFakeSeed(42)).Run(context.Background(), s)
	require.NoError(t, err)
	require.True(t, run.Passed, "%v", run.Steps[0].Err)

	calls := srv.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, http.MethodGet, calls[0].Method)
	assert.Equal(t, "secret", calls[0].Headers.Get("api_key"))
	assert.Equal(t, "john_doe", calls[0].Params["username"])
	assert.Contains(t, run.Context["email"], "@")
}

func TestRunner_StepHeaderOverridesDefaultRegardlessOfCase(t *testing.T) {
	srv := testutil.NewServer(t)
	srv.Reply(http.MethodGet, "/store/inventory", testutil.Reply{Body: map[string]any{"available": 3}})

	m := petManifest(srv.URL)
	m.Settings.Headers = map[string]string{"accept": "text/plain", "api_key": "special-key"}

	s := &Scenario{
		Name:   "Inventory",
		Target: "petstore",
		Steps: []Step{{
			Name: "getInventory",
			Request: Request{
				Method:  "GET",
				URL:     "/store/inventory",
				Headers: map[string]string{"Accept": "application/json"},
			},
		}},
	}

	// Repeat so a map-order dependent merge would show up.
	for i := 0; i < 20; i++ {
		run, err := NewRunner(httpclient.New(0), WithManifest(m)).Run(context.Background(), s)
		require.NoError(t, err)
		require.True(t, run.Passed, "%v", run.Steps[0].Err)
		assert.Equal(t, map[string]string{
			"Accept":  "application/json",
			"Api_key": "special-key",
		}, run.Steps[0].Request.Headers)
	}

	for _, c := range srv.Calls() {
		assert.Equal(t, []string{"application/json"}, c.Headers.Values("Accept"))
		assert.Equal(t, "special-key", c.Headers.Get("api_key"))
	}
}

func TestRunner_RunErrors(t *testing.T) {
	r := NewRunner(httpclient.New(0))

	_, err := r.Run(context.Background(), &Scenario{Name: "cycle", Steps: steps([]string{"a", "b"}, []string{"b", "a"})})
	assert.True(t, errors.Is(err, ErrInvalidGraph))

	_, err = r.Run(context.Background(), &Scenario{Name: "target", Target: "petstore", Steps: steps([]string{"a"})})
	assert.Error(t, err, "a target without a manifest cannot run")

	_, err = NewRunner(httpclient.New(0), WithManifest(petManifest("http://x"))).Run(context.Background(),
		&Scenario{Name: "unknown target", Target: "other", Steps: steps([]string{"a"})})
	assert.Error(t, err)

	_, err = r.Run(context.Background(), &Scenario{
		Name:      "bad variable",
		Variables: map[string]any{"token": "{env.APICHECK_TEST_UNSET_VARIABLE}"},
		Steps:     steps([]string{"a"}),
	})
	assert.True(t, errors.Is(err, store.ErrMissingContext))
}

func TestRunner_RelativeURLWithoutTarget(t *testing.T) {
	ctrl := gomock.NewController(t)
	sender := mock.NewMockSender(ctrl)
	sender.EXPECT().Send(gomock.Any(), gomock.Any()).Times(0)

	run, err := NewRunner(sender).Run(context.Background(), &Scenario{
		Name:  "relative",
		Steps: []Step{{Name: "a", Request: Request{Method: "GET", URL: "/pet"}}},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, run.Steps[0].Status)
}

type recordingObserver struct {
	steps []string
	runs  int
}

func (o *recordingObserver) ObserveStep(_ string, sr *StepResult) {
	o.steps = append(o.steps, sr.Name+":"+string(sr.Status))
}

func (o *recordingObserver) ObserveRun(*Run) { o.runs++ }

func TestRunner_Observer(t *testing.T) {
	ctrl := gomock.NewController(t)
	sender := mock.NewMockSender(ctrl)
	sender.EXPECT().Send(gomock.Any(), gomock.Any()).Return(jsonResponse(500, `{}`), nil)

	obs := &recordingObserver{}
	_, err := NewRunner(sender, WithObserver(obs)).Run(context.Background(), &Scenario{
		Name: "observed",
		Steps: []Step{
			{Name: "a", Request: Request{Method: "GET", URL: "http://x/a"}, Assert: []assertion.Expectation{assertion.StatusEquals(200)}},
			{Name: "b", DependsOn: Deps{"a"}, Request: Request{Method: "GET", URL: "http://x/b"}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a:failed", "b:skipped"}, obs.steps)
	assert.Equal(t, 1, obs.runs)
}
