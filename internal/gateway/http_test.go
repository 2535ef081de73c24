// File: internal/gateway/http_test.go
package gateway

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/quantum-agi/sdk-go/api/schemas"
	"github.com/quantum-agi/sdk-go/internal/config"
)

func newTestGateway(t *testing.T, handler http.Handler) (*HTTPGateway, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	gw, err := New(config.APIConfig{
		URL:     server.URL,
		Key:     "test-key",
		Timeout: 2 * time.Second,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return gw, server
}

func TestNewRequiresURLAndKey(t *testing.T) {
	_, err := New(config.APIConfig{Key: "k"}, zaptest.NewLogger(t))
	assert.Error(t, err)
	_, err = New(config.APIConfig{URL: "https://api.example.com"}, zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestStartSession(t *testing.T) {
	var gotAuth, gotPath string
	var gotReq schemas.StartSessionRequest

	gw, _ := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(schemas.StartSessionResponse{ID: "sess-42", Task: gotReq.Task, Status: "running"})
	}))

	id, err := gw.StartSession(context.Background(), "open the settings page", schemas.Context{"locale": "en"})
	require.NoError(t, err)

	assert.Equal(t, "sess-42", id)
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "/v1/quantum/sessions", gotPath)
	assert.Equal(t, "open the settings page", gotReq.Task)
	assert.Equal(t, "en", gotReq.Context["locale"])
}

func TestStartSessionRejectsEmptyID(t *testing.T) {
	gw, _ := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	_, err := gw.StartSession(context.Background(), "task", nil)
	assert.ErrorContains(t, err, "empty session id")
}

func TestProposeDecodesAction(t *testing.T) {
	var gotPath string
	gw, _ := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{
			"outcome": "action",
			"action": {"type": "click", "x": 120, "y": 480},
			"reasoning": "the submit button is at the center",
			"confidence": 0.92,
			"requires_confirmation": false
		}`))
	}))

	p, err := gw.Propose(context.Background(), "sess-42", schemas.InferenceRequest{Task: "submit"})
	require.NoError(t, err)

	assert.Equal(t, "/v1/quantum/sessions/sess-42/inference", gotPath)
	assert.Equal(t, schemas.OutcomeAction, p.Outcome)
	assert.Equal(t, schemas.ActionClick, p.Action.Kind)
	assert.Equal(t, 120, p.Action.X)
	assert.Equal(t, 480, p.Action.Y)
	assert.Equal(t, 0.92, p.Confidence)
}

func TestProposeCannotDetermine(t *testing.T) {
	gw, _ := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"outcome": "cannot_determine", "reasoning": "screen is blank"}`))
	}))

	p, err := gw.Propose(context.Background(), "sess-42", schemas.InferenceRequest{})
	require.NoError(t, err)
	assert.Equal(t, schemas.OutcomeCannotDetermine, p.Outcome)
	assert.Equal(t, "screen is blank", p.Reasoning)
}

func TestProposeUndecodableActionYieldsZeroAction(t *testing.T) {
	// A broken action document is not a transport failure: the zero action
	// fails validation upstream and triggers the corrective re-propose.
	gw, _ := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"outcome": "action", "action": "definitely-not-an-object"}`))
	}))

	p, err := gw.Propose(context.Background(), "sess-42", schemas.InferenceRequest{})
	require.NoError(t, err)
	assert.Equal(t, schemas.OutcomeAction, p.Outcome)
	assert.Error(t, p.Action.Validate())
}

func TestFinishSessionStatus(t *testing.T) {
	var gotPath string
	var gotReq schemas.FinishSessionRequest
	gw, _ := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.WriteHeader(http.StatusNoContent)
	}))

	require.NoError(t, gw.FinishSession(context.Background(), "sess-42", true, "all done"))
	assert.Equal(t, "/v1/quantum/sessions/sess-42/finish", gotPath)
	assert.Equal(t, "finish", gotReq.Status)
	assert.Equal(t, "all done", gotReq.Reason)

	require.NoError(t, gw.FinishSession(context.Background(), "sess-42", false, "gave up"))
	assert.Equal(t, "fail", gotReq.Status)
}

func TestServerErrorSurfacesMessage(t *testing.T) {
	gw, _ := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": "rate_limited", "message": "slow down"}`))
	}))

	_, err := gw.Propose(context.Background(), "sess-42", schemas.InferenceRequest{})
	require.Error(t, err)
	assert.ErrorContains(t, err, "429")
	assert.ErrorContains(t, err, "slow down")
}

func TestContextCancellationAborts(t *testing.T) {
	started := make(chan struct{})
	gw, _ := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The server only watches for client disconnects once the request
		// body is consumed; without this drain r.Context() never cancels
		// and Cleanup deadlocks in server.Close.
		io.Copy(io.Discard, r.Body)
		close(started)
		<-r.Context().Done()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	_, err := gw.Propose(ctx, "sess-42", schemas.InferenceRequest{})
	assert.Error(t, err)
}
