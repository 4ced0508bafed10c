package engine

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCreateWorkflow(t *testing.T) {
	var gotKey string
	var gotBody map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-Engine-API-Key")
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &gotBody)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":   "wf-1",
			"name": "Run of Demo",
			"nodes": []map[string]interface{}{
				{"name": "run-description", "parameters": map[string]string{"path": "hook-path"}},
			},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret", "http://platform:8081", time.Second)

	wf, err := client.CreateWorkflow(context.Background(), "Run of Demo")
	assert.NoError(t, err)
	assert.Equal(t, "secret", gotKey)
	assert.Equal(t, "Run of Demo", gotBody["name"])
	assert.Equal(t, "wf-1", wf.ID)
	assert.Equal(t, "hook-path", wf.WebhookID)
	assert.Equal(t, server.URL+"/webhook/hook-path", wf.WebhookURL)
}

func TestCreateWorkflowFallsBackToGeneratedPath(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"id": "wf-2", "nodes": []interface{}{}})
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret", "", time.Second)

	wf, err := client.CreateWorkflow(context.Background(), "Run of Demo")
	assert.NoError(t, err)
	assert.NotEmpty(t, wf.WebhookID)
	assert.Equal(t, server.URL+"/webhook/"+wf.WebhookID, wf.WebhookURL)
}

func TestCreateWorkflowUnconfigured(t *testing.T) {
	client := NewClient("", "", "", time.Second)

	_, err := client.CreateWorkflow(context.Background(), "Run of Demo")
	assert.Error(t, err)
}

func TestRebaseCallbackURL(t *testing.T) {
	client := NewClient("http://engine:5678", "key", "", time.Second)

	got, err := client.RebaseCallbackURL("http://localhost:9999/webhook-waiting/42")
	assert.NoError(t, err)
	assert.Equal(t, "http://engine:5678/webhook-waiting/42", got)
}

func TestRebaseCallbackURLNoBase(t *testing.T) {
	client := NewClient("", "", "", time.Second)

	got, err := client.RebaseCallbackURL("http://localhost:9999/webhook-waiting/42")
	assert.NoError(t, err)
	assert.Equal(t, "http://localhost:9999/webhook-waiting/42", got)
}

func TestResumeCallback(t *testing.T) {
	var gotPath string
	var gotPayload map[string]string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &gotPayload)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.URL, "key", "", time.Second)

	// The callback URL points at a host the engine reported internally; only
	// its path survives the rebase.
	err := client.ResumeCallback(context.Background(), "http://internal-host/webhook-waiting/abc", "approved by reviewer")
	assert.NoError(t, err)
	assert.Equal(t, "/webhook-waiting/abc", gotPath)
	assert.Equal(t, "approved by reviewer", gotPayload["approvalMessage"])
}

func TestResumeCallbackUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer server.Close()

	client := NewClient(server.URL, "key", "", time.Second)

	err := client.ResumeCallback(context.Background(), server.URL+"/webhook-waiting/abc", "msg")
	assert.Error(t, err)
}
