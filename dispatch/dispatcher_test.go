package dispatch_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/runmeter/runmeter/dispatch"
	"github.com/runmeter/runmeter/domain"
	"github.com/runmeter/runmeter/engine"
	"github.com/runmeter/runmeter/tests/helpers"
	"github.com/stretchr/testify/assert"
)

// fakeEngine is an httptest workflow engine recording workflow creations and
// webhook triggers.
type fakeEngine struct {
	mu            sync.Mutex
	created       int
	activated     []string
	triggers      []domain.TriggerPayload
	executionData map[string]string

	server *httptest.Server
}

func newFakeEngine(t *testing.T) *fakeEngine {
	t.Helper()

	f := &fakeEngine{executionData: map[string]string{}}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/workflows":
			f.created++
			json.NewEncoder(w).Encode(map[string]interface{}{
				"id": "wf-1",
				"nodes": []map[string]interface{}{
					{"name": "run-description", "parameters": map[string]string{"path": "hook-1"}},
				},
			})
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/activate"):
			f.activated = append(f.activated, r.URL.Path)
			w.Write([]byte(`{}`))
		case r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/webhook/"):
			var payload domain.TriggerPayload
			body, _ := io.ReadAll(r.Body)
			json.Unmarshal(body, &payload)
			f.triggers = append(f.triggers, payload)
			w.Write([]byte(`{}`))
		case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/api/v1/executions/"):
			id := strings.TrimPrefix(r.URL.Path, "/api/v1/executions/")
			data, ok := f.executionData[id]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.Write([]byte(data))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeEngine) client() *engine.Client {
	return engine.NewClient(f.server.URL, "test-key", "http://platform:8081", time.Second)
}

func (f *fakeEngine) createdCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created
}

func (f *fakeEngine) triggerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.triggers)
}

func TestCreateRunReusesWorkflow(t *testing.T) {
	ctx := context.Background()
	s := helpers.NewTestSQLiteStore(t)
	eng := newFakeEngine(t)
	d := dispatch.NewDispatcher(s, eng.client(), "http://platform:8081", "wf-key")

	assert.NoError(t, s.RegisterAgent(ctx, &domain.Agent{
		ID: "a1", Title: "Demo", Endpoint: "http://agent:9000", CreatedAt: time.Now(),
	}))

	results := json.RawMessage(`{"inputParameters":{"query":"hello"}}`)

	first, err := d.CreateRun(ctx, "u1", domain.RunCreateRequest{AgentID: "a1", Results: results})
	assert.NoError(t, err)
	assert.Equal(t, "wf-1", first.WorkflowID)
	assert.Equal(t, 1, eng.createdCount())

	// The binding is persisted on the agent for reuse.
	agent, err := s.GetAgent(ctx, "a1")
	assert.NoError(t, err)
	assert.Equal(t, "wf-1", agent.WorkflowID)
	assert.NotEmpty(t, agent.WebhookURL)

	second, err := d.CreateRun(ctx, "u1", domain.RunCreateRequest{AgentID: "a1", Results: results})
	assert.NoError(t, err)
	assert.Equal(t, "wf-1", second.WorkflowID)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 1, eng.createdCount(), "second run must not create another workflow")

	// Both runs fire the webhook asynchronously.
	assert.Eventually(t, func() bool { return eng.triggerCount() == 2 }, 2*time.Second, 10*time.Millisecond)

	eng.mu.Lock()
	defer eng.mu.Unlock()
	// Trigger delivery order is not deterministic.
	assert.ElementsMatch(t, []string{first.ID, second.ID},
		[]string{eng.triggers[0].RunID, eng.triggers[1].RunID})
	assert.Len(t, eng.triggers[0].Agents, 1)
	assert.Equal(t, "a1", eng.triggers[0].Agents[0].ID)
	assert.Equal(t, "http://agent:9000", eng.triggers[0].Agents[0].URL)
}

func TestCreateRunWithoutAgent(t *testing.T) {
	ctx := context.Background()
	s := helpers.NewTestSQLiteStore(t)
	eng := newFakeEngine(t)
	d := dispatch.NewDispatcher(s, eng.client(), "http://platform:8081", "wf-key")

	run, err := d.CreateRun(ctx, "u1", domain.RunCreateRequest{Prompt: "do something"})
	assert.NoError(t, err)
	assert.Empty(t, run.WorkflowID)
	assert.Equal(t, "created", run.Status)
	assert.Equal(t, 0, eng.createdCount())
}

func TestCreateRunSurvivesEngineFailure(t *testing.T) {
	ctx := context.Background()
	s := helpers.NewTestSQLiteStore(t)

	broken := engine.NewClient("http://127.0.0.1:1", "key", "", 100*time.Millisecond)
	d := dispatch.NewDispatcher(s, broken, "http://platform:8081", "wf-key")

	assert.NoError(t, s.RegisterAgent(ctx, &domain.Agent{
		ID: "a1", Title: "Demo", Endpoint: "http://agent", CreatedAt: time.Now(),
	}))

	run, err := d.CreateRun(ctx, "u1", domain.RunCreateRequest{AgentID: "a1"})
	assert.NoError(t, err)
	assert.Empty(t, run.WorkflowID)

	got, err := s.GetRun(ctx, run.ID)
	assert.NoError(t, err)
	assert.NotNil(t, got)
}

func TestDeleteRunOwnership(t *testing.T) {
	ctx := context.Background()
	s := helpers.NewTestSQLiteStore(t)
	d := dispatch.NewDispatcher(s, nil, "http://platform:8081", "wf-key")

	run, err := d.CreateRun(ctx, "u1", domain.RunCreateRequest{})
	assert.NoError(t, err)

	err = d.DeleteRun(ctx, run.ID, "intruder")
	assert.ErrorIs(t, err, domain.ErrForbidden)

	assert.NoError(t, d.DeleteRun(ctx, run.ID, "u1"))

	err = d.DeleteRun(ctx, run.ID, "u1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestWorkflowEnv(t *testing.T) {
	ctx := context.Background()
	s := helpers.NewTestSQLiteStore(t)
	d := dispatch.NewDispatcher(s, nil, "http://platform:8081", "wf-key")

	run, err := d.CreateRun(ctx, "u1", domain.RunCreateRequest{
		SubAgents: json.RawMessage(`{"agents":[{"id":"a1","url":"http://agent"}]}`),
	})
	assert.NoError(t, err)

	env, err := d.WorkflowEnv(ctx, run.ID)
	assert.NoError(t, err)
	assert.Equal(t, "http://platform:8081", env.PlatformURL)
	assert.Equal(t, "wf-key", env.WorkflowKey)
	assert.Equal(t, run.ID, env.RunID)
	assert.JSONEq(t, `[{"id":"a1","url":"http://agent"}]`, string(env.Agents))
}

func TestUpdateStatus(t *testing.T) {
	ctx := context.Background()
	s := helpers.NewTestSQLiteStore(t)
	d := dispatch.NewDispatcher(s, nil, "http://platform:8081", "wf-key")

	run, err := d.CreateRun(ctx, "u1", domain.RunCreateRequest{})
	assert.NoError(t, err)

	updated, err := d.UpdateStatus(ctx, run.ID, "completed")
	assert.NoError(t, err)
	assert.Equal(t, "completed", updated.Status)
	assert.NotNil(t, updated.FinishedAt)
}

func TestUpdateStatusResolvesExecutionID(t *testing.T) {
	ctx := context.Background()
	s := helpers.NewTestSQLiteStore(t)
	eng := newFakeEngine(t)
	d := dispatch.NewDispatcher(s, eng.client(), "http://platform:8081", "wf-key")

	run, err := d.CreateRun(ctx, "u1", domain.RunCreateRequest{})
	assert.NoError(t, err)

	eng.mu.Lock()
	eng.executionData["exec-7"] = `{"data":{"resultData":[{"json":{"body":{"run_id":"` + run.ID + `"}}}]}}`
	eng.mu.Unlock()

	updated, err := d.UpdateStatus(ctx, "exec-7", "failed")
	assert.NoError(t, err)
	assert.Equal(t, run.ID, updated.ID)
	assert.Equal(t, "failed", updated.Status)
}

func TestUpdateStatusRequiresStatus(t *testing.T) {
	s := helpers.NewTestSQLiteStore(t)
	d := dispatch.NewDispatcher(s, nil, "http://platform:8081", "wf-key")

	_, err := d.UpdateStatus(context.Background(), "whatever", "")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}
