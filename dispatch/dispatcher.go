// Package dispatch manages the run lifecycle and dispatches runs to the
// external workflow engine.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/runmeter/runmeter/domain"
	"github.com/runmeter/runmeter/engine"
	"github.com/runmeter/runmeter/jsonscan"
	"github.com/runmeter/runmeter/store"
)

var uuidPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{3,4}-[0-9a-f]{3,4}-[0-9a-f]{12}$`)

// Dispatcher creates and resolves runs and ensures each agent has exactly
// one workflow instance on the engine.
type Dispatcher struct {
	store       store.Store
	engine      *engine.Client
	platformURL string
	workflowKey string
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(st store.Store, eng *engine.Client, platformURL, workflowKey string) *Dispatcher {
	return &Dispatcher{
		store:       st,
		engine:      eng,
		platformURL: platformURL,
		workflowKey: workflowKey,
	}
}

// CreateRun persists a new run and fire-and-forget triggers its workflow.
// A workflow instance is created on the engine only the first time an agent
// is run; subsequent runs of the same agent reuse the stored binding.
// Workflow creation is best-effort: on failure the run still proceeds
// without a workflow binding.
func (d *Dispatcher) CreateRun(ctx context.Context, userID string, req domain.RunCreateRequest) (*domain.Run, error) {
	run := &domain.Run{
		ID:            uuid.New().String(),
		CreatedAt:     time.Now(),
		UserID:        userID,
		AgentID:       req.AgentID,
		Status:        req.Status,
		Prompt:        req.Prompt,
		Results:       req.Results,
		SubAgents:     req.SubAgents,
		EmailSettings: req.EmailSettings,
	}
	if run.Status == "" {
		run.Status = "created"
	}

	var webhookURL, agentEndpoint string
	if req.AgentID != "" {
		webhookURL, agentEndpoint = d.ensureWorkflow(ctx, req.AgentID, run)
	}

	// Each invocation is a distinct run even when the workflow is reused.
	if err := d.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create run record: %w", err)
	}

	if webhookURL != "" {
		d.engine.TriggerWebhook(webhookURL, triggerPayload(run, agentEndpoint, req.Results))
	}

	return run, nil
}

// ensureWorkflow looks up the agent and lazily creates and activates its
// workflow instance, persisting the binding back onto the agent record.
// Returns the webhook URL to trigger and the agent's endpoint.
func (d *Dispatcher) ensureWorkflow(ctx context.Context, agentID string, run *domain.Run) (webhookURL, agentEndpoint string) {
	agent, err := d.store.GetAgent(ctx, agentID)
	if err != nil {
		log.Printf("ERROR: failed to look up agent %s: %v", agentID, err)
		return "", ""
	}
	if agent == nil {
		log.Printf("WARN: agent %s not found, run proceeds without workflow", agentID)
		return "", ""
	}
	agentEndpoint = agent.Endpoint

	if agent.WorkflowID != "" {
		log.Printf("Agent %s already has workflow ID: %s", agentID, agent.WorkflowID)
		run.WorkflowID = agent.WorkflowID
		return agent.WebhookURL, agentEndpoint
	}

	if d.engine == nil || !d.engine.Configured() {
		return "", agentEndpoint
	}

	title := agent.Title
	if title == "" {
		title = "Untitled Agent"
	}
	wf, err := d.engine.CreateWorkflow(ctx, "Run of "+title)
	if err != nil {
		log.Printf("ERROR: failed to create workflow for agent %s: %v", agentID, err)
		return "", agentEndpoint
	}

	run.WorkflowID = wf.ID
	if err := d.store.UpdateAgentWorkflow(ctx, agentID, wf.ID, wf.WebhookURL); err != nil {
		// The run keeps its binding; the next run will create a duplicate
		// workflow, which the engine tolerates.
		log.Printf("ERROR: failed to persist workflow binding on agent %s: %v", agentID, err)
	}

	if err := d.engine.ActivateWorkflow(ctx, wf.ID); err != nil {
		log.Printf("ERROR: failed to activate workflow %s: %v", wf.ID, err)
	}

	log.Printf("Created workflow %s for agent %s", wf.ID, agentID)
	return wf.WebhookURL, agentEndpoint
}

// GetRun resolves a run by id.
func (d *Dispatcher) GetRun(ctx context.Context, runID string) (*domain.Run, error) {
	run, err := d.store.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	if run == nil {
		return nil, fmt.Errorf("run %s: %w", runID, domain.ErrNotFound)
	}
	return run, nil
}

// DeleteRun removes a run owned by userID.
func (d *Dispatcher) DeleteRun(ctx context.Context, runID, userID string) error {
	run, err := d.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.UserID != userID {
		return fmt.Errorf("run %s is not owned by caller: %w", runID, domain.ErrForbidden)
	}

	deleted, err := d.store.DeleteRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if !deleted {
		return fmt.Errorf("run %s: %w", runID, domain.ErrNotFound)
	}
	return nil
}

// History returns the most recent runs of an agent owned by a user.
func (d *Dispatcher) History(ctx context.Context, agentID, userID string) ([]domain.Run, error) {
	return d.store.ListRunsByAgent(ctx, agentID, userID, 50)
}

// WorkflowEnv returns the bootstrap information the external workflow needs
// to call back into this service.
func (d *Dispatcher) WorkflowEnv(ctx context.Context, runID string) (*domain.WorkflowEnv, error) {
	run, err := d.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	env := &domain.WorkflowEnv{
		PlatformURL: d.platformURL,
		WorkflowKey: d.workflowKey,
		RunID:       runID,
	}

	if len(run.SubAgents) > 0 {
		var subAgents struct {
			Agents json.RawMessage `json:"agents"`
		}
		if err := json.Unmarshal(run.SubAgents, &subAgents); err == nil && len(subAgents.Agents) > 0 {
			env.Agents = subAgents.Agents
		}
	}
	return env, nil
}

// UpdateStatus sets a run's status and finish time. The engine sometimes
// reports its own execution id instead of a run id; those are resolved by
// fetching the execution record and scanning it for the run_id it carried.
func (d *Dispatcher) UpdateStatus(ctx context.Context, runID, status string) (*domain.Run, error) {
	if status == "" {
		return nil, fmt.Errorf("status is required: %w", domain.ErrInvalidArgument)
	}

	if !uuidPattern.MatchString(runID) {
		resolved, err := d.resolveExecutionRunID(ctx, runID)
		if err != nil {
			return nil, err
		}
		runID = resolved
	}

	if err := d.store.UpdateRunStatus(ctx, runID, status, time.Now()); err != nil {
		return nil, err
	}
	return d.GetRun(ctx, runID)
}

// resolveExecutionRunID maps an engine execution id to the run id embedded
// in its recorded trigger payload.
func (d *Dispatcher) resolveExecutionRunID(ctx context.Context, executionID string) (string, error) {
	if d.engine == nil || !d.engine.Configured() {
		return "", fmt.Errorf("cannot resolve execution %s: engine not configured: %w", executionID, domain.ErrUpstream)
	}

	log.Printf("ID %s is not a run id, resolving via engine execution data", executionID)
	raw, err := d.engine.GetExecution(ctx, executionID)
	if err != nil {
		return "", err
	}

	var decoded interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("invalid execution data: %w", err)
	}

	runID := jsonscan.FindString(decoded, "run_id")
	if runID == "" || !uuidPattern.MatchString(runID) {
		return "", fmt.Errorf("could not find run_id in execution %s: %w", executionID, domain.ErrUpstream)
	}
	return runID, nil
}

// triggerPayload builds the webhook trigger body from the run's initial
// input parameters, or an empty agents list when none were supplied.
func triggerPayload(run *domain.Run, agentEndpoint string, results json.RawMessage) domain.TriggerPayload {
	payload := domain.TriggerPayload{
		RunID:  run.ID,
		Agents: []domain.TriggerAgent{},
	}
	if run.AgentID == "" || len(results) == 0 {
		return payload
	}

	var wrapper struct {
		InputParameters json.RawMessage `json:"inputParameters"`
	}
	if err := json.Unmarshal(results, &wrapper); err != nil || len(wrapper.InputParameters) == 0 {
		log.Printf("WARN: run %s has no input parameters, triggering with empty agents list", run.ID)
		return payload
	}

	payload.Agents = append(payload.Agents, domain.TriggerAgent{
		ID:    run.AgentID,
		URL:   agentEndpoint,
		Input: wrapper.InputParameters,
	})
	return payload
}
