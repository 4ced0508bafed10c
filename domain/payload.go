package domain

import "encoding/json"

// TriggerAgent is one agent entry in a webhook trigger payload.
type TriggerAgent struct {
	ID    string          `json:"id"`
	URL   string          `json:"url"`
	Input json.RawMessage `json:"input,omitempty"`
}

// TriggerPayload starts the external workflow for a run.
type TriggerPayload struct {
	RunID  string         `json:"run_id"`
	Agents []TriggerAgent `json:"agents"`
}

// FlowResult is one agent's contribution to a run's result trail.
type FlowResult struct {
	AgentID     string          `json:"agentId"`
	ExecutionID string          `json:"executionId"`
	ResultJSON  json.RawMessage `json:"resultJson"`
}

// CallbackPayload resumes a paused workflow after an approval.
type CallbackPayload struct {
	ApprovalMessage string `json:"approvalMessage"`
}
