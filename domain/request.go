package domain

import (
	"encoding/json"
	"time"
)

// ChargeRequest debits credits from a user for an agent run.
type ChargeRequest struct {
	Credits     int    `json:"credits"`
	AgentID     string `json:"agent_id"`
	RunID       string `json:"run_id,omitempty"`
	Description string `json:"description,omitempty"`
}

// RefillRequest adds credits to a user's balance.
type RefillRequest struct {
	Credits     int    `json:"credits"`
	Description string `json:"description,omitempty"`
}

// RunCreateRequest is the request to create a new run.
type RunCreateRequest struct {
	AgentID       string          `json:"agent_id,omitempty"`
	Status        string          `json:"status,omitempty"`
	Prompt        string          `json:"prompt,omitempty"`
	Results       json.RawMessage `json:"results,omitempty"`
	SubAgents     json.RawMessage `json:"sub_agents,omitempty"`
	EmailSettings json.RawMessage `json:"email_settings,omitempty"`
}

// ApprovalCreateRequest is posted by the workflow engine when a workflow
// pauses for human review.
type ApprovalCreateRequest struct {
	WorkflowID    string          `json:"workflow_id"`
	CallbackURL   string          `json:"callback_url"`
	EmailSettings json.RawMessage `json:"email_settings,omitempty"`
	Reason        string          `json:"reason,omitempty"`
}

// ApprovalDecisionRequest records a reviewer decision.
type ApprovalDecisionRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// StatusUpdateRequest updates the status of a run from the workflow engine.
type StatusUpdateRequest struct {
	Status string `json:"status"`
}

// BalanceResponse reports a user's derived balance.
type BalanceResponse struct {
	UserID    string    `json:"user_id"`
	Balance   int       `json:"balance"`
	Timestamp time.Time `json:"timestamp"`
}

// AgentUsage aggregates run transactions of one agent within a report window.
type AgentUsage struct {
	AgentID          string  `json:"agent_id"`
	AgentTitle       string  `json:"agent_title"`
	TotalCredits     int     `json:"total_credits"`
	RunCount         int     `json:"run_count"`
	AvgCreditsPerRun float64 `json:"avg_credits_per_run"`
}

// ReportResponse is a usage report over a day, month or year window.
type ReportResponse struct {
	UserID           string         `json:"user_id"`
	Interval         ReportInterval `json:"interval"`
	StartDate        time.Time      `json:"start_date"`
	EndDate          time.Time      `json:"end_date"`
	TotalCredits     int            `json:"total_credits"`
	CreditsRemaining int            `json:"credits_remaining"`
	Agents           []AgentUsage   `json:"agents"`
}

// IngestSummary is returned after an agent's results are processed.
type IngestSummary struct {
	Message            string `json:"message"`
	RunID              string `json:"run_id"`
	AgentID            string `json:"agent_id"`
	UserID             string `json:"user_id"`
	DownloadedFiles    int    `json:"downloaded_files"`
	URLPropertiesFound int    `json:"url_properties_found"`
}

// WorkflowEnv is the bootstrap information a workflow needs to call back
// into this service. Read-only contract for the external engine.
type WorkflowEnv struct {
	PlatformURL string          `json:"platformUrl"`
	WorkflowKey string          `json:"workflow_key"`
	RunID       string          `json:"run_id"`
	Agents      json.RawMessage `json:"agents,omitempty"`
}
