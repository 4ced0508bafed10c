package domain

import (
	"encoding/json"
	"time"
)

// Transaction is an immutable ledger entry. The balance field is the account
// balance as of this transaction, not a delta. Transactions are only ever
// appended, never updated or deleted.
type Transaction struct {
	ID          string          `json:"id"`
	Timestamp   time.Time       `json:"timestamp"`
	UserID      string          `json:"user_id"`
	AgentID     string          `json:"agent_id,omitempty"`
	RunID       string          `json:"run_id,omitempty"`
	Type        TransactionType `json:"type"`
	Credits     int             `json:"credits"`
	Balance     int             `json:"balance"`
	Description string          `json:"description,omitempty"`
}

// Run represents one invocation of an externally executed workflow,
// possibly chaining several agents. The results field grows as agents
// report back: {"flow": [{agentId, executionId, resultJson}, ...]}.
type Run struct {
	ID            string          `json:"id"`
	CreatedAt     time.Time       `json:"created_at"`
	UserID        string          `json:"user_id"`
	AgentID       string          `json:"agent_id,omitempty"`
	WorkflowID    string          `json:"workflow_id,omitempty"`
	Status        string          `json:"status,omitempty"`
	Prompt        string          `json:"prompt,omitempty"`
	SumCredits    int             `json:"sum_credits"`
	Results       json.RawMessage `json:"results,omitempty"`
	SubAgents     json.RawMessage `json:"sub_agents,omitempty"`
	EmailSettings json.RawMessage `json:"email_settings,omitempty"`
	FinishedAt    *time.Time      `json:"finished_at,omitempty"`
}

// Agent is a registered external HTTP service invoked as part of a run.
// WorkflowID and WebhookURL are filled in lazily the first time a run is
// dispatched for the agent and reused by every subsequent run.
type Agent struct {
	ID            string          `json:"agent_id"`
	Title         string          `json:"title"`
	Endpoint      string          `json:"endpoint"`
	CreditsPerRun int             `json:"credits_per_run"`
	WorkflowID    string          `json:"workflow_id,omitempty"`
	WebhookURL    string          `json:"webhook_url,omitempty"`
	Capabilities  json.RawMessage `json:"capabilities,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// ScratchpadFile is a stored byte blob associated with a run and agent,
// either a raw result payload or a harvested download. Immutable once
// created; all files of a run are purged together.
type ScratchpadFile struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	RunID       string    `json:"run_id"`
	AgentID     string    `json:"agent_id"`
	Filename    string    `json:"filename"`
	Path        string    `json:"path"`
	SourcePath  string    `json:"source_path,omitempty"`
	SourceURL   string    `json:"source_url,omitempty"`
	ContentType string    `json:"content_type,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Approval is a human-in-the-loop request tied to a run. It is created
// PENDING by the workflow engine and decided exactly once.
type Approval struct {
	ID            string          `json:"id"`
	CreatedAt     time.Time       `json:"created_at"`
	RunID         string          `json:"run_id"`
	WorkflowID    string          `json:"workflow_id,omitempty"`
	CallbackURL   string          `json:"callback_url,omitempty"`
	EmailSettings json.RawMessage `json:"email_settings,omitempty"`
	Reason        string          `json:"reason,omitempty"`
	Status        ApprovalStatus  `json:"status"`
}

// EmailRecipient is one notification target of an approval request.
type EmailRecipient struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// EmailSettings describes how reviewers are notified about an approval
// request. Supplied by the workflow engine or inherited from the run.
type EmailSettings struct {
	Subject         string           `json:"subject,omitempty"`
	FlagAsImportant bool             `json:"flagAsImportant,omitempty"`
	Recipients      []EmailRecipient `json:"recipients,omitempty"`
}
