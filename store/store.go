// Package store defines the storage interface and implementations.
package store

import (
	"context"
	"time"

	"github.com/runmeter/runmeter/domain"
)

// Store defines the interface for data persistence. Lookups return
// (nil, nil) when the record does not exist; callers translate that into
// domain.ErrNotFound where a missing record is an error.
type Store interface {
	// Agent operations
	RegisterAgent(ctx context.Context, agent *domain.Agent) error
	GetAgent(ctx context.Context, agentID string) (*domain.Agent, error)
	ListAgents(ctx context.Context) ([]domain.Agent, error)
	UpdateAgentWorkflow(ctx context.Context, agentID, workflowID, webhookURL string) error

	// Ledger operations. AppendTransaction computes the resulting balance
	// and writes the row in a single atomic statement; it fills in
	// txn.Balance on success and returns domain.ErrInsufficientFunds when
	// a debit would take the balance below zero.
	AppendTransaction(ctx context.Context, txn *domain.Transaction) error
	LatestTransaction(ctx context.Context, userID string) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, userID string, typ domain.TransactionType, from, to time.Time) ([]domain.Transaction, error)

	// Run operations
	CreateRun(ctx context.Context, run *domain.Run) error
	GetRun(ctx context.Context, runID string) (*domain.Run, error)
	DeleteRun(ctx context.Context, runID string) (bool, error)
	ListRunsByAgent(ctx context.Context, agentID, userID string, limit int) ([]domain.Run, error)
	AppendRunResult(ctx context.Context, runID string, result domain.FlowResult) error
	UpdateRunStatus(ctx context.Context, runID, status string, finishedAt time.Time) error

	// Approval operations. DecideApproval transitions pending->status and
	// returns domain.ErrAlreadyDecided if the request is no longer pending.
	CreateApproval(ctx context.Context, approval *domain.Approval) error
	GetApproval(ctx context.Context, approvalID string) (*domain.Approval, error)
	ListApprovals(ctx context.Context, runID string, status domain.ApprovalStatus) ([]domain.Approval, error)
	DecideApproval(ctx context.Context, approvalID string, status domain.ApprovalStatus, reason string) error

	// Scratchpad metadata operations
	CreateScratchpadFile(ctx context.Context, file *domain.ScratchpadFile) error
	ListScratchpadFiles(ctx context.Context, runID string) ([]domain.ScratchpadFile, error)
	DeleteScratchpadFiles(ctx context.Context, runID string) ([]domain.ScratchpadFile, error)

	// Lifecycle
	Close() error
}
