// Package hitl implements the human-in-the-loop approval gate: workflows
// pause, a reviewer is notified, and the workflow resumes once a decision
// is recorded.
package hitl

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/runmeter/runmeter/domain"
	"github.com/runmeter/runmeter/engine"
	"github.com/runmeter/runmeter/store"
)

// Notifier delivers review requests to human reviewers.
type Notifier interface {
	SendReviewRequest(ctx context.Context, rcpt domain.EmailRecipient, subject, reviewURL, reason string, important bool) error
	ReviewURL(approvalID string) string
}

// Gate stores approval requests and resumes workflows on approval.
type Gate struct {
	store    store.Store
	engine   *engine.Client
	notifier Notifier
}

// NewGate creates an approval gate.
func NewGate(st store.Store, eng *engine.Client, notifier Notifier) *Gate {
	return &Gate{store: st, engine: eng, notifier: notifier}
}

// RequestApproval records a pending approval for a run and notifies every
// configured recipient. Notification failures are logged and do not fail
// the request; the approval can still be decided through its review URL.
func (g *Gate) RequestApproval(ctx context.Context, runID string, req domain.ApprovalCreateRequest) (*domain.Approval, error) {
	run, err := g.store.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve run: %w", err)
	}
	if run == nil {
		return nil, fmt.Errorf("run %s: %w", runID, domain.ErrNotFound)
	}

	settings := req.EmailSettings
	if len(settings) == 0 {
		settings = run.EmailSettings
	}

	workflowID := req.WorkflowID
	if workflowID == "" {
		workflowID = "unknown"
	}

	approval := &domain.Approval{
		ID:            uuid.New().String(),
		CreatedAt:     time.Now(),
		RunID:         runID,
		WorkflowID:    workflowID,
		CallbackURL:   req.CallbackURL,
		EmailSettings: settings,
		Reason:        req.Reason,
		Status:        domain.ApprovalStatusPending,
	}
	if err := g.store.CreateApproval(ctx, approval); err != nil {
		return nil, fmt.Errorf("failed to create approval: %w", err)
	}

	g.notifyReviewers(ctx, approval, settings)
	return approval, nil
}

// notifyReviewers sends one review request per configured recipient.
func (g *Gate) notifyReviewers(ctx context.Context, approval *domain.Approval, rawSettings json.RawMessage) {
	if g.notifier == nil || len(rawSettings) == 0 {
		return
	}

	var settings domain.EmailSettings
	if err := json.Unmarshal(rawSettings, &settings); err != nil {
		log.Printf("WARN: approval %s has malformed email settings: %v", approval.ID, err)
		return
	}

	reviewURL := g.notifier.ReviewURL(approval.ID)
	for _, rcpt := range settings.Recipients {
		if rcpt.Email == "" {
			continue
		}
		err := g.notifier.SendReviewRequest(ctx, rcpt, settings.Subject, reviewURL, approval.Reason, settings.FlagAsImportant)
		if err != nil {
			log.Printf("ERROR: failed to notify %s about approval %s: %v", rcpt.Email, approval.ID, err)
			continue
		}
		log.Printf("Sent review request for approval %s to %s", approval.ID, rcpt.Email)
	}
}

// UpdateApproval records a reviewer decision. An approval is decided at
// most once; a second decision returns ErrAlreadyDecided. Approving an
// approval with a callback URL resumes the paused workflow.
func (g *Gate) UpdateApproval(ctx context.Context, approvalID string, req domain.ApprovalDecisionRequest) (*domain.Approval, error) {
	status := domain.ApprovalStatus(req.Status)
	if status != domain.ApprovalStatusApproved && status != domain.ApprovalStatusRejected {
		return nil, fmt.Errorf("status must be %q or %q: %w", domain.ApprovalStatusApproved, domain.ApprovalStatusRejected, domain.ErrInvalidArgument)
	}

	if err := g.store.DecideApproval(ctx, approvalID, status, req.Reason); err != nil {
		return nil, err
	}

	approval, err := g.GetApproval(ctx, approvalID)
	if err != nil {
		return nil, err
	}

	// Rejections leave the workflow paused; only approvals resume it.
	if approval.Status == domain.ApprovalStatusApproved && approval.CallbackURL != "" && g.engine != nil {
		if err := g.engine.ResumeCallback(ctx, approval.CallbackURL, approval.Reason); err != nil {
			log.Printf("ERROR: failed to resume workflow for approval %s: %v", approvalID, err)
		} else {
			log.Printf("Resumed workflow %s for approval %s", approval.WorkflowID, approvalID)
		}
	}

	return approval, nil
}

// GetApproval resolves an approval by id.
func (g *Gate) GetApproval(ctx context.Context, approvalID string) (*domain.Approval, error) {
	approval, err := g.store.GetApproval(ctx, approvalID)
	if err != nil {
		return nil, fmt.Errorf("failed to get approval: %w", err)
	}
	if approval == nil {
		return nil, fmt.Errorf("approval %s: %w", approvalID, domain.ErrNotFound)
	}
	return approval, nil
}

// ListByRun returns the approvals recorded for a run, newest first,
// optionally filtered by status.
func (g *Gate) ListByRun(ctx context.Context, runID string, status domain.ApprovalStatus) ([]domain.Approval, error) {
	if status != "" && status != domain.ApprovalStatusPending &&
		status != domain.ApprovalStatusApproved && status != domain.ApprovalStatusRejected {
		return nil, fmt.Errorf("unknown status filter %q: %w", status, domain.ErrInvalidArgument)
	}
	return g.store.ListApprovals(ctx, runID, status)
}
