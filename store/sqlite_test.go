package store_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/runmeter/runmeter/domain"
	"github.com/runmeter/runmeter/tests/helpers"
	"github.com/stretchr/testify/assert"
)

func txn(userID string, typ domain.TransactionType, credits int) *domain.Transaction {
	return &domain.Transaction{
		ID:        uuid.New().String(),
		Timestamp: time.Now(),
		UserID:    userID,
		AgentID:   "a1",
		Type:      typ,
		Credits:   credits,
	}
}

func TestAppendTransactionBalanceChain(t *testing.T) {
	ctx := context.Background()
	s := helpers.NewTestSQLiteStore(t)

	refill := txn("u1", domain.TransactionTypeRefill, 100)
	if err := s.AppendTransaction(ctx, refill); err != nil {
		t.Fatalf("refill failed: %v", err)
	}
	if refill.Balance != 100 {
		t.Fatalf("expected balance 100, got %d", refill.Balance)
	}

	charge := txn("u1", domain.TransactionTypeRun, 30)
	if err := s.AppendTransaction(ctx, charge); err != nil {
		t.Fatalf("charge failed: %v", err)
	}
	if charge.Balance != 70 {
		t.Fatalf("expected balance 70, got %d", charge.Balance)
	}

	latest, err := s.LatestTransaction(ctx, "u1")
	if err != nil {
		t.Fatalf("LatestTransaction failed: %v", err)
	}
	if latest == nil || latest.ID != charge.ID || latest.Balance != 70 {
		t.Fatalf("unexpected latest transaction: %+v", latest)
	}
}

func TestAppendTransactionInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	s := helpers.NewTestSQLiteStore(t)

	charge := txn("u1", domain.TransactionTypeRun, 50)
	err := s.AppendTransaction(ctx, charge)
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	// The rejected debit must not have written anything.
	latest, err := s.LatestTransaction(ctx, "u1")
	if err != nil {
		t.Fatalf("LatestTransaction failed: %v", err)
	}
	if latest != nil {
		t.Fatalf("expected no transactions, got %+v", latest)
	}
}

func TestAppendTransactionBalancesArePerUser(t *testing.T) {
	ctx := context.Background()
	s := helpers.NewTestSQLiteStore(t)

	if err := s.AppendTransaction(ctx, txn("u1", domain.TransactionTypeRefill, 100)); err != nil {
		t.Fatalf("refill u1 failed: %v", err)
	}

	charge := txn("u2", domain.TransactionTypeRun, 10)
	if err := s.AppendTransaction(ctx, charge); !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds for u2, got %v", err)
	}
}

func TestAppendTransactionUnknownType(t *testing.T) {
	ctx := context.Background()
	s := helpers.NewTestSQLiteStore(t)

	bad := txn("u1", domain.TransactionType("bonus"), 10)
	if err := s.AppendTransaction(ctx, bad); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestAppendRunResultAccumulates(t *testing.T) {
	ctx := context.Background()
	s := helpers.NewTestSQLiteStore(t)

	run := &domain.Run{ID: uuid.New().String(), CreatedAt: time.Now(), UserID: "u1", AgentID: "a1"}
	assert.NoError(t, s.CreateRun(ctx, run))

	assert.NoError(t, s.AppendRunResult(ctx, run.ID, domain.FlowResult{
		AgentID: "a1", ExecutionID: "e1", ResultJSON: json.RawMessage(`{"step":1}`),
	}))
	assert.NoError(t, s.AppendRunResult(ctx, run.ID, domain.FlowResult{
		AgentID: "a2", ExecutionID: "e2", ResultJSON: json.RawMessage(`{"step":2}`),
	}))

	got, err := s.GetRun(ctx, run.ID)
	assert.NoError(t, err)
	assert.NotNil(t, got)

	var results struct {
		Flow []domain.FlowResult `json:"flow"`
	}
	assert.NoError(t, json.Unmarshal(got.Results, &results))
	assert.Len(t, results.Flow, 2)
	assert.Equal(t, "a1", results.Flow[0].AgentID)
	assert.Equal(t, "a2", results.Flow[1].AgentID)
}

func TestAppendRunResultMissingRun(t *testing.T) {
	ctx := context.Background()
	s := helpers.NewTestSQLiteStore(t)

	err := s.AppendRunResult(ctx, "nope", domain.FlowResult{AgentID: "a1"})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteRun(t *testing.T) {
	ctx := context.Background()
	s := helpers.NewTestSQLiteStore(t)

	run := &domain.Run{ID: uuid.New().String(), CreatedAt: time.Now(), UserID: "u1"}
	assert.NoError(t, s.CreateRun(ctx, run))

	deleted, err := s.DeleteRun(ctx, run.ID)
	assert.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = s.DeleteRun(ctx, run.ID)
	assert.NoError(t, err)
	assert.False(t, deleted)
}

func TestUpdateRunStatusMissing(t *testing.T) {
	ctx := context.Background()
	s := helpers.NewTestSQLiteStore(t)

	err := s.UpdateRunStatus(ctx, "nope", "completed", time.Now())
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDecideApprovalOnce(t *testing.T) {
	ctx := context.Background()
	s := helpers.NewTestSQLiteStore(t)

	approval := &domain.Approval{
		ID:        uuid.New().String(),
		CreatedAt: time.Now(),
		RunID:     "r1",
		Status:    domain.ApprovalStatusPending,
	}
	assert.NoError(t, s.CreateApproval(ctx, approval))

	assert.NoError(t, s.DecideApproval(ctx, approval.ID, domain.ApprovalStatusApproved, "ok"))

	got, err := s.GetApproval(ctx, approval.ID)
	assert.NoError(t, err)
	assert.Equal(t, domain.ApprovalStatusApproved, got.Status)
	assert.Equal(t, "ok", got.Reason)

	err = s.DecideApproval(ctx, approval.ID, domain.ApprovalStatusRejected, "changed my mind")
	assert.ErrorIs(t, err, domain.ErrAlreadyDecided)

	// The first decision must stand.
	got, err = s.GetApproval(ctx, approval.ID)
	assert.NoError(t, err)
	assert.Equal(t, domain.ApprovalStatusApproved, got.Status)
}

func TestDecideApprovalMissing(t *testing.T) {
	ctx := context.Background()
	s := helpers.NewTestSQLiteStore(t)

	err := s.DecideApproval(ctx, "nope", domain.ApprovalStatusApproved, "")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDecideApprovalKeepsReasonWhenEmpty(t *testing.T) {
	ctx := context.Background()
	s := helpers.NewTestSQLiteStore(t)

	approval := &domain.Approval{
		ID:        uuid.New().String(),
		CreatedAt: time.Now(),
		RunID:     "r1",
		Reason:    "needs review",
		Status:    domain.ApprovalStatusPending,
	}
	assert.NoError(t, s.CreateApproval(ctx, approval))
	assert.NoError(t, s.DecideApproval(ctx, approval.ID, domain.ApprovalStatusRejected, ""))

	got, err := s.GetApproval(ctx, approval.ID)
	assert.NoError(t, err)
	assert.Equal(t, "needs review", got.Reason)
}
