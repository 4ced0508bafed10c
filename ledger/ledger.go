// Package ledger tracks per-user credit balances as an append-only
// transaction log. The balance of a user is the balance snapshot of their
// most recent transaction.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/runmeter/runmeter/domain"
	"github.com/runmeter/runmeter/policy"
	"github.com/runmeter/runmeter/store"
)

// Ledger applies charges and refills and derives balances and reports.
type Ledger struct {
	store  store.Store
	policy *policy.Engine
}

// New creates a ledger backed by the given store. The policy engine is
// consulted on every charge; pass nil to disable spend policies.
func New(st store.Store, pol *policy.Engine) *Ledger {
	return &Ledger{store: st, policy: pol}
}

// GetBalance returns the current balance for a user, derived from the most
// recent transaction. A user with no transactions has balance 0.
func (l *Ledger) GetBalance(ctx context.Context, userID string) (*domain.BalanceResponse, error) {
	txn, err := l.store.LatestTransaction(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	if txn == nil {
		return &domain.BalanceResponse{
			UserID:    userID,
			Balance:   0,
			Timestamp: time.Now(),
		}, nil
	}
	return &domain.BalanceResponse{
		UserID:    userID,
		Balance:   txn.Balance,
		Timestamp: txn.Timestamp,
	}, nil
}

// Charge debits credits from a user for an agent run. The debit and the
// balance derivation happen in one atomic store operation; an insufficient
// balance writes nothing and returns ErrInsufficientFunds.
func (l *Ledger) Charge(ctx context.Context, userID string, req domain.ChargeRequest) (*domain.Transaction, error) {
	if req.Credits <= 0 {
		return nil, fmt.Errorf("credits must be positive: %w", domain.ErrInvalidArgument)
	}
	if req.AgentID == "" {
		return nil, fmt.Errorf("agent_id is required for charging credits: %w", domain.ErrInvalidArgument)
	}

	if l.policy != nil {
		balance, err := l.GetBalance(ctx, userID)
		if err != nil {
			return nil, err
		}
		decision, err := l.policy.Evaluate(ctx, policy.ChargeInput{
			UserID:  userID,
			AgentID: req.AgentID,
			Credits: req.Credits,
			Balance: balance.Balance,
		})
		if err != nil {
			return nil, fmt.Errorf("spend policy evaluation failed: %w", err)
		}
		if decision != "allow" {
			return nil, fmt.Errorf("charge of %d credits for agent %s: %w", req.Credits, req.AgentID, domain.ErrPolicyBlocked)
		}
	}

	txn := &domain.Transaction{
		ID:          uuid.New().String(),
		Timestamp:   time.Now(),
		UserID:      userID,
		AgentID:     req.AgentID,
		RunID:       req.RunID,
		Type:        domain.TransactionTypeRun,
		Credits:     req.Credits,
		Description: req.Description,
	}
	if err := l.store.AppendTransaction(ctx, txn); err != nil {
		return nil, err
	}
	return txn, nil
}

// Refill adds credits to a user's balance.
func (l *Ledger) Refill(ctx context.Context, userID string, req domain.RefillRequest) (*domain.Transaction, error) {
	if req.Credits <= 0 {
		return nil, fmt.Errorf("credits must be positive: %w", domain.ErrInvalidArgument)
	}

	txn := &domain.Transaction{
		ID:          uuid.New().String(),
		Timestamp:   time.Now(),
		UserID:      userID,
		Type:        domain.TransactionTypeRefill,
		Credits:     req.Credits,
		Description: req.Description,
	}
	if err := l.store.AppendTransaction(ctx, txn); err != nil {
		return nil, err
	}
	return txn, nil
}
