package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/runmeter/runmeter/domain"
	"github.com/runmeter/runmeter/ledger"
	"github.com/runmeter/runmeter/policy"
	"github.com/runmeter/runmeter/tests/helpers"
	"github.com/stretchr/testify/assert"
)

func newTestLedger(t *testing.T) *ledger.Ledger {
	t.Helper()

	s := helpers.NewTestSQLiteStore(t)
	policyEngine, err := policy.NewEngine(context.Background(), policy.DefaultPolicy)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	return ledger.New(s, policyEngine)
}

func TestBalanceStartsAtZero(t *testing.T) {
	led := newTestLedger(t)

	balance, err := led.GetBalance(context.Background(), "u1")
	assert.NoError(t, err)
	assert.Equal(t, 0, balance.Balance)
	assert.Equal(t, "u1", balance.UserID)
}

func TestRefillThenCharge(t *testing.T) {
	ctx := context.Background()
	led := newTestLedger(t)

	refill, err := led.Refill(ctx, "u1", domain.RefillRequest{Credits: 100, Description: "signup bonus"})
	assert.NoError(t, err)
	assert.Equal(t, 100, refill.Balance)

	charge, err := led.Charge(ctx, "u1", domain.ChargeRequest{Credits: 40, AgentID: "a1", RunID: "r1"})
	assert.NoError(t, err)
	assert.Equal(t, 60, charge.Balance)
	assert.Equal(t, domain.TransactionTypeRun, charge.Type)

	balance, err := led.GetBalance(ctx, "u1")
	assert.NoError(t, err)
	assert.Equal(t, 60, balance.Balance)
}

func TestChargeInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	led := newTestLedger(t)

	_, err := led.Refill(ctx, "u1", domain.RefillRequest{Credits: 10})
	assert.NoError(t, err)

	_, err = led.Charge(ctx, "u1", domain.ChargeRequest{Credits: 11, AgentID: "a1"})
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	// The failed charge must not change the balance.
	balance, err := led.GetBalance(ctx, "u1")
	assert.NoError(t, err)
	assert.Equal(t, 10, balance.Balance)
}

func TestChargeValidation(t *testing.T) {
	ctx := context.Background()
	led := newTestLedger(t)

	_, err := led.Charge(ctx, "u1", domain.ChargeRequest{Credits: 0, AgentID: "a1"})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = led.Charge(ctx, "u1", domain.ChargeRequest{Credits: -5, AgentID: "a1"})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = led.Charge(ctx, "u1", domain.ChargeRequest{Credits: 5})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestRefillValidation(t *testing.T) {
	led := newTestLedger(t)

	_, err := led.Refill(context.Background(), "u1", domain.RefillRequest{Credits: 0})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestChargesNeverOverspend(t *testing.T) {
	ctx := context.Background()
	led := newTestLedger(t)

	_, err := led.Refill(ctx, "u1", domain.RefillRequest{Credits: 50})
	assert.NoError(t, err)

	// 10 charges of 10 credits against a balance of 50: exactly 5 may win.
	succeeded := 0
	for i := 0; i < 10; i++ {
		_, err := led.Charge(ctx, "u1", domain.ChargeRequest{Credits: 10, AgentID: "a1"})
		if err == nil {
			succeeded++
		} else if !errors.Is(err, domain.ErrInsufficientFunds) {
			t.Fatalf("unexpected charge error: %v", err)
		}
	}
	assert.Equal(t, 5, succeeded)

	balance, err := led.GetBalance(ctx, "u1")
	assert.NoError(t, err)
	assert.Equal(t, 0, balance.Balance)
}

func TestReportAggregatesByAgent(t *testing.T) {
	ctx := context.Background()
	s := helpers.NewTestSQLiteStore(t)
	led := ledger.New(s, nil)

	assert.NoError(t, s.RegisterAgent(ctx, &domain.Agent{
		ID: "agent-one", Title: "Scraper", Endpoint: "http://a1", CreatedAt: time.Now(),
	}))

	_, err := led.Refill(ctx, "u1", domain.RefillRequest{Credits: 100})
	assert.NoError(t, err)

	_, err = led.Charge(ctx, "u1", domain.ChargeRequest{Credits: 10, AgentID: "agent-one", RunID: "r1"})
	assert.NoError(t, err)
	_, err = led.Charge(ctx, "u1", domain.ChargeRequest{Credits: 20, AgentID: "agent-one", RunID: "r2"})
	assert.NoError(t, err)
	_, err = led.Charge(ctx, "u1", domain.ChargeRequest{Credits: 5, AgentID: "agent-unknown-12345", RunID: "r3"})
	assert.NoError(t, err)

	report, err := led.Report(ctx, "u1", domain.ReportIntervalDay)
	assert.NoError(t, err)
	assert.Equal(t, 35, report.TotalCredits)
	assert.Equal(t, 65, report.CreditsRemaining)
	assert.Len(t, report.Agents, 2)

	byID := map[string]domain.AgentUsage{}
	for _, usage := range report.Agents {
		byID[usage.AgentID] = usage
	}

	scraper := byID["agent-one"]
	assert.Equal(t, "Scraper", scraper.AgentTitle)
	assert.Equal(t, 30, scraper.TotalCredits)
	assert.Equal(t, 2, scraper.RunCount)
	assert.Equal(t, 15.0, scraper.AvgCreditsPerRun)

	// Unknown agents get a label derived from the id.
	unknown := byID["agent-unknown-12345"]
	assert.Equal(t, "Agent agent-un", unknown.AgentTitle)
	assert.Equal(t, 5, unknown.TotalCredits)
}

func TestReportInvalidInterval(t *testing.T) {
	led := newTestLedger(t)

	_, err := led.Report(context.Background(), "u1", domain.ReportInterval("week"))
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}
