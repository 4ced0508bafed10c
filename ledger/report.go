package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/runmeter/runmeter/domain"
)

// Report aggregates the run transactions of the interval by agent. Missing
// agent titles are not fatal; a generated label is used instead.
func (l *Ledger) Report(ctx context.Context, userID string, interval domain.ReportInterval) (*domain.ReportResponse, error) {
	now := time.Now()
	start, err := intervalStart(now, interval)
	if err != nil {
		return nil, err
	}

	balance, err := l.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}

	txns, err := l.store.ListTransactions(ctx, userID, domain.TransactionTypeRun, start, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}

	type agentStats struct {
		totalCredits int
		runs         map[string]struct{}
	}
	stats := map[string]*agentStats{}
	totalCredits := 0

	for _, txn := range txns {
		st, ok := stats[txn.AgentID]
		if !ok {
			st = &agentStats{runs: map[string]struct{}{}}
			stats[txn.AgentID] = st
		}
		st.totalCredits += txn.Credits
		totalCredits += txn.Credits
		if txn.RunID != "" {
			st.runs[txn.RunID] = struct{}{}
		}
	}

	agents := make([]domain.AgentUsage, 0, len(stats))
	for agentID, st := range stats {
		runCount := len(st.runs)
		divisor := runCount
		if divisor == 0 {
			divisor = 1
		}
		agents = append(agents, domain.AgentUsage{
			AgentID:          agentID,
			AgentTitle:       l.agentTitle(ctx, agentID),
			TotalCredits:     st.totalCredits,
			RunCount:         runCount,
			AvgCreditsPerRun: float64(st.totalCredits) / float64(divisor),
		})
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i].AgentTitle < agents[j].AgentTitle })

	return &domain.ReportResponse{
		UserID:           userID,
		Interval:         interval,
		StartDate:        start,
		EndDate:          now,
		TotalCredits:     totalCredits,
		CreditsRemaining: balance.Balance,
		Agents:           agents,
	}, nil
}

// agentTitle resolves an agent's display title, falling back to a label
// derived from the id when the agent is unknown or untitled.
func (l *Ledger) agentTitle(ctx context.Context, agentID string) string {
	fallback := "Agent " + agentID
	if len(agentID) >= 8 {
		fallback = "Agent " + agentID[:8]
	}

	agent, err := l.store.GetAgent(ctx, agentID)
	if err != nil || agent == nil || agent.Title == "" {
		return fallback
	}
	return agent.Title
}

// intervalStart returns the beginning of the report window: midnight today,
// the first of the month, or the first of January of the current year.
func intervalStart(now time.Time, interval domain.ReportInterval) (time.Time, error) {
	switch interval {
	case domain.ReportIntervalDay:
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()), nil
	case domain.ReportIntervalMonth:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()), nil
	case domain.ReportIntervalYear:
		return time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, now.Location()), nil
	default:
		return time.Time{}, fmt.Errorf("invalid interval %q, must be 'day', 'month', or 'year': %w", interval, domain.ErrInvalidArgument)
	}
}
