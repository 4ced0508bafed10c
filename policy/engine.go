// Package policy evaluates spend policies with OPA.
package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
)

// Engine is the OPA spend-policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a new policy engine with the given policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.spend_policy.decision"),
		rego.Module("spend_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// ChargeInput is the policy input for a charge decision.
type ChargeInput struct {
	UserID  string `json:"user_id"`
	AgentID string `json:"agent_id"`
	Credits int    `json:"credits"`
	Balance int    `json:"balance"`
}

// Evaluate checks the spend policy for a charge.
// Returns the decision: "allow" or "block".
func (e *Engine) Evaluate(ctx context.Context, input ChargeInput) (string, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return "", fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		// The policy is expected to define a default.
		return "allow", nil
	}

	if s, ok := results[0].Expressions[0].Value.(string); ok {
		return s, nil
	}
	return "allow", nil
}

// DefaultPolicy allows every charge. Deployments override it to cap
// per-charge spend.
const DefaultPolicy = `
package spend_policy

default decision = "allow"

# Example: block single charges above a hard cap
# decision = "block" {
# 	input.credits > 10000
# }
`
