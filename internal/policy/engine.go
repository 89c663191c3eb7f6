// Package policy gates tool dispatch with an OPA rego policy.
package policy

import (
	"context"
	"fmt"
	"slices"

	"github.com/open-policy-agent/opa/rego"
)

// Decision values returned by the policy.
const (
	DecisionAllow = "allow"
	DecisionBlock = "block"
)

// Decision is the outcome of evaluating one tool call.
type Decision struct {
	Decision string
	Reason   string
}

// Allowed reports whether the tool call may be dispatched.
func (d Decision) Allowed() bool {
	return d.Decision != DecisionBlock
}

// Engine is the OPA policy engine.
type Engine struct {
	query    rego.PreparedEvalQuery
	disabled []string
}

// NewEngine creates a policy engine from rego source. disabled is passed to
// the policy as input.disabled_tools.
func NewEngine(ctx context.Context, policyContent string, disabled []string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.tool_policy.decision"),
		rego.Module("tool_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	if disabled == nil {
		disabled = []string{}
	}
	return &Engine{query: query, disabled: slices.Clone(disabled)}, nil
}

// Evaluate checks whether the named tool may run with args.
func (e *Engine) Evaluate(ctx context.Context, toolName string, args map[string]any) (Decision, error) {
	if args == nil {
		args = map[string]any{}
	}
	input := map[string]any{
		"tool_name":      toolName,
		"args":           args,
		"disabled_tools": e.disabled,
	}

	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return Decision{}, fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return Decision{Decision: DecisionAllow, Reason: "no decision"}, nil
	}

	switch val := results[0].Expressions[0].Value.(type) {
	case string:
		return Decision{Decision: val}, nil
	case map[string]interface{}:
		d := Decision{Decision: DecisionAllow}
		if s, ok := val["decision"].(string); ok {
			d.Decision = s
		}
		if s, ok := val["reason"].(string); ok {
			d.Reason = s
		}
		return d, nil
	default:
		return Decision{Decision: DecisionAllow, Reason: "unexpected return type"}, nil
	}
}

// DefaultPolicy allows every tool except the ones disabled by configuration.
const DefaultPolicy = `
package tool_policy

default decision = {"decision": "allow", "reason": "default"}

decision = {"decision": "block", "reason": "tool disabled by configuration"} {
	input.disabled_tools[_] == input.tool_name
}
`
