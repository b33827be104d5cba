package scopepolicy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
)

const policyPackage = "attex.scope"

// Default Rego policy: the asserted attribute names must be a subset of the
// session's attestation scope.
const defaultRegoPolicy = `package attex.scope

default allowed := false

allowed if {
	every name, _ in input.asserted {
		name in input.scope
	}
}
`

// OPAEvaluator evaluates the attestation-scope policy with the in-process OPA
// Rego engine. The policy is compiled once at construction; evaluation is
// safe for concurrent use.
type OPAEvaluator struct {
	query rego.PreparedEvalQuery
}

// NewOPAEvaluator compiles rules (or the default subset policy when rules is
// empty) and returns an evaluator for it.
func NewOPAEvaluator(rules string) (*OPAEvaluator, error) {
	if rules == "" {
		rules = defaultRegoPolicy
	}
	compiler, err := ast.CompileModules(map[string]string{"scope_policy.rego": rules})
	if err != nil {
		return nil, fmt.Errorf("compile scope policy: %w", err)
	}
	query, err := rego.New(
		rego.Query(fmt.Sprintf("data.%s.allowed", policyPackage)),
		rego.Compiler(compiler),
	).PrepareForEval(context.Background())
	if err != nil {
		return nil, fmt.Errorf("prepare scope policy: %w", err)
	}
	return &OPAEvaluator{query: query}, nil
}

// HealthCheck verifies the compiled policy evaluates against a minimal input.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	ok, err := e.Allows(ctx, []string{"name"}, map[string]string{"name": "x"})
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("scope policy rejected its own minimal input")
	}
	return nil
}

// Allows evaluates the policy for the given scope and asserted attributes.
func (e *OPAEvaluator) Allows(ctx context.Context, scope []string, asserted map[string]string) (bool, error) {
	if scope == nil {
		scope = []string{}
	}
	assertedNames := make(map[string]any, len(asserted))
	for name, value := range asserted {
		assertedNames[name] = value
	}
	input := map[string]any{
		"scope":    scope,
		"asserted": assertedNames,
	}
	rs, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return false, fmt.Errorf("eval scope policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, fmt.Errorf("scope policy query returned no result")
	}
	allowed, ok := rs[0].Expressions[0].Value.(bool)
	if !ok {
		return false, fmt.Errorf("scope policy returned non-boolean result")
	}
	return allowed, nil
}
