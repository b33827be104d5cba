// Package scopepolicy decides whether an assertion's attributes are within
// the attestation scope a session was authorized for.
package scopepolicy

import "context"

// Evaluator evaluates the attestation-scope policy for a session.
type Evaluator interface {
	// Allows reports whether every asserted attribute name is permitted by the
	// session's attestation scope. A false result must fail the session, never
	// truncate the attributes.
	Allows(ctx context.Context, scope []string, asserted map[string]string) (bool, error)
}

// SubsetEvaluator is the policy-engine-free fallback: a plain subset check.
type SubsetEvaluator struct{}

// Allows reports whether asserted attribute names are a subset of scope.
func (SubsetEvaluator) Allows(_ context.Context, scope []string, asserted map[string]string) (bool, error) {
	allowed := make(map[string]struct{}, len(scope))
	for _, name := range scope {
		allowed[name] = struct{}{}
	}
	for name := range asserted {
		if _, ok := allowed[name]; !ok {
			return false, nil
		}
	}
	return true, nil
}
