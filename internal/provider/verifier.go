// Package provider is the boundary to the external authentication provider:
// verifying attribute assertions and building the redirect that sends a user
// to the provider.
package provider

import (
	"context"
	"errors"
)

var (
	// ErrAssertionRejected is returned when the provider refuses the assertion
	// (bad signature, unknown format, failed verification).
	ErrAssertionRejected = errors.New("assertion rejected by provider")
	// ErrProviderUnreachable is returned for network failures and timeouts.
	// The caller must leave the session untouched so a retry is safe.
	ErrProviderUnreachable = errors.New("authentication provider unreachable")
)

// AssertionVerifier verifies a signed attribute assertion and returns the
// verified attribute values. Implementations must honor the context deadline.
type AssertionVerifier interface {
	VerifyAssertion(ctx context.Context, assertion string) (map[string]string, error)
}
