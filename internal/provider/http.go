package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultTimeout = 15 * time.Second

// HTTPVerifier verifies assertions against the provider's verification
// endpoint.
type HTTPVerifier struct {
	VerifyURL  string
	HTTPClient *http.Client
}

// NewHTTPVerifier returns a verifier calling the given verification endpoint.
func NewHTTPVerifier(verifyURL string) *HTTPVerifier {
	return &HTTPVerifier{
		VerifyURL:  verifyURL,
		HTTPClient: &http.Client{Timeout: defaultTimeout},
	}
}

type verifyRequest struct {
	Assertion string `json:"assertion"`
}

type verifyResponse struct {
	Status     string            `json:"status"`
	Attributes map[string]string `json:"attributes"`
}

// VerifyAssertion posts the assertion to the provider and returns the
// verified attributes. Network failures map to ErrProviderUnreachable, any
// provider-side refusal to ErrAssertionRejected.
func (v *HTTPVerifier) VerifyAssertion(ctx context.Context, assertion string) (map[string]string, error) {
	raw, err := json.Marshal(verifyRequest{Assertion: assertion})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.VerifyURL, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := v.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnreachable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%w: status %d", ErrProviderUnreachable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: status=%d body=%s", ErrAssertionRejected, resp.StatusCode, string(b))
	}
	var out verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAssertionRejected, err)
	}
	if out.Status != "success" || out.Attributes == nil {
		return nil, fmt.Errorf("%w: status=%q", ErrAssertionRejected, out.Status)
	}
	return out.Attributes, nil
}
