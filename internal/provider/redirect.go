package provider

import (
	"fmt"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"attex-trustcore/internal/security"
)

// startRequestTTL bounds the validity of a signed start request. The provider
// rejects stale requests past this window.
const startRequestTTL = 5 * time.Minute

// RedirectInfo is what a caller needs to send the user to the provider.
type RedirectInfo struct {
	// URL is the provider start URL carrying the signed request.
	URL string
	// SignedRequest is the start-request JWT, also available standalone for
	// callers that deliver it out of band.
	SignedRequest string
	// ExpiresAt is when the signed request stops being accepted.
	ExpiresAt time.Time
}

// StartRequest is the claim payload of a signed start request.
type StartRequest struct {
	SessionID        string   `json:"session_id"`
	Purpose          string   `json:"purpose"`
	AttestationScope []string `json:"attestation_scope"`
	ReturnURL        string   `json:"return_url"`
}

type startRequestClaims struct {
	jwt.RegisteredClaims
	Request StartRequest `json:"request"`
}

// RedirectBuilder signs start requests for the provider with a dedicated
// request-signing key identified by KeyID.
type RedirectBuilder struct {
	StartURL  string
	ReturnURL string
	KeyID     string
	Keys      *security.KeyMaterial
	nowF      func() time.Time
}

// NewRedirectBuilder returns a builder that signs start requests with keys
// and points users at startURL. returnURL is where the provider sends the
// user back after authentication.
func NewRedirectBuilder(startURL, returnURL, keyID string, keys *security.KeyMaterial) *RedirectBuilder {
	return &RedirectBuilder{
		StartURL:  startURL,
		ReturnURL: returnURL,
		KeyID:     keyID,
		Keys:      keys,
		nowF:      func() time.Time { return time.Now().UTC() },
	}
}

// Build signs a start request for the session and returns the redirect info.
func (b *RedirectBuilder) Build(sessionID, purpose string, scope []string) (*RedirectInfo, error) {
	now := b.nowF()
	expiresAt := now.Add(startRequestTTL)
	claims := startRequestClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Request: StartRequest{
			SessionID:        sessionID,
			Purpose:          purpose,
			AttestationScope: scope,
			ReturnURL:        b.ReturnURL,
		},
	}
	token := jwt.NewWithClaims(b.Keys.SigningMethod(), claims)
	token.Header["kid"] = b.KeyID
	signed, err := token.SignedString(b.Keys.SignerKey())
	if err != nil {
		return nil, fmt.Errorf("sign start request: %w", err)
	}
	return &RedirectInfo{
		URL:           b.StartURL + "?request=" + url.QueryEscape(signed),
		SignedRequest: signed,
		ExpiresAt:     expiresAt,
	}, nil
}
