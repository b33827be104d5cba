// Package security holds the platform token codec, the capability authority,
// and the key material they share. Key material is read-only after startup;
// everything here is safe for concurrent use.
package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Codec errors. Authorize callers must map these to a generic denial; the
// distinct kinds exist for logging and telemetry only.
var (
	// ErrMalformed is returned for structurally invalid tokens.
	ErrMalformed = errors.New("malformed token")
	// ErrInvalidSignature is returned when the signature does not verify.
	ErrInvalidSignature = errors.New("invalid token signature")
	// ErrTokenExpired is returned when the token's validity window has passed.
	ErrTokenExpired = errors.New("token expired")
)

// Capability enumerates the operations a platform token may authorize.
type Capability string

const (
	// CapabilityFetchAttributes authorizes retrieving the verified attributes of a session.
	CapabilityFetchAttributes Capability = "fetch_attributes"
	// CapabilityReportCommStarted authorizes reporting that communication has started.
	CapabilityReportCommStarted Capability = "report_comm_started"
	// CapabilityReportCompleted authorizes reporting that communication has completed.
	CapabilityReportCompleted Capability = "report_completed"
)

// Valid reports whether c is a known capability.
func (c Capability) Valid() bool {
	switch c {
	case CapabilityFetchAttributes, CapabilityReportCommStarted, CapabilityReportCompleted:
		return true
	}
	return false
}

// PlatformClaims is the claim set carried by a platform token: the session it
// is scoped to, the single capability it grants, and a per-issuance nonce.
type PlatformClaims struct {
	jwt.RegisteredClaims
	SessionID  string     `json:"session_id"`
	Capability Capability `json:"capability"`
	Nonce      string     `json:"nonce"`
}

// Codec signs and verifies platform tokens with fixed key material.
type Codec struct {
	keys   *KeyMaterial
	issuer string
}

// NewCodec returns a Codec using the given key material. issuer is set on
// issued tokens and required on verified ones.
func NewCodec(keys *KeyMaterial, issuer string) *Codec {
	return &Codec{keys: keys, issuer: issuer}
}

// Issue signs the claims and returns the compact token string.
func (c *Codec) Issue(claims *PlatformClaims) (string, error) {
	if !c.keys.CanSign() {
		return "", ErrInvalidKey
	}
	claims.Issuer = c.issuer
	t := jwt.NewWithClaims(c.keys.method, claims)
	return t.SignedString(c.keys.signKey)
}

// Verify parses the token, checks its signature, expiry, and issuer, and
// returns the claims. It fails with ErrMalformed, ErrInvalidSignature, or
// ErrTokenExpired; no other error kinds reach callers.
func (c *Codec) Verify(tokenString string) (*PlatformClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &PlatformClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != c.keys.method.Alg() {
			return nil, ErrInvalidSignature
		}
		return c.keys.verifyKey, nil
	}, jwt.WithIssuer(c.issuer), jwt.WithExpirationRequired())
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrInvalidSignature
		case errors.Is(err, jwt.ErrTokenInvalidIssuer):
			return nil, ErrInvalidSignature
		default:
			return nil, ErrMalformed
		}
	}
	claims, ok := token.Claims.(*PlatformClaims)
	if !ok || !token.Valid {
		return nil, ErrMalformed
	}
	return claims, nil
}

// NewClaims builds a claim set for the given session and capability with the
// validity window [now, now+ttl).
func NewClaims(sessionID string, capability Capability, nonce string, now time.Time, ttl time.Duration) *PlatformClaims {
	return &PlatformClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		SessionID:  sessionID,
		Capability: capability,
		Nonce:      nonce,
	}
}
