package security

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Authorization errors. Like the codec errors, these are for internal
// reporting; callers surface a generic denial.
var (
	// ErrWrongCapability is returned when a token's capability does not match the required one.
	ErrWrongCapability = errors.New("token capability mismatch")
	// ErrWrongSession is returned when a token is scoped to a different session.
	ErrWrongSession = errors.New("token session mismatch")
	// ErrUnknownCapability is returned when asked to issue a token for a capability that does not exist.
	ErrUnknownCapability = errors.New("unknown capability")
)

// TokenAuthority is the policy layer over the Codec: it decides which
// capability a token grants, to which session it is scoped, and for how long.
type TokenAuthority struct {
	codec *Codec
	ttls  map[Capability]time.Duration
	nowF  func() time.Time
}

// NewTokenAuthority returns a TokenAuthority issuing tokens through codec.
// ttls holds the validity window per capability; capabilities without an entry
// fall back to defaultTTL.
func NewTokenAuthority(codec *Codec, ttls map[Capability]time.Duration, defaultTTL time.Duration) *TokenAuthority {
	resolved := make(map[Capability]time.Duration, 3)
	for _, c := range []Capability{CapabilityFetchAttributes, CapabilityReportCommStarted, CapabilityReportCompleted} {
		if ttl, ok := ttls[c]; ok && ttl > 0 {
			resolved[c] = ttl
		} else {
			resolved[c] = defaultTTL
		}
	}
	return &TokenAuthority{codec: codec, ttls: resolved, nowF: func() time.Time { return time.Now().UTC() }}
}

// IssueFor mints a single-capability token scoped to sessionID. Returns the
// token, its nonce, and its expiry.
func (a *TokenAuthority) IssueFor(sessionID string, capability Capability) (token, nonce string, expiresAt time.Time, err error) {
	if !capability.Valid() {
		return "", "", time.Time{}, ErrUnknownCapability
	}
	nonce = uuid.New().String()
	now := a.nowF()
	claims := NewClaims(sessionID, capability, nonce, now, a.ttls[capability])
	token, err = a.codec.Issue(claims)
	if err != nil {
		return "", "", time.Time{}, err
	}
	return token, nonce, claims.ExpiresAt.Time, nil
}

// Authorize verifies the token and checks that it grants exactly the required
// capability for the given session. A token minted for one capability never
// authorizes another, even when otherwise valid.
func (a *TokenAuthority) Authorize(tokenString string, required Capability, sessionID string) (*PlatformClaims, error) {
	claims, err := a.codec.Verify(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Capability != required {
		return nil, ErrWrongCapability
	}
	if claims.SessionID != sessionID {
		return nil, ErrWrongSession
	}
	return claims, nil
}
