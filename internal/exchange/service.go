// Package exchange implements the attribute-exchange coordinator: it drives a
// session from creation through provider authentication to attribute delivery
// and the communication lifecycle reports.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"attex-trustcore/internal/audit"
	"attex-trustcore/internal/provider"
	"attex-trustcore/internal/scopepolicy"
	"attex-trustcore/internal/security"
	sessiondomain "attex-trustcore/internal/session/domain"
	"attex-trustcore/internal/session/repository"
	"attex-trustcore/internal/telemetry"
	telemetrydomain "attex-trustcore/internal/telemetry/domain"
)

// Sentinel errors surfaced by the coordinator in addition to the repository
// and security sentinels it passes through unchanged.
var (
	// ErrAssertionInvalid is returned when the provider assertion failed
	// verification or exceeded the attestation scope. The session is failed.
	ErrAssertionInvalid = errors.New("assertion invalid")
	// ErrAlreadyConsumed is returned when the single-use attribute fetch for a
	// session has already happened, or the session moved past the fetch window.
	ErrAlreadyConsumed = errors.New("attributes already consumed")
	// ErrSessionExpired is returned when the session deadline has passed.
	ErrSessionExpired = errors.New("session expired")
	// ErrInvalidArgument is returned for empty purpose or scope on Start.
	ErrInvalidArgument = errors.New("invalid argument")
)

// telemetrySource identifies this service in emitted lifecycle events.
const telemetrySource = "trustcore"

// retryBackoff is the single bounded backoff before the one retry allowed on
// a transient storage failure.
const retryBackoff = 100 * time.Millisecond

// SessionRepo is the slice of the session repository the coordinator needs.
type SessionRepo interface {
	Create(ctx context.Context, s *sessiondomain.Session) error
	GetByID(ctx context.Context, id string) (*sessiondomain.Session, error)
	CompareAndTransition(ctx context.Context, id string, expected, next sessiondomain.State, mutate func(*sessiondomain.Session) error) (*sessiondomain.Session, error)
	ConsumeFetch(ctx context.Context, sessionID, nonceHash string) error
}

// TokenAuthority issues and authorizes platform tokens.
type TokenAuthority interface {
	IssueFor(sessionID string, capability security.Capability) (token, nonce string, expiresAt time.Time, err error)
	Authorize(tokenString string, required security.Capability, sessionID string) (*security.PlatformClaims, error)
}

// RedirectBuilder produces the provider redirect for a new session.
type RedirectBuilder interface {
	Build(sessionID, purpose string, scope []string) (*provider.RedirectInfo, error)
}

// StartResult is the outcome of Start: the new session and where to send the
// user.
type StartResult struct {
	SessionID string
	Redirect  *provider.RedirectInfo
	ExpiresAt time.Time
}

// IssuedToken is a freshly minted platform token for a communication plugin.
type IssuedToken struct {
	Token      string
	Capability security.Capability
	ExpiresAt  time.Time
}

// Service is the attribute-exchange coordinator.
type Service struct {
	repo           SessionRepo
	verifier       provider.AssertionVerifier
	scopePolicy    scopepolicy.Evaluator
	tokens         TokenAuthority
	redirects      RedirectBuilder
	auditor        audit.AuditLogger
	emitter        telemetry.EventEmitter
	sessionTTL     time.Duration
	singleUseFetch bool
	nowF           func() time.Time

	sessionsStarted metric.Int64Counter
	conflicts       metric.Int64Counter
	tokenDenials    metric.Int64Counter
}

// NewService returns a coordinator. auditor and emitter may be nil (audit and
// telemetry disabled). singleUseFetch makes the first successful attribute
// fetch consume the session's fetch permanently.
func NewService(
	repo SessionRepo,
	verifier provider.AssertionVerifier,
	scopePolicy scopepolicy.Evaluator,
	tokens TokenAuthority,
	redirects RedirectBuilder,
	auditor audit.AuditLogger,
	emitter telemetry.EventEmitter,
	sessionTTL time.Duration,
	singleUseFetch bool,
) *Service {
	meter := otel.Meter("attex-trustcore/exchange")
	sessionsStarted, _ := meter.Int64Counter("trustcore.sessions.started")
	conflicts, _ := meter.Int64Counter("trustcore.transitions.conflicts")
	tokenDenials, _ := meter.Int64Counter("trustcore.tokens.denials")
	return &Service{
		repo:            repo,
		verifier:        verifier,
		scopePolicy:     scopePolicy,
		tokens:          tokens,
		redirects:       redirects,
		auditor:         auditor,
		emitter:         emitter,
		sessionTTL:      sessionTTL,
		singleUseFetch:  singleUseFetch,
		nowF:            func() time.Time { return time.Now().UTC() },
		sessionsStarted: sessionsStarted,
		conflicts:       conflicts,
		tokenDenials:    tokenDenials,
	}
}

// Start creates a session for the given purpose and attestation scope, issues
// the provider redirect, and moves the session to awaiting_authentication.
func (s *Service) Start(ctx context.Context, purpose string, scope []string) (*StartResult, error) {
	if purpose == "" || len(scope) == 0 {
		return nil, ErrInvalidArgument
	}
	now := s.nowF()
	sess := &sessiondomain.Session{
		ID:               uuid.New().String(),
		State:            sessiondomain.StateCreated,
		Purpose:          purpose,
		AttestationScope: append([]string(nil), scope...),
		CreatedAt:        now,
		ExpiresAt:        now.Add(s.sessionTTL),
	}
	if err := s.withRetry(ctx, func() error { return s.repo.Create(ctx, sess) }); err != nil {
		return nil, err
	}
	s.sessionsStarted.Add(ctx, 1)
	s.audit(ctx, sess.ID, audit.ActionSessionStarted, purpose)
	s.emit(sess.ID, telemetrydomain.EventSessionStarted, sessiondomain.StateCreated, purpose)

	redirect, err := s.redirects.Build(sess.ID, purpose, sess.AttestationScope)
	if err != nil {
		s.failSession(ctx, sess.ID, sessiondomain.StateCreated, "redirect build failed")
		return nil, fmt.Errorf("build redirect: %w", err)
	}
	if _, err := s.transition(ctx, sess.ID, sessiondomain.StateCreated, sessiondomain.StateAwaitingAuthentication, nil); err != nil {
		return nil, err
	}
	s.audit(ctx, sess.ID, audit.ActionRedirectIssued, "")
	s.emit(sess.ID, telemetrydomain.EventRedirectIssued, sessiondomain.StateAwaitingAuthentication, "")
	return &StartResult{SessionID: sess.ID, Redirect: redirect, ExpiresAt: sess.ExpiresAt}, nil
}

// CompleteAuthentication verifies the provider assertion and populates the
// session attributes, exactly once. A verification timeout or provider outage
// leaves the session untouched so the caller may retry; an invalid or
// scope-exceeding assertion fails the session permanently with empty
// attributes.
func (s *Service) CompleteAuthentication(ctx context.Context, sessionID, assertion string) error {
	sess, err := s.getSession(ctx, sessionID)
	if err != nil {
		return err
	}
	switch sess.State {
	case sessiondomain.StateAwaitingAuthentication:
	case sessiondomain.StateExpired:
		return ErrSessionExpired
	default:
		s.conflicts.Add(ctx, 1)
		return repository.ErrConflict
	}

	attrs, err := s.verifier.VerifyAssertion(ctx, assertion)
	if err != nil {
		if errors.Is(err, provider.ErrProviderUnreachable) || errors.Is(err, context.DeadlineExceeded) {
			// No state write: retrying the verification call is safe.
			return err
		}
		s.failSession(ctx, sessionID, sessiondomain.StateAwaitingAuthentication, "assertion verification failed")
		return fmt.Errorf("%w: %v", ErrAssertionInvalid, err)
	}

	allowed, err := s.scopePolicy.Allows(ctx, sess.AttestationScope, attrs)
	if err != nil {
		return fmt.Errorf("scope policy: %w", err)
	}
	if !allowed {
		s.failSession(ctx, sessionID, sessiondomain.StateAwaitingAuthentication, "assertion exceeds attestation scope")
		return fmt.Errorf("%w: attestation scope exceeded", ErrAssertionInvalid)
	}

	if _, err := s.transition(ctx, sessionID, sessiondomain.StateAwaitingAuthentication, sessiondomain.StateAttributesReceived, func(cur *sessiondomain.Session) error {
		cur.Attributes = attrs
		return nil
	}); err != nil {
		return err
	}
	s.audit(ctx, sessionID, audit.ActionAttributesReceived, "")
	s.emit(sessionID, telemetrydomain.EventAttributesReceived, sessiondomain.StateAttributesReceived, "")
	return nil
}

// IssuePlatformToken mints a platform token for the given capability, scoped
// to the session. The session must exist and not be terminal.
func (s *Service) IssuePlatformToken(ctx context.Context, sessionID string, capability security.Capability) (*IssuedToken, error) {
	sess, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.State == sessiondomain.StateExpired {
		return nil, ErrSessionExpired
	}
	if sess.State.Terminal() {
		return nil, repository.ErrConflict
	}
	token, _, expiresAt, err := s.tokens.IssueFor(sessionID, capability)
	if err != nil {
		return nil, err
	}
	return &IssuedToken{Token: token, Capability: capability, ExpiresAt: expiresAt}, nil
}

// FetchAttributes returns the verified attributes for the session. The token
// must carry the fetch_attributes capability for exactly this session. The
// fetch window is the attributes_received state; in single-use mode the first
// successful fetch consumes it for good.
func (s *Service) FetchAttributes(ctx context.Context, sessionID, tokenString string) (map[string]string, error) {
	claims, err := s.tokens.Authorize(tokenString, security.CapabilityFetchAttributes, sessionID)
	if err != nil {
		s.denied(ctx, sessionID, "fetch_attributes", err)
		return nil, err
	}
	sess, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	switch sess.State {
	case sessiondomain.StateAttributesReceived:
	case sessiondomain.StateCommunicationStarted, sessiondomain.StateCompleted:
		return nil, ErrAlreadyConsumed
	case sessiondomain.StateExpired:
		return nil, ErrSessionExpired
	default:
		s.conflicts.Add(ctx, 1)
		return nil, repository.ErrConflict
	}
	if s.singleUseFetch {
		err := s.withRetry(ctx, func() error {
			return s.repo.ConsumeFetch(ctx, sessionID, security.HashNonce(claims.Nonce))
		})
		if err != nil {
			if errors.Is(err, repository.ErrFetchConsumed) {
				return nil, ErrAlreadyConsumed
			}
			return nil, err
		}
	}
	s.audit(ctx, sessionID, audit.ActionAttributesFetched, "")
	s.emit(sessionID, telemetrydomain.EventAttributesFetched, sess.State, "")
	return sess.Attributes, nil
}

// ReportCommStarted records that the communication channel started for the
// session. The transition out of attributes_received is also what revokes any
// further attribute fetches.
func (s *Service) ReportCommStarted(ctx context.Context, sessionID, tokenString string) error {
	if _, err := s.tokens.Authorize(tokenString, security.CapabilityReportCommStarted, sessionID); err != nil {
		s.denied(ctx, sessionID, "report_comm_started", err)
		return err
	}
	if _, err := s.transition(ctx, sessionID, sessiondomain.StateAttributesReceived, sessiondomain.StateCommunicationStarted, nil); err != nil {
		return err
	}
	s.audit(ctx, sessionID, audit.ActionCommStarted, "")
	s.emit(sessionID, telemetrydomain.EventCommStarted, sessiondomain.StateCommunicationStarted, "")
	return nil
}

// ReportCompleted records that the communication for the session completed.
func (s *Service) ReportCompleted(ctx context.Context, sessionID, tokenString string) error {
	if _, err := s.tokens.Authorize(tokenString, security.CapabilityReportCompleted, sessionID); err != nil {
		s.denied(ctx, sessionID, "report_completed", err)
		return err
	}
	if _, err := s.transition(ctx, sessionID, sessiondomain.StateCommunicationStarted, sessiondomain.StateCompleted, nil); err != nil {
		return err
	}
	s.audit(ctx, sessionID, audit.ActionCompleted, "")
	s.emit(sessionID, telemetrydomain.EventCompleted, sessiondomain.StateCompleted, "")
	return nil
}

// Fail moves the session to the failed terminal state with the given reason.
func (s *Service) Fail(ctx context.Context, sessionID, reason string) error {
	sess, err := s.getSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.State == sessiondomain.StateExpired {
		return ErrSessionExpired
	}
	if sess.State.Terminal() {
		return repository.ErrConflict
	}
	return s.failSession(ctx, sessionID, sess.State, reason)
}

// GetSession returns the session with expiry coercion applied.
func (s *Service) GetSession(ctx context.Context, sessionID string) (*sessiondomain.Session, error) {
	return s.getSession(ctx, sessionID)
}

func (s *Service) getSession(ctx context.Context, sessionID string) (*sessiondomain.Session, error) {
	var sess *sessiondomain.Session
	err := s.withRetry(ctx, func() error {
		var err error
		sess, err = s.repo.GetByID(ctx, sessionID)
		return err
	})
	return sess, err
}

func (s *Service) transition(ctx context.Context, sessionID string, expected, next sessiondomain.State, mutate func(*sessiondomain.Session) error) (*sessiondomain.Session, error) {
	var sess *sessiondomain.Session
	err := s.withRetry(ctx, func() error {
		var err error
		sess, err = s.repo.CompareAndTransition(ctx, sessionID, expected, next, mutate)
		return err
	})
	if errors.Is(err, repository.ErrConflict) {
		s.conflicts.Add(ctx, 1)
	}
	return sess, err
}

func (s *Service) failSession(ctx context.Context, sessionID string, from sessiondomain.State, reason string) error {
	_, err := s.transition(ctx, sessionID, from, sessiondomain.StateFailed, func(cur *sessiondomain.Session) error {
		cur.FailureReason = reason
		return nil
	})
	if err != nil {
		return err
	}
	s.audit(ctx, sessionID, audit.ActionFailed, reason)
	s.emit(sessionID, telemetrydomain.EventFailed, sessiondomain.StateFailed, reason)
	return nil
}

// withRetry runs op, retrying exactly once with a bounded backoff when the
// failure is a transient storage error. Conflicts and not-found are never
// retried.
func (s *Service) withRetry(ctx context.Context, op func() error) error {
	err := op()
	if !errors.Is(err, repository.ErrStorageUnavailable) {
		return err
	}
	select {
	case <-time.After(retryBackoff):
	case <-ctx.Done():
		return ctx.Err()
	}
	return op()
}

func (s *Service) denied(ctx context.Context, sessionID, operation string, err error) {
	s.tokenDenials.Add(ctx, 1)
	s.audit(ctx, sessionID, audit.ActionDenied, fmt.Sprintf("%s: %v", operation, err))
}

func (s *Service) audit(ctx context.Context, sessionID, action, detail string) {
	if s.auditor != nil {
		s.auditor.LogEvent(ctx, sessionID, action, detail)
	}
}

func (s *Service) emit(sessionID, eventType string, state sessiondomain.State, detail string) {
	if s.emitter == nil {
		return
	}
	telemetry.EmitAsync(s.emitter, &telemetrydomain.Event{
		SessionID: sessionID,
		EventType: eventType,
		State:     string(state),
		Detail:    detail,
		Source:    telemetrySource,
		CreatedAt: s.nowF(),
	})
}
