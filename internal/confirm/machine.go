// internal/confirm/machine.go
package confirm

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"resetctl/internal/scope"
)

// SubmitResult is the outcome of one stage submission.
type SubmitResult struct {
	Advanced     bool
	CurrentStage int
	Confirmed    bool
	Token        *Token
}

// Machine drives the five-stage confirmation gate. It validates operator
// input per stage, enforces strict ordering, and issues a scope-bound token
// after the settle delay. It holds no inventory knowledge; the preview count
// it carries into the token is supplied by the caller at Start.
type Machine struct {
	sessions    SessionStore
	tokens      TokenStore
	sessionTTL  time.Duration
	settleDelay time.Duration
	tokenTTL    time.Duration
	log         *zap.SugaredLogger

	locks keyedMutex

	// test seams
	now   func() time.Time
	sleep func(time.Duration)
}

func NewMachine(sessions SessionStore, tokens TokenStore, sessionTTL, settleDelay, tokenTTL time.Duration, log *zap.SugaredLogger) *Machine {
	return &Machine{
		sessions:    sessions,
		tokens:      tokens,
		sessionTTL:  sessionTTL,
		settleDelay: settleDelay,
		tokenTTL:    tokenTTL,
		log:         log,
		now:         time.Now,
		sleep:       time.Sleep,
	}
}

// Start opens a session at stage 1 for the given scope.
func (m *Machine) Start(ctx context.Context, d scope.Descriptor, previewCount int) (Session, error) {
	if err := d.Validate(); err != nil {
		return Session{}, err
	}
	now := m.now()
	s := Session{
		ID:           uuid.NewString(),
		TenantID:     d.TenantID,
		Scope:        d,
		Stage:        1,
		StageInputs:  map[int]string{},
		PreviewCount: previewCount,
		State:        StateActive,
		CreatedAt:    now,
		ExpiresAt:    now.Add(m.sessionTTL),
	}
	if err := m.sessions.Put(ctx, s, m.sessionTTL); err != nil {
		return Session{}, err
	}
	return s, nil
}

// Submit validates input for the given stage. A failed validation leaves the
// session untouched so the operator can retry until the session TTL runs
// out. Passing stage 5 triggers the settle delay, during which the session
// is locked, then issues the token and destroys the session.
func (m *Machine) Submit(ctx context.Context, sessionID string, stage int, input string) (SubmitResult, error) {
	unlock := m.locks.lock(sessionID)
	s, err := m.load(ctx, sessionID)
	if err != nil {
		unlock()
		return SubmitResult{}, err
	}
	if s.State == StateSettling {
		unlock()
		return SubmitResult{}, ErrSessionLocked
	}
	if stage != s.Stage {
		unlock()
		return SubmitResult{CurrentStage: s.Stage}, ErrStageMismatch
	}
	if !validStageInput(s, stage, input) {
		unlock()
		return SubmitResult{CurrentStage: s.Stage}, ErrValidationFailed
	}
	s.StageInputs[stage] = input
	if stage < NumStages {
		s.Stage++
		if err := m.put(ctx, s); err != nil {
			unlock()
			return SubmitResult{}, err
		}
		unlock()
		return SubmitResult{Advanced: true, CurrentStage: s.Stage}, nil
	}

	// Stage 5 passed: lock the session for the settle delay, released only
	// by token issuance. The lock is persisted, not held in-process, so
	// cancels racing the delay are rejected rather than queued.
	s.State = StateSettling
	if err := m.put(ctx, s); err != nil {
		unlock()
		return SubmitResult{}, err
	}
	unlock()

	m.sleep(m.settleDelay)

	unlock = m.locks.lock(sessionID)
	defer unlock()
	s, err = m.load(ctx, sessionID)
	if err != nil {
		return SubmitResult{}, err
	}
	tok := Token{
		ID:             newTokenID(),
		TenantID:       s.TenantID,
		ScopeCanonical: s.Scope.Canonical(),
		PreviewCount:   s.PreviewCount,
		IssuedAt:       m.now(),
	}
	tok.ExpiresAt = tok.IssuedAt.Add(m.tokenTTL)
	if err := m.tokens.Put(ctx, tok, m.tokenTTL); err != nil {
		return SubmitResult{}, err
	}
	if err := m.sessions.Delete(ctx, sessionID); err != nil {
		m.log.Warnw("confirmed session cleanup failed", "session", sessionID, "err", err)
	}
	m.log.Infow("confirmation complete, token issued",
		"session", sessionID, "tenant", s.TenantID, "scope", string(s.Scope.Canonical()))
	return SubmitResult{Advanced: true, CurrentStage: NumStages, Confirmed: true, Token: &tok}, nil
}

// Back reopens the previous stage's input. Only one step of rollback is
// allowed; stages before that stay passed.
func (m *Machine) Back(ctx context.Context, sessionID string) (Session, error) {
	unlock := m.locks.lock(sessionID)
	defer unlock()
	s, err := m.load(ctx, sessionID)
	if err != nil {
		return Session{}, err
	}
	if s.State == StateSettling {
		return Session{}, ErrSessionLocked
	}
	if s.Stage > 1 {
		s.Stage--
		delete(s.StageInputs, s.Stage)
		if err := m.put(ctx, s); err != nil {
			return Session{}, err
		}
	}
	return s, nil
}

// Cancel destroys the session. Idempotent: cancelling an unknown or already
// cancelled session succeeds. Once the settle delay has begun the cancel is
// rejected; the operation is past its point of no return.
func (m *Machine) Cancel(ctx context.Context, sessionID string) error {
	unlock := m.locks.lock(sessionID)
	defer unlock()
	s, err := m.load(ctx, sessionID)
	if err != nil {
		if err == ErrSessionNotFound || err == ErrSessionExpired {
			return nil
		}
		return err
	}
	if s.State == StateSettling {
		return ErrSessionLocked
	}
	return m.sessions.Delete(ctx, sessionID)
}

func (m *Machine) load(ctx context.Context, id string) (Session, error) {
	s, err := m.sessions.Get(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if s.expired(m.now()) {
		_ = m.sessions.Delete(ctx, id)
		return Session{}, ErrSessionExpired
	}
	return s, nil
}

func (m *Machine) put(ctx context.Context, s Session) error {
	ttl := time.Until(s.ExpiresAt)
	if ttl <= 0 {
		return ErrSessionExpired
	}
	return m.sessions.Put(ctx, s, ttl)
}
