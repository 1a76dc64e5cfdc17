// internal/confirm/memory.go
package confirm

import (
	"context"
	"sync"
	"time"
)

// MemorySessionStore keeps sessions in-process with lazy TTL checks plus an
// optional background sweep. Good for single-instance deployments and tests.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]memSession
	now      func() time.Time
}

type memSession struct {
	s         Session
	expiresAt time.Time
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: map[string]memSession{}, now: time.Now}
}

func (m *MemorySessionStore) Get(ctx context.Context, id string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	if m.now().After(e.expiresAt) {
		delete(m.sessions, id)
		return Session{}, ErrSessionExpired
	}
	return e.s, nil
}

func (m *MemorySessionStore) Put(ctx context.Context, s Session, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = memSession{s: s, expiresAt: m.now().Add(ttl)}
	return nil
}

func (m *MemorySessionStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// Sweep drops expired sessions every interval until ctx is done. Run it as
// a goroutine from main; lazy checks in Get keep correctness without it.
func (m *MemorySessionStore) Sweep(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.mu.Lock()
			now := m.now()
			for id, e := range m.sessions {
				if now.After(e.expiresAt) {
					delete(m.sessions, id)
				}
			}
			m.mu.Unlock()
		}
	}
}

// MemoryTokenStore keeps tokens in-process. Consumed tokens leave a
// tombstone for the remaining TTL so a duplicate execute gets ErrTokenUsed
// rather than ErrTokenNotFound.
type MemoryTokenStore struct {
	mu     sync.Mutex
	tokens map[string]memToken
	now    func() time.Time
}

type memToken struct {
	t         Token
	used      bool
	expiresAt time.Time
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{tokens: map[string]memToken{}, now: time.Now}
}

func (m *MemoryTokenStore) Put(ctx context.Context, t Token, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[t.ID] = memToken{t: t, expiresAt: m.now().Add(ttl)}
	return nil
}

func (m *MemoryTokenStore) Get(ctx context.Context, id string) (Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.tokens[id]
	if !ok || m.now().After(e.expiresAt) {
		delete(m.tokens, id)
		return Token{}, ErrTokenNotFound
	}
	if e.used {
		return Token{}, ErrTokenUsed
	}
	return e.t, nil
}

func (m *MemoryTokenStore) Consume(ctx context.Context, id string) (Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.tokens[id]
	if !ok || m.now().After(e.expiresAt) {
		delete(m.tokens, id)
		return Token{}, ErrTokenNotFound
	}
	if e.used {
		return Token{}, ErrTokenUsed
	}
	e.used = true
	m.tokens[id] = e
	return e.t, nil
}
