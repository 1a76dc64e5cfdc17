// internal/confirm/store.go
package confirm

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrTokenNotFound covers unknown and expired token ids.
	ErrTokenNotFound = errors.New("confirmation token not found")
	// ErrTokenUsed means the token was already consumed by another execute.
	ErrTokenUsed = errors.New("confirmation token already used")
)

// SessionStore holds confirmation sessions. Injected rather than global so
// tests run on the in-process map and multi-instance deployments can share
// a cache without touching the state machine.
type SessionStore interface {
	Get(ctx context.Context, id string) (Session, error) // ErrSessionNotFound when absent
	Put(ctx context.Context, s Session, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
}

// TokenStore holds issued confirmation tokens. Consume must be atomic:
// under concurrent calls for the same id exactly one caller receives the
// token, the rest get ErrTokenUsed.
type TokenStore interface {
	Put(ctx context.Context, t Token, ttl time.Duration) error
	Get(ctx context.Context, id string) (Token, error) // non-consuming read
	Consume(ctx context.Context, id string) (Token, error)
}
