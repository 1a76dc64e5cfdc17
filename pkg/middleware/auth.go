// pkg/middleware/auth.go
package middleware

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"resetctl/pkg/config"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// jwksCache caches JWKS sets per URL.
type jwksCache struct {
	mu   sync.RWMutex
	sets map[string]cachedJWKS
}

type cachedJWKS struct {
	set     jwk.Set
	expires time.Time
}

func (c *jwksCache) get(ctx context.Context, url string, ttl time.Duration) (jwk.Set, error) {
	c.mu.RLock()
	if e, ok := c.sets[url]; ok && time.Now().Before(e.expires) {
		c.mu.RUnlock()
		return e.set, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sets == nil {
		c.sets = map[string]cachedJWKS{}
	}
	if e, ok := c.sets[url]; ok && time.Now().Before(e.expires) {
		return e.set, nil
	}
	set, err := jwk.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	c.sets[url] = cachedJWKS{set: set, expires: time.Now().Add(ttl)}
	return set, nil
}

type scopesCtxKey struct{}
type subjectCtxKey struct{}

// ActorSub returns the authenticated operator's subject claim, if any.
func ActorSub(ctx context.Context) string {
	if v := ctx.Value(subjectCtxKey{}); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// WithScopes stores the operator's scopes in context.
func WithScopes(ctx context.Context, scopes []string) context.Context {
	return context.WithValue(ctx, scopesCtxKey{}, scopes)
}

// ScopesFrom extracts operator scopes from context.
func ScopesFrom(ctx context.Context) []string {
	if v := ctx.Value(scopesCtxKey{}); v != nil {
		if s, ok := v.([]string); ok {
			return s
		}
	}
	return nil
}

// HasScope reports whether the context carries the given operator scope.
func HasScope(ctx context.Context, scope string) bool {
	for _, s := range ScopesFrom(ctx) {
		if s == scope {
			return true
		}
	}
	return false
}

// JWTAuth validates operator bearer tokens against the configured issuer and
// JWKS and populates scopes in context. Health and metrics bypass auth.
// In dev, requests without Authorization pass through (local bring-up).
func JWTAuth(cfg config.Config) func(http.Handler) http.Handler {
	cache := &jwksCache{}
	jwksTTL := 6 * time.Hour
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/healthz" || r.URL.Path == "/metrics" {
				next.ServeHTTP(w, r)
				return
			}
			authz := r.Header.Get("Authorization")
			if cfg.Env == "dev" && strings.TrimSpace(authz) == "" {
				next.ServeHTTP(w, r)
				return
			}
			issuer := strings.TrimRight(cfg.Issuer, "/")
			if issuer == "" || cfg.JWKSURL == "" {
				http.Error(w, "auth not configured", http.StatusInternalServerError)
				return
			}
			set, err := cache.get(r.Context(), cfg.JWKSURL, jwksTTL)
			if err != nil {
				http.Error(w, "jwks fetch failed", http.StatusInternalServerError)
				return
			}
			if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
				http.Error(w, "missing bearer", http.StatusUnauthorized)
				return
			}
			raw := strings.TrimSpace(authz[len("Bearer "):])

			parseOpts := []jwt.ParseOption{jwt.WithKeySet(set), jwt.WithIssuer(issuer), jwt.WithValidate(true), jwt.WithVerify(true)}
			if cfg.Audience != "" {
				parseOpts = append(parseOpts, jwt.WithAudience(cfg.Audience))
			}
			jt, perr := jwt.Parse([]byte(raw), parseOpts...)
			if perr != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			var scopes []string
			if sc, ok := jt.Get("scope"); ok {
				if s, _ := sc.(string); s != "" {
					scopes = append(scopes, strings.Fields(s)...)
				}
			}
			ctx := WithScopes(r.Context(), scopes)
			ctx = context.WithValue(ctx, subjectCtxKey{}, jt.Subject())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireScope gates a route on a single operator scope. It relies on JWTAuth
// having populated the context; in dev without a token the scope list is
// empty and the gate is skipped.
func RequireScope(cfg config.Config, scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Env == "dev" && len(ScopesFrom(r.Context())) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			if !HasScope(r.Context(), scope) {
				http.Error(w, "insufficient_scope", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
