// internal/confirm/token.go
package confirm

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// Token proves a human completed the five-stage gate for one specific scope.
// Opaque, single-use, short-lived. The executor must refuse any scope whose
// canonical bytes differ from ScopeCanonical.
type Token struct {
	ID             string    `json:"id"` // 256-bit random, hex
	TenantID       string    `json:"tenantId"`
	ScopeCanonical []byte    `json:"scopeCanonical"`
	PreviewCount   int       `json:"previewCount"`
	IssuedAt       time.Time `json:"issuedAt"`
	ExpiresAt      time.Time `json:"expiresAt"`
}

func newTokenID() string {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic("crypto/rand unavailable: " + err.Error())
	}
	return hex.EncodeToString(b[:])
}
