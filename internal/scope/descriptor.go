// internal/scope/descriptor.go
package scope

import (
	"encoding/json"
	"errors"
	"sort"
	"strings"
)

// Level is the hierarchy level a reset applies to.
type Level string

const (
	LevelTenant        Level = "tenant"
	LevelSubscription  Level = "subscription"
	LevelResourceGroup Level = "resourceGroup"
	LevelResource      Level = "resource"
)

var ErrInvalidDescriptor = errors.New("invalid scope descriptor")

// Descriptor identifies the boundary a reset applies to. It is always
// anchored to exactly one tenant; which of the remaining fields are set
// depends on Level. Treat values as immutable once built.
type Descriptor struct {
	TenantID        string   `json:"tenantId"`
	Level           Level    `json:"level"`
	SubscriptionIDs []string `json:"subscriptionIds,omitempty"`
	ResourceGroups  []string `json:"resourceGroupNames,omitempty"`
	// SubscriptionID anchors resource-group names, which are only unique
	// within a subscription.
	SubscriptionID string `json:"subscriptionIdForRgs,omitempty"`
	ResourceID     string `json:"resourceId,omitempty"`
}

// Validate checks structural consistency of the descriptor.
func (d Descriptor) Validate() error {
	if strings.TrimSpace(d.TenantID) == "" {
		return ErrInvalidDescriptor
	}
	switch d.Level {
	case LevelTenant:
		return nil
	case LevelSubscription:
		if len(d.SubscriptionIDs) == 0 {
			return ErrInvalidDescriptor
		}
	case LevelResourceGroup:
		if len(d.ResourceGroups) == 0 || strings.TrimSpace(d.SubscriptionID) == "" {
			return ErrInvalidDescriptor
		}
	case LevelResource:
		if strings.TrimSpace(d.ResourceID) == "" {
			return ErrInvalidDescriptor
		}
	default:
		return ErrInvalidDescriptor
	}
	return nil
}

// Canonical returns a normalized byte encoding of the descriptor: set-valued
// fields sorted and deduplicated, fields in fixed order. Two descriptors
// describe the same scope iff their canonical bytes are equal; confirmation
// tokens bind to these bytes.
func (d Descriptor) Canonical() []byte {
	norm := Descriptor{
		TenantID:       d.TenantID,
		Level:          d.Level,
		SubscriptionID: d.SubscriptionID,
		ResourceID:     d.ResourceID,
	}
	norm.SubscriptionIDs = sortedUnique(d.SubscriptionIDs)
	norm.ResourceGroups = sortedUnique(d.ResourceGroups)
	b, _ := json.Marshal(norm)
	return b
}

func sortedUnique(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := map[string]struct{}{}
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
