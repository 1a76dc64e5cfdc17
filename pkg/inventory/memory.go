// pkg/inventory/memory.go
package inventory

import (
	"context"
	"encoding/json"
	"os"

	"go.uber.org/zap"
)

type memProvider struct {
	log      *zap.SugaredLogger
	byTenant map[string][]Resource
}

// NewMemoryProvider builds a provider over fixed resources, keyed by tenant.
// Used by tests and as the dev fallback when no store is configured.
func NewMemoryProvider(resources ...Resource) Provider {
	p := &memProvider{log: zap.NewNop().Sugar(), byTenant: map[string][]Resource{}}
	for _, r := range resources {
		p.byTenant[r.TenantID] = append(p.byTenant[r.TenantID], r)
	}
	return p
}

// NewMemoryProviderFromEnv seeds the provider from INVENTORY_SEED_JSON:
// [{"id":"...","tenant_id":"...","subscription_id":"...","resource_group":"...","type":"...","name":"..."}]
func NewMemoryProviderFromEnv(log *zap.SugaredLogger) Provider {
	p := &memProvider{log: log, byTenant: map[string][]Resource{}}
	seed := os.Getenv("INVENTORY_SEED_JSON")
	if seed == "" {
		return p
	}
	var entries []struct {
		ID             string `json:"id"`
		TenantID       string `json:"tenant_id"`
		SubscriptionID string `json:"subscription_id"`
		ResourceGroup  string `json:"resource_group"`
		Type           string `json:"type"`
		Name           string `json:"name"`
	}
	if err := json.Unmarshal([]byte(seed), &entries); err != nil {
		log.Warnw("inventory seed parse failed", "err", err)
		return p
	}
	for _, e := range entries {
		p.byTenant[e.TenantID] = append(p.byTenant[e.TenantID], Resource{
			ID: e.ID, TenantID: e.TenantID, SubscriptionID: e.SubscriptionID,
			ResourceGroup: e.ResourceGroup, Type: e.Type, Name: e.Name,
		})
	}
	return p
}

func (m *memProvider) Snapshot(ctx context.Context, tenantID string) (Snapshot, error) {
	rs, ok := m.byTenant[tenantID]
	if !ok {
		return Snapshot{}, ErrTenantNotFound
	}
	out := make([]Resource, len(rs))
	copy(out, rs)
	return Snapshot{TenantID: tenantID, Resources: out}, nil
}
