// pkg/inventory/postgres.go
package inventory

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// pgProvider implements Provider backed by the PostgreSQL graph store mirror.
type pgProvider struct {
	dbPool *pgxpool.Pool
	log    *zap.SugaredLogger
}

// NewPostgresProvider constructs a PostgreSQL-backed inventory provider.
func NewPostgresProvider(dbPool *pgxpool.Pool, log *zap.SugaredLogger) Provider {
	return &pgProvider{dbPool: dbPool, log: log}
}

// EnsureSchema creates required tables if they do not already exist.
// Safe to call repeatedly (idempotent). The seq column records discovery
// order; Snapshot returns rows ordered by it.
func EnsureSchema(ctx context.Context, dbPool *pgxpool.Pool) error {
	_, err := dbPool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS inv_tenants (
  id text PRIMARY KEY,
  display_name text,
  created_at timestamptz NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS inv_resources (
  seq bigserial,
  id text PRIMARY KEY,
  tenant_id text NOT NULL REFERENCES inv_tenants(id) ON DELETE CASCADE,
  subscription_id text NOT NULL DEFAULT '',
  resource_group text NOT NULL DEFAULT '',
  type text NOT NULL DEFAULT '',
  name text NOT NULL DEFAULT '',
  discovered_at timestamptz NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS inv_resources_tenant_idx ON inv_resources(tenant_id, seq);
`)
	return err
}

// SeedFromEnv ingests initial inventory rows (INVENTORY_SEED_JSON):
// [
//
//	{
//	  "id":"...","tenant_id":"...","subscription_id":"...",
//	  "resource_group":"...","type":"...","name":"..."
//	}
//
// ]
func SeedFromEnv(ctx context.Context, dbPool *pgxpool.Pool, jsonSeed string) error {
	if jsonSeed == "" {
		return nil
	}
	var entries []struct {
		ID             string `json:"id"`
		TenantID       string `json:"tenant_id"`
		SubscriptionID string `json:"subscription_id"`
		ResourceGroup  string `json:"resource_group"`
		Type           string `json:"type"`
		Name           string `json:"name"`
	}
	if err := json.Unmarshal([]byte(jsonSeed), &entries); err != nil {
		return err
	}
	for _, e := range entries {
		_, _ = dbPool.Exec(ctx, `INSERT INTO inv_tenants(id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, e.TenantID)
		_, _ = dbPool.Exec(ctx, `INSERT INTO inv_resources(id,tenant_id,subscription_id,resource_group,type,name)
		  VALUES ($1,$2,$3,$4,$5,$6)
		  ON CONFLICT (id) DO UPDATE SET subscription_id=EXCLUDED.subscription_id,resource_group=EXCLUDED.resource_group,type=EXCLUDED.type,name=EXCLUDED.name`,
			e.ID, e.TenantID, e.SubscriptionID, e.ResourceGroup, e.Type, e.Name)
	}
	return nil
}

// Snapshot returns the tenant's resources in discovery order.
func (p *pgProvider) Snapshot(ctx context.Context, tenantID string) (Snapshot, error) {
	var known bool
	if err := p.dbPool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM inv_tenants WHERE id=$1)`, tenantID).Scan(&known); err != nil {
		p.log.Warnw("inventory tenant lookup failed", "tenant", tenantID, "err", err)
		return Snapshot{}, ErrUnavailable
	}
	if !known {
		return Snapshot{}, ErrTenantNotFound
	}
	rows, err := p.dbPool.Query(ctx, `SELECT id,tenant_id,subscription_id,resource_group,type,name FROM inv_resources WHERE tenant_id=$1 ORDER BY seq`, tenantID)
	if err != nil {
		p.log.Warnw("inventory query failed", "tenant", tenantID, "err", err)
		return Snapshot{}, ErrUnavailable
	}
	defer rows.Close()
	snap := Snapshot{TenantID: tenantID}
	for rows.Next() {
		var r Resource
		if err := rows.Scan(&r.ID, &r.TenantID, &r.SubscriptionID, &r.ResourceGroup, &r.Type, &r.Name); err != nil {
			return Snapshot{}, ErrUnavailable
		}
		snap.Resources = append(snap.Resources, r)
	}
	if rows.Err() != nil {
		return Snapshot{}, ErrUnavailable
	}
	return snap, nil
}
