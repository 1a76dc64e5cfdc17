package inventory

import (
	"context"
	"errors"
)

var (
	// ErrTenantNotFound means the tenant id is unknown to the inventory store.
	ErrTenantNotFound = errors.New("tenant not found")
	// ErrUnavailable means the inventory collaborator could not be reached.
	ErrUnavailable = errors.New("inventory unavailable")
)

// Provider supplies inventory snapshots from the external graph/store
// collaborator. Implementations must return resources in stable discovery
// order so repeated snapshots of an unchanged inventory are identical.
type Provider interface {
	Snapshot(ctx context.Context, tenantID string) (Snapshot, error)
}
