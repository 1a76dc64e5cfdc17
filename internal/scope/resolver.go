// internal/scope/resolver.go
package scope

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"resetctl/internal/preserve"
	"resetctl/pkg/inventory"
)

// ErrScopeEmpty means the descriptor resolved to no known resources:
// nothing to do, as opposed to a lookup failure.
var ErrScopeEmpty = errors.New("scope matches no resources")

// Result is the partition of a scope's resources. ToDelete and ToPreserve
// are disjoint, keep inventory discovery order, and together cover every
// resource inside the descriptor's boundary.
type Result struct {
	ScopeLevel Level
	ToDelete   []inventory.Resource
	ToPreserve []inventory.Resource
}

func (r Result) ToDeleteCount() int   { return len(r.ToDelete) }
func (r Result) ToPreserveCount() int { return len(r.ToPreserve) }

// Resolver computes the blast radius of a reset: which resources a
// descriptor covers, split into delete and preserve sets. It only reads
// the inventory; results are recomputed on every call, never cached.
type Resolver struct {
	inv  inventory.Provider
	keep *preserve.Policy
	log  *zap.SugaredLogger
}

func NewResolver(inv inventory.Provider, keep *preserve.Policy, log *zap.SugaredLogger) *Resolver {
	return &Resolver{inv: inv, keep: keep, log: log}
}

// Resolve walks the current inventory snapshot filtered to the descriptor's
// boundary and partitions it by the preservation policy. Output order is the
// snapshot's discovery order, so repeated calls against an unchanged
// inventory yield byte-identical previews.
func (r *Resolver) Resolve(ctx context.Context, d Descriptor) (Result, error) {
	if err := d.Validate(); err != nil {
		return Result{}, err
	}
	snap, err := r.inv.Snapshot(ctx, d.TenantID)
	if err != nil {
		return Result{}, err
	}
	res := Result{ScopeLevel: d.Level}
	matched := 0
	for _, item := range snap.Resources {
		if !inBoundary(d, item) {
			continue
		}
		matched++
		if r.keep.Keep(ctx, item) {
			res.ToPreserve = append(res.ToPreserve, item)
		} else {
			res.ToDelete = append(res.ToDelete, item)
		}
	}
	if matched == 0 && d.Level != LevelTenant {
		return Result{}, ErrScopeEmpty
	}
	r.log.Debugw("scope resolved",
		"tenant", d.TenantID, "level", d.Level,
		"toDelete", res.ToDeleteCount(), "toPreserve", res.ToPreserveCount())
	return res, nil
}

func inBoundary(d Descriptor, item inventory.Resource) bool {
	switch d.Level {
	case LevelTenant:
		return true
	case LevelSubscription:
		for _, id := range d.SubscriptionIDs {
			if item.SubscriptionID == id {
				return true
			}
		}
	case LevelResourceGroup:
		if item.SubscriptionID != d.SubscriptionID {
			return false
		}
		for _, rg := range d.ResourceGroups {
			if strings.EqualFold(item.ResourceGroup, rg) {
				return true
			}
		}
	case LevelResource:
		return item.ID == d.ResourceID
	}
	return false
}
