// internal/executor/executor.go
package executor

import (
	"bytes"
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"resetctl/internal/confirm"
	"resetctl/internal/scope"
	"resetctl/pkg/cloud"
)

// Result is the itemized report of one reset run. Immutable after return.
// Success is true iff no per-resource deletion failed; a high FailedCount is
// a normal, reportable outcome, never an exception.
type Result struct {
	Success          bool              `json:"success"`
	DeletedCount     int               `json:"deletedCount"`
	FailedCount      int               `json:"failedCount"`
	DeletedResources []string          `json:"deletedResources"`
	FailedResources  []string          `json:"failedResources"`
	Errors           map[string]string `json:"errors"`
	DurationSeconds  float64           `json:"durationSeconds"`
}

// Executor consumes a confirmation token and performs the reset. There is no
// undo and no mid-batch abort: once dispatched, every delete runs to
// completion or failure and is reported.
type Executor struct {
	resolver *scope.Resolver
	tokens   confirm.TokenStore
	deleter  cloud.Deleter
	log      *zap.SugaredLogger

	workers          int
	divergencePct    int
	strictDivergence bool

	now func() time.Time
}

func New(resolver *scope.Resolver, tokens confirm.TokenStore, deleter cloud.Deleter, workers, divergencePct int, strictDivergence bool, log *zap.SugaredLogger) *Executor {
	if workers < 1 {
		workers = 1
	}
	return &Executor{
		resolver:         resolver,
		tokens:           tokens,
		deleter:          deleter,
		log:              log,
		workers:          workers,
		divergencePct:    divergencePct,
		strictDivergence: strictDivergence,
		now:              time.Now,
	}
}

// Execute validates the token against the requested scope, consumes it
// (at-most-once, compare-and-swap in the store), re-resolves the scope
// against current inventory, and deletes the resulting to-delete set with
// bounded concurrency. The preserve set never enters the work queue.
func (e *Executor) Execute(ctx context.Context, tokenID string, d scope.Descriptor) (Result, error) {
	tok, err := e.tokens.Get(ctx, tokenID)
	if err != nil {
		return Result{}, err
	}
	if e.now().After(tok.ExpiresAt) {
		return Result{}, ErrTokenExpired
	}
	if !bytes.Equal(tok.ScopeCanonical, d.Canonical()) {
		// Scope mismatch does not consume the token: it may still be valid
		// for the scope it was actually issued for.
		return Result{}, ErrTokenScopeMismatch
	}

	// The token bound the scope descriptor, not a frozen resource list;
	// deletions act on current inventory, never on a cached preview.
	res, err := e.resolver.Resolve(ctx, d)
	if err != nil {
		return Result{}, err
	}
	if diverged(tok.PreviewCount, res.ToDeleteCount(), e.divergencePct) {
		if e.strictDivergence {
			return Result{}, ErrPreviewDiverged
		}
		e.log.Warnw("inventory drifted since preview, proceeding",
			"tenant", d.TenantID, "previewed", tok.PreviewCount, "current", res.ToDeleteCount())
	}

	if _, err := e.tokens.Consume(ctx, tokenID); err != nil {
		return Result{}, err
	}

	e.log.Infow("reset dispatch",
		"tenant", d.TenantID, "level", d.Level,
		"toDelete", res.ToDeleteCount(), "toPreserve", res.ToPreserveCount(), "workers", e.workers)

	start := e.now()
	toDelete := res.ToDelete
	// Dispatched deletes outlive the request: a caller disconnect must not
	// abort the batch mid-flight.
	workCtx := context.WithoutCancel(ctx)
	errs := make([]error, len(toDelete))
	var g errgroup.Group
	g.SetLimit(e.workers)
	for i := range toDelete {
		i := i
		g.Go(func() error {
			errs[i] = e.deleter.DeleteResource(workCtx, toDelete[i])
			return nil
		})
	}
	_ = g.Wait()

	out := Result{
		DeletedResources: []string{},
		FailedResources:  []string{},
		Errors:           map[string]string{},
	}
	for i, item := range toDelete {
		if errs[i] != nil {
			out.FailedResources = append(out.FailedResources, item.ID)
			out.Errors[item.ID] = errs[i].Error()
			deleteFailures.Inc()
			continue
		}
		out.DeletedResources = append(out.DeletedResources, item.ID)
		deletesTotal.Inc()
	}
	out.DeletedCount = len(out.DeletedResources)
	out.FailedCount = len(out.FailedResources)
	out.Success = out.FailedCount == 0
	out.DurationSeconds = e.now().Sub(start).Seconds()

	outcome := "clean"
	if !out.Success {
		outcome = "partial"
	}
	resetsTotal.WithLabelValues(outcome).Inc()
	e.log.Infow("reset complete",
		"tenant", d.TenantID, "deleted", out.DeletedCount, "failed", out.FailedCount,
		"seconds", out.DurationSeconds)
	return out, nil
}

// diverged reports whether current drifted more than pct percent from
// previewed. A zero preview with any current count always counts as drift.
func diverged(previewed, current, pct int) bool {
	if previewed == current {
		return false
	}
	if previewed == 0 {
		return true
	}
	delta := previewed - current
	if delta < 0 {
		delta = -delta
	}
	return delta*100 > previewed*pct
}
