// internal/httpapi/handlers.go
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"resetctl/internal/confirm"
	"resetctl/internal/executor"
	"resetctl/internal/guard"
	"resetctl/internal/scope"
	"resetctl/pkg/inventory"
	"resetctl/pkg/middleware"
	"resetctl/pkg/problems"
)

// RegisterHTTP mounts the controller surface.
// POST /scope                                preview (dry-run, unlimited)
// POST /confirmation/start                   open a five-stage session
// POST /confirmation/{sessionID}/stage/{n}   submit one stage input
// POST /confirmation/{sessionID}/back        reopen the previous stage
// POST /confirmation/{sessionID}/cancel      cancel (idempotent)
// POST /execute                              consume token, run the reset
func (a *App) RegisterHTTP(r chi.Router) {
	r.Post("/scope", a.handleScope)
	r.Route("/confirmation", func(r chi.Router) {
		r.Use(middleware.RequireScope(a.cfg, "reset:confirm"))
		r.Post("/start", a.handleConfirmStart)
		r.Post("/{sessionID}/stage/{n}", a.handleConfirmStage)
		r.Post("/{sessionID}/back", a.handleConfirmBack)
		r.Post("/{sessionID}/cancel", a.handleConfirmCancel)
	})
	r.With(middleware.RequireScope(a.cfg, "reset:execute")).Post("/execute", a.handleExecute)
}

// scopePayload is the wire form of a scope descriptor. Exactly one of the
// subscription / resource-group / resource selectors may be set; none means
// the whole tenant.
type scopePayload struct {
	TenantID             string   `json:"tenantId"`
	SubscriptionIDs      []string `json:"subscriptionIds"`
	ResourceGroupNames   []string `json:"resourceGroupNames"`
	SubscriptionIDForRGs string   `json:"subscriptionIdForRgs"`
	ResourceID           string   `json:"resourceId"`
}

func (p scopePayload) descriptor() (scope.Descriptor, error) {
	d := scope.Descriptor{TenantID: p.TenantID}
	selectors := 0
	if len(p.SubscriptionIDs) > 0 {
		d.Level = scope.LevelSubscription
		d.SubscriptionIDs = p.SubscriptionIDs
		selectors++
	}
	if len(p.ResourceGroupNames) > 0 {
		d.Level = scope.LevelResourceGroup
		d.ResourceGroups = p.ResourceGroupNames
		d.SubscriptionID = p.SubscriptionIDForRGs
		selectors++
	}
	if p.ResourceID != "" {
		d.Level = scope.LevelResource
		d.ResourceID = p.ResourceID
		selectors++
	}
	if selectors > 1 {
		return scope.Descriptor{}, scope.ErrInvalidDescriptor
	}
	if selectors == 0 {
		d.Level = scope.LevelTenant
	}
	if err := d.Validate(); err != nil {
		return scope.Descriptor{}, err
	}
	return d, nil
}

func ids(rs []inventory.Resource, limit int) []string {
	out := []string{}
	for i, r := range rs {
		if i == limit {
			break
		}
		out = append(out, r.ID)
	}
	return out
}

func (a *App) handleScope(w http.ResponseWriter, r *http.Request) {
	var p scopePayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		problems.Write(w, http.StatusBadRequest, "malformed-body", "Malformed request body", err.Error())
		return
	}
	d, err := p.descriptor()
	if err != nil {
		a.writeError(w, err)
		return
	}
	res, err := a.resolver.Resolve(r.Context(), d)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"scopeLevel":      res.ScopeLevel,
		"toDelete":        ids(res.ToDelete, previewLimit),
		"toPreserve":      ids(res.ToPreserve, previewLimit),
		"toDeleteCount":   res.ToDeleteCount(),
		"toPreserveCount": res.ToPreserveCount(),
	})
}

func (a *App) handleConfirmStart(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TenantID        string       `json:"tenantId"`
		ScopeDescriptor scopePayload `json:"scopeDescriptor"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		problems.Write(w, http.StatusBadRequest, "malformed-body", "Malformed request body", err.Error())
		return
	}
	if body.ScopeDescriptor.TenantID == "" {
		body.ScopeDescriptor.TenantID = body.TenantID
	}
	d, err := body.ScopeDescriptor.descriptor()
	if err != nil {
		a.writeError(w, err)
		return
	}
	if body.TenantID != "" && body.TenantID != d.TenantID {
		problems.Write(w, http.StatusBadRequest, "tenant-mismatch", "Tenant mismatch", "tenantId does not match scopeDescriptor.tenantId")
		return
	}
	// The preview count recorded here rides along into the token so the
	// executor can spot inventory drift at execute time.
	res, err := a.resolver.Resolve(r.Context(), d)
	if err != nil {
		a.writeError(w, err)
		return
	}
	s, err := a.machine.Start(r.Context(), d, res.ToDeleteCount())
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.log.Infow("confirmation started", "session", s.ID, "tenant", d.TenantID, "level", d.Level, "operator", operator(r))
	writeJSON(w, http.StatusOK, map[string]any{
		"sessionId":    s.ID,
		"currentStage": s.Stage,
		"prompt":       confirm.StagePrompt(s.Stage),
		"expiresAt":    s.ExpiresAt,
	})
}

func (a *App) handleConfirmStage(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	n, err := strconv.Atoi(chi.URLParam(r, "n"))
	if err != nil || n < 1 || n > confirm.NumStages {
		problems.Write(w, http.StatusBadRequest, "invalid-stage", "Invalid stage", "stage must be an integer in 1..5")
		return
	}
	var body struct {
		Input string `json:"input"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		problems.Write(w, http.StatusBadRequest, "malformed-body", "Malformed request body", err.Error())
		return
	}
	res, err := a.machine.Submit(r.Context(), sessionID, n, body.Input)
	if errors.Is(err, confirm.ErrValidationFailed) {
		// Not advanced, not destroyed: the operator retries the same stage.
		writeJSON(w, http.StatusOK, map[string]any{
			"advanced":     false,
			"currentStage": res.CurrentStage,
			"detail":       "input did not match; stage " + strconv.Itoa(n) + ": " + confirm.StagePrompt(n),
		})
		return
	}
	if err != nil {
		a.writeError(w, err)
		return
	}
	if res.Confirmed {
		a.log.Infow("confirmation token issued", "session", sessionID, "operator", operator(r))
		writeJSON(w, http.StatusOK, map[string]any{
			"confirmed": true,
			"token":     res.Token.ID,
			"expiresAt": res.Token.ExpiresAt,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"advanced":     true,
		"currentStage": res.CurrentStage,
		"prompt":       confirm.StagePrompt(res.CurrentStage),
	})
}

func (a *App) handleConfirmBack(w http.ResponseWriter, r *http.Request) {
	s, err := a.machine.Back(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"currentStage": s.Stage,
		"prompt":       confirm.StagePrompt(s.Stage),
	})
}

func (a *App) handleConfirmCancel(w http.ResponseWriter, r *http.Request) {
	if err := a.machine.Cancel(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cancelled": true})
}

func (a *App) handleExecute(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TenantID        string       `json:"tenantId"`
		ScopeDescriptor scopePayload `json:"scopeDescriptor"`
		Token           string       `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		problems.Write(w, http.StatusBadRequest, "malformed-body", "Malformed request body", err.Error())
		return
	}
	if body.Token == "" {
		problems.Write(w, http.StatusConflict, "confirmation-required", "Confirmation required", "Complete the confirmation flow and pass the issued token")
		return
	}
	if body.ScopeDescriptor.TenantID == "" {
		body.ScopeDescriptor.TenantID = body.TenantID
	}
	d, err := body.ScopeDescriptor.descriptor()
	if err != nil {
		a.writeError(w, err)
		return
	}
	// Cooldown fires on attempted executions, not only successful ones.
	if err := a.guard.Allow(r.Context(), d.TenantID); err != nil {
		a.writeError(w, err)
		return
	}
	a.log.Infow("reset execution requested", "tenant", d.TenantID, "level", d.Level, "operator", operator(r))
	res, err := a.exec.Execute(r.Context(), body.Token, d)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *App) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, inventory.ErrTenantNotFound):
		problems.Write(w, http.StatusNotFound, "tenant-not-found", "Tenant not found", "The tenant id is not known to the inventory")
	case errors.Is(err, scope.ErrScopeEmpty):
		problems.Write(w, http.StatusBadRequest, "scope-empty", "Scope matches nothing", "The scope resolved to no known resources; nothing to do")
	case errors.Is(err, scope.ErrInvalidDescriptor):
		problems.Write(w, http.StatusBadRequest, "invalid-scope", "Invalid scope descriptor", "The scope descriptor is structurally invalid")
	case errors.Is(err, inventory.ErrUnavailable):
		problems.Write(w, http.StatusServiceUnavailable, "inventory-unavailable", "Inventory unavailable", "The inventory collaborator did not respond; retry the preview")
	case errors.Is(err, confirm.ErrSessionNotFound):
		problems.Write(w, http.StatusNotFound, "session-not-found", "Session not found", "Unknown, cancelled, or completed confirmation session")
	case errors.Is(err, confirm.ErrSessionExpired):
		problems.Write(w, http.StatusGone, "session-expired", "Session expired", "The confirmation session expired; restart the flow")
	case errors.Is(err, confirm.ErrStageMismatch):
		problems.Write(w, http.StatusConflict, "stage-mismatch", "Stage out of order", "Submit the current stage; stages cannot be skipped or replayed")
	case errors.Is(err, confirm.ErrSessionLocked):
		problems.Write(w, http.StatusLocked, "session-locked", "Session locked", "Final confirmation is settling; the session can no longer be modified")
	case errors.Is(err, confirm.ErrTokenNotFound):
		problems.Write(w, http.StatusConflict, "invalid-token", "Invalid token", "The confirmation token is unknown or expired; restart the flow")
	case errors.Is(err, confirm.ErrTokenUsed):
		problems.Write(w, http.StatusConflict, "token-already-used", "Token already used", "Each confirmation token authorizes exactly one execution")
	case errors.Is(err, executor.ErrTokenExpired):
		problems.Write(w, http.StatusConflict, "token-expired", "Token expired", "The confirmation token expired; restart the flow")
	case errors.Is(err, executor.ErrTokenScopeMismatch):
		problems.Write(w, http.StatusConflict, "token-scope-mismatch", "Token scope mismatch", "The token was issued for a different scope; re-preview and confirm the intended scope")
	case errors.Is(err, executor.ErrPreviewDiverged):
		problems.Write(w, http.StatusConflict, "preview-diverged", "Inventory diverged", "Inventory changed materially since the preview; re-preview and confirm again")
	case errors.Is(err, guard.ErrRateLimited):
		problems.Write(w, http.StatusTooManyRequests, "reset-cooldown", "Tenant in cooldown", "A reset for this tenant ran recently; wait out the cooldown window")
	default:
		a.log.Errorw("unhandled controller error", "err", err)
		problems.Write(w, http.StatusInternalServerError, "internal", "Internal error", "Unexpected failure; see server logs")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func operator(r *http.Request) string {
	if sub := middleware.ActorSub(r.Context()); sub != "" {
		return sub
	}
	return "anonymous"
}
