package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"resetctl/internal/confirm"
	"resetctl/internal/executor"
	"resetctl/internal/guard"
	"resetctl/internal/httpapi"
	"resetctl/internal/preserve"
	"resetctl/internal/scope"
	"resetctl/pkg/config"
	"resetctl/pkg/inventory"
	"resetctl/pkg/logger"
)

type recordingDeleter struct {
	mu      sync.Mutex
	fail    map[string]bool
	deleted []string
}

func (d *recordingDeleter) DeleteResource(ctx context.Context, r inventory.Resource) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail[r.ID] {
		return fmt.Errorf("provider refused %s", r.ID)
	}
	d.deleted = append(d.deleted, r.ID)
	return nil
}

// testServer wires the whole controller over in-memory stores.
type testServer struct {
	handler http.Handler
	deleter *recordingDeleter
}

func newTestServer(resources ...inventory.Resource) *testServer {
	cfg := config.Config{
		Env:               "dev",
		ControlIdentityID: "sp-control",
		SessionTTL:        10 * time.Minute,
		SettleDelay:       5 * time.Millisecond,
		TokenTTL:          time.Minute,
		WorkerPoolSize:    4,
		CooldownWindow:    5 * time.Minute,
		DivergencePct:     10,
	}
	log := logger.Nop()
	resolver := scope.NewResolver(inventory.NewMemoryProvider(resources...), preserve.NewControlIdentity(cfg.ControlIdentityID), log)
	sessions := confirm.NewMemorySessionStore()
	tokens := confirm.NewMemoryTokenStore()
	machine := confirm.NewMachine(sessions, tokens, cfg.SessionTTL, cfg.SettleDelay, cfg.TokenTTL, log)
	rateGuard := guard.New(guard.NewMemoryCooldownStore(), cfg.CooldownWindow)
	deleter := &recordingDeleter{}
	exec := executor.New(resolver, tokens, deleter, cfg.WorkerPoolSize, cfg.DivergencePct, cfg.StrictDivergence, log)

	app := httpapi.New(log, cfg, resolver, machine, rateGuard, exec)
	r := chi.NewRouter()
	app.RegisterHTTP(r)
	return &testServer{handler: r, deleter: deleter}
}

func (ts *testServer) post(t *testing.T, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	var out map[string]any
	_ = json.Unmarshal(rr.Body.Bytes(), &out)
	return rr, out
}

func seedTenant() []inventory.Resource {
	return []inventory.Resource{
		{ID: "vm-1", TenantID: "T1", SubscriptionID: "sub-1", ResourceGroup: "rg-A", Type: "microsoft.compute/virtualmachines", Name: "vm-1"},
		{ID: "vm-2", TenantID: "T1", SubscriptionID: "sub-1", ResourceGroup: "rg-A", Type: "microsoft.compute/virtualmachines", Name: "vm-2"},
		{ID: "sp-control", TenantID: "T1", SubscriptionID: "sub-1", ResourceGroup: "rg-A", Type: "microsoft.aad/serviceprincipals", Name: "sp-control"},
	}
}

func rgScope() map[string]any {
	return map[string]any{
		"tenantId":             "T1",
		"resourceGroupNames":   []string{"rg-A"},
		"subscriptionIdForRgs": "sub-1",
	}
}

func TestScopePreview(t *testing.T) {
	ts := newTestServer(seedTenant()...)
	rr, out := ts.post(t, "/scope", rgScope())
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}
	if out["toDeleteCount"].(float64) != 2 || out["toPreserveCount"].(float64) != 1 {
		t.Errorf("counts wrong: %v", out)
	}
	// Preview is repeatable and side-effect free.
	_, again := ts.post(t, "/scope", rgScope())
	if fmt.Sprint(out["toDelete"]) != fmt.Sprint(again["toDelete"]) {
		t.Errorf("previews differ across calls")
	}
	if len(ts.deleter.deleted) != 0 {
		t.Errorf("preview touched the provider")
	}
}

func TestScopeErrors(t *testing.T) {
	ts := newTestServer(seedTenant()...)
	rr, _ := ts.post(t, "/scope", map[string]any{"tenantId": "unknown"})
	if rr.Code != http.StatusNotFound {
		t.Errorf("unknown tenant: status %d", rr.Code)
	}
	rr, _ = ts.post(t, "/scope", map[string]any{
		"tenantId": "T1", "resourceGroupNames": []string{"rg-missing"}, "subscriptionIdForRgs": "sub-1",
	})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("empty scope: status %d", rr.Code)
	}
	// Resource-group names without a subscription anchor are structurally invalid.
	rr, _ = ts.post(t, "/scope", map[string]any{"tenantId": "T1", "resourceGroupNames": []string{"rg-A"}})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("missing rg anchor: status %d", rr.Code)
	}
}

func confirmFlow(t *testing.T, ts *testServer, descriptor map[string]any, inputs []string) string {
	t.Helper()
	rr, out := ts.post(t, "/confirmation/start", map[string]any{"tenantId": "T1", "scopeDescriptor": descriptor})
	if rr.Code != http.StatusOK {
		t.Fatalf("start: status %d: %s", rr.Code, rr.Body.String())
	}
	sessionID := out["sessionId"].(string)
	for i, in := range inputs {
		rr, out = ts.post(t, fmt.Sprintf("/confirmation/%s/stage/%d", sessionID, i+1), map[string]any{"input": in})
		if rr.Code != http.StatusOK {
			t.Fatalf("stage %d: status %d: %s", i+1, rr.Code, rr.Body.String())
		}
	}
	tok, _ := out["token"].(string)
	if out["confirmed"] != true || tok == "" {
		t.Fatalf("flow did not confirm: %v", out)
	}
	return tok
}

func TestEndToEndReset(t *testing.T) {
	ts := newTestServer(seedTenant()...)
	token := confirmFlow(t, ts, rgScope(), []string{"yes", "yes", "T1", "yes", "DELETE"})

	rr, out := ts.post(t, "/execute", map[string]any{
		"tenantId": "T1", "scopeDescriptor": rgScope(), "token": token,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("execute: status %d: %s", rr.Code, rr.Body.String())
	}
	if out["success"] != true || out["deletedCount"].(float64) != 2 || out["failedCount"].(float64) != 0 {
		t.Errorf("result wrong: %v", out)
	}
	for _, id := range ts.deleter.deleted {
		if id == "sp-control" {
			t.Error("control identity was deleted")
		}
	}
	if len(ts.deleter.deleted) != 2 {
		t.Errorf("deleted %v", ts.deleter.deleted)
	}
}

func TestStageValidationOverHTTP(t *testing.T) {
	ts := newTestServer(seedTenant()...)
	_, out := ts.post(t, "/confirmation/start", map[string]any{"tenantId": "T1", "scopeDescriptor": rgScope()})
	sessionID := out["sessionId"].(string)

	// Out-of-order submission is a conflict.
	rr, _ := ts.post(t, "/confirmation/"+sessionID+"/stage/2", map[string]any{"input": "yes"})
	if rr.Code != http.StatusConflict {
		t.Errorf("stage 2 first: status %d", rr.Code)
	}
	// Wrong case: not an error status, but not advanced either.
	rr, out = ts.post(t, "/confirmation/"+sessionID+"/stage/1", map[string]any{"input": "Yes"})
	if rr.Code != http.StatusOK || out["advanced"] != false {
		t.Errorf("wrong-case input: status %d body %v", rr.Code, out)
	}
	rr, out = ts.post(t, "/confirmation/"+sessionID+"/stage/1", map[string]any{"input": "yes"})
	if rr.Code != http.StatusOK || out["advanced"] != true {
		t.Errorf("correct input: status %d body %v", rr.Code, out)
	}
	// Back reopens stage 1.
	rr, out = ts.post(t, "/confirmation/"+sessionID+"/back", nil)
	if rr.Code != http.StatusOK || out["currentStage"].(float64) != 1 {
		t.Errorf("back: status %d body %v", rr.Code, out)
	}
	// Cancel is idempotent.
	for i := 0; i < 2; i++ {
		rr, out = ts.post(t, "/confirmation/"+sessionID+"/cancel", nil)
		if rr.Code != http.StatusOK || out["cancelled"] != true {
			t.Errorf("cancel #%d: status %d body %v", i+1, rr.Code, out)
		}
	}
}

func TestExecuteScopeMismatch(t *testing.T) {
	ts := newTestServer(seedTenant()...)
	token := confirmFlow(t, ts, rgScope(), []string{"yes", "yes", "T1", "yes", "DELETE"})

	wider := map[string]any{
		"tenantId":             "T1",
		"resourceGroupNames":   []string{"rg-A", "rg-B"},
		"subscriptionIdForRgs": "sub-1",
	}
	rr, out := ts.post(t, "/execute", map[string]any{"tenantId": "T1", "scopeDescriptor": wider, "token": token})
	if rr.Code != http.StatusConflict {
		t.Fatalf("mismatched scope: status %d body %v", rr.Code, out)
	}
	if len(ts.deleter.deleted) != 0 {
		t.Errorf("mismatch still deleted %v", ts.deleter.deleted)
	}
}

func TestExecuteCooldown(t *testing.T) {
	ts := newTestServer(seedTenant()...)
	token := confirmFlow(t, ts, rgScope(), []string{"yes", "yes", "T1", "yes", "DELETE"})
	rr, _ := ts.post(t, "/execute", map[string]any{"tenantId": "T1", "scopeDescriptor": rgScope(), "token": token})
	if rr.Code != http.StatusOK {
		t.Fatalf("first execute: status %d", rr.Code)
	}

	// A fresh, fully confirmed token does not bypass the tenant cooldown.
	token2 := confirmFlow(t, ts, rgScope(), []string{"yes", "yes", "T1", "yes", "DELETE"})
	rr, _ = ts.post(t, "/execute", map[string]any{"tenantId": "T1", "scopeDescriptor": rgScope(), "token": token2})
	if rr.Code != http.StatusTooManyRequests {
		t.Errorf("second execute inside window: status %d", rr.Code)
	}
}

func TestExecuteWithoutToken(t *testing.T) {
	ts := newTestServer(seedTenant()...)
	rr, _ := ts.post(t, "/execute", map[string]any{"tenantId": "T1", "scopeDescriptor": rgScope()})
	if rr.Code != http.StatusConflict {
		t.Errorf("missing token: status %d", rr.Code)
	}
}

func TestExecutePartialFailureReport(t *testing.T) {
	ts := newTestServer(seedTenant()...)
	ts.deleter.fail = map[string]bool{"vm-2": true}
	token := confirmFlow(t, ts, rgScope(), []string{"yes", "yes", "T1", "yes", "DELETE"})

	rr, out := ts.post(t, "/execute", map[string]any{"tenantId": "T1", "scopeDescriptor": rgScope(), "token": token})
	if rr.Code != http.StatusOK {
		t.Fatalf("execute: status %d", rr.Code)
	}
	if out["success"] != false || out["deletedCount"].(float64) != 1 || out["failedCount"].(float64) != 1 {
		t.Errorf("partial failure report wrong: %v", out)
	}
	errs := out["errors"].(map[string]any)
	if _, ok := errs["vm-2"]; !ok {
		t.Errorf("missing per-resource error: %v", errs)
	}
}
