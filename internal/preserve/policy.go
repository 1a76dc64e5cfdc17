// internal/preserve/policy.go
package preserve

import (
	"context"
	"os"

	"github.com/open-policy-agent/opa/rego"
	"go.uber.org/zap"

	"resetctl/pkg/config"
	"resetctl/pkg/inventory"
)

// Policy decides which resources survive a reset. The control-identity rule
// is built in and cannot be disabled; YAML rules and an optional Rego module
// can only widen the preserve set, never narrow it.
type Policy struct {
	controlID string
	rules     []Rule
	query     *rego.PreparedEvalQuery
	log       *zap.SugaredLogger
}

// New builds the policy from config. Missing rules/rego files are startup
// errors: a half-loaded preservation policy must not silently run.
func New(cfg config.Config, log *zap.SugaredLogger) (*Policy, error) {
	p := &Policy{controlID: cfg.ControlIdentityID, log: log}
	if cfg.PreserveRulesPath != "" {
		rules, err := LoadRules(cfg.PreserveRulesPath)
		if err != nil {
			return nil, err
		}
		p.rules = rules
	}
	if cfg.PreserveRegoPath != "" {
		mod, err := os.ReadFile(cfg.PreserveRegoPath)
		if err != nil {
			return nil, err
		}
		q, err := rego.New(
			rego.Query("data.preserve.keep"),
			rego.Module("preserve.rego", string(mod)),
		).PrepareForEval(context.Background())
		if err != nil {
			return nil, err
		}
		p.query = &q
	}
	return p, nil
}

// NewControlIdentity builds a policy with only the control-identity rule.
func NewControlIdentity(controlID string) *Policy {
	return &Policy{controlID: controlID, log: zap.NewNop().Sugar()}
}

// Keep reports whether the resource must be preserved. Rego evaluation
// failures count as preserve: over-preserving is reported in the result,
// over-deleting is unrecoverable.
func (p *Policy) Keep(ctx context.Context, res inventory.Resource) bool {
	if p.controlID != "" && (res.ID == p.controlID || res.Name == p.controlID) {
		return true
	}
	for _, r := range p.rules {
		if r.matches(res) {
			return true
		}
	}
	if p.query != nil {
		rs, err := p.query.Eval(ctx, rego.EvalInput(map[string]any{"resource": map[string]any{
			"id":             res.ID,
			"tenantId":       res.TenantID,
			"subscriptionId": res.SubscriptionID,
			"resourceGroup":  res.ResourceGroup,
			"type":           res.Type,
			"name":           res.Name,
		}}))
		if err != nil {
			p.log.Warnw("preserve rego eval failed, preserving resource", "id", res.ID, "err", err)
			return true
		}
		if len(rs) > 0 && len(rs[0].Expressions) > 0 {
			if keep, ok := rs[0].Expressions[0].Value.(bool); ok && keep {
				return true
			}
		}
	}
	return false
}
