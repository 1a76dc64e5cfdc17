package preserve

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"resetctl/pkg/config"
	"resetctl/pkg/inventory"
	"resetctl/pkg/logger"
)

func TestControlIdentityMatch(t *testing.T) {
	p := NewControlIdentity("sp-control")
	cases := []struct {
		res  inventory.Resource
		keep bool
	}{
		{inventory.Resource{ID: "sp-control", Name: "sp-control"}, true},
		{inventory.Resource{ID: "other", Name: "sp-control"}, true},
		{inventory.Resource{ID: "vm-1", Name: "vm-1"}, false},
	}
	for _, c := range cases {
		if got := p.Keep(context.Background(), c.res); got != c.keep {
			t.Errorf("Keep(%s) = %v, want %v", c.res.ID, got, c.keep)
		}
	}
}

func TestYAMLRules(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	rules := `preserve:
  - type: microsoft.aad/serviceprincipals
  - name: state-storage
    resource_group: rg-infra
`
	if err := os.WriteFile(path, []byte(rules), 0o600); err != nil {
		t.Fatal(err)
	}
	p, err := New(config.Config{PreserveRulesPath: path}, logger.Nop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if !p.Keep(context.Background(), inventory.Resource{ID: "sp-x", Type: "Microsoft.AAD/servicePrincipals"}) {
		t.Error("type rule (case-insensitive) did not match")
	}
	if p.Keep(context.Background(), inventory.Resource{ID: "sa", Name: "state-storage", ResourceGroup: "rg-app"}) {
		t.Error("partial rule match should not preserve")
	}
	if !p.Keep(context.Background(), inventory.Resource{ID: "sa", Name: "state-storage", ResourceGroup: "RG-INFRA"}) {
		t.Error("name+rg rule did not match")
	}
}

func TestRegoPolicy(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "preserve.rego")
	mod := `package preserve

default keep = false

keep {
	input.resource.resourceGroup == "rg-locked"
}
`
	if err := os.WriteFile(path, []byte(mod), 0o600); err != nil {
		t.Fatal(err)
	}
	p, err := New(config.Config{ControlIdentityID: "sp-control", PreserveRegoPath: path}, logger.Nop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if !p.Keep(context.Background(), inventory.Resource{ID: "vm-1", ResourceGroup: "rg-locked"}) {
		t.Error("rego keep rule did not match")
	}
	if p.Keep(context.Background(), inventory.Resource{ID: "vm-2", ResourceGroup: "rg-app"}) {
		t.Error("rego default deny leaked a preserve")
	}
	// Built-in rule still applies with rego loaded.
	if !p.Keep(context.Background(), inventory.Resource{ID: "sp-control"}) {
		t.Error("control identity not preserved with rego loaded")
	}
}
