// internal/preserve/rules.go
package preserve

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"resetctl/pkg/inventory"
)

// Rule matches a resource when every non-empty field matches. Type and
// resource group compare case-insensitively; id and name are exact.
type Rule struct {
	ID            string `yaml:"id"`
	Name          string `yaml:"name"`
	Type          string `yaml:"type"`
	ResourceGroup string `yaml:"resource_group"`
}

type rulesFile struct {
	Preserve []Rule `yaml:"preserve"`
}

// LoadRules reads extra preservation rules from a YAML file.
func LoadRules(path string) ([]Rule, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f rulesFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, err
	}
	return f.Preserve, nil
}

func (r Rule) matches(res inventory.Resource) bool {
	if r.ID == "" && r.Name == "" && r.Type == "" && r.ResourceGroup == "" {
		return false
	}
	if r.ID != "" && r.ID != res.ID {
		return false
	}
	if r.Name != "" && r.Name != res.Name {
		return false
	}
	if r.Type != "" && !strings.EqualFold(r.Type, res.Type) {
		return false
	}
	if r.ResourceGroup != "" && !strings.EqualFold(r.ResourceGroup, res.ResourceGroup) {
		return false
	}
	return true
}
