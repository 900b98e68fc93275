package collection

import (
	"fmt"

	"dario.cat/mergo"

	"github.com/platinummonkey/cristata/pkg/rbac"
	"github.com/platinummonkey/cristata/pkg/schema"
)

// DefaultActionAccess grants the admin team every action. Author rules are
// appended to it, never replacing it.
func DefaultActionAccess() map[string]interface{} {
	raw := make(map[string]interface{}, len(rbac.Actions))
	for _, action := range rbac.Actions {
		raw[string(action)] = map[string]interface{}{
			"teams": []interface{}{rbac.AdminTeamSlug},
			"users": []interface{}{},
		}
	}
	return raw
}

// mergeAccess combines raw action access configurations left to right.
// Team and user lists concatenate.
func mergeAccess(layers ...map[string]interface{}) (map[string]interface{}, error) {
	out := map[string]interface{}{}
	for _, layer := range layers {
		if layer == nil {
			continue
		}
		normalized, _ := schema.Normalize(layer).(map[string]interface{})
		if err := mergo.Merge(&out, normalized, mergo.WithAppendSlice); err != nil {
			return nil, fmt.Errorf("merge action access: %w", err)
		}
	}
	return out, nil
}

// compileAccess merges and classifies the action access of a spec
func compileAccess(spec Spec) (rbac.ActionAccess, error) {
	raw, err := mergeAccess(DefaultActionAccess(), spec.ActionAccess)
	if err != nil {
		return nil, err
	}
	return rbac.ParseActionAccess(raw)
}
