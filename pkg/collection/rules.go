package collection

import (
	"fmt"
	"strings"

	"github.com/platinummonkey/cristata/pkg/apierr"
	"github.com/platinummonkey/cristata/pkg/schema"
)

// ValidateInput checks create and modify input against the field rules.
// Required fields are only enforced on create.
func (c *Collection) ValidateInput(input map[string]interface{}, creating bool) error {
	if creating {
		for _, path := range c.required {
			if v := schema.Get(input, path); v == nil || v == "" {
				return apierr.Validation(fmt.Sprintf("%s is required", path))
			}
		}
	}
	for _, rule := range c.rules {
		for _, v := range valuesAt(input, strings.Split(rule.path, ".")) {
			var values []interface{}
			if items, ok := schema.AsSlice(v); ok {
				values = items
			} else {
				values = []interface{}{v}
			}
			for _, item := range values {
				s, ok := item.(string)
				if !ok {
					continue
				}
				if !rule.match.MatchString(s) {
					msg := rule.message
					if msg == "" {
						msg = fmt.Sprintf("%s does not match %s", rule.path, rule.match)
					}
					return apierr.Validation(msg)
				}
			}
		}
	}
	return nil
}

// valuesAt collects the values at a path, stepping into every element at
// positional markers. Missing values are skipped.
func valuesAt(v interface{}, segments []string) []interface{} {
	if len(segments) == 0 {
		if v == nil {
			return nil
		}
		return []interface{}{v}
	}
	if segments[0] == schema.PositionalMarker {
		items, _ := schema.AsSlice(v)
		var out []interface{}
		for _, item := range items {
			out = append(out, valuesAt(item, segments[1:])...)
		}
		return out
	}
	m, ok := schema.AsMap(v)
	if !ok {
		return nil
	}
	return valuesAt(m[segments[0]], segments[1:])
}
