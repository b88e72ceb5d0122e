package tool

import (
	"fmt"
	"strings"

	"github.com/tallyhq/tally/pkg/errors"
	"github.com/tallyhq/tally/pkg/tool/builtin"
)

// ValidateParams checks arguments against a tool's parameter schema:
// required fields present, declared types respected, enum values legal.
// Unknown parameters are rejected so a drifting planner fails loudly.
func ValidateParams(schema builtin.ParameterSchema, params map[string]any) error {
	for _, required := range schema.Required {
		if _, ok := params[required]; !ok {
			return errors.New(errors.ErrCodeToolArgInvalid,
				fmt.Sprintf("missing required parameter %q", required))
		}
	}

	for key, value := range params {
		prop, ok := schema.Properties[key]
		if !ok {
			return errors.New(errors.ErrCodeToolArgInvalid,
				fmt.Sprintf("unknown parameter %q", key))
		}
		if err := checkType(key, prop, value); err != nil {
			return err
		}
	}
	return nil
}

func checkType(key string, prop builtin.Property, value any) error {
	if value == nil {
		return errors.New(errors.ErrCodeToolArgInvalid,
			fmt.Sprintf("parameter %q is null", key))
	}

	switch prop.Type {
	case "string":
		s, ok := value.(string)
		if !ok {
			return typeError(key, "string", value)
		}
		if len(prop.Enum) > 0 && !enumContains(prop.Enum, s) {
			return errors.New(errors.ErrCodeToolArgInvalid,
				fmt.Sprintf("parameter %q = %q (valid: %s)", key, s, strings.Join(prop.Enum, ", ")))
		}
	case "number":
		switch value.(type) {
		case float64, int, int64:
		default:
			return typeError(key, "number", value)
		}
	case "integer":
		switch v := value.(type) {
		case int, int64:
		case float64:
			if v != float64(int64(v)) {
				return errors.New(errors.ErrCodeToolArgInvalid,
					fmt.Sprintf("parameter %q = %v is not an integer", key, v))
			}
		default:
			return typeError(key, "integer", value)
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return typeError(key, "boolean", value)
		}
	case "object":
		if _, ok := value.(map[string]any); !ok {
			return typeError(key, "object", value)
		}
	case "":
		// Untyped property, accept anything.
	default:
		return errors.New(errors.ErrCodeToolArgInvalid,
			fmt.Sprintf("parameter %q has unsupported schema type %q", key, prop.Type))
	}
	return nil
}

func typeError(key, want string, got any) error {
	return errors.New(errors.ErrCodeToolArgInvalid,
		fmt.Sprintf("parameter %q must be %s, got %T", key, want, got))
}

func enumContains(enum []string, value string) bool {
	for _, e := range enum {
		if e == value {
			return true
		}
	}
	return false
}
