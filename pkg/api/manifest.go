package api

import (
	"fmt"
	"regexp"
)

// PortSpec describes one named input or output of a capability.
// Type is a tag from the small set understood by the canvas:
// string, text, number, boolean, object, array. An empty Type accepts
// any value.
type PortSpec struct {
	Type        string
	Required    bool
	Description string
	Constraints *Constraints
}

// Constraints narrows the values accepted by a PortSpec. Nil fields are
// not enforced.
type Constraints struct {
	Min       *float64
	Max       *float64
	MinLength *int
	MaxLength *int
	Pattern   string
	Enum      []any
}

// Manifest declares what a capability looks like: its identity and the
// inputs/outputs it exchanges with agent nodes.
type Manifest struct {
	Ref         CapabilityRef
	Name        string
	Version     string
	Description string
	Inputs      map[string]PortSpec
	Outputs     map[string]PortSpec
}

// Validate checks that the manifest itself is well formed.
func (m Manifest) Validate() error {
	if m.Ref == "" {
		return fmt.Errorf("manifest: ref is required")
	}
	for name, spec := range m.Inputs {
		if err := validateSpec(name, spec); err != nil {
			return fmt.Errorf("manifest %q: input %w", m.Ref, err)
		}
	}
	for name, spec := range m.Outputs {
		if err := validateSpec(name, spec); err != nil {
			return fmt.Errorf("manifest %q: output %w", m.Ref, err)
		}
	}
	return nil
}

func validateSpec(name string, spec PortSpec) error {
	switch spec.Type {
	case "", "string", "text", "number", "boolean", "object", "array":
	default:
		return fmt.Errorf("%q: unknown type %q", name, spec.Type)
	}
	if spec.Constraints != nil && spec.Constraints.Pattern != "" {
		if _, err := regexp.Compile(spec.Constraints.Pattern); err != nil {
			return fmt.Errorf("%q: bad pattern: %v", name, err)
		}
	}
	return nil
}

// ValidateInputs checks values against the manifest's input specs before
// an invocation. Required inputs must be present; present values must
// match their declared type tag and constraints.
func (m Manifest) ValidateInputs(values map[string]any) error {
	for name, spec := range m.Inputs {
		v, ok := values[name]
		if !ok {
			if spec.Required {
				return fmt.Errorf("required input %q is missing", name)
			}
			continue
		}
		if err := checkValue(name, v, spec); err != nil {
			return err
		}
	}
	return nil
}

func checkValue(path string, v any, spec PortSpec) error {
	switch spec.Type {
	case "string", "text":
		if _, ok := v.(string); !ok {
			return fmt.Errorf("expected string for %q, got %T", path, v)
		}
	case "number":
		if !isNumber(v) {
			return fmt.Errorf("expected number for %q, got %T", path, v)
		}
	case "boolean":
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("expected boolean for %q, got %T", path, v)
		}
	case "object":
		if _, ok := v.(map[string]any); !ok {
			return fmt.Errorf("expected object for %q, got %T", path, v)
		}
	case "array":
		if _, ok := v.([]any); !ok {
			return fmt.Errorf("expected array for %q, got %T", path, v)
		}
	}
	if spec.Constraints != nil {
		return checkConstraints(path, v, spec.Constraints)
	}
	return nil
}

func checkConstraints(path string, v any, c *Constraints) error {
	if c.Min != nil || c.Max != nil {
		n, ok := asFloat(v)
		if ok {
			if c.Min != nil && n < *c.Min {
				return fmt.Errorf("value for %q must be >= %v", path, *c.Min)
			}
			if c.Max != nil && n > *c.Max {
				return fmt.Errorf("value for %q must be <= %v", path, *c.Max)
			}
		}
	}
	if c.MinLength != nil || c.MaxLength != nil {
		if s, ok := v.(string); ok {
			if c.MinLength != nil && len(s) < *c.MinLength {
				return fmt.Errorf("value for %q must have length >= %d", path, *c.MinLength)
			}
			if c.MaxLength != nil && len(s) > *c.MaxLength {
				return fmt.Errorf("value for %q must have length <= %d", path, *c.MaxLength)
			}
		}
	}
	if c.Pattern != "" {
		if s, ok := v.(string); ok {
			re, err := regexp.Compile(c.Pattern)
			if err != nil {
				return fmt.Errorf("bad pattern for %q: %v", path, err)
			}
			if !re.MatchString(s) {
				return fmt.Errorf("value for %q does not match pattern %s", path, c.Pattern)
			}
		}
	}
	if len(c.Enum) > 0 {
		for _, allowed := range c.Enum {
			if v == allowed {
				return nil
			}
		}
		return fmt.Errorf("value for %q must be one of %v", path, c.Enum)
	}
	return nil
}

func isNumber(v any) bool {
	_, ok := asFloat(v)
	return ok
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
