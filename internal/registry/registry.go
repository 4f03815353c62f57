// Package registry is the single source of truth for the callable tool set:
// which tools exist, their input schemas, and the descriptions surfaced to
// the LLM provider. The set and its order are fixed at construction and
// never change between turns, which keeps provider-side context caching
// effective.
package registry

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/orbital-ai/orbital/pkg/llm"
)

// ToolSpec declares a single tool's contract.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

// ValidationError reports a structured argument-validation failure. It is
// fed back to the model as an observation, never surfaced raw to the user.
type ValidationError struct {
	Tool   string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid arguments for %s: field %q %s", e.Tool, e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid arguments for %s: %s", e.Tool, e.Reason)
}

// paramSchema is the subset of JSON Schema the tool declarations use.
type paramSchema struct {
	Type       string                 `json:"type"`
	Properties map[string]propSchema  `json:"properties"`
	Required   []string               `json:"required"`
}

type propSchema struct {
	Type  json.RawMessage `json:"type"` // string or array of strings
	Enum  []any           `json:"enum"`
	Items *propSchema     `json:"items"`
}

// Registry holds the declared tools in a stable order.
type Registry struct {
	specs   []ToolSpec
	schemas map[string]paramSchema
}

// New builds a registry from the given specs. Spec order is preserved.
func New(specs []ToolSpec) (*Registry, error) {
	r := &Registry{
		specs:   specs,
		schemas: make(map[string]paramSchema, len(specs)),
	}
	for _, s := range specs {
		if _, dup := r.schemas[s.Name]; dup {
			return nil, fmt.Errorf("duplicate tool %q", s.Name)
		}
		var ps paramSchema
		if err := json.Unmarshal(s.Parameters, &ps); err != nil {
			return nil, fmt.Errorf("parse schema for %q: %w", s.Name, err)
		}
		r.schemas[s.Name] = ps
	}
	return r, nil
}

// List returns the declared tools in registration order.
func (r *Registry) List() []ToolSpec {
	out := make([]ToolSpec, len(r.specs))
	copy(out, r.specs)
	return out
}

// Has reports whether a tool with the given name is declared.
func (r *Registry) Has(name string) bool {
	_, ok := r.schemas[name]
	return ok
}

// AsLLMTools converts the declared tools to the LLM provider format,
// preserving order.
func (r *Registry) AsLLMTools() []llm.Tool {
	out := make([]llm.Tool, 0, len(r.specs))
	for _, s := range r.specs {
		out = append(out, llm.Tool{
			Type: "function",
			Function: llm.Function{
				Name:        s.Name,
				Description: s.Description,
				Parameters:  s.Parameters,
			},
		})
	}
	return out
}

// Validate checks rawArgs against the tool's declared schema. It returns the
// parsed argument map on success, or a *ValidationError describing the first
// failure. Validation never panics on malformed input.
func (r *Registry) Validate(toolName string, rawArgs json.RawMessage) (map[string]any, *ValidationError) {
	schema, ok := r.schemas[toolName]
	if !ok {
		return nil, &ValidationError{Tool: toolName, Reason: "unknown tool"}
	}

	args := map[string]any{}
	if len(rawArgs) > 0 {
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			return nil, &ValidationError{Tool: toolName, Reason: "arguments are not a JSON object"}
		}
	}

	for _, req := range schema.Required {
		if _, present := args[req]; !present {
			return nil, &ValidationError{Tool: toolName, Field: req, Reason: "is required"}
		}
	}

	for name, value := range args {
		prop, declared := schema.Properties[name]
		if !declared {
			// Unknown fields are ignored, matching providers that attach
			// extra hints to tool arguments.
			continue
		}
		if verr := checkValue(toolName, name, prop, value); verr != nil {
			return nil, verr
		}
	}

	return args, nil
}

func checkValue(tool, field string, prop propSchema, value any) *ValidationError {
	if value == nil {
		return nil
	}
	types := declaredTypes(prop.Type)
	if len(types) > 0 && !matchesAny(types, value) {
		return &ValidationError{
			Tool:   tool,
			Field:  field,
			Reason: fmt.Sprintf("must be of type %s", strings.Join(types, " or ")),
		}
	}
	if len(prop.Enum) > 0 && !enumContains(prop.Enum, value) {
		return &ValidationError{
			Tool:   tool,
			Field:  field,
			Reason: fmt.Sprintf("must be one of %v", prop.Enum),
		}
	}
	if prop.Items != nil {
		items, ok := value.([]any)
		if ok {
			for _, item := range items {
				if verr := checkValue(tool, field, *prop.Items, item); verr != nil {
					return verr
				}
			}
		}
	}
	return nil
}

func declaredTypes(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return []string{single}
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err == nil {
		return many
	}
	return nil
}

func matchesAny(types []string, value any) bool {
	for _, t := range types {
		if matchesType(t, value) {
			return true
		}
	}
	return false
}

func matchesType(t string, value any) bool {
	switch t {
	case "string":
		_, ok := value.(string)
		return ok
	case "number":
		_, ok := value.(float64)
		return ok
	case "integer":
		f, ok := value.(float64)
		return ok && f == float64(int64(f))
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	}
	return true
}

func enumContains(enum []any, value any) bool {
	for _, e := range enum {
		if e == value {
			return true
		}
	}
	return false
}
