package tools

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aiox-platform/bookingbot/internal/llm"
)

type ParamType string

const (
	String  ParamType = "string"
	Number  ParamType = "number"
	Integer ParamType = "integer"
	Boolean ParamType = "boolean"
	Array   ParamType = "array"
)

// Param describes one tool argument.
type Param struct {
	Type        ParamType
	Description string
	Enum        []string
}

// Schema is a tool's name, description and argument contract.
type Schema struct {
	Name        string
	Description string
	Params      map[string]Param
	Required    []string
}

// Def renders the schema as the JSON-schema the model sees.
func (s Schema) Def() llm.ToolDef {
	props := make(map[string]any, len(s.Params))
	for name, p := range s.Params {
		prop := map[string]any{"type": string(p.Type)}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		if p.Type == Array {
			prop["items"] = map[string]any{"type": "string"}
		}
		props[name] = prop
	}
	required := s.Required
	if required == nil {
		required = []string{}
	}
	return llm.ToolDef{Name: s.Name, Description: s.Description, Properties: props, Required: required}
}

// Validate checks required arguments and argument types. Models often send
// numbers as strings and lists as comma-separated text; both are accepted.
func (s Schema) Validate(args Args) error {
	for _, name := range s.Required {
		v, ok := args[name]
		if !ok || v == nil {
			return fmt.Errorf("missing required argument %q", name)
		}
		if str, isStr := v.(string); isStr && strings.TrimSpace(str) == "" {
			return fmt.Errorf("missing required argument %q", name)
		}
	}
	for name, v := range args {
		p, ok := s.Params[name]
		if !ok || v == nil {
			continue
		}
		if err := checkType(p, v); err != nil {
			return fmt.Errorf("argument %q: %w", name, err)
		}
	}
	return nil
}

func checkType(p Param, v any) error {
	switch p.Type {
	case String:
		switch t := v.(type) {
		case string:
			if len(p.Enum) > 0 && !contains(p.Enum, t) {
				return fmt.Errorf("must be one of %s", strings.Join(p.Enum, ", "))
			}
		case float64, bool:
		default:
			return fmt.Errorf("expected string, got %T", v)
		}
	case Number, Integer:
		switch t := v.(type) {
		case float64:
		case string:
			if _, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err != nil {
				return fmt.Errorf("expected number, got %q", t)
			}
		default:
			return fmt.Errorf("expected number, got %T", v)
		}
	case Boolean:
		switch t := v.(type) {
		case bool:
		case string:
			if _, err := strconv.ParseBool(t); err != nil {
				return fmt.Errorf("expected boolean, got %q", t)
			}
		default:
			return fmt.Errorf("expected boolean, got %T", v)
		}
	case Array:
		switch v.(type) {
		case []any, string:
		default:
			return fmt.Errorf("expected array, got %T", v)
		}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if strings.EqualFold(item, s) {
			return true
		}
	}
	return false
}
