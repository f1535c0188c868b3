package llm

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// EnhancementSchema describes the JSON object the model must return.
func EnhancementSchema() map[string]any {
	entity := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name":             map[string]any{"type": "string", "minLength": 1},
			"category":         map[string]any{"type": "string", "enum": []string{"fuel", "electricity", "gas", "heat", "transport", "other"}},
			"confidence":       map[string]any{"type": "number", "minimum": 0, "maximum": 100},
			"normalized_value": map[string]any{"type": "string"},
			"units":            map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		},
		"required": []string{"name", "confidence"},
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"entities": map[string]any{"type": "array", "items": entity},
			"context_analysis": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"document_type":     map[string]any{"type": "string"},
					"confidence":        map[string]any{"type": "number", "minimum": 0, "maximum": 100},
					"relevant_sections": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				},
			},
			"recommendations": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		},
		"required": []string{"entities"},
	}
}

func ValidateJSONAgainstSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
