package vision

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// operationSchema is the envelope of a poll response. Missing status is allowed and
// surfaces as an unknown status; wrong types are malformed.
func operationSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"status":        map[string]any{"type": "string"},
			"analyzeResult": map[string]any{"type": []string{"object", "null"}},
			"error": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"code":    map[string]any{"type": "string"},
					"message": map[string]any{"type": "string"},
				},
			},
		},
	}
}

// analyzeResultSchema covers the pages -> lines -> {boundingBox, text} path the parser walks.
// Null or absent box and text are allowed; the parser skips those lines.
func analyzeResultSchema() map[string]any {
	line := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"boundingBox": map[string]any{
				"type":     []string{"array", "null"},
				"items":    map[string]any{"type": "number"},
				"minItems": 8,
			},
			"text": map[string]any{"type": []string{"string", "null"}},
		},
	}
	page := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"lines": map[string]any{"type": []string{"array", "null"}, "items": line},
		},
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"readResults": map[string]any{"type": []string{"array", "null"}, "items": page},
		},
	}
}

var (
	compileOnce     sync.Once
	compiledOp      *jsonschema.Schema
	compiledAnalyze *jsonschema.Schema
	compileErr      error
)

func schemas() (*jsonschema.Schema, *jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiledOp, compileErr = compileSchema("operation.json", operationSchema())
		if compileErr != nil {
			return
		}
		compiledAnalyze, compileErr = compileSchema("analyze_result.json", analyzeResultSchema())
	})
	return compiledOp, compiledAnalyze, compileErr
}

func compileSchema(name string, schemaMap map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// validateJSON checks data against schema. Decode errors and schema violations are both returned.
func validateJSON(schema *jsonschema.Schema, data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
