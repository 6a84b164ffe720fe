package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// payloadSchema is the loose structural contract we hold extraction providers
// to: an object, with line_items (when present) as an array of objects.
// Field names are not constrained here; that is the alias table's job.
const payloadSchema = `{
	"type": "object",
	"properties": {
		"line_items": {
			"type": "array",
			"items": {"type": "object"}
		},
		"Items": {
			"type": "array",
			"items": {"type": "object"}
		}
	}
}`

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("extraction.json", bytes.NewReader([]byte(payloadSchema))); err != nil {
			schemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		schema, schemaErr = compiler.Compile("extraction.json")
	})
	return schema, schemaErr
}

// ValidatePayload checks a raw provider payload against the structural schema.
func ValidatePayload(raw []byte) error {
	s, err := compiledSchema()
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("payload does not match extraction schema: %w", err)
	}
	return nil
}
