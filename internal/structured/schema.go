package structured

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Schema is a compiled JSON Schema used to report drift in parsed output.
type Schema struct {
	name     string
	compiled *jsonschema.Schema
}

// CompileSchema compiles a raw JSON Schema document.
// Wrapped forms ({"schema": {...}} and {"json_schema": {"schema": {...}}})
// are unwrapped first.
func CompileSchema(name string, raw json.RawMessage) (*Schema, error) {
	core, err := unwrapSchema(raw)
	if err != nil {
		return nil, err
	}

	compiler := jsonschema.NewCompiler()
	url := name + ".json"
	if err := compiler.AddResource(url, bytes.NewReader(core)); err != nil {
		return nil, fmt.Errorf("failed to load schema %s: %w", name, err)
	}
	compiled, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema %s: %w", name, err)
	}
	return &Schema{name: name, compiled: compiled}, nil
}

// MustCompileSchema is like CompileSchema but panics on error.
func MustCompileSchema(name string, raw json.RawMessage) *Schema {
	s, err := CompileSchema(name, raw)
	if err != nil {
		panic(err)
	}
	return s
}

// Name returns the schema name given at compile time.
func (s *Schema) Name() string {
	return s.name
}

// Check validates a JSON document against the schema.
func (s *Schema) Check(value json.RawMessage) error {
	var doc any
	if err := json.Unmarshal(value, &doc); err != nil {
		return fmt.Errorf("failed to decode document: %w", err)
	}
	if err := s.compiled.Validate(doc); err != nil {
		return fmt.Errorf("document does not match schema %s: %w", s.name, err)
	}
	return nil
}

func unwrapSchema(raw json.RawMessage) (json.RawMessage, error) {
	var root any
	if err := json.Unmarshal(raw, &root); err != nil {
		return nil, fmt.Errorf("invalid schema JSON: %w", err)
	}

	if rootMap, ok := root.(map[string]any); ok {
		if inner, ok := rootMap["schema"]; ok {
			return json.Marshal(inner)
		}
		if wrapped, ok := rootMap["json_schema"].(map[string]any); ok {
			if inner, ok := wrapped["schema"]; ok {
				return json.Marshal(inner)
			}
		}
	}
	return raw, nil
}
