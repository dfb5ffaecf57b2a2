package catalog

import (
	"bytes"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// documentSchema describes the structural shape of the local catalog
// document. Unknown keys on entries are allowed so a document written by a
// newer host version still loads.
const documentSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["apps"],
  "properties": {
    "apps": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "cmd": {"type": "string"},
          "detached": {"type": "array", "items": {"type": "string"}},
          "output": {"type": "string"},
          "elevated": {"type": "boolean"},
          "auto-detach": {"type": "boolean"},
          "wait-all": {"type": "boolean"},
          "exit-timeout": {"type": "integer"},
          "exclude-global-prep-cmd": {"type": "boolean"},
          "prep-cmd": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["do"],
              "properties": {
                "do": {"type": "string"},
                "undo": {"type": "string"},
                "elevated": {"type": "boolean"}
              }
            }
          }
        }
      }
    }
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func compileDocumentSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(documentSchema))
		if err != nil {
			schemaErr = err
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("sunsync://catalog.schema.json", doc); err != nil {
			schemaErr = err
			return
		}
		compiledSchema, schemaErr = compiler.Compile("sunsync://catalog.schema.json")
	})
	return compiledSchema, schemaErr
}

// ValidateDocument checks raw document bytes against the catalog schema.
// Returns a ValidationError describing the first structural problem.
func ValidateDocument(data []byte) error {
	schema, err := compileDocumentSchema()
	if err != nil {
		return fmt.Errorf("compile catalog schema: %w", err)
	}
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return &ValidationError{Reason: fmt.Sprintf("document is not valid JSON: %v", err)}
	}
	if err := schema.Validate(instance); err != nil {
		return &ValidationError{Reason: err.Error()}
	}
	return nil
}
