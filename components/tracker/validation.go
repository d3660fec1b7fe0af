package tracker

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const bundleSchemaName = "scp-tracker-bundle.json"

// bundleSchema describes an exported configuration file. Every top-level
// field is optional; present fields must carry the right type.
const bundleSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "token": {"type": "string"},
    "intervalSec": {"type": "number"},
    "widgets": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["scp"],
        "properties": {
          "scp": {"type": ["string", "number"]},
          "name": {"type": "string"},
          "locked": {"type": "boolean"}
        }
      }
    }
  }
}`

// BundleValidator checks decoded configuration documents against the bundle schema.
type BundleValidator struct {
	once   sync.Once
	schema *jsonschema.Schema
	err    error
}

// NewBundleValidator returns a lazily compiled validator.
func NewBundleValidator() *BundleValidator {
	return &BundleValidator{}
}

// Validate checks a document produced by encoding/json decoding.
func (v *BundleValidator) Validate(doc any) error {
	schema, err := v.compiled()
	if err != nil {
		return err
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("tracker: configuration bundle failed validation: %w", err)
	}
	return nil
}

func (v *BundleValidator) compiled() (*jsonschema.Schema, error) {
	v.once.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(bundleSchemaName, bytes.NewReader([]byte(bundleSchema))); err != nil {
			v.err = fmt.Errorf("tracker: load bundle schema: %w", err)
			return
		}
		v.schema, v.err = compiler.Compile(bundleSchemaName)
		if v.err != nil {
			v.err = fmt.Errorf("tracker: compile bundle schema: %w", v.err)
		}
	})
	return v.schema, v.err
}
