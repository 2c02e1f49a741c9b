package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	dErrors "manifestgate/pkg/domain-errors"
)

// schemaJSON is the external submission contract. Structural invariants that
// need cross-field knowledge (scope declarations, reserved IDs, signature
// requirements) live in the analyzer; this schema rejects shape violations
// before a ticket is ever created.
const schemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["id", "name", "version", "entry", "permissions"],
  "properties": {
    "id": {
      "type": "string",
      "pattern": "^app_[a-z0-9][a-z0-9_-]*$",
      "maxLength": 64
    },
    "name": { "type": "string", "minLength": 1, "maxLength": 120 },
    "version": {
      "type": "string",
      "pattern": "^[0-9]+\\.[0-9]+\\.[0-9]+(-[0-9A-Za-z.-]+)?(\\+[0-9A-Za-z.-]+)?$"
    },
    "entry": {
      "type": "string",
      "pattern": "^(/|https?://).+"
    },
    "permissions": {
      "type": "array",
      "items": { "type": "string", "minLength": 1 },
      "uniqueItems": true
    },
    "endpoints": {
      "type": "object",
      "maxProperties": 1000,
      "additionalProperties": {
        "type": "object",
        "required": ["fn"],
        "properties": {
          "fn": { "type": "string", "minLength": 1 },
          "args": {
            "type": "object",
            "maxProperties": 50,
            "additionalProperties": { "type": "string" }
          },
          "scopes": {
            "type": "array",
            "items": { "type": "string", "minLength": 1 }
          },
          "description": { "type": "string" }
        }
      }
    },
    "routes": {
      "type": "object",
      "additionalProperties": { "type": "string", "minLength": 1 }
    },
    "description": { "type": "string" },
    "icon": { "type": "string" },
    "category": { "type": "string" },
    "signer": { "type": "string" },
    "signature": { "type": "string" },
    "signatureScheme": { "type": "string", "enum": ["ed25519", "pgp"] }
  }
}`

var compiledSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	const url = "https://manifestgate.schemas.local/manifest.schema.json"
	if err := c.AddResource(url, strings.NewReader(schemaJSON)); err != nil {
		panic(fmt.Sprintf("manifest schema resource: %v", err))
	}
	s, err := c.Compile(url)
	if err != nil {
		panic(fmt.Sprintf("manifest schema compile: %v", err))
	}
	return s
}

// ValidateRaw checks raw JSON against the submission schema and, on success,
// decodes it into a Manifest. Schema violations come back as field-level
// validation detail; no side effects either way.
func ValidateRaw(raw json.RawMessage) (*Manifest, error) {
	var generic any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "manifest is not valid JSON")
	}

	if err := compiledSchema.Validate(generic); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return nil, dErrors.NewValidation("manifest failed schema validation", flattenCauses(ve))
		}
		return nil, dErrors.Wrap(dErrors.CodeInternal, "schema validation", err)
	}

	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, dErrors.Wrap(dErrors.CodeBadRequest, "manifest decode", err)
	}
	return &m, nil
}

// flattenCauses walks the validation error tree and keeps the leaves, which
// carry the most specific instance locations.
func flattenCauses(ve *jsonschema.ValidationError) []dErrors.FieldError {
	if len(ve.Causes) == 0 {
		field := strings.TrimPrefix(ve.InstanceLocation, "/")
		field = strings.ReplaceAll(field, "/", ".")
		if field == "" {
			field = "(root)"
		}
		return []dErrors.FieldError{{Field: field, Message: ve.Message}}
	}
	var out []dErrors.FieldError
	for _, cause := range ve.Causes {
		out = append(out, flattenCauses(cause)...)
	}
	return out
}
