package bank

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// catalogSchema describes the catalog document before it is decoded into Go types.
const catalogSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["topics"],
  "properties": {
    "order": {
      "type": "array",
      "items": {"type": "string", "minLength": 1}
    },
    "topics": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "required": ["questions"],
        "properties": {
          "theory": {"type": "string"},
          "questions": {
            "type": "object",
            "propertyNames": {"enum": ["easy", "medium", "hard"]},
            "additionalProperties": {
              "type": "array",
              "items": {"$ref": "#/definitions/question"}
            }
          }
        }
      }
    }
  },
  "definitions": {
    "question": {
      "type": "object",
      "required": ["id", "question", "options", "answer"],
      "properties": {
        "id": {"type": "string", "minLength": 1},
        "question": {"type": "string", "minLength": 1},
        "options": {
          "type": "array",
          "minItems": 2,
          "uniqueItems": true,
          "items": {"type": "string"}
        },
        "answer": {"type": "string"}
      }
    }
  }
}`

var schemaLoader = gojsonschema.NewStringLoader(catalogSchema)

// validateDocument checks a decoded catalog document against catalogSchema.
func validateDocument(doc any) error {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("validating catalog: %w", err)
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("invalid catalog: %s", strings.Join(msgs, "; "))
}
