package llm

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// fieldsSchema constrains the model's JSON before it is trusted. A response
// that fails validation is discarded, not repaired.
const fieldsSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "supplier_ico": {"type": ["string", "null"], "pattern": "^[0-9]{6,10}$|^$"},
    "supplier_name": {"type": ["string", "null"], "maxLength": 200},
    "doc_number": {"type": ["string", "null"], "maxLength": 64},
    "issue_date": {"type": ["string", "null"], "pattern": "^[0-9]{4}-[0-9]{2}-[0-9]{2}$|^$"},
    "total_with_vat": {"type": ["number", "null"]},
    "currency": {"type": ["string", "null"], "pattern": "^[A-Z]{3}$|^$"},
    "doc_type": {"type": ["string", "null"], "enum": ["invoice", "receipt", "", null]},
    "items": {
      "type": ["array", "null"],
      "maxItems": 200,
      "items": {
        "type": "object",
        "properties": {
          "name": {"type": "string", "minLength": 1, "maxLength": 200},
          "quantity": {"type": ["number", "null"]},
          "line_gross": {"type": ["number", "null"]},
          "vat_rate": {"type": ["number", "null"]}
        },
        "required": ["name"]
      }
    }
  }
}`

var compiledSchema = jsonschema.MustCompileString("fields.schema.json", fieldsSchema)

// validateResponse checks the decoded JSON value against the schema.
func validateResponse(v any) error {
	if err := compiledSchema.Validate(v); err != nil {
		return fmt.Errorf("fallback response failed schema validation: %w", err)
	}
	return nil
}

// extractJSONObject cuts the first top-level JSON object out of a model
// response, tolerating markdown fences around it.
func extractJSONObject(text string) (string, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSpace(text)

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end < start {
		return "", fmt.Errorf("no JSON object in fallback response")
	}
	return text[start : end+1], nil
}
