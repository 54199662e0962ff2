package validation

import (
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// applicationSchema checks presence, JSON types and the fixed ranges. Enum
// spellings and configurable limits are checked after decoding. Money
// maximums are the largest value a DECIMAL(12,2) column holds.
const applicationSchema = `{
  "type": "object",
  "required": [
    "applicant_name", "age", "annual_income", "credit_score", "loan_amount",
    "loan_purpose", "employment_type", "loan_term", "down_payment", "debt_to_income_ratio"
  ],
  "properties": {
    "applicant_name":       {"type": "string", "minLength": 1, "maxLength": 255},
    "age":                  {"type": "integer", "minimum": 18, "maximum": 120},
    "annual_income":        {"type": "number", "minimum": 0, "maximum": 9999999999.99},
    "credit_score":         {"type": "integer", "minimum": 300, "maximum": 850},
    "loan_amount":          {"type": "number", "minimum": 1000, "maximum": 9999999999.99},
    "loan_purpose":         {"type": "string", "minLength": 1},
    "employment_type":      {"type": "string", "minLength": 1},
    "loan_term":            {"type": "integer", "minimum": 1},
    "down_payment":         {"type": "number", "minimum": 0, "maximum": 9999999999.99},
    "debt_to_income_ratio": {"type": "number", "minimum": 0, "maximum": 100}
  }
}`

var (
	schemaOnce sync.Once
	schema     *gojsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(applicationSchema))
	})
	return schema, schemaErr
}
