// internal/workers/underwriting/validate-loan-application/models.go
package validateloanapplication

import (
	"loan-underwriting/internal/common/validation"
)

type Input struct {
	Application map[string]interface{} `json:"application"`
}

// Output always completes the job; the process branches on Valid.
type Output struct {
	Valid            bool                    `json:"valid"`
	Application      map[string]interface{}  `json:"application,omitempty"`
	ValidationErrors []validation.FieldError `json:"validationErrors"`
	ValidatedAt      string                  `json:"validatedAt"`
}
