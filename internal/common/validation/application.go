// Package validation turns raw submitted fields into a LoanApplication or a
// list of field errors. Nothing invalid reaches the underwriting path.
package validation

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	apperrors "loan-underwriting/internal/common/errors"
	"loan-underwriting/internal/models"

	"github.com/xeipuuv/gojsonschema"
)

const DefaultMaxLoanAmount = 1000000.0

// fieldAliases maps accepted alternate names onto the canonical keys.
var fieldAliases = map[string]string{
	"loan_term_months": "loan_term",
	"debt_to_income":   "debt_to_income_ratio",
}

type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationError lists every field that failed.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return "application validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return apperrors.ErrValidation
}

// Limits are the configurable bounds applied after schema validation.
type Limits struct {
	MaxLoanAmount float64
}

func DefaultLimits() Limits {
	return Limits{MaxLoanAmount: DefaultMaxLoanAmount}
}

type rawApplication struct {
	ApplicantName     string  `json:"applicant_name"`
	Age               int     `json:"age"`
	AnnualIncome      float64 `json:"annual_income"`
	CreditScore       int     `json:"credit_score"`
	LoanAmount        float64 `json:"loan_amount"`
	LoanPurpose       string  `json:"loan_purpose"`
	EmploymentType    string  `json:"employment_type"`
	LoanTerm          int     `json:"loan_term"`
	DownPayment       float64 `json:"down_payment"`
	DebtToIncomeRatio float64 `json:"debt_to_income_ratio"`
}

// ValidateApplication checks fields and returns the decoded application. On
// failure the error is a *ValidationError.
func ValidateApplication(fields map[string]interface{}, limits Limits) (models.LoanApplication, error) {
	if limits.MaxLoanAmount <= 0 {
		limits.MaxLoanAmount = DefaultMaxLoanAmount
	}
	doc := canonicalize(fields)

	s, err := compiledSchema()
	if err != nil {
		return models.LoanApplication{}, fmt.Errorf("compile application schema: %w", err)
	}
	result, err := s.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return models.LoanApplication{}, &ValidationError{Fields: []FieldError{{
			Field: "(root)", Code: "INVALID_DOCUMENT", Message: err.Error(),
		}}}
	}
	if !result.Valid() {
		return models.LoanApplication{}, &ValidationError{Fields: schemaErrors(result.Errors())}
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return models.LoanApplication{}, fmt.Errorf("encode application: %w", err)
	}
	var raw rawApplication
	if err := json.Unmarshal(data, &raw); err != nil {
		return models.LoanApplication{}, &ValidationError{Fields: []FieldError{{
			Field: "(root)", Code: "INVALID_TYPE", Message: err.Error(),
		}}}
	}

	var fieldErrs []FieldError
	name := strings.Join(strings.Fields(raw.ApplicantName), " ")
	if name == "" {
		fieldErrs = append(fieldErrs, FieldError{Field: "applicant_name", Code: "MISSING_REQUIRED", Message: "applicant name is required"})
	}
	purpose, ok := models.ParseLoanPurpose(raw.LoanPurpose)
	if !ok {
		fieldErrs = append(fieldErrs, FieldError{Field: "loan_purpose", Code: "INVALID_ENUM_VALUE",
			Message: fmt.Sprintf("unknown loan purpose %q", raw.LoanPurpose)})
	}
	employment, ok := models.ParseEmploymentType(raw.EmploymentType)
	if !ok {
		fieldErrs = append(fieldErrs, FieldError{Field: "employment_type", Code: "INVALID_ENUM_VALUE",
			Message: fmt.Sprintf("unknown employment type %q", raw.EmploymentType)})
	}
	if raw.LoanAmount > limits.MaxLoanAmount {
		fieldErrs = append(fieldErrs, FieldError{Field: "loan_amount", Code: "MAXIMUM_VIOLATION",
			Message: fmt.Sprintf("must be <= %.0f", limits.MaxLoanAmount)})
	}
	if len(fieldErrs) > 0 {
		return models.LoanApplication{}, &ValidationError{Fields: fieldErrs}
	}

	return models.LoanApplication{
		ApplicantName:     name,
		Age:               raw.Age,
		AnnualIncome:      roundCents(raw.AnnualIncome),
		CreditScore:       raw.CreditScore,
		LoanAmount:        roundCents(raw.LoanAmount),
		LoanPurpose:       purpose,
		EmploymentType:    employment,
		LoanTermMonths:    raw.LoanTerm,
		DownPayment:       roundCents(raw.DownPayment),
		DebtToIncomeRatio: raw.DebtToIncomeRatio,
	}, nil
}

// roundCents matches the precision money columns are stored with.
func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

// ToFields converts an application back into the submission shape.
func ToFields(app models.LoanApplication) map[string]interface{} {
	return map[string]interface{}{
		"applicant_name":       app.ApplicantName,
		"age":                  app.Age,
		"annual_income":        app.AnnualIncome,
		"credit_score":         app.CreditScore,
		"loan_amount":          app.LoanAmount,
		"loan_purpose":         string(app.LoanPurpose),
		"employment_type":      string(app.EmploymentType),
		"loan_term":            app.LoanTermMonths,
		"down_payment":         app.DownPayment,
		"debt_to_income_ratio": app.DebtToIncomeRatio,
	}
}

func canonicalize(fields map[string]interface{}) map[string]interface{} {
	doc := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		doc[k] = v
	}
	for alias, canonical := range fieldAliases {
		if v, ok := doc[alias]; ok {
			if _, exists := doc[canonical]; !exists {
				doc[canonical] = v
			}
			delete(doc, alias)
		}
	}
	return doc
}

func schemaErrors(errs []gojsonschema.ResultError) []FieldError {
	out := make([]FieldError, 0, len(errs))
	for _, e := range errs {
		field := e.Field()
		if field == "(root)" {
			if p, ok := e.Details()["property"].(string); ok {
				field = p
			}
		}
		out = append(out, FieldError{
			Field:   field,
			Code:    strings.ToUpper(e.Type()),
			Message: e.Description(),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return out
}
