package validation

import (
	stderrors "errors"
	"testing"

	apperrors "loan-underwriting/internal/common/errors"
	"loan-underwriting/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validFields() map[string]interface{} {
	return map[string]interface{}{
		"applicant_name":       "  John   Doe ",
		"age":                  35.0,
		"annual_income":        80000.0,
		"credit_score":         750.0,
		"loan_amount":          200000.0,
		"loan_purpose":         "Home Purchase",
		"employment_type":      "Full-time",
		"loan_term":            360.0,
		"down_payment":         40000.0,
		"debt_to_income_ratio": 25.0,
	}
}

func fieldNames(err error) []string {
	var verr *ValidationError
	if !stderrors.As(err, &verr) {
		return nil
	}
	names := make([]string, len(verr.Fields))
	for i, f := range verr.Fields {
		names[i] = f.Field
	}
	return names
}

func TestValidateApplication_Valid(t *testing.T) {
	app, err := ValidateApplication(validFields(), DefaultLimits())
	require.NoError(t, err)

	assert.Equal(t, models.LoanApplication{
		ApplicantName:     "John Doe",
		Age:               35,
		AnnualIncome:      80000,
		CreditScore:       750,
		LoanAmount:        200000,
		LoanPurpose:       models.LoanPurposeHomePurchase,
		EmploymentType:    models.EmploymentFullTime,
		LoanTermMonths:    360,
		DownPayment:       40000,
		DebtToIncomeRatio: 25,
	}, app)
}

func TestValidateApplication_AcceptsAliases(t *testing.T) {
	fields := validFields()
	fields["loan_term_months"] = fields["loan_term"]
	delete(fields, "loan_term")

	app, err := ValidateApplication(fields, DefaultLimits())
	require.NoError(t, err)
	assert.Equal(t, 360, app.LoanTermMonths)
}

func TestValidateApplication_RoundTripsToFields(t *testing.T) {
	app, err := ValidateApplication(validFields(), DefaultLimits())
	require.NoError(t, err)

	again, err := ValidateApplication(ToFields(app), DefaultLimits())
	require.NoError(t, err)
	assert.Equal(t, app, again)
}

func TestValidateApplication_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(map[string]interface{})
		field  string
	}{
		{"missing name", func(f map[string]interface{}) { delete(f, "applicant_name") }, "applicant_name"},
		{"blank name", func(f map[string]interface{}) { f["applicant_name"] = "   " }, "applicant_name"},
		{"minor", func(f map[string]interface{}) { f["age"] = 17.0 }, "age"},
		{"fractional age", func(f map[string]interface{}) { f["age"] = 30.5 }, "age"},
		{"credit too low", func(f map[string]interface{}) { f["credit_score"] = 299.0 }, "credit_score"},
		{"credit too high", func(f map[string]interface{}) { f["credit_score"] = 851.0 }, "credit_score"},
		{"loan too small", func(f map[string]interface{}) { f["loan_amount"] = 999.0 }, "loan_amount"},
		{"loan above limit", func(f map[string]interface{}) { f["loan_amount"] = 1000001.0 }, "loan_amount"},
		{"negative income", func(f map[string]interface{}) { f["annual_income"] = -1.0 }, "annual_income"},
		{"income beyond column range", func(f map[string]interface{}) { f["annual_income"] = 1e11 }, "annual_income"},
		{"down payment beyond column range", func(f map[string]interface{}) { f["down_payment"] = 1e10 }, "down_payment"},
		{"dti over 100", func(f map[string]interface{}) { f["debt_to_income_ratio"] = 100.5 }, "debt_to_income_ratio"},
		{"unknown purpose", func(f map[string]interface{}) { f["loan_purpose"] = "Yacht" }, "loan_purpose"},
		{"unknown employment", func(f map[string]interface{}) { f["employment_type"] = "Retired" }, "employment_type"},
		{"string income", func(f map[string]interface{}) { f["annual_income"] = "lots" }, "annual_income"},
		{"zero term", func(f map[string]interface{}) { f["loan_term"] = 0.0 }, "loan_term"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := validFields()
			tt.mutate(fields)

			_, err := ValidateApplication(fields, DefaultLimits())
			require.Error(t, err)
			assert.True(t, stderrors.Is(err, apperrors.ErrValidation))
			assert.Contains(t, fieldNames(err), tt.field)
		})
	}
}

func TestValidateApplication_ReportsEveryField(t *testing.T) {
	fields := validFields()
	fields["age"] = 10.0
	fields["credit_score"] = 100.0

	_, err := ValidateApplication(fields, DefaultLimits())
	require.Error(t, err)
	assert.ElementsMatch(t, []string{"age", "credit_score"}, fieldNames(err))
}

func TestValidateApplication_LoanAboveColumnRangeWithRaisedLimit(t *testing.T) {
	fields := validFields()
	fields["loan_amount"] = 2e10
	_, err := ValidateApplication(fields, Limits{MaxLoanAmount: 1e12})
	require.Error(t, err)
	assert.Contains(t, fieldNames(err), "loan_amount")
}

func TestValidateApplication_RoundsMoneyToCents(t *testing.T) {
	fields := validFields()
	fields["annual_income"] = 85000.456
	fields["loan_amount"] = 200000.004
	fields["down_payment"] = 1234567.899

	app, err := ValidateApplication(fields, DefaultLimits())
	require.NoError(t, err)
	assert.Equal(t, 85000.46, app.AnnualIncome)
	assert.Equal(t, 200000.0, app.LoanAmount)
	assert.Equal(t, 1234567.9, app.DownPayment)
}

func TestValidateApplication_CustomLimit(t *testing.T) {
	fields := validFields()
	_, err := ValidateApplication(fields, Limits{MaxLoanAmount: 100000})
	require.Error(t, err)
	assert.Equal(t, []string{"loan_amount"}, fieldNames(err))
}
