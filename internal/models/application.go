// internal/models/application.go
package models

import "strings"

type LoanPurpose string

const (
	LoanPurposeHomePurchase LoanPurpose = "HomePurchase"
	LoanPurposeAuto         LoanPurpose = "Auto"
	LoanPurposePersonal     LoanPurpose = "Personal"
	LoanPurposeBusiness     LoanPurpose = "Business"
	LoanPurposeEducation    LoanPurpose = "Education"
)

type EmploymentType string

const (
	EmploymentFullTime     EmploymentType = "FullTime"
	EmploymentPartTime     EmploymentType = "PartTime"
	EmploymentSelfEmployed EmploymentType = "SelfEmployed"
	EmploymentUnemployed   EmploymentType = "Unemployed"
)

var loanPurposes = []LoanPurpose{
	LoanPurposeHomePurchase,
	LoanPurposeAuto,
	LoanPurposePersonal,
	LoanPurposeBusiness,
	LoanPurposeEducation,
}

var employmentTypes = []EmploymentType{
	EmploymentFullTime,
	EmploymentPartTime,
	EmploymentSelfEmployed,
	EmploymentUnemployed,
}

func (p LoanPurpose) Valid() bool {
	for _, v := range loanPurposes {
		if p == v {
			return true
		}
	}
	return false
}

func (e EmploymentType) Valid() bool {
	for _, v := range employmentTypes {
		if e == v {
			return true
		}
	}
	return false
}

// ParseLoanPurpose accepts canonical names as well as form spellings such as
// "Home Purchase" or "home_purchase".
func ParseLoanPurpose(s string) (LoanPurpose, bool) {
	key := normalizeEnum(s)
	for _, v := range loanPurposes {
		if normalizeEnum(string(v)) == key {
			return v, true
		}
	}
	return "", false
}

// ParseEmploymentType accepts canonical names as well as form spellings such as
// "Full-time" or "Self-employed".
func ParseEmploymentType(s string) (EmploymentType, bool) {
	key := normalizeEnum(s)
	for _, v := range employmentTypes {
		if normalizeEnum(string(v)) == key {
			return v, true
		}
	}
	return "", false
}

func normalizeEnum(s string) string {
	r := strings.NewReplacer(" ", "", "-", "", "_", "")
	return strings.ToLower(r.Replace(strings.TrimSpace(s)))
}

// LoanApplication is one submitted request. It is immutable once validated.
type LoanApplication struct {
	ApplicantName     string         `json:"applicant_name"`
	Age               int            `json:"age"`
	AnnualIncome      float64        `json:"annual_income"`
	CreditScore       int            `json:"credit_score"`
	LoanAmount        float64        `json:"loan_amount"`
	LoanPurpose       LoanPurpose    `json:"loan_purpose"`
	EmploymentType    EmploymentType `json:"employment_type"`
	LoanTermMonths    int            `json:"loan_term"`
	DownPayment       float64        `json:"down_payment"`
	DebtToIncomeRatio float64        `json:"debt_to_income_ratio"`
}
