// internal/workers/underwriting/check-application-status/models.go
package checkapplicationstatus

type Input struct {
	ApplicationID string `json:"applicationId"`
}

type Output struct {
	ApplicationID  string   `json:"applicationId"`
	Decision       string   `json:"decision"`
	Approved       bool     `json:"approved"`
	ApprovedAmount float64  `json:"approvedAmount"`
	InterestRate   *float64 `json:"interestRate"`
	RiskScore      float64  `json:"riskScore"`
	Reasoning      string   `json:"reasoning"`
	ApplicantName  string   `json:"applicantName"`
	LoanAmount     float64  `json:"loanAmount"`
	SubmittedAt    string   `json:"submittedAt"` // ISO 8601
}
