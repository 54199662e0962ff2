// internal/workers/underwriting/underwrite-application/models.go
package underwriteapplication

type Input struct {
	Application   map[string]interface{} `json:"application"`
	SubmissionKey string                 `json:"submissionKey,omitempty"`
}

type Output struct {
	ApplicationID      string   `json:"applicationId,omitempty"`
	Approved           bool     `json:"approved"`
	Decision           string   `json:"decision"`
	ApprovedAmount     float64  `json:"approvedAmount"`
	InterestRate       *float64 `json:"interestRate"`
	RiskScore          float64  `json:"riskScore"`
	Reasoning          string   `json:"reasoning"`
	DecisionSource     string   `json:"decisionSource"`
	ProcessingTime     float64  `json:"processingTimeSeconds"`
	PersistenceWarning string   `json:"persistenceWarning,omitempty"`
}
