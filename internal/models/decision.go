package models

type DecisionStatus string

const (
	StatusApproved DecisionStatus = "approved"
	StatusRejected DecisionStatus = "rejected"
)

// DecisionSource records which path produced a decision.
type DecisionSource string

const (
	SourcePipeline       DecisionSource = "pipeline"
	SourceFallback       DecisionSource = "fallback"
	SourceDecisionEngine DecisionSource = "decision_engine"
)

type StageStatus string

const (
	StageSucceeded StageStatus = "succeeded"
	StageFailed    StageStatus = "failed"
)

// StageResult is the outcome of one pipeline stage.
type StageResult struct {
	Stage      string                 `json:"stage"`
	Status     StageStatus            `json:"status"`
	Confidence float64                `json:"confidence"`
	Verdict    string                 `json:"verdict,omitempty"`
	Summary    string                 `json:"summary,omitempty"`
	Data       map[string]interface{} `json:"data,omitempty"`
	Err        error                  `json:"-"`
}

func (r StageResult) Failed() bool {
	return r.Status != StageSucceeded
}

// UnderwritingDecision is the output of one underwriting run.
type UnderwritingDecision struct {
	Status                DecisionStatus `json:"decision"`
	ApprovedAmount        float64        `json:"approved_amount"`
	InterestRate          *float64       `json:"interest_rate"`
	RiskScore             float64        `json:"risk_score"`
	Reasoning             string         `json:"reasoning"`
	ProcessingTimeSeconds float64        `json:"processing_time_seconds"`
	StageResults          []StageResult  `json:"stage_results"`
	Source                DecisionSource `json:"source,omitempty"`
}

func (d UnderwritingDecision) Approved() bool {
	return d.Status == StatusApproved
}

// Normalize enforces the rejected invariant: no amount and no rate.
func (d *UnderwritingDecision) Normalize() {
	if d.Status != StatusApproved {
		d.Status = StatusRejected
		d.ApprovedAmount = 0
		d.InterestRate = nil
	}
	if d.StageResults == nil {
		d.StageResults = []StageResult{}
	}
}

// Clone deep-copies the rate pointer and every stage's Data map. The stage
// slice of the copy is never nil.
func (d UnderwritingDecision) Clone() UnderwritingDecision {
	if d.InterestRate != nil {
		rate := *d.InterestRate
		d.InterestRate = &rate
	}
	results := make([]StageResult, len(d.StageResults))
	for i, r := range d.StageResults {
		if r.Data != nil {
			data := make(map[string]interface{}, len(r.Data))
			for k, v := range r.Data {
				data[k] = v
			}
			r.Data = data
		}
		results[i] = r
	}
	d.StageResults = results
	return d
}

func Float64(v float64) *float64 {
	return &v
}
