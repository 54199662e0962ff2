package models

import "time"

// ApplicationRecord is the persisted join of an application and its decision.
// SubmissionKey, when set, is unique across records: saving a second record
// under the same key returns the first one instead.
type ApplicationRecord struct {
	ApplicationID string    `json:"application_id"`
	SubmittedAt   time.Time `json:"submitted_at"`
	SubmissionKey string    `json:"submission_key,omitempty"`
	LoanApplication
	UnderwritingDecision
}

// Clone returns a copy that shares no pointers, slices or maps with rec.
func (rec ApplicationRecord) Clone() ApplicationRecord {
	rec.UnderwritingDecision = rec.UnderwritingDecision.Clone()
	return rec
}

// TrendBucket is one day's aggregate, computed on demand.
type TrendBucket struct {
	Date           string  `json:"date"`
	Total          int     `json:"total"`
	ApprovedCount  int     `json:"approved_count"`
	RejectedCount  int     `json:"rejected_count"`
	AvgLoanAmount  float64 `json:"avg_loan_amount"`
	AvgCreditScore float64 `json:"avg_credit_score"`
}

type AnalyticsSummary struct {
	TodayCount         int     `json:"today_count"`
	ApprovalRatePct    float64 `json:"approval_rate_pct"`
	AvgProcessingTimeS float64 `json:"avg_processing_time_s"`
	AvgCreditScore     float64 `json:"avg_credit_score"`
}

// DailyAnalytics mirrors one row of the loan_analytics table.
type DailyAnalytics struct {
	Date                 string    `json:"date"`
	TotalApplications    int       `json:"total_applications"`
	ApprovedApplications int       `json:"approved_applications"`
	RejectedApplications int       `json:"rejected_applications"`
	ApprovalRate         float64   `json:"approval_rate"`
	AvgLoanAmount        float64   `json:"avg_loan_amount"`
	AvgCreditScore       float64   `json:"avg_credit_score"`
	AvgProcessingTime    float64   `json:"avg_processing_time"`
	CreatedTimestamp     time.Time `json:"created_timestamp"`
}

// DateLayout is the calendar-day key used by trends and daily analytics.
const DateLayout = "2006-01-02"
