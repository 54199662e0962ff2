package pipeline

import (
	"context"
	"errors"
	"fmt"

	"loan-underwriting/internal/models"
	"loan-underwriting/internal/scoring"
)

// StubConfidence is reported by every built-in stage.
const StubConfidence = 0.85

const (
	VerdictApprove = "approve"
	VerdictReject  = "reject"
)

// Success builds a succeeded result.
func Success(stage, verdict, summary string, data map[string]interface{}) models.StageResult {
	return models.StageResult{
		Stage:      stage,
		Status:     models.StageSucceeded,
		Confidence: StubConfidence,
		Verdict:    verdict,
		Summary:    summary,
		Data:       data,
	}
}

// Failure builds a failed result carrying err.
func Failure(stage string, err error) models.StageResult {
	return models.StageResult{
		Stage:  stage,
		Status: models.StageFailed,
		Err:    err,
	}
}

var errMissingInput = errors.New("missing prior stage output")

// ExtractDocuments stands in for document extraction and reports a fixed
// financial profile.
type ExtractDocuments struct{}

func (ExtractDocuments) Name() string { return StageExtractDocuments }

func (ExtractDocuments) Run(context.Context, *StageContext) models.StageResult {
	return Success(StageExtractDocuments, VerdictApprove, "Financial documents processed successfully",
		map[string]interface{}{
			"summary":             "Financial documents processed successfully",
			"extracted_income":    85000.0,
			"extracted_assets":    125000.0,
			"extracted_debts":     15000.0,
			"employment_verified": true,
			"bank_balance":        45000.0,
		})
}

// AnalyzeCredit consumes the extracted profile and reports a [0,1] risk score
// and a recommended rate.
type AnalyzeCredit struct{}

func (AnalyzeCredit) Name() string { return StageAnalyzeCredit }

func (AnalyzeCredit) Run(_ context.Context, sc *StageContext) models.StageResult {
	if _, ok := sc.Result(StageExtractDocuments); !ok {
		return Failure(StageAnalyzeCredit, fmt.Errorf("%w: %s", errMissingInput, StageExtractDocuments))
	}
	return Success(StageAnalyzeCredit, VerdictApprove, "Risk level: Low",
		map[string]interface{}{
			"risk_level":           "Low",
			"risk_score":           0.25,
			"recommended_amount":   280000.0,
			"recommended_rate":     4.25,
			"risk_factors":         []string{"Stable employment", "Good credit history", "Low DTI"},
			"approval_probability": 0.92,
		})
}

// CheckCompliance reports a passed regulatory review.
type CheckCompliance struct{}

func (CheckCompliance) Name() string { return StageCheckCompliance }

func (CheckCompliance) Run(_ context.Context, sc *StageContext) models.StageResult {
	if _, ok := sc.Result(StageExtractDocuments); !ok {
		return Failure(StageCheckCompliance, fmt.Errorf("%w: %s", errMissingInput, StageExtractDocuments))
	}
	return Success(StageCheckCompliance, VerdictApprove, "Compliance status: Passed",
		map[string]interface{}{
			"status": "Passed",
			"issues": []string{},
			"verified_requirements": []string{
				"Identity verification completed",
				"Income documentation adequate",
				"Credit report obtained with consent",
				"ECOA compliance verified",
			},
		})
}

// Decide applies the scoring thresholds to the application and, on approval,
// offers the rate recommended by credit analysis.
type Decide struct{}

func (Decide) Name() string { return StageDecide }

func (Decide) Run(_ context.Context, sc *StageContext) models.StageResult {
	credit, ok := sc.Result(StageAnalyzeCredit)
	if !ok {
		return Failure(StageDecide, fmt.Errorf("%w: %s", errMissingInput, StageAnalyzeCredit))
	}
	if _, ok := sc.Result(StageCheckCompliance); !ok {
		return Failure(StageDecide, fmt.Errorf("%w: %s", errMissingInput, StageCheckCompliance))
	}

	app := sc.Application
	outcome := scoring.Decide(app)
	if outcome.Status != models.StatusApproved {
		return Success(StageDecide, VerdictReject, outcome.Reasoning, map[string]interface{}{
			"decision":  "Rejected",
			"reasoning": outcome.Reasoning,
		})
	}

	rate, err := floatField(credit, "recommended_rate")
	if err != nil {
		return Failure(StageDecide, err)
	}
	return Success(StageDecide, VerdictApprove, outcome.Reasoning, map[string]interface{}{
		"decision":        "Approved",
		"approved_amount": outcome.Amount,
		"interest_rate":   rate,
		"loan_term":       app.LoanTermMonths,
		"conditions":      []string{"Property appraisal required", "Final employment verification"},
		"reasoning":       outcome.Reasoning,
	})
}
