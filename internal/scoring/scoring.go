// Package scoring holds the deterministic underwriting rule. Every fallback
// path in the service calls into this package instead of restating it.
package scoring

import (
	"fmt"
	"strconv"
	"strings"

	"loan-underwriting/internal/models"
)

const (
	MinRiskScore = 300.0
	MaxRiskScore = 850.0

	MinCreditScore      = 650
	MinIncomeToLoan     = 0.2
	MaxDebtToIncomePct  = 40.0
	BaseRate            = 8.0
	MinRate             = 3.5
	MaxRate             = 15.0
	rateCreditPivot     = 600
	rateCreditDivisor   = 50.0
	noIncomeRiskPenalty = 100.0
)

// Result is the outcome of Evaluate.
type Result struct {
	RiskScore float64
	Status    models.DecisionStatus
	Amount    float64
	Rate      *float64
	Reasoning string
}

// Decision converts the result to an UnderwritingDecision with no stage results.
func (r Result) Decision() models.UnderwritingDecision {
	d := models.UnderwritingDecision{
		Status:         r.Status,
		ApprovedAmount: r.Amount,
		InterestRate:   r.Rate,
		RiskScore:      r.RiskScore,
		Reasoning:      r.Reasoning,
		StageResults:   []models.StageResult{},
		Source:         models.SourceFallback,
	}
	d.Normalize()
	return d
}

// Evaluate scores an application and decides it. Inputs are assumed validated.
func Evaluate(app models.LoanApplication) Result {
	risk := RiskScore(app)
	res := Decide(app)
	res.RiskScore = risk
	return res
}

// RiskScore returns the clamped risk score in [300, 850]; lower is safer.
func RiskScore(app models.LoanApplication) float64 {
	base := float64(700 - app.CreditScore)
	debt := app.DebtToIncomeRatio * 2
	income := noIncomeRiskPenalty
	if app.AnnualIncome > 0 {
		income = app.LoanAmount / app.AnnualIncome * 100
	}
	return clamp(base+debt+income, MinRiskScore, MaxRiskScore)
}

// Decide applies the three thresholds. RiskScore is left zero.
func Decide(app models.LoanApplication) Result {
	creditOK := app.CreditScore >= MinCreditScore
	incomeOK := app.AnnualIncome >= app.LoanAmount*MinIncomeToLoan
	debtOK := app.DebtToIncomeRatio <= MaxDebtToIncomePct

	if creditOK && incomeOK && debtOK {
		rate := InterestRate(app.CreditScore)
		return Result{
			Status: models.StatusApproved,
			Amount: app.LoanAmount,
			Rate:   &rate,
			Reasoning: fmt.Sprintf(
				"Approved: Good credit score (%d), sufficient income, manageable debt ratio (%s%%)",
				app.CreditScore, formatNumber(app.DebtToIncomeRatio),
			),
		}
	}

	var reasons []string
	if !creditOK {
		reasons = append(reasons, fmt.Sprintf("Credit score too low (%d < %d)", app.CreditScore, MinCreditScore))
	}
	if !incomeOK {
		reasons = append(reasons, "Insufficient income relative to loan amount")
	}
	if !debtOK {
		reasons = append(reasons, fmt.Sprintf("High debt-to-income ratio (%s%%)", formatNumber(app.DebtToIncomeRatio)))
	}

	return Result{
		Status:    models.StatusRejected,
		Reasoning: "Rejected: " + strings.Join(reasons, "; "),
	}
}

// InterestRate is clamp(8.0 - (score-600)/50, 3.5, 15.0).
func InterestRate(creditScore int) float64 {
	return clamp(BaseRate-float64(creditScore-rateCreditPivot)/rateCreditDivisor, MinRate, MaxRate)
}

// NormalizedRisk maps a [0,1] stage risk value onto the [300,850] scale.
func NormalizedRisk(v float64) float64 {
	return MinRiskScore + v*(MaxRiskScore-MinRiskScore)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
