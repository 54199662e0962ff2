// Package decisionengine calls an external underwriting service over HTTP.
// Callers fall back to the scoring rule on any error returned here.
package decisionengine

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"loan-underwriting/internal/common/config"
	apperrors "loan-underwriting/internal/common/errors"
	commonhttp "loan-underwriting/internal/common/http"
	"loan-underwriting/internal/common/logger"
	"loan-underwriting/internal/models"
	"loan-underwriting/internal/scoring"
)

const DefaultTimeout = 30 * time.Second

// Request is the body posted to the engine.
type Request struct {
	ApplicationData models.LoanApplication `json:"application_data"`
	RequestedAt     string                 `json:"requested_at"`
}

// AgentDetail is one agent's contribution as reported by the engine.
type AgentDetail struct {
	Agent      string  `json:"agent"`
	Decision   string  `json:"decision"`
	Confidence float64 `json:"confidence"` // percent
	Reasoning  string  `json:"reasoning"`
}

// Response is the engine's decision payload.
type Response struct {
	Decision       string        `json:"decision"`
	ApprovedAmount float64       `json:"approved_amount"`
	InterestRate   *float64      `json:"interest_rate"`
	RiskScore      float64       `json:"risk_score"`
	Reasoning      string        `json:"reasoning"`
	ProcessingTime *float64      `json:"processing_time"`
	AgentDetails   []AgentDetail `json:"agent_details,omitempty"`
}

type Client struct {
	http     *commonhttp.Client
	endpoint string
	apiKey   string
	logger   logger.Logger
	now      func() time.Time
}

func New(cfg config.DecisionEngineConfig, log logger.Logger, opts ...commonhttp.Option) *Client {
	timeout := config.GetDuration(cfg.Timeout)
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	base := []commonhttp.Option{
		commonhttp.WithRetries(cfg.MaxRetries, 250*time.Millisecond),
		commonhttp.WithRateLimit(cfg.RateLimit, 1),
	}
	return &Client{
		http:     commonhttp.NewClient(timeout, append(base, opts...)...),
		endpoint: cfg.EndpointURL,
		apiKey:   cfg.APIKey,
		logger:   log.WithFields(map[string]interface{}{"component": "decision_engine"}),
		now:      time.Now,
	}
}

// Decide posts app to the engine and maps the reply to a decision.
func (c *Client) Decide(ctx context.Context, app models.LoanApplication) (models.UnderwritingDecision, error) {
	start := c.now()
	headers := map[string]string{}
	if c.apiKey != "" {
		headers["Authorization"] = "Bearer " + c.apiKey
	}

	var resp Response
	err := c.http.DoJSON(ctx, http.MethodPost, c.endpoint, headers, Request{
		ApplicationData: app,
		RequestedAt:     start.UTC().Format(time.RFC3339),
	}, &resp)
	if err != nil {
		if isTimeout(ctx, err) {
			return models.UnderwritingDecision{}, apperrors.NewDecisionEngineTimeoutError(err)
		}
		return models.UnderwritingDecision{}, apperrors.NewDecisionEngineFailedError(err)
	}

	decision, err := resp.toDecision()
	if err != nil {
		return models.UnderwritingDecision{}, apperrors.NewDecisionEngineFailedError(err)
	}
	decision.ProcessingTimeSeconds = c.now().Sub(start).Seconds()
	c.logger.Debug("decision engine replied", map[string]interface{}{
		"decision":  decision.Status,
		"riskScore": decision.RiskScore,
	})
	return decision, nil
}

func (r Response) toDecision() (models.UnderwritingDecision, error) {
	if strings.TrimSpace(r.Reasoning) == "" {
		return models.UnderwritingDecision{}, errors.New("response has no reasoning")
	}

	d := models.UnderwritingDecision{
		Status:       models.StatusRejected,
		RiskScore:    riskScore(r.RiskScore),
		Reasoning:    r.Reasoning,
		StageResults: make([]models.StageResult, 0, len(r.AgentDetails)),
		Source:       models.SourceDecisionEngine,
	}
	switch strings.ToLower(strings.TrimSpace(r.Decision)) {
	case "approved", "approve":
		if r.InterestRate == nil {
			return models.UnderwritingDecision{}, errors.New("approved response has no interest rate")
		}
		if r.ApprovedAmount <= 0 {
			return models.UnderwritingDecision{}, fmt.Errorf("approved response has amount %v", r.ApprovedAmount)
		}
		d.Status = models.StatusApproved
		d.ApprovedAmount = r.ApprovedAmount
		rate := *r.InterestRate
		d.InterestRate = &rate
	case "rejected", "reject", "denied":
	default:
		return models.UnderwritingDecision{}, fmt.Errorf("unknown decision %q", r.Decision)
	}

	for _, a := range r.AgentDetails {
		d.StageResults = append(d.StageResults, models.StageResult{
			Stage:      a.Agent,
			Status:     models.StageSucceeded,
			Confidence: a.Confidence / 100,
			Verdict:    strings.ToLower(a.Decision),
			Summary:    a.Reasoning,
		})
	}
	d.Normalize()
	return d, nil
}

// riskScore accepts either the [0,1] agent scale or the [300,850] scale.
func riskScore(v float64) float64 {
	if v >= 0 && v <= 1 {
		return scoring.NormalizedRisk(v)
	}
	if v < scoring.MinRiskScore {
		return scoring.MinRiskScore
	}
	if v > scoring.MaxRiskScore {
		return scoring.MaxRiskScore
	}
	return v
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
