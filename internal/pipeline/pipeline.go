// Package pipeline runs the ordered underwriting stages over one application
// and assembles a decision, falling back to the scoring rule when any stage
// does not succeed.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"loan-underwriting/internal/common/logger"
	"loan-underwriting/internal/common/metrics"
	"loan-underwriting/internal/models"
	"loan-underwriting/internal/scoring"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	StageExtractDocuments = "extract_documents"
	StageAnalyzeCredit    = "analyze_credit"
	StageCheckCompliance  = "check_compliance"
	StageDecide           = "decide"
)

// Stage is one unit of underwriting work. A stage reports failure through the
// returned result rather than by panicking.
type Stage interface {
	Name() string
	Run(ctx context.Context, sc *StageContext) models.StageResult
}

// StageContext carries the application and the results of earlier stages.
type StageContext struct {
	Application models.LoanApplication
	Results     []models.StageResult
}

// Result returns the most recent result recorded for a stage.
func (sc *StageContext) Result(stage string) (models.StageResult, bool) {
	for i := len(sc.Results) - 1; i >= 0; i-- {
		if sc.Results[i].Stage == stage {
			return sc.Results[i], true
		}
	}
	return models.StageResult{}, false
}

type Pipeline struct {
	stages []Stage
	logger logger.Logger
	tracer trace.Tracer
	now    func() time.Time
}

type Option func(*Pipeline)

func WithLogger(log logger.Logger) Option {
	return func(p *Pipeline) { p.logger = log }
}

func WithTracer(tracer trace.Tracer) Option {
	return func(p *Pipeline) { p.tracer = tracer }
}

func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

func New(stages []Stage, opts ...Option) *Pipeline {
	p := &Pipeline{
		stages: append([]Stage(nil), stages...),
		logger: logger.NewNoOpLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.tracer == nil {
		p.tracer = otel.Tracer("loan-underwriting/pipeline")
	}
	p.logger = p.logger.WithFields(map[string]interface{}{"component": "pipeline"})
	return p
}

// Default returns the four-stage pipeline backed by the built-in stages.
func Default(opts ...Option) *Pipeline {
	return New([]Stage{
		ExtractDocuments{},
		AnalyzeCredit{},
		CheckCompliance{},
		Decide{},
	}, opts...)
}

// Run never fails: any stage failure, or a final result missing the fields a
// decision needs, yields the scoring fallback with no stage results.
func (p *Pipeline) Run(ctx context.Context, app models.LoanApplication) models.UnderwritingDecision {
	start := p.now()
	ctx, span := p.tracer.Start(ctx, "underwriting.pipeline",
		trace.WithAttributes(attribute.Int("stages", len(p.stages))))
	defer span.End()

	sc := &StageContext{Application: app}
	for _, stage := range p.stages {
		res := p.runStage(ctx, stage, sc)
		sc.Results = append(sc.Results, res)
		if res.Failed() {
			return p.fallback(ctx, app, start, res.Stage, res.Err)
		}
	}

	decision, err := assemble(sc)
	if err != nil {
		return p.fallback(ctx, app, start, StageDecide, err)
	}
	decision.ProcessingTimeSeconds = p.elapsed(start)
	span.SetAttributes(attribute.String("decision", string(decision.Status)))
	return decision
}

func (p *Pipeline) runStage(ctx context.Context, stage Stage, sc *StageContext) (res models.StageResult) {
	name := stage.Name()
	ctx, span := p.tracer.Start(ctx, "underwriting.stage."+name)
	defer func() {
		if r := recover(); r != nil {
			res = Failure(name, fmt.Errorf("stage panicked: %v", r))
		}
		if res.Stage == "" {
			res.Stage = name
		}
		if res.Failed() {
			span.SetStatus(codes.Error, errorText(res.Err))
		}
		span.SetAttributes(
			attribute.String("status", string(res.Status)),
			attribute.Float64("confidence", res.Confidence),
		)
		span.End()
		metrics.StageRuns.WithLabelValues(name, string(res.Status)).Inc()
	}()

	if err := ctx.Err(); err != nil {
		return Failure(name, err)
	}
	return stage.Run(ctx, sc)
}

func (p *Pipeline) fallback(ctx context.Context, app models.LoanApplication, start time.Time, stage string, cause error) models.UnderwritingDecision {
	metrics.Fallbacks.Inc()
	trace.SpanFromContext(ctx).AddEvent("fallback", trace.WithAttributes(attribute.String("stage", stage)))
	p.logger.Warn("stage failed, using scoring fallback", map[string]interface{}{
		"stage": stage,
		"error": errorText(cause),
	})

	decision := scoring.Evaluate(app).Decision()
	decision.ProcessingTimeSeconds = p.elapsed(start)
	return decision
}

func (p *Pipeline) elapsed(start time.Time) float64 {
	d := p.now().Sub(start).Seconds()
	if d < 0 {
		return 0
	}
	return d
}

// assemble builds the decision from the credit and decide stage outputs.
func assemble(sc *StageContext) (models.UnderwritingDecision, error) {
	credit, ok := sc.Result(StageAnalyzeCredit)
	if !ok {
		return models.UnderwritingDecision{}, fmt.Errorf("no %s result", StageAnalyzeCredit)
	}
	risk, err := floatField(credit, "risk_score")
	if err != nil {
		return models.UnderwritingDecision{}, err
	}

	final, ok := sc.Result(StageDecide)
	if !ok {
		return models.UnderwritingDecision{}, fmt.Errorf("no %s result", StageDecide)
	}
	verdict, err := stringField(final, "decision")
	if err != nil {
		return models.UnderwritingDecision{}, err
	}
	reasoning, err := stringField(final, "reasoning")
	if err != nil {
		return models.UnderwritingDecision{}, err
	}
	if reasoning == "" {
		return models.UnderwritingDecision{}, fmt.Errorf("%s: empty reasoning", StageDecide)
	}

	decision := models.UnderwritingDecision{
		Status:       models.StatusRejected,
		RiskScore:    scoring.NormalizedRisk(risk),
		Reasoning:    reasoning,
		StageResults: append([]models.StageResult(nil), sc.Results...),
		Source:       models.SourcePipeline,
	}
	if isApproval(verdict) {
		amount, err := floatField(final, "approved_amount")
		if err != nil {
			return models.UnderwritingDecision{}, err
		}
		rate, err := floatField(final, "interest_rate")
		if err != nil {
			return models.UnderwritingDecision{}, err
		}
		decision.Status = models.StatusApproved
		decision.ApprovedAmount = amount
		decision.InterestRate = models.Float64(rate)
	}
	decision.Normalize()
	return decision, nil
}

func isApproval(verdict string) bool {
	switch verdict {
	case "Approved", "approved", "approve", "Approve":
		return true
	}
	return false
}

func floatField(res models.StageResult, key string) (float64, error) {
	v, ok := res.Data[key]
	if !ok {
		return 0, fmt.Errorf("%s: missing %s", res.Stage, key)
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	}
	return 0, fmt.Errorf("%s: %s is %T, not a number", res.Stage, key, v)
}

func stringField(res models.StageResult, key string) (string, error) {
	v, ok := res.Data[key]
	if !ok {
		return "", fmt.Errorf("%s: missing %s", res.Stage, key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%s: %s is %T, not a string", res.Stage, key, v)
	}
	return s, nil
}

func errorText(err error) string {
	if err == nil {
		return "unknown"
	}
	return err.Error()
}
