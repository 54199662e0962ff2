package pipeline

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"loan-underwriting/internal/common/metrics"
	"loan-underwriting/internal/models"
	"loan-underwriting/internal/scoring"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func goodApplication() models.LoanApplication {
	return models.LoanApplication{
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
	}
}

func weakApplication() models.LoanApplication {
	app := goodApplication()
	app.CreditScore = 620
	app.AnnualIncome = 45000
	app.LoanAmount = 150000
	app.DebtToIncomeRatio = 45
	return app
}

// stageFunc adapts a function to the Stage interface.
type stageFunc struct {
	name string
	run  func(ctx context.Context, sc *StageContext) models.StageResult
}

func (s stageFunc) Name() string { return s.name }

func (s stageFunc) Run(ctx context.Context, sc *StageContext) models.StageResult {
	return s.run(ctx, sc)
}

func failing(name string) Stage {
	return stageFunc{name: name, run: func(context.Context, *StageContext) models.StageResult {
		return Failure(name, stderrors.New("agent unavailable"))
	}}
}

// assertFallback checks that d is exactly the scoring outcome for app.
func assertFallback(t *testing.T, app models.LoanApplication, d models.UnderwritingDecision) {
	t.Helper()
	want := scoring.Evaluate(app).Decision()
	want.ProcessingTimeSeconds = d.ProcessingTimeSeconds
	assert.Equal(t, want, d)
	assert.Equal(t, models.SourceFallback, d.Source)
	assert.NotNil(t, d.StageResults)
	assert.Empty(t, d.StageResults)
}

func TestDefault_ApprovesStrongApplication(t *testing.T) {
	d := Default().Run(context.Background(), goodApplication())

	assert.Equal(t, models.StatusApproved, d.Status)
	assert.Equal(t, 200000.0, d.ApprovedAmount)
	require.NotNil(t, d.InterestRate)
	assert.Equal(t, 4.25, *d.InterestRate)
	assert.Equal(t, 437.5, d.RiskScore)
	assert.Equal(t, "Approved: Good credit score (750), sufficient income, manageable debt ratio (25%)", d.Reasoning)
	assert.Equal(t, models.SourcePipeline, d.Source)
	assert.GreaterOrEqual(t, d.ProcessingTimeSeconds, 0.0)

	require.Len(t, d.StageResults, 4)
	names := []string{StageExtractDocuments, StageAnalyzeCredit, StageCheckCompliance, StageDecide}
	for i, r := range d.StageResults {
		assert.Equal(t, names[i], r.Stage)
		assert.Equal(t, models.StageSucceeded, r.Status)
		assert.Equal(t, StubConfidence, r.Confidence)
	}
}

func TestDefault_RejectsWeakApplication(t *testing.T) {
	d := Default().Run(context.Background(), weakApplication())

	assert.Equal(t, models.StatusRejected, d.Status)
	assert.Zero(t, d.ApprovedAmount)
	assert.Nil(t, d.InterestRate)
	assert.Equal(t, 437.5, d.RiskScore)
	assert.Equal(t, "Rejected: Credit score too low (620 < 650); High debt-to-income ratio (45%)", d.Reasoning)
	require.Len(t, d.StageResults, 4)
	assert.Equal(t, VerdictReject, d.StageResults[3].Verdict)
}

func TestRun_StageFailureFallsBackToScoring(t *testing.T) {
	for _, failAt := range []int{0, 1, 2, 3} {
		stages := []Stage{ExtractDocuments{}, AnalyzeCredit{}, CheckCompliance{}, Decide{}}
		stages[failAt] = failing(stages[failAt].Name())

		before := testutil.ToFloat64(metrics.Fallbacks)
		for _, app := range []models.LoanApplication{goodApplication(), weakApplication()} {
			d := New(stages).Run(context.Background(), app)
			assertFallback(t, app, d)
		}
		assert.Equal(t, before+2, testutil.ToFloat64(metrics.Fallbacks))
	}
}

func TestRun_LaterStagesDoNotRunAfterFailure(t *testing.T) {
	ran := false
	spy := stageFunc{name: StageDecide, run: func(context.Context, *StageContext) models.StageResult {
		ran = true
		return models.StageResult{}
	}}

	New([]Stage{ExtractDocuments{}, failing(StageAnalyzeCredit), spy}).Run(context.Background(), goodApplication())
	assert.False(t, ran)
}

func TestRun_PanickingStageFallsBack(t *testing.T) {
	boom := stageFunc{name: StageCheckCompliance, run: func(context.Context, *StageContext) models.StageResult {
		panic("compliance backend exploded")
	}}
	app := goodApplication()

	d := New([]Stage{ExtractDocuments{}, AnalyzeCredit{}, boom, Decide{}}).Run(context.Background(), app)
	assertFallback(t, app, d)
}

func TestRun_MissingFieldsFallBack(t *testing.T) {
	app := goodApplication()

	noDecision := stageFunc{name: StageDecide, run: func(context.Context, *StageContext) models.StageResult {
		return Success(StageDecide, VerdictApprove, "", map[string]interface{}{"reasoning": "ok"})
	}}
	d := New([]Stage{ExtractDocuments{}, AnalyzeCredit{}, CheckCompliance{}, noDecision}).Run(context.Background(), app)
	assertFallback(t, app, d)

	badRisk := stageFunc{name: StageAnalyzeCredit, run: func(context.Context, *StageContext) models.StageResult {
		return Success(StageAnalyzeCredit, VerdictApprove, "", map[string]interface{}{
			"risk_score":       "low",
			"recommended_rate": 4.25,
		})
	}}
	d = New([]Stage{ExtractDocuments{}, badRisk, CheckCompliance{}, Decide{}}).Run(context.Background(), app)
	assertFallback(t, app, d)

	noRate := stageFunc{name: StageDecide, run: func(context.Context, *StageContext) models.StageResult {
		return Success(StageDecide, VerdictApprove, "", map[string]interface{}{
			"decision":        "Approved",
			"approved_amount": 200000.0,
			"reasoning":       "ok",
		})
	}}
	d = New([]Stage{ExtractDocuments{}, AnalyzeCredit{}, CheckCompliance{}, noRate}).Run(context.Background(), app)
	assertFallback(t, app, d)
}

func TestRun_NoStagesFallsBack(t *testing.T) {
	app := weakApplication()
	assertFallback(t, app, New(nil).Run(context.Background(), app))
}

func TestRun_CancelledContextFallsBack(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	app := goodApplication()
	assertFallback(t, app, Default().Run(ctx, app))
}

func TestRun_StagesSeePriorResults(t *testing.T) {
	var seen []int
	tracked := func(name string) Stage {
		return stageFunc{name: name, run: func(_ context.Context, sc *StageContext) models.StageResult {
			seen = append(seen, len(sc.Results))
			return Success(name, VerdictApprove, "", map[string]interface{}{})
		}}
	}

	New([]Stage{tracked("a"), tracked("b"), tracked("c")}).Run(context.Background(), goodApplication())
	assert.Equal(t, []int{0, 1, 2}, seen)
}

func TestRun_RejectedStageOutputNeverCarriesRate(t *testing.T) {
	sloppy := stageFunc{name: StageDecide, run: func(context.Context, *StageContext) models.StageResult {
		return Success(StageDecide, VerdictReject, "", map[string]interface{}{
			"decision":        "Rejected",
			"approved_amount": 5000.0,
			"interest_rate":   7.0,
			"reasoning":       "Rejected: manual review",
		})
	}}

	d := New([]Stage{ExtractDocuments{}, AnalyzeCredit{}, CheckCompliance{}, sloppy}).Run(context.Background(), goodApplication())
	assert.Equal(t, models.StatusRejected, d.Status)
	assert.Zero(t, d.ApprovedAmount)
	assert.Nil(t, d.InterestRate)
	assert.Equal(t, models.SourcePipeline, d.Source)
}

func TestRun_ProcessingTimeIsWallClock(t *testing.T) {
	base := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	calls := 0
	clock := func() time.Time {
		calls++
		if calls == 1 {
			return base
		}
		return base.Add(1500 * time.Millisecond)
	}

	d := Default(WithClock(clock)).Run(context.Background(), goodApplication())
	assert.Equal(t, 1.5, d.ProcessingTimeSeconds)
}

func TestRun_RecordsSpansAndStageMetrics(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	before := testutil.ToFloat64(metrics.StageRuns.WithLabelValues(StageDecide, string(models.StageSucceeded)))
	Default(WithTracer(tp.Tracer("test"))).Run(context.Background(), goodApplication())

	var names []string
	for _, s := range sr.Ended() {
		names = append(names, s.Name())
	}
	assert.ElementsMatch(t, []string{
		"underwriting.stage.extract_documents",
		"underwriting.stage.analyze_credit",
		"underwriting.stage.check_compliance",
		"underwriting.stage.decide",
		"underwriting.pipeline",
	}, names)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.StageRuns.WithLabelValues(StageDecide, string(models.StageSucceeded))))
}

func TestStages_RequirePriorOutputs(t *testing.T) {
	sc := &StageContext{Application: goodApplication()}

	assert.True(t, AnalyzeCredit{}.Run(context.Background(), sc).Failed())
	assert.True(t, CheckCompliance{}.Run(context.Background(), sc).Failed())
	assert.True(t, Decide{}.Run(context.Background(), sc).Failed())
	assert.False(t, ExtractDocuments{}.Run(context.Background(), sc).Failed())
}
