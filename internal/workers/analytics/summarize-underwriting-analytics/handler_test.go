// internal/workers/analytics/summarize-underwriting-analytics/handler_test.go
package summarizeunderwritinganalytics

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "loan-underwriting/internal/common/errors"
	"loan-underwriting/internal/common/logger"
	"loan-underwriting/internal/models"
	"loan-underwriting/internal/scoring"
	"loan-underwriting/internal/store"
	"loan-underwriting/internal/underwriter"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

func sampleApplication(creditScore int, amount float64) models.LoanApplication {
	return models.LoanApplication{
		ApplicantName:     "Test Applicant",
		Age:               40,
		AnnualIncome:      90000,
		CreditScore:       creditScore,
		LoanAmount:        amount,
		LoanPurpose:       models.LoanPurposePersonal,
		EmploymentType:    models.EmploymentFullTime,
		LoanTermMonths:    36,
		DownPayment:       0,
		DebtToIncomeRatio: 20,
	}
}

func setupHandler(t *testing.T) (*Handler, *store.MemoryStore) {
	t.Helper()
	now := baseTime
	st := store.NewMemoryStore(store.WithClock(func() time.Time { return now }))

	for _, app := range []models.LoanApplication{
		sampleApplication(720, 20000),
		sampleApplication(600, 10000),
	} {
		_, _, err := st.Save(context.Background(), app, scoring.Evaluate(app).Decision(), "")
		require.NoError(t, err)
	}
	now = baseTime.AddDate(0, 0, -1)
	yesterday := sampleApplication(780, 30000)
	_, _, err := st.Save(context.Background(), yesterday, scoring.Evaluate(yesterday).Decision(), "")
	require.NoError(t, err)
	now = baseTime

	svc := underwriter.New(st, nil, logger.NewNoOpLogger())
	h := NewHandler(LoadConfig(), svc, logger.NewTestLogger(t))
	h.now = func() time.Time { return baseTime }
	return h, st
}

func TestHandler_Execute_Defaults(t *testing.T) {
	h, st := setupHandler(t)

	output, err := h.Execute(context.Background(), &Input{})
	require.NoError(t, err)

	assert.Equal(t, 2, output.Summary.TodayCount)
	assert.InDelta(t, 66.7, output.Summary.ApprovalRatePct, 1e-9)
	assert.Equal(t, 700.0, output.Summary.AvgCreditScore)
	require.Len(t, output.Trends, 2)
	assert.Equal(t, "2024-03-14", output.Trends[0].Date)
	assert.Equal(t, "2024-03-15", output.Trends[1].Date)
	assert.Empty(t, output.RefreshedDays)
	assert.Equal(t, "2024-03-15T12:00:00Z", output.GeneratedAt)

	_, ok := st.DailyAnalytics("2024-03-15")
	assert.False(t, ok)
}

func TestHandler_Execute_Refresh(t *testing.T) {
	h, st := setupHandler(t)

	output, err := h.Execute(context.Background(), &Input{TrendDays: 7, Refresh: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-03-14", "2024-03-15"}, output.RefreshedDays)

	row, ok := st.DailyAnalytics("2024-03-15")
	require.True(t, ok)
	assert.Equal(t, 2, row.TotalApplications)
	assert.Equal(t, 1, row.ApprovedApplications)
}

func TestHandler_Execute_InvalidWindow(t *testing.T) {
	h, _ := setupHandler(t)

	_, err := h.Execute(context.Background(), &Input{WindowDays: -3})
	assert.ErrorIs(t, err, ErrInvalidWindow)

	_, err = h.Execute(context.Background(), &Input{TrendDays: 1000})
	assert.ErrorIs(t, err, ErrInvalidWindow)
}

type failingAnalytics struct{ err error }

func (f failingAnalytics) Summary(context.Context, time.Duration) (models.AnalyticsSummary, error) {
	return models.AnalyticsSummary{}, f.err
}

func (f failingAnalytics) Trends(context.Context, int) ([]models.TrendBucket, error) {
	return nil, f.err
}

func (f failingAnalytics) RefreshAnalytics(context.Context, ...time.Time) ([]models.DailyAnalytics, error) {
	return nil, f.err
}

func TestHandler_Execute_StorageUnavailable(t *testing.T) {
	cause := apperrors.NewStorageUnavailableError(errors.New("session expired"))
	h := NewHandler(LoadConfig(), failingAnalytics{err: cause}, logger.NewTestLogger(t))

	output, err := h.Execute(context.Background(), &Input{})
	assert.Nil(t, output)
	assert.ErrorIs(t, err, apperrors.ErrStorageUnavailable)
}
