// internal/workers/underwriting/underwrite-application/handler_test.go
package underwriteapplication

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "loan-underwriting/internal/common/errors"
	"loan-underwriting/internal/common/logger"
	"loan-underwriting/internal/models"
	"loan-underwriting/internal/store"
	"loan-underwriting/internal/underwriter"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

type testLogger struct {
	t *testing.T
}

func (tl *testLogger) Debug(msg string, fields map[string]interface{}) {
	tl.t.Logf("DEBUG: %s %v", msg, fields)
}

func (tl *testLogger) Info(msg string, fields map[string]interface{}) {
	tl.t.Logf("INFO: %s %v", msg, fields)
}

func (tl *testLogger) Warn(msg string, fields map[string]interface{}) {
	tl.t.Logf("WARN: %s %v", msg, fields)
}

func (tl *testLogger) Error(msg string, fields map[string]interface{}) {
	tl.t.Logf("ERROR: %s %v", msg, fields)
}

func (tl *testLogger) WithFields(map[string]interface{}) logger.Logger { return tl }
func (tl *testLogger) WithError(error) logger.Logger                   { return tl }
func (tl *testLogger) With(map[string]interface{}) logger.Logger       { return tl }

func newTestLogger(t *testing.T) logger.Logger {
	return &testLogger{t: t}
}

func createTestConfig() *Config {
	return &Config{Timeout: 5 * time.Second}
}

func applicationFields(creditScore float64) map[string]interface{} {
	return map[string]interface{}{
		"applicant_name":       "John Doe",
		"age":                  35,
		"annual_income":        80000,
		"credit_score":         creditScore,
		"loan_amount":          200000,
		"loan_purpose":         "Home Purchase",
		"employment_type":      "Full-time",
		"loan_term":            360,
		"down_payment":         40000,
		"debt_to_income_ratio": 25,
	}
}

type stubSubmitter struct {
	result *underwriter.SubmitResult
	err    error
}

func (s *stubSubmitter) SubmitOnce(context.Context, string, map[string]interface{}) (*underwriter.SubmitResult, error) {
	return s.result, s.err
}

// ==========================
// Core Functionality Tests
// ==========================

func TestHandler_Execute_Approved(t *testing.T) {
	svc := underwriter.New(store.NewMemoryStore(), nil, logger.NewNoOpLogger())
	handler := NewHandler(createTestConfig(), svc, newTestLogger(t))

	output, err := handler.Execute(context.Background(), &Input{Application: applicationFields(750)})
	require.NoError(t, err)

	assert.NotEmpty(t, output.ApplicationID)
	assert.True(t, output.Approved)
	assert.Equal(t, "approved", output.Decision)
	assert.Equal(t, 200000.0, output.ApprovedAmount)
	require.NotNil(t, output.InterestRate)
	assert.Equal(t, "pipeline", output.DecisionSource)
	assert.Empty(t, output.PersistenceWarning)
}

func TestHandler_Execute_Rejected(t *testing.T) {
	svc := underwriter.New(store.NewMemoryStore(), nil, logger.NewNoOpLogger())
	handler := NewHandler(createTestConfig(), svc, newTestLogger(t))

	output, err := handler.Execute(context.Background(), &Input{Application: applicationFields(600)})
	require.NoError(t, err)

	assert.False(t, output.Approved)
	assert.Equal(t, "rejected", output.Decision)
	assert.Zero(t, output.ApprovedAmount)
	assert.Nil(t, output.InterestRate)
	assert.Contains(t, output.Reasoning, "Credit score too low (600 < 650)")
}

func TestHandler_Execute_PersistenceWarningPassesThrough(t *testing.T) {
	stub := &stubSubmitter{result: &underwriter.SubmitResult{
		Decision: models.UnderwritingDecision{
			Status:       models.StatusRejected,
			Reasoning:    "Rejected: High debt-to-income ratio (45%)",
			RiskScore:    420,
			Source:       models.SourceFallback,
			StageResults: []models.StageResult{},
		},
		PersistenceWarning: "decision was not saved: STORAGE_UNAVAILABLE",
	}}
	handler := NewHandler(createTestConfig(), stub, newTestLogger(t))

	output, err := handler.Execute(context.Background(), &Input{Application: applicationFields(700)})
	require.NoError(t, err)
	assert.Empty(t, output.ApplicationID)
	assert.Equal(t, "fallback", output.DecisionSource)
	assert.Contains(t, output.PersistenceWarning, "STORAGE_UNAVAILABLE")
}

func TestHandler_Execute_RedeliveredJobStoresOneRecord(t *testing.T) {
	st := store.NewMemoryStore()
	svc := underwriter.New(st, nil, logger.NewNoOpLogger())
	handler := NewHandler(createTestConfig(), svc, newTestLogger(t))

	job := entities.Job{ActivatedJob: &pb.ActivatedJob{
		Key:                2251799813685263,
		ElementInstanceKey: 2251799813685258,
		ProcessInstanceKey: 2251799813685251,
		Type:               TaskType,
	}}
	input := &Input{Application: applicationFields(750), SubmissionKey: jobSubmissionKey(job)}

	first, err := handler.Execute(context.Background(), input)
	require.NoError(t, err)
	second, err := handler.Execute(context.Background(), input)
	require.NoError(t, err)

	assert.Equal(t, first.ApplicationID, second.ApplicationID)
	assert.Equal(t, first.Decision, second.Decision)

	recs, err := st.Recent(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestJobSubmissionKey(t *testing.T) {
	job := entities.Job{ActivatedJob: &pb.ActivatedJob{Key: 1, ElementInstanceKey: 2251799813685258}}
	retried := entities.Job{ActivatedJob: &pb.ActivatedJob{Key: 1, ElementInstanceKey: 2251799813685258, Retries: 2}}
	other := entities.Job{ActivatedJob: &pb.ActivatedJob{Key: 5, ElementInstanceKey: 2251799813685270}}

	assert.Equal(t, "zeebe:2251799813685258", jobSubmissionKey(job))
	assert.Equal(t, jobSubmissionKey(job), jobSubmissionKey(retried))
	assert.NotEqual(t, jobSubmissionKey(job), jobSubmissionKey(other))
}

// ==========================
// Error Handling Tests
// ==========================

func TestHandler_Execute_MissingApplication(t *testing.T) {
	handler := NewHandler(createTestConfig(), &stubSubmitter{}, newTestLogger(t))

	output, err := handler.Execute(context.Background(), &Input{})
	assert.Nil(t, output)
	assert.ErrorIs(t, err, ErrMissingApplication)
	assert.Equal(t, apperrors.ErrCodeApplicationValidationFailed, apperrors.CodeOf(toStandardError(err)))
}

func TestHandler_Execute_ValidationFailure(t *testing.T) {
	svc := underwriter.New(store.NewMemoryStore(), nil, logger.NewNoOpLogger())
	handler := NewHandler(createTestConfig(), svc, newTestLogger(t))

	fields := applicationFields(750)
	fields["age"] = 16
	output, err := handler.Execute(context.Background(), &Input{Application: fields})
	require.Error(t, err)
	assert.Nil(t, output)

	stdErr := apperrors.Normalize(toStandardError(err))
	assert.Equal(t, apperrors.ErrCodeApplicationValidationFailed, stdErr.Code)
	assert.Contains(t, stdErr.Details, "age")
}

func TestHandler_Execute_ServiceErrorPassesThrough(t *testing.T) {
	cause := apperrors.NewStorageUnavailableError(errors.New("connection refused"))
	handler := NewHandler(createTestConfig(), &stubSubmitter{err: cause}, newTestLogger(t))

	_, err := handler.Execute(context.Background(), &Input{Application: applicationFields(750)})
	assert.Same(t, cause, toStandardError(err))
}
