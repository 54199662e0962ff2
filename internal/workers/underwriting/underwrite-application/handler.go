// internal/workers/underwriting/underwrite-application/handler.go
package underwriteapplication

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	apperrors "loan-underwriting/internal/common/errors"
	"loan-underwriting/internal/common/logger"
	"loan-underwriting/internal/common/metrics"
	"loan-underwriting/internal/common/validation"
	"loan-underwriting/internal/underwriter"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "underwrite-application"
)

var (
	ErrMissingApplication = errors.New("MISSING_APPLICATION")
)

// Submitter is the slice of the underwriter service this worker needs.
type Submitter interface {
	SubmitOnce(ctx context.Context, submissionKey string, fields map[string]interface{}) (*underwriter.SubmitResult, error)
}

type Handler struct {
	config     *Config
	service    Submitter
	errHandler *apperrors.ErrorHandler
	logger     logger.Logger
}

func NewHandler(config *Config, service Submitter, log logger.Logger) *Handler {
	l := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:     config,
		service:    service,
		errHandler: apperrors.NewErrorHandler(l),
		logger:     l,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.errHandler.HandleJobError(context.Background(), client, job,
			apperrors.NewApplicationValidationFailedError(fmt.Sprintf("parse input: %v", err)))
		return
	}
	if input.SubmissionKey == "" {
		input.SubmissionKey = jobSubmissionKey(job)
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	output, err := h.execute(ctx, &input)
	if err != nil {
		h.errHandler.HandleJobError(context.Background(), client, job, toStandardError(err))
		return
	}

	h.completeJob(client, job, output)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if len(input.Application) == 0 {
		return nil, fmt.Errorf("%w: job variables carry no application", ErrMissingApplication)
	}

	res, err := h.service.SubmitOnce(ctx, input.SubmissionKey, input.Application)
	if err != nil {
		return nil, err
	}

	d := res.Decision
	h.logger.Info("application underwritten", map[string]interface{}{
		"applicationId": res.ApplicationID,
		"decision":      d.Status,
		"source":        d.Source,
		"persisted":     res.PersistenceWarning == "",
	})

	return &Output{
		ApplicationID:      res.ApplicationID,
		Approved:           d.Approved(),
		Decision:           string(d.Status),
		ApprovedAmount:     d.ApprovedAmount,
		InterestRate:       d.InterestRate,
		RiskScore:          d.RiskScore,
		Reasoning:          d.Reasoning,
		DecisionSource:     string(d.Source),
		ProcessingTime:     d.ProcessingTimeSeconds,
		PersistenceWarning: res.PersistenceWarning,
	}, nil
}

// jobSubmissionKey identifies the task activation. Redelivered and retried
// jobs share the element instance key, so they map to one stored record.
func jobSubmissionKey(job entities.Job) string {
	return fmt.Sprintf("zeebe:%d", job.GetElementInstanceKey())
}

// toStandardError keeps validation details in the BPMN error message.
func toStandardError(err error) error {
	var verr *validation.ValidationError
	switch {
	case errors.As(err, &verr):
		return apperrors.NewApplicationValidationFailedError(verr.Error())
	case errors.Is(err, ErrMissingApplication):
		return apperrors.NewApplicationValidationFailedError(err.Error())
	default:
		return err
	}
}

func (h *Handler) completeJob(client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	if _, err := cmd.Send(context.Background()); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	h.logger.Info("job completed successfully", map[string]interface{}{
		"jobKey": job.Key,
	})
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
