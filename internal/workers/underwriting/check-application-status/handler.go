// internal/workers/underwriting/check-application-status/handler.go
package checkapplicationstatus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "loan-underwriting/internal/common/errors"
	"loan-underwriting/internal/common/logger"
	"loan-underwriting/internal/common/metrics"
	"loan-underwriting/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "check-application-status"
)

var (
	ErrMissingApplicationID = errors.New("MISSING_APPLICATION_ID")
)

type StatusReader interface {
	CheckStatus(ctx context.Context, applicationID string) (*models.ApplicationRecord, error)
}

type Handler struct {
	config     *Config
	service    StatusReader
	errHandler *apperrors.ErrorHandler
	logger     logger.Logger
}

func NewHandler(config *Config, service StatusReader, log logger.Logger) *Handler {
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

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	output, err := h.execute(ctx, &input)
	if err != nil {
		if errors.Is(err, ErrMissingApplicationID) {
			err = apperrors.NewApplicationValidationFailedError(err.Error())
		}
		h.errHandler.HandleJobError(context.Background(), client, job, err)
		return
	}

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
		h.logger.Error("failed to complete job", map[string]interface{}{
			"error": err,
		})
		return
	}
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	id := strings.TrimSpace(input.ApplicationID)
	if id == "" {
		return nil, fmt.Errorf("%w: applicationId is required", ErrMissingApplicationID)
	}

	rec, err := h.service.CheckStatus(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, apperrors.NewApplicationNotFoundError(id)
	}

	return &Output{
		ApplicationID:  rec.ApplicationID,
		Decision:       string(rec.Status),
		Approved:       rec.Approved(),
		ApprovedAmount: rec.ApprovedAmount,
		InterestRate:   rec.InterestRate,
		RiskScore:      rec.RiskScore,
		Reasoning:      rec.Reasoning,
		ApplicantName:  rec.ApplicantName,
		LoanAmount:     rec.LoanAmount,
		SubmittedAt:    rec.SubmittedAt.UTC().Format(time.RFC3339),
	}, nil
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
