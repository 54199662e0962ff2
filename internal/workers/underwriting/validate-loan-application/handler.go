// internal/workers/underwriting/validate-loan-application/handler.go
package validateloanapplication

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	apperrors "loan-underwriting/internal/common/errors"
	"loan-underwriting/internal/common/logger"
	"loan-underwriting/internal/common/metrics"
	"loan-underwriting/internal/common/validation"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "validate-loan-application"
)

var (
	ErrMissingApplication = errors.New("MISSING_APPLICATION")
)

type Handler struct {
	config     *Config
	errHandler *apperrors.ErrorHandler
	logger     logger.Logger
}

func NewHandler(config *Config, log logger.Logger) *Handler {
	l := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:     config,
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
		h.errHandler.HandleJobError(context.Background(), client, job,
			apperrors.NewApplicationValidationFailedError(err.Error()))
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

func (h *Handler) execute(_ context.Context, input *Input) (*Output, error) {
	if input.Application == nil {
		return nil, fmt.Errorf("%w: job variables carry no application", ErrMissingApplication)
	}

	output := &Output{
		ValidationErrors: []validation.FieldError{},
		ValidatedAt:      time.Now().UTC().Format(time.RFC3339),
	}

	app, err := validation.ValidateApplication(input.Application, h.config.Limits)
	if err != nil {
		var verr *validation.ValidationError
		if !errors.As(err, &verr) {
			return nil, err
		}
		output.ValidationErrors = verr.Fields
		h.logger.Info("application rejected by validation", map[string]interface{}{
			"errorCount": len(verr.Fields),
		})
		return output, nil
	}

	output.Valid = true
	output.Application = validation.ToFields(app)
	return output, nil
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
