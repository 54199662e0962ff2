// internal/workers/analytics/summarize-underwriting-analytics/handler.go
package summarizeunderwritinganalytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	apperrors "loan-underwriting/internal/common/errors"
	"loan-underwriting/internal/common/logger"
	"loan-underwriting/internal/common/metrics"
	"loan-underwriting/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "summarize-underwriting-analytics"
)

var (
	ErrInvalidWindow = errors.New("INVALID_WINDOW")
)

type Analytics interface {
	Summary(ctx context.Context, window time.Duration) (models.AnalyticsSummary, error)
	Trends(ctx context.Context, days int) ([]models.TrendBucket, error)
	RefreshAnalytics(ctx context.Context, days ...time.Time) ([]models.DailyAnalytics, error)
}

type Handler struct {
	config     *Config
	service    Analytics
	errHandler *apperrors.ErrorHandler
	logger     logger.Logger
	now        func() time.Time
}

func NewHandler(config *Config, service Analytics, log logger.Logger) *Handler {
	l := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:     config,
		service:    service,
		errHandler: apperrors.NewErrorHandler(l),
		logger:     l,
		now:        time.Now,
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
		if errors.Is(err, ErrInvalidWindow) {
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
	windowDays, err := h.days(input.WindowDays, h.config.DefaultWindowDays, "windowDays")
	if err != nil {
		return nil, err
	}
	trendDays, err := h.days(input.TrendDays, h.config.DefaultTrendDays, "trendDays")
	if err != nil {
		return nil, err
	}

	now := h.now().UTC()
	output := &Output{
		RefreshedDays: []string{},
		GeneratedAt:   now.Format(time.RFC3339),
	}

	if input.Refresh {
		rows, err := h.service.RefreshAnalytics(ctx, now.AddDate(0, 0, -1), now)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			output.RefreshedDays = append(output.RefreshedDays, row.Date)
		}
	}

	output.Summary, err = h.service.Summary(ctx, time.Duration(windowDays)*24*time.Hour)
	if err != nil {
		return nil, err
	}
	output.Trends, err = h.service.Trends(ctx, trendDays)
	if err != nil {
		return nil, err
	}
	if output.Trends == nil {
		output.Trends = []models.TrendBucket{}
	}

	h.logger.Info("analytics summarized", map[string]interface{}{
		"windowDays":    windowDays,
		"trendDays":     trendDays,
		"todayCount":    output.Summary.TodayCount,
		"trendBuckets":  len(output.Trends),
		"refreshedDays": len(output.RefreshedDays),
	})
	return output, nil
}

func (h *Handler) days(v, def int, name string) (int, error) {
	switch {
	case v == 0:
		return def, nil
	case v < 0 || v > h.config.MaxDays:
		return 0, fmt.Errorf("%w: %s must be between 1 and %d, got %d", ErrInvalidWindow, name, h.config.MaxDays, v)
	default:
		return v, nil
	}
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
