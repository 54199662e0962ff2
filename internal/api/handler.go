// Package api exposes the underwriting service over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	apperrors "loan-underwriting/internal/common/errors"
	"loan-underwriting/internal/common/logger"
	"loan-underwriting/internal/common/validation"
	"loan-underwriting/internal/models"
	"loan-underwriting/internal/underwriter"

	"github.com/labstack/echo/v4"
)

const (
	DefaultWindowDays = 30
	DefaultTrendDays  = 30
	MaxDays           = 365
	DefaultSearchSize = 20

	HeaderIdempotencyKey = "Idempotency-Key"
	maxIdempotencyKeyLen = 128
)

// Service is the underwriter surface served by the API.
type Service interface {
	SubmitOnce(ctx context.Context, submissionKey string, fields map[string]interface{}) (*underwriter.SubmitResult, error)
	CheckStatus(ctx context.Context, applicationID string) (*models.ApplicationRecord, error)
	Recent(ctx context.Context, limit int) ([]models.ApplicationRecord, error)
	Summary(ctx context.Context, window time.Duration) (models.AnalyticsSummary, error)
	Trends(ctx context.Context, days int) ([]models.TrendBucket, error)
	SearchByApplicant(ctx context.Context, name string, size int) ([]models.ApplicationRecord, error)
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error  string                  `json:"error"`
	Code   string                  `json:"code,omitempty"`
	Fields []validation.FieldError `json:"fields,omitempty"`
}

type Handler struct {
	service Service
	logger  logger.Logger
}

func NewHandler(service Service, log logger.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  log.WithFields(map[string]interface{}{"component": "api"}),
	}
}

// RegisterRoutes mounts the v1 routes on g.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/applications", h.SubmitApplication)
	g.GET("/applications", h.RecentApplications)
	g.GET("/applications/search", h.SearchApplications)
	g.GET("/applications/:id", h.GetApplication)
	g.GET("/analytics/summary", h.AnalyticsSummary)
	g.GET("/analytics/trends", h.AnalyticsTrends)
}

func (h *Handler) SubmitApplication(c echo.Context) error {
	var fields map[string]interface{}
	if err := json.NewDecoder(c.Request().Body).Decode(&fields); err != nil || fields == nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "request body must be a JSON object"})
	}

	key := strings.TrimSpace(c.Request().Header.Get(HeaderIdempotencyKey))
	if len(key) > maxIdempotencyKeyLen {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: fmt.Sprintf("%s must be at most %d characters", HeaderIdempotencyKey, maxIdempotencyKeyLen),
		})
	}

	res, err := h.service.SubmitOnce(c.Request().Context(), key, fields)
	if err != nil {
		return h.writeError(c, err)
	}

	// A replayed key answers 200 with the stored decision.
	status := http.StatusCreated
	if res.ApplicationID == "" || res.Replayed {
		status = http.StatusOK
	}
	return c.JSON(status, res)
}

func (h *Handler) GetApplication(c echo.Context) error {
	id := strings.TrimSpace(c.Param("id"))
	rec, err := h.service.CheckStatus(c.Request().Context(), id)
	if err != nil {
		return h.writeError(c, err)
	}
	if rec == nil {
		return h.writeError(c, apperrors.NewApplicationNotFoundError(id))
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) RecentApplications(c echo.Context) error {
	limit, err := intParam(c, "limit", 0, 1, 0)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	}
	recs, err := h.service.Recent(c.Request().Context(), limit)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"applications": recs, "count": len(recs)})
}

func (h *Handler) SearchApplications(c echo.Context) error {
	name := strings.TrimSpace(c.QueryParam("applicant_name"))
	if name == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "applicant_name is required"})
	}
	size, err := intParam(c, "size", DefaultSearchSize, 1, 100)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	}

	recs, err := h.service.SearchByApplicant(c.Request().Context(), name, size)
	if errors.Is(err, underwriter.ErrSearchDisabled) {
		return c.JSON(http.StatusNotImplemented, ErrorResponse{Error: err.Error()})
	}
	if err != nil {
		return h.writeError(c, err)
	}
	if recs == nil {
		recs = []models.ApplicationRecord{}
	}
	return c.JSON(http.StatusOK, echo.Map{"applications": recs, "count": len(recs)})
}

func (h *Handler) AnalyticsSummary(c echo.Context) error {
	days, err := intParam(c, "window_days", DefaultWindowDays, 1, MaxDays)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	}
	summary, err := h.service.Summary(c.Request().Context(), time.Duration(days)*24*time.Hour)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, summary)
}

func (h *Handler) AnalyticsTrends(c echo.Context) error {
	days, err := intParam(c, "days", DefaultTrendDays, 1, MaxDays)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	}
	trends, err := h.service.Trends(c.Request().Context(), days)
	if err != nil {
		return h.writeError(c, err)
	}
	if trends == nil {
		trends = []models.TrendBucket{}
	}
	return c.JSON(http.StatusOK, echo.Map{"days": days, "trends": trends})
}

func (h *Handler) writeError(c echo.Context, err error) error {
	var verr *validation.ValidationError
	if errors.As(err, &verr) {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:  "application validation failed",
			Code:   string(apperrors.ErrCodeApplicationValidationFailed),
			Fields: verr.Fields,
		})
	}

	code := apperrors.CodeOf(err)
	status := http.StatusInternalServerError
	switch code {
	case apperrors.ErrCodeApplicationNotFound:
		status = http.StatusNotFound
	case apperrors.ErrCodeStorageUnavailable, apperrors.ErrCodeQueryExecutionFailed:
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", map[string]interface{}{
			"path":  c.Path(),
			"code":  string(code),
			"error": err.Error(),
		})
	}
	return c.JSON(status, ErrorResponse{Error: err.Error(), Code: string(code)})
}

// intParam reads an integer query parameter. A hi of 0 means unbounded.
func intParam(c echo.Context, name string, def, lo, hi int) (int, error) {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < lo || (hi > 0 && v > hi) {
		if hi > 0 {
			return 0, fmt.Errorf("%s must be an integer between %d and %d", name, lo, hi)
		}
		return 0, fmt.Errorf("%s must be an integer >= %d", name, lo)
	}
	return v, nil
}
