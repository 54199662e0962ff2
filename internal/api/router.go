package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"loan-underwriting/internal/common/logger"
	"loan-underwriting/internal/common/metrics"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ReadinessCheck reports whether one dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

// NewRouter builds the echo instance with the v1 API and the health and
// metrics endpoints.
func NewRouter(h *Handler, checks map[string]ReadinessCheck, log logger.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(requestMetrics())

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	})
	e.GET("/ready", readyHandler(checks, log))
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	h.RegisterRoutes(e.Group("/api/v1"))
	return e
}

func readyHandler(checks map[string]ReadinessCheck, log logger.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				results[name] = err.Error()
				log.Warn("readiness check failed", map[string]interface{}{
					"check": name,
					"error": err.Error(),
				})
				continue
			}
			results[name] = "ok"
		}

		state := "ready"
		if status != http.StatusOK {
			state = "not_ready"
		}
		return c.JSON(status, map[string]interface{}{
			"status": state,
			"checks": results,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

func requestMetrics() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			code := c.Response().Status
			var he *echo.HTTPError
			if errors.As(err, &he) {
				code = he.Code
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			metrics.HTTPRequests.WithLabelValues(c.Request().Method, route, strconv.Itoa(code)).Inc()
			return err
		}
	}
}
