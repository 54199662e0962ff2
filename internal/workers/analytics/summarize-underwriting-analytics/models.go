// internal/workers/analytics/summarize-underwriting-analytics/models.go
package summarizeunderwritinganalytics

import "loan-underwriting/internal/models"

type Input struct {
	WindowDays int  `json:"windowDays"`
	TrendDays  int  `json:"trendDays"`
	Refresh    bool `json:"refreshDailyAnalytics"`
}

type Output struct {
	Summary       models.AnalyticsSummary `json:"summary"`
	Trends        []models.TrendBucket    `json:"trends"`
	RefreshedDays []string                `json:"refreshedDays"`
	GeneratedAt   string                  `json:"generatedAt"`
}
