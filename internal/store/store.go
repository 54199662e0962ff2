// Package store persists application records and answers the status and
// analytics queries over them.
package store

import (
	"context"
	"math"
	"time"

	apperrors "loan-underwriting/internal/common/errors"
	"loan-underwriting/internal/models"
)

// ErrStorageUnavailable matches, via errors.Is, any failure to reach the
// backing store.
var ErrStorageUnavailable = apperrors.ErrStorageUnavailable

const (
	DefaultRecentLimit = 10
	MaxRecentLimit     = 500

	// Processing-time averages never look further back than this.
	ProcessingTimeWindow = 7 * 24 * time.Hour
	DefaultSummaryWindow = 30 * 24 * time.Hour
	DefaultTrendDays     = 30
)

// Store is the persistence contract for application records. Implementations
// are safe for concurrent use. GetByID returns (nil, nil) for unknown ids.
//
// Save writes a new record and returns it with created set. A non-empty
// submissionKey makes the save idempotent: if a record with that key exists
// it is returned unchanged with created false.
type Store interface {
	EnsureSchema(ctx context.Context) error
	Save(ctx context.Context, app models.LoanApplication, decision models.UnderwritingDecision, submissionKey string) (rec *models.ApplicationRecord, created bool, err error)
	GetByID(ctx context.Context, applicationID string) (*models.ApplicationRecord, error)
	Recent(ctx context.Context, limit int) ([]models.ApplicationRecord, error)
	AnalyticsSummary(ctx context.Context, window time.Duration) (models.AnalyticsSummary, error)
	Trends(ctx context.Context, days int) ([]models.TrendBucket, error)
	RefreshDailyAnalytics(ctx context.Context, day time.Time) (*models.DailyAnalytics, error)
}

// Clock returns the current time. Stores convert it to UTC.
type Clock func() time.Time

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultRecentLimit
	}
	if limit > MaxRecentLimit {
		return MaxRecentLimit
	}
	return limit
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// summaryBounds returns the lower bounds for today's count, the main window
// and the processing-time window.
func summaryBounds(now time.Time, window time.Duration) (today, since, processingSince time.Time) {
	if window <= 0 {
		window = DefaultSummaryWindow
	}
	processing := window
	if processing > ProcessingTimeWindow {
		processing = ProcessingTimeWindow
	}
	return startOfDay(now), now.Add(-window), now.Add(-processing)
}

// trendsSince counts back whole days from the start of today.
func trendsSince(now time.Time, days int) time.Time {
	if days <= 0 {
		days = DefaultTrendDays
	}
	return startOfDay(now).AddDate(0, 0, -days)
}

type summaryTotals struct {
	today           int
	total           int
	approved        int
	creditSum       float64
	processingCount int
	processingSum   float64
}

func (s summaryTotals) summary() models.AnalyticsSummary {
	out := models.AnalyticsSummary{TodayCount: s.today}
	if s.total > 0 {
		out.ApprovalRatePct = round(float64(s.approved)/float64(s.total)*100, 1)
		out.AvgCreditScore = math.Round(s.creditSum / float64(s.total))
	}
	if s.processingCount > 0 {
		out.AvgProcessingTimeS = round(s.processingSum/float64(s.processingCount), 1)
	}
	return out
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func dailyRow(day time.Time, total, approved, rejected int, loanSum, creditSum, processingSum float64, now time.Time) *models.DailyAnalytics {
	row := &models.DailyAnalytics{
		Date:                 startOfDay(day).Format(models.DateLayout),
		TotalApplications:    total,
		ApprovedApplications: approved,
		RejectedApplications: rejected,
		CreatedTimestamp:     now.UTC(),
	}
	if total > 0 {
		n := float64(total)
		row.ApprovalRate = round(float64(approved)/n*100, 2)
		row.AvgLoanAmount = round(loanSum/n, 2)
		row.AvgCreditScore = round(creditSum/n, 1)
		row.AvgProcessingTime = round(processingSum/n, 2)
	}
	return row
}

func earliest(ts ...time.Time) time.Time {
	first := ts[0]
	for _, t := range ts[1:] {
		if t.Before(first) {
			first = t
		}
	}
	return first
}
