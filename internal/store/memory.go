package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"loan-underwriting/internal/models"

	"github.com/google/uuid"
)

// MemoryStore keeps records in process. Records are copied on the way in and
// on the way out so callers cannot mutate stored state.
type MemoryStore struct {
	mu        sync.RWMutex
	records   []models.ApplicationRecord
	byID      map[string]int
	byKey     map[string]int
	analytics map[string]models.DailyAnalytics
	now       Clock
}

type MemoryOption func(*MemoryStore)

func WithClock(now Clock) MemoryOption {
	return func(s *MemoryStore) { s.now = now }
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		byID:      make(map[string]int),
		byKey:     make(map[string]int),
		analytics: make(map[string]models.DailyAnalytics),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) EnsureSchema(context.Context) error {
	return nil
}

func (s *MemoryStore) Save(_ context.Context, app models.LoanApplication, decision models.UnderwritingDecision, submissionKey string) (*models.ApplicationRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if submissionKey != "" {
		if idx, ok := s.byKey[submissionKey]; ok {
			rec := s.records[idx].Clone()
			return &rec, false, nil
		}
	}

	rec := models.ApplicationRecord{
		ApplicationID:        uuid.New().String(),
		SubmittedAt:          s.now().UTC(),
		SubmissionKey:        submissionKey,
		LoanApplication:      app,
		UnderwritingDecision: decision.Clone(),
	}
	s.byID[rec.ApplicationID] = len(s.records)
	if submissionKey != "" {
		s.byKey[submissionKey] = len(s.records)
	}
	s.records = append(s.records, rec)

	out := rec.Clone()
	return &out, true, nil
}

func (s *MemoryStore) GetByID(_ context.Context, applicationID string) (*models.ApplicationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.byID[applicationID]
	if !ok {
		return nil, nil
	}
	rec := s.records[idx].Clone()
	return &rec, nil
}

func (s *MemoryStore) Recent(_ context.Context, limit int) ([]models.ApplicationRecord, error) {
	limit = normalizeLimit(limit)

	s.mu.RLock()
	out := make([]models.ApplicationRecord, 0, len(s.records))
	for i := len(s.records) - 1; i >= 0; i-- {
		out = append(out, s.records[i].Clone())
	}
	s.mu.RUnlock()

	// Reverse insertion order already breaks ties; the stable sort handles
	// records saved with an older clock reading.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SubmittedAt.After(out[j].SubmittedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) AnalyticsSummary(_ context.Context, window time.Duration) (models.AnalyticsSummary, error) {
	now := s.now().UTC()
	today, since, processingSince := summaryBounds(now, window)

	var t summaryTotals
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.records {
		at := rec.SubmittedAt
		if startOfDay(at).Equal(today) {
			t.today++
		}
		if !at.Before(since) {
			t.total++
			t.creditSum += float64(rec.CreditScore)
			if rec.Status == models.StatusApproved {
				t.approved++
			}
		}
		if !at.Before(processingSince) {
			t.processingCount++
			t.processingSum += rec.ProcessingTimeSeconds
		}
	}
	return t.summary(), nil
}

func (s *MemoryStore) Trends(_ context.Context, days int) ([]models.TrendBucket, error) {
	since := trendsSince(s.now(), days)

	type acc struct {
		bucket    models.TrendBucket
		loanSum   float64
		creditSum float64
	}
	byDay := make(map[string]*acc)

	s.mu.RLock()
	for _, rec := range s.records {
		if rec.SubmittedAt.Before(since) {
			continue
		}
		key := rec.SubmittedAt.UTC().Format(models.DateLayout)
		a, ok := byDay[key]
		if !ok {
			a = &acc{bucket: models.TrendBucket{Date: key}}
			byDay[key] = a
		}
		a.bucket.Total++
		if rec.Status == models.StatusApproved {
			a.bucket.ApprovedCount++
		} else {
			a.bucket.RejectedCount++
		}
		a.loanSum += rec.LoanAmount
		a.creditSum += float64(rec.CreditScore)
	}
	s.mu.RUnlock()

	out := make([]models.TrendBucket, 0, len(byDay))
	for _, a := range byDay {
		n := float64(a.bucket.Total)
		a.bucket.AvgLoanAmount = a.loanSum / n
		a.bucket.AvgCreditScore = a.creditSum / n
		out = append(out, a.bucket)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

func (s *MemoryStore) RefreshDailyAnalytics(_ context.Context, day time.Time) (*models.DailyAnalytics, error) {
	from := startOfDay(day)
	to := from.AddDate(0, 0, 1)

	s.mu.Lock()
	defer s.mu.Unlock()

	var total, approved, rejected int
	var loanSum, creditSum, processingSum float64
	for _, rec := range s.records {
		if rec.SubmittedAt.Before(from) || !rec.SubmittedAt.Before(to) {
			continue
		}
		total++
		if rec.Status == models.StatusApproved {
			approved++
		} else {
			rejected++
		}
		loanSum += rec.LoanAmount
		creditSum += float64(rec.CreditScore)
		processingSum += rec.ProcessingTimeSeconds
	}

	row := dailyRow(day, total, approved, rejected, loanSum, creditSum, processingSum, s.now())
	if total > 0 {
		s.analytics[row.Date] = *row
	}
	return row, nil
}

// DailyAnalytics returns a materialized loan_analytics row, if any.
func (s *MemoryStore) DailyAnalytics(date string) (models.DailyAnalytics, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.analytics[date]
	return row, ok
}
