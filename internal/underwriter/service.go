// Package underwriter is the application-facing service: it validates a
// submission, decides it, persists the record and fans it out to the cache,
// search index and notification channels.
package underwriter

import (
	"context"
	"errors"
	"time"

	apperrors "loan-underwriting/internal/common/errors"
	"loan-underwriting/internal/common/logger"
	"loan-underwriting/internal/common/metrics"
	"loan-underwriting/internal/common/observability"
	"loan-underwriting/internal/common/validation"
	"loan-underwriting/internal/cache"
	"loan-underwriting/internal/models"
	"loan-underwriting/internal/notify"
	"loan-underwriting/internal/pipeline"
	"loan-underwriting/internal/scoring"
	"loan-underwriting/internal/store"
)

var ErrSearchDisabled = errors.New("search index is not configured")

// Decider produces a decision outside the in-process pipeline.
type Decider interface {
	Decide(ctx context.Context, app models.LoanApplication) (models.UnderwritingDecision, error)
}

type Indexer interface {
	IndexRecord(ctx context.Context, rec models.ApplicationRecord) error
	SearchByApplicant(ctx context.Context, name string, size int) ([]models.ApplicationRecord, error)
}

type Notifier interface {
	Notify(ctx context.Context, rec models.ApplicationRecord) (*notify.Result, error)
}

// SubmitResult is returned for every valid submission. ApplicationID is empty
// and PersistenceWarning set when the record could not be saved. Replayed is
// set when a repeated submission key returned an existing record.
type SubmitResult struct {
	ApplicationID      string                      `json:"application_id,omitempty"`
	Application        models.LoanApplication      `json:"application"`
	Decision           models.UnderwritingDecision `json:"result"`
	PersistenceWarning string                      `json:"persistence_warning,omitempty"`
	Replayed           bool                        `json:"replayed,omitempty"`
}

type Service struct {
	store    store.Store
	pipeline *pipeline.Pipeline
	engine   Decider
	cache    cache.DecisionCache
	indexer  Indexer
	notifier Notifier
	obs      *observability.Observability
	limits   validation.Limits
	logger   logger.Logger
	now      func() time.Time
}

type Option func(*Service)

// WithDecisionEngine routes decisions through an external engine.
func WithDecisionEngine(d Decider) Option {
	return func(s *Service) { s.engine = d }
}

func WithCache(c cache.DecisionCache) Option {
	return func(s *Service) { s.cache = c }
}

func WithIndexer(i Indexer) Option {
	return func(s *Service) { s.indexer = i }
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithObservability(o *observability.Observability) Option {
	return func(s *Service) { s.obs = o }
}

func WithLimits(l validation.Limits) Option {
	return func(s *Service) { s.limits = l }
}

func New(st store.Store, p *pipeline.Pipeline, log logger.Logger, opts ...Option) *Service {
	s := &Service{
		store:    st,
		pipeline: p,
		cache:    cache.Noop{},
		limits:   validation.DefaultLimits(),
		logger:   log.WithFields(map[string]interface{}{"component": "underwriter"}),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.pipeline == nil {
		s.pipeline = pipeline.Default(pipeline.WithLogger(log))
	}
	return s
}

// Submit validates fields and always returns a decision for a valid
// application, whether or not it could be persisted.
func (s *Service) Submit(ctx context.Context, fields map[string]interface{}) (*SubmitResult, error) {
	return s.SubmitOnce(ctx, "", fields)
}

// SubmitOnce is Submit keyed by submissionKey. A repeated key returns the
// stored record's decision without saving or fanning out again.
func (s *Service) SubmitOnce(ctx context.Context, submissionKey string, fields map[string]interface{}) (*SubmitResult, error) {
	app, err := validation.ValidateApplication(fields, s.limits)
	if err != nil {
		return nil, err
	}

	decision := s.Evaluate(ctx, app)
	result := &SubmitResult{Application: app, Decision: decision}

	rec, created, err := s.store.Save(ctx, app, decision, submissionKey)
	if err != nil {
		metrics.PersistenceFailures.Inc()
		s.logger.Warn("decision not persisted", map[string]interface{}{
			"error":    err.Error(),
			"decision": decision.Status,
		})
		result.PersistenceWarning = "decision was not saved: " + err.Error()
		return result, nil
	}
	result.ApplicationID = rec.ApplicationID

	if !created {
		s.logger.Info("duplicate submission, returning stored decision", map[string]interface{}{
			"applicationId": rec.ApplicationID,
			"submissionKey": submissionKey,
		})
		result.Application = rec.LoanApplication
		result.Decision = rec.UnderwritingDecision
		result.Replayed = true
		return result, nil
	}
	s.fanOut(ctx, *rec)
	return result, nil
}

// Evaluate decides app without persisting it.
func (s *Service) Evaluate(ctx context.Context, app models.LoanApplication) models.UnderwritingDecision {
	start := s.now()
	var decision models.UnderwritingDecision

	if s.engine != nil {
		d, err := s.engine.Decide(ctx, app)
		if err != nil {
			metrics.Fallbacks.Inc()
			s.logger.Warn("decision engine failed, using scoring fallback", map[string]interface{}{
				"error": err.Error(),
				"code":  apperrors.CodeOf(err),
			})
			d = scoring.Evaluate(app).Decision()
			d.ProcessingTimeSeconds = s.now().Sub(start).Seconds()
		}
		decision = d
	} else {
		decision = s.pipeline.Run(ctx, app)
	}

	decision.Normalize()
	metrics.Decisions.WithLabelValues(string(decision.Status), string(decision.Source)).Inc()
	metrics.DecisionDuration.WithLabelValues(string(decision.Source)).Observe(s.now().Sub(start).Seconds())
	if s.obs != nil {
		s.obs.RecordDecision(ctx, string(decision.Status), string(decision.Source))
	}
	return decision
}

func (s *Service) fanOut(ctx context.Context, rec models.ApplicationRecord) {
	if err := s.cache.Set(ctx, rec); err != nil {
		s.logger.Warn("cache write failed", map[string]interface{}{
			"applicationId": rec.ApplicationID,
			"error":         err.Error(),
		})
	}
	if s.indexer != nil {
		if err := s.indexer.IndexRecord(ctx, rec); err != nil {
			s.logger.Warn("search indexing failed", map[string]interface{}{
				"applicationId": rec.ApplicationID,
				"error":         err.Error(),
			})
		}
	}
	if s.notifier != nil {
		if _, err := s.notifier.Notify(ctx, rec); err != nil {
			s.logger.Warn("decision notification failed", map[string]interface{}{
				"applicationId": rec.ApplicationID,
				"error":         err.Error(),
			})
		}
	}
}

// CheckStatus returns the record for id, or (nil, nil) when unknown.
func (s *Service) CheckStatus(ctx context.Context, applicationID string) (*models.ApplicationRecord, error) {
	rec, err := s.cache.Get(ctx, applicationID)
	if err != nil {
		s.logger.Warn("cache read failed", map[string]interface{}{
			"applicationId": applicationID,
			"error":         err.Error(),
		})
	}
	if rec != nil {
		return rec, nil
	}

	rec, err = s.store.GetByID(ctx, applicationID)
	if err != nil || rec == nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, *rec); err != nil {
		s.logger.Warn("cache write failed", map[string]interface{}{
			"applicationId": applicationID,
			"error":         err.Error(),
		})
	}
	return rec, nil
}

func (s *Service) Recent(ctx context.Context, limit int) ([]models.ApplicationRecord, error) {
	return s.store.Recent(ctx, limit)
}

func (s *Service) Summary(ctx context.Context, window time.Duration) (models.AnalyticsSummary, error) {
	return s.store.AnalyticsSummary(ctx, window)
}

func (s *Service) Trends(ctx context.Context, days int) ([]models.TrendBucket, error) {
	return s.store.Trends(ctx, days)
}

// RefreshAnalytics materializes the daily analytics rows for each day.
func (s *Service) RefreshAnalytics(ctx context.Context, days ...time.Time) ([]models.DailyAnalytics, error) {
	out := make([]models.DailyAnalytics, 0, len(days))
	for _, day := range days {
		row, err := s.store.RefreshDailyAnalytics(ctx, day)
		if err != nil {
			return out, err
		}
		out = append(out, *row)
	}
	return out, nil
}

// NotifyDecision sends the stored decision for id on the configured channels.
func (s *Service) NotifyDecision(ctx context.Context, applicationID string) (*notify.Result, error) {
	rec, err := s.CheckStatus(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, apperrors.NewApplicationNotFoundError(applicationID)
	}
	if s.notifier == nil {
		return &notify.Result{Status: notify.StatusDisabled, SentAt: s.now().UTC().Format(time.RFC3339)}, nil
	}
	return s.notifier.Notify(ctx, *rec)
}

func (s *Service) SearchByApplicant(ctx context.Context, name string, size int) ([]models.ApplicationRecord, error) {
	if s.indexer == nil {
		return nil, ErrSearchDisabled
	}
	return s.indexer.SearchByApplicant(ctx, name, size)
}

// Ping checks the store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	_, err := s.store.Recent(ctx, 1)
	return err
}
