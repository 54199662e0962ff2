// Package scheduler refreshes the materialized daily analytics on a cron
// schedule.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"loan-underwriting/internal/common/logger"
	"loan-underwriting/internal/models"

	"github.com/robfig/cron/v3"
)

// DefaultSchedule runs five minutes after midnight UTC, so the previous day
// is complete before its row is rewritten.
const DefaultSchedule = "0 5 0 * * *"

const defaultRunTimeout = 5 * time.Minute

type Refresher interface {
	RefreshAnalytics(ctx context.Context, days ...time.Time) ([]models.DailyAnalytics, error)
}

type Scheduler struct {
	cron      *cron.Cron
	schedule  cron.Schedule
	refresher Refresher
	logger    logger.Logger
	now       func() time.Time
	timeout   time.Duration
}

type Option func(*Scheduler)

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

func WithRunTimeout(d time.Duration) Option {
	return func(s *Scheduler) { s.timeout = d }
}

var parser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// New parses spec (six fields, seconds first) and registers the refresh job.
// An empty spec uses DefaultSchedule.
func New(refresher Refresher, spec string, log logger.Logger, opts ...Option) (*Scheduler, error) {
	if spec == "" {
		spec = DefaultSchedule
	}
	schedule, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("parse analytics schedule %q: %w", spec, err)
	}

	l := log.WithFields(map[string]interface{}{"component": "analytics-scheduler"})
	cl := cronLogger{l}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithParser(parser),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		schedule:  schedule,
		refresher: refresher,
		logger:    l,
		now:       time.Now,
		timeout:   defaultRunTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.cron.Schedule(schedule, cron.FuncJob(func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if _, err := s.RunOnce(ctx); err != nil {
			s.logger.Error("scheduled analytics refresh failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}))
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("analytics scheduler started", map[string]interface{}{
		"nextRun": s.Next(s.now()).Format(time.RFC3339),
	})
}

// Stop halts scheduling and waits for a running refresh until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next returns the first scheduled run after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t.UTC())
}

// RunOnce refreshes yesterday's and today's rows.
func (s *Scheduler) RunOnce(ctx context.Context) ([]models.DailyAnalytics, error) {
	now := s.now().UTC()
	start := time.Now()
	rows, err := s.refresher.RefreshAnalytics(ctx, now.AddDate(0, 0, -1), now)
	if err != nil {
		return rows, err
	}

	days := make([]string, len(rows))
	for i, r := range rows {
		days[i] = r.Date
	}
	s.logger.Info("daily analytics refreshed", map[string]interface{}{
		"days":       days,
		"durationMs": time.Since(start).Milliseconds(),
	})
	return rows, nil
}

// cronLogger adapts logger.Logger to cron.Logger.
type cronLogger struct {
	l logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug(msg, kvFields(keysAndValues))
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	fields := kvFields(keysAndValues)
	fields["error"] = err.Error()
	c.l.Error(msg, fields)
}

func kvFields(kv []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(kv)/2+1)
	for i := 0; i+1 < len(kv); i += 2 {
		fields[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return fields
}
