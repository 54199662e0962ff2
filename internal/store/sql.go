package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"loan-underwriting/internal/common/database"
	"loan-underwriting/internal/common/logger"
	"loan-underwriting/internal/models"

	"github.com/google/uuid"
)

const recordColumns = `application_id, applicant_name, age, annual_income, credit_score, loan_amount,
	loan_purpose, employment_type, loan_term, down_payment, debt_to_income_ratio,
	decision, decision_reason, approved_amount, interest_rate, risk_score,
	application_timestamp, processing_time_seconds, decision_source, stage_results, submission_key`

// SQLStore persists records in the warehouse through a database.Warehouse,
// which owns connection lifetime and stale-session recovery.
type SQLStore struct {
	wh     *database.Warehouse
	schema string
	now    Clock
	logger logger.Logger
}

type SQLOption func(*SQLStore)

func WithSQLClock(now Clock) SQLOption {
	return func(s *SQLStore) { s.now = now }
}

func NewSQLStore(wh *database.Warehouse, schema string, log logger.Logger, opts ...SQLOption) (*SQLStore, error) {
	if err := validIdentifier(schema); err != nil {
		return nil, err
	}
	s := &SQLStore{
		wh:     wh,
		schema: schema,
		now:    time.Now,
		logger: log.WithFields(map[string]interface{}{"component": "sql_store", "schema": schema}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *SQLStore) table(name string) string {
	return s.schema + "." + name
}

func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	return s.wh.Do(ctx, "ensure_schema", func(ctx context.Context, db *sql.DB) error {
		for _, stmt := range schemaStatements(s.schema) {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	})
}

// Save inserts the record. A conflicting submission_key leaves the table
// untouched and returns the row that already holds the key.
func (s *SQLStore) Save(ctx context.Context, app models.LoanApplication, decision models.UnderwritingDecision, submissionKey string) (*models.ApplicationRecord, bool, error) {
	rec := &models.ApplicationRecord{
		ApplicationID:        uuid.New().String(),
		SubmittedAt:          s.now().UTC(),
		SubmissionKey:        submissionKey,
		LoanApplication:      app,
		UnderwritingDecision: decision.Clone(),
	}

	stagesJSON, err := json.Marshal(rec.StageResults)
	if err != nil {
		return nil, false, fmt.Errorf("marshal stage results: %w", err)
	}

	var rate sql.NullFloat64
	if decision.InterestRate != nil {
		rate = sql.NullFloat64{Float64: *decision.InterestRate, Valid: true}
	}
	key := sql.NullString{String: submissionKey, Valid: submissionKey != ""}

	insert := fmt.Sprintf(`INSERT INTO %s (%s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
		ON CONFLICT (submission_key) DO NOTHING`,
		s.table("loan_applications"), recordColumns)
	byKey := fmt.Sprintf(`SELECT %s FROM %s WHERE submission_key = $1`, recordColumns, s.table("loan_applications"))

	created := true
	err = s.wh.Do(ctx, "save_application", func(ctx context.Context, db *sql.DB) error {
		res, err := db.ExecContext(ctx, insert,
			rec.ApplicationID, app.ApplicantName, app.Age, app.AnnualIncome, app.CreditScore, app.LoanAmount,
			string(app.LoanPurpose), string(app.EmploymentType), app.LoanTermMonths, app.DownPayment, app.DebtToIncomeRatio,
			string(decision.Status), decision.Reasoning, decision.ApprovedAmount, rate, decision.RiskScore,
			rec.SubmittedAt, decision.ProcessingTimeSeconds, string(decision.Source), stagesJSON, key,
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil || n > 0 {
			return err
		}
		if !key.Valid {
			return fmt.Errorf("insert of %s affected no rows", rec.ApplicationID)
		}

		existing, err := scanRecord(db.QueryRowContext(ctx, byKey, submissionKey))
		if err != nil {
			return err
		}
		rec, created = existing, false
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	if created {
		s.logger.Debug("application saved", map[string]interface{}{
			"applicationId": rec.ApplicationID,
			"decision":      decision.Status,
		})
	} else {
		s.logger.Info("duplicate submission, returning stored record", map[string]interface{}{
			"applicationId": rec.ApplicationID,
			"submissionKey": submissionKey,
		})
	}
	return rec, created, nil
}

func (s *SQLStore) GetByID(ctx context.Context, applicationID string) (*models.ApplicationRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE application_id = $1`, recordColumns, s.table("loan_applications"))

	var rec *models.ApplicationRecord
	err := s.wh.Do(ctx, "get_application", func(ctx context.Context, db *sql.DB) error {
		r, err := scanRecord(db.QueryRowContext(ctx, query, applicationID))
		if err == sql.ErrNoRows {
			rec = nil
			return nil
		}
		if err != nil {
			return err
		}
		rec = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *SQLStore) Recent(ctx context.Context, limit int) ([]models.ApplicationRecord, error) {
	limit = normalizeLimit(limit)
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY application_timestamp DESC LIMIT $1`,
		recordColumns, s.table("loan_applications"))

	var out []models.ApplicationRecord
	err := s.wh.Do(ctx, "recent_applications", func(ctx context.Context, db *sql.DB) error {
		rows, err := db.QueryContext(ctx, query, limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = make([]models.ApplicationRecord, 0, limit)
		for rows.Next() {
			rec, err := scanRecord(rows)
			if err != nil {
				return err
			}
			out = append(out, *rec)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SQLStore) AnalyticsSummary(ctx context.Context, window time.Duration) (models.AnalyticsSummary, error) {
	today, since, processingSince := summaryBounds(s.now().UTC(), window)
	query := fmt.Sprintf(`SELECT
		COUNT(*) FILTER (WHERE application_timestamp >= $1),
		COUNT(*) FILTER (WHERE application_timestamp >= $2),
		COUNT(*) FILTER (WHERE application_timestamp >= $2 AND decision = 'approved'),
		COALESCE(SUM(credit_score) FILTER (WHERE application_timestamp >= $2), 0),
		COUNT(*) FILTER (WHERE application_timestamp >= $3),
		COALESCE(SUM(processing_time_seconds) FILTER (WHERE application_timestamp >= $3), 0)
		FROM %s
		WHERE application_timestamp >= $4`, s.table("loan_applications"))

	var t summaryTotals
	err := s.wh.Do(ctx, "analytics_summary", func(ctx context.Context, db *sql.DB) error {
		return db.QueryRowContext(ctx, query, today, since, processingSince, earliest(today, since, processingSince)).Scan(
			&t.today, &t.total, &t.approved, &t.creditSum, &t.processingCount, &t.processingSum,
		)
	})
	if err != nil {
		return models.AnalyticsSummary{}, err
	}
	return t.summary(), nil
}

func (s *SQLStore) Trends(ctx context.Context, days int) ([]models.TrendBucket, error) {
	since := trendsSince(s.now(), days)
	query := fmt.Sprintf(`SELECT
		TO_CHAR((application_timestamp AT TIME ZONE 'UTC')::date, 'YYYY-MM-DD') AS day,
		COUNT(*),
		COUNT(*) FILTER (WHERE decision = 'approved'),
		COUNT(*) FILTER (WHERE decision <> 'approved'),
		AVG(loan_amount),
		AVG(credit_score)
		FROM %s
		WHERE application_timestamp >= $1
		GROUP BY day
		ORDER BY day`, s.table("loan_applications"))

	var out []models.TrendBucket
	err := s.wh.Do(ctx, "application_trends", func(ctx context.Context, db *sql.DB) error {
		rows, err := db.QueryContext(ctx, query, since)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = []models.TrendBucket{}
		for rows.Next() {
			var b models.TrendBucket
			if err := rows.Scan(&b.Date, &b.Total, &b.ApprovedCount, &b.RejectedCount, &b.AvgLoanAmount, &b.AvgCreditScore); err != nil {
				return err
			}
			out = append(out, b)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RefreshDailyAnalytics recomputes one day's loan_analytics row. Days with no
// applications are reported but not written.
func (s *SQLStore) RefreshDailyAnalytics(ctx context.Context, day time.Time) (*models.DailyAnalytics, error) {
	from := startOfDay(day)
	to := from.AddDate(0, 0, 1)

	aggregate := fmt.Sprintf(`SELECT
		COUNT(*),
		COUNT(*) FILTER (WHERE decision = 'approved'),
		COUNT(*) FILTER (WHERE decision <> 'approved'),
		COALESCE(SUM(loan_amount), 0),
		COALESCE(SUM(credit_score), 0),
		COALESCE(SUM(processing_time_seconds), 0)
		FROM %s
		WHERE application_timestamp >= $1 AND application_timestamp < $2`, s.table("loan_applications"))
	upsert := fmt.Sprintf(`INSERT INTO %s (date, total_applications, approved_applications, rejected_applications,
		approval_rate, avg_loan_amount, avg_credit_score, avg_processing_time, created_timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (date) DO UPDATE SET
			total_applications = EXCLUDED.total_applications,
			approved_applications = EXCLUDED.approved_applications,
			rejected_applications = EXCLUDED.rejected_applications,
			approval_rate = EXCLUDED.approval_rate,
			avg_loan_amount = EXCLUDED.avg_loan_amount,
			avg_credit_score = EXCLUDED.avg_credit_score,
			avg_processing_time = EXCLUDED.avg_processing_time,
			created_timestamp = EXCLUDED.created_timestamp`, s.table("loan_analytics"))

	var row *models.DailyAnalytics
	err := s.wh.Do(ctx, "refresh_daily_analytics", func(ctx context.Context, db *sql.DB) error {
		var total, approved, rejected int
		var loanSum, creditSum, processingSum float64
		if err := db.QueryRowContext(ctx, aggregate, from, to).Scan(
			&total, &approved, &rejected, &loanSum, &creditSum, &processingSum,
		); err != nil {
			return err
		}

		row = dailyRow(from, total, approved, rejected, loanSum, creditSum, processingSum, s.now())
		if total == 0 {
			return nil
		}
		_, err := db.ExecContext(ctx, upsert,
			row.Date, row.TotalApplications, row.ApprovedApplications, row.RejectedApplications,
			row.ApprovalRate, row.AvgLoanAmount, row.AvgCreditScore, row.AvgProcessingTime, row.CreatedTimestamp,
		)
		return err
	})
	if err != nil {
		return nil, err
	}
	return row, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*models.ApplicationRecord, error) {
	var (
		rec                         models.ApplicationRecord
		purpose, employment, status string
		rate                        sql.NullFloat64
		source, key                 sql.NullString
		stagesJSON                  []byte
	)
	err := row.Scan(
		&rec.ApplicationID, &rec.ApplicantName, &rec.Age, &rec.AnnualIncome, &rec.CreditScore, &rec.LoanAmount,
		&purpose, &employment, &rec.LoanTermMonths, &rec.DownPayment, &rec.DebtToIncomeRatio,
		&status, &rec.Reasoning, &rec.ApprovedAmount, &rate, &rec.RiskScore,
		&rec.SubmittedAt, &rec.ProcessingTimeSeconds, &source, &stagesJSON, &key,
	)
	if err != nil {
		return nil, err
	}

	rec.SubmittedAt = rec.SubmittedAt.UTC()
	rec.LoanPurpose = models.LoanPurpose(purpose)
	rec.EmploymentType = models.EmploymentType(employment)
	rec.Status = models.DecisionStatus(status)
	rec.Source = models.DecisionSource(source.String)
	rec.SubmissionKey = key.String
	if rate.Valid {
		rec.InterestRate = models.Float64(rate.Float64)
	}
	rec.StageResults = []models.StageResult{}
	if len(stagesJSON) > 0 {
		if err := json.Unmarshal(stagesJSON, &rec.StageResults); err != nil {
			return nil, fmt.Errorf("decode stage results for %s: %w", rec.ApplicationID, err)
		}
	}
	return &rec, nil
}
