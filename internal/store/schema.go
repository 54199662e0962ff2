package store

import (
	"fmt"
	"regexp"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func validIdentifier(name string) error {
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("invalid schema name %q", name)
	}
	return nil
}

func schemaStatements(schema string) []string {
	return []string{
		fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, schema),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.loan_applications (
	application_id VARCHAR(64) PRIMARY KEY,
	applicant_name VARCHAR(255) NOT NULL,
	age INTEGER NOT NULL,
	annual_income DECIMAL(12,2) NOT NULL,
	credit_score INTEGER NOT NULL,
	loan_amount DECIMAL(12,2) NOT NULL,
	loan_purpose VARCHAR(32) NOT NULL,
	employment_type VARCHAR(32) NOT NULL,
	loan_term INTEGER NOT NULL,
	down_payment DECIMAL(12,2) NOT NULL,
	debt_to_income_ratio DOUBLE PRECISION NOT NULL,
	decision VARCHAR(16) NOT NULL,
	decision_reason TEXT NOT NULL,
	approved_amount DECIMAL(12,2) NOT NULL,
	interest_rate DOUBLE PRECISION,
	risk_score DOUBLE PRECISION NOT NULL,
	application_timestamp TIMESTAMPTZ NOT NULL,
	processing_time_seconds DOUBLE PRECISION NOT NULL,
	decision_source VARCHAR(32),
	stage_results JSONB NOT NULL DEFAULT '[]',
	submission_key VARCHAR(128)
)`, schema),
		fmt.Sprintf(`ALTER TABLE %s.loan_applications ADD COLUMN IF NOT EXISTS submission_key VARCHAR(128)`, schema),
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS idx_loan_applications_submission_key ON %s.loan_applications (submission_key)`, schema),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_loan_applications_timestamp ON %s.loan_applications (application_timestamp DESC)`, schema),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.loan_analytics (
	date DATE PRIMARY KEY,
	total_applications INTEGER NOT NULL,
	approved_applications INTEGER NOT NULL,
	rejected_applications INTEGER NOT NULL,
	approval_rate DECIMAL(5,2) NOT NULL,
	avg_loan_amount DECIMAL(12,2) NOT NULL,
	avg_credit_score DECIMAL(5,1) NOT NULL,
	avg_processing_time DECIMAL(8,2) NOT NULL,
	created_timestamp TIMESTAMPTZ NOT NULL
)`, schema),
	}
}
