// internal/workers/analytics/summarize-underwriting-analytics/config.go
package summarizeunderwritinganalytics

import "time"

type Config struct {
	Timeout           time.Duration
	DefaultWindowDays int
	DefaultTrendDays  int
	MaxDays           int
}

func LoadConfig() *Config {
	return &Config{
		Timeout:           30 * time.Second,
		DefaultWindowDays: 30,
		DefaultTrendDays:  30,
		MaxDays:           365,
	}
}
