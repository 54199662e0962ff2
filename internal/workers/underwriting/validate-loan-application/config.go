// internal/workers/underwriting/validate-loan-application/config.go
package validateloanapplication

import (
	"time"

	"loan-underwriting/internal/common/validation"
)

type Config struct {
	Timeout time.Duration
	Limits  validation.Limits
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 5 * time.Second,
		Limits:  validation.DefaultLimits(),
	}
}
