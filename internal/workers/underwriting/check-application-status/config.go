// internal/workers/underwriting/check-application-status/config.go
package checkapplicationstatus

import "time"

type Config struct {
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 10 * time.Second,
	}
}
