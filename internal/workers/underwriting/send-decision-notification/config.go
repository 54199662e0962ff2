// internal/workers/underwriting/send-decision-notification/config.go
package senddecisionnotification

import "time"

type Config struct {
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 15 * time.Second,
	}
}
