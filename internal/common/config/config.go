// internal/common/config/config.go
package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Config is the main application configuration struct.
type Config struct {
	App            AppConfig               `mapstructure:"app"`
	Camunda        CamundaConfig           `mapstructure:"camunda"`
	Server         ServerConfig            `mapstructure:"server"`
	Store          StoreConfig             `mapstructure:"store"`
	Warehouse      WarehouseConfig         `mapstructure:"warehouse"`
	Database       DatabaseConfig          `mapstructure:"database"`
	DecisionEngine DecisionEngineConfig    `mapstructure:"decision_engine"`
	Underwriting   UnderwritingConfig      `mapstructure:"underwriting"`
	Cache          CacheConfig             `mapstructure:"cache"`
	Search         SearchConfig            `mapstructure:"search"`
	Notifications  NotificationConfig      `mapstructure:"notifications"`
	Scheduler      SchedulerConfig         `mapstructure:"scheduler"`
	Tracing        TracingConfig           `mapstructure:"tracing"`
	Workers        map[string]WorkerConfig `mapstructure:"workers"`
	Logging        LoggingConfig           `mapstructure:"logging"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

type CamundaConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type ServerConfig struct {
	Address         string `mapstructure:"address"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"` // milliseconds
}

// StoreConfig selects the application store backend: "postgres" or "memory".
type StoreConfig struct {
	Driver string `mapstructure:"driver"`
}

// WarehouseConfig describes the SQL warehouse holding loan_applications and
// loan_analytics.
type WarehouseConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	User           string `mapstructure:"user"`
	Token          string `mapstructure:"token"`
	Path           string `mapstructure:"path"`
	Catalog        string `mapstructure:"catalog"`
	Schema         string `mapstructure:"schema"`
	SSLMode        string `mapstructure:"sslmode"`
	ConnectTimeout int    `mapstructure:"connect_timeout"` // milliseconds
}

// GetDSN returns the lib/pq connection string. Path is the database name and
// may be given with a leading slash.
func (w WarehouseConfig) GetDSN() string {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		w.Host, w.Port, w.User, w.Token, strings.TrimPrefix(w.Path, "/"), w.SSLMode,
	)
	if w.Catalog != "" {
		dsn += " application_name=" + w.Catalog
	}
	if w.ConnectTimeout > 0 {
		secs := w.ConnectTimeout / 1000
		if secs == 0 {
			secs = 1
		}
		dsn += fmt.Sprintf(" connect_timeout=%d", secs)
	}
	return dsn
}

type DatabaseConfig struct {
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	URL       string   `mapstructure:"url"`
}

// GetAddresses merges URL into Addresses.
func (e ElasticsearchConfig) GetAddresses() []string {
	if len(e.Addresses) > 0 {
		return e.Addresses
	}
	if e.URL != "" {
		return []string{e.URL}
	}
	return nil
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// DecisionEngineConfig configures the optional external HTTP decision service.
// With DirectIntegration the in-process pipeline is called instead.
type DecisionEngineConfig struct {
	EndpointURL       string  `mapstructure:"endpoint_url"`
	APIKey            string  `mapstructure:"api_key"`
	Timeout           int     `mapstructure:"timeout"` // milliseconds
	DirectIntegration bool    `mapstructure:"direct_integration"`
	MaxRetries        int     `mapstructure:"max_retries"`
	RateLimit         float64 `mapstructure:"rate_limit"` // requests per second
}

// UsesHTTP reports whether decisions go through the external endpoint.
func (d DecisionEngineConfig) UsesHTTP() bool {
	return !d.DirectIntegration && d.EndpointURL != ""
}

type UnderwritingConfig struct {
	MaxLoanAmount  float64 `mapstructure:"max_loan_amount"`
	MinCreditScore int     `mapstructure:"min_credit_score"`
	MaxCreditScore int     `mapstructure:"max_credit_score"`
}

type CacheConfig struct {
	Enabled bool `mapstructure:"enabled"`
	TTL     int  `mapstructure:"ttl"` // milliseconds
}

type SearchConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Index   string `mapstructure:"index"`
}

type NotificationConfig struct {
	Email struct {
		Enabled   bool   `mapstructure:"enabled"`
		FromEmail string `mapstructure:"from_email"`
		ToEmail   string `mapstructure:"reviewer_email"`
	} `mapstructure:"email"`
	SNS struct {
		Enabled  bool   `mapstructure:"enabled"`
		TopicARN string `mapstructure:"topic_arn"`
	} `mapstructure:"sns"`
	AWS struct {
		Region string `mapstructure:"region"`
	} `mapstructure:"aws"`
}

// Enabled reports whether any notification channel is on.
func (n NotificationConfig) Enabled() bool {
	return n.Email.Enabled || n.SNS.Enabled
}

type SchedulerConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	AnalyticsSchedule string `mapstructure:"analytics_schedule"`
	RunTimeout        int    `mapstructure:"run_timeout"` // milliseconds
}

type TracingConfig struct {
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
}

// WorkerConfig holds the core settings applicable to every worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"` // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

func validURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.Scheme != "" && u.Host != ""
}
