// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Load reads configs/config.yaml, merges config.<APP_ENVIRONMENT>.yaml and
// applies environment overrides. A missing base file is not an error.
func Load() (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}
	v.SetConfigName("config." + env)
	_ = v.MergeInConfig()

	return finish(v)
}

// LoadFromFile loads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return finish(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func finish(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	overrideFromLegacyEnv(&cfg)
	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// setDefaults registers keys with viper so AutomaticEnv can override values
// that are absent from every config file.
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "loan-underwriting")
	v.SetDefault("app.environment", "development")
	v.SetDefault("camunda.enabled", false)
	v.SetDefault("camunda.broker_address", "")
	v.SetDefault("server.address", ":8080")
	v.SetDefault("store.driver", StoreDriverPostgres)
	v.SetDefault("warehouse.host", "")
	v.SetDefault("warehouse.port", 5432)
	v.SetDefault("warehouse.user", "")
	v.SetDefault("warehouse.token", "")
	v.SetDefault("warehouse.path", "")
	v.SetDefault("warehouse.catalog", "main")
	v.SetDefault("warehouse.schema", "loan_underwriting")
	v.SetDefault("warehouse.sslmode", "disable")
	v.SetDefault("decision_engine.endpoint_url", "")
	v.SetDefault("decision_engine.api_key", "")
	v.SetDefault("decision_engine.direct_integration", true)
	v.SetDefault("database.redis.address", "")
	v.SetDefault("database.elasticsearch.url", "")
	v.SetDefault("cache.enabled", true)
	v.SetDefault("search.enabled", false)
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("tracing.jaeger_endpoint", "")
	v.SetDefault("logging.level", "info")
}

func loadEnvFile() {
	paths := []string{".env", "../.env", "../../.env"}
	if root := findProjectRoot(); root != "" {
		paths = append(paths, filepath.Join(root, ".env"))
	}
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// expandEnvVars resolves ${VAR} placeholders in string values.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			if expanded := os.ExpandEnv(strVal); expanded != strVal {
				v.Set(key, expanded)
			}
		}
	}
}

// overrideFromLegacyEnv honors the variable names used by existing deployments.
func overrideFromLegacyEnv(cfg *Config) {
	setIfEmpty(&cfg.Warehouse.Host, "DATABRICKS_SERVER_HOSTNAME")
	setIfEmpty(&cfg.Warehouse.Host, "DATABRICKS_HOST")
	setIfEmpty(&cfg.Warehouse.Path, "DATABRICKS_HTTP_PATH")
	setIfEmpty(&cfg.Warehouse.Token, "DATABRICKS_TOKEN")
	setIfEmpty(&cfg.DecisionEngine.EndpointURL, "AGENT_BRICKS_ENDPOINT")
	setIfEmpty(&cfg.DecisionEngine.APIKey, "AGENT_BRICKS_API_KEY")

	if strings.EqualFold(os.Getenv("DEBUG"), "true") {
		cfg.App.Debug = true
	}
}

func setIfEmpty(dst *string, envKey string) {
	if *dst != "" {
		return
	}
	if val := os.Getenv(envKey); val != "" {
		*dst = val
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Camunda.MaxJobsActive == 0 {
		cfg.Camunda.MaxJobsActive = 10
	}
	if cfg.Camunda.Timeout == 0 {
		cfg.Camunda.Timeout = 30000
	}
	if cfg.Camunda.RequestTimeout == 0 {
		cfg.Camunda.RequestTimeout = 30000
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10000
	}

	cfg.Store.Driver = strings.ToLower(cfg.Store.Driver)
	cfg.Warehouse.Host = strings.TrimPrefix(strings.TrimPrefix(cfg.Warehouse.Host, "https://"), "http://")
	if cfg.Warehouse.ConnectTimeout == 0 {
		cfg.Warehouse.ConnectTimeout = 10000
	}

	if cfg.DecisionEngine.Timeout == 0 {
		cfg.DecisionEngine.Timeout = 30000
	}
	if cfg.DecisionEngine.MaxRetries == 0 {
		cfg.DecisionEngine.MaxRetries = 2
	}
	if cfg.DecisionEngine.RateLimit == 0 {
		cfg.DecisionEngine.RateLimit = 5
	}

	if cfg.Underwriting.MaxLoanAmount == 0 {
		cfg.Underwriting.MaxLoanAmount = 1000000
	}
	if cfg.Underwriting.MinCreditScore == 0 {
		cfg.Underwriting.MinCreditScore = 300
	}
	if cfg.Underwriting.MaxCreditScore == 0 {
		cfg.Underwriting.MaxCreditScore = 850
	}

	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = 15 * 60 * 1000
	}
	if cfg.Search.Index == "" {
		cfg.Search.Index = "loan-applications"
	}
	if cfg.Scheduler.AnalyticsSchedule == "" {
		cfg.Scheduler.AnalyticsSchedule = "0 5 0 * * *"
	}
	if cfg.Notifications.AWS.Region == "" {
		cfg.Notifications.AWS.Region = "us-east-1"
	}

	if cfg.App.Debug {
		cfg.Logging.Level = "debug"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	if cfg.Workers == nil {
		cfg.Workers = map[string]WorkerConfig{}
	}
	for key, worker := range cfg.Workers {
		if worker.MaxJobsActive == 0 {
			worker.MaxJobsActive = 5
		}
		if worker.Timeout == 0 {
			worker.Timeout = 30000
		}
		if worker.MaxRetries == 0 {
			worker.MaxRetries = 3
		}
		cfg.Workers[key] = worker
	}
}

func validateConfig(cfg *Config) error {
	switch cfg.Store.Driver {
	case StoreDriverPostgres:
		if cfg.Warehouse.Host == "" {
			return fmt.Errorf("warehouse.host is required for the postgres store")
		}
		if cfg.Warehouse.Schema == "" {
			return fmt.Errorf("warehouse.schema is required for the postgres store")
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("store.driver must be %q or %q, got %q", StoreDriverPostgres, StoreDriverMemory, cfg.Store.Driver)
	}

	if cfg.Camunda.Enabled && cfg.Camunda.BrokerAddress == "" {
		return fmt.Errorf("camunda.broker_address is required when camunda is enabled")
	}

	if cfg.DecisionEngine.EndpointURL != "" && !validURL(cfg.DecisionEngine.EndpointURL) {
		return fmt.Errorf("decision_engine.endpoint_url is not a valid URL: %q", cfg.DecisionEngine.EndpointURL)
	}

	if cfg.Notifications.Email.Enabled && (cfg.Notifications.Email.FromEmail == "" || cfg.Notifications.Email.ToEmail == "") {
		return fmt.Errorf("notifications.email requires from_email and reviewer_email")
	}
	if cfg.Notifications.SNS.Enabled && cfg.Notifications.SNS.TopicARN == "" {
		return fmt.Errorf("notifications.sns.topic_arn is required when sns is enabled")
	}
	return nil
}

// GetDuration converts milliseconds from config to time.Duration.
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

// GetWorkerConfig retrieves worker-specific configuration with fallback to defaults.
func GetWorkerConfig(cfg *Config, workerName string) WorkerConfig {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker
	}
	return WorkerConfig{
		Enabled:       true,
		MaxJobsActive: 5,
		Timeout:       30000,
		MaxRetries:    3,
	}
}

// IsWorkerEnabled checks if a specific worker is enabled. Unlisted workers run.
func IsWorkerEnabled(cfg *Config, workerName string) bool {
	return GetWorkerConfig(cfg, workerName).Enabled
}
