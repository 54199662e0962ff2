// cmd/underwriting-service/main.go
package main

import (
	"fmt"
	"os"
	"time"

	"loan-underwriting/internal/common/config"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath    string
	storeOverride string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "underwriting-service",
		Short:         "Loan underwriting service: REST API, Zeebe workers and analytics",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a config file (default: configs/config.yaml lookup)")
	rootCmd.PersistentFlags().StringVar(&storeOverride, "store", "", "Override store.driver (postgres|memory)")

	rootCmd.AddCommand(newServeCmd(), newMigrateCmd(), newScoreCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "underwriting-service: %s\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if storeOverride != "" {
		os.Setenv("STORE_DRIVER", storeOverride)
	}
	if configPath != "" {
		return config.LoadFromFile(configPath)
	}
	return config.Load()
}

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}
