// cmd/underwriting-service/commands.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"loan-underwriting/internal/api"
	"loan-underwriting/internal/common/camunda"
	"loan-underwriting/internal/common/config"
	"loan-underwriting/internal/common/logger"
	"loan-underwriting/internal/common/observability"
	"loan-underwriting/internal/scheduler"
	"loan-underwriting/internal/store"
	"loan-underwriting/internal/underwriter"

	sua "loan-underwriting/internal/workers/analytics/summarize-underwriting-analytics"
	cas "loan-underwriting/internal/workers/underwriting/check-application-status"
	sdn "loan-underwriting/internal/workers/underwriting/send-decision-notification"
	ua "loan-underwriting/internal/workers/underwriting/underwrite-application"
	vla "loan-underwriting/internal/workers/underwriting/validate-loan-application"

	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the REST API, the Zeebe job workers and the analytics scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("config load failed: %w", err)
			}
			return serve(cfg)
		},
	}
}

func serve(cfg *config.Config) error {
	zapLog, log := newLogger(cfg)
	defer zapLog.Sync()
	zapLog.Info("Starting underwriting service...", zap.String("environment", cfg.App.Environment))

	obs := observability.New(cfg.App.Name, cfg.Tracing.JaegerEndpoint)
	defer obs.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := bootstrap(ctx, cfg, zapLog, log, obs)
	if err != nil {
		return err
	}
	defer a.Close()

	checks := map[string]api.ReadinessCheck{"store": a.service.Ping}
	if a.redis != nil {
		checks["redis"] = func(ctx context.Context) error { return a.redis.Ping(ctx).Err() }
	}

	// --- Zeebe workers ---
	var zc *camunda.Client
	var workers []worker.JobWorker
	if cfg.Camunda.Enabled {
		err = retryWithBackoff(func() error {
			var err error
			zc, err = camunda.NewClient(ctx, camunda.ConfigFrom(cfg.Camunda))
			return err
		}, 10, 2*time.Second, zapLog, "Zeebe client initialization")
		if err != nil {
			return fmt.Errorf("zeebe client failed after retries: %w", err)
		}
		zapLog.Info("Zeebe client connected successfully")
		checks["zeebe"] = zc.HealthCheck
		workers = registerWorkers(zc, cfg, a.service, obs, log)
		zapLog.Info("Workers registered", zap.Int("count", len(workers)))
	}

	// --- Analytics scheduler ---
	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		var opts []scheduler.Option
		if cfg.Scheduler.RunTimeout > 0 {
			opts = append(opts, scheduler.WithRunTimeout(config.GetDuration(cfg.Scheduler.RunTimeout)))
		}
		sched, err = scheduler.New(a.service, cfg.Scheduler.AnalyticsSchedule, log, opts...)
		if err != nil {
			return err
		}
		sched.Start()
	}

	// --- HTTP ---
	e := api.NewRouter(api.NewHandler(a.service, log), checks, log)
	serverErr := make(chan error, 1)
	go func() {
		zapLog.Info("HTTP server listening", zap.String("address", cfg.Server.Address))
		if err := e.Start(cfg.Server.Address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		zapLog.Info("Shutdown signal received, stopping...")
	case err := <-serverErr:
		zapLog.Error("HTTP server failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.Server.ShutdownTimeout))
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping HTTP server", zap.Error(err))
	}
	if sched != nil {
		if err := sched.Stop(shutdownCtx); err != nil {
			zapLog.Error("Error stopping scheduler", zap.Error(err))
		}
	}
	for _, w := range workers {
		w.Close()
		w.AwaitClose()
	}
	if zc != nil {
		if err := zc.Close(); err != nil {
			zapLog.Error("Error closing Zeebe client", zap.Error(err))
		}
	}

	zapLog.Info("Underwriting service stopped gracefully")
	return nil
}

func registerWorkers(zc *camunda.Client, cfg *config.Config, svc *underwriter.Service, obs *observability.Observability, log logger.Logger) []worker.JobWorker {
	var workers []worker.JobWorker
	start := func(taskType string, handle camunda.JobHandler) {
		wcfg := config.GetWorkerConfig(cfg, taskType)
		if w := camunda.StartWorker(zc.Raw(), taskType, wcfg, camunda.Instrument(taskType, obs, handle), log); w != nil {
			workers = append(workers, w)
		}
	}
	timeout := func(taskType string, def time.Duration) time.Duration {
		if wcfg, ok := cfg.Workers[taskType]; ok && wcfg.Timeout > 0 {
			return config.GetDuration(wcfg.Timeout)
		}
		return def
	}

	uaCfg := ua.LoadConfig()
	uaCfg.Timeout = timeout(ua.TaskType, uaCfg.Timeout)
	start(ua.TaskType, ua.NewHandler(uaCfg, svc, log).Handle)

	casCfg := cas.LoadConfig()
	casCfg.Timeout = timeout(cas.TaskType, casCfg.Timeout)
	start(cas.TaskType, cas.NewHandler(casCfg, svc, log).Handle)

	vlaCfg := vla.LoadConfig()
	vlaCfg.Timeout = timeout(vla.TaskType, vlaCfg.Timeout)
	vlaCfg.Limits.MaxLoanAmount = cfg.Underwriting.MaxLoanAmount
	start(vla.TaskType, vla.NewHandler(vlaCfg, log).Handle)

	sdnCfg := sdn.LoadConfig()
	sdnCfg.Timeout = timeout(sdn.TaskType, sdnCfg.Timeout)
	start(sdn.TaskType, sdn.NewHandler(sdnCfg, svc, log).Handle)

	suaCfg := sua.LoadConfig()
	suaCfg.Timeout = timeout(sua.TaskType, suaCfg.Timeout)
	start(sua.TaskType, sua.NewHandler(suaCfg, svc, log).Handle)

	return workers
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the warehouse schema and the search index",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("config load failed: %w", err)
			}
			zapLog, log := newLogger(cfg)
			defer zapLog.Sync()

			a := &app{cfg: cfg, zapLog: zapLog, log: log}
			st, wh, err := openStore(cmd.Context(), cfg, zapLog, log)
			if err != nil {
				return err
			}
			a.store, a.warehouse = st, wh
			defer a.Close()

			if cfg.Search.Enabled {
				a.searchIndexer(cmd.Context())
			}
			zapLog.Info("Migration complete")
			return nil
		},
	}
}

func newScoreCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Validate and decide one application offline, printing the result as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			in := cmd.InOrStdin()
			if file != "" && file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			return score(cmd.Context(), in, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "Application JSON file, or - for stdin")
	return cmd
}

func score(ctx context.Context, in io.Reader, out io.Writer) error {
	var fields map[string]interface{}
	if err := json.NewDecoder(in).Decode(&fields); err != nil {
		return fmt.Errorf("decode application: %w", err)
	}

	svc := underwriter.New(store.NewMemoryStore(), nil, logger.NewNoOpLogger())
	res, err := svc.Submit(ctx, fields)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
