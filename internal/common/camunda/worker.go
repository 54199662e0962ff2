// internal/common/camunda/worker.go
package camunda

import (
	"time"

	"loan-underwriting/internal/common/config"
	"loan-underwriting/internal/common/logger"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
)

// DefaultMaxJobsActive applies when a worker's config leaves it unset.
const DefaultMaxJobsActive = 5

type JobHandler func(client worker.JobClient, job entities.Job)

// StartWorker opens a job worker for taskType. It returns nil when the worker
// is disabled.
func StartWorker(client zbc.Client, taskType string, wcfg config.WorkerConfig, handler JobHandler, log logger.Logger) worker.JobWorker {
	if !wcfg.Enabled {
		log.Info("worker disabled", map[string]interface{}{"taskType": taskType})
		return nil
	}

	maxJobs := wcfg.MaxJobsActive
	if maxJobs <= 0 {
		maxJobs = DefaultMaxJobsActive
	}

	builder := client.NewJobWorker().
		JobType(taskType).
		Handler(worker.JobHandler(handler)).
		MaxJobsActive(maxJobs)
	if timeout := config.GetDuration(wcfg.Timeout); timeout > 0 {
		// the job lease must outlive the handler's own execution timeout
		builder = builder.Timeout(timeout + 5*time.Second)
	}
	w := builder.Open()

	log.Info("worker started", map[string]interface{}{
		"taskType":      taskType,
		"maxJobsActive": maxJobs,
		"timeoutMs":     wcfg.Timeout,
	})
	return w
}
