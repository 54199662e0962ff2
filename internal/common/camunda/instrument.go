// internal/common/camunda/instrument.go
package camunda

import (
	"context"
	"time"

	"loan-underwriting/internal/common/metrics"
	"loan-underwriting/internal/common/observability"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"go.opentelemetry.io/otel/attribute"
)

// Instrument wraps handler with the active-jobs gauge, the duration histogram
// and a span per job. obs may be nil.
func Instrument(taskType string, obs *observability.Observability, handler JobHandler) JobHandler {
	return func(client worker.JobClient, job entities.Job) {
		active := metrics.WorkerJobsActive.WithLabelValues(taskType)
		active.Inc()
		defer active.Dec()

		start := time.Now()
		if obs == nil {
			handler(client, job)
			metrics.WorkerJobDuration.WithLabelValues(taskType).Observe(time.Since(start).Seconds())
			return
		}

		ctx, span := obs.StartSpan(context.Background(), "job "+taskType,
			attribute.String("task_type", taskType),
			attribute.Int64("job_key", job.Key),
			attribute.Int64("process_instance_key", job.ProcessInstanceKey),
		)
		defer span.End()

		handler(client, job)

		elapsed := time.Since(start)
		metrics.WorkerJobDuration.WithLabelValues(taskType).Observe(elapsed.Seconds())
		obs.RecordJobDuration(ctx, taskType, elapsed, "handled")
		obs.RecordJobProcessed(ctx, taskType, "handled")
	}
}
