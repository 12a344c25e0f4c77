package river

import (
	"context"
	"log/slog"

	"github.com/riverqueue/river"
)

// ModuleEventWorker processes module lifecycle jobs from the River queue.
// For now it logs the event; future versions will dispatch to webhooks,
// billing, or notification systems.
type ModuleEventWorker struct {
	river.WorkerDefaults[ModuleEventArgs]
}

// Work processes a single lifecycle event job.
func (w *ModuleEventWorker) Work(ctx context.Context, job *river.Job[ModuleEventArgs]) error {
	slog.InfoContext(ctx, "processing module event",
		"event", job.Args.Event,
		"tenant_id", job.Args.TenantID,
		"module", job.Args.Module,
		"status", job.Args.Status,
		"job_id", job.ID,
		"attempt", job.Attempt,
	)
	return nil
}
