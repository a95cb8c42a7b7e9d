package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/beopar/beopar/internal/jobs"
	"github.com/beopar/beopar/internal/shared"
)

// NewIdempotencyCleanupHandler builds the handler that purges expired
// idempotency keys so the table does not grow without bound.
func NewIdempotencyCleanupHandler(store *shared.IdempotencyStore, metrics *jobmetrics.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload IdempotencyCleanupPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		tracker := metrics.Track("idempotency_cleanup")

		retention := time.Duration(payload.RetentionHours) * time.Hour
		if retention <= 0 {
			retention = 24 * time.Hour
		}

		purged, err := store.Cleanup(ctx, retention)
		if err != nil {
			return tracker.End(err)
		}
		logger.Info("jobs: idempotency cleanup done",
			slog.Int64("purged", purged),
			slog.Duration("retention", retention),
		)
		return tracker.End(nil)
	}
}
