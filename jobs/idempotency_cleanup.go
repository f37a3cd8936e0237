package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/petrofield/fieldops/internal/observability"
)

// KeyPruner removes idempotency keys older than a retention window.
type KeyPruner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// IdempotencyCleanupJob handles TaskIdempotencyCleanup.
type IdempotencyCleanupJob struct {
	Store     KeyPruner
	Retention time.Duration
	Metrics   *observability.Metrics
	Logger    *slog.Logger
}

// Handle prunes expired keys.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	var payload IdempotencyCleanupPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("idempotency cleanup payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	defer func() { j.Metrics.JobFinished(TaskIdempotencyCleanup, err) }()

	retention := payload.Retention
	if retention <= 0 {
		retention = j.Retention
	}
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}
	removed, err := j.Store.Cleanup(ctx, retention)
	if err != nil {
		return err
	}
	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("idempotency keys pruned", slog.Int64("removed", removed), slog.Duration("retention", retention))
	return nil
}
