package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/petrofield/fieldops/internal/agreements"
	"github.com/petrofield/fieldops/internal/observability"
	"github.com/petrofield/fieldops/internal/shared"
)

// LedgerVerifier recomputes balances from the journal.
type LedgerVerifier interface {
	Verify(ctx context.Context, agreementID string, repair bool) ([]agreements.Drift, error)
}

// Locker guards a verification run against concurrent runs for the same scope.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// LedgerVerifyJob handles TaskLedgerVerify.
type LedgerVerifyJob struct {
	Verifier LedgerVerifier
	Locker   Locker
	Metrics  *observability.Metrics
	Logger   *slog.Logger
	// AutoRepair forces repair even when the payload does not ask for it.
	AutoRepair bool
	LockTTL    time.Duration
}

// Handle executes one verification run.
func (j *LedgerVerifyJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Verifier == nil {
		return errors.New("ledger verify: handler not configured")
	}
	var payload LedgerVerifyPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("ledger verify payload: %v: %w", err, asynq.SkipRetry)
	}
	defer func() { j.Metrics.JobFinished(TaskLedgerVerify, err) }()

	logger := j.logger().With(slog.String("agreement_id", payload.AgreementID), slog.Bool("repair", payload.Repair || j.AutoRepair))

	if j.Locker != nil {
		ttl := j.LockTTL
		if ttl <= 0 {
			ttl = 5 * time.Minute
		}
		release, lockErr := j.Locker.Acquire(ctx, shared.LedgerVerifyLockKey(payload.AgreementID), ttl)
		if errors.Is(lockErr, shared.ErrLockHeld) {
			logger.Info("ledger verify already running, skipping")
			return nil
		}
		if lockErr != nil {
			return lockErr
		}
		defer release()
	}

	drifts, err := j.Verifier.Verify(ctx, payload.AgreementID, payload.Repair || j.AutoRepair)
	if err != nil {
		logger.Error("ledger verify failed", slog.Any("error", err))
		return err
	}
	j.Metrics.LedgerDrift(len(drifts))
	repaired := 0
	for _, d := range drifts {
		if d.Repaired {
			repaired++
		}
	}
	logger.Info("ledger verify finished", slog.Int("drifted", len(drifts)), slog.Int("repaired", repaired))
	return nil
}

func (j *LedgerVerifyJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
