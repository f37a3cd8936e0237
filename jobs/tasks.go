package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueLedger carries ledger integrity work and is weighted above default.
	QueueLedger = "ledger"

	// TaskLedgerVerify recomputes agreement balances from the ledger journal.
	TaskLedgerVerify = "ledger:verify"
	// TaskIdempotencyCleanup prunes expired idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"

	// NightlyLedgerVerifyCron runs the full ledger scan.
	NightlyLedgerVerifyCron = "0 2 * * *"
	// HourlyIdempotencyCleanupCron prunes idempotency keys.
	HourlyIdempotencyCleanupCron = "15 * * * *"
)

// LedgerVerifyPayload selects the agreements to verify. An empty
// AgreementID verifies every agreement.
type LedgerVerifyPayload struct {
	AgreementID string `json:"agreement_id,omitempty"`
	Repair      bool   `json:"repair"`
}

// NewLedgerVerifyTask constructs a ledger verification task.
func NewLedgerVerifyTask(payload LedgerVerifyPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerVerify, data, asynq.Queue(QueueLedger), asynq.MaxRetry(5), asynq.Timeout(5*time.Minute)), nil
}

// IdempotencyCleanupPayload overrides the configured retention when set.
type IdempotencyCleanupPayload struct {
	Retention time.Duration `json:"retention,omitempty"`
}

// NewIdempotencyCleanupTask constructs a cleanup task.
func NewIdempotencyCleanupTask(payload IdempotencyCleanupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data, asynq.Queue(QueueDefault), asynq.MaxRetry(1)), nil
}
