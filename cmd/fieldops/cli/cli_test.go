package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrofield/fieldops/internal/agreements"
	"github.com/petrofield/fieldops/jobs"
)

type stubVerifier struct {
	drifts []agreements.Drift
	err    error
	repair bool
}

func (s *stubVerifier) Verify(ctx context.Context, agreementID string, repair bool) ([]agreements.Drift, error) {
	s.repair = repair
	return s.drifts, s.err
}

func TestVerifyCommandJSONClean(t *testing.T) {
	cli, err := NewLedgerOpsCLI(&stubVerifier{})
	require.NoError(t, err)

	stdout := new(bytes.Buffer)
	code := cli.VerifyCommand(context.Background(), LedgerVerifyOptions{JSONOutput: true, Stdout: stdout, Stderr: new(bytes.Buffer)})
	require.Equal(t, 0, code)

	var summary LedgerVerifySummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	assert.True(t, summary.OK)
	assert.Empty(t, summary.Drift)
}

func TestVerifyCommandReportsDrift(t *testing.T) {
	verifier := &stubVerifier{drifts: []agreements.Drift{
		{AgreementID: "b", Balance: decimal.NewFromInt(90), Expected: decimal.NewFromInt(100)},
		{AgreementID: "a", Balance: decimal.NewFromInt(5), Expected: decimal.NewFromInt(0), Repaired: true},
	}}
	cli, err := NewLedgerOpsCLI(verifier)
	require.NoError(t, err)

	stdout := new(bytes.Buffer)
	code := cli.VerifyCommand(context.Background(), LedgerVerifyOptions{Stdout: stdout, Stderr: new(bytes.Buffer)})
	assert.Equal(t, 10, code)
	assert.Contains(t, stdout.String(), "2 drifted balance(s)")
	assert.Contains(t, stdout.String(), " - a balance 5.00 expected 0.00 (repaired)")
	assert.Contains(t, stdout.String(), " - b balance 90.00 expected 100.00 (unrepaired)")
}

func TestVerifyCommandRepairedIsOK(t *testing.T) {
	verifier := &stubVerifier{drifts: []agreements.Drift{{AgreementID: "a", Repaired: true}}}
	cli, err := NewLedgerOpsCLI(verifier)
	require.NoError(t, err)

	code := cli.VerifyCommand(context.Background(), LedgerVerifyOptions{Repair: true, Stdout: new(bytes.Buffer), Stderr: new(bytes.Buffer)})
	assert.Equal(t, 0, code)
	assert.True(t, verifier.repair)
}

func TestVerifyCommandFailure(t *testing.T) {
	cli, err := NewLedgerOpsCLI(&stubVerifier{err: errors.New("connection refused")})
	require.NoError(t, err)

	stderr := new(bytes.Buffer)
	code := cli.VerifyCommand(context.Background(), LedgerVerifyOptions{Stdout: new(bytes.Buffer), Stderr: stderr})
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "connection refused")
}

type fakeEnqueuer struct{ tasks []*asynq.Task }

func (f *fakeEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: "task-1", Type: task.Type()}, nil
}

func (f *fakeEnqueuer) Close() error { return nil }

type fakeInspector struct{ infos map[string]*asynq.QueueInfo }

func (f *fakeInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	info, ok := f.infos[queue]
	if !ok {
		return nil, asynq.ErrQueueNotFound
	}
	return info, nil
}

func (f *fakeInspector) ListScheduledTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error) {
	return nil, nil
}

func (f *fakeInspector) Close() error { return nil }

func TestTrigger(t *testing.T) {
	enqueuer := &fakeEnqueuer{}
	cli := &JobsCLI{client: enqueuer}

	info, err := cli.Trigger(context.Background(), jobs.TaskLedgerVerify, TriggerOptions{AgreementID: "a-1", Repair: true})
	require.NoError(t, err)
	assert.Equal(t, jobs.TaskLedgerVerify, info.Type)
	require.Len(t, enqueuer.tasks, 1)
	assert.JSONEq(t, `{"agreement_id":"a-1","repair":true}`, string(enqueuer.tasks[0].Payload()))

	_, err = cli.Trigger(context.Background(), "inventory:revalue", TriggerOptions{})
	require.Error(t, err)
}

func TestInspectQueues(t *testing.T) {
	cli := &JobsCLI{inspector: &fakeInspector{infos: map[string]*asynq.QueueInfo{
		jobs.QueueLedger: {Queue: jobs.QueueLedger, Pending: 2, Retry: 1},
	}}}

	stats, err := cli.InspectQueues(context.Background())
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, QueueStats{Queue: jobs.QueueLedger, Pending: 2, Retry: 1}, stats[0])
	assert.Equal(t, QueueStats{Queue: jobs.QueueDefault}, stats[1])
}
