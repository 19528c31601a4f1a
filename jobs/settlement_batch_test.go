package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/crossbridge/crossbridge/internal/billing"
	jobmetrics "github.com/crossbridge/crossbridge/internal/jobs"
	"github.com/crossbridge/crossbridge/internal/settlement"
)

type stubRunner struct {
	got settlement.BatchRequest
	err error
}

func (s *stubRunner) RunBatch(ctx context.Context, req settlement.BatchRequest) (settlement.Summary, error) {
	s.got = req
	if s.err != nil {
		return settlement.Summary{}, s.err
	}
	return settlement.Summary{Period: req.Period, Total: 3, Created: 2, Failed: 1}, nil
}

func newTestJob(runner BatchRunner) *SettlementBatchJob {
	job := NewSettlementBatchJob(runner, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	job.WithClock(func() time.Time { return time.Date(2024, 1, 1, 3, 0, 0, 0, time.UTC) })
	return job
}

func TestSettlementBatchJobResolvesPreviousPeriod(t *testing.T) {
	runner := &stubRunner{}
	task, err := NewSettlementBatchTask(SettlementBatchPayload{Kind: "agency"})
	require.NoError(t, err)

	require.NoError(t, newTestJob(runner).Handle(context.Background(), task))
	require.Equal(t, "2023-12", runner.got.Period)
	require.Equal(t, billing.CounterpartyAgency, runner.got.Kind)
}

func TestSettlementBatchJobExplicitPeriod(t *testing.T) {
	runner := &stubRunner{}
	task, err := NewSettlementBatchTask(SettlementBatchPayload{Period: "2024-06", Overwrite: true})
	require.NoError(t, err)

	require.NoError(t, newTestJob(runner).Handle(context.Background(), task))
	require.Equal(t, settlement.BatchRequest{Period: "2024-06", Overwrite: true}, runner.got)
}

func TestSettlementBatchTaskRejectsBadPeriod(t *testing.T) {
	_, err := NewSettlementBatchTask(SettlementBatchPayload{Period: "June"})
	require.Error(t, err)
}

func TestSettlementBatchJobSkipsRetryOnBadPayload(t *testing.T) {
	job := newTestJob(&stubRunner{})

	err := job.Handle(context.Background(), asynq.NewTask(TaskSettlementBatch, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	err = job.Handle(context.Background(), asynq.NewTask(TaskSettlementBatch, []byte(`{"period":"2024-13"}`)))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestSettlementBatchJobRetriesRunnerErrors(t *testing.T) {
	boom := errors.New("list counterparties: connection refused")
	task, err := NewSettlementBatchTask(SettlementBatchPayload{Period: "2024-06"})
	require.NoError(t, err)

	err = newTestJob(&stubRunner{err: boom}).Handle(context.Background(), task)
	require.ErrorIs(t, err, boom)
	require.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestSettlementBatchJobRequiresRunner(t *testing.T) {
	var job *SettlementBatchJob
	require.Error(t, job.Handle(context.Background(), asynq.NewTask(TaskSettlementBatch, nil)))
}
