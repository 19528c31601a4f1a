package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/crossbridge/crossbridge/internal/billing"
	jobmetrics "github.com/crossbridge/crossbridge/internal/jobs"
	"github.com/crossbridge/crossbridge/internal/settlement"
	"github.com/crossbridge/crossbridge/internal/shared"
)

// BatchRunner runs one settlement batch.
type BatchRunner interface {
	RunBatch(ctx context.Context, req settlement.BatchRequest) (settlement.Summary, error)
}

// SettlementBatchJob executes queued settlement batches.
type SettlementBatchJob struct {
	Runner  BatchRunner
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewSettlementBatchJob constructs the job handler.
func NewSettlementBatchJob(runner BatchRunner, logger *slog.Logger, metrics *jobmetrics.Metrics) *SettlementBatchJob {
	return &SettlementBatchJob{
		Runner:  runner,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the batch. Per-counterparty failures are part of the
// summary and do not fail the task; only an unusable payload or a failure to
// start the run does.
func (j *SettlementBatchJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Runner == nil {
		return errors.New("settlement batch: dependencies not configured")
	}
	var payload SettlementBatchPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %w", asynq.SkipRetry)
	}

	tracker := j.Metrics.Track(TaskSettlementBatch)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	period, err := resolvePeriod(payload.Period, j.now())
	if err != nil {
		resultErr = err
		j.log().Error("resolve period", slog.String("period", payload.Period), slog.Any("error", err))
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}

	summary, err := j.Runner.RunBatch(ctx, settlement.BatchRequest{
		Period:    period,
		Overwrite: payload.Overwrite,
		Kind:      billing.CounterpartyKind(payload.Kind),
	})
	if err != nil {
		resultErr = err
		j.log().Error("run settlement batch", slog.String("period", period), slog.Any("error", err))
		if errors.Is(err, shared.ErrInvalidPeriod) {
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		return resultErr
	}
	j.Metrics.ObserveBatch(summary.Created, summary.Skipped, summary.Failed, j.now())
	j.log().Info("settlement batch completed",
		slog.String("period", period),
		slog.Int("created", summary.Created),
		slog.Int("skipped", summary.Skipped),
		slog.Int("failed", summary.Failed),
	)
	return nil
}

func (j *SettlementBatchJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskSettlementBatch))
	}
	return slog.Default().With(slog.String("job", TaskSettlementBatch))
}

func (j *SettlementBatchJob) now() time.Time {
	if j != nil && j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

// WithClock overrides the internal clock for deterministic tests.
func (j *SettlementBatchJob) WithClock(clock func() time.Time) {
	if j != nil && clock != nil {
		j.clock = clock
	}
}
