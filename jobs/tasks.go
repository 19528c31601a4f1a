package jobs

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/crossbridge/crossbridge/internal/shared"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSettlementBatch runs a settlement batch for one period.
	TaskSettlementBatch = "settlement:batch"

	// PeriodPrevious resolves to the month before the job runs, for the
	// monthly cron entry.
	PeriodPrevious = "previous"
)

// SettlementBatchPayload describes one queued batch.
type SettlementBatchPayload struct {
	Period    string `json:"period"`
	Overwrite bool   `json:"overwrite,omitempty"`
	Kind      string `json:"kind,omitempty"`
}

// NewSettlementBatchTask constructs the Asynq task. An empty period means
// PeriodPrevious.
func NewSettlementBatchTask(payload SettlementBatchPayload) (*asynq.Task, error) {
	if payload.Period == "" {
		payload.Period = PeriodPrevious
	}
	if payload.Period != PeriodPrevious {
		if _, err := shared.ParsePeriod(payload.Period); err != nil {
			return nil, err
		}
	}
	payload.Kind = strings.ToUpper(strings.TrimSpace(payload.Kind))
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSettlementBatch, data,
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(3),
		asynq.Timeout(30*time.Minute),
	), nil
}

func resolvePeriod(raw string, now time.Time) (string, error) {
	if raw == "" || raw == PeriodPrevious {
		current := shared.Period{Year: now.Year(), Month: now.Month()}
		return current.AddMonths(-1).String(), nil
	}
	p, err := shared.ParsePeriod(raw)
	if err != nil {
		return "", fmt.Errorf("settlement batch: %w", err)
	}
	return p.String(), nil
}
