// Package settlement drives bill generation across every counterparty of a
// period and serialises work per (counterparty, period, kind) key.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/crossbridge/crossbridge/internal/billing"
	jobmetrics "github.com/crossbridge/crossbridge/internal/jobs"
	"github.com/crossbridge/crossbridge/internal/shared"
)

// Status is the terminal state of one counterparty within a run.
type Status string

const (
	StatusCreated Status = "CREATED"
	StatusSkipped Status = "SKIPPED"
	StatusFailed  Status = "FAILED"
)

const (
	ReasonNoRecords     = "no records"
	ReasonAlreadyExists = "already exists"
	ReasonNothingOwed   = "nothing owed"
	ReasonCancelled     = "run cancelled"
	ReasonLocked        = "locked by another run"
)

// Outcome is the ephemeral result for one counterparty.
type Outcome struct {
	CounterpartyID   string           `json:"counterparty_id"`
	CounterpartyName string           `json:"counterparty_name"`
	Kind             billing.BillKind `json:"kind,omitempty"`
	Status           Status           `json:"status"`
	Reason           string           `json:"reason,omitempty"`
	BillID           string           `json:"bill_id,omitempty"`
	Net              string           `json:"net,omitempty"`
}

// Summary tallies a run. Every counterparty appears once in Details, in the
// order the counterparties were listed.
type Summary struct {
	Period   string        `json:"period"`
	Total    int           `json:"total"`
	Created  int           `json:"created"`
	Skipped  int           `json:"skipped"`
	Failed   int           `json:"failed"`
	Details  []Outcome     `json:"details"`
	Duration time.Duration `json:"duration_ns"`
}

// BatchRequest configures RunBatch.
type BatchRequest struct {
	Period    string `json:"period" validate:"required"`
	Overwrite bool   `json:"overwrite"`
	// Kind restricts the run to one counterparty kind when set.
	Kind billing.CounterpartyKind `json:"kind,omitempty" validate:"omitempty,oneof=SUPPLIER AGENCY"`
}

// Biller is the slice of billing.Service the runner depends on.
type Biller interface {
	Counterparty(ctx context.Context, id string) (billing.Counterparty, error)
	Counterparties(ctx context.Context) ([]billing.Counterparty, error)
	GenerateFor(ctx context.Context, cp billing.Counterparty, in billing.GenerateInput) (billing.Bill, error)
}

// Options tunes a Runner.
type Options struct {
	Concurrency int
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
}

// Runner executes settlement runs.
type Runner struct {
	bills       Biller
	locker      Locker
	concurrency int
	logger      *slog.Logger
	metrics     *jobmetrics.Metrics
	now         func() time.Time
}

// NewRunner constructs a runner. A nil locker falls back to an in-process one.
func NewRunner(bills Biller, locker Locker, opts Options) *Runner {
	if locker == nil {
		locker = NewLocalLocker(5 * time.Second)
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		bills:       bills,
		locker:      locker,
		concurrency: opts.Concurrency,
		logger:      logger.With(slog.String("component", "settlement")),
		metrics:     opts.Metrics,
		now:         time.Now,
	}
}

// Settle generates the bill for a single counterparty under its key lock.
// Errors propagate to the caller unchanged.
func (r *Runner) Settle(ctx context.Context, in billing.GenerateInput) (billing.Bill, error) {
	if _, err := shared.ParsePeriod(in.Period); err != nil {
		return billing.Bill{}, err
	}
	cp, err := r.bills.Counterparty(ctx, in.CounterpartyID)
	if err != nil {
		return billing.Bill{}, err
	}
	kind, ok := billing.KindFor(cp.Kind)
	if !ok {
		return billing.Bill{}, fmt.Errorf("%w: %s", billing.ErrUnsupportedCounterparty, cp.Kind)
	}
	release, err := r.locker.Acquire(ctx, shared.SettlementLockKey(cp.ID, in.Period, string(kind)))
	if err != nil {
		return billing.Bill{}, err
	}
	defer release()
	return r.bills.GenerateFor(ctx, cp, in)
}

// RunBatch settles every counterparty for the period. Per-counterparty
// failures land in the summary; only a bad request or a failure to list
// counterparties is returned as an error. Cancelling ctx stops scheduling;
// counterparties already started run to completion.
func (r *Runner) RunBatch(ctx context.Context, req BatchRequest) (Summary, error) {
	if _, err := shared.ParsePeriod(req.Period); err != nil {
		return Summary{}, err
	}
	start := r.now()
	all, err := r.bills.Counterparties(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("list counterparties: %w", err)
	}
	cps := all[:0:0]
	for _, cp := range all {
		if req.Kind == "" || cp.Kind == req.Kind {
			cps = append(cps, cp)
		}
	}

	details := make([]Outcome, len(cps))
	workCtx := context.WithoutCancel(ctx)
	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for i, cp := range cps {
		if ctx.Err() != nil {
			details[i] = r.record(cp, "", StatusSkipped, ReasonCancelled, billing.Bill{})
			continue
		}
		g.Go(func() error {
			details[i] = r.settleOne(workCtx, cp, req)
			return nil
		})
	}
	_ = g.Wait()

	summary := Summary{Period: req.Period, Total: len(details), Details: details, Duration: r.now().Sub(start)}
	for _, o := range details {
		switch o.Status {
		case StatusCreated:
			summary.Created++
		case StatusSkipped:
			summary.Skipped++
		case StatusFailed:
			summary.Failed++
		}
	}
	r.logger.Info("settlement batch finished",
		slog.String("period", req.Period),
		slog.Int("total", summary.Total),
		slog.Int("created", summary.Created),
		slog.Int("skipped", summary.Skipped),
		slog.Int("failed", summary.Failed),
		slog.Duration("duration", summary.Duration),
	)
	return summary, nil
}

// settleOne never panics: a panic from the store or driver becomes a Failed
// outcome for this counterparty alone.
func (r *Runner) settleOne(ctx context.Context, cp billing.Counterparty, req BatchRequest) (out Outcome) {
	kind, ok := billing.KindFor(cp.Kind)
	defer func() {
		if rec := recover(); rec != nil {
			out = r.record(cp, kind, StatusFailed, fmt.Sprintf("panic: %v", rec), billing.Bill{})
		}
	}()
	if !ok {
		return r.record(cp, "", StatusFailed, fmt.Sprintf("%s: %s", billing.ErrUnsupportedCounterparty, cp.Kind), billing.Bill{})
	}
	release, err := r.locker.Acquire(ctx, shared.SettlementLockKey(cp.ID, req.Period, string(kind)))
	if err != nil {
		if errors.Is(err, ErrKeyLocked) {
			return r.record(cp, kind, StatusSkipped, ReasonLocked, billing.Bill{})
		}
		return r.record(cp, kind, StatusFailed, err.Error(), billing.Bill{})
	}
	defer release()

	bill, err := r.bills.GenerateFor(ctx, cp, billing.GenerateInput{
		CounterpartyID: cp.ID,
		Period:         req.Period,
		Overwrite:      req.Overwrite,
	})
	switch {
	case err == nil:
		return r.record(cp, kind, StatusCreated, "", bill)
	case errors.Is(err, billing.ErrNoBillableActivity):
		return r.record(cp, kind, StatusSkipped, ReasonNoRecords, billing.Bill{})
	case errors.Is(err, billing.ErrBillConflict):
		return r.record(cp, kind, StatusSkipped, ReasonAlreadyExists, bill)
	case errors.Is(err, billing.ErrNothingOwed):
		return r.record(cp, kind, StatusSkipped, ReasonNothingOwed, billing.Bill{})
	default:
		return r.record(cp, kind, StatusFailed, err.Error(), billing.Bill{})
	}
}

func (r *Runner) record(cp billing.Counterparty, kind billing.BillKind, status Status, reason string, bill billing.Bill) Outcome {
	o := Outcome{
		CounterpartyID:   cp.ID,
		CounterpartyName: cp.Name,
		Kind:             kind,
		Status:           status,
		Reason:           reason,
		BillID:           bill.ID,
	}
	if bill.ID != "" {
		o.Net = bill.Net.StringFixed(2)
	}
	r.metrics.ObserveOutcome(string(kind), string(status))
	attrs := []any{
		slog.String("counterparty_id", cp.ID),
		slog.String("status", string(status)),
	}
	if reason != "" {
		attrs = append(attrs, slog.String("reason", reason))
	}
	if status == StatusFailed {
		r.logger.Warn("settlement outcome", attrs...)
	} else {
		r.logger.Info("settlement outcome", attrs...)
	}
	return o
}
