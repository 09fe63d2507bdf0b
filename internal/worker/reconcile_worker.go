// Package worker repairs accounts whose cached balance drifted from the
// entry log, both on request and on a periodic sweep.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"saldo/internal/core"
	"saldo/internal/events"
	"saldo/internal/ledger"
	"saldo/internal/log"
)

// Reconciler is the part of the ledger the worker drives.
type Reconciler interface {
	AccountIDs(ctx context.Context) ([]string, error)
	Reconcile(ctx context.Context, accountID string) (ledger.ReconcileResult, error)
}

// Consumer delivers reconcile requests until ctx is done.
type Consumer interface {
	ConsumeReconcile(ctx context.Context, handler func(context.Context, *events.ReconcileRequest) error) error
}

type ReconcileWorker struct {
	ledger   Reconciler
	consumer Consumer
	interval time.Duration
	logger   *log.Logger
}

// SweepStats summarises one pass over every account.
type SweepStats struct {
	Checked  int
	Repaired int
	Failed   int
}

// NewReconcileWorker creates a worker. consumer may be nil, in which case
// only the periodic sweep runs.
func NewReconcileWorker(l Reconciler, consumer Consumer, interval time.Duration, logger *log.Logger) *ReconcileWorker {
	if logger == nil {
		logger = log.Discard()
	}
	return &ReconcileWorker{
		ledger:   l,
		consumer: consumer,
		interval: interval,
		logger:   logger.WithComponent(log.ComponentWorker),
	}
}

// HandleReconcileRequest reconciles the requested account. Requests for
// accounts that no longer exist are acknowledged and dropped.
func (w *ReconcileWorker) HandleReconcileRequest(ctx context.Context, req *events.ReconcileRequest) error {
	w.logger.InfoContext(ctx, "Processing reconcile request",
		log.FieldAccountID, req.AccountID,
		"reason", req.Reason)

	res, err := w.ledger.Reconcile(ctx, req.AccountID)
	if errors.Is(err, core.ErrNotFound) {
		w.logger.WarnContext(ctx, "Reconcile requested for unknown account", log.FieldAccountID, req.AccountID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("reconcile %s: %w", req.AccountID, err)
	}
	w.logResult(ctx, res)
	return nil
}

// Sweep reconciles every account once. Per-account failures are counted
// and logged; only a failure to list accounts aborts the sweep.
func (w *ReconcileWorker) Sweep(ctx context.Context) (SweepStats, error) {
	ids, err := w.ledger.AccountIDs(ctx)
	if err != nil {
		return SweepStats{}, err
	}

	var stats SweepStats
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Checked++
		res, err := w.ledger.Reconcile(ctx, id)
		if err != nil {
			stats.Failed++
			w.logger.ErrorContext(ctx, "Reconcile failed during sweep",
				log.FieldAccountID, id, log.FieldError, err)
			continue
		}
		if res.Repaired {
			stats.Repaired++
		}
		w.logResult(ctx, res)
	}

	w.logger.InfoContext(ctx, "Reconcile sweep finished",
		"checked", stats.Checked,
		"repaired", stats.Repaired,
		"failed", stats.Failed)
	return stats, nil
}

func (w *ReconcileWorker) logResult(ctx context.Context, res ledger.ReconcileResult) {
	if !res.Repaired {
		w.logger.DebugContext(ctx, "Account consistent", log.FieldAccountID, res.AccountID)
		return
	}
	w.logger.WarnContext(ctx, "Account repaired",
		log.FieldAccountID, res.AccountID,
		log.FieldDriftCents, res.Drift.Cents,
		log.FieldVersion, res.Version)
}

// Run consumes reconcile requests and sweeps on every interval until ctx
// is cancelled. A sweep also runs at startup.
func (w *ReconcileWorker) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if w.consumer != nil {
		g.Go(func() error {
			return w.consumer.ConsumeReconcile(gctx, w.HandleReconcileRequest)
		})
	}

	g.Go(func() error {
		if w.interval <= 0 {
			return nil
		}
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			if _, err := w.Sweep(gctx); err != nil && gctx.Err() == nil {
				w.logger.ErrorContext(gctx, "Periodic sweep failed", log.FieldError, err)
			}
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-ticker.C:
			}
		}
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return nil
	}
	return err
}
