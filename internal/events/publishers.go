package events

import (
	"context"
	"errors"
	"sync"

	"saldo/internal/log"
)

// Nop discards everything.
type Nop struct{}

func (Nop) PublishLedgerEvent(context.Context, LedgerEvent) error           { return nil }
func (Nop) PublishReconcileRequest(context.Context, ReconcileRequest) error { return nil }
func (Nop) Close() error                                                    { return nil }

// Log writes events to the structured logger instead of a broker.
type Log struct {
	logger *log.Logger
}

func NewLog(logger *log.Logger) *Log {
	return &Log{logger: logger.WithComponent(log.ComponentEvents)}
}

func (l *Log) PublishLedgerEvent(ctx context.Context, e LedgerEvent) error {
	l.logger.InfoContext(ctx, "Ledger event",
		"type", e.Type,
		log.FieldAccountID, e.AccountID,
		log.FieldEntryID, e.EntryID,
		log.FieldDeltaCents, e.Delta.Cents,
		log.FieldBalanceCents, e.BalanceAfter.Cents,
		log.FieldVersion, e.Version)
	return nil
}

func (l *Log) PublishReconcileRequest(ctx context.Context, r ReconcileRequest) error {
	l.logger.WarnContext(ctx, "Reconcile requested", log.FieldAccountID, r.AccountID, "reason", r.Reason)
	return nil
}

func (l *Log) Close() error { return nil }

// Recorder keeps published messages in memory.
type Recorder struct {
	mu         sync.Mutex
	events     []LedgerEvent
	reconciles []ReconcileRequest
	// Err, when set, is returned from every publish call.
	Err error
}

func (r *Recorder) PublishLedgerEvent(_ context.Context, e LedgerEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.events = append(r.events, e)
	return nil
}

func (r *Recorder) PublishReconcileRequest(_ context.Context, req ReconcileRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.reconciles = append(r.reconciles, req)
	return nil
}

func (r *Recorder) Close() error { return nil }

func (r *Recorder) Events() []LedgerEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]LedgerEvent(nil), r.events...)
}

func (r *Recorder) ReconcileRequests() []ReconcileRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ReconcileRequest(nil), r.reconciles...)
}

// Multi fans out to several publishers and joins their errors.
type Multi []Publisher

func (m Multi) PublishLedgerEvent(ctx context.Context, e LedgerEvent) error {
	var errs []error
	for _, p := range m {
		errs = append(errs, p.PublishLedgerEvent(ctx, e))
	}
	return errors.Join(errs...)
}

func (m Multi) PublishReconcileRequest(ctx context.Context, r ReconcileRequest) error {
	var errs []error
	for _, p := range m {
		errs = append(errs, p.PublishReconcileRequest(ctx, r))
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, p := range m {
		errs = append(errs, p.Close())
	}
	return errors.Join(errs...)
}
