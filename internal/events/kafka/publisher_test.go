package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"

	"saldo/internal/core"
	"saldo/internal/events"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestPublisherKeysByAccount(t *testing.T) {
	w := &fakeWriter{}
	p := newPublisher(w, "ledger")

	e := events.NewLedgerEvent(events.EntryCreated, "acct-1", "e1", core.Cents(500), core.Cents(500), 1)
	if err := p.PublishLedgerEvent(context.Background(), e); err != nil {
		t.Fatal(err)
	}
	if err := p.PublishReconcileRequest(context.Background(), events.NewReconcileRequest("acct-1", "drift")); err != nil {
		t.Fatal(err)
	}

	if len(w.msgs) != 2 {
		t.Fatalf("got %d messages", len(w.msgs))
	}
	if w.msgs[0].Topic != "ledger" || string(w.msgs[0].Key) != "acct-1" {
		t.Fatalf("unexpected event message %+v", w.msgs[0])
	}
	if w.msgs[1].Topic != "ledger.reconcile" {
		t.Fatalf("reconcile topic = %q", w.msgs[1].Topic)
	}
	got, err := events.LedgerEventFromJSON(w.msgs[0].Value)
	if err != nil || got.EntryID != "e1" {
		t.Fatalf("decoded %+v, %v", got, err)
	}

	if err := p.Close(); err != nil || !w.closed {
		t.Fatal("Close should close the writer")
	}
}

func TestPublisherWrapsWriteErrors(t *testing.T) {
	boom := errors.New("leader not available")
	p := newPublisher(&fakeWriter{err: boom}, "ledger")
	err := p.PublishLedgerEvent(context.Background(), events.LedgerEvent{AccountID: "a"})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}
