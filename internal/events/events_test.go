package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"saldo/internal/core"
)

func TestLedgerEvent_JSON(t *testing.T) {
	e := NewLedgerEvent(EntryCreated, "acct", "entry", core.Cents(-1250), core.Cents(8750), 3)
	if e.ID == "" || e.Timestamp.IsZero() {
		t.Fatal("NewLedgerEvent should set id and timestamp")
	}
	data, err := e.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON() error = %v", err)
	}
	got, err := LedgerEventFromJSON(data)
	if err != nil {
		t.Fatalf("LedgerEventFromJSON() error = %v", err)
	}
	if got.Type != EntryCreated || got.Delta.Cents != -1250 || got.BalanceAfter.Cents != 8750 || got.Version != 3 {
		t.Fatalf("unexpected event %+v", got)
	}
	if !got.Timestamp.Equal(e.Timestamp) {
		t.Fatalf("timestamp %v != %v", got.Timestamp, e.Timestamp)
	}
}

func TestReconcileRequest_InvalidJSON(t *testing.T) {
	if _, err := ReconcileRequestFromJSON([]byte(`{"accountId": 12}`)); err == nil {
		t.Fatal("expected error for non-string account id")
	}
	r := NewReconcileRequest("acct", "partial_write")
	data, _ := r.ToJSON()
	got, err := ReconcileRequestFromJSON(data)
	if err != nil || got.AccountID != "acct" || got.Reason != "partial_write" {
		t.Fatalf("got %+v, %v", got, err)
	}
	if time.Since(got.Timestamp) > time.Minute {
		t.Fatal("timestamp should be recent")
	}
}

func TestMultiJoinsErrors(t *testing.T) {
	boom := errors.New("broker down")
	ok := &Recorder{}
	bad := &Recorder{Err: boom}
	m := Multi{ok, bad, Nop{}}

	err := m.PublishLedgerEvent(context.Background(), LedgerEvent{Type: EntryDeleted})
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined error, got %v", err)
	}
	if len(ok.Events()) != 1 {
		t.Fatal("healthy publisher should still receive the event")
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}
}
