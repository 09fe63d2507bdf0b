// Package events defines the messages emitted after ledger writes and the
// publisher abstraction used to ship them to a broker.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"saldo/internal/core"
)

type Type string

const (
	EntryCreated      Type = "entry.created"
	EntryUpdated      Type = "entry.updated"
	EntryDeleted      Type = "entry.deleted"
	BalanceSeeded     Type = "balance.seeded"
	BalanceReconciled Type = "balance.reconciled"
)

// LedgerEvent describes a committed balance change.
type LedgerEvent struct {
	ID           string     `json:"id"`
	Type         Type       `json:"type"`
	AccountID    string     `json:"accountId"`
	EntryID      string     `json:"entryId,omitempty"`
	Delta        core.Money `json:"delta"`
	BalanceAfter core.Money `json:"balanceAfter"`
	Version      int64      `json:"version"`
	Timestamp    time.Time  `json:"timestamp"`
}

func NewLedgerEvent(t Type, accountID, entryID string, delta, balance core.Money, version int64) LedgerEvent {
	return LedgerEvent{
		ID:           uuid.NewString(),
		Type:         t,
		AccountID:    accountID,
		EntryID:      entryID,
		Delta:        delta,
		BalanceAfter: balance,
		Version:      version,
		Timestamp:    time.Now().UTC(),
	}
}

func (e LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var e LedgerEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// ReconcileRequest asks the worker to recompute an account's balance
// from its entry log.
type ReconcileRequest struct {
	AccountID string    `json:"accountId"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

func NewReconcileRequest(accountID, reason string) ReconcileRequest {
	return ReconcileRequest{AccountID: accountID, Reason: reason, Timestamp: time.Now().UTC()}
}

func (r ReconcileRequest) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

func ReconcileRequestFromJSON(data []byte) (*ReconcileRequest, error) {
	var r ReconcileRequest
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Publisher ships ledger events. Implementations must be safe for
// concurrent use.
type Publisher interface {
	PublishLedgerEvent(ctx context.Context, e LedgerEvent) error
	PublishReconcileRequest(ctx context.Context, r ReconcileRequest) error
	Close() error
}
