// Package backend builds the storage and event plumbing selected by
// configuration.
package backend

import (
	"context"

	"saldo/internal/events"
	"saldo/internal/ledger"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// StoreResult is a ready store plus what is needed to release it.
type StoreResult struct {
	Store ledger.TxStore
	// Ready reports whether the store can serve requests.
	Ready   func(ctx context.Context) error
	Cleanup CleanupFunc
}

// ReconcileConsumer delivers reconcile requests from a broker.
type ReconcileConsumer interface {
	ConsumeReconcile(ctx context.Context, handler func(context.Context, *events.ReconcileRequest) error) error
}

// EventsResult carries the publisher and, for brokers that support it,
// the reconcile consumer.
type EventsResult struct {
	Publisher events.Publisher
	Consumer  ReconcileConsumer
	Cleanup   CleanupFunc
}

// BackendType represents the type of storage backend
type BackendType string

const (
	MemoryBackend   BackendType = "memory"
	SQLiteBackend   BackendType = "sqlite"
	PostgresBackend BackendType = "postgres"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, SQLiteBackend, PostgresBackend:
		return true
	default:
		return false
	}
}

// EventsType selects where ledger events go.
type EventsType string

const (
	NoEvents    EventsType = "none"
	LogEvents   EventsType = "log"
	AMQPEvents  EventsType = "amqp"
	KafkaEvents EventsType = "kafka"
)

func (et EventsType) IsValid() bool {
	switch et {
	case NoEvents, LogEvents, AMQPEvents, KafkaEvents:
		return true
	default:
		return false
	}
}
