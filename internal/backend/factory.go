package backend

import (
	"context"
	"fmt"

	"saldo/internal/amqp"
	"saldo/internal/events"
	"saldo/internal/events/kafka"
	"saldo/internal/log"
	"saldo/internal/storage/memory"
	"saldo/internal/storage/sqlstore"
)

type Factory struct {
	logger *log.Logger
}

func NewFactory(logger *log.Logger) *Factory {
	if logger == nil {
		logger = log.Discard()
	}
	return &Factory{logger: logger.WithComponent(log.ComponentBackend)}
}

// CreateStore opens the configured store.
func (f *Factory) CreateStore(ctx context.Context, cfg Config) (*StoreResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Type {
	case MemoryBackend:
		f.logger.Info("Initialized memory backend")
		return &StoreResult{
			Store:   memory.New(),
			Ready:   func(context.Context) error { return nil },
			Cleanup: func() error { return nil },
		}, nil
	case SQLiteBackend:
		s, err := sqlstore.OpenSQLite(ctx, cfg.SQLiteDBPath, f.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite store: %w", err)
		}
		f.logger.Info("Initialized SQLite backend", "db_path", cfg.SQLiteDBPath)
		return &StoreResult{Store: s, Ready: s.Ping, Cleanup: s.Close}, nil
	case PostgresBackend:
		s, err := sqlstore.OpenPostgres(ctx, cfg.PostgresDSN, f.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize postgres store: %w", err)
		}
		f.logger.Info("Initialized postgres backend")
		return &StoreResult{Store: s, Ready: s.Ping, Cleanup: s.Close}, nil
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", cfg.Type)
	}
}

// CreatePublisher builds the configured event publisher. A broker that
// cannot be reached at startup degrades to the log publisher, since
// events are best-effort.
func (f *Factory) CreatePublisher(ctx context.Context, cfg Config) (*EventsResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logPublisher := events.NewLog(f.logger)
	switch cfg.Events {
	case "", NoEvents:
		return &EventsResult{Publisher: events.Nop{}, Cleanup: func() error { return nil }}, nil
	case LogEvents:
		return &EventsResult{Publisher: logPublisher, Cleanup: logPublisher.Close}, nil
	case AMQPEvents:
		client, err := amqp.NewClient(cfg.AMQP, f.logger)
		if err != nil {
			f.logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without broker",
				log.FieldError, err)
			return &EventsResult{Publisher: logPublisher, Cleanup: logPublisher.Close}, nil
		}
		f.logger.Info("Initialized AMQP client",
			"exchange", cfg.AMQP.Exchange,
			"events_queue", cfg.AMQP.EventsQueue,
			"reconcile_queue", cfg.AMQP.ReconcileQueue)
		return &EventsResult{Publisher: client, Consumer: client, Cleanup: client.Close}, nil
	case KafkaEvents:
		p := kafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		f.logger.Info("Initialized Kafka publisher", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
		return &EventsResult{Publisher: p, Cleanup: p.Close}, nil
	default:
		return nil, fmt.Errorf("unsupported events backend: %s", cfg.Events)
	}
}
