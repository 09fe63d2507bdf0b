package backend

import (
	"fmt"

	"saldo/internal/amqp"
	"saldo/internal/config"
)

// Config holds configuration for backend creation
type Config struct {
	Type         BackendType
	SQLiteDBPath string
	PostgresDSN  string

	Events       EventsType
	AMQP         amqp.Config
	KafkaBrokers []string
	KafkaTopic   string
}

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}
	cfg := Config{
		Type:         BackendType(appConfig.DataBackend),
		SQLiteDBPath: appConfig.SQLiteDBPath,
		PostgresDSN:  appConfig.PostgresDSN,
		Events:       EventsType(appConfig.EventsBackend),
		AMQP: amqp.Config{
			URL:            appConfig.AMQPURL,
			Exchange:       appConfig.AMQPExchange,
			EventsQueue:    appConfig.AMQPEventsQueue,
			ReconcileQueue: appConfig.AMQPReconcileQueue,
		},
		KafkaBrokers: appConfig.KafkaBrokers,
		KafkaTopic:   appConfig.KafkaTopic,
	}
	return cfg, cfg.Validate()
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}
	switch c.Type {
	case SQLiteBackend:
		if c.SQLiteDBPath == "" {
			return fmt.Errorf("SQLite database path is required for sqlite backend")
		}
	case PostgresBackend:
		if c.PostgresDSN == "" {
			return fmt.Errorf("postgres DSN is required for postgres backend")
		}
	}

	if c.Events == "" {
		return nil
	}
	if !c.Events.IsValid() {
		return fmt.Errorf("invalid events backend: %s", c.Events)
	}
	switch c.Events {
	case AMQPEvents:
		if c.AMQP.URL == "" || c.AMQP.Exchange == "" {
			return fmt.Errorf("AMQP URL and exchange are required for amqp events")
		}
	case KafkaEvents:
		if len(c.KafkaBrokers) == 0 || c.KafkaTopic == "" {
			return fmt.Errorf("kafka brokers and topic are required for kafka events")
		}
	}
	return nil
}
